package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"zapvoice/internal/config"
)

// ErrInvalidTransition is returned when a pledge already reached a terminal status.
var ErrInvalidTransition = errors.New("invalid pledge transition")

// Store manages ledger persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open initializes or connects to the ledger database at cfg.LedgerPath.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.LedgerPath())
}

// OpenPath opens the ledger database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, now: time.Now}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const pledgeColumns = "id, recipient, goal_event_id, submitter_name, message_text, voice_model, amount_sats, payment_request, verify_url, status, error_message, created_at, updated_at, settled_at"

// CreatePledge inserts a pledge in the created status.
func (s *Store) CreatePledge(ctx context.Context, pledge *Pledge) error {
	if pledge == nil {
		return errors.New("pledge is nil")
	}
	if strings.TrimSpace(pledge.ID) == "" {
		return errors.New("pledge id required")
	}
	now := s.now().UTC()
	pledge.Status = PledgeCreated
	pledge.CreatedAt = now
	pledge.UpdatedAt = now
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO pledges (`+pledgeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pledge.ID,
		pledge.Recipient,
		nullableString(pledge.GoalEventID),
		nullableString(pledge.SubmitterName),
		nullableString(pledge.MessageText),
		nullableString(pledge.VoiceModel),
		pledge.AmountSats,
		nullableString(pledge.PaymentRequest),
		nullableString(pledge.VerifyURL),
		pledge.Status,
		nil,
		formatTime(now),
		formatTime(now),
		nil,
	)
	if err != nil {
		return fmt.Errorf("insert pledge: %w", err)
	}
	return nil
}

// TransitionPledge moves a created pledge to a terminal status. Pledges that
// are already terminal are left untouched and ErrInvalidTransition is returned.
func (s *Store) TransitionPledge(ctx context.Context, id string, status PledgeStatus, message string) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal status", ErrInvalidTransition, status)
	}
	now := s.now().UTC()
	var settledAt *time.Time
	if status == PledgeSettled {
		settledAt = &now
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE pledges
         SET status = ?, error_message = ?, updated_at = ?, settled_at = ?
         WHERE id = ? AND status = ?`,
		status,
		nullableString(message),
		formatTime(now),
		nullableTime(settledAt),
		id,
		PledgeCreated,
	)
	if err != nil {
		return fmt.Errorf("update pledge: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: pledge %s is not pending", ErrInvalidTransition, id)
	}
	return nil
}

// GetPledge fetches a pledge by id. A missing pledge returns nil without error.
func (s *Store) GetPledge(ctx context.Context, id string) (*Pledge, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pledgeColumns+` FROM pledges WHERE id = ?`, id)
	pledge, err := scanPledge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pledge: %w", err)
	}
	return pledge, nil
}

// ListPledges returns pledges newest first, filtered by status set (or all
// pledges when no status is provided). A limit of zero returns everything.
func (s *Store) ListPledges(ctx context.Context, limit int, statuses ...PledgeStatus) ([]*Pledge, error) {
	query := `SELECT ` + pledgeColumns + ` FROM pledges`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pledges: %w", err)
	}
	defer rows.Close()

	var pledges []*Pledge
	for rows.Next() {
		pledge, err := scanPledge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pledge: %w", err)
		}
		pledges = append(pledges, pledge)
	}
	return pledges, rows.Err()
}

// ExpireStalePledges marks created pledges older than cutoff as expired. It
// runs at startup so pledges orphaned by a restart do not stay pending.
func (s *Store) ExpireStalePledges(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE pledges SET status = ?, error_message = ?, updated_at = ?
         WHERE status = ? AND created_at < ?`,
		PledgeExpired,
		"abandoned before settlement",
		formatTime(s.now()),
		PledgeCreated,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("expire pledges: %w", err)
	}
	return res.RowsAffected()
}

func scanPledge(row scanner) (*Pledge, error) {
	var (
		pledge         Pledge
		goalEventID    sql.NullString
		submitterName  sql.NullString
		messageText    sql.NullString
		voiceModel     sql.NullString
		paymentRequest sql.NullString
		verifyURL      sql.NullString
		status         string
		errorMessage   sql.NullString
		createdRaw     string
		updatedRaw     string
		settledRaw     sql.NullString
	)
	if err := row.Scan(
		&pledge.ID,
		&pledge.Recipient,
		&goalEventID,
		&submitterName,
		&messageText,
		&voiceModel,
		&pledge.AmountSats,
		&paymentRequest,
		&verifyURL,
		&status,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&settledRaw,
	); err != nil {
		return nil, err
	}
	pledge.GoalEventID = goalEventID.String
	pledge.SubmitterName = submitterName.String
	pledge.MessageText = messageText.String
	pledge.VoiceModel = voiceModel.String
	pledge.PaymentRequest = paymentRequest.String
	pledge.VerifyURL = verifyURL.String
	pledge.Status = PledgeStatus(status)
	pledge.ErrorMessage = errorMessage.String
	if created, err := parseTimeString(createdRaw); err == nil {
		pledge.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		pledge.UpdatedAt = updated
	}
	pledge.SettledAt = parseNullTime(settledRaw)
	return &pledge, nil
}
