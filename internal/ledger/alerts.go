package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

const alertColumns = "receipt_id, recipient, amount_sats, submitter_name, message_text, voice_model, outcome, error_message, receipt_created_at, processed_at"

// RecordAlert stores the outcome for a receipt. Recording the same receipt
// again replaces the earlier row.
func (s *Store) RecordAlert(ctx context.Context, alert Alert) error {
	if alert.ReceiptID == "" {
		return fmt.Errorf("record alert: receipt id required")
	}
	if alert.ProcessedAt.IsZero() {
		alert.ProcessedAt = s.now()
	}
	var receiptCreated any
	if !alert.ReceiptCreatedAt.IsZero() {
		receiptCreated = formatTime(alert.ReceiptCreatedAt)
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO alerts (`+alertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.ReceiptID,
		alert.Recipient,
		alert.AmountSats,
		nullableString(alert.SubmitterName),
		nullableString(alert.MessageText),
		nullableString(alert.VoiceModel),
		alert.Outcome,
		nullableString(alert.ErrorMessage),
		receiptCreated,
		formatTime(alert.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// ListAlerts returns processed alerts newest first. An empty recipient lists
// every recipient; a limit of zero returns everything.
func (s *Store) ListAlerts(ctx context.Context, recipient string, limit int) ([]Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	var args []any
	if recipient != "" {
		query += ` WHERE recipient = ?`
		args = append(args, recipient)
	}
	query += ` ORDER BY processed_at DESC, receipt_id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

// Stats aggregates pledge statuses and alert outcomes.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		Pledges: make(map[PledgeStatus]int),
		Alerts:  make(map[AlertOutcome]int),
	}
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1), COALESCE(SUM(amount_sats), 0) FROM pledges GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("pledge stats: %w", err)
	}
	for rows.Next() {
		var (
			status string
			count  int
			sats   int64
		)
		if err := rows.Scan(&status, &count, &sats); err != nil {
			rows.Close()
			return stats, fmt.Errorf("scan pledge stats: %w", err)
		}
		stats.Pledges[PledgeStatus(status)] = count
		if PledgeStatus(status) == PledgeSettled {
			stats.SettledSats = sats
		}
	}
	if err := rows.Close(); err != nil {
		return stats, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT outcome, COUNT(1) FROM alerts GROUP BY outcome`)
	if err != nil {
		return stats, fmt.Errorf("alert stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			outcome string
			count   int
		)
		if err := rows.Scan(&outcome, &count); err != nil {
			return stats, fmt.Errorf("scan alert stats: %w", err)
		}
		stats.Alerts[AlertOutcome(outcome)] = count
	}
	return stats, rows.Err()
}

func scanAlert(row scanner) (Alert, error) {
	var (
		alert          Alert
		submitterName  sql.NullString
		messageText    sql.NullString
		voiceModel     sql.NullString
		outcome        string
		errorMessage   sql.NullString
		receiptCreated sql.NullString
		processedRaw   string
	)
	if err := row.Scan(
		&alert.ReceiptID,
		&alert.Recipient,
		&alert.AmountSats,
		&submitterName,
		&messageText,
		&voiceModel,
		&outcome,
		&errorMessage,
		&receiptCreated,
		&processedRaw,
	); err != nil {
		return Alert{}, err
	}
	alert.SubmitterName = submitterName.String
	alert.MessageText = messageText.String
	alert.VoiceModel = voiceModel.String
	alert.Outcome = AlertOutcome(outcome)
	alert.ErrorMessage = errorMessage.String
	if created := parseNullTime(receiptCreated); created != nil {
		alert.ReceiptCreatedAt = *created
	}
	if processed, err := parseTimeString(processedRaw); err == nil {
		alert.ProcessedAt = processed
	}
	return alert, nil
}

