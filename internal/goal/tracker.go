package goal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"zapvoice/internal/logging"
	"zapvoice/internal/metrics"
	"zapvoice/internal/services"
	"zapvoice/internal/zaps"
)

const defaultInterval = 3 * time.Second

// EventStore is the subset of the relay gateway the tracker needs.
type EventStore interface {
	FetchEvent(ctx context.Context, id string) (*nostr.Event, error)
	Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
}

// Progress is a snapshot of a goal's funding.
type Progress struct {
	GoalID      string    `json:"goalId"`
	Description string    `json:"description,omitempty"`
	CurrentSats int64     `json:"currentSats"`
	TargetSats  int64     `json:"targetSats"`
	Percentage  float64   `json:"percentage"`
	Receipts    int       `json:"receipts"`
	Malformed   int       `json:"malformed,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clamped returns Percentage bounded to [0, 100] for display.
func (p Progress) Clamped() float64 {
	switch {
	case p.Percentage < 0:
		return 0
	case p.Percentage > 100:
		return 100
	default:
		return p.Percentage
	}
}

// Reached reports whether the target has been met.
func (p Progress) Reached() bool {
	return p.TargetSats > 0 && p.CurrentSats >= p.TargetSats
}

// Tracker computes progress for a single goal.
type Tracker struct {
	store    EventStore
	goalID   string
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	goal *zaps.Goal
	last *Progress
}

// Option customizes a tracker.
type Option func(*Tracker)

// WithInterval sets the recompute cadence used by Run.
func WithInterval(interval time.Duration) Option {
	return func(t *Tracker) {
		if interval > 0 {
			t.interval = interval
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithClock overrides the time source stamped on snapshots.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker builds a tracker for goalID, a hex event id.
func NewTracker(store EventStore, goalID string, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		goalID:   goalID,
		interval: defaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = logging.NewComponentLogger(t.logger, "goal").With(logging.String("goal_id", goalID))
	return t
}

// GoalID returns the tracked goal event id.
func (t *Tracker) GoalID() string {
	return t.goalID
}

// Compute fetches the goal (first call only) and sums every receipt that
// references it. Receipts with unreadable payloads count as zero.
func (t *Tracker) Compute(ctx context.Context) (Progress, error) {
	goal, err := t.loadGoal(ctx)
	if err != nil {
		return Progress{}, err
	}

	events, err := t.store.Query(ctx, nostr.Filter{
		Kinds: []int{zaps.KindZapReceipt},
		Tags:  nostr.TagMap{"e": []string{t.goalID}},
	})
	if err != nil {
		return Progress{}, services.Wrap(services.ErrEventFetch, "goal", "query receipts", "", err)
	}

	receipts := zaps.ParseReceipts(events)
	progress := Progress{
		GoalID:      goal.ID,
		Description: goal.Description,
		TargetSats:  goal.TargetSats,
		CurrentSats: zaps.SumSats(receipts),
		Receipts:    len(receipts),
		UpdatedAt:   t.now(),
	}
	for _, receipt := range receipts {
		if receipt.Malformed() {
			progress.Malformed++
			t.logger.Debug("receipt counted as zero", logging.Error(receipt.Problem))
		}
	}
	if progress.TargetSats > 0 {
		progress.Percentage = float64(progress.CurrentSats) / float64(progress.TargetSats) * 100
	}

	t.mu.Lock()
	t.last = &progress
	t.mu.Unlock()
	t.metrics.GoalProgress(t.goalID, progress.CurrentSats)
	return progress, nil
}

// Last returns the most recent successful snapshot.
func (t *Tracker) Last() (Progress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Progress{}, false
	}
	return *t.last, true
}

// Follow recomputes progress every interval, calling publish after each
// successful computation. The first recompute happens one interval in since
// callers publish their own snapshot from Compute. It returns when ctx is done.
func (t *Tracker) Follow(ctx context.Context, publish func(Progress)) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		t.tick(ctx, publish)
	}
}

func (t *Tracker) tick(ctx context.Context, publish func(Progress)) {
	progress, err := t.Compute(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		attrs := []logging.Attr{
			logging.Error(err),
			logging.String(logging.FieldImpact, "keeping last published total"),
		}
		if last, ok := t.Last(); ok {
			attrs = append(attrs, logging.Int64("current_sats", last.CurrentSats))
		}
		logging.WarnWithContext(t.logger, "goal progress tick failed", "goal_tick_failed", attrs...)
		return
	}
	if publish != nil {
		publish(progress)
	}
}

func (t *Tracker) loadGoal(ctx context.Context) (zaps.Goal, error) {
	t.mu.Lock()
	cached := t.goal
	t.mu.Unlock()
	if cached != nil {
		return *cached, nil
	}

	event, err := t.store.FetchEvent(ctx, t.goalID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return zaps.Goal{}, err
		}
		return zaps.Goal{}, services.Wrap(services.ErrEventFetch, "goal", "fetch goal", t.goalID, err)
	}
	goal, err := zaps.ParseGoal(event)
	if err != nil {
		return zaps.Goal{}, services.Wrap(services.ErrValidation, "goal", "parse goal", "event is not a valid goal", err)
	}

	t.mu.Lock()
	if t.goal == nil {
		t.goal = &goal
	}
	goal = *t.goal
	t.mu.Unlock()
	t.logger.Info("goal loaded",
		logging.Int64("target_sats", goal.TargetSats),
		logging.String(logging.FieldEventType, "goal_loaded"),
	)
	return goal, nil
}
