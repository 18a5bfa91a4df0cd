package alerts

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"zapvoice/internal/config"
	"zapvoice/internal/ledger"
	"zapvoice/internal/logging"
	"zapvoice/internal/metrics"
	"zapvoice/internal/notifications"
	"zapvoice/internal/services"
	"zapvoice/internal/services/tts"
	"zapvoice/internal/zaps"
)

const (
	defaultInterval = 3 * time.Second
	defaultLookback = 36000 * time.Second
)

// EventStore is the subset of the relay gateway the engine polls.
type EventStore interface {
	Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
}

// Recorder keeps a history of processed alerts.
type Recorder interface {
	RecordAlert(ctx context.Context, alert ledger.Alert) error
}

// Settings controls polling cadence and the announce cycle.
type Settings struct {
	Recipient     string
	Interval      time.Duration
	Lookback      time.Duration
	DisplayDelay  time.Duration
	HideDelay     time.Duration
	StepTimeout   time.Duration
	MinSats       int64
	MaxTextLength int
	Speech        tts.SpeechRequest
}

// SettingsFromConfig derives engine settings for recipient, a hex public key.
// Widget query parameters may override the threshold, text limit and voice
// afterwards.
func SettingsFromConfig(cfg *config.Config, recipient string) Settings {
	return Settings{
		Recipient:     recipient,
		Interval:      cfg.QueueCheckInterval(),
		Lookback:      cfg.Lookback(),
		DisplayDelay:  cfg.DisplayDelay(),
		HideDelay:     cfg.HideDelay(),
		StepTimeout:   cfg.StepTimeout(),
		MaxTextLength: cfg.Pledge.MaxTextLength,
		Speech: tts.SpeechRequest{
			Voice:  cfg.TTS.Voice,
			Format: cfg.TTS.Format,
			Rate:   cfg.TTS.Rate,
			Volume: cfg.TTS.Volume,
			Pitch:  cfg.TTS.Pitch,
		},
	}
}

// Snapshot is a point-in-time view of the engine for status output.
type Snapshot struct {
	QueueDepth int       `json:"queueDepth"`
	InFlight   string    `json:"inFlight,omitempty"`
	LastSeen   string    `json:"lastSeen,omitempty"`
	LastPoll   time.Time `json:"lastPoll"`
	Processed  int       `json:"processed"`
}

// Engine polls for receipts and announces them one at a time.
type Engine struct {
	settings  Settings
	store     EventStore
	synth     Synthesizer
	presenter Presenter
	recorder  Recorder
	notifier  notifications.Service
	observer  func(Result)
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	// Owned by Run.
	queue     []zaps.Receipt
	inFlight  bool
	lastSeen  string
	lastPoll  time.Time
	processed int

	snapshot atomic.Pointer[Snapshot]
}

// Option customizes the engine.
type Option func(*Engine)

// WithRecorder stores every processed alert.
func WithRecorder(recorder Recorder) Option {
	return func(e *Engine) {
		e.recorder = recorder
	}
}

// WithNotifier reports failed announcements to the streamer.
func WithNotifier(notifier notifications.Service) Option {
	return func(e *Engine) {
		if notifier != nil {
			e.notifier = notifier
		}
	}
}

// WithObserver is called after every fully narrated alert.
func WithObserver(observer func(Result)) Option {
	return func(e *Engine) {
		e.observer = observer
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClock overrides the time source used for the lookback window.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithSleep overrides how display and hide delays are waited out.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// NewEngine builds an engine for settings.Recipient.
func NewEngine(settings Settings, store EventStore, synth Synthesizer, presenter Presenter, opts ...Option) *Engine {
	if settings.Interval <= 0 {
		settings.Interval = defaultInterval
	}
	if settings.Lookback <= 0 {
		settings.Lookback = defaultLookback
	}
	e := &Engine{
		settings:  settings,
		store:     store,
		synth:     synth,
		presenter: presenter,
		notifier:  notifications.NewService(nil),
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.NewComponentLogger(e.logger, "alerts").With(logging.Recipient(settings.Recipient))
	e.snapshot.Store(&Snapshot{})
	return e
}

// Snapshot returns the state published by the run loop.
func (e *Engine) Snapshot() Snapshot {
	return *e.snapshot.Load()
}

// Run polls and drains until ctx is done. An announcement in progress is
// interrupted through ctx and awaited before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.settings.Interval)
	defer ticker.Stop()
	done := make(chan Result, 1)

	e.logger.Info("alert engine started",
		logging.Duration("interval", e.settings.Interval),
		logging.Duration("lookback", e.settings.Lookback),
		logging.String(logging.FieldEventType, "alerts_started"),
	)
	e.poll(ctx)
	for {
		e.drain(ctx, done)
		select {
		case <-ctx.Done():
			if e.inFlight {
				<-done
			}
			e.logger.Info("alert engine stopped", logging.String(logging.FieldEventType, "alerts_stopped"))
			return nil
		case <-ticker.C:
			e.poll(ctx)
		case result := <-done:
			e.finish(ctx, result)
		}
	}
}

// poll enqueues the newest receipt when it differs from the last one enqueued.
func (e *Engine) poll(ctx context.Context) {
	e.lastPoll = e.now()
	since := nostr.Timestamp(e.lastPoll.Add(-e.settings.Lookback).Unix())
	events, err := e.store.Query(ctx, nostr.Filter{
		Kinds: []int{zaps.KindZapReceipt},
		Tags:  nostr.TagMap{"p": []string{e.settings.Recipient}},
		Since: &since,
	})
	defer e.publishSnapshot()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		err = services.Wrap(services.ErrEventFetch, "alerts", "poll", "", err)
		logging.WarnWithContext(e.logger, "receipt poll failed", "alerts_poll_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check relay connectivity"),
			logging.String(logging.FieldImpact, "retrying on next interval"),
		)
		return
	}

	newest, ok := zaps.Newest(zaps.ParseReceipts(events))
	if !ok || newest.ID == e.lastSeen {
		return
	}
	e.lastSeen = newest.ID
	e.queue = append(e.queue, newest)
	e.metrics.QueueDepth(len(e.queue))
	e.logger.Info("receipt enqueued",
		logging.EventID(newest.ID),
		logging.Sats(newest.AmountSats),
		logging.Int("queue_depth", len(e.queue)),
		logging.String(logging.FieldEventType, "alert_enqueued"),
	)
}

// drain starts the announce cycle for the head when nothing is in flight.
func (e *Engine) drain(ctx context.Context, done chan<- Result) {
	if e.inFlight || len(e.queue) == 0 || ctx.Err() != nil {
		return
	}
	e.inFlight = true
	head := e.queue[0]
	e.publishSnapshot()
	go func() {
		done <- e.announce(ctx, head)
	}()
}

// finish removes the head once its cycle has returned.
func (e *Engine) finish(ctx context.Context, result Result) {
	e.queue = slices.Delete(e.queue, 0, 1)
	e.inFlight = false
	e.processed++
	e.metrics.QueueDepth(len(e.queue))
	e.metrics.AlertProcessed(string(result.Outcome), result.Duration)
	e.publishSnapshot()
	e.record(ctx, result)
}

func (e *Engine) publishSnapshot() {
	snap := &Snapshot{
		QueueDepth: len(e.queue),
		LastSeen:   e.lastSeen,
		LastPoll:   e.lastPoll,
		Processed:  e.processed,
	}
	if e.inFlight && len(e.queue) > 0 {
		snap.InFlight = e.queue[0].ID
	}
	e.snapshot.Store(snap)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
