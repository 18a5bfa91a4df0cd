package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"zapvoice/internal/config"
	"zapvoice/internal/httpapi"
	"zapvoice/internal/ledger"
	"zapvoice/internal/logging"
	"zapvoice/internal/metrics"
	"zapvoice/internal/notifications"
	"zapvoice/internal/payment"
	"zapvoice/internal/services/alby"
	"zapvoice/internal/services/lnurl"
	"zapvoice/internal/services/relay"
	"zapvoice/internal/services/tts"
)

// ErrAlreadyRunning is returned when another process holds the lock.
var ErrAlreadyRunning = errors.New("another zapvoice server is already running")

// Daemon owns the server's long-lived resources.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *ledger.Store
	gateway  *relay.Gateway
	notifier notifications.Service
	server   *httpapi.Server

	lockPath string
	lock     *flock.Flock
	running  atomic.Bool
}

// Option customizes construction.
type Option func(*options)

type options struct {
	relayOpts []relay.Option
	lnurlOpts []lnurl.Option
	speech    httpapi.Speech
	invoices  httpapi.InvoiceChecker
	notifier  notifications.Service
}

// WithRelayOptions passes options to the relay gateway.
func WithRelayOptions(opts ...relay.Option) Option {
	return func(o *options) {
		o.relayOpts = append(o.relayOpts, opts...)
	}
}

// WithLNURLOptions passes options to the LNURL client.
func WithLNURLOptions(opts ...lnurl.Option) Option {
	return func(o *options) {
		o.lnurlOpts = append(o.lnurlOpts, opts...)
	}
}

// WithSpeech replaces the speech backend client.
func WithSpeech(speech httpapi.Speech) Option {
	return func(o *options) {
		o.speech = speech
	}
}

// WithInvoiceChecker replaces the payment-hash lookup client.
func WithInvoiceChecker(checker httpapi.InvoiceChecker) Option {
	return func(o *options) {
		o.invoices = checker
	}
}

// WithNotifier replaces the ntfy service.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *options) {
		o.notifier = notifier
	}
}

// New opens the ledger and wires every gateway into the HTTP surface.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	m := metrics.New()
	notifier := o.notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	gateway := relay.New(cfg.Nostr.Relays, append([]relay.Option{
		relay.WithQueryTimeout(cfg.QueryTimeout()),
		relay.WithLogger(logger),
		relay.WithMetrics(m),
	}, o.relayOpts...)...)

	speech := o.speech
	if speech == nil {
		speech = tts.NewClient(tts.Config{
			BaseURL:        cfg.TTS.BaseURL,
			Format:         cfg.TTS.Format,
			TimeoutSeconds: cfg.TTS.TimeoutSeconds,
		})
	}
	invoices := o.invoices
	if invoices == nil {
		invoices = alby.NewConfiguredClient(cfg)
	}

	controller := payment.NewController(payment.SettingsFromConfig(cfg), gateway, lnurl.NewClient(o.lnurlOpts...),
		payment.WithLedger(store),
		payment.WithNotifier(notifier),
		payment.WithMetrics(m),
		payment.WithLogger(logger),
	)

	server, err := httpapi.New(httpapi.Dependencies{
		Config:   cfg,
		Pledges:  controller,
		Events:   gateway,
		Invoices: invoices,
		Speech:   speech,
		Ledger:   store,
		Metrics:  m,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		_ = gateway.Close()
		_ = store.Close()
		return nil, err
	}

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		server:   server,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Run acquires the instance lock and serves until ctx is done.
func (d *Daemon) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", d.cfg.Server.Bind)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return d.RunListener(ctx, listener)
}

// RunListener is Run on an existing listener, which is closed on return.
func (d *Daemon) RunListener(ctx context.Context, listener net.Listener) error {
	if !d.running.CompareAndSwap(false, true) {
		_ = listener.Close()
		return errors.New("daemon already running")
	}
	defer d.running.Store(false)

	ok, err := d.lock.TryLock()
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		_ = listener.Close()
		return ErrAlreadyRunning
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release daemon lock", logging.Error(err))
		}
	}()

	d.expireOrphans(ctx)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return d.server.Serve(groupCtx, listener)
	})

	d.logger.Info("zapvoice server started",
		logging.String("address", listener.Addr().String()),
		logging.String("lock", d.lockPath),
		logging.Int("relays", len(d.cfg.Nostr.Relays)),
		logging.String(logging.FieldEventType, "server_started"),
	)
	if err := d.notifier.Publish(ctx, notifications.EventServerStarted, notifications.Payload{
		"address": listener.Addr().String(),
	}); err != nil {
		logging.WarnWithContext(d.logger, "startup notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "streamer was not notified"),
		)
	}

	err = group.Wait()
	d.logger.Info("zapvoice server stopped")
	return err
}

// expireOrphans closes out pledges a previous process left pending.
func (d *Daemon) expireOrphans(ctx context.Context) {
	expired, err := d.store.ExpireStalePledges(context.WithoutCancel(ctx), time.Now())
	if err != nil {
		logging.WarnWithContext(d.logger, "failed to expire stale pledges", "ledger_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "abandoned pledges stay pending in history"),
		)
		return
	}
	if expired > 0 {
		d.logger.Info("expired abandoned pledges", logging.Int64("count", expired))
	}
}

// LockPath is the single-instance lock file.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Ledger exposes the store for operator commands sharing the process.
func (d *Daemon) Ledger() *ledger.Store {
	return d.store
}

// Close releases the relay connections and the ledger.
func (d *Daemon) Close() error {
	return errors.Join(d.gateway.Close(), d.store.Close())
}
