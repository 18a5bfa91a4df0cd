package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nbd-wtf/go-nostr"

	"zapvoice/internal/config"
	"zapvoice/internal/goal"
	"zapvoice/internal/ledger"
	"zapvoice/internal/logging"
	"zapvoice/internal/metrics"
	"zapvoice/internal/notifications"
	"zapvoice/internal/overlay"
	"zapvoice/internal/payment"
	"zapvoice/internal/services/tts"
)

const (
	sessionsPath    = "/widget/sessions"
	shutdownTimeout = 5 * time.Second
	maxTrackers     = 256
)

// EventStore is the relay gateway surface the handlers need.
type EventStore interface {
	Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	FetchEvent(ctx context.Context, id string) (*nostr.Event, error)
	Connected() int
}

// Pledges starts payment flows.
type Pledges interface {
	SubmitPledge(ctx context.Context, req payment.PledgeRequest, opts ...payment.SubmitOption) (*payment.Flow, error)
}

// InvoiceChecker looks invoices up by payment hash.
type InvoiceChecker interface {
	InvoiceSettled(ctx context.Context, paymentHash string) (bool, error)
}

// Speech synthesizes alerts and lists the available voices.
type Speech interface {
	Synthesize(ctx context.Context, req tts.SpeechRequest) (tts.Audio, error)
	Models(ctx context.Context) ([]tts.Model, error)
}

// Ledger is the persistence the handlers read and the widget engines write.
type Ledger interface {
	GetPledge(ctx context.Context, id string) (*ledger.Pledge, error)
	Stats(ctx context.Context) (ledger.Stats, error)
	RecordAlert(ctx context.Context, alert ledger.Alert) error
}

// Dependencies wires the server to the rest of the process. Ledger, Metrics,
// Notifier and Logger are optional.
type Dependencies struct {
	Config   *config.Config
	Pledges  Pledges
	Events   EventStore
	Invoices InvoiceChecker
	Speech   Speech
	Ledger   Ledger
	Metrics  *metrics.Metrics
	Notifier notifications.Service
	Logger   *slog.Logger
}

// Server is the zapvoice HTTP surface.
type Server struct {
	cfg      *config.Config
	deps     Dependencies
	logger   *slog.Logger
	sessions *overlay.Registry
	limiter  *rateLimiter
	router   chi.Router
	started  time.Time
	now      func() time.Time

	trackersMu sync.Mutex
	trackers   map[string]*goal.Tracker

	server *http.Server
}

// Option customizes a server.
type Option func(*Server)

// WithClock overrides the time source for rate limiting and request timing.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds the router.
func New(deps Dependencies, opts ...Option) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("httpapi: config is required")
	}
	if deps.Pledges == nil || deps.Events == nil || deps.Speech == nil {
		return nil, errors.New("httpapi: pledges, events and speech are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}
	s := &Server{
		cfg:      deps.Config,
		deps:     deps,
		logger:   logging.NewComponentLogger(deps.Logger, "http"),
		sessions: overlay.NewRegistry(deps.Config.Widget.NotifyAudioURL, sessionsPath),
		now:      time.Now,
		trackers: make(map[string]*goal.Tracker),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.started = s.now()
	s.limiter = newRateLimiter(deps.Config.Server.RateLimitRPS, deps.Config.Server.RateLimitBurst, s.now)
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.observe)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.With(s.limiter.middleware).Post("/create_invoice", s.handleCreateInvoice)
		r.Get("/check_invoice", s.handleCheckInvoice)
		r.Get("/models", s.handleModels)
		r.Get("/goals/{eventId}/progress", s.handleGoalProgress)
		r.Get("/goals/{eventId}/stream", s.handleGoalStream)
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(s.cfg.Server.APIToken))
			r.Get("/status", s.handleStatus)
			r.Get("/pledges/{id}", s.handlePledge)
		})
	})

	r.Get("/profile/{npub}/widget", s.handleWidgetPage)
	r.Get("/profile/{npub}/widget/stream", s.handleWidgetStream)
	r.Get("/goal/{eventId}/widget", s.handleGoalWidgetPage)
	r.Post(sessionsPath+"/{sid}/ack", s.handleAck)
	r.Get(sessionsPath+"/{sid}/audio/{token}", s.handleAudio)

	if s.cfg.Metrics.Enabled && s.deps.Metrics != nil {
		r.With(authMiddleware(s.cfg.Server.APIToken)).Handle("/metrics", s.deps.Metrics.Handler())
	}
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(s.cfg.Paths.StaticDir))))
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on listener until ctx is done, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()
	s.logger.Info("http server listening", logging.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown incomplete",
			logging.Error(err),
			logging.String(logging.FieldEventType, "http_shutdown_incomplete"),
		)
		_ = s.server.Close()
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// tracker returns the shared tracker for goalID so the goal event is fetched
// once across requests.
func (s *Server) tracker(goalID string) *goal.Tracker {
	s.trackersMu.Lock()
	defer s.trackersMu.Unlock()
	if t, ok := s.trackers[goalID]; ok {
		return t
	}
	if len(s.trackers) >= maxTrackers {
		clear(s.trackers)
	}
	t := goal.NewTracker(s.deps.Events, goalID,
		goal.WithInterval(s.cfg.QueueCheckInterval()),
		goal.WithMetrics(s.deps.Metrics),
		goal.WithLogger(s.deps.Logger),
	)
	s.trackers[goalID] = t
	return t
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
