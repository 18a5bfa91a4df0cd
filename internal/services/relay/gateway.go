package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"golang.org/x/sync/errgroup"

	"zapvoice/internal/logging"
	"zapvoice/internal/metrics"
	"zapvoice/internal/services"
	"zapvoice/internal/zaps"
)

const (
	defaultQueryTimeout = 10 * time.Second
	defaultRedialAfter  = 30 * time.Second
)

// Conn is the subset of a relay connection the gateway uses.
type Conn interface {
	QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
	Publish(ctx context.Context, event nostr.Event) error
	IsConnected() bool
	Close() error
}

// Dialer opens a connection to a relay URL.
type Dialer func(ctx context.Context, url string) (Conn, error)

// Gateway queries and publishes against a fixed set of relays.
type Gateway struct {
	urls        []string
	dial        Dialer
	timeout     time.Duration
	redialAfter time.Duration
	now         func() time.Time
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu         sync.Mutex
	conns      map[string]Conn
	lastDial   map[string]time.Time
	inflight   map[string]*dialAttempt
	generation uint64
}

// dialAttempt tracks one background dial. done closes once the outcome is
// installed; err is set before that when the dial failed.
type dialAttempt struct {
	done chan struct{}
	err  error
}

// Option customizes the gateway.
type Option func(*Gateway)

// WithDialer replaces the websocket dialer (tests use in-memory relays).
func WithDialer(dial Dialer) Option {
	return func(g *Gateway) {
		if dial != nil {
			g.dial = dial
		}
	}
}

// WithQueryTimeout bounds each dial and each per-relay query.
func WithQueryTimeout(timeout time.Duration) Option {
	return func(g *Gateway) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}

// WithRedialAfter sets how long an unreachable relay is skipped.
func WithRedialAfter(interval time.Duration) Option {
	return func(g *Gateway) {
		g.redialAfter = interval
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithMetrics counts query results.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// New constructs a gateway for the given relay URLs. No connection is made
// until the first call.
func New(urls []string, opts ...Option) *Gateway {
	g := &Gateway{
		urls:        slices.Clone(urls),
		dial:        dialWebsocket,
		timeout:     defaultQueryTimeout,
		redialAfter: defaultRedialAfter,
		now:         time.Now,
		conns:       make(map[string]Conn, len(urls)),
		lastDial:    make(map[string]time.Time, len(urls)),
		inflight:    make(map[string]*dialAttempt, len(urls)),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "relay")
	return g
}

func dialWebsocket(ctx context.Context, url string) (Conn, error) {
	relay, err := nostr.RelayConnect(ctx, url)
	if err != nil {
		return nil, err
	}
	return websocketConn{relay: relay}, nil
}

type websocketConn struct {
	relay *nostr.Relay
}

func (c websocketConn) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	return c.relay.QuerySync(ctx, filter)
}

func (c websocketConn) Publish(ctx context.Context, event nostr.Event) error {
	return c.relay.Publish(ctx, event)
}

func (c websocketConn) IsConnected() bool { return c.relay.IsConnected() }

func (c websocketConn) Close() error { return c.relay.Close() }

// Relays returns the configured relay URLs.
func (g *Gateway) Relays() []string {
	return slices.Clone(g.urls)
}

// Query runs filter against every connected relay and merges the results.
// It fails only when no relay is reachable or every relay query failed.
func (g *Gateway) Query(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	conns, err := g.connections(ctx)
	if err != nil {
		return nil, err
	}

	results := make([][]*nostr.Event, len(conns))
	failures := make([]error, len(conns))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, entry := range conns {
		group.Go(func() error {
			queryCtx, cancel := context.WithTimeout(groupCtx, g.timeout)
			defer cancel()
			events, err := entry.conn.QuerySync(queryCtx, filter)
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", entry.url, err)
				return nil
			}
			results[i] = events
			return nil
		})
	}
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	g.dropDisconnected(conns, failures)

	failed := 0
	for _, failure := range failures {
		if failure != nil {
			failed++
			g.logger.Debug("relay query failed", logging.Error(failure))
		}
	}
	if failed == len(conns) {
		g.metrics.RelayQuery("error")
		return nil, services.Wrap(services.ErrEventFetch, "relay", "query", "every relay query failed", errors.Join(failures...))
	}
	g.metrics.RelayQuery("ok")
	return merge(results), nil
}

// Publish sends event to every connected relay. It succeeds when at least one
// relay accepted the event.
func (g *Gateway) Publish(ctx context.Context, event nostr.Event) error {
	conns, err := g.connections(ctx)
	if err != nil {
		return err
	}
	failures := make([]error, len(conns))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, entry := range conns {
		group.Go(func() error {
			publishCtx, cancel := context.WithTimeout(groupCtx, g.timeout)
			defer cancel()
			if err := entry.conn.Publish(publishCtx, event); err != nil {
				failures[i] = fmt.Errorf("%s: %w", entry.url, err)
			}
			return nil
		})
	}
	_ = group.Wait()
	g.dropDisconnected(conns, failures)
	for _, failure := range failures {
		if failure == nil {
			return nil
		}
	}
	return services.Wrap(services.ErrConnection, "relay", "publish", "no relay accepted the event", errors.Join(failures...))
}

// FetchEvent returns the event with the given hex id.
func (g *Gateway) FetchEvent(ctx context.Context, id string) (*nostr.Event, error) {
	events, err := g.Query(ctx, nostr.Filter{IDs: []string{id}, Limit: 1})
	if err != nil {
		return nil, err
	}
	for _, event := range events {
		if event.ID == id {
			return event, nil
		}
	}
	return nil, services.Wrap(services.ErrNotFound, "relay", "fetch event", id, nil)
}

// FetchProfile returns the newest kind-0 metadata for pubkey.
func (g *Gateway) FetchProfile(ctx context.Context, pubkey string) (zaps.Profile, error) {
	events, err := g.Query(ctx, nostr.Filter{Kinds: []int{zaps.KindProfile}, Authors: []string{pubkey}, Limit: 1})
	if err != nil {
		return zaps.Profile{}, err
	}
	var newest *nostr.Event
	for _, event := range events {
		if event.PubKey != pubkey {
			continue
		}
		if newest == nil || event.CreatedAt > newest.CreatedAt {
			newest = event
		}
	}
	if newest == nil {
		return zaps.Profile{}, services.Wrap(services.ErrNotFound, "relay", "fetch profile", pubkey, nil)
	}
	return zaps.ParseProfile(newest)
}

// Connected reports how many relays currently hold an open connection.
func (g *Gateway) Connected() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Close closes every open connection. Dials still in flight are discarded when
// they finish. The gateway may be used again afterwards.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.generation++
	clear(g.inflight)
	var errs []error
	for url, conn := range g.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
		}
		delete(g.conns, url)
	}
	clear(g.lastDial)
	return errors.Join(errs...)
}

type pooledConn struct {
	url  string
	conn Conn
}

// connections starts a background dial for every relay that is not connected
// and is due for a retry, then returns the open connections in configuration
// order. Callers only wait for dials when no relay is open yet; otherwise a
// slow or dead relay never holds up a query against the healthy ones.
func (g *Gateway) connections(ctx context.Context) ([]pooledConn, error) {
	g.mu.Lock()
	now := g.now()
	for _, url := range g.urls {
		if _, ok := g.conns[url]; ok {
			continue
		}
		if _, ok := g.inflight[url]; ok {
			continue
		}
		if last, ok := g.lastDial[url]; ok && now.Sub(last) < g.redialAfter {
			continue
		}
		g.lastDial[url] = now
		attempt := &dialAttempt{done: make(chan struct{})}
		g.inflight[url] = attempt
		go g.dialRelay(context.WithoutCancel(ctx), url, attempt, g.generation)
	}
	open := g.openLocked()
	waiting := make([]*dialAttempt, 0, len(g.inflight))
	for _, attempt := range g.inflight {
		waiting = append(waiting, attempt)
	}
	g.mu.Unlock()

	if len(open) > 0 {
		return open, nil
	}

	var dialErrs []error
	for _, attempt := range waiting {
		select {
		case <-attempt.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if attempt.err != nil {
			dialErrs = append(dialErrs, attempt.err)
		}
	}

	g.mu.Lock()
	open = g.openLocked()
	g.mu.Unlock()
	if len(open) == 0 {
		return nil, services.Wrap(services.ErrConnection, "relay", "connect",
			fmt.Sprintf("no relay reachable (%d configured)", len(g.urls)), errors.Join(dialErrs...))
	}
	return open, nil
}

// dialRelay runs detached from the caller that triggered it so one abandoned
// request cannot cancel a dial other callers are waiting on.
func (g *Gateway) dialRelay(ctx context.Context, url string, attempt *dialAttempt, generation uint64) {
	dialCtx, cancel := context.WithTimeout(ctx, g.timeout)
	conn, err := g.dial(dialCtx, url)
	cancel()

	g.mu.Lock()
	stale := generation != g.generation
	if !stale {
		delete(g.inflight, url)
		if err == nil {
			g.conns[url] = conn
		}
	}
	g.mu.Unlock()

	switch {
	case err != nil:
		attempt.err = fmt.Errorf("%s: %w", url, err)
		logging.WarnWithContext(g.logger, "relay unreachable", "relay_connect_failed",
			logging.Relay(url),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the relay URL or remove it from RELAYS"),
			logging.String(logging.FieldImpact, "queries use the remaining relays"),
		)
	case stale:
		_ = conn.Close()
	default:
		g.logger.Debug("relay connected", logging.Relay(url))
	}
	close(attempt.done)
}

func (g *Gateway) openLocked() []pooledConn {
	out := make([]pooledConn, 0, len(g.conns))
	for _, url := range g.urls {
		if conn, ok := g.conns[url]; ok {
			out = append(out, pooledConn{url: url, conn: conn})
		}
	}
	return out
}

func (g *Gateway) dropDisconnected(conns []pooledConn, failures []error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, entry := range conns {
		if failures[i] == nil || entry.conn.IsConnected() {
			continue
		}
		if current, ok := g.conns[entry.url]; ok && current == entry.conn {
			_ = entry.conn.Close()
			delete(g.conns, entry.url)
		}
	}
}

func merge(results [][]*nostr.Event) []*nostr.Event {
	seen := make(map[string]struct{})
	var merged []*nostr.Event
	for _, events := range results {
		for _, event := range events {
			if event == nil {
				continue
			}
			if _, dup := seen[event.ID]; dup {
				continue
			}
			seen[event.ID] = struct{}{}
			merged = append(merged, event)
		}
	}
	return merged
}
