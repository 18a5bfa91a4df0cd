package testsupport

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/nbd-wtf/go-nostr"

	"zapvoice/internal/services/relay"
)

// MemoryRelay is an in-memory relay.Conn for gateway-backed tests.
type MemoryRelay struct {
	mu        sync.Mutex
	events    []*nostr.Event
	published []nostr.Event
	failNext  int
	closed    bool
}

// NewMemoryRelay returns a relay seeded with events.
func NewMemoryRelay(events ...*nostr.Event) *MemoryRelay {
	return &MemoryRelay{events: slices.Clone(events)}
}

// Add stores more events.
func (r *MemoryRelay) Add(events ...*nostr.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

// FailQueries makes the next n queries return an error.
func (r *MemoryRelay) FailQueries(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
}

// Published returns events received through Publish.
func (r *MemoryRelay) Published() []nostr.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.published)
}

func (r *MemoryRelay) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext > 0 {
		r.failNext--
		return nil, errors.New("memory relay: query failed")
	}
	var matched []*nostr.Event
	for _, event := range r.events {
		if filter.Matches(event) {
			matched = append(matched, event)
		}
	}
	slices.SortStableFunc(matched, func(a, b *nostr.Event) int {
		return int(b.CreatedAt - a.CreatedAt)
	})
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (r *MemoryRelay) Publish(ctx context.Context, event nostr.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, event)
	stored := event
	r.events = append(r.events, &stored)
	return nil
}

func (r *MemoryRelay) IsConnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.closed
}

func (r *MemoryRelay) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// MemoryDialer serves the given relays by URL; unknown URLs fail to connect.
func MemoryDialer(relays map[string]*MemoryRelay) relay.Dialer {
	return func(ctx context.Context, url string) (relay.Conn, error) {
		if r, ok := relays[url]; ok {
			return r, nil
		}
		return nil, errors.New("memory relay: unknown url " + url)
	}
}

// NewGateway builds a relay gateway over a single in-memory relay.
func NewGateway(r *MemoryRelay) *relay.Gateway {
	const url = "wss://memory.relay"
	return relay.New([]string{url}, relay.WithDialer(MemoryDialer(map[string]*MemoryRelay{url: r})))
}
