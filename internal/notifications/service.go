package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"zapvoice/internal/config"
)

const userAgent = "zapvoice/0.1.0"

// Event identifies a notification type.
type Event string

const (
	EventPledgeSettled Event = "pledge_settled"
	EventPledgeExpired Event = "pledge_expired"
	EventAlertFailed   Event = "alert_failed"
	EventServerStarted Event = "server_started"
	EventError         Event = "error"
	EventTest          Event = "test"
)

// Payload carries event fields. Values are formatted with fmt's %v.
type Payload map[string]any

// Service publishes notifications.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventPledgeSettled: cfg.Notifications.PledgeSettled,
			EventPledgeExpired: cfg.Notifications.PledgeSettled,
			EventAlertFailed:   cfg.Notifications.Errors,
			EventError:         cfg.Notifications.Errors,
			EventServerStarted: true,
			EventTest:          true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || n.client == nil {
		return nil
	}
	if enabled, known := n.enabled[event]; known && !enabled {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventPledgeSettled:
		body := fmt.Sprintf("⚡ %s sats from %s", payload.text("amountSats", "?"), payload.text("name", "anonymous"))
		if text := payload.text("message", ""); text != "" {
			body += "\n" + text
		}
		return message{
			title:    "zapvoice - Pledge Received",
			body:     body,
			tags:     []string{"zapvoice", "pledge", "settled"},
			priority: "high",
		}, true
	case EventPledgeExpired:
		return message{
			title: "zapvoice - Pledge Expired",
			body:  fmt.Sprintf("Invoice for %s sats was never paid", payload.text("amountSats", "?")),
			tags:  []string{"zapvoice", "pledge", "expired"},
		}, true
	case EventAlertFailed:
		return message{
			title: "zapvoice - Alert Dropped",
			body: fmt.Sprintf("Could not narrate %s sats from %s: %s",
				payload.text("amountSats", "?"), payload.text("name", "anonymous"), payload.text("error", "unknown error")),
			tags: []string{"zapvoice", "alert", "failed"},
		}, true
	case EventServerStarted:
		return message{
			title:    "zapvoice - Started",
			body:     fmt.Sprintf("Listening on %s", payload.text("bind", "?")),
			tags:     []string{"zapvoice", "server"},
			priority: "low",
		}, true
	case EventError:
		var builder strings.Builder
		builder.WriteString("❌ Error")
		if label := payload.text("context", ""); label != "" {
			builder.WriteString(" with ")
			builder.WriteString(label)
		}
		builder.WriteString(": ")
		builder.WriteString(payload.text("error", "unknown"))
		return message{
			title:    "zapvoice - Error",
			body:     builder.String(),
			tags:     []string{"zapvoice", "error"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "zapvoice - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"zapvoice", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (p Payload) text(key, fallback string) string {
	value, ok := p[key]
	if !ok || value == nil {
		return fallback
	}
	var out string
	switch v := value.(type) {
	case string:
		out = v
	case int64:
		out = strconv.FormatInt(v, 10)
	case error:
		out = v.Error()
	default:
		out = fmt.Sprintf("%v", v)
	}
	if out = strings.TrimSpace(out); out == "" {
		return fallback
	}
	return out
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
