package httpapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"zapvoice/internal/config"
	"zapvoice/internal/httpapi"
	"zapvoice/internal/ledger"
	"zapvoice/internal/payment"
	"zapvoice/internal/services"
	"zapvoice/internal/services/lnurl"
	"zapvoice/internal/services/tts"
	"zapvoice/internal/testsupport"
)

var recipient = testsupport.HexID("streamer")

type fakeSpeech struct {
	models    []tts.Model
	modelsErr error
}

func (f *fakeSpeech) Synthesize(ctx context.Context, req tts.SpeechRequest) (tts.Audio, error) {
	return tts.Audio{Data: []byte("ID3-" + req.Text), ContentType: "audio/mpeg"}, nil
}

func (f *fakeSpeech) Models(ctx context.Context) ([]tts.Model, error) {
	return f.models, f.modelsErr
}

type fakeInvoices struct {
	settled bool
	err     error
	hashes  []string
}

func (f *fakeInvoices) InvoiceSettled(ctx context.Context, hash string) (bool, error) {
	f.hashes = append(f.hashes, hash)
	return f.settled, f.err
}

// wallet is a minimal LNURL-pay provider that settles on the second verify call.
type wallet struct {
	server   *httptest.Server
	verifies atomic.Int32
}

func newWallet(t *testing.T) *wallet {
	t.Helper()
	w := &wallet{}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/lnurlp/alice", func(rw http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(rw).Encode(lnurl.PayParams{
			Callback:       w.server.URL + "/callback",
			MinSendable:    1000,
			MaxSendable:    100_000_000,
			CommentAllowed: 200,
			AllowsNostr:    true,
			Tag:            "payRequest",
		})
	})
	mux.HandleFunc("/callback", func(rw http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(rw).Encode(map[string]string{
			"pr":     "lnbc210n1test",
			"verify": w.server.URL + "/verify",
		})
	})
	mux.HandleFunc("/verify", func(rw http.ResponseWriter, r *http.Request) {
		n := w.verifies.Add(1)
		_ = json.NewEncoder(rw).Encode(map[string]any{"status": "OK", "settled": n >= 2})
	})
	w.server = httptest.NewServer(mux)
	t.Cleanup(w.server.Close)
	return w
}

type harness struct {
	cfg      *config.Config
	relay    *testsupport.MemoryRelay
	store    *ledger.Store
	speech   *fakeSpeech
	invoices *fakeInvoices
	server   *httptest.Server
}

func newHarness(t *testing.T, tweak func(*config.Config), opts ...httpapi.Option) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if tweak != nil {
		tweak(cfg)
	}
	w := newWallet(t)
	host := strings.TrimPrefix(w.server.URL, "http://")
	mem := testsupport.NewMemoryRelay(testsupport.ProfileEvent(recipient, "Streamer", "alice@"+host))
	gateway := testsupport.NewGateway(mem)
	store := testsupport.MustOpenLedger(t, cfg)

	controller := payment.NewController(payment.Settings{
		Limits: payment.Limits{
			MinSatoshi:    cfg.Pledge.MinSatoshi,
			MaxTextLength: cfg.Pledge.MaxTextLength,
			Models:        cfg.Pledge.Models,
		},
		Relays:       cfg.Nostr.Relays,
		PollInterval: 5 * time.Millisecond,
	}, gateway, lnurl.NewClient(lnurl.WithHTTPClient(w.server.Client()), lnurl.WithDiscoveryScheme("http")),
		payment.WithLedger(store),
	)

	h := &harness{
		cfg:      cfg,
		relay:    mem,
		store:    store,
		speech:   &fakeSpeech{models: []tts.Model{{Name: "en-US-AriaNeural"}, {Name: "satoshi_v2"}}},
		invoices: &fakeInvoices{},
	}
	srv, err := httpapi.New(httpapi.Dependencies{
		Config:   cfg,
		Pledges:  controller,
		Events:   gateway,
		Invoices: h.invoices,
		Speech:   h.speech,
		Ledger:   store,
	}, opts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	h.server = httptest.NewServer(srv.Handler())
	t.Cleanup(h.server.Close)
	return h
}

func (h *harness) get(t *testing.T, path string, header http.Header) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	for key, values := range header {
		req.Header[key] = values
	}
	resp, err := h.server.Client().Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func (h *harness) post(t *testing.T, path, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := h.server.Client().Post(h.server.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

// frames reads data frames from an event stream, skipping comments.
type frames struct {
	t      *testing.T
	reader *bufio.Reader
}

func (f frames) next() map[string]any {
	f.t.Helper()
	for {
		line, err := f.reader.ReadString('\n')
		if err != nil {
			f.t.Fatalf("read event stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame); err != nil {
			f.t.Fatalf("decode frame %q: %v", line, err)
		}
		return frame
	}
}

func openStream(t *testing.T, client *http.Client, method, url, body string) (*http.Response, frames) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	req, err := http.NewRequestWithContext(ctx, method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp, frames{t: t, reader: bufio.NewReader(resp.Body)}
}

func errorMessage(t *testing.T, body []byte) string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	return payload["error"]
}

func TestCreateInvoiceStreamsInvoiceThenSettlement(t *testing.T) {
	h := newHarness(t, nil)
	body := fmt.Sprintf(`{"name":"alice","text":"hello stream","amount":21,"npub":%q}`, recipient)

	resp, stream := openStream(t, h.server.Client(), http.MethodPost, h.server.URL+"/api/create_invoice", body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	first := stream.next()
	invoice, ok := first["invoice"].(map[string]any)
	if !ok || invoice["pr"] != "lnbc210n1test" {
		t.Fatalf("first frame = %v, want invoice", first)
	}
	pledgeID, _ := first["pledgeId"].(string)
	if pledgeID == "" {
		t.Fatalf("first frame missing pledgeId: %v", first)
	}
	if second := stream.next(); second["status"] != "settled" {
		t.Fatalf("second frame = %v, want settled", second)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		pledge, err := h.store.GetPledge(context.Background(), pledgeID)
		if err != nil {
			t.Fatalf("get pledge: %v", err)
		}
		if pledge != nil && pledge.Status == ledger.PledgeSettled {
			if pledge.AmountSats != 21 || pledge.MessageText != "hello stream" {
				t.Fatalf("unexpected pledge record: %+v", pledge)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pledge never recorded as settled: %+v", pledge)
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp2, data := h.get(t, "/api/pledges/"+pledgeID, nil)
	if resp2.StatusCode != http.StatusOK || !strings.Contains(string(data), `"status":"settled"`) {
		t.Fatalf("pledge lookup = %d %s", resp2.StatusCode, data)
	}
}

func TestCreateInvoiceImmediateFailures(t *testing.T) {
	h := newHarness(t, nil)
	stranger := testsupport.HexID("no-profile")

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"amount":`, http.StatusBadRequest},
		{"below minimum", fmt.Sprintf(`{"amount":20,"npub":%q}`, recipient), http.StatusBadRequest},
		{"bad npub", `{"amount":21,"npub":"npub1nope"}`, http.StatusBadRequest},
		{"no profile", fmt.Sprintf(`{"amount":21,"npub":%q}`, stranger), http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.post(t, "/api/create_invoice", tt.body)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d (%s)", resp.StatusCode, tt.status, body)
			}
			if errorMessage(t, body) == "" {
				t.Fatalf("expected error message in %s", body)
			}
		})
	}
}

// testClock is a settable time source shared with handler goroutines.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCreateInvoiceIsRateLimitedPerClient(t *testing.T) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Server.RateLimitRPS = 1
		cfg.Server.RateLimitBurst = 2
	}, httpapi.WithClock(clock.Now))
	for i := 0; i < 2; i++ {
		if resp, _ := h.post(t, "/api/create_invoice", `{}`); resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("request %d status = %d, want 400", i, resp.StatusCode)
		}
	}
	resp, body := h.post(t, "/api/create_invoice", `{}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (%s)", resp.StatusCode, body)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	clock.Advance(time.Second)
	if resp, _ := h.post(t, "/api/create_invoice", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("after refill status = %d, want 400", resp.StatusCode)
	}
}

func TestCheckInvoice(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.get(t, "/api/check_invoice", nil)
	if resp.StatusCode != http.StatusBadRequest || errorMessage(t, body) != "Invalid payment_hash" {
		t.Fatalf("missing hash = %d %s", resp.StatusCode, body)
	}

	h.invoices.settled = true
	resp, body = h.get(t, "/api/check_invoice?payment_hash=abc123", nil)
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != `{"status":true}` {
		t.Fatalf("settled lookup = %d %s", resp.StatusCode, body)
	}
	if len(h.invoices.hashes) != 1 || h.invoices.hashes[0] != "abc123" {
		t.Fatalf("hashes = %v", h.invoices.hashes)
	}

	h.invoices.err = services.Wrap(services.ErrSettlementCheck, "alby", "invoice", "boom", nil)
	resp, body = h.get(t, "/api/check_invoice?payment_hash=abc123", nil)
	if resp.StatusCode != http.StatusInternalServerError || errorMessage(t, body) != "Failed to check invoice" {
		t.Fatalf("failed lookup = %d %s", resp.StatusCode, body)
	}
}

func TestModels(t *testing.T) {
	t.Run("backend list", func(t *testing.T) {
		h := newHarness(t, nil)
		resp, body := h.get(t, "/api/models", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d", resp.StatusCode)
		}
		var models []map[string]string
		if err := json.Unmarshal(body, &models); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(models) != 2 || models[1]["name"] != "satoshi_v2" || models[1]["label"] == "" {
			t.Fatalf("models = %v", models)
		}
	})
	t.Run("filtered by configured models", func(t *testing.T) {
		h := newHarness(t, func(cfg *config.Config) { cfg.Pledge.Models = []string{"satoshi_v2"} })
		_, body := h.get(t, "/api/models", nil)
		if !strings.Contains(string(body), "satoshi_v2") || strings.Contains(string(body), "AriaNeural") {
			t.Fatalf("models = %s", body)
		}
	})
	t.Run("backend down falls back to configured models", func(t *testing.T) {
		h := newHarness(t, func(cfg *config.Config) { cfg.Pledge.Models = []string{"robot"} })
		h.speech.modelsErr = services.Wrap(services.ErrConnection, "tts", "models", "", errors.New("refused"))
		resp, body := h.get(t, "/api/models", nil)
		if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"name":"robot"`) {
			t.Fatalf("fallback = %d %s", resp.StatusCode, body)
		}
	})
	t.Run("backend down without configured models", func(t *testing.T) {
		h := newHarness(t, nil)
		h.speech.modelsErr = services.Wrap(services.ErrConnection, "tts", "models", "", errors.New("refused"))
		resp, _ := h.get(t, "/api/models", nil)
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("status = %d, want 502", resp.StatusCode)
		}
	})
}

func TestGoalProgress(t *testing.T) {
	h := newHarness(t, nil)
	goalID := testsupport.HexID("goal")
	h.relay.Add(
		testsupport.GoalEvent(goalID, 1000, "new microphone"),
		testsupport.ReceiptEvent(t, testsupport.ReceiptSpec{
			ID: testsupport.HexID("r1"), CreatedAt: time.Now().Unix(), Recipient: recipient,
			GoalEventID: goalID, AmountMsat: 250_000,
		}),
		testsupport.ReceiptEvent(t, testsupport.ReceiptSpec{
			ID: testsupport.HexID("r2"), CreatedAt: time.Now().Unix(), Recipient: recipient,
			GoalEventID: goalID, AmountMsat: 1_000_000,
		}),
	)

	resp, body := h.get(t, "/api/goals/"+goalID+"/progress", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d %s", resp.StatusCode, body)
	}
	var progress struct {
		CurrentSats int64   `json:"currentSats"`
		TargetSats  int64   `json:"targetSats"`
		Percentage  float64 `json:"percentage"`
		Display     float64 `json:"display"`
		Reached     bool    `json:"reached"`
		Description string  `json:"description"`
	}
	if err := json.Unmarshal(body, &progress); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if progress.CurrentSats != 1250 || progress.TargetSats != 1000 || progress.Percentage != 125 {
		t.Fatalf("progress = %+v", progress)
	}
	if progress.Display != 100 || !progress.Reached || progress.Description != "new microphone" {
		t.Fatalf("display fields = %+v", progress)
	}

	if resp, _ := h.get(t, "/api/goals/not-an-id/progress", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid id status = %d", resp.StatusCode)
	}
	if resp, _ := h.get(t, "/api/goals/"+testsupport.HexID("missing")+"/progress", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing goal status = %d", resp.StatusCode)
	}
}

func TestGoalStreamPublishesProgress(t *testing.T) {
	h := newHarness(t, nil)
	goalID := testsupport.HexID("goal")
	h.relay.Add(testsupport.GoalEvent(goalID, 100, "drinks"))

	_, stream := openStream(t, h.server.Client(), http.MethodGet, h.server.URL+"/api/goals/"+goalID+"/stream", "")
	if first := stream.next(); first["currentSats"] != float64(0) {
		t.Fatalf("first frame = %v", first)
	}
	h.relay.Add(testsupport.ReceiptEvent(t, testsupport.ReceiptSpec{
		ID: testsupport.HexID("late"), CreatedAt: time.Now().Unix(), Recipient: recipient,
		GoalEventID: goalID, AmountMsat: 50_000,
	}))
	for i := 0; i < 50; i++ {
		if frame := stream.next(); frame["currentSats"] == float64(50) {
			return
		}
	}
	t.Fatal("stream never reported the new receipt")
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Server.APIToken = "secret" })

	if resp, _ := h.get(t, "/api/status", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status without token = %d", resp.StatusCode)
	}
	resp, body := h.get(t, "/api/status", http.Header{"Authorization": {"Bearer secret"}})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `"widgetSessions":0`) {
		t.Fatalf("status with token = %d %s", resp.StatusCode, body)
	}
	if resp, _ := h.get(t, "/api/pledges/nope", http.Header{"Authorization": {"Bearer secret"}}); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown pledge = %d", resp.StatusCode)
	}
	if resp, _ := h.get(t, "/api/models", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("public route affected by token: %d", resp.StatusCode)
	}
}

func TestWidgetPage(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.get(t, "/profile/"+recipient+"/widget", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `name="voice"`) {
		t.Fatalf("form page = %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		t.Fatalf("content type = %q", resp.Header.Get("Content-Type"))
	}

	resp, body = h.get(t, "/profile/"+recipient+"/widget?voice=satoshi_v2&min_sats=100", nil)
	want := "/profile/" + recipient + "/widget/stream?voice=satoshi_v2&amp;min_sats=100"
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), want) {
		t.Fatalf("live page = %d, missing %q", resp.StatusCode, want)
	}

	if resp, _ := h.get(t, "/profile/"+recipient+"/widget?voice=x&rate=fast", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad rate status = %d", resp.StatusCode)
	}
	if resp, _ := h.get(t, "/profile/nobody/widget", nil); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad npub status = %d", resp.StatusCode)
	}
}

func TestWidgetStreamPlaybackHandshake(t *testing.T) {
	h := newHarness(t, nil)
	receiptID := testsupport.HexID("zap")
	h.relay.Add(testsupport.ReceiptEvent(t, testsupport.ReceiptSpec{
		ID: receiptID, CreatedAt: time.Now().Unix(), Recipient: recipient,
		AmountMsat: 21_000, Comment: "great stream", Name: "bob",
	}))

	_, stream := openStream(t, h.server.Client(), http.MethodGet,
		h.server.URL+"/profile/"+recipient+"/widget/stream?voice=satoshi_v2", "")

	session := stream.next()
	ackURL, _ := session["ackUrl"].(string)
	if session["type"] != "session" || ackURL == "" {
		t.Fatalf("session frame = %v", session)
	}
	ack := func(token string) {
		t.Helper()
		resp, body := h.post(t, ackURL, fmt.Sprintf(`{"token":%q}`, token))
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("ack = %d %s", resp.StatusCode, body)
		}
	}

	notify := stream.next()
	if notify["type"] != "notify" || notify["audioUrl"] != h.cfg.Widget.NotifyAudioURL {
		t.Fatalf("notify frame = %v", notify)
	}
	ack(notify["token"].(string))

	show := stream.next()
	alert, _ := show["alert"].(map[string]any)
	if show["type"] != "show" || alert["name"] != "bob" || alert["text"] != "great stream" || alert["amount"] != float64(21) {
		t.Fatalf("show frame = %v", show)
	}

	speak := stream.next()
	audioURL, _ := speak["audioUrl"].(string)
	if speak["type"] != "speak" || audioURL == "" {
		t.Fatalf("speak frame = %v", speak)
	}
	resp, clip := h.get(t, audioURL, nil)
	if resp.StatusCode != http.StatusOK || string(clip) != "ID3-great stream" {
		t.Fatalf("audio = %d %q", resp.StatusCode, clip)
	}
	if resp.Header.Get("Content-Type") != "audio/mpeg" {
		t.Fatalf("audio content type = %q", resp.Header.Get("Content-Type"))
	}
	ack(speak["token"].(string))

	if hide := stream.next(); hide["type"] != "hide" {
		t.Fatalf("hide frame = %v", hide)
	}
	if resp, _ := h.get(t, audioURL, nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("audio still served after playback: %d", resp.StatusCode)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		history, err := h.store.ListAlerts(context.Background(), recipient, 10)
		if err != nil {
			t.Fatalf("list alerts: %v", err)
		}
		if len(history) == 1 {
			if history[0].ReceiptID != receiptID || history[0].Outcome != ledger.AlertNarrated || history[0].VoiceModel != "satoshi_v2" {
				t.Fatalf("alert record = %+v", history[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("alert was never recorded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWidgetSessionEndpointsRejectUnknownSessions(t *testing.T) {
	h := newHarness(t, nil)
	if resp, _ := h.post(t, "/widget/sessions/nope/ack", `{"token":"x"}`); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("ack status = %d", resp.StatusCode)
	}
	if resp, _ := h.get(t, "/widget/sessions/nope/audio/x", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("audio status = %d", resp.StatusCode)
	}
}
