package daemon_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"zapvoice/internal/daemon"
	"zapvoice/internal/ledger"
	"zapvoice/internal/notifications"
	"zapvoice/internal/services/lnurl"
	"zapvoice/internal/services/relay"
	"zapvoice/internal/services/tts"
	"zapvoice/internal/testsupport"
	"zapvoice/internal/zaps"
)

type silentSpeech struct{}

func (silentSpeech) Synthesize(context.Context, tts.SpeechRequest) (tts.Audio, error) {
	return tts.Audio{}, nil
}

func (silentSpeech) Models(context.Context) ([]tts.Model, error) {
	return []tts.Model{{Name: "robot"}}, nil
}

type recordingNotifier struct {
	events chan notifications.Event
}

func (n *recordingNotifier) Publish(_ context.Context, event notifications.Event, _ notifications.Payload) error {
	n.events <- event
	return nil
}

type stubInvoices struct{}

func (stubInvoices) InvoiceSettled(_ context.Context, hash string) (bool, error) {
	return hash == "paid", nil
}

func newDaemon(t *testing.T, notifier notifications.Service, extra ...daemon.Option) *daemon.Daemon {
	t.Helper()
	return newDaemonWithRelay(t, testsupport.NewMemoryRelay(), notifier, extra...)
}

func newDaemonWithRelay(t *testing.T, mem *testsupport.MemoryRelay, notifier notifications.Service, extra ...daemon.Option) *daemon.Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	opts := append([]daemon.Option{
		daemon.WithRelayOptions(relay.WithDialer(testsupport.MemoryDialer(map[string]*testsupport.MemoryRelay{
			cfg.Nostr.Relays[0]: mem,
		}))),
		daemon.WithSpeech(silentSpeech{}),
		daemon.WithNotifier(notifier),
	}, extra...)
	d, err := daemon.New(cfg, nil, opts...)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return listener
}

func TestDaemonServesUntilCancelled(t *testing.T) {
	notifier := &recordingNotifier{events: make(chan notifications.Event, 4)}
	d := newDaemon(t, notifier)
	listener := listen(t)
	addr := listener.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.RunListener(ctx, listener) }()

	select {
	case event := <-notifier.events:
		if event != notifications.EventServerStarted {
			t.Fatalf("event = %q, want server_started", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server_started was never published")
	}

	resp, err := http.Get("http://" + addr + "/api/models")
	if err != nil {
		t.Fatalf("GET models: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "[{\"name\":\"robot\",\"label\":\"Robot\"}]\n" {
		t.Fatalf("models = %d %s", resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunListener: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	d := newDaemon(t, nil)
	other := flock.New(d.LockPath())
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-lock: %v %v", locked, err)
	}
	defer other.Unlock()

	err = d.RunListener(context.Background(), listen(t))
	if !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("err = %v, want ErrAlreadyRunning", err)
	}
}

func TestDaemonExpiresOrphanedPledges(t *testing.T) {
	d := newDaemon(t, nil)
	pledge := testsupport.NewPledge(t, d.Ledger(), "orphan", testsupport.HexID("streamer"), 50)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.RunListener(ctx, listen(t)); err != nil {
		t.Fatalf("RunListener: %v", err)
	}

	got, err := d.Ledger().GetPledge(context.Background(), pledge.ID)
	if err != nil {
		t.Fatalf("GetPledge: %v", err)
	}
	if got.Status != ledger.PledgeExpired {
		t.Fatalf("status = %q, want expired", got.Status)
	}
}

func TestDaemonServesPledgesThroughConfiguredGateways(t *testing.T) {
	wallet := http.NewServeMux()
	var walletURL string
	wallet.HandleFunc("/.well-known/lnurlp/alice", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(lnurl.PayParams{
			Callback:    walletURL + "/callback",
			MinSendable: 1000,
			MaxSendable: 100_000_000,
			Tag:         "payRequest",
		})
	})
	wallet.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"pr": "lnbc210n1daemon", "verify": walletURL + "/verify"})
	})
	wallet.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "OK", "settled": false})
	})
	walletServer := httptest.NewServer(wallet)
	defer walletServer.Close()
	walletURL = walletServer.URL

	streamer := testsupport.HexID("streamer")
	mem := testsupport.NewMemoryRelay(testsupport.ProfileEvent(streamer, "Streamer", "alice@"+strings.TrimPrefix(walletURL, "http://")))
	d := newDaemonWithRelay(t, mem, nil,
		daemon.WithLNURLOptions(lnurl.WithHTTPClient(walletServer.Client()), lnurl.WithDiscoveryScheme("http")),
		daemon.WithInvoiceChecker(stubInvoices{}),
	)
	listener := listen(t)
	base := "http://" + listener.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.RunListener(ctx, listener) }()
	defer func() {
		cancel()
		<-done
	}()

	resp, err := http.Get(base + "/api/check_invoice?payment_hash=paid")
	if err != nil {
		t.Fatalf("GET check_invoice: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if strings.TrimSpace(string(body)) != `{"status":true}` {
		t.Fatalf("check_invoice = %d %s", resp.StatusCode, body)
	}

	payload := `{"npub":"` + zaps.EncodeNpub(streamer) + `","amount":21,"name":"bob","text":"hi"}`
	resp, err = http.Post(base+"/api/create_invoice", "application/json", strings.NewReader(payload))
	if err != nil {
		t.Fatalf("POST create_invoice: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create_invoice status = %d", resp.StatusCode)
	}
	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		if data, ok := strings.CutPrefix(strings.TrimSpace(line), "data: "); ok {
			if !strings.Contains(data, "lnbc210n1daemon") {
				t.Fatalf("first frame = %s", data)
			}
			break
		}
	}

	pledges, err := d.Ledger().ListPledges(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListPledges: %v", err)
	}
	if len(pledges) != 1 || pledges[0].Status != ledger.PledgeCreated || pledges[0].PaymentRequest != "lnbc210n1daemon" {
		t.Fatalf("pledges = %+v", pledges)
	}
}
