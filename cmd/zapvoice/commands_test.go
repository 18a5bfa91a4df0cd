package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"zapvoice/internal/alerts"
	"zapvoice/internal/config"
	"zapvoice/internal/goal"
	"zapvoice/internal/ledger"
	"zapvoice/internal/services"
	"zapvoice/internal/services/lnurl"
	"zapvoice/internal/testsupport"
	"zapvoice/internal/zaps"
)

func TestConfigInitShowAndValidate(t *testing.T) {
	env := setupCLITestEnv(t, func(cfg *config.Config) {
		cfg.Alby.Token = "alby-secret"
	})

	out, _, err := runCLI(t, env, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, "Relays: 1")

	out, _, err = runCLI(t, env, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "wss://relay.invalid")
	requireContains(t, out, redacted)
	requireNotContains(t, out, "alby-secret")

	out, _, err = runCLI(t, env, "config", "show", "--show-secrets")
	if err != nil {
		t.Fatalf("config show --show-secrets: %v", err)
	}
	requireContains(t, out, "alby-secret")

	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	out, _, err = runCLI(t, env, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, env, "config", "init", "--path", target); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
	if _, _, err := runCLI(t, env, "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestModelsCommandMarksAllowedModels(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode([]string{"satoshi_v2", "robot"})
	}))
	defer backend.Close()
	env := setupCLITestEnv(t, func(cfg *config.Config) {
		cfg.TTS.BaseURL = backend.URL
		cfg.Pledge.Models = []string{"satoshi_v2"}
	})

	out, _, err := runCLI(t, env, "models")
	if err != nil {
		t.Fatalf("models: %v", err)
	}
	requireContains(t, out, "Satoshi V2")
	lines := strings.Split(out, "\n")
	for _, line := range lines {
		if strings.Contains(line, "robot") && !strings.Contains(line, "no") {
			t.Fatalf("robot should not be allowed: %q", line)
		}
	}

	out, _, err = runCLI(t, env, "models", "--json")
	if err != nil {
		t.Fatalf("models --json: %v", err)
	}
	var views []struct {
		Name    string `json:"name"`
		Allowed bool   `json:"allowed"`
	}
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode models json: %v\n%s", err, out)
	}
	if len(views) != 2 || !views[0].Allowed || views[1].Allowed {
		t.Fatalf("views = %+v", views)
	}
}

func TestModelsCommandReportsBackendFailure(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer backend.Close()
	env := setupCLITestEnv(t, func(cfg *config.Config) {
		cfg.TTS.BaseURL = backend.URL
	})
	_, _, err := runCLI(t, env, "models")
	if !errors.Is(err, services.ErrConnection) {
		t.Fatalf("err = %v, want connection error", err)
	}
}

func TestCheckInvoiceCommand(t *testing.T) {
	alby := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.URL.Path {
		case "/invoices/paid":
			_, _ = w.Write([]byte(`{"settled":true}`))
		case "/invoices/open":
			_, _ = w.Write([]byte(`{"state":"CREATED"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer alby.Close()
	env := setupCLITestEnv(t, func(cfg *config.Config) {
		cfg.Alby.BaseURL = alby.URL
		cfg.Alby.Token = "tok"
	})

	out, _, err := runCLI(t, env, "check-invoice", "paid")
	if err != nil {
		t.Fatalf("check-invoice paid: %v", err)
	}
	if strings.TrimSpace(out) != "settled" {
		t.Fatalf("out = %q", out)
	}
	out, _, err = runCLI(t, env, "check-invoice", "open")
	if err != nil {
		t.Fatalf("check-invoice open: %v", err)
	}
	if strings.TrimSpace(out) != "unpaid" {
		t.Fatalf("out = %q", out)
	}
	if _, _, err := runCLI(t, env, "check-invoice", "missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestPledgesAndAlertsListing(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	recipient := testsupport.HexID("streamer")
	other := testsupport.HexID("other")

	store, err := ledger.Open(env.cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	ctx := context.Background()
	testsupport.NewPledge(t, store, "p-open", recipient, 50)
	testsupport.NewPledge(t, store, "p-paid", recipient, 2100)
	if err := store.TransitionPledge(ctx, "p-paid", ledger.PledgeSettled, ""); err != nil {
		t.Fatalf("TransitionPledge: %v", err)
	}
	now := time.Now()
	for _, alert := range []ledger.Alert{
		{ReceiptID: "r1", Recipient: recipient, AmountSats: 21, SubmitterName: "bob", MessageText: "gm", Outcome: ledger.AlertNarrated, ReceiptCreatedAt: now, ProcessedAt: now},
		{ReceiptID: "r2", Recipient: other, AmountSats: 5, Outcome: ledger.AlertDropped, ReceiptCreatedAt: now, ProcessedAt: now},
	} {
		if err := store.RecordAlert(ctx, alert); err != nil {
			t.Fatalf("RecordAlert: %v", err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close ledger: %v", err)
	}

	out, _, err := runCLI(t, env, "pledges", "list")
	if err != nil {
		t.Fatalf("pledges list: %v", err)
	}
	requireContains(t, out, "p-open")
	requireContains(t, out, "p-paid")
	requireContains(t, out, "2100")

	out, _, err = runCLI(t, env, "pledges", "list", "--status", "settled", "--json")
	if err != nil {
		t.Fatalf("pledges list --status: %v", err)
	}
	var pledges []ledger.Pledge
	if err := json.Unmarshal([]byte(out), &pledges); err != nil {
		t.Fatalf("decode pledges: %v\n%s", err, out)
	}
	if len(pledges) != 1 || pledges[0].ID != "p-paid" || pledges[0].Status != ledger.PledgeSettled {
		t.Fatalf("pledges = %+v", pledges)
	}

	if _, _, err := runCLI(t, env, "pledges", "list", "--status", "bogus"); err == nil {
		t.Fatal("expected unknown status to fail")
	}

	out, _, err = runCLI(t, env, "pledges", "show", "p-open")
	if err != nil {
		t.Fatalf("pledges show: %v", err)
	}
	requireContains(t, out, `"status": "created"`)
	if _, _, err := runCLI(t, env, "pledges", "show", "nope"); err == nil {
		t.Fatal("expected missing pledge to fail")
	}

	out, _, err = runCLI(t, env, "alerts", "list", "--recipient", zaps.EncodeNpub(recipient))
	if err != nil {
		t.Fatalf("alerts list: %v", err)
	}
	requireContains(t, out, "bob")
	requireContains(t, out, "narrated")
	requireNotContains(t, out, "dropped")

	out, _, err = runCLI(t, env, "alerts", "list", "--json")
	if err != nil {
		t.Fatalf("alerts list --json: %v", err)
	}
	var alertRows []ledger.Alert
	if err := json.Unmarshal([]byte(out), &alertRows); err != nil {
		t.Fatalf("decode alerts: %v\n%s", err, out)
	}
	if len(alertRows) != 2 {
		t.Fatalf("alerts = %d, want 2", len(alertRows))
	}
}

func TestEmptyListings(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	out, _, err := runCLI(t, env, "pledges", "list")
	if err != nil {
		t.Fatalf("pledges list: %v", err)
	}
	requireContains(t, out, "No pledges recorded")

	out, _, err = runCLI(t, env, "alerts", "list", "--json")
	if err != nil {
		t.Fatalf("alerts list --json: %v", err)
	}
	if strings.TrimSpace(out) != "[]" {
		t.Fatalf("out = %q", out)
	}
}

func TestGoalCommandComputesProgress(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	goalID := testsupport.HexID("goal")
	recipient := testsupport.HexID("streamer")
	created := time.Now().Unix()
	env.relay.Add(
		testsupport.GoalEvent(goalID, 1000, "New microphone"),
		testsupport.ReceiptEvent(t, testsupport.ReceiptSpec{ID: testsupport.HexID("r1"), CreatedAt: created, Recipient: recipient, GoalEventID: goalID, AmountMsat: 600_000}),
		testsupport.ReceiptEvent(t, testsupport.ReceiptSpec{ID: testsupport.HexID("r2"), CreatedAt: created, Recipient: recipient, GoalEventID: goalID, AmountMsat: 650_000}),
	)

	out, _, err := runCLI(t, env, "goal", goalID)
	if err != nil {
		t.Fatalf("goal: %v", err)
	}
	requireContains(t, out, "New microphone")
	requireContains(t, out, "1250 / 1000 sats")
	requireContains(t, out, "125.0%")
	requireContains(t, out, "goal reached")
	requireContains(t, out, "["+strings.Repeat("#", progressBarWidth)+"]")

	out, _, err = runCLI(t, env, "goal", goalID, "--json")
	if err != nil {
		t.Fatalf("goal --json: %v", err)
	}
	var progress goal.Progress
	if err := json.Unmarshal([]byte(out), &progress); err != nil {
		t.Fatalf("decode progress: %v", err)
	}
	if progress.CurrentSats != 1250 || progress.TargetSats != 1000 || progress.Receipts != 2 {
		t.Fatalf("progress = %+v", progress)
	}

	if _, _, err := runCLI(t, env, "goal", "not-an-id"); err == nil {
		t.Fatal("expected invalid goal id to fail")
	}
	if _, _, err := runCLI(t, env, "goal", testsupport.HexID("missing")); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("missing goal err = %v", err)
	}
}

func TestFormatProgressHalfway(t *testing.T) {
	line := formatProgress(goal.Progress{CurrentSats: 50, TargetSats: 100, Percentage: 50}, false)
	want := "[" + strings.Repeat("#", 15) + strings.Repeat("-", 15) + "] 50.0%  50 / 100 sats"
	if line != want {
		t.Fatalf("line = %q, want %q", line, want)
	}
}

func TestPledgeCommandWaitsForSettlement(t *testing.T) {
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/lnurlp/alice", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(lnurl.PayParams{
			Callback:    server.URL + "/callback",
			MinSendable: 1000,
			MaxSendable: 100_000_000,
			AllowsNostr: true,
			Tag:         "payRequest",
		})
	})
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"pr": "lnbc210n1cli", "verify": server.URL + "/verify"})
	})
	mux.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "OK", "settled": true})
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	env := setupCLITestEnv(t, func(cfg *config.Config) {
		cfg.Pledge.SettlementPollInterval = 1
	})
	recipient := testsupport.HexID("streamer")
	host := strings.TrimPrefix(server.URL, "http://")
	env.relay.Add(testsupport.ProfileEvent(recipient, "Streamer", "alice@"+host))

	ctx := env.commandContext()
	ctx.lnurlOpts = []lnurl.Option{lnurl.WithHTTPClient(server.Client()), lnurl.WithDiscoveryScheme("http")}
	out, _, err := runCLIWith(t, env, ctx, "pledge",
		"--to", zaps.EncodeNpub(recipient),
		"--amount", "21",
		"--name", "bob",
		"--text", "hello stream",
	)
	if err != nil {
		t.Fatalf("pledge: %v\n%s", err, out)
	}
	requireContains(t, out, "Invoice: lnbc210n1cli")
	requireContains(t, out, "settled")

	store := env.openLedger(t)
	pledges, err := store.ListPledges(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListPledges: %v", err)
	}
	if len(pledges) != 1 || pledges[0].Status != ledger.PledgeSettled || pledges[0].SubmitterName != "bob" {
		t.Fatalf("pledges = %+v", pledges)
	}
}

func TestPledgeCommandRejectsInvalidRequest(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	_, _, err := runCLI(t, env, "pledge", "--to", zaps.EncodeNpub(testsupport.HexID("streamer")), "--amount", "1")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v, want validation error", err)
	}
}

func TestWidgetFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
		check   func(t *testing.T, s alerts.Settings)
	}{
		{
			name: "defaults keep configured voice",
			check: func(t *testing.T, s alerts.Settings) {
				if s.Speech.Voice != "cfg-voice" || s.Speech.Volume != 100 || s.MinSats != 0 || s.MaxTextLength != 200 {
					t.Fatalf("settings = %+v", s)
				}
			},
		},
		{
			name: "overrides",
			args: []string{"--voice", "robot", "--rate", "-20", "--volume", "0", "--min-sats", "100", "--max-text", "50"},
			check: func(t *testing.T, s alerts.Settings) {
				if s.Speech.Voice != "robot" || s.Speech.Rate != -20 || s.Speech.Volume != 0 {
					t.Fatalf("speech = %+v", s.Speech)
				}
				if s.MinSats != 100 || s.MaxTextLength != 50 {
					t.Fatalf("limits = %d %d", s.MinSats, s.MaxTextLength)
				}
			},
		},
		{name: "rate out of range", args: []string{"--rate", "500"}, wantErr: true},
		{name: "negative threshold", args: []string{"--min-sats", "-1"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var flags widgetFlags
			cmd := &cobra.Command{Use: "widget"}
			cmd.Flags().StringVar(&flags.voice, "voice", "", "")
			cmd.Flags().IntVar(&flags.rate, "rate", 0, "")
			cmd.Flags().IntVar(&flags.volume, "volume", 100, "")
			cmd.Flags().IntVar(&flags.pitch, "pitch", 0, "")
			cmd.Flags().Int64Var(&flags.minSats, "min-sats", 0, "")
			cmd.Flags().IntVar(&flags.maxText, "max-text", 0, "")
			if err := cmd.Flags().Parse(tt.args); err != nil {
				t.Fatalf("parse flags: %v", err)
			}
			err := flags.validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
			settings := alerts.Settings{MaxTextLength: 200}
			settings.Speech.Voice = "cfg-voice"
			settings.Speech.Volume = 100
			flags.apply(cmd, &settings)
			tt.check(t, settings)
		})
	}
}

func TestWidgetCommandRejectsBadNpub(t *testing.T) {
	env := setupCLITestEnv(t, nil)
	if _, _, err := runCLI(t, env, "widget", "npub1nope"); err == nil {
		t.Fatal("expected invalid npub to fail")
	}
}
