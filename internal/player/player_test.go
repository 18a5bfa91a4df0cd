package player_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"zapvoice/internal/alerts"
	"zapvoice/internal/player"
	"zapvoice/internal/services"
	"zapvoice/internal/services/tts"
	"zapvoice/internal/testsupport"
)

func TestPlayerRunsConfiguredCommand(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedPlayer())
	cfg.Widget.NotifyAudioURL = "/static/notification.mp3"
	var out bytes.Buffer

	p, err := player.New(cfg, player.WithOutput(&out))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	if err := p.PlayNotification(ctx); err != nil {
		t.Fatalf("PlayNotification: %v", err)
	}
	if err := p.Show(ctx, alerts.Alert{Name: "alice", AmountSats: 500, Text: "hello"}); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if err := p.PlaySpeech(ctx, tts.Audio{Data: []byte("mp3"), ContentType: "audio/mpeg"}); err != nil {
		t.Fatalf("PlaySpeech: %v", err)
	}
	if err := p.Hide(ctx); err != nil || p.Showing() {
		t.Fatalf("Hide: %v showing=%v", err, p.Showing())
	}

	logged, err := os.ReadFile(filepath.Join(testsupport.BaseDir(cfg), "player.log"))
	if err != nil {
		t.Fatalf("read player log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(logged)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two player runs, got %q", lines)
	}
	if lines[0] != filepath.Join(cfg.Paths.StaticDir, "notification.mp3") {
		t.Fatalf("notification played from %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], ".mp3") || !strings.HasPrefix(lines[1], cfg.Paths.DataDir) {
		t.Fatalf("speech played from %q", lines[1])
	}
	if _, err := os.Stat(lines[1]); !os.IsNotExist(err) {
		t.Fatalf("speech scratch file not removed: %v", err)
	}
	if got := out.String(); got != "⚡ 500 sats from alice: hello\n" {
		t.Fatalf("unexpected overlay text %q", got)
	}
}

type failingExecutor struct{}

func (failingExecutor) Run(ctx context.Context, binary string, args []string) error {
	return errors.New("no audio device")
}

func TestPlayerFailureIsPlaybackError(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedPlayer())
	p, err := player.New(cfg, player.WithExecutor(failingExecutor{}), player.WithOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = p.PlaySpeech(context.Background(), tts.Audio{Data: []byte("x")})
	if !errors.Is(err, services.ErrPlayback) {
		t.Fatalf("expected playback error, got %v", err)
	}
}

func TestNewRejectsMissingPlayer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Widget.PlayerCommand = filepath.Join(t.TempDir(), "missing-player")
	if _, err := player.New(cfg); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
