package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"zapvoice/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test,
// fast widget timings, and a single placeholder relay.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.StaticDir = filepath.Join(base, "static")
	cfgVal.Server.Bind = "127.0.0.1:0"
	cfgVal.Nostr.Relays = []string{"wss://relay.invalid"}
	cfgVal.Widget.QueueCheckInterval = 100
	cfgVal.Widget.DisplayDelay = 0
	cfgVal.Widget.HideDelay = 0
	cfgVal.Logging.Format = "console"
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithStubbedPlayer writes a stub player executable that records its
// arguments to player.log in the base directory and points the widget at it.
func WithStubbedPlayer() ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		logPath := filepath.Join(b.baseDir, "player.log")
		script := []byte("#!/bin/sh\necho \"$@\" >> " + logPath + "\nexit 0\n")
		target := filepath.Join(binDir, "player")
		if err := os.WriteFile(target, script, 0o755); err != nil {
			b.t.Fatalf("write stub player: %v", err)
		}
		b.cfg.Widget.PlayerCommand = target
		b.cfg.Widget.PlayerArgs = nil
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
