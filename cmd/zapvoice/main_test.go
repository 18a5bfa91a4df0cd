package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"zapvoice/internal/config"
	"zapvoice/internal/ledger"
	"zapvoice/internal/services/relay"
	"zapvoice/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	relay      *testsupport.MemoryRelay
	configPath string
	baseDir    string
}

func setupCLITestEnv(t *testing.T, tweak func(*config.Config)) *cliTestEnv {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	if tweak != nil {
		tweak(cfg)
	}
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)
	t.Setenv("ZAPVOICE_ENV_FILE", filepath.Join(base, "missing.env"))
	return &cliTestEnv{
		cfg:        cfg,
		relay:      testsupport.NewMemoryRelay(),
		configPath: configPath,
		baseDir:    base,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	encoded, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, []byte(encoded), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// commandContext returns a context whose relay gateway is backed by the
// env's in-memory relay.
func (e *cliTestEnv) commandContext() *commandContext {
	ctx := newCommandContext()
	ctx.relayOpts = []relay.Option{relay.WithDialer(testsupport.MemoryDialer(map[string]*testsupport.MemoryRelay{
		e.cfg.Nostr.Relays[0]: e.relay,
	}))}
	return ctx
}

func (e *cliTestEnv) openLedger(t *testing.T) *ledger.Store {
	t.Helper()
	return testsupport.MustOpenLedger(t, e.cfg)
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	return runCLIWith(t, env, env.commandContext(), args...)
}

func runCLIWith(t *testing.T, env *cliTestEnv, ctx *commandContext, args ...string) (string, string, error) {
	t.Helper()
	cmd := buildRootCommand(ctx)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q\n%s", needle, haystack)
	}
}

func requireNotContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if strings.Contains(haystack, needle) {
		t.Fatalf("expected output to omit %q\n%s", needle, haystack)
	}
}
