package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"zapvoice/internal/config"
	"zapvoice/internal/ledger"
	"zapvoice/internal/logging"
	"zapvoice/internal/player"
	"zapvoice/internal/services/alby"
	"zapvoice/internal/services/lnurl"
	"zapvoice/internal/services/relay"
	"zapvoice/internal/services/tts"
)

type commandContext struct {
	configFlag string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	// Test seams for the network-facing gateways.
	relayOpts  []relay.Option
	lnurlOpts  []lnurl.Option
	playerOpts []player.Option
}

func newCommandContext() *commandContext {
	return &commandContext{}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// logger builds a config-driven logger for commands that run engines. One-shot
// commands stay quiet and report through their output instead.
func (c *commandContext) logger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func (c *commandContext) openLedger() (*ledger.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return store, nil
}

func (c *commandContext) withLedger(fn func(*ledger.Store) error) error {
	store, err := c.openLedger()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func (c *commandContext) gateway(logger *slog.Logger) (*relay.Gateway, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	opts := append([]relay.Option{
		relay.WithQueryTimeout(cfg.QueryTimeout()),
		relay.WithLogger(logger),
	}, c.relayOpts...)
	return relay.New(cfg.Nostr.Relays, opts...), nil
}

func (c *commandContext) speech(opts ...tts.Option) (*tts.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return tts.NewClient(tts.Config{
		BaseURL:        cfg.TTS.BaseURL,
		Format:         cfg.TTS.Format,
		TimeoutSeconds: cfg.TTS.TimeoutSeconds,
	}, opts...), nil
}

func (c *commandContext) invoices() (*alby.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return alby.NewConfiguredClient(cfg), nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
