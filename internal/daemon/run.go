package daemon

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"zapvoice/internal/config"
	"zapvoice/internal/logging"
)

// Options configures server process runtime behavior.
type Options struct {
	LogLevel string
	Bind     string
}

// Run starts the zapvoice server and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}
	if opts.Bind != "" {
		cfg.Server.Bind = opts.Bind
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	d, err := New(cfg, logger)
	if err != nil {
		logger.Error("server setup failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "server_setup_failed"),
			logging.String(logging.FieldErrorHint, "check data_dir permissions and configuration"),
		)
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("server shutdown incomplete", logging.Error(err))
		}
	}()

	if err := d.Run(signalCtx); err != nil {
		return err
	}
	logger.Info("zapvoice server shutting down")
	return nil
}
