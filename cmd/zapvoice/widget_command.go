package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"zapvoice/internal/alerts"
	"zapvoice/internal/logging"
	"zapvoice/internal/notifications"
	"zapvoice/internal/player"
	"zapvoice/internal/services"
	"zapvoice/internal/zaps"
)

type widgetFlags struct {
	voice    string
	rate     int
	volume   int
	pitch    int
	minSats  int64
	maxText  int
	noRecord bool
}

func newWidgetCommand(ctx *commandContext) *cobra.Command {
	var flags widgetFlags

	cmd := &cobra.Command{
		Use:   "widget <npub>",
		Short: "Announce incoming zaps through the local audio player",
		Long: "Poll the configured relays for zap receipts addressed to <npub> and\n" +
			"announce each one: notification sound, overlay text on stdout, then\n" +
			"the synthesized message. Runs until interrupted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			recipient, err := zaps.DecodePubkey(args[0])
			if err != nil {
				return fmt.Errorf("invalid npub %q: %w", args[0], err)
			}
			if err := flags.validate(); err != nil {
				return err
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			runCtx := services.WithRecipient(signalCtx, recipient)

			presenter, err := player.New(cfg, append([]player.Option{
				player.WithOutput(cmd.OutOrStdout()),
				player.WithLogger(logger),
			}, ctx.playerOpts...)...)
			if err != nil {
				return err
			}
			gateway, err := ctx.gateway(logger)
			if err != nil {
				return err
			}
			defer gateway.Close()
			speech, err := ctx.speech()
			if err != nil {
				return err
			}

			settings := alerts.SettingsFromConfig(cfg, recipient)
			flags.apply(cmd, &settings)
			opts := []alerts.Option{
				alerts.WithNotifier(notifications.NewService(cfg)),
				alerts.WithLogger(logger),
			}
			if !flags.noRecord {
				store, err := ctx.openLedger()
				if err != nil {
					return err
				}
				defer store.Close()
				opts = append(opts, alerts.WithRecorder(store))
			}

			logger.Info("local widget started",
				logging.String("npub", zaps.EncodeNpub(recipient)),
				logging.String("voice", settings.Speech.Voice),
				logging.Int64("min_sats", settings.MinSats),
			)
			return alerts.NewEngine(settings, gateway, speech, presenter, opts...).Run(runCtx)
		},
	}

	cmd.Flags().StringVar(&flags.voice, "voice", "", "Voice model for receipts that do not name one")
	cmd.Flags().IntVar(&flags.rate, "rate", 0, "Speech rate adjustment in percent (-100..200)")
	cmd.Flags().IntVar(&flags.volume, "volume", 100, "Speech volume in percent (0..200)")
	cmd.Flags().IntVar(&flags.pitch, "pitch", 0, "Speech pitch adjustment in percent (-100..100)")
	cmd.Flags().Int64Var(&flags.minSats, "min-sats", 0, "Skip receipts below this amount")
	cmd.Flags().IntVar(&flags.maxText, "max-text", 0, "Truncate messages to this many characters (0 uses the configured limit)")
	cmd.Flags().BoolVar(&flags.noRecord, "no-record", false, "Do not record processed alerts in the ledger")
	return cmd
}

func (f widgetFlags) validate() error {
	switch {
	case f.rate < -100 || f.rate > 200:
		return errors.New("--rate must be between -100 and 200")
	case f.volume < 0 || f.volume > 200:
		return errors.New("--volume must be between 0 and 200")
	case f.pitch < -100 || f.pitch > 100:
		return errors.New("--pitch must be between -100 and 100")
	case f.minSats < 0:
		return errors.New("--min-sats must not be negative")
	case f.maxText < 0:
		return errors.New("--max-text must not be negative")
	}
	return nil
}

// apply overrides only the flags the operator actually set.
func (f widgetFlags) apply(cmd *cobra.Command, settings *alerts.Settings) {
	changed := cmd.Flags().Changed
	if f.voice != "" {
		settings.Speech.Voice = f.voice
	}
	if changed("rate") {
		settings.Speech.Rate = f.rate
	}
	if changed("volume") {
		settings.Speech.Volume = f.volume
	}
	if changed("pitch") {
		settings.Speech.Pitch = f.pitch
	}
	settings.MinSats = f.minSats
	if f.maxText > 0 {
		settings.MaxTextLength = f.maxText
	}
}
