package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"zapvoice/internal/goal"
	"zapvoice/internal/logging"
	"zapvoice/internal/zaps"
)

const progressBarWidth = 30

func newGoalCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "goal <eventId>",
		Short: "Show funding progress for a zap goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			goalID, err := zaps.DecodeEventID(args[0])
			if err != nil {
				return fmt.Errorf("invalid goal id %q: %w", args[0], err)
			}
			gateway, err := ctx.gateway(logging.NewNop())
			if err != nil {
				return err
			}
			defer gateway.Close()

			tracker := goal.NewTracker(gateway, goalID, goal.WithInterval(cfg.QueueCheckInterval()))
			out := cmd.OutOrStdout()
			render := func(p goal.Progress) {
				if jsonOut {
					_ = writeJSON(cmd, p)
					return
				}
				fmt.Fprintln(out, formatProgress(p, shouldColorize(out)))
			}

			if !watch {
				progress, err := tracker.Compute(cmd.Context())
				if err != nil {
					return err
				}
				render(progress)
				return nil
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			first, err := tracker.Compute(signalCtx)
			if err != nil {
				return err
			}
			render(first)
			return tracker.Follow(signalCtx, render)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep printing progress as receipts arrive")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func formatProgress(p goal.Progress, colorize bool) string {
	filled := int(p.Clamped() / 100 * progressBarWidth)
	bar := strings.Repeat("#", filled) + strings.Repeat("-", progressBarWidth-filled)
	if colorize {
		color := ansiYellow
		if p.Reached() {
			color = ansiGreen
		}
		bar = color + bar + ansiReset
	}
	line := fmt.Sprintf("[%s] %.1f%%  %d / %d sats", bar, p.Percentage, p.CurrentSats, p.TargetSats)
	if desc := strings.TrimSpace(p.Description); desc != "" {
		line = desc + "\n" + line
	}
	if p.Reached() {
		line += "  (goal reached)"
	}
	return line
}
