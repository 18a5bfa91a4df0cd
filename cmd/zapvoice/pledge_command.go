package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"zapvoice/internal/logging"
	"zapvoice/internal/notifications"
	"zapvoice/internal/payment"
	"zapvoice/internal/services"
	"zapvoice/internal/services/lnurl"
)

func newPledgeCommand(ctx *commandContext) *cobra.Command {
	var req payment.PledgeRequest
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "pledge",
		Short: "Request a zap invoice and wait for it to be paid",
		Long: "Build an anonymous zap request for --to, fetch a Lightning invoice from\n" +
			"the recipient's LNURL-pay endpoint, print it, and wait until it settles\n" +
			"or the settlement timeout passes.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openLedger()
			if err != nil {
				return err
			}
			defer store.Close()
			gateway, err := ctx.gateway(logging.NewNop())
			if err != nil {
				return err
			}
			defer gateway.Close()

			controller := payment.NewController(payment.SettingsFromConfig(cfg), gateway, lnurl.NewClient(ctx.lnurlOpts...),
				payment.WithLedger(store),
				payment.WithNotifier(notifications.NewService(cfg)),
			)

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			flow, err := controller.SubmitPledge(signalCtx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				if err := writeJSON(cmd, map[string]any{"pledgeId": flow.ID, "invoice": flow.Invoice}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "Pledge %s\n", flow.ID)
				fmt.Fprintf(out, "Invoice: %s\n", flow.Invoice.PaymentRequest)
				fmt.Fprintln(out, "Waiting for payment (Ctrl-C to abandon)...")
			}

			settled, err := flow.Wait()
			status := "settled"
			switch {
			case settled:
			case errors.Is(err, services.ErrSettlementTimeout):
				status = "expired"
			case err != nil:
				return err
			}
			if jsonOut {
				return writeJSON(cmd, map[string]string{"status": status})
			}
			fmt.Fprintf(out, "Pledge %s %s\n", flow.ID, colorStatus(status, shouldColorize(out)))
			if status == "expired" {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&req.RecipientID, "to", "", "Recipient npub or hex public key")
	cmd.Flags().Int64Var(&req.AmountSats, "amount", 0, "Amount in sats")
	cmd.Flags().StringVar(&req.SubmitterName, "name", "", "Name to announce")
	cmd.Flags().StringVar(&req.MessageText, "text", "", "Message to narrate")
	cmd.Flags().StringVar(&req.VoiceModel, "model", "", "Voice model for the narration")
	cmd.Flags().StringVar(&req.GoalEventID, "goal", "", "Zap goal to credit (note, nevent, or hex id)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
