package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"zapvoice/internal/ledger"
	"zapvoice/internal/textutil"
	"zapvoice/internal/zaps"
)

const (
	defaultListLimit = 20
	messagePreview   = 40
)

func newPledgesCommand(ctx *commandContext) *cobra.Command {
	pledgesCmd := &cobra.Command{
		Use:   "pledges",
		Short: "Inspect recorded pledges",
	}
	pledgesCmd.AddCommand(newPledgesListCommand(ctx))
	pledgesCmd.AddCommand(newPledgesShowCommand(ctx))
	return pledgesCmd
}

func newPledgesListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pledges, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filters := make([]ledger.PledgeStatus, 0, len(statuses))
			for _, raw := range statuses {
				status, err := parsePledgeStatus(raw)
				if err != nil {
					return err
				}
				filters = append(filters, status)
			}
			return ctx.withLedger(func(store *ledger.Store) error {
				pledges, err := store.ListPledges(cmd.Context(), limit, filters...)
				if err != nil {
					return err
				}
				if jsonOut {
					if pledges == nil {
						pledges = []*ledger.Pledge{}
					}
					return writeJSON(cmd, pledges)
				}
				out := cmd.OutOrStdout()
				if len(pledges) == 0 {
					fmt.Fprintln(out, "No pledges recorded")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(pledges))
				var settledSats int64
				for _, p := range pledges {
					if p.Status == ledger.PledgeSettled {
						settledSats += p.AmountSats
					}
					rows = append(rows, []string{
						p.ID,
						colorStatus(string(p.Status), colorize),
						strconv.FormatInt(p.AmountSats, 10),
						shortKey(p.Recipient),
						displayOrDash(p.SubmitterName),
						formatTime(p.CreatedAt),
					})
				}
				fmt.Fprintln(out, listTable{
					headers: []string{"ID", "Status", "Sats", "Recipient", "Name", "Created"},
					rows:    rows,
					aligns:  []columnAlignment{alignLeft, alignLeft, alignRight},
					footer:  []string{"", "settled", strconv.FormatInt(settledSats, 10)},
				}.render())
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show pledges in these states (created, settled, cancelled, expired)")
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultListLimit, "Maximum rows (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newPledgesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one pledge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(store *ledger.Store) error {
				pledge, err := store.GetPledge(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if pledge == nil {
					return fmt.Errorf("pledge %s not found", args[0])
				}
				return writeJSON(cmd, pledge)
			})
		},
	}
}

func newAlertsCommand(ctx *commandContext) *cobra.Command {
	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect processed zap alerts",
	}

	var recipient string
	var limit int
	var jsonOut bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List processed alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			var pubkey string
			if strings.TrimSpace(recipient) != "" {
				decoded, err := zaps.DecodePubkey(recipient)
				if err != nil {
					return fmt.Errorf("invalid --recipient: %w", err)
				}
				pubkey = decoded
			}
			return ctx.withLedger(func(store *ledger.Store) error {
				alerts, err := store.ListAlerts(cmd.Context(), pubkey, limit)
				if err != nil {
					return err
				}
				if jsonOut {
					if alerts == nil {
						alerts = []ledger.Alert{}
					}
					return writeJSON(cmd, alerts)
				}
				out := cmd.OutOrStdout()
				if len(alerts) == 0 {
					fmt.Fprintln(out, "No alerts recorded")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(alerts))
				for _, a := range alerts {
					rows = append(rows, []string{
						formatTime(a.ProcessedAt),
						colorStatus(string(a.Outcome), colorize),
						strconv.FormatInt(a.AmountSats, 10),
						displayOrDash(a.SubmitterName),
						displayOrDash(textutil.Truncate(a.MessageText, messagePreview)),
						displayOrDash(a.VoiceModel),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Processed", "Outcome", "Sats", "Name", "Message", "Voice"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	listCmd.Flags().StringVar(&recipient, "recipient", "", "Only show alerts for this npub")
	listCmd.Flags().IntVarP(&limit, "limit", "n", defaultListLimit, "Maximum rows (0 for all)")
	listCmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")

	alertsCmd.AddCommand(listCmd)
	return alertsCmd
}

func parsePledgeStatus(raw string) (ledger.PledgeStatus, error) {
	status := ledger.PledgeStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case ledger.PledgeCreated, ledger.PledgeSettled, ledger.PledgeCancelled, ledger.PledgeExpired:
		return status, nil
	default:
		return "", fmt.Errorf("unknown pledge status %q", raw)
	}
}

func shortKey(pubkey string) string {
	npub := zaps.EncodeNpub(pubkey)
	if len(npub) <= 16 {
		return npub
	}
	return npub[:10] + "…" + npub[len(npub)-6:]
}

func displayOrDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
