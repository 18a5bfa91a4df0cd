package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"zapvoice/internal/services/tts"
	"zapvoice/internal/textutil"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the voice models offered by the speech backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.speech(tts.WithRetryMaxAttempts(1))
			if err != nil {
				return err
			}
			models, err := client.Models(cmd.Context())
			if err != nil {
				return err
			}

			type modelView struct {
				Name    string `json:"name"`
				Label   string `json:"label"`
				Allowed bool   `json:"allowed"`
			}
			views := make([]modelView, 0, len(models))
			for _, model := range models {
				views = append(views, modelView{
					Name:    model.Name,
					Label:   textutil.DisplayName(model.Name),
					Allowed: len(cfg.Pledge.Models) == 0 || slices.Contains(cfg.Pledge.Models, model.Name),
				})
			}
			if jsonOut {
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(views) == 0 {
				fmt.Fprintln(out, "Speech backend offers no models")
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, view := range views {
				rows = append(rows, []string{view.Name, view.Label, yesNo(view.Allowed)})
			}
			fmt.Fprintln(out, renderTable([]string{"Model", "Label", "Allowed"}, rows, nil))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

func newCheckInvoiceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check-invoice <payment-hash>",
		Short: "Report whether an invoice has been paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.invoices()
			if err != nil {
				return err
			}
			settled, err := client.InvoiceSettled(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if settled {
				fmt.Fprintln(out, colorStatus("settled", shouldColorize(out)))
			} else {
				fmt.Fprintln(out, "unpaid")
			}
			return nil
		},
	}
}
