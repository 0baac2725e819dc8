package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/pricer/pkg/alerts"
	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/views"
)

func newAlertsCmd(configPath *string) *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Review estimated-cost alerts",
	}
	cmd.PersistentFlags().StringVar(&by, "by", os.Getenv("USER"), "operator recorded on the alert")

	var filter alerts.Filter
	var status string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			filter.Status = models.AlertStatus(status)
			list := a.alerts.List(filter)
			if len(list) == 0 {
				fmt.Println("No alerts.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tMODEL\tSEVERITY\tSTATUS\tREASON\tCONFIDENCE\tAFFECTED PRICE")
			for _, al := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.4f\t%s\n",
					al.ID, al.CreatedAt.Format("2006-01-02T15:04:05"), al.ModelID,
					al.Severity, al.Status, al.Reason, al.Confidence, views.FormatUSD(al.AffectedPrice))
			}
			return w.Flush()
		},
	}
	listCmd.Flags().StringVar(&filter.ModelID, "model", "", "filter by model ID")
	listCmd.Flags().StringVar(&status, "status", "", "filter by status (pending, acknowledged, adjusted, resolved)")

	ackCmd := &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge a pending alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			al, err := a.alerts.Acknowledge(ctx, args[0], by)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s by %s\n", al.ID, al.Status, al.AcknowledgedBy)
			return nil
		},
	}

	var cost models.BaseCosts
	adjustCmd := &cobra.Command{
		Use:   "adjust <alert-id>",
		Short: "Replace an acknowledged estimate with an operator-supplied cost",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			al, err := a.svc.AdjustEstimate(ctx, args[0], by, cost)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s; %s now costs in %s / out %s per 1K\n",
				al.ID, al.Status, al.ModelID,
				views.FormatUSD(cost.InputPer1K), views.FormatUSD(cost.OutputPer1K))
			return nil
		},
	}
	adjustCmd.Flags().Float64Var(&cost.InputPer1K, "input", 0, "input cost per 1K units")
	adjustCmd.Flags().Float64Var(&cost.OutputPer1K, "output", 0, "output cost per 1K units")
	_ = adjustCmd.MarkFlagRequired("input")
	_ = adjustCmd.MarkFlagRequired("output")

	resolveCmd := &cobra.Command{
		Use:   "resolve <alert-id>",
		Short: "Close an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			al, err := a.alerts.Resolve(ctx, args[0], by, alerts.SourceAdmin)
			if err != nil {
				return err
			}
			fmt.Printf("%s %s by %s\n", al.ID, al.Status, al.Resolution.By)
			return nil
		},
	}

	cmd.AddCommand(listCmd, ackCmd, adjustCmd, resolveCmd)
	return cmd
}
