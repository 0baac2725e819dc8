package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/pricer/pkg/views"
)

func newQuoteCmd(configPath *string) *cobra.Command {
	var (
		rf     requestFlags
		client bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "quote <model-id>",
		Short: "Price a request against one model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			info, _ := a.modelInfo(args[0])
			q, err := a.svc.Quote(ctx, args[0], rf.request(), rf.thermalFor(info))
			if err != nil {
				return err
			}

			if client {
				return writeJSON(os.Stdout, views.ToClientView(q.ViewInput()))
			}
			av := views.ToAdminView(q.ViewInput())
			if asJSON {
				return writeJSON(os.Stdout, av)
			}
			return printAdminView(av)
		},
	}
	rf.bind(cmd.Flags())
	cmd.Flags().BoolVar(&client, "client", false, "print the customer-facing view as JSON")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the admin view as JSON")
	return cmd
}

func printAdminView(v views.AdminView) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "MODEL\t%s (%s)\n", v.ModelID, v.ProviderID)
	fmt.Fprintf(w, "RATES\tin %s / out %s per 1K\n", views.FormatUSD(v.Cost.InputPer1K), views.FormatUSD(v.Cost.OutputPer1K))
	fmt.Fprintf(w, "MARKUP\t%s (%s)\n", views.FormatPercent(v.Markup.Percent), v.Markup.Source)
	fmt.Fprintln(w, "\t")
	fmt.Fprintln(w, "COMPONENT\tCOST\tPRICE")
	fmt.Fprintf(w, "standard\t%s\t%s\n", views.FormatUSD(v.Cost.Components.Standard), views.FormatUSD(v.Price.StandardPrice))
	fmt.Fprintf(w, "caching discount\t%s\t%s\n", views.FormatUSD(-v.Cost.Components.CachingDiscount), views.FormatUSD(-v.Price.CachingDiscount))
	fmt.Fprintf(w, "batch discount\t%s\t%s\n", views.FormatUSD(-v.Cost.Components.BatchDiscount), views.FormatUSD(-v.Price.BatchDiscount))
	fmt.Fprintf(w, "thermal overhead\t%s\t%s\n", views.FormatUSD(v.Cost.Components.ThermalOverhead), views.FormatUSD(v.Price.ThermalOverhead))
	fmt.Fprintf(w, "tool calls\t%s\t%s\n", views.FormatUSD(v.Cost.Components.ToolCalls), views.FormatUSD(v.Price.ToolCallsPrice))
	fmt.Fprintf(w, "total\t%s\t%s\n", views.FormatUSD(v.Cost.Total), views.FormatUSD(v.Price.TotalPrice))
	fmt.Fprintf(w, "margin\t%s\t%s\n", views.FormatUSD(v.Margin.Amount), views.FormatPercent(v.Margin.Percent))
	fmt.Fprintln(w, "\t")
	if est := v.Estimation; est != nil {
		fmt.Fprintf(w, "ESTIMATED\t%s, confidence %.2f, %d source(s)\n", est.Reason, est.Confidence, len(est.SourceModels))
	}
	if v.Stale {
		fmt.Fprintf(w, "STALE\tsync was due %s\n", v.Provenance.NextSyncDueAt.Format("2006-01-02T15:04:05"))
	}
	for _, act := range v.Actions {
		fmt.Fprintf(w, "ACTION\t%s: %s\n", act.Name, act.Description)
	}
	return w.Flush()
}
