package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/optimizer"
	"github.com/pario-ai/pricer/pkg/views"
)

func newOptimizeCmd(configPath *string) *cobra.Command {
	var (
		rf       requestFlags
		oreq     optimizer.Request
		strategy string
		client   bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Select the best configured model for a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if len(a.cfg.Models) == 0 {
				return fmt.Errorf("no models configured")
			}
			infos := make([]models.ModelInfo, 0, len(a.cfg.Models))
			for _, m := range a.cfg.Models {
				m.Thermal = rf.thermalFor(m)
				infos = append(infos, m)
			}
			oreq.Strategy = optimizer.Strategy(strategy)

			d, err := a.svc.Optimize(ctx, infos, rf.request(), oreq)
			if err != nil {
				printStages(d.Stages)
				return err
			}

			switch {
			case client:
				return writeJSON(os.Stdout, views.ToClientSelection(d))
			case asJSON:
				return writeJSON(os.Stdout, d)
			}
			return printDecision(d)
		},
	}
	rf.bind(cmd.Flags())
	cmd.Flags().StringSliceVar(&oreq.RequiredCapabilities, "capability", nil, "required capability (repeatable)")
	cmd.Flags().BoolVar(&oreq.AllowEstimated, "allow-estimated", false, "consider models with estimated costs")
	cmd.Flags().Float64Var(&oreq.MinQualityScore, "min-quality", 0, "minimum quality score")
	cmd.Flags().Float64Var(&oreq.MaxPricePerRequest, "budget", 0, "maximum price per request in USD (0 = none)")
	cmd.Flags().Int64Var(&oreq.ExpectedMonthlyVolume, "monthly-volume", 0, "expected monthly request volume")
	cmd.Flags().StringVar(&strategy, "strategy", string(optimizer.StrategyMinimize), "ranking strategy: minimize, balance or ignore")
	cmd.Flags().BoolVar(&client, "client", false, "print the customer-facing selection as JSON")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full decision as JSON")
	return cmd
}

func printStages(stages []optimizer.StageResult) {
	if len(stages) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tBEFORE\tAFTER")
	for _, s := range stages {
		fmt.Fprintf(w, "%s\t%d\t%d\n", s.Stage, s.Before, s.After)
	}
	_ = w.Flush()
}

func printDecision(d optimizer.Decision) error {
	fmt.Printf("Selected: %s (%s)\n%s\n\n", d.Selected.ModelID, d.Strategy, d.Rationale)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tMODEL\tPROVIDER\tQUALITY\tPRICE\tMARGIN\tESTIMATED")
	for i, c := range d.Ranked {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%s\t%s\t%v\n",
			i+1, c.ModelID, c.ProviderID, c.QualityScore,
			views.FormatUSD(c.Price.TotalPrice),
			views.FormatUSD(c.Price.AdminCostInfo.MarginAmount),
			c.Estimated)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, cw := range d.ClientWarnings {
		fmt.Printf("client warning [%s] %s: %s\n", cw.Code, cw.ModelID, cw.Message)
	}
	for _, aw := range d.AdminWarnings {
		fmt.Printf("admin warning [%s] %s: %s\n", aw.Code, aw.ModelID, aw.Message)
	}
	return nil
}
