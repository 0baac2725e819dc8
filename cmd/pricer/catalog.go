package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/pricer/pkg/catalog"
	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/views"
)

func newCatalogCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and update model cost records",
	}
	cmd.AddCommand(
		newCatalogImportCmd(configPath),
		newCatalogShowCmd(configPath),
		newCatalogEstimateCmd(configPath),
		newCatalogRejectedCmd(configPath),
		newCatalogResyncCmd(configPath),
	)
	return cmd
}

// importFile is the YAML layout accepted by catalog import.
type importFile struct {
	Records []models.ModelCostRecord `yaml:"records"`
}

func newCatalogImportCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert cost records from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read records: %w", err)
			}
			var f importFile
			if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &f); err != nil {
				return fmt.Errorf("parse records: %w", err)
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res := a.svc.Sync(ctx, f.Records)
			fmt.Printf("accepted: %d, unchanged: %d, rejected: %d\n", res.Accepted, res.Unchanged, len(res.Rejected))
			for _, err := range res.Rejected {
				fmt.Printf("  %v\n", err)
			}
			return nil
		},
	}
}

func newCatalogShowCmd(configPath *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show [model-id]",
		Short: "List cost records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var recs []models.ModelCostRecord
			if len(args) == 1 {
				rec, err := a.catalog.Get(args[0])
				if err != nil {
					return err
				}
				recs = append(recs, rec)
			} else {
				recs = a.catalog.List()
			}
			if asJSON {
				return writeJSON(os.Stdout, recs)
			}
			if len(recs) == 0 {
				fmt.Println("No cost records.")
				return nil
			}

			now := time.Now().UTC()
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tPROVIDER\tTYPE\tIN/1K\tOUT/1K\tSOURCE\tESTIMATED\tSTALE")
			for _, r := range recs {
				est := "-"
				if r.Estimation != nil {
					est = fmt.Sprintf("%s (%.2f)", r.Estimation.Reason, r.Estimation.Confidence)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%v\n",
					r.ModelID, r.ProviderID, r.CostType,
					views.FormatUSD(r.BaseCosts.InputPer1K), views.FormatUSD(r.BaseCosts.OutputPer1K),
					r.Provenance.Source, est, r.IsStale(now))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func newCatalogEstimateCmd(configPath *string) *cobra.Command {
	var (
		target  models.ModelCostRecord
		reason  string
		similar []string
	)

	cmd := &cobra.Command{
		Use:   "estimate <model-id>",
		Short: "Estimate a model's cost from similar verified models",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sims, err := parseSimilar(similar)
			if err != nil {
				return err
			}
			target.ModelID = args[0]
			if target.CostType == "" {
				target.CostType = models.CostPerToken
			}

			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if prev, err := a.catalog.Get(target.ModelID); err == nil && target.ProviderID == "" {
				target.ProviderID = prev.ProviderID
				target.SelfHosted = prev.SelfHosted
			}
			rec, outcome, err := a.catalog.EstimateFromSimilar(ctx, target, models.EstimationReason(reason), sims)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", rec.ModelID, outcome)
			if est := rec.Estimation; est != nil {
				fmt.Printf("  confidence %.4f from %d source(s); in %s / out %s per 1K\n",
					est.Confidence, len(est.SourceModels),
					views.FormatUSD(rec.BaseCosts.InputPer1K), views.FormatUSD(rec.BaseCosts.OutputPer1K))
			}
			if open, ok := a.alerts.Open(rec.ModelID); ok {
				fmt.Printf("  alert %s (%s, %s)\n", open.ID, open.Severity, open.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target.ProviderID, "provider", "", "provider ID")
	cmd.Flags().BoolVar(&target.SelfHosted, "self-hosted", false, "model is self-hosted")
	cmd.Flags().StringVar((*string)(&target.CostType), "cost-type", string(models.CostPerToken), "upstream billing unit")
	cmd.Flags().StringVar(&reason, "reason", string(models.ReasonNewModel), "estimation reason")
	cmd.Flags().StringSliceVar(&similar, "similar", nil, "similar model as id=similarity (repeatable)")
	return cmd
}

func parseSimilar(in []string) ([]catalog.SimilarModel, error) {
	out := make([]catalog.SimilarModel, 0, len(in))
	for _, s := range in {
		id, score, ok := strings.Cut(s, "=")
		if !ok || id == "" {
			return nil, fmt.Errorf("invalid --similar %q: want id=similarity", s)
		}
		v, err := strconv.ParseFloat(score, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid similarity in %q: %w", s, err)
		}
		out = append(out, catalog.SimilarModel{ModelID: id, Similarity: v})
	}
	return out, nil
}

func newCatalogRejectedCmd(configPath *string) *cobra.Command {
	var (
		since time.Duration
		limit int
	)

	cmd := &cobra.Command{
		Use:   "rejected",
		Short: "List rejected cost updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			rejs, err := a.store.Rejections(ctx, time.Now().UTC().Add(-since), limit)
			if err != nil {
				return err
			}
			if len(rejs) == 0 {
				fmt.Println("No rejected updates.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tMODEL\tPROVIDER\tFIELD\tREASON")
			for _, r := range rejs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.RejectedAt.Format("2006-01-02T15:04:05"), r.ModelID, r.ProviderID, r.Field, r.Reason)
			}
			return w.Flush()
		},
	}
	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "how far back to look")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows")
	return cmd
}

func newCatalogResyncCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resync <model-id>",
		Short: "Mark a model's cost as due for resync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.svc.ForceResync(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s marked due for resync\n", args[0])
			return nil
		},
	}
}
