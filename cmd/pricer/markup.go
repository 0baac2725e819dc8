package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/views"
)

func newMarkupCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "markup",
		Short: "Manage markup defaults and overrides",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show markup defaults and overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return printMarkup(a.markup.Snapshot())
		},
	}

	var (
		modelID, providerID, by, reason string
		percent                         float64
		expires                         time.Duration
	)
	setCmd := &cobra.Command{
		Use:   "set",
		Short: "Set a model or provider markup override",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (modelID == "") == (providerID == "") {
				return fmt.Errorf("exactly one of --model or --provider is required")
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if modelID != "" {
				var exp *time.Time
				if expires > 0 {
					t := time.Now().UTC().Add(expires)
					exp = &t
				}
				if _, err := a.markup.SetModelOverride(modelID, percent, by, reason, exp); err != nil {
					return err
				}
			} else if _, err := a.markup.SetProviderOverride(providerID, percent, by, reason); err != nil {
				return err
			}
			if err := a.saveMarkup(ctx); err != nil {
				return err
			}
			a.logger.Info("markup override set", "model", modelID, "provider", providerID, "percent", percent, "by", by)
			return printMarkup(a.markup.Snapshot())
		},
	}
	setCmd.Flags().StringVar(&modelID, "model", "", "model ID")
	setCmd.Flags().StringVar(&providerID, "provider", "", "provider ID")
	setCmd.Flags().Float64Var(&percent, "percent", 0, "markup percent")
	setCmd.Flags().StringVar(&by, "by", os.Getenv("USER"), "operator recorded on the override")
	setCmd.Flags().StringVar(&reason, "reason", "", "why the override exists")
	setCmd.Flags().DurationVar(&expires, "expires-in", 0, "model override lifetime (0 = never expires)")
	_ = setCmd.MarkFlagRequired("percent")

	var defaults models.MarkupDefaults
	defaultsCmd := &cobra.Command{
		Use:   "defaults",
		Short: "Set the default external and self-hosted markups",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			d := a.markup.Snapshot().Defaults
			if cmd.Flags().Changed("external") {
				d.ExternalPercent = defaults.ExternalPercent
			}
			if cmd.Flags().Changed("self-hosted") {
				d.SelfHostedPercent = defaults.SelfHostedPercent
			}
			if err := a.markup.SetDefaults(d); err != nil {
				return err
			}
			if err := a.saveMarkup(ctx); err != nil {
				return err
			}
			return printMarkup(a.markup.Snapshot())
		},
	}
	defaultsCmd.Flags().Float64Var(&defaults.ExternalPercent, "external", 0, "default markup for external providers")
	defaultsCmd.Flags().Float64Var(&defaults.SelfHostedPercent, "self-hosted", 0, "default markup for self-hosted models")

	var clearModel, clearProvider string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove a model or provider markup override",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (clearModel == "") == (clearProvider == "") {
				return fmt.Errorf("exactly one of --model or --provider is required")
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			var existed bool
			if clearModel != "" {
				existed = a.markup.ClearModelOverride(clearModel)
			} else {
				existed = a.markup.ClearProviderOverride(clearProvider)
			}
			if !existed {
				fmt.Println("No such override.")
				return nil
			}
			return a.saveMarkup(ctx)
		},
	}
	clearCmd.Flags().StringVar(&clearModel, "model", "", "model ID")
	clearCmd.Flags().StringVar(&clearProvider, "provider", "", "provider ID")

	cmd.AddCommand(showCmd, setCmd, defaultsCmd, clearCmd)
	return cmd
}

func printMarkup(cfg models.MarkupConfig) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCOPE\tKEY\tPERCENT\tSET BY\tEXPIRES\tREASON")
	fmt.Fprintf(w, "default\texternal\t%s\t-\t-\t-\n", views.FormatPercent(cfg.Defaults.ExternalPercent))
	fmt.Fprintf(w, "default\tself_hosted\t%s\t-\t-\t-\n", views.FormatPercent(cfg.Defaults.SelfHostedPercent))

	for _, id := range sortedKeys(cfg.ProviderOverrides) {
		o := cfg.ProviderOverrides[id]
		fmt.Fprintf(w, "provider\t%s\t%s\t%s\t-\t%s\n", id, views.FormatPercent(o.Percent), o.SetBy, o.Reason)
	}
	now := time.Now().UTC()
	for _, id := range sortedKeys(cfg.ModelOverrides) {
		o := cfg.ModelOverrides[id]
		exp := "never"
		if o.ExpiresAt != nil {
			exp = o.ExpiresAt.Format("2006-01-02T15:04:05")
			if !o.Active(now) {
				exp += " (expired)"
			}
		}
		fmt.Fprintf(w, "model\t%s\t%s\t%s\t%s\t%s\n", id, views.FormatPercent(o.Percent), o.SetBy, exp, o.Reason)
	}
	return w.Flush()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
