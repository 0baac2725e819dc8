package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pario-ai/pricer/pkg/models"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "pricer",
		Short:         "Pricer: model cost catalog, markup and price optimization",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (defaults when empty)")

	root.AddCommand(
		newQuoteCmd(&configPath),
		newOptimizeCmd(&configPath),
		newCatalogCmd(&configPath),
		newAlertsCmd(&configPath),
		newMarkupCmd(&configPath),
		newServeCmd(&configPath),
		newMCPCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// requestFlags binds the shape of a request to be priced.
type requestFlags struct {
	models.PriceRequest
	thermal string
}

func (r *requestFlags) bind(fs *pflag.FlagSet) {
	fs.Int64Var(&r.InputTokens, "input", 1000, "input tokens")
	fs.Int64Var(&r.OutputTokens, "output", 1000, "output tokens")
	fs.BoolVar(&r.CanUseCaching, "caching", false, "request can use prompt caching")
	fs.Int64Var(&r.CachedTokenCount, "cached", 0, "cached input tokens")
	fs.BoolVar(&r.CanUseBatch, "batch", false, "request can run as a batch")
	fs.Int64Var(&r.ToolCalls, "tool-calls", 0, "number of tool calls")
	fs.Int64Var(&r.Images, "images", 0, "number of images")
	fs.Float64Var(&r.DurationSeconds, "seconds", 0, "billed duration in seconds")
	fs.Int64Var(&r.Searches, "searches", 0, "number of searches")
	fs.StringVar(&r.thermal, "thermal", "", "override thermal state of self-hosted models (OFF, COLD, WARM, HOT, AUTOMATIC)")
}

func (r *requestFlags) request() models.PriceRequest {
	req := r.PriceRequest
	req.RequiresTools = req.ToolCalls > 0
	return req
}

// thermalFor returns info's thermal factors with the state override applied.
func (r *requestFlags) thermalFor(info models.ModelInfo) *models.ThermalCostFactors {
	if info.Thermal == nil {
		return nil
	}
	t := *info.Thermal
	if r.thermal != "" {
		t.State = models.ThermalState(r.thermal)
	}
	return &t
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
