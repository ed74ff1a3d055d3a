// cmd/campaign-client/commands.go
package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"campaign-client/internal/app"
	"campaign-client/internal/campaign/archive"
	"campaign-client/internal/campaign/gateway"
	"campaign-client/internal/campaign/selection"
	"campaign-client/internal/common/database"
	"campaign-client/pkg/registry"
)

var runInput app.RunInput

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one campaign end to end",
	Long: `Run one campaign end to end.

The prompt is required. Features are selected by key, audience segments by
label (all segments when none are given) and the resolution by catalog id.

Example:
  campaign-client run --prompt "Sell eco cars" --document brief.pdf \
    --feature range --audience "young professionals" --resolution 2 --email`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		stopMetrics := serveMetrics(cfg.Observability.MetricsAddr, log)
		defer stopMetrics()

		out := cmd.OutOrStdout()
		notifier := gateway.NotifierFunc(func(msg string) { fmt.Fprintln(out, msg) })

		a, err := app.Build(cmd.Context(), cfg, log, notifier)
		if err != nil {
			return err
		}
		defer a.Close()

		_, err = a.Run(cmd.Context(), runInput, out)
		return err
	},
}

var resolutionsCmd = &cobra.Command{
	Use:   "resolutions",
	Short: "List the image resolution catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		cat, err := registry.LoadCatalog(cfg.Resolutions.CatalogPath)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tWIDTH\tHEIGHT")
		for _, r := range selection.NewExclusive(cat.Resolutions).Display() {
			fmt.Fprintf(w, "%d\t%d\t%d\n", r.ID, r.Width, r.Height)
		}
		return w.Flush()
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Archive.Postgres.Enabled {
			return fmt.Errorf("archive.postgres is not enabled")
		}
		pg, err := database.NewPostgres(cmd.Context(), cfg.Archive.Postgres)
		if err != nil {
			return err
		}
		defer pg.Close()

		campaigns, err := archive.NewPostgresArchive(pg.DB, log).Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCOMPLETED\tTARGETS\tPROMPT")
		for _, c := range campaigns {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", c.ID, c.CompletedAt.Local().Format(time.RFC3339), c.Targets, c.Prompt)
		}
		return w.Flush()
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVarP(&runInput.Prompt, "prompt", "p", "", "campaign prompt (required)")
	f.StringVar(&runInput.Document, "document", "", "specification document to extract features from")
	f.StringArrayVar(&runInput.Features, "feature", nil, "feature key to include (repeatable)")
	f.StringArrayVar(&runInput.Audiences, "audience", nil, "audience segment to target (repeatable)")
	f.IntVar(&runInput.Resolution, "resolution", -1, "resolution catalog id (default: smallest)")
	f.StringVar(&runInput.Logo, "logo", "", "logo image to overlay on accepted images")
	f.BoolVar(&runInput.LogoRejected, "logo-rejected", false, "also overlay the logo on rejected images")
	f.BoolVar(&runInput.Email, "email", false, "generate and send an email per segment")
	runCmd.MarkFlagRequired("prompt")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of campaigns to list")

	rootCmd.AddCommand(runCmd, resolutionsCmd, historyCmd)
}
