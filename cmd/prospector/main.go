// Package main implements the prospector CLI: the HTTP workflow server plus
// one-shot discovery and status commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"Prospector/internal/app"
	"Prospector/internal/config"
	"Prospector/internal/domain"
	"Prospector/internal/logging"
	"Prospector/internal/usecase"
)

var version = "dev"

var (
	addr       string
	jsonOutput bool
	search     usecase.SearchParams
	filter     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "prospector",
	Short: "Prospect local businesses and build outreach for them",
	Long: `prospector discovers local businesses lacking a good website, drafts a site
for each, reviews it and prepares outreach messages.

Configuration comes from the YAML file named by PROSPECTOR_CONFIG, then .env and
environment overrides such as GEMINI_API_KEY and DATABASE_DSN.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(statusCmd)

	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")

	discoverCmd.Flags().StringVar(&search.Category, "category", "", "business category, e.g. cafe")
	discoverCmd.Flags().StringVar(&search.Location, "location", "", "city or region to search")
	discoverCmd.Flags().Float64Var(&search.MinRating, "min-rating", 0, "minimum rating (0-5)")
	discoverCmd.Flags().Float64Var(&search.MaxRating, "max-rating", 0, "maximum rating, 0 for no limit")
	discoverCmd.Flags().IntVar(&search.MinReviews, "min-reviews", 0, "minimum review count")
	discoverCmd.Flags().BoolVar(&search.IncludeMedia, "include-media", false, "ask for photo and social links")
	discoverCmd.Flags().StringVar(&filter, "website", string(domain.FilterAny), "website filter: NONE, POOR or ANY")
	discoverCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")

	statusCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the result as JSON")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP workflow server",
	Long: `Run the HTTP workflow server with periodic sync of open pipelines.

Examples:
  prospector serve
  prospector serve --addr :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run one discovery session and print the businesses found",
	Long: `Run one discovery session against the configured generation back end.

Examples:
  prospector discover --category cafe --location Austin --website NONE
  prospector discover --category florist --location "Leeds" --min-rating 4 --json`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List cached pipelines with their stage and completeness",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func setup(ctx context.Context) (*app.Application, error) {
	cfg := config.Load()
	if addr != "" {
		cfg.Server.Addr = addr
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	return app.New(ctx, cfg, logger)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := setup(ctx)
	if err != nil {
		return err
	}
	defer application.Close()
	return application.Serve(ctx)
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := setup(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	search.WebsiteFilter = domain.WebsiteFilter(filter)
	res, err := application.Discover(ctx, search)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, res)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session %s: %d businesses\n", res.Session.ID, len(res.Businesses))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tRATING\tREVIEWS\tWEBSITE")
	for _, b := range res.Businesses {
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%d\t%s\n", b.ID, b.Name, b.Rating, b.ReviewCount, b.WebsiteStatus)
	}
	return w.Flush()
}

func runStatus(cmd *cobra.Command, _ []string) error {
	application, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer application.Close()

	rows, err := application.Status()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, rows)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BUSINESS\tNAME\tSTAGE\tCOMPLETE\tUPDATED")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%s\n", r.BusinessID, r.Name, r.Stage, r.Completeness, r.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
