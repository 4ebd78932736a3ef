package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"revsense/internal/aggregate"
	"revsense/internal/config"
	"revsense/internal/exporter"
	"revsense/internal/infrastructure"
	"revsense/internal/pipeline"
	"revsense/internal/resultcache"
	transport "revsense/internal/transport/http"
	"revsense/internal/websocket"
)

var version = "dev"

var (
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "revsense",
	Short:   "Product review sentiment analysis",
	Long:    "revsense scores product reviews from CSV or Excel files and aggregates per-product sentiment.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}
		infrastructure.MustInitializeLogger(cfg.Logging)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("revsense", version)
	},
}

// --- analyze command ---

var (
	outputPath string
	workers    int
	minReviews int
	noCache    bool
	topN       int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file]",
	Short: "Analyze reviews in a CSV or Excel file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runner, _, err := buildRunner()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sink := pipeline.ProgressFunc(func(pct float64, message string) {
			fmt.Fprintf(os.Stderr, "\r%6.2f%%  %-40s", pct, message)
		})

		result, err := runner.Run(ctx, args[0], sink)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return err
		}

		printResult(result)

		if outputPath != "" {
			out := resolveOutputPath(outputPath, cfg.Analysis.ExportFormat)
			w := exporter.NewWriter(infrastructure.GetLogger())
			if err := w.Export(out, result.Results); err != nil {
				return fmt.Errorf("exporting results: %w", err)
			}
			fmt.Printf("\nResults written to %s\n", out)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Export results to this file (.csv, .xlsx or .json)")
	analyzeCmd.Flags().IntVar(&workers, "workers", 0, "Scoring worker count (0 = auto)")
	analyzeCmd.Flags().IntVar(&minReviews, "min-reviews", 0, "Drop products with fewer reviews")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "Skip the result cache")
	analyzeCmd.Flags().IntVar(&topN, "top", 5, "Show the N most positive and negative products")
}

func printResult(result *pipeline.RunResult) {
	if result.FromCache {
		fmt.Println("Serving cached results.")
	} else {
		fmt.Printf("Analyzed %d reviews across %d products in %s using %d workers.\n",
			result.Results.TotalReviews(), len(result.Results), result.Duration.Round(time.Millisecond), result.Workers)
	}
	fmt.Println()

	fmt.Printf("%-30s %10s %10s %10s %8s\n", "Product", "Pos (%)", "Neg (%)", "Neu (%)", "Reviews")
	for _, product := range result.Results.Products() {
		s := result.Results[product]
		if s.Error != "" {
			fmt.Printf("%-30s %s\n", product, "failed: "+s.Error)
			continue
		}
		fmt.Printf("%-30s %10.2f %10.2f %10.2f %8d\n", product, s.Pos, s.Neg, s.Neu, s.Total)
	}

	o := result.Overall
	fmt.Println()
	fmt.Printf("Overall: %.2f%% positive, %.2f%% negative, %.2f%% neutral (%.2f reviews/product)\n",
		o.WeightedPositive, o.WeightedNegative, o.WeightedNeutral, o.AvgReviews)

	if topN > 0 && len(result.Results) > 1 {
		fmt.Println("\nMost positive:")
		for _, p := range aggregate.TopPositive(result.Results, topN) {
			fmt.Printf("  %-30s %6.2f%%\n", p.Product, p.Share)
		}
		fmt.Println("Most negative:")
		for _, p := range aggregate.TopNegative(result.Results, topN) {
			fmt.Printf("  %-30s %6.2f%%\n", p.Product, p.Share)
		}
	}
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort > 0 {
			cfg.Server.Port = servePort
		}

		runner, store, err := buildRunner()
		if err != nil {
			return err
		}
		logger := infrastructure.GetLogger()

		hub := websocket.NewHub(logger)
		hub.Start()
		defer hub.Stop()

		router := transport.NewRouter(transport.RouterDeps{
			Runner:  runner,
			Hub:     hub,
			Store:   store,
			Config:  cfg,
			Logger:  logger,
			Version: version,
		})
		srv := transport.NewServer(router, cfg.Server, logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		fmt.Printf("Listening on http://localhost:%d\n", cfg.Server.Port)
		fmt.Println("Press Ctrl+C to stop")

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return <-errCh
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
}

// --- cache commands ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the result cache",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached result files",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		entries, err := store.Entries()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("Cache is empty (%s).\n", store.Dir())
			return nil
		}

		fmt.Printf("Cache entries in %s:\n\n", store.Dir())
		for _, e := range entries {
			fmt.Printf("  %-50s %8d bytes  %s\n", e.Name, e.Size, e.Modified.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all cached results",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		deleted, err := store.Clear()
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d cache entries.\n", deleted)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

// resolveOutputPath appends the configured export format as the extension
// when the requested path has none.
func resolveOutputPath(path, format string) string {
	if filepath.Ext(path) != "" {
		return path
	}
	return path + "." + format
}

// --- wiring helpers ---

func openStore() (*resultcache.Store, error) {
	return resultcache.NewStore(cfg.Cache.Dir, infrastructure.GetLogger())
}

func buildRunner() (*pipeline.Runner, *resultcache.Store, error) {
	var store *resultcache.Store
	disabled := cfg.Cache.Disabled || noCache
	if !disabled {
		var err error
		store, err = openStore()
		if err != nil {
			return nil, nil, err
		}
	}

	opts := pipeline.Options{
		Workers:       cfg.Analysis.Workers,
		MemoSize:      cfg.Analysis.MemoSize,
		SizeThreshold: cfg.Analysis.SizeThreshold,
		ChunkSize:     cfg.Analysis.ChunkSize,
		MinReviews:    cfg.Analysis.MinReviews,
		DisableCache:  disabled,
	}
	if workers > 0 {
		opts.Workers = workers
	}
	if minReviews > 0 {
		opts.MinReviews = minReviews
	}

	return pipeline.NewRunner(store, infrastructure.GetLogger(), opts), store, nil
}
