package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/typemate/typemate/internal/app"
	"github.com/typemate/typemate/internal/config"
	"github.com/typemate/typemate/internal/core/memory"
	"github.com/typemate/typemate/internal/observability"
	"github.com/typemate/typemate/internal/store/postgres"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "memoryctl",
		Short:        "Operate the TypeMate vector memory",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", app.DefaultConfigPath, "Config file path")

	var (
		limit int
		loop  bool
		pause time.Duration
	)
	backfillCmd := &cobra.Command{
		Use:   "backfill",
		Short: "Embed memories that were saved without a vector",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app.App) error {
				return runBackfill(ctx, a.Vector, limit, loop, pause)
			})
		},
	}
	backfillCmd.Flags().IntVar(&limit, "limit", 0, "Rows per batch (default from config, capped by memory.backfill_max_batch)")
	backfillCmd.Flags().BoolVar(&loop, "loop", false, "Repeat batches until nothing is pending or a batch makes no progress")
	backfillCmd.Flags().DurationVar(&pause, "pause", 2*time.Second, "Pause between batches with --loop")

	var userID string
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show vectorization coverage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app.App) error {
				counts, err := a.Vector.Stats(ctx, userID)
				if err != nil {
					return err
				}
				scope := "all users"
				if userID != "" {
					scope = "user " + userID
				}
				fmt.Printf("Memories (%s)\n", scope)
				fmt.Printf("  total:      %d\n", counts.Total)
				fmt.Printf("  vectorized: %d\n", counts.Vectorized)
				fmt.Printf("  pending:    %d\n", counts.Pending)
				fmt.Printf("  coverage:   %.1f%%\n", counts.Coverage()*100)
				return nil
			})
		},
	}
	statusCmd.Flags().StringVar(&userID, "user", "", "Restrict to one user")

	var (
		query     string
		threshold float64
		asJSON    bool
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Run a similarity search for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), configPath, func(ctx context.Context, a *app.App) error {
				opts := memory.SearchOptions{Limit: limit}
				if cmd.Flags().Changed("threshold") {
					opts.Threshold = &threshold
				}
				results := a.Vector.SearchSimilar(ctx, userID, query, opts)
				if asJSON {
					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(results)
				}
				if len(results) == 0 {
					fmt.Println("No memories above the threshold.")
					return nil
				}
				for _, r := range results {
					fmt.Printf("%.3f  %s  [%s] %s\n", r.Similarity, r.CreatedAt.Format("2006-01-02"), r.Role,
						strings.ReplaceAll(r.Content, "\n", " "))
				}
				return nil
			})
		},
	}
	searchCmd.Flags().StringVar(&userID, "user", "", "User id")
	searchCmd.Flags().StringVar(&query, "query", "", "Search text")
	searchCmd.Flags().IntVar(&limit, "limit", 0, "Maximum results (1-50)")
	searchCmd.Flags().Float64Var(&threshold, "threshold", 0, "Minimum similarity (default from config)")
	searchCmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	_ = searchCmd.MarkFlagRequired("user")
	_ = searchCmd.MarkFlagRequired("query")

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema to a Postgres database (postgres driver only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return runMigrate(cmd.Context(), cfg)
		},
	}

	rootCmd.AddCommand(backfillCmd, statusCmd, searchCmd, migrateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func withApp(ctx context.Context, configPath string, fn func(context.Context, *app.App) error) error {
	cfg, err := app.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	return fn(ctx, a)
}

func runBackfill(ctx context.Context, v *memory.Vector, limit int, loop bool, pause time.Duration) error {
	var total memory.BackfillResult
	for batch := 1; ; batch++ {
		res, err := v.Backfill(ctx, limit)
		total.Processed += res.Processed
		total.Succeeded += res.Succeeded
		total.Failed += res.Failed
		fmt.Printf("batch %d: processed=%d succeeded=%d failed=%d\n", batch, res.Processed, res.Succeeded, res.Failed)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Println("interrupted")
				break
			}
			return err
		}
		// Stop when the queue is drained or a batch made no progress, so rows
		// that keep failing do not spin the loop.
		if !loop || res.Processed == 0 || res.Succeeded == 0 {
			break
		}

		select {
		case <-ctx.Done():
			fmt.Println("interrupted")
			return nil
		case <-time.After(pause):
		}
	}

	fmt.Printf("total: processed=%d succeeded=%d failed=%d\n", total.Processed, total.Succeeded, total.Failed)
	counts, err := v.Stats(ctx, "")
	if err == nil {
		fmt.Printf("pending: %d\n", counts.Pending)
	}
	return nil
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	if cfg.Store.Driver != "postgres" {
		return fmt.Errorf("migrate requires store.driver = \"postgres\" (got %q); apply internal/store/postgres/schema.sql through the Supabase SQL editor instead", cfg.Store.Driver)
	}
	logger, err := observability.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	if err := postgres.Migrate(ctx, cfg.Store.DatabaseURL, cfg.Store.Dimensions); err != nil {
		return err
	}
	logger.Info("schema applied", zap.Int("dimensions", cfg.Store.Dimensions))
	return nil
}
