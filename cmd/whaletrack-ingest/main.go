// Command whaletrack-ingest runs the data-plane loop: universe
// refreshes plus minute-boundary position snapshots.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/whaletrack/internal/config"
	"github.com/sawpanic/whaletrack/internal/exchange"
	"github.com/sawpanic/whaletrack/internal/infrastructure/db"
	"github.com/sawpanic/whaletrack/internal/ingest"
	"github.com/sawpanic/whaletrack/internal/interfaces/ops"
	"github.com/sawpanic/whaletrack/internal/persistence/postgres"
	"github.com/sawpanic/whaletrack/internal/telemetry/metrics"
)

var errInterrupted = errors.New("interrupted")

func main() {
	setupLogging()

	var (
		configPath      string
		once            bool
		refreshUniverse bool
	)

	rootCmd := &cobra.Command{
		Use:   "whaletrack-ingest",
		Short: "Whale position snapshot ingester",
		Long:  "Tracks the top wallets on Hyperliquid and snapshots their perp positions every minute.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, once, refreshUniverse)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.Flags().BoolVar(&once, "once", false, "Run a single ingestion cycle and exit")
	rootCmd.Flags().BoolVar(&refreshUniverse, "refresh-universe", false, "Refresh the wallet universe before ingesting (with --once)")

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errInterrupted) {
			os.Exit(130)
		}
		log.Error().Err(err).Msg("ingest failed")
		os.Exit(1)
	}
}

func run(configPath string, once, refreshUniverse bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager, err := db.NewManager(db.Config{
		DSN:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		QueryTimeout:    cfg.QueryTimeout,
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	store := postgres.NewStore(manager.DB(), manager.QueryTimeout())
	client := exchange.NewClient(exchange.Options{
		StatsURL:          cfg.StatsURL,
		APIURL:            cfg.APIURL,
		RequestTimeout:    cfg.RequestTimeout,
		MaxConcurrency:    cfg.MaxConcurrency,
		RequestsPerSecond: cfg.RequestsPerSecond,
	})

	reg := metrics.NewRegistry()
	if cfg.MetricsAddr != "" {
		srv := ops.NewServer(cfg.MetricsAddr, reg, manager)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	refresher := ingest.NewUniverseRefresher(client, store, cfg.UniverseSize)
	ingester := ingest.NewSnapshotIngester(client, store, cfg.Assets, cfg.StaleThreshold)
	runner := ingest.NewRunner(refresher, ingester, reg, cfg.UniverseRefreshEvery, cfg.SnapshotInterval)

	if once {
		return runner.RunOnce(ctx, refreshUniverse)
	}

	if err := runner.Run(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return errInterrupted
	}
	return nil
}

func setupLogging() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
