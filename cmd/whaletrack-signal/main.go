// Command whaletrack-signal runs the decision-plane loop: 5-minute
// signal computation and alert evaluation.
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

	"github.com/sawpanic/whaletrack/internal/alerts"
	"github.com/sawpanic/whaletrack/internal/config"
	"github.com/sawpanic/whaletrack/internal/infrastructure/db"
	"github.com/sawpanic/whaletrack/internal/interfaces/ops"
	"github.com/sawpanic/whaletrack/internal/persistence/postgres"
	"github.com/sawpanic/whaletrack/internal/signals"
	"github.com/sawpanic/whaletrack/internal/telemetry/metrics"
)

var errInterrupted = errors.New("interrupted")

func main() {
	setupLogging()

	var (
		configPath string
		once       bool
	)

	rootCmd := &cobra.Command{
		Use:   "whaletrack-signal",
		Short: "Whale behavioral signal engine",
		Long:  "Computes per-asset behavioral signals from whale position snapshots and evaluates alerts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, once)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	rootCmd.Flags().BoolVar(&once, "once", false, "Run a single signal cycle and exit")

	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errInterrupted) {
			os.Exit(130)
		}
		log.Error().Err(err).Msg("signal engine failed")
		os.Exit(1)
	}
}

func run(configPath string, once bool) error {
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

	engine := alerts.NewEngine(store, reg)
	runner := signals.NewRunner(store, engine, reg, cfg.Assets, cfg.SignalInterval)

	if once {
		return runner.RunOnce(ctx)
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
