package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/whaletrack/internal/persistence"
	"github.com/sawpanic/whaletrack/internal/schedule"
	"github.com/sawpanic/whaletrack/internal/telemetry/metrics"
)

// Runner drives universe refreshes and minute-boundary snapshot cycles.
// Cycles never overlap; one that overruns its minute simply delays the
// next.
type Runner struct {
	refresher *UniverseRefresher
	ingester  *SnapshotIngester
	metrics   *metrics.Registry

	refreshEvery time.Duration
	interval     time.Duration
	lastRefresh  time.Time
}

// NewRunner wires the ingestion loop. metrics may be nil.
func NewRunner(refresher *UniverseRefresher, ingester *SnapshotIngester, reg *metrics.Registry, refreshEvery, interval time.Duration) *Runner {
	return &Runner{
		refresher:    refresher,
		ingester:     ingester,
		metrics:      reg,
		refreshEvery: refreshEvery,
		interval:     interval,
	}
}

// Run executes the loop until the context is cancelled. The universe is
// refreshed once at startup and re-checked at the top of each minute.
func (r *Runner) Run(ctx context.Context) error {
	log.Info().
		Dur("snapshot_interval", r.interval).
		Dur("universe_refresh_every", r.refreshEvery).
		Msg("starting ingestion loop")

	r.refreshUniverse(ctx)

	for {
		if r.universeStale() {
			r.refreshUniverse(ctx)
		}

		if err := schedule.Wait(ctx, time.Now(), r.interval); err != nil {
			log.Info().Msg("ingestion loop shutting down")
			return nil
		}

		r.runCycle(ctx)
	}
}

// RunOnce executes a single ingestion cycle, optionally refreshing the
// universe first.
func (r *Runner) RunOnce(ctx context.Context, refreshUniverse bool) error {
	if refreshUniverse {
		r.refreshUniverse(ctx)
	}
	return r.cycleOnce(ctx)
}

func (r *Runner) universeStale() bool {
	return r.lastRefresh.IsZero() || time.Since(r.lastRefresh) >= r.refreshEvery
}

func (r *Runner) refreshUniverse(ctx context.Context) {
	run, err := r.refresher.Refresh(ctx)
	if err != nil {
		log.Error().Err(err).Msg("universe refresh persistence failed")
		return
	}
	if r.metrics != nil {
		r.metrics.UniverseRefresh.WithLabelValues(run.Status).Inc()
	}
	if run.Status == persistence.StatusSuccess {
		r.lastRefresh = time.Now().UTC()
	}
}

func (r *Runner) runCycle(ctx context.Context) {
	if err := r.cycleOnce(ctx); err != nil {
		log.Error().Err(err).Msg("snapshot ingestion cycle failed")
	}
}

func (r *Runner) cycleOnce(ctx context.Context) error {
	cycleID := uuid.NewString()
	logger := log.With().Str("cycle_id", cycleID).Logger()

	start := time.Now()
	run, health, err := r.ingester.IngestOnce(ctx, start)

	if r.metrics != nil {
		r.metrics.IngestCycles.WithLabelValues(run.Status).Inc()
		r.metrics.IngestCoverage.Set(run.CoveragePct)
		r.metrics.IngestDuration.Observe(time.Since(start).Seconds())
		if health.HealthState != "" {
			r.metrics.HealthState.Set(healthGaugeValue(health.HealthState))
		}
	}

	if err != nil {
		logger.Error().Err(err).Time("snapshot_ts", run.SnapshotTs).Msg("ingest cycle error")
		return err
	}

	logger.Debug().
		Time("snapshot_ts", run.SnapshotTs).
		Str("status", run.Status).
		Str("health_state", health.HealthState).
		Msg("ingest cycle recorded")
	return nil
}

func healthGaugeValue(state string) float64 {
	switch state {
	case persistence.HealthHealthy:
		return metrics.HealthValueHealthy
	case persistence.HealthDegraded:
		return metrics.HealthValueDegraded
	default:
		return metrics.HealthValueStale
	}
}
