package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/whaletrack/internal/domain"
	"github.com/sawpanic/whaletrack/internal/persistence"
	"github.com/sawpanic/whaletrack/internal/schedule"
	"github.com/sawpanic/whaletrack/internal/telemetry/metrics"
)

const trendHistoryLimit = 3

// Result is one asset's computed signal set, handed to the alert engine
// after persistence.
type Result struct {
	Asset        string
	Signals      domain.Signals
	Counts       domain.StateCounts
	Percentages  domain.Percentages
	WalletCount  int
	MissingCount int
}

// AlertEvaluator receives the cycle's per-asset results once they are
// persisted. The map holds only assets whose computation succeeded.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, signalTs time.Time, results map[string]Result)
}

// Runner drives signal computation on 5-minute boundaries.
type Runner struct {
	store    Store
	alerts   AlertEvaluator
	metrics  *metrics.Registry
	assets   []string
	interval time.Duration
}

// NewRunner wires the signal loop. alerts and reg may be nil.
func NewRunner(store Store, alerts AlertEvaluator, reg *metrics.Registry, assets []string, interval time.Duration) *Runner {
	return &Runner{
		store:    store,
		alerts:   alerts,
		metrics:  reg,
		assets:   assets,
		interval: interval,
	}
}

// Run executes the loop until the context is cancelled. Cycles never
// overlap; an overrunning cycle delays the next boundary.
func (r *Runner) Run(ctx context.Context) error {
	log.Info().
		Dur("signal_interval", r.interval).
		Strs("assets", r.assets).
		Msg("starting signal loop")

	for {
		if err := schedule.Wait(ctx, time.Now(), r.interval); err != nil {
			log.Info().Msg("signal loop shutting down")
			return nil
		}
		r.runCycle(ctx)
	}
}

// RunOnce executes a single signal cycle for the current boundary.
func (r *Runner) RunOnce(ctx context.Context) error {
	return r.cycleOnce(ctx, schedule.Floor(time.Now(), r.interval))
}

func (r *Runner) runCycle(ctx context.Context) {
	signalTs := schedule.Floor(time.Now(), r.interval)
	if err := r.cycleOnce(ctx, signalTs); err != nil {
		log.Error().Err(err).Time("signal_ts", signalTs).Msg("signal cycle failed")
	}
}

// cycleOnce checks the signal lock, computes and persists every asset,
// and hands the successful results to the alert engine. A single asset
// failing does not abort the others.
func (r *Runner) cycleOnce(ctx context.Context, signalTs time.Time) error {
	cycleID := uuid.NewString()
	logger := log.With().Str("cycle_id", cycleID).Time("signal_ts", signalTs).Logger()
	start := time.Now()

	ok, err := CheckSignalLock(ctx, r.store)
	if err != nil {
		r.countCycle("error")
		return fmt.Errorf("failed to check ingest health: %w", err)
	}
	if !ok {
		r.countCycle("locked")
		logger.Warn().Msg("signal cycle skipped")
		return nil
	}

	results := make(map[string]Result, len(r.assets))
	failed := 0
	for _, asset := range r.assets {
		res, err := r.computeAsset(ctx, signalTs, asset)
		if err != nil {
			failed++
			logger.Error().Err(err).Str("asset", asset).Msg("asset signal computation failed")
			continue
		}
		results[asset] = res
	}

	if r.alerts != nil && len(results) > 0 {
		r.alerts.Evaluate(ctx, signalTs, results)
	}

	switch {
	case failed == len(r.assets):
		r.countCycle("failed")
	case failed > 0:
		r.countCycle("partial")
	default:
		r.countCycle("success")
	}

	logger.Info().
		Int("assets_computed", len(results)).
		Int("assets_failed", failed).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("signal cycle complete")

	if failed == len(r.assets) {
		return fmt.Errorf("all %d assets failed", failed)
	}
	return nil
}

func (r *Runner) computeAsset(ctx context.Context, signalTs time.Time, asset string) (Result, error) {
	start := time.Now()

	agg, err := Aggregate(ctx, r.store, signalTs, asset)
	if err != nil {
		return Result{}, fmt.Errorf("window aggregation: %w", err)
	}

	epsilons, err := WalletEpsilons(ctx, r.store, asset, agg.Deltas, signalTs)
	if err != nil {
		return Result{}, fmt.Errorf("epsilon computation: %w", err)
	}

	classifications := domain.ClassifyAll(agg.Deltas, epsilons)
	counts := domain.CountStates(classifications)

	history, err := r.store.RecentAlignmentScores(ctx, asset, trendHistoryLimit)
	if err != nil {
		return Result{}, fmt.Errorf("alignment history: %w", err)
	}

	sig := domain.ComputeSignals(counts, classifications, history)
	pcts := domain.StatePercentages(counts)
	computationMS := time.Since(start).Milliseconds()

	row := persistence.SignalRow{
		SignalTs:         signalTs,
		Asset:            asset,
		AlignmentScore:   sig.AlignmentScore,
		AlignmentTrend:   sig.AlignmentTrend.String(),
		DispersionIndex:  sig.DispersionIndex,
		ExitClusterScore: sig.ExitClusterScore,
		AllowedPlaybook:  sig.AllowedPlaybook.String(),
		RiskMode:         sig.RiskMode.String(),
		AddExposure:      sig.AddExposure,
		TightenStops:     sig.TightenStops,
		WalletCount:      agg.WalletCount,
		MissingCount:     agg.MissingCount,
		ComputationMS:    computationMS,
	}
	if err := r.store.UpsertSignal(ctx, row); err != nil {
		return Result{}, fmt.Errorf("persist signal: %w", err)
	}

	if counts.Total > 0 {
		contrib := persistence.ContributorsRow{
			SignalTs:      signalTs,
			Asset:         asset,
			PctAddLong:    pcts.AddLong,
			PctAddShort:   pcts.AddShort,
			PctReducers:   pcts.Reducers,
			PctFlat:       pcts.Flat,
			CountAddLong:  counts.AdderLong,
			CountAddShort: counts.AdderShort,
			CountReducers: counts.Reducer,
			CountFlat:     counts.Flat,
			TotalWallets:  counts.Total,
		}
		if err := r.store.UpsertContributors(ctx, contrib); err != nil {
			return Result{}, fmt.Errorf("persist contributors: %w", err)
		}
	}

	if r.metrics != nil {
		r.metrics.SignalDuration.WithLabelValues(asset).Observe(time.Since(start).Seconds())
	}

	log.Info().
		Str("asset", asset).
		Float64("alignment_score", sig.AlignmentScore).
		Str("trend", sig.AlignmentTrend.String()).
		Float64("dispersion_index", sig.DispersionIndex).
		Float64("exit_cluster_score", sig.ExitClusterScore).
		Str("playbook", sig.AllowedPlaybook.String()).
		Str("risk_mode", sig.RiskMode.String()).
		Int("wallets", agg.WalletCount).
		Int64("computation_ms", computationMS).
		Msg("signal computed")
	return Result{
		Asset:        asset,
		Signals:      sig,
		Counts:       counts,
		Percentages:  pcts,
		WalletCount:  agg.WalletCount,
		MissingCount: agg.MissingCount,
	}, nil
}

func (r *Runner) countCycle(result string) {
	if r.metrics != nil {
		r.metrics.SignalCycles.WithLabelValues(result).Inc()
	}
}
