package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/whaletrack/internal/exchange"
	"github.com/sawpanic/whaletrack/internal/persistence"
)

// Coverage thresholds for run status and health state, in percent.
const (
	coverageSuccessPct  = 95.0
	coveragePartialPct  = 5.0
	coverageDegradedPct = 80.0
)

// PositionsFetcher is the slice of the exchange client the ingester
// needs.
type PositionsFetcher interface {
	FetchMultiple(ctx context.Context, addresses []string) map[string]*exchange.ClearinghouseState
}

// SnapshotStore is the persistence surface for snapshot ingestion.
type SnapshotStore interface {
	CurrentUniverse(ctx context.Context) ([]persistence.UniverseMember, error)
	CommitIngestCycle(ctx context.Context, snapshots []persistence.Snapshot, run persistence.IngestRun, health persistence.IngestHealth) error
	RecordFailedIngest(ctx context.Context, run persistence.IngestRun, health persistence.IngestHealth) error
	LastSuccessfulSnapshotTs(ctx context.Context) (*time.Time, error)
}

// SnapshotIngester produces one minute-aligned snapshot per cycle for
// every wallet in the cohort and every tracked asset.
type SnapshotIngester struct {
	client         PositionsFetcher
	store          SnapshotStore
	assets         []string
	staleThreshold time.Duration
}

// NewSnapshotIngester creates a snapshot ingester.
func NewSnapshotIngester(client PositionsFetcher, store SnapshotStore, assets []string, staleThreshold time.Duration) *SnapshotIngester {
	return &SnapshotIngester{
		client:         client,
		store:          store,
		assets:         assets,
		staleThreshold: staleThreshold,
	}
}

// IngestOnce runs one ingestion cycle for the minute containing now.
// The returned run always carries the recorded status and the health
// row derived from it; the error return is reserved for persistence
// failures.
func (si *SnapshotIngester) IngestOnce(ctx context.Context, now time.Time) (persistence.IngestRun, persistence.IngestHealth, error) {
	start := now.UTC()
	snapshotTs := start.Truncate(time.Minute)

	run := persistence.IngestRun{
		SnapshotTs: snapshotTs,
		Status:     persistence.StatusFailed,
	}

	universe, err := si.store.CurrentUniverse(ctx)
	if err != nil {
		return run, persistence.IngestHealth{}, fmt.Errorf("failed to load universe: %w", err)
	}

	run.WalletsExpected = len(universe)
	run.RowsExpected = len(universe) * len(si.assets)

	if len(universe) == 0 {
		msg := "no wallets in universe"
		run.Error = &msg
		run.DurationMS = time.Since(start).Milliseconds()
		log.Warn().Time("snapshot_ts", snapshotTs).Msg("ingest skipped: empty universe")
		return si.recordRun(ctx, start, run, nil)
	}

	addresses := make([]string, len(universe))
	for i, m := range universe {
		addresses[i] = m.WalletID
	}

	results := si.client.FetchMultiple(ctx, addresses)

	succeeded := 0
	for _, state := range results {
		if state != nil {
			succeeded++
		}
	}
	run.WalletsSucceeded = succeeded
	run.WalletsFailed = len(universe) - succeeded
	run.CoveragePct = float64(succeeded) / float64(len(universe)) * 100

	// Wallets whose fetch failed are skipped entirely: no partial rows.
	snapshots := make([]persistence.Snapshot, 0, succeeded*len(si.assets))
	for _, addr := range addresses {
		state := results[addr]
		if state == nil {
			continue
		}
		for _, asset := range si.assets {
			view := exchange.PositionForAsset(state, asset)
			snapshots = append(snapshots, persistence.Snapshot{
				SnapshotTs:  snapshotTs,
				WalletID:    addr,
				Asset:       asset,
				PositionSzi: view.Szi,
				EntryPx:     view.EntryPx,
				LiqPx:       view.LiqPx,
				Leverage:    view.Leverage,
				MarginUsed:  view.MarginUsed,
			})
		}
	}
	run.RowsWritten = len(snapshots)

	run.Status = StatusFromCoverage(run.CoveragePct)
	if run.Status == persistence.StatusFailed {
		msg := fmt.Sprintf("coverage too low: %.1f%%", run.CoveragePct)
		run.Error = &msg
	}
	run.DurationMS = time.Since(start).Milliseconds()

	return si.recordRun(ctx, start, run, snapshots)
}

// recordRun commits the cycle (or just its metadata for failures with
// no rows) together with the derived health row.
func (si *SnapshotIngester) recordRun(ctx context.Context, now time.Time, run persistence.IngestRun, snapshots []persistence.Snapshot) (persistence.IngestRun, persistence.IngestHealth, error) {
	health, err := si.buildHealth(ctx, now, run)
	if err != nil {
		return run, persistence.IngestHealth{}, err
	}

	if len(snapshots) == 0 {
		if err := si.store.RecordFailedIngest(ctx, run, health); err != nil {
			return run, health, fmt.Errorf("failed to record ingest run: %w", err)
		}
		return run, health, nil
	}

	if err := si.store.CommitIngestCycle(ctx, snapshots, run, health); err != nil {
		return run, health, fmt.Errorf("failed to commit ingest cycle: %w", err)
	}

	log.Info().
		Time("snapshot_ts", run.SnapshotTs).
		Str("status", run.Status).
		Float64("coverage_pct", run.CoveragePct).
		Int("rows", run.RowsWritten).
		Int64("duration_ms", run.DurationMS).
		Msg("snapshot ingested")
	return run, health, nil
}

func (si *SnapshotIngester) buildHealth(ctx context.Context, now time.Time, run persistence.IngestRun) (persistence.IngestHealth, error) {
	lastSuccess, err := si.store.LastSuccessfulSnapshotTs(ctx)
	if err != nil {
		return persistence.IngestHealth{}, err
	}
	if run.Status == persistence.StatusSuccess {
		ts := run.SnapshotTs
		lastSuccess = &ts
	}
	if lastSuccess == nil {
		// Never succeeded: anchor on the current cycle so the age
		// math stays defined; the dead-man's-switch has its own check.
		ts := run.SnapshotTs
		lastSuccess = &ts
	}

	state := HealthState(run.Status, run.CoveragePct, *lastSuccess, now, si.staleThreshold)

	return persistence.IngestHealth{
		HealthTs:              run.SnapshotTs,
		LastSuccessSnapshotTs: lastSuccess,
		SnapshotStatus:        run.Status,
		CoveragePct:           run.CoveragePct,
		HealthState:           state,
		Error:                 run.Error,
	}, nil
}

// StatusFromCoverage maps wallet fetch coverage to a run status.
func StatusFromCoverage(coveragePct float64) string {
	switch {
	case coveragePct >= coverageSuccessPct:
		return persistence.StatusSuccess
	case coveragePct >= coveragePartialPct:
		return persistence.StatusPartial
	default:
		return persistence.StatusFailed
	}
}

// HealthState derives the pipeline traffic light from the run outcome.
// Whatever the current cycle looks like, an overdue last success forces
// stale.
func HealthState(status string, coveragePct float64, lastSuccess, now time.Time, staleThreshold time.Duration) string {
	state := persistence.HealthStale
	switch {
	case status == persistence.StatusSuccess:
		state = persistence.HealthHealthy
	case status == persistence.StatusPartial && coveragePct >= coverageDegradedPct:
		state = persistence.HealthDegraded
	}

	if now.Sub(lastSuccess) > staleThreshold {
		state = persistence.HealthStale
	}
	return state
}
