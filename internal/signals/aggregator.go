// Package signals computes the per-asset behavioral signal set on
// 5-minute boundaries: window aggregation, wallet classification, the
// four scalar signals, and their persistence behind the signal lock.
package signals

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/whaletrack/internal/domain"
	"github.com/sawpanic/whaletrack/internal/persistence"
)

const (
	windowSize     = 5 * time.Minute
	epsilonHistory = 24 * time.Hour
)

// Store is the persistence surface for signal computation.
type Store interface {
	WindowSnapshots(ctx context.Context, asset string, from, to time.Time) ([]persistence.Snapshot, error)
	MedianAbsSizes(ctx context.Context, asset string, since time.Time) (map[string]float64, error)
	LatestHealth(ctx context.Context) (*persistence.IngestHealth, error)
	RecentAlignmentScores(ctx context.Context, asset string, limit int) ([]float64, error)
	UpsertSignal(ctx context.Context, row persistence.SignalRow) error
	UpsertContributors(ctx context.Context, row persistence.ContributorsRow) error
}

// Aggregation is the windowed delta set for one (signal_ts, asset).
type Aggregation struct {
	Deltas       map[string]domain.WalletDelta
	WalletCount  int // wallets with a usable delta
	MissingCount int // wallets seen only in the current window
}

// Aggregate pulls the current and previous windows for an asset and
// builds per-wallet deltas. The current window is (ts−5m, ts], the
// previous (ts−10m, ts−5m]; within each window the most recent snapshot
// per wallet wins.
func Aggregate(ctx context.Context, store Store, signalTs time.Time, asset string) (Aggregation, error) {
	current, err := store.WindowSnapshots(ctx, asset, signalTs.Add(-windowSize), signalTs)
	if err != nil {
		return Aggregation{}, err
	}
	previous, err := store.WindowSnapshots(ctx, asset, signalTs.Add(-2*windowSize), signalTs.Add(-windowSize))
	if err != nil {
		return Aggregation{}, err
	}

	deltas := BuildDeltas(LatestPerWallet(current), LatestPerWallet(previous), asset)

	agg := Aggregation{Deltas: deltas}
	for _, d := range deltas {
		if d.Delta != nil {
			agg.WalletCount++
		} else {
			agg.MissingCount++
		}
	}
	return agg, nil
}

// LatestPerWallet keeps the most recent snapshot per wallet. Input must
// be ordered newest-first per wallet, which is how WindowSnapshots
// returns it.
func LatestPerWallet(snaps []persistence.Snapshot) map[string]persistence.Snapshot {
	latest := make(map[string]persistence.Snapshot, len(snaps))
	for _, s := range snaps {
		if _, ok := latest[s.WalletID]; !ok {
			latest[s.WalletID] = s
		}
	}
	return latest
}

// BuildDeltas joins the two windows per wallet. Wallets present only in
// the previous window are logged and omitted; wallets without a prior
// snapshot carry a nil previous and delta.
func BuildDeltas(current, previous map[string]persistence.Snapshot, asset string) map[string]domain.WalletDelta {
	deltas := make(map[string]domain.WalletDelta, len(current))

	for wallet := range previous {
		if _, ok := current[wallet]; !ok {
			log.Warn().Str("wallet", wallet).Str("asset", asset).
				Msg("wallet missing from current window")
		}
	}

	for wallet, cur := range current {
		d := domain.WalletDelta{SziCurrent: cur.PositionSzi}
		if prev, ok := previous[wallet]; ok {
			p := prev.PositionSzi
			delta := cur.PositionSzi - p
			d.SziPrevious = &p
			d.Delta = &delta
		}
		deltas[wallet] = d
	}
	return deltas
}

// WalletEpsilons computes the per-wallet noise floor for every wallet
// in the delta set, from 24h median absolute sizes.
func WalletEpsilons(ctx context.Context, store Store, asset string, deltas map[string]domain.WalletDelta, now time.Time) (map[string]float64, error) {
	medians, err := store.MedianAbsSizes(ctx, asset, now.Add(-epsilonHistory))
	if err != nil {
		return nil, err
	}

	epsilons := make(map[string]float64, len(deltas))
	for wallet := range deltas {
		epsilons[wallet] = domain.Epsilon(asset, medians[wallet])
	}
	return epsilons, nil
}

// CheckSignalLock reports whether computation may proceed. Missing
// health, a stale pipeline, or a failed last snapshot all lock the
// cycle: no signals, no alerts.
func CheckSignalLock(ctx context.Context, store Store) (bool, error) {
	health, err := store.LatestHealth(ctx)
	if err != nil {
		return false, err
	}

	if health == nil {
		log.Warn().Msg("signal lock engaged: no ingest health recorded")
		return false, nil
	}
	if health.HealthState == persistence.HealthStale {
		log.Warn().
			Interface("last_success", health.LastSuccessSnapshotTs).
			Msg("signal lock engaged: pipeline stale")
		return false, nil
	}
	if health.SnapshotStatus == persistence.StatusFailed {
		log.Warn().Msg("signal lock engaged: last ingestion failed")
		return false, nil
	}

	log.Info().
		Str("health_state", health.HealthState).
		Float64("coverage_pct", health.CoveragePct).
		Msg("signal lock check passed")
	return true, nil
}
