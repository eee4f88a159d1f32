// Package ingest implements the wallet-universe refresher and the
// minute-boundary snapshot ingester, plus the loop that drives them.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/whaletrack/internal/exchange"
	"github.com/sawpanic/whaletrack/internal/persistence"
)

// minUniverseFraction is the guardrail: a refresh that yields fewer
// than this fraction of the requested cohort is recorded as failed and
// leaves the existing universe untouched.
const minUniverseFraction = 0.9

// LeaderboardFetcher is the slice of the exchange client the refresher
// needs.
type LeaderboardFetcher interface {
	FetchLeaderboard(ctx context.Context) ([]exchange.LeaderboardRow, string, error)
}

// UniverseStore is the persistence surface for universe refreshes.
type UniverseStore interface {
	CurrentUniverse(ctx context.Context) ([]persistence.UniverseMember, error)
	ReplaceUniverse(ctx context.Context, run persistence.UniverseRun, members []persistence.UniverseMember) (int64, error)
	RecordUniverseRun(ctx context.Context, run persistence.UniverseRun) error
}

// UniverseRefresher rebuilds the tracked cohort as the top-N wallets by
// 30-day PnL.
type UniverseRefresher struct {
	client LeaderboardFetcher
	store  UniverseStore
	size   int
}

// NewUniverseRefresher creates a refresher for a cohort of size wallets.
func NewUniverseRefresher(client LeaderboardFetcher, store UniverseStore, size int) *UniverseRefresher {
	return &UniverseRefresher{client: client, store: store, size: size}
}

// Refresh performs one refresh run and returns the recorded run row.
// Failures are recorded and returned as the run's status; the error
// return is reserved for persistence problems.
func (r *UniverseRefresher) Refresh(ctx context.Context) (persistence.UniverseRun, error) {
	start := time.Now().UTC()
	run := persistence.UniverseRun{
		AsOfTs:     start,
		Status:     persistence.StatusFailed,
		Source:     "unknown",
		NRequested: r.size,
	}

	rows, source, err := r.client.FetchLeaderboard(ctx)
	if err != nil {
		msg := fmt.Sprintf("leaderboard fetch failed: %v", err)
		run.Error = &msg
		run.DurationMS = time.Since(start).Milliseconds()
		log.Error().Err(err).Msg("universe refresh failed, keeping existing universe")
		if perr := r.store.RecordUniverseRun(ctx, run); perr != nil {
			return run, perr
		}
		return run, nil
	}
	run.Source = source

	wallets := exchange.ParseLeaderboard(rows)
	if len(wallets) > r.size {
		wallets = wallets[:r.size]
	}
	run.NReceived = len(wallets)

	minRequired := int(float64(r.size) * minUniverseFraction)
	if len(wallets) < minRequired {
		msg := fmt.Sprintf("insufficient valid wallets: %d < %d, keeping existing universe",
			len(wallets), minRequired)
		run.Error = &msg
		run.DurationMS = time.Since(start).Milliseconds()
		log.Error().Int("received", len(wallets)).Int("required", minRequired).
			Msg("universe refresh below guardrail, keeping existing universe")
		if perr := r.store.RecordUniverseRun(ctx, run); perr != nil {
			return run, perr
		}
		return run, nil
	}

	previous, err := r.store.CurrentUniverse(ctx)
	if err != nil {
		return run, fmt.Errorf("failed to load previous universe: %w", err)
	}
	run.EnteredCount, run.ExitedCount = universeDiff(previous, wallets)

	members := make([]persistence.UniverseMember, len(wallets))
	for i, w := range wallets {
		members[i] = persistence.UniverseMember{
			WalletID:     w.Address,
			Rank:         i + 1,
			MonthPnL:     w.MonthPnL,
			MonthROI:     w.MonthROI,
			AccountValue: w.AccountValue,
			AsOfTs:       start,
		}
	}

	run.Status = persistence.StatusSuccess
	run.DurationMS = time.Since(start).Milliseconds()

	runID, err := r.store.ReplaceUniverse(ctx, run, members)
	if err != nil {
		run.Status = persistence.StatusFailed
		return run, fmt.Errorf("failed to persist universe: %w", err)
	}
	run.RunID = runID

	log.Info().
		Int64("run_id", runID).
		Str("source", source).
		Int("wallets", len(members)).
		Int("entered", run.EnteredCount).
		Int("exited", run.ExitedCount).
		Int64("duration_ms", run.DurationMS).
		Msg("universe refresh complete")

	return run, nil
}

// universeDiff counts wallets entering and exiting the cohort.
func universeDiff(previous []persistence.UniverseMember, next []exchange.Wallet) (entered, exited int) {
	prevSet := make(map[string]struct{}, len(previous))
	for _, m := range previous {
		prevSet[m.WalletID] = struct{}{}
	}
	nextSet := make(map[string]struct{}, len(next))
	for _, w := range next {
		nextSet[w.Address] = struct{}{}
	}

	for id := range nextSet {
		if _, ok := prevSet[id]; !ok {
			entered++
		}
	}
	for id := range prevSet {
		if _, ok := nextSet[id]; !ok {
			exited++
		}
	}
	return entered, exited
}
