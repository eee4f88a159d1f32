package postgres

import (
	"context"
	"fmt"

	"github.com/sawpanic/whaletrack/internal/persistence"
)

// UpsertSignal writes or replaces the signal row for (signal_ts, asset).
func (s *Store) UpsertSignal(ctx context.Context, row persistence.SignalRow) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO signals
			(signal_ts, asset, alignment_score, alignment_trend,
			 dispersion_index, exit_cluster_score, allowed_playbook, risk_mode,
			 add_exposure, tighten_stops, wallet_count, missing_count, computation_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (signal_ts, asset) DO UPDATE SET
			alignment_score = EXCLUDED.alignment_score,
			alignment_trend = EXCLUDED.alignment_trend,
			dispersion_index = EXCLUDED.dispersion_index,
			exit_cluster_score = EXCLUDED.exit_cluster_score,
			allowed_playbook = EXCLUDED.allowed_playbook,
			risk_mode = EXCLUDED.risk_mode,
			add_exposure = EXCLUDED.add_exposure,
			tighten_stops = EXCLUDED.tighten_stops,
			wallet_count = EXCLUDED.wallet_count,
			missing_count = EXCLUDED.missing_count,
			computation_ms = EXCLUDED.computation_ms`

	if _, err := s.db.ExecContext(ctx, query,
		row.SignalTs, row.Asset, row.AlignmentScore, row.AlignmentTrend,
		row.DispersionIndex, row.ExitClusterScore, row.AllowedPlaybook, row.RiskMode,
		row.AddExposure, row.TightenStops, row.WalletCount, row.MissingCount,
		row.ComputationMS); err != nil {
		return fmt.Errorf("failed to upsert signal for %s: %w", row.Asset, err)
	}
	return nil
}

// UpsertContributors writes or replaces the contributor breakdown for
// (signal_ts, asset).
func (s *Store) UpsertContributors(ctx context.Context, row persistence.ContributorsRow) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO signal_contributors
			(signal_ts, asset, pct_add_long, pct_add_short, pct_reducers, pct_flat,
			 count_add_long, count_add_short, count_reducers, count_flat, total_wallets)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (signal_ts, asset) DO UPDATE SET
			pct_add_long = EXCLUDED.pct_add_long,
			pct_add_short = EXCLUDED.pct_add_short,
			pct_reducers = EXCLUDED.pct_reducers,
			pct_flat = EXCLUDED.pct_flat,
			count_add_long = EXCLUDED.count_add_long,
			count_add_short = EXCLUDED.count_add_short,
			count_reducers = EXCLUDED.count_reducers,
			count_flat = EXCLUDED.count_flat,
			total_wallets = EXCLUDED.total_wallets`

	if _, err := s.db.ExecContext(ctx, query,
		row.SignalTs, row.Asset, row.PctAddLong, row.PctAddShort, row.PctReducers,
		row.PctFlat, row.CountAddLong, row.CountAddShort, row.CountReducers,
		row.CountFlat, row.TotalWallets); err != nil {
		return fmt.Errorf("failed to upsert contributors for %s: %w", row.Asset, err)
	}
	return nil
}

// RecentAlignmentScores returns the most recent persisted alignment
// scores for an asset, newest first, up to limit.
func (s *Store) RecentAlignmentScores(ctx context.Context, asset string, limit int) ([]float64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT alignment_score
		FROM signals
		WHERE asset = $1
		ORDER BY signal_ts DESC
		LIMIT $2`

	var scores []float64
	if err := s.db.SelectContext(ctx, &scores, query, asset, limit); err != nil {
		return nil, fmt.Errorf("failed to query alignment history: %w", err)
	}
	return scores, nil
}
