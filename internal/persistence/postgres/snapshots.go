package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/whaletrack/internal/persistence"
)

// CommitIngestCycle writes one ingestion cycle as a single transaction:
// all snapshot rows, the run row, and the appended health row. Readers
// never observe a run without its rows. Re-running the same snapshot_ts
// replaces the cycle in place.
func (s *Store) CommitIngestCycle(ctx context.Context, snapshots []persistence.Snapshot, run persistence.IngestRun, health persistence.IngestHealth) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		snapshotQuery := `
			INSERT INTO wallet_snapshots
				(snapshot_ts, wallet_id, asset, position_szi,
				 entry_px, liq_px, leverage, margin_used, is_dirty)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (snapshot_ts, wallet_id, asset) DO UPDATE SET
				position_szi = EXCLUDED.position_szi,
				entry_px = EXCLUDED.entry_px,
				liq_px = EXCLUDED.liq_px,
				leverage = EXCLUDED.leverage,
				margin_used = EXCLUDED.margin_used,
				is_dirty = EXCLUDED.is_dirty`

		for _, snap := range snapshots {
			if _, err := tx.ExecContext(ctx, snapshotQuery,
				snap.SnapshotTs, snap.WalletID, snap.Asset, snap.PositionSzi,
				snap.EntryPx, snap.LiqPx, snap.Leverage, snap.MarginUsed, snap.IsDirty); err != nil {
				return fmt.Errorf("failed to upsert snapshot for %s/%s: %w", snap.WalletID, snap.Asset, err)
			}
		}

		if err := upsertIngestRun(ctx, tx, run); err != nil {
			return err
		}
		return appendIngestHealth(ctx, tx, health)
	})
}

// RecordFailedIngest persists only the run and health rows, for cycles
// that failed before any snapshot was written.
func (s *Store) RecordFailedIngest(ctx context.Context, run persistence.IngestRun, health persistence.IngestHealth) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := upsertIngestRun(ctx, tx, run); err != nil {
			return err
		}
		return appendIngestHealth(ctx, tx, health)
	})
}

func upsertIngestRun(ctx context.Context, tx *sqlx.Tx, run persistence.IngestRun) error {
	query := `
		INSERT INTO ingest_runs
			(snapshot_ts, status, wallets_expected, wallets_succeeded, wallets_failed,
			 rows_expected, rows_written, coverage_pct, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (snapshot_ts) DO UPDATE SET
			status = EXCLUDED.status,
			wallets_expected = EXCLUDED.wallets_expected,
			wallets_succeeded = EXCLUDED.wallets_succeeded,
			wallets_failed = EXCLUDED.wallets_failed,
			rows_expected = EXCLUDED.rows_expected,
			rows_written = EXCLUDED.rows_written,
			coverage_pct = EXCLUDED.coverage_pct,
			duration_ms = EXCLUDED.duration_ms,
			error = EXCLUDED.error`

	if _, err := tx.ExecContext(ctx, query,
		run.SnapshotTs, run.Status, run.WalletsExpected, run.WalletsSucceeded,
		run.WalletsFailed, run.RowsExpected, run.RowsWritten, run.CoveragePct,
		run.DurationMS, run.Error); err != nil {
		return fmt.Errorf("failed to upsert ingest run: %w", err)
	}
	return nil
}

func appendIngestHealth(ctx context.Context, tx *sqlx.Tx, health persistence.IngestHealth) error {
	query := `
		INSERT INTO ingest_health
			(health_ts, last_success_snapshot_ts, snapshot_status,
			 coverage_pct, health_state, error)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (health_ts) DO UPDATE SET
			last_success_snapshot_ts = EXCLUDED.last_success_snapshot_ts,
			snapshot_status = EXCLUDED.snapshot_status,
			coverage_pct = EXCLUDED.coverage_pct,
			health_state = EXCLUDED.health_state,
			error = EXCLUDED.error`

	if _, err := tx.ExecContext(ctx, query,
		health.HealthTs, health.LastSuccessSnapshotTs, health.SnapshotStatus,
		health.CoveragePct, health.HealthState, health.Error); err != nil {
		return fmt.Errorf("failed to append ingest health: %w", err)
	}
	return nil
}

// LastSuccessfulSnapshotTs returns the timestamp of the most recent
// successful ingest run, or nil when none exists.
func (s *Store) LastSuccessfulSnapshotTs(ctx context.Context) (*time.Time, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT snapshot_ts
		FROM ingest_runs
		WHERE status = 'success'
		ORDER BY snapshot_ts DESC
		LIMIT 1`

	var ts time.Time
	err := s.db.GetContext(ctx, &ts, query)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query last successful snapshot: %w", err)
	}
	return &ts, nil
}

// LatestHealth returns the most recent health row, or nil when the
// pipeline has never reported.
func (s *Store) LatestHealth(ctx context.Context) (*persistence.IngestHealth, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT health_ts, last_success_snapshot_ts, snapshot_status,
		       coverage_pct, health_state, error
		FROM ingest_health
		ORDER BY health_ts DESC
		LIMIT 1`

	var health persistence.IngestHealth
	err := s.db.GetContext(ctx, &health, query)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest health: %w", err)
	}
	return &health, nil
}

// WindowSnapshots returns non-dirty snapshots for an asset within
// (from, to], newest first per wallet.
func (s *Store) WindowSnapshots(ctx context.Context, asset string, from, to time.Time) ([]persistence.Snapshot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT snapshot_ts, wallet_id, asset, position_szi,
		       entry_px, liq_px, leverage, margin_used, is_dirty
		FROM wallet_snapshots
		WHERE asset = $1
		  AND snapshot_ts > $2
		  AND snapshot_ts <= $3
		  AND is_dirty = FALSE
		ORDER BY wallet_id, snapshot_ts DESC`

	var snaps []persistence.Snapshot
	if err := s.db.SelectContext(ctx, &snaps, query, asset, from, to); err != nil {
		return nil, fmt.Errorf("failed to query snapshot window: %w", err)
	}
	return snaps, nil
}

// MedianAbsSizes computes, per wallet, the median absolute position
// size for an asset since the cutoff. Used for the epsilon noise floor.
func (s *Store) MedianAbsSizes(ctx context.Context, asset string, since time.Time) (map[string]float64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT wallet_id,
		       percentile_cont(0.5) WITHIN GROUP (ORDER BY ABS(position_szi)) AS median_abs
		FROM wallet_snapshots
		WHERE asset = $1
		  AND snapshot_ts > $2
		  AND is_dirty = FALSE
		GROUP BY wallet_id`

	rows, err := s.db.QueryxContext(ctx, query, asset, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query median sizes: %w", err)
	}
	defer rows.Close()

	medians := make(map[string]float64)
	for rows.Next() {
		var wallet string
		var median float64
		if err := rows.Scan(&wallet, &median); err != nil {
			return nil, fmt.Errorf("failed to scan median size row: %w", err)
		}
		medians[wallet] = median
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating median size rows: %w", err)
	}
	return medians, nil
}
