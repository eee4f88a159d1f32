package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/whaletrack/internal/persistence"
)

// CurrentUniverse returns the active cohort ordered by rank.
func (s *Store) CurrentUniverse(ctx context.Context) ([]persistence.UniverseMember, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT wallet_id, rank, month_pnl, month_roi, account_value, as_of_ts
		FROM wallet_universe_current
		ORDER BY rank`

	var members []persistence.UniverseMember
	if err := s.db.SelectContext(ctx, &members, query); err != nil {
		return nil, fmt.Errorf("failed to query current universe: %w", err)
	}
	return members, nil
}

// ReplaceUniverse atomically records a successful refresh run, inserts
// the member history rows tagged with the run id, and swaps the current
// universe table. Returns the new run id.
func (s *Store) ReplaceUniverse(ctx context.Context, run persistence.UniverseRun, members []persistence.UniverseMember) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var runID int64
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := insertUniverseRun(ctx, tx, run, &runID); err != nil {
			return err
		}

		memberQuery := `
			INSERT INTO wallet_universe_members
				(run_id, wallet_id, rank, month_pnl, month_roi, account_value)
			VALUES ($1, $2, $3, $4, $5, $6)`
		for _, m := range members {
			if _, err := tx.ExecContext(ctx, memberQuery,
				runID, m.WalletID, m.Rank, m.MonthPnL, m.MonthROI, m.AccountValue); err != nil {
				return fmt.Errorf("failed to insert universe member %s: %w", m.WalletID, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM wallet_universe_current`); err != nil {
			return fmt.Errorf("failed to clear current universe: %w", err)
		}

		currentQuery := `
			INSERT INTO wallet_universe_current
				(wallet_id, rank, month_pnl, month_roi, account_value, as_of_ts)
			VALUES ($1, $2, $3, $4, $5, $6)`
		for _, m := range members {
			if _, err := tx.ExecContext(ctx, currentQuery,
				m.WalletID, m.Rank, m.MonthPnL, m.MonthROI, m.AccountValue, run.AsOfTs); err != nil {
				return fmt.Errorf("failed to insert current universe member %s: %w", m.WalletID, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return runID, nil
}

// RecordUniverseRun persists run metadata alone, used for failed
// refreshes that must not touch the existing universe.
func (s *Store) RecordUniverseRun(ctx context.Context, run persistence.UniverseRun) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		var runID int64
		return insertUniverseRun(ctx, tx, run, &runID)
	})
}

func insertUniverseRun(ctx context.Context, tx *sqlx.Tx, run persistence.UniverseRun, runID *int64) error {
	query := `
		INSERT INTO wallet_universe_runs
			(as_of_ts, status, source, n_requested, n_received,
			 entered_count, exited_count, duration_ms, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING run_id`

	err := tx.QueryRowxContext(ctx, query,
		run.AsOfTs, run.Status, run.Source, run.NRequested, run.NReceived,
		run.EnteredCount, run.ExitedCount, run.DurationMS, run.Error).Scan(runID)
	if err != nil {
		return fmt.Errorf("failed to insert universe run: %w", err)
	}
	return nil
}
