package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sawpanic/whaletrack/internal/persistence"
)

// AlertState returns the state row for (asset, alert type), or nil when
// none exists yet.
func (s *Store) AlertState(ctx context.Context, asset, alertType string) (*persistence.AlertState, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT asset, alert_type, is_active, last_triggered_ts, cooldown_until,
		       pending_playbook, pending_periods, signal_snapshot
		FROM alert_state
		WHERE asset = $1 AND alert_type = $2`

	var state persistence.AlertState
	err := s.db.GetContext(ctx, &state, query, asset, alertType)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query alert state: %w", err)
	}
	return &state, nil
}

// UpsertAlertState creates or replaces the state row for (asset, alert
// type).
func (s *Store) UpsertAlertState(ctx context.Context, state persistence.AlertState) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO alert_state
			(asset, alert_type, is_active, last_triggered_ts, cooldown_until,
			 pending_playbook, pending_periods, signal_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (asset, alert_type) DO UPDATE SET
			is_active = EXCLUDED.is_active,
			last_triggered_ts = EXCLUDED.last_triggered_ts,
			cooldown_until = EXCLUDED.cooldown_until,
			pending_playbook = EXCLUDED.pending_playbook,
			pending_periods = EXCLUDED.pending_periods,
			signal_snapshot = EXCLUDED.signal_snapshot,
			updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query,
		state.Asset, state.AlertType, state.IsActive, state.LastTriggeredTs,
		state.CooldownUntil, state.PendingPlaybook, state.PendingPeriods,
		state.SignalSnapshot); err != nil {
		return fmt.Errorf("failed to upsert alert state: %w", err)
	}
	return nil
}

// InsertAlert appends one alert log entry and returns its id. Alerts
// are never updated after insertion.
func (s *Store) InsertAlert(ctx context.Context, alert persistence.Alert) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO alerts
			(alert_ts, asset, alert_type, severity, message,
			 signal_snapshot, cooldown_until, suppressed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := s.db.QueryRowxContext(ctx, query,
		alert.AlertTs, alert.Asset, alert.AlertType, alert.Severity,
		alert.Message, alert.SignalSnapshot, alert.CooldownUntil,
		alert.Suppressed).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}
	return id, nil
}

// CountRecentAlerts counts non-suppressed alerts for an asset since the
// cutoff, for the rolling daily quota.
func (s *Store) CountRecentAlerts(ctx context.Context, asset string, since time.Time) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := `
		SELECT COUNT(*)
		FROM alerts
		WHERE asset = $1
		  AND alert_ts > $2
		  AND suppressed = FALSE`

	var count int
	if err := s.db.GetContext(ctx, &count, query, asset, since); err != nil {
		return 0, fmt.Errorf("failed to count recent alerts: %w", err)
	}
	return count, nil
}
