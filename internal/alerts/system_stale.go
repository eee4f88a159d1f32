package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/whaletrack/internal/persistence"
)

// systemStaleAge is the dead-man's-switch threshold: a pipeline whose
// last successful snapshot is older than this is considered stale.
const systemStaleAge = 10 * time.Minute

// staleSnapshot is the audit payload stored with system stale alerts.
type staleSnapshot struct {
	MinutesStale  int        `json:"minutes_stale"`
	LastSuccessTs *time.Time `json:"last_success_ts"`
}

// evaluateSystemStale runs the dead-man's-switch and reports whether it
// is active after this cycle. Single-fire: the alert goes out once when
// the condition engages, and recovery clears silently with no alert.
// No cooldown and no quota apply.
func (e *Engine) evaluateSystemStale(ctx context.Context) (bool, error) {
	stale, minutesStale, lastSuccess, err := e.checkSystemStale(ctx)
	if err != nil {
		return false, err
	}

	state, err := e.store.AlertState(ctx, SystemAsset, TypeSystemStale)
	if err != nil {
		return false, err
	}
	isActive := state != nil && state.IsActive

	switch {
	case stale && !isActive:
		now := e.now()
		next := mergedState(state, SystemAsset, TypeSystemStale)
		next.IsActive = true
		next.LastTriggeredTs = &now
		if err := e.store.UpsertAlertState(ctx, next); err != nil {
			return false, err
		}

		snapshot, _ := json.Marshal(staleSnapshot{
			MinutesStale:  minutesStale,
			LastSuccessTs: lastSuccess,
		})
		msg := fmt.Sprintf(
			"[SYSTEM] Data Stale: Ingestion has not succeeded for %d minutes. All behavioral alerts suppressed. Do not trade until resolved.",
			minutesStale)
		if err := e.persistAlert(ctx, SystemAsset, TypeSystemStale, SeverityCritical, msg, snapshot, 0, false); err != nil {
			return true, err
		}
		return true, nil

	case !stale && isActive:
		next := mergedState(state, SystemAsset, TypeSystemStale)
		next.IsActive = false
		if err := e.store.UpsertAlertState(ctx, next); err != nil {
			return false, err
		}
		log.Info().Msg("pipeline recovered from stale state")
		return false, nil

	default:
		return isActive, nil
	}
}

// checkSystemStale reads the latest health row and measures the age of
// the last successful snapshot. No health row or no success yet both
// count as stale.
func (e *Engine) checkSystemStale(ctx context.Context) (bool, int, *time.Time, error) {
	health, err := e.store.LatestHealth(ctx)
	if err != nil {
		return false, 0, nil, err
	}
	if health == nil || health.LastSuccessSnapshotTs == nil {
		log.Warn().Msg("no successful ingestion on record, treating as stale")
		return true, 0, nil, nil
	}

	age := e.now().Sub(*health.LastSuccessSnapshotTs)
	if age > systemStaleAge {
		minutes := int(age.Minutes())
		log.Warn().Int("minutes_stale", minutes).Msg("pipeline stale")
		return true, minutes, health.LastSuccessSnapshotTs, nil
	}
	return false, 0, health.LastSuccessSnapshotTs, nil
}

// mergedState copies an existing state row for read-modify-write, or
// starts a fresh one keyed to (asset, alert type).
func mergedState(state *persistence.AlertState, asset, alertType string) persistence.AlertState {
	if state != nil {
		return *state
	}
	return persistence.AlertState{Asset: asset, AlertType: alertType}
}
