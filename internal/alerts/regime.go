package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/whaletrack/internal/persistence"
	"github.com/sawpanic/whaletrack/internal/signals"
)

// confirmPeriods is how many consecutive signal periods a new playbook
// must hold before the regime change fires.
const confirmPeriods = 2

// regimeTracking is the durable piece of the state machine kept in the
// alert_state signal_snapshot column.
type regimeTracking struct {
	PreviousPlaybook *string `json:"previous_playbook"`
}

// evaluateRegimeChange runs the 2-period persistence state machine for
// one asset and reports whether a non-suppressed alert fired.
func (e *Engine) evaluateRegimeChange(ctx context.Context, asset string, res signals.Result) (bool, error) {
	current := res.Signals.AllowedPlaybook.String()

	state, err := e.store.AlertState(ctx, asset, TypeRegimeChange)
	if err != nil {
		return false, err
	}

	previous := previousPlaybook(state)
	if previous == nil {
		// First observation for this asset.
		log.Debug().Str("asset", asset).Str("playbook", current).
			Msg("initializing regime tracking")
		return false, e.saveRegimeTracking(ctx, state, asset, nil, 0, current)
	}

	pending := state.PendingPlaybook
	periods := state.PendingPeriods

	if current != *previous {
		if pending != nil && *pending == current {
			periods++
			if periods >= confirmPeriods {
				log.Info().Str("asset", asset).
					Str("from", *previous).Str("to", current).
					Msg("regime change confirmed")
				return e.fireRegimeChange(ctx, state, asset, current, res)
			}
			log.Info().Str("asset", asset).Str("pending", current).
				Int("periods", periods).
				Msg("regime change pending")
			return false, e.saveRegimeTracking(ctx, state, asset, &current, periods, *previous)
		}

		// New candidate playbook: restart the persistence count.
		log.Info().Str("asset", asset).
			Str("from", *previous).Str("to", current).
			Msg("regime change started")
		return false, e.saveRegimeTracking(ctx, state, asset, &current, 1, *previous)
	}

	// Playbook matches the confirmed previous again.
	if pending != nil {
		if *pending == current {
			// Pending equal to the confirmed playbook should never
			// happen; reset rather than fire.
			log.Warn().Str("asset", asset).Int("periods", periods).
				Msg("regime tracking anomaly, resetting")
		} else {
			log.Info().Str("asset", asset).Str("playbook", current).
				Msg("regime change cancelled")
		}
	}
	return false, e.saveRegimeTracking(ctx, state, asset, nil, 0, current)
}

// fireRegimeChange persists the confirmed change. Whether the fire is
// suppressed or not, the tracking resets to the new playbook.
func (e *Engine) fireRegimeChange(ctx context.Context, state *persistence.AlertState, asset, current string, res signals.Result) (bool, error) {
	allowed, err := e.shouldFire(ctx, state, asset, TypeRegimeChange)
	if err != nil {
		return false, err
	}

	msg := fmt.Sprintf("[%s] Regime Change: Playbook switched to %s. Risk Mode: %s.",
		asset, current, res.Signals.RiskMode.String())
	if err := e.persistAlert(ctx, asset, TypeRegimeChange, SeverityMedium, msg,
		snapshotJSON(res), regimeChangeCooldown, !allowed); err != nil {
		return false, err
	}

	next := mergedState(state, asset, TypeRegimeChange)
	next.PendingPlaybook = nil
	next.PendingPeriods = 0
	next.SignalSnapshot = trackingJSON(current)
	if allowed {
		now := e.now()
		cooldown := now.Add(regimeChangeCooldown)
		next.LastTriggeredTs = &now
		next.CooldownUntil = &cooldown
	}
	if err := e.store.UpsertAlertState(ctx, next); err != nil {
		return allowed, err
	}
	return allowed, nil
}

// saveRegimeTracking writes the tracking fields without touching the
// cooldown bookkeeping.
func (e *Engine) saveRegimeTracking(ctx context.Context, state *persistence.AlertState, asset string, pending *string, periods int, previous string) error {
	next := mergedState(state, asset, TypeRegimeChange)
	next.PendingPlaybook = pending
	next.PendingPeriods = periods
	next.SignalSnapshot = trackingJSON(previous)
	return e.store.UpsertAlertState(ctx, next)
}

func previousPlaybook(state *persistence.AlertState) *string {
	if state == nil || len(state.SignalSnapshot) == 0 {
		return nil
	}
	var t regimeTracking
	if err := json.Unmarshal(state.SignalSnapshot, &t); err != nil {
		log.Warn().Err(err).Msg("unreadable regime tracking snapshot, reinitializing")
		return nil
	}
	return t.PreviousPlaybook
}

func trackingJSON(previous string) json.RawMessage {
	b, _ := json.Marshal(regimeTracking{PreviousPlaybook: &previous})
	return b
}
