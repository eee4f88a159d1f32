package alerts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/whaletrack/internal/signals"
)

// Exit cluster hysteresis thresholds, in percent. Scores between reset
// and trigger are a dead zone with no state change.
const (
	exitClusterTrigger = 25.0
	exitClusterReset   = 20.0
)

// evaluateExitCluster runs the hysteresis state machine for one asset
// and reports whether a non-suppressed alert fired. The active flag
// flips on the trigger crossing even when throttling suppresses the
// fire, so a suppressed episode still needs a reset before it can fire
// again.
func (e *Engine) evaluateExitCluster(ctx context.Context, asset string, res signals.Result) (bool, error) {
	score := res.Signals.ExitClusterScore

	state, err := e.store.AlertState(ctx, asset, TypeExitCluster)
	if err != nil {
		return false, err
	}
	isActive := state != nil && state.IsActive

	switch {
	case !isActive && score > exitClusterTrigger:
		log.Info().Str("asset", asset).Float64("exit_cluster_score", score).
			Msg("exit cluster crossed trigger threshold")

		allowed, err := e.shouldFire(ctx, state, asset, TypeExitCluster)
		if err != nil {
			return false, err
		}

		msg := fmt.Sprintf(
			"[%s] Smart Money De-risking: Exit Cluster elevated (%.1f%%). Stop adding exposure. Tighten stops.",
			asset, score)
		if err := e.persistAlert(ctx, asset, TypeExitCluster, SeverityHigh, msg,
			snapshotJSON(res), exitClusterCooldown, !allowed); err != nil {
			return false, err
		}

		next := mergedState(state, asset, TypeExitCluster)
		next.IsActive = true
		if allowed {
			now := e.now()
			cooldown := now.Add(exitClusterCooldown)
			next.LastTriggeredTs = &now
			next.CooldownUntil = &cooldown
		}
		if err := e.store.UpsertAlertState(ctx, next); err != nil {
			return allowed, err
		}
		return allowed, nil

	case isActive && score < exitClusterReset:
		log.Info().Str("asset", asset).Float64("exit_cluster_score", score).
			Msg("exit cluster dropped below reset threshold")
		next := mergedState(state, asset, TypeExitCluster)
		next.IsActive = false
		return false, e.store.UpsertAlertState(ctx, next)

	default:
		return false, nil
	}
}
