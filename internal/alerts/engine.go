// Package alerts evaluates the three alert types after each signal
// cycle: the system-stale dead-man's-switch, regime changes with
// 2-period persistence, and exit-cluster hysteresis. All state machine
// memory lives in alert_state rows; nothing survives in-process, so a
// restart behaves exactly like a continuation.
package alerts

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/whaletrack/internal/persistence"
	"github.com/sawpanic/whaletrack/internal/signals"
	"github.com/sawpanic/whaletrack/internal/telemetry/metrics"
)

// Alert types and severities.
const (
	TypeSystemStale  = "system_stale"
	TypeRegimeChange = "regime_change"
	TypeExitCluster  = "exit_cluster"

	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"

	// SystemAsset is the sentinel used in alert_state rows for
	// system-level alerts. The alerts log stores NULL instead.
	SystemAsset = "SYSTEM"
)

// Throttling and cooldown policy.
const (
	regimeChangeCooldown = 30 * time.Minute
	exitClusterCooldown  = 60 * time.Minute

	dailyQuota       = 4
	dailyQuotaWindow = 24 * time.Hour
)

// Store is the persistence surface for alert evaluation.
type Store interface {
	AlertState(ctx context.Context, asset, alertType string) (*persistence.AlertState, error)
	UpsertAlertState(ctx context.Context, state persistence.AlertState) error
	InsertAlert(ctx context.Context, alert persistence.Alert) (int64, error)
	CountRecentAlerts(ctx context.Context, asset string, since time.Time) (int, error)
	LatestHealth(ctx context.Context) (*persistence.IngestHealth, error)
}

// Engine evaluates all alerts for one signal cycle.
type Engine struct {
	store   Store
	metrics *metrics.Registry
	now     func() time.Time
}

// NewEngine creates an alert engine. reg may be nil.
func NewEngine(store Store, reg *metrics.Registry) *Engine {
	return &Engine{
		store:   store,
		metrics: reg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate runs the full alert pass for one cycle: system stale first,
// then the behavioral alerts per asset. While the stale alert is
// active, behavioral evaluation is skipped entirely; no suppressed rows
// are written for it. Errors are isolated per (asset, alert type).
func (e *Engine) Evaluate(ctx context.Context, signalTs time.Time, results map[string]signals.Result) {
	staleActive, err := e.evaluateSystemStale(ctx)
	if err != nil {
		log.Error().Err(err).Msg("system stale evaluation failed")
	}
	if staleActive {
		log.Warn().Time("signal_ts", signalTs).
			Msg("behavioral alerts suppressed: system stale active")
		return
	}

	assets := make([]string, 0, len(results))
	for asset := range results {
		assets = append(assets, asset)
	}
	sort.Strings(assets)

	fired := 0
	for _, asset := range assets {
		res := results[asset]

		ok, err := e.evaluateRegimeChange(ctx, asset, res)
		if err != nil {
			log.Error().Err(err).Str("asset", asset).Msg("regime change evaluation failed")
		} else if ok {
			fired++
		}

		ok, err = e.evaluateExitCluster(ctx, asset, res)
		if err != nil {
			log.Error().Err(err).Str("asset", asset).Msg("exit cluster evaluation failed")
		} else if ok {
			fired++
		}
	}

	log.Info().
		Time("signal_ts", signalTs).
		Int("assets", len(assets)).
		Int("alerts_fired", fired).
		Msg("alert evaluation complete")
}

// shouldFire applies the throttling rules for a behavioral fire:
// cooldown first, then the rolling 24h quota of non-suppressed alerts.
func (e *Engine) shouldFire(ctx context.Context, state *persistence.AlertState, asset, alertType string) (bool, error) {
	now := e.now()

	if state != nil && state.CooldownUntil != nil && now.Before(*state.CooldownUntil) {
		log.Info().Str("asset", asset).Str("alert_type", alertType).
			Time("cooldown_until", *state.CooldownUntil).
			Msg("alert suppressed by cooldown")
		return false, nil
	}

	count, err := e.store.CountRecentAlerts(ctx, asset, now.Add(-dailyQuotaWindow))
	if err != nil {
		return false, err
	}
	if count >= dailyQuota {
		log.Warn().Str("asset", asset).Str("alert_type", alertType).
			Int("count_24h", count).
			Msg("alert suppressed by daily quota")
		return false, nil
	}
	return true, nil
}

// persistAlert appends one alert log row. The SYSTEM sentinel becomes a
// NULL asset in the log; cooldown zero means the row's cooldown_until
// collapses to the fire time.
func (e *Engine) persistAlert(ctx context.Context, asset, alertType, severity, message string, snapshot json.RawMessage, cooldown time.Duration, suppressed bool) error {
	now := e.now()

	var assetCol *string
	if asset != SystemAsset {
		a := asset
		assetCol = &a
	}

	id, err := e.store.InsertAlert(ctx, persistence.Alert{
		AlertTs:        now,
		Asset:          assetCol,
		AlertType:      alertType,
		Severity:       severity,
		Message:        message,
		SignalSnapshot: snapshot,
		CooldownUntil:  now.Add(cooldown),
		Suppressed:     suppressed,
	})
	if err != nil {
		return err
	}

	if e.metrics != nil {
		e.metrics.AlertsFired.WithLabelValues(alertType, boolLabel(suppressed)).Inc()
	}

	evt := log.Info()
	if suppressed {
		evt = log.Debug()
	}
	evt.Int64("alert_id", id).
		Str("asset", asset).
		Str("alert_type", alertType).
		Str("severity", severity).
		Bool("suppressed", suppressed).
		Msg(message)
	return nil
}

// signalSnapshot is the audit payload stored with behavioral alerts.
type signalSnapshot struct {
	AlignmentScore   float64 `json:"alignment_score"`
	AlignmentTrend   string  `json:"alignment_trend"`
	DispersionIndex  float64 `json:"dispersion_index"`
	ExitClusterScore float64 `json:"exit_cluster_score"`
	AllowedPlaybook  string  `json:"allowed_playbook"`
	RiskMode         string  `json:"risk_mode"`
	AddExposure      bool    `json:"add_exposure"`
	TightenStops     bool    `json:"tighten_stops"`
	WalletCount      int     `json:"wallet_count"`
}

func snapshotJSON(res signals.Result) json.RawMessage {
	b, err := json.Marshal(signalSnapshot{
		AlignmentScore:   res.Signals.AlignmentScore,
		AlignmentTrend:   res.Signals.AlignmentTrend.String(),
		DispersionIndex:  res.Signals.DispersionIndex,
		ExitClusterScore: res.Signals.ExitClusterScore,
		AllowedPlaybook:  res.Signals.AllowedPlaybook.String(),
		RiskMode:         res.Signals.RiskMode.String(),
		AddExposure:      res.Signals.AddExposure,
		TightenStops:     res.Signals.TightenStops,
		WalletCount:      res.WalletCount,
	})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
