// Package persistence defines the durable row types shared between the
// postgres store and the pipeline packages.
package persistence

import (
	"encoding/json"
	"time"
)

// Run and health status values. Strings appear only at this boundary.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"

	HealthHealthy  = "healthy"
	HealthDegraded = "degraded"
	HealthStale    = "stale"
)

// UniverseRun records one universe refresh attempt.
type UniverseRun struct {
	RunID        int64     `db:"run_id"`
	AsOfTs       time.Time `db:"as_of_ts"`
	Status       string    `db:"status"`
	Source       string    `db:"source"`
	NRequested   int       `db:"n_requested"`
	NReceived    int       `db:"n_received"`
	EnteredCount int       `db:"entered_count"`
	ExitedCount  int       `db:"exited_count"`
	DurationMS   int64     `db:"duration_ms"`
	Error        *string   `db:"error"`
}

// UniverseMember is one tracked wallet in the current cohort. Ranks are
// dense and unique, 1..N.
type UniverseMember struct {
	WalletID     string    `db:"wallet_id"`
	Rank         int       `db:"rank"`
	MonthPnL     float64   `db:"month_pnl"`
	MonthROI     float64   `db:"month_roi"`
	AccountValue *float64  `db:"account_value"`
	AsOfTs       time.Time `db:"as_of_ts"`
}

// Snapshot is one minute-aligned position observation. A wallet whose
// fetch succeeded always gets a row per tracked asset, zero-sized when
// it holds no position.
type Snapshot struct {
	SnapshotTs  time.Time `db:"snapshot_ts"`
	WalletID    string    `db:"wallet_id"`
	Asset       string    `db:"asset"`
	PositionSzi float64   `db:"position_szi"`
	EntryPx     *float64  `db:"entry_px"`
	LiqPx       *float64  `db:"liq_px"`
	Leverage    *float64  `db:"leverage"`
	MarginUsed  *float64  `db:"margin_used"`
	IsDirty     bool      `db:"is_dirty"`
}

// IngestRun records one snapshot ingestion cycle, keyed by snapshot_ts.
type IngestRun struct {
	SnapshotTs       time.Time `db:"snapshot_ts"`
	Status           string    `db:"status"`
	WalletsExpected  int       `db:"wallets_expected"`
	WalletsSucceeded int       `db:"wallets_succeeded"`
	WalletsFailed    int       `db:"wallets_failed"`
	RowsExpected     int       `db:"rows_expected"`
	RowsWritten      int       `db:"rows_written"`
	CoveragePct      float64   `db:"coverage_pct"`
	DurationMS       int64     `db:"duration_ms"`
	Error            *string   `db:"error"`
}

// IngestHealth is the authoritative pipeline traffic light, appended at
// each run. Readers use the most recent row.
type IngestHealth struct {
	HealthTs              time.Time  `db:"health_ts"`
	LastSuccessSnapshotTs *time.Time `db:"last_success_snapshot_ts"`
	SnapshotStatus        string     `db:"snapshot_status"`
	CoveragePct           float64    `db:"coverage_pct"`
	HealthState           string     `db:"health_state"`
	Error                 *string    `db:"error"`
}

// SignalRow is the persisted per-asset signal for one 5-minute boundary.
type SignalRow struct {
	SignalTs         time.Time `db:"signal_ts"`
	Asset            string    `db:"asset"`
	AlignmentScore   float64   `db:"alignment_score"`
	AlignmentTrend   string    `db:"alignment_trend"`
	DispersionIndex  float64   `db:"dispersion_index"`
	ExitClusterScore float64   `db:"exit_cluster_score"`
	AllowedPlaybook  string    `db:"allowed_playbook"`
	RiskMode         string    `db:"risk_mode"`
	AddExposure      bool      `db:"add_exposure"`
	TightenStops     bool      `db:"tighten_stops"`
	WalletCount      int       `db:"wallet_count"`
	MissingCount     int       `db:"missing_count"`
	ComputationMS    int64     `db:"computation_ms"`
}

// ContributorsRow breaks a signal down into wallet-state counts and
// percentage shares.
type ContributorsRow struct {
	SignalTs      time.Time `db:"signal_ts"`
	Asset         string    `db:"asset"`
	PctAddLong    float64   `db:"pct_add_long"`
	PctAddShort   float64   `db:"pct_add_short"`
	PctReducers   float64   `db:"pct_reducers"`
	PctFlat       float64   `db:"pct_flat"`
	CountAddLong  int       `db:"count_add_long"`
	CountAddShort int       `db:"count_add_short"`
	CountReducers int       `db:"count_reducers"`
	CountFlat     int       `db:"count_flat"`
	TotalWallets  int       `db:"total_wallets"`
}

// AlertState is the durable state machine record per (asset, alert
// type). The SYSTEM sentinel is stored literally here (unlike the
// alerts log, which uses a NULL asset for system alerts).
type AlertState struct {
	Asset           string          `db:"asset"`
	AlertType       string          `db:"alert_type"`
	IsActive        bool            `db:"is_active"`
	LastTriggeredTs *time.Time      `db:"last_triggered_ts"`
	CooldownUntil   *time.Time      `db:"cooldown_until"`
	PendingPlaybook *string         `db:"pending_playbook"`
	PendingPeriods  int             `db:"pending_periods"`
	SignalSnapshot  json.RawMessage `db:"signal_snapshot"`
}

// Alert is one append-only alert log entry. Asset is nil for
// system-level alerts.
type Alert struct {
	ID             int64           `db:"id"`
	AlertTs        time.Time       `db:"alert_ts"`
	Asset          *string         `db:"asset"`
	AlertType      string          `db:"alert_type"`
	Severity       string          `db:"severity"`
	Message        string          `db:"message"`
	SignalSnapshot json.RawMessage `db:"signal_snapshot"`
	CooldownUntil  time.Time       `db:"cooldown_until"`
	Suppressed     bool            `db:"suppressed"`
}
