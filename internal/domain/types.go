// Package domain holds the behavioral model: wallet classification,
// the four scalar signals, and the playbook decision matrix. Everything
// here is pure computation; persistence and I/O live elsewhere.
package domain

// Playbook is the discrete trading stance the cohort's behavior permits.
type Playbook int

const (
	PlaybookNoTrade Playbook = iota
	PlaybookLongOnly
	PlaybookShortOnly
)

// String renders the persistence-boundary form of the playbook.
func (p Playbook) String() string {
	switch p {
	case PlaybookLongOnly:
		return "Long-only"
	case PlaybookShortOnly:
		return "Short-only"
	default:
		return "No-trade"
	}
}

// RiskMode is the position-sizing posture attached to a playbook.
type RiskMode int

const (
	RiskNormal RiskMode = iota
	RiskReduced
	RiskDefensive
)

func (r RiskMode) String() string {
	switch r {
	case RiskNormal:
		return "Normal"
	case RiskReduced:
		return "Reduced"
	default:
		return "Defensive"
	}
}

// WalletState is the per-wallet behavioral classification over one
// 5-minute signal period.
type WalletState int

const (
	StateFlat WalletState = iota
	StateAdderLong
	StateAdderShort
	StateReducer
)

func (s WalletState) String() string {
	switch s {
	case StateAdderLong:
		return "adder_long"
	case StateAdderShort:
		return "adder_short"
	case StateReducer:
		return "reducer"
	default:
		return "flat"
	}
}

// Trend is the direction of the alignment score against its 3-period
// rolling average.
type Trend int

const (
	TrendFlat Trend = iota
	TrendRising
	TrendFalling
)

func (t Trend) String() string {
	switch t {
	case TrendRising:
		return "rising"
	case TrendFalling:
		return "falling"
	default:
		return "flat"
	}
}

// WalletDelta is one wallet's position change between the previous and
// current signal windows. Previous and Delta are nil when the wallet has
// no snapshot in the prior window.
type WalletDelta struct {
	SziCurrent  float64
	SziPrevious *float64
	Delta       *float64
}

// Classification is the classifier output for a single wallet.
type Classification struct {
	State       WalletState
	SziCurrent  float64
	SziPrevious float64
	Delta       float64
	Epsilon     float64
}

// StateCounts aggregates classifications into per-state counts.
type StateCounts struct {
	AdderLong  int
	AdderShort int
	Reducer    int
	Flat       int
	Total      int
}

// Percentages converts counts to percentage shares. All zeros when the
// cohort is empty.
type Percentages struct {
	AddLong  float64
	AddShort float64
	Reducers float64
	Flat     float64
}

// Signals is the full per-asset signal set for one 5-minute boundary.
type Signals struct {
	AlignmentScore   float64
	AlignmentTrend   Trend
	DispersionIndex  float64
	ExitClusterScore float64
	AllowedPlaybook  Playbook
	RiskMode         RiskMode
	AddExposure      bool
	TightenStops     bool
}
