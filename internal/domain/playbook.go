package domain

// Dispersion and exit-cluster bands used by the decision matrix.
// High bands are unreachable inside the matrix: the overrides fire first.
const (
	diLowMax    = 40.0
	diHighMin   = 60.0
	ecLowMax    = 16.0
	ecHighMin   = 25.0
	casNeutralL = 40.0
	casNeutralH = 60.0
)

// ResolvePlaybook maps the four signals to an allowed playbook and risk
// mode. Overrides are evaluated in strict priority order; only when none
// match does the decision matrix apply, and within the matrix the first
// matching row wins.
func ResolvePlaybook(cas float64, trend Trend, dispersion, exitCluster float64) (Playbook, RiskMode) {
	// Override 1: the cohort disagrees too much to read direction.
	if dispersion >= diHighMin {
		return PlaybookNoTrade, RiskDefensive
	}

	// Override 2: broad de-risking.
	if exitCluster > ecHighMin {
		return PlaybookNoTrade, RiskDefensive
	}

	// Override 3: distribution pattern. Still-bullish consensus with a
	// falling trend reads as smart money handing off exposure.
	if trend == TrendFalling && cas > casNeutralH {
		return PlaybookNoTrade, RiskReduced
	}

	diLow := dispersion < diLowMax
	diMedium := dispersion >= diLowMax && dispersion < diHighMin
	ecLow := exitCluster < ecLowMax
	ecMedium := exitCluster >= ecLowMax && exitCluster <= ecHighMin

	switch {
	// Long-only rows.
	case cas > 75 && trend == TrendRising && diLow && ecLow:
		return PlaybookLongOnly, RiskNormal
	case cas > 75 && trend == TrendRising && diLow && ecMedium:
		return PlaybookLongOnly, RiskReduced
	case cas > 75 && trend == TrendFlat && diLow && ecLow:
		return PlaybookLongOnly, RiskReduced
	case cas >= 60 && cas <= 75 && trend == TrendRising && diLow && ecLow:
		return PlaybookLongOnly, RiskReduced
	case cas >= 60 && cas <= 75 && diMedium && ecLow:
		return PlaybookLongOnly, RiskReduced

	// Short-only rows.
	case cas < 25 && trend == TrendFalling && diLow && ecLow:
		return PlaybookShortOnly, RiskNormal
	case cas < 25 && trend == TrendFalling && diLow && ecMedium:
		return PlaybookShortOnly, RiskReduced
	case cas < 25 && trend == TrendFlat && diLow && ecLow:
		return PlaybookShortOnly, RiskReduced
	case cas >= 25 && cas < 40 && trend == TrendFalling && diLow && ecLow:
		return PlaybookShortOnly, RiskReduced
	case cas >= 25 && cas < 40 && diMedium && ecLow:
		return PlaybookShortOnly, RiskReduced

	// Neutral zone.
	case cas >= casNeutralL && cas <= casNeutralH:
		return PlaybookNoTrade, RiskDefensive
	}

	// Safety fallback.
	return PlaybookNoTrade, RiskReduced
}

// DerivedFlags computes the advisory booleans attached to every signal.
func DerivedFlags(trend Trend, dispersion, exitCluster float64) (addExposure, tightenStops bool) {
	addExposure = trend == TrendRising && exitCluster < ecLowMax && dispersion < diHighMin
	tightenStops = exitCluster > ecHighMin || trend == TrendFalling || dispersion >= diHighMin
	return addExposure, tightenStops
}
