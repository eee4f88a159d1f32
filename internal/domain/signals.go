package domain

import "math"

const (
	// exitClusterPenaltyThreshold is the EC level above which the
	// alignment score is capped: a crowd that is broadly de-risking
	// cannot simultaneously show strong directional consensus.
	exitClusterPenaltyThreshold = 25.0
	exitClusterPenaltyCap       = 60.0

	trendDeadZone    = 5.0
	trendPeriods     = 3
	minDispersionN   = 5
	ratioClampBound  = 2.0
	dispersionMedium = 50.0
)

// ExitClusterScore is the share of the cohort actively reducing
// exposure, 0..100. An empty cohort scores 0.
func ExitClusterScore(nReducer, nTotal int) float64 {
	if nTotal == 0 {
		return 0
	}
	return float64(nReducer) / float64(nTotal) * 100
}

// AlignmentScore computes the consensus alignment score (CAS) from
// adder counts, 0..100, 50 being neutral. When the exit-cluster score
// exceeds its penalty threshold the result is capped at 60.
func AlignmentScore(nAdderLong, nAdderShort, nTotal int, exitCluster float64) float64 {
	if nTotal == 0 {
		return 50
	}

	cas := 50 + float64(nAdderLong-nAdderShort)/float64(nTotal)*50

	if exitCluster > exitClusterPenaltyThreshold {
		cas = math.Min(cas, exitClusterPenaltyCap)
	}

	return math.Max(0, math.Min(100, cas))
}

// AlignmentTrend compares the current CAS against the mean of the last
// three persisted values with a ±5 dead zone. With fewer than three
// historical values the trend is flat.
func AlignmentTrend(currentCAS float64, history []float64) Trend {
	if len(history) < trendPeriods {
		return TrendFlat
	}

	sum := 0.0
	for _, v := range history[:trendPeriods] {
		sum += v
	}
	avg := sum / trendPeriods

	switch {
	case currentCAS > avg+trendDeadZone:
		return TrendRising
	case currentCAS < avg-trendDeadZone:
		return TrendFalling
	default:
		return TrendFlat
	}
}

// DispersionIndex measures cohort disagreement as the sample standard
// deviation of per-wallet change ratios, scaled to 0..100.
//
// Each ratio is delta / max(|previous|, ε), clamped to ±2 so a single
// wallet flipping a small position cannot dominate. Fewer than five
// usable ratios yields the medium default of 50; identical ratios yield 0.
func DispersionIndex(classifications map[string]Classification) float64 {
	ratios := make([]float64, 0, len(classifications))

	for _, cl := range classifications {
		denom := math.Max(math.Abs(cl.SziPrevious), cl.Epsilon)
		ratio := cl.Delta / denom
		ratio = math.Max(-ratioClampBound, math.Min(ratioClampBound, ratio))
		ratios = append(ratios, ratio)
	}

	if len(ratios) < minDispersionN {
		return dispersionMedium
	}

	allEqual := true
	for _, r := range ratios[1:] {
		if r != ratios[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		return 0
	}

	sigma := sampleStdDev(ratios)
	return math.Min(sigma*100, 100)
}

func sampleStdDev(xs []float64) float64 {
	n := float64(len(xs))
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= n

	variance := 0.0
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= n - 1

	return math.Sqrt(variance)
}

// ComputeSignals evaluates the four scalar signals together. The
// exit-cluster score is computed first because the alignment score's
// penalty depends on it.
func ComputeSignals(counts StateCounts, classifications map[string]Classification, casHistory []float64) Signals {
	ec := ExitClusterScore(counts.Reducer, counts.Total)
	cas := AlignmentScore(counts.AdderLong, counts.AdderShort, counts.Total, ec)
	trend := AlignmentTrend(cas, casHistory)
	di := DispersionIndex(classifications)

	s := Signals{
		AlignmentScore:   cas,
		AlignmentTrend:   trend,
		DispersionIndex:  di,
		ExitClusterScore: ec,
	}
	s.AllowedPlaybook, s.RiskMode = ResolvePlaybook(cas, trend, di, ec)
	s.AddExposure, s.TightenStops = DerivedFlags(trend, di, ec)
	return s
}
