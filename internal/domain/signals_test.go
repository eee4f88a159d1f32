package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExitClusterScore(t *testing.T) {
	assert.Equal(t, 0.0, ExitClusterScore(0, 0))
	assert.Equal(t, 0.0, ExitClusterScore(5, 0))
	assert.InDelta(t, 5, ExitClusterScore(5, 100), 1e-9)
	assert.InDelta(t, 30, ExitClusterScore(30, 100), 1e-9)
	assert.InDelta(t, 100, ExitClusterScore(10, 10), 1e-9)
}

func TestAlignmentScore(t *testing.T) {
	// Empty cohort is neutral.
	assert.Equal(t, 50.0, AlignmentScore(0, 0, 0, 0))

	// Balanced cohort is neutral.
	assert.InDelta(t, 50, AlignmentScore(10, 10, 100, 5), 1e-9)

	// Strong long bias.
	assert.InDelta(t, 90, AlignmentScore(80, 0, 100, 2), 1e-9)

	// Strong short bias.
	assert.InDelta(t, 10, AlignmentScore(0, 80, 100, 2), 1e-9)

	// Clamped at the extremes.
	assert.Equal(t, 100.0, AlignmentScore(100, 0, 100, 0))
	assert.Equal(t, 0.0, AlignmentScore(0, 100, 100, 0))
}

func TestAlignmentScoreExitClusterPenalty(t *testing.T) {
	// Elevated exit cluster caps a bullish reading at 60.
	assert.InDelta(t, 60, AlignmentScore(80, 0, 100, 30), 1e-9)

	// Below the cap the penalty is a no-op.
	assert.InDelta(t, 55, AlignmentScore(10, 0, 100, 30), 1e-9)

	// At exactly the threshold no penalty applies.
	assert.InDelta(t, 90, AlignmentScore(80, 0, 100, 25), 1e-9)
}

func TestAlignmentTrend(t *testing.T) {
	// Fewer than three history points always reads flat.
	assert.Equal(t, TrendFlat, AlignmentTrend(90, nil))
	assert.Equal(t, TrendFlat, AlignmentTrend(90, []float64{50, 50}))

	// History 60, 65, 70 averages 65: dead zone is 60..70.
	history := []float64{60, 65, 70}
	assert.Equal(t, TrendRising, AlignmentTrend(90, history))
	assert.Equal(t, TrendFalling, AlignmentTrend(40, history))
	assert.Equal(t, TrendFlat, AlignmentTrend(66, history))
	assert.Equal(t, TrendFlat, AlignmentTrend(70, history))
	assert.Equal(t, TrendFlat, AlignmentTrend(60, history))
}

func makeClassifications(ratios []float64) map[string]Classification {
	// previous=10, epsilon below 10 so the denominator is |previous|.
	out := make(map[string]Classification, len(ratios))
	for i, r := range ratios {
		out[fmt.Sprintf("0x%03d", i)] = Classification{
			SziPrevious: 10,
			Delta:       r * 10,
			Epsilon:     0.01,
		}
	}
	return out
}

func TestDispersionIndex(t *testing.T) {
	// Fewer than five ratios defaults to medium.
	assert.Equal(t, 50.0, DispersionIndex(nil))
	assert.Equal(t, 50.0, DispersionIndex(makeClassifications([]float64{0.1, 0.2, 0.3, 0.4})))

	// Identical ratios read as zero disagreement.
	assert.Equal(t, 0.0, DispersionIndex(makeClassifications([]float64{0.2, 0.2, 0.2, 0.2, 0.2})))

	// Tight ratios stay low; wild disagreement saturates.
	low := DispersionIndex(makeClassifications([]float64{0.1, 0.15, 0.2, 0.25, 0.3}))
	assert.Greater(t, low, 0.0)
	assert.Less(t, low, 40.0)

	high := DispersionIndex(makeClassifications([]float64{2, -2, 2, -2, 2, -2}))
	assert.Equal(t, 100.0, high)
}

func TestDispersionIndexClampsRatios(t *testing.T) {
	// A wallet flipping a tiny position produces an absurd raw ratio;
	// the clamp keeps it at ±2.
	cls := map[string]Classification{
		"a": {SziPrevious: 0.001, Delta: 50, Epsilon: 0.01},
		"b": {SziPrevious: 10, Delta: 1, Epsilon: 0.01},
		"c": {SziPrevious: 10, Delta: 1, Epsilon: 0.01},
		"d": {SziPrevious: 10, Delta: 1, Epsilon: 0.01},
		"e": {SziPrevious: 10, Delta: 1, Epsilon: 0.01},
	}
	di := DispersionIndex(cls)
	assert.LessOrEqual(t, di, 100.0)
	assert.Greater(t, di, 0.0)
}

func TestComputeSignalsNeutralMarket(t *testing.T) {
	// 100 wallets: 10 long adders, 10 short adders, 5 reducers, 75 flat.
	counts := StateCounts{AdderLong: 10, AdderShort: 10, Reducer: 5, Flat: 75, Total: 100}
	cls := makeClassifications(make([]float64, 100)) // all ratios zero

	got := ComputeSignals(counts, cls, []float64{50, 50, 50})

	assert.InDelta(t, 5, got.ExitClusterScore, 1e-9)
	assert.InDelta(t, 50, got.AlignmentScore, 1e-9)
	assert.Equal(t, 0.0, got.DispersionIndex)
	assert.Equal(t, TrendFlat, got.AlignmentTrend)
	assert.Equal(t, PlaybookNoTrade, got.AllowedPlaybook)
	assert.Equal(t, RiskDefensive, got.RiskMode)
	assert.False(t, got.AddExposure)
	assert.False(t, got.TightenStops)
}

func TestComputeSignalsStrongBullish(t *testing.T) {
	counts := StateCounts{AdderLong: 80, AdderShort: 0, Reducer: 2, Flat: 18, Total: 100}
	ratios := make([]float64, 100)
	for i := range ratios {
		ratios[i] = 0.1 + 0.2*float64(i)/float64(len(ratios)-1)
	}
	cls := makeClassifications(ratios)

	got := ComputeSignals(counts, cls, []float64{60, 65, 70})

	assert.InDelta(t, 2, got.ExitClusterScore, 1e-9)
	assert.InDelta(t, 90, got.AlignmentScore, 1e-9)
	assert.Less(t, got.DispersionIndex, 40.0)
	assert.Equal(t, TrendRising, got.AlignmentTrend)
	assert.Equal(t, PlaybookLongOnly, got.AllowedPlaybook)
	assert.Equal(t, RiskNormal, got.RiskMode)
	assert.True(t, got.AddExposure)
	assert.False(t, got.TightenStops)
}

func TestComputeSignalsDistribution(t *testing.T) {
	counts := StateCounts{AdderLong: 0, AdderShort: 0, Reducer: 30, Flat: 70, Total: 100}
	cls := makeClassifications(make([]float64, 100))

	got := ComputeSignals(counts, cls, []float64{50, 50, 50})

	assert.InDelta(t, 30, got.ExitClusterScore, 1e-9)
	assert.Equal(t, PlaybookNoTrade, got.AllowedPlaybook)
	assert.Equal(t, RiskDefensive, got.RiskMode)
	assert.True(t, got.TightenStops)
}

func TestComputeSignalsEmptyCohort(t *testing.T) {
	got := ComputeSignals(StateCounts{}, nil, nil)

	assert.Equal(t, 0.0, got.ExitClusterScore)
	assert.Equal(t, 50.0, got.AlignmentScore)
	assert.Equal(t, TrendFlat, got.AlignmentTrend)
	assert.Equal(t, 50.0, got.DispersionIndex)
}
