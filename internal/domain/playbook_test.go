package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolvePlaybookOverrides(t *testing.T) {
	// High dispersion trumps everything, including a perfect bull case.
	pb, risk := ResolvePlaybook(90, TrendRising, 60, 2)
	assert.Equal(t, PlaybookNoTrade, pb)
	assert.Equal(t, RiskDefensive, risk)

	// Elevated exit cluster is next.
	pb, risk = ResolvePlaybook(90, TrendRising, 10, 26)
	assert.Equal(t, PlaybookNoTrade, pb)
	assert.Equal(t, RiskDefensive, risk)

	// Distribution: falling trend with still-bullish consensus.
	pb, risk = ResolvePlaybook(70, TrendFalling, 10, 5)
	assert.Equal(t, PlaybookNoTrade, pb)
	assert.Equal(t, RiskReduced, risk)

	// Dispersion override outranks the exit-cluster override.
	pb, risk = ResolvePlaybook(50, TrendFlat, 75, 40)
	assert.Equal(t, PlaybookNoTrade, pb)
	assert.Equal(t, RiskDefensive, risk)
}

func TestResolvePlaybookMatrix(t *testing.T) {
	tests := []struct {
		name     string
		cas      float64
		trend    Trend
		di       float64
		ec       float64
		playbook Playbook
		risk     RiskMode
	}{
		{"strong bull, clean tape", 80, TrendRising, 10, 5, PlaybookLongOnly, RiskNormal},
		{"strong bull, some de-risking", 80, TrendRising, 10, 20, PlaybookLongOnly, RiskReduced},
		{"strong bull, no momentum", 80, TrendFlat, 10, 5, PlaybookLongOnly, RiskReduced},
		{"moderate bull, rising", 70, TrendRising, 10, 5, PlaybookLongOnly, RiskReduced},
		{"moderate bull, medium dispersion", 70, TrendFlat, 50, 5, PlaybookLongOnly, RiskReduced},
		{"strong bear, clean tape", 10, TrendFalling, 10, 5, PlaybookShortOnly, RiskNormal},
		{"strong bear, some de-risking", 10, TrendFalling, 10, 20, PlaybookShortOnly, RiskReduced},
		{"strong bear, no momentum", 10, TrendFlat, 10, 5, PlaybookShortOnly, RiskReduced},
		{"moderate bear, falling", 30, TrendFalling, 10, 5, PlaybookShortOnly, RiskReduced},
		{"moderate bear, medium dispersion", 30, TrendRising, 50, 5, PlaybookShortOnly, RiskReduced},
		{"neutral zone", 50, TrendFlat, 10, 5, PlaybookNoTrade, RiskDefensive},
		{"fallback: bullish, flat trend, medium exit cluster", 80, TrendFlat, 10, 20, PlaybookNoTrade, RiskReduced},
		{"fallback: bearish but rising", 10, TrendRising, 10, 5, PlaybookNoTrade, RiskReduced},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pb, risk := ResolvePlaybook(tt.cas, tt.trend, tt.di, tt.ec)
			assert.Equal(t, tt.playbook, pb)
			assert.Equal(t, tt.risk, risk)
		})
	}
}

func TestResolvePlaybookBandEdges(t *testing.T) {
	// CAS 75 belongs to the moderate band, 75.01 to the strong band.
	pb, risk := ResolvePlaybook(75, TrendRising, 10, 5)
	assert.Equal(t, PlaybookLongOnly, pb)
	assert.Equal(t, RiskReduced, risk)

	// EC exactly 25 is still medium, not an override.
	pb, _ = ResolvePlaybook(80, TrendRising, 10, 25)
	assert.Equal(t, PlaybookLongOnly, pb)

	// Di exactly 40 is medium, 60 is the override.
	pb, risk = ResolvePlaybook(70, TrendFlat, 40, 5)
	assert.Equal(t, PlaybookLongOnly, pb)
	assert.Equal(t, RiskReduced, risk)
}

func TestDerivedFlags(t *testing.T) {
	add, tighten := DerivedFlags(TrendRising, 10, 5)
	assert.True(t, add)
	assert.False(t, tighten)

	// Falling trend forces tighten_stops and kills add_exposure.
	add, tighten = DerivedFlags(TrendFalling, 10, 5)
	assert.False(t, add)
	assert.True(t, tighten)

	// High dispersion does both.
	add, tighten = DerivedFlags(TrendRising, 60, 5)
	assert.False(t, add)
	assert.True(t, tighten)

	// Elevated exit cluster tightens even on a rising trend.
	add, tighten = DerivedFlags(TrendRising, 10, 26)
	assert.False(t, add)
	assert.True(t, tighten)

	// EC at the low boundary is not "low" anymore.
	add, _ = DerivedFlags(TrendRising, 10, 16)
	assert.False(t, add)
}
