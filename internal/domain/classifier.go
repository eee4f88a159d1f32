package domain

import (
	"math"
	"sort"
)

// epsilonAbsolute is the per-asset noise floor in base-asset units.
var epsilonAbsolute = map[string]float64{
	"HYPE": 0.01,
	"BTC":  0.0001,
	"ETH":  0.001,
}

const (
	defaultEpsilonAbsolute = 0.01
	epsilonRelativeFactor  = 0.02
)

// EpsilonAbsolute returns the fixed noise floor for an asset. Unknown
// assets fall back to the HYPE-scale default.
func EpsilonAbsolute(asset string) float64 {
	if eps, ok := epsilonAbsolute[asset]; ok {
		return eps
	}
	return defaultEpsilonAbsolute
}

// Epsilon computes the wallet noise floor: the larger of the per-asset
// absolute floor and 2% of the wallet's median absolute position size
// over the trailing 24 hours. A wallet with no history, or a flat-only
// history, keeps the absolute floor.
func Epsilon(asset string, medianAbsSzi float64) float64 {
	abs := EpsilonAbsolute(asset)
	if medianAbsSzi <= 0 {
		return abs
	}
	return math.Max(abs, epsilonRelativeFactor*medianAbsSzi)
}

// MedianAbs returns the median of the absolute values of szis, or 0 for
// an empty slice.
func MedianAbs(szis []float64) float64 {
	if len(szis) == 0 {
		return 0
	}
	abs := make([]float64, len(szis))
	for i, v := range szis {
		abs[i] = math.Abs(v)
	}
	sort.Float64s(abs)
	mid := len(abs) / 2
	if len(abs)%2 == 1 {
		return abs[mid]
	}
	return (abs[mid-1] + abs[mid]) / 2
}

// Classify assigns a behavioral state from the position change over one
// signal period. Rules are checked top-down; the first match wins. A nil
// previous size always classifies as Flat.
func Classify(sziCurrent float64, sziPrevious *float64, epsilon float64) WalletState {
	if sziPrevious == nil {
		return StateFlat
	}

	prev := *sziPrevious
	delta := sziCurrent - prev

	if delta > epsilon && sziCurrent > 0 {
		return StateAdderLong
	}
	if delta < -epsilon && sziCurrent < 0 {
		return StateAdderShort
	}
	if math.Abs(sziCurrent) < math.Abs(prev)-epsilon {
		return StateReducer
	}
	return StateFlat
}

// ClassifyAll classifies every wallet that has a usable delta. Wallets
// without a previous-window snapshot are skipped; they are counted as
// missing upstream, not as Flat contributors.
func ClassifyAll(deltas map[string]WalletDelta, epsilons map[string]float64) map[string]Classification {
	out := make(map[string]Classification, len(deltas))

	for wallet, d := range deltas {
		if d.Delta == nil || d.SziPrevious == nil {
			continue
		}
		eps := epsilons[wallet]
		out[wallet] = Classification{
			State:       Classify(d.SziCurrent, d.SziPrevious, eps),
			SziCurrent:  d.SziCurrent,
			SziPrevious: *d.SziPrevious,
			Delta:       *d.Delta,
			Epsilon:     eps,
		}
	}

	return out
}

// CountStates tallies classifications per state.
func CountStates(classifications map[string]Classification) StateCounts {
	var c StateCounts
	for _, cl := range classifications {
		switch cl.State {
		case StateAdderLong:
			c.AdderLong++
		case StateAdderShort:
			c.AdderShort++
		case StateReducer:
			c.Reducer++
		case StateFlat:
			c.Flat++
		}
	}
	c.Total = len(classifications)
	return c
}

// StatePercentages converts counts to percentage shares of the cohort.
func StatePercentages(c StateCounts) Percentages {
	if c.Total == 0 {
		return Percentages{}
	}
	n := float64(c.Total)
	return Percentages{
		AddLong:  float64(c.AdderLong) / n * 100,
		AddShort: float64(c.AdderShort) / n * 100,
		Reducers: float64(c.Reducer) / n * 100,
		Flat:     float64(c.Flat) / n * 100,
	}
}
