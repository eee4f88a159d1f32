// Package exchange implements the Hyperliquid API client: leaderboard
// retrieval with a primary/fallback endpoint pair and per-wallet
// clearinghouse state fetches with bounded concurrency.
package exchange

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FlexFloat accepts both JSON numbers and numeric strings. The exchange
// serves sizes and prices as strings in most responses but numbers in a
// few legacy fields.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty numeric value")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid numeric string %q: %w", s, err)
		}
		*f = FlexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = FlexFloat(v)
	return nil
}

// WindowPerformance is one entry of the leaderboard's windowPerformances
// list, serialized as a two-element array: [window, {pnl, roi}].
type WindowPerformance struct {
	Window string
	PnL    float64
	ROI    float64
}

func (w *WindowPerformance) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("window performance entry has %d elements, want 2", len(pair))
	}
	if err := json.Unmarshal(pair[0], &w.Window); err != nil {
		return err
	}
	var body struct {
		PnL FlexFloat `json:"pnl"`
		ROI FlexFloat `json:"roi"`
	}
	if err := json.Unmarshal(pair[1], &body); err != nil {
		return err
	}
	w.PnL = float64(body.PnL)
	w.ROI = float64(body.ROI)
	return nil
}

// LeaderboardRow is a raw leaderboard entry.
type LeaderboardRow struct {
	EthAddress         string              `json:"ethAddress"`
	AccountValue       *FlexFloat          `json:"accountValue"`
	WindowPerformances []WindowPerformance `json:"windowPerformances"`
}

// Wallet is a parsed and normalized leaderboard entry.
type Wallet struct {
	Address      string
	AccountValue *float64
	MonthPnL     float64
	MonthROI     float64
}

// LeverageField tolerates both the structured {"value": n} form and a
// bare scalar.
type LeverageField struct {
	Value *float64
}

func (l *LeverageField) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		l.Value = nil
		return nil
	}
	if data[0] == '{' {
		var obj struct {
			Value FlexFloat `json:"value"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		v := float64(obj.Value)
		l.Value = &v
		return nil
	}
	var f FlexFloat
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	v := float64(f)
	l.Value = &v
	return nil
}

// Position is one asset position inside a clearinghouse state response.
type Position struct {
	Coin          string        `json:"coin"`
	Szi           FlexFloat     `json:"szi"`
	EntryPx       *FlexFloat    `json:"entryPx"`
	LiquidationPx *FlexFloat    `json:"liquidationPx"`
	Leverage      LeverageField `json:"leverage"`
	MarginUsed    *FlexFloat    `json:"marginUsed"`
}

// AssetPosition wraps a Position the way the API nests it.
type AssetPosition struct {
	Position Position `json:"position"`
}

// ClearinghouseState is a parsed clearinghouseState response.
type ClearinghouseState struct {
	AssetPositions []AssetPosition `json:"assetPositions"`
}

// AssetPositionView is the flattened per-asset view the ingester writes.
// A wallet with no position in the asset gets an explicit zero size.
type AssetPositionView struct {
	Szi        float64
	EntryPx    *float64
	LiqPx      *float64
	Leverage   *float64
	MarginUsed *float64
}
