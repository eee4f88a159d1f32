package exchange

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexFloatUnmarshal(t *testing.T) {
	var f FlexFloat
	require.NoError(t, json.Unmarshal([]byte(`"123.45"`), &f))
	assert.Equal(t, FlexFloat(123.45), f)

	require.NoError(t, json.Unmarshal([]byte(`678.9`), &f))
	assert.Equal(t, FlexFloat(678.9), f)

	require.NoError(t, json.Unmarshal([]byte(`"-0.001"`), &f))
	assert.Equal(t, FlexFloat(-0.001), f)

	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &f))
}

func TestWindowPerformanceUnmarshal(t *testing.T) {
	data := []byte(`["month", {"pnl": "12345.6", "roi": 0.42}]`)

	var wp WindowPerformance
	require.NoError(t, json.Unmarshal(data, &wp))
	assert.Equal(t, "month", wp.Window)
	assert.Equal(t, 12345.6, wp.PnL)
	assert.Equal(t, 0.42, wp.ROI)

	assert.Error(t, json.Unmarshal([]byte(`["month"]`), &wp))
	assert.Error(t, json.Unmarshal([]byte(`{"window": "month"}`), &wp))
}

func TestLeverageFieldUnmarshal(t *testing.T) {
	var l LeverageField
	require.NoError(t, json.Unmarshal([]byte(`{"type": "cross", "value": 20}`), &l))
	require.NotNil(t, l.Value)
	assert.Equal(t, 20.0, *l.Value)

	require.NoError(t, json.Unmarshal([]byte(`5`), &l))
	require.NotNil(t, l.Value)
	assert.Equal(t, 5.0, *l.Value)

	require.NoError(t, json.Unmarshal([]byte(`null`), &l))
	assert.Nil(t, l.Value)
}

func TestParseLeaderboardRow(t *testing.T) {
	av := FlexFloat(1000000)
	row := LeaderboardRow{
		EthAddress:   "0xabc",
		AccountValue: &av,
		WindowPerformances: []WindowPerformance{
			{Window: "day", PnL: 100, ROI: 0.01},
			{Window: "month", PnL: 50000, ROI: 0.25},
		},
	}

	w := ParseLeaderboardRow(row)
	require.NotNil(t, w)
	assert.Equal(t, "0xabc", w.Address)
	assert.Equal(t, 50000.0, w.MonthPnL)
	assert.Equal(t, 0.25, w.MonthROI)
	require.NotNil(t, w.AccountValue)
	assert.Equal(t, 1000000.0, *w.AccountValue)

	// No address drops the row.
	assert.Nil(t, ParseLeaderboardRow(LeaderboardRow{}))

	// No month window defaults PnL and ROI to zero; the row survives.
	w = ParseLeaderboardRow(LeaderboardRow{
		EthAddress:         "0xdef",
		WindowPerformances: []WindowPerformance{{Window: "week", PnL: 9}},
	})
	require.NotNil(t, w)
	assert.Equal(t, 0.0, w.MonthPnL)
	assert.Nil(t, w.AccountValue)
}

func TestParseLeaderboardSortsByMonthPnL(t *testing.T) {
	rows := []LeaderboardRow{
		{EthAddress: "0xlow", WindowPerformances: []WindowPerformance{{Window: "month", PnL: 10}}},
		{EthAddress: ""}, // dropped
		{EthAddress: "0xhigh", WindowPerformances: []WindowPerformance{{Window: "month", PnL: 9000}}},
		{EthAddress: "0xmid", WindowPerformances: []WindowPerformance{{Window: "month", PnL: 500}}},
	}

	wallets := ParseLeaderboard(rows)
	require.Len(t, wallets, 3)
	assert.Equal(t, "0xhigh", wallets[0].Address)
	assert.Equal(t, "0xmid", wallets[1].Address)
	assert.Equal(t, "0xlow", wallets[2].Address)
}

func TestPositionForAsset(t *testing.T) {
	entry := FlexFloat(42000)
	margin := FlexFloat(1500)
	lev := 10.0
	state := &ClearinghouseState{
		AssetPositions: []AssetPosition{
			{Position: Position{Coin: "ETH", Szi: FlexFloat(-3)}},
			{Position: Position{
				Coin:       "BTC",
				Szi:        FlexFloat(0.5),
				EntryPx:    &entry,
				MarginUsed: &margin,
				Leverage:   LeverageField{Value: &lev},
			}},
		},
	}

	view := PositionForAsset(state, "BTC")
	assert.Equal(t, 0.5, view.Szi)
	require.NotNil(t, view.EntryPx)
	assert.Equal(t, 42000.0, *view.EntryPx)
	require.NotNil(t, view.Leverage)
	assert.Equal(t, 10.0, *view.Leverage)
	assert.Nil(t, view.LiqPx)

	// No position in the asset yields an explicit zero view.
	view = PositionForAsset(state, "HYPE")
	assert.Equal(t, 0.0, view.Szi)
	assert.Nil(t, view.EntryPx)

	// Nil state also yields the zero view.
	assert.Equal(t, AssetPositionView{}, PositionForAsset(nil, "BTC"))
}

func TestClearinghouseStateDecode(t *testing.T) {
	body := []byte(`{
		"assetPositions": [
			{"position": {"coin": "HYPE", "szi": "1500.5", "entryPx": "25.3",
				"liquidationPx": null, "leverage": {"type": "cross", "value": 3},
				"marginUsed": "12000"}}
		],
		"marginSummary": {"accountValue": "99999"}
	}`)

	var state ClearinghouseState
	require.NoError(t, json.Unmarshal(body, &state))
	require.Len(t, state.AssetPositions, 1)

	p := state.AssetPositions[0].Position
	assert.Equal(t, "HYPE", p.Coin)
	assert.Equal(t, FlexFloat(1500.5), p.Szi)
	require.NotNil(t, p.EntryPx)
	assert.Equal(t, FlexFloat(25.3), *p.EntryPx)
	assert.Nil(t, p.LiquidationPx)
	require.NotNil(t, p.Leverage.Value)
	assert.Equal(t, 3.0, *p.Leverage.Value)
}
