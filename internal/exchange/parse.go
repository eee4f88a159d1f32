package exchange

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// ParseLeaderboardRow normalizes one leaderboard row. Rows without an
// address are dropped (nil return). A missing month window defaults the
// PnL and ROI to zero; the account value stays nil when absent.
func ParseLeaderboardRow(row LeaderboardRow) *Wallet {
	if row.EthAddress == "" {
		return nil
	}

	w := &Wallet{Address: row.EthAddress}

	if row.AccountValue != nil {
		v := float64(*row.AccountValue)
		w.AccountValue = &v
	}

	for _, wp := range row.WindowPerformances {
		if wp.Window == "month" {
			w.MonthPnL = wp.PnL
			w.MonthROI = wp.ROI
			break
		}
	}

	return w
}

// ParseLeaderboard normalizes all rows, dropping invalid ones, and
// returns wallets sorted by 30-day PnL descending.
func ParseLeaderboard(rows []LeaderboardRow) []Wallet {
	wallets := make([]Wallet, 0, len(rows))
	dropped := 0

	for _, row := range rows {
		w := ParseLeaderboardRow(row)
		if w == nil {
			dropped++
			continue
		}
		wallets = append(wallets, *w)
	}

	if dropped > 0 {
		log.Warn().Int("dropped", dropped).Int("kept", len(wallets)).
			Msg("leaderboard rows without address dropped")
	}

	sort.SliceStable(wallets, func(i, j int) bool {
		return wallets[i].MonthPnL > wallets[j].MonthPnL
	})

	return wallets
}

// PositionForAsset extracts the flattened position view for one asset
// from a clearinghouse state. The first position whose coin matches
// wins; no match yields an explicit zero-size record so a successful
// wallet fetch always produces a row per asset.
func PositionForAsset(state *ClearinghouseState, asset string) AssetPositionView {
	if state == nil {
		return AssetPositionView{}
	}

	for _, ap := range state.AssetPositions {
		if ap.Position.Coin != asset {
			continue
		}
		p := ap.Position
		view := AssetPositionView{
			Szi:      float64(p.Szi),
			Leverage: p.Leverage.Value,
		}
		if p.EntryPx != nil {
			v := float64(*p.EntryPx)
			view.EntryPx = &v
		}
		if p.LiquidationPx != nil {
			v := float64(*p.LiquidationPx)
			view.LiqPx = &v
		}
		if p.MarginUsed != nil {
			v := float64(*p.MarginUsed)
			view.MarginUsed = &v
		}
		return view
	}

	return AssetPositionView{}
}
