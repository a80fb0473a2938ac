package strategy

import (
	"RegimeSentinel/internal/calculator"
	"RegimeSentinel/internal/model"
)

// VAMS states.
const (
	StateBear    = -2
	StateNeutral = 0
	StateBull    = 2
)

// AssetScore is the VAMS receipt for one proxy asset.
type AssetScore struct {
	Symbol   string
	Momentum float64
	Vol      float64
	Score    float64
	State    int
	Notes    []string
}

// ScoreAsset computes momentum / volatility for one series. Insufficient
// windows degrade to zero and are noted.
func ScoreAsset(p VAMSParams, s model.Series) AssetScore {
	a := AssetScore{Symbol: s.Symbol}
	short := calculator.TotalReturn(s, p.ShortWindow)
	long := calculator.TotalReturn(s, p.LongWindow)
	vol := calculator.AnnualizedVol(s, p.VolWindow)
	for _, r := range []calculator.Result{short, long, vol} {
		if !r.OK {
			a.Notes = append(a.Notes, r.Reason)
		}
	}

	a.Momentum = p.ShortWeight*short.Or(0) + p.LongWeight*long.Or(0)
	a.Vol = vol.Or(0)
	if a.Vol != 0 {
		a.Score = a.Momentum / a.Vol
	}
	a.State = State(p, a.Score)
	return a
}

// State maps a score onto {-2, 0, 2}.
func State(p VAMSParams, score float64) int {
	switch {
	case score >= p.BullScore:
		return StateBull
	case score <= p.BearScore:
		return StateBear
	default:
		return StateNeutral
	}
}

// Scale is the exposure multiplier of a state.
func Scale(p VAMSParams, state int) float64 {
	switch state {
	case StateBull:
		return p.ScaleBull
	case StateBear:
		return p.ScaleBear
	default:
		return p.ScaleNeutral
	}
}

// ScoreAssets runs VAMS for the three proxies.
func ScoreAssets(p Params, data model.MarketData) (model.AssetStates, []AssetScore) {
	stocks := ScoreAsset(p.VAMS, data.Series(p.Assets.Stocks))
	gold := ScoreAsset(p.VAMS, data.Series(p.Assets.Gold))
	btc := ScoreAsset(p.VAMS, data.Series(p.Assets.Bitcoin))
	states := model.AssetStates{Stocks: stocks.State, Gold: gold.State, Bitcoin: btc.State}
	return states, []AssetScore{stocks, gold, btc}
}
