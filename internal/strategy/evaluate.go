package strategy

import (
	"time"

	"RegimeSentinel/internal/model"
)

// Input is everything one daily evaluation consumes.
type Input struct {
	AsOf       time.Time
	Data       model.MarketData
	Satellites SatelliteLookup
	// Prior holds earlier snapshots in ascending date order.
	Prior []model.RegimeSnapshot
}

// Evaluation is a computed snapshot together with its receipts.
type Evaluation struct {
	Snapshot   model.RegimeSnapshot
	Votes      []model.SignalVote
	Satellites []model.SatelliteContribution
	Assets     []AssetScore
	Stress     StressCheck
	Warnings   []string
}

// Evaluate runs voting, satellites, classification, VAMS, allocation and
// flip-watch for one trading day. It is pure: the same input always yields
// the same evaluation.
func Evaluate(p Params, in Input) Evaluation {
	data := make(model.MarketData, len(in.Data))
	for sym, s := range in.Data {
		data[sym] = s.Sorted()
	}

	votes := CastVotes(p, data)
	riskCore := AxisScore(votes, model.AxisRisk)
	inflCore := AxisScore(votes, model.AxisInflation)
	sats := FoldSatellites(p.Satellites, in.Satellites, in.AsOf)

	cls := Classify(p, data, float64(riskCore), float64(inflCore)+sats.Score)
	states, assets := ScoreAssets(p, data)
	alloc, warnings := Allocate(p, cls.RiskRegime, states)

	var prev *model.RegimeSnapshot
	if n := len(in.Prior); n > 0 {
		prev = &in.Prior[n-1]
	}

	snap := model.RegimeSnapshot{
		AsOf:           model.Day(in.AsOf),
		Regime:         cls.Regime,
		RiskRegime:     cls.RiskRegime,
		RiskScore:      cls.TieBreak.Risk,
		InflCoreScore:  float64(inflCore),
		InflSatScore:   sats.Score,
		InflScore:      cls.TieBreak.Infl,
		RiskTieBreak:   cls.TieBreak.RiskUsed,
		InflTieBreak:   cls.TieBreak.InflUsed,
		StressOverride: cls.StressOverride,
		VAMS:           states,
		Allocation:     alloc,
		Agreement:      Agreement(votes),
		Source:         model.SourceComputed,
	}
	snap.AgreementTrend = Trend(p.AgreementThreshold, snap.Agreement, prev)

	flip := FlipInput{
		Current:       snap.Regime,
		Risk:          snap.RiskScore,
		Infl:          snap.InflScore,
		DaysSinceFlip: DaysSinceLastFlip(in.Prior),
	}
	if prev != nil {
		flip.Previous = prev.Regime
	}
	snap.FlipWatch = EvaluateFlip(p.Flip, flip)

	return Evaluation{
		Snapshot:   snap,
		Votes:      votes,
		Satellites: sats.Contributions,
		Assets:     assets,
		Stress:     EvaluateStress(p, data),
		Warnings:   warnings,
	}
}
