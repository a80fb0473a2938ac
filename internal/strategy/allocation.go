package strategy

import (
	"fmt"
	"math"

	"RegimeSentinel/internal/model"
)

// Targets returns the baseline weights of a risk regime.
func Targets(p AllocationParams, risk model.RiskRegime) model.Weights {
	if risk == model.RiskOn {
		return model.Weights{Stocks: p.StocksRiskOn, Gold: p.Gold, Bitcoin: p.BitcoinRiskOn}
	}
	return model.Weights{Stocks: p.StocksRiskOff, Gold: p.Gold, Bitcoin: p.BitcoinRiskOff}
}

// Allocate turns targets and VAMS states into actual weights plus cash.
// It never fails; tolerance problems are reported as warnings.
func Allocate(p Params, risk model.RiskRegime, states model.AssetStates) (model.Allocation, []string) {
	a := model.Allocation{
		Target: Targets(p.Allocation, risk),
		Scale: model.Weights{
			Stocks:  Scale(p.VAMS, states.Stocks),
			Gold:    Scale(p.VAMS, states.Gold),
			Bitcoin: Scale(p.VAMS, states.Bitcoin),
		},
	}
	a.Actual = model.Weights{
		Stocks:  a.Target.Stocks * a.Scale.Stocks,
		Gold:    a.Target.Gold * a.Scale.Gold,
		Bitcoin: a.Target.Bitcoin * a.Scale.Bitcoin,
	}
	a.Cash = clamp01(1 - a.Actual.Sum())

	var warnings []string
	gap := a.Actual.Sum() + a.Cash - 1
	if math.Abs(gap) <= p.Allocation.Tolerance {
		return a, nil
	}

	if math.Abs(gap) < p.Allocation.SmallGap && a.Cash-gap >= 0 {
		a.Cash -= gap
		warnings = append(warnings, fmt.Sprintf("absorbed residual %.6f into cash", gap))
	} else {
		total := a.Actual.Sum() + a.Cash
		a.Actual = model.Weights{
			Stocks:  a.Actual.Stocks / total,
			Gold:    a.Actual.Gold / total,
			Bitcoin: a.Actual.Bitcoin / total,
		}
		a.Cash = clamp01(1 - a.Actual.Sum())
		warnings = append(warnings, fmt.Sprintf("rescaled actual weights by 1/%.6f", total))
	}

	if residual := a.Actual.Sum() + a.Cash - 1; math.Abs(residual) > p.Allocation.Tolerance {
		warnings = append(warnings, fmt.Sprintf("allocation sum off by %.6f after renormalization", residual))
	}
	return a, warnings
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
