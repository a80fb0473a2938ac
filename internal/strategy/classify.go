package strategy

import (
	"RegimeSentinel/internal/calculator"
	"RegimeSentinel/internal/model"
)

// TieBreak is the result of resolving zero axis scores.
type TieBreak struct {
	Risk     float64
	Infl     float64
	RiskUsed bool
	InflUsed bool
}

// ResolveTies replaces an axis score of exactly zero with the sign of the
// axis reference series over the short window. Both axes are resolved in one
// pass, after satellites have been folded into the inflation total.
func ResolveTies(p Params, data model.MarketData, risk, infl float64) TieBreak {
	tb := TieBreak{Risk: risk, Infl: infl}
	if risk == 0 {
		tb.Risk = referenceSign(data.Series(p.RiskTieBreakSymbol), p.TieBreakWindow)
		tb.RiskUsed = true
	}
	if infl == 0 {
		tb.Infl = referenceSign(data.Series(p.InflTieBreakSymbol), p.TieBreakWindow)
		tb.InflUsed = true
	}
	return tb
}

// referenceSign is +1 when TR_n >= 0 and -1 otherwise. Missing data counts as 0.
func referenceSign(s model.Series, n int) float64 {
	if calculator.TotalReturn(s, n).Or(0) >= 0 {
		return 1
	}
	return -1
}

// ClassifyRegime crosses the axis signs into a quadrant.
func ClassifyRegime(risk, infl float64) model.Regime {
	switch {
	case risk > 0 && infl > 0:
		return model.Reflation
	case risk > 0:
		return model.Goldilocks
	case infl > 0:
		return model.Inflation
	default:
		return model.Deflation
	}
}

// StressCheck holds the two inputs of the stress override.
type StressCheck struct {
	VolIndex  calculator.Result
	CreditTR  calculator.Result
	Triggered bool
}

// EvaluateStress reports whether the volatility index level and the credit
// spread move both breach their limits. Missing inputs never trigger it.
func EvaluateStress(p Params, data model.MarketData) StressCheck {
	sc := StressCheck{
		VolIndex: calculator.LastClose(data.Series(p.VolIndexSymbol)),
		CreditTR: calculator.Insufficient("credit signal %q not configured", p.CreditKey),
	}
	for _, spec := range p.Risk {
		if spec.Key == p.CreditKey {
			sc.CreditTR = SignalReturn(spec, data)
			break
		}
	}
	sc.Triggered = sc.VolIndex.OK && sc.CreditTR.OK &&
		sc.VolIndex.Value > p.Stress.VolIndexLevel &&
		sc.CreditTR.Value <= p.Stress.CreditTR
	return sc
}

// Classification is the regime outcome before allocation.
type Classification struct {
	Regime         model.Regime
	RiskRegime     model.RiskRegime
	TieBreak       TieBreak
	StressOverride bool
}

// Classify resolves ties, crosses the axes and applies the stress override.
// A stressed market is forced to RISK OFF and the quadrant follows the
// inflation sign.
func Classify(p Params, data model.MarketData, risk, infl float64) Classification {
	tb := ResolveTies(p, data, risk, infl)
	c := Classification{TieBreak: tb, Regime: ClassifyRegime(tb.Risk, tb.Infl)}
	c.RiskRegime = model.RiskOf(c.Regime)

	if EvaluateStress(p, data).Triggered {
		c.StressOverride = true
		c.RiskRegime = model.RiskOff
		c.Regime = ClassifyRegime(-1, tb.Infl)
	}
	return c
}
