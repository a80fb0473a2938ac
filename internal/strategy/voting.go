package strategy

import (
	"fmt"

	"RegimeSentinel/internal/calculator"
	"RegimeSentinel/internal/model"
)

// CastVotes evaluates every risk and inflation signal against the market data.
// Risk receipts come first, in configuration order.
func CastVotes(p Params, data model.MarketData) []model.SignalVote {
	votes := make([]model.SignalVote, 0, len(p.Risk)+len(p.Inflation))
	for _, spec := range p.Risk {
		votes = append(votes, castVote(model.AxisRisk, spec, data))
	}
	for _, spec := range p.Inflation {
		votes = append(votes, castVote(model.AxisInflation, spec, data))
	}
	return votes
}

// SignalReturn computes the windowed return a signal's thresholds apply to.
func SignalReturn(spec SignalSpec, data model.MarketData) calculator.Result {
	if spec.Denominator != "" {
		return calculator.RatioReturn(data.Series(spec.Symbol), data.Series(spec.Denominator), spec.Window)
	}
	return calculator.TotalReturn(data.Series(spec.Symbol), spec.Window)
}

func castVote(axis model.Axis, spec SignalSpec, data model.MarketData) model.SignalVote {
	v := model.SignalVote{
		Axis:      axis,
		Key:       spec.Key,
		Label:     spec.Label,
		Threshold: describeThreshold(spec),
	}

	r := SignalReturn(spec, data)
	if !r.OK {
		v.Direction = model.DirectionNeutral
		v.Note = r.Reason
		return v
	}
	v.Value = r.Value
	v.Sufficient = true

	polarity := spec.Polarity
	if polarity == 0 {
		polarity = 1
	}
	v.Vote = rawDirection(spec, r.Value) * polarity
	v.Direction = directionLabel(axis, v.Vote)
	return v
}

// rawDirection applies the threshold pair to a return.
func rawDirection(spec SignalSpec, value float64) int {
	if spec.Inverted {
		switch {
		case value <= -spec.On:
			return 1
		case value >= spec.Off:
			return -1
		}
		return 0
	}
	switch {
	case value >= spec.On:
		return 1
	case value <= spec.Off:
		return -1
	}
	return 0
}

func directionLabel(axis model.Axis, vote int) string {
	switch {
	case vote > 0 && axis == model.AxisRisk:
		return model.DirectionRiskOn
	case vote < 0 && axis == model.AxisRisk:
		return model.DirectionRiskOff
	case vote > 0:
		return model.DirectionInflationary
	case vote < 0:
		return model.DirectionDisinflationary
	}
	return model.DirectionNeutral
}

func describeThreshold(spec SignalSpec) string {
	name := spec.Symbol
	if spec.Denominator != "" {
		name = spec.Symbol + "/" + spec.Denominator
	}
	if spec.Inverted {
		return fmt.Sprintf("TR_%d(%s) <= %+.3f / >= %+.3f", spec.Window, name, -spec.On, spec.Off)
	}
	return fmt.Sprintf("TR_%d(%s) >= %+.3f / <= %+.3f", spec.Window, name, spec.On, spec.Off)
}

// AxisScore sums the votes cast on one axis.
func AxisScore(votes []model.SignalVote, axis model.Axis) int {
	score := 0
	for _, v := range votes {
		if v.Axis == axis {
			score += v.Vote
		}
	}
	return score
}

// Coverage counts the sufficient votes on one axis.
func Coverage(votes []model.SignalVote, axis model.Axis) int {
	n := 0
	for _, v := range votes {
		if v.Axis == axis && v.Sufficient {
			n++
		}
	}
	return n
}

// Covered reports whether both axes reach MinCoverage sufficient votes.
func (p Params) Covered(votes []model.SignalVote) bool {
	return Coverage(votes, model.AxisRisk) >= p.MinCoverage &&
		Coverage(votes, model.AxisInflation) >= p.MinCoverage
}
