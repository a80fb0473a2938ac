package strategy

import (
	"math"

	"RegimeSentinel/internal/model"
)

// NoPriorFlip is returned by DaysSinceLastFlip when history holds no flip.
const NoPriorFlip = -1

// FlipInput is what the guard needs for one day.
type FlipInput struct {
	Current  model.Regime
	Previous model.Regime // empty when there is no previous snapshot
	Risk     float64
	Infl     float64
	// DaysSinceFlip counts trading days since the last detected flip, or NoPriorFlip.
	DaysSinceFlip int
}

// EvaluateFlip computes the flip-watch status from scratch.
func EvaluateFlip(p FlipParams, in FlipInput) model.FlipWatchStatus {
	if in.Previous == "" || in.Current == in.Previous {
		return model.FlipNone
	}
	if math.Max(math.Abs(in.Risk), math.Abs(in.Infl)) >= p.StrongScore {
		return model.FlipStrong
	}
	if in.DaysSinceFlip != NoPriorFlip && in.DaysSinceFlip <= p.ConfirmationDays {
		return model.FlipPendingConfirmation
	}
	return model.FlipBrewing
}

// ShouldApplyFlip reports whether a status is safe to act on immediately.
func ShouldApplyFlip(status model.FlipWatchStatus) bool {
	return status == model.FlipNone || status == model.FlipStrong
}

// DaysSinceLastFlip walks prior snapshots (ascending) back to the newest one
// whose regime differs from its predecessor and returns how many trading days
// separate it from the day being computed.
func DaysSinceLastFlip(prior []model.RegimeSnapshot) int {
	for i := len(prior) - 1; i > 0; i-- {
		if prior[i].Regime != prior[i-1].Regime {
			return len(prior) - i
		}
	}
	return NoPriorFlip
}
