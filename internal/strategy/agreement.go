package strategy

import (
	"math"

	"RegimeSentinel/internal/model"
)

// Agreement measures how one-sided the core votes are, in [0, 1].
func Agreement(votes []model.SignalVote) float64 {
	if len(votes) == 0 {
		return 0
	}
	risk := AxisScore(votes, model.AxisRisk)
	infl := AxisScore(votes, model.AxisInflation)
	return (math.Abs(float64(risk)) + math.Abs(float64(infl))) / float64(len(votes))
}

// Trend compares today's agreement with the previous snapshot's.
func Trend(threshold, current float64, previous *model.RegimeSnapshot) model.AgreementTrend {
	if previous == nil {
		return model.AgreementSame
	}
	delta := current - previous.Agreement
	switch {
	case delta >= threshold:
		return model.AgreementCleaner
	case delta <= -threshold:
		return model.AgreementMixed
	}
	return model.AgreementSame
}
