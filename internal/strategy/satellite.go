package strategy

import (
	"fmt"
	"math"
	"time"

	"RegimeSentinel/internal/model"
)

// SatelliteLookup returns the newest known observation of a series.
type SatelliteLookup func(seriesID string) (model.SatelliteObservation, bool)

// SatelliteFold is the satellite contribution to the inflation axis.
type SatelliteFold struct {
	Score         float64
	Contributions []model.SatelliteContribution
}

// FoldSatellites resolves each satellite through its fallback chain, drops
// expired ones, decays the rest by age and clamps the sum to [-1, 1].
func FoldSatellites(specs []SatelliteSpec, lookup SatelliteLookup, asOf time.Time) SatelliteFold {
	var fold SatelliteFold
	var sum float64
	for _, spec := range specs {
		c := foldOne(spec, lookup, asOf)
		sum += c.EffectiveVote
		fold.Contributions = append(fold.Contributions, c)
	}
	fold.Score = math.Max(-1, math.Min(1, sum))
	return fold
}

func foldOne(spec SatelliteSpec, lookup SatelliteLookup, asOf time.Time) model.SatelliteContribution {
	c := model.SatelliteContribution{Name: spec.Name}
	obs, ok := resolve(spec, lookup)
	if !ok {
		c.Note = "no series in chain resolved"
		return c
	}
	obs.AgeDays = AgeDays(asOf, obs.Date)
	c.Resolved = &obs

	if obs.AgeDays > spec.TTLDays {
		c.Expired = true
		c.Note = fmt.Sprintf("age %dd exceeds ttl %dd", obs.AgeDays, spec.TTLDays)
		return c
	}

	c.RawVote = satelliteVote(spec, obs.Value)
	c.EffectiveVote = float64(c.RawVote) * spec.Weight * Decay(obs.AgeDays, spec.HalfLifeDays)
	return c
}

func resolve(spec SatelliteSpec, lookup SatelliteLookup) (model.SatelliteObservation, bool) {
	if lookup == nil {
		return model.SatelliteObservation{}, false
	}
	for _, id := range spec.Chain() {
		if id == "" {
			continue
		}
		if obs, ok := lookup(id); ok {
			obs.SeriesID = id
			return obs, true
		}
	}
	return model.SatelliteObservation{}, false
}

func satelliteVote(spec SatelliteSpec, value float64) int {
	switch {
	case value >= spec.On:
		return 1
	case value <= spec.Off:
		return -1
	}
	return 0
}

// Decay is 0.5^(age/halfLife). A non-positive half-life disables decay.
func Decay(ageDays int, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(ageDays)/halfLifeDays)
}

// AgeDays counts whole calendar days from obs to asOf, never negative.
func AgeDays(asOf, obs time.Time) int {
	d := int(model.Day(asOf).Sub(model.Day(obs)).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
