package calculator

import (
	"time"

	"RegimeSentinel/internal/model"
)

// TotalReturn computes (last-first)/first over the last n observations of the series.
// The series must already be sorted ascending by date.
func TotalReturn(s model.Series, n int) Result {
	if n < 2 {
		return Insufficient("window %d too short", n)
	}
	if s.Len() < n {
		return Insufficient("%s: %d observations, need %d", s.Symbol, s.Len(), n)
	}
	closes := extractCloses(s)
	first := closes[len(closes)-n]
	last := closes[len(closes)-1]
	if first == 0 {
		return Insufficient("%s: zero close at window start", s.Symbol)
	}
	return Available((last - first) / first)
}

// RatioReturn aligns a and b on common dates and computes the total return of a/b
// over the last n common observations.
func RatioReturn(a, b model.Series, n int) Result {
	if n < 2 {
		return Insufficient("window %d too short", n)
	}
	denom := make(map[time.Time]float64, b.Len())
	for _, o := range b.Observations {
		denom[model.Day(o.Date)] = o.Close
	}

	ratio := make([]float64, 0, a.Len())
	for _, o := range a.Observations {
		d, ok := denom[model.Day(o.Date)]
		if !ok {
			continue
		}
		if d == 0 {
			return Insufficient("%s/%s: zero denominator on %s", a.Symbol, b.Symbol, o.Date.Format(model.DateLayout))
		}
		ratio = append(ratio, o.Close/d)
	}
	if len(ratio) < n {
		return Insufficient("%s/%s: %d common dates, need %d", a.Symbol, b.Symbol, len(ratio), n)
	}
	first := ratio[len(ratio)-n]
	last := ratio[len(ratio)-1]
	if first == 0 {
		return Insufficient("%s/%s: zero ratio at window start", a.Symbol, b.Symbol)
	}
	return Available((last - first) / first)
}

// LastClose returns the newest close of the series.
func LastClose(s model.Series) Result {
	if s.Len() == 0 {
		return Insufficient("%s: no observations", s.Symbol)
	}
	return Available(s.Observations[s.Len()-1].Close)
}

func extractCloses(s model.Series) []float64 {
	return s.Closes()
}
