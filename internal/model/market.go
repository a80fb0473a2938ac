package model

import (
	"sort"
	"time"
)

// Observation is a single daily close for one symbol.
type Observation struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Close  float64   `json:"close"`
}

// Series holds the ordered observations of one symbol.
type Series struct {
	Symbol       string
	Observations []Observation
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Observations) }

// Closes extracts close prices in series order.
func (s Series) Closes() []float64 {
	closes := make([]float64, len(s.Observations))
	for i, o := range s.Observations {
		closes[i] = o.Close
	}
	return closes
}

// LastDate returns the date of the newest observation, or the zero time.
func (s Series) LastDate() time.Time {
	if len(s.Observations) == 0 {
		return time.Time{}
	}
	return s.Observations[len(s.Observations)-1].Date
}

// Sorted returns a copy ordered by date ascending with one observation per day.
// When a day appears twice the later element in the input wins.
func (s Series) Sorted() Series {
	byDay := make(map[time.Time]Observation, len(s.Observations))
	for _, o := range s.Observations {
		o.Date = Day(o.Date)
		byDay[o.Date] = o
	}
	out := make([]Observation, 0, len(byDay))
	for _, o := range byDay {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return Series{Symbol: s.Symbol, Observations: out}
}

// MarketData is the per-symbol input of one computation.
type MarketData map[string]Series

// Series returns the series for symbol, empty if absent.
func (m MarketData) Series(symbol string) Series {
	if s, ok := m[symbol]; ok {
		return s
	}
	return Series{Symbol: symbol}
}

// ProviderDiagnostic reports how one symbol's fetch went.
type ProviderDiagnostic struct {
	Symbol           string    `json:"symbol"`
	Provider         string    `json:"provider"`
	LastDate         time.Time `json:"last_date"`
	ObservationCount int       `json:"observation_count"`
	OK               bool      `json:"ok"`
	Note             string    `json:"note,omitempty"`
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DateLayout is the wire format for trading dates.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD trading date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
