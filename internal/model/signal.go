package model

import "time"

// Axis identifies which regime axis a signal votes on.
type Axis string

const (
	AxisRisk      Axis = "risk"
	AxisInflation Axis = "inflation"
)

// Direction labels used in vote receipts.
const (
	DirectionRiskOn          = "risk-on"
	DirectionRiskOff         = "risk-off"
	DirectionInflationary    = "inflationary"
	DirectionDisinflationary = "disinflationary"
	DirectionNeutral         = "neutral"
)

// SignalVote is the receipt of one threshold signal.
type SignalVote struct {
	Axis       Axis    `json:"axis"`
	Key        string  `json:"key"`
	Label      string  `json:"label"`
	Direction  string  `json:"direction"`
	Vote       int     `json:"vote"`
	Value      float64 `json:"value"`
	Threshold  string  `json:"threshold"`
	Sufficient bool    `json:"sufficient"`
	Note       string  `json:"note,omitempty"`
}

// SatelliteObservation is the resolved value of a slow external series.
type SatelliteObservation struct {
	SeriesID string    `json:"series_id"`
	Value    float64   `json:"value"`
	Date     time.Time `json:"date"`
	AgeDays  int       `json:"age_days"`
}

// SatelliteContribution records how one satellite fed the inflation axis.
type SatelliteContribution struct {
	Name          string                `json:"name"`
	Resolved      *SatelliteObservation `json:"resolved,omitempty"`
	RawVote       int                   `json:"raw_vote"`
	EffectiveVote float64               `json:"effective_vote"`
	Expired       bool                  `json:"expired"`
	Note          string                `json:"note,omitempty"`
}
