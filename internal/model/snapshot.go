package model

import "time"

// Regime is one of the four macro quadrants.
type Regime string

const (
	Goldilocks Regime = "GOLDILOCKS"
	Reflation  Regime = "REFLATION"
	Inflation  Regime = "INFLATION"
	Deflation  Regime = "DEFLATION"
)

// Valid reports whether r is a known quadrant.
func (r Regime) Valid() bool {
	switch r {
	case Goldilocks, Reflation, Inflation, Deflation:
		return true
	}
	return false
}

// RiskRegime is the risk half of the quadrant.
type RiskRegime string

const (
	RiskOn  RiskRegime = "RISK ON"
	RiskOff RiskRegime = "RISK OFF"
)

// RiskOf derives the risk regime implied by a quadrant.
func RiskOf(r Regime) RiskRegime {
	if r == Goldilocks || r == Reflation {
		return RiskOn
	}
	return RiskOff
}

// FlipWatchStatus is the persistence guard status for regime changes.
type FlipWatchStatus string

const (
	FlipNone                FlipWatchStatus = "NONE"
	FlipBrewing             FlipWatchStatus = "BREWING"
	FlipPendingConfirmation FlipWatchStatus = "PENDING_CONFIRMATION"
	FlipStrong              FlipWatchStatus = "STRONG_FLIP"
)

// AgreementTrend compares today's vote agreement with the previous day.
type AgreementTrend string

const (
	AgreementCleaner AgreementTrend = "CLEANER"
	AgreementMixed   AgreementTrend = "MIXED"
	AgreementSame    AgreementTrend = "SAME"
)

// Source tells whether a snapshot was replayed from the seed or computed live.
type Source string

const (
	SourceReplay   Source = "replay"
	SourceComputed Source = "computed"
)

// Stale reason codes.
const (
	StaleNoMarketData         = "no_market_data"
	StaleAnchorUnavailable    = "anchor_unavailable"
	StaleProviderTimeout      = "provider_timeout"
	StaleInsufficientCoverage = "insufficient_coverage"
)

// AssetStates holds the VAMS state of each proxy asset.
type AssetStates struct {
	Stocks  int `json:"stocks"`
	Gold    int `json:"gold"`
	Bitcoin int `json:"bitcoin"`
}

// Weights is one weight per sleeve.
type Weights struct {
	Stocks  float64 `json:"stocks"`
	Gold    float64 `json:"gold"`
	Bitcoin float64 `json:"bitcoin"`
}

// Sum adds up the three sleeves.
func (w Weights) Sum() float64 { return w.Stocks + w.Gold + w.Bitcoin }

// Allocation is the target/scale/actual block of a snapshot.
type Allocation struct {
	Target Weights `json:"target"`
	Scale  Weights `json:"scale"`
	Actual Weights `json:"actual"`
	Cash   float64 `json:"cash"`
}

// RegimeSnapshot is the durable record of one trading day.
type RegimeSnapshot struct {
	AsOf  time.Time `json:"as_of"`
	RunAt time.Time `json:"run_at"`

	Regime     Regime     `json:"regime"`
	RiskRegime RiskRegime `json:"risk_regime"`

	RiskScore      float64 `json:"risk_score"`
	InflCoreScore  float64 `json:"infl_core_score"`
	InflSatScore   float64 `json:"infl_sat_score"`
	InflScore      float64 `json:"infl_score"`
	RiskTieBreak   bool    `json:"risk_tiebreak"`
	InflTieBreak   bool    `json:"infl_tiebreak"`
	StressOverride bool    `json:"stress_override"`

	VAMS       AssetStates `json:"vams"`
	Allocation Allocation  `json:"allocation"`

	FlipWatch      FlipWatchStatus `json:"flip_watch"`
	Agreement      float64         `json:"agreement"`
	AgreementTrend AgreementTrend  `json:"agreement_trend"`

	Source      Source `json:"source"`
	Stale       bool   `json:"stale"`
	StaleReason string `json:"stale_reason,omitempty"`
}

// Meta is the store-level bookkeeping record.
type Meta struct {
	Version     int       `json:"version"`
	LastUpdated time.Time `json:"lastUpdated"`
	LastAsOf    time.Time `json:"lastAsOf"`
}

// MetaVersion is the current persisted layout version.
const MetaVersion = 1
