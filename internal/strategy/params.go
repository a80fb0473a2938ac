package strategy

// SignalSpec describes one Option-B threshold signal.
type SignalSpec struct {
	Key    string `yaml:"key"`
	Label  string `yaml:"label"`
	Symbol string `yaml:"symbol"`
	// Denominator turns the signal into a ratio signal (Symbol / Denominator).
	Denominator string  `yaml:"denominator"`
	Window      int     `yaml:"window"`
	On          float64 `yaml:"on"`
	Off         float64 `yaml:"off"`
	// Inverted votes +1 when the return falls to -On and -1 when it rises to +Off.
	Inverted bool `yaml:"inverted"`
	// Polarity maps the raw threshold direction onto the axis (+1 or -1).
	Polarity int `yaml:"polarity"`
}

// SatelliteSpec describes a slow external inflation signal.
type SatelliteSpec struct {
	Name         string   `yaml:"name"`
	SeriesID     string   `yaml:"series_id"`
	Fallbacks    []string `yaml:"fallbacks"`
	// Transform is a FRED units code applied to every series in the chain,
	// e.g. "pc1" for percent change from a year ago.
	Transform    string   `yaml:"transform"`
	Cadence      string   `yaml:"cadence"`
	On           float64  `yaml:"on"`
	Off          float64  `yaml:"off"`
	TTLDays      int      `yaml:"ttl_days"`
	HalfLifeDays float64  `yaml:"half_life_days"`
	Weight       float64  `yaml:"weight"`
}

// Chain returns the primary series followed by its fallbacks.
func (s SatelliteSpec) Chain() []string {
	return append([]string{s.SeriesID}, s.Fallbacks...)
}

// SatelliteTransforms maps each series id that needs a units transform to it.
func (p Params) SatelliteTransforms() map[string]string {
	out := make(map[string]string)
	for _, s := range p.Satellites {
		if s.Transform == "" {
			continue
		}
		for _, id := range s.Chain() {
			out[id] = s.Transform
		}
	}
	return out
}

// Assets names the VAMS proxy symbols.
type Assets struct {
	Stocks  string `yaml:"stocks"`
	Gold    string `yaml:"gold"`
	Bitcoin string `yaml:"bitcoin"`
}

// VAMSParams configures the volatility-adjusted momentum engine.
type VAMSParams struct {
	ShortWindow  int     `yaml:"short_window"`
	LongWindow   int     `yaml:"long_window"`
	ShortWeight  float64 `yaml:"short_weight"`
	LongWeight   float64 `yaml:"long_weight"`
	VolWindow    int     `yaml:"vol_window"`
	BullScore    float64 `yaml:"bull_score"`
	BearScore    float64 `yaml:"bear_score"`
	ScaleBull    float64 `yaml:"scale_bull"`
	ScaleNeutral float64 `yaml:"scale_neutral"`
	ScaleBear    float64 `yaml:"scale_bear"`
}

// AllocationParams holds the risk-regime targets and the sum tolerance.
type AllocationParams struct {
	StocksRiskOn   float64 `yaml:"stocks_risk_on"`
	StocksRiskOff  float64 `yaml:"stocks_risk_off"`
	Gold           float64 `yaml:"gold"`
	BitcoinRiskOn  float64 `yaml:"bitcoin_risk_on"`
	BitcoinRiskOff float64 `yaml:"bitcoin_risk_off"`
	Tolerance      float64 `yaml:"tolerance"`
	SmallGap       float64 `yaml:"small_gap"`
}

// StressParams configures the forced risk-off override.
type StressParams struct {
	VolIndexLevel float64 `yaml:"vol_index_level"`
	CreditTR      float64 `yaml:"credit_tr"`
}

// FlipParams configures the flip-watch guard.
type FlipParams struct {
	ConfirmationDays int     `yaml:"confirmation_days"`
	StrongScore      float64 `yaml:"strong_score"`
}

// Params is the immutable engine configuration. It is passed by value so
// several configurations can run side by side.
type Params struct {
	Risk       []SignalSpec    `yaml:"risk"`
	Inflation  []SignalSpec    `yaml:"inflation"`
	Satellites []SatelliteSpec `yaml:"satellites"`

	// TieBreakWindow is the short reference window used when an axis sums to zero.
	TieBreakWindow     int    `yaml:"tie_break_window"`
	RiskTieBreakSymbol string `yaml:"risk_tie_break_symbol"`
	InflTieBreakSymbol string `yaml:"infl_tie_break_symbol"`

	// VolIndexSymbol and CreditKey feed the stress override.
	VolIndexSymbol string `yaml:"vol_index_symbol"`
	CreditKey      string `yaml:"credit_key"`

	Assets     Assets           `yaml:"assets"`
	VAMS       VAMSParams       `yaml:"vams"`
	Allocation AllocationParams `yaml:"allocation"`
	Stress     StressParams     `yaml:"stress"`
	Flip       FlipParams       `yaml:"flip"`

	AgreementThreshold float64 `yaml:"agreement_threshold"`

	// MinCoverage is the number of sufficient core votes each axis needs
	// before a snapshot may be persisted.
	MinCoverage int `yaml:"min_coverage"`
}

// DefaultParams returns the reference configuration.
func DefaultParams() Params {
	return Params{
		Risk: []SignalSpec{
			{Key: "equity_trend", Label: "US equities", Symbol: "SPY", Window: 63, On: 0.02, Off: -0.02, Polarity: 1},
			{Key: "credit_treasury", Label: "High yield / treasuries", Symbol: "HYG", Denominator: "IEF", Window: 63, On: 0.01, Off: -0.01, Polarity: 1},
			{Key: "vol_index", Label: "Volatility index", Symbol: "^VIX", Window: 21, On: 0.10, Off: 0.10, Inverted: true, Polarity: 1},
			{Key: "em_us", Label: "EM / US equities", Symbol: "EEM", Denominator: "SPY", Window: 63, On: 0.01, Off: -0.01, Polarity: 1},
		},
		Inflation: []SignalSpec{
			{Key: "commodities", Label: "Broad commodities", Symbol: "DBC", Window: 63, On: 0.02, Off: -0.02, Polarity: 1},
			{Key: "tips_treasury", Label: "TIPS / treasuries", Symbol: "TIP", Denominator: "IEF", Window: 63, On: 0.005, Off: -0.005, Polarity: 1},
			{Key: "long_bond", Label: "Long-duration treasuries", Symbol: "TLT", Window: 63, On: 0.01, Off: -0.01, Polarity: -1},
			{Key: "dollar", Label: "US dollar index", Symbol: "UUP", Window: 63, On: 0.01, Off: -0.01, Polarity: -1},
		},
		Satellites: []SatelliteSpec{
			{Name: "breakeven_10y", SeriesID: "T10YIE", Fallbacks: []string{"T5YIE"}, Cadence: "daily", On: 2.5, Off: 2.0, TTLDays: 10, HalfLifeDays: 5, Weight: 0.5},
			{Name: "cpi_yoy", SeriesID: "CPIAUCSL", Fallbacks: []string{"CPILFESL"}, Transform: "pc1", Cadence: "monthly", On: 3.0, Off: 2.0, TTLDays: 60, HalfLifeDays: 30, Weight: 0.5},
		},
		TieBreakWindow:     21,
		RiskTieBreakSymbol: "SPY",
		InflTieBreakSymbol: "DBC",
		VolIndexSymbol:     "^VIX",
		CreditKey:          "credit_treasury",
		Assets:             Assets{Stocks: "SPY", Gold: "GLD", Bitcoin: "BTC-USD"},
		VAMS: VAMSParams{
			ShortWindow: 126, LongWindow: 252, ShortWeight: 0.6, LongWeight: 0.4, VolWindow: 63,
			BullScore: 0.5, BearScore: -0.5,
			ScaleBull: 1.0, ScaleNeutral: 0.5, ScaleBear: 0.0,
		},
		Allocation: AllocationParams{
			StocksRiskOn: 0.60, StocksRiskOff: 0.30, Gold: 0.30,
			BitcoinRiskOn: 0.10, BitcoinRiskOff: 0.05,
			Tolerance: 1e-6, SmallGap: 0.01,
		},
		Stress:             StressParams{VolIndexLevel: 30, CreditTR: -0.02},
		Flip:               FlipParams{ConfirmationDays: 2, StrongScore: 2},
		AgreementThreshold: 0.25,
		MinCoverage:        2,
	}
}

// Symbols lists every market symbol the configuration needs, without duplicates.
func (p Params) Symbols() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, specs := range [][]SignalSpec{p.Risk, p.Inflation} {
		for _, s := range specs {
			add(s.Symbol)
			add(s.Denominator)
		}
	}
	add(p.RiskTieBreakSymbol)
	add(p.InflTieBreakSymbol)
	add(p.VolIndexSymbol)
	add(p.Assets.Stocks)
	add(p.Assets.Gold)
	add(p.Assets.Bitcoin)
	return out
}

// AnchorSymbol is the series whose last date defines the as-of trading day.
func (p Params) AnchorSymbol() string {
	if len(p.Risk) > 0 {
		return p.Risk[0].Symbol
	}
	return p.Assets.Stocks
}
