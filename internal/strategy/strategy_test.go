package strategy

import (
	"math"
	"testing"
	"time"

	"RegimeSentinel/internal/model"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// step builds n observations that stay at first and end on last, so that
// TR over any window up to n is last/first - 1.
func step(symbol string, n int, first, last float64) model.Series {
	s := model.Series{Symbol: symbol}
	for i := 0; i < n; i++ {
		c := first
		if i == n-1 {
			c = last
		}
		s.Observations = append(s.Observations, model.Observation{Symbol: symbol, Date: base.AddDate(0, 0, i), Close: c})
	}
	return s
}

func flat(symbol string, n int, v float64) model.Series { return step(symbol, n, v, v) }

// goldilocksData votes risk +1 (equity +1, credit -1, vol 0, EM +1) and
// inflation -1 (commodities down, everything else flat).
func goldilocksData(vix float64) model.MarketData {
	return model.MarketData{
		"SPY":  step("SPY", 64, 100, 105),
		"HYG":  step("HYG", 64, 100, 97),
		"IEF":  flat("IEF", 64, 100),
		"^VIX": flat("^VIX", 64, vix),
		"EEM":  step("EEM", 64, 100, 110),
		"DBC":  step("DBC", 64, 100, 95),
		"TIP":  flat("TIP", 64, 100),
		"TLT":  flat("TLT", 64, 100),
		"UUP":  flat("UUP", 64, 100),
	}
}

func TestCovered_CountsSufficientVotesPerAxis(t *testing.T) {
	p := DefaultParams()
	full := CastVotes(p, goldilocksData(20))
	if got := Coverage(full, model.AxisRisk); got != 4 {
		t.Errorf("risk coverage: expected 4, got %d", got)
	}
	if !p.Covered(full) {
		t.Error("complete data should be covered")
	}

	anchorOnly := CastVotes(p, model.MarketData{"SPY": step("SPY", 64, 100, 105)})
	if got := Coverage(anchorOnly, model.AxisRisk); got != 1 {
		t.Errorf("anchor-only risk coverage: expected 1, got %d", got)
	}
	if got := Coverage(anchorOnly, model.AxisInflation); got != 0 {
		t.Errorf("anchor-only inflation coverage: expected 0, got %d", got)
	}
	if p.Covered(anchorOnly) {
		t.Error("anchor-only data must not be covered")
	}

	p.MinCoverage = 0
	if !p.Covered(anchorOnly) {
		t.Error("zero threshold accepts any data")
	}
}

func TestScenarioA_GoldilocksAllocation(t *testing.T) {
	p := DefaultParams()
	a, warnings := Allocate(p, model.RiskOf(model.Goldilocks), model.AssetStates{Stocks: 2, Gold: 2, Bitcoin: -2})
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}
	assertWeights(t, "target", a.Target, model.Weights{Stocks: 0.60, Gold: 0.30, Bitcoin: 0.10})
	assertWeights(t, "scale", a.Scale, model.Weights{Stocks: 1.0, Gold: 1.0, Bitcoin: 0.0})
	assertWeights(t, "actual", a.Actual, model.Weights{Stocks: 0.60, Gold: 0.30, Bitcoin: 0.0})
	if math.Abs(a.Cash-0.10) > 1e-9 {
		t.Errorf("expected cash 0.10, got %f", a.Cash)
	}
}

func TestScenarioB_InflationNeutralAllocation(t *testing.T) {
	p := DefaultParams()
	a, _ := Allocate(p, model.RiskOf(model.Inflation), model.AssetStates{})
	assertWeights(t, "target", a.Target, model.Weights{Stocks: 0.30, Gold: 0.30, Bitcoin: 0.05})
	assertWeights(t, "scale", a.Scale, model.Weights{Stocks: 0.5, Gold: 0.5, Bitcoin: 0.5})
	assertWeights(t, "actual", a.Actual, model.Weights{Stocks: 0.15, Gold: 0.15, Bitcoin: 0.025})
	if math.Abs(a.Cash-0.675) > 1e-9 {
		t.Errorf("expected cash 0.675, got %f", a.Cash)
	}
}

func TestScenarioC_StressOverride(t *testing.T) {
	p := DefaultParams()

	calm := goldilocksData(20)
	votes := CastVotes(p, calm)
	risk, infl := AxisScore(votes, model.AxisRisk), AxisScore(votes, model.AxisInflation)
	if risk != 1 || infl != -1 {
		t.Fatalf("fixture should vote risk=1 infl=-1, got %d %d", risk, infl)
	}
	if c := Classify(p, calm, float64(risk), float64(infl)); c.Regime != model.Goldilocks || c.StressOverride {
		t.Fatalf("expected unstressed GOLDILOCKS, got %+v", c)
	}

	stressed := goldilocksData(35)
	c := Classify(p, stressed, float64(risk), float64(infl))
	if !c.StressOverride || c.RiskRegime != model.RiskOff {
		t.Fatalf("expected stress override to RISK OFF, got %+v", c)
	}
	if c.Regime != model.Deflation {
		t.Errorf("negative inflation under stress should be DEFLATION, got %s", c.Regime)
	}

	stressed["DBC"] = step("DBC", 64, 100, 105)
	c = Classify(p, stressed, float64(risk), 1)
	if c.Regime != model.Inflation {
		t.Errorf("positive inflation under stress should be INFLATION, got %s", c.Regime)
	}
}

func TestStress_RequiresBothConditions(t *testing.T) {
	p := DefaultParams()
	data := goldilocksData(35)
	data["HYG"] = step("HYG", 64, 100, 99) // -1%: above the -2% limit
	if EvaluateStress(p, data).Triggered {
		t.Error("stress should need credit TR <= -0.02")
	}
	delete(data, "^VIX")
	if EvaluateStress(p, data).Triggered {
		t.Error("missing volatility index must not trigger stress")
	}
}

func TestVoting_PolarityAndInversion(t *testing.T) {
	p := DefaultParams()
	data := goldilocksData(20)
	data["^VIX"] = step("^VIX", 64, 100, 85) // TR_21 = -0.15
	data["TLT"] = step("TLT", 64, 100, 102)  // long bond rally
	data["UUP"] = step("UUP", 64, 100, 98)   // weaker dollar

	byKey := map[string]model.SignalVote{}
	for _, v := range CastVotes(p, data) {
		byKey[v.Key] = v
	}
	cases := []struct {
		key       string
		vote      int
		direction string
	}{
		{"vol_index", 1, model.DirectionRiskOn},
		{"credit_treasury", -1, model.DirectionRiskOff},
		{"long_bond", -1, model.DirectionDisinflationary},
		{"dollar", 1, model.DirectionInflationary},
		{"tips_treasury", 0, model.DirectionNeutral},
	}
	for _, c := range cases {
		v := byKey[c.key]
		if v.Vote != c.vote || v.Direction != c.direction {
			t.Errorf("%s: expected %d/%s, got %d/%s", c.key, c.vote, c.direction, v.Vote, v.Direction)
		}
	}
}

func TestVoting_InsufficientDataIsNeutralWithReceipt(t *testing.T) {
	p := DefaultParams()
	data := goldilocksData(20)
	data["EEM"] = flat("EEM", 10, 100)
	for _, v := range CastVotes(p, data) {
		if v.Key != "em_us" {
			continue
		}
		if v.Vote != 0 || v.Sufficient || v.Note == "" {
			t.Errorf("expected neutral insufficient receipt, got %+v", v)
		}
		return
	}
	t.Fatal("em_us receipt missing")
}

func TestTieBreak_AppliedOnceAfterSatellites(t *testing.T) {
	p := DefaultParams()
	data := goldilocksData(20)
	data["TLT"] = step("TLT", 64, 100, 95) // bond selloff: inflationary +1 cancels DBC -1

	votes := CastVotes(p, data)
	if s := AxisScore(votes, model.AxisInflation); s != 0 {
		t.Fatalf("fixture should leave inflation core at 0, got %d", s)
	}

	tb := ResolveTies(p, data, 1, 0)
	if !tb.InflUsed || tb.Infl != -1 {
		t.Errorf("commodities TR_21 < 0 should break the tie to -1, got %+v", tb)
	}
	if tb.RiskUsed || tb.Risk != 1 {
		t.Errorf("non-zero risk must pass through, got %+v", tb)
	}

	// A satellite contribution removes the tie entirely.
	tb = ResolveTies(p, data, 1, 0.5)
	if tb.InflUsed || tb.Infl != 0.5 {
		t.Errorf("non-zero total must pass through, got %+v", tb)
	}
}

func TestTieBreak_InvariantOverScores(t *testing.T) {
	p := DefaultParams()
	data := model.MarketData{"SPY": flat("SPY", 30, 100), "DBC": flat("DBC", 30, 100)}
	for _, raw := range []float64{-4, -2, -1, -0.25, 0, 0.25, 1, 3} {
		tb := ResolveTies(p, data, raw, raw)
		if raw == 0 {
			if !tb.RiskUsed || !tb.InflUsed || tb.Risk != 1 || tb.Infl != 1 {
				t.Errorf("zero scores with flat references should break to +1, got %+v", tb)
			}
			continue
		}
		if tb.RiskUsed || tb.InflUsed || tb.Risk != raw || tb.Infl != raw {
			t.Errorf("score %v should pass unchanged, got %+v", raw, tb)
		}
	}
}

func TestClassifyRegime(t *testing.T) {
	cases := []struct {
		risk, infl float64
		want       model.Regime
	}{
		{1, -1, model.Goldilocks},
		{2, 1, model.Reflation},
		{-1, 1, model.Inflation},
		{-3, -0.5, model.Deflation},
	}
	for _, c := range cases {
		if got := ClassifyRegime(c.risk, c.infl); got != c.want {
			t.Errorf("ClassifyRegime(%v, %v) = %s, want %s", c.risk, c.infl, got, c.want)
		}
		if model.RiskOf(c.want) == model.RiskOn != (c.risk > 0) {
			t.Errorf("risk regime of %s disagrees with score %v", c.want, c.risk)
		}
	}
}

func TestVAMS_StateMonotonic(t *testing.T) {
	p := DefaultParams().VAMS
	prev := StateBear
	for s := -3.0; s <= 3.0; s += 0.01 {
		st := State(p, s)
		if st != StateBear && st != StateNeutral && st != StateBull {
			t.Fatalf("state %d out of range at %f", st, s)
		}
		if st < prev {
			t.Fatalf("state decreased at score %f", s)
		}
		prev = st
		switch sc := Scale(p, st); sc {
		case 0, 0.5, 1:
		default:
			t.Fatalf("unexpected scale %f", sc)
		}
	}
	if State(p, 0.5) != StateBull || State(p, -0.5) != StateBear || State(p, 0.49) != StateNeutral {
		t.Error("threshold boundaries are inclusive")
	}
}

func TestVAMS_ZeroVolScoresZero(t *testing.T) {
	p := DefaultParams().VAMS
	a := ScoreAsset(p, flat("GLD", 300, 100))
	if a.Score != 0 || a.State != StateNeutral {
		t.Errorf("flat series should be neutral, got %+v", a)
	}
}

func TestVAMS_InsufficientLongWindowDegrades(t *testing.T) {
	p := DefaultParams().VAMS
	s := model.Series{Symbol: "BTC-USD"}
	for i := 0; i < 200; i++ {
		c := 100 * math.Pow(1.01, float64(i))
		if i%2 == 1 {
			c *= 0.995
		}
		s.Observations = append(s.Observations, model.Observation{Symbol: "BTC-USD", Date: base.AddDate(0, 0, i), Close: c})
	}
	a := ScoreAsset(p, s)
	if len(a.Notes) != 1 {
		t.Fatalf("expected a single note for the 252 window, got %v", a.Notes)
	}
	if a.Score <= 0 || a.State != StateBull {
		t.Errorf("strong uptrend should still read bullish on TR_126, got %+v", a)
	}
}

func TestAllocation_InvariantAllStates(t *testing.T) {
	p := DefaultParams()
	states := []int{StateBear, StateNeutral, StateBull}
	for _, risk := range []model.RiskRegime{model.RiskOn, model.RiskOff} {
		for _, s := range states {
			for _, g := range states {
				for _, b := range states {
					a, warnings := Allocate(p, risk, model.AssetStates{Stocks: s, Gold: g, Bitcoin: b})
					if len(warnings) != 0 {
						t.Errorf("unexpected warnings %v", warnings)
					}
					if math.Abs(a.Actual.Stocks-a.Target.Stocks*a.Scale.Stocks) > 1e-12 ||
						math.Abs(a.Actual.Gold-a.Target.Gold*a.Scale.Gold) > 1e-12 ||
						math.Abs(a.Actual.Bitcoin-a.Target.Bitcoin*a.Scale.Bitcoin) > 1e-12 {
						t.Errorf("actual != target*scale for %s %d/%d/%d", risk, s, g, b)
					}
					if a.Cash < 0 || a.Cash > 1 || math.Abs(a.Actual.Sum()+a.Cash-1) > 1e-6 {
						t.Errorf("weights do not sum to 1: %+v", a)
					}
				}
			}
		}
	}
}

func TestAllocation_OversizedTargetsRescale(t *testing.T) {
	p := DefaultParams()
	p.Allocation.StocksRiskOn = 0.9
	p.Allocation.Gold = 0.5
	a, warnings := Allocate(p, model.RiskOn, model.AssetStates{Stocks: 2, Gold: 2, Bitcoin: 2})
	if len(warnings) == 0 {
		t.Error("expected a rescale warning")
	}
	if math.Abs(a.Actual.Sum()+a.Cash-1) > 1e-6 || a.Cash > 1e-9 {
		t.Errorf("expected renormalized weights, got %+v", a)
	}
}

func TestSatellites_FallbackExpiryDecay(t *testing.T) {
	asOf := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	specs := []SatelliteSpec{
		{Name: "breakeven", SeriesID: "T10YIE", Fallbacks: []string{"T5YIE"}, On: 2.5, Off: 2.0, TTLDays: 10, HalfLifeDays: 5, Weight: 0.5},
		{Name: "cpi", SeriesID: "CPI", On: 3, Off: 2, TTLDays: 60, HalfLifeDays: 30, Weight: 0.5},
		{Name: "missing", SeriesID: "NOPE", On: 1, Off: 0, TTLDays: 5, HalfLifeDays: 5, Weight: 1},
	}
	known := map[string]model.SatelliteObservation{
		"T5YIE": {Value: 2.7, Date: asOf.AddDate(0, 0, -5)},
		"CPI":   {Value: 3.5, Date: asOf.AddDate(0, 0, -90)},
	}
	lookup := func(id string) (model.SatelliteObservation, bool) {
		o, ok := known[id]
		return o, ok
	}

	fold := FoldSatellites(specs, lookup, asOf)
	if len(fold.Contributions) != 3 {
		t.Fatalf("expected 3 contributions, got %d", len(fold.Contributions))
	}
	be := fold.Contributions[0]
	if be.Resolved == nil || be.Resolved.SeriesID != "T5YIE" || be.Resolved.AgeDays != 5 {
		t.Fatalf("breakeven should resolve through fallback, got %+v", be)
	}
	if math.Abs(be.EffectiveVote-0.25) > 1e-12 {
		t.Errorf("one half-life should halve 0.5 to 0.25, got %f", be.EffectiveVote)
	}
	if cpi := fold.Contributions[1]; !cpi.Expired || cpi.EffectiveVote != 0 {
		t.Errorf("cpi should be expired, got %+v", cpi)
	}
	if miss := fold.Contributions[2]; miss.Resolved != nil || miss.EffectiveVote != 0 {
		t.Errorf("unresolved satellite must contribute nothing, got %+v", miss)
	}
	if math.Abs(fold.Score-0.25) > 1e-12 {
		t.Errorf("expected score 0.25, got %f", fold.Score)
	}
}

func TestSatelliteTransforms_CoverWholeChain(t *testing.T) {
	got := DefaultParams().SatelliteTransforms()
	want := map[string]string{"CPIAUCSL": "pc1", "CPILFESL": "pc1"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for id, tr := range want {
		if got[id] != tr {
			t.Errorf("%s: expected transform %q, got %q", id, tr, got[id])
		}
	}
}

func TestSatellites_Clamped(t *testing.T) {
	asOf := base
	specs := []SatelliteSpec{
		{Name: "a", SeriesID: "A", On: 1, Off: 0, TTLDays: 5, HalfLifeDays: 5, Weight: 1},
		{Name: "b", SeriesID: "B", On: 1, Off: 0, TTLDays: 5, HalfLifeDays: 5, Weight: 1},
	}
	lookup := func(id string) (model.SatelliteObservation, bool) {
		return model.SatelliteObservation{Value: 5, Date: asOf}, true
	}
	if fold := FoldSatellites(specs, lookup, asOf); fold.Score != 1 {
		t.Errorf("expected clamp to 1, got %f", fold.Score)
	}
}

func TestFlipWatch(t *testing.T) {
	p := DefaultParams().Flip
	cases := []struct {
		name string
		in   FlipInput
		want model.FlipWatchStatus
	}{
		{"no previous", FlipInput{Current: model.Goldilocks, Risk: 1, Infl: -1, DaysSinceFlip: NoPriorFlip}, model.FlipNone},
		{"unchanged", FlipInput{Current: model.Goldilocks, Previous: model.Goldilocks, Risk: 4, Infl: -4, DaysSinceFlip: 1}, model.FlipNone},
		{"strong", FlipInput{Current: model.Reflation, Previous: model.Goldilocks, Risk: 1, Infl: 2, DaysSinceFlip: 1}, model.FlipStrong},
		{"pending", FlipInput{Current: model.Reflation, Previous: model.Goldilocks, Risk: 1, Infl: 1, DaysSinceFlip: 2}, model.FlipPendingConfirmation},
		{"brewing", FlipInput{Current: model.Reflation, Previous: model.Goldilocks, Risk: 1, Infl: 1, DaysSinceFlip: 3}, model.FlipBrewing},
		{"brewing first flip", FlipInput{Current: model.Deflation, Previous: model.Goldilocks, Risk: -1, Infl: -1, DaysSinceFlip: NoPriorFlip}, model.FlipBrewing},
	}
	for _, c := range cases {
		got := EvaluateFlip(p, c.in)
		if got != c.want {
			t.Errorf("%s: got %s, want %s", c.name, got, c.want)
		}
		changed := c.in.Previous != "" && c.in.Current != c.in.Previous
		if (got != model.FlipNone) != changed {
			t.Errorf("%s: status %s disagrees with regime change %v", c.name, got, changed)
		}
		if got == model.FlipStrong && math.Max(math.Abs(c.in.Risk), math.Abs(c.in.Infl)) < 2 {
			t.Errorf("%s: strong flip below score 2", c.name)
		}
	}

	if !ShouldApplyFlip(model.FlipNone) || !ShouldApplyFlip(model.FlipStrong) ||
		ShouldApplyFlip(model.FlipBrewing) || ShouldApplyFlip(model.FlipPendingConfirmation) {
		t.Error("only NONE and STRONG_FLIP should apply")
	}
}

func TestDaysSinceLastFlip(t *testing.T) {
	snap := func(r model.Regime) model.RegimeSnapshot { return model.RegimeSnapshot{Regime: r} }
	g, d := model.Goldilocks, model.Deflation
	cases := []struct {
		prior []model.RegimeSnapshot
		want  int
	}{
		{nil, NoPriorFlip},
		{[]model.RegimeSnapshot{snap(g), snap(g)}, NoPriorFlip},
		{[]model.RegimeSnapshot{snap(g), snap(d)}, 1},
		{[]model.RegimeSnapshot{snap(g), snap(d), snap(d), snap(d)}, 3},
	}
	for i, c := range cases {
		if got := DaysSinceLastFlip(c.prior); got != c.want {
			t.Errorf("case %d: got %d, want %d", i, got, c.want)
		}
	}
}

func TestAgreementTrend(t *testing.T) {
	votes := []model.SignalVote{
		{Axis: model.AxisRisk, Vote: 1}, {Axis: model.AxisRisk, Vote: 1},
		{Axis: model.AxisRisk, Vote: 1}, {Axis: model.AxisRisk, Vote: -1},
		{Axis: model.AxisInflation, Vote: -1}, {Axis: model.AxisInflation, Vote: -1},
		{Axis: model.AxisInflation, Vote: 0}, {Axis: model.AxisInflation, Vote: 0},
	}
	if a := Agreement(votes); a != 0.5 {
		t.Fatalf("expected agreement 0.5, got %f", a)
	}
	cases := []struct {
		prev float64
		want model.AgreementTrend
	}{
		{0.25, model.AgreementCleaner},
		{0.75, model.AgreementMixed},
		{0.5, model.AgreementSame},
		{0.375, model.AgreementSame},
	}
	for _, c := range cases {
		prev := &model.RegimeSnapshot{Agreement: c.prev}
		if got := Trend(0.25, 0.5, prev); got != c.want {
			t.Errorf("prev %v: got %s, want %s", c.prev, got, c.want)
		}
	}
	if Trend(0.25, 1, nil) != model.AgreementSame {
		t.Error("no previous snapshot should be SAME")
	}
}

func TestEvaluate_OrderIndependent(t *testing.T) {
	p := DefaultParams()
	data := goldilocksData(20)
	reversed := model.MarketData{}
	for sym, s := range data {
		obs := make([]model.Observation, len(s.Observations))
		for i, o := range s.Observations {
			obs[len(obs)-1-i] = o
		}
		reversed[sym] = model.Series{Symbol: sym, Observations: obs}
	}
	asOf := base.AddDate(0, 0, 63)
	prior := []model.RegimeSnapshot{{Regime: model.Deflation, Agreement: 0}}

	a := Evaluate(p, Input{AsOf: asOf, Data: data, Prior: prior})
	b := Evaluate(p, Input{AsOf: asOf, Data: reversed, Prior: prior})
	if a.Snapshot != b.Snapshot {
		t.Errorf("fetch order changed the snapshot:\n%+v\n%+v", a.Snapshot, b.Snapshot)
	}
	if a.Snapshot.Regime != model.Goldilocks || a.Snapshot.Source != model.SourceComputed {
		t.Errorf("unexpected snapshot %+v", a.Snapshot)
	}
	if a.Snapshot.FlipWatch != model.FlipBrewing {
		t.Errorf("first change from DEFLATION should be BREWING, got %s", a.Snapshot.FlipWatch)
	}
	if a.Snapshot.AgreementTrend != model.AgreementCleaner {
		t.Errorf("agreement rising 0 -> 0.25 should be CLEANER, got %s", a.Snapshot.AgreementTrend)
	}
}

func assertWeights(t *testing.T, name string, got, want model.Weights) {
	t.Helper()
	if math.Abs(got.Stocks-want.Stocks) > 1e-9 || math.Abs(got.Gold-want.Gold) > 1e-9 || math.Abs(got.Bitcoin-want.Bitcoin) > 1e-9 {
		t.Errorf("%s: got %+v, want %+v", name, got, want)
	}
}
