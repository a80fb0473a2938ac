package replay

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"RegimeSentinel/internal/model"
)

// ErrEmpty is returned when no replay row is at or before the requested date.
var ErrEmpty = errors.New("replay: no row at or before date")

// Set is the parsed, immutable replay segment.
type Set struct {
	Cutover time.Time
	rows    []model.RegimeSnapshot
}

// Rows returns a copy of every replay row in date order.
func (s *Set) Rows() []model.RegimeSnapshot {
	if s == nil {
		return nil
	}
	return append([]model.RegimeSnapshot(nil), s.rows...)
}

// Len is the number of replay rows.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rows)
}

// At returns the newest row dated on or before d.
func (s *Set) At(d time.Time) (model.RegimeSnapshot, error) {
	if s == nil {
		return model.RegimeSnapshot{}, ErrEmpty
	}
	day := model.Day(d)
	i := sort.Search(len(s.rows), func(i int) bool { return s.rows[i].AsOf.After(day) })
	if i == 0 {
		return model.RegimeSnapshot{}, ErrEmpty
	}
	return s.rows[i-1], nil
}

// Contains reports whether d falls in the replay segment.
func (s *Set) Contains(d time.Time) bool {
	return s != nil && !model.Day(d).After(s.Cutover)
}

// Parse reads the seed CSV. Rows dated after cutover (the last replay day,
// inclusive) are dropped; duplicate dates are an error.
func Parse(r io.Reader, cutover time.Time) (*Set, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("replay header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["date"]; !ok {
		return nil, errors.New("replay header: missing date column")
	}
	if _, ok := cols["regime"]; !ok {
		return nil, errors.New("replay header: missing regime column")
	}

	set := &Set{Cutover: model.Day(cutover)}
	seen := make(map[time.Time]bool)
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		row := record{cols: cols, rec: rec}
		snap, err := row.snapshot()
		if err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		if snap.AsOf.After(set.Cutover) {
			continue
		}
		if seen[snap.AsOf] {
			return nil, fmt.Errorf("replay line %d: duplicate date %s", line, snap.AsOf.Format(model.DateLayout))
		}
		seen[snap.AsOf] = true
		set.rows = append(set.rows, snap)
	}
	sort.Slice(set.rows, func(i, j int) bool { return set.rows[i].AsOf.Before(set.rows[j].AsOf) })
	return set, nil
}

type record struct {
	cols map[string]int
	rec  []string
}

func (r record) str(name string) string {
	i, ok := r.cols[name]
	if !ok || i >= len(r.rec) {
		return ""
	}
	return strings.TrimSpace(r.rec[i])
}

func (r record) number(name string) (float64, error) {
	s := r.str(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}

func (r record) integer(name string) (int, error) {
	v, err := r.number(name)
	return int(v), err
}

func (r record) flag(name string) (bool, error) {
	s := r.str(name)
	if s == "" {
		return false, nil
	}
	switch strings.ToLower(s) {
	case "1", "yes", "y":
		return true, nil
	case "0", "no", "n":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	return b, nil
}

func (r record) snapshot() (model.RegimeSnapshot, error) {
	var snap model.RegimeSnapshot
	d, err := model.ParseDate(r.str("date"))
	if err != nil {
		return snap, fmt.Errorf("date: %w", err)
	}
	snap.AsOf = d
	snap.RunAt = d
	snap.Source = model.SourceReplay

	snap.Regime = model.Regime(strings.ToUpper(r.str("regime")))
	if !snap.Regime.Valid() {
		return snap, fmt.Errorf("unknown regime %q", r.str("regime"))
	}
	snap.RiskRegime = model.RiskOf(snap.Regime)
	if rr := strings.ToUpper(r.str("risk_regime")); rr != "" {
		snap.RiskRegime = model.RiskRegime(rr)
	}
	snap.FlipWatch = model.FlipNone
	if fw := strings.ToUpper(r.str("flip_watch")); fw != "" {
		snap.FlipWatch = model.FlipWatchStatus(fw)
	}

	floats := []struct {
		col string
		dst *float64
	}{
		{"risk_score", &snap.RiskScore},
		{"infl_core_score", &snap.InflCoreScore},
		{"infl_sat_score", &snap.InflSatScore},
		{"infl_score", &snap.InflScore},
		{"target_stocks", &snap.Allocation.Target.Stocks},
		{"target_gold", &snap.Allocation.Target.Gold},
		{"target_btc", &snap.Allocation.Target.Bitcoin},
		{"scale_stocks", &snap.Allocation.Scale.Stocks},
		{"scale_gold", &snap.Allocation.Scale.Gold},
		{"scale_btc", &snap.Allocation.Scale.Bitcoin},
		{"actual_stocks", &snap.Allocation.Actual.Stocks},
		{"actual_gold", &snap.Allocation.Actual.Gold},
		{"actual_btc", &snap.Allocation.Actual.Bitcoin},
		{"cash", &snap.Allocation.Cash},
		{"agreement", &snap.Agreement},
	}
	for _, f := range floats {
		if *f.dst, err = r.number(f.col); err != nil {
			return snap, err
		}
	}

	ints := []struct {
		col string
		dst *int
	}{
		{"vams_stocks", &snap.VAMS.Stocks},
		{"vams_gold", &snap.VAMS.Gold},
		{"vams_btc", &snap.VAMS.Bitcoin},
	}
	for _, f := range ints {
		if *f.dst, err = r.integer(f.col); err != nil {
			return snap, err
		}
	}

	bools := []struct {
		col string
		dst *bool
	}{
		{"risk_tiebreak", &snap.RiskTieBreak},
		{"infl_tiebreak", &snap.InflTieBreak},
		{"stress_override", &snap.StressOverride},
	}
	for _, f := range bools {
		if *f.dst, err = r.flag(f.col); err != nil {
			return snap, err
		}
	}
	snap.AgreementTrend = model.AgreementSame
	return snap, nil
}

// Loader parses a seed file once per process.
type Loader struct {
	path    string
	cutover time.Time

	once sync.Once
	set  *Set
	err  error
}

// NewLoader creates a Loader. An empty path yields an empty segment.
func NewLoader(path string, cutover time.Time) *Loader {
	return &Loader{path: path, cutover: model.Day(cutover)}
}

// Cutover is the last replay day.
func (l *Loader) Cutover() time.Time { return l.cutover }

// Load returns the parsed seed, reading the file on first use.
func (l *Loader) Load() (*Set, error) {
	l.once.Do(func() {
		if l.path == "" {
			l.set = &Set{Cutover: l.cutover}
			return
		}
		f, err := os.Open(l.path)
		if err != nil {
			l.err = fmt.Errorf("open replay seed: %w", err)
			return
		}
		defer f.Close()
		l.set, l.err = Parse(f, l.cutover)
	})
	return l.set, l.err
}
