package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"RegimeSentinel/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price float64
	// Data overrides the generated bars per symbol.
	Data map[string][]model.Observation
	// Errs forces a failure per symbol.
	Errs map[string]error
	// Delay is waited (or the context) before answering.
	Delay time.Duration

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]model.Observation, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[symbol]++
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := m.Errs[symbol]; err != nil {
		return nil, err
	}
	if obs, ok := m.Data[symbol]; ok {
		return obs, nil
	}
	return generateMockBars(symbol, m.Price, from, to), nil
}

// Calls reports how often symbol was requested.
func (m *MockFetcher) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// generateMockBars emits one weekday close per day with a gentle drift.
func generateMockBars(symbol string, basePrice float64, from, to time.Time) []model.Observation {
	if basePrice == 0 {
		basePrice = 100
	}
	var obs []model.Observation
	i := 0
	for d := model.Day(from); !d.After(model.Day(to)); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		obs = append(obs, model.Observation{Symbol: symbol, Date: d, Close: basePrice * (1 + float64(i)*0.001)})
		i++
	}
	return obs
}

// Collector fetches every symbol through an ordered provider chain.
type Collector struct {
	Providers   []Provider
	MaxParallel int
	log         zerolog.Logger
}

// NewCollector creates a new Collector. Providers are tried in order per symbol.
func NewCollector(log zerolog.Logger, maxParallel int, providers ...Provider) *Collector {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Collector{Providers: providers, MaxParallel: maxParallel, log: log}
}

// Collect fetches all symbols concurrently. A symbol that no provider can serve
// is absent from the result and reported in the diagnostics, which follow the
// order of symbols.
func (c *Collector) Collect(ctx context.Context, symbols []string, from, to time.Time) (model.MarketData, []model.ProviderDiagnostic) {
	diags := make([]model.ProviderDiagnostic, len(symbols))
	series := make([]model.Series, len(symbols))

	sem := make(chan struct{}, c.MaxParallel)
	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				diags[i] = model.ProviderDiagnostic{Symbol: sym, Note: ctx.Err().Error()}
				return
			}
			series[i], diags[i] = c.fetchOne(ctx, sym, from, to)
		}(i, sym)
	}
	wg.Wait()

	data := make(model.MarketData, len(symbols))
	for i, d := range diags {
		if d.OK {
			data[symbols[i]] = series[i]
		}
	}
	return data, diags
}

func (c *Collector) fetchOne(ctx context.Context, symbol string, from, to time.Time) (model.Series, model.ProviderDiagnostic) {
	diag := model.ProviderDiagnostic{Symbol: symbol}
	var errs []error
	for _, p := range c.Providers {
		obs, err := p.FetchDaily(ctx, symbol, from, to)
		if err == nil {
			obs = within(obs, from, to)
			if len(obs) == 0 {
				err = ErrNoData
			}
		}
		if err != nil {
			c.log.Warn().Err(err).Str("symbol", symbol).Str("provider", p.Name()).Msg("provider failure")
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		s := model.Series{Symbol: symbol, Observations: obs}.Sorted()
		diag.Provider = p.Name()
		diag.OK = true
		diag.ObservationCount = s.Len()
		diag.LastDate = s.LastDate()
		if len(errs) > 0 {
			diag.Note = errors.Join(errs...).Error()
		}
		return s, diag
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no providers configured"))
	}
	diag.Note = errors.Join(errs...).Error()
	return model.Series{Symbol: symbol}, diag
}

func within(obs []model.Observation, from, to time.Time) []model.Observation {
	lo, hi := model.Day(from), model.Day(to)
	out := obs[:0:0]
	for _, o := range obs {
		d := model.Day(o.Date)
		if d.Before(lo) || d.After(hi) {
			continue
		}
		o.Date = d
		out = append(out, o)
	}
	return out
}
