package collector

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegimeSentinel/internal/model"
)

var (
	from = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)
)

func TestYahooFetcher_ParsesChart(t *testing.T) {
	var gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		fmt.Fprintf(w, `{"chart":{"result":[{"timestamp":[%d,%d,%d],
			"indicators":{"quote":[{"close":[101.5,null,103.25]}]}}],"error":null}}`,
			from.Unix()+14*3600, from.AddDate(0, 0, 1).Unix()+14*3600, to.Unix()+14*3600)
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	obs, err := f.FetchDaily(context.Background(), "VIX", from, to)
	require.NoError(t, err)

	assert.Equal(t, "/v8/finance/chart/^VIX", gotPath)
	assert.Contains(t, gotQuery, fmt.Sprintf("period1=%d", from.Unix()))
	assert.Contains(t, gotQuery, fmt.Sprintf("period2=%d", to.AddDate(0, 0, 1).Unix()))
	require.Len(t, obs, 2)
	assert.Equal(t, from, obs[0].Date)
	assert.Equal(t, 101.5, obs[0].Close)
	assert.Equal(t, to, obs[1].Date)
	assert.Equal(t, 103.25, obs[1].Close)
}

func TestYahooFetcher_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	_, err := f.FetchDaily(context.Background(), "NOPE", from, to)
	assert.ErrorContains(t, err, "No data found")
}

func TestRESTBarsFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.Equal(t, "SPY", r.URL.Query().Get("symbol"))
		assert.Equal(t, "2025-03-03", r.URL.Query().Get("from"))
		fmt.Fprintf(w, `[{"timestamp":%d,"close":2},{"timestamp":%d,"close":1},{"timestamp":%d,"close":0}]`,
			to.Unix(), from.Unix(), from.AddDate(0, 0, 1).Unix())
	}))
	defer srv.Close()

	obs, err := NewRESTBarsFetcher(srv.URL, "k", "").FetchDaily(context.Background(), "SPY", from, to)
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, 1.0, obs[0].Close)
	assert.Equal(t, 2.0, obs[1].Close)
}

func TestCollector_FallbackChainAndDiagnostics(t *testing.T) {
	primary := &MockFetcher{Errs: map[string]error{"GLD": errors.New("boom")}}
	secondary := &MockFetcher{Price: 50}
	c := NewCollector(zerolog.Nop(), 2, primary, secondary)

	data, diags := c.Collect(context.Background(), []string{"SPY", "GLD"}, from, to)
	require.Len(t, diags, 2)

	assert.Equal(t, "SPY", diags[0].Symbol)
	assert.True(t, diags[0].OK)
	assert.Equal(t, 5, diags[0].ObservationCount)
	assert.Equal(t, to, diags[0].LastDate)

	assert.True(t, diags[1].OK)
	assert.Contains(t, diags[1].Note, "boom")
	assert.Equal(t, 50.0, data["GLD"].Observations[0].Close)
	assert.Equal(t, 0, secondary.Calls("SPY"))
}

func TestCollector_AllProvidersFail(t *testing.T) {
	p := &MockFetcher{Errs: map[string]error{"SPY": errors.New("down")}}
	data, diags := NewCollector(zerolog.Nop(), 1, p).Collect(context.Background(), []string{"SPY"}, from, to)
	assert.Empty(t, data)
	assert.False(t, diags[0].OK)
	assert.Contains(t, diags[0].Note, "mock: down")
}

func TestCollector_SortsAndTrimsToRange(t *testing.T) {
	p := &MockFetcher{Data: map[string][]model.Observation{"SPY": {
		{Date: to, Close: 3},
		{Date: from.AddDate(0, 0, -10), Close: 99},
		{Date: from, Close: 1},
		{Date: from, Close: 2},
	}}}
	data, _ := NewCollector(zerolog.Nop(), 1, p).Collect(context.Background(), []string{"SPY"}, from, to)
	s := data["SPY"]
	require.Equal(t, 2, s.Len())
	assert.Equal(t, []float64{2, 3}, s.Closes())
}

func TestCollector_Timeout(t *testing.T) {
	p := &MockFetcher{Delay: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	data, diags := NewCollector(zerolog.Nop(), 2, p).Collect(ctx, []string{"SPY", "GLD"}, from, to)
	assert.Empty(t, data)
	for _, d := range diags {
		assert.False(t, d.OK)
	}
}

type failing struct{ calls int32 }

func (f *failing) Name() string { return "failing" }
func (f *failing) FetchDaily(context.Context, string, time.Time, time.Time) ([]model.Observation, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, errors.New("unavailable")
}

func TestGuarded_BreakerOpens(t *testing.T) {
	inner := &failing{}
	g := NewGuarded(inner, GuardConfig{RPS: 1000, Burst: 10, ConsecutiveFailures: 2, OpenTimeout: time.Minute}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		_, err := g.FetchDaily(context.Background(), "SPY", from, to)
		require.Error(t, err)
	}
	_, err := g.FetchDaily(context.Background(), "SPY", from, to)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))
	assert.Equal(t, gobreaker.StateOpen, g.State())
}

func TestGuarded_PassesThrough(t *testing.T) {
	g := NewGuarded(&MockFetcher{}, GuardConfig{}, zerolog.Nop())
	obs, err := g.FetchDaily(context.Background(), "SPY", from, to)
	require.NoError(t, err)
	assert.Len(t, obs, 5)
	assert.Equal(t, "mock", g.Name())
}

const fredCSV = `observation_date,T10YIE
2025-03-03,2.31
2025-03-04,.
2025-03-05,2.36
2025-03-10,2.40
`

func TestParseFREDCSV(t *testing.T) {
	obs, err := parseFREDCSV(strings.NewReader(fredCSV), "T10YIE", to)
	require.NoError(t, err)
	assert.Equal(t, 2.36, obs.Value)
	assert.Equal(t, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), obs.Date)

	_, err = parseFREDCSV(strings.NewReader(fredCSV), "T10YIE", from.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestFREDSource_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/graph/fredgraph.csv", r.URL.Path)
		if r.URL.Query().Get("id") != "T10YIE" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(fredCSV))
	}))
	defer srv.Close()

	src := NewFREDSource(srv.URL, "")
	obs, err := src.Latest(context.Background(), "T10YIE", to)
	require.NoError(t, err)
	assert.Equal(t, "T10YIE", obs.SeriesID)

	_, err = src.Latest(context.Background(), "MISSING", to)
	assert.ErrorContains(t, err, "status 404")
}

func TestFREDSource_AppliesTransform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("id") != "CPIAUCSL" || q.Get("transformation") != "pc1" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(fredCSV))
	}))
	defer srv.Close()

	src := NewFREDSource(srv.URL, "")
	_, err := src.Latest(context.Background(), "CPIAUCSL", to)
	require.ErrorContains(t, err, "status 404", "untransformed request does not match")

	src.Transforms = map[string]string{"CPIAUCSL": "pc1"}
	obs, err := src.Latest(context.Background(), "CPIAUCSL", to)
	require.NoError(t, err)
	assert.Equal(t, "CPIAUCSL", obs.SeriesID)
}

func TestResolveSatellites_WalksChain(t *testing.T) {
	src := StaticSatellites{
		"T5YIE": {Value: 2.6, Date: from},
		"CPI":   {Value: 3.1, Date: from},
		"CORE":  {Value: 2.9, Date: from},
	}
	got := ResolveSatellites(context.Background(), src, [][]string{{"T10YIE", "T5YIE"}, {"CPI", "CORE"}}, to, zerolog.Nop())
	assert.Contains(t, got, "T5YIE")
	assert.Contains(t, got, "CPI")
	assert.NotContains(t, got, "CORE", "fallbacks are not fetched once the head resolves")
}
