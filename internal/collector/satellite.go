package collector

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"RegimeSentinel/internal/model"
)

const fredBaseURL = "https://fred.stlouisfed.org"

// SatelliteSource returns the newest observation of a series on or before asOf.
type SatelliteSource interface {
	Latest(ctx context.Context, seriesID string, asOf time.Time) (model.SatelliteObservation, error)
	Name() string
}

// FREDSource reads the public fredgraph CSV export.
type FREDSource struct {
	BaseURL string
	Client  *http.Client
	// Transforms holds the fredgraph transformation code per series id.
	Transforms map[string]string
}

// NewFREDSource creates a FRED CSV source; an empty baseURL uses the public host.
func NewFREDSource(baseURL, proxyURL string) *FREDSource {
	if baseURL == "" {
		baseURL = fredBaseURL
	}
	return &FREDSource{BaseURL: strings.TrimRight(baseURL, "/"), Client: newHTTPClient(proxyURL)}
}

func (f *FREDSource) Name() string { return "fred" }

func (f *FREDSource) Latest(ctx context.Context, seriesID string, asOf time.Time) (model.SatelliteObservation, error) {
	q := url.Values{"id": {seriesID}}
	if t := f.Transforms[seriesID]; t != "" {
		q.Set("transformation", t)
	}
	u := f.BaseURL + "/graph/fredgraph.csv?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.SatelliteObservation{}, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return model.SatelliteObservation{}, fmt.Errorf("fred fetch %s: %w", seriesID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.SatelliteObservation{}, fmt.Errorf("fred %s: status %d, body: %s", seriesID, resp.StatusCode, string(body))
	}
	return parseFREDCSV(resp.Body, seriesID, asOf)
}

// parseFREDCSV keeps the newest numeric row dated on or before asOf.
// FRED marks missing values with ".".
func parseFREDCSV(r io.Reader, seriesID string, asOf time.Time) (model.SatelliteObservation, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	if _, err := cr.Read(); err != nil {
		return model.SatelliteObservation{}, fmt.Errorf("fred %s header: %w", seriesID, err)
	}

	limit := model.Day(asOf)
	var best model.SatelliteObservation
	found := false
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.SatelliteObservation{}, fmt.Errorf("fred %s row: %w", seriesID, err)
		}
		if len(rec) < 2 {
			continue
		}
		d, err := model.ParseDate(strings.TrimSpace(rec[0]))
		if err != nil || d.After(limit) {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		if err != nil {
			continue
		}
		if !found || d.After(best.Date) {
			best = model.SatelliteObservation{SeriesID: seriesID, Value: v, Date: d}
			found = true
		}
	}
	if !found {
		return model.SatelliteObservation{}, fmt.Errorf("fred %s: %w", seriesID, ErrNoData)
	}
	return best, nil
}

// ResolveSatellites fetches every series id in the given chains and returns a
// snapshot of what resolved, keyed by series id. Misses are logged and left out.
func ResolveSatellites(ctx context.Context, src SatelliteSource, chains [][]string, asOf time.Time, log zerolog.Logger) map[string]model.SatelliteObservation {
	out := make(map[string]model.SatelliteObservation)
	if src == nil {
		return out
	}
	for _, chain := range chains {
		for _, id := range chain {
			if _, seen := out[id]; seen || id == "" {
				continue
			}
			obs, err := src.Latest(ctx, id, asOf)
			if err != nil {
				log.Warn().Err(err).Str("series", id).Str("source", src.Name()).Msg("satellite miss")
				continue
			}
			out[id] = obs
			// The rest of the chain is only needed when the head misses.
			break
		}
	}
	return out
}

// StaticSatellites is an in-memory SatelliteSource.
type StaticSatellites map[string]model.SatelliteObservation

func (s StaticSatellites) Name() string { return "static" }

func (s StaticSatellites) Latest(_ context.Context, seriesID string, asOf time.Time) (model.SatelliteObservation, error) {
	obs, ok := s[seriesID]
	if !ok || obs.Date.After(model.Day(asOf)) {
		return model.SatelliteObservation{}, fmt.Errorf("%s: %w", seriesID, ErrNoData)
	}
	obs.SeriesID = seriesID
	return obs, nil
}
