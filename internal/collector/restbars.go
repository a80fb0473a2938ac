package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"RegimeSentinel/internal/model"
)

// RESTBarsFetcher implements Provider against a generic daily-bars REST API.
type RESTBarsFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewRESTBarsFetcher creates a new fetcher with optional proxy support.
func NewRESTBarsFetcher(baseURL, apiKey, proxyURL string) *RESTBarsFetcher {
	return &RESTBarsFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  newHTTPClient(proxyURL),
	}
}

func (f *RESTBarsFetcher) Name() string { return "restbars" }

// restBar is the expected JSON shape from the bars API.
type restBar struct {
	Timestamp int64   `json:"timestamp"`
	Close     float64 `json:"close"`
}

func (f *RESTBarsFetcher) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]model.Observation, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("from", model.Day(from).Format(model.DateLayout))
	q.Set("to", model.Day(to).Format(model.DateLayout))
	endpoint := fmt.Sprintf("%s/api/v1/bars/daily?%s", f.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bars: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch bars: status %d, body: %s", resp.StatusCode, string(body))
	}
	var bars []restBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, fmt.Errorf("decode bars: %w", err)
	}

	obs := make([]model.Observation, 0, len(bars))
	for _, b := range bars {
		if b.Close == 0 {
			continue
		}
		obs = append(obs, model.Observation{Symbol: symbol, Date: model.Day(time.Unix(b.Timestamp, 0)), Close: b.Close})
	}
	if len(obs) == 0 {
		return nil, fmt.Errorf("restbars %s: %w", symbol, ErrNoData)
	}
	// Ensure chronological order
	sort.Slice(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
	return obs, nil
}
