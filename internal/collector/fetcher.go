package collector

import (
	"context"
	"errors"
	"time"

	"RegimeSentinel/internal/model"
)

// ErrNoData is returned when a provider answers but has no usable closes.
var ErrNoData = errors.New("no data returned")

// Provider fetches daily closes for one symbol over an inclusive date range.
type Provider interface {
	FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]model.Observation, error)
	Name() string
}
