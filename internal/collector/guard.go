package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"RegimeSentinel/internal/model"
)

// GuardConfig bounds how hard one provider is hit.
type GuardConfig struct {
	RPS                 float64
	Burst               int
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// Guarded wraps a Provider with a token-bucket limiter and a circuit breaker.
// An open breaker fails fast so the fallback chain moves on.
type Guarded struct {
	inner   Provider
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewGuarded wraps p.
func NewGuarded(p Provider, cfg GuardConfig, log zerolog.Logger) *Guarded {
	if cfg.RPS <= 0 {
		cfg.RPS = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg.ConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = time.Minute
	}
	threshold := cfg.ConsecutiveFailures
	settings := gobreaker.Settings{
		Name:    p.Name(),
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("provider", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return &Guarded{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (g *Guarded) Name() string { return g.inner.Name() }

// State exposes the breaker state for diagnostics.
func (g *Guarded) State() gobreaker.State { return g.breaker.State() }

func (g *Guarded) FetchDaily(ctx context.Context, symbol string, from, to time.Time) ([]model.Observation, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limit: %w", g.inner.Name(), err)
	}
	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.inner.FetchDaily(ctx, symbol, from, to)
	})
	if err != nil {
		return nil, err
	}
	return out.([]model.Observation), nil
}
