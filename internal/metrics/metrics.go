package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"RegimeSentinel/internal/model"
)

// Recorder exposes pipeline health as Prometheus metrics.
type Recorder struct {
	runs          *prometheus.CounterVec
	providerFails *prometheus.CounterVec
	duration      prometheus.Histogram
	lastAsOf      prometheus.Gauge
	riskScore     prometheus.Gauge
	inflScore     prometheus.Gauge
	regime        *prometheus.GaugeVec
	warnings      prometheus.Counter
}

// New registers the collectors on reg. Passing a fresh registry keeps tests isolated.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_runs_total",
				Help: "Today calls by outcome and stale reason",
			},
			[]string{"outcome", "reason"},
		),
		providerFails: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentinel_provider_failures_total",
				Help: "Symbols no provider could serve",
			},
			[]string{"symbol"},
		),
		duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sentinel_pipeline_duration_seconds",
				Help:    "Duration of the daily pipeline in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		lastAsOf: f.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_last_as_of_timestamp_seconds",
			Help: "As-of date of the newest computed snapshot",
		}),
		riskScore: f.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_risk_score",
			Help: "Risk axis score of the newest snapshot",
		}),
		inflScore: f.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_inflation_score",
			Help: "Inflation axis score of the newest snapshot",
		}),
		regime: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentinel_regime",
				Help: "1 for the current regime, 0 otherwise",
			},
			[]string{"regime"},
		),
		warnings: f.NewCounter(prometheus.CounterOpts{
			Name: "sentinel_allocation_warnings_total",
			Help: "Allocation tolerance warnings",
		}),
	}
}

// RecordRun counts one Today outcome.
func (r *Recorder) RecordRun(outcome, reason string, seconds float64) {
	if r == nil {
		return
	}
	r.runs.WithLabelValues(outcome, reason).Inc()
	if seconds > 0 {
		r.duration.Observe(seconds)
	}
}

// RecordProviderFailure counts an unservable symbol.
func (r *Recorder) RecordProviderFailure(symbol string) {
	if r == nil {
		return
	}
	r.providerFails.WithLabelValues(symbol).Inc()
}

// RecordWarnings counts allocation warnings.
func (r *Recorder) RecordWarnings(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.warnings.Add(float64(n))
}

// RecordSnapshot publishes the newest computed snapshot.
func (r *Recorder) RecordSnapshot(s model.RegimeSnapshot) {
	if r == nil {
		return
	}
	r.lastAsOf.Set(float64(s.AsOf.Unix()))
	r.riskScore.Set(s.RiskScore)
	r.inflScore.Set(s.InflScore)
	for _, q := range []model.Regime{model.Goldilocks, model.Reflation, model.Inflation, model.Deflation} {
		v := 0.0
		if q == s.Regime {
			v = 1
		}
		r.regime.WithLabelValues(string(q)).Set(v)
	}
}
