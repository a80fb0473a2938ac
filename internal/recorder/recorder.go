package recorder

import (
	"context"
	"time"

	"RegimeSentinel/internal/model"
)

// Outcome of one Today call that reached the pipeline or a shortcut.
type Outcome string

const (
	OutcomeComputed Outcome = "computed"
	OutcomeCached   Outcome = "cached"
	OutcomeReplay   Outcome = "replay"
	OutcomeStale    Outcome = "stale"
	OutcomeFailed   Outcome = "failed"
)

// Run is the receipt of one pipeline execution.
type Run struct {
	ID          string                        `json:"id"`
	StartedAt   time.Time                     `json:"started_at"`
	Duration    time.Duration                 `json:"duration_ns"`
	AsOf        time.Time                     `json:"as_of"`
	Outcome     Outcome                       `json:"outcome"`
	StaleReason string                        `json:"stale_reason,omitempty"`
	Regime      model.Regime                  `json:"regime,omitempty"`
	Error       string                        `json:"error,omitempty"`
	Diagnostics []model.ProviderDiagnostic    `json:"diagnostics,omitempty"`
	Votes       []model.SignalVote            `json:"votes,omitempty"`
	Satellites  []model.SatelliteContribution `json:"satellites,omitempty"`
	Warnings    []string                      `json:"warnings,omitempty"`
}

// Recorder persists run receipts for later inspection.
type Recorder interface {
	RecordRun(ctx context.Context, run *Run) error
	RecentRuns(ctx context.Context, limit int) ([]Run, error)
	Close() error
}
