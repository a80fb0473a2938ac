package notifier

import (
	"context"
	"errors"

	"RegimeSentinel/internal/model"
)

// Report is what one daily run announces.
type Report struct {
	Snapshot model.RegimeSnapshot
	// Fresh is set when the snapshot was computed by this run rather than
	// served from storage or replay.
	Fresh      bool
	Votes      []model.SignalVote
	Satellites []model.SatelliteContribution
	Warnings   []string
}

// Publisher delivers reports to one outside channel.
type Publisher interface {
	Publish(ctx context.Context, r Report) error
	Name() string
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Name() string { return "fanout" }

func (f Fanout) Publish(ctx context.Context, r Report) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
