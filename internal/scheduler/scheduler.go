package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"RegimeSentinel/internal/engine"
	"RegimeSentinel/internal/model"
	"RegimeSentinel/internal/notifier"
	"RegimeSentinel/internal/recorder"
)

// Engine is the part of *engine.Engine the scheduler drives.
type Engine interface {
	Refresh(ctx context.Context) (engine.Result, error)
	Today(ctx context.Context) (model.RegimeSnapshot, error)
	History(ctx context.Context, from, to time.Time) ([]model.RegimeSnapshot, error)
}

const (
	defaultHistoryRows = 10
	maxHistoryRows     = 60
)

// Scheduler triggers the daily pipeline and fans results out to publishers.
type Scheduler struct {
	Cron      *cron.Cron
	Engine    Engine
	Publisher notifier.Publisher
	Ctx       context.Context

	log zerolog.Logger
}

// NewScheduler creates a new Scheduler running in loc.
func NewScheduler(ctx context.Context, eng Engine, pub notifier.Publisher, loc *time.Location, log zerolog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if pub == nil {
		pub = notifier.Fanout{}
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds(), cron.WithLocation(loc)),
		Engine:    eng,
		Publisher: pub,
		Ctx:       ctx,
		log:       log,
	}
}

// Register adds the daily pipeline task.
func (s *Scheduler) Register(dailyCron string) error {
	if _, err := s.Cron.AddFunc(dailyCron, func() { s.RunDaily(s.Ctx) }); err != nil {
		return fmt.Errorf("register daily task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Int("entries", len(s.Cron.Entries())).Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running task.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunDaily refreshes today's snapshot and publishes the outcome.
func (s *Scheduler) RunDaily(ctx context.Context) (engine.Result, error) {
	s.log.Info().Msg("running daily pipeline")
	res, err := s.Engine.Refresh(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("daily pipeline failed")
		return res, err
	}

	report := notifier.Report{
		Snapshot: res.Snapshot,
		Fresh:    res.Outcome == recorder.OutcomeComputed,
	}
	if ev := res.Evaluation; ev != nil {
		report.Votes = ev.Votes
		report.Satellites = ev.Satellites
		report.Warnings = ev.Warnings
	}
	if err := s.Publisher.Publish(ctx, report); err != nil {
		s.log.Error().Err(err).Str("publisher", s.Publisher.Name()).Msg("publish report")
	}
	return res, nil
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return usage
	}
	switch fields[0] {
	case "/regime":
		snap, err := s.Engine.Today(ctx)
		if err != nil {
			return fmt.Sprintf("❌ regime unavailable: %v", err)
		}
		return notifier.FormatSnapshot(snap)
	case "/history":
		n := defaultHistoryRows
		if len(fields) > 1 {
			v, err := strconv.Atoi(fields[1])
			if err != nil || v < 1 {
				return "usage: /history [n], n between 1 and " + strconv.Itoa(maxHistoryRows)
			}
			n = min(v, maxHistoryRows)
		}
		rows, err := s.Engine.History(ctx, time.Time{}, time.Time{})
		if err != nil {
			return fmt.Sprintf("❌ history unavailable: %v", err)
		}
		if len(rows) > n {
			rows = rows[len(rows)-n:]
		}
		return notifier.FormatHistory(rows)
	default:
		return usage
	}
}

const usage = "Commands:\n• /regime\n• /history [n]"
