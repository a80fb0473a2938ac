package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"RegimeSentinel/internal/collector"
	"RegimeSentinel/internal/metrics"
	"RegimeSentinel/internal/model"
	"RegimeSentinel/internal/recorder"
	"RegimeSentinel/internal/replay"
	"RegimeSentinel/internal/storage"
	"RegimeSentinel/internal/strategy"
)

// ErrNoSnapshot is the hard failure: nothing could be computed and nothing
// was stored before.
var ErrNoSnapshot = errors.New("engine: no snapshot available")

// MarketCollector fetches the market data of one computation.
type MarketCollector interface {
	Collect(ctx context.Context, symbols []string, from, to time.Time) (model.MarketData, []model.ProviderDiagnostic)
}

// SessionClock names the newest closed trading session.
type SessionClock interface {
	LastClosedSession(now time.Time) time.Time
}

// SessionFunc adapts a function to SessionClock.
type SessionFunc func(now time.Time) time.Time

func (f SessionFunc) LastClosedSession(now time.Time) time.Time { return f(now) }

// Options wires an Engine.
type Options struct {
	Params       strategy.Params
	Store        storage.Store
	Replay       *replay.Loader
	Collector    MarketCollector
	Satellites   collector.SatelliteSource
	Sessions     SessionClock
	Locker       Locker
	Recorder     recorder.Recorder
	Metrics      *metrics.Recorder
	Log          zerolog.Logger
	LookbackDays int
	FetchTimeout time.Duration
	// PriorWindow bounds how many earlier snapshots feed flip-watch.
	PriorWindow int
	Now         func() time.Time
	NewID       func() string
}

// Engine owns the replay/computed lifecycle of regime snapshots.
type Engine struct {
	params       strategy.Params
	store        storage.Store
	replay       *replay.Loader
	collector    MarketCollector
	satellites   collector.SatelliteSource
	sessions     SessionClock
	locker       Locker
	recorder     recorder.Recorder
	metrics      *metrics.Recorder
	log          zerolog.Logger
	lookbackDays int
	fetchTimeout time.Duration
	priorWindow  int
	now          func() time.Time
	newID        func() string
}

// Result is a snapshot plus how it was obtained.
type Result struct {
	Snapshot model.RegimeSnapshot
	Outcome  recorder.Outcome
	// Evaluation is set only when the snapshot was computed by this call.
	Evaluation *strategy.Evaluation
}

// New validates options and builds an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Collector == nil || opts.Sessions == nil || opts.Replay == nil {
		return nil, errors.New("engine: store, collector, sessions and replay are required")
	}
	e := &Engine{
		params:       opts.Params,
		store:        opts.Store,
		replay:       opts.Replay,
		collector:    opts.Collector,
		satellites:   opts.Satellites,
		sessions:     opts.Sessions,
		locker:       opts.Locker,
		recorder:     opts.Recorder,
		metrics:      opts.Metrics,
		log:          opts.Log,
		lookbackDays: opts.LookbackDays,
		fetchTimeout: opts.FetchTimeout,
		priorWindow:  opts.PriorWindow,
		now:          opts.Now,
		newID:        opts.NewID,
	}
	if e.locker == nil {
		e.locker = NewMemoryLocker()
	}
	if e.recorder == nil {
		e.recorder = recorder.NewNoopRecorder()
	}
	if e.lookbackDays <= 0 {
		e.lookbackDays = 400
	}
	if e.fetchTimeout <= 0 {
		e.fetchTimeout = 45 * time.Second
	}
	if e.priorWindow <= 0 {
		e.priorWindow = 30
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	return e, nil
}

// Today returns the snapshot for the newest closed session.
func (e *Engine) Today(ctx context.Context) (model.RegimeSnapshot, error) {
	res, err := e.Refresh(ctx)
	return res.Snapshot, err
}

// Refresh is Today with provenance. At most one computation per session
// date runs at a time; late callers get the stored result.
func (e *Engine) Refresh(ctx context.Context) (Result, error) {
	expected := model.Day(e.sessions.LastClosedSession(e.now()))

	set, err := e.replay.Load()
	if err != nil {
		return Result{}, err
	}
	if set.Contains(expected) {
		return e.fromReplay(set, expected)
	}

	latest, hasLatest, err := e.readLatest(ctx)
	if err != nil {
		return Result{}, err
	}
	if hasLatest && !latest.AsOf.Before(expected) {
		e.metrics.RecordRun(string(recorder.OutcomeCached), "", 0)
		return Result{Snapshot: latest, Outcome: recorder.OutcomeCached}, nil
	}

	unlock, err := e.locker.Lock(ctx, expected.Format(model.DateLayout))
	if err != nil {
		return Result{}, fmt.Errorf("acquire run lock: %w", err)
	}
	defer unlock()

	// Another caller may have finished while we waited.
	latest, hasLatest, err = e.readLatest(ctx)
	if err != nil {
		return Result{}, err
	}
	if hasLatest && !latest.AsOf.Before(expected) {
		e.metrics.RecordRun(string(recorder.OutcomeCached), "", 0)
		return Result{Snapshot: latest, Outcome: recorder.OutcomeCached}, nil
	}

	var prev *model.RegimeSnapshot
	if hasLatest {
		prev = &latest
	}
	return e.compute(ctx, set, expected, prev)
}

func (e *Engine) fromReplay(set *replay.Set, d time.Time) (Result, error) {
	row, err := set.At(d)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrNoSnapshot, err)
	}
	e.metrics.RecordRun(string(recorder.OutcomeReplay), "", 0)
	return Result{Snapshot: row, Outcome: recorder.OutcomeReplay}, nil
}

func (e *Engine) readLatest(ctx context.Context) (model.RegimeSnapshot, bool, error) {
	snap, err := e.store.ReadLatest(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return model.RegimeSnapshot{}, false, nil
	}
	if err != nil {
		return model.RegimeSnapshot{}, false, fmt.Errorf("read latest: %w", err)
	}
	return snap, true, nil
}

// History merges replay rows (up to the cutover) with stored rows (after it),
// sorted by date. Zero bounds leave that side open; bounds are inclusive.
func (e *Engine) History(ctx context.Context, from, to time.Time) ([]model.RegimeSnapshot, error) {
	set, err := e.replay.Load()
	if err != nil {
		return nil, err
	}
	stored, err := e.store.ReadHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return mergeHistory(set, stored, from, to), nil
}

func mergeHistory(set *replay.Set, stored []model.RegimeSnapshot, from, to time.Time) []model.RegimeSnapshot {
	all := set.Rows()
	for _, s := range stored {
		if !set.Contains(s.AsOf) {
			all = append(all, s)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].AsOf.Before(all[j].AsOf) })

	lo, hi := model.Day(from), model.Day(to)
	out := all[:0]
	var last time.Time
	for i, s := range all {
		d := model.Day(s.AsOf)
		if i > 0 && d.Equal(last) {
			continue
		}
		last = d
		if !from.IsZero() && d.Before(lo) {
			continue
		}
		if !to.IsZero() && d.After(hi) {
			continue
		}
		out = append(out, s)
	}
	return out
}
