package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"RegimeSentinel/internal/collector"
	"RegimeSentinel/internal/model"
	"RegimeSentinel/internal/recorder"
	"RegimeSentinel/internal/replay"
	"RegimeSentinel/internal/storage"
	"RegimeSentinel/internal/strategy"
)

// compute runs one pipeline execution and records its receipt.
func (e *Engine) compute(ctx context.Context, set *replay.Set, expected time.Time, latest *model.RegimeSnapshot) (Result, error) {
	started := e.now()
	run := &recorder.Run{ID: e.newID(), StartedAt: started.UTC()}
	log := e.log.With().
		Str("run_id", run.ID).
		Str("expected", expected.Format(model.DateLayout)).
		Logger()

	res, err := e.pipeline(ctx, run, set, expected, latest, log)

	run.Duration = e.now().Sub(started)
	run.Outcome = res.Outcome
	run.AsOf = res.Snapshot.AsOf
	run.Regime = res.Snapshot.Regime
	if err != nil {
		run.Outcome = recorder.OutcomeFailed
		run.Error = err.Error()
	}
	if rerr := e.recorder.RecordRun(context.WithoutCancel(ctx), run); rerr != nil {
		log.Error().Err(rerr).Msg("record run")
	}
	e.metrics.RecordRun(string(run.Outcome), run.StaleReason, run.Duration.Seconds())

	log.Info().
		Str("outcome", string(run.Outcome)).
		Str("regime", string(run.Regime)).
		Dur("duration", run.Duration).
		Msg("pipeline finished")
	return res, err
}

func (e *Engine) pipeline(ctx context.Context, run *recorder.Run, set *replay.Set, expected time.Time, latest *model.RegimeSnapshot, log zerolog.Logger) (Result, error) {
	fctx, cancel := context.WithTimeout(ctx, e.fetchTimeout)
	defer cancel()

	from := expected.AddDate(0, 0, -e.lookbackDays)
	data, diags := e.collector.Collect(fctx, e.params.Symbols(), from, expected)
	run.Diagnostics = diags
	for _, d := range diags {
		if !d.OK {
			e.metrics.RecordProviderFailure(d.Symbol)
		}
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	anchor := data.Series(e.params.AnchorSymbol())
	switch {
	case errors.Is(fctx.Err(), context.DeadlineExceeded):
		return e.stale(run, latest, model.StaleProviderTimeout, log)
	case len(data) == 0:
		return e.stale(run, latest, model.StaleNoMarketData, log)
	case anchor.Len() == 0:
		return e.stale(run, latest, model.StaleAnchorUnavailable, log)
	}

	asOf := model.Day(anchor.LastDate())
	if latest != nil && !asOf.After(model.Day(latest.AsOf)) {
		log.Info().Str("as_of", asOf.Format(model.DateLayout)).Msg("no new session bar, keeping latest")
		return Result{Snapshot: *latest, Outcome: recorder.OutcomeCached}, nil
	}
	if set.Contains(asOf) {
		row, err := set.At(asOf)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrNoSnapshot, err)
		}
		return Result{Snapshot: row, Outcome: recorder.OutcomeReplay}, nil
	}
	data = trimTo(data, asOf)

	chains := make([][]string, 0, len(e.params.Satellites))
	for _, s := range e.params.Satellites {
		chains = append(chains, s.Chain())
	}
	resolved := collector.ResolveSatellites(fctx, e.satellites, chains, asOf, log)

	prior, err := e.priorSnapshots(ctx, set, asOf)
	if err != nil {
		return Result{}, err
	}

	ev := strategy.Evaluate(e.params, strategy.Input{
		AsOf: asOf,
		Data: data,
		Satellites: func(id string) (model.SatelliteObservation, bool) {
			obs, ok := resolved[id]
			return obs, ok
		},
		Prior: prior,
	})
	run.Votes = ev.Votes
	run.Satellites = ev.Satellites
	run.Warnings = ev.Warnings
	for _, w := range ev.Warnings {
		log.Warn().Str("as_of", asOf.Format(model.DateLayout)).Msg(w)
	}
	e.metrics.RecordWarnings(len(ev.Warnings))

	if !e.params.Covered(ev.Votes) {
		log.Warn().
			Int("risk_votes", strategy.Coverage(ev.Votes, model.AxisRisk)).
			Int("infl_votes", strategy.Coverage(ev.Votes, model.AxisInflation)).
			Int("min_coverage", e.params.MinCoverage).
			Msg("too few usable signals")
		return e.stale(run, latest, model.StaleInsufficientCoverage, log)
	}

	snap := ev.Snapshot
	snap.RunAt = e.now().UTC().Truncate(time.Second)
	ev.Snapshot = snap

	if err := e.store.AppendHistory(ctx, snap); err != nil {
		if errors.Is(err, storage.ErrDuplicateDate) {
			// The history row already exists; it stands and latest follows it.
			return e.adoptHistoryTail(ctx, asOf, log)
		}
		return Result{}, fmt.Errorf("append history: %w", err)
	}
	if err := e.store.WriteLatest(ctx, snap); err != nil {
		return Result{}, fmt.Errorf("write latest: %w", err)
	}
	meta := model.Meta{Version: model.MetaVersion, LastUpdated: snap.RunAt, LastAsOf: snap.AsOf}
	if err := e.store.WriteMeta(ctx, meta); err != nil {
		return Result{}, fmt.Errorf("write meta: %w", err)
	}
	e.metrics.RecordSnapshot(snap)

	return Result{Snapshot: snap, Outcome: recorder.OutcomeComputed, Evaluation: &ev}, nil
}

// adoptHistoryTail makes latest and meta agree with the stored history
// tail. It heals a run whose history append landed but whose latest write
// did not, and serves a concurrent writer's row for the same date.
func (e *Engine) adoptHistoryTail(ctx context.Context, asOf time.Time, log zerolog.Logger) (Result, error) {
	history, err := e.store.ReadHistory(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("read history: %w", err)
	}
	if len(history) == 0 {
		return Result{}, fmt.Errorf("append history: %w", storage.ErrDuplicateDate)
	}
	tail := history[len(history)-1]
	if model.Day(tail.AsOf).Before(asOf) {
		return Result{}, fmt.Errorf("append history: %w: tail %s before %s",
			storage.ErrDuplicateDate, tail.AsOf.Format(model.DateLayout), asOf.Format(model.DateLayout))
	}

	stored, ok, err := e.readLatest(ctx)
	if err != nil {
		return Result{}, err
	}
	if ok && model.Day(stored.AsOf).Equal(model.Day(tail.AsOf)) {
		return Result{Snapshot: stored, Outcome: recorder.OutcomeCached}, nil
	}

	log.Warn().
		Str("as_of", tail.AsOf.Format(model.DateLayout)).
		Msg("latest behind history, restoring from history tail")
	if err := e.store.WriteLatest(ctx, tail); err != nil {
		return Result{}, fmt.Errorf("write latest: %w", err)
	}
	meta := model.Meta{Version: model.MetaVersion, LastUpdated: tail.RunAt, LastAsOf: tail.AsOf}
	if err := e.store.WriteMeta(ctx, meta); err != nil {
		return Result{}, fmt.Errorf("write meta: %w", err)
	}
	return Result{Snapshot: tail, Outcome: recorder.OutcomeCached}, nil
}

// stale serves the stored latest marked stale. It is never persisted.
func (e *Engine) stale(run *recorder.Run, latest *model.RegimeSnapshot, reason string, log zerolog.Logger) (Result, error) {
	run.StaleReason = reason
	if latest == nil {
		log.Error().Str("reason", reason).Msg("no market data and no prior snapshot")
		return Result{Outcome: recorder.OutcomeFailed}, fmt.Errorf("%w: %s", ErrNoSnapshot, reason)
	}
	snap := *latest
	snap.Stale = true
	snap.StaleReason = reason
	log.Warn().
		Str("reason", reason).
		Str("as_of", snap.AsOf.Format(model.DateLayout)).
		Msg("serving stale snapshot")
	return Result{Snapshot: snap, Outcome: recorder.OutcomeStale}, nil
}

// priorSnapshots is the tail of merged history strictly before asOf.
func (e *Engine) priorSnapshots(ctx context.Context, set *replay.Set, asOf time.Time) ([]model.RegimeSnapshot, error) {
	stored, err := e.store.ReadHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	prior := mergeHistory(set, stored, time.Time{}, asOf.AddDate(0, 0, -1))
	if n := len(prior); n > e.priorWindow {
		prior = prior[n-e.priorWindow:]
	}
	return prior, nil
}

// trimTo drops observations after asOf. Weekend crypto bars would otherwise
// end the series past the anchor session.
func trimTo(data model.MarketData, asOf time.Time) model.MarketData {
	out := make(model.MarketData, len(data))
	for sym, s := range data {
		obs := make([]model.Observation, 0, s.Len())
		for _, o := range s.Observations {
			if !model.Day(o.Date).After(asOf) {
				obs = append(obs, o)
			}
		}
		out[sym] = model.Series{Symbol: s.Symbol, Observations: obs}
	}
	return out
}
