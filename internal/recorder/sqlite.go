package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"RegimeSentinel/internal/model"
)

// SQLiteRecorder persists run receipts to a SQLite database.
type SQLiteRecorder struct {
	db  *sqlx.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// runRow is the table layout; receipts are stored as JSON text.
type runRow struct {
	ID          string `db:"id"`
	StartedAt   int64  `db:"started_at"`
	DurationMS  int64  `db:"duration_ms"`
	AsOf        string `db:"as_of"`
	Outcome     string `db:"outcome"`
	StaleReason string `db:"stale_reason"`
	Regime      string `db:"regime"`
	Error       string `db:"error"`
	Diagnostics string `db:"diagnostics"`
	Votes       string `db:"votes"`
	Satellites  string `db:"satellites"`
	Warnings    string `db:"warnings"`
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so readers (CLI, dashboards) don't block the daily writer.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id           TEXT PRIMARY KEY,
			started_at   INTEGER NOT NULL,
			duration_ms  INTEGER NOT NULL,
			as_of        TEXT,
			outcome      TEXT NOT NULL,
			stale_reason TEXT,
			regime       TEXT,
			error        TEXT,
			diagnostics  TEXT,
			votes        TEXT,
			satellites   TEXT,
			warnings     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_as_of ON runs(as_of)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:30], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(ctx context.Context, run *Run) error {
	row, err := toRow(run)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err = r.db.NamedExecContext(ctx, `INSERT INTO runs
		(id, started_at, duration_ms, as_of, outcome, stale_reason, regime, error,
		 diagnostics, votes, satellites, warnings)
		VALUES (:id, :started_at, :duration_ms, :as_of, :outcome, :stale_reason, :regime, :error,
		 :diagnostics, :votes, :satellites, :warnings)`, row)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecentRuns returns the newest runs first.
func (r *SQLiteRecorder) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows,
		`SELECT id, started_at, duration_ms, as_of, outcome, stale_reason, regime, error,
		        diagnostics, votes, satellites, warnings
		   FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit); err != nil {
		return nil, fmt.Errorf("select runs: %w", err)
	}
	out := make([]Run, 0, len(rows))
	for _, row := range rows {
		run, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func toRow(run *Run) (runRow, error) {
	row := runRow{
		ID:          run.ID,
		StartedAt:   run.StartedAt.UnixMilli(),
		DurationMS:  run.Duration.Milliseconds(),
		Outcome:     string(run.Outcome),
		StaleReason: run.StaleReason,
		Regime:      string(run.Regime),
		Error:       run.Error,
	}
	if !run.AsOf.IsZero() {
		row.AsOf = run.AsOf.Format(model.DateLayout)
	}
	fields := []struct {
		dst *string
		v   any
	}{
		{&row.Diagnostics, run.Diagnostics},
		{&row.Votes, run.Votes},
		{&row.Satellites, run.Satellites},
		{&row.Warnings, run.Warnings},
	}
	for _, f := range fields {
		b, err := json.Marshal(f.v)
		if err != nil {
			return row, fmt.Errorf("encode run receipt: %w", err)
		}
		*f.dst = string(b)
	}
	return row, nil
}

func fromRow(row runRow) (Run, error) {
	run := Run{
		ID:          row.ID,
		StartedAt:   time.UnixMilli(row.StartedAt).UTC(),
		Duration:    time.Duration(row.DurationMS) * time.Millisecond,
		Outcome:     Outcome(row.Outcome),
		StaleReason: row.StaleReason,
		Regime:      model.Regime(row.Regime),
		Error:       row.Error,
	}
	if row.AsOf != "" {
		d, err := model.ParseDate(row.AsOf)
		if err != nil {
			return run, fmt.Errorf("run %s as_of: %w", row.ID, err)
		}
		run.AsOf = d
	}
	fields := []struct {
		src string
		dst any
	}{
		{row.Diagnostics, &run.Diagnostics},
		{row.Votes, &run.Votes},
		{row.Satellites, &run.Satellites},
		{row.Warnings, &run.Warnings},
	}
	for _, f := range fields {
		if f.src == "" {
			continue
		}
		if err := json.Unmarshal([]byte(f.src), f.dst); err != nil {
			return run, fmt.Errorf("run %s receipt: %w", row.ID, err)
		}
	}
	return run, nil
}
