package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"RegimeSentinel/internal/model"
)

var (
	// ErrNotFound is returned when a key has never been written.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicateDate rejects a history append that does not move the date forward.
	ErrDuplicateDate = errors.New("storage: duplicate or out-of-order as-of date")
	// ErrConflict reports a lost compare-and-swap race on a remote object.
	ErrConflict = errors.New("storage: concurrent modification")
)

// Object keys shared by every backend.
const (
	HistoryKey = "history.jsonl"
	LatestKey  = "latest.json"
	MetaKey    = "meta.json"
)

// Store persists the append-only history, the latest pointer and meta.
type Store interface {
	AppendHistory(ctx context.Context, snap model.RegimeSnapshot) error
	ReadHistory(ctx context.Context) ([]model.RegimeSnapshot, error)
	ReadLatest(ctx context.Context) (model.RegimeSnapshot, error)
	WriteLatest(ctx context.Context, snap model.RegimeSnapshot) error
	ReadMeta(ctx context.Context) (model.Meta, error)
	WriteMeta(ctx context.Context, meta model.Meta) error
	Name() string
}

// Snapshot dates are compared as calendar days.
func checkAppend(last, next time.Time, known bool) error {
	if known && !model.Day(next).After(model.Day(last)) {
		return fmt.Errorf("%w: %s after %s", ErrDuplicateDate,
			next.Format(model.DateLayout), last.Format(model.DateLayout))
	}
	return nil
}

func encodeLine(snap model.RegimeSnapshot) ([]byte, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return append(b, '\n'), nil
}

// decodeHistory parses JSON lines and returns them sorted by as-of date.
func decodeHistory(r io.Reader) ([]model.RegimeSnapshot, error) {
	var out []model.RegimeSnapshot
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var snap model.RegimeSnapshot
		if err := json.Unmarshal(b, &snap); err != nil {
			return nil, fmt.Errorf("history line %d: %w", line, err)
		}
		out = append(out, snap)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan history: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].AsOf.Before(out[j].AsOf) })
	return out, nil
}

func lastAsOf(history []model.RegimeSnapshot) (time.Time, bool) {
	if len(history) == 0 {
		return time.Time{}, false
	}
	return history[len(history)-1].AsOf, true
}
