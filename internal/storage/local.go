package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"RegimeSentinel/internal/model"
)

// LocalStore keeps the three objects as files in one directory.
type LocalStore struct {
	mu  sync.Mutex
	dir string
	// cached newest history date, loaded on first append
	last      time.Time
	lastKnown bool
	loaded    bool
}

// NewLocalStore creates dir if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Name() string { return "local" }

func (s *LocalStore) path(key string) string { return filepath.Join(s.dir, key) }

func (s *LocalStore) AppendHistory(_ context.Context, snap model.RegimeSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		history, err := s.readHistory()
		if err != nil {
			return err
		}
		s.last, s.lastKnown = lastAsOf(history)
		s.loaded = true
	}
	if err := checkAppend(s.last, snap.AsOf, s.lastKnown); err != nil {
		return err
	}

	line, err := encodeLine(snap)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.path(HistoryKey), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return fmt.Errorf("append history: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync history: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	s.last, s.lastKnown = snap.AsOf, true
	return nil
}

func (s *LocalStore) ReadHistory(_ context.Context) ([]model.RegimeSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readHistory()
}

func (s *LocalStore) readHistory() ([]model.RegimeSnapshot, error) {
	data, err := os.ReadFile(s.path(HistoryKey))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}
	return decodeHistory(bytes.NewReader(data))
}

func (s *LocalStore) ReadLatest(_ context.Context) (model.RegimeSnapshot, error) {
	var snap model.RegimeSnapshot
	err := s.loadJSON(LatestKey, &snap)
	return snap, err
}

func (s *LocalStore) WriteLatest(_ context.Context, snap model.RegimeSnapshot) error {
	return s.saveJSON(LatestKey, snap)
}

func (s *LocalStore) ReadMeta(_ context.Context) (model.Meta, error) {
	var meta model.Meta
	err := s.loadJSON(MetaKey, &meta)
	return meta, err
}

func (s *LocalStore) WriteMeta(_ context.Context, meta model.Meta) error {
	return s.saveJSON(MetaKey, meta)
}

// loadJSON reads a JSON object. Returns ErrNotFound if the file doesn't exist.
func (s *LocalStore) loadJSON(key string, v any) error {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// saveJSON writes through a temp file and a rename so readers never see a partial object.
func (s *LocalStore) saveJSON(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}
