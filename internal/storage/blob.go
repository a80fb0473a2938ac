package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"RegimeSentinel/internal/model"
)

// ErrMissingETag means the server returned an existing history object
// without an ETag, so the append cannot be made conditional.
var ErrMissingETag = errors.New("storage: blob object has no ETag")

// BlobStore keeps the objects in a remote object store reachable over HTTP.
// Objects live at <baseURL>/<prefix>/<key>; history appends are guarded by ETags.
type BlobStore struct {
	BaseURL    string
	Prefix     string
	Token      string
	Client     *http.Client
	MaxRetries int
}

// NewBlobStore creates a blob-backed store.
func NewBlobStore(baseURL, prefix, token string) *BlobStore {
	return &BlobStore{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Prefix:     strings.Trim(prefix, "/"),
		Token:      token,
		Client:     &http.Client{Timeout: 30 * time.Second},
		MaxRetries: 3,
	}
}

func (s *BlobStore) Name() string { return "blob" }

func (s *BlobStore) url(key string) string {
	if s.Prefix == "" {
		return s.BaseURL + "/" + key
	}
	return s.BaseURL + "/" + s.Prefix + "/" + key
}

func (s *BlobStore) get(ctx context.Context, key string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url(key), nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("blob get %s: %w", key, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, "", ErrNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("blob get %s: status %d, body: %s", key, resp.StatusCode, string(body))
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("blob read %s: %w", key, err)
	}
	return body, resp.Header.Get("ETag"), nil
}

// put uploads body. ifMatch pins the current ETag; create requires the key to be absent.
func (s *BlobStore) put(ctx context.Context, key string, body []byte, contentType, ifMatch string, create bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.url(key), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.Token)
	req.Header.Set("Content-Type", contentType)
	switch {
	case ifMatch != "":
		req.Header.Set("If-Match", ifMatch)
	case create:
		req.Header.Set("If-None-Match", "*")
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("blob put %s: %w", key, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusPreconditionFailed:
		return fmt.Errorf("blob put %s: %w", key, ErrConflict)
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("blob put %s: status %d, body: %s", key, resp.StatusCode, string(msg))
}

// AppendHistory is a read-modify-write on the history object, retried on
// ETag conflicts.
func (s *BlobStore) AppendHistory(ctx context.Context, snap model.RegimeSnapshot) error {
	line, err := encodeLine(snap)
	if err != nil {
		return err
	}
	attempts := s.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		body, etag, err := s.get(ctx, HistoryKey)
		create := false
		if errors.Is(err, ErrNotFound) {
			body, etag, create = nil, "", true
		} else if err != nil {
			return err
		}
		if !create && etag == "" {
			return fmt.Errorf("blob append %s: %w", HistoryKey, ErrMissingETag)
		}

		history, err := decodeHistory(bytes.NewReader(body))
		if err != nil {
			return err
		}
		last, known := lastAsOf(history)
		if err := checkAppend(last, snap.AsOf, known); err != nil {
			return err
		}

		if len(body) > 0 && body[len(body)-1] != '\n' {
			body = append(body, '\n')
		}
		next := append(body, line...)
		lastErr = s.put(ctx, HistoryKey, next, "application/x-ndjson", etag, create)
		if !errors.Is(lastErr, ErrConflict) {
			return lastErr
		}
	}
	return lastErr
}

func (s *BlobStore) ReadHistory(ctx context.Context) ([]model.RegimeSnapshot, error) {
	body, _, err := s.get(ctx, HistoryKey)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeHistory(bytes.NewReader(body))
}

func (s *BlobStore) ReadLatest(ctx context.Context) (model.RegimeSnapshot, error) {
	var snap model.RegimeSnapshot
	err := s.getJSON(ctx, LatestKey, &snap)
	return snap, err
}

func (s *BlobStore) WriteLatest(ctx context.Context, snap model.RegimeSnapshot) error {
	return s.putJSON(ctx, LatestKey, snap)
}

func (s *BlobStore) ReadMeta(ctx context.Context) (model.Meta, error) {
	var meta model.Meta
	err := s.getJSON(ctx, MetaKey, &meta)
	return meta, err
}

func (s *BlobStore) WriteMeta(ctx context.Context, meta model.Meta) error {
	return s.putJSON(ctx, MetaKey, meta)
}

func (s *BlobStore) getJSON(ctx context.Context, key string, v any) error {
	body, _, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *BlobStore) putJSON(ctx context.Context, key string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.put(ctx, key, body, "application/json", "", false)
}
