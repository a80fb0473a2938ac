package storage

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegimeSentinel/internal/model"
)

func snap(date string, regime model.Regime) model.RegimeSnapshot {
	d, _ := model.ParseDate(date)
	return model.RegimeSnapshot{
		AsOf:       d,
		RunAt:      d.Add(22 * time.Hour),
		Regime:     regime,
		RiskRegime: model.RiskOf(regime),
		RiskScore:  2,
		InflScore:  -1,
		Allocation: model.Allocation{Actual: model.Weights{Stocks: 0.6, Gold: 0.3}, Cash: 0.1},
		Source:     model.SourceComputed,
	}
}

// exerciseStore runs the contract every backend must satisfy.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.ReadLatest(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.ReadMeta(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	history, err := s.ReadHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)

	a, b := snap("2025-03-03", model.Goldilocks), snap("2025-03-04", model.Reflation)
	require.NoError(t, s.AppendHistory(ctx, a))
	require.NoError(t, s.AppendHistory(ctx, b))
	assert.ErrorIs(t, s.AppendHistory(ctx, b), ErrDuplicateDate)
	assert.ErrorIs(t, s.AppendHistory(ctx, a), ErrDuplicateDate)

	history, err = s.ReadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, a, history[0])
	assert.Equal(t, b, history[1])

	require.NoError(t, s.WriteLatest(ctx, a))
	require.NoError(t, s.WriteLatest(ctx, b))
	latest, err := s.ReadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, latest)

	meta := model.Meta{Version: model.MetaVersion, LastUpdated: b.RunAt, LastAsOf: b.AsOf}
	require.NoError(t, s.WriteMeta(ctx, meta))
	got, err := s.ReadMeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestLocalStore_Contract(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestLocalStore_FileLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, s.AppendHistory(ctx, snap("2025-03-03", model.Goldilocks)))
	require.NoError(t, s.WriteLatest(ctx, snap("2025-03-03", model.Goldilocks)))

	raw, err := os.ReadFile(filepath.Join(dir, HistoryKey))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(raw), "\n"))
	assert.Contains(t, string(raw), `"as_of":"2025-03-03T00:00:00Z"`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp files must be renamed away")
	}
}

func TestLocalStore_ReopenKeepsOrdering(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	s1, _ := NewLocalStore(dir)
	require.NoError(t, s1.AppendHistory(ctx, snap("2025-03-04", model.Goldilocks)))

	s2, _ := NewLocalStore(dir)
	assert.ErrorIs(t, s2.AppendHistory(ctx, snap("2025-03-04", model.Goldilocks)), ErrDuplicateDate)
	assert.NoError(t, s2.AppendHistory(ctx, snap("2025-03-05", model.Goldilocks)))
}

// fakeBlob is an in-memory object store honoring If-Match and If-None-Match.
type fakeBlob struct {
	mu        sync.Mutex
	objects   map[string][]byte
	token     string
	conflicts int // number of upcoming history PUTs to reject with 412
	puts      int
	noETag    bool
}

func newFakeBlob(token string) *fakeBlob {
	return &fakeBlob{objects: map[string][]byte{}, token: token}
}

func etagOf(b []byte) string { return fmt.Sprintf(`"%x"`, sha1.Sum(b)) }

func (f *fakeBlob) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := r.URL.Path
	cur, exists := f.objects[key]

	switch r.Method {
	case http.MethodGet:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !f.noETag {
			w.Header().Set("ETag", etagOf(cur))
		}
		w.Write(cur)
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		if strings.HasSuffix(key, HistoryKey) && f.conflicts > 0 {
			f.conflicts--
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		if m := r.Header.Get("If-Match"); m != "" && (!exists || m != etagOf(cur)) {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		if r.Header.Get("If-None-Match") == "*" && exists {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		f.objects[key] = body
		f.puts++
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestBlobStore_Contract(t *testing.T) {
	fake := newFakeBlob("secret")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	exerciseStore(t, NewBlobStore(srv.URL, "regime", "secret"))
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Contains(t, fake.objects, "/regime/"+HistoryKey)
	assert.Contains(t, fake.objects, "/regime/"+LatestKey)
	assert.Contains(t, fake.objects, "/regime/"+MetaKey)
}

func TestBlobStore_RetriesConflicts(t *testing.T) {
	fake := newFakeBlob("secret")
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s := NewBlobStore(srv.URL, "", "secret")
	ctx := context.Background()

	fake.conflicts = 2
	require.NoError(t, s.AppendHistory(ctx, snap("2025-03-03", model.Goldilocks)))

	fake.conflicts = 3
	err := s.AppendHistory(ctx, snap("2025-03-04", model.Goldilocks))
	assert.ErrorIs(t, err, ErrConflict)

	history, err := s.ReadHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestBlobStore_StaleETagIsConflict(t *testing.T) {
	fake := newFakeBlob("secret")
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s := NewBlobStore(srv.URL, "", "secret")

	err := s.put(context.Background(), HistoryKey, []byte("x\n"), "application/x-ndjson", `"stale"`, false)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestBlobStore_AppendRefusesObjectWithoutETag(t *testing.T) {
	fake := newFakeBlob("secret")
	srv := httptest.NewServer(fake)
	defer srv.Close()
	s := NewBlobStore(srv.URL, "", "secret")
	ctx := context.Background()

	// The first append creates the object with If-None-Match.
	fake.noETag = true
	require.NoError(t, s.AppendHistory(ctx, snap("2025-03-03", model.Goldilocks)))

	err := s.AppendHistory(ctx, snap("2025-03-04", model.Goldilocks))
	assert.ErrorIs(t, err, ErrMissingETag)

	fake.mu.Lock()
	assert.Equal(t, 1, fake.puts, "no unconditional overwrite was sent")
	fake.mu.Unlock()
	history, err := s.ReadHistory(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestBlobStore_BadToken(t *testing.T) {
	srv := httptest.NewServer(newFakeBlob("secret"))
	defer srv.Close()
	_, err := NewBlobStore(srv.URL, "", "wrong").ReadLatest(context.Background())
	assert.ErrorContains(t, err, "status 401")
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{Backend: BackendLocal, LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "local", s.Name())

	s, err = Open(Config{Backend: BackendBlob, BlobURL: "http://blob.local", BlobToken: "t"})
	require.NoError(t, err)
	assert.Equal(t, "blob", s.Name())

	_, err = Open(Config{Backend: BackendBlob, BlobURL: "http://blob.local"})
	assert.ErrorIs(t, err, ErrBackend)
	_, err = Open(Config{})
	assert.ErrorIs(t, err, ErrBackend)
}
