package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittobin/pkg/api/handlers"
	"github.com/marmos91/dittobin/pkg/blob"
	"github.com/marmos91/dittobin/pkg/blob/backend/memory"
	"github.com/marmos91/dittobin/pkg/gc"
	memsource "github.com/marmos91/dittobin/pkg/gc/source/memory"
)

type testEnv struct {
	store     *blob.Store
	index     *memsource.Source
	collector *gc.Collector
	handler   http.Handler
}

func newTestEnv(t *testing.T, m Metrics) *testEnv {
	t.Helper()
	store := blob.NewStore(memory.New(), blob.Options{})
	t.Cleanup(func() { _ = store.Close() })
	index := memsource.New("paths")
	collector := gc.New(store, []gc.Source{index}, gc.Options{})

	return &testEnv{
		store:     store,
		index:     index,
		collector: collector,
		handler: NewRouter(APIConfig{SpoolDir: t.TempDir()}, Dependencies{
			Store:     store,
			Index:     index,
			Collector: collector,
			Metrics:   m,
		}),
	}
}

func (e *testEnv) do(t *testing.T, method, target, body string, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Status string `json:"status"`
		Data   T      `json:"data"`
		Error  string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp), w.Body.String())
	return resp.Data
}

func TestRouter_Blobs(t *testing.T) {
	env := newTestEnv(t, nil)
	id := blob.FromBytes([]byte("hello"))

	w := env.do(t, http.MethodPut, "/blobs/"+id.String(), "hello")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	res := decode[blob.PutResult](t, w)
	assert.Equal(t, id, res.ID)
	assert.False(t, res.Deduplicated)

	w = env.do(t, http.MethodPut, "/blobs/"+id.String(), "hello")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[blob.PutResult](t, w).Deduplicated)

	w = env.do(t, http.MethodGet, "/blobs/"+id.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello", w.Body.String())
	assert.Equal(t, "5", w.Header().Get("Content-Length"))
	assert.Equal(t, id.String(), w.Header().Get("Digest"))

	w = env.do(t, http.MethodHead, "/blobs/"+id.String(), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())

	w = env.do(t, http.MethodGet, "/blobs/"+id.String()+"/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	info := decode[blob.RecordInfo](t, w)
	assert.Equal(t, blob.Used, info.State)
	assert.EqualValues(t, 5, info.Length)

	w = env.do(t, http.MethodGet, "/blobs?state=used", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]blob.RecordInfo](t, w), 1)
}

func TestRouter_BlobErrors(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPut, "/blobs/not-a-digest", "x")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	missing := blob.FromBytes([]byte("missing"))
	w = env.do(t, http.MethodGet, "/blobs/"+missing.String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/blobs/"+missing.String()+"/info", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPut, "/blobs/"+missing.String(), strings.NewReader("missing"))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusLengthRequired, rec.Code)

	w = env.do(t, http.MethodPost, "/blobs/"+missing.String()+"/reset", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Artifacts(t *testing.T) {
	env := newTestEnv(t, nil)
	id := blob.FromBytes([]byte("jar bytes"))

	w := env.do(t, http.MethodPut, "/artifacts/libs/org/app/1.0/app.jar", "jar bytes")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	art := decode[handlers.ArtifactResponse](t, w)
	assert.Equal(t, "libs/org/app/1.0/app.jar", art.Path)
	assert.Equal(t, id, art.ID)

	w = env.do(t, http.MethodPut, "/artifacts/libs/org/app/1.0/copy.jar", "jar bytes")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[handlers.ArtifactResponse](t, w).Deduplicated)
	assert.Equal(t, 1, env.store.Len())

	value, prop, ok, err := env.index.Lookup(context.Background(), "libs/org/app/1.0/copy.jar", []string{"sha256"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sha256", prop)
	assert.Equal(t, id.Hex(), value)

	w = env.do(t, http.MethodGet, "/artifacts/libs/org/app/1.0/app.jar", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "jar bytes", w.Body.String())
	assert.Equal(t, id.Hex(), w.Header().Get(handlers.ChecksumHeader))

	w = env.do(t, http.MethodDelete, "/artifacts/libs/org/app/1.0/app.jar", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodGet, "/artifacts/libs/org/app/1.0/app.jar", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/artifacts/libs/org/app/1.0/copy.jar", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ArtifactChecksumMismatch(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPut, "/artifacts/a.txt", "content",
		handlers.ChecksumHeader, blob.FromBytes([]byte("other")).Hex())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, env.store.Len())
	assert.Equal(t, 0, env.index.Len())

	w = env.do(t, http.MethodPut, "/artifacts/a.txt", "content",
		handlers.ChecksumHeader, strings.ToUpper(blob.FromBytes([]byte("content")).Hex()))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRouter_GCReclaimsDeletedArtifacts(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodGet, "/gc/last", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPut, "/artifacts/keep.bin", "keep").Code)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPut, "/artifacts/drop.bin", "drop").Code)
	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/artifacts/drop.bin", "").Code)

	w = env.do(t, http.MethodPost, "/gc", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[gc.Report](t, w)
	assert.Equal(t, 0, first.Cleaned)

	w = env.do(t, http.MethodPost, "/gc", "")
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[gc.Report](t, w)
	assert.Equal(t, 1, second.Cleaned)
	assert.EqualValues(t, 4, second.BytesReclaimed)

	w = env.do(t, http.MethodGet, "/gc/last", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, second.RunID, decode[gc.Report](t, w).RunID)

	w = env.do(t, http.MethodGet, "/blobs/"+blob.FromBytes([]byte("drop")).String(), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = env.do(t, http.MethodGet, "/artifacts/keep.bin", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_GCConflict(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.collector.Scan(context.Background())
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/gc", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/gc/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[handlers.StatusResponse](t, w)
	assert.Equal(t, gc.Scanning, status.Phase)
	require.NotNil(t, status.Run)

	w = env.do(t, http.MethodPost, "/gc?async=true", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRouter_HealthAndRedirect(t *testing.T) {
	env := newTestEnv(t, nil)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health/ready", "").Code)
	assert.Equal(t, http.StatusTemporaryRedirect, env.do(t, http.MethodGet, "/", "").Code)
}

func TestRouter_WithoutIndex(t *testing.T) {
	store := blob.NewStore(memory.New(), blob.Options{})
	t.Cleanup(func() { _ = store.Close() })
	h := NewRouter(APIConfig{}, Dependencies{Store: store})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/artifacts/x", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/gc", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type observed struct {
	method, route string
	status        int
}

type recordingMetrics struct {
	mu       sync.Mutex
	started  int
	requests []observed
}

func (m *recordingMetrics) RequestStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}

func (m *recordingMetrics) ObserveRequest(method, route string, status int, _ time.Duration, _ int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, observed{method, route, status})
}

func TestRouter_MetricsUseRoutePatterns(t *testing.T) {
	m := &recordingMetrics{}
	env := newTestEnv(t, m)
	id := blob.FromBytes([]byte("m"))

	env.do(t, http.MethodPut, "/blobs/"+id.String(), "m")
	env.do(t, http.MethodGet, "/artifacts/some/where.txt", "")

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, 2, m.started)
	assert.Equal(t, []observed{
		{http.MethodPut, "/blobs/{id}", http.StatusCreated},
		{http.MethodGet, "/artifacts/*", http.StatusNotFound},
	}, m.requests)
}

func TestAPIConfig_Defaults(t *testing.T) {
	var cfg APIConfig
	assert.True(t, cfg.IsEnabled())
	cfg.ApplyDefaults()
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)

	disabled := false
	cfg.Enabled = &disabled
	assert.False(t, cfg.IsEnabled())
}
