package review

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xyzbank/banking-e2e/internal/metrics"
	"github.com/xyzbank/banking-e2e/internal/storage"
	"github.com/xyzbank/banking-e2e/internal/visual"
)

var (
	baselinePNG = []byte("baseline-bytes")
	actualPNG   = []byte("actual-bytes")
	diffPNG     = []byte("diff-bytes")
)

type unhealthyStore struct {
	*storage.MemoryBackend
}

func (unhealthyStore) HealthCheck(ctx context.Context) error {
	return errors.New("disk full")
}

func newTestServer(t *testing.T, store storage.Backend) (*Server, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	for _, kv := range []struct {
		key  storage.Key
		data []byte
	}{
		{storage.Key{Name: "login-page", Kind: storage.KindBaseline}, baselinePNG},
		{storage.Key{Name: "login-page", Kind: storage.KindActual}, actualPNG},
		{storage.Key{Name: "login-page", Kind: storage.KindDiff}, diffPNG},
		{storage.Key{Name: "open-account", Kind: storage.KindBaseline}, baselinePNG},
	} {
		require.NoError(t, store.Put(ctx, kv.key, kv.data))
	}

	reg := prometheus.NewRegistry()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cmp := visual.New(store, visual.WithLogger(logger), visual.WithMetrics(metrics.NewCollector(reg)))
	return NewServer(cmp, reg, logger, "test"), reg
}

func do(s *Server, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	s.GetEngine().ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestServer(t, storage.NewMemoryBackend())
	w := do(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, storage.TypeMemory, body["backend"])

	s, _ = newTestServer(t, unhealthyStore{storage.NewMemoryBackend()})
	w = do(s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "disk full")
}

func TestListSnapshots(t *testing.T) {
	s, _ := newTestServer(t, storage.NewMemoryBackend())
	w := do(s, http.MethodGet, "/api/snapshots")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Snapshots []visual.SnapshotStatus `json:"snapshots"`
		Total     int                     `json:"total"`
		Threshold float64                 `json:"threshold"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, 0.1, body.Threshold)
	assert.Equal(t, []visual.SnapshotStatus{
		{Name: "login-page", HasBaseline: true, HasActual: true, HasDiff: true},
		{Name: "open-account", HasBaseline: true},
	}, body.Snapshots)
}

func TestGetImage(t *testing.T) {
	s, _ := newTestServer(t, storage.NewMemoryBackend())

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody []byte
	}{
		{name: "baseline", path: "/api/snapshots/login-page/baseline", wantCode: http.StatusOK, wantBody: baselinePNG},
		{name: "diff", path: "/api/snapshots/login-page/diff", wantCode: http.StatusOK, wantBody: diffPNG},
		{name: "missing", path: "/api/snapshots/open-account/actual", wantCode: http.StatusNotFound},
		{name: "bad kind", path: "/api/snapshots/login-page/golden", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(s, http.MethodGet, tt.path)
			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantBody != nil {
				assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
				assert.Equal(t, tt.wantBody, w.Body.Bytes())
			}
		})
	}
}

func TestApprove(t *testing.T) {
	store := storage.NewMemoryBackend()
	s, _ := newTestServer(t, store)
	ctx := context.Background()

	w := do(s, http.MethodPost, "/api/snapshots/login-page/approve")
	require.Equal(t, http.StatusOK, w.Code)

	got, err := store.Get(ctx, storage.Key{Name: "login-page", Kind: storage.KindBaseline})
	require.NoError(t, err)
	assert.Equal(t, actualPNG, got)
	ok, err := store.Exists(ctx, storage.Key{Name: "login-page", Kind: storage.KindDiff})
	require.NoError(t, err)
	assert.False(t, ok)

	w = do(s, http.MethodPost, "/api/snapshots/open-account/approve")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResetAndClean(t *testing.T) {
	store := storage.NewMemoryBackend()
	s, _ := newTestServer(t, store)
	ctx := context.Background()

	w := do(s, http.MethodDelete, "/api/snapshots/open-account/baseline")
	require.Equal(t, http.StatusOK, w.Code)
	ok, err := store.Exists(ctx, storage.Key{Name: "open-account", Kind: storage.KindBaseline})
	require.NoError(t, err)
	assert.False(t, ok)

	w = do(s, http.MethodPost, "/api/clean")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"removed": 2}`, w.Body.String())

	names, err := store.List(ctx, storage.KindBaseline)
	require.NoError(t, err)
	assert.Equal(t, []string{"login-page"}, names)
}

func TestMetricsEndpoint(t *testing.T) {
	s, reg := newTestServer(t, storage.NewMemoryBackend())
	require.NotNil(t, reg)

	w := do(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "visual_compare_duration_seconds")

	noMetrics := NewServer(visual.New(storage.NewMemoryBackend()), nil, nil, "test")
	assert.Equal(t, http.StatusNotFound, do(noMetrics, http.MethodGet, "/metrics").Code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	s, _ := newTestServer(t, storage.NewMemoryBackend())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
