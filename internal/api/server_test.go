package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/refstream/refstream/internal/api"
	"github.com/refstream/refstream/internal/config"
	"github.com/refstream/refstream/internal/ledger"
	"github.com/refstream/refstream/internal/pipeline"
	"github.com/refstream/refstream/internal/storage"
)

// downStore fails its readiness ping; no other method is reached.
type downStore struct{ storage.Store }

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func newTestServer(t *testing.T, store storage.Store) (*api.Server, *config.Config) {
	t.Helper()

	cfg := &config.Config{ServerPort: "0", ReportsDir: t.TempDir()}
	return api.NewServer(cfg, store, ledger.NewMemory(ledger.DefaultStaleAfter), zap.NewNop()), cfg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv, _ := newTestServer(t, storage.NewMemoryStore())
	rec := get(t, srv.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	t.Run("all dependencies healthy", func(t *testing.T) {
		t.Parallel()

		srv, _ := newTestServer(t, storage.NewMemoryStore())
		rec := get(t, srv.Handler(), "/readyz")
		require.Equal(t, http.StatusOK, rec.Code)

		var status map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "healthy", status["storage"])
		assert.Equal(t, "healthy", status["ledger"])
	})

	t.Run("storage down", func(t *testing.T) {
		t.Parallel()

		srv, _ := newTestServer(t, downStore{})
		rec := get(t, srv.Handler(), "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var status map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
		assert.Equal(t, "unhealthy", status["storage"])
	})
}

func TestLatestRun(t *testing.T) {
	t.Parallel()

	t.Run("nothing recorded", func(t *testing.T) {
		t.Parallel()

		srv, _ := newTestServer(t, storage.NewMemoryStore())
		rec := get(t, srv.Handler(), "/api/runs/latest")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("in-process report wins", func(t *testing.T) {
		t.Parallel()

		srv, _ := newTestServer(t, storage.NewMemoryStore())
		srv.SetLatest(&pipeline.RunReport{RunID: "r-123", Phases: pipeline.AllPhases()})

		rec := get(t, srv.Handler(), "/api/runs/latest")
		require.Equal(t, http.StatusOK, rec.Code)

		var rep pipeline.RunReport
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
		assert.Equal(t, "r-123", rep.RunID)
	})

	t.Run("falls back to newest artifact", func(t *testing.T) {
		t.Parallel()

		srv, cfg := newTestServer(t, storage.NewMemoryStore())
		path := filepath.Join(cfg.ReportsDir, "run-abc.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"run_id":"abc"}`), 0o644))

		rec := get(t, srv.Handler(), "/api/runs/latest")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"run_id":"abc"}`, rec.Body.String())
	})
}
