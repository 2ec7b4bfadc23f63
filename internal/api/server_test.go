package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/dhima/datman/internal/api/middleware"
	"github.com/dhima/datman/internal/logging"
	"github.com/dhima/datman/pkg/config"
	"github.com/dhima/datman/pkg/dataerr"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig(dbParams string) config.App {
	return config.App{
		Environment:     "test",
		APIPort:         "0",
		CORSOrigins:     []string{"*"},
		DatabaseParams:  dbParams,
		DefaultPageSize: 100,
	}
}

func newSQLiteServer(t *testing.T) (*Server, *sqlx.DB) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.db")
	admin, err := sqlx.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })
	admin.MustExec(`CREATE TABLE users (id INTEGER, email TEXT)`)

	params, err := json.Marshal(map[string]string{"driver": "sqlite3", "path": path})
	require.NoError(t, err)
	s, err := NewServer(context.Background(), testConfig(string(params)), logging.FromZap(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s, admin
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(w, req)
	return w
}

func TestNewServer_WhenParamsInvalid_ThenError(t *testing.T) {
	_, err := NewServer(context.Background(), testConfig(`{"driver":"oracle"}`), nil)

	assert.ErrorIs(t, err, dataerr.ErrInvalidArgument)
	assert.ErrorContains(t, err, "database parameters")
}

func TestServer_WhenRowsInserted_ThenMetricsAndDuplicatesReflectThem(t *testing.T) {
	// Arrange
	s, admin := newSQLiteServer(t)
	h := s.Handler()

	// Act
	insert := do(h, http.MethodPost, "/api/v1/tables/users/rows",
		`{"records":[{"id":1,"email":"a@x"},{"id":2,"email":"a@x"},{"id":3,"email":"b@x"}]}`)
	dupes := do(h, http.MethodGet, "/api/v1/tables/users/duplicates?partition=email", "")
	removed := do(h, http.MethodDelete, "/api/v1/tables/users/duplicates?partition=email", "")
	metrics := do(h, http.MethodGet, "/metrics", "")

	// Assert
	require.Equal(t, http.StatusOK, insert.Code, insert.Body.String())
	assert.Contains(t, insert.Body.String(), `"rows_affected":3`)
	assert.NotEmpty(t, insert.Header().Get(middleware.RequestIDHeader))

	require.Equal(t, http.StatusOK, dupes.Code, dupes.Body.String())
	assert.Contains(t, dupes.Body.String(), `"duplicate_count"`)

	require.Equal(t, http.StatusOK, removed.Code, removed.Body.String())
	assert.Contains(t, removed.Body.String(), `"rows_affected":1`)

	var count int
	require.NoError(t, admin.Get(&count, `SELECT COUNT(*) FROM users`))
	assert.Equal(t, 2, count)

	require.Equal(t, http.StatusOK, metrics.Code)
	assert.Contains(t, metrics.Body.String(), `"rows_inserted":3`)
	assert.Contains(t, metrics.Body.String(), `"duplicates_removed":1`)
}

func TestServer_WhenRawQueryNotAllowed_ThenForbidden(t *testing.T) {
	s, _ := newSQLiteServer(t)

	w := do(s.Handler(), http.MethodPost, "/api/v1/query", `{"sql":"SELECT 1"}`)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_WhenBackendsUnconfigured_ThenServiceUnavailable(t *testing.T) {
	s, err := NewServer(context.Background(), testConfig(""), nil)
	require.NoError(t, err)
	h := s.Handler()

	rows := do(h, http.MethodPost, "/api/v1/tables/users/rows", `{"records":[{"id":1}]}`)
	object := do(h, http.MethodGet, "/api/v1/objects/raw/a.txt", "")
	health := do(h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusServiceUnavailable, rows.Code)
	assert.Equal(t, http.StatusServiceUnavailable, object.Code)
	assert.Equal(t, http.StatusOK, health.Code)
}
