package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel/internal/observability"
)

func TestHandleHealthAlwaysAnswers(t *testing.T) {
	srv := New(Config{Log: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleMetricsReturns503WhenUnconfigured(t *testing.T) {
	srv := New(Config{Log: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleMetricsReturnsSnapshotWhenConfigured(t *testing.T) {
	collector := observability.NewCollector(100, zerolog.Nop())
	collector.RecordAPIRequest("news_collect", 120*time.Millisecond, true)

	srv := New(Config{Log: zerolog.Nop(), Metrics: collector})

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "news_collect")
}

func TestHandleBacktestRunReturns503WhenUnconfigured(t *testing.T) {
	srv := New(Config{Log: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodPost, "/api/backtest/run", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleBackupRunReturns503WhenUnconfigured(t *testing.T) {
	srv := New(Config{Log: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodPost, "/api/backup/run", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewDefaultsPortWhenUnset(t *testing.T) {
	srv := New(Config{Log: zerolog.Nop()})
	assert.Equal(t, ":8001", srv.http.Addr)
}

func TestNewUsesConfiguredPort(t *testing.T) {
	srv := New(Config{Log: zerolog.Nop(), Port: 9999})
	assert.Equal(t, ":9999", srv.http.Addr)
}
