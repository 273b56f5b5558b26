package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quakewatch/quakewatch/internal/api/handler"
	"github.com/quakewatch/quakewatch/internal/api/models"
	"github.com/quakewatch/quakewatch/internal/provider/resilience"
)

var fixedNow = time.Date(2024, 2, 1, 14, 5, 0, 0, time.UTC)

func TestHealthCheck(t *testing.T) {
	h := handler.NewOpsHandler("1.2.3", "2024-01-01T00:00:00Z", newFakeBoard(), nil, clockwork.NewFakeClockAt(fixedNow))

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	var body models.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.HealthStatusOK, body.Status)
	assert.True(t, body.Time.Time().Equal(fixedNow))
	assert.Equal(t, "1.2.3", body.Details["version"])
}

func TestReadinessCheck(t *testing.T) {
	board := newFakeBoard()
	h := handler.NewOpsHandler("test", "", board, nil, nil)

	rec := httptest.NewRecorder()
	h.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	board.ready = true
	rec = httptest.NewRecorder()
	h.ReadinessCheck(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/ready", http.NoBody))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSystemStatus(t *testing.T) {
	board := newFakeBoard()
	board.snap = deliveredSnapshot(fixedNow)

	registry := resilience.NewRegistryWithClock(clockwork.NewFakeClockAt(fixedNow))
	cfg := resilience.DefaultClientConfig("usgs")
	cfg.Registry = registry
	resilience.NewClient(cfg)
	registry.RecordFailure("usgs", errors.New("connect timeout"))

	h := handler.NewOpsHandler("test", "", board, registry, clockwork.NewFakeClockAt(fixedNow))

	rec := httptest.NewRecorder()
	h.SystemStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	var body models.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.Equal(t, models.HealthStatusOK, body.Status)
	assert.Equal(t, "delivered", body.Feed.State)
	assert.Equal(t, 2, body.Feed.Count)
	require.NotNil(t, body.Feed.LastDeliveredAt)

	require.Len(t, body.Upstreams, 1)
	up := body.Upstreams[0]
	assert.Equal(t, "usgs", up.Name)
	assert.Equal(t, models.HealthStatusOK, up.Status)
	assert.True(t, up.BreakerEnabled)
	assert.Equal(t, "closed", up.CircuitState)
	require.NotNil(t, up.Message)
	assert.Equal(t, "connect timeout", *up.Message)
	require.NotNil(t, up.LastFailureAt)
	assert.Nil(t, up.LastSuccessAt)
}

func TestSystemStatus_OpenBreakerDegrades(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	registry := resilience.NewRegistry()
	cfg := resilience.DefaultClientConfig("usgs")
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	for i := 0; i < 3; i++ {
		req, err := http.NewRequest(http.MethodGet, upstream.URL, http.NoBody)
		require.NoError(t, err)
		resp, err := client.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}

	h := handler.NewOpsHandler("test", "", newFakeBoard(), registry, nil)
	rec := httptest.NewRecorder()
	h.SystemStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))

	var body models.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, models.HealthStatusDegraded, body.Status)
	require.Len(t, body.Upstreams, 1)
	assert.Equal(t, models.HealthStatusFail, body.Upstreams[0].Status)
	assert.Equal(t, "open", body.Upstreams[0].CircuitState)
}

func TestSystemStatus_NoRegistry(t *testing.T) {
	h := handler.NewOpsHandler("test", "", newFakeBoard(), nil, nil)

	rec := httptest.NewRecorder()
	h.SystemStatus(rec, httptest.NewRequest(http.MethodGet, "/v1/ops/status", http.NoBody))

	var body models.SystemStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Upstreams)
	assert.Equal(t, "idle", body.Feed.State)
}
