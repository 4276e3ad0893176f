package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/moviefeed/release-crawler/internal/crawler"
)

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestServer(t *testing.T, db Pinger) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(db, "crawler-test", zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRequestLogCarriesRequestID(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	srv := httptest.NewServer(NewServer(nil, "crawler-test", zap.New(core)).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, resp.Header.Get("X-Request-ID"), fields["request_id"])
	require.NotEmpty(t, fields["request_id"])
}

func TestReadyzReportsDatabaseState(t *testing.T) {
	t.Parallel()

	healthy := newTestServer(t, fakePinger{})
	resp, err := http.Get(healthy.URL + "/readyz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	unhealthy := newTestServer(t, fakePinger{err: errors.New("connection refused")})
	resp, err = http.Get(unhealthy.URL + "/readyz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "database unreachable", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusReflectsLastCycle(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, "crawler-7", zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/v1/status")
	require.NoError(t, err)
	var before map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&before))
	resp.Body.Close()
	require.Equal(t, "crawler-7", before["instance"])
	require.NotContains(t, before, "last_run")

	s.RecordCycle(crawler.RunSummary{
		StartedAt:     time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC),
		MoviesCreated: 3,
		MoviesUpdated: 1,
	}, nil)

	resp, err = http.Get(srv.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var after map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&after))
	lastRun, ok := after["last_run"].(map[string]any)
	require.True(t, ok)
	require.EqualValues(t, 3, lastRun["movies_created"])
	require.EqualValues(t, 1, lastRun["movies_updated"])
}

func TestStatusSurfacesCycleError(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, "crawler-7", zap.NewNop())
	s.RecordCycle(crawler.RunSummary{}, errors.New("record run: connection lost"))

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "record run: connection lost", body["last_error"])
}
