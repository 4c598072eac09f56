package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/marketwatch/internal/apperr"
	"github.com/aristath/marketwatch/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	status      map[string]any
	mode        config.StartupMode
	triggerErr  error
	lastTrigger string
}

func (f *fakeScheduler) Status() map[string]any { return f.status }
func (f *fakeScheduler) Mode() config.StartupMode { return f.mode }
func (f *fakeScheduler) TriggerManual(ctx context.Context, name string) error {
	f.lastTrigger = name
	return f.triggerErr
}

func newTestServer(t *testing.T, sched SchedulerStatus) *Server {
	t.Helper()
	return New(Config{Log: zerolog.Nop(), Port: 0, DevMode: true, Scheduler: sched})
}

func TestHandleHealthReturnsEnvelope(t *testing.T) {
	s := newTestServer(t, &fakeScheduler{status: map[string]any{}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
}

func TestHandleSchedulerStatusReturnsModeAndJobs(t *testing.T) {
	sched := &fakeScheduler{status: map[string]any{"refresh_symbol_list": "ok"}, mode: config.StartupFullInit}
	s := newTestServer(t, sched)
	req := httptest.NewRequest(http.MethodGet, "/admin/scheduler", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	data := body["data"].(map[string]any)
	assert.Equal(t, "full_init", data["mode"])
}

func TestHandleTriggerJobMapsConflictSingletonTo409(t *testing.T) {
	sched := &fakeScheduler{triggerErr: apperr.New(apperr.ConflictSingleton, "test", "already running")}
	s := newTestServer(t, sched)
	req := httptest.NewRequest(http.MethodPost, "/admin/jobs/full_bar_refresh/trigger", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "full_bar_refresh", sched.lastTrigger)
}

func TestHandleTriggerJobSucceeds(t *testing.T) {
	sched := &fakeScheduler{}
	s := newTestServer(t, sched)
	req := httptest.NewRequest(http.MethodPost, "/admin/jobs/compute_signals/trigger", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "compute_signals", sched.lastTrigger)
}
