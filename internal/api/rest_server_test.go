package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/replay-engine/internal/auth"
	"github.com/annel0/replay-engine/internal/playback"
	"github.com/annel0/replay-engine/internal/protocol"
)

type fakeController struct {
	loaded   bool
	current  int32
	duration int32
	loadErr  error
	seeks    []int32
}

func (f *fakeController) SessionID() string  { return "session" }
func (f *fakeController) CurrentTime() int32 { return f.current }
func (f *fakeController) Duration() int32    { return f.duration }
func (f *fakeController) Loaded() bool       { return f.loaded }
func (f *fakeController) Reset()             { f.current = -1 }

func (f *fakeController) Load(ctx context.Context, progress func(float64)) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	progress(0.5)
	progress(1)
	f.loaded = true
	f.current = -1
	return nil
}

func (f *fakeController) Seek(target int32) error {
	f.seeks = append(f.seeks, target)
	f.current = target
	return nil
}

type testServer struct {
	rs      *RestServer
	ctl     *fakeController
	viewer  string
	control string
}

func newTestServer(t *testing.T, summary func() (interface{}, error)) *testServer {
	t.Helper()
	signer, err := auth.NewSigner(nil, time.Hour)
	require.NoError(t, err)
	ctl := &fakeController{current: -1, duration: 120}
	rs := NewRestServer(Config{
		Controller: ctl,
		Signer:     signer,
		Summary:    summary,
		Registry:   prometheus.NewRegistry(),
	})
	viewer, err := signer.Generate("viewer", false)
	require.NoError(t, err)
	control, err := signer.Generate("operator", true)
	require.NoError(t, err)
	return &testServer{rs: rs, ctl: ctl, viewer: viewer, control: control}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, GenericResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.rs.Handler().ServeHTTP(w, req)

	var resp GenericResponse
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	w, _ := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	w, _ = ts.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "replay_api_http_request_duration_seconds")
}

func TestAuthorization(t *testing.T) {
	ts := newTestServer(t, nil)

	w, resp := ts.do(t, http.MethodGet, "/api/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, resp.Success)

	w, _ = ts.do(t, http.MethodGet, "/api/status", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/api/seek", ts.viewer, body{"time": 10})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, ts.ctl.seeks)

	w, resp = ts.do(t, http.MethodGet, "/api/status", ts.viewer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
}

type body map[string]interface{}

func TestPlaybackFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	w, _ := ts.do(t, http.MethodPost, "/api/seek", ts.control, body{"time": 10})
	assert.Equal(t, http.StatusConflict, w.Code, "перемотка до загрузки")

	w, resp := ts.do(t, http.MethodPost, "/api/load", ts.control, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)

	w, _ = ts.do(t, http.MethodPost, "/api/seek", ts.control, body{"time": 500})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = ts.do(t, http.MethodPost, "/api/seek", ts.control, body{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodPost, "/api/seek", ts.control, body{"time": 0})
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, http.MethodPost, "/api/seek", ts.control, body{"time": 60})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int32{0, 60}, ts.ctl.seeks)

	w, resp = ts.do(t, http.MethodGet, "/api/status", ts.viewer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := resp.Data.(map[string]interface{})
	assert.Equal(t, true, status["loaded"])
	assert.EqualValues(t, 60, status["current_time"])
	assert.EqualValues(t, 120, status["duration"])
	assert.EqualValues(t, 1, status["load_progress"])

	w, _ = ts.do(t, http.MethodPost, "/api/reset", ts.control, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, -1, ts.ctl.current)
}

func TestLoadFailure(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.ctl.loadErr = errors.New("broken")

	w, resp := ts.do(t, http.MethodPost, "/api/load", ts.control, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "broken", resp.Message)
}

func TestSummary(t *testing.T) {
	ts := newTestServer(t, nil)
	w, _ := ts.do(t, http.MethodGet, "/api/summary", ts.viewer, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	loaded := false
	ts = newTestServer(t, func() (interface{}, error) {
		if !loaded {
			return nil, playback.ErrNotLoaded
		}
		return body{"worlds": 2}, nil
	})
	w, _ = ts.do(t, http.MethodGet, "/api/summary", ts.viewer, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	loaded = true
	w, resp := ts.do(t, http.MethodGet, "/api/summary", ts.viewer, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, resp.Data.(map[string]interface{})["worlds"])
}

func TestPacketStats(t *testing.T) {
	stats := NewPacketStats()
	var forwarded int
	sink := stats.Sink(func(protocol.Packet) error {
		forwarded++
		return nil
	})

	require.NoError(t, sink(protocol.Packet{Kind: protocol.KindKeepAlive}))
	require.NoError(t, sink(protocol.Packet{Kind: protocol.KindKeepAlive}))
	require.NoError(t, sink(protocol.Packet{Kind: protocol.KindChunkData}))

	assert.Equal(t, 3, forwarded)
	assert.Equal(t, map[string]int{
		protocol.KindKeepAlive.String(): 2,
		protocol.KindChunkData.String(): 1,
	}, stats.Counts())

	require.NoError(t, stats.Sink(nil)(protocol.Packet{Kind: protocol.KindKeepAlive}))
}
