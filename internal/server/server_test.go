package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/streamscope/internal/engine"
	"github.com/roach88/streamscope/internal/ir"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupServer(t *testing.T) (*Server, *engine.Engine) {
	t.Helper()
	reg := prometheus.NewRegistry()
	acc := engine.NewAccumulator(engine.WithMetrics(engine.NewMetrics(reg)))
	eng := engine.New(acc, engine.NewFixedGenerator("session-1"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return New(eng, WithGatherer(reg), WithNotifyBuffer(8)), eng
}

// boundTrack binds key to a construct named source.
func boundTrack(key string) []ir.Event {
	return []ir.Event{
		{Seq: 1, Kind: ir.KindTrack, Phase: ir.PhaseBegin, Key: key},
		{Seq: 2, Kind: ir.KindConstruct, Phase: ir.PhaseBegin, Name: "source"},
		{Seq: 3, Kind: ir.KindConstruct, Phase: ir.PhaseEnd, Scope: 2},
		{Seq: 4, Kind: ir.KindTrack, Phase: ir.PhaseEnd, Scope: 1, Node: 2},
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func waitForSeq(t *testing.T, eng *engine.Engine, seq int64) {
	t.Helper()
	require.Eventually(t, func() bool { return eng.LastSeq() >= seq },
		5*time.Second, 10*time.Millisecond)
}

func TestHandleEvents_AppliesBatch(t *testing.T) {
	s, eng := setupServer(t)

	w := do(t, s.Handler(), http.MethodPost, "/events", boundTrack("t"))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp IngestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.Accepted)

	waitForSeq(t, eng, 4)
	tr, ok := eng.Track("t")
	require.True(t, ok)
	assert.Equal(t, int64(2), tr.Node)
}

func TestHandleEvents_Rejects(t *testing.T) {
	s, _ := setupServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"not json", `{`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"empty batch", `[]`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown kind", `[{"seq":1,"kind":"bogus","phase":"begin"}]`, http.StatusBadRequest, "INVALID_EVENT"},
		{"zero seq", `[{"seq":0,"kind":"module","phase":"begin","module":"m"}]`, http.StatusBadRequest, "INVALID_EVENT"},
		{"end without scope", `[{"seq":1,"kind":"track","phase":"end"}]`, http.StatusBadRequest, "INVALID_EVENT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/events", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
		})
	}
}

func TestHandleEvents_StoppedEngine(t *testing.T) {
	s, eng := setupServer(t)
	eng.Stop()

	w := do(t, s.Handler(), http.MethodPost, "/events", boundTrack("t"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ENGINE_STOPPED", resp.Code)
}

func TestHandleTrack(t *testing.T) {
	s, eng := setupServer(t)
	require.NoError(t, eng.Enqueue(boundTrack("a/b")...))
	waitForSeq(t, eng, 4)

	w := do(t, s.Handler(), http.MethodGet, "/tracks/a/b", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp TrackResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "a/b", resp.Track.Key)
	assert.Equal(t, "source", resp.Shape)
	assert.Empty(t, resp.History)

	w = do(t, s.Handler(), http.MethodGet, "/tracks/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, s.Handler(), http.MethodGet, "/tracks", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []TrackSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "source", list[0].Shape)
}

func TestHandleSnapshotAndHealth(t *testing.T) {
	s, eng := setupServer(t)
	require.NoError(t, eng.Enqueue(boundTrack("t")...))
	waitForSeq(t, eng, 4)

	w := do(t, s.Handler(), http.MethodGet, "/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap SnapshotResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "session-1", snap.Session)
	assert.Equal(t, int64(4), snap.Snapshot.Seq)
	assert.Len(t, snap.Snapshot.Nodes, 1)

	w = do(t, s.Handler(), http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, int64(4), health.LastSeq)
}

func TestMetricsEndpoint(t *testing.T) {
	s, eng := setupServer(t)
	require.NoError(t, eng.Enqueue(boundTrack("t")...))
	waitForSeq(t, eng, 4)

	w := do(t, s.Handler(), http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "streamscope_events_total")
	assert.Contains(t, w.Body.String(), "streamscope_tracks 1")
}

func TestHandleChanges_StreamsBinds(t *testing.T) {
	s, _ := setupServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/changes", nil)
	require.NoError(t, err)
	defer ws.Close()

	body, err := json.Marshal(boundTrack("t"))
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+"/events", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ch engine.Change
	require.NoError(t, ws.ReadJSON(&ch))
	assert.Equal(t, engine.ChangeBound, ch.Kind)
	assert.Equal(t, "t", ch.Key)
	assert.Equal(t, int64(2), ch.Node)
	assert.Equal(t, int64(4), ch.Seq)
}
