package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/roach88/streamscope/internal/engine"
	"github.com/roach88/streamscope/internal/ir"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse reports engine progress.
type HealthResponse struct {
	Status  string `json:"status"`
	Session string `json:"session"`
	LastSeq int64  `json:"last_seq"`
	Queued  int    `json:"queued"`
}

// IngestResponse acknowledges a queued batch.
type IngestResponse struct {
	Accepted int `json:"accepted"`
}

// SnapshotResponse wraps a snapshot with its session.
type SnapshotResponse struct {
	Session  string      `json:"session"`
	Snapshot ir.Snapshot `json:"snapshot"`
}

// TrackSummary is one row of the track listing.
type TrackSummary struct {
	Key        string `json:"key"`
	Kind       string `json:"kind"`
	Node       int64  `json:"node,omitempty"`
	Shape      string `json:"shape,omitempty"`
	Version    int    `json:"version"`
	Structural bool   `json:"structural"`
	Dynamic    bool   `json:"dynamic,omitempty"`
	Module     string `json:"module,omitempty"`
}

// TrackResponse describes one track with the shapes it was bound to.
type TrackResponse struct {
	Track   ir.Track      `json:"track"`
	Shape   string        `json:"shape,omitempty"`
	History []HistoryItem `json:"history"`
}

// HistoryItem is one previous binding of a track.
type HistoryItem struct {
	Version int    `json:"version"`
	Node    int64  `json:"node"`
	Shape   string `json:"shape"`
}

// HandleHealth handles GET /healthz.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Session: s.eng.Session(),
		LastSeq: s.eng.LastSeq(),
		Queued:  s.eng.QueueLen(),
	})
}

// HandleEvents handles POST /events. The body is a JSON array of events;
// the batch is queued whole or rejected whole.
func (s *Server) HandleEvents(c *gin.Context) {
	var evs []ir.Event
	if err := c.ShouldBindJSON(&evs); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if len(evs) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no events", Code: "INVALID_REQUEST"})
		return
	}

	if err := s.eng.Enqueue(evs...); err != nil {
		status := http.StatusBadRequest
		if engine.IsStopped(err) {
			status = http.StatusServiceUnavailable
		}
		code := "INGEST_FAILED"
		var ie *engine.IngestError
		if errors.As(err, &ie) {
			code = string(ie.Code)
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}
	c.JSON(http.StatusAccepted, IngestResponse{Accepted: len(evs)})
}

// HandleSnapshot handles GET /snapshot.
func (s *Server) HandleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, SnapshotResponse{
		Session:  s.eng.Session(),
		Snapshot: s.eng.Snapshot(),
	})
}

// HandleTracks handles GET /tracks.
func (s *Server) HandleTracks(c *gin.Context) {
	snap := s.eng.Snapshot()
	out := make([]TrackSummary, 0, len(snap.Tracks))
	for _, t := range snap.Tracks {
		out = append(out, TrackSummary{
			Key:        t.Key,
			Kind:       string(t.Kind),
			Node:       t.Node,
			Shape:      shapeOf(snap, t.Node),
			Version:    t.Version,
			Structural: t.Structural,
			Dynamic:    t.Dynamic,
			Module:     t.Module,
		})
	}
	c.JSON(http.StatusOK, out)
}

// HandleTrack handles GET /tracks/*key. Keys of nested dynamic tracks
// contain slashes, so the key is the whole remaining path.
func (s *Server) HandleTrack(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "track key is required", Code: "INVALID_REQUEST"})
		return
	}

	snap := s.eng.Snapshot()
	t, ok := snap.Track(key)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no track " + key, Code: "TRACK_NOT_FOUND"})
		return
	}

	resp := TrackResponse{
		Track:   t,
		Shape:   shapeOf(snap, t.Node),
		History: make([]HistoryItem, 0, len(t.History)),
	}
	for i, id := range t.History {
		resp.History = append(resp.History, HistoryItem{Version: i, Node: id, Shape: shapeOf(snap, id)})
	}
	c.JSON(http.StatusOK, resp)
}

func shapeOf(snap ir.Snapshot, id int64) string {
	if n, ok := snap.Node(id); ok {
		return n.Shape
	}
	return ""
}
