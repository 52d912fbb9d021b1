package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/roach88/streamscope/internal/engine"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func sendJSON(ws *websocket.Conn, v any) error {
	err := ws.WriteJSON(v)
	if err != nil {
		slog.Warn("failed to write websocket JSON", "error", err)
	}
	return err
}

// HandleChanges handles GET /changes. It upgrades to a WebSocket and
// streams bound, rebound and dropped changes as JSON; ?applied=true adds
// the per-event notifications. The listener never blocks the engine: a
// client that falls more than the notify buffer behind loses changes.
func (s *Server) HandleChanges(c *gin.Context) {
	applied, _ := strconv.ParseBool(c.Query("applied"))

	changes := make(chan engine.Change, s.notifyBuffer)
	var dropped atomic.Int64
	cancel := s.eng.Subscribe(func(ch engine.Change) {
		if ch.Kind == engine.ChangeApplied && !applied {
			return
		}
		select {
		case changes <- ch:
		default:
			dropped.Add(1)
		}
	})
	defer cancel()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()
	slog.Info("change stream client connected", "remote", c.Request.RemoteAddr)

	// The read loop only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		select {
		case <-closed:
			slog.Info("change stream client disconnected", "dropped", dropped.Load())
			return
		case <-ctx.Done():
			return
		case ch := <-changes:
			if err := sendJSON(ws, ch); err != nil {
				return
			}
		}
	}
}
