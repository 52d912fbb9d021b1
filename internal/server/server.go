// Package server exposes an engine over HTTP: event ingest, snapshot and
// track queries, a WebSocket stream of track changes, and prometheus
// metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/streamscope/internal/engine"
)

// DefaultNotifyBuffer is the number of changes buffered per WebSocket
// client before further changes are dropped for that client.
const DefaultNotifyBuffer = 256

const shutdownTimeout = 5 * time.Second

// Server routes HTTP requests to an Engine.
type Server struct {
	eng          *engine.Engine
	gatherer     prometheus.Gatherer
	notifyBuffer int
	router       *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer selects the registry served on /metrics. Defaults to the
// prometheus default gatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithNotifyBuffer sets the per-client change buffer.
func WithNotifyBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.notifyBuffer = n
		}
	}
}

// New creates a Server for eng.
func New(eng *engine.Engine, opts ...Option) *Server {
	s := &Server{
		eng:          eng,
		gatherer:     prometheus.DefaultGatherer,
		notifyBuffer: DefaultNotifyBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	RegisterRoutes(r, s)
	s.router = r
	return s
}

// RegisterRoutes mounts the server's handlers on r.
func RegisterRoutes(r gin.IRoutes, s *Server) {
	r.GET("/healthz", s.HandleHealth)
	r.POST("/events", s.HandleEvents)
	r.GET("/snapshot", s.HandleSnapshot)
	r.GET("/tracks", s.HandleTracks)
	r.GET("/tracks/*key", s.HandleTrack)
	r.GET("/changes", s.HandleChanges)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr, "session", s.eng.Session())
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("server stopped", "addr", addr)
	return nil
}
