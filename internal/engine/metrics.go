package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/streamscope/internal/ir"
)

// Event outcomes recorded by Metrics.
const (
	outcomeApplied = "applied"
	outcomeIgnored = "ignored"
	outcomeDropped = "dropped"
	outcomeStale   = "stale"
	outcomePanic   = "panic"
)

// Metrics exposes accumulator counters. A nil *Metrics records nothing.
type Metrics struct {
	events  *prometheus.CounterVec
	rebinds *prometheus.CounterVec
	swept   prometheus.Counter
	tracks  prometheus.Gauge
}

// NewMetrics registers the accumulator metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "streamscope_events_total",
			Help: "Events seen by the accumulator by kind and outcome",
		}, []string{"kind", "outcome"}),
		rebinds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "streamscope_track_rebinds_total",
			Help: "Track rebinds by classification",
		}, []string{"change"}),
		swept: f.NewCounter(prometheus.CounterOpts{
			Name: "streamscope_tracks_swept_total",
			Help: "Tracks removed by reload orphan sweeps",
		}),
		tracks: f.NewGauge(prometheus.GaugeOpts{
			Name: "streamscope_tracks",
			Help: "Tracks currently registered",
		}),
	}
}

func (m *Metrics) event(kind ir.EventKind, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) rebind(structural bool) {
	if m == nil {
		return
	}
	if structural {
		m.rebinds.WithLabelValues("structural").Inc()
		return
	}
	m.rebinds.WithLabelValues("cosmetic").Inc()
}

func (m *Metrics) sweep(n int) {
	if m == nil {
		return
	}
	m.swept.Add(float64(n))
}

func (m *Metrics) trackCount(n int) {
	if m == nil {
		return
	}
	m.tracks.Set(float64(n))
}
