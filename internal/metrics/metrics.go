// Package metrics defines the Prometheus instruments exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "canbus_battery"

// Frame outcome label values.
const (
	FrameDecoded   = "decoded"
	FrameUnknown   = "unknown"
	FrameMalformed = "malformed"
)

// Publish result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds every instrument the pipeline updates.
type Metrics struct {
	Frames          *prometheus.CounterVec
	FieldErrors     *prometheus.CounterVec
	Flushes         prometheus.Counter
	FlushedPaths    prometheus.Histogram
	Publishes       *prometheus.CounterVec
	Connected       prometheus.Gauge
	LastFrame       prometheus.Gauge
	LastPublish     prometheus.Gauge
	LinkTransitions *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "CAN frame records read, by outcome.",
		}, []string{"outcome"}),
		FieldErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "field_errors_total",
			Help:      "Fields that could not be decoded, by reason.",
		}, []string{"reason"}),
		Flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_flushes_total",
			Help:      "Aggregation windows flushed.",
		}),
		FlushedPaths: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "window_paths",
			Help:      "Number of paths with samples per flushed window.",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		Publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publishes_total",
			Help:      "Values written to the sink, by result.",
		}, []string{"result"}),
		Connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected",
			Help:      "1 if CAN frames are arriving, 0 otherwise.",
		}),
		LastFrame: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_frame_timestamp_seconds",
			Help:      "Unix time of the last valid mapped frame.",
		}),
		LastPublish: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_publish_timestamp_seconds",
			Help:      "Unix time of the last successful sink write.",
		}),
		LinkTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_transitions_total",
			Help:      "Connectivity state changes, by new state.",
		}, []string{"state"}),
	}

	reg.MustRegister(
		m.Frames,
		m.FieldErrors,
		m.Flushes,
		m.FlushedPaths,
		m.Publishes,
		m.Connected,
		m.LastFrame,
		m.LastPublish,
		m.LinkTransitions,
	)
	return m
}
