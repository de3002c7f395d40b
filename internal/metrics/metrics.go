// Package metrics holds the Prometheus collectors for the viewer and the
// frame server. Each set registers on its own registry so tests and multiple
// instances never collide on the default one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Viewer tracks the per-stream frame pipeline on the client side.
type Viewer struct {
	Registry *prometheus.Registry

	FramesReceived    *prometheus.CounterVec
	FramesDropped     *prometheus.CounterVec
	DecodeFailures    *prometheus.CounterVec
	FramesRendered    *prometheus.CounterVec
	ConnectAttempts   *prometheus.CounterVec
	ReconnectsPlanned *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge
	DecodeDuration    prometheus.Histogram
}

// NewViewer creates and registers the viewer metrics.
func NewViewer() *Viewer {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Viewer{
		Registry: reg,
		FramesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "viewer_frames_received_total",
			Help: "Frame payloads received from the transport",
		}, []string{"stream"}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "viewer_frames_coalesced_total",
			Help: "Pending frames overwritten by a newer payload before decoding",
		}, []string{"stream"}),
		DecodeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "viewer_decode_failures_total",
			Help: "Payloads discarded because they could not be decoded",
		}, []string{"stream"}),
		FramesRendered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "viewer_frames_rendered_total",
			Help: "Frames drawn into a viewport",
		}, []string{"stream"}),
		ConnectAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "viewer_connect_attempts_total",
			Help: "Transport connection attempts",
		}, []string{"stream"}),
		ReconnectsPlanned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "viewer_reconnects_scheduled_total",
			Help: "Reconnect timers armed after a transport close",
		}, []string{"stream"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "viewer_active_sessions",
			Help: "Sessions currently mounted",
		}),
		DecodeDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "viewer_decode_duration_seconds",
			Help:    "Time spent decoding one frame payload",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
	}
}

// Forget drops the per-stream series of a destroyed session.
func (v *Viewer) Forget(stream string) {
	for _, vec := range []*prometheus.CounterVec{
		v.FramesReceived, v.FramesDropped, v.DecodeFailures,
		v.FramesRendered, v.ConnectAttempts, v.ReconnectsPlanned,
	} {
		vec.DeleteLabelValues(stream)
	}
}

// Server tracks feeds and clients of the frame server.
type Server struct {
	Registry *prometheus.Registry

	ActiveClients   prometheus.Gauge
	ActiveFeeds     prometheus.Gauge
	RejectedClients prometheus.Counter
	FramesCaptured  *prometheus.CounterVec
	FramesSent      prometheus.Counter
	FramesDropped   prometheus.Counter
	FramesSkipped   *prometheus.CounterVec
	CaptureFailures *prometheus.CounterVec
	Quality         *prometheus.GaugeVec
	FrameSize       prometheus.Histogram
}

// NewServer creates and registers the server metrics, including the Go
// runtime and process collectors.
func NewServer() *Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Server{
		Registry: reg,
		ActiveClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "frameserver_active_clients",
			Help: "Connected WebSocket viewers",
		}),
		ActiveFeeds: f.NewGauge(prometheus.GaugeOpts{
			Name: "frameserver_active_feeds",
			Help: "Sources currently being captured",
		}),
		RejectedClients: f.NewCounter(prometheus.CounterOpts{
			Name: "frameserver_rejected_clients_total",
			Help: "Connections refused because of the connection limit",
		}),
		FramesCaptured: f.NewCounterVec(prometheus.CounterOpts{
			Name: "frameserver_frames_captured_total",
			Help: "Frames captured and encoded per source",
		}, []string{"source"}),
		FramesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "frameserver_frames_sent_total",
			Help: "Frames written to viewers",
		}),
		FramesDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "frameserver_frames_dropped_total",
			Help: "Frames replaced in a client's mailbox before being written",
		}),
		FramesSkipped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "frameserver_frames_skipped_total",
			Help: "Source frames superseded by a newer one before encoding",
		}, []string{"source"}),
		CaptureFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "frameserver_capture_failures_total",
			Help: "Failed capture attempts per source",
		}, []string{"source"}),
		Quality: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "frameserver_jpeg_quality",
			Help: "Current JPEG quality per source",
		}, []string{"source"}),
		FrameSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "frameserver_frame_bytes",
			Help:    "Encoded frame payload size",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 10),
		}),
	}
}

// Handler serves a registry in the Prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
