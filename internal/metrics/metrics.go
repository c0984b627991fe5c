// ABOUTME: Prometheus metrics for discovery, streaming and playback
// ABOUTME: Private registry with nil-safe recording helpers
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "listenbuddy"

// Frame directions
const (
	SideServer = "server"
	SideClient = "client"
)

// Discovery datagram results
const (
	ResultAccepted  = "accepted"
	ResultDuplicate = "duplicate"
	ResultMalformed = "malformed"
)

// Metrics contains all Prometheus metrics for ListenBuddy. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Stream metrics
	FramesSent     *prometheus.CounterVec
	FramesDropped  *prometheus.CounterVec
	BytesSent      prometheus.Counter
	ActiveClients  prometheus.Gauge
	ClientsTotal   prometheus.Counter
	ClientFailures prometheus.Counter

	// Discovery metrics
	DiscoveryDatagrams *prometheus.CounterVec
	BroadcastsSent     prometheus.Counter
	BroadcastFailures  prometheus.Counter

	// Receiver metrics
	Connects       *prometheus.CounterVec
	FramesPlayed   prometheus.Counter
	PlaybackErrors prometheus.Counter
}

// New creates and registers all metrics on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of frames handed on, by side",
		}, []string{"side"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Total number of frames dropped on a full queue, by side",
		}, []string{"side"}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_bytes_sent_total",
			Help:      "Total payload bytes written to clients",
		}),
		ActiveClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Current number of connected stream clients",
		}),
		ClientsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_clients_accepted_total",
			Help:      "Total number of stream clients accepted",
		}),
		ClientFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_client_failures_total",
			Help:      "Total number of clients removed after a write or read failure",
		}),

		DiscoveryDatagrams: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_datagrams_total",
			Help:      "Discovery datagrams received, by result",
		}, []string{"result"}),
		BroadcastsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_broadcasts_sent_total",
			Help:      "Discovery datagrams broadcast",
		}),
		BroadcastFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_broadcast_failures_total",
			Help:      "Discovery broadcasts that failed to send",
		}),

		Connects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receiver_connects_total",
			Help:      "Receiver connection attempts, by result",
		}, []string{"result"}),
		FramesPlayed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receiver_frames_played_total",
			Help:      "Frames handed to the audio sink",
		}),
		PlaybackErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "receiver_playback_errors_total",
			Help:      "Frames the audio sink failed to play",
		}),
	}
}

// Registry exposes the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// FrameSent records a frame handed to a queue or sink
func (m *Metrics) FrameSent(side string) {
	if m == nil {
		return
	}
	m.FramesSent.WithLabelValues(side).Inc()
}

// FrameDropped records a frame lost to a full queue
func (m *Metrics) FrameDropped(side string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(side).Inc()
}

// BytesWritten records payload bytes written to a client
func (m *Metrics) BytesWritten(n int) {
	if m == nil {
		return
	}
	m.BytesSent.Add(float64(n))
}

// ClientAccepted records a newly registered client
func (m *Metrics) ClientAccepted() {
	if m == nil {
		return
	}
	m.ClientsTotal.Inc()
}

// ClientFailed records a client removed after an I/O failure
func (m *Metrics) ClientFailed() {
	if m == nil {
		return
	}
	m.ClientFailures.Inc()
}

// SetClients records the current client count
func (m *Metrics) SetClients(n int) {
	if m == nil {
		return
	}
	m.ActiveClients.Set(float64(n))
}

// Datagram records a received discovery datagram
func (m *Metrics) Datagram(result string) {
	if m == nil {
		return
	}
	m.DiscoveryDatagrams.WithLabelValues(result).Inc()
}

// Broadcast records one discovery send attempt
func (m *Metrics) Broadcast(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.BroadcastFailures.Inc()
		return
	}
	m.BroadcastsSent.Inc()
}

// Connect records a receiver connection attempt
func (m *Metrics) Connect(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Connects.WithLabelValues(result).Inc()
}

// Played records a frame handed to the sink
func (m *Metrics) Played(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.PlaybackErrors.Inc()
		return
	}
	m.FramesPlayed.Inc()
}
