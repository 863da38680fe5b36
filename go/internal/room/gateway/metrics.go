package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mcdev12/momento/go/internal/room/protocol"
)

// Lookup results reported to MetricsCollector.RecordRoomLookup.
const (
	LookupFound       = "found"
	LookupNotFound    = "not_found"
	LookupUnavailable = "unavailable"
)

// MetricsCollector defines the interface for collecting gateway metrics
type MetricsCollector interface {
	RecordRoomCreated()
	RecordRoomLookup(result string)
	RecordConnectionOpened()
	RecordConnectionClosed()
	RecordMessageBroadcast(t protocol.Type)
	RecordMessageDropped(t protocol.Type)
	RecordRoomExpired()
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordRoomCreated()                     {}
func (NoOpMetricsCollector) RecordRoomLookup(result string)         {}
func (NoOpMetricsCollector) RecordConnectionOpened()                {}
func (NoOpMetricsCollector) RecordConnectionClosed()                {}
func (NoOpMetricsCollector) RecordMessageBroadcast(t protocol.Type) {}
func (NoOpMetricsCollector) RecordMessageDropped(t protocol.Type)   {}
func (NoOpMetricsCollector) RecordRoomExpired()                     {}

// PrometheusMetrics implements MetricsCollector using Prometheus
type PrometheusMetrics struct {
	roomsCreated      prometheus.Counter
	roomLookups       *prometheus.CounterVec
	connections       prometheus.Gauge
	messagesBroadcast *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
	roomsExpired      prometheus.Counter
}

// NewPrometheusMetrics registers the gateway collectors with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)

	return &PrometheusMetrics{
		roomsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "momento_rooms_created_total",
			Help: "Total rooms created",
		}),
		roomLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "momento_room_lookups_total",
			Help: "Total room lookups",
		}, []string{"result"}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "momento_ws_connections",
			Help: "Open websocket connections",
		}),
		messagesBroadcast: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "momento_messages_broadcast_total",
			Help: "Total protocol messages broadcast",
		}, []string{"type"}),
		messagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "momento_messages_dropped_total",
			Help: "Total protocol messages dropped because the relay rejected them",
		}, []string{"type"}),
		roomsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "momento_rooms_expired_total",
			Help: "Total rooms whose expiry was pushed to clients",
		}),
	}
}

func (m *PrometheusMetrics) RecordRoomCreated() {
	m.roomsCreated.Inc()
}

func (m *PrometheusMetrics) RecordRoomLookup(result string) {
	m.roomLookups.WithLabelValues(result).Inc()
}

func (m *PrometheusMetrics) RecordConnectionOpened() {
	m.connections.Inc()
}

func (m *PrometheusMetrics) RecordConnectionClosed() {
	m.connections.Dec()
}

func (m *PrometheusMetrics) RecordMessageBroadcast(t protocol.Type) {
	m.messagesBroadcast.WithLabelValues(string(t)).Inc()
}

func (m *PrometheusMetrics) RecordMessageDropped(t protocol.Type) {
	m.messagesDropped.WithLabelValues(string(t)).Inc()
}

func (m *PrometheusMetrics) RecordRoomExpired() {
	m.roomsExpired.Inc()
}
