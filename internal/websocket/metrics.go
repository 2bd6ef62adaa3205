package websocket

import (
	"marketchat/pkg/protocol"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const unknownEventLabel = "unknown"

// Metrics exposes hub activity to Prometheus.
type Metrics struct {
	// Connections is the number of live websocket connections.
	Connections prometheus.Gauge

	// OnlineUsers is the number of users with at least one registered connection.
	OnlineUsers prometheus.Gauge

	// Rooms is the number of rooms with at least one member.
	Rooms prometheus.Gauge

	// InboundEvents counts client events.
	// Labels: event (register-user|join-chat|send-message|typing|unknown)
	InboundEvents *prometheus.CounterVec

	// Deliveries counts frames queued to connections.
	// Labels: event (receive-message|new-message|user-typing|error)
	Deliveries *prometheus.CounterVec

	// Dropped counts connections closed because their send queue was full.
	Dropped prometheus.Counter
}

// NewMetrics registers the hub collectors on reg. A nil reg creates an
// unregistered set, which is what tests use.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketchat",
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Live websocket connections.",
		}),
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketchat",
			Subsystem: "ws",
			Name:      "online_users",
			Help:      "Users with at least one registered connection.",
		}),
		Rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "marketchat",
			Subsystem: "ws",
			Name:      "rooms",
			Help:      "Rooms with at least one member.",
		}),
		InboundEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketchat",
			Subsystem: "ws",
			Name:      "inbound_events_total",
			Help:      "Client events received, by event.",
		}, []string{"event"}),
		Deliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketchat",
			Subsystem: "ws",
			Name:      "deliveries_total",
			Help:      "Server events queued to connections, by event.",
		}, []string{"event"}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "marketchat",
			Subsystem: "ws",
			Name:      "dropped_connections_total",
			Help:      "Connections closed because their send queue was full.",
		}),
	}
}

func (m *Metrics) observe(stats RegistryStats) {
	m.Connections.Set(float64(stats.Connections))
	m.OnlineUsers.Set(float64(stats.Users))
	m.Rooms.Set(float64(stats.Rooms))
}

// countInbound labels anything a client may not emit as "unknown", so
// arbitrary event names cannot grow the label set.
func (m *Metrics) countInbound(event protocol.EventType) {
	label := unknownEventLabel
	if event.IsClientEvent() {
		label = event.String()
	}
	m.InboundEvents.WithLabelValues(label).Inc()
}
