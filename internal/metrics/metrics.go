package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "dashboard_relay"

const (
	KindUpdate = "update"
	KindGlobal = "global"
)

// NewRegistry creates a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Relay holds the Prometheus collectors of the relay.
type Relay struct {
	ActiveConnections       prometheus.Gauge
	ActiveRooms             prometheus.Gauge
	AuthRejections          prometheus.Counter
	SlowConsumerDisconnects prometheus.Counter
	Deliveries              *prometheus.CounterVec
	EventsReceived          prometheus.Counter
	DecodeErrors            prometheus.Counter
	BrokerReconnects        prometheus.Counter
}

// New creates the relay metrics and registers them on reg.
func New(reg prometheus.Registerer) *Relay {
	m := &Relay{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of authenticated websocket connections.",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "rooms",
			Name:      "active",
			Help:      "Number of rooms with at least one member.",
		}),
		AuthRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "auth_rejections_total",
			Help:      "Total handshakes refused by authentication.",
		}),
		SlowConsumerDisconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "slow_consumer_disconnects_total",
			Help:      "Total connections evicted because their send queue was full.",
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "deliveries_total",
			Help:      "Total messages queued to connections by kind.",
		}, []string{"kind"}),
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "events_received_total",
			Help:      "Total messages received from the broker topic.",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "decode_errors_total",
			Help:      "Total broker messages dropped because they could not be decoded.",
		}),
		BrokerReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broker",
			Name:      "reconnect_attempts_total",
			Help:      "Total broker resubscription attempts scheduled after a failure.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.ActiveRooms,
		m.AuthRejections,
		m.SlowConsumerDisconnects,
		m.Deliveries,
		m.EventsReceived,
		m.DecodeErrors,
		m.BrokerReconnects,
	)
	return m
}
