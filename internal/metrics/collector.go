package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/rickgao/wslink/internal/connection"
)

const namespace = "wslink"

var allStatuses = []connection.Status{
	connection.Disconnected,
	connection.Connecting,
	connection.Connected,
	connection.Reconnecting,
	connection.Closing,
}

// Collector implements connection.Observer on top of a private registry.
type Collector struct {
	registry *prometheus.Registry

	status         *prometheus.GaugeVec
	transitions    *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	reconnectDelay *prometheus.HistogramVec
	sends          *prometheus.CounterVec
	events         *prometheus.CounterVec
}

var _ connection.Observer = (*Collector)(nil)

// NewCollector creates a Collector with Go runtime and process collectors
// registered alongside the connection metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		status: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_status",
				Help:      "Connection status per endpoint (1 for the current status, 0 otherwise)",
			},
			[]string{"url", "status"},
		),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_transitions_total",
				Help:      "Total number of connection status transitions",
			},
			[]string{"url", "to"},
		),
		reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconnects_scheduled_total",
				Help:      "Total number of scheduled reconnect attempts",
			},
			[]string{"url"},
		),
		reconnectDelay: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconnect_delay_seconds",
				Help:      "Delay before scheduled reconnect attempts",
				Buckets:   []float64{0, 10, 20, 30, 60, 90, 120},
			},
			[]string{"url"},
		),
		sends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sends_total",
				Help:      "Total number of outbound frames by result",
			},
			[]string{"url", "result"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of dispatched connection events by kind",
			},
			[]string{"url", "kind"},
		),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.status,
		c.transitions,
		c.reconnects,
		c.reconnectDelay,
		c.sends,
		c.events,
	)
	return c
}

// Registry returns the registry holding every metric.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StatusChanged implements connection.Observer.
func (c *Collector) StatusChanged(url string, from, to connection.Status) {
	for _, s := range allStatuses {
		v := 0.0
		if s == to {
			v = 1
		}
		c.status.WithLabelValues(url, s.String()).Set(v)
	}
	c.transitions.WithLabelValues(url, to.String()).Inc()
}

// ReconnectScheduled implements connection.Observer.
func (c *Collector) ReconnectScheduled(url string, attempt int, delay time.Duration) {
	c.reconnects.WithLabelValues(url).Inc()
	c.reconnectDelay.WithLabelValues(url).Observe(delay.Seconds())
}

// SendResult implements connection.Observer.
func (c *Collector) SendResult(url string, ok bool) {
	result := "accepted"
	if !ok {
		result = "rejected"
	}
	c.sends.WithLabelValues(url, result).Inc()
}

// EventDispatched implements connection.Observer.
func (c *Collector) EventDispatched(url string, ev connection.Event) {
	c.events.WithLabelValues(url, ev.Kind.String()).Inc()
}
