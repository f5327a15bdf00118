// Package metrics exposes Prometheus instrumentation for the broker. Metrics
// register on the default registry; serve Handler() to scrape them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foxbridge_connections_total",
		Help: "Total number of WebSocket connections accepted",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foxbridge_connections_active",
		Help: "Current number of active WebSocket connections",
	})

	ConnectionsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foxbridge_connections_failed_total",
		Help: "Total number of connection attempts rejected or failed during upgrade",
	})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foxbridge_messages_sent_total",
		Help: "Total number of frames written to clients",
	})

	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foxbridge_messages_received_total",
		Help: "Total number of frames read from clients",
	})

	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foxbridge_bytes_sent_total",
		Help: "Total number of payload bytes written to clients",
	})

	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foxbridge_bytes_received_total",
		Help: "Total number of payload bytes read from clients",
	})

	StatusesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "foxbridge_statuses_sent_total",
		Help: "Total status control messages sent, by level",
	}, []string{"level"})

	ChannelsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "foxbridge_channels_active",
		Help: "Current number of advertised server channels",
	})

	RateLimitedMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "foxbridge_rate_limited_messages_total",
		Help: "Total inbound client messages dropped by the per-session rate limiter",
	})
)

// Handler returns the scrape endpoint for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
