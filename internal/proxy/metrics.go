package proxy

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks chat proxy activity:
//
//   - tinychat_proxy_requests_total{status}
//   - tinychat_proxy_request_duration_seconds
//   - tinychat_proxy_active_streams
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
	activeStreams   prometheus.Gauge
}

// NewMetrics creates the proxy collectors and registers them on the given
// registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tinychat",
			Subsystem: "proxy",
			Name:      "requests_total",
			Help:      "Total number of chat proxy requests by HTTP status.",
		}, []string{"status"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tinychat",
			Subsystem: "proxy",
			Name:      "request_duration_seconds",
			Help:      "Duration of chat proxy requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tinychat",
			Subsystem: "proxy",
			Name:      "active_streams",
			Help:      "Number of completion streams currently being relayed.",
		}),
	}
	registry.MustRegister(m.requestsTotal, m.requestDuration, m.activeStreams)
	return m
}

// RecordRequest counts a finished request under its HTTP status and observes
// how long it took.
func (m *Metrics) RecordRequest(status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.requestDuration.Observe(d.Seconds())
}

// StreamStarted marks a relay as in flight.
func (m *Metrics) StreamStarted() { m.activeStreams.Inc() }

// StreamEnded marks a relay as finished, however it ended.
func (m *Metrics) StreamEnded() { m.activeStreams.Dec() }

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
