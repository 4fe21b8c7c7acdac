package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles Prometheus collectors for the viewer API.
type Metrics struct {
	registry        *prometheus.Registry
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	sseClients      prometheus.Gauge
	wsClients       prometheus.Gauge
	broadcastDrops  *prometheus.CounterVec
	messagesSent    *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

func newMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirror",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests received",
		}, []string{"route", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mirror",
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request durations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		sseClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mirror",
			Name:      "sse_clients",
			Help:      "Current connected SSE viewers",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mirror",
			Name:      "ws_clients",
			Help:      "Current connected WebSocket viewers",
		}),
		broadcastDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirror",
			Name:      "broadcast_drops_total",
			Help:      "Messages dropped due to slow viewers",
		}, []string{"transport"}),
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mirror",
			Name:      "messages_sent_total",
			Help:      "Messages delivered to viewers",
		}, []string{"transport"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mirror",
			Name:      "http_rate_limited_total",
			Help:      "HTTP requests rejected due to rate limiting",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.sseClients,
		m.wsClients,
		m.broadcastDrops,
		m.messagesSent,
		m.rateLimited,
	)

	return m
}

// Handler returns an HTTP handler exposing the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry so other components (the
// ingest pipeline) can add their collectors to the same /metrics
// endpoint. Nil when metrics are disabled.
func (m *Metrics) Registry() prometheus.Registerer {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveRequest(route, method string, status int, dur time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(dur.Seconds())
}

func (m *Metrics) IncSSEClients(delta float64) {
	if m == nil {
		return
	}
	m.sseClients.Add(delta)
}

func (m *Metrics) IncWSClients(delta float64) {
	if m == nil {
		return
	}
	m.wsClients.Add(delta)
}

func (m *Metrics) IncBroadcastDrops(transport string) {
	if m == nil {
		return
	}
	m.broadcastDrops.WithLabelValues(transport).Inc()
}

func (m *Metrics) IncMessagesSent(transport string) {
	if m == nil {
		return
	}
	m.messagesSent.WithLabelValues(transport).Inc()
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}
