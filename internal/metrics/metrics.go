// Package metrics exposes Prometheus metrics for the HTTP API, the item
// feed and realtime delivery.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "najdeno"

// Metrics holds the registry and all collectors.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	feedResults     prometheus.Histogram
	itemsCreated    *prometheus.CounterVec
	eventsPublished prometheus.Counter
	eventsDropped   prometheus.Counter
	streamClients   prometheus.Gauge
}

// New creates a registry with Go and process collectors plus the
// application metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		feedResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "feed_result_items",
			Help:      "Number of items returned by feed queries.",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		itemsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_created_total",
			Help:      "Items created by status.",
		}, []string{"status"}),
		eventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_published_total",
			Help:      "Item-added events published to live subscribers.",
		}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_dropped_total",
			Help:      "Item-added events missed by slow subscribers.",
		}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_stream_clients",
			Help:      "Connected live feed clients.",
		}),
	}
	reg.MustRegister(m.requests, m.requestDuration, m.feedResults, m.itemsCreated,
		m.eventsPublished, m.eventsDropped, m.streamClients)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route string, code int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// ObserveFeed records the size of a feed result.
func (m *Metrics) ObserveFeed(count int) {
	m.feedResults.Observe(float64(count))
}

// ItemCreated counts a new item.
func (m *Metrics) ItemCreated(status string) {
	m.itemsCreated.WithLabelValues(status).Inc()
}

// EventPublished counts a realtime event.
func (m *Metrics) EventPublished() { m.eventsPublished.Inc() }

// EventDropped counts a realtime event missed by a subscriber.
func (m *Metrics) EventDropped() { m.eventsDropped.Inc() }

// StreamClientConnected tracks live feed clients; call the returned func on disconnect.
func (m *Metrics) StreamClientConnected() func() {
	m.streamClients.Inc()
	return m.streamClients.Dec
}
