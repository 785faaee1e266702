package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the API.
// It also satisfies runtime.SessionObserver and services.KeyspaceMetrics
// so the registry and keyspace service can report into it.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveSessions  prometheus.Gauge
	MetadataSkipped prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics creates and registers all metrics with the given registry
func NewMetrics(reg *prometheus.Registry) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "redis_studio",
				Name:      "http_requests_total",
				Help:      "Total number of API requests",
			},
			[]string{"route", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "redis_studio",
				Name:      "http_request_duration_seconds",
				Help:      "API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		ActiveSessions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "redis_studio",
				Name:      "active_connections",
				Help:      "Number of open store connections",
			},
		),
		MetadataSkipped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "redis_studio",
				Name:      "keys_metadata_skipped_total",
				Help:      "Keys omitted from a page because their metadata could not be read",
			},
		),
		gatherer: reg,
	}
}

// SessionsChanged records the registry's current session count
func (m *Metrics) SessionsChanged(active int64) {
	m.ActiveSessions.Set(float64(active))
}

// KeyMetadataSkipped counts one key left out of a page
func (m *Metrics) KeyMetadataSkipped() {
	m.MetadataSkipped.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument wraps a route handler with request counting and timing.
// route is the mux pattern so label cardinality stays bounded.
func (m *Metrics) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.RequestsTotal.WithLabelValues(route, strconv.Itoa(rw.statusCode)).Inc()
	})
}
