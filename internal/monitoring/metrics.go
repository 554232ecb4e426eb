package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	RowsTotal           *prometheus.CounterVec
	ProbesTotal         *prometheus.CounterVec
	PagesTotal          *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
	RowDuration         prometheus.Histogram
	RowsInFlight        prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics registers the metrics on reg. Pass prometheus.DefaultRegisterer
// to expose them through promhttp.Handler.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_rows_processed_total",
			Help: "The total number of rows processed, by resulting status",
		}, []string{"status"}),
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_probes_total",
			Help: "Reachability probes by result",
		}, []string{"result"}), // reachable, unreachable, invalid
		PagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_pages_fetched_total",
			Help: "Pages fetched while crawling, by result",
		}, []string{"result"}), // ok, http_error, fetch_error, off_host, skipped_type
		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "enricher_errors_total",
			Help: "The total number of errors encountered",
		}, []string{"type"}), // e.g. 'cache_get', 'sink_save', 'row_panic'
		RowDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "enricher_row_duration_seconds",
			Help:    "Time spent enriching a single row.",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		RowsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "enricher_rows_in_flight",
			Help: "Rows currently being enriched.",
		}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

func (m *Metrics) IncRows(status string) {
	if m == nil {
		return
	}
	m.RowsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) IncProbes(result string) {
	if m == nil {
		return
	}
	m.ProbesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncPages(result string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncErrorsTotal(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

func (m *Metrics) ObserveRow(seconds float64) {
	if m == nil {
		return
	}
	m.RowDuration.Observe(seconds)
}

func (m *Metrics) RowStarted() {
	if m == nil {
		return
	}
	m.RowsInFlight.Inc()
}

func (m *Metrics) RowFinished() {
	if m == nil {
		return
	}
	m.RowsInFlight.Dec()
}

func (m *Metrics) ObserveHTTP(method, path, status string, seconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(seconds)
}
