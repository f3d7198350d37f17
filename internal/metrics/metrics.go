package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Business metrics
	sourceFetches       *prometheus.CounterVec
	sourceFetchDuration prometheus.Histogram
	signalsLoaded       *prometheus.GaugeVec
	generations         *prometheus.CounterVec
	sessionsActive      prometheus.Gauge
	notifications       *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	// Business metrics
	r.sourceFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextsignal_source_fetches_total",
			Help: "Total number of signal list fetches",
		},
		[]string{"status"},
	)
	r.sourceFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nextsignal_source_fetch_duration_seconds",
			Help:    "Signal list fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	r.signalsLoaded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nextsignal_signals_loaded",
			Help: "Number of signals in the current snapshot",
		},
		[]string{"group"},
	)
	r.generations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextsignal_generations_total",
			Help: "Total number of signal generations",
		},
		[]string{"market", "outcome"},
	)
	r.sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nextsignal_sessions_active",
			Help: "Number of signed-in sessions",
		},
	)
	r.notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nextsignal_notifications_total",
			Help: "Total number of notifications sent",
		},
		[]string{"notifier", "status"},
	)

	reg.MustRegister(r.sourceFetches)
	reg.MustRegister(r.sourceFetchDuration)
	reg.MustRegister(r.signalsLoaded)
	reg.MustRegister(r.generations)
	reg.MustRegister(r.sessionsActive)
	reg.MustRegister(r.notifications)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordFetch records a signal list fetch.
func (r *Registry) RecordFetch(status string, duration float64) {
	r.sourceFetches.WithLabelValues(status).Inc()
	r.sourceFetchDuration.Observe(duration)
}

// SetSignalsLoaded sets the snapshot group sizes.
func (r *Registry) SetSignalsLoaded(live, otc int) {
	r.signalsLoaded.WithLabelValues("live").Set(float64(live))
	r.signalsLoaded.WithLabelValues("otc").Set(float64(otc))
}

// RecordGeneration records a generation request outcome.
func (r *Registry) RecordGeneration(market, outcome string) {
	r.generations.WithLabelValues(market, outcome).Inc()
}

// SetSessionsActive sets the number of signed-in sessions.
func (r *Registry) SetSessionsActive(n int) {
	r.sessionsActive.Set(float64(n))
}

// RecordNotification records a notifier delivery.
func (r *Registry) RecordNotification(notifier, status string) {
	r.notifications.WithLabelValues(notifier, status).Inc()
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
