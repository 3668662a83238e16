// Package metrics holds the Prometheus collectors of the appointment service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// AppointmentMetrics counts booking outcomes and store latency.
type AppointmentMetrics struct {
	bookings     *prometheus.CounterVec
	deletions    prometheus.Counter
	queryLatency *prometheus.HistogramVec
	httpRequests *prometheus.CounterVec
}

func NewAppointmentMetrics(reg prometheus.Registerer) *AppointmentMetrics {
	m := &AppointmentMetrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solaris",
			Subsystem: "appointments",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solaris",
			Subsystem: "appointments",
			Name:      "deletions_total",
			Help:      "Appointments deleted",
		}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "solaris",
			Subsystem: "appointments",
			Name:      "query_latency_seconds",
			Help:      "Latency of appointment store operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solaris",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status class",
		}, []string{"method", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.deletions, m.queryLatency, m.httpRequests)
	return m
}

// Booking outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeConflict = "conflict"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

func (m *AppointmentMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
}

func (m *AppointmentMetrics) ObserveDeletion() {
	if m == nil {
		return
	}
	m.deletions.Inc()
}

func (m *AppointmentMetrics) ObserveQuery(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.queryLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *AppointmentMetrics) ObserveRequest(method string, status int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, statusClass(status)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
