// Package metrics exposes Prometheus instrumentation for letterbox.
//
// Metrics live on a private registry created by New; nothing is registered
// globally. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "letterbox"

// Metrics holds the application collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	readRecords   *prometheus.CounterVec
	subscriptions *prometheus.CounterVec
	registrations *prometheus.CounterVec

	importedLetters prometheus.Counter
	importRuns      *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, along with the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route pattern and status code",
	}, []string{"method", "route", "status"})

	m.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "route"})

	m.readRecords = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reading",
		Name:      "records_total",
		Help:      "Read-status record attempts by outcome (committed, duplicate, failed)",
	}, []string{"outcome"})

	m.subscriptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "subscription",
		Name:      "requests_total",
		Help:      "Subscribe requests by the next step returned (login, register)",
	}, []string{"next"})

	m.registrations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "subscription",
		Name:      "registrations_total",
		Help:      "Registration attempts by result (created, conflict, invalid, error)",
	}, []string{"result"})

	m.importedLetters = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "letters_total",
		Help:      "Letters created from feeds",
	})

	m.importRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "runs_total",
		Help:      "Feed import runs by result (ok, error)",
	}, []string{"result"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.readRecords,
		m.subscriptions,
		m.registrations,
		m.importedLetters,
		m.importRuns,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ReadRecorded counts a read-status outcome.
func (m *Metrics) ReadRecorded(outcome string) {
	if m == nil {
		return
	}
	m.readRecords.WithLabelValues(outcome).Inc()
}

// Subscribed counts a subscribe request by the step returned to the visitor.
func (m *Metrics) Subscribed(next string) {
	if m == nil {
		return
	}
	m.subscriptions.WithLabelValues(next).Inc()
}

// Registered counts a registration attempt.
func (m *Metrics) Registered(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

// Imported counts a feed import run and the letters it created.
func (m *Metrics) Imported(created int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.importRuns.WithLabelValues("error").Inc()
	} else {
		m.importRuns.WithLabelValues("ok").Inc()
	}
	m.importedLetters.Add(float64(created))
}
