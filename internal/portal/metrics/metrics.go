// Package metrics exposes security event counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the portal collectors.
type Metrics struct {
	Events          *prometheus.CounterVec
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// Registry is where the collectors are registered and later gathered from.
// *prometheus.Registry satisfies it.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// New creates the collectors and registers them with reg. Collectors that
// are already registered are reused, so New may be called more than once
// against the same registry.
func New(reg Registry) (*Metrics, error) {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "security",
			Name:      "events_total",
			Help:      "Security events by type (logins, failures, lockouts, 2FA, revocations, registrations).",
		},
		[]string{"event"},
	)
	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "portal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m := &Metrics{gatherer: reg}
	var err error
	if m.Events, err = register(reg, events); err != nil {
		return nil, err
	}
	if m.RequestCount, err = register(reg, requests); err != nil {
		return nil, err
	}
	if m.RequestDuration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return m, nil
}

// NewDefault registers against the process-wide Prometheus registry.
func NewDefault() (*Metrics, error) {
	return New(defaultRegistry{prometheus.DefaultRegisterer, prometheus.DefaultGatherer})
}

type defaultRegistry struct {
	prometheus.Registerer
	prometheus.Gatherer
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// Record counts one security event.
func (m *Metrics) Record(event string) {
	m.Events.WithLabelValues(event).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware observes request counts and latency.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.RequestCount.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
