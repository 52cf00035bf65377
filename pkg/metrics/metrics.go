// Package metrics defines the Prometheus collectors used by both services
// and the narrow Recorder interface the pipeline components count through.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder counts named pipeline events. Components depend on this
// interface only; production wiring injects a Prometheus-backed recorder
// and tests inject an in-process double.
type Recorder interface {
	Inc(name string)
}

// Nop is a Recorder that discards every count.
type Nop struct{}

func (Nop) Inc(string) {}

// Prom is a Recorder backed by a Prometheus counter vector partitioned by
// event name.
type Prom struct {
	events *prometheus.CounterVec
}

// NewRecorder creates and registers a Prom recorder for the given service.
func NewRecorder(service string) *Prom {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:        "pipeline_events_total",
			Help:        "Pipeline events by name (accepted, rejected, processed, failed, skipped, ...).",
			ConstLabels: prometheus.Labels{"service": service},
		},
		[]string{"event"},
	)
	prometheus.MustRegister(events)
	return &Prom{events: events}
}

func (p *Prom) Inc(name string) {
	p.events.WithLabelValues(name).Inc()
}

// Counting is a Recorder for tests that tallies counts in memory.
type Counting struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewCounting() *Counting {
	return &Counting{counts: make(map[string]int)}
}

func (c *Counting) Inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
}

// Count returns the tally for a named event.
func (c *Counting) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

// HTTP holds the collectors recorded by the ingest server's middleware.
type HTTP struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
}

// NewHTTP creates and registers the HTTP request collectors.
func NewHTTP() *HTTP {
	m := &HTTP{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
	}
	prometheus.MustRegister(m.RequestsTotal, m.RequestDuration, m.RequestsInFlight)
	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
