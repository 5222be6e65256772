// Package metrics exposes Prometheus instruments for the pipeline engine, the
// sweeper and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/salesflow/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "salesflow"

// Metrics holds every instrument on its own registry, so tests can create as
// many instances as they need.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Pipeline metrics
	TransitionsTotal     *prometheus.CounterVec
	RejectionsTotal      *prometheus.CounterVec
	ConcurrencyConflicts prometheus.Counter
	RecordsCreated       prometheus.Counter

	// Automation metrics
	SweepRuns        *prometheus.CounterVec
	SweepDuration    prometheus.Histogram
	NotificationSent *prometheus.CounterVec

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		TransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_transitions_total",
				Help:      "Committed stage transitions",
			},
			[]string{"from", "to", "type"},
		),
		RejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stage_transition_rejections_total",
				Help:      "Transitions refused by the engine, by reason",
			},
			[]string{"reason"},
		),
		ConcurrencyConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "concurrency_conflicts_total",
			Help:      "Transitions that lost the optimistic lock after retrying",
		}),
		RecordsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_records_created_total",
			Help:      "Leads that entered the pipeline",
		}),

		SweepRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_moves_total",
				Help:      "Automatic moves attempted by the sweeper",
			},
			[]string{"result"}, // moved, failed
		),
		SweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of a full sweep",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		NotificationSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Stage automations delivered to the messaging gateway",
			},
			[]string{"channel", "result"},
		),

		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of analytics cache hits",
			},
			[]string{"key"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of analytics cache misses",
			},
			[]string{"key"},
		),
	}
}

// Registry returns the registry the instruments live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request count and latency by route pattern.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		path := c.Route().Path
		status := c.Response().StatusCode()

		if err != nil {
			if fiberErr, ok := err.(*fiber.Error); ok {
				status = fiberErr.Code
			}
		}

		m.HTTPRequestsTotal.WithLabelValues(c.Method(), path, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Method(), path).Observe(time.Since(start).Seconds())

		return err
	}
}

func (m *Metrics) TransitionCommitted(from, to models.StageID, kind models.TransitionType) {
	m.TransitionsTotal.WithLabelValues(string(from), string(to), string(kind)).Inc()
}

func (m *Metrics) TransitionRejected(reason string) {
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) ConcurrencyConflict() {
	m.ConcurrencyConflicts.Inc()
}

func (m *Metrics) RecordCreated() {
	m.RecordsCreated.Inc()
}

// RecordSweep observes one sweep run.
func (m *Metrics) RecordSweep(moved, failed int, duration time.Duration) {
	m.SweepRuns.WithLabelValues("moved").Add(float64(moved))
	m.SweepRuns.WithLabelValues("failed").Add(float64(failed))
	m.SweepDuration.Observe(duration.Seconds())
}

func (m *Metrics) RecordNotification(channel string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}

	m.NotificationSent.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) CacheHit(key string) {
	m.CacheHits.WithLabelValues(key).Inc()
}

func (m *Metrics) CacheMiss(key string) {
	m.CacheMisses.WithLabelValues(key).Inc()
}
