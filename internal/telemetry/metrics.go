package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/joelkehle/clinical-handoff/internal/handoff"
)

// Collector owns its registry so several collectors can coexist in one
// process. It satisfies handoff.Metrics.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	RunsTotal           *prometheus.CounterVec
	StageDuration       *prometheus.HistogramVec
	RedFlagsTotal       *prometheus.CounterVec
	ViolationsTotal     *prometheus.CounterVec
	GenerativeFallbacks prometheus.Counter
	Completeness        prometheus.Histogram

	JobsQueued prometheus.Gauge
}

func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Collector{
		registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15, 60},
		}, []string{"method", "route"}),

		InFlightGauge: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome and failing stage.",
		}, []string{"outcome", "stage"}),

		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Latency of each completed pipeline stage.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60},
		}, []string{"stage"}),

		RedFlagsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clinical",
			Name:      "red_flags_total",
			Help:      "Red flags raised by type and criticality.",
		}, []string{"type", "criticality"}),

		ViolationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clinical",
			Name:      "safety_violations_total",
			Help:      "Safety violations found in summaries by type.",
		}, []string{"type"}),

		GenerativeFallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "generative_fallbacks_total",
			Help:      "Runs that fell back to local summaries after a generative failure.",
		}),

		Completeness: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "clinical",
			Name:      "completeness_score",
			Help:      "Distribution of summary completeness scores.",
			Buckets:   []float64{0.125, 0.25, 0.375, 0.5, 0.625, 0.75, 0.875, 1, 1.5},
		}),

		JobsQueued: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "queued",
			Help:      "Jobs waiting for a worker.",
		}),
	}
}

func (c *Collector) StageCompleted(stage string, elapsed time.Duration) {
	c.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (c *Collector) RunSucceeded(s handoff.StructuredSummary) {
	c.RunsTotal.WithLabelValues("success", "").Inc()
	c.Completeness.Observe(s.CompletenessScore)
	for _, f := range s.RedFlags {
		c.RedFlagsTotal.WithLabelValues(string(f.Type), string(f.CriticalityLevel)).Inc()
	}
	for _, v := range s.SafetyValidation.Violations {
		c.ViolationsTotal.WithLabelValues(string(v.Type)).Inc()
	}
}

func (c *Collector) RunFailed(stage string) {
	c.RunsTotal.WithLabelValues("failure", stage).Inc()
}

func (c *Collector) GenerativeFallback() { c.GenerativeFallbacks.Inc() }

func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.RequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
