// Package metrics exposes Prometheus instruments for compute runs and the
// HTTP explorer. Each Collector owns its registry so tests and multiple
// servers in one process never collide on registration.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hurttlocker/subjectgraph/internal/cooccur"
)

// Collector holds all Prometheus metrics for the application.
type Collector struct {
	registry *prometheus.Registry

	// Compute metrics
	RecordsScanned  prometheus.Counter
	RecordsSkipped  prometheus.Counter
	PairsConsidered prometheus.Gauge
	PairsRetained   prometheus.Gauge
	Relationships   *prometheus.GaugeVec
	ComputeDuration prometheus.Histogram
	PartialRuns     prometheus.Counter

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector creates a collector whose metric names are prefixed with
// namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		RecordsScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_scanned_total",
			Help:      "Total number of well-formed records tallied",
		}),
		RecordsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_skipped_total",
			Help:      "Total number of malformed records skipped",
		}),
		PairsConsidered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pairs_considered",
			Help:      "Distinct co-occurring subject pairs in the latest run",
		}),
		PairsRetained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pairs_retained",
			Help:      "Pairs that passed the significance filter in the latest run",
		}),
		Relationships: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relationships",
			Help:      "Retained relationships in the latest run by verdict",
		}, []string{"verdict"}),
		ComputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compute_duration_seconds",
			Help:      "Wall time of a full co-occurrence computation",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		PartialRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partial_runs_total",
			Help:      "Runs that returned a partial result after a read failure",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		c.RecordsScanned,
		c.RecordsSkipped,
		c.PairsConsidered,
		c.PairsRetained,
		c.Relationships,
		c.ComputeDuration,
		c.PartialRuns,
		c.HTTPRequests,
		c.HTTPDuration,
	)
	return c
}

// ObserveRun records the outcome of one computation.
func (c *Collector) ObserveRun(s cooccur.Summary, elapsed time.Duration) {
	c.RecordsScanned.Add(float64(s.TotalRecordsScanned))
	c.RecordsSkipped.Add(float64(s.RecordsSkipped))
	c.PairsConsidered.Set(float64(s.TotalPairsConsidered))
	c.PairsRetained.Set(float64(s.TotalPairsRetained))
	for _, v := range cooccur.Verdicts {
		c.Relationships.WithLabelValues(string(v)).Set(float64(s.CountsByVerdict[v]))
	}
	if s.Partial {
		c.PartialRuns.Inc()
	}
	c.ComputeDuration.Observe(elapsed.Seconds())
}

// ObserveHTTP records one served request. route should be the route pattern,
// not the raw path, to keep label cardinality bounded.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
