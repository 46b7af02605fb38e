// Package metrics exposes Prometheus instrumentation for acquisition runs.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/robert-malhotra/scene-chipper/internal/catalog"
	"github.com/robert-malhotra/scene-chipper/internal/errkind"
	"github.com/robert-malhotra/scene-chipper/internal/pipeline"
	"github.com/robert-malhotra/scene-chipper/internal/scene"
	"github.com/robert-malhotra/scene-chipper/internal/scrub"
)

const namespace = "scene_chipper"

// Metrics holds every collector and the registry they are registered on.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	samplesTotal     *prometheus.CounterVec
	sampleDuration   *prometheus.HistogramVec
	samplesRemaining prometheus.Gauge

	catalogRequests *prometheus.CounterVec
	catalogLatency  *prometheus.HistogramVec
	catalogResults  prometheus.Histogram

	scrubScanned prometheus.Counter
	scrubRemoved prometheus.Counter
}

// New creates metrics on a fresh registry that also carries the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates metrics on the given registry. It panics if the collectors
// are already registered there.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	auto := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "runs_total",
		Help:      "Acquisition runs completed, by whether they were interrupted.",
	}, []string{"interrupted"})

	m.samplesTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "samples_total",
		Help:      "Samples processed, by terminal status and failure kind.",
	}, []string{"status", "kind"})

	m.sampleDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "sample_duration_seconds",
		Help:      "Wall time spent on one sample.",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"status"})

	m.samplesRemaining = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pipeline",
		Name:      "samples_remaining",
		Help:      "Samples of the current run without a terminal outcome.",
	})

	m.catalogRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "searches_total",
		Help:      "Catalog searches, by catalog and result.",
	}, []string{"catalog", "result"})

	m.catalogLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "search_duration_seconds",
		Help:      "Latency of a full catalog search including pagination.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"catalog"})

	m.catalogResults = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "search_candidates",
		Help:      "Number of candidates returned per search.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	m.scrubScanned = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scrub",
		Name:      "scanned_total",
		Help:      "Persisted rasters inspected by the scrubber.",
	})

	m.scrubRemoved = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scrub",
		Name:      "removed_total",
		Help:      "Degenerate rasters removed by the scrubber.",
	})

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Push replaces the metrics of the job/command group on a Prometheus Pushgateway with
// the current contents of the registry. run and scrub are short lived, so this is how
// their series leave the process.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job, command string) error {
	err := push.New(gatewayURL, job).
		Gatherer(m.registry).
		Grouping("command", command).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// RunStarted implements pipeline.Observer.
func (m *Metrics) RunStarted(_ context.Context, _ string, _ time.Time, total int) {
	m.samplesRemaining.Set(float64(total))
}

// SampleFinished implements pipeline.Observer.
func (m *Metrics) SampleFinished(_ context.Context, _ string, o pipeline.Outcome) {
	kind := string(o.Kind)
	if o.Kind == errkind.KindNone {
		kind = "none"
	}
	m.samplesTotal.WithLabelValues(string(o.Status), kind).Inc()
	m.sampleDuration.WithLabelValues(string(o.Status)).Observe(o.Duration.Seconds())
	m.samplesRemaining.Dec()
}

// RunFinished implements pipeline.Observer.
func (m *Metrics) RunFinished(_ context.Context, s *pipeline.Summary) {
	interrupted := "false"
	if s.Interrupted {
		interrupted = "true"
	}
	m.runsTotal.WithLabelValues(interrupted).Inc()
	m.samplesRemaining.Set(0)
}

// RecordScrub adds a scrub report to the scrub counters.
func (m *Metrics) RecordScrub(r scrub.Report) {
	m.scrubScanned.Add(float64(r.Scanned))
	if !r.DryRun {
		m.scrubRemoved.Add(float64(len(r.Removed)))
	}
}

// InstrumentCatalog wraps a catalog client so every search is counted and timed.
func (m *Metrics) InstrumentCatalog(c catalog.Client) catalog.Client {
	return &instrumentedCatalog{next: c, m: m}
}

type instrumentedCatalog struct {
	next catalog.Client
	m    *Metrics
}

func (c *instrumentedCatalog) Name() string {
	return c.next.Name()
}

func (c *instrumentedCatalog) Search(ctx context.Context, q catalog.Query) ([]scene.Candidate, error) {
	name := c.next.Name()
	timer := prometheus.NewTimer(c.m.catalogLatency.WithLabelValues(name))
	candidates, err := c.next.Search(ctx, q)
	timer.ObserveDuration()

	if err != nil {
		c.m.catalogRequests.WithLabelValues(name, "error").Inc()
		return nil, err
	}
	c.m.catalogRequests.WithLabelValues(name, "ok").Inc()
	c.m.catalogResults.Observe(float64(len(candidates)))
	return candidates, nil
}
