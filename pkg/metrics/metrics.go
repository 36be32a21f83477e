// Package metrics defines the operational metrics of findingscope and the
// collectors that record them.
package metrics

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Collector records metrics. Labels are passed as name/value pairs.
type Collector interface {
	CounterInc(name string, labels ...string)
	CounterAdd(name string, value float64, labels ...string)

	GaugeSet(name string, value float64, labels ...string)

	HistogramObserve(name string, value float64, labels ...string)

	// Handler returns an HTTP handler for the metrics endpoint.
	Handler() http.Handler
}

// MetricType represents the type of metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// MetricDefinition defines a metric with its metadata.
type MetricDefinition struct {
	Name    string     `json:"name"`
	Type    MetricType `json:"type"`
	Help    string     `json:"help"`
	Labels  []string   `json:"labels,omitempty"`
	Buckets []float64  `json:"buckets,omitempty"`
}

var (
	// Fetch metrics
	FetchTotal = MetricDefinition{
		Name:   "findingscope_fetch_total",
		Type:   MetricTypeCounter,
		Help:   "Findings fetches by outcome",
		Labels: []string{"status"},
	}
	FetchDuration = MetricDefinition{
		Name:    "findingscope_fetch_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of findings fetches in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}
	RefreshRejected = MetricDefinition{
		Name: "findingscope_refresh_rejected_total",
		Type: MetricTypeCounter,
		Help: "Refresh requests rejected by the rate limiter",
	}

	// Snapshot metrics
	SnapshotFindings = MetricDefinition{
		Name: "findingscope_snapshot_findings",
		Type: MetricTypeGauge,
		Help: "Findings in the current snapshot",
	}
	SnapshotSkipped = MetricDefinition{
		Name: "findingscope_snapshot_skipped_records",
		Type: MetricTypeGauge,
		Help: "Records skipped while ingesting the current snapshot",
	}
	SnapshotSample = MetricDefinition{
		Name: "findingscope_snapshot_sample",
		Type: MetricTypeGauge,
		Help: "1 when the built-in sample dataset is installed",
	}

	// Session metrics
	RecomputeDuration = MetricDefinition{
		Name:    "findingscope_recompute_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of dashboard recomputes in seconds",
		Labels:  []string{"trigger"},
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}
	ViewFindings = MetricDefinition{
		Name: "findingscope_view_findings",
		Type: MetricTypeGauge,
		Help: "Findings in the current filtered view",
	}
	QueriesTotal = MetricDefinition{
		Name:   "findingscope_queries_total",
		Type:   MetricTypeCounter,
		Help:   "Search and suggestion queries",
		Labels: []string{"kind"},
	}

	// HTTP API metrics
	HTTPRequestsTotal = MetricDefinition{
		Name:   "findingscope_http_requests_total",
		Type:   MetricTypeCounter,
		Help:   "API requests served",
		Labels: []string{"route", "method", "status"},
	}
	HTTPRequestDuration = MetricDefinition{
		Name:    "findingscope_http_request_duration_seconds",
		Type:    MetricTypeHistogram,
		Help:    "Duration of API requests in seconds",
		Labels:  []string{"route"},
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}
)

// Definitions returns every metric findingscope records.
func Definitions() []MetricDefinition {
	return []MetricDefinition{
		FetchTotal, FetchDuration, RefreshRejected,
		SnapshotFindings, SnapshotSkipped, SnapshotSample,
		RecomputeDuration, ViewFindings, QueriesTotal,
		HTTPRequestsTotal, HTTPRequestDuration,
	}
}

// =============================================================================
// NopCollector
// =============================================================================

// NopCollector discards all metrics.
type NopCollector struct{}

func (c *NopCollector) CounterInc(name string, labels ...string)                      {}
func (c *NopCollector) CounterAdd(name string, value float64, labels ...string)       {}
func (c *NopCollector) GaugeSet(name string, value float64, labels ...string)         {}
func (c *NopCollector) HistogramObserve(name string, value float64, labels ...string) {}
func (c *NopCollector) Handler() http.Handler                                         { return http.NotFoundHandler() }

// OrNop returns c, or a NopCollector when c is nil.
func OrNop(c Collector) Collector {
	if c == nil {
		return &NopCollector{}
	}
	return c
}

// =============================================================================
// InMemoryCollector
// =============================================================================

// InMemoryCollector stores metrics in memory. It backs tests and the CLI.
type InMemoryCollector struct {
	mu         sync.RWMutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewInMemoryCollector creates an empty in-memory collector.
func NewInMemoryCollector() *InMemoryCollector {
	return &InMemoryCollector{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

// key renders name{l1=v1,l2=v2} with labels sorted by name.
func (c *InMemoryCollector) key(name string, labels []string) string {
	pairs := make([]string, 0, len(labels)/2)
	for i := 0; i+1 < len(labels); i += 2 {
		pairs = append(pairs, labels[i]+"="+labels[i+1])
	}
	if len(pairs) == 0 {
		return name
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}

func (c *InMemoryCollector) CounterInc(name string, labels ...string) {
	c.CounterAdd(name, 1, labels...)
}

func (c *InMemoryCollector) CounterAdd(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[c.key(name, labels)] += value
}

func (c *InMemoryCollector) GaugeSet(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[c.key(name, labels)] = value
}

func (c *InMemoryCollector) HistogramObserve(name string, value float64, labels ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := c.key(name, labels)
	c.histograms[k] = append(c.histograms[k], value)
}

func (c *InMemoryCollector) Handler() http.Handler {
	return http.NotFoundHandler()
}

// Reset clears all metrics.
func (c *InMemoryCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters = make(map[string]float64)
	c.gauges = make(map[string]float64)
	c.histograms = make(map[string][]float64)
}

// GetCounter returns the value of a counter.
func (c *InMemoryCollector) GetCounter(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counters[c.key(name, labels)]
}

// GetGauge returns the value of a gauge.
func (c *InMemoryCollector) GetGauge(name string, labels ...string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gauges[c.key(name, labels)]
}

// GetHistogram returns a copy of the observations of a histogram.
func (c *InMemoryCollector) GetHistogram(name string, labels ...string) []float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]float64(nil), c.histograms[c.key(name, labels)]...)
}

// =============================================================================
// Timer
// =============================================================================

// Timer records the duration of an operation into a histogram.
type Timer struct {
	start     time.Time
	collector Collector
	name      string
	labels    []string
}

// NewTimer starts a timer for the given histogram.
func NewTimer(collector Collector, name string, labels ...string) *Timer {
	return &Timer{
		start:     time.Now(),
		collector: OrNop(collector),
		name:      name,
		labels:    labels,
	}
}

// ObserveDuration records the elapsed time and returns it.
func (t *Timer) ObserveDuration() time.Duration {
	d := time.Since(t.start)
	t.collector.HistogramObserve(t.name, d.Seconds(), t.labels...)
	return d
}

var (
	_ Collector = (*NopCollector)(nil)
	_ Collector = (*InMemoryCollector)(nil)
)
