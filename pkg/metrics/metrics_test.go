package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCollector(t *testing.T) {
	c := NewInMemoryCollector()

	t.Run("Counter", func(t *testing.T) {
		c.CounterInc(FetchTotal.Name, "status", "ok")
		c.CounterInc(FetchTotal.Name, "status", "ok")
		c.CounterAdd(FetchTotal.Name, 5, "status", "ok")

		assert.Equal(t, 7.0, c.GetCounter(FetchTotal.Name, "status", "ok"))
		assert.Zero(t, c.GetCounter(FetchTotal.Name, "status", "timeout"))
	})

	t.Run("Label order", func(t *testing.T) {
		c.CounterInc(HTTPRequestsTotal.Name, "route", "/api/stats", "method", "GET", "status", "200")
		got := c.GetCounter(HTTPRequestsTotal.Name, "method", "GET", "status", "200", "route", "/api/stats")
		assert.Equal(t, 1.0, got)
	})

	t.Run("Gauge", func(t *testing.T) {
		c.GaugeSet(SnapshotFindings.Name, 12)
		c.GaugeSet(SnapshotFindings.Name, 3)
		assert.Equal(t, 3.0, c.GetGauge(SnapshotFindings.Name))
	})

	t.Run("Histogram", func(t *testing.T) {
		c.HistogramObserve(FetchDuration.Name, 0.2)
		c.HistogramObserve(FetchDuration.Name, 0.4)
		assert.Len(t, c.GetHistogram(FetchDuration.Name), 2)
	})

	t.Run("Reset", func(t *testing.T) {
		c.Reset()
		assert.Zero(t, c.GetCounter(FetchTotal.Name, "status", "ok"))
		assert.Zero(t, c.GetGauge(SnapshotFindings.Name))
	})
}

func TestNopCollector(t *testing.T) {
	c := OrNop(nil)

	assert.NotPanics(t, func() {
		c.CounterInc("test", "label", "value")
		c.CounterAdd("test", 5, "label", "value")
		c.GaugeSet("test", 42, "label", "value")
		c.HistogramObserve("test", 1.5, "label", "value")
	})
	assert.NotNil(t, c.Handler())
}

func TestTimer(t *testing.T) {
	c := NewInMemoryCollector()
	timer := NewTimer(c, RecomputeDuration.Name, "trigger", "filter")

	time.Sleep(5 * time.Millisecond)

	assert.GreaterOrEqual(t, timer.ObserveDuration(), 5*time.Millisecond)
	assert.Len(t, c.GetHistogram(RecomputeDuration.Name, "trigger", "filter"), 1)
}

func TestDefinitions_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for _, def := range Definitions() {
		assert.False(t, seen[def.Name], "duplicate metric %s", def.Name)
		seen[def.Name] = true
		assert.True(t, strings.HasPrefix(def.Name, "findingscope_"), "metric %s lacks the findingscope_ prefix", def.Name)
	}
}

func TestPrometheusCollector(t *testing.T) {
	c := NewPrometheusCollector(&PrometheusConfig{
		Registry:               prometheus.NewRegistry(),
		RegisterDefaultMetrics: true,
	})

	c.CounterInc(FetchTotal.Name, "status", "timeout")
	c.GaugeSet(SnapshotFindings.Name, 12)
	c.HistogramObserve(FetchDuration.Name, 0.3)
	c.CounterInc("not_registered")

	// Registering twice is a no-op.
	require.NoError(t, c.Register(FetchTotal))
	assert.Error(t, c.Register(MetricDefinition{Name: "x", Type: "summary"}))

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)

	for _, want := range []string{
		`findingscope_fetch_total{status="timeout"} 1`,
		`findingscope_snapshot_findings 12`,
		`findingscope_fetch_duration_seconds_count 1`,
	} {
		assert.Contains(t, text, want)
	}
}

func TestLabelsToValues(t *testing.T) {
	assert.Equal(t, []string{"/api", "GET"}, labelsToValues([]string{"route", "/api", "method", "GET"}))
	assert.Nil(t, labelsToValues(nil))
}
