package explorer

import (
	"context"
	"time"

	"github.com/exploopio/findingscope/pkg/errors"
	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/metrics"
)

// Fallback names what the explorer kept after a failed refresh.
type Fallback string

const (
	FallbackNone     Fallback = ""
	FallbackLastGood Fallback = "last_good"
	FallbackSample   Fallback = "sample"
)

// RefreshResult reports the outcome of one refresh.
type RefreshResult struct {
	At       time.Time     `json:"at"`
	Source   string        `json:"source"`
	OK       bool          `json:"ok"`
	Count    int           `json:"count"`
	Skipped  int           `json:"skipped,omitempty"`
	Duration time.Duration `json:"duration"`

	// Failure fields, set when OK is false.
	Kind     string   `json:"kind,omitempty"`
	Message  string   `json:"message,omitempty"`
	Fallback Fallback `json:"fallback,omitempty"`
	Err      error    `json:"-"`
}

// Refresh fetches a new snapshot and installs it. On failure the last good
// snapshot is kept; with none, the built-in sample dataset is installed.
// Concurrent refreshes are not cancelled; the last to finish wins. The
// previous snapshot stays visible while the fetch is in flight.
func (e *Explorer) Refresh(ctx context.Context) *RefreshResult {
	source := "none"
	if e.fetcher != nil {
		source = e.fetcher.Source()
	}

	start := e.now()
	res := &RefreshResult{At: start, Source: source}

	result, err := e.fetch(ctx)
	res.Duration = time.Since(start)
	e.metrics.HistogramObserve(metrics.FetchDuration.Name, res.Duration.Seconds())

	e.mu.Lock()
	defer e.mu.Unlock()

	if err == nil {
		snap := finding.NewSnapshot(source, e.now(), result.Records)
		snap.Skipped = result.Skipped
		e.store.Replace(snap)

		res.OK = true
		res.Count = snap.Len()
		res.Skipped = snap.Skipped
		e.metrics.CounterInc(metrics.FetchTotal.Name, "status", "ok")
		e.logger.Info("loaded %d findings from %s (%d skipped)", res.Count, source, res.Skipped)
	} else {
		kind := errors.FetchFailure(err)
		res.Kind = kind.String()
		res.Message = errors.Describe(kind)
		res.Err = err
		e.metrics.CounterInc(metrics.FetchTotal.Name, "status", kind.String())

		if e.store.Loaded() {
			res.Fallback = FallbackLastGood
			res.Count = e.store.Snapshot().Len()
			e.logger.Warn("refresh from %s failed (%s), keeping last snapshot: %v", source, kind, err)
		} else {
			snap := finding.SampleSnapshot(e.now())
			e.store.Replace(snap)
			res.Fallback = FallbackSample
			res.Count = snap.Len()
			e.logger.Warn("refresh from %s failed (%s), using sample data: %v", source, kind, err)
		}
	}

	snap := e.store.Snapshot()
	e.metrics.GaugeSet(metrics.SnapshotFindings.Name, float64(snap.Len()))
	e.metrics.GaugeSet(metrics.SnapshotSkipped.Name, float64(snap.Skipped))
	sample := 0.0
	if snap.Sample {
		sample = 1
	}
	e.metrics.GaugeSet(metrics.SnapshotSample.Name, sample)

	e.last = res
	e.recompute("refresh", res.OK || res.Fallback == FallbackSample)
	return res
}

func (e *Explorer) fetch(ctx context.Context) (*finding.DecodeResult, error) {
	if e.fetcher == nil {
		return nil, errors.ErrNoSource
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	result, err := e.fetcher.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &finding.DecodeResult{}
	}
	return result, nil
}
