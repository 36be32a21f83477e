// Package explorer is the session facade over the finding store. It owns the
// current snapshot, the filter state and the recent-search history, and
// rebuilds every derived structure eagerly whenever one of them changes.
package explorer

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/exploopio/findingscope/pkg/aggregate"
	"github.com/exploopio/findingscope/pkg/errors"
	"github.com/exploopio/findingscope/pkg/fetch"
	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/logger"
	"github.com/exploopio/findingscope/pkg/metrics"
	"github.com/exploopio/findingscope/pkg/search"
	"github.com/exploopio/findingscope/pkg/suggest"
	"github.com/exploopio/findingscope/pkg/view"
)

// SnapshotInfo describes the installed snapshot.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Count     int       `json:"count"`
	Skipped   int       `json:"skipped,omitempty"`
	Sample    bool      `json:"sample,omitempty"`
}

// Dashboard is one consistent set of derived values. Stats and Shares cover
// the whole store; Timeline and Resources cover the filtered view.
type Dashboard struct {
	Filter      view.FilterState           `json:"filter"`
	FilterOn    bool                       `json:"filter_active"`
	View        []finding.Finding          `json:"view"`
	Stats       aggregate.Stats            `json:"stats"`
	Shares      []aggregate.SeverityShare  `json:"shares"`
	Timeline    []aggregate.TimelineBucket `json:"timeline"`
	Resources   []aggregate.ResourceBucket `json:"resources"`
	Facets      []string                   `json:"facets"`
	Snapshot    *SnapshotInfo              `json:"snapshot,omitempty"`
	LastRefresh *RefreshResult             `json:"last_refresh,omitempty"`
}

// state is what readers see. It is replaced as a whole after a recompute.
type state struct {
	snap  *finding.Snapshot
	index *search.Index
	dash  *Dashboard
}

// Explorer serializes its mutators so a recompute is never observed half
// done. Readers never block on a refresh in flight.
type Explorer struct {
	fetcher fetch.Fetcher
	store   *finding.Store
	history *suggest.History

	mu      sync.Mutex
	filter  view.FilterState
	last    *RefreshResult
	current atomic.Pointer[state]

	limiter      *rate.Limiter
	timeout      time.Duration
	now          func() time.Time
	timelineOpts []aggregate.TimelineOption
	searchOpts   []search.Option

	logger  logger.Logger
	metrics metrics.Collector
}

// Option configures an Explorer.
type Option func(*Explorer)

// WithHistory sets the recent-search history. Without it history lives in
// memory only.
func WithHistory(h *suggest.History) Option {
	return func(e *Explorer) {
		if h != nil {
			e.history = h
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Explorer) { e.logger = logger.OrNop(l) }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c metrics.Collector) Option {
	return func(e *Explorer) { e.metrics = metrics.OrNop(c) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Explorer) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTimeout bounds each refresh (default fetch.DefaultTimeout).
func WithTimeout(d time.Duration) Option {
	return func(e *Explorer) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithRefreshLimit throttles TriggerRefresh to perMinute requests per minute
// with the given burst. Zero disables throttling.
func WithRefreshLimit(perMinute, burst int) Option {
	return func(e *Explorer) {
		if perMinute <= 0 {
			e.limiter = nil
			return
		}
		e.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), max(burst, 1))
	}
}

// WithTimeline sets the timeline grouping options.
func WithTimeline(opts ...aggregate.TimelineOption) Option {
	return func(e *Explorer) { e.timelineOpts = opts }
}

// WithSearch sets the search index options.
func WithSearch(opts ...search.Option) Option {
	return func(e *Explorer) { e.searchOpts = opts }
}

// New creates an explorer reading from fetcher. Nothing is fetched until
// Refresh is called; until then every view is empty.
func New(fetcher fetch.Fetcher, opts ...Option) *Explorer {
	e := &Explorer{
		fetcher: fetcher,
		store:   finding.NewStore(),
		filter:  view.DefaultState(),
		timeout: fetch.DefaultTimeout,
		now:     time.Now,
		logger:  &logger.NopLogger{},
		metrics: &metrics.NopCollector{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.history == nil {
		e.history, _ = suggest.LoadHistory(context.Background(), nil)
	}

	e.mu.Lock()
	e.recompute("init", true)
	e.mu.Unlock()
	return e
}

func (e *Explorer) load() *state {
	return e.current.Load()
}

// recompute rebuilds the dashboard from the store, the filter and the last
// refresh. The caller holds e.mu.
func (e *Explorer) recompute(trigger string, snapshotChanged bool) {
	timer := metrics.NewTimer(e.metrics, metrics.RecomputeDuration.Name, "trigger", trigger)
	defer timer.ObserveDuration()

	snap := e.store.Snapshot()
	var all []finding.Finding
	if snap != nil {
		all = snap.Findings
	}

	prev := e.load()
	var idx *search.Index
	if prev != nil && !snapshotChanged {
		idx = prev.index
	} else {
		idx = search.Build(all, e.searchOpts...)
	}

	derived := view.Derive(all, e.filter)
	stats := aggregate.ComputeStats(all)
	dash := &Dashboard{
		Filter:      e.filter,
		FilterOn:    e.filter.Active(),
		View:        derived,
		Stats:       stats,
		Shares:      aggregate.SeverityShares(stats),
		Timeline:    aggregate.ComputeTimeline(derived, e.timelineOpts...),
		Resources:   aggregate.ComputeResourceDistribution(derived),
		Facets:      view.Facets(all),
		LastRefresh: e.last,
	}
	if snap != nil {
		dash.Snapshot = &SnapshotInfo{
			ID:        snap.ID.String(),
			Source:    snap.Source,
			FetchedAt: snap.FetchedAt,
			Count:     snap.Len(),
			Skipped:   snap.Skipped,
			Sample:    snap.Sample,
		}
	}

	e.current.Store(&state{snap: snap, index: idx, dash: dash})
	e.metrics.GaugeSet(metrics.ViewFindings.Name, float64(len(derived)))
}

// =============================================================================
// Readers
// =============================================================================

// Dashboard returns the current derived values.
func (e *Explorer) Dashboard() *Dashboard {
	return e.load().dash
}

// View returns the filtered findings.
func (e *Explorer) View() []finding.Finding {
	return e.load().dash.View
}

// Stats returns the severity tally over the whole store.
func (e *Explorer) Stats() aggregate.Stats {
	return e.load().dash.Stats
}

// Timeline returns the per-day buckets of the filtered view.
func (e *Explorer) Timeline() []aggregate.TimelineBucket {
	return e.load().dash.Timeline
}

// Resources returns the top services of the filtered view.
func (e *Explorer) Resources() []aggregate.ResourceBucket {
	return e.load().dash.Resources
}

// Facets returns the severity filter choices.
func (e *Explorer) Facets() []string {
	return e.load().dash.Facets
}

// Filter returns the current filter state.
func (e *Explorer) Filter() view.FilterState {
	return e.load().dash.Filter
}

// Findings returns every finding of the current snapshot.
func (e *Explorer) Findings() []finding.Finding {
	if s := e.load().snap; s != nil {
		return s.Findings
	}
	return nil
}

// Snapshot returns the installed snapshot, or nil before the first refresh.
func (e *Explorer) Snapshot() *finding.Snapshot {
	return e.load().snap
}

// Recent returns the recent searches, most recent first.
func (e *Explorer) Recent() []string {
	return e.history.Entries()
}

// Search runs a fuzzy query over the whole store.
func (e *Explorer) Search(q string) []search.Result {
	e.metrics.CounterInc(metrics.QueriesTotal.Name, "kind", "search")
	return e.load().index.Search(q)
}

// Suggest returns the dropdown suggestions for q.
func (e *Explorer) Suggest(q string) []suggest.Suggestion {
	e.metrics.CounterInc(metrics.QueriesTotal.Name, "kind", "suggest")
	st := e.load()
	var all []finding.Finding
	if st.snap != nil {
		all = st.snap.Findings
	}
	return suggest.Suggest(q, all, st.index, e.history.Entries())
}

// =============================================================================
// Mutators
// =============================================================================

// SetFilter replaces the filter state.
func (e *Explorer) SetFilter(s view.FilterState) *Dashboard {
	e.mu.Lock()
	defer e.mu.Unlock()

	if s.Severity == "" {
		s.Severity = view.All
	}
	e.filter = s
	e.recompute("filter", false)
	return e.load().dash
}

// UpdateFilter applies a partial filter change.
func (e *Explorer) UpdateFilter(p view.Patch) *Dashboard {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.filter = e.filter.Apply(p)
	e.recompute("filter", false)
	return e.load().dash
}

// ClearFilter restores the default filter.
func (e *Explorer) ClearFilter() *Dashboard {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.filter = view.DefaultState()
	e.recompute("filter", false)
	return e.load().dash
}

// Submit applies q as the filter query and records it in the history. A
// blank q clears the query without touching the history. A history
// persistence failure is returned, but the filter change still applies.
func (e *Explorer) Submit(ctx context.Context, q string) (*Dashboard, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var herr error
	query := strings.TrimSpace(q)
	if query != "" {
		if err := e.history.Push(ctx, query); err != nil {
			e.logger.Warn("save recent searches: %v", err)
			herr = err
		}
	}
	e.filter.Query = query
	e.recompute("submit", false)
	return e.load().dash, herr
}

// ClearHistory empties the recent-search history.
func (e *Explorer) ClearHistory(ctx context.Context) error {
	return e.history.Clear(ctx)
}

// =============================================================================
// Refresh
// =============================================================================

// TriggerRefresh is Refresh behind the refresh rate limiter. It returns
// errors.ErrRateLimited when the limit is exceeded.
func (e *Explorer) TriggerRefresh(ctx context.Context) (*RefreshResult, error) {
	if e.limiter != nil && !e.limiter.Allow() {
		e.metrics.CounterInc(metrics.RefreshRejected.Name)
		return nil, errors.ErrRateLimited
	}
	return e.Refresh(ctx), nil
}
