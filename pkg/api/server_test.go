package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/findingscope/pkg/compress"
	"github.com/exploopio/findingscope/pkg/explorer"
	"github.com/exploopio/findingscope/pkg/fetch"
	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/health"
	"github.com/exploopio/findingscope/pkg/metrics"
	"github.com/exploopio/findingscope/pkg/suggest"
	"github.com/exploopio/findingscope/pkg/view"
)

var base = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newExplorer(t *testing.T, opts ...explorer.Option) *explorer.Explorer {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"findings": finding.SampleFindings(base)})
	require.NoError(t, err)
	f := fetch.Func{Name: "test", Fn: func(ctx context.Context) (*finding.DecodeResult, error) {
		return finding.Decode(payload)
	}}
	opts = append([]explorer.Option{explorer.WithClock(func() time.Time { return base })}, opts...)
	e := explorer.New(f, opts...)
	require.True(t, e.Refresh(context.Background()).OK)
	return e
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func ids(findings []finding.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.ID
	}
	return out
}

func TestDashboardAndAggregates(t *testing.T) {
	h := New(newExplorer(t)).Handler()

	rec := do(t, h, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	d := decode[explorer.Dashboard](t, rec)
	assert.Equal(t, 12, d.Stats.Total)
	assert.Len(t, d.View, 12)
	require.NotNil(t, d.Snapshot)
	assert.Equal(t, "test", d.Snapshot.Source)

	stats := decode[StatsResponse](t, do(t, h, http.MethodGet, "/api/stats", ""))
	assert.Equal(t, 3, stats.Stats.Critical)
	assert.Len(t, stats.Shares, 4)

	rec = do(t, h, http.MethodGet, "/api/timeline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var timeline []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &timeline))
	assert.Len(t, timeline, 7)

	facets := decode[[]string](t, do(t, h, http.MethodGet, "/api/facets", ""))
	assert.Equal(t, []string{"ALL", "CRITICAL", "HIGH", "MEDIUM", "LOW"}, facets)

	rec = do(t, h, http.MethodGet, "/api/resources", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFilterLifecycle(t *testing.T) {
	h := New(newExplorer(t)).Handler()

	rec := do(t, h, http.MethodPut, "/api/filter", `{"severity":"CRITICAL"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[explorer.Dashboard](t, rec)
	assert.Equal(t, []string{"finding-1", "finding-6", "finding-10"}, ids(d.View))
	assert.True(t, d.FilterOn)

	rec = do(t, h, http.MethodPut, "/api/filter", `{"query":"s3"}`)
	d = decode[explorer.Dashboard](t, rec)
	assert.Equal(t, []string{"finding-1"}, ids(d.View))

	got := decode[view.FilterState](t, do(t, h, http.MethodGet, "/api/filter", ""))
	assert.Equal(t, view.FilterState{Severity: "CRITICAL", Query: "s3"}, got)

	list := decode[FindingsResponse](t, do(t, h, http.MethodGet, "/api/findings", ""))
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, 12, list.Total)

	all := decode[FindingsResponse](t, do(t, h, http.MethodGet, "/api/findings?all=true", ""))
	assert.Equal(t, 12, all.Count)

	rec = do(t, h, http.MethodDelete, "/api/filter", "")
	d = decode[explorer.Dashboard](t, rec)
	assert.Len(t, d.View, 12)
	assert.False(t, d.FilterOn)
}

func TestFilter_BadBody(t *testing.T) {
	h := New(newExplorer(t)).Handler()

	for _, body := range []string{"", "{", `{"severity":"HIGH","colour":"red"}`, `{} {}`} {
		rec := do(t, h, http.MethodPut, "/api/filter", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		apiErr := decode[APIError](t, rec)
		assert.Equal(t, "invalid_body", apiErr.Code)
		assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	}
}

func TestSearchesAndSuggestions(t *testing.T) {
	h := New(newExplorer(t)).Handler()

	rec := do(t, h, http.MethodPost, "/api/searches", `{"query":" s3 "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[SubmitResponse](t, rec)
	require.NotNil(t, resp.Dashboard)
	assert.Equal(t, "s3", resp.Filter.Query)
	assert.Equal(t, []string{"finding-1", "finding-9"}, ids(resp.View))
	assert.Empty(t, resp.Warning)

	recent := decode[RecentResponse](t, do(t, h, http.MethodGet, "/api/searches", ""))
	assert.Equal(t, []string{"s3"}, recent.Recent)

	sugg := decode[SuggestionsResponse](t, do(t, h, http.MethodGet, "/api/suggestions", ""))
	require.NotEmpty(t, sugg.Suggestions)
	assert.Equal(t, suggest.KindRecent, sugg.Suggestions[0].Kind)
	assert.Equal(t, "s3", sugg.Suggestions[0].Text)

	sugg = decode[SuggestionsResponse](t, do(t, h, http.MethodGet, "/api/suggestions?q=kritical", ""))
	require.NotEmpty(t, sugg.Suggestions)
	assert.Equal(t, suggest.KindFinding, sugg.Suggestions[0].Kind)

	found := decode[SearchResponse](t, do(t, h, http.MethodGet, "/api/search?q=kritical", ""))
	assert.Equal(t, "kritical", found.Query)
	require.GreaterOrEqual(t, len(found.Results), 3)
	assert.Equal(t, "finding-1", found.Results[0].Finding.ID)

	rec = do(t, h, http.MethodDelete, "/api/searches", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	recent = decode[RecentResponse](t, do(t, h, http.MethodGet, "/api/searches", ""))
	assert.Empty(t, recent.Recent)
}

func TestResponseCompression(t *testing.T) {
	h := New(newExplorer(t)).Handler()

	for _, enc := range []string{"zstd", "gzip"} {
		t.Run(enc, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, "/api/findings", "", "Accept-Encoding", enc)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, enc, rec.Header().Get("Content-Encoding"))
			assert.Contains(t, rec.Header().Values("Vary"), "Accept-Encoding")

			plain, err := compress.DecodeBody(enc, rec.Body.Bytes())
			require.NoError(t, err)
			var list FindingsResponse
			require.NoError(t, json.Unmarshal(plain, &list))
			assert.Equal(t, 12, list.Count)
		})
	}

	rec := do(t, h, http.MethodGet, "/api/findings", "", "Accept-Encoding", "zstd, gzip")
	assert.Equal(t, "zstd", rec.Header().Get("Content-Encoding"))

	rec = do(t, h, http.MethodGet, "/api/findings", "")
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.True(t, json.Valid(rec.Body.Bytes()))

	// Small bodies are sent as is.
	rec = do(t, h, http.MethodGet, "/api/filter", "", "Accept-Encoding", "zstd")
	assert.Empty(t, rec.Header().Get("Content-Encoding"))
	assert.True(t, json.Valid(rec.Body.Bytes()))
}

func TestRefresh_RateLimited(t *testing.T) {
	h := New(newExplorer(t, explorer.WithRefreshLimit(1, 1))).Handler()

	rec := do(t, h, http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[explorer.RefreshResult](t, rec)
	assert.True(t, res.OK)
	assert.Equal(t, 12, res.Count)

	rec = do(t, h, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decode[APIError](t, rec).Code)
}

func TestRequestMetricsAndIDs(t *testing.T) {
	m := metrics.NewInMemoryCollector()
	h := New(newExplorer(t), WithMetrics(m)).Handler()

	rec := do(t, h, http.MethodGet, "/api/dashboard", "")
	id := rec.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)

	rec = do(t, h, http.MethodGet, "/api/dashboard", "", RequestIDHeader, "req-42")
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))

	do(t, h, http.MethodPut, "/api/filter", "{")

	assert.Equal(t, 2.0, m.GetCounter(metrics.HTTPRequestsTotal.Name, "route", "/api/dashboard", "method", "GET", "status", "200"))
	assert.Equal(t, 1.0, m.GetCounter(metrics.HTTPRequestsTotal.Name, "route", "/api/filter", "method", "PUT", "status", "400"))
	assert.Len(t, m.GetHistogram(metrics.HTTPRequestDuration.Name, "route", "/api/dashboard"), 2)
}

func TestMetricsEndpoint(t *testing.T) {
	c := metrics.NewPrometheusCollector(nil)
	e := newExplorer(t, explorer.WithMetrics(c))
	h := New(e, WithMetrics(c)).Handler()

	do(t, h, http.MethodGet, "/api/stats", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), metrics.SnapshotFindings.Name+" 12")
	assert.Contains(t, rec.Body.String(), metrics.HTTPRequestsTotal.Name)
}

func TestHealthRoutes(t *testing.T) {
	e := newExplorer(t)
	hh := health.NewHandler()
	hh.Register("snapshot", &health.SnapshotCheck{Source: e})
	h := New(e, WithHealth(hh)).Handler()

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/healthz", "").Code)
	hh.SetReady(true)
	rec := do(t, h, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, health.StatusHealthy, decode[health.Response](t, rec).Status)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/livez", "").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := New(newExplorer(t)).Handler()
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodPost, "/api/dashboard", "").Code)
}

func TestRecoverer(t *testing.T) {
	s := New(newExplorer(t))
	h := s.recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := do(t, h, http.MethodGet, "/api/dashboard", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decode[APIError](t, rec).Code)
}

func TestInstrument_PanicCountsAs500(t *testing.T) {
	m := metrics.NewInMemoryCollector()
	s := New(newExplorer(t), WithMetrics(m))
	h := s.recoverer(s.instrument("/boom", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))

	rec := do(t, h, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decode[APIError](t, rec).Code)
	assert.Equal(t, 1.0, m.GetCounter(metrics.HTTPRequestsTotal.Name, "route", "/boom", "method", "GET", "status", "500"))
	assert.Zero(t, m.GetCounter(metrics.HTTPRequestsTotal.Name, "route", "/boom", "method", "GET", "status", "200"))
}
