// Package api serves the explorer over HTTP as JSON. Every endpoint reads
// from or mutates one shared explorer session.
package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/exploopio/findingscope/pkg/aggregate"
	"github.com/exploopio/findingscope/pkg/errors"
	"github.com/exploopio/findingscope/pkg/explorer"
	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/health"
	"github.com/exploopio/findingscope/pkg/logger"
	"github.com/exploopio/findingscope/pkg/metrics"
	"github.com/exploopio/findingscope/pkg/search"
	"github.com/exploopio/findingscope/pkg/suggest"
	"github.com/exploopio/findingscope/pkg/view"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Server routes API requests to an explorer.
type Server struct {
	explorer *explorer.Explorer
	health   *health.Handler
	metrics  metrics.Collector
	logger   logger.Logger
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.logger = logger.OrNop(l) }
}

// WithMetrics sets the collector used for request metrics and /metrics.
func WithMetrics(c metrics.Collector) Option {
	return func(s *Server) { s.metrics = metrics.OrNop(c) }
}

// WithHealth mounts h on /healthz and /livez.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// New creates a server for e.
func New(e *explorer.Explorer, opts ...Option) *Server {
	s := &Server{
		explorer: e,
		metrics:  &metrics.NopCollector{},
		logger:   &logger.NopLogger{},
		mux:      http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Handler returns the root handler with request middleware applied.
func (s *Server) Handler() http.Handler {
	return s.recoverer(s.mux)
}

func (s *Server) routes() {
	s.handle("GET /api/findings", s.handleFindings)
	s.handle("GET /api/dashboard", s.handleDashboard)
	s.handle("GET /api/stats", s.handleStats)
	s.handle("GET /api/timeline", s.handleTimeline)
	s.handle("GET /api/resources", s.handleResources)
	s.handle("GET /api/search", s.handleSearch)
	s.handle("GET /api/suggestions", s.handleSuggestions)
	s.handle("GET /api/facets", s.handleFacets)
	s.handle("GET /api/filter", s.handleGetFilter)
	s.handle("PUT /api/filter", s.handleUpdateFilter)
	s.handle("DELETE /api/filter", s.handleClearFilter)
	s.handle("GET /api/searches", s.handleRecent)
	s.handle("POST /api/searches", s.handleSubmit)
	s.handle("DELETE /api/searches", s.handleClearRecent)
	s.handle("POST /api/refresh", s.handleRefresh)

	s.mux.Handle("GET /metrics", s.metrics.Handler())
	if s.health != nil {
		health.RegisterRoutes(s.mux, s.health)
	}
}

// handle registers fn under pattern with the request metrics applied. The
// route label is the pattern's path.
func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	route := pattern
	if _, path, ok := strings.Cut(pattern, " "); ok {
		route = path
	}
	s.mux.Handle(pattern, s.instrument(route, fn))
}

// =============================================================================
// Response bodies
// =============================================================================

// FindingsResponse is the body of GET /api/findings.
type FindingsResponse struct {
	Findings []finding.Finding `json:"findings"`
	Count    int               `json:"count"`
	Filter   view.FilterState  `json:"filter"`
	Total    int               `json:"total"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Stats  aggregate.Stats           `json:"stats"`
	Shares []aggregate.SeverityShare `json:"shares"`
}

// SearchResponse is the body of GET /api/search.
type SearchResponse struct {
	Query   string          `json:"query"`
	Results []search.Result `json:"results"`
}

// SuggestionsResponse is the body of GET /api/suggestions.
type SuggestionsResponse struct {
	Query       string               `json:"query"`
	Suggestions []suggest.Suggestion `json:"suggestions"`
}

// RecentResponse is the body of GET /api/searches.
type RecentResponse struct {
	Recent []string `json:"recent"`
}

// SubmitRequest is the body of POST /api/searches.
type SubmitRequest struct {
	Query string `json:"query"`
}

// SubmitResponse is the dashboard after a submit. Warning is set when the
// query applied but could not be saved to the history.
type SubmitResponse struct {
	*explorer.Dashboard
	Warning string `json:"warning,omitempty"`
}

// =============================================================================
// Handlers
// =============================================================================

func (s *Server) handleFindings(w http.ResponseWriter, r *http.Request) {
	d := s.explorer.Dashboard()
	resp := FindingsResponse{
		Findings: d.View,
		Count:    len(d.View),
		Filter:   d.Filter,
		Total:    d.Stats.Total,
	}
	if r.URL.Query().Get("all") == "true" {
		resp.Findings = s.explorer.Findings()
		resp.Count = len(resp.Findings)
	}
	if resp.Findings == nil {
		resp.Findings = []finding.Finding{}
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.explorer.Dashboard())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	d := s.explorer.Dashboard()
	s.writeJSON(w, r, http.StatusOK, StatsResponse{Stats: d.Stats, Shares: d.Shares})
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.explorer.Timeline())
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.explorer.Resources())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	s.writeJSON(w, r, http.StatusOK, SearchResponse{Query: q, Results: s.explorer.Search(q)})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	list := s.explorer.Suggest(q)
	if list == nil {
		list = []suggest.Suggestion{}
	}
	s.writeJSON(w, r, http.StatusOK, SuggestionsResponse{Query: q, Suggestions: list})
}

func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.explorer.Facets())
}

func (s *Server) handleGetFilter(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.explorer.Filter())
}

func (s *Server) handleUpdateFilter(w http.ResponseWriter, r *http.Request) {
	var p view.Patch
	if err := decodeBody(w, r, &p); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, s.explorer.UpdateFilter(p))
}

func (s *Server) handleClearFilter(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, s.explorer.ClearFilter())
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, RecentResponse{Recent: s.explorer.Recent()})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	d, err := s.explorer.Submit(r.Context(), req.Query)
	resp := SubmitResponse{Dashboard: d}
	if err != nil {
		resp.Warning = "recent searches could not be saved"
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleClearRecent(w http.ResponseWriter, r *http.Request) {
	if err := s.explorer.ClearHistory(r.Context()); err != nil {
		s.logger.Error("clear recent searches: %v", err)
		s.writeError(w, http.StatusInternalServerError, "history_unavailable", "recent searches could not be cleared")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRefresh answers 200 with the refresh outcome even when the fetch
// failed; the body reports the failure kind and the fallback taken.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.explorer.TriggerRefresh(r.Context())
	if err != nil {
		if errors.IsRateLimitError(err) {
			w.Header().Set("Retry-After", "10")
			s.writeError(w, http.StatusTooManyRequests, "rate_limited", "refresh requested too often")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "refresh_failed", err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, res)
}

// decodeBody decodes a bounded JSON body into v, rejecting unknown fields
// and trailing data.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return fmt.Errorf("empty request body")
		}
		return fmt.Errorf("malformed request body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("request body must hold a single JSON value")
	}
	return nil
}
