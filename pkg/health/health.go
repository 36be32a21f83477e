// Package health provides the liveness and readiness endpoints of the
// findings explorer, and the checks that back them: whether a snapshot is
// installed, whether it came from the configured source, and whether the
// recent-search store answers.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/exploopio/findingscope/pkg/errors"
	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/kv"
)

// =============================================================================
// Health Check Interface
// =============================================================================

// Checker is the interface for health checks.
type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckFunc adapts a function to Checker.
type CheckFunc func(ctx context.Context) CheckResult

func (f CheckFunc) Check(ctx context.Context) CheckResult { return f(ctx) }

// Status represents the health status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
	StatusUnknown   Status = "unknown"
)

// CheckResult holds the result of a health check.
type CheckResult struct {
	Status   Status         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	Duration time.Duration  `json:"duration_ms"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response is the full health check response.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Version   string                 `json:"version,omitempty"`
	Uptime    time.Duration          `json:"uptime_seconds,omitempty"`
}

// =============================================================================
// Health Handler
// =============================================================================

// Handler runs the registered checks and serves them over HTTP.
type Handler struct {
	mu     sync.RWMutex
	checks map[string]Checker
	ready  bool

	version     string
	startTime   time.Time
	timeout     time.Duration
	hideDetails bool
}

// HandlerOption configures the health handler.
type HandlerOption func(*Handler)

// WithVersion sets the version reported in responses.
func WithVersion(version string) HandlerOption {
	return func(h *Handler) { h.version = version }
}

// WithTimeout bounds a full round of checks (default 5s).
func WithTimeout(timeout time.Duration) HandlerOption {
	return func(h *Handler) {
		if timeout > 0 {
			h.timeout = timeout
		}
	}
}

// WithHideDetails reports only the overall status.
func WithHideDetails() HandlerOption {
	return func(h *Handler) { h.hideDetails = true }
}

// NewHandler creates a health handler. It starts not ready; call SetReady
// once the first refresh has completed.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{
		checks:    make(map[string]Checker),
		startTime: time.Now(),
		timeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a named check, replacing any check with the same name.
func (h *Handler) Register(name string, checker Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = checker
}

// RegisterFunc adds a named check function.
func (h *Handler) RegisterFunc(name string, fn func(ctx context.Context) CheckResult) {
	h.Register(name, CheckFunc(fn))
}

// Names returns the registered check names, sorted.
func (h *Handler) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetReady sets the readiness state.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// IsReady returns the readiness state.
func (h *Handler) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Check runs all registered checks concurrently. The overall status is the
// worst individual status; unknown results do not lower it.
func (h *Handler) Check(ctx context.Context) Response {
	h.mu.RLock()
	checks := make(map[string]Checker, len(h.checks))
	for name, c := range h.checks {
		checks[name] = c
	}
	h.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make(map[string]CheckResult, len(checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for name, c := range checks {
		wg.Add(1)
		go func(name string, c Checker) {
			defer wg.Done()
			start := time.Now()
			result := c.Check(ctx)
			result.Duration = time.Since(start)

			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, c)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall != StatusUnhealthy {
				overall = StatusDegraded
			}
		}
	}

	resp := Response{
		Status:    overall,
		Timestamp: time.Now(),
		Version:   h.version,
		Uptime:    time.Since(h.startTime),
	}
	if !h.hideDetails {
		resp.Checks = results
	}
	return resp
}

// =============================================================================
// HTTP Handlers
// =============================================================================

// LivenessHandler always answers 200 while the process can serve.
func (h *Handler) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    StatusHealthy,
			"timestamp": time.Now(),
		})
	})
}

// ReadinessHandler answers 503 until SetReady(true), and while any check is
// unhealthy. Degraded still counts as ready.
func (h *Handler) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.IsReady() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":    StatusUnhealthy,
				"message":   "no snapshot loaded yet",
				"timestamp": time.Now(),
			})
			return
		}

		resp := h.Check(r.Context())
		code := http.StatusOK
		if resp.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// RegisterRoutes mounts /healthz (readiness) and /livez (liveness) on mux.
func RegisterRoutes(mux *http.ServeMux, h *Handler) {
	mux.Handle("GET /healthz", h.ReadinessHandler())
	mux.Handle("GET /livez", h.LivenessHandler())
}

// =============================================================================
// Built-in Checks
// =============================================================================

// SnapshotSource is anything that exposes the installed snapshot.
type SnapshotSource interface {
	Snapshot() *finding.Snapshot
}

// SnapshotCheck reports unhealthy with no snapshot installed and degraded
// while the sample dataset stands in for real data.
type SnapshotCheck struct {
	Source SnapshotSource
	// MaxAge marks the snapshot degraded when it is older. Zero disables it.
	MaxAge time.Duration
	Now    func() time.Time
}

func (c *SnapshotCheck) Check(ctx context.Context) CheckResult {
	if c.Source == nil {
		return CheckResult{Status: StatusUnknown, Message: "no snapshot source configured"}
	}
	snap := c.Source.Snapshot()
	if snap == nil {
		return CheckResult{Status: StatusUnhealthy, Error: "no snapshot loaded"}
	}

	result := CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d findings from %s", snap.Len(), snap.Source),
		Metadata: map[string]any{
			"id":         snap.ID.String(),
			"findings":   snap.Len(),
			"skipped":    snap.Skipped,
			"fetched_at": snap.FetchedAt,
		},
	}
	if snap.Sample {
		result.Status = StatusDegraded
		result.Message = "serving sample data"
		return result
	}

	if c.MaxAge > 0 {
		now := time.Now
		if c.Now != nil {
			now = c.Now
		}
		if age := now().Sub(snap.FetchedAt); age > c.MaxAge {
			result.Status = StatusDegraded
			result.Message = fmt.Sprintf("snapshot is %s old", age.Truncate(time.Second))
		}
	}
	return result
}

// probeKey is never written; reading it only proves the store answers.
const probeKey = "findingscope-health-probe"

// StoreCheck reads a probe key from the history store. A missing key is a
// healthy answer.
type StoreCheck struct {
	Store kv.Store
}

func (c *StoreCheck) Check(ctx context.Context) CheckResult {
	if c.Store == nil {
		return CheckResult{Status: StatusUnknown, Message: "history kept in memory"}
	}
	_, err := c.Store.Get(ctx, probeKey)
	if err != nil && !errors.IsNotFoundError(err) {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: "reachable"}
}

var (
	_ Checker = (*SnapshotCheck)(nil)
	_ Checker = (*StoreCheck)(nil)
	_ Checker = CheckFunc(nil)
)
