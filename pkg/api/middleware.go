package api

import (
	"encoding/json"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/exploopio/findingscope/pkg/compress"
	"github.com/exploopio/findingscope/pkg/metrics"
)

// RequestIDHeader carries the request ID. An incoming value is kept.
const RequestIDHeader = "X-Request-ID"

// APIError is the body of every error response.
type APIError struct {
	ErrorMessage string `json:"error"`
	Code         string `json:"code,omitempty"`
	StatusCode   int    `json:"status_code"`
	Timestamp    int64  `json:"timestamp"`
}

func (e *APIError) Error() string {
	return e.ErrorMessage
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.ResponseWriter.WriteHeader(code)
		rw.written = true
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// recoverer assigns request IDs and turns handler panics into 500s.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic in %s %s (request %s): %v\n%s", r.Method, r.URL.Path, id, err, debug.Stack())
				if !rw.written {
					s.writeError(rw, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
				}
			}
		}()

		next.ServeHTTP(rw, r)
	})
}

// instrument records request metrics for one route and logs failures.
func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw, ok := w.(*responseWriter)
		if !ok {
			rw = &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		}

		start := time.Now()
		timer := metrics.NewTimer(s.metrics, metrics.HTTPRequestDuration.Name, "route", route)
		defer func() {
			// A panicking handler is answered by recoverer with a 500.
			rec := recover()
			code := rw.statusCode
			if rec != nil && !rw.written {
				code = http.StatusInternalServerError
			}

			timer.ObserveDuration()
			status := strconv.Itoa(code)
			s.metrics.CounterInc(metrics.HTTPRequestsTotal.Name, "route", route, "method", r.Method, "status", status)

			if code >= 400 {
				s.logger.Warn("%s %s -> %d (%s, request %s)", r.Method, r.URL.Path, code, time.Since(start), w.Header().Get(RequestIDHeader))
			} else {
				s.logger.Debug("%s %s -> %d (%s)", r.Method, r.URL.Path, code, time.Since(start))
			}

			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(rw, r)
	})
}

// writeJSON encodes v and compresses it when the client accepts zstd or gzip
// and the body is large enough to benefit.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encode response for %s: %v", r.URL.Path, err)
		s.writeError(w, http.StatusInternalServerError, "internal_error", "response could not be encoded")
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Add("Vary", "Accept-Encoding")

	if len(body) >= compress.MinCompressSize {
		c := compress.For(compress.Negotiate(r.Header.Get("Accept-Encoding")))
		if enc := c.ContentEncoding(); enc != "" {
			packed, err := c.Compress(body)
			if err == nil {
				body = packed
				h.Set("Content-Encoding", enc)
			} else {
				s.logger.Warn("compress response for %s: %v", r.URL.Path, err)
			}
		}
	}

	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func (s *Server) writeError(w http.ResponseWriter, code int, errCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	resp := APIError{
		ErrorMessage: message,
		Code:         errCode,
		StatusCode:   code,
		Timestamp:    time.Now().Unix(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encode error response: %v", err)
	}
}
