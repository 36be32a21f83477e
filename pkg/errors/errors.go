// Package errors provides the error types shared by findingscope packages.
// Fetch failures are folded onto a small taxonomy (timeout, not found,
// server, network, unknown) that the explorer reacts to.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
)

// =============================================================================
// Base Error Types
// =============================================================================

// Error is the base error type for findingscope errors.
type Error struct {
	// Kind indicates the category of error
	Kind Kind

	// Op is the operation being performed (e.g., "fetch.HTTPFetcher.Fetch")
	Op string

	// Message is a human-readable description
	Message string

	// Err is the underlying error
	Err error
}

// Kind represents the kind/category of error.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindInvalidInput
	KindNotFound
	KindRateLimit
	KindTimeout
	KindNetwork
	KindServer
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid_input"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			if e.Message != "" {
				return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
			}
			return fmt.Sprintf("%s: %v", e.Op, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// =============================================================================
// API Error
// =============================================================================

// APIError is a non-2xx response from the findings endpoint.
type APIError struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body,omitempty"`
	URL        string `json:"url,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	}
	return fmt.Sprintf("http %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// =============================================================================
// Constructors
// =============================================================================

// E constructs an Error from the given arguments.
// Arguments can be: Kind, string (Op or Message), error.
func E(args ...interface{}) error {
	e := &Error{}
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if e.Op == "" {
				e.Op = a
			} else {
				e.Message = a
			}
		case error:
			e.Err = a
		}
	}
	return e
}

// New creates a new simple error.
func New(message string) error {
	return &Error{Message: message}
}

// Wrap wraps an error with additional context.
func Wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: GetKind(err), Err: err}
}

// =============================================================================
// Error Checkers
// =============================================================================

// GetKind returns the Kind of the error, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsAPIError checks if err is an APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNotFoundError checks if the error is a not found error.
func IsNotFoundError(err error) bool {
	return FetchFailure(err) == KindNotFound
}

// IsTimeoutError checks if the error is a timeout error.
func IsTimeoutError(err error) bool {
	return FetchFailure(err) == KindTimeout
}

// IsRateLimitError checks if the error is a rate limit error.
func IsRateLimitError(err error) bool {
	if GetKind(err) == KindRateLimit {
		return true
	}
	if apiErr, ok := IsAPIError(err); ok {
		return apiErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// =============================================================================
// Fetch Failure Taxonomy
// =============================================================================

// FetchFailure folds any fetch error onto one of KindTimeout, KindNotFound,
// KindServer, KindNetwork or KindUnknown. A nil error yields KindUnknown.
func FetchFailure(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	switch GetKind(err) {
	case KindTimeout, KindNotFound, KindServer, KindNetwork:
		return GetKind(err)
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	if apiErr, ok := IsAPIError(err); ok {
		switch {
		case apiErr.StatusCode == http.StatusNotFound:
			return KindNotFound
		case apiErr.StatusCode >= 500:
			return KindServer
		default:
			return KindUnknown
		}
	}

	if errors.Is(err, os.ErrNotExist) {
		return KindNotFound
	}

	var opErr *net.OpError
	var dnsErr *net.DNSError
	var urlErr *url.Error
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) || errors.As(err, &urlErr) {
		return KindNetwork
	}

	return KindUnknown
}

// Describe returns the operator-facing message for a fetch failure kind.
func Describe(kind Kind) string {
	switch kind {
	case KindTimeout:
		return "The connection timed out. The server may not be responding."
	case KindNotFound:
		return "The findings endpoint was not found. Check the configured source URL."
	case KindServer:
		return "The server returned an error. Please try again later."
	case KindNetwork:
		return "Network error. Make sure the findings server is running."
	default:
		return "An unexpected error occurred while loading findings."
	}
}

// =============================================================================
// Common Errors
// =============================================================================

var (
	// ErrTimeout is returned when an operation times out.
	ErrTimeout = &Error{Kind: KindTimeout, Message: "operation timed out"}

	// ErrRateLimited is returned when a refresh is throttled.
	ErrRateLimited = &Error{Kind: KindRateLimit, Message: "rate limited"}

	// ErrInvalidConfig is returned for invalid configuration.
	ErrInvalidConfig = &Error{Kind: KindInvalidInput, Message: "invalid configuration"}

	// ErrNoSource is returned when no findings source is configured.
	ErrNoSource = &Error{Kind: KindInvalidInput, Message: "no findings source configured"}

	// ErrKeyNotFound is returned by key-value stores for a missing key.
	ErrKeyNotFound = &Error{Kind: KindNotFound, Message: "key not found"}
)
