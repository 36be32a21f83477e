package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/exploopio/findingscope/pkg/compress"
	"github.com/exploopio/findingscope/pkg/errors"
	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/logger"
)

// maxErrorBody caps how much of an error response is kept in APIError.
const maxErrorBody = 512

// HTTPFetcher GETs findings from a single endpoint.
type HTTPFetcher struct {
	url        string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	headers    map[string]string
	logger     logger.Logger
}

// HTTPOption configures an HTTPFetcher.
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// WithTimeout sets the per-fetch timeout (default 10s).
func WithTimeout(d time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithRetry retries server and network failures up to maxRetries times with
// exponential backoff starting at delay. The timeout covers all attempts.
func WithRetry(maxRetries int, delay time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxRetries = max(maxRetries, 0)
		f.retryDelay = delay
	}
}

// WithHeader adds a request header.
func WithHeader(key, value string) HTTPOption {
	return func(f *HTTPFetcher) {
		f.headers[key] = value
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) HTTPOption {
	return func(f *HTTPFetcher) {
		f.logger = logger.OrNop(l)
	}
}

// NewHTTPFetcher creates a fetcher for url.
func NewHTTPFetcher(url string, opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		url:        url,
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		retryDelay: 500 * time.Millisecond,
		headers:    make(map[string]string),
		logger:     &logger.NopLogger{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Source returns the endpoint URL.
func (f *HTTPFetcher) Source() string {
	return f.url
}

// Fetch performs the GET within the fetch timeout. Errors carry a fetch
// failure kind: timeout, not found (404), server (5xx), network, or unknown.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*finding.DecodeResult, error) {
	const op = "fetch.HTTPFetcher.Fetch"

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := f.retryDelay * time.Duration(1<<(attempt-1))
			f.logger.Debug("retrying %s (attempt %d/%d) after %v", f.url, attempt, f.maxRetries, backoff)

			select {
			case <-ctx.Done():
				return nil, f.classify(op, ctx.Err())
			case <-time.After(backoff):
			}
		}

		body, err := f.fetchOnce(ctx)
		if err == nil {
			result, err := finding.Decode(body)
			if err != nil {
				return nil, errors.E(errors.KindUnknown, op, "malformed payload", err)
			}
			f.logger.Debug("fetched %d records from %s (%d skipped)", len(result.Records), f.url, result.Skipped)
			return result, nil
		}

		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, f.classify(op, lastErr)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, errors.E(errors.KindInvalidInput, "fetch.HTTPFetcher", "create request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "zstd, gzip")
	req.Header.Set("User-Agent", "findingscope/1.0")
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, compress.MaxDecodedSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := string(data)
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &errors.APIError{StatusCode: resp.StatusCode, Body: body, URL: f.url}
	}

	decoded, err := compress.DecodeBody(resp.Header.Get("Content-Encoding"), data)
	if err != nil {
		return nil, errors.E(errors.KindUnknown, "fetch.HTTPFetcher", "decode body", err)
	}
	return decoded, nil
}

func (f *HTTPFetcher) classify(op string, err error) error {
	kind := errors.FetchFailure(err)
	return errors.E(kind, op, errors.Describe(kind), err)
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	switch errors.FetchFailure(err) {
	case errors.KindServer, errors.KindNetwork:
		return true
	default:
		return false
	}
}
