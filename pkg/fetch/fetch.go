// Package fetch retrieves raw finding payloads from an HTTP endpoint or a
// local file. Fetchers only transport and decode; classification of failures
// follows errors.FetchFailure.
package fetch

import (
	"context"
	"time"

	"github.com/exploopio/findingscope/pkg/finding"
)

// DefaultTimeout bounds a single fetch.
const DefaultTimeout = 10 * time.Second

// Fetcher retrieves one findings payload.
type Fetcher interface {
	// Fetch returns the decoded records. Elements that are not objects are
	// reported in Skipped rather than failing the fetch.
	Fetch(ctx context.Context) (*finding.DecodeResult, error)

	// Source names where findings come from (URL or file path).
	Source() string
}

// Func adapts a function to Fetcher.
type Func struct {
	Name string
	Fn   func(ctx context.Context) (*finding.DecodeResult, error)
}

func (f Func) Fetch(ctx context.Context) (*finding.DecodeResult, error) { return f.Fn(ctx) }
func (f Func) Source() string                                           { return f.Name }
