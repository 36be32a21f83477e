// Package finding holds the finding record, its tolerant ingestion from the
// wire format and the snapshot store that every derived view reads from.
package finding

import (
	"strings"
	"time"

	"github.com/exploopio/findingscope/pkg/severity"
)

// Finding is one security observation.
type Finding struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    severity.Level `json:"severity"`

	// Resource is only meaningful when HasResource is set. Sources that send
	// a missing, null or non-string resource ingest as HasResource=false.
	Resource    string `json:"resource,omitempty"`
	HasResource bool   `json:"-"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`

	LLMAnalysis *LLMAnalysis `json:"llm_output,omitempty"`
}

// LLMAnalysis is an opaque free-text annotation produced by a model.
type LLMAnalysis struct {
	Raw         string `json:"raw"`
	Interpreted bool   `json:"interpreted,omitempty"`
}

// HasCreatedAt reports whether the finding carries a creation timestamp.
func (f *Finding) HasCreatedAt() bool {
	return !f.CreatedAt.IsZero()
}

// ResourceSegments splits the resource on ':'. It returns nil when the
// finding has no resource.
func (f *Finding) ResourceSegments() []string {
	if !f.HasResource {
		return nil
	}
	return strings.Split(f.Resource, ":")
}

// Service returns the second colon-delimited resource segment, e.g. "s3" for
// "aws:s3:bucket:name". ok is false when there is no resource or no second
// segment.
func (f *Finding) Service() (service string, ok bool) {
	segs := f.ResourceSegments()
	if len(segs) < 2 || segs[1] == "" {
		return "", false
	}
	return segs[1], true
}
