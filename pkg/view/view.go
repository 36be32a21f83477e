// Package view derives the filtered finding sequence from a snapshot and the
// current filter state. Matching is literal (case-insensitive substring) so
// that applied filters stay explainable; typo tolerance lives in pkg/search.
package view

import (
	"strings"

	"github.com/exploopio/findingscope/pkg/finding"
)

// All is the severity sentinel that disables the severity facet. It is
// compared before any label equality and never matches as a label.
const All = "ALL"

// FilterState is the severity facet plus the free-text query.
type FilterState struct {
	Severity string `json:"severity"`
	Query    string `json:"query"`
}

// DefaultState returns the unfiltered state.
func DefaultState() FilterState {
	return FilterState{Severity: All}
}

// Patch is a partial filter update; nil fields are left unchanged.
type Patch struct {
	Severity *string `json:"severity,omitempty"`
	Query    *string `json:"query,omitempty"`
}

// Apply returns a copy of s with the patch applied. An empty severity resets
// the facet to All.
func (s FilterState) Apply(p Patch) FilterState {
	next := s
	if p.Severity != nil {
		next.Severity = *p.Severity
	}
	if p.Query != nil {
		next.Query = *p.Query
	}
	if next.Severity == "" {
		next.Severity = All
	}
	return next
}

// Active reports whether the state filters anything.
func (s FilterState) Active() bool {
	return !s.allSeverities() || s.Query != ""
}

func (s FilterState) allSeverities() bool {
	return s.Severity == All || s.Severity == ""
}

// Matches reports whether f passes both the severity facet and the query.
func (s FilterState) Matches(f *finding.Finding) bool {
	return s.matches(f, strings.ToLower(s.Query))
}

func (s FilterState) matches(f *finding.Finding, lowerQuery string) bool {
	if !s.allSeverities() && f.Severity.Label() != s.Severity {
		return false
	}
	return MatchesQuery(f, lowerQuery)
}

// MatchesQuery reports whether the lower-cased query is a substring of the
// title, description, resource (when present) or severity label.
func MatchesQuery(f *finding.Finding, lowerQuery string) bool {
	if lowerQuery == "" {
		return true
	}
	if strings.Contains(strings.ToLower(f.Title), lowerQuery) ||
		strings.Contains(strings.ToLower(f.Description), lowerQuery) {
		return true
	}
	if f.HasResource && strings.Contains(strings.ToLower(f.Resource), lowerQuery) {
		return true
	}
	return strings.Contains(strings.ToLower(f.Severity.Label()), lowerQuery)
}

// Derive returns the findings passing state, in their original order. The
// result is always a fresh slice.
func Derive(findings []finding.Finding, state FilterState) []finding.Finding {
	out := make([]finding.Finding, 0, len(findings))
	lowerQuery := strings.ToLower(state.Query)
	for i := range findings {
		if state.matches(&findings[i], lowerQuery) {
			out = append(out, findings[i])
		}
	}
	return out
}

// Facets returns All followed by the distinct non-empty severity labels of findings in
// first-seen order.
func Facets(findings []finding.Finding) []string {
	facets := []string{All}
	seen := map[string]bool{All: true}
	for i := range findings {
		label := findings[i].Severity.Label()
		if label == "" || seen[label] {
			continue
		}
		seen[label] = true
		facets = append(facets, label)
	}
	return facets
}
