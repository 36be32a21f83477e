// Package suggest builds the ordered suggestion list shown under the search
// box, keeps the recent-search history and tracks keyboard selection.
package suggest

import (
	"strings"

	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/search"
	"github.com/exploopio/findingscope/pkg/severity"
)

const (
	// MaxRecent is the number of recent queries offered for an empty query.
	MaxRecent = 3

	// MaxFindings is the number of finding suggestions for a query.
	MaxFindings = 5
)

// Kind classifies a suggestion.
type Kind string

const (
	KindFinding  Kind = "finding"
	KindCategory Kind = "category"
	KindRecent   Kind = "recent"
)

// Suggestion is one entry of the dropdown.
type Suggestion struct {
	Kind      Kind              `json:"kind"`
	Text      string            `json:"text"`
	Count     int               `json:"count,omitempty"`
	HasCount  bool              `json:"has_count,omitempty"`
	Finding   *finding.Finding  `json:"finding,omitempty"`
	Highlight *search.Highlight `json:"highlight,omitempty"`
}

// facet is a filter shortcut with a live count.
type facet struct {
	label string
	count func(f *finding.Finding) bool
}

func severityFacet(lvl severity.Level) facet {
	return facet{
		label: lvl.Label(),
		count: func(f *finding.Finding) bool { return f.Severity.Kind() == lvl.Kind() },
	}
}

func serviceFacet(label string) facet {
	needle := strings.ToLower(label)
	return facet{
		label: label,
		count: func(f *finding.Finding) bool {
			return f.HasResource && strings.Contains(strings.ToLower(f.Resource), needle)
		},
	}
}

var (
	// defaultFacets are offered for an empty query.
	defaultFacets = []facet{
		severityFacet(severity.Critical),
		severityFacet(severity.High),
		severityFacet(severity.Medium),
		severityFacet(severity.Low),
		serviceFacet("S3"),
		serviceFacet("IAM"),
	}

	// vocabulary is matched against a non-empty query.
	vocabulary = append(defaultFacets[:len(defaultFacets):len(defaultFacets)],
		serviceFacet("EC2"),
		serviceFacet("RDS"),
		serviceFacet("CloudTrail"),
	)
)

func (fc facet) live(findings []finding.Finding) int {
	n := 0
	for i := range findings {
		if fc.count(&findings[i]) {
			n++
		}
	}
	return n
}

func (fc facet) suggestion(n int) Suggestion {
	return Suggestion{Kind: KindCategory, Text: fc.label, Count: n, HasCount: true}
}

// Suggest returns the suggestions for query over the full finding set.
//
// A blank query yields up to MaxRecent recent queries (most recent first)
// followed by the default facets with a non-zero count. Otherwise it yields
// the top MaxFindings index matches followed by the vocabulary facets whose
// label contains the query case-insensitively and whose count is non-zero.
func Suggest(query string, findings []finding.Finding, idx *search.Index, recent []string) []Suggestion {
	q := strings.TrimSpace(query)
	out := make([]Suggestion, 0)

	if q == "" {
		seen := make(map[string]struct{}, MaxRecent)
		for _, r := range recent {
			if len(seen) == MaxRecent {
				break
			}
			r = strings.TrimSpace(r)
			if r == "" {
				continue
			}
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, Suggestion{Kind: KindRecent, Text: r})
		}
		for _, fc := range defaultFacets {
			if n := fc.live(findings); n > 0 {
				out = append(out, fc.suggestion(n))
			}
		}
		return out
	}

	results := idx.Search(q)
	if len(results) > MaxFindings {
		results = results[:MaxFindings]
	}
	for i := range results {
		f := results[i].Finding
		out = append(out, Suggestion{
			Kind:      KindFinding,
			Text:      f.Title,
			Finding:   &f,
			Highlight: results[i].Highlight(),
		})
	}

	lower := strings.ToLower(q)
	for _, fc := range vocabulary {
		if !strings.Contains(strings.ToLower(fc.label), lower) {
			continue
		}
		if n := fc.live(findings); n > 0 {
			out = append(out, fc.suggestion(n))
		}
	}
	return out
}

// Resolve returns the query text a suggestion stands for.
func Resolve(s Suggestion) string {
	if s.Kind == KindFinding && s.Finding != nil {
		return s.Finding.Title
	}
	return s.Text
}
