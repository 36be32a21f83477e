// Package search implements the typo-tolerant finding index behind the
// search box and the suggestion dropdown.
//
// A query is scored against each indexed field (title, description, severity
// and resource) by two measures, keeping the higher:
//
//   - approximate substring edit distance of the whole query against the
//     field, normalized by query length;
//   - in-order token matching, where each query token is compared to the
//     field's tokens by prefix-aware Levenshtein similarity.
//
// Results at or above the threshold are returned best first.
package search

import (
	"sort"
	"strings"
	"unicode"

	"github.com/exploopio/findingscope/pkg/finding"
)

// DefaultThreshold is the minimum similarity for a field to match.
const DefaultThreshold = 0.7

// Field names an indexed finding field.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldSeverity    Field = "severity"
	FieldResource    Field = "resource"
)

// Span is a half-open [Start, End) range of rune offsets into a field value.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Highlight marks the parts of a field value that matched a query.
type Highlight struct {
	Field Field  `json:"field"`
	Value string `json:"value"`
	Spans []Span `json:"spans"`
}

// Match is one field of a result at or above the threshold.
type Match struct {
	Highlight
	Score float64 `json:"score"`
}

// Result is one finding matching a query.
type Result struct {
	Finding finding.Finding `json:"finding"`
	// Index is the position of the finding in the slice given to Build.
	Index   int     `json:"index"`
	Score   float64 `json:"score"`
	Matches []Match `json:"matches"`
}

// Highlight returns the best matching field of the result.
func (r *Result) Highlight() *Highlight {
	if len(r.Matches) == 0 {
		return nil
	}
	h := r.Matches[0].Highlight
	return &h
}

type options struct {
	threshold float64
}

// Option configures Build.
type Option func(*options)

// WithThreshold sets the minimum field similarity, clamped to [0, 1].
func WithThreshold(t float64) Option {
	return func(o *options) {
		o.threshold = min(max(t, 0), 1)
	}
}

// Index is an immutable search index over one finding slice. It is safe for
// concurrent use.
type Index struct {
	threshold float64
	entries   []entry
}

type entry struct {
	finding finding.Finding
	fields  []field
}

type field struct {
	name   Field
	value  string
	lower  []rune
	tokens []token
}

type token struct {
	text       string
	start, end int
}

// Build indexes findings. Empty fields and absent resources are not indexed.
func Build(findings []finding.Finding, opts ...Option) *Index {
	o := options{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(&o)
	}

	idx := &Index{
		threshold: o.threshold,
		entries:   make([]entry, len(findings)),
	}
	for i := range findings {
		f := findings[i]
		e := entry{finding: f}
		e.add(FieldTitle, f.Title)
		e.add(FieldDescription, f.Description)
		e.add(FieldSeverity, f.Severity.Label())
		if f.HasResource {
			e.add(FieldResource, f.Resource)
		}
		idx.entries[i] = e
	}
	return idx
}

func (e *entry) add(name Field, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	lower := lowerRunes(value)
	e.fields = append(e.fields, field{
		name:   name,
		value:  value,
		lower:  lower,
		tokens: tokenize(lower),
	})
}

// Len returns the number of indexed findings.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Threshold returns the similarity threshold of the index.
func (idx *Index) Threshold() float64 {
	return idx.threshold
}

// Search returns the findings with at least one field scoring at or above
// the threshold, best first. Ties keep the order of the indexed slice. A
// blank query returns an empty list.
func (idx *Index) Search(query string) []Result {
	results := make([]Result, 0)
	if idx == nil || strings.TrimSpace(query) == "" {
		return results
	}

	q := newQuery(query, idx.threshold)
	for i := range idx.entries {
		e := &idx.entries[i]
		var matches []Match
		for j := range e.fields {
			m, ok := q.score(&e.fields[j])
			if ok && m.Score >= idx.threshold {
				matches = append(matches, m)
			}
		}
		if len(matches) == 0 {
			continue
		}
		sort.SliceStable(matches, func(a, b int) bool {
			return matches[a].Score > matches[b].Score
		})
		results = append(results, Result{
			Finding: e.finding,
			Index:   i,
			Score:   matches[0].Score,
			Matches: matches,
		})
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	return results
}

// lowerRunes lower-cases rune by rune so offsets into the result are offsets
// into the original value.
func lowerRunes(s string) []rune {
	rs := []rune(s)
	for i, r := range rs {
		rs[i] = unicode.ToLower(r)
	}
	return rs
}

func isTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func tokenize(rs []rune) []token {
	var tokens []token
	start := -1
	for i, r := range rs {
		switch {
		case isTokenRune(r) && start < 0:
			start = i
		case !isTokenRune(r) && start >= 0:
			tokens = append(tokens, token{text: string(rs[start:i]), start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{text: string(rs[start:]), start: start, end: len(rs)})
	}
	return tokens
}
