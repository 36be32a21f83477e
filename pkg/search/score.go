package search

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

type query struct {
	runes     []rune
	tokens    []token
	threshold float64
}

func newQuery(s string, threshold float64) *query {
	rs := lowerRunes(strings.TrimSpace(s))
	return &query{runes: rs, tokens: tokenize(rs), threshold: threshold}
}

// score returns the field similarity with the spans of whichever measure won.
func (q *query) score(f *field) (Match, bool) {
	charScore, charSpan, ok := q.substring(f.lower)
	tokScore, tokSpans := q.tokenScore(f.tokens)
	if !ok && len(tokSpans) == 0 {
		return Match{}, false
	}

	m := Match{Highlight: Highlight{Field: f.name, Value: f.value}}
	if ok && charScore >= tokScore {
		m.Score = charScore
		m.Spans = []Span{charSpan}
	} else {
		m.Score = tokScore
		m.Spans = tokSpans
	}
	return m, true
}

// substring computes Sellers' semi-global edit distance of the query against
// any substring of text and returns 1 - d/len(q) with the span of the best
// substring. The earliest end position wins ties.
func (q *query) substring(text []rune) (float64, Span, bool) {
	m, n := len(q.runes), len(text)
	if m == 0 || n == 0 {
		return 0, Span{}, false
	}

	prev := make([]int, n+1)
	cur := make([]int, n+1)
	prevStart := make([]int, n+1)
	curStart := make([]int, n+1)
	for j := 0; j <= n; j++ {
		prevStart[j] = j
	}

	for i := 1; i <= m; i++ {
		cur[0], curStart[0] = i, 0
		for j := 1; j <= n; j++ {
			cost := 1
			if q.runes[i-1] == text[j-1] {
				cost = 0
			}
			best, start := prev[j-1]+cost, prevStart[j-1]
			if d := prev[j] + 1; d < best {
				best, start = d, prevStart[j]
			}
			if d := cur[j-1] + 1; d < best {
				best, start = d, curStart[j-1]
			}
			cur[j], curStart[j] = best, start
		}
		prev, cur = cur, prev
		prevStart, curStart = curStart, prevStart
	}

	bestEnd := 1
	for j := 2; j <= n; j++ {
		if prev[j] < prev[bestEnd] {
			bestEnd = j
		}
	}
	d := prev[bestEnd]
	span := Span{Start: prevStart[bestEnd], End: bestEnd}
	if d >= m || span.Start >= span.End {
		return 0, Span{}, false
	}

	// Trim unmatched edges so highlights cover matching runes only.
	for span.Start < span.End && !containsRune(q.runes, text[span.Start]) {
		span.Start++
	}
	for span.End > span.Start && !containsRune(q.runes, text[span.End-1]) {
		span.End--
	}
	if span.Start >= span.End {
		return 0, Span{}, false
	}
	return 1 - float64(d)/float64(m), span, true
}

func containsRune(rs []rune, r rune) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

// tokenScore greedily matches query tokens against field tokens in order.
// The score is the mean similarity of the matched tokens scaled by the
// fraction of query tokens matched.
func (q *query) tokenScore(fieldTokens []token) (float64, []Span) {
	if len(q.tokens) == 0 || len(fieldTokens) == 0 {
		return 0, nil
	}

	var (
		sum   float64
		spans []Span
		pos   int
	)
	for _, qt := range q.tokens {
		bestSim, bestAt := 0.0, -1
		for j := pos; j < len(fieldTokens); j++ {
			if s := tokenSimilarity(qt.text, fieldTokens[j].text); s > bestSim {
				bestSim, bestAt = s, j
			}
		}
		if bestAt < 0 || bestSim < q.threshold {
			continue
		}
		sum += bestSim
		spans = append(spans, Span{Start: fieldTokens[bestAt].start, End: fieldTokens[bestAt].end})
		pos = bestAt + 1
	}
	if len(spans) == 0 {
		return 0, nil
	}

	matched := float64(len(spans))
	return (sum / matched) * (matched / float64(len(q.tokens))), spans
}

// tokenSimilarity is the normalized Levenshtein similarity of a query token
// against a field token, also trying the field token's prefix of the same
// length so partially typed words match.
func tokenSimilarity(q, t string) float64 {
	ql, tl := utf8.RuneCountInString(q), utf8.RuneCountInString(t)
	if ql == 0 || tl == 0 {
		return 0
	}
	sim := 1 - float64(levenshtein.ComputeDistance(q, t))/float64(max(ql, tl))
	if tl > ql {
		prefix := string([]rune(t)[:ql])
		if p := 1 - float64(levenshtein.ComputeDistance(q, prefix))/float64(ql); p > sim {
			sim = p
		}
	}
	return max(sim, 0)
}
