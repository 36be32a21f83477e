package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/exploopio/findingscope/pkg/aggregate"
	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/search"
	"github.com/exploopio/findingscope/pkg/severity"
	"github.com/exploopio/findingscope/pkg/suggest"
)

const (
	titleWidth    = 60
	resourceWidth = 48
	barWidth      = 30
)

var (
	criticalColor = color.New(color.FgRed, color.Bold)
	highColor     = color.New(color.FgRed)
	mediumColor   = color.New(color.FgYellow)
	lowColor      = color.New(color.FgCyan)
	unknownColor  = color.New(color.FgWhite)
	dimColor      = color.New(color.Faint)
	matchColor    = color.New(color.Bold, color.Underline)
)

func severityColor(lvl severity.Level) *color.Color {
	switch lvl.Kind() {
	case severity.KindCritical:
		return criticalColor
	case severity.KindHigh:
		return highColor
	case severity.KindMedium:
		return mediumColor
	case severity.KindLow:
		return lowColor
	default:
		return unknownColor
	}
}

// markSpans wraps each highlighted rune range of h.Value with mark.
func markSpans(h *search.Highlight, mark func(string) string) string {
	if h == nil {
		return ""
	}
	runes := []rune(h.Value)
	var b strings.Builder
	pos := 0
	for _, sp := range h.Spans {
		start, end := max(sp.Start, pos), min(sp.End, len(runes))
		if start >= end {
			continue
		}
		b.WriteString(string(runes[pos:start]))
		b.WriteString(mark(string(runes[start:end])))
		pos = end
	}
	b.WriteString(string(runes[pos:]))
	return b.String()
}

func markMatch(s string) string { return matchColor.Sprint(s) }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func resourceOf(f *finding.Finding) string {
	if !f.HasResource {
		return "-"
	}
	return truncate(f.Resource, resourceWidth)
}

func (a *app) printFindings(list []finding.Finding, total int) {
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No findings match the current filter.")
		return
	}
	w := a.table()
	fmt.Fprintln(w, "ID\tSEVERITY\tCREATED\tRESOURCE\tTITLE")
	for i := range list {
		f := &list[i]
		created := "-"
		if f.HasCreatedAt() {
			created = f.CreatedAt.Format("2006-01-02")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			f.ID,
			severityColor(f.Severity).Sprint(f.Severity.Label()),
			created,
			resourceOf(f),
			truncate(f.Title, titleWidth),
		)
	}
	_ = w.Flush()
	fmt.Fprintln(a.out, dimColor.Sprintf("%d of %d findings", len(list), total))
}

func (a *app) printStats(s aggregate.Stats, shares []aggregate.SeverityShare) {
	w := a.table()
	fmt.Fprintln(w, "SEVERITY\tCOUNT\tSHARE")
	pct := make(map[severity.Kind]float64, len(shares))
	for _, sh := range shares {
		pct[sh.Level.Kind()] = sh.Percentage
	}
	for _, lvl := range severity.Known() {
		fmt.Fprintf(w, "%s\t%d\t%.1f%%\n", severityColor(lvl).Sprint(lvl.Label()), s.Count(lvl), pct[lvl.Kind()])
	}
	fmt.Fprintf(w, "TOTAL\t%d\t\n", s.Total)
	_ = w.Flush()
}

func (a *app) printTimeline(buckets []aggregate.TimelineBucket) {
	if len(buckets) == 0 {
		fmt.Fprintln(a.out, "No dated findings.")
		return
	}
	w := a.table()
	fmt.Fprintln(w, "DATE\tCRITICAL\tHIGH\tMEDIUM\tLOW\tTOTAL")
	for _, b := range buckets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			b.DateLabel,
			criticalColor.Sprint(b.Critical),
			highColor.Sprint(b.High),
			mediumColor.Sprint(b.Medium),
			lowColor.Sprint(b.Low),
			b.Total,
		)
	}
	_ = w.Flush()
}

func (a *app) printResources(buckets []aggregate.ResourceBucket) {
	if len(buckets) == 0 {
		fmt.Fprintln(a.out, "No findings with a resource.")
		return
	}
	top := buckets[0].Count
	w := a.table()
	fmt.Fprintln(w, "SERVICE\tCOUNT\t")
	for _, b := range buckets {
		n := max(1, b.Count*barWidth/max(top, 1))
		fmt.Fprintf(w, "%s\t%d\t%s\n", b.Service, b.Count, strings.Repeat("█", n))
	}
	_ = w.Flush()
}

func (a *app) printResults(results []search.Result) {
	if len(results) == 0 {
		fmt.Fprintln(a.out, "No matches.")
		return
	}
	w := a.table()
	fmt.Fprintln(w, "SCORE\tID\tSEVERITY\tFIELD\tMATCH")
	for i := range results {
		r := &results[i]
		h := r.Highlight()
		field, match := "-", ""
		if h != nil {
			field = string(h.Field)
			match = markSpans(&search.Highlight{Field: h.Field, Value: truncate(h.Value, titleWidth), Spans: h.Spans}, markMatch)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			strconv.FormatFloat(r.Score, 'f', 3, 64),
			r.Finding.ID,
			severityColor(r.Finding.Severity).Sprint(r.Finding.Severity.Label()),
			field,
			match,
		)
	}
	_ = w.Flush()
}

func (a *app) printSuggestions(list []suggest.Suggestion) {
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No suggestions.")
		return
	}
	w := a.table()
	for _, s := range list {
		text := s.Text
		if h := s.Highlight; h != nil {
			if h.Field == search.FieldTitle {
				text = markSpans(h, markMatch)
			} else {
				text += dimColor.Sprintf("  (%s: %s)", h.Field, truncate(h.Value, resourceWidth))
			}
		}
		count := ""
		if s.HasCount {
			count = strconv.Itoa(s.Count)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", dimColor.Sprint(s.Kind), text, count)
	}
	_ = w.Flush()
}

func (a *app) printHistory(recent []string) {
	if len(recent) == 0 {
		fmt.Fprintln(a.out, "No recent searches.")
		return
	}
	for i, q := range recent {
		fmt.Fprintf(a.out, "%d. %s\n", i+1, q)
	}
}
