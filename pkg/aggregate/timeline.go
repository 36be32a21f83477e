package aggregate

import (
	"sort"
	"strconv"
	"time"

	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/severity"
)

// TimelineBucket counts the findings created on one calendar day.
type TimelineBucket struct {
	Date      time.Time `json:"date"`
	DateLabel string    `json:"date_label"`
	Critical  int       `json:"critical"`
	High      int       `json:"high"`
	Medium    int       `json:"medium"`
	Low       int       `json:"low"`
	Total     int       `json:"total"`
}

func (b *TimelineBucket) add(level severity.Level) {
	b.Total++
	switch level.Kind() {
	case severity.KindCritical:
		b.Critical++
	case severity.KindHigh:
		b.High++
	case severity.KindMedium:
		b.Medium++
	case severity.KindLow:
		b.Low++
	case severity.KindUnknown:
	}
}

// DateFormatter renders the label of a timeline day.
type DateFormatter interface {
	FormatDay(day time.Time) string
}

// ShortDate formats "<day> <abbreviated month>" with a fixed month table.
type ShortDate struct {
	Months [12]string
}

// FormatDay implements DateFormatter.
func (f ShortDate) FormatDay(day time.Time) string {
	return strconv.Itoa(day.Day()) + " " + f.Months[day.Month()-1]
}

var (
	// English renders "14 Oct".
	English = ShortDate{Months: [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}}

	// Turkish renders "14 Eki".
	Turkish = ShortDate{Months: [12]string{"Oca", "Şub", "Mar", "Nis", "May", "Haz", "Tem", "Ağu", "Eyl", "Eki", "Kas", "Ara"}}
)

// Formatter returns the formatter for a locale tag ("en", "tr", with or
// without region). ok is false for unsupported locales.
func Formatter(locale string) (f DateFormatter, ok bool) {
	if len(locale) >= 2 {
		switch locale[:2] {
		case "en":
			return English, true
		case "tr":
			return Turkish, true
		}
	}
	return English, false
}

type timelineOptions struct {
	loc       *time.Location
	formatter DateFormatter
	days      int
}

// TimelineOption configures ComputeTimeline.
type TimelineOption func(*timelineOptions)

// InLocation groups days in loc instead of UTC.
func InLocation(loc *time.Location) TimelineOption {
	return func(o *timelineOptions) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithFormatter sets the day label formatter.
func WithFormatter(f DateFormatter) TimelineOption {
	return func(o *timelineOptions) {
		if f != nil {
			o.formatter = f
		}
	}
}

// ComputeTimeline groups findings by creation day, ascending by date, keeping
// only the TimelineDays most recent days present. Findings without a creation
// time are skipped. The output does not depend on input order.
func ComputeTimeline(findings []finding.Finding, opts ...TimelineOption) []TimelineBucket {
	o := timelineOptions{loc: time.UTC, formatter: English, days: TimelineDays}
	for _, opt := range opts {
		opt(&o)
	}

	buckets := make([]TimelineBucket, 0)
	index := make(map[time.Time]int)

	for i := range findings {
		f := &findings[i]
		if !f.HasCreatedAt() {
			continue
		}
		t := f.CreatedAt.In(o.loc)
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, o.loc)

		pos, seen := index[day]
		if !seen {
			pos = len(buckets)
			index[day] = pos
			buckets = append(buckets, TimelineBucket{Date: day, DateLabel: o.formatter.FormatDay(day)})
		}
		buckets[pos].add(f.Severity)
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Date.Before(buckets[j].Date)
	})
	if len(buckets) > o.days {
		buckets = buckets[len(buckets)-o.days:]
	}
	return buckets
}
