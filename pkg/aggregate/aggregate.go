// Package aggregate turns a finding sequence into chart-ready summaries:
// per-severity counts, recent-day timeline buckets and the top resource
// services. All functions are pure and total over any input.
package aggregate

import (
	"math"
	"sort"

	"github.com/exploopio/findingscope/pkg/finding"
	"github.com/exploopio/findingscope/pkg/severity"
)

const (
	// TimelineDays is the number of most recent distinct days kept.
	TimelineDays = 7

	// TopServices is the number of resource services kept.
	TopServices = 6

	// UnknownService labels resources without a second segment.
	UnknownService = "Unknown"
)

// Stats is an exact per-severity tally. Findings with an unknown severity
// only count toward Total.
type Stats struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// Add counts one finding of the given level.
func (s *Stats) Add(level severity.Level) {
	s.Total++
	switch level.Kind() {
	case severity.KindCritical:
		s.Critical++
	case severity.KindHigh:
		s.High++
	case severity.KindMedium:
		s.Medium++
	case severity.KindLow:
		s.Low++
	case severity.KindUnknown:
	}
}

// Count returns the tally of a known level (0 for unknown levels).
func (s Stats) Count(level severity.Level) int {
	switch level.Kind() {
	case severity.KindCritical:
		return s.Critical
	case severity.KindHigh:
		return s.High
	case severity.KindMedium:
		return s.Medium
	case severity.KindLow:
		return s.Low
	default:
		return 0
	}
}

// ComputeStats tallies findings by severity.
func ComputeStats(findings []finding.Finding) Stats {
	var s Stats
	for i := range findings {
		s.Add(findings[i].Severity)
	}
	return s
}

// SeverityShare is one slice of the severity distribution chart.
type SeverityShare struct {
	Level      severity.Level `json:"level"`
	Count      int            `json:"count"`
	Percentage float64        `json:"percentage"`
}

// SeverityShares returns the known levels with a non-zero count and their
// share of the total, rounded to one decimal.
func SeverityShares(s Stats) []SeverityShare {
	denom := float64(max(s.Total, 1))
	shares := make([]SeverityShare, 0, 4)
	for _, lvl := range severity.Known() {
		n := s.Count(lvl)
		if n == 0 {
			continue
		}
		shares = append(shares, SeverityShare{
			Level:      lvl,
			Count:      n,
			Percentage: math.Round(float64(n)/denom*1000) / 10,
		})
	}
	return shares
}

// ResourceBucket counts findings per resource service.
type ResourceBucket struct {
	Service string `json:"service"`
	Count   int    `json:"count"`
}

// ComputeResourceDistribution counts findings per service (the second
// colon-delimited resource segment), sorted by count descending with ties in
// first-seen order, truncated to TopServices. Findings without a resource are
// skipped; resources lacking a service segment all share the UnknownService
// bucket.
func ComputeResourceDistribution(findings []finding.Finding) []ResourceBucket {
	buckets := make([]ResourceBucket, 0)
	index := make(map[string]int)

	for i := range findings {
		f := &findings[i]
		if !f.HasResource {
			continue
		}
		service, ok := f.Service()
		if !ok {
			service = UnknownService
		}
		pos, seen := index[service]
		if !seen {
			pos = len(buckets)
			index[service] = pos
			buckets = append(buckets, ResourceBucket{Service: service})
		}
		buckets[pos].Count++
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].Count > buckets[j].Count
	})
	if len(buckets) > TopServices {
		buckets = buckets[:TopServices]
	}
	return buckets
}
