package finding

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/exploopio/findingscope/pkg/severity"
)

// Record is one inbound finding as sent by the source, keyed by wire field.
type Record map[string]json.RawMessage

// DecodeResult is the outcome of decoding a findings payload.
type DecodeResult struct {
	Records []Record
	Skipped int // elements that were not JSON objects
}

// Decode parses a findings payload. Both the {"findings": [...]} envelope and
// a bare array are accepted. Elements that are not objects are counted in
// Skipped instead of failing the batch; only a payload that is not a JSON
// array/envelope at all is an error.
func Decode(data []byte) (*DecodeResult, error) {
	data = bytes.TrimSpace(data)

	var elems []json.RawMessage
	switch {
	case len(data) > 0 && data[0] == '[':
		if err := json.Unmarshal(data, &elems); err != nil {
			return nil, fmt.Errorf("decode findings array: %w", err)
		}
	default:
		var envelope struct {
			Findings []json.RawMessage `json:"findings"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("decode findings envelope: %w", err)
		}
		elems = envelope.Findings
	}

	result := &DecodeResult{Records: make([]Record, 0, len(elems))}
	for _, elem := range elems {
		var rec Record
		if err := json.Unmarshal(elem, &rec); err != nil || rec == nil {
			result.Skipped++
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}

// Ingest converts records into findings. Missing IDs (and IDs already used
// earlier in the same batch) are synthesized as finding-<index>-<unixMillis>
// from the snapshot time, so they stay stable for the snapshot's lifetime.
func Ingest(records []Record, snapshotAt time.Time) []Finding {
	findings := make([]Finding, 0, len(records))
	seen := make(map[string]bool, len(records))

	for i, rec := range records {
		f := Finding{
			ID:          rec.text("id"),
			Title:       rec.text("title"),
			Description: rec.text("description"),
			Severity:    rec.severity("severity"),
			LLMAnalysis: rec.analysis("llm_output", "llmAnalysis"),
		}
		f.Resource, f.HasResource = rec.str("resource")
		f.CreatedAt = rec.timestamp("created_at", "createdAt")
		f.UpdatedAt = rec.timestamp("updated_at", "updatedAt")

		if f.ID == "" || seen[f.ID] {
			f.ID = SyntheticID(i, snapshotAt)
		}
		seen[f.ID] = true
		findings = append(findings, f)
	}
	return findings
}

// SyntheticID returns the identifier given to a record without one.
func SyntheticID(index int, snapshotAt time.Time) string {
	return "finding-" + strconv.Itoa(index) + "-" + strconv.FormatInt(snapshotAt.UnixMilli(), 10)
}

// str returns the field when it is a JSON string.
func (r Record) str(keys ...string) (string, bool) {
	for _, key := range keys {
		raw, ok := r[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && !isNull(raw) {
			return s, true
		}
	}
	return "", false
}

// text returns the field as text. Numbers are kept in their literal form;
// other payloads yield "".
func (r Record) text(keys ...string) string {
	if s, ok := r.str(keys...); ok {
		return s
	}
	for _, key := range keys {
		raw, ok := r[key]
		if !ok {
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}

func (r Record) severity(key string) severity.Level {
	raw, ok := r[key]
	if !ok {
		return severity.Unknown("")
	}
	var lvl severity.Level
	_ = lvl.UnmarshalJSON(raw) // never fails
	return lvl
}

func (r Record) analysis(keys ...string) *LLMAnalysis {
	for _, key := range keys {
		raw, ok := r[key]
		if !ok || isNull(raw) {
			continue
		}
		var a LLMAnalysis
		if err := json.Unmarshal(raw, &a); err == nil {
			return &a
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return &LLMAnalysis{Raw: s}
		}
	}
	return nil
}

func (r Record) timestamp(keys ...string) time.Time {
	s, ok := r.str(keys...)
	if !ok {
		return time.Time{}
	}
	t, _ := ParseTimestamp(s)
	return t
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. Values without a zone are
// read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
