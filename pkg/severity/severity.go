// Package severity defines the closed set of severity levels carried by a
// finding. Labels outside the known set are kept verbatim as Unknown levels
// so newer producers never get rejected.
package severity

import (
	"encoding/json"
	"strings"
)

// Kind is the tag of a Level.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindLow
	KindMedium
	KindHigh
	KindCritical
)

// String returns the canonical upper-case label of the kind.
func (k Kind) String() string {
	switch k {
	case KindCritical:
		return "CRITICAL"
	case KindHigh:
		return "HIGH"
	case KindMedium:
		return "MEDIUM"
	case KindLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// Level is a severity value. Known levels carry only their kind; Unknown
// levels also carry the label they were ingested with.
type Level struct {
	kind  Kind
	label string
}

var (
	// Critical - immediate action required.
	Critical = Level{kind: KindCritical}

	// High - serious issue that should be addressed urgently.
	High = Level{kind: KindHigh}

	// Medium - moderate risk.
	Medium = Level{kind: KindMedium}

	// Low - minor issue.
	Low = Level{kind: KindLow}
)

// Known returns the known levels in facet order (highest first).
func Known() []Level {
	return []Level{Critical, High, Medium, Low}
}

// Unknown wraps an unrecognized label.
func Unknown(label string) Level {
	return Level{kind: KindUnknown, label: label}
}

// Parse maps a label onto a Level. Matching of the known labels ignores case
// and surrounding whitespace; anything else becomes Unknown(s) untouched.
func Parse(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL":
		return Critical
	case "HIGH":
		return High
	case "MEDIUM":
		return Medium
	case "LOW":
		return Low
	default:
		return Unknown(s)
	}
}

// Kind returns the tag of the level.
func (l Level) Kind() Kind {
	return l.kind
}

// IsKnown reports whether the level is one of CRITICAL, HIGH, MEDIUM, LOW.
func (l Level) IsKnown() bool {
	return l.kind != KindUnknown
}

// Label returns the canonical label for known levels and the original label
// for unknown ones.
func (l Level) Label() string {
	if l.kind == KindUnknown {
		return l.label
	}
	return l.kind.String()
}

// String returns the label.
func (l Level) String() string {
	return l.Label()
}

// Priority returns the numeric priority of the level.
// Higher numbers = higher priority.
func (l Level) Priority() int {
	switch l.kind {
	case KindCritical:
		return 4
	case KindHigh:
		return 3
	case KindMedium:
		return 2
	case KindLow:
		return 1
	default:
		return 0
	}
}

// IsHigherThan returns true if this severity is higher than the other.
func (l Level) IsHigherThan(other Level) bool {
	return l.Priority() > other.Priority()
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.Label()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	*l = Parse(string(text))
	return nil
}

// MarshalJSON encodes the level as its label.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Label())
}

// UnmarshalJSON accepts any JSON value. Strings are parsed; other payloads
// (numbers, null, objects) are kept as an Unknown level holding their raw
// text so one odd record never fails a batch.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = Parse(s)
		return nil
	}
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		raw = ""
	}
	*l = Unknown(raw)
	return nil
}
