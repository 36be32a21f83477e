package finding

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Snapshot is an immutable set of findings from one successful fetch.
// Callers must treat Findings as read-only.
type Snapshot struct {
	ID        uuid.UUID `json:"id"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
	Findings  []Finding `json:"findings"`
	Skipped   int       `json:"skipped,omitempty"`
	Sample    bool      `json:"sample,omitempty"`
}

// NewSnapshot ingests records into a new snapshot.
func NewSnapshot(source string, fetchedAt time.Time, records []Record) *Snapshot {
	return &Snapshot{
		ID:        uuid.New(),
		Source:    source,
		FetchedAt: fetchedAt,
		Findings:  Ingest(records, fetchedAt),
	}
}

// Len returns the number of findings.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Findings)
}

// Store holds the current snapshot. It is replaced wholesale; readers always
// see either the previous or the new snapshot, never a mix.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Snapshot returns the current snapshot, or nil before the first load.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Findings returns the current findings (nil before the first load).
func (s *Store) Findings() []Finding {
	if snap := s.current.Load(); snap != nil {
		return snap.Findings
	}
	return nil
}

// Loaded reports whether a snapshot has been installed.
func (s *Store) Loaded() bool {
	return s.current.Load() != nil
}

// Replace installs snap and returns the snapshot it replaced.
func (s *Store) Replace(snap *Snapshot) *Snapshot {
	return s.current.Swap(snap)
}
