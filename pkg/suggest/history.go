package suggest

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/exploopio/findingscope/pkg/errors"
	"github.com/exploopio/findingscope/pkg/kv"
)

const (
	// HistoryKey is the persistence key of the recent-search list.
	HistoryKey = "findingscope-recent-searches"

	// HistoryLimit caps the recent-search list.
	HistoryLimit = 5
)

// History is the most-recent-first list of submitted queries, persisted
// through a kv.Store after every change.
type History struct {
	mu      sync.Mutex
	store   kv.Store
	entries []string
}

// LoadHistory reads the list stored under HistoryKey. A missing key yields an
// empty history. A corrupt value also yields an empty history, together with
// the decode error so the caller can report it.
func LoadHistory(ctx context.Context, store kv.Store) (*History, error) {
	h := &History{store: store, entries: make([]string, 0, HistoryLimit)}
	if store == nil {
		return h, nil
	}

	data, err := store.Get(ctx, HistoryKey)
	if errors.IsNotFoundError(err) {
		return h, nil
	}
	if err != nil {
		return h, errors.Wrap(err, "suggest.LoadHistory")
	}

	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return h, errors.E(errors.KindInvalidInput, "suggest.LoadHistory", "corrupt history", err)
	}
	// push prepends, so replay oldest first.
	for i := len(entries) - 1; i >= 0; i-- {
		h.push(entries[i])
	}
	return h, nil
}

// Entries returns a copy of the list, most recent first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

// Push records q as the most recent query and persists the list. Blank
// queries are ignored; an existing entry moves to the front.
func (h *History) Push(ctx context.Context, q string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.push(q) {
		return nil
	}
	return h.save(ctx)
}

// Clear empties the list and persists it.
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = h.entries[:0]
	return h.save(ctx)
}

func (h *History) push(q string) bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return false
	}

	next := make([]string, 0, HistoryLimit)
	next = append(next, q)
	for _, e := range h.entries {
		if e != q && len(next) < HistoryLimit {
			next = append(next, e)
		}
	}
	h.entries = next
	return true
}

func (h *History) save(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	data, err := json.Marshal(h.entries)
	if err != nil {
		return errors.E(errors.KindInternal, "suggest.History.save", err)
	}
	if err := h.store.Set(ctx, HistoryKey, data); err != nil {
		return errors.Wrap(err, "suggest.History.save")
	}
	return nil
}
