package state

import "time"

// DefaultHistoryLimit bounds the trailing commit history.
const DefaultHistoryLimit = 50

// HistoryEntry records one commit for diagnostics. It is never replayed.
type HistoryEntry struct {
	Seq       int64
	Timestamp time.Time
	Previous  Snapshot
	Current   Snapshot
	Changed   []Field
}

// History is a bounded ring of commits. The oldest entry is dropped once the
// limit is reached.
//
// History is not safe for concurrent use; the engine guards it.
type History struct {
	limit   int
	entries []HistoryEntry
	start   int
}

// NewHistory creates a ring holding at most limit entries.
// A non-positive limit falls back to DefaultHistoryLimit.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{limit: limit, entries: make([]HistoryEntry, 0, limit)}
}

// Append records a commit, evicting the oldest entry when full.
func (h *History) Append(e HistoryEntry) {
	if len(h.entries) < h.limit {
		h.entries = append(h.entries, e)
		return
	}
	h.entries[h.start] = e
	h.start = (h.start + 1) % h.limit
}

// Entries returns the retained commits, oldest first.
func (h *History) Entries() []HistoryEntry {
	out := make([]HistoryEntry, 0, len(h.entries))
	out = append(out, h.entries[h.start:]...)
	out = append(out, h.entries[:h.start]...)
	return out
}

// Len returns the number of retained entries.
func (h *History) Len() int {
	return len(h.entries)
}

// Limit returns the ring capacity.
func (h *History) Limit() int {
	return h.limit
}
