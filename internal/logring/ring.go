// Package logring keeps a bounded in-memory buffer of recent log records so
// the control client can fetch diagnostics from the running daemon without
// touching log files.
package logring

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultCapacity bounds the buffer when NewRing is given zero.
const DefaultCapacity = 200

// Entry is one captured log record.
type Entry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Source  string    `json:"source,omitempty"`
}

// Ring is a fixed-capacity buffer of log entries. Oldest entries are evicted
// first. Safe for concurrent use.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	start   int
	count   int
}

// NewRing builds a ring holding at most capacity entries.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{entries: make([]Entry, capacity)}
}

// Append records an entry, evicting the oldest when full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := (r.start + r.count) % len(r.entries)
	r.entries[idx] = e
	if r.count < len(r.entries) {
		r.count++
	} else {
		r.start = (r.start + 1) % len(r.entries)
	}
}

// Recent returns up to limit entries, oldest first. A non-positive limit
// returns everything buffered.
func (r *Ring) Recent(limit int) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Entry, 0, n)
	// Skip the oldest entries when a limit trims the front.
	offset := r.count - n
	for i := 0; i < n; i++ {
		idx := (r.start + offset + i) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out
}

// Len returns the number of buffered entries.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func levelString(level slog.Level) string {
	return level.String()
}
