// Package history keeps a bounded stack of topology snapshots for undo.
package history

import "github.com/WessleyAI/wessley-schematic/engine/circuit"

// DefaultLimit is the journal depth used when none is configured.
const DefaultLimit = 50

// Journal is a bounded LIFO of deep-copied snapshots. The oldest entry is
// evicted when the limit is reached. It is not safe for concurrent use.
type Journal struct {
	limit   int
	entries []circuit.Snapshot
}

// New creates a journal holding at most limit entries. A non-positive limit
// selects DefaultLimit.
func New(limit int) *Journal {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Journal{limit: limit, entries: make([]circuit.Snapshot, 0, limit)}
}

// Record pushes an independent copy of s.
func (j *Journal) Record(s circuit.Snapshot) {
	if len(j.entries) == j.limit {
		copy(j.entries, j.entries[1:])
		j.entries = j.entries[:len(j.entries)-1]
	}
	j.entries = append(j.entries, s.Clone())
}

// Undo pops the most recent snapshot. There is no redo.
func (j *Journal) Undo() (circuit.Snapshot, bool) {
	n := len(j.entries)
	if n == 0 {
		return circuit.Snapshot{}, false
	}
	s := j.entries[n-1]
	j.entries[n-1] = circuit.Snapshot{}
	j.entries = j.entries[:n-1]
	return s, true
}

// Len returns the number of recorded snapshots.
func (j *Journal) Len() int { return len(j.entries) }

// Limit returns the configured depth.
func (j *Journal) Limit() int { return j.limit }

// Reset drops every entry.
func (j *Journal) Reset() {
	clear(j.entries)
	j.entries = j.entries[:0]
}
