package session

import (
	"sync"
	"time"

	"github.com/WessleyAI/wessley-schematic/engine/derive"
)

// DebugLimit bounds the debug log.
const DebugLimit = 200

// DebugEntry records the outcome of one synchronization.
type DebugEntry struct {
	Time    time.Time `json:"time"`
	Status  string    `json:"status"`
	Summary string    `json:"summary"`
	Details []string  `json:"details"`
}

type debugLog struct {
	mu      sync.Mutex
	entries []DebugEntry
}

func (l *debugLog) add(at time.Time, s derive.Summary) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, DebugEntry{
		Time:    at,
		Status:  s.Status,
		Summary: s.Text,
		Details: append([]string(nil), s.Details...),
	})
	if over := len(l.entries) - DebugLimit; over > 0 {
		l.entries = append(l.entries[:0], l.entries[over:]...)
	}
}

// newest returns the entries newest first.
func (l *debugLog) newest() []DebugEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]DebugEntry, len(l.entries))
	for i, e := range l.entries {
		out[len(out)-1-i] = e
	}
	return out
}

func (l *debugLog) reset() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}
