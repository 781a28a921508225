package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/WessleyAI/wessley-schematic/engine/circuit"
)

// MemoryOptions configures a Memory store.
type MemoryOptions struct {
	Now   func() time.Time
	NewID func() string
}

// Memory keeps saves in process memory.
type Memory struct {
	mu    sync.RWMutex
	saves map[string]Record
	now   func() time.Time
	newID func() string
}

// NewMemory creates an empty Memory store.
func NewMemory(opts MemoryOptions) *Memory {
	m := &Memory{saves: map[string]Record{}, now: opts.Now, newID: opts.NewID}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m
}

var _ Store = (*Memory)(nil)

func (m *Memory) List(ctx context.Context) ([]SaveInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SaveInfo, 0, len(m.saves))
	for _, r := range m.saves {
		out = append(out, r.Info())
	}
	sortNewest(out)
	return out, nil
}

func (m *Memory) Get(ctx context.Context, id string) (circuit.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.saves[id]
	if !ok {
		return circuit.Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.Snapshot.Clone(), nil
}

func (m *Memory) Put(ctx context.Context, name string, snap circuit.Snapshot, id string) (SaveInfo, error) {
	name = SafeName(name)
	if name == "" {
		return SaveInfo{}, ErrNoName
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var existing *Record
	if id != "" {
		if r, ok := m.saves[id]; ok {
			existing = &r
		}
	} else {
		for _, r := range m.saves {
			if r.Name == name {
				existing = &r
				break
			}
		}
	}
	rec := upsert(existing, id, name, snap, m.now().UnixMilli(), m.newID)
	m.saves[rec.ID] = rec
	return rec.Info(), nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.saves[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.saves, id)
	return nil
}

func sortNewest(saves []SaveInfo) {
	sort.SliceStable(saves, func(i, j int) bool {
		if saves[i].UpdatedAt != saves[j].UpdatedAt {
			return saves[i].UpdatedAt > saves[j].UpdatedAt
		}
		return saves[i].Name < saves[j].Name
	})
}
