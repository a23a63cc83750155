package hover

import (
	"sync"

	"github.com/MeKo-Tech/trafficmap/internal/style"
	"github.com/MeKo-Tech/trafficmap/internal/types"
)

// Table maps features to their style overrides. Anyone may read it; only
// the Controller writes it.
type Table struct {
	mu      sync.RWMutex
	entries map[types.FeatureKey]style.Assignment
}

// NewTable creates an empty assignment table.
func NewTable() *Table {
	return &Table{entries: make(map[types.FeatureKey]style.Assignment)}
}

// Assignment returns the override recorded for key.
func (t *Table) Assignment(key types.FeatureKey) (style.Assignment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	a, ok := t.entries[key]
	return a, ok
}

// Len returns the number of recorded overrides.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Snapshot returns a copy of every recorded override.
func (t *Table) Snapshot() map[types.FeatureKey]style.Assignment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[types.FeatureKey]style.Assignment, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

func (t *Table) set(key types.FeatureKey, a style.Assignment) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = a
}

func (t *Table) remove(key types.FeatureKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key)
}
