// Package telemetry is the key/value sink the control loops publish to.
package telemetry

import (
	"sort"
	"sync"
)

// Sink receives fire-and-forget telemetry values.
type Sink interface {
	PutNumber(key string, value float64)
	PutBool(key string, value bool)
}

// Discard drops every value.
type Discard struct{}

func (Discard) PutNumber(string, float64) {}
func (Discard) PutBool(string, bool) {}

// Table keeps the latest value per key.
// The control loop writes; web handlers read snapshots from other goroutines.
type Table struct {
	mu     sync.RWMutex
	values map[string]float64
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{values: make(map[string]float64)}
}

func (t *Table) PutNumber(key string, value float64) {
	t.mu.Lock()
	t.values[key] = value
	t.mu.Unlock()
}

// PutBool stores booleans as 1 or 0.
func (t *Table) PutBool(key string, value bool) {
	v := 0.0
	if value {
		v = 1
	}
	t.PutNumber(key, v)
}

// Number returns the latest value for key.
func (t *Table) Number(key string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.values[key]
	return v, ok
}

// Snapshot returns a copy of all values.
func (t *Table) Snapshot() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.values))
	for k, v := range t.values {
		out[k] = v
	}
	return out
}

// Keys returns the published keys in sorted order.
func (t *Table) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	keys := make([]string, 0, len(t.values))
	for k := range t.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
