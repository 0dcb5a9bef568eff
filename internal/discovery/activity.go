package discovery

import (
	"context"
	"maps"
	"sync"
)

// Tracker keeps lifetime counts per activity. Counts only grow.
// Safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	counts map[Activity]int
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{counts: make(map[Activity]int)}
}

// RecordActivity adds one completion of kind.
func (t *Tracker) RecordActivity(kind Activity) {
	t.mu.Lock()
	t.counts[kind]++
	t.mu.Unlock()
}

// Count returns the lifetime count for kind, 0 if never recorded.
func (t *Tracker) Count(kind Activity) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.counts[kind]
}

// Consume records every activity received on ch until ch is closed or ctx
// is done.
func (t *Tracker) Consume(ctx context.Context, ch <-chan Activity) {
	for {
		select {
		case <-ctx.Done():
			return
		case kind, ok := <-ch:
			if !ok {
				return
			}
			t.RecordActivity(kind)
		}
	}
}

// Snapshot returns a copy of all counts.
func (t *Tracker) Snapshot() map[Activity]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return maps.Clone(t.counts)
}

// Restore replaces the counts with a saved snapshot. Negative values are
// dropped.
func (t *Tracker) Restore(counts map[Activity]int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts = make(map[Activity]int, len(counts))
	for k, v := range counts {
		if v > 0 {
			t.counts[k] = v
		}
	}
}
