package discovery

import (
	"log/slog"
	"slices"
	"sort"
	"sync"
)

// Completion is published once for every discovery the ledger records.
type Completion struct {
	ID           ID
	Name         string
	Description  string
	Capabilities []string
	Structures   []string
	Resources    []string
}

// Ledger is the record of completed discoveries and everything they
// unlocked. Complete is the only method that adds to it.
// Safe for concurrent use.
type Ledger struct {
	mu           sync.RWMutex
	completed    map[string]struct{}
	order        []string // completion order
	capabilities map[string]struct{}
	structures   map[string]struct{}
	resources    map[string]struct{}

	listenMu  sync.RWMutex
	listeners []func(Completion)
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		completed:    make(map[string]struct{}),
		capabilities: make(map[string]struct{}),
		structures:   make(map[string]struct{}),
		resources:    make(map[string]struct{}),
	}
}

// Subscribe registers fn to be called after every successful Complete.
// Listeners run synchronously on the completing goroutine, in subscription
// order, after the ledger lock is released.
func (l *Ledger) Subscribe(fn func(Completion)) {
	l.listenMu.Lock()
	l.listeners = append(l.listeners, fn)
	l.listenMu.Unlock()
}

// IsDiscovered reports whether the named discovery has completed.
func (l *Ledger) IsDiscovered(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.completed[name]
	return ok
}

// HasCapability reports whether a capability tag is unlocked.
func (l *Ledger) HasCapability(tag string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.capabilities[tag]
	return ok
}

// IsStructureUnlocked reports whether a structure type is unlocked.
func (l *Ledger) IsStructureUnlocked(tag string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.structures[tag]
	return ok
}

// IsResourceUnlocked reports whether a resource type is unlocked.
func (l *Ledger) IsResourceUnlocked(tag string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.resources[tag]
	return ok
}

// CompletedCount returns the number of completed discoveries.
func (l *Ledger) CompletedCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.completed)
}

// Completed returns completed discovery names in completion order.
func (l *Ledger) Completed() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]string(nil), l.order...)
}

// Complete records def as discovered and applies its unlocks. Returns
// false, changing nothing, if def was already completed.
func (l *Ledger) Complete(def Definition) bool {
	l.mu.Lock()
	if _, done := l.completed[def.Name]; done {
		l.mu.Unlock()
		return false
	}
	l.completed[def.Name] = struct{}{}
	l.order = append(l.order, def.Name)
	addAll(l.capabilities, def.UnlockedCapabilities)
	addAll(l.structures, def.UnlockedStructures)
	addAll(l.resources, def.UnlockedResources)
	l.mu.Unlock()

	slog.Info("discovery completed",
		"name", def.Name,
		"capabilities", def.UnlockedCapabilities,
		"structures", def.UnlockedStructures,
		"resources", def.UnlockedResources,
	)

	c := Completion{
		ID:           def.ID,
		Name:         def.Name,
		Description:  def.Description,
		Capabilities: append([]string(nil), def.UnlockedCapabilities...),
		Structures:   append([]string(nil), def.UnlockedStructures...),
		Resources:    append([]string(nil), def.UnlockedResources...),
	}
	l.listenMu.RLock()
	listeners := slices.Clone(l.listeners)
	l.listenMu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
	return true
}

// LedgerState is the persistent form of a Ledger.
type LedgerState struct {
	Completed    []string `json:"completed"`
	Capabilities []string `json:"capabilities"`
	Structures   []string `json:"structures"`
	Resources    []string `json:"resources"`
}

// Snapshot returns the ledger contents. Completed keeps completion order,
// unlock lists are sorted.
func (l *Ledger) Snapshot() LedgerState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return LedgerState{
		Completed:    append([]string(nil), l.order...),
		Capabilities: sortedKeys(l.capabilities),
		Structures:   sortedKeys(l.structures),
		Resources:    sortedKeys(l.resources),
	}
}

// Restore replaces the ledger contents with a saved state. No listeners
// are notified.
func (l *Ledger) Restore(st LedgerState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.completed = make(map[string]struct{}, len(st.Completed))
	l.order = l.order[:0]
	for _, name := range st.Completed {
		if _, dup := l.completed[name]; dup {
			continue
		}
		l.completed[name] = struct{}{}
		l.order = append(l.order, name)
	}
	l.capabilities = make(map[string]struct{})
	l.structures = make(map[string]struct{})
	l.resources = make(map[string]struct{})
	addAll(l.capabilities, st.Capabilities)
	addAll(l.structures, st.Structures)
	addAll(l.resources, st.Resources)
}

func addAll(set map[string]struct{}, tags []string) {
	for _, t := range tags {
		set[t] = struct{}{}
	}
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
