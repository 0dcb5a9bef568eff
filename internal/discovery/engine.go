package discovery

import (
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/talgya/crossroads/internal/entropy"
	"github.com/talgya/crossroads/internal/world"
)

// EnvironmentSampler reports the biome tags around a point. An error means
// the environment is not available yet.
type EnvironmentSampler interface {
	SampleBiomes(anchor world.HexCoord, radius, stride int) (world.BiomeSet, error)
}

// Config holds engine tuning.
type Config struct {
	CheckInterval float64        // Simulated seconds between evaluation cycles
	Anchor        world.HexCoord // Settlement position the sampler scans around
	ScanRadius    int
	ScanStride    int
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		CheckInterval: 60,
		ScanRadius:    6,
		ScanStride:    2,
	}
}

// Engine evaluates registered discoveries once per check interval and
// completes at most one per cycle.
//
// Registration order is the priority order: the first discovery whose
// trial succeeds wins the cycle, and among equally likely candidates the
// earliest registered one receives bad-luck protection.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	defs   []Definition
	byName map[string]ID

	eligibleCycles         map[ID]int
	cyclesWithoutDiscovery int
	accumulated            float64
	cycles                 uint64 // cycles actually evaluated

	ledger   *Ledger
	activity ActivitySource
	sampler  EnvironmentSampler
	rng      entropy.Source
}

// NewEngine creates an engine. Any of ledger, activity or sampler may be
// nil during startup; cycles are skipped until all are present. A nil rng
// uses crypto/rand.
func NewEngine(cfg Config, ledger *Ledger, activity ActivitySource, sampler EnvironmentSampler, rng entropy.Source) *Engine {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultConfig().CheckInterval
	}
	if rng == nil {
		rng = entropy.Crypto{}
	}
	return &Engine{
		cfg:            cfg,
		byName:         make(map[string]ID),
		eligibleCycles: make(map[ID]int),
		ledger:         ledger,
		activity:       activity,
		sampler:        sampler,
		rng:            rng,
	}
}

// SetSampler installs the environment sampler.
func (e *Engine) SetSampler(s EnvironmentSampler) {
	e.mu.Lock()
	e.sampler = s
	e.mu.Unlock()
}

// SetActivitySource installs the activity source.
func (e *Engine) SetActivitySource(a ActivitySource) {
	e.mu.Lock()
	e.activity = a
	e.mu.Unlock()
}

// SetAnchor moves the point the sampler scans around.
func (e *Engine) SetAnchor(anchor world.HexCoord) {
	e.mu.Lock()
	e.cfg.Anchor = anchor
	e.mu.Unlock()
}

// Config returns the engine's tuning.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Register adds a discovery and returns its assigned ID. Names must be
// unique and every prerequisite must already be registered.
func (e *Engine) Register(def Definition) (ID, error) {
	if err := def.Validate(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, dup := e.byName[def.Name]; dup {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateDiscovery, def.Name)
	}
	for _, p := range def.Prerequisites {
		if _, ok := e.byName[p]; !ok {
			return 0, fmt.Errorf("%w: %q requires %q", ErrUnknownPrerequisite, def.Name, p)
		}
	}

	def = def.clone()
	def.ID = ID(len(e.defs) + 1)
	e.defs = append(e.defs, def)
	e.byName[def.Name] = def.ID
	return def.ID, nil
}

// Definitions returns every registered definition in registration order.
func (e *Engine) Definitions() []Definition {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Definition, len(e.defs))
	for i, d := range e.defs {
		out[i] = d.clone()
	}
	return out
}

// Lookup returns the definition registered under name.
func (e *Engine) Lookup(name string) (Definition, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byName[name]
	if !ok {
		return Definition{}, false
	}
	return e.defs[id-1].clone(), true
}

// EligibleCycles returns how many cycles the named discovery has been
// eligible without completing, and whether an entry exists at all.
func (e *Engine) EligibleCycles(name string) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byName[name]
	if !ok {
		return 0, false
	}
	n, ok := e.eligibleCycles[id]
	return n, ok
}

// CyclesWithoutDiscovery returns the bad-luck counter.
func (e *Engine) CyclesWithoutDiscovery() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cyclesWithoutDiscovery
}

// Stats summarises engine progress.
type Stats struct {
	Registered             int     `json:"registered"`
	Cycles                 uint64  `json:"cycles"`
	CyclesWithoutDiscovery int     `json:"cycles_without_discovery"`
	Accumulated            float64 `json:"accumulated_seconds"`
}

// Stats returns a summary of engine progress.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		Registered:             len(e.defs),
		Cycles:                 e.cycles,
		CyclesWithoutDiscovery: e.cyclesWithoutDiscovery,
		Accumulated:            e.accumulated,
	}
}

// MaxCatchUpCycles bounds the cycles a single Tick may run. Intervals
// beyond it are dropped.
const MaxCatchUpCycles = 10000

// Tick advances simulated time. Each full check interval that has elapsed
// runs its own evaluation cycle, in sequence. Non-positive and non-finite
// values are ignored.
func (e *Engine) Tick(elapsedSeconds float64) {
	if elapsedSeconds <= 0 || math.IsNaN(elapsedSeconds) || math.IsInf(elapsedSeconds, 0) {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	acc := e.accumulated + elapsedSeconds
	due := math.Floor(acc / e.cfg.CheckInterval)
	e.accumulated = math.Mod(acc, e.cfg.CheckInterval)
	if due > MaxCatchUpCycles {
		slog.Warn("discovery catch-up capped", "due", due, "run", MaxCatchUpCycles)
		due = MaxCatchUpCycles
	}
	for range int(due) {
		e.runCycle()
	}
}

// Trigger completes the named discovery immediately, bypassing its trial.
// Returns false if it was already discovered.
func (e *Engine) Trigger(name string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id, ok := e.byName[name]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownDiscovery, name)
	}
	if e.ledger == nil {
		return false, nil
	}
	def := e.defs[id-1]
	if !e.ledger.Complete(def) {
		return false, nil
	}
	e.cyclesWithoutDiscovery = 0
	delete(e.eligibleCycles, def.ID)
	slog.Info("discovery triggered", "name", def.Name)
	return true, nil
}

// runCycle evaluates every undiscovered rule once. Caller holds e.mu.
func (e *Engine) runCycle() {
	if e.ledger == nil || e.activity == nil || e.sampler == nil {
		slog.Debug("discovery cycle skipped", "reason", "dependencies not ready")
		return
	}
	biomes, err := e.sampler.SampleBiomes(e.cfg.Anchor, e.cfg.ScanRadius, e.cfg.ScanStride)
	if err != nil {
		slog.Debug("discovery cycle skipped", "reason", err)
		return
	}
	e.cycles++

	var best *Definition
	bestFinal := 0.0

	for i := range e.defs {
		def := &e.defs[i]
		if e.ledger.IsDiscovered(def.Name) {
			continue
		}
		if !e.prerequisitesMet(def) {
			continue
		}
		p := Probability(*def, biomes, e.activity)
		if p <= 0 {
			continue
		}

		e.eligibleCycles[def.ID]++
		final := FinalProbability(p, e.eligibleCycles[def.ID], def.RepetitionBonus)
		if best == nil || final > bestFinal {
			best, bestFinal = def, final
		}

		if e.rng.Float() < final && e.complete(def, false) {
			return
		}
	}

	e.cyclesWithoutDiscovery++
	if best != nil && best.BadLuckThreshold > 0 && e.cyclesWithoutDiscovery >= best.BadLuckThreshold {
		if e.complete(best, true) {
			return
		}
	}

	slog.Debug("discovery cycle",
		"cycle", e.cycles,
		"biomes", biomes.Sorted(),
		"without_discovery", e.cyclesWithoutDiscovery,
	)
}

func (e *Engine) prerequisitesMet(def *Definition) bool {
	for _, p := range def.Prerequisites {
		if !e.ledger.IsDiscovered(p) {
			return false
		}
	}
	return true
}

// complete records def in the ledger. Returns false, leaving the counters
// alone, if the ledger already had it.
func (e *Engine) complete(def *Definition, forced bool) bool {
	cycles := e.eligibleCycles[def.ID]
	delete(e.eligibleCycles, def.ID)
	if !e.ledger.Complete(*def) {
		return false
	}
	e.cyclesWithoutDiscovery = 0
	slog.Info("discovery cycle won",
		"name", def.Name,
		"kind", def.Kind,
		"forced", forced,
		"eligible_cycles", cycles,
		"cycle", e.cycles,
	)
	return true
}

// EngineState is the persistent form of an Engine's counters. Eligible
// cycles are keyed by discovery name so saves survive catalog reordering.
type EngineState struct {
	Accumulated            float64        `json:"accumulated"`
	CyclesWithoutDiscovery int            `json:"cycles_without_discovery"`
	Cycles                 uint64         `json:"cycles"`
	EligibleCycles         map[string]int `json:"eligible_cycles"`
}

// Snapshot returns the engine's counters.
func (e *Engine) Snapshot() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := EngineState{
		Accumulated:            e.accumulated,
		CyclesWithoutDiscovery: e.cyclesWithoutDiscovery,
		Cycles:                 e.cycles,
		EligibleCycles:         make(map[string]int, len(e.eligibleCycles)),
	}
	for id, n := range e.eligibleCycles {
		st.EligibleCycles[e.defs[id-1].Name] = n
	}
	return st
}

// Restore loads saved counters. Entries for names that are not registered
// or already discovered are dropped.
func (e *Engine) Restore(st EngineState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.accumulated = 0
	if st.Accumulated > 0 && st.Accumulated < e.cfg.CheckInterval {
		e.accumulated = st.Accumulated
	}
	e.cyclesWithoutDiscovery = max(0, st.CyclesWithoutDiscovery)
	e.cycles = st.Cycles
	e.eligibleCycles = make(map[ID]int, len(st.EligibleCycles))
	for name, n := range st.EligibleCycles {
		id, ok := e.byName[name]
		if !ok || n <= 0 {
			continue
		}
		if e.ledger != nil && e.ledger.IsDiscovered(name) {
			continue
		}
		e.eligibleCycles[id] = n
	}
}
