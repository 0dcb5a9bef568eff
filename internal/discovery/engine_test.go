package discovery

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/crossroads/internal/world"
)

// scripted returns queued values, then repeats the fallback.
type scripted struct {
	values   []float64
	fallback float64
	draws    int
}

func (s *scripted) Float() float64 {
	s.draws++
	if len(s.values) == 0 {
		return s.fallback
	}
	v := s.values[0]
	s.values = s.values[1:]
	return v
}

// fixedSampler returns the same biomes every call, or err.
type fixedSampler struct {
	biomes world.BiomeSet
	err    error
	calls  int
}

func (f *fixedSampler) SampleBiomes(world.HexCoord, int, int) (world.BiomeSet, error) {
	f.calls++
	return f.biomes, f.err
}

func flint() Definition {
	return Definition{
		Name:                 "Flint",
		Description:          "Sharp stones split cleanly.",
		Kind:                 KindBiome,
		RequiredBiomes:       []world.Biome{world.BiomeStone},
		BaseProbability:      0.15,
		RepetitionBonus:      0.03,
		BadLuckThreshold:     20,
		UnlockedCapabilities: []string{"StoneTools"},
	}
}

func newTestEngine(t *testing.T, biomes world.BiomeSet, rng *scripted, defs ...Definition) (*Engine, *Ledger, *Tracker) {
	t.Helper()
	ledger := NewLedger()
	tracker := NewTracker()
	e := NewEngine(DefaultConfig(), ledger, tracker, &fixedSampler{biomes: biomes}, rng)
	for _, d := range defs {
		_, err := e.Register(d)
		require.NoError(t, err)
	}
	return e, ledger, tracker
}

func TestScenarioBiomeDiscoveredFirstCycle(t *testing.T) {
	rng := &scripted{values: []float64{0.10}, fallback: 0.99}
	e, ledger, _ := newTestEngine(t, world.NewBiomeSet(world.BiomeStone, world.BiomeGrass), rng, flint())

	e.Tick(60)

	assert.True(t, ledger.IsDiscovered("Flint"))
	assert.True(t, ledger.HasCapability("StoneTools"))
	assert.Equal(t, 1, rng.draws)
	assert.Equal(t, 0, e.CyclesWithoutDiscovery())
	_, ok := e.EligibleCycles("Flint")
	assert.False(t, ok)
}

func TestScenarioBiomeMissingNeverEligible(t *testing.T) {
	rng := &scripted{fallback: 0.0}
	e, ledger, _ := newTestEngine(t, world.NewBiomeSet(world.BiomeGrass), rng, flint())

	for i := 0; i < 50; i++ {
		e.Tick(60)
		_, ok := e.EligibleCycles("Flint")
		require.False(t, ok)
	}
	assert.False(t, ledger.IsDiscovered("Flint"))
	assert.Zero(t, rng.draws, "ineligible discoveries are never rolled")
	assert.Equal(t, 50, e.CyclesWithoutDiscovery())
}

func TestScenarioActivityScaling(t *testing.T) {
	def := Definition{
		Name:                  "Tool Making",
		Kind:                  KindActivity,
		RequiredActivity:      ActivityGatherStone,
		RequiredActivityCount: 5,
		BaseProbability:       0.10,
	}
	tracker := NewTracker()
	for i := 0; i < 3; i++ {
		tracker.RecordActivity(ActivityGatherStone)
	}
	assert.Equal(t, 3, tracker.Count(ActivityGatherStone))
	assert.Zero(t, Probability(def, nil, tracker))

	for i := 0; i < 3; i++ {
		tracker.RecordActivity(ActivityGatherStone)
	}
	assert.Equal(t, 6, tracker.Count(ActivityGatherStone))
	assert.InDelta(t, 1.2, ActivityFactor(6, 5), 1e-9)
	assert.InDelta(t, 0.12, Probability(def, nil, tracker), 1e-9)
}

func TestActivityFactorCap(t *testing.T) {
	def := Definition{
		Name:                  "Pottery",
		Kind:                  KindActivity,
		RequiredActivity:      ActivityDigClay,
		RequiredActivityCount: 10,
		BaseProbability:       0.1,
	}
	for _, tt := range []struct {
		count int
		want  float64
	}{
		{9, 0},
		{10, 0.1},
		{15, 0.15},
		{20, 0.2},
		{1000, 0.2},
	} {
		tracker := NewTracker()
		tracker.Restore(map[Activity]int{ActivityDigClay: tt.count})
		assert.InDelta(t, tt.want, Probability(def, nil, tracker), 1e-9, "count %d", tt.count)
	}
	assert.Equal(t, 2.0, ActivityFactor(20, 10))
	assert.Equal(t, 2.0, ActivityFactor(1000, 10))
}

func TestSpontaneousProbability(t *testing.T) {
	def := Definition{Name: "Fire", Kind: KindSpontaneous, BaseProbability: 0.05}
	assert.Equal(t, 0.05, Probability(def, nil, NewTracker()))
	def.BaseProbability = 0
	assert.Zero(t, Probability(def, nil, NewTracker()))
}

func TestFinalProbabilityClamped(t *testing.T) {
	assert.Equal(t, 1.0, FinalProbability(0.5, 100, 0.1))
	assert.Equal(t, 1.0, FinalProbability(0.0, 20, 0.5))
	assert.InDelta(t, 0.18, FinalProbability(0.15, 1, 0.03), 1e-9)
	assert.Equal(t, 0.0, FinalProbability(-0.5, 0, 0))

	// A bonus that saturates makes the trial certain even for a 0.999999 draw.
	def := flint()
	def.RepetitionBonus = 0.5
	def.BadLuckThreshold = 0
	rng := &scripted{values: []float64{0.99, 0.999999}}
	e, ledger, _ := newTestEngine(t, world.NewBiomeSet(world.BiomeStone), rng, def)
	e.Tick(60) // 0.15 + 0.5 = 0.65 < 0.99
	assert.False(t, ledger.IsDiscovered("Flint"))
	e.Tick(60) // 0.15 + 1.0 clamps to 1
	assert.True(t, ledger.IsDiscovered("Flint"))
}

func TestBadLuckForcesOnThreshold(t *testing.T) {
	def := flint()
	def.BadLuckThreshold = 5
	def.RepetitionBonus = 0.01
	rng := &scripted{fallback: 0.999}
	e, ledger, _ := newTestEngine(t, world.NewBiomeSet(world.BiomeStone), rng, def)

	for i := 1; i <= 4; i++ {
		e.Tick(60)
		require.False(t, ledger.IsDiscovered("Flint"), "cycle %d", i)
		assert.Equal(t, i, e.CyclesWithoutDiscovery())
		n, _ := e.EligibleCycles("Flint")
		assert.Equal(t, i, n)
	}

	e.Tick(60)
	assert.True(t, ledger.IsDiscovered("Flint"))
	assert.Equal(t, 0, e.CyclesWithoutDiscovery())
	_, ok := e.EligibleCycles("Flint")
	assert.False(t, ok)
}

func TestBadLuckPicksBestCandidate(t *testing.T) {
	low := Definition{Name: "Low", Kind: KindSpontaneous, BaseProbability: 0.05, BadLuckThreshold: 2}
	high := Definition{Name: "High", Kind: KindSpontaneous, BaseProbability: 0.2, BadLuckThreshold: 2}
	tie := Definition{Name: "Tie", Kind: KindSpontaneous, BaseProbability: 0.2, BadLuckThreshold: 2}
	rng := &scripted{fallback: 0.999}
	e, ledger, _ := newTestEngine(t, world.NewBiomeSet(), rng, low, high, tie)

	e.Tick(60)
	assert.Zero(t, ledger.CompletedCount())
	e.Tick(60)
	assert.True(t, ledger.IsDiscovered("High"), "highest probability wins, ties go to the earlier registration")
	assert.False(t, ledger.IsDiscovered("Tie"))
	assert.False(t, ledger.IsDiscovered("Low"))

	// Forced completion leaves the others' eligibility counters intact.
	n, ok := e.EligibleCycles("Tie")
	assert.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestBadLuckDisabledThreshold(t *testing.T) {
	def := Definition{Name: "Rare", Kind: KindSpontaneous, BaseProbability: 0.01}
	rng := &scripted{fallback: 0.999}
	e, ledger, _ := newTestEngine(t, world.NewBiomeSet(), rng, def)

	e.Tick(60 * 100)
	assert.False(t, ledger.IsDiscovered("Rare"))
	assert.Equal(t, 100, e.CyclesWithoutDiscovery())
}

func TestFirstSuccessWinsAndStops(t *testing.T) {
	a := Definition{Name: "A", Kind: KindSpontaneous, BaseProbability: 0.5}
	b := Definition{Name: "B", Kind: KindSpontaneous, BaseProbability: 0.5}
	c := Definition{Name: "C", Kind: KindSpontaneous, BaseProbability: 0.5}
	rng := &scripted{values: []float64{0.9, 0.1, 0.1}}
	e, ledger, _ := newTestEngine(t, world.NewBiomeSet(), rng, a, b, c)

	e.Tick(60)
	assert.Equal(t, []string{"B"}, ledger.Completed())
	assert.Equal(t, 2, rng.draws, "evaluation stops after the first success")

	_, ok := e.EligibleCycles("C")
	assert.False(t, ok, "discoveries after the winner are not evaluated")
	n, _ := e.EligibleCycles("A")
	assert.Equal(t, 1, n)
}

func TestAtMostOneCompletionPerCycle(t *testing.T) {
	var defs []Definition
	for _, n := range []string{"A", "B", "C", "D"} {
		defs = append(defs, Definition{Name: n, Kind: KindSpontaneous, BaseProbability: 1})
	}
	e, ledger, _ := newTestEngine(t, world.NewBiomeSet(), &scripted{}, defs...)

	for i := 1; i <= 4; i++ {
		e.Tick(60)
		assert.Equal(t, i, ledger.CompletedCount())
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, ledger.Completed())
	e.Tick(60)
	assert.Equal(t, 4, ledger.CompletedCount())
}

func TestTickCatchUp(t *testing.T) {
	def := Definition{Name: "Rare", Kind: KindSpontaneous, BaseProbability: 0.01}
	rng := &scripted{fallback: 0.999}
	e, _, _ := newTestEngine(t, world.NewBiomeSet(), rng, def)

	e.Tick(59.5)
	assert.Zero(t, e.Stats().Cycles)
	e.Tick(0.5)
	assert.EqualValues(t, 1, e.Stats().Cycles)

	e.Tick(60*3 + 30)
	assert.EqualValues(t, 4, e.Stats().Cycles, "each elapsed interval gets its own cycle")
	assert.Equal(t, 4, rng.draws)
	assert.InDelta(t, 30, e.Stats().Accumulated, 1e-9)
	n, _ := e.EligibleCycles("Rare")
	assert.Equal(t, 4, n)

	e.Tick(-10)
	e.Tick(0)
	assert.EqualValues(t, 4, e.Stats().Cycles)
}

func TestSkipWhenSamplerUnavailable(t *testing.T) {
	def := flint()
	ledger := NewLedger()
	sampler := &fixedSampler{biomes: world.NewBiomeSet(world.BiomeStone)}
	rng := &scripted{fallback: 0.999}
	e := NewEngine(DefaultConfig(), ledger, NewTracker(), sampler, rng)
	_, err := e.Register(def)
	require.NoError(t, err)

	e.Tick(60)
	e.Tick(60)
	before := e.CyclesWithoutDiscovery()
	n, _ := e.EligibleCycles("Flint")
	require.Equal(t, 2, before)
	require.Equal(t, 2, n)

	sampler.err = world.ErrMapNotReady
	for i := 0; i < 3; i++ {
		e.Tick(60)
	}
	assert.Equal(t, before, e.CyclesWithoutDiscovery())
	after, _ := e.EligibleCycles("Flint")
	assert.Equal(t, n, after)
	assert.Equal(t, 2, rng.draws)
	assert.EqualValues(t, 2, e.Stats().Cycles)
}

func TestSkipWhenDependenciesMissing(t *testing.T) {
	ledger := NewLedger()
	rng := &scripted{fallback: 0}
	e := NewEngine(DefaultConfig(), ledger, nil, nil, rng)
	_, err := e.Register(Definition{Name: "Fire", Kind: KindSpontaneous, BaseProbability: 1})
	require.NoError(t, err)

	e.Tick(60 * 3)
	assert.Zero(t, e.CyclesWithoutDiscovery())
	assert.False(t, ledger.IsDiscovered("Fire"))

	e.SetActivitySource(NewTracker())
	e.Tick(60)
	assert.False(t, ledger.IsDiscovered("Fire"), "sampler still missing")

	e.SetSampler(&fixedSampler{biomes: world.NewBiomeSet()})
	e.Tick(60)
	assert.True(t, ledger.IsDiscovered("Fire"))

	noLedger := NewEngine(DefaultConfig(), nil, NewTracker(), &fixedSampler{}, rng)
	_, err = noLedger.Register(Definition{Name: "Fire", Kind: KindSpontaneous, BaseProbability: 1})
	require.NoError(t, err)
	noLedger.Tick(60)
	assert.Zero(t, noLedger.Stats().Cycles)
}

func TestPrerequisitesGateEligibility(t *testing.T) {
	fire := Definition{Name: "Fire", Kind: KindSpontaneous, BaseProbability: 0}
	cooking := Definition{
		Name:            "Cooking",
		Kind:            KindSpontaneous,
		BaseProbability: 1,
		Prerequisites:   []string{"Fire"},
	}
	rng := &scripted{fallback: 0}
	e, ledger, _ := newTestEngine(t, world.NewBiomeSet(), rng, fire, cooking)

	e.Tick(60 * 5)
	assert.False(t, ledger.IsDiscovered("Cooking"))
	_, ok := e.EligibleCycles("Cooking")
	assert.False(t, ok)

	ok, err := e.Trigger("Fire")
	require.NoError(t, err)
	assert.True(t, ok)

	e.Tick(60)
	assert.True(t, ledger.IsDiscovered("Cooking"))
}

func TestRegisterValidation(t *testing.T) {
	e := NewEngine(DefaultConfig(), NewLedger(), NewTracker(), nil, nil)

	id, err := e.Register(flint())
	require.NoError(t, err)
	assert.Equal(t, ID(1), id)

	_, err = e.Register(flint())
	assert.ErrorIs(t, err, ErrDuplicateDiscovery)

	_, err = e.Register(Definition{Name: "Bronze", Kind: KindSpontaneous, Prerequisites: []string{"Copper"}})
	assert.ErrorIs(t, err, ErrUnknownPrerequisite)

	for _, bad := range []Definition{
		{Name: ""},
		{Name: "X", BaseProbability: 1.5},
		{Name: "X", RepetitionBonus: -0.1},
		{Name: "X", Kind: KindActivity, RequiredActivityCount: 3},
		{Name: "X", Kind: KindActivity, RequiredActivity: ActivityFish},
		{Name: "X", Kind: Kind(9)},
	} {
		_, err := e.Register(bad)
		assert.ErrorIs(t, err, ErrInvalidDefinition, "%+v", bad)
	}

	id, err = e.Register(Definition{Name: "Pottery", Kind: KindSpontaneous, Prerequisites: []string{"Flint"}})
	require.NoError(t, err)
	assert.Equal(t, ID(2), id)

	got, ok := e.Lookup("Pottery")
	require.True(t, ok)
	assert.Equal(t, ID(2), got.ID)
	assert.Len(t, e.Definitions(), 2)
}

func TestRegisterCopiesDefinition(t *testing.T) {
	def := flint()
	e, ledger, _ := newTestEngine(t, world.NewBiomeSet(world.BiomeStone), &scripted{values: []float64{0}}, def)
	def.UnlockedCapabilities[0] = "Mutated"

	e.Tick(60)
	assert.True(t, ledger.HasCapability("StoneTools"))
	assert.False(t, ledger.HasCapability("Mutated"))
}

func TestTrigger(t *testing.T) {
	e, ledger, _ := newTestEngine(t, world.NewBiomeSet(world.BiomeStone), &scripted{fallback: 0.999}, flint())
	e.Tick(60 * 3)
	require.Equal(t, 3, e.CyclesWithoutDiscovery())

	ok, err := e.Trigger("Flint")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, ledger.IsDiscovered("Flint"))
	assert.Zero(t, e.CyclesWithoutDiscovery())

	ok, err = e.Trigger("Flint")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = e.Trigger("Bronze")
	assert.ErrorIs(t, err, ErrUnknownDiscovery)
}

func TestEngineSnapshotRestore(t *testing.T) {
	defs := []Definition{
		flint(),
		{Name: "Fire", Kind: KindSpontaneous, BaseProbability: 0.01},
	}
	e, ledger, tracker := newTestEngine(t, world.NewBiomeSet(world.BiomeStone), &scripted{fallback: 0.999}, defs...)
	e.Tick(60*4 + 12)
	st := e.Snapshot()
	assert.Equal(t, map[string]int{"Flint": 4, "Fire": 4}, st.EligibleCycles)
	assert.Equal(t, 4, st.CyclesWithoutDiscovery)
	assert.InDelta(t, 12, st.Accumulated, 1e-9)

	ledger.Complete(defs[1])
	st.EligibleCycles["Unknown"] = 9

	restored := NewEngine(DefaultConfig(), ledger, tracker, &fixedSampler{biomes: world.NewBiomeSet()}, nil)
	for _, d := range defs {
		_, err := restored.Register(d)
		require.NoError(t, err)
	}
	restored.Restore(st)

	n, ok := restored.EligibleCycles("Flint")
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	_, ok = restored.EligibleCycles("Fire")
	assert.False(t, ok, "discovered entries are dropped")
	assert.Equal(t, 4, restored.CyclesWithoutDiscovery())
	assert.EqualValues(t, 4, restored.Stats().Cycles)
}

func TestTickIgnoresNonFiniteAndCapsCatchUp(t *testing.T) {
	def := Definition{Name: "Rare", Kind: KindSpontaneous, BaseProbability: 0.01}
	rng := &scripted{fallback: 0.999}
	e, _, _ := newTestEngine(t, world.NewBiomeSet(), rng, def)

	e.Tick(30)
	e.Tick(math.Inf(1))
	e.Tick(math.Inf(-1))
	e.Tick(math.NaN())
	assert.Zero(t, e.Stats().Cycles)
	assert.InDelta(t, 30, e.Stats().Accumulated, 1e-9, "non-finite input leaves the accumulator alone")

	e2, _, _ := newTestEngine(t, world.NewBiomeSet(), &scripted{fallback: 0.999}, def)
	e2.Tick(1e20)
	assert.EqualValues(t, MaxCatchUpCycles, e2.Stats().Cycles)
	assert.InDelta(t, 40, e2.Stats().Accumulated, 1e-9, "remainder of 1e20 mod 60")

	e2.Tick(60)
	assert.EqualValues(t, MaxCatchUpCycles+1, e2.Stats().Cycles)
	assert.InDelta(t, 40, e2.Stats().Accumulated, 1e-9)
}

func TestRestoreDropsBadAccumulator(t *testing.T) {
	for _, acc := range []float64{math.NaN(), math.Inf(1), -5, 600} {
		e, _, _ := newTestEngine(t, world.NewBiomeSet(), &scripted{fallback: 0.999})
		e.Restore(EngineState{Accumulated: acc})
		assert.Zero(t, e.Stats().Accumulated, "accumulated %v", acc)
	}
}

// racingSource completes def on the ledger the first time it is drawn,
// as if another caller got there first.
type racingSource struct {
	ledger *Ledger
	def    Definition
	done   bool
}

func (r *racingSource) Float() float64 {
	if !r.done {
		r.done = true
		r.ledger.Complete(r.def)
	}
	return 0
}

func TestCycleLostToConcurrentCompletion(t *testing.T) {
	ledger := NewLedger()
	rng := &racingSource{ledger: ledger, def: flint()}
	e := NewEngine(DefaultConfig(), ledger, NewTracker(), &fixedSampler{biomes: world.NewBiomeSet(world.BiomeStone)}, rng)
	_, err := e.Register(flint())
	require.NoError(t, err)

	var completions int
	ledger.Subscribe(func(Completion) { completions++ })

	e.Tick(60)
	assert.True(t, ledger.IsDiscovered("Flint"))
	assert.Equal(t, 1, completions, "only the racing completion is reported")
	assert.Equal(t, 1, e.CyclesWithoutDiscovery(), "a lost race counts as a dry cycle")
	_, ok := e.EligibleCycles("Flint")
	assert.False(t, ok)
}

func TestActivityKnown(t *testing.T) {
	assert.True(t, ActivityGatherStone.Known())
	assert.True(t, ActivityFish.Known())
	assert.False(t, Activity("Dance").Known())
	assert.False(t, Activity("").Known())
}
