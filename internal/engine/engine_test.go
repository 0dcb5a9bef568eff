package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/crossroads/internal/discovery"
	"github.com/talgya/crossroads/internal/entropy"
	"github.com/talgya/crossroads/internal/world"
)

// stoneMap is a radius-1 map where every hex offers only stone, plus grain
// at the center.
func stoneMap() *world.Map {
	m := world.NewMap(1)
	for _, c := range world.Within(world.HexCoord{}, 1) {
		m.Set(&world.Hex{
			Coord:     c,
			Terrain:   world.TerrainMountain,
			Resources: map[world.ResourceType]float64{world.ResourceStone: 10},
		})
	}
	m.Get(world.HexCoord{}).Resources[world.ResourceGrain] = 5
	return m
}

type caps map[string]bool

func (c caps) HasCapability(tag string) bool { return c[tag] }

func TestStepLayers(t *testing.T) {
	e := NewEngine()
	var ticks, hours, days int
	e.OnTick = func(uint64) { ticks++ }
	e.OnHour = func(uint64) { hours++ }
	e.OnDay = func(uint64) { days++ }

	for range TicksPerSimDay {
		e.Step()
	}
	assert.Equal(t, TicksPerSimDay, ticks)
	assert.Equal(t, 24, hours)
	assert.Equal(t, 1, days)
	assert.EqualValues(t, TicksPerSimDay, e.Tick)
}

func TestRunStopsAfterMaxTicks(t *testing.T) {
	e := NewEngine()
	e.Interval = time.Millisecond
	e.SetSpeed(100)
	e.Tick = 10

	e.Run(context.Background(), 5)
	assert.EqualValues(t, 15, e.Tick)
	assert.False(t, e.Running())
}

func TestRunStopsOnCancel(t *testing.T) {
	e := NewEngine()
	e.SetSpeed(0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	e.Run(ctx, 0)
	assert.Zero(t, e.Tick, "paused engine never steps")
}

func TestSetSpeedClampsNegative(t *testing.T) {
	e := NewEngine()
	e.SetSpeed(-3)
	assert.Zero(t, e.Speed())
}

func TestSimTime(t *testing.T) {
	assert.Equal(t, "Day 1, 0:00", SimTime(0))
	assert.Equal(t, "Day 1, 1:05", SimTime(65))
	assert.Equal(t, "Day 2, 0:00", SimTime(TicksPerSimDay))
}

func TestSeasons(t *testing.T) {
	assert.EqualValues(t, SeasonSpring, SeasonAt(0))
	assert.EqualValues(t, SeasonSummer, SeasonAt(TicksPerSimSeason))
	assert.EqualValues(t, SeasonWinter, SeasonAt(3*TicksPerSimSeason+5))
	assert.EqualValues(t, SeasonSpring, SeasonAt(4*TicksPerSimSeason))
	assert.Equal(t, "Winter", SeasonName(SeasonWinter))

	assert.False(t, SeasonAllows(SeasonWinter, discovery.ActivityFarm))
	assert.True(t, SeasonAllows(SeasonWinter, discovery.ActivityGatherStone))
	assert.True(t, SeasonAllows(SeasonSummer, discovery.ActivityFarm))
}

func TestWorkforceHarvestsAvailableResources(t *testing.T) {
	m := stoneMap()
	wf := NewWorkforce(20, 1, 7)

	acts := wf.Work(m, world.HexCoord{}, caps{})
	require.Len(t, acts, 20)
	for _, a := range acts {
		assert.Equal(t, discovery.ActivityGatherStone, a, "farming is gated behind a capability")
	}
}

func TestWorkforceCapabilityGate(t *testing.T) {
	m := world.NewMap(0)
	m.Set(&world.Hex{
		Coord:     world.HexCoord{},
		Terrain:   world.TerrainPlains,
		Resources: map[world.ResourceType]float64{world.ResourceGrain: 10},
	})
	wf := NewWorkforce(5, 0, 1)

	assert.Empty(t, wf.Work(m, world.HexCoord{}, caps{}))
	acts := wf.Work(m, world.HexCoord{}, caps{"Farming": true})
	assert.Len(t, acts, 5)
}

func TestWorkforceDeterministic(t *testing.T) {
	m := world.Generate(world.SmallTestConfig())
	anchor := world.FindAnchor(m, 2)
	all := caps{"Woodcutting": true, "Farming": true, "StoneTools": true, "Fishing": true}

	a := NewWorkforce(10, 3, 99).Work(m, anchor, all)
	b := NewWorkforce(10, 3, 99).Work(m, anchor, all)
	assert.Equal(t, a, b)
}

func TestWorkforceNilSafe(t *testing.T) {
	var wf *Workforce
	assert.Nil(t, wf.Work(stoneMap(), world.HexCoord{}, nil))
	assert.Nil(t, NewWorkforce(3, 1, 1).Work(nil, world.HexCoord{}, nil))
}

func newTestSim(t *testing.T, workers int, defs ...discovery.Definition) *Simulation {
	t.Helper()
	m := stoneMap()
	ledger := discovery.NewLedger()
	tracker := discovery.NewTracker()
	cfg := discovery.DefaultConfig()
	cfg.ScanRadius = 1
	disc := discovery.NewEngine(cfg, ledger, tracker, m, entropy.NewSeeded(3))
	for _, d := range defs {
		_, err := disc.Register(d)
		require.NoError(t, err)
	}
	return NewSimulation(m, world.HexCoord{}, ledger, tracker, disc, NewWorkforce(workers, 1, 1), 60)
}

func TestTickMinuteFeedsTrackerAndEngine(t *testing.T) {
	sim := newTestSim(t, 4, discovery.Definition{
		Name:                  "Flint",
		Kind:                  discovery.KindActivity,
		RequiredActivity:      discovery.ActivityGatherStone,
		RequiredActivityCount: 4,
		BaseProbability:       1,
		UnlockedCapabilities:  []string{"StoneTools"},
	})

	sim.TickMinute(1)
	assert.Equal(t, 4, sim.Tracker.Count(discovery.ActivityGatherStone))
	assert.EqualValues(t, 1, sim.CurrentTick())
	assert.True(t, sim.Ledger.IsDiscovered("Flint"), "activity factor 1 and base 1 is a certain draw")

	events := sim.RecentEvents(10)
	require.Len(t, events, 1)
	assert.Equal(t, "discovery", events[0].Category)
	assert.Contains(t, events[0].Description, "Flint")
	assert.EqualValues(t, 1, events[0].Tick)
}

func TestTickMinuteWinterIdlesFarms(t *testing.T) {
	sim := newTestSim(t, 30)
	sim.Ledger.Restore(discovery.LedgerState{Capabilities: []string{"Farming"}})

	sim.TickMinute(3 * TicksPerSimSeason)
	assert.Zero(t, sim.Tracker.Count(discovery.ActivityFarm))
	assert.Positive(t, sim.Tracker.Count(discovery.ActivityGatherStone))
}

func TestTickSeasonRecordsEvent(t *testing.T) {
	sim := newTestSim(t, 0)
	sim.TickSeason(3 * TicksPerSimSeason)

	events := sim.PendingEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "season", events[0].Category)
	assert.Contains(t, events[0].Description, "Winter")
}

func TestEventLogBounded(t *testing.T) {
	sim := newTestSim(t, 0)
	for i := range maxEvents + 10 {
		sim.record(Event{Tick: uint64(i)})
	}
	events := sim.RecentEvents(maxEvents * 2)
	require.Len(t, events, maxEvents)
	assert.EqualValues(t, 10, events[0].Tick)

	sim.LoadEvents([]Event{{Tick: 0, Category: "old"}})
	assert.Len(t, sim.RecentEvents(maxEvents*2), maxEvents)
}

func TestAckEventsKeepsLaterEvents(t *testing.T) {
	sim := newTestSim(t, 0)
	sim.record(Event{Tick: 1, Category: "season"})
	sim.record(Event{Tick: 2, Category: "season"})

	pending := sim.PendingEvents()
	require.Len(t, pending, 2)
	sim.record(Event{Tick: 3, Category: "season"})

	sim.AckEvents(len(pending))
	left := sim.PendingEvents()
	require.Len(t, left, 1)
	assert.EqualValues(t, 3, left[0].Tick)

	sim.AckEvents(10)
	assert.Empty(t, sim.PendingEvents())
}
