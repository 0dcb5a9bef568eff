// Simulation ties the world, the workforce and the discovery subsystem together.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/talgya/crossroads/internal/discovery"
	"github.com/talgya/crossroads/internal/world"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 1000

// Event is a notable occurrence in the settlement.
type Event struct {
	Tick        uint64 `json:"tick" db:"tick"`
	Description string `json:"description" db:"description"`
	Category    string `json:"category" db:"category"` // "discovery", "season"
}

// Simulation holds a settlement session and wires its systems together.
type Simulation struct {
	WorldMap  *world.Map
	Anchor    world.HexCoord
	SessionID string

	Tracker   *discovery.Tracker
	Ledger    *discovery.Ledger
	Discovery *discovery.Engine
	Workforce *Workforce

	// SecondsPerTick is the simulated time one tick hands the discovery engine.
	SecondsPerTick float64

	mu       sync.Mutex
	events   []Event
	unsaved  []Event
	lastTick uint64
}

// NewSimulation wires the components and subscribes to ledger completions.
func NewSimulation(m *world.Map, anchor world.HexCoord, ledger *discovery.Ledger, tracker *discovery.Tracker, disc *discovery.Engine, wf *Workforce, secondsPerTick float64) *Simulation {
	s := &Simulation{
		WorldMap:       m,
		Anchor:         anchor,
		Tracker:        tracker,
		Ledger:         ledger,
		Discovery:      disc,
		Workforce:      wf,
		SecondsPerTick: secondsPerTick,
	}
	ledger.Subscribe(s.onDiscovery)
	return s
}

func (s *Simulation) onDiscovery(c discovery.Completion) {
	s.record(Event{
		Tick:        s.CurrentTick(),
		Description: fmt.Sprintf("%s: %s", c.Name, c.Description),
		Category:    "discovery",
	})
}

func (s *Simulation) record(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	s.unsaved = append(s.unsaved, e)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
}

// CurrentTick returns the most recently processed tick number.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTick
}

// SetTick sets the tick a restored session resumes from.
func (s *Simulation) SetTick(tick uint64) {
	s.mu.Lock()
	s.lastTick = tick
	s.mu.Unlock()
}

// TickMinute runs every tick: settlers work what the season allows, then
// the discovery engine advances by one tick's worth of simulated time.
func (s *Simulation) TickMinute(tick uint64) {
	s.SetTick(tick)

	season := SeasonAt(tick)
	for _, act := range s.Workforce.Work(s.WorldMap, s.Anchor, s.Ledger) {
		if !SeasonAllows(season, act) {
			continue
		}
		for range seasonalYield(season, act) {
			s.Tracker.RecordActivity(act)
		}
	}
	s.Discovery.Tick(s.SecondsPerTick)
}

// TickDay logs a daily report.
func (s *Simulation) TickDay(tick uint64) {
	stats := s.Discovery.Stats()
	slog.Info("daily report",
		"tick", tick,
		"time", SimTime(tick),
		"discovered", s.Ledger.CompletedCount(),
		"registered", stats.Registered,
		"cycles", stats.Cycles,
		"without_discovery", stats.CyclesWithoutDiscovery,
		"activity", s.Tracker.Snapshot(),
	)
}

// RecentEvents returns up to n of the newest events, oldest first.
func (s *Simulation) RecentEvents(n int) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	start := max(0, len(s.events)-n)
	return append([]Event(nil), s.events[start:]...)
}

// PendingEvents returns a copy of the events not yet saved.
func (s *Simulation) PendingEvents() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.unsaved...)
}

// AckEvents marks the oldest n pending events as saved. Events recorded
// after PendingEvents was called stay pending.
func (s *Simulation) AckEvents(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n = min(n, len(s.unsaved))
	s.unsaved = append([]Event(nil), s.unsaved[n:]...)
	if len(s.unsaved) == 0 {
		s.unsaved = nil
	}
}

// LoadEvents seeds the in-memory log with previously saved events.
func (s *Simulation) LoadEvents(events []Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(append([]Event(nil), events...), s.events...)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
}
