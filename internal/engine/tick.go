// Package engine provides the tick-based host loop that drives a settlement
// session: settlers work, activity accumulates, and the discovery engine is
// advanced by the simulated time each tick represents.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TickSchedule defines when each layer runs relative to the tick counter.
const (
	TicksPerSimHour   = 60    // 60 ticks = 1 sim-hour
	TicksPerSimDay    = 1440  // 24 hours × 60
	TicksPerSimWeek   = 10080 // 7 days × 1440
	TicksPerSimSeason = 90000 // ~62.5 days
)

// Engine drives the simulation forward.
type Engine struct {
	Tick     uint64        // Current tick counter (monotonic, never resets)
	Interval time.Duration // Base tick interval at speed 1

	mu      sync.Mutex
	speed   float64 // 1.0 = real-time, 0 = paused
	running bool

	// Callbacks for each tick layer, populated during setup.
	OnTick   func(tick uint64) // Every tick (sim-minute)
	OnHour   func(tick uint64) // Every 60 ticks
	OnDay    func(tick uint64) // Every 1440 ticks
	OnWeek   func(tick uint64) // Every 10080 ticks
	OnSeason func(tick uint64) // Every 90000 ticks
}

// NewEngine creates an engine at speed 1 with a one second interval.
func NewEngine() *Engine {
	return &Engine{
		Interval: time.Second,
		speed:    1.0,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. 0 pauses.
func (e *Engine) SetSpeed(s float64) {
	if s < 0 {
		s = 0
	}
	e.mu.Lock()
	e.speed = s
	e.mu.Unlock()
}

// Running reports whether Run is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Run steps the simulation until ctx is done, maxTicks ticks have run
// (0 = unlimited), or Stop is called.
func (e *Engine) Run(ctx context.Context, maxTicks uint64) {
	e.mu.Lock()
	e.running = true
	e.mu.Unlock()
	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed())

	var ran uint64
	for e.Running() && ctx.Err() == nil {
		if maxTicks > 0 && ran >= maxTicks {
			break
		}
		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			sleep(ctx, 100*time.Millisecond)
			continue
		}

		start := time.Now()
		e.Step()
		ran++

		target := time.Duration(float64(e.Interval) / speed)
		if elapsed := time.Since(start); elapsed < target {
			sleep(ctx, target-elapsed)
		}
	}

	e.Stop()
	slog.Info("simulation engine stopped", "tick", e.Tick)
}

// Stop halts the simulation loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.running = false
	e.mu.Unlock()
}

// Step advances the simulation by one tick.
func (e *Engine) Step() {
	e.Tick++

	if e.OnTick != nil {
		e.OnTick(e.Tick)
	}
	if e.Tick%TicksPerSimHour == 0 && e.OnHour != nil {
		e.OnHour(e.Tick)
	}
	if e.Tick%TicksPerSimDay == 0 && e.OnDay != nil {
		e.OnDay(e.Tick)
	}
	if e.Tick%TicksPerSimWeek == 0 && e.OnWeek != nil {
		e.OnWeek(e.Tick)
	}
	if e.Tick%TicksPerSimSeason == 0 && e.OnSeason != nil {
		e.OnSeason(e.Tick)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// SimTime returns a human-readable simulation time string from a tick number.
func SimTime(tick uint64) string {
	minutes := tick % 60
	totalHours := tick / 60
	hours := totalHours % 24
	totalDays := totalHours / 24
	return fmt.Sprintf("Day %d, %d:%02d", totalDays+1, hours, minutes)
}
