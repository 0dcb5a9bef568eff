// Seasonal limits on settlement work.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/talgya/crossroads/internal/discovery"
)

// Season constants.
const (
	SeasonSpring = 0
	SeasonSummer = 1
	SeasonAutumn = 2
	SeasonWinter = 3
)

// SeasonName returns a human-readable season name.
func SeasonName(season uint8) string {
	switch season {
	case SeasonSpring:
		return "Spring"
	case SeasonSummer:
		return "Summer"
	case SeasonAutumn:
		return "Autumn"
	case SeasonWinter:
		return "Winter"
	default:
		return "Unknown"
	}
}

// SeasonAt returns the season in effect at tick.
func SeasonAt(tick uint64) uint8 {
	return uint8((tick / TicksPerSimSeason) % 4)
}

// dormant lists work that cannot be done in a season.
var dormant = map[uint8]map[discovery.Activity]bool{
	SeasonWinter: {
		discovery.ActivityFarm:     true,
		discovery.ActivityForage:   true,
		discovery.ActivityCutReeds: true,
		discovery.ActivityDigClay:  true, // frozen ground
	},
}

// SeasonAllows reports whether act can be done in season.
func SeasonAllows(season uint8, act discovery.Activity) bool {
	return !dormant[season][act]
}

// seasonalYield returns how many times a completed act counts. Autumn
// harvest doubles farm work.
func seasonalYield(season uint8, act discovery.Activity) int {
	if season == SeasonAutumn && act == discovery.ActivityFarm {
		return 2
	}
	return 1
}

// TickSeason logs the season change and records it as an event.
func (s *Simulation) TickSeason(tick uint64) {
	season := SeasonAt(tick)
	slog.Info("season change",
		"tick", tick,
		"time", SimTime(tick),
		"season", SeasonName(season),
		"discovered", s.Ledger.CompletedCount(),
	)
	desc := fmt.Sprintf("%s begins", SeasonName(season))
	if season == SeasonWinter {
		desc += ": fields, marsh and clay pits lie frozen"
	}
	s.record(Event{Tick: tick, Description: desc, Category: "season"})
}
