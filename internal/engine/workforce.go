// Settlers turn the land around the settlement into activity events.
package engine

import (
	"math/rand"
	"sort"

	"github.com/talgya/crossroads/internal/discovery"
	"github.com/talgya/crossroads/internal/world"
)

// resourceActivity maps a hex resource to the work that harvests it.
var resourceActivity = map[world.ResourceType]discovery.Activity{
	world.ResourceStone:   discovery.ActivityGatherStone,
	world.ResourceTimber:  discovery.ActivityChopWood,
	world.ResourceBerries: discovery.ActivityForage,
	world.ResourceFish:    discovery.ActivityFish,
	world.ResourceFurs:    discovery.ActivityHunt,
	world.ResourceClay:    discovery.ActivityDigClay,
	world.ResourceReeds:   discovery.ActivityCutReeds,
	world.ResourceGrain:   discovery.ActivityFarm,
	world.ResourceOre:     discovery.ActivityMine,
}

// activityCapability gates work that needs a prior discovery.
var activityCapability = map[discovery.Activity]string{
	discovery.ActivityChopWood: "Woodcutting",
	discovery.ActivityFarm:     "Farming",
	discovery.ActivityMine:     "StoneTools",
	discovery.ActivityFish:     "Fishing",
}

// CapabilitySource answers whether a capability is unlocked.
type CapabilitySource interface {
	HasCapability(tag string) bool
}

// Workforce picks one activity per settler per work shift.
type Workforce struct {
	Size   int
	Radius int

	rng *rand.Rand
}

// NewWorkforce creates a workforce with a deterministic schedule.
func NewWorkforce(size, radius int, seed int64) *Workforce {
	return &Workforce{
		Size:   size,
		Radius: radius,
		rng:    rand.New(rand.NewSource(seed + 300)),
	}
}

// Work sends each settler to a random hex within Radius of anchor and
// returns the activities they completed. Settlers who find nothing they
// are able to harvest come back empty-handed.
func (w *Workforce) Work(m *world.Map, anchor world.HexCoord, caps CapabilitySource) []discovery.Activity {
	if w == nil || m == nil || w.Size <= 0 {
		return nil
	}
	area := world.Within(anchor, w.Radius)
	if len(area) == 0 {
		return nil
	}

	var done []discovery.Activity
	for i := 0; i < w.Size; i++ {
		hex := m.Get(area[w.rng.Intn(len(area))])
		if hex == nil {
			continue
		}
		options := harvestable(hex, caps)
		if len(options) == 0 {
			continue
		}
		done = append(done, options[w.rng.Intn(len(options))])
	}
	return done
}

// harvestable lists the activities available on a hex, in a stable order.
func harvestable(hex *world.Hex, caps CapabilitySource) []discovery.Activity {
	res := make([]world.ResourceType, 0, len(hex.Resources))
	for r, amount := range hex.Resources {
		if amount >= 1 {
			res = append(res, r)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })

	var out []discovery.Activity
	for _, r := range res {
		act, ok := resourceActivity[r]
		if !ok {
			continue
		}
		if need, gated := activityCapability[act]; gated && (caps == nil || !caps.HasCapability(need)) {
			continue
		}
		out = append(out, act)
	}
	return out
}
