package discovery

import "github.com/talgya/crossroads/internal/world"

// MaxActivityFactor caps how far exceeding an activity requirement scales
// the base probability.
const MaxActivityFactor = 2.0

// ActivitySource reports lifetime activity counts.
type ActivitySource interface {
	Count(kind Activity) int
}

// Probability returns the per-cycle chance for def before the repetition
// bonus. Zero means the discovery is not eligible this cycle.
func Probability(def Definition, biomes world.BiomeSet, activity ActivitySource) float64 {
	switch def.Kind {
	case KindBiome:
		if !biomes.HasAll(def.RequiredBiomes) {
			return 0
		}
		return def.BaseProbability

	case KindActivity:
		if def.RequiredActivityCount <= 0 {
			return 0
		}
		count := activity.Count(def.RequiredActivity)
		if count < def.RequiredActivityCount {
			return 0
		}
		return def.BaseProbability * ActivityFactor(count, def.RequiredActivityCount)

	case KindSpontaneous:
		return def.BaseProbability
	}
	return 0
}

// ActivityFactor is count/required, capped at MaxActivityFactor.
func ActivityFactor(count, required int) float64 {
	return min(MaxActivityFactor, float64(count)/float64(required))
}

// FinalProbability adds the repetition bonus for the given number of
// eligible cycles and clamps the result to [0, 1].
func FinalProbability(p float64, eligibleCycles int, bonus float64) float64 {
	return clamp01(p + float64(eligibleCycles)*bonus)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
