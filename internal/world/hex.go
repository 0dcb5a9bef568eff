// Package world provides the hex grid the settlement lives on and the
// environment sampler the discovery engine reads biome tags from.
// Uses axial coordinates (q, r).
package world

// HexCoord is a position on the hex grid in axial coordinates.
// The third cube coordinate s is derived: s = -q - r.
type HexCoord struct {
	Q int `json:"q" yaml:"q"`
	R int `json:"r" yaml:"r"`
}

// S returns the implicit third cube coordinate.
func (h HexCoord) S() int {
	return -h.Q - h.R
}

// Terrain types for hex tiles.
type Terrain uint8

const (
	TerrainPlains   Terrain = iota // Open grassland
	TerrainForest                  // Timber, game, berries
	TerrainMountain                // Exposed rock, ore
	TerrainCoast                   // Sand and shallows
	TerrainRiver                   // Fresh water, clay banks
	TerrainDesert                  // Sand, scattered stone
	TerrainSwamp                   // Reeds, peat
	TerrainTundra                  // Snow, furs
	TerrainOcean                   // Deep water
)

// Hex is a single tile on the world map.
type Hex struct {
	Coord   HexCoord `json:"coord"`
	Terrain Terrain  `json:"terrain"`

	// Raw materials present on the tile; drives which activities
	// settlers can perform here.
	Resources map[ResourceType]float64 `json:"resources"`

	Elevation   float64 `json:"elevation"`   // 0.0 (sea level) to 1.0 (peak)
	Rainfall    float64 `json:"rainfall"`    // 0.0 (arid) to 1.0 (soaked)
	Temperature float64 `json:"temperature"` // 0.0 (frozen) to 1.0 (hot)
}

// ResourceType enumerates raw materials found on terrain.
type ResourceType uint8

const (
	ResourceGrain ResourceType = iota
	ResourceTimber
	ResourceStone
	ResourceOre
	ResourceFish
	ResourceClay
	ResourceBerries
	ResourceFurs
	ResourceReeds
)

// HexNeighborDirections defines the six neighbor offsets in axial coordinates.
var HexNeighborDirections = [6]HexCoord{
	{Q: 1, R: 0},
	{Q: 1, R: -1},
	{Q: 0, R: -1},
	{Q: -1, R: 0},
	{Q: -1, R: 1},
	{Q: 0, R: 1},
}

// Neighbors returns the six adjacent hex coordinates.
func (h HexCoord) Neighbors() [6]HexCoord {
	var result [6]HexCoord
	for i, dir := range HexNeighborDirections {
		result[i] = HexCoord{Q: h.Q + dir.Q, R: h.R + dir.R}
	}
	return result
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoord) int {
	return max(abs(a.Q-b.Q), abs(a.R-b.R), abs(a.S()-b.S()))
}

// Within returns every coordinate at most radius steps from center,
// in row-major (q, then r) order.
func Within(center HexCoord, radius int) []HexCoord {
	if radius < 0 {
		return nil
	}
	var out []HexCoord
	for dq := -radius; dq <= radius; dq++ {
		lo := max(-radius, -dq-radius)
		hi := min(radius, -dq+radius)
		for dr := lo; dr <= hi; dr++ {
			out = append(out, HexCoord{Q: center.Q + dq, R: center.R + dr})
		}
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
