// World generation using layered simplex noise: elevation, rainfall and
// temperature fields decide terrain, terrain decides resources.
package world

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds world generation parameters.
type GenConfig struct {
	Radius      int     // Hex grid radius
	Seed        int64   // Random seed (0 = random)
	SeaLevel    float64 // Elevation threshold for ocean
	MountainLvl float64 // Elevation threshold for mountains
}

// DefaultGenConfig returns the configuration used for a normal session.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Radius:      22,
		SeaLevel:    0.25,
		MountainLvl: 0.72,
	}
}

// SmallTestConfig returns a tiny world for tests.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Radius:      5,
		Seed:        42,
		SeaLevel:    0.30,
		MountainLvl: 0.75,
	}
}

// Generate creates a world map with terrain and resources.
func Generate(cfg GenConfig) *Map {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	elevNoise := opensimplex.NewNormalized(seed)
	rainNoise := opensimplex.NewNormalized(seed + 1)
	tempNoise := opensimplex.NewNormalized(seed + 2)

	m := NewMap(cfg.Radius)
	for _, coord := range Within(HexCoord{}, cfg.Radius) {
		// Axial → cartesian for noise sampling.
		x := float64(coord.Q) + float64(coord.R)*0.5
		y := float64(coord.R) * math.Sqrt(3.0) / 2.0

		elev := octaveNoise(elevNoise, x, y, 4, 0.08, 0.5)
		rain := octaveNoise(rainNoise, x, y, 3, 0.06, 0.5)
		temp := octaveNoise(tempNoise, x, y, 3, 0.05, 0.5)

		// Sink the rim into ocean.
		dist := math.Sqrt(x*x+y*y) / float64(max(cfg.Radius, 1))
		elev *= math.Max(0, 1.0-math.Pow(dist, 3.5))

		temp = temp*0.6 + (1.0-math.Abs(y)/float64(max(cfg.Radius, 1)))*0.3 + (1.0-elev)*0.1

		terrain := deriveTerrain(elev, rain, temp, cfg)
		m.Set(&Hex{
			Coord:       coord,
			Terrain:     terrain,
			Elevation:   elev,
			Rainfall:    rain,
			Temperature: temp,
			Resources:   makeResources(terrain, elev, rain),
		})
	}

	markCoastalHexes(m)
	placeRivers(m, seed)
	return m
}

func deriveTerrain(elev, rain, temp float64, cfg GenConfig) Terrain {
	switch {
	case elev < cfg.SeaLevel:
		return TerrainOcean
	case elev > cfg.MountainLvl:
		return TerrainMountain
	case temp < 0.25:
		return TerrainTundra
	case rain < 0.25 && temp > 0.5:
		return TerrainDesert
	case rain > 0.7 && elev < 0.45:
		return TerrainSwamp
	case rain > 0.45 && elev > 0.45:
		return TerrainForest
	}
	return TerrainPlains
}

func makeResources(terrain Terrain, elev, rain float64) map[ResourceType]float64 {
	res := make(map[ResourceType]float64)
	switch terrain {
	case TerrainPlains:
		res[ResourceGrain] = 80 + rain*40
		res[ResourceBerries] = 10
	case TerrainForest:
		res[ResourceTimber] = 100
		res[ResourceBerries] = 30
		res[ResourceFurs] = 20
	case TerrainMountain:
		res[ResourceStone] = 80
		res[ResourceOre] = 60 + elev*30
	case TerrainCoast:
		res[ResourceFish] = 80
	case TerrainRiver:
		res[ResourceFish] = 50
		res[ResourceClay] = 40
	case TerrainSwamp:
		res[ResourceReeds] = 60
		res[ResourceClay] = 20
	case TerrainTundra:
		res[ResourceFurs] = 40
		res[ResourceStone] = 15
	case TerrainDesert:
		res[ResourceStone] = 30
	}
	return res
}

// markCoastalHexes turns low plains and forest next to ocean into coast.
func markCoastalHexes(m *Map) {
	var toMark []HexCoord
	for coord, hex := range m.Hexes {
		if hex.Terrain != TerrainPlains && hex.Terrain != TerrainForest {
			continue
		}
		if hex.Elevation >= 0.5 {
			continue
		}
		for _, n := range coord.Neighbors() {
			if nh := m.Get(n); nh != nil && nh.Terrain == TerrainOcean {
				toMark = append(toMark, coord)
				break
			}
		}
	}
	for _, coord := range toMark {
		hex := m.Get(coord)
		hex.Terrain = TerrainCoast
		hex.Resources = makeResources(TerrainCoast, hex.Elevation, hex.Rainfall)
	}
}

// placeRivers traces a handful of rivers downhill from highland sources.
func placeRivers(m *Map, seed int64) {
	rng := rand.New(rand.NewSource(seed + 100))

	var sources []HexCoord
	for _, coord := range Within(HexCoord{}, m.Radius) {
		if hex := m.Get(coord); hex != nil && hex.Elevation > 0.65 && hex.Terrain != TerrainOcean {
			sources = append(sources, coord)
		}
	}

	n := min(max(len(sources)/8, 2), 10)
	rng.Shuffle(len(sources), func(i, j int) {
		sources[i], sources[j] = sources[j], sources[i]
	})
	if len(sources) > n {
		sources = sources[:n]
	}
	for _, start := range sources {
		traceRiver(m, start)
	}
}

// traceRiver follows steepest descent until ocean or a local minimum.
func traceRiver(m *Map, start HexCoord) {
	current := start
	visited := make(map[HexCoord]bool)

	for step := 0; step < 50; step++ {
		visited[current] = true
		hex := m.Get(current)
		if hex == nil || hex.Terrain == TerrainOcean {
			return
		}
		if hex.Terrain != TerrainMountain && hex.Terrain != TerrainCoast {
			hex.Terrain = TerrainRiver
			hex.Resources = makeResources(TerrainRiver, hex.Elevation, hex.Rainfall)
		}

		next, found := current, false
		lowest := hex.Elevation
		for _, nc := range current.Neighbors() {
			nh := m.Get(nc)
			if visited[nc] || nh == nil {
				continue
			}
			if nh.Elevation < lowest {
				lowest = nh.Elevation
				next, found = nc, true
			}
		}
		if !found {
			return
		}
		current = next
	}
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total, amplitude, maxVal := 0.0, 1.0, 0.0
	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}
	return total / maxVal
}

// TerrainCounts returns the terrain distribution of a map.
func TerrainCounts(m *Map) map[Terrain]int {
	counts := make(map[Terrain]int)
	for _, hex := range m.Hexes {
		counts[hex.Terrain]++
	}
	return counts
}

// TerrainName returns a human-readable name for a terrain type.
func TerrainName(t Terrain) string {
	switch t {
	case TerrainPlains:
		return "Plains"
	case TerrainForest:
		return "Forest"
	case TerrainMountain:
		return "Mountain"
	case TerrainCoast:
		return "Coast"
	case TerrainRiver:
		return "River"
	case TerrainDesert:
		return "Desert"
	case TerrainSwamp:
		return "Swamp"
	case TerrainTundra:
		return "Tundra"
	case TerrainOcean:
		return "Ocean"
	default:
		return "Unknown"
	}
}
