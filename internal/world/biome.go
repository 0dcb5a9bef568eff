package world

import (
	"errors"
	"sort"
)

// ErrMapNotReady is returned by the sampler before a map has been generated.
var ErrMapNotReady = errors.New("world map not ready")

// Biome is a coarse environment tag read by discovery rules.
type Biome string

const (
	BiomeGrass  Biome = "Grass"
	BiomeForest Biome = "Forest"
	BiomeStone  Biome = "Stone"
	BiomeSand   Biome = "Sand"
	BiomeWater  Biome = "Water"
	BiomeClay   Biome = "Clay"
	BiomeMarsh  Biome = "Marsh"
	BiomeSnow   Biome = "Snow"
	BiomeOcean  Biome = "Ocean"
)

// terrainBiomes lists the tags a hex of each terrain contributes.
var terrainBiomes = map[Terrain][]Biome{
	TerrainPlains:   {BiomeGrass},
	TerrainForest:   {BiomeForest, BiomeGrass},
	TerrainMountain: {BiomeStone},
	TerrainCoast:    {BiomeSand, BiomeWater},
	TerrainRiver:    {BiomeWater, BiomeClay, BiomeGrass},
	TerrainDesert:   {BiomeSand, BiomeStone},
	TerrainSwamp:    {BiomeMarsh, BiomeWater},
	TerrainTundra:   {BiomeSnow, BiomeStone},
	TerrainOcean:    {BiomeOcean, BiomeWater},
}

// Biomes returns the biome tags contributed by a terrain type.
func (t Terrain) Biomes() []Biome {
	return terrainBiomes[t]
}

// Known reports whether b is a tag some terrain contributes.
func (b Biome) Known() bool {
	for _, tags := range terrainBiomes {
		for _, t := range tags {
			if t == b {
				return true
			}
		}
	}
	return false
}

// BiomeSet is a set of biome tags.
type BiomeSet map[Biome]struct{}

// NewBiomeSet builds a set from the given tags.
func NewBiomeSet(tags ...Biome) BiomeSet {
	s := make(BiomeSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Add inserts a tag.
func (s BiomeSet) Add(b Biome) {
	s[b] = struct{}{}
}

// Has reports whether the tag is present.
func (s BiomeSet) Has(b Biome) bool {
	_, ok := s[b]
	return ok
}

// HasAll reports whether every tag in want is present. An empty want is
// always satisfied.
func (s BiomeSet) HasAll(want []Biome) bool {
	for _, b := range want {
		if !s.Has(b) {
			return false
		}
	}
	return true
}

// Sorted returns the tags in lexical order.
func (s BiomeSet) Sorted() []Biome {
	out := make([]Biome, 0, len(s))
	for b := range s {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SampleBiomes collects the biome tags of hexes within radius of anchor,
// visiting only offsets that are multiples of stride on both axes. The
// anchor hex itself is always sampled. Coordinates off the map are ignored.
func (m *Map) SampleBiomes(anchor HexCoord, radius, stride int) (BiomeSet, error) {
	if m == nil || len(m.Hexes) == 0 {
		return nil, ErrMapNotReady
	}
	if stride < 1 {
		stride = 1
	}

	set := make(BiomeSet)
	for _, c := range Within(anchor, radius) {
		dq, dr := c.Q-anchor.Q, c.R-anchor.R
		if dq%stride != 0 || dr%stride != 0 {
			continue
		}
		hex := m.Hexes[c]
		if hex == nil {
			continue
		}
		for _, b := range hex.Terrain.Biomes() {
			set.Add(b)
		}
	}
	return set, nil
}

// TerrainAround counts terrain types within radius of anchor.
func (m *Map) TerrainAround(anchor HexCoord, radius int) map[Terrain]int {
	counts := make(map[Terrain]int)
	for _, c := range Within(anchor, radius) {
		if hex := m.Get(c); hex != nil {
			counts[hex.Terrain]++
		}
	}
	return counts
}
