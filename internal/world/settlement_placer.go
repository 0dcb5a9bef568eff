// Settlement placement: finds where the settlement's anchor hex goes when
// none is configured.
package world

import (
	"math"
	"sort"
)

// AnchorCandidate is a scored settlement location.
type AnchorCandidate struct {
	Coord HexCoord
	Score float64 // Desirability score
}

// RankAnchors scores every land hex and returns the candidates sorted by
// desirability, best first. Equal scores prefer hexes nearer the map center,
// then lower q, then lower r, so the ranking is deterministic.
func RankAnchors(m *Map, radius int) []AnchorCandidate {
	if m == nil {
		return nil
	}
	var out []AnchorCandidate
	for coord, hex := range m.Hexes {
		if s := settlementScore(m, coord, hex, radius); s > 0 {
			out = append(out, AnchorCandidate{Coord: coord, Score: s})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		da, db := Distance(HexCoord{}, a.Coord), Distance(HexCoord{}, b.Coord)
		if da != db {
			return da < db
		}
		if a.Coord.Q != b.Coord.Q {
			return a.Coord.Q < b.Coord.Q
		}
		return a.Coord.R < b.Coord.R
	})
	return out
}

// FindAnchor returns the best settlement location, or the origin if the
// map has no land.
func FindAnchor(m *Map, radius int) HexCoord {
	if ranked := RankAnchors(m, radius); len(ranked) > 0 {
		return ranked[0].Coord
	}
	return HexCoord{}
}

// settlementScore evaluates how desirable a hex is for the settlement.
// Prefers: varied biomes within radius (more to discover), water access,
// fertile plains, and resources underfoot.
func settlementScore(m *Map, coord HexCoord, hex *Hex, radius int) float64 {
	score := 0.0

	switch hex.Terrain {
	case TerrainPlains:
		score += 3.0
	case TerrainCoast:
		score += 4.0
	case TerrainRiver:
		score += 3.5
	case TerrainForest:
		score += 1.5
	case TerrainDesert, TerrainSwamp, TerrainTundra:
		score += 0.5
	case TerrainMountain:
		score += 0.3
	default:
		return 0
	}

	// Bonus for distinct biome tags in reach of the discovery scan.
	biomes := NewBiomeSet()
	for _, c := range Within(coord, radius) {
		if nh := m.Get(c); nh != nil {
			for _, b := range nh.Terrain.Biomes() {
				biomes.Add(b)
			}
		}
	}
	score += float64(len(biomes)) * 0.6

	// Bonus for nearby river or coast (water access).
	for _, nc := range coord.Neighbors() {
		nh := m.Get(nc)
		if nh == nil {
			continue
		}
		if nh.Terrain == TerrainRiver || nh.Terrain == TerrainCoast {
			score += 0.5
			break
		}
	}

	totalRes := 0.0
	for _, v := range hex.Resources {
		totalRes += v
	}
	score += math.Log1p(totalRes) * 0.2

	// Keep away from the rim so the scan stays on the map.
	if Distance(HexCoord{}, coord)+radius > m.Radius {
		score *= 0.5
	}

	return score
}
