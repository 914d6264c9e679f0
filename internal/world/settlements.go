// Settlement placement: finds suitable cells and seeds urban, farm and road
// features around them.
package world

import (
	"math/rand"
	"sort"
)

// SettlementSeed holds the parameters for an initial settlement placement.
type SettlementSeed struct {
	Coord HexCoordinates
	Size  SettlementSize
	Score float64 // Desirability score
}

// SettlementSize categorizes settlement scale.
type SettlementSize uint8

const (
	SizeVillage SettlementSize = iota
	SizeTown
	SizeCity
)

// UrbanLevel returns the urban feature density a settlement of this size gets.
func (s SettlementSize) UrbanLevel() int {
	return int(s) + 1
}

// PlaceSettlements scores every dry cell and picks settlement sites, best
// first, keeping a minimum distance between them. terrain is indexed by cell
// arena index.
func PlaceSettlements(g *Grid, terrain []Terrain, seed int64) []SettlementSeed {
	rng := rand.New(rand.NewSource(seed + 200))

	type scored struct {
		coord HexCoordinates
		score float64
	}
	var candidates []scored

	g.Cells(func(c *Cell) {
		if c.IsUnderwater() {
			return
		}
		s := settlementScore(c, terrain)
		if s > 0 {
			candidates = append(candidates, scored{c.coords, s})
		}
	})

	// Sort by score descending; ties keep row-major order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	// Counts scale with map size.
	cells := g.CellCount()
	numCities := 1 + cells/600 + rng.Intn(2)
	numTowns := cells/200 + rng.Intn(2)
	numVillages := cells/80 + rng.Intn(3)

	var seeds []SettlementSeed
	taken := make(map[HexCoordinates]bool)

	place := func(size SettlementSize, want, minDist int) {
		for _, c := range candidates {
			if countBySize(seeds, size) >= want {
				return
			}
			if taken[c.coord] || tooClose(c.coord, seeds, minDist) {
				continue
			}
			taken[c.coord] = true
			seeds = append(seeds, SettlementSeed{Coord: c.coord, Size: size, Score: c.score})
		}
	}
	place(SizeCity, numCities, 8)
	place(SizeTown, numTowns, 4)
	place(SizeVillage, numVillages, 2)

	return seeds
}

// ApplySettlements writes settlement features into the grid: urban levels on
// the site, walls around cities, farms on the surrounding dry land and roads
// out to every neighbor the road rules allow.
func ApplySettlements(g *Grid, seeds []SettlementSeed) {
	for _, s := range seeds {
		c, ok := g.CellAt(s.Coord)
		if !ok {
			continue
		}
		c.SetUrbanLevel(s.Size.UrbanLevel())
		c.SetPlantLevel(0)
		if s.Size == SizeCity {
			c.SetWalled(true)
		}
		for _, d := range AllDirections {
			n := c.Neighbor(d)
			if n == nil || n.IsUnderwater() {
				continue
			}
			if n.urbanLevel == 0 && n.farmLevel < int(s.Size)+1 {
				n.SetFarmLevel(int(s.Size) + 1)
			}
			c.AddRoad(d)
		}
	}
}

// settlementScore evaluates how desirable a cell is for a settlement.
// Prefers flat dry lowland next to water, with varied surroundings.
func settlementScore(c *Cell, terrain []Terrain) float64 {
	score := 0.0

	switch terrain[c.index] {
	case TerrainGrass:
		score += 3.0
	case TerrainSand:
		score += 2.5 // Harbors
	case TerrainMud:
		score += 1.5
	case TerrainStone:
		score += 0.5
	default:
		return 0
	}
	if c.HasRiver() {
		score += 1.0 // Freshwater
	}

	kinds := make(map[Terrain]bool)
	water := false
	for _, d := range AllDirections {
		n := c.Neighbor(d)
		if n == nil {
			continue
		}
		kinds[terrain[n.index]] = true
		if n.IsUnderwater() || n.HasRiver() {
			water = true
		}
		if et, _ := c.EdgeType(d); et == EdgeFlat {
			score += 0.2 // Room to build
		}
	}
	score += float64(len(kinds)) * 0.3
	if water {
		score += 0.5
	}

	return score
}

func tooClose(coord HexCoordinates, existing []SettlementSeed, minDist int) bool {
	for _, s := range existing {
		if Distance(coord, s.Coord) < minDist {
			return true
		}
	}
	return false
}

func countBySize(seeds []SettlementSeed, size SettlementSize) int {
	n := 0
	for _, s := range seeds {
		if s.Size == size {
			n++
		}
	}
	return n
}
