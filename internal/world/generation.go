// World generation using layered simplex noise.
// Generates elevation and moisture, floods low ground, then traces rivers and
// seeds settlements. Everything is applied through the cell mutators so the
// river and road rules hold for generated maps too.
package world

import (
	"image/color"
	"math"
	"math/rand"
	"sort"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// GenConfig holds terrain generation parameters.
type GenConfig struct {
	Seed         int64   `json:"seed"`          // Random seed (0 = random)
	MaxElevation int     `json:"max_elevation"` // Highest elevation level produced
	WaterLevel   int     `json:"water_level"`   // Water level applied to every cell
	Frequency    float64 `json:"frequency"`     // Base noise frequency in cells
	Octaves      int     `json:"octaves"`       // Noise layers
	Rivers       int     `json:"rivers"`        // Upper bound on river sources
	Settlements  bool    `json:"settlements"`   // Place settlements, farms and roads
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Seed:         0,
		MaxElevation: 6,
		WaterLevel:   2,
		Frequency:    0.08,
		Octaves:      4,
		Rivers:       8,
		Settlements:  true,
	}
}

// SmallTestConfig returns a gentle, deterministic configuration for tests.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Seed:         42,
		MaxElevation: 4,
		WaterLevel:   1,
		Frequency:    0.12,
		Octaves:      3,
		Rivers:       3,
		Settlements:  true,
	}
}

// Terrain is the land cover band a generated cell falls into.
type Terrain uint8

const (
	TerrainWater Terrain = iota // Below the water level
	TerrainSand                 // Shoreline, at the water level
	TerrainGrass                // Dry lowland
	TerrainMud                  // Wet lowland
	TerrainStone                // Highland
	TerrainSnow                 // Peaks
)

var terrainColors = [...]color.RGBA{
	TerrainWater: {R: 46, G: 94, B: 170, A: 255},
	TerrainSand:  {R: 230, G: 214, B: 144, A: 255},
	TerrainGrass: {R: 96, G: 168, B: 72, A: 255},
	TerrainMud:   {R: 110, G: 92, B: 64, A: 255},
	TerrainStone: {R: 136, G: 136, B: 136, A: 255},
	TerrainSnow:  {R: 240, G: 244, B: 250, A: 255},
}

// TerrainColor returns the palette colour for a terrain band.
func TerrainColor(t Terrain) color.RGBA {
	if int(t) >= len(terrainColors) {
		return DefaultColor
	}
	return terrainColors[t]
}

// TerrainName returns a human-readable name for a terrain band.
func TerrainName(t Terrain) string {
	switch t {
	case TerrainWater:
		return "Water"
	case TerrainSand:
		return "Sand"
	case TerrainGrass:
		return "Grass"
	case TerrainMud:
		return "Mud"
	case TerrainStone:
		return "Stone"
	case TerrainSnow:
		return "Snow"
	default:
		return "Unknown"
	}
}

// GenResult summarises a generated map.
type GenResult struct {
	Seed        int64
	Terrain     []Terrain // Indexed by cell arena index
	Rivers      int       // Rivers traced
	RiverCells  int       // Cells carrying a river
	Settlements []SettlementSeed
}

// TerrainCounts returns a summary of terrain distribution.
func (r *GenResult) TerrainCounts() map[Terrain]int {
	counts := make(map[Terrain]int)
	for _, t := range r.Terrain {
		counts[t]++
	}
	return counts
}

// Generate shapes every cell of g. The same seed on the same grid size always
// produces the same map.
func Generate(g *Grid, cfg GenConfig) *GenResult {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	octaves := cfg.Octaves
	if octaves < 1 {
		octaves = 1
	}

	// Two noise generators for independent layers.
	elevNoise := opensimplex.NewNormalized(seed)
	moistNoise := opensimplex.NewNormalized(seed + 1)

	res := &GenResult{
		Seed:    seed,
		Terrain: make([]Terrain, g.CellCount()),
	}

	halfW := float64(g.width) / 2
	halfH := float64(g.height) * math.Sqrt(3.0) / 4

	g.Cells(func(c *Cell) {
		col, row := c.coords.ToOffset()

		// Offset rows are shifted half a cell; rows are sqrt(3)/2 apart.
		x := float64(col) + float64(row&1)*0.5
		y := float64(row) * math.Sqrt(3.0) / 2.0

		elev := octaveNoise(elevNoise, x, y, octaves, cfg.Frequency, 0.5)
		moist := octaveNoise(moistNoise, x, y, octaves, cfg.Frequency*0.75, 0.5)

		// Continental shaping: lower the land toward the map border.
		dx := (x - halfW) / halfW
		dy := (y - halfH) / halfH
		dist := math.Sqrt(dx*dx+dy*dy) / math.Sqrt2
		falloff := 1.0 - math.Pow(dist, 3.5)
		if falloff < 0 {
			falloff = 0
		}
		elev *= falloff

		level := int(math.Round(elev * float64(cfg.MaxElevation)))
		c.SetElevation(level)
		c.SetWaterLevel(cfg.WaterLevel)

		t := deriveTerrain(level, cfg.WaterLevel, cfg.MaxElevation, moist)
		res.Terrain[c.index] = t
		c.SetColor(TerrainColor(t))

		// Vegetation follows moisture on dry land.
		if t == TerrainGrass || t == TerrainMud {
			c.SetPlantLevel(int(moist * 3.99))
		}
	})

	res.Rivers = placeRivers(g, cfg, seed)
	g.Cells(func(c *Cell) {
		if c.HasRiver() {
			res.RiverCells++
		}
	})

	if cfg.Settlements {
		res.Settlements = PlaceSettlements(g, res.Terrain, seed)
		ApplySettlements(g, res.Settlements)
	}
	return res
}

// deriveTerrain determines the terrain band from elevation and moisture.
func deriveTerrain(elevation, waterLevel, maxElevation int, moisture float64) Terrain {
	switch {
	case elevation < waterLevel:
		return TerrainWater
	case elevation == waterLevel:
		return TerrainSand
	case elevation >= maxElevation && maxElevation > waterLevel+2:
		return TerrainSnow
	case elevation >= waterLevel+3:
		return TerrainStone
	case moisture > 0.6:
		return TerrainMud
	default:
		return TerrainGrass
	}
}

// placeRivers starts rivers on high dry cells and lets them run downhill.
func placeRivers(g *Grid, cfg GenConfig, seed int64) int {
	if cfg.Rivers <= 0 {
		return 0
	}
	rng := rand.New(rand.NewSource(seed + 100))

	// Highland cells are river sources.
	var sources []int
	g.Cells(func(c *Cell) {
		if !c.IsUnderwater() && c.elevation >= cfg.WaterLevel+2 {
			sources = append(sources, c.index)
		}
	})

	rng.Shuffle(len(sources), func(i, j int) {
		sources[i], sources[j] = sources[j], sources[i]
	})
	if len(sources) > cfg.Rivers {
		sources = sources[:cfg.Rivers]
	}
	sort.Ints(sources)

	traced := 0
	for _, start := range sources {
		if traceRiver(g, &g.cells[start]) > 0 {
			traced++
		}
	}
	return traced
}

// traceRiver follows the steepest valid descent from a source cell until the
// river reaches water, meets another river or runs out of downhill path.
// Returns the number of river segments laid.
func traceRiver(g *Grid, start *Cell) int {
	if start.HasRiver() {
		return 0
	}
	current := start
	visited := make(map[int]bool)
	segments := 0
	maxSteps := g.width + g.height

	for step := 0; step < maxSteps; step++ {
		visited[current.index] = true
		if current.IsUnderwater() {
			break
		}

		// Find the lowest neighbor the river may flow into.
		var best *Cell
		bestDir := NE
		for _, d := range AllDirections {
			n := current.Neighbor(d)
			if n == nil || visited[n.index] || !current.IsValidRiverDestination(n) {
				continue
			}
			if n.HasOutgoingRiver() || n.HasIncomingRiver() {
				continue
			}
			if best == nil || n.elevation < best.elevation {
				best = n
				bestDir = d
			}
		}
		if best == nil || best.elevation > current.elevation {
			break // No downhill path; a lake would form here.
		}
		if !current.SetOutgoingRiver(bestDir) {
			break
		}
		segments++
		current = best
	}
	return segments
}

// octaveNoise generates fractal noise by layering multiple frequencies.
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
