package world

import (
	"errors"
	"fmt"
	"image/color"
	"sort"

	"github.com/zyedidia/generic/mapset"
)

// DefaultColor is the colour every cell starts with.
var DefaultColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Grid owns every cell and chunk of a map. Its size is fixed at construction.
//
// A Grid is not safe for concurrent use. Callers that edit from several
// goroutines must hold one lock across each mutation, since a single call can
// cascade into neighboring cells.
type Grid struct {
	width, height            int
	chunkSizeX, chunkSizeZ   int
	chunkCountX, chunkCountZ int

	metrics MetricsProvider
	cells   []Cell
	chunks  []Chunk
	dirty   mapset.Set[int]
}

// NewGrid builds a width×height grid split into chunks of chunkSizeX×chunkSizeZ
// cells. Chunks along the east and north edges may be partial. Every chunk
// starts dirty so the first flush draws the whole map.
func NewGrid(width, height, chunkSizeX, chunkSizeZ int, m MetricsProvider) (*Grid, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("grid size %dx%d: dimensions must be positive", width, height)
	}
	if chunkSizeX <= 0 || chunkSizeZ <= 0 {
		return nil, fmt.Errorf("chunk size %dx%d: dimensions must be positive", chunkSizeX, chunkSizeZ)
	}
	if m == nil {
		return nil, errors.New("grid metrics: provider is nil")
	}

	g := &Grid{
		width:       width,
		height:      height,
		chunkSizeX:  chunkSizeX,
		chunkSizeZ:  chunkSizeZ,
		chunkCountX: (width + chunkSizeX - 1) / chunkSizeX,
		chunkCountZ: (height + chunkSizeZ - 1) / chunkSizeZ,
		metrics:     m,
		dirty:       mapset.New[int](),
	}
	g.createChunks()
	g.createCells()
	return g, nil
}

func (g *Grid) createChunks() {
	g.chunks = make([]Chunk, g.chunkCountX*g.chunkCountZ)
	for i, z := 0, 0; z < g.chunkCountZ; z++ {
		for x := 0; x < g.chunkCountX; x, i = x+1, i+1 {
			ch := &g.chunks[i]
			ch.grid = g
			ch.index = i
			ch.x, ch.z = x, z
			ch.cells = make([]int, g.chunkSizeX*g.chunkSizeZ)
			for slot := range ch.cells {
				ch.cells[slot] = noNeighbor
			}
			ch.MarkDirty()
		}
	}
}

func (g *Grid) createCells() {
	g.cells = make([]Cell, g.width*g.height)
	for i, z := 0, 0; z < g.height; z++ {
		for x := 0; x < g.width; x, i = x+1, i+1 {
			g.createCell(x, z, i)
		}
	}
}

// createCell places the cell at offset (x, z) and links it to the neighbors
// that already exist: west in the same row, and the two cells below. Odd
// rows are shifted east, so which cells sit below depends on row parity.
func (g *Grid) createCell(x, z, i int) {
	c := &g.cells[i]
	c.grid = g
	c.index = i
	c.chunk = noNeighbor
	c.coords = FromOffset(x, z)
	for d := range c.neighbors {
		c.neighbors[d] = noNeighbor
	}
	c.color = DefaultColor
	c.position = CellCenter(x, z, g.metrics)
	c.position.Y = perturbedHeight(g.metrics, 0, c.position)

	if x > 0 {
		g.link(i, W, i-1)
	}
	if z > 0 {
		if z&1 == 0 {
			g.link(i, SE, i-g.width)
			if x > 0 {
				g.link(i, SW, i-g.width-1)
			}
		} else {
			g.link(i, SW, i-g.width)
			if x < g.width-1 {
				g.link(i, SE, i-g.width+1)
			}
		}
	}

	g.addCellToChunk(x, z, c)
}

// link makes b the neighbor of a in direction d and a the neighbor of b in
// the opposite direction. It is the only place adjacency is written.
func (g *Grid) link(a int, d HexDirection, b int) {
	g.cells[a].neighbors[d] = b
	g.cells[b].neighbors[d.Opposite()] = a
}

func (g *Grid) addCellToChunk(x, z int, c *Cell) {
	chunkX := x / g.chunkSizeX
	chunkZ := z / g.chunkSizeZ
	ch := &g.chunks[chunkX+chunkZ*g.chunkCountX]

	localX := x - chunkX*g.chunkSizeX
	localZ := z - chunkZ*g.chunkSizeZ
	ch.AddCell(localX+localZ*g.chunkSizeX, c)
}

func (g *Grid) Width() int               { return g.width }
func (g *Grid) Height() int              { return g.height }
func (g *Grid) ChunkCountX() int         { return g.chunkCountX }
func (g *Grid) ChunkCountZ() int         { return g.chunkCountZ }
func (g *Grid) ChunkSize() (x, z int)    { return g.chunkSizeX, g.chunkSizeZ }
func (g *Grid) Metrics() MetricsProvider { return g.metrics }

// CellCount returns the total number of cells.
func (g *Grid) CellCount() int { return len(g.cells) }

// Cell returns the cell at arena index i, or nil if out of range.
func (g *Grid) Cell(i int) *Cell {
	if i < 0 || i >= len(g.cells) {
		return nil
	}
	return &g.cells[i]
}

// Cells calls fn for every cell in row-major order.
func (g *Grid) Cells(fn func(c *Cell)) {
	for i := range g.cells {
		fn(&g.cells[i])
	}
}

// Chunks calls fn for every chunk in row-major order.
func (g *Grid) Chunks(fn func(ch *Chunk)) {
	for i := range g.chunks {
		fn(&g.chunks[i])
	}
}

// Chunk returns the chunk at index i, or nil if out of range.
func (g *Grid) Chunk(i int) *Chunk {
	if i < 0 || i >= len(g.chunks) {
		return nil
	}
	return &g.chunks[i]
}

// ChunkAt returns the chunk at chunk-grid column x, row z.
func (g *Grid) ChunkAt(x, z int) (*Chunk, bool) {
	if x < 0 || x >= g.chunkCountX || z < 0 || z >= g.chunkCountZ {
		return nil, false
	}
	return &g.chunks[x+z*g.chunkCountX], true
}

// CellAt returns the cell at the given coordinates. ok is false when the
// coordinates fall outside the grid.
func (g *Grid) CellAt(coords HexCoordinates) (*Cell, bool) {
	col, row := coords.ToOffset()
	return g.CellAtOffset(col, row)
}

// CellAtOffset returns the cell at offset column col, row row.
func (g *Grid) CellAtOffset(col, row int) (*Cell, bool) {
	if row < 0 || row >= g.height || col < 0 || col >= g.width {
		return nil, false
	}
	return &g.cells[col+row*g.width], true
}

// CellAtPosition returns the cell under world position p.
func (g *Grid) CellAtPosition(p Vec3) (*Cell, bool) {
	return g.CellAt(FromPosition(p, g.metrics))
}

// DirtyChunks returns the indices of chunks waiting for a rebuild, ascending.
func (g *Grid) DirtyChunks() []int {
	out := make([]int, 0, g.dirty.Size())
	g.dirty.Each(func(i int) {
		out = append(out, i)
	})
	sort.Ints(out)
	return out
}

// Flush rebuilds every dirty chunk exactly once and returns how many were
// rebuilt. Edits made before the call are all visible to t.
func (g *Grid) Flush(t Triangulator) int {
	rebuilt := 0
	for _, i := range g.DirtyChunks() {
		if g.chunks[i].RebuildIfDirty(t) {
			rebuilt++
		}
	}
	return rebuilt
}

// CheckInvariants verifies the structural rules every edit must preserve:
// symmetric neighbor links, paired river ends, mirrored roads, no road
// across a river and no road steeper than one level.
func (g *Grid) CheckInvariants() error {
	var errs []error
	for i := range g.cells {
		c := &g.cells[i]
		for _, d := range AllDirections {
			n := c.Neighbor(d)
			if n != nil && n.Neighbor(d.Opposite()) != c {
				errs = append(errs, fmt.Errorf("cell %v: neighbor %v is not linked back", c, d))
			}
			if c.roads[d] {
				switch {
				case n == nil:
					errs = append(errs, fmt.Errorf("cell %v: road %v leads off the grid", c, d))
				case !n.roads[d.Opposite()]:
					errs = append(errs, fmt.Errorf("cell %v: road %v is not mirrored", c, d))
				case c.HasRiverThroughEdge(d):
					errs = append(errs, fmt.Errorf("cell %v: road %v crosses a river", c, d))
				case c.ElevationDifference(d) > 1:
					errs = append(errs, fmt.Errorf("cell %v: road %v spans %d levels", c, d, c.ElevationDifference(d)))
				}
			}
		}
		if c.hasOutgoingRiver {
			n := c.Neighbor(c.outgoingRiver)
			if n == nil || !n.hasIncomingRiver || n.incomingRiver != c.outgoingRiver.Opposite() {
				errs = append(errs, fmt.Errorf("cell %v: outgoing river %v has no matching inflow", c, c.outgoingRiver))
			}
		}
		if c.hasIncomingRiver {
			n := c.Neighbor(c.incomingRiver)
			if n == nil || !n.hasOutgoingRiver || n.outgoingRiver != c.incomingRiver.Opposite() {
				errs = append(errs, fmt.Errorf("cell %v: incoming river %v has no matching outflow", c, c.incomingRiver))
			}
		}
		if c.hasIncomingRiver && c.hasOutgoingRiver && c.incomingRiver == c.outgoingRiver {
			errs = append(errs, fmt.Errorf("cell %v: river enters and leaves through %v", c, c.incomingRiver))
		}
	}
	for i := range g.chunks {
		if g.chunks[i].dirty != g.dirty.Has(i) {
			errs = append(errs, fmt.Errorf("chunk %v: dirty flag out of sync with dirty set", &g.chunks[i]))
		}
	}
	return errors.Join(errs...)
}
