package world

import "fmt"

// Triangulator turns a chunk's cells into renderable geometry. The grid calls
// it at most once per dirty chunk per flush.
type Triangulator interface {
	Triangulate(c *Chunk)
}

// Chunk is a fixed rectangular block of cells that is redrawn as a unit.
// Any number of edits inside a chunk between two flushes cost one rebuild.
type Chunk struct {
	grid     *Grid
	index    int
	x, z     int
	cells    []int // arena index per local slot; noNeighbor where unused
	dirty    bool
	rebuilds uint64
}

// Index returns the chunk's position in the grid's chunk array (row-major).
func (ch *Chunk) Index() int { return ch.index }

// Coord returns the chunk's column and row in the chunk grid.
func (ch *Chunk) Coord() (x, z int) { return ch.x, ch.z }

// IsDirty reports whether the chunk is waiting for a rebuild.
func (ch *Chunk) IsDirty() bool { return ch.dirty }

// Rebuilds returns how many times the chunk has been triangulated.
func (ch *Chunk) Rebuilds() uint64 { return ch.rebuilds }

// AddCell binds cell into local slot index and points the cell back at this
// chunk. Only used while the grid is being built.
func (ch *Chunk) AddCell(index int, cell *Cell) {
	ch.cells[index] = cell.index
	cell.chunk = ch.index
}

// Cells returns the chunk's cells in local slot order. Slots past the grid
// edge in a partial chunk are skipped.
func (ch *Chunk) Cells() []*Cell {
	out := make([]*Cell, 0, len(ch.cells))
	for _, idx := range ch.cells {
		if idx == noNeighbor {
			continue
		}
		out = append(out, &ch.grid.cells[idx])
	}
	return out
}

// MarkDirty flags the chunk for rebuild. Repeated calls before the next
// rebuild have no further effect.
func (ch *Chunk) MarkDirty() {
	if ch.dirty {
		return
	}
	ch.dirty = true
	ch.grid.dirty.Put(ch.index)
}

// RebuildIfDirty triangulates the chunk if it is dirty and clears the flag.
// It reports whether a rebuild happened.
func (ch *Chunk) RebuildIfDirty(t Triangulator) bool {
	if !ch.dirty {
		return false
	}
	if t != nil {
		t.Triangulate(ch)
	}
	ch.dirty = false
	ch.rebuilds++
	ch.grid.dirty.Remove(ch.index)
	return true
}

func (ch *Chunk) String() string {
	return fmt.Sprintf("(%d, %d)", ch.x, ch.z)
}
