// Package mesh stands in for the renderer's triangulation step. The Builder
// walks a chunk the way a triangulator would (each cell, each owned edge)
// and records a summary of what it would have produced.
package mesh

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/talgya/hexterrain/internal/world"
)

// ChunkMesh summarises the last triangulation of one chunk.
type ChunkMesh struct {
	Chunk      int       `json:"chunk"`
	X          int       `json:"x"`
	Z          int       `json:"z"`
	Version    uint64    `json:"version"`
	Cells      int       `json:"cells"`
	Underwater int       `json:"underwater"`
	Rivers     int       `json:"river_segments"`
	Roads      int       `json:"road_segments"`
	Flat       int       `json:"flat_edges"`
	Slopes     int       `json:"slope_edges"`
	Cliffs     int       `json:"cliff_edges"`
	Walls      int       `json:"wall_edges"`
	MinY       float64   `json:"min_y"`
	MaxY       float64   `json:"max_y"`
	BuiltAt    time.Time `json:"built_at"`
}

// Builder implements world.Triangulator. Triangulate is called with the
// grid locked; readers may call Mesh and Meshes from any goroutine.
type Builder struct {
	mu     sync.RWMutex
	meshes map[int]ChunkMesh
	builds uint64
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{meshes: make(map[int]ChunkMesh)}
}

// Triangulate rebuilds the summary for ch.
func (b *Builder) Triangulate(ch *world.Chunk) {
	cx, cz := ch.Coord()
	m := ChunkMesh{
		Chunk:   ch.Index(),
		X:       cx,
		Z:       cz,
		MinY:    math.Inf(1),
		MaxY:    math.Inf(-1),
		BuiltAt: time.Now(),
	}

	for _, c := range ch.Cells() {
		m.Cells++
		y := c.Position().Y
		if c.IsUnderwater() {
			m.Underwater++
			y = math.Max(y, c.WaterSurfaceY())
		}
		m.MinY = math.Min(m.MinY, y)
		m.MaxY = math.Max(m.MaxY, y)

		if c.HasOutgoingRiver() {
			m.Rivers++
		}
		// Edge connections are owned by the cell on their NE, E or SE side.
		for d := world.NE; d <= world.SE; d++ {
			n := c.Neighbor(d)
			if n == nil {
				continue
			}
			switch c.EdgeTypeWith(n) {
			case world.EdgeFlat:
				m.Flat++
			case world.EdgeSlope:
				m.Slopes++
			default:
				m.Cliffs++
			}
			if c.HasRoadThroughEdge(d) {
				m.Roads++
			}
			if c.Walled() != n.Walled() {
				m.Walls++
			}
		}
	}
	if m.Cells == 0 {
		m.MinY, m.MaxY = 0, 0
	}

	b.mu.Lock()
	b.builds++
	m.Version = b.builds
	b.meshes[m.Chunk] = m
	b.mu.Unlock()
}

// Mesh returns the latest summary for a chunk.
func (b *Builder) Mesh(chunk int) (ChunkMesh, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	m, ok := b.meshes[chunk]
	return m, ok
}

// Meshes returns every summary ordered by chunk index.
func (b *Builder) Meshes() []ChunkMesh {
	b.mu.RLock()
	out := make([]ChunkMesh, 0, len(b.meshes))
	for _, m := range b.meshes {
		out = append(out, m)
	}
	b.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Chunk < out[j].Chunk })
	return out
}

// Builds returns the total number of triangulations performed.
func (b *Builder) Builds() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.builds
}
