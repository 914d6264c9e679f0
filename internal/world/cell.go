package world

import "image/color"

// noNeighbor marks an empty neighbor slot.
const noNeighbor = -1

// Cell is a single grid cell. Cells live in their grid's arena and refer to
// neighbors and their chunk by index.
//
// Mutators never fail loudly: a request that would break a river or road rule
// is rejected and reported by a false return, leaving the cell untouched.
// Every accepted mutation marks the affected chunks dirty.
type Cell struct {
	grid      *Grid
	index     int
	chunk     int
	coords    HexCoordinates
	neighbors [DirectionCount]int

	elevation  int
	waterLevel int
	position   Vec3
	color      color.RGBA

	urbanLevel   int
	farmLevel    int
	plantLevel   int
	specialIndex int
	walled       bool

	hasIncomingRiver bool
	hasOutgoingRiver bool
	incomingRiver    HexDirection
	outgoingRiver    HexDirection
	roads            [DirectionCount]bool
}

// Coordinates returns the cell's axial position.
func (c *Cell) Coordinates() HexCoordinates { return c.coords }

// Index returns the cell's position in the grid arena (row-major).
func (c *Cell) Index() int { return c.index }

// Position returns the cell centre in world space, including the perturbed height.
func (c *Cell) Position() Vec3 { return c.position }

// Chunk returns the chunk that owns this cell.
func (c *Cell) Chunk() *Chunk {
	if c.chunk < 0 {
		return nil
	}
	return &c.grid.chunks[c.chunk]
}

// Neighbor returns the adjacent cell in direction d, or nil at the grid edge.
func (c *Cell) Neighbor(d HexDirection) *Cell {
	if !d.Valid() {
		return nil
	}
	idx := c.neighbors[d]
	if idx == noNeighbor {
		return nil
	}
	return &c.grid.cells[idx]
}

func (c *Cell) Elevation() int    { return c.elevation }
func (c *Cell) WaterLevel() int   { return c.waterLevel }
func (c *Cell) Color() color.RGBA { return c.color }
func (c *Cell) UrbanLevel() int   { return c.urbanLevel }
func (c *Cell) FarmLevel() int    { return c.farmLevel }
func (c *Cell) PlantLevel() int   { return c.plantLevel }
func (c *Cell) SpecialIndex() int { return c.specialIndex }
func (c *Cell) Walled() bool      { return c.walled }

// IsUnderwater reports whether the water level is above the cell's elevation.
func (c *Cell) IsUnderwater() bool {
	return c.waterLevel > c.elevation
}

// SetElevation changes the elevation, then drops any river or road the new
// height makes impossible.
func (c *Cell) SetElevation(v int) bool {
	if c.elevation == v {
		return false
	}
	c.elevation = v
	c.position.Y = perturbedHeight(c.grid.metrics, v, c.position)

	c.validateRivers()
	for _, d := range AllDirections {
		if c.roads[d] && c.ElevationDifference(d) > 1 {
			c.setRoad(d, false)
		}
	}

	c.refresh()
	return true
}

// SetWaterLevel changes the water level and revalidates both rivers.
func (c *Cell) SetWaterLevel(v int) bool {
	if c.waterLevel == v {
		return false
	}
	c.waterLevel = v
	c.validateRivers()
	c.refresh()
	return true
}

// SetColor changes the cell colour.
func (c *Cell) SetColor(col color.RGBA) bool {
	if c.color == col {
		return false
	}
	c.color = col
	c.refresh()
	return true
}

// SetUrbanLevel changes the urban feature density.
func (c *Cell) SetUrbanLevel(v int) bool {
	if c.urbanLevel == v {
		return false
	}
	c.urbanLevel = v
	c.refreshSelfOnly()
	return true
}

// SetFarmLevel changes the farm feature density.
func (c *Cell) SetFarmLevel(v int) bool {
	if c.farmLevel == v {
		return false
	}
	c.farmLevel = v
	c.refreshSelfOnly()
	return true
}

// SetPlantLevel changes the plant feature density.
func (c *Cell) SetPlantLevel(v int) bool {
	if c.plantLevel == v {
		return false
	}
	c.plantLevel = v
	c.refreshSelfOnly()
	return true
}

// SetSpecialIndex selects the special feature placed on the cell (0 = none).
func (c *Cell) SetSpecialIndex(v int) bool {
	if c.specialIndex == v {
		return false
	}
	c.specialIndex = v
	c.refreshSelfOnly()
	return true
}

// SetWalled toggles walls. Walls run along edges, so neighbors redraw too.
func (c *Cell) SetWalled(v bool) bool {
	if c.walled == v {
		return false
	}
	c.walled = v
	c.refresh()
	return true
}

// ElevationDifference returns the absolute elevation difference to the
// neighbor in direction d, or 0 if there is none.
func (c *Cell) ElevationDifference(d HexDirection) int {
	n := c.Neighbor(d)
	if n == nil {
		return 0
	}
	return abs(c.elevation - n.elevation)
}

// EdgeType classifies the edge toward direction d. ok is false at the grid edge.
func (c *Cell) EdgeType(d HexDirection) (t EdgeType, ok bool) {
	n := c.Neighbor(d)
	if n == nil {
		return EdgeFlat, false
	}
	return c.grid.metrics.EdgeType(c.elevation, n.elevation), true
}

// EdgeTypeWith classifies the connection to any other cell.
func (c *Cell) EdgeTypeWith(other *Cell) EdgeType {
	return c.grid.metrics.EdgeType(c.elevation, other.elevation)
}

// Rivers

func (c *Cell) HasIncomingRiver() bool      { return c.hasIncomingRiver }
func (c *Cell) HasOutgoingRiver() bool      { return c.hasOutgoingRiver }
func (c *Cell) IncomingRiver() HexDirection { return c.incomingRiver }
func (c *Cell) OutgoingRiver() HexDirection { return c.outgoingRiver }
func (c *Cell) HasRiver() bool              { return c.hasIncomingRiver || c.hasOutgoingRiver }
func (c *Cell) HasRiverBeginOrEnd() bool    { return c.hasIncomingRiver != c.hasOutgoingRiver }

// HasRiverThroughEdge reports whether a river enters or leaves through d.
func (c *Cell) HasRiverThroughEdge(d HexDirection) bool {
	return c.hasIncomingRiver && c.incomingRiver == d ||
		c.hasOutgoingRiver && c.outgoingRiver == d
}

// IsValidRiverDestination reports whether a river may flow from c into n.
// Water may also spill over into a neighbor whose elevation matches the
// water level.
func (c *Cell) IsValidRiverDestination(n *Cell) bool {
	return n != nil && (c.elevation >= n.elevation || c.waterLevel == n.elevation)
}

// StreamBedY is the world height of the river bed through this cell.
func (c *Cell) StreamBedY() float64 {
	m := c.grid.metrics
	return m.ElevationToHeight(float64(c.elevation) + m.StreamBedOffset())
}

// RiverSurfaceY is the world height of flowing water in this cell.
func (c *Cell) RiverSurfaceY() float64 {
	m := c.grid.metrics
	return m.ElevationToHeight(float64(c.elevation) + m.WaterSurfaceOffset())
}

// WaterSurfaceY is the world height of standing water over this cell.
func (c *Cell) WaterSurfaceY() float64 {
	m := c.grid.metrics
	return m.ElevationToHeight(float64(c.waterLevel) + m.WaterSurfaceOffset())
}

// SetOutgoingRiver starts a river leaving through d. The neighbor's previous
// incoming river and this cell's previous outgoing river are removed, and a
// road on the same edge gives way to the river.
func (c *Cell) SetOutgoingRiver(d HexDirection) bool {
	if !d.Valid() {
		return false
	}
	if c.hasOutgoingRiver && c.outgoingRiver == d {
		return false
	}
	n := c.Neighbor(d)
	if !c.IsValidRiverDestination(n) {
		return false
	}

	c.RemoveOutgoingRiver()
	if c.hasIncomingRiver && c.incomingRiver == d {
		c.RemoveIncomingRiver()
	}
	c.hasOutgoingRiver = true
	c.outgoingRiver = d

	n.RemoveIncomingRiver()
	n.hasIncomingRiver = true
	n.incomingRiver = d.Opposite()

	if c.roads[d] {
		c.setRoad(d, false)
	} else {
		c.refreshSelfOnly()
		n.refreshSelfOnly()
	}
	return true
}

// RemoveOutgoingRiver removes the river leaving this cell and the matching
// incoming river on the neighbor.
func (c *Cell) RemoveOutgoingRiver() bool {
	if !c.hasOutgoingRiver {
		return false
	}
	c.hasOutgoingRiver = false
	c.refreshSelfOnly()

	n := c.Neighbor(c.outgoingRiver)
	n.hasIncomingRiver = false
	n.refreshSelfOnly()
	return true
}

// RemoveIncomingRiver removes the river entering this cell and the matching
// outgoing river on the neighbor.
func (c *Cell) RemoveIncomingRiver() bool {
	if !c.hasIncomingRiver {
		return false
	}
	c.hasIncomingRiver = false
	c.refreshSelfOnly()

	n := c.Neighbor(c.incomingRiver)
	n.hasOutgoingRiver = false
	n.refreshSelfOnly()
	return true
}

// RemoveRiver removes both river sides.
func (c *Cell) RemoveRiver() bool {
	out := c.RemoveOutgoingRiver()
	in := c.RemoveIncomingRiver()
	return out || in
}

func (c *Cell) validateRivers() {
	if c.hasOutgoingRiver && !c.IsValidRiverDestination(c.Neighbor(c.outgoingRiver)) {
		c.RemoveOutgoingRiver()
	}
	if c.hasIncomingRiver {
		if src := c.Neighbor(c.incomingRiver); src == nil || !src.IsValidRiverDestination(c) {
			c.RemoveIncomingRiver()
		}
	}
}

// Roads

// HasRoadThroughEdge reports whether a road crosses edge d.
func (c *Cell) HasRoadThroughEdge(d HexDirection) bool {
	return d.Valid() && c.roads[d]
}

// HasRoads reports whether any road touches the cell.
func (c *Cell) HasRoads() bool {
	for _, r := range c.roads {
		if r {
			return true
		}
	}
	return false
}

// AddRoad builds a road across edge d. Roads never share an edge with a river
// and never climb more than one elevation level.
func (c *Cell) AddRoad(d HexDirection) bool {
	n := c.Neighbor(d)
	if n == nil || c.roads[d] || c.HasRiverThroughEdge(d) || c.ElevationDifference(d) > 1 {
		return false
	}
	c.setRoad(d, true)
	return true
}

// RemoveRoads clears every road touching the cell, on both sides of each edge.
func (c *Cell) RemoveRoads() bool {
	changed := false
	for _, d := range AllDirections {
		if c.roads[d] {
			c.setRoad(d, false)
			changed = true
		}
	}
	return changed
}

func (c *Cell) setRoad(d HexDirection, state bool) {
	c.roads[d] = state
	n := c.Neighbor(d)
	n.roads[d.Opposite()] = state
	n.refreshSelfOnly()
	c.refreshSelfOnly()
}

// refresh marks the owning chunk dirty along with any neighboring chunk that
// shares an edge with this cell.
func (c *Cell) refresh() {
	ch := c.Chunk()
	if ch == nil {
		return
	}
	ch.MarkDirty()
	for _, d := range AllDirections {
		n := c.Neighbor(d)
		if n != nil && n.chunk != c.chunk {
			n.Chunk().MarkDirty()
		}
	}
}

// refreshSelfOnly marks only the owning chunk dirty.
func (c *Cell) refreshSelfOnly() {
	if ch := c.Chunk(); ch != nil {
		ch.MarkDirty()
	}
}

func (c *Cell) String() string {
	return c.coords.String()
}
