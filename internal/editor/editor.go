// Package editor applies brush strokes to a grid. A stroke is the path a
// pointer traces while the button is held; moving onto an adjacent cell is a
// drag, which is how rivers and roads are drawn.
package editor

import (
	"fmt"
	"image/color"

	"github.com/talgya/hexterrain/internal/world"
)

// Stroke is one press-drag-release of the brush. Cells takes precedence over
// Positions when both are set.
type Stroke struct {
	Settings  Settings               `json:"settings"`
	Cells     []world.HexCoordinates `json:"cells,omitempty"`
	Positions []world.Vec3           `json:"positions,omitempty"`
}

// Result counts what a stroke did.
type Result struct {
	Points         int `json:"points"`
	Drags          int `json:"drags"`
	Visited        int `json:"visited"`
	Changed        int `json:"changed"`
	Missing        int `json:"missing"`
	RiversAdded    int `json:"rivers_added"`
	RiversRejected int `json:"rivers_rejected"`
	RoadsAdded     int `json:"roads_added"`
	RoadsRejected  int `json:"roads_rejected"`
}

// Editor applies strokes within fixed limits. It keeps no state between
// strokes, so one Editor may serve many grids.
type Editor struct {
	limits Limits
}

// New creates an editor. Zero fields in lim fall back to DefaultLimits.
func New(lim Limits) *Editor {
	def := DefaultLimits()
	if lim.MaxBrushSize <= 0 {
		lim.MaxBrushSize = def.MaxBrushSize
	}
	if lim.MaxElevation <= 0 {
		lim.MaxElevation = def.MaxElevation
	}
	if lim.MaxLevel <= 0 {
		lim.MaxLevel = def.MaxLevel
	}
	return &Editor{limits: lim}
}

// Limits returns the editor's bounds.
func (e *Editor) Limits() Limits { return e.limits }

// brush is a validated Settings with the colour decoded.
type brush struct {
	Settings
	applyColor bool
	color      color.RGBA
}

// ApplyStroke walks the stroke path and edits every cell under the brush at
// each point. Settings are validated before anything is touched; path points
// that fall outside the grid are skipped and break any drag in progress.
func (e *Editor) ApplyStroke(g *world.Grid, s Stroke) (Result, error) {
	var res Result
	if err := s.Settings.Validate(e.limits); err != nil {
		return res, fmt.Errorf("validate stroke: %w", err)
	}
	b := brush{Settings: s.Settings}
	if s.Settings.Color != "" {
		b.color, _ = ParseColor(s.Settings.Color)
		b.applyColor = true
	}

	var previous *world.Cell
	visit := func(current *world.Cell) {
		res.Points++
		if current == nil {
			res.Missing++
			previous = nil
			return
		}
		drag, dir := false, world.NE
		if previous != nil && previous != current {
			dir, drag = dragDirection(previous, current)
		}
		if drag {
			res.Drags++
		}
		e.editCells(g, current, b, drag, dir, &res)
		previous = current
	}

	if len(s.Cells) > 0 {
		for _, coords := range s.Cells {
			c, _ := g.CellAt(coords)
			visit(c)
		}
	} else {
		for _, p := range s.Positions {
			c, _ := g.CellAtPosition(p)
			visit(c)
		}
	}
	return res, nil
}

// dragDirection reports the direction from previous to current when the two
// cells are adjacent.
func dragDirection(previous, current *world.Cell) (world.HexDirection, bool) {
	for _, d := range world.AllDirections {
		if previous.Neighbor(d) == current {
			return d, true
		}
	}
	return world.NE, false
}

// editCells edits the hexagon of radius BrushSize centred on center, row by
// row from the bottom.
func (e *Editor) editCells(g *world.Grid, center *world.Cell, b brush, drag bool, dir world.HexDirection, res *Result) {
	cc := center.Coordinates()
	size := b.BrushSize

	for r, z := 0, cc.Z-size; z <= cc.Z; z, r = z+1, r+1 {
		for x := cc.X - r; x <= cc.X+size; x++ {
			e.editCell(g, world.HexCoordinates{X: x, Z: z}, b, drag, dir, res)
		}
	}
	for r, z := 0, cc.Z+size; z > cc.Z; z, r = z-1, r+1 {
		for x := cc.X - size; x <= cc.X+r; x++ {
			e.editCell(g, world.HexCoordinates{X: x, Z: z}, b, drag, dir, res)
		}
	}
}

func (e *Editor) editCell(g *world.Grid, coords world.HexCoordinates, b brush, drag bool, dir world.HexDirection, res *Result) {
	cell, ok := g.CellAt(coords)
	if !ok {
		return
	}
	res.Visited++
	changed := false
	set := func(did bool) {
		changed = changed || did
	}

	if b.applyColor {
		set(cell.SetColor(b.color))
	}
	if b.Elevation != nil {
		set(cell.SetElevation(*b.Elevation))
	}
	if b.WaterLevel != nil {
		set(cell.SetWaterLevel(*b.WaterLevel))
	}
	if b.SpecialIndex != nil {
		set(cell.SetSpecialIndex(*b.SpecialIndex))
	}
	if b.UrbanLevel != nil {
		set(cell.SetUrbanLevel(*b.UrbanLevel))
	}
	if b.FarmLevel != nil {
		set(cell.SetFarmLevel(*b.FarmLevel))
	}
	if b.PlantLevel != nil {
		set(cell.SetPlantLevel(*b.PlantLevel))
	}
	if b.River == No {
		set(cell.RemoveRiver())
	}
	if b.Road == No {
		set(cell.RemoveRoads())
	}
	if b.Walled != Ignore {
		set(cell.SetWalled(b.Walled == Yes))
	}

	if drag {
		if other := cell.Neighbor(dir.Opposite()); other != nil {
			if b.River == Yes && !(other.HasOutgoingRiver() && other.OutgoingRiver() == dir) {
				if other.SetOutgoingRiver(dir) {
					res.RiversAdded++
					changed = true
				} else {
					res.RiversRejected++
				}
			}
			if b.Road == Yes && !other.HasRoadThroughEdge(dir) {
				if other.AddRoad(dir) {
					res.RoadsAdded++
					changed = true
				} else {
					res.RoadsRejected++
				}
			}
		}
	}

	if changed {
		res.Changed++
	}
}
