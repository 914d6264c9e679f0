// Package world provides the hex terrain grid: coordinates, cells, chunks and
// the grid that links them.
// Uses axial coordinates (x, z) over pointy-top hexes laid out in offset rows.
package world

import (
	"fmt"
	"math"
)

// HexCoordinates is an axial cell position. The third cube coordinate y is
// derived: y = -x - z.
type HexCoordinates struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// Vec3 is a point in world space. Y is up; the grid lies in the XZ plane.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Vec4 is a four-channel noise sample, each channel in [0, 1).
type Vec4 struct {
	X, Y, Z, W float64
}

// directionSteps holds the axial offset for each HexDirection.
var directionSteps = [DirectionCount]HexCoordinates{
	NE: {X: 0, Z: 1},
	E:  {X: 1, Z: 0},
	SE: {X: 1, Z: -1},
	SW: {X: 0, Z: -1},
	W:  {X: -1, Z: 0},
	NW: {X: -1, Z: 1},
}

// FromOffset converts an offset (column, row) position, as used for array
// indices and editor input, into axial coordinates. Odd rows are shifted half
// a cell to the east.
func FromOffset(col, row int) HexCoordinates {
	return HexCoordinates{X: col - row/2, Z: row}
}

// ToOffset is the inverse of FromOffset.
func (h HexCoordinates) ToOffset() (col, row int) {
	return h.X + h.Z/2, h.Z
}

// Y returns the implicit third cube coordinate.
func (h HexCoordinates) Y() int {
	return -h.X - h.Z
}

// Step returns the coordinates of the adjacent cell in direction d.
func (h HexCoordinates) Step(d HexDirection) HexCoordinates {
	s := directionSteps[d]
	return HexCoordinates{X: h.X + s.X, Z: h.Z + s.Z}
}

// Neighbors returns the six adjacent coordinates, indexed by HexDirection.
func (h HexCoordinates) Neighbors() [DirectionCount]HexCoordinates {
	var result [DirectionCount]HexCoordinates
	for _, d := range AllDirections {
		result[d] = h.Step(d)
	}
	return result
}

// Distance returns the hex distance between two coordinates.
func Distance(a, b HexCoordinates) int {
	dx := abs(a.X - b.X)
	dy := abs(a.Y() - b.Y())
	dz := abs(a.Z - b.Z)
	// Max of the three absolute differences in cube coordinates.
	max := dx
	if dy > max {
		max = dy
	}
	if dz > max {
		max = dz
	}
	return max
}

// CellCenter returns the unperturbed world position of the cell at the given
// offset position.
func CellCenter(col, row int, m MetricsProvider) Vec3 {
	return Vec3{
		X: (float64(col) + float64(row)*0.5 - float64(row/2)) * (m.InnerRadius() * 2),
		Y: 0,
		Z: float64(row) * (m.OuterRadius() * 1.5),
	}
}

// FromPosition returns the coordinates of the cell containing p.
// Only X and Z of p are used.
func FromPosition(p Vec3, m MetricsProvider) HexCoordinates {
	x := p.X / (m.InnerRadius() * 2)
	y := -x
	offset := p.Z / (m.OuterRadius() * 3)
	x -= offset
	y -= offset

	iX := int(math.Round(x))
	iY := int(math.Round(y))
	iZ := int(math.Round(-x - y))

	if iX+iY+iZ != 0 {
		// Re-derive the coordinate that picked up the largest rounding error.
		dX := math.Abs(x - float64(iX))
		dY := math.Abs(y - float64(iY))
		dZ := math.Abs(-x - y - float64(iZ))
		if dX > dY && dX > dZ {
			iX = -iY - iZ
		} else if dZ > dY {
			iZ = -iX - iY
		}
	}
	return HexCoordinates{X: iX, Z: iZ}
}

func (h HexCoordinates) String() string {
	return fmt.Sprintf("(%d, %d)", h.X, h.Z)
}

// StringOnSeparateLines formats the three cube coordinates one per line,
// the form used for cell labels.
func (h HexCoordinates) StringOnSeparateLines() string {
	return fmt.Sprintf("%d\n%d\n%d", h.X, h.Y(), h.Z)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
