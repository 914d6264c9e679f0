package world

import (
	"fmt"
	"strings"
)

// HexDirection names one of the six edges of a pointy-top hex, clockwise from
// the north-east edge.
type HexDirection uint8

const (
	NE HexDirection = iota
	E
	SE
	SW
	W
	NW
)

// DirectionCount is the number of edges on a cell.
const DirectionCount = 6

// AllDirections lists the directions in index order.
var AllDirections = [DirectionCount]HexDirection{NE, E, SE, SW, W, NW}

var directionNames = [DirectionCount]string{"NE", "E", "SE", "SW", "W", "NW"}

// Opposite returns the direction pointing back across the same edge.
func (d HexDirection) Opposite() HexDirection {
	if d < 3 {
		return d + 3
	}
	return d - 3
}

// Previous returns the neighboring direction counter-clockwise.
func (d HexDirection) Previous() HexDirection {
	if d == NE {
		return NW
	}
	return d - 1
}

// Next returns the neighboring direction clockwise.
func (d HexDirection) Next() HexDirection {
	if d == NW {
		return NE
	}
	return d + 1
}

// Valid reports whether d is one of the six directions.
func (d HexDirection) Valid() bool {
	return d < DirectionCount
}

func (d HexDirection) String() string {
	if !d.Valid() {
		return fmt.Sprintf("HexDirection(%d)", uint8(d))
	}
	return directionNames[d]
}

// MarshalText encodes the direction by name ("NE", "E", ...).
func (d HexDirection) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid direction %d", uint8(d))
	}
	return []byte(directionNames[d]), nil
}

// UnmarshalText accepts a direction name, case-insensitive.
func (d *HexDirection) UnmarshalText(text []byte) error {
	parsed, err := ParseDirection(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ParseDirection parses a direction name such as "ne" or "W".
func ParseDirection(s string) (HexDirection, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range directionNames {
		if name == s {
			return HexDirection(i), nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}
