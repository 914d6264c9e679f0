package editor

import (
	"fmt"
	"image/color"
	"strings"

	termcolor "github.com/gookit/color"
)

// OptionalToggle is a three-way brush mode: leave the feature alone, add it,
// or remove it.
type OptionalToggle uint8

const (
	Ignore OptionalToggle = iota
	Yes
	No
)

var toggleNames = [...]string{"ignore", "yes", "no"}

func (t OptionalToggle) String() string {
	if int(t) < len(toggleNames) {
		return toggleNames[t]
	}
	return fmt.Sprintf("OptionalToggle(%d)", uint8(t))
}

// MarshalText encodes the toggle by name.
func (t OptionalToggle) MarshalText() ([]byte, error) {
	if int(t) >= len(toggleNames) {
		return nil, fmt.Errorf("invalid toggle %d", uint8(t))
	}
	return []byte(toggleNames[t]), nil
}

// UnmarshalText accepts "ignore", "yes" or "no" (case-insensitive); an empty
// string means ignore.
func (t *OptionalToggle) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	if s == "" {
		*t = Ignore
		return nil
	}
	for i, name := range toggleNames {
		if s == name {
			*t = OptionalToggle(i)
			return nil
		}
	}
	return fmt.Errorf("unknown toggle %q", s)
}

// Limits bound what a brush may write.
type Limits struct {
	MaxBrushSize int `yaml:"max_brush_size" json:"max_brush_size"`
	MaxElevation int `yaml:"max_elevation" json:"max_elevation"`
	MaxLevel     int `yaml:"max_feature_level" json:"max_feature_level"`
}

// DefaultLimits matches the ranges of the stock editor sliders.
func DefaultLimits() Limits {
	return Limits{MaxBrushSize: 4, MaxElevation: 6, MaxLevel: 3}
}

// Union returns the larger bound of each field.
func (l Limits) Union(o Limits) Limits {
	return Limits{
		MaxBrushSize: max(l.MaxBrushSize, o.MaxBrushSize),
		MaxElevation: max(l.MaxElevation, o.MaxElevation),
		MaxLevel:     max(l.MaxLevel, o.MaxLevel),
	}
}

// Settings describe one brush. A nil value leaves that attribute untouched.
type Settings struct {
	Color        string         `json:"color,omitempty"` // "#rrggbb"
	Elevation    *int           `json:"elevation,omitempty"`
	WaterLevel   *int           `json:"water_level,omitempty"`
	UrbanLevel   *int           `json:"urban_level,omitempty"`
	FarmLevel    *int           `json:"farm_level,omitempty"`
	PlantLevel   *int           `json:"plant_level,omitempty"`
	SpecialIndex *int           `json:"special_index,omitempty"`
	BrushSize    int            `json:"brush_size,omitempty"`
	River        OptionalToggle `json:"river,omitempty"`
	Road         OptionalToggle `json:"road,omitempty"`
	Walled       OptionalToggle `json:"walled,omitempty"`
}

// Int returns a pointer to v, for filling Settings literals.
func Int(v int) *int { return &v }

// Validate checks the settings against lim.
func (s Settings) Validate(lim Limits) error {
	if s.BrushSize < 0 || s.BrushSize > lim.MaxBrushSize {
		return fmt.Errorf("brush size %d out of range [0, %d]", s.BrushSize, lim.MaxBrushSize)
	}
	if s.Color != "" {
		if _, err := ParseColor(s.Color); err != nil {
			return err
		}
	}
	check := func(name string, v *int, max int) error {
		if v != nil && (*v < 0 || *v > max) {
			return fmt.Errorf("%s %d out of range [0, %d]", name, *v, max)
		}
		return nil
	}
	for _, c := range []struct {
		name string
		v    *int
		max  int
	}{
		{"elevation", s.Elevation, lim.MaxElevation},
		{"water level", s.WaterLevel, lim.MaxElevation},
		{"urban level", s.UrbanLevel, lim.MaxLevel},
		{"farm level", s.FarmLevel, lim.MaxLevel},
		{"plant level", s.PlantLevel, lim.MaxLevel},
		{"special index", s.SpecialIndex, lim.MaxLevel},
	} {
		if err := check(c.name, c.v, c.max); err != nil {
			return err
		}
	}
	for _, t := range []OptionalToggle{s.River, s.Road, s.Walled} {
		if t > No {
			return fmt.Errorf("invalid toggle %d", uint8(t))
		}
	}
	return nil
}

// ParseColor parses "#rgb", "#rrggbb" or "0xrrggbb" into an opaque colour.
func ParseColor(hex string) (color.RGBA, error) {
	if !isHexDigits(hex) {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", hex)
	}
	rgb := termcolor.HexToRgb(hex)
	if len(rgb) != 3 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q", hex)
	}
	return color.RGBA{R: uint8(rgb[0]), G: uint8(rgb[1]), B: uint8(rgb[2]), A: 255}, nil
}

// isHexDigits reports whether s, without its "#" or "0x" prefix, is three or
// six hex digits. HexToRgb alone lets signs through.
func isHexDigits(s string) bool {
	s = strings.TrimPrefix(s, "#")
	if len(s) > 2 && (s[:2] == "0x" || s[:2] == "0X") {
		s = s[2:]
	}
	if len(s) != 3 && len(s) != 6 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

// FormatColor renders c as "#rrggbb".
func FormatColor(c color.RGBA) string {
	return "#" + termcolor.RGB(c.R, c.G, c.B).Hex()
}
