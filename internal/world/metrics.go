package world

import opensimplex "github.com/ojrac/opensimplex-go"

// EdgeType classifies the connection between two adjacent cells.
type EdgeType uint8

const (
	EdgeFlat EdgeType = iota
	EdgeSlope
	EdgeCliff
)

func (e EdgeType) String() string {
	switch e {
	case EdgeFlat:
		return "flat"
	case EdgeSlope:
		return "slope"
	case EdgeCliff:
		return "cliff"
	default:
		return "unknown"
	}
}

// MetricsProvider supplies the geometric constants and noise the grid needs.
// Implementations must be pure: the same input always yields the same output.
type MetricsProvider interface {
	OuterRadius() float64
	InnerRadius() float64
	ElevationToHeight(level float64) float64
	ElevationPerturbStrength() float64
	StreamBedOffset() float64
	WaterSurfaceOffset() float64
	SampleNoise(p Vec3) Vec4
	EdgeType(elevationA, elevationB int) EdgeType
}

// Default geometry. Outer radius is centre to corner, inner radius centre to
// edge midpoint. Stream bed and water surface offsets are in elevation levels.
const (
	DefaultOuterRadius              = 10.0
	DefaultElevationStep            = 3.0
	DefaultElevationPerturbStrength = 1.5
	DefaultStreamBedOffset          = -1.75
	DefaultWaterSurfaceOffset       = -0.5
	DefaultNoiseScale               = 0.003
	OuterToInner                    = 0.866025404
)

// Metrics is the default MetricsProvider. Noise comes from four independent
// simplex generators so each channel is uncorrelated.
type Metrics struct {
	Outer           float64
	ElevationStep   float64
	PerturbStrength float64
	StreamBed       float64
	WaterSurface    float64
	NoiseScale      float64
	noise           [4]opensimplex.Noise
}

// NewMetrics creates metrics with default geometry and noise seeded by seed.
func NewMetrics(seed int64) *Metrics {
	m := &Metrics{
		Outer:           DefaultOuterRadius,
		ElevationStep:   DefaultElevationStep,
		PerturbStrength: DefaultElevationPerturbStrength,
		StreamBed:       DefaultStreamBedOffset,
		WaterSurface:    DefaultWaterSurfaceOffset,
		NoiseScale:      DefaultNoiseScale,
	}
	for i := range m.noise {
		m.noise[i] = opensimplex.NewNormalized(seed + int64(i))
	}
	return m
}

func (m *Metrics) OuterRadius() float64 { return m.Outer }

func (m *Metrics) InnerRadius() float64 { return m.Outer * OuterToInner }

func (m *Metrics) ElevationToHeight(level float64) float64 {
	return level * m.ElevationStep
}

func (m *Metrics) ElevationPerturbStrength() float64 { return m.PerturbStrength }

func (m *Metrics) StreamBedOffset() float64 { return m.StreamBed }

func (m *Metrics) WaterSurfaceOffset() float64 { return m.WaterSurface }

// SampleNoise samples the four noise channels at p's XZ position.
func (m *Metrics) SampleNoise(p Vec3) Vec4 {
	x := p.X * m.NoiseScale
	z := p.Z * m.NoiseScale
	return Vec4{
		X: m.noise[0].Eval2(x, z),
		Y: m.noise[1].Eval2(x, z),
		Z: m.noise[2].Eval2(x, z),
		W: m.noise[3].Eval2(x, z),
	}
}

// EdgeType returns flat for equal elevations, slope for a one-step
// difference and cliff for anything steeper.
func (m *Metrics) EdgeType(elevationA, elevationB int) EdgeType {
	if elevationA == elevationB {
		return EdgeFlat
	}
	if abs(elevationB-elevationA) == 1 {
		return EdgeSlope
	}
	return EdgeCliff
}

// perturbedHeight returns the world-space height of a cell at the given
// elevation, offset by the noise sampled at p.
func perturbedHeight(m MetricsProvider, elevation int, p Vec3) float64 {
	y := m.ElevationToHeight(float64(elevation))
	y += (m.SampleNoise(p).Y*2 - 1) * m.ElevationPerturbStrength()
	return y
}
