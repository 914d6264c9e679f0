package world

import "testing"

func generateTestMap(t *testing.T, cfg GenConfig) (*Grid, *GenResult) {
	t.Helper()
	g, err := NewGrid(40, 30, 5, 5, NewMetrics(cfg.Seed))
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return g, Generate(g, cfg)
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := SmallTestConfig()
	g1, r1 := generateTestMap(t, cfg)
	g2, r2 := generateTestMap(t, cfg)

	if r1.Rivers != r2.Rivers || len(r1.Settlements) != len(r2.Settlements) {
		t.Fatalf("results differ: rivers %d/%d settlements %d/%d",
			r1.Rivers, r2.Rivers, len(r1.Settlements), len(r2.Settlements))
	}
	for i := 0; i < g1.CellCount(); i++ {
		a, b := g1.Cell(i), g2.Cell(i)
		if a.Elevation() != b.Elevation() || a.WaterLevel() != b.WaterLevel() {
			t.Fatalf("cell %v: elevation/water %d/%d vs %d/%d", a,
				a.Elevation(), a.WaterLevel(), b.Elevation(), b.WaterLevel())
		}
		if a.HasOutgoingRiver() != b.HasOutgoingRiver() || a.OutgoingRiver() != b.OutgoingRiver() {
			t.Fatalf("cell %v: rivers differ", a)
		}
		if a.roads != b.roads || a.UrbanLevel() != b.UrbanLevel() {
			t.Fatalf("cell %v: features differ", a)
		}
	}
}

func TestGenerateKeepsInvariants(t *testing.T) {
	g, res := generateTestMap(t, SmallTestConfig())
	if err := g.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
	if len(res.Terrain) != g.CellCount() {
		t.Fatalf("terrain has %d entries, want %d", len(res.Terrain), g.CellCount())
	}
	total := 0
	for _, n := range res.TerrainCounts() {
		total += n
	}
	if total != g.CellCount() {
		t.Errorf("terrain counts sum to %d, want %d", total, g.CellCount())
	}
	if res.Rivers > SmallTestConfig().Rivers {
		t.Errorf("traced %d rivers, limit %d", res.Rivers, SmallTestConfig().Rivers)
	}
	if res.Rivers > 0 && res.RiverCells == 0 {
		t.Error("rivers traced but no cell carries one")
	}
}

func TestGenerateMarksEverythingDirty(t *testing.T) {
	g, _ := generateTestMap(t, SmallTestConfig())
	if got := len(g.DirtyChunks()); got != g.ChunkCountX()*g.ChunkCountZ() {
		t.Errorf("%d dirty chunks, want all %d", got, g.ChunkCountX()*g.ChunkCountZ())
	}
}

func TestSettlementsSpacedAndBuilt(t *testing.T) {
	g, res := generateTestMap(t, SmallTestConfig())
	for i, a := range res.Settlements {
		c, ok := g.CellAt(a.Coord)
		if !ok {
			t.Fatalf("settlement %v off the grid", a.Coord)
		}
		if c.IsUnderwater() {
			t.Errorf("settlement %v is underwater", a.Coord)
		}
		if c.UrbanLevel() < a.Size.UrbanLevel() {
			t.Errorf("settlement %v urban level = %d, want at least %d", a.Coord, c.UrbanLevel(), a.Size.UrbanLevel())
		}
		if a.Size == SizeCity && !c.Walled() {
			t.Errorf("city %v has no walls", a.Coord)
		}
		for _, b := range res.Settlements[i+1:] {
			if a.Coord == b.Coord {
				t.Errorf("two settlements at %v", a.Coord)
			}
		}
	}
}

func TestDeriveTerrain(t *testing.T) {
	tests := []struct {
		elev  int
		moist float64
		want  Terrain
	}{
		{0, 0.5, TerrainWater},
		{2, 0.5, TerrainSand},
		{3, 0.2, TerrainGrass},
		{3, 0.8, TerrainMud},
		{5, 0.5, TerrainStone},
		{6, 0.5, TerrainSnow},
	}
	for _, tc := range tests {
		if got := deriveTerrain(tc.elev, 2, 6, tc.moist); got != tc.want {
			t.Errorf("deriveTerrain(%d, %.1f) = %s, want %s", tc.elev, tc.moist, TerrainName(got), TerrainName(tc.want))
		}
	}
}
