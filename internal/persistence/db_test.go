package persistence

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/talgya/hexterrain/internal/editor"
	"github.com/talgya/hexterrain/internal/engine"
	"github.com/talgya/hexterrain/internal/mesh"
	"github.com/talgya/hexterrain/internal/world"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestStrokeJournalOrder(t *testing.T) {
	db := openTestDB(t)
	strokes := []editor.Stroke{
		{Settings: editor.Settings{Elevation: editor.Int(3)}, Cells: []world.HexCoordinates{{X: 1, Z: 2}}},
		{Settings: editor.Settings{River: editor.Yes}, Cells: []world.HexCoordinates{{X: 1, Z: 2}, {X: 2, Z: 2}}},
		{Settings: editor.Settings{Color: "#aabbcc", Walled: editor.No}, Positions: []world.Vec3{{X: 4, Z: 9}}},
	}
	ids := make([]string, len(strokes))
	for i, s := range strokes {
		ids[i] = uuid.NewString()
		if err := db.AppendStroke(ids[i], s); err != nil {
			t.Fatalf("AppendStroke %d: %v", i, err)
		}
	}

	n, err := db.StrokeCount()
	if err != nil || n != 3 {
		t.Fatalf("StrokeCount = %d, %v; want 3", n, err)
	}

	loaded, err := db.LoadStrokes()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 3 {
		t.Fatalf("loaded %d strokes, want 3", len(loaded))
	}
	if *loaded[0].Settings.Elevation != 3 {
		t.Errorf("stroke 0 elevation = %d", *loaded[0].Settings.Elevation)
	}
	if loaded[1].Settings.River != editor.Yes || len(loaded[1].Cells) != 2 {
		t.Errorf("stroke 1 = %+v", loaded[1])
	}
	if loaded[2].Settings.Walled != editor.No || loaded[2].Positions[0].Z != 9 {
		t.Errorf("stroke 2 = %+v", loaded[2])
	}

	recent, err := db.RecentStrokes(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != ids[2] || recent[1].ID != ids[1] {
		t.Errorf("RecentStrokes(2) = %+v", recent)
	}
	if recent[1].Points != 2 {
		t.Errorf("recent[1].Points = %d, want 2", recent[1].Points)
	}
}

func TestAppendStrokeRejectsBadID(t *testing.T) {
	db := openTestDB(t)
	if err := db.AppendStroke("not-a-uuid", editor.Stroke{}); err == nil {
		t.Error("AppendStroke accepted a malformed id")
	}
	id := uuid.NewString()
	if err := db.AppendStroke(id, editor.Stroke{}); err != nil {
		t.Fatal(err)
	}
	if err := db.AppendStroke(id, editor.Stroke{}); err == nil {
		t.Error("AppendStroke accepted a duplicate id")
	}
}

func TestWorldMeta(t *testing.T) {
	db := openTestDB(t)
	if _, ok, err := db.LoadWorld(); ok || err != nil {
		t.Fatalf("fresh LoadWorld = %v, %v; want not found", ok, err)
	}
	want := WorldMeta{Seed: -42, Width: 40, Height: 30}
	if err := db.SaveWorld(want); err != nil {
		t.Fatal(err)
	}
	got, ok, err := db.LoadWorld()
	if err != nil || !ok || got != want {
		t.Errorf("LoadWorld = %+v, %v, %v; want %+v", got, ok, err, want)
	}

	flat := WorldMeta{Seed: 7, Width: 10, Height: 8, Flat: true}
	if err := db.SaveWorld(flat); err != nil {
		t.Fatal(err)
	}
	if got, _, _ := db.LoadWorld(); got != flat {
		t.Errorf("LoadWorld = %+v, want %+v", got, flat)
	}
}

func TestWidenLimits(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveWorld(WorldMeta{Seed: 1, Width: 4, Height: 4, Limits: editor.DefaultLimits()}); err != nil {
		t.Fatal(err)
	}
	got, err := db.WidenLimits(editor.Limits{MaxBrushSize: 2, MaxElevation: 9, MaxLevel: 1})
	if err != nil {
		t.Fatal(err)
	}
	want := editor.Limits{MaxBrushSize: 4, MaxElevation: 9, MaxLevel: 3}
	if got != want {
		t.Errorf("WidenLimits = %+v, want %+v", got, want)
	}
	if m, _, _ := db.LoadWorld(); m.Limits != want {
		t.Errorf("stored limits = %+v, want %+v", m.Limits, want)
	}
}

// openWorld rebuilds a session from the stored record the way hexmapd does.
func openWorld(t *testing.T, db *DB, live editor.Limits) *engine.Session {
	t.Helper()
	meta, ok, err := db.LoadWorld()
	if err != nil || !ok {
		t.Fatalf("LoadWorld = %v, %v", ok, err)
	}
	replayLimits, err := db.WidenLimits(live)
	if err != nil {
		t.Fatal(err)
	}
	g, err := world.NewGrid(meta.Width, meta.Height, 4, 4, world.NewMetrics(meta.Seed))
	if err != nil {
		t.Fatal(err)
	}
	world.Generate(g, meta.Terrain)
	sess := engine.NewSession(g, editor.New(live), mesh.NewBuilder(), db)
	strokes, err := db.LoadStrokes()
	if err != nil {
		t.Fatal(err)
	}
	if rr := sess.Replay(strokes, replayLimits); rr.Skipped != 0 || rr.Applied != len(strokes) {
		t.Fatalf("Replay = %+v, want all %d applied", rr, len(strokes))
	}
	return sess
}

func TestRestartReplaysUnderRecordedSettings(t *testing.T) {
	db := openTestDB(t)
	gen := world.SmallTestConfig()
	gen.Seed = 99
	if err := db.SaveWorld(WorldMeta{Seed: 99, Width: 12, Height: 10, Terrain: gen, Limits: editor.DefaultLimits()}); err != nil {
		t.Fatal(err)
	}

	first := openWorld(t, db, editor.DefaultLimits())
	for _, st := range []editor.Stroke{
		{Settings: editor.Settings{Elevation: editor.Int(6)}, Cells: []world.HexCoordinates{world.FromOffset(3, 3)}},
		{Settings: editor.Settings{Color: "#336699", BrushSize: 1}, Cells: []world.HexCoordinates{world.FromOffset(8, 6)}},
	} {
		if _, _, err := first.ApplyStroke(st); err != nil {
			t.Fatal(err)
		}
	}

	// The config now asks for tighter limits; the journal must still replay.
	second := openWorld(t, db, editor.Limits{MaxBrushSize: 1, MaxElevation: 4, MaxLevel: 1})

	first.View(func(a *world.Grid) {
		second.View(func(b *world.Grid) {
			for i := 0; i < a.CellCount(); i++ {
				ca, cb := a.Cell(i), b.Cell(i)
				if ca.Elevation() != cb.Elevation() || ca.WaterLevel() != cb.WaterLevel() ||
					ca.Color() != cb.Color() || ca.HasRiver() != cb.HasRiver() {
					t.Fatalf("cell %v differs after restart", ca)
				}
			}
		})
	})
	if lim := second.Limits(); lim.MaxElevation != 4 {
		t.Errorf("live limits = %+v, want the configured ones", lim)
	}
}

func TestWorldMetaStoresTerrain(t *testing.T) {
	db := openTestDB(t)
	want := WorldMeta{
		Seed:    5,
		Width:   8,
		Height:  6,
		Terrain: world.GenConfig{Seed: 5, MaxElevation: 7, WaterLevel: 0, Frequency: 0.2, Octaves: 3, Rivers: 0},
		Limits:  editor.Limits{MaxBrushSize: 2, MaxElevation: 7, MaxLevel: 2},
	}
	if err := db.SaveWorld(want); err != nil {
		t.Fatal(err)
	}
	if got, _, err := db.LoadWorld(); err != nil || got != want {
		t.Errorf("LoadWorld = %+v, %v; want %+v", got, err, want)
	}
}

func TestOpenUsesWAL(t *testing.T) {
	db := openTestDB(t)
	var mode string
	if err := db.conn.Get(&mode, "PRAGMA journal_mode"); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	var timeout int
	if err := db.conn.Get(&timeout, "PRAGMA busy_timeout"); err != nil {
		t.Fatal(err)
	}
	if timeout != 5000 {
		t.Errorf("busy_timeout = %d, want 5000", timeout)
	}
}

func TestClearStrokes(t *testing.T) {
	db := openTestDB(t)
	db.AppendStroke(uuid.NewString(), editor.Stroke{})
	if err := db.ClearStrokes(); err != nil {
		t.Fatal(err)
	}
	if n, _ := db.StrokeCount(); n != 0 {
		t.Errorf("StrokeCount after clear = %d", n)
	}
}
