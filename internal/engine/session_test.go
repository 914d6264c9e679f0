package engine

import (
	"errors"
	"sync"
	"testing"

	"github.com/talgya/hexterrain/internal/editor"
	"github.com/talgya/hexterrain/internal/mesh"
	"github.com/talgya/hexterrain/internal/world"
)

type memJournal struct {
	ids     []string
	strokes []editor.Stroke
	fail    bool
}

func (j *memJournal) AppendStroke(id string, s editor.Stroke) error {
	if j.fail {
		return errors.New("disk full")
	}
	j.ids = append(j.ids, id)
	j.strokes = append(j.strokes, s)
	return nil
}

func newSession(t *testing.T, j Journal) *Session {
	t.Helper()
	g, err := world.NewGrid(10, 10, 5, 5, world.NewMetrics(3))
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	return NewSession(g, editor.New(editor.DefaultLimits()), mesh.NewBuilder(), j)
}

func raise(col, row int) editor.Stroke {
	return editor.Stroke{
		Settings: editor.Settings{Elevation: editor.Int(1)},
		Cells:    []world.HexCoordinates{world.FromOffset(col, row)},
	}
}

func TestSessionFlushCoalesces(t *testing.T) {
	s := newSession(t, nil)
	if n := s.Flush(1); n != 4 {
		t.Fatalf("initial Flush = %d, want 4", n)
	}

	for _, p := range [][2]int{{1, 1}, {2, 1}, {1, 2}, {2, 3}} {
		if _, _, err := s.ApplyStroke(raise(p[0], p[1])); err != nil {
			t.Fatal(err)
		}
	}
	if n := s.Flush(2); n != 1 {
		t.Errorf("Flush after four edits in one chunk = %d, want 1", n)
	}
	if n := s.Flush(3); n != 0 {
		t.Errorf("idle Flush = %d, want 0", n)
	}

	st := s.Stats()
	if st.Strokes != 4 || st.Rebuilds != 5 || st.LastTick != 3 || st.DirtyChunks != 0 {
		t.Errorf("stats = %+v", st)
	}
	if m, ok := s.Builder().Mesh(0); !ok || m.Version < 5 {
		t.Errorf("chunk 0 mesh = %+v, %v", m, ok)
	}
}

func TestSessionJournalsStrokes(t *testing.T) {
	j := &memJournal{}
	s := newSession(t, j)
	_, id, err := s.ApplyStroke(raise(3, 3))
	if err != nil {
		t.Fatal(err)
	}
	if len(j.ids) != 1 || j.ids[0] != id {
		t.Fatalf("journal ids = %v, want [%s]", j.ids, id)
	}

	j.fail = true
	if _, _, err := s.ApplyStroke(raise(6, 6)); err == nil {
		t.Fatal("ApplyStroke succeeded with a failing journal")
	}
	s.View(func(g *world.Grid) {
		c, _ := g.CellAtOffset(6, 6)
		if c.Elevation() != 0 {
			t.Error("unjournaled stroke was applied")
		}
	})
	if st := s.Stats(); st.RejectedStrokes != 1 {
		t.Errorf("RejectedStrokes = %d, want 1", st.RejectedStrokes)
	}
}

func TestSessionReplayMatchesLiveEdits(t *testing.T) {
	j := &memJournal{}
	live := newSession(t, j)
	strokes := []editor.Stroke{
		raise(2, 2),
		{
			Settings: editor.Settings{River: editor.Yes, Road: editor.Ignore},
			Cells:    []world.HexCoordinates{world.FromOffset(2, 2), world.FromOffset(3, 2), world.FromOffset(4, 2)},
		},
		{Settings: editor.Settings{Color: "#336699", BrushSize: 1}, Cells: []world.HexCoordinates{world.FromOffset(7, 7)}},
	}
	for _, st := range strokes {
		if _, _, err := live.ApplyStroke(st); err != nil {
			t.Fatal(err)
		}
	}

	replayed := newSession(t, nil)
	if rr := replayed.Replay(j.strokes, editor.DefaultLimits()); rr.Applied != len(strokes) || rr.Skipped != 0 {
		t.Fatalf("Replay = %+v, want %d applied", rr, len(strokes))
	}

	live.View(func(a *world.Grid) {
		replayed.View(func(b *world.Grid) {
			for i := 0; i < a.CellCount(); i++ {
				ca, cb := a.Cell(i), b.Cell(i)
				if ca.Elevation() != cb.Elevation() || ca.Color() != cb.Color() ||
					ca.HasOutgoingRiver() != cb.HasOutgoingRiver() || ca.OutgoingRiver() != cb.OutgoingRiver() {
					t.Fatalf("cell %v differs after replay", ca)
				}
			}
		})
	})
}

func TestSessionReplayUsesRecordedLimits(t *testing.T) {
	j := &memJournal{}
	live := newSession(t, j)
	strokes := []editor.Stroke{
		{Settings: editor.Settings{Elevation: editor.Int(6)}, Cells: []world.HexCoordinates{world.FromOffset(2, 2)}},
		{Settings: editor.Settings{Color: "#336699"}, Cells: []world.HexCoordinates{world.FromOffset(5, 5)}},
	}
	for _, st := range strokes {
		if _, _, err := live.ApplyStroke(st); err != nil {
			t.Fatal(err)
		}
	}

	g, err := world.NewGrid(10, 10, 5, 5, world.NewMetrics(3))
	if err != nil {
		t.Fatal(err)
	}
	tighter := editor.Limits{MaxBrushSize: 4, MaxElevation: 4, MaxLevel: 3}
	restarted := NewSession(g, editor.New(tighter), mesh.NewBuilder(), nil)

	if rr := restarted.Replay(j.strokes, editor.DefaultLimits()); rr.Applied != 2 || rr.Skipped != 0 {
		t.Fatalf("Replay under recorded limits = %+v, want 2 applied", rr)
	}
	restarted.View(func(g *world.Grid) {
		if c, _ := g.CellAtOffset(2, 2); c.Elevation() != 6 {
			t.Errorf("elevation = %d, want 6", c.Elevation())
		}
	})
	if _, _, err := restarted.ApplyStroke(strokes[0]); err == nil {
		t.Error("live stroke should still be bound by the tighter limits")
	}
}

func TestSessionReplaySkipsBadStroke(t *testing.T) {
	s := newSession(t, nil)
	strokes := []editor.Stroke{
		{Settings: editor.Settings{Elevation: editor.Int(6)}, Cells: []world.HexCoordinates{world.FromOffset(2, 2)}},
		{Settings: editor.Settings{Color: "#336699"}, Cells: []world.HexCoordinates{world.FromOffset(5, 5)}},
	}
	rr := s.Replay(strokes, editor.Limits{MaxBrushSize: 4, MaxElevation: 4, MaxLevel: 3})
	if rr.Applied != 1 || rr.Skipped != 1 {
		t.Fatalf("Replay = %+v, want 1 applied and 1 skipped", rr)
	}
	s.View(func(g *world.Grid) {
		c, _ := g.CellAtOffset(5, 5)
		if got := editor.FormatColor(c.Color()); got != "#336699" {
			t.Errorf("later stroke colour = %s, want #336699", got)
		}
	})
	if st := s.Stats(); st.RejectedStrokes != 1 || st.Strokes != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestSessionRejectsInvalidStroke(t *testing.T) {
	s := newSession(t, &memJournal{})
	st := raise(1, 1)
	st.Settings.BrushSize = 50
	if _, _, err := s.ApplyStroke(st); err == nil {
		t.Fatal("oversized brush accepted")
	}
	if got := s.Stats().RejectedStrokes; got != 1 {
		t.Errorf("RejectedStrokes = %d, want 1", got)
	}
}

func TestSessionEvents(t *testing.T) {
	s := newSession(t, nil)
	id, ch := s.Subscribe()

	s.ApplyStroke(raise(1, 1))
	s.Flush(7)

	e := <-ch
	if e.Category != "stroke" || e.StrokeID == "" {
		t.Errorf("first event = %+v, want a stroke", e)
	}
	e = <-ch
	if e.Category != "rebuild" || e.Tick != 7 || len(e.Chunks) == 0 {
		t.Errorf("second event = %+v, want a rebuild at tick 7", e)
	}

	s.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("channel still open after Unsubscribe")
	}
	if got := s.RecentEvents(1); len(got) != 1 || got[0].Category != "rebuild" {
		t.Errorf("RecentEvents(1) = %+v", got)
	}
}

func TestSessionEventOrderUnderConcurrentFlush(t *testing.T) {
	s := newSession(t, nil)
	s.Flush(0)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				st := raise(w*2, w*2)
				st.Settings.Elevation = editor.Int(i % 3)
				s.ApplyStroke(st)
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 200; i++ {
			s.Flush(uint64(i))
		}
	}()
	wg.Wait()
	s.Flush(201)

	// Only strokes dirty chunks, so every rebuild after the first must follow
	// at least one stroke recorded since the previous rebuild.
	events := s.RecentEvents(maxEvents)
	if len(events) == 0 || events[0].Category != "rebuild" {
		t.Fatalf("first event = %+v, want the initial rebuild", events)
	}
	strokesSince := 0
	for i, e := range events[1:] {
		switch e.Category {
		case "stroke":
			strokesSince++
		case "rebuild":
			if strokesSince == 0 {
				t.Fatalf("event %d: rebuild at tick %d with no stroke since the last rebuild", i+1, e.Tick)
			}
			strokesSince = 0
		}
	}
}

func TestSessionConcurrentStrokes(t *testing.T) {
	s := newSession(t, nil)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				st := editor.Stroke{
					Settings: editor.Settings{Elevation: editor.Int(i % 3), River: editor.Yes, Road: editor.Yes},
					Cells:    []world.HexCoordinates{
						world.FromOffset((w*2+i)%10, i%10),
						world.FromOffset((w*2+i+1)%10, i%10),
					},
				}
				s.ApplyStroke(st)
				if i%5 == 0 {
					s.Flush(uint64(i))
				}
			}
		}(w)
	}
	wg.Wait()

	s.View(func(g *world.Grid) {
		if err := g.CheckInvariants(); err != nil {
			t.Fatal(err)
		}
	})
	if got := s.Stats().Strokes; got != 100 {
		t.Errorf("Strokes = %d, want 100", got)
	}
}
