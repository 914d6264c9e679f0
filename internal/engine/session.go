package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/talgya/hexterrain/internal/editor"
	"github.com/talgya/hexterrain/internal/mesh"
	"github.com/talgya/hexterrain/internal/world"
)

// maxEvents bounds the recent-event buffer.
const maxEvents = 1000

// Journal records accepted strokes so the map can be rebuilt on restart.
type Journal interface {
	AppendStroke(id string, s editor.Stroke) error
}

// Event is a notable change to the map.
type Event struct {
	Tick        uint64 `json:"tick"`
	Category    string `json:"category"` // "stroke" or "rebuild"
	Description string `json:"description"`
	StrokeID    string `json:"stroke_id,omitempty"`
	Chunks      []int  `json:"chunks,omitempty"`
}

// Stats tracks aggregate session counters.
type Stats struct {
	Cells           int    `json:"cells"`
	Chunks          int    `json:"chunks"`
	DirtyChunks     int    `json:"dirty_chunks"`
	Strokes         uint64 `json:"strokes"`
	RejectedStrokes uint64 `json:"rejected_strokes"`
	CellsChanged    uint64 `json:"cells_changed"`
	Flushes         uint64 `json:"flushes"`
	Rebuilds        uint64 `json:"rebuilds"`
	LastTick        uint64 `json:"last_tick"`
}

// Session owns the live grid. Every stroke runs to completion under one lock,
// cascade included, and a flush holds the same lock, so a rebuild never sees a
// half-applied stroke.
type Session struct {
	mu      sync.Mutex
	grid    *world.Grid
	editor  *editor.Editor
	builder *mesh.Builder
	journal Journal // may be nil
	stats   Stats

	evMu    sync.Mutex
	events  []Event
	subs    map[int]chan Event
	nextSub int
}

// NewSession wires a grid to its editor, mesh builder and optional journal.
func NewSession(g *world.Grid, ed *editor.Editor, b *mesh.Builder, j Journal) *Session {
	return &Session{
		grid:    g,
		editor:  ed,
		builder: b,
		journal: j,
		subs:    make(map[int]chan Event),
	}
}

// Builder returns the session's mesh builder.
func (s *Session) Builder() *mesh.Builder { return s.builder }

// Limits returns the bounds strokes are validated against.
func (s *Session) Limits() editor.Limits { return s.editor.Limits() }

// ApplyStroke validates, journals and applies one stroke, returning the
// stroke ID. A stroke that fails validation or cannot be journaled leaves the
// grid untouched.
func (s *Session) ApplyStroke(st editor.Stroke) (editor.Result, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := st.Settings.Validate(s.editor.Limits()); err != nil {
		s.stats.RejectedStrokes++
		return editor.Result{}, "", fmt.Errorf("validate stroke: %w", err)
	}

	id := uuid.NewString()
	if s.journal != nil {
		if err := s.journal.AppendStroke(id, st); err != nil {
			s.stats.RejectedStrokes++
			return editor.Result{}, "", fmt.Errorf("journal stroke: %w", err)
		}
	}

	res, err := s.editor.ApplyStroke(s.grid, st)
	if err != nil {
		return res, "", err
	}
	s.stats.Strokes++
	s.stats.CellsChanged += uint64(res.Changed)

	s.EmitEvent(Event{
		Tick:        s.stats.LastTick,
		Category:    "stroke",
		Description: fmt.Sprintf("stroke over %d points changed %d cells", res.Points, res.Changed),
		StrokeID:    id,
	})
	return res, id, nil
}

// ReplayResult counts a journal replay.
type ReplayResult struct {
	Applied int
	Skipped int
}

// Replay applies journaled strokes without journaling them again. Strokes are
// validated against lim, the bounds they were recorded under, not the live
// editor limits. A stroke that fails is skipped and counted; later strokes
// still apply.
func (s *Session) Replay(strokes []editor.Stroke, lim editor.Limits) ReplayResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	ed := editor.New(lim)
	var rr ReplayResult
	for i, st := range strokes {
		res, err := ed.ApplyStroke(s.grid, st)
		if err != nil {
			slog.Warn("journaled stroke skipped", "index", i, "error", err)
			rr.Skipped++
			s.stats.RejectedStrokes++
			continue
		}
		rr.Applied++
		s.stats.Strokes++
		s.stats.CellsChanged += uint64(res.Changed)
	}
	return rr
}

// Flush rebuilds every dirty chunk once. Wired to Engine.OnTick.
func (s *Session) Flush(tick uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty := s.grid.DirtyChunks()
	n := s.grid.Flush(s.builder)
	s.stats.LastTick = tick
	s.stats.Flushes++
	s.stats.Rebuilds += uint64(n)

	// Emitted under the grid lock so the event ring follows the edit order.
	if n > 0 {
		s.EmitEvent(Event{
			Tick:        tick,
			Category:    "rebuild",
			Description: fmt.Sprintf("rebuilt %d chunks", n),
			Chunks:      dirty,
		})
	}
	return n
}

// View runs fn with the grid locked. fn must not retain the grid.
func (s *Session) View(fn func(g *world.Grid)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.grid)
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Cells = s.grid.CellCount()
	st.Chunks = s.grid.ChunkCountX() * s.grid.ChunkCountZ()
	st.DirtyChunks = len(s.grid.DirtyChunks())
	return st
}

// Report logs the session counters. Wired to Engine.OnReport.
func (s *Session) Report(tick uint64) {
	st := s.Stats()
	slog.Info("session report",
		"tick", tick,
		"strokes", st.Strokes,
		"rejected", st.RejectedStrokes,
		"cells_changed", st.CellsChanged,
		"rebuilds", st.Rebuilds,
		"dirty_chunks", st.DirtyChunks,
		"builds", s.builder.Builds(),
	)
}

// EmitEvent records e and fans it out to subscribers. Slow subscribers miss
// events rather than block the session.
func (s *Session) EmitEvent(e Event) {
	s.evMu.Lock()
	defer s.evMu.Unlock()

	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	for id, ch := range s.subs {
		select {
		case ch <- e:
		default:
			slog.Debug("subscriber lagging, event dropped", "sub_id", id, "category", e.Category)
		}
	}
}

// RecentEvents returns up to n of the latest events, oldest first.
func (s *Session) RecentEvents(n int) []Event {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	start := len(s.events) - n
	if start < 0 {
		start = 0
	}
	out := make([]Event, len(s.events)-start)
	copy(out, s.events[start:])
	return out
}

// Subscribe registers for future events. The channel is closed by Unsubscribe.
func (s *Session) Subscribe() (int, <-chan Event) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	s.nextSub++
	ch := make(chan Event, 64)
	s.subs[s.nextSub] = ch
	return s.nextSub, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (s *Session) Unsubscribe(id int) {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}
