// Package api provides the HTTP API for viewing and editing the map.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"

	"github.com/talgya/hexterrain/internal/editor"
	"github.com/talgya/hexterrain/internal/engine"
	"github.com/talgya/hexterrain/internal/persistence"
	"github.com/talgya/hexterrain/internal/world"
)

// maxStrokeBody bounds POST /stroke payloads.
const maxStrokeBody = 1 << 20

// Server serves the map over HTTP.
type Server struct {
	Session        *engine.Session
	Eng            *engine.Engine
	DB             *persistence.DB // Optional; enables /strokes
	Port           int
	AdminKey       string // Bearer token for POST endpoints. Empty = POST disabled.
	StrokesPerMin  int    // Per-IP stroke budget. 0 = unlimited.
	MaxStreamConns int
	TrustedProxies []string // Peers whose X-Forwarded-For is believed

	started     time.Time
	streamConns int32 // Active websocket clients (atomic)
	upgrader    websocket.Upgrader
}

// Handler builds the routing table. Start calls it; tests use it directly.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	stroke := http.HandlerFunc(s.handleStroke)
	if s.StrokesPerMin > 0 {
		stroke = RateLimitMiddleware(NewRateLimiter(s.StrokesPerMin, time.Minute), s.TrustedProxies, stroke)
	}

	mux := http.NewServeMux()

	// Public endpoints (GET, read-only).
	mux.HandleFunc("/api/v1/status", s.handleStatus)
	mux.HandleFunc("/api/v1/map", s.handleMap)
	mux.HandleFunc("/api/v1/cell/", s.handleCellDetail)
	mux.HandleFunc("/api/v1/chunks", s.handleChunks)
	mux.HandleFunc("/api/v1/check", s.handleCheck)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.HandleFunc("/api/v1/strokes", s.handleStrokes)

	// Websocket stream of stroke and rebuild events.
	mux.HandleFunc("/api/v1/ws", s.handleStream)

	// Admin endpoints (POST, require bearer token).
	mux.HandleFunc("/api/v1/stroke", s.adminOnly(stroke))
	mux.HandleFunc("/api/v1/flush", s.adminOnly(s.handleFlush))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	handler := s.Handler()
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "", "strokes_per_min", s.StrokesPerMin)

	go func() {
		if err := http.ListenAndServe(addr, handler); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS env var to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require POST with a bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no HEXMAP_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Session.Stats()
	var tick uint64
	running := false
	if s.Eng != nil {
		tick = s.Eng.Tick()
		running = s.Eng.Running()
	}

	writeJSON(w, map[string]any{
		"name":           "hexterrain",
		"tick":           tick,
		"running":        running,
		"started":        humanize.Time(s.started),
		"cells":          st.Cells,
		"chunks":         st.Chunks,
		"dirty_chunks":   st.DirtyChunks,
		"strokes":        st.Strokes,
		"rejected":       st.RejectedStrokes,
		"rebuilds":       st.Rebuilds,
		"cells_changed":  humanize.Comma(int64(st.CellsChanged)),
		"mesh_builds":    humanize.Comma(int64(s.Session.Builder().Builds())),
		"stream_clients": atomic.LoadInt32(&s.streamConns),
	})
}

type cellEntry struct {
	X            int      `json:"x"`
	Z            int      `json:"z"`
	Col          int      `json:"col"`
	Row          int      `json:"row"`
	Elevation    int      `json:"elevation"`
	WaterLevel   int      `json:"water_level"`
	Color        string   `json:"color"`
	UrbanLevel   int      `json:"urban,omitempty"`
	FarmLevel    int      `json:"farm,omitempty"`
	PlantLevel   int      `json:"plant,omitempty"`
	SpecialIndex int      `json:"special,omitempty"`
	Walled       bool     `json:"walled,omitempty"`
	RiverIn      string   `json:"river_in,omitempty"`
	RiverOut     string   `json:"river_out,omitempty"`
	Roads        []string `json:"roads,omitempty"`
}

func newCellEntry(c *world.Cell) cellEntry {
	col, row := c.Coordinates().ToOffset()
	e := cellEntry{
		X:            c.Coordinates().X,
		Z:            c.Coordinates().Z,
		Col:          col,
		Row:          row,
		Elevation:    c.Elevation(),
		WaterLevel:   c.WaterLevel(),
		Color:        editor.FormatColor(c.Color()),
		UrbanLevel:   c.UrbanLevel(),
		FarmLevel:    c.FarmLevel(),
		PlantLevel:   c.PlantLevel(),
		SpecialIndex: c.SpecialIndex(),
		Walled:       c.Walled(),
	}
	if c.HasIncomingRiver() {
		e.RiverIn = c.IncomingRiver().String()
	}
	if c.HasOutgoingRiver() {
		e.RiverOut = c.OutgoingRiver().String()
	}
	for _, d := range world.AllDirections {
		if c.HasRoadThroughEdge(d) {
			e.Roads = append(e.Roads, d.String())
		}
	}
	return e
}

// handleMap returns every cell for the map renderer.
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	var resp map[string]any
	s.Session.View(func(g *world.Grid) {
		cells := make([]cellEntry, 0, g.CellCount())
		g.Cells(func(c *world.Cell) {
			cells = append(cells, newCellEntry(c))
		})
		cx, cz := g.ChunkSize()
		resp = map[string]any{
			"width":        g.Width(),
			"height":       g.Height(),
			"chunk_size_x": cx,
			"chunk_size_z": cz,
			"cells":        cells,
		}
	})
	writeJSON(w, resp)
}

// handleCellDetail serves GET /api/v1/cell/:x/:z with axial coordinates.
func (s *Server) handleCellDetail(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(r.URL.Path, "/")
	// /api/v1/cell/:x/:z → parts[0]="" [1]="api" [2]="v1" [3]="cell" [4]=x [5]=z
	if len(parts) < 6 {
		http.Error(w, "usage: /api/v1/cell/:x/:z", http.StatusBadRequest)
		return
	}
	x, err1 := strconv.Atoi(parts[4])
	z, err2 := strconv.Atoi(parts[5])
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid coordinates", http.StatusBadRequest)
		return
	}

	type neighborEntry struct {
		Direction string `json:"direction"`
		X         int    `json:"x"`
		Z         int    `json:"z"`
		Edge      string `json:"edge"`
		Road      bool   `json:"road,omitempty"`
		River     bool   `json:"river,omitempty"`
	}

	var resp map[string]any
	s.Session.View(func(g *world.Grid) {
		c, ok := g.CellAt(world.HexCoordinates{X: x, Z: z})
		if !ok {
			return
		}
		var neighbors []neighborEntry
		for _, d := range world.AllDirections {
			n := c.Neighbor(d)
			if n == nil {
				continue
			}
			edge, _ := c.EdgeType(d)
			neighbors = append(neighbors, neighborEntry{
				Direction: d.String(),
				X:         n.Coordinates().X,
				Z:         n.Coordinates().Z,
				Edge:      edge.String(),
				Road:      c.HasRoadThroughEdge(d),
				River:     c.HasRiverThroughEdge(d),
			})
		}
		resp = map[string]any{
			"cell":            newCellEntry(c),
			"chunk":           c.Chunk().Index(),
			"position":        c.Position(),
			"underwater":      c.IsUnderwater(),
			"stream_bed_y":    c.StreamBedY(),
			"river_surface_y": c.RiverSurfaceY(),
			"water_surface_y": c.WaterSurfaceY(),
			"neighbors":       neighbors,
		}
	})
	if resp == nil {
		http.Error(w, "cell not found", http.StatusNotFound)
		return
	}
	writeJSON(w, resp)
}

// handleChunks lists chunk state alongside the latest mesh summaries.
func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	type chunkEntry struct {
		Index    int    `json:"index"`
		X        int    `json:"x"`
		Z        int    `json:"z"`
		Cells    int    `json:"cells"`
		Dirty    bool   `json:"dirty"`
		Rebuilds uint64 `json:"rebuilds"`
	}

	var chunks []chunkEntry
	s.Session.View(func(g *world.Grid) {
		g.Chunks(func(ch *world.Chunk) {
			x, z := ch.Coord()
			chunks = append(chunks, chunkEntry{
				Index:    ch.Index(),
				X:        x,
				Z:        z,
				Cells:    len(ch.Cells()),
				Dirty:    ch.IsDirty(),
				Rebuilds: ch.Rebuilds(),
			})
		})
	})

	writeJSON(w, map[string]any{
		"chunks": chunks,
		"meshes": s.Session.Builder().Meshes(),
	})
}

// handleCheck runs the structural invariant check over the whole grid.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	var err error
	s.Session.View(func(g *world.Grid) {
		err = g.CheckInvariants()
	})
	if err != nil {
		slog.Warn("invariant check failed", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "errors": strings.Split(err.Error(), "\n")})
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func parseLimit(r *http.Request, def, max int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := s.Session.RecentEvents(parseLimit(r, 50, 500))

	// Optional category filter.
	if cat := r.URL.Query().Get("category"); cat != "" {
		filtered := events[:0]
		for _, e := range events {
			if e.Category == cat {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	writeJSON(w, events)
}

func (s *Server) handleStrokes(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	recs, err := s.DB.RecentStrokes(parseLimit(r, 20, 200))
	if err != nil {
		slog.Error("recent strokes", "error", err)
		http.Error(w, "journal read failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, recs)
}

// handleStroke applies one brush stroke. The body is an editor.Stroke.
func (s *Server) handleStroke(w http.ResponseWriter, r *http.Request) {
	var st editor.Stroke
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxStrokeBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&st); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			http.Error(w, "stroke too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(st.Cells) == 0 && len(st.Positions) == 0 {
		http.Error(w, "stroke has no cells or positions", http.StatusBadRequest)
		return
	}
	if err := st.Settings.Validate(s.Session.Limits()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, id, err := s.Session.ApplyStroke(st)
	if err != nil {
		slog.Error("stroke failed", "error", err)
		http.Error(w, "stroke failed", http.StatusInternalServerError)
		return
	}
	slog.Info("stroke applied", "id", id, "points", res.Points, "changed", res.Changed,
		"rivers", res.RiversAdded, "roads", res.RoadsAdded)

	writeJSON(w, map[string]any{"id": id, "result": res})
}

// handleFlush rebuilds dirty chunks immediately instead of waiting for a tick.
func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	var tick uint64
	if s.Eng != nil {
		tick = s.Eng.Tick()
	}
	n := s.Session.Flush(tick)
	writeJSON(w, map[string]int{"rebuilt": n})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
