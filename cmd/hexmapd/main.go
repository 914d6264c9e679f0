// Command hexmapd serves an editable hex terrain map.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/talgya/hexterrain/internal/api"
	"github.com/talgya/hexterrain/internal/config"
	"github.com/talgya/hexterrain/internal/editor"
	"github.com/talgya/hexterrain/internal/engine"
	"github.com/talgya/hexterrain/internal/mesh"
	"github.com/talgya/hexterrain/internal/persistence"
	"github.com/talgya/hexterrain/internal/world"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults when empty)")
	regenerate := flag.Bool("regenerate", false, "discard the stored world and stroke journal")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.Log.SlogLevel()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("hexmapd starting", "config", *configPath)

	// ── Database ──────────────────────────────────────────────────────
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
		slog.Error("failed to create data directory", "error", err)
		os.Exit(1)
	}
	db, err := persistence.Open(cfg.Database.Path)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Database.Path)

	// ── World Record ──────────────────────────────────────────────────
	meta, found, err := db.LoadWorld()
	if err != nil {
		slog.Error("failed to load world record", "error", err)
		os.Exit(1)
	}
	if found && *regenerate {
		slog.Warn("regenerating: stroke journal cleared")
		if err := db.ClearStrokes(); err != nil {
			slog.Error("failed to clear journal", "error", err)
			os.Exit(1)
		}
		found = false
	}
	if !found {
		seed := cfg.Terrain.Seed
		if seed == 0 {
			seed = rand.Int63()
		}
		gen := cfg.Terrain.GenConfig()
		gen.Seed = seed
		meta = persistence.WorldMeta{
			Seed:    seed,
			Width:   cfg.Map.Width,
			Height:  cfg.Map.Height,
			Flat:    cfg.Terrain.Flat,
			Terrain: gen,
			Limits:  cfg.Editor,
		}
		if err := db.SaveWorld(meta); err != nil {
			slog.Error("failed to save world record", "error", err)
			os.Exit(1)
		}
		slog.Info("new world recorded", "seed", meta.Seed, "width", meta.Width, "height", meta.Height)
	} else {
		// Journaled strokes only make sense on the map they were drawn on.
		if meta.Width != cfg.Map.Width || meta.Height != cfg.Map.Height {
			slog.Warn("config map size ignored for stored world",
				"stored", fmt.Sprintf("%dx%d", meta.Width, meta.Height),
				"config", fmt.Sprintf("%dx%d", cfg.Map.Width, cfg.Map.Height),
			)
		}
		if meta.Terrain == (world.GenConfig{}) {
			// Recorded before terrain settings were stored.
			meta.Terrain = cfg.Terrain.GenConfig()
			if err := db.SaveWorld(meta); err != nil {
				slog.Error("failed to save world record", "error", err)
				os.Exit(1)
			}
		}
		meta.Terrain.Seed = meta.Seed
		want := cfg.Terrain.GenConfig()
		want.Seed = meta.Seed
		if want != meta.Terrain {
			slog.Warn("config terrain settings ignored for stored world",
				"stored", fmt.Sprintf("%+v", meta.Terrain),
				"config", fmt.Sprintf("%+v", want),
			)
		}
	}

	// Strokes replay under the widest limits the journal was ever recorded
	// with; the live editor uses the configured limits.
	replayLimits, err := db.WidenLimits(cfg.Editor)
	if err != nil {
		slog.Error("failed to record editor limits", "error", err)
		os.Exit(1)
	}

	// ── Grid (always regenerated, deterministic from seed) ────────────
	grid, err := world.NewGrid(meta.Width, meta.Height, cfg.Map.ChunkSizeX, cfg.Map.ChunkSizeZ, world.NewMetrics(meta.Seed))
	if err != nil {
		slog.Error("failed to create grid", "error", err)
		os.Exit(1)
	}

	if meta.Flat {
		slog.Info("flat world, skipping generation")
	} else {
		slog.Info("generating terrain...", "seed", meta.Seed)
		res := world.Generate(grid, meta.Terrain)

		for t, n := range res.TerrainCounts() {
			slog.Info("terrain", "type", world.TerrainName(t), "cells", humanize.Comma(int64(n)))
		}
		slog.Info("terrain ready",
			"rivers", res.Rivers,
			"river_cells", res.RiverCells,
			"settlements", len(res.Settlements),
		)
	}

	// ── Session ───────────────────────────────────────────────────────
	ed := editor.New(cfg.Editor)
	sess := engine.NewSession(grid, ed, mesh.NewBuilder(), db)

	strokes, err := db.LoadStrokes()
	if err != nil {
		slog.Error("failed to load stroke journal", "error", err)
		os.Exit(1)
	}
	rr := sess.Replay(strokes, replayLimits)
	if rr.Skipped > 0 {
		slog.Error("journaled strokes could not be replayed", "skipped", rr.Skipped, "total", len(strokes))
	}
	built := sess.Flush(0)
	slog.Info("world ready",
		"cells", humanize.Comma(int64(grid.CellCount())),
		"chunks", built,
		"strokes_replayed", rr.Applied,
	)
	if err := grid.CheckInvariants(); err != nil {
		slog.Warn("map invariants violated after replay", "error", err)
	}

	// ── Engine ────────────────────────────────────────────────────────
	eng := engine.NewEngine()
	eng.Interval = cfg.Engine.TickInterval()
	eng.ReportEvery = cfg.Engine.ReportEvery
	eng.OnTick = func(tick uint64) { sess.Flush(tick) }
	eng.OnReport = sess.Report

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.AdminKey == "" {
		slog.Warn("HEXMAP_ADMIN_KEY not set, POST endpoints are disabled")
	}
	apiServer := &api.Server{
		Session:        sess,
		Eng:            eng,
		DB:             db,
		Port:           cfg.Server.Port,
		AdminKey:       cfg.Server.AdminKey,
		StrokesPerMin:  cfg.Server.StrokesPerMin,
		MaxStreamConns: cfg.Server.MaxStreamConns,
		TrustedProxies: cfg.Server.TrustedProxies,
	}
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		eng.Stop()
	}()

	fmt.Printf("\nMap is live: %d x %d cells, seed %d.\n", meta.Width, meta.Height, meta.Seed)
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.Server.Port)
	fmt.Println("Editing session running... (Ctrl+C to stop)")

	eng.Run()

	// Strokes are journaled as they arrive; nothing else needs saving.
	fmt.Println("hexmapd stopped.")
}
