// Package engine drives an editing session: a fixed-interval tick loop that
// flushes dirty chunks, and the Session that serialises edits against it.
package engine

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Default schedule.
const (
	DefaultInterval    = 100 * time.Millisecond // One flush per tick
	DefaultReportEvery = 600                    // Ticks between status reports
)

// Engine calls its hooks on a fixed interval.
type Engine struct {
	Speed       float64       // Multiplier: 1.0 = real-time, 0 = paused
	Interval    time.Duration // Base tick interval
	ReportEvery uint64        // OnReport cadence in ticks (0 = never)

	OnTick   func(tick uint64) // Every tick
	OnReport func(tick uint64) // Every ReportEvery ticks

	tick    atomic.Uint64
	running atomic.Bool
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		Speed:       1.0,
		Interval:    DefaultInterval,
		ReportEvery: DefaultReportEvery,
	}
}

// Tick returns the last tick processed.
func (e *Engine) Tick() uint64 { return e.tick.Load() }

// Running reports whether Run is looping.
func (e *Engine) Running() bool { return e.running.Load() }

// Run starts the loop. Blocks until Stop() is called.
func (e *Engine) Run() {
	e.running.Store(true)
	slog.Info("engine started", "tick", e.Tick(), "interval", e.Interval, "speed", e.Speed)

	for e.running.Load() {
		if e.Speed <= 0 {
			// Paused: sleep briefly and check again.
			time.Sleep(100 * time.Millisecond)
			continue
		}

		start := time.Now()

		e.Step()

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / e.Speed)
		if elapsed < target {
			time.Sleep(target - elapsed)
		}
	}

	slog.Info("engine stopped", "tick", e.Tick())
}

// Stop halts the loop after the current tick.
func (e *Engine) Stop() {
	e.running.Store(false)
}

// Step advances by one tick and runs the hooks due on it.
func (e *Engine) Step() {
	t := e.tick.Add(1)

	if e.OnTick != nil {
		e.OnTick(t)
	}
	if e.ReportEvery > 0 && t%e.ReportEvery == 0 && e.OnReport != nil {
		e.OnReport(t)
	}
}
