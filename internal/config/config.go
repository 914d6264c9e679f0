// Package config loads hexmapd settings from YAML with environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/hexterrain/internal/editor"
	"github.com/talgya/hexterrain/internal/world"
)

// Config holds all server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Map      MapConfig      `yaml:"map"`
	Terrain  TerrainConfig  `yaml:"terrain"`
	Editor   editor.Limits  `yaml:"editor"`
	Engine   EngineConfig   `yaml:"engine"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port           int    `yaml:"port"`
	AdminKey       string `yaml:"admin_key"`        // Empty disables POST endpoints
	StrokesPerMin  int    `yaml:"strokes_per_min"`  // Per client IP
	MaxStreamConns int    `yaml:"max_stream_conns"` // Concurrent websocket clients

	// Peers allowed to set X-Forwarded-For. Empty = rate limit by socket address.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// MapConfig holds grid dimensions
type MapConfig struct {
	Width      int `yaml:"width"`  // Cells per row
	Height     int `yaml:"height"` // Rows
	ChunkSizeX int `yaml:"chunk_size_x"`
	ChunkSizeZ int `yaml:"chunk_size_z"`
}

// TerrainConfig holds generation settings; omitted keys take the generator defaults
type TerrainConfig struct {
	Seed          int64   `yaml:"seed"` // 0 = random on first start
	MaxElevation  int     `yaml:"max_elevation"`
	WaterLevel    int     `yaml:"water_level"`
	Frequency     float64 `yaml:"frequency"`
	Octaves       int     `yaml:"octaves"`
	Rivers        int     `yaml:"rivers"`
	NoSettlements bool    `yaml:"no_settlements"`
	Flat          bool    `yaml:"flat"` // Skip generation entirely
}

// EngineConfig holds tick loop settings
type EngineConfig struct {
	TickMillis  int    `yaml:"tick_ms"`
	ReportEvery uint64 `yaml:"report_every"` // Ticks
}

// DatabaseConfig holds journal storage settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	def := world.DefaultGenConfig()
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			StrokesPerMin:  120,
			MaxStreamConns: 16,
		},
		Map: MapConfig{
			Width:      20,
			Height:     15,
			ChunkSizeX: 5,
			ChunkSizeZ: 5,
		},
		Terrain: TerrainConfig{
			MaxElevation: def.MaxElevation,
			WaterLevel:   def.WaterLevel,
			Frequency:    def.Frequency,
			Octaves:      def.Octaves,
			Rivers:       def.Rivers,
		},
		Editor: editor.DefaultLimits(),
		Engine: EngineConfig{
			TickMillis:  100,
			ReportEvery: 600,
		},
		Database: DatabaseConfig{Path: "data/hexmap.db"},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file over the defaults, so keys the
// file omits keep their default and keys it sets, zero included, win. An
// empty path yields the defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets deployments override secrets and paths without editing YAML.
func (c *Config) applyEnv() error {
	if v := os.Getenv("HEXMAP_ADMIN_KEY"); v != "" {
		c.Server.AdminKey = v
	}
	if v := os.Getenv("HEXMAP_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("HEXMAP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HEXMAP_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Map.Width <= 0 || c.Map.Height <= 0 {
		return fmt.Errorf("map size %dx%d must be positive", c.Map.Width, c.Map.Height)
	}
	if c.Map.ChunkSizeX <= 0 || c.Map.ChunkSizeZ <= 0 {
		return fmt.Errorf("chunk size %dx%d must be positive", c.Map.ChunkSizeX, c.Map.ChunkSizeZ)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Server.Port)
	}
	if c.Server.StrokesPerMin < 0 || c.Server.MaxStreamConns < 0 {
		return fmt.Errorf("server limits must not be negative")
	}

	t := c.Terrain
	switch {
	case t.MaxElevation <= 0:
		return fmt.Errorf("terrain.max_elevation %d must be positive", t.MaxElevation)
	case t.WaterLevel < 0:
		return fmt.Errorf("terrain.water_level %d must not be negative", t.WaterLevel)
	case t.Frequency <= 0:
		return fmt.Errorf("terrain.frequency %v must be positive", t.Frequency)
	case t.Octaves < 1:
		return fmt.Errorf("terrain.octaves %d must be at least 1", t.Octaves)
	case t.Rivers < 0:
		return fmt.Errorf("terrain.rivers %d must not be negative", t.Rivers)
	}

	e := c.Editor
	if e.MaxBrushSize <= 0 || e.MaxElevation <= 0 || e.MaxLevel <= 0 {
		return fmt.Errorf("editor limits %+v must be positive", e)
	}
	if c.Engine.TickMillis <= 0 {
		return fmt.Errorf("engine.tick_ms %d must be positive", c.Engine.TickMillis)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// GenConfig converts the terrain section for world.Generate.
func (t TerrainConfig) GenConfig() world.GenConfig {
	return world.GenConfig{
		Seed:         t.Seed,
		MaxElevation: t.MaxElevation,
		WaterLevel:   t.WaterLevel,
		Frequency:    t.Frequency,
		Octaves:      t.Octaves,
		Rivers:       t.Rivers,
		Settlements:  !t.NoSettlements,
	}
}

// TickInterval returns the engine tick as a duration.
func (e EngineConfig) TickInterval() time.Duration {
	return time.Duration(e.TickMillis) * time.Millisecond
}

// SlogLevel parses the configured level name.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	return lvl, nil
}
