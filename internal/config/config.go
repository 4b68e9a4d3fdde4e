// Package config provides centralized configuration management.
// Every tunable of the server lives here with its default and its
// environment variable override.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"crowd-sim/internal/game/spatial"
)

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimConfig holds the collision world and tick loop settings.
type SimConfig struct {
	CellSize          float64 // Grid cell edge; should be >= the largest body diameter
	GridCapacity      int     // Expected occupied cells (allocation hint)
	Plane             string  // "xy" or "xz"
	Workers           int     // Resolution workers, 0 = NumCPU (capped at 16)
	ParallelThreshold int     // Bodies below which passes run sequentially
	TickRate          int     // Steps per second
}

// DefaultSim returns the default simulation configuration.
func DefaultSim() SimConfig {
	return SimConfig{
		CellSize:          1.0, // unit-diameter bodies
		GridCapacity:      1024,
		Plane:             "xy",
		Workers:           0,
		ParallelThreshold: 64,
		TickRate:          30,
	}
}

// SimFromEnv returns simulation configuration with environment variable overrides.
// Environment variables take precedence over defaults.
func SimFromEnv() SimConfig {
	cfg := DefaultSim()

	if v, ok := lookupFloat("SIM_CELL_SIZE"); ok {
		cfg.CellSize = v
	}
	if c := getEnvInt("SIM_GRID_CAPACITY", -1); c >= 0 {
		cfg.GridCapacity = c
	}
	if p := os.Getenv("SIM_PLANE"); p != "" {
		cfg.Plane = p
	}
	if w := getEnvInt("SIM_WORKERS", -1); w >= 0 {
		cfg.Workers = w
	}
	if th := getEnvInt("SIM_PARALLEL_THRESHOLD", 0); th > 0 {
		cfg.ParallelThreshold = th
	}
	if tr := getEnvInt("SIM_TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}

	return cfg
}

// =============================================================================
// WORLD & RENDER CONFIGURATION
// =============================================================================

// WorldConfig holds the spawn area and the rendered view.
type WorldConfig struct {
	Width       float64 // Spawn area along the first plane axis, world units
	Height      float64 // Spawn area along the second plane axis, world units
	RenderScale float64 // Pixels per world unit in rendered frames
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Width:       64,
		Height:      36,
		RenderScale: 20, // 1280x720 frames
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	if w := getEnvFloat("WORLD_WIDTH", 0); w > 0 {
		cfg.Width = w
	}
	if h := getEnvFloat("WORLD_HEIGHT", 0); h > 0 {
		cfg.Height = h
	}
	if s := getEnvFloat("RENDER_SCALE", 0); s > 0 {
		cfg.RenderScale = s
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int
	MaxBodies    int    // AddBody fails beyond this
	EventLogPath string // JSONL event log, empty disables the file
	ScenarioPath string // YAML scenario loaded at startup, optional
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:         3000,
		MaxBodies:    5000,
		EventLogPath: "events.jsonl",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if mb := getEnvInt("MAX_BODIES", 0); mb > 0 {
		cfg.MaxBodies = mb
	}
	if path, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		cfg.EventLogPath = path
	}
	if path := os.Getenv("SCENARIO_PATH"); path != "" {
		cfg.ScenarioPath = path
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Sim    SimConfig
	World  WorldConfig
	Server ServerConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Sim:    SimFromEnv(),
		World:  WorldFromEnv(),
		Server: ServerFromEnv(),
	}
}

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid value")

// Validate checks the values the world constructor would reject, so the
// server can fail fast with the offending variable name.
func (c AppConfig) Validate() error {
	if c.Sim.CellSize <= 0 || math.IsInf(c.Sim.CellSize, 0) || math.IsNaN(c.Sim.CellSize) {
		return fmt.Errorf("%w: SIM_CELL_SIZE must be > 0, got %v", ErrInvalid, c.Sim.CellSize)
	}
	if _, err := spatial.ParsePlane(c.Sim.Plane); err != nil {
		return fmt.Errorf("%w: SIM_PLANE: %v", ErrInvalid, err)
	}
	if c.Sim.TickRate <= 0 || c.Sim.TickRate > 1000 {
		return fmt.Errorf("%w: SIM_TICK_RATE must be in 1..1000, got %d", ErrInvalid, c.Sim.TickRate)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: PORT %d", ErrInvalid, c.Server.Port)
	}
	if c.World.Width <= 0 || c.World.Height <= 0 {
		return fmt.Errorf("%w: WORLD_WIDTH/WORLD_HEIGHT must be > 0", ErrInvalid)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// lookupFloat reports whether key holds a parseable float, so that
// explicitly bad values (0, negative) reach Validate instead of being
// silently replaced by the default.
func lookupFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
