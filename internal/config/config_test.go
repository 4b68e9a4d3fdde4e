package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"crowd-sim/internal/game"
)

// TestDefaults verifies the default config is valid
func TestDefaults(t *testing.T) {
	cfg := AppConfig{Sim: DefaultSim(), World: DefaultWorld(), Server: DefaultServer()}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Sim.CellSize != 1.0 || cfg.Sim.Plane != "xy" {
		t.Errorf("Sim defaults = %+v", cfg.Sim)
	}
}

// TestLoadEnvOverrides verifies environment variables take precedence
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SIM_CELL_SIZE", "2.5")
	t.Setenv("SIM_PLANE", "xz")
	t.Setenv("SIM_WORKERS", "3")
	t.Setenv("SIM_TICK_RATE", "60")
	t.Setenv("SIM_GRID_CAPACITY", "0")
	t.Setenv("WORLD_WIDTH", "100")
	t.Setenv("RENDER_SCALE", "8")
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_BODIES", "42")
	t.Setenv("EVENT_LOG_PATH", "")
	t.Setenv("SCENARIO_PATH", "crowd.yaml")

	cfg := Load()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"cell size", cfg.Sim.CellSize, 2.5},
		{"plane", cfg.Sim.Plane, "xz"},
		{"workers", cfg.Sim.Workers, 3},
		{"tick rate", cfg.Sim.TickRate, 60},
		{"grid capacity", cfg.Sim.GridCapacity, 0},
		{"world width", cfg.World.Width, 100.0},
		{"world height default", cfg.World.Height, 36.0},
		{"render scale", cfg.World.RenderScale, 8.0},
		{"port", cfg.Server.Port, 8080},
		{"max bodies", cfg.Server.MaxBodies, 42},
		{"event log disabled", cfg.Server.EventLogPath, ""},
		{"scenario", cfg.Server.ScenarioPath, "crowd.yaml"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

// TestValidateRejects verifies bad values are reported
func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"zero cell size", func(c *AppConfig) { c.Sim.CellSize = 0 }},
		{"negative cell size", func(c *AppConfig) { c.Sim.CellSize = -1 }},
		{"bad plane", func(c *AppConfig) { c.Sim.Plane = "yz" }},
		{"zero tick rate", func(c *AppConfig) { c.Sim.TickRate = 0 }},
		{"bad port", func(c *AppConfig) { c.Server.Port = 70000 }},
		{"empty world", func(c *AppConfig) { c.World.Width = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := AppConfig{Sim: DefaultSim(), World: DefaultWorld(), Server: DefaultServer()}
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() = %v, want ErrInvalid", err)
			}
		})
	}
}

// TestExplicitZeroCellSizeReachesValidate verifies a bad env value is not masked by the default
func TestExplicitZeroCellSizeReachesValidate(t *testing.T) {
	t.Setenv("SIM_CELL_SIZE", "0")
	cfg := Load()
	if cfg.Sim.CellSize != 0 {
		t.Fatalf("CellSize = %v, want 0 from env", cfg.Sim.CellSize)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate accepted a zero cell size")
	}
}

// TestLoadScenario verifies YAML parsing with defaults for omitted fields
func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pair.yaml")
	data := `name: pair
steps: 3
bodies:
  - {kind: enemy, x: 0, y: 0, radius: 0.5, mass: 1}
  - {kind: player, x: 0, y: 0.8, z: 0, radius: 0.5, mass: 2}
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}
	if sc.Name != "pair" || sc.Steps != 3 {
		t.Errorf("name/steps = %q/%d, want pair/3", sc.Name, sc.Steps)
	}
	if sc.CellSize != 1.0 || sc.Plane != "xy" {
		t.Errorf("defaults not applied: cell_size=%v plane=%q", sc.CellSize, sc.Plane)
	}
	if len(sc.Bodies) != 2 || sc.Bodies[1].Kind != "player" || sc.Bodies[1].Y != 0.8 || sc.Bodies[1].Mass != 2 {
		t.Errorf("bodies = %+v", sc.Bodies)
	}
	if sc.BodyTotal() != 2 {
		t.Errorf("BodyTotal() = %d, want 2", sc.BodyTotal())
	}
}

// TestLoadScenarioInvalid verifies bad files are rejected
func TestLoadScenarioInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data string
	}{
		{"zero cell size", "cell_size: 0\n"},
		{"negative steps", "steps: -1\n"},
		{"malformed", "bodies: [\n"},
		{"spawn without area", "spawn: {count: 5}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			os.WriteFile(path, []byte(tt.data), 0644)
			if _, err := LoadScenario(path); err == nil {
				t.Error("LoadScenario accepted an invalid scenario")
			}
		})
	}

	if _, err := LoadScenario(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadScenario accepted a missing file")
	}
}

// TestScenarioRoundTrip verifies SaveScenario output loads back
func TestScenarioRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crowd.yaml")
	sc := GetPreset("crowd")
	if err := SaveScenario(path, sc); err != nil {
		t.Fatalf("SaveScenario failed: %v", err)
	}
	got, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}
	if got.Spawn == nil || got.Spawn.Count != sc.Spawn.Count || got.BodyTotal() != 2000 {
		t.Errorf("round trip spawn = %+v, want %+v", got.Spawn, sc.Spawn)
	}
}

// TestGetPreset verifies presets are copies
func TestGetPreset(t *testing.T) {
	if GetPreset("nope") != nil {
		t.Error("GetPreset returned a scenario for an unknown name")
	}
	p := GetPreset("pair")
	p.Bodies[0].X = 99
	if Presets["pair"].Bodies[0].X == 99 {
		t.Error("GetPreset returned a shared slice")
	}
	if len(PresetNames()) != len(Presets) {
		t.Error("PresetNames() incomplete")
	}
}

// TestScenarioBodyOptions verifies explicit bodies come first and the spawn
// is reproducible for a seed
func TestScenarioBodyOptions(t *testing.T) {
	sc := GetPreset("pair")
	sc.Spawn = &SpawnConfig{Count: 5, Kind: "enemy", Width: 10, Height: 4, Radius: 0.5, Mass: 1, Seed: 9}

	opts, err := sc.BodyOptions()
	if err != nil {
		t.Fatalf("BodyOptions failed: %v", err)
	}
	if len(opts) != 7 {
		t.Fatalf("len = %d, want 7", len(opts))
	}
	if opts[1].Position[1] != 0.8 || opts[1].Kind != game.KindCircle {
		t.Errorf("second explicit body = %+v", opts[1])
	}
	for _, o := range opts[2:] {
		if o.Kind != game.KindEnemy {
			t.Errorf("spawned kind = %q, want enemy", o.Kind)
		}
		if o.Position[0] < 0 || o.Position[0] >= 10 || o.Position[1] < 0 || o.Position[1] >= 4 {
			t.Errorf("spawned position %v outside the area", o.Position)
		}
	}

	again, _ := sc.BodyOptions()
	for i := range opts {
		if opts[i] != again[i] {
			t.Fatalf("spawn not reproducible at %d: %v vs %v", i, opts[i], again[i])
		}
	}
}

// TestScenarioBodyOptionsXZ verifies spawns land on the horizontal plane
func TestScenarioBodyOptionsXZ(t *testing.T) {
	sc := GetPreset("horizontal")
	sc.Spawn.Count = 20

	opts, err := sc.BodyOptions()
	if err != nil {
		t.Fatalf("BodyOptions failed: %v", err)
	}
	for _, o := range opts {
		if o.Position[1] != 0 {
			t.Fatalf("XZ spawn has y = %v, want 0", o.Position[1])
		}
	}
}

// TestScenarioBodyOptionsBadKind verifies unknown kinds are reported
func TestScenarioBodyOptionsBadKind(t *testing.T) {
	sc := DefaultScenario()
	sc.Bodies = []BodyConfig{{Kind: "dragon", Radius: 1, Mass: 1}}

	if _, err := sc.BodyOptions(); err == nil {
		t.Error("expected an error for an unknown kind")
	}
}

// TestScenarioRadiusMassDefaults verifies only omitted radius and mass take defaults
func TestScenarioRadiusMassDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "points.yaml")
	data := `
cell_size: 1
bodies:
  - {x: 0, y: 0}
  - {x: 3, y: 0, radius: 0, mass: 2}
spawn: {count: 2, width: 4, height: 4, seed: 1}
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	sc, err := LoadScenario(path)
	if err != nil {
		t.Fatalf("LoadScenario failed: %v", err)
	}

	opts, err := sc.BodyOptions()
	if err != nil {
		t.Fatalf("BodyOptions failed: %v", err)
	}
	if len(opts) != 4 {
		t.Fatalf("len = %d, want 4", len(opts))
	}
	if opts[0].Radius != game.DefaultRadius || opts[0].Mass != game.DefaultMass {
		t.Errorf("omitted fields = %v/%v, want defaults", opts[0].Radius, opts[0].Mass)
	}
	if opts[1].Radius != 0 || opts[1].Mass != 2 {
		t.Errorf("explicit fields = %v/%v, want 0/2", opts[1].Radius, opts[1].Mass)
	}
	for _, o := range opts[2:] {
		if o.Radius != game.DefaultRadius || o.Mass != game.DefaultMass {
			t.Errorf("spawn fields = %v/%v, want defaults", o.Radius, o.Mass)
		}
	}
}

// TestScenarioZeroMass verifies an explicit zero mass is an error in bodies and spawns
func TestScenarioZeroMass(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"body", "cell_size: 1\nbodies:\n  - {x: 0, y: 0, mass: 0}\n"},
		{"spawn", "cell_size: 1\nspawn: {count: 1, width: 1, height: 1, mass: 0}\n"},
		{"negative radius", "cell_size: 1\nbodies:\n  - {radius: -1}\n"},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			os.WriteFile(path, []byte(tt.data), 0644)
			sc, err := LoadScenario(path)
			if err != nil {
				t.Fatalf("LoadScenario failed: %v", err)
			}
			if _, err := sc.BodyOptions(); !errors.Is(err, game.ErrInvalidBody) {
				t.Errorf("BodyOptions error = %v, want ErrInvalidBody", err)
			}
		})
	}
}
