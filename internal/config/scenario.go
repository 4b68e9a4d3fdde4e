package config

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"crowd-sim/internal/game"
	"crowd-sim/internal/game/spatial"
)

// Scenario is a reproducible starting population for the bench CLI or the
// server.
type Scenario struct {
	Name     string       `yaml:"name"`
	CellSize float64      `yaml:"cell_size"`
	Plane    string       `yaml:"plane"`
	Steps    int          `yaml:"steps"`
	Spawn    *SpawnConfig `yaml:"spawn,omitempty"`
	Bodies   []BodyConfig `yaml:"bodies"`
}

// BodyConfig is one body in a scenario file.
type BodyConfig struct {
	Kind   string  `yaml:"kind"`
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Z      float64 `yaml:"z"`
	Radius float64 `yaml:"radius"`
	Mass   float64 `yaml:"mass"`
}

// UnmarshalYAML fills radius and mass with the body defaults when a file
// omits them. Explicit values, zero included, are kept.
func (b *BodyConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain BodyConfig
	p := plain{Radius: float64(game.DefaultRadius), Mass: float64(game.DefaultMass)}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*b = BodyConfig(p)
	return nil
}

// SpawnConfig adds Count random bodies inside a Width x Height area.
type SpawnConfig struct {
	Count  int     `yaml:"count"`
	Kind   string  `yaml:"kind"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	Radius float64 `yaml:"radius"`
	Mass   float64 `yaml:"mass"`
	Seed   int64   `yaml:"seed"`
}

// UnmarshalYAML applies the same radius and mass defaults as BodyConfig.
func (c *SpawnConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain SpawnConfig
	p := plain{Radius: float64(game.DefaultRadius), Mass: float64(game.DefaultMass)}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = SpawnConfig(p)
	return nil
}

// DefaultScenario returns the scenario fields used when a file omits them.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name:     "unnamed",
		CellSize: 1.0,
		Plane:    "xy",
		Steps:    60,
	}
}

// LoadScenario reads and validates a YAML scenario.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sc := DefaultScenario()
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return sc, nil
}

// SaveScenario writes sc as YAML.
func SaveScenario(path string, sc *Scenario) error {
	data, err := yaml.Marshal(sc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the scenario-level fields. Radius and mass are checked by
// BodyOptions; positions are checked when the bodies are registered.
func (s *Scenario) Validate() error {
	if s.CellSize <= 0 {
		return fmt.Errorf("%w: cell_size must be > 0, got %v", ErrInvalid, s.CellSize)
	}
	if s.Steps < 0 {
		return fmt.Errorf("%w: steps must be >= 0, got %d", ErrInvalid, s.Steps)
	}
	if s.Spawn != nil && s.Spawn.Count > 0 && (s.Spawn.Width <= 0 || s.Spawn.Height <= 0) {
		return fmt.Errorf("%w: spawn area must be > 0", ErrInvalid)
	}
	return nil
}

// BodyTotal returns the number of bodies the scenario will create.
func (s *Scenario) BodyTotal() int {
	n := len(s.Bodies)
	if s.Spawn != nil {
		n += s.Spawn.Count
	}
	return n
}

// BodyOptions expands the explicit bodies followed by the random spawn into
// registration options. The spawn is deterministic for a given seed.
func (s *Scenario) BodyOptions() ([]game.BodyOptions, error) {
	plane, err := spatial.ParsePlane(s.Plane)
	if err != nil {
		return nil, err
	}

	opts := make([]game.BodyOptions, 0, s.BodyTotal())
	for i, b := range s.Bodies {
		kind, err := game.ParseKind(b.Kind)
		if err != nil {
			return nil, fmt.Errorf("body %d: %w", i, err)
		}
		if err := checkRadiusMass(b.Radius, b.Mass); err != nil {
			return nil, fmt.Errorf("body %d: %w", i, err)
		}
		opts = append(opts, game.BodyOptions{
			Kind:     kind,
			Position: mgl32.Vec3{float32(b.X), float32(b.Y), float32(b.Z)},
			Radius:   float32(b.Radius),
			Mass:     float32(b.Mass),
		})
	}

	if s.Spawn == nil || s.Spawn.Count <= 0 {
		return opts, nil
	}
	kind, err := game.ParseKind(s.Spawn.Kind)
	if err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}
	if err := checkRadiusMass(s.Spawn.Radius, s.Spawn.Mass); err != nil {
		return nil, fmt.Errorf("spawn: %w", err)
	}
	rng := rand.New(rand.NewSource(s.Spawn.Seed))
	for i := 0; i < s.Spawn.Count; i++ {
		a := float32(rng.Float64() * s.Spawn.Width)
		b := float32(rng.Float64() * s.Spawn.Height)
		opts = append(opts, game.BodyOptions{
			Kind:     kind,
			Position: game.PlaneVector(plane, a, b),
			Radius:   float32(s.Spawn.Radius),
			Mass:     float32(s.Spawn.Mass),
		})
	}
	return opts, nil
}

// checkRadiusMass rejects values World.Register would reject, so a bad file
// fails before any body is created.
func checkRadiusMass(radius, mass float64) error {
	if !(radius >= 0) || math.IsInf(radius, 0) {
		return fmt.Errorf("%w: radius %v", game.ErrInvalidBody, radius)
	}
	if !(mass > 0) || math.IsInf(mass, 0) {
		return fmt.Errorf("%w: mass %v", game.ErrInvalidBody, mass)
	}
	return nil
}

// Presets are built-in scenarios addressable by name from the CLI.
var Presets = map[string]*Scenario{
	"pair": {
		Name: "pair", CellSize: 1.0, Plane: "xy", Steps: 1,
		Bodies: []BodyConfig{
			{Kind: "circle", X: 0, Y: 0, Radius: 0.5, Mass: 1},
			{Kind: "circle", X: 0, Y: 0.8, Radius: 0.5, Mass: 1},
		},
	},
	"crowd": {
		Name: "crowd", CellSize: 1.0, Plane: "xy", Steps: 120,
		Spawn: &SpawnConfig{Count: 2000, Kind: "enemy", Width: 40, Height: 40, Radius: 0.5, Mass: 1, Seed: 1},
	},
	"pileup": {
		Name: "pileup", CellSize: 1.0, Plane: "xy", Steps: 200,
		Spawn: &SpawnConfig{Count: 500, Kind: "circle", Width: 5, Height: 5, Radius: 0.5, Mass: 1, Seed: 7},
	},
	"horizontal": {
		Name: "horizontal", CellSize: 2.0, Plane: "xz", Steps: 60,
		Spawn: &SpawnConfig{Count: 1000, Kind: "enemy", Width: 30, Height: 30, Radius: 0.8, Mass: 2, Seed: 3},
	},
}

// GetPreset returns a copy of a built-in scenario, or nil.
func GetPreset(name string) *Scenario {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cp := *p
	cp.Bodies = append([]BodyConfig(nil), p.Bodies...)
	if p.Spawn != nil {
		spawn := *p.Spawn
		cp.Spawn = &spawn
	}
	return &cp
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
