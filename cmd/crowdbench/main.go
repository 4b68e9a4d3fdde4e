package main

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"crowd-sim/internal/config"
	"crowd-sim/internal/game"
	"crowd-sim/internal/game/spatial"
	"crowd-sim/internal/render"
)

var (
	numBodies int
	steps     int
	cellSize  float64
	radius    float64
	mass      float64
	workers   int
	plane     string
	width     float64
	height    float64
	seed      int64
	framePath string
	savePath  string
	quiet     bool
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(16)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 2)
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "crowdbench",
		Short: "headless collision resolution benchmark",
	}
	rootCmd.PersistentFlags().IntVar(&workers, "workers", 0, "resolution workers (0 = NumCPU)")
	rootCmd.PersistentFlags().StringVar(&framePath, "frame", "", "write the final state as PNG")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "skip graphs")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "spawn random bodies and step them",
		Args:  cobra.NoArgs,
		RunE:  runRandom,
	}
	runCmd.Flags().IntVar(&numBodies, "bodies", 2000, "number of bodies")
	runCmd.Flags().IntVar(&steps, "steps", 120, "steps to run")
	runCmd.Flags().Float64Var(&cellSize, "cell-size", 1.0, "grid cell size")
	runCmd.Flags().Float64Var(&radius, "radius", 0.5, "body radius")
	runCmd.Flags().Float64Var(&mass, "mass", 1.0, "body mass")
	runCmd.Flags().StringVar(&plane, "plane", "xy", "partitioned plane (xy or xz)")
	runCmd.Flags().Float64Var(&width, "width", 0, "spawn area width (0 = fit bodies at ~50% density)")
	runCmd.Flags().Float64Var(&height, "height", 0, "spawn area height (0 = width)")
	runCmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	runCmd.Flags().StringVar(&savePath, "save", "", "write the generated scenario as YAML")

	scenarioCmd := &cobra.Command{
		Use:   "scenario [file|preset]",
		Short: "run a YAML scenario or a built-in preset",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenarioCmd,
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range config.PresetNames() {
				p := config.GetPreset(name)
				fmt.Printf("  %-12s %5d bodies  %4d steps  cell %.1f  %s\n",
					name, p.BodyTotal(), p.Steps, p.CellSize, p.Plane)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, scenarioCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runRandom(cmd *cobra.Command, args []string) error {
	if width <= 0 {
		// Half the area covered by discs
		width = math.Sqrt(float64(numBodies) * math.Pi * radius * radius * 2)
		if width <= 0 {
			// Point bodies: one unit of area each
			width = math.Sqrt(float64(numBodies))
		}
	}
	if height <= 0 {
		height = width
	}

	sc := &config.Scenario{
		Name:     "random",
		CellSize: cellSize,
		Plane:    plane,
		Steps:    steps,
		Spawn: &config.SpawnConfig{
			Count:  numBodies,
			Kind:   string(game.KindEnemy),
			Width:  width,
			Height: height,
			Radius: radius,
			Mass:   mass,
			Seed:   seed,
		},
	}
	if err := sc.Validate(); err != nil {
		return err
	}

	if savePath != "" {
		if err := config.SaveScenario(savePath, sc); err != nil {
			return err
		}
		fmt.Printf("scenario written to %s\n", savePath)
	}

	return runScenario(sc)
}

func runScenarioCmd(cmd *cobra.Command, args []string) error {
	sc := config.GetPreset(args[0])
	if sc == nil {
		var err error
		sc, err = config.LoadScenario(args[0])
		if err != nil {
			return fmt.Errorf("%s is neither a preset (%s) nor a readable file: %w",
				args[0], strings.Join(config.PresetNames(), ", "), err)
		}
	}
	return runScenario(sc)
}

type runResult struct {
	stepMs   []float64
	overlaps []float64
	failed   int
	total    time.Duration
	final    *game.WorldSnapshot
	grid     spatial.GridStats
	workers  int
}

func runScenario(sc *config.Scenario) error {
	p, err := spatial.ParsePlane(sc.Plane)
	if err != nil {
		return err
	}
	opts, err := sc.BodyOptions()
	if err != nil {
		return err
	}

	world, err := game.NewWorld(game.WorldConfig{
		CellSize: float32(sc.CellSize),
		Plane:    p,
		Workers:  workers,
	})
	if err != nil {
		return err
	}
	defer world.Close()

	engine := game.NewEngine(world, game.EngineConfig{TickRate: 60})
	for _, o := range opts {
		if _, err := engine.AddBody(o); err != nil {
			return err
		}
	}

	res := runResult{workers: world.Workers()}
	start := time.Now()
	for i := 0; i < sc.Steps; i++ {
		stats, err := engine.Advance()
		if err != nil {
			res.failed++
			fmt.Println(warnStyle.Render(fmt.Sprintf("step %d: %v", stats.Tick, err)))
			continue
		}
		res.stepMs = append(res.stepMs, float64(stats.Duration)/float64(time.Millisecond))
		res.overlaps = append(res.overlaps, float64(stats.OverlapPairs))
	}
	res.total = time.Since(start)
	res.final = engine.GetSnapshot()
	res.grid = world.GridStats()

	printReport(sc, res)

	if len(res.final.Bodies) <= 10 {
		printPositions(res.final)
	}

	if framePath != "" {
		if err := writeFrame(sc, p, res.final); err != nil {
			return err
		}
		fmt.Printf("frame written to %s\n", framePath)
	}
	return nil
}

func printReport(sc *config.Scenario, res runResult) {
	if !quiet && len(res.stepMs) >= 2 {
		fmt.Println(asciigraph.Plot(res.stepMs,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption("step time (ms)"),
		))
		fmt.Println()
		fmt.Println(asciigraph.Plot(res.overlaps,
			asciigraph.Height(8),
			asciigraph.Width(80),
			asciigraph.Caption("overlapping pairs"),
		))
		fmt.Println()
	}

	p50, p99 := percentile(res.stepMs, 0.5), percentile(res.stepMs, 0.99)
	rows := []struct{ label, value string }{
		{"bodies", fmt.Sprintf("%d", len(res.final.Bodies))},
		{"steps", fmt.Sprintf("%d (%d failed)", sc.Steps, res.failed)},
		{"workers", fmt.Sprintf("%d", res.workers)},
		{"cell size", fmt.Sprintf("%.2f on %s", sc.CellSize, sc.Plane)},
		{"step p50 / p99", fmt.Sprintf("%.3f / %.3f ms", p50, p99)},
		{"total", res.total.Round(time.Millisecond).String()},
		{"overlaps last", fmt.Sprintf("%d", res.final.OverlapPairs)},
		{"grid cells", fmt.Sprintf("%d occupied, max %d per cell", res.grid.OccupiedCells, res.grid.MaxInCell)},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(sc.Name))
	for _, r := range rows {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render(r.label))
		b.WriteString(valueStyle.Render(r.value))
	}
	fmt.Println(boxStyle.Render(b.String()))
}

func printPositions(snap *game.WorldSnapshot) {
	for _, b := range snap.Bodies {
		fmt.Printf("  #%d %-6s (%.4f, %.4f, %.4f)\n", b.Handle, b.Kind, b.X, b.Y, b.Z)
	}
}

func writeFrame(sc *config.Scenario, p spatial.Plane, snap *game.WorldSnapshot) error {
	w, h := 64.0, 36.0
	if sc.Spawn != nil && sc.Spawn.Count > 0 {
		w, h = sc.Spawn.Width, sc.Spawn.Height
	}
	scale := 1280 / w
	if h*scale > 1280 {
		scale = 1280 / h
	}

	r, err := render.NewRenderer(render.FrameConfig{
		WorldWidth:  w,
		WorldHeight: h,
		Scale:       scale,
		CellSize:    sc.CellSize,
		Plane:       p,
	})
	if err != nil {
		return err
	}

	f, err := os.Create(framePath)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.EncodePNG(f, snap)
}

func percentile(values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}
