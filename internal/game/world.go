package game

import (
	"fmt"
	"log"
	"slices"
	"time"

	"crowd-sim/internal/game/spatial"
)

// WorldConfig is fixed at construction.
type WorldConfig struct {
	CellSize            float32
	InitialGridCapacity int
	Plane               spatial.Plane
	Workers             int // 0 = NumCPU, capped at 16
	ParallelThreshold   int // 0 = DefaultParallelThreshold
}

// DefaultWorldConfig returns a config for unit-radius-ish bodies on the XY plane.
func DefaultWorldConfig() WorldConfig {
	return WorldConfig{
		CellSize:            1.0,
		InitialGridCapacity: 256,
		Plane:               spatial.PlaneXY,
		ParallelThreshold:   DefaultParallelThreshold,
	}
}

// StepStats describes one completed (or failed) step.
type StepStats struct {
	Tick         uint64        `json:"tick"`
	Bodies       int           `json:"bodies"`
	OverlapPairs int           `json:"overlapPairs"`
	Rebuilt      bool          `json:"rebuilt"`
	MaxRadius    float32       `json:"maxRadius"`
	Duration     time.Duration `json:"durationNs"`
}

// World owns the registered bodies, the broad-phase grid and the worker pool.
// It is not safe for concurrent use.
type World struct {
	cfg   WorldConfig
	grid  *spatial.Grid
	store *BodyStore
	pool  *WorkerPool

	// Per-worker state, index NumWorkers() is the calling goroutine.
	scratch  [][]uint32
	overlaps []int

	bodies     map[Handle]Body
	nextHandle Handle
	dirty      bool

	tick           uint64
	lastStats      StepStats
	warnedCellSize bool
	closed         bool
}

// NewWorld validates cfg and starts the worker pool.
func NewWorld(cfg WorldConfig) (*World, error) {
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: workers %d", ErrInvalidConfig, cfg.Workers)
	}
	if cfg.ParallelThreshold < 0 {
		return nil, fmt.Errorf("%w: parallel threshold %d", ErrInvalidConfig, cfg.ParallelThreshold)
	}
	if cfg.Plane != spatial.PlaneXY && cfg.Plane != spatial.PlaneXZ {
		return nil, fmt.Errorf("%w: plane %d", ErrInvalidConfig, cfg.Plane)
	}

	grid, err := spatial.NewGrid(cfg.CellSize, cfg.InitialGridCapacity, cfg.Plane)
	if err != nil {
		return nil, err
	}

	pool := NewWorkerPool(cfg.Workers, cfg.ParallelThreshold)
	pool.Start()

	slots := pool.NumWorkers() + 1
	scratch := make([][]uint32, slots)
	for i := range scratch {
		scratch[i] = make([]uint32, 0, 32)
	}

	return &World{
		cfg:        cfg,
		grid:       grid,
		store:      NewBodyStore(),
		pool:       pool,
		scratch:    scratch,
		overlaps:   make([]int, slots),
		bodies:     make(map[Handle]Body),
		nextHandle: 1,
	}, nil
}

// Register adds b to the world. It takes part in resolution from the next Step.
func (w *World) Register(b Body) (Handle, error) {
	if w.closed {
		return 0, ErrWorldClosed
	}
	if err := validateBody(b); err != nil {
		return 0, err
	}

	h := w.nextHandle
	w.nextHandle++
	w.bodies[h] = b
	w.dirty = true
	return h, nil
}

// Deregister removes the body registered under h. It reports false if h is
// unknown. The body's last committed position is left as is.
func (w *World) Deregister(h Handle) bool {
	if _, ok := w.bodies[h]; !ok {
		return false
	}
	delete(w.bodies, h)
	w.dirty = true
	return true
}

// Len returns the number of registered bodies.
func (w *World) Len() int { return len(w.bodies) }

// Lookup returns the body registered under h.
func (w *World) Lookup(h Handle) (Body, bool) {
	b, ok := w.bodies[h]
	return b, ok
}

// Step runs one resolution step: refresh (or rebuild after membership
// changes), grid rebuild, parallel resolution, then commit.
// dt is accepted for driver symmetry and not used by resolution.
//
// On error nothing is committed: body positions are exactly as before.
func (w *World) Step(dt float64) (StepStats, error) {
	if w.closed {
		return StepStats{}, ErrWorldClosed
	}
	start := time.Now()
	w.tick++
	stats := StepStats{Tick: w.tick}

	if w.dirty {
		w.rebuildStore()
		stats.Rebuilt = true
	} else {
		w.store.Refresh()
	}
	stats.Bodies = w.store.Len()
	stats.MaxRadius = w.store.MaxRadius()

	if !w.warnedCellSize && 2*stats.MaxRadius > w.grid.CellSize() {
		w.warnedCellSize = true
		log.Printf("⚠️ Cell size %.3f is smaller than the largest body diameter %.3f; some overlaps will be missed",
			w.grid.CellSize(), 2*stats.MaxRadius)
	}

	w.grid.Clear()
	for i := 0; i < w.store.Len(); i++ {
		w.grid.Insert(w.store.Position(i), uint32(i))
	}

	stats.OverlapPairs = resolvePass(w.pool, w.grid, w.store, w.scratch, w.overlaps)

	if idx := w.store.firstNonFinite(); idx >= 0 {
		stats.Duration = time.Since(start)
		w.lastStats = stats
		return stats, &StepError{
			Tick:    w.tick,
			Index:   idx,
			Handle:  w.store.Handle(idx),
			Wrapped: ErrNonFinite,
		}
	}

	commitPass(w.pool, w.store)

	stats.Duration = time.Since(start)
	w.lastStats = stats
	return stats, nil
}

// rebuildStore repopulates the store from the registered bodies in
// registration (handle) order.
func (w *World) rebuildStore() {
	handles := make([]Handle, 0, len(w.bodies))
	for h := range w.bodies {
		handles = append(handles, h)
	}
	slices.Sort(handles)

	bodies := make([]Body, len(handles))
	for i, h := range handles {
		bodies[i] = w.bodies[h]
	}

	w.store.Rebuild(handles, bodies)
	w.dirty = false
}

// LastStats returns the stats of the most recent Step.
func (w *World) LastStats() StepStats { return w.lastStats }

// GridStats returns broad-phase statistics as of the last Step.
func (w *World) GridStats() spatial.GridStats { return w.grid.Stats() }

// Config returns the construction config.
func (w *World) Config() WorldConfig { return w.cfg }

// Workers returns the size of the worker pool.
func (w *World) Workers() int { return w.pool.NumWorkers() }

// Close stops the worker pool. The world cannot be stepped afterwards.
func (w *World) Close() {
	if w.closed {
		return
	}
	w.closed = true
	w.pool.Stop()
}

// Pool returns the world's worker pool so collaborators can run their own
// passes between steps. Passes must not overlap with Step.
func (w *World) Pool() *WorkerPool { return w.pool }
