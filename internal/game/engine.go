package game

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"crowd-sim/internal/game/spatial"
)

// EngineConfig configures the tick loop around a World
type EngineConfig struct {
	TickRate    int     // steps per second
	MaxBodies   int     // AddBody fails with ErrBodyLimit beyond this; 0 = unlimited
	WorldWidth  float32 // random spawn area along the plane's first axis
	WorldHeight float32 // random spawn area along the plane's second axis
	InputQueue  int     // input queue capacity
}

// DefaultEngineConfig returns the server defaults
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		TickRate:    30,
		MaxBodies:   5000,
		WorldWidth:  64,
		WorldHeight: 36,
		InputQueue:  256,
	}
}

// Engine runs a World at a fixed tick rate, moves the player and enemies
// between steps, and publishes a snapshot after every step.
type Engine struct {
	mu    sync.RWMutex
	cfg   EngineConfig
	world *World

	circles map[Handle]*Circle
	player  Handle

	// Rebuilt from circles when membership changes
	order           []Handle
	enemies         []*Circle
	membershipDirty bool

	// Player input from HTTP/WebSocket goroutines
	inputQueue *InputQueue[PlayerInput]
	inputBuf   []PlayerInput
	input      PlayerInput

	snapshots *SnapshotStore
	eventLog  *EventLog
	rng       *rand.Rand

	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}

	tickCount uint64
	lastStats StepStats
	lastErr   error

	onStep func(StepStats, error)
}

// NewEngine wraps world. The caller keeps ownership of world and closes it
// after Stop.
func NewEngine(world *World, cfg EngineConfig) *Engine {
	def := DefaultEngineConfig()
	if cfg.TickRate <= 0 {
		cfg.TickRate = def.TickRate
	}
	if cfg.WorldWidth <= 0 {
		cfg.WorldWidth = def.WorldWidth
	}
	if cfg.WorldHeight <= 0 {
		cfg.WorldHeight = def.WorldHeight
	}
	if cfg.InputQueue <= 0 {
		cfg.InputQueue = def.InputQueue
	}

	queue := NewInputQueue[PlayerInput](cfg.InputQueue)

	return &Engine{
		cfg:        cfg,
		world:      world,
		circles:    make(map[Handle]*Circle),
		inputQueue: queue,
		inputBuf:   make([]PlayerInput, queue.Cap()),
		snapshots:  NewSnapshotStore(),
		eventLog:   NewEventLog(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		stopChan:   make(chan struct{}),
	}
}

// Start begins the tick loop
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.ticker = time.NewTicker(time.Second / time.Duration(e.cfg.TickRate))
	e.stopChan = make(chan struct{})
	ticker, stop := e.ticker, e.stopChan
	e.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				e.tick()
			case <-stop:
				return
			}
		}
	}()

	log.Printf("🎮 Crowd engine started at %d TPS (%d workers, cell size %.2f)",
		e.cfg.TickRate, e.world.Workers(), e.world.Config().CellSize)
}

// Stop stops the tick loop. A step in progress finishes first.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	e.running = false
	if e.ticker != nil {
		e.ticker.Stop()
	}
	close(e.stopChan)
	log.Println("🛑 Crowd engine stopped")
}

// IsRunning reports whether the tick loop is active
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// SetOnStep installs a hook called after every step, outside the engine lock.
func (e *Engine) SetOnStep(fn func(StepStats, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onStep = fn
}

// tick is called TickRate times per second
func (e *Engine) tick() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	stats, err := e.advanceLocked()
	onStep := e.onStep
	e.mu.Unlock()

	if onStep != nil {
		onStep(stats, err)
	}
}

// Advance runs one tick synchronously, whether or not the loop is running.
func (e *Engine) Advance() (StepStats, error) {
	e.mu.Lock()
	stats, err := e.advanceLocked()
	onStep := e.onStep
	e.mu.Unlock()

	if onStep != nil {
		onStep(stats, err)
	}
	return stats, err
}

// advanceLocked drains input, moves the player and enemies, steps the world
// and publishes a snapshot. Caller holds e.mu.
func (e *Engine) advanceLocked() (StepStats, error) {
	e.tickCount++
	dt := 1.0 / float64(e.cfg.TickRate)

	if e.membershipDirty {
		e.rebuildMembership()
	}

	// Latest axis state wins; it persists until the client sends another.
	if n := e.inputQueue.DrainTo(e.inputBuf); n > 0 {
		e.input = e.inputBuf[n-1]
	}

	if player, ok := e.circles[e.player]; ok {
		MovePlayer(player, e.input, e.world.Config().Plane, float32(dt))
		if len(e.enemies) > 0 {
			SeekTarget(e.world.Pool(), e.enemies, player.Position(), float32(dt))
		}
	}

	stats, err := e.world.Step(dt)
	e.lastStats = stats
	e.lastErr = err

	if stats.Rebuilt {
		e.eventLog.EmitSimple(EventTypeStoreRebuild, e.tickCount, RebuildPayload{
			BodyCount: stats.Bodies,
			MaxRadius: stats.MaxRadius,
		})
	}
	if err != nil {
		log.Printf("⚠️ Step %d failed, nothing committed: %v", e.tickCount, err)
		payload := StepFailedPayload{Error: err.Error()}
		var se *StepError
		if errors.As(err, &se) {
			payload.Handle = se.Handle
		}
		e.eventLog.EmitSimple(EventTypeStepFailed, e.tickCount, payload)
	} else {
		e.eventLog.EmitSimple(EventTypeTick, e.tickCount, TickPayload{
			BodyCount:    stats.Bodies,
			OverlapPairs: stats.OverlapPairs,
			DurationNs:   int64(stats.Duration),
			DeltaTimeNs:  int64(dt * 1e9),
		})
	}

	e.produceSnapshot(stats)
	return stats, err
}

// rebuildMembership refreshes the handle order and enemy list
func (e *Engine) rebuildMembership() {
	e.order = e.order[:0]
	for h := range e.circles {
		e.order = append(e.order, h)
	}
	slices.Sort(e.order)

	e.enemies = e.enemies[:0]
	for _, h := range e.order {
		if c := e.circles[h]; c.Kind() == KindEnemy {
			e.enemies = append(e.enemies, c)
		}
	}
	e.membershipDirty = false
}

// produceSnapshot publishes the post-step state. Caller holds e.mu.
func (e *Engine) produceSnapshot(stats StepStats) {
	if e.membershipDirty {
		e.rebuildMembership()
	}

	snap := e.snapshots.NewWrite(len(e.order))
	snap.TickNumber = e.tickCount
	snap.Player = e.player
	snap.OverlapPairs = stats.OverlapPairs
	snap.StepMillis = float64(stats.Duration) / float64(time.Millisecond)

	for _, h := range e.order {
		c := e.circles[h]
		p := c.Position()
		snap.Bodies = append(snap.Bodies, BodySnapshot{
			Handle: h,
			Kind:   c.Kind(),
			X:      p[0],
			Y:      p[1],
			Z:      p[2],
			Radius: c.Radius(),
			Mass:   c.Mass(),
		})
	}
	snap.BodyCount = len(snap.Bodies)

	e.snapshots.Publish(snap)
}

// AddBody creates a circle and registers it with the world
func (e *Engine) AddBody(opts BodyOptions) (Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addBodyLocked(opts)
}

func (e *Engine) addBodyLocked(opts BodyOptions) (Handle, error) {
	if e.cfg.MaxBodies > 0 && len(e.circles) >= e.cfg.MaxBodies {
		return 0, fmt.Errorf("%w: %d bodies", ErrBodyLimit, e.cfg.MaxBodies)
	}
	if opts.Kind == KindPlayer && e.player != 0 {
		return 0, fmt.Errorf("%w: a player body already exists (handle %d)", ErrInvalidBody, e.player)
	}

	c := NewCircle(opts)
	h, err := e.world.Register(c)
	if err != nil {
		return 0, err
	}

	e.circles[h] = c
	if c.Kind() == KindPlayer {
		e.player = h
	}
	e.membershipDirty = true

	p := c.Position()
	e.eventLog.EmitSimple(EventTypeBodyRegister, e.tickCount, BodyPayload{
		Handle: h, Kind: c.Kind(), X: p[0], Y: p[1], Z: p[2], Radius: c.Radius(), Mass: c.Mass(),
	})
	return h, nil
}

// SpawnRandom adds count bodies at random positions inside the spawn area.
// It stops at the first error and returns the handles created so far.
func (e *Engine) SpawnRandom(count int, kind Kind, radius, mass float32) ([]Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	plane := e.world.Config().Plane
	handles := make([]Handle, 0, count)
	for i := 0; i < count; i++ {
		a := e.rng.Float32() * e.cfg.WorldWidth
		b := e.rng.Float32() * e.cfg.WorldHeight
		h, err := e.addBodyLocked(BodyOptions{
			Kind:     kind,
			Position: PlaneVector(plane, a, b),
			Radius:   radius,
			Mass:     mass,
		})
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// RemoveBody deregisters the body. It reports false for an unknown handle.
func (e *Engine) RemoveBody(h Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, ok := e.circles[h]
	if !ok || !e.world.Deregister(h) {
		return false
	}
	delete(e.circles, h)
	if h == e.player {
		e.player = 0
		e.input = PlayerInput{}
	}
	e.membershipDirty = true

	p := c.Position()
	e.eventLog.EmitSimple(EventTypeBodyDeregister, e.tickCount, BodyPayload{
		Handle: h, Kind: c.Kind(), X: p[0], Y: p[1], Z: p[2], Radius: c.Radius(), Mass: c.Mass(),
	})
	return true
}

// SetPlayerInput queues an axis command for the next tick. It is safe to
// call from any goroutine and never blocks; false means the queue is full.
func (e *Engine) SetPlayerInput(in PlayerInput) bool {
	return e.inputQueue.TryPush(in.Clamp())
}

// GetSnapshot returns the latest published snapshot without locking
func (e *Engine) GetSnapshot() *WorldSnapshot {
	return e.snapshots.Load()
}

// BodyCount returns the number of live bodies
func (e *Engine) BodyCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.circles)
}

// PlayerPosition returns the player body's position, if one exists
func (e *Engine) PlayerPosition() (mgl32.Vec3, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.circles[e.player]
	if !ok {
		return mgl32.Vec3{}, false
	}
	return c.Position(), true
}

// EngineStats is the payload of the stats endpoint
type EngineStats struct {
	Tick      uint64            `json:"tick"`
	TickRate  int               `json:"tickRate"`
	Workers   int               `json:"workers"`
	Bodies    int               `json:"bodies"`
	MaxBodies int               `json:"maxBodies"`
	LastStep  StepStats         `json:"lastStep"`
	LastError string            `json:"lastError,omitempty"`
	Grid      spatial.GridStats `json:"grid"`
	EventLog  EventLogStats     `json:"eventLog"`
}

// Stats returns a consistent view of the engine counters
func (e *Engine) Stats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := EngineStats{
		Tick:      e.tickCount,
		TickRate:  e.cfg.TickRate,
		Workers:   e.world.Workers(),
		Bodies:    len(e.circles),
		MaxBodies: e.cfg.MaxBodies,
		LastStep:  e.lastStats,
		Grid:      e.world.GridStats(),
		EventLog:  e.eventLog.GetStats(),
	}
	if e.lastErr != nil {
		s.LastError = e.lastErr.Error()
	}
	return s
}

// Config returns the engine config
func (e *Engine) Config() EngineConfig {
	return e.cfg
}

// WorldConfig returns the wrapped world's config
func (e *Engine) WorldConfig() WorldConfig {
	return e.world.Config()
}

// StartEventLog starts the JSONL event log
func (e *Engine) StartEventLog(filePath string) error {
	return e.eventLog.Start(filePath)
}

// StopEventLog flushes and stops the event log
func (e *Engine) StopEventLog() {
	e.eventLog.Stop()
}
