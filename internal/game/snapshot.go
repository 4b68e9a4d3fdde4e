package game

import (
	"sync/atomic"
	"time"
)

// BodySnapshot is an immutable copy of one body's state after a step.
type BodySnapshot struct {
	Handle Handle  `json:"handle" msgpack:"h"`
	Kind   Kind    `json:"kind" msgpack:"k"`
	X      float32 `json:"x" msgpack:"x"`
	Y      float32 `json:"y" msgpack:"y"`
	Z      float32 `json:"z" msgpack:"z"`
	Radius float32 `json:"radius" msgpack:"r"`
	Mass   float32 `json:"mass" msgpack:"m"`
}

// WorldSnapshot is the state published after each tick. Readers must treat
// it as read-only; a new one is built every tick.
type WorldSnapshot struct {
	Sequence   uint64    `json:"sequence" msgpack:"seq"`
	Timestamp  time.Time `json:"timestamp" msgpack:"ts"`
	TickNumber uint64    `json:"tick" msgpack:"tick"`

	Bodies []BodySnapshot `json:"bodies" msgpack:"bodies"`
	Player Handle         `json:"player" msgpack:"player"` // 0 when no player body exists

	BodyCount    int     `json:"bodyCount" msgpack:"n"`
	OverlapPairs int     `json:"overlapPairs" msgpack:"ov"`
	StepMillis   float64 `json:"stepMs" msgpack:"ms"`
}

// Find returns the snapshot of the body with handle h.
func (s *WorldSnapshot) Find(h Handle) (BodySnapshot, bool) {
	for _, b := range s.Bodies {
		if b.Handle == h {
			return b, true
		}
	}
	return BodySnapshot{}, false
}

// SnapshotStore publishes snapshots from the tick goroutine to any number
// of lock-free readers.
type SnapshotStore struct {
	current  atomic.Pointer[WorldSnapshot]
	sequence atomic.Uint64
}

// NewSnapshotStore creates a store holding an empty snapshot.
func NewSnapshotStore() *SnapshotStore {
	s := &SnapshotStore{}
	s.current.Store(&WorldSnapshot{Bodies: []BodySnapshot{}, Timestamp: time.Now()})
	return s
}

// NewWrite returns a fresh snapshot with capacity for n bodies, stamped with
// the next sequence number.
func (s *SnapshotStore) NewWrite(n int) *WorldSnapshot {
	return &WorldSnapshot{
		Sequence:  s.sequence.Add(1),
		Timestamp: time.Now(),
		Bodies:    make([]BodySnapshot, 0, n),
	}
}

// Publish makes snap the current snapshot. snap must not be modified afterwards.
func (s *SnapshotStore) Publish(snap *WorldSnapshot) {
	s.current.Store(snap)
}

// Load returns the latest published snapshot.
func (s *SnapshotStore) Load() *WorldSnapshot {
	return s.current.Load()
}
