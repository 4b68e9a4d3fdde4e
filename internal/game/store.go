package game

import "github.com/go-gl/mathgl/mgl32"

// BodyStore holds per-body state as parallel arrays (struct of arrays).
// Index i in every array refers to the same body until the next Rebuild.
//
// positions is the back buffer: read-only while the resolution pass runs.
// pending is the front buffer: slot i is written only by the unit resolving i.
type BodyStore struct {
	handles   []Handle
	bodies    []Body
	positions []mgl32.Vec3
	pending   []mgl32.Vec3
	radii     []float32
	masses    []float32
	maxRadius float32
}

// NewBodyStore creates an empty store.
func NewBodyStore() *BodyStore {
	return &BodyStore{}
}

// Rebuild reallocates every array at len(bodies) and repopulates them from
// the bodies. Indices from before the call are invalid afterwards.
func (s *BodyStore) Rebuild(handles []Handle, bodies []Body) {
	n := len(bodies)
	s.handles = make([]Handle, n)
	s.bodies = make([]Body, n)
	s.positions = make([]mgl32.Vec3, n)
	s.pending = make([]mgl32.Vec3, n)
	s.radii = make([]float32, n)
	s.masses = make([]float32, n)
	s.maxRadius = 0

	copy(s.handles, handles)
	copy(s.bodies, bodies)
	for i, b := range s.bodies {
		p := b.Position()
		s.positions[i] = p
		s.pending[i] = p
		s.radii[i] = b.Radius()
		s.masses[i] = b.Mass()
		if s.radii[i] > s.maxRadius {
			s.maxRadius = s.radii[i]
		}
	}
}

// Refresh copies every body's current external position into both buffers.
// Radius and mass are fixed at registration and are not re-read.
func (s *BodyStore) Refresh() {
	for i, b := range s.bodies {
		p := b.Position()
		s.positions[i] = p
		s.pending[i] = p
	}
}

// Len returns the number of bodies in the store.
func (s *BodyStore) Len() int { return len(s.bodies) }

func (s *BodyStore) Handle(i int) Handle       { return s.handles[i] }
func (s *BodyStore) Body(i int) Body           { return s.bodies[i] }
func (s *BodyStore) Position(i int) mgl32.Vec3 { return s.positions[i] }
func (s *BodyStore) Pending(i int) mgl32.Vec3  { return s.pending[i] }
func (s *BodyStore) Radius(i int) float32      { return s.radii[i] }
func (s *BodyStore) Mass(i int) float32        { return s.masses[i] }

// MaxRadius returns the largest radius in the store.
func (s *BodyStore) MaxRadius() float32 { return s.maxRadius }

// firstNonFinite returns the index of the first pending position containing
// NaN or Inf, or -1.
func (s *BodyStore) firstNonFinite() int {
	for i, p := range s.pending {
		if !finiteVec(p) {
			return i
		}
	}
	return -1
}
