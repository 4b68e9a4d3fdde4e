package game

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Handle is the external identity of a registered body.
// Handles are assigned monotonically and never reused by a World.
type Handle uint64

// Body is anything the world can resolve. The world reads Position, Radius
// and Mass once per step and writes the resolved position back through
// SetPosition exactly once per step.
//
// SetPosition is called from a worker goroutine. Implementations must not
// touch other bodies from it.
type Body interface {
	Position() mgl32.Vec3
	Radius() float32
	Mass() float32
	SetPosition(pos mgl32.Vec3)
}

// Kind labels what a Circle represents.
type Kind string

const (
	KindPlayer Kind = "player"
	KindEnemy  Kind = "enemy"
	KindCircle Kind = "circle"
)

// ParseKind parses a kind string. Empty means KindCircle.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindCircle:
		return KindCircle, nil
	case KindPlayer:
		return KindPlayer, nil
	case KindEnemy:
		return KindEnemy, nil
	}
	return "", fmt.Errorf("%w: unknown kind %q", ErrInvalidBody, s)
}

// Circle is the concrete body used by the engine and the CLI.
type Circle struct {
	kind   Kind
	pos    mgl32.Vec3
	radius float32
	mass   float32

	// Commits counts SetPosition calls. Only read between steps.
	commits uint64
}

// Radius and mass used by callers when a request leaves them out.
const (
	DefaultRadius float32 = 0.5
	DefaultMass   float32 = 1
)

// BodyOptions contains options for creating a Circle.
// Radius and Mass are taken as given: zero is a real value, not "unset".
type BodyOptions struct {
	Kind     Kind
	Position mgl32.Vec3
	Radius   float32
	Mass     float32
}

// DefaultBodyOptions returns options for a body of the default size at pos.
func DefaultBodyOptions(kind Kind, pos mgl32.Vec3) BodyOptions {
	return BodyOptions{
		Kind:     kind,
		Position: pos,
		Radius:   DefaultRadius,
		Mass:     DefaultMass,
	}
}

// NewCircle creates a circle body. It does not validate; World.Register does.
func NewCircle(opts BodyOptions) *Circle {
	kind := opts.Kind
	if kind == "" {
		kind = KindCircle
	}
	return &Circle{
		kind:   kind,
		pos:    opts.Position,
		radius: opts.Radius,
		mass:   opts.Mass,
	}
}

func (c *Circle) Kind() Kind           { return c.kind }
func (c *Circle) Position() mgl32.Vec3 { return c.pos }
func (c *Circle) Radius() float32      { return c.radius }
func (c *Circle) Mass() float32        { return c.mass }

// SetPosition is the position sink written by the commit pass.
func (c *Circle) SetPosition(p mgl32.Vec3) {
	c.pos = p
	c.commits++
}

// Move offsets the circle without counting as a commit. Used by movement
// collaborators between steps.
func (c *Circle) Move(delta mgl32.Vec3) { c.pos = c.pos.Add(delta) }

// Commits returns how many times the world has written this body's position.
func (c *Circle) Commits() uint64 { return c.commits }

// validateBody checks the registration invariants.
func validateBody(b Body) error {
	if b == nil {
		return fmt.Errorf("%w: nil body", ErrInvalidBody)
	}
	r, m := b.Radius(), b.Mass()
	switch {
	case !finite32(r) || r < 0:
		return fmt.Errorf("%w: radius %v", ErrInvalidBody, r)
	case !finite32(m) || m <= 0:
		return fmt.Errorf("%w: mass %v", ErrInvalidBody, m)
	case !finiteVec(b.Position()):
		return fmt.Errorf("%w: position %v", ErrInvalidBody, b.Position())
	}
	return nil
}

func finite32(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

func finiteVec(v mgl32.Vec3) bool {
	return finite32(v[0]) && finite32(v[1]) && finite32(v[2])
}
