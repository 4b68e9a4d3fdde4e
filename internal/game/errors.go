package game

import (
	"errors"
	"fmt"
)

// Domain errors for world configuration and stepping.
var (
	// ErrInvalidConfig indicates a bad worker count or parallel threshold.
	ErrInvalidConfig = errors.New("game: invalid world config")

	// ErrInvalidBody indicates a negative radius, a non-positive mass or a non-finite value.
	ErrInvalidBody = errors.New("game: invalid body (radius >= 0, mass > 0, finite position required)")

	// ErrBodyLimit indicates the engine already holds its maximum number of bodies.
	ErrBodyLimit = errors.New("game: body limit reached")

	// ErrNonFinite indicates a step received or produced a NaN/Inf position.
	// Nothing from that step was committed.
	ErrNonFinite = errors.New("game: non-finite position (NaN or Inf detected)")

	// ErrWorldClosed indicates the world was used after Close.
	ErrWorldClosed = errors.New("game: world is closed")
)

// StepError wraps an error with the step and body that produced it.
// Index and Handle are -1 / 0 when the failure is not tied to one body.
type StepError struct {
	Tick    uint64
	Index   int
	Handle  Handle
	Wrapped error
}

func (e *StepError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("step %d: %v", e.Tick, e.Wrapped)
	}
	return fmt.Sprintf("step %d: body %d (index %d): %v", e.Tick, e.Handle, e.Index, e.Wrapped)
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
