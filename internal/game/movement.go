package game

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"crowd-sim/internal/game/spatial"
)

const (
	PlayerSpeed = 8.0 // units per second at full axis input
	EnemySpeed  = 4.0 // units per second toward the player

	// minSeekDistance stops enemies from jittering once they sit on the target.
	minSeekDistance = 1e-5
)

// PlayerInput is an axis command in [-1, 1] on each planar axis.
type PlayerInput struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Clamp limits both axes to [-1, 1]. NaN becomes 0.
func (in PlayerInput) Clamp() PlayerInput {
	return PlayerInput{X: clampAxis(in.X), Y: clampAxis(in.Y)}
}

func clampAxis(v float32) float32 {
	switch {
	case math.IsNaN(float64(v)):
		return 0
	case v > 1:
		return 1
	case v < -1:
		return -1
	}
	return v
}

// PlaneVector lifts planar components (a, b) into world space on plane p.
func PlaneVector(p spatial.Plane, a, b float32) mgl32.Vec3 {
	if p == spatial.PlaneXZ {
		return mgl32.Vec3{a, 0, b}
	}
	return mgl32.Vec3{a, b, 0}
}

// MovePlayer moves c by input * PlayerSpeed * dt along the world plane.
func MovePlayer(c *Circle, in PlayerInput, plane spatial.Plane, dt float32) {
	in = in.Clamp()
	if in.X == 0 && in.Y == 0 {
		return
	}
	c.Move(PlaneVector(plane, in.X, in.Y).Mul(dt * PlayerSpeed))
}

// SeekTarget moves every enemy straight toward target at EnemySpeed.
// Each enemy only touches itself, so the pass runs on the pool.
func SeekTarget(pool *WorkerPool, enemies []*Circle, target mgl32.Vec3, dt float32) {
	step := dt * EnemySpeed
	pool.ParallelFor(len(enemies), func(_, start, end int) {
		for _, e := range enemies[start:end] {
			dir := target.Sub(e.pos)
			dist := dir.Len()
			if dist < minSeekDistance {
				continue
			}
			e.Move(dir.Mul(step / dist))
		}
	})
}
