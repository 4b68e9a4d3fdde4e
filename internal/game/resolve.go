package game

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"crowd-sim/internal/game/spatial"
)

const (
	// coincidentEpsilon is the centre distance at or below which two bodies
	// are treated as coincident and separated along the X axis.
	coincidentEpsilon = 1e-6

	// minCombinedMass is the smallest Mi+Mj that produces a correction.
	minCombinedMass = 1e-12
)

var (
	axisPosX = mgl32.Vec3{1, 0, 0}
	axisNegX = mgl32.Vec3{-1, 0, 0}
)

// resolveBody returns body i's corrected position. It reads back, radii and
// masses only, so any number of calls may run concurrently for distinct i.
// neighbors are the broad-phase candidates and may include i itself.
//
// The second result is the number of overlapping neighbours found.
func resolveBody(i int, back []mgl32.Vec3, radii, masses []float32, neighbors []uint32) (mgl32.Vec3, int) {
	pi := back[i]
	ri, mi := radii[i], masses[i]
	out := pi
	overlaps := 0

	for _, n := range neighbors {
		j := int(n)
		if j == i {
			continue
		}

		delta := back[j].Sub(pi)
		d2 := delta.Dot(delta)
		reach := ri + radii[j]
		if d2 >= reach*reach {
			continue
		}
		overlaps++

		mj := masses[j]
		total := float64(mi) + float64(mj)
		if math.IsNaN(total) || math.IsInf(total, 0) || total <= minCombinedMass {
			continue
		}

		dist := float32(math.Sqrt(float64(d2)))
		var dir mgl32.Vec3
		if dist <= coincidentEpsilon {
			// Opposite axes for the two sides of the pair.
			if i < j {
				dir = axisPosX
			} else {
				dir = axisNegX
			}
		} else {
			dir = delta.Mul(1 / dist)
		}

		depth := reach - dist
		weight := float32(float64(mj) / total)
		out = out.Sub(dir.Mul(depth * weight))
	}

	return out, overlaps
}

// resolvePass fills store.pending for every body. Grid and store.positions
// must not change until it returns. scratch and overlaps are indexed by
// worker id and need pool.NumWorkers()+1 entries.
//
// Returns the number of overlapping ordered pairs.
func resolvePass(pool *WorkerPool, grid *spatial.Grid, store *BodyStore, scratch [][]uint32, overlaps []int) int {
	back, front := store.positions, store.pending
	radii, masses := store.radii, store.masses

	for w := range overlaps {
		overlaps[w] = 0
	}

	pool.ParallelFor(len(back), func(worker, start, end int) {
		buf := scratch[worker]
		count := 0
		for i := start; i < end; i++ {
			buf = grid.AppendNeighbors(buf[:0], back[i])
			var n int
			front[i], n = resolveBody(i, back, radii, masses, buf)
			count += n
		}
		scratch[worker] = buf
		overlaps[worker] += count
	})

	total := 0
	for _, c := range overlaps {
		total += c
	}
	return total
}

// commitPass publishes pending as authoritative and notifies each body once.
func commitPass(pool *WorkerPool, store *BodyStore) {
	pool.ParallelFor(store.Len(), func(_, start, end int) {
		for i := start; i < end; i++ {
			p := store.pending[i]
			store.positions[i] = p
			store.bodies[i].SetPosition(p)
		}
	})
}
