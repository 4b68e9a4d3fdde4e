// Package spatial provides the uniform-cell broad phase used by the
// collision pass.
//
// The grid stores body indices (not pointers) so the store that owns the
// bodies can be rebuilt freely between steps. Positions are mgl32.Vec3, but
// only two of the three components select a cell: the grid always partitions
// a single plane.
package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrInvalidCellSize is returned by NewGrid for a non-positive or non-finite cell size.
var ErrInvalidCellSize = errors.New("spatial: cell size must be a finite value > 0")

// Plane selects which two position components are used as cell axes.
type Plane uint8

const (
	// PlaneXY partitions on (x, y). Default for 2-D worlds.
	PlaneXY Plane = iota
	// PlaneXZ partitions on (x, z), the horizontal plane of a y-up 3-D world.
	PlaneXZ
)

// String returns the config spelling of the plane.
func (p Plane) String() string {
	switch p {
	case PlaneXZ:
		return "xz"
	default:
		return "xy"
	}
}

// ParsePlane parses "xy" or "xz".
func ParsePlane(s string) (Plane, error) {
	switch s {
	case "", "xy", "XY":
		return PlaneXY, nil
	case "xz", "XZ":
		return PlaneXZ, nil
	}
	return PlaneXY, fmt.Errorf("spatial: unknown plane %q (want xy or xz)", s)
}

// Axes returns the two planar components of pos.
func (p Plane) Axes(pos mgl32.Vec3) (a, b float32) {
	if p == PlaneXZ {
		return pos[0], pos[2]
	}
	return pos[0], pos[1]
}

// Cell is an integer cell coordinate.
type Cell struct {
	X, Y int32
}

// Grid is an unbounded spatial hash: Cell -> indices of the bodies whose
// position falls in that cell. A body contributes one entry per rebuild.
//
// Grid is not safe for concurrent mutation. Concurrent readers are fine once
// all inserts for the step are done.
type Grid struct {
	cellSize    float32
	invCellSize float64 // 1/cellSize, division is done in float64
	plane       Plane
	cells       map[Cell][]uint32
	count       int
}

// NewGrid creates a grid. initialCapacity is a hint for the expected number
// of occupied cells, never a limit.
func NewGrid(cellSize float32, initialCapacity int, plane Plane) (*Grid, error) {
	cs := float64(cellSize)
	if !(cs > 0) || math.IsInf(cs, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidCellSize, cellSize)
	}
	if initialCapacity < 0 {
		initialCapacity = 0
	}

	return &Grid{
		cellSize:    cellSize,
		invCellSize: 1.0 / cs,
		plane:       plane,
		cells:       make(map[Cell][]uint32, initialCapacity),
	}, nil
}

// CellSize returns the edge length of a cell.
func (g *Grid) CellSize() float32 { return g.cellSize }

// Plane returns the partitioned plane.
func (g *Grid) Plane() Plane { return g.plane }

// Len returns the number of inserted entries.
func (g *Grid) Len() int { return g.count }

// CellOf computes the cell containing pos by floor division.
func (g *Grid) CellOf(pos mgl32.Vec3) Cell {
	a, b := g.plane.Axes(pos)
	return Cell{
		X: floorToCell(float64(a) * g.invCellSize),
		Y: floorToCell(float64(b) * g.invCellSize),
	}
}

// floorToCell floors v and saturates it into the int32 range. NaN maps to 0.
func floorToCell(v float64) int32 {
	f := math.Floor(v)
	switch {
	case math.IsNaN(f):
		return 0
	case f >= math.MaxInt32:
		return math.MaxInt32
	case f <= math.MinInt32:
		return math.MinInt32
	}
	return int32(f)
}

// Clear resets all buckets without releasing their capacity.
// Buckets that were already empty (unused for a whole step) are released.
func (g *Grid) Clear() {
	for c, bucket := range g.cells {
		if len(bucket) == 0 {
			delete(g.cells, c)
			continue
		}
		g.cells[c] = bucket[:0]
	}
	g.count = 0
}

// Insert appends index under the cell containing pos. O(1) amortised.
func (g *Grid) Insert(pos mgl32.Vec3, index uint32) {
	c := g.CellOf(pos)
	g.cells[c] = append(g.cells[c], index)
	g.count++
}

// QueryNeighbors returns the indices stored in the 3x3 block of cells
// centred on pos's cell. The slice is freshly allocated and owned by the
// caller. Order is unspecified.
func (g *Grid) QueryNeighbors(pos mgl32.Vec3) []uint32 {
	return g.AppendNeighbors(make([]uint32, 0, 16), pos)
}

// AppendNeighbors appends the same set as QueryNeighbors to dst and returns
// the extended slice. Pass dst[:0] to reuse a scratch buffer.
func (g *Grid) AppendNeighbors(dst []uint32, pos mgl32.Vec3) []uint32 {
	center := g.CellOf(pos)

	for dx := int32(-1); dx <= 1; dx++ {
		x, ok := addCell(center.X, dx)
		if !ok {
			continue
		}
		for dy := int32(-1); dy <= 1; dy++ {
			y, ok := addCell(center.Y, dy)
			if !ok {
				continue
			}
			dst = append(dst, g.cells[Cell{x, y}]...)
		}
	}

	return dst
}

// addCell offsets a saturated coordinate, reporting false when the offset
// would leave the int32 range (there is no cell there).
func addCell(v, d int32) (int32, bool) {
	if (d > 0 && v == math.MaxInt32) || (d < 0 && v == math.MinInt32) {
		return 0, false
	}
	return v + d, true
}

// Stats returns grid statistics for debugging/profiling.
func (g *Grid) Stats() GridStats {
	var occupied, maxInCell int
	for _, bucket := range g.cells {
		n := len(bucket)
		if n == 0 {
			continue
		}
		occupied++
		if n > maxInCell {
			maxInCell = n
		}
	}

	avg := 0.0
	if occupied > 0 {
		avg = float64(g.count) / float64(occupied)
	}

	return GridStats{
		CellSize:       g.cellSize,
		Plane:          g.plane.String(),
		OccupiedCells:  occupied,
		RetainedCells:  len(g.cells),
		TotalEntries:   g.count,
		MaxInCell:      maxInCell,
		AvgPerOccupied: avg,
	}
}

// GridStats contains grid statistics for debugging.
type GridStats struct {
	CellSize       float32 `json:"cellSize"`
	Plane          string  `json:"plane"`
	OccupiedCells  int     `json:"occupiedCells"`
	RetainedCells  int     `json:"retainedCells"` // includes empty buckets kept for reuse
	TotalEntries   int     `json:"totalEntries"`
	MaxInCell      int     `json:"maxInCell"`
	AvgPerOccupied float64 `json:"avgPerOccupied"`
}
