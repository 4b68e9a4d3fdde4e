package spatial

import (
	"errors"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

// TestNewGrid_RejectsInvalidCellSize verifies zero, negative and non-finite cell sizes are rejected
func TestNewGrid_RejectsInvalidCellSize(t *testing.T) {
	tests := []struct {
		name     string
		cellSize float32
	}{
		{"zero", 0},
		{"negative", -1},
		{"NaN", float32(math.NaN())},
		{"+Inf", float32(math.Inf(1))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewGrid(tt.cellSize, 16, PlaneXY)
			if !errors.Is(err, ErrInvalidCellSize) {
				t.Errorf("NewGrid(%v) error = %v, want ErrInvalidCellSize", tt.cellSize, err)
			}
			if g != nil {
				t.Error("NewGrid returned a grid alongside an error")
			}
		})
	}
}

// TestNewGrid_NegativeCapacityIsHint verifies a negative capacity is treated as a hint, not a limit
func TestNewGrid_NegativeCapacityIsHint(t *testing.T) {
	g, err := NewGrid(1, -5, PlaneXY)
	if err != nil {
		t.Fatalf("NewGrid failed: %v", err)
	}
	for i := 0; i < 100; i++ {
		g.Insert(mgl32.Vec3{float32(i), 0, 0}, uint32(i))
	}
	if g.Len() != 100 {
		t.Errorf("Len() = %d, want 100", g.Len())
	}
}

// TestGrid_CellOf verifies positions floor into cells on both sides of the origin
func TestGrid_CellOf(t *testing.T) {
	g, _ := NewGrid(2, 0, PlaneXY)

	tests := []struct {
		pos  mgl32.Vec3
		want Cell
	}{
		{mgl32.Vec3{0, 0, 0}, Cell{0, 0}},
		{mgl32.Vec3{1.99, 1.99, 0}, Cell{0, 0}},
		{mgl32.Vec3{2, 2, 0}, Cell{1, 1}},
		{mgl32.Vec3{-0.1, -0.1, 0}, Cell{-1, -1}},
		{mgl32.Vec3{-2, -2.01, 0}, Cell{-1, -2}},
		{mgl32.Vec3{5, -5, 99}, Cell{2, -3}},
	}

	for _, tt := range tests {
		if got := g.CellOf(tt.pos); got != tt.want {
			t.Errorf("CellOf(%v) = %v, want %v", tt.pos, got, tt.want)
		}
	}
}

// TestGrid_CellOfSaturates verifies huge coordinates clamp to int32 and neighbor queries do not wrap
func TestGrid_CellOfSaturates(t *testing.T) {
	g, _ := NewGrid(1, 0, PlaneXY)

	got := g.CellOf(mgl32.Vec3{1e30, -1e30, 0})
	if got.X != math.MaxInt32 || got.Y != math.MinInt32 {
		t.Errorf("CellOf(huge) = %v, want saturated int32 bounds", got)
	}

	// Querying at the saturated edge must not wrap around.
	g.Insert(mgl32.Vec3{1e30, -1e30, 0}, 7)
	g.Insert(mgl32.Vec3{-1e30, 1e30, 0}, 8)
	n := g.QueryNeighbors(mgl32.Vec3{1e30, -1e30, 0})
	if len(n) != 1 || n[0] != 7 {
		t.Errorf("QueryNeighbors at edge = %v, want [7]", n)
	}
}

// TestGrid_PlaneXZIgnoresY verifies the XZ plane buckets by x and z only
func TestGrid_PlaneXZIgnoresY(t *testing.T) {
	g, _ := NewGrid(1, 0, PlaneXZ)

	a := g.CellOf(mgl32.Vec3{3.5, -100, 4.5})
	b := g.CellOf(mgl32.Vec3{3.5, 100, 4.5})
	if a != b || a != (Cell{3, 4}) {
		t.Errorf("CellOf on XZ plane = %v / %v, want {3 4}", a, b)
	}
}

// TestGrid_QueryEmpty verifies an empty grid returns an empty, non-nil slice
func TestGrid_QueryEmpty(t *testing.T) {
	g, _ := NewGrid(1, 0, PlaneXY)

	got := g.QueryNeighbors(mgl32.Vec3{10, 10, 0})
	if got == nil {
		t.Fatal("QueryNeighbors returned nil, want empty slice")
	}
	if len(got) != 0 {
		t.Errorf("QueryNeighbors on empty grid = %v, want []", got)
	}
}

// TestGrid_QueryNeighbors3x3 verifies a query returns exactly the 3x3 block around the cell
func TestGrid_QueryNeighbors3x3(t *testing.T) {
	g, _ := NewGrid(1, 0, PlaneXY)

	// One body in every cell of a 5x5 block centred on (0,0).
	idx := uint32(0)
	byCell := make(map[Cell]uint32)
	for x := -2; x <= 2; x++ {
		for y := -2; y <= 2; y++ {
			p := mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, 0}
			g.Insert(p, idx)
			byCell[Cell{int32(x), int32(y)}] = idx
			idx++
		}
	}

	got := g.QueryNeighbors(mgl32.Vec3{0.5, 0.5, 0})
	if len(got) != 9 {
		t.Fatalf("QueryNeighbors returned %d entries, want 9", len(got))
	}

	want := make(map[uint32]bool)
	for x := -1; x <= 1; x++ {
		for y := -1; y <= 1; y++ {
			want[byCell[Cell{int32(x), int32(y)}]] = true
		}
	}
	for _, i := range got {
		if !want[i] {
			t.Errorf("QueryNeighbors returned %d from outside the 3x3 block", i)
		}
	}
}

// TestGrid_QueryMatchesBruteForce verifies queries match a direct scan of
// every inserted position
func TestGrid_QueryMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	g, _ := NewGrid(1.5, 64, PlaneXY)

	positions := make([]mgl32.Vec3, 500)
	for i := range positions {
		positions[i] = mgl32.Vec3{rng.Float32()*40 - 20, rng.Float32()*40 - 20, 0}
		g.Insert(positions[i], uint32(i))
	}

	for q := 0; q < 100; q++ {
		query := mgl32.Vec3{rng.Float32()*44 - 22, rng.Float32()*44 - 22, 0}
		qc := g.CellOf(query)

		var want []uint32
		for i, p := range positions {
			c := g.CellOf(p)
			if abs32(c.X-qc.X) <= 1 && abs32(c.Y-qc.Y) <= 1 {
				want = append(want, uint32(i))
			}
		}

		got := g.QueryNeighbors(query)
		sortIdx(got)
		sortIdx(want)
		if !equalIdx(got, want) {
			t.Fatalf("query %v: got %v, want %v", query, got, want)
		}
	}
}

// TestGrid_AppendNeighborsReusesBuffer verifies scratch buffers are reused without reallocation
func TestGrid_AppendNeighborsReusesBuffer(t *testing.T) {
	g, _ := NewGrid(1, 0, PlaneXY)
	g.Insert(mgl32.Vec3{0, 0, 0}, 1)
	g.Insert(mgl32.Vec3{0.5, 0.5, 0}, 2)

	scratch := make([]uint32, 0, 32)
	scratch = g.AppendNeighbors(scratch[:0], mgl32.Vec3{0, 0, 0})
	if len(scratch) != 2 {
		t.Fatalf("AppendNeighbors returned %d entries, want 2", len(scratch))
	}

	scratch = g.AppendNeighbors(scratch[:0], mgl32.Vec3{50, 50, 0})
	if len(scratch) != 0 {
		t.Errorf("AppendNeighbors after reset = %v, want []", scratch)
	}
	if cap(scratch) != 32 {
		t.Errorf("scratch capacity changed to %d, want 32", cap(scratch))
	}
}

// TestGrid_ClearRetainsThenPrunes verifies Clear keeps buckets for one step and then releases them
func TestGrid_ClearRetainsThenPrunes(t *testing.T) {
	g, _ := NewGrid(1, 0, PlaneXY)
	g.Insert(mgl32.Vec3{0, 0, 0}, 0)
	g.Insert(mgl32.Vec3{10, 10, 0}, 1)

	g.Clear()
	if g.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", g.Len())
	}
	if n := g.QueryNeighbors(mgl32.Vec3{0, 0, 0}); len(n) != 0 {
		t.Errorf("query after Clear = %v, want []", n)
	}
	stats := g.Stats()
	if stats.RetainedCells != 2 || stats.OccupiedCells != 0 {
		t.Errorf("after first Clear: retained=%d occupied=%d, want 2/0", stats.RetainedCells, stats.OccupiedCells)
	}

	// Reoccupy one bucket; the other stays empty for a whole step and is released.
	g.Insert(mgl32.Vec3{0, 0, 0}, 0)
	g.Clear()
	if got := g.Stats().RetainedCells; got != 1 {
		t.Errorf("retained cells after second Clear = %d, want 1", got)
	}
}

// TestGrid_Stats verifies occupancy counters
func TestGrid_Stats(t *testing.T) {
	g, _ := NewGrid(1, 0, PlaneXY)
	g.Insert(mgl32.Vec3{0.1, 0.1, 0}, 0)
	g.Insert(mgl32.Vec3{0.2, 0.2, 0}, 1)
	g.Insert(mgl32.Vec3{0.3, 0.3, 0}, 2)
	g.Insert(mgl32.Vec3{5, 5, 0}, 3)

	s := g.Stats()
	if s.OccupiedCells != 2 {
		t.Errorf("OccupiedCells = %d, want 2", s.OccupiedCells)
	}
	if s.TotalEntries != 4 {
		t.Errorf("TotalEntries = %d, want 4", s.TotalEntries)
	}
	if s.MaxInCell != 3 {
		t.Errorf("MaxInCell = %d, want 3", s.MaxInCell)
	}
	if s.AvgPerOccupied != 2 {
		t.Errorf("AvgPerOccupied = %v, want 2", s.AvgPerOccupied)
	}
}

// TestParsePlane verifies the accepted plane spellings
func TestParsePlane(t *testing.T) {
	tests := []struct {
		in      string
		want    Plane
		wantErr bool
	}{
		{"", PlaneXY, false},
		{"xy", PlaneXY, false},
		{"XZ", PlaneXZ, false},
		{"yz", PlaneXY, true},
	}

	for _, tt := range tests {
		got, err := ParsePlane(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePlane(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParsePlane(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func sortIdx(s []uint32) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}

func equalIdx(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
