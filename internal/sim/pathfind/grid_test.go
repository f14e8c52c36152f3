package pathfind

import (
	"errors"
	"math"
	"testing"
)

func TestGrid_IndexRoundTrip(t *testing.T) {
	boxes := [][2]Pos{
		{{X: 0, Y: 0, Z: 0}, {X: 0, Y: 0, Z: 0}},
		{{X: -3, Y: -2, Z: -1}, {X: 2, Y: 1, Z: 4}},
		{{X: 100, Y: -60, Z: -7}, {X: 104, Y: -58, Z: -7}},
	}
	for _, b := range boxes {
		g, err := NewGrid(b[0], b[1], CostOpen)
		if err != nil {
			t.Fatalf("NewGrid(%v, %v): %v", b[0], b[1], err)
		}
		seen := make([]bool, g.Len())
		for x := b[0].X; x <= b[1].X; x++ {
			for y := b[0].Y; y <= b[1].Y; y++ {
				for z := b[0].Z; z <= b[1].Z; z++ {
					p := Pos{X: x, Y: y, Z: z}
					i, ok := g.Index(p)
					if !ok {
						t.Fatalf("Index(%v) out of bounds", p)
					}
					if seen[i] {
						t.Fatalf("Index(%v)=%d reused", p, i)
					}
					seen[i] = true
					if got := g.Pos(i); got != p {
						t.Fatalf("Pos(Index(%v))=%v", p, got)
					}
				}
			}
		}
		for i, ok := range seen {
			if !ok {
				t.Fatalf("index %d never produced", i)
			}
		}
	}
}

func TestGrid_IndexLayout(t *testing.T) {
	g, err := NewGrid(Pos{}, Pos{X: 2, Y: 3, Z: 4}, CostOpen)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	x, y, z := g.Dims()
	if x != 3 || y != 4 || z != 5 || g.Len() != 60 {
		t.Fatalf("dims=%d,%d,%d len=%d", x, y, z, g.Len())
	}
	// z is the fastest-varying axis, x the slowest.
	if i, _ := g.Index(Pos{Z: 1}); i != 1 {
		t.Fatalf("z step index=%d want 1", i)
	}
	if i, _ := g.Index(Pos{Y: 1}); i != 5 {
		t.Fatalf("y step index=%d want 5", i)
	}
	if i, _ := g.Index(Pos{X: 1}); i != 20 {
		t.Fatalf("x step index=%d want 20", i)
	}
}

func TestGrid_CostsAndBounds(t *testing.T) {
	g, err := NewGrid(Pos{X: -1, Y: -1, Z: -1}, Pos{X: 1, Y: 1, Z: 1}, CostOpen)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	for i := 0; i < g.Len(); i++ {
		if g.CostAt(i) != CostOpen {
			t.Fatalf("cell %d cost=%d want default", i, g.CostAt(i))
		}
	}
	if !g.SetCost(Pos{}, CostDig) {
		t.Fatalf("SetCost in bounds returned false")
	}
	if c, ok := g.Cost(Pos{}); !ok || c != CostDig {
		t.Fatalf("Cost=%d,%v", c, ok)
	}
	if g.SetCost(Pos{X: 2}, CostBlocked) {
		t.Fatalf("SetCost out of bounds returned true")
	}
	if _, ok := g.Cost(Pos{Y: -2}); ok {
		t.Fatalf("Cost out of bounds reported ok")
	}
	if g.Passable(Pos{Z: 5}) {
		t.Fatalf("out of bounds cell reported passable")
	}
	if _, ok := g.Index(Pos{X: math.MinInt, Y: 0, Z: 0}); ok {
		t.Fatalf("extreme coordinate reported in bounds")
	}
}

func TestNewGrid_Errors(t *testing.T) {
	if _, err := NewGrid(Pos{X: 1}, Pos{X: 0}, CostOpen); !errors.Is(err, ErrBounds) {
		t.Fatalf("inverted box err=%v want ErrBounds", err)
	}
	if _, err := NewGrid(Pos{X: math.MinInt}, Pos{X: math.MaxInt}, CostOpen); !errors.Is(err, ErrGridTooLarge) {
		t.Fatalf("full-range box err=%v want ErrGridTooLarge", err)
	}
	if _, err := NewGrid(Pos{}, Pos{X: 1 << 11, Y: 1 << 11, Z: 1 << 11}, CostOpen); !errors.Is(err, ErrGridTooLarge) {
		t.Fatalf("oversized volume err=%v want ErrGridTooLarge", err)
	}
	n, err := Volume(Pos{X: -2, Y: -2, Z: -2}, Pos{X: 2, Y: 2, Z: 2})
	if err != nil || n != 125 {
		t.Fatalf("Volume=%d,%v want 125", n, err)
	}
}
