package pathfind

import (
	"errors"
	"fmt"
	"math"
)

// Per-cell entry cost. Anything above CostOpen is an obstacle the turtle has to dig through.
const (
	CostBlocked uint16 = 0
	CostOpen    uint16 = 1
	CostDig     uint16 = 2
)

// MaxCells keeps cell indexes addressable by the int32 predecessor links in FindPath.
const MaxCells = math.MaxInt32

var (
	ErrBounds       = errors.New("pathfind: min corner exceeds max corner")
	ErrGridTooLarge = errors.New("pathfind: grid too large")
)

// Grid is a dense box of per-cell costs. Cells are stored x-major:
// index = (ix*ny + iy)*nz + iz with i* measured from the min corner.
type Grid struct {
	min, max   Pos
	nx, ny, nz int
	costs      []uint16
}

// NewGrid allocates the inclusive box [min, max] with every cell set to defaultCost.
func NewGrid(min, max Pos, defaultCost uint16) (*Grid, error) {
	nx, ny, nz, err := dims(min, max)
	if err != nil {
		return nil, err
	}
	n := nx * ny * nz
	costs := make([]uint16, n)
	if defaultCost != 0 {
		for i := range costs {
			costs[i] = defaultCost
		}
	}
	return &Grid{min: min, max: max, nx: nx, ny: ny, nz: nz, costs: costs}, nil
}

// Volume returns the number of cells in [min, max] without allocating.
func Volume(min, max Pos) (int, error) {
	nx, ny, nz, err := dims(min, max)
	if err != nil {
		return 0, err
	}
	return nx * ny * nz, nil
}

func dims(min, max Pos) (nx, ny, nz int, err error) {
	if nx, err = extent(min.X, max.X); err != nil {
		return 0, 0, 0, fmt.Errorf("x: %w", err)
	}
	if ny, err = extent(min.Y, max.Y); err != nil {
		return 0, 0, 0, fmt.Errorf("y: %w", err)
	}
	if nz, err = extent(min.Z, max.Z); err != nil {
		return 0, 0, 0, fmt.Errorf("z: %w", err)
	}
	// Each extent is below 2^31 so neither product can wrap a uint64.
	plane := uint64(nx) * uint64(ny)
	if plane > MaxCells || plane*uint64(nz) > MaxCells {
		return 0, 0, 0, fmt.Errorf("%dx%dx%d: %w", nx, ny, nz, ErrGridTooLarge)
	}
	return nx, ny, nz, nil
}

func extent(lo, hi int) (int, error) {
	if hi < lo {
		return 0, ErrBounds
	}
	// Two's complement subtraction is exact here because hi >= lo.
	d := uint64(hi) - uint64(lo)
	if d >= MaxCells {
		return 0, ErrGridTooLarge
	}
	return int(d) + 1, nil
}

func (g *Grid) Min() Pos            { return g.min }
func (g *Grid) Max() Pos            { return g.max }
func (g *Grid) Dims() (x, y, z int) { return g.nx, g.ny, g.nz }
func (g *Grid) Len() int            { return len(g.costs) }

func (g *Grid) InBounds(p Pos) bool {
	return p.X >= g.min.X && p.X <= g.max.X &&
		p.Y >= g.min.Y && p.Y <= g.max.Y &&
		p.Z >= g.min.Z && p.Z <= g.max.Z
}

// Index maps p to its flat cell index. ok is false outside the box.
func (g *Grid) Index(p Pos) (idx int, ok bool) {
	if !g.InBounds(p) {
		return 0, false
	}
	ix := p.X - g.min.X
	iy := p.Y - g.min.Y
	iz := p.Z - g.min.Z
	return (ix*g.ny+iy)*g.nz + iz, true
}

// Pos is the inverse of Index. idx must be in [0, Len()).
func (g *Grid) Pos(idx int) Pos {
	plane := g.ny * g.nz
	ix := idx / plane
	rem := idx % plane
	return Pos{
		X: g.min.X + ix,
		Y: g.min.Y + rem/g.nz,
		Z: g.min.Z + rem%g.nz,
	}
}

// SetCost is a no-op returning false when p is outside the box.
func (g *Grid) SetCost(p Pos, cost uint16) bool {
	i, ok := g.Index(p)
	if !ok {
		return false
	}
	g.costs[i] = cost
	return true
}

func (g *Grid) Cost(p Pos) (uint16, bool) {
	i, ok := g.Index(p)
	if !ok {
		return 0, false
	}
	return g.costs[i], true
}

func (g *Grid) CostAt(idx int) uint16 { return g.costs[idx] }

func (g *Grid) Passable(p Pos) bool {
	c, ok := g.Cost(p)
	return ok && c != CostBlocked
}
