package pathfind

import "fmt"

// Pos is an integer voxel coordinate. X is east, Y is up, Z is south.
type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p Pos) Add(d Pos) Pos { return Pos{X: p.X + d.X, Y: p.Y + d.Y, Z: p.Z + d.Z} }

func (p Pos) Sub(o Pos) Pos { return Pos{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z} }

func (p Pos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

// Array returns the coordinate in the [x,y,z] wire shape.
func (p Pos) Array() [3]int { return [3]int{p.X, p.Y, p.Z} }

func FromArray(a [3]int) Pos { return Pos{X: a[0], Y: a[1], Z: a[2]} }

// Manhattan returns |dx|+|dy|+|dz|.
func Manhattan(a, b Pos) int {
	return absInt(a.X-b.X) + absInt(a.Y-b.Y) + absInt(a.Z-b.Z)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
