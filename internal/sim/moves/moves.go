// Package moves turns a voxel path into turtle commands.
package moves

import (
	"errors"
	"fmt"

	"turtlemanager.dev/internal/sim/pathfind"
)

// Turtle command vocabulary.
const (
	East  = "east"
	West  = "west"
	North = "north"
	South = "south"
	Up    = "up"
	Down  = "down"

	FaceEast  = "faceeast"
	FaceWest  = "facewest"
	FaceNorth = "facenorth"
	FaceSouth = "facesouth"

	Dig     = "dig"
	DigUp   = "digup"
	DigDown = "digdown"
)

var ErrInvalidStep = errors.New("moves: invalid step")

// InvalidStepError reports a pair of consecutive path cells that are not unit neighbors.
type InvalidStepError struct {
	Index    int
	From, To pathfind.Pos
}

func (e *InvalidStepError) Error() string {
	return fmt.Sprintf("moves: invalid step %d: %v -> %v", e.Index, e.From, e.To)
}

func (e *InvalidStepError) Unwrap() error { return ErrInvalidStep }

type step struct {
	move string
	face string // empty for vertical moves, which need no turn
	dig  string
}

var steps = map[pathfind.Pos]step{
	{X: 1}:  {move: East, face: FaceEast, dig: Dig},
	{X: -1}: {move: West, face: FaceWest, dig: Dig},
	{Z: -1}: {move: North, face: FaceNorth, dig: Dig},
	{Z: 1}:  {move: South, face: FaceSouth, dig: Dig},
	{Y: 1}:  {move: Up, dig: DigUp},
	{Y: -1}: {move: Down, dig: DigDown},
}

// Direction returns the move command for a unit offset.
func Direction(d pathfind.Pos) (string, bool) {
	s, ok := steps[d]
	return s.move, ok
}

// Translate emits one move per path step, preceded by a dig when the entered cell costs
// more than an open cell. Horizontal digs turn to face the cell first. Paths shorter than
// two cells produce an empty command list.
func Translate(g *pathfind.Grid, path []pathfind.Pos) ([]string, error) {
	out := make([]string, 0, 2*len(path))
	for i := 1; i < len(path); i++ {
		from, to := path[i-1], path[i]
		s, ok := steps[to.Sub(from)]
		if !ok {
			return nil, &InvalidStepError{Index: i, From: from, To: to}
		}
		if cost, in := g.Cost(to); in && cost > pathfind.CostOpen {
			if s.face != "" {
				out = append(out, s.face)
			}
			out = append(out, s.dig)
		}
		out = append(out, s.move)
	}
	return out, nil
}

// Count tallies commands by kind. Handy for log lines.
func Count(cmds []string) (movesN, digs int) {
	for _, c := range cmds {
		switch c {
		case Dig, DigUp, DigDown:
			digs++
		case East, West, North, South, Up, Down:
			movesN++
		}
	}
	return movesN, digs
}
