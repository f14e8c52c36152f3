package pathfind

import (
	"container/heap"
	"math"
	"slices"
)

const unreached = math.MaxUint32

// Neighbor expansion order. Part of the tie-break contract: changing it changes which
// of several equal-cost paths is returned.
var neighborDirs = [6]Pos{
	{X: 1}, {X: -1},
	{Y: 1}, {Y: -1},
	{Z: 1}, {Z: -1},
}

type openNode struct {
	f, g uint32
	idx  int32
}

// openSet is a min-heap ordered by (f, g, idx).
type openSet []openNode

func (h openSet) Len() int { return len(h) }
func (h openSet) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.f != b.f {
		return a.f < b.f
	}
	if a.g != b.g {
		return a.g < b.g
	}
	return a.idx < b.idx
}
func (h openSet) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *openSet) Push(x any)   { *h = append(*h, x.(openNode)) }
func (h *openSet) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// FindPath runs A* over g from start to goal with the Manhattan heuristic.
//
// Entering a cell costs its grid value; cost-0 cells are impassable. The heuristic is
// only tight for unit costs, so with dig cells (cost 2) the path may be suboptimal; it is
// always connected and valid. The path includes both endpoints and consecutive entries
// differ by one unit on exactly one axis.
func FindPath(g *Grid, start, goal Pos) ([]Pos, bool) {
	si, ok := g.Index(start)
	if !ok {
		return nil, false
	}
	gi, ok := g.Index(goal)
	if !ok {
		return nil, false
	}
	if g.costs[si] == CostBlocked || g.costs[gi] == CostBlocked {
		return nil, false
	}
	if si == gi {
		return []Pos{start}, true
	}

	n := len(g.costs)
	best := make([]uint32, n)
	for i := range best {
		best[i] = unreached
	}
	parent := make([]int32, n)
	for i := range parent {
		parent[i] = -1
	}

	best[si] = 0
	open := &openSet{{f: heuristic(start, goal), g: 0, idx: int32(si)}}
	for open.Len() > 0 {
		cur := heap.Pop(open).(openNode)
		ci := int(cur.idx)
		if cur.g != best[ci] {
			// Superseded by a cheaper push.
			continue
		}
		if ci == gi {
			return walkBack(g, parent, ci), true
		}
		cp := g.Pos(ci)
		for _, d := range neighborDirs {
			np := cp.Add(d)
			ni, ok := g.Index(np)
			if !ok {
				continue
			}
			step := g.costs[ni]
			if step == CostBlocked {
				continue
			}
			cand := addSat(cur.g, uint32(step))
			if cand >= best[ni] {
				continue
			}
			best[ni] = cand
			parent[ni] = cur.idx
			heap.Push(open, openNode{f: addSat(cand, heuristic(np, goal)), g: cand, idx: int32(ni)})
		}
	}
	return nil, false
}

// PathCost sums the entry cost of every cell after the first. ok is false when a cell
// lies outside g.
func PathCost(g *Grid, path []Pos) (total uint64, ok bool) {
	for i := 1; i < len(path); i++ {
		c, in := g.Cost(path[i])
		if !in {
			return 0, false
		}
		total += uint64(c)
	}
	return total, true
}

func walkBack(g *Grid, parent []int32, i int) []Pos {
	var out []Pos
	for {
		out = append(out, g.Pos(i))
		p := parent[i]
		if p < 0 {
			break
		}
		i = int(p)
	}
	slices.Reverse(out)
	return out
}

func heuristic(a, b Pos) uint32 {
	d := uint64(absInt(a.X-b.X)) + uint64(absInt(a.Y-b.Y)) + uint64(absInt(a.Z-b.Z))
	if d > unreached {
		return unreached
	}
	return uint32(d)
}

func addSat(a, b uint32) uint32 {
	s := a + b
	if s < a {
		return unreached
	}
	return s
}
