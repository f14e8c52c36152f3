package world

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"turtlemanager.dev/internal/persistence/snapshot"
	"turtlemanager.dev/internal/sim/pathfind"
)

type Block struct {
	Pos  pathfind.Pos `json:"pos"`
	Type string       `json:"type"`
}

type WorldConfig struct {
	// Goal heights are clamped into [MinY, MaxY].
	MinY int
	MaxY int
	// MaxGridCells caps the bounding box of a single query. Zero means pathfind.MaxCells.
	MaxGridCells   int
	AirType        string
	Indestructible []string
}

// World is the set of blocks reported by turtles. It is not safe for concurrent use;
// Store provides the locking.
type World struct {
	cfg            WorldConfig
	indestructible map[string]bool
	blocks         map[pathfind.Pos]string
}

func New(cfg WorldConfig) *World {
	if cfg.MaxGridCells <= 0 || cfg.MaxGridCells > pathfind.MaxCells {
		cfg.MaxGridCells = pathfind.MaxCells
	}
	ind := make(map[string]bool, len(cfg.Indestructible))
	for _, t := range cfg.Indestructible {
		ind[t] = true
	}
	return &World{
		cfg:            cfg,
		indestructible: ind,
		blocks:         map[pathfind.Pos]string{},
	}
}

func (w *World) Config() WorldConfig { return w.cfg }

// Upsert records typ at p, replacing whatever was known there. Air is stored too so a
// later report can clear a previously solid cell.
func (w *World) Upsert(p pathfind.Pos, typ string) (prev string, changed bool) {
	prev, ok := w.blocks[p]
	if ok && prev == typ {
		return prev, false
	}
	w.blocks[p] = typ
	return prev, true
}

func (w *World) Lookup(p pathfind.Pos) (Block, bool) {
	typ, ok := w.blocks[p]
	if !ok {
		return Block{}, false
	}
	return Block{Pos: p, Type: typ}, true
}

func (w *World) Len() int { return len(w.blocks) }

// Blocks returns every known block ordered by x, then y, then z.
func (w *World) Blocks() []Block {
	out := make([]Block, 0, len(w.blocks))
	for p, typ := range w.blocks {
		out = append(out, Block{Pos: p, Type: typ})
	}
	slices.SortFunc(out, func(a, b Block) int { return comparePos(a.Pos, b.Pos) })
	return out
}

func (w *World) Reset() { w.blocks = map[pathfind.Pos]string{} }

func (w *World) IsSolid(typ string) bool { return typ != w.cfg.AirType }

func (w *World) Indestructible(typ string) bool { return w.indestructible[typ] }

// Plan is the outcome of one query. Grid is the exact cost grid the search ran on, so
// the caller can translate Path against it.
type Plan struct {
	Grid  *pathfind.Grid
	Path  []pathfind.Pos
	Found bool
	// Goal after height clamping.
	Goal pathfind.Pos
}

// PathQuery plans a route from start to end over the known blocks.
//
// The search space is the box spanned by start and the clamped goal, grown by padding on
// every side. Unknown cells are assumed open. Known solid blocks cost CostDig when
// canDig is set and the block is not indestructible, otherwise they block. The start
// cell is always passable since the turtle is standing in it.
func (w *World) PathQuery(start, end pathfind.Pos, padding int, canDig bool) (Plan, error) {
	end.Y = min(max(end.Y, w.cfg.MinY), w.cfg.MaxY)
	if padding < 0 {
		padding = 0
	}
	lo := pathfind.Pos{
		X: min(start.X, end.X) - padding,
		Y: min(start.Y, end.Y) - padding,
		Z: min(start.Z, end.Z) - padding,
	}
	hi := pathfind.Pos{
		X: max(start.X, end.X) + padding,
		Y: max(start.Y, end.Y) + padding,
		Z: max(start.Z, end.Z) + padding,
	}
	cells, err := pathfind.Volume(lo, hi)
	if err != nil {
		return Plan{Goal: end}, err
	}
	if cells > w.cfg.MaxGridCells {
		return Plan{Goal: end}, fmt.Errorf("%d cells exceeds limit %d: %w", cells, w.cfg.MaxGridCells, pathfind.ErrGridTooLarge)
	}
	g, err := pathfind.NewGrid(lo, hi, pathfind.CostOpen)
	if err != nil {
		return Plan{Goal: end}, err
	}
	g.SetCost(start, pathfind.CostOpen)
	// Known blocks override the start cell: a turtle reported inside bedrock gets no path.
	w.overlay(g, canDig)

	path, found := pathfind.FindPath(g, start, end)
	return Plan{Grid: g, Path: path, Found: found, Goal: end}, nil
}

func (w *World) overlay(g *pathfind.Grid, canDig bool) {
	// Walk whichever side is smaller: the known blocks or the box.
	if g.Len() < len(w.blocks) {
		for i := 0; i < g.Len(); i++ {
			p := g.Pos(i)
			if typ, ok := w.blocks[p]; ok {
				g.SetCost(p, w.cellCost(typ, canDig))
			}
		}
		return
	}
	for p, typ := range w.blocks {
		if g.InBounds(p) {
			g.SetCost(p, w.cellCost(typ, canDig))
		}
	}
}

func (w *World) cellCost(typ string, canDig bool) uint16 {
	switch {
	case !w.IsSolid(typ):
		return pathfind.CostOpen
	case canDig && !w.Indestructible(typ):
		return pathfind.CostDig
	default:
		return pathfind.CostBlocked
	}
}

// ExportSnapshot captures every known block in deterministic order.
func (w *World) ExportSnapshot(now time.Time) snapshot.BlocksV1 {
	blocks := w.Blocks()
	slot := map[string]uint32{}
	var palette []string
	out := make([]snapshot.BlockV1, 0, len(blocks))
	for _, b := range blocks {
		id, ok := slot[b.Type]
		if !ok {
			id = uint32(len(palette))
			slot[b.Type] = id
			palette = append(palette, b.Type)
		}
		out = append(out, snapshot.BlockV1{Pos: b.Pos.Array(), Type: id})
	}
	return snapshot.BlocksV1{
		Header: snapshot.Header{
			Version:     snapshot.Version,
			SavedAtUnix: now.UnixMilli(),
			Blocks:      len(out),
			Types:       len(palette),
		},
		Palette: palette,
		Blocks:  out,
	}
}

// ImportSnapshot replaces the known blocks with the snapshot contents.
func (w *World) ImportSnapshot(snap snapshot.BlocksV1) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	blocks := make(map[pathfind.Pos]string, len(snap.Blocks))
	for _, b := range snap.Blocks {
		blocks[pathfind.FromArray(b.Pos)] = snap.Palette[b.Type]
	}
	w.blocks = blocks
	return nil
}

func comparePos(a, b pathfind.Pos) int {
	if c := cmp.Compare(a.X, b.X); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Y, b.Y); c != 0 {
		return c
	}
	return cmp.Compare(a.Z, b.Z)
}
