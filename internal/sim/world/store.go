package world

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"turtlemanager.dev/internal/persistence/snapshot"
	"turtlemanager.dev/internal/sim/moves"
	"turtlemanager.dev/internal/sim/pathfind"
)

var ErrNoPath = errors.New("world: no path")

type PathRequest struct {
	// ID tags the query in logs. Generated when empty.
	ID      string
	Source  string
	Start   pathfind.Pos
	Goal    pathfind.Pos
	JobID   uint64
	Padding int
	CanDig  bool
}

type Route struct {
	ID    string         `json:"id"`
	Goal  pathfind.Pos   `json:"goal"`
	Path  []pathfind.Pos `json:"path"`
	Steps []string       `json:"steps"`
	Cost  uint64         `json:"cost"`
}

// Store owns the one World of the process. Queries share a read lock, block reports take
// the write lock.
type Store struct {
	mu sync.RWMutex
	w  *World

	// saveMu serializes snapshot file writes; it is never held together with mu's write side.
	saveMu sync.Mutex

	queryLog QueryLogger
	reportLg ReportLogger
	snapRec  SnapshotRecorder

	now func() time.Time
}

func NewStore(w *World) *Store {
	return &Store{w: w, now: time.Now}
}

// Observer setters must be called before the store is shared.
func (s *Store) SetQueryLogger(l QueryLogger)           { s.queryLog = l }
func (s *Store) SetReportLogger(l ReportLogger)         { s.reportLg = l }
func (s *Store) SetSnapshotRecorder(r SnapshotRecorder) { s.snapRec = r }

func (s *Store) Config() WorldConfig { return s.w.Config() }

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Len()
}

func (s *Store) Lookup(p pathfind.Pos) (Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Lookup(p)
}

// ApplyBlocks upserts a batch of reported blocks and returns how many cells changed.
func (s *Store) ApplyBlocks(source string, blocks []Block) int {
	var changes []BlockChange
	s.mu.Lock()
	for _, b := range blocks {
		if prev, changed := s.w.Upsert(b.Pos, b.Type); changed {
			changes = append(changes, BlockChange{Pos: b.Pos.Array(), From: prev, To: b.Type})
		}
	}
	s.mu.Unlock()

	if s.reportLg != nil {
		_ = s.reportLg.WriteReport(ReportLogEntry{
			Time:     s.now().UTC(),
			Source:   source,
			Received: len(blocks),
			Changes:  changes,
		})
	}
	return len(changes)
}

// Path plans and translates a route. It returns ErrNoPath when the goal is unreachable.
func (s *Store) Path(req PathRequest) (Route, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	started := s.now()

	s.mu.RLock()
	plan, err := s.w.PathQuery(req.Start, req.Goal, req.Padding, req.CanDig)
	s.mu.RUnlock()

	entry := QueryLogEntry{
		ID:      req.ID,
		Time:    started.UTC(),
		Source:  req.Source,
		Start:   req.Start.Array(),
		Goal:    plan.Goal.Array(),
		JobID:   req.JobID,
		Padding: req.Padding,
		CanDig:  req.CanDig,
	}
	if plan.Grid != nil {
		entry.GridCells = plan.Grid.Len()
	}

	route, err := s.finish(req, plan, err)
	entry.DurationMS = float64(s.now().Sub(started).Microseconds()) / 1000
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.Found = true
		entry.PathLen = len(route.Path)
		entry.Moves, entry.Digs = moves.Count(route.Steps)
		entry.Cost = route.Cost
	}
	if s.queryLog != nil {
		_ = s.queryLog.WriteQuery(entry)
	}
	return route, err
}

func (s *Store) finish(req PathRequest, plan Plan, err error) (Route, error) {
	if err != nil {
		return Route{}, fmt.Errorf("path query: %w", err)
	}
	if !plan.Found {
		return Route{}, ErrNoPath
	}
	steps, err := moves.Translate(plan.Grid, plan.Path)
	if err != nil {
		return Route{}, fmt.Errorf("translate path: %w", err)
	}
	cost, _ := pathfind.PathCost(plan.Grid, plan.Path)
	return Route{ID: req.ID, Goal: plan.Goal, Path: plan.Path, Steps: steps, Cost: cost}, nil
}

// PathContext runs Path but stops waiting once ctx is done. The search itself is not
// interruptible and finishes in the background.
func (s *Store) PathContext(ctx context.Context, req PathRequest) (Route, error) {
	type result struct {
		r   Route
		err error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := s.Path(req)
		ch <- result{r, err}
	}()
	select {
	case res := <-ch:
		return res.r, res.err
	case <-ctx.Done():
		return Route{}, ctx.Err()
	}
}

// Save writes a snapshot of the current blocks to path. Blocks are copied under the read
// lock and encoded after releasing it.
func (s *Store) Save(path string) (SnapshotInfo, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	started := s.now()
	s.mu.RLock()
	snap := s.w.ExportSnapshot(started)
	s.mu.RUnlock()

	info := SnapshotInfo{
		Path:   path,
		Time:   started.UTC(),
		Blocks: snap.Header.Blocks,
		Types:  snap.Header.Types,
	}
	err := snapshot.WriteSnapshot(path, snap)
	if err == nil {
		if st, statErr := os.Stat(path); statErr == nil {
			info.Bytes = st.Size()
		}
	}
	info.Duration = s.now().Sub(started)
	if err != nil {
		err = fmt.Errorf("save snapshot: %w", err)
		info.Err = err.Error()
	}
	if s.snapRec != nil {
		s.snapRec.RecordSnapshot(info)
	}
	return info, err
}

// Load replaces the world with the snapshot at path. A missing file yields an empty world.
func (s *Store) Load(path string) (int, error) {
	snap, err := snapshot.ReadSnapshot(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.mu.Lock()
		s.w.Reset()
		s.mu.Unlock()
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.ImportSnapshot(snap); err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	return s.w.Len(), nil
}

// RunSnapshots saves to path every interval until ctx is cancelled.
func (s *Store) RunSnapshots(ctx context.Context, path string, every time.Duration, logger *log.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			info, err := s.Save(path)
			if logger == nil {
				continue
			}
			if err != nil {
				logger.Printf("snapshot failed: %v", err)
				continue
			}
			logger.Printf("snapshot: %d blocks -> %s (%s, %s)",
				info.Blocks, info.Path, humanize.Bytes(uint64(info.Bytes)), info.Duration.Round(time.Millisecond))
		}
	}
}
