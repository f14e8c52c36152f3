// Package jobs holds the work orders a turtle can be handed. Only their path goal is
// consumed by the planner; scheduling is left to the turtles.
package jobs

import (
	"errors"
	"fmt"
	"sync"

	"turtlemanager.dev/internal/sim/pathfind"
)

type Kind string

const (
	KindGoto      Kind = "GOTO"
	KindQuarry    Kind = "QUARRY"
	KindStripMine Kind = "STRIP_MINE"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusPaused, StatusDone, StatusFailed:
		return true
	}
	return false
}

type Direction string

const (
	PosX Direction = "+x"
	NegX Direction = "-x"
	PosY Direction = "+y"
	NegY Direction = "-y"
	PosZ Direction = "+z"
	NegZ Direction = "-z"
)

// Offset returns the unit vector for d.
func (d Direction) Offset() (pathfind.Pos, bool) {
	switch d {
	case PosX:
		return pathfind.Pos{X: 1}, true
	case NegX:
		return pathfind.Pos{X: -1}, true
	case PosY:
		return pathfind.Pos{Y: 1}, true
	case NegY:
		return pathfind.Pos{Y: -1}, true
	case PosZ:
		return pathfind.Pos{Z: 1}, true
	case NegZ:
		return pathfind.Pos{Z: -1}, true
	}
	return pathfind.Pos{}, false
}

type GotoSpec struct {
	Target    pathfind.Pos `json:"target"`
	Tolerance float64      `json:"tolerance"`
}

type QuarrySpec struct {
	TopCorner    pathfind.Pos  `json:"top_corner"`
	BottomCorner pathfind.Pos  `json:"bottom_corner"`
	Valuables    []string      `json:"valuables,omitempty"`
	Storage      *pathfind.Pos `json:"storage,omitempty"`
	DumpSite     *pathfind.Pos `json:"dump_site,omitempty"`
}

type StripMineSpec struct {
	Start     pathfind.Pos `json:"start"`
	Direction Direction    `json:"direction"`
	Length    int          `json:"length"`
	Spacing   int          `json:"spacing"`
	Lanes     int          `json:"lanes"`
}

// Job is a tagged union: exactly the payload matching Kind is set.
type Job struct {
	ID         uint64  `json:"id"`
	Status     Status  `json:"status"`
	Progress   float64 `json:"progress"`
	AssignedTo *int    `json:"assigned_to,omitempty"`
	Kind       Kind    `json:"kind"`

	Goto      *GotoSpec      `json:"goto,omitempty"`
	Quarry    *QuarrySpec    `json:"quarry,omitempty"`
	StripMine *StripMineSpec `json:"strip_mine,omitempty"`
}

var ErrInvalidJob = errors.New("jobs: invalid job")

func (j Job) Validate() error {
	set := 0
	for _, ok := range []bool{j.Goto != nil, j.Quarry != nil, j.StripMine != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: want exactly one payload, got %d", ErrInvalidJob, set)
	}
	if j.Status != "" && !j.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidJob, j.Status)
	}
	if j.Progress < 0 || j.Progress > 1 {
		return fmt.Errorf("%w: progress %v outside [0,1]", ErrInvalidJob, j.Progress)
	}
	switch j.Kind {
	case KindGoto:
		if j.Goto == nil {
			return fmt.Errorf("%w: %s without goto payload", ErrInvalidJob, j.Kind)
		}
		if j.Goto.Tolerance < 0 {
			return fmt.Errorf("%w: negative tolerance", ErrInvalidJob)
		}
	case KindQuarry:
		if j.Quarry == nil {
			return fmt.Errorf("%w: %s without quarry payload", ErrInvalidJob, j.Kind)
		}
	case KindStripMine:
		sm := j.StripMine
		if sm == nil {
			return fmt.Errorf("%w: %s without strip_mine payload", ErrInvalidJob, j.Kind)
		}
		if _, ok := sm.Direction.Offset(); !ok {
			return fmt.Errorf("%w: unknown direction %q", ErrInvalidJob, sm.Direction)
		}
		if sm.Length <= 0 || sm.Lanes <= 0 || sm.Spacing < 0 {
			return fmt.Errorf("%w: strip mine needs length>0, lanes>0, spacing>=0", ErrInvalidJob)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidJob, j.Kind)
	}
	return nil
}

// PathGoal is the cell a turtle must reach to begin the job.
func (j Job) PathGoal() (pathfind.Pos, bool) {
	switch {
	case j.Kind == KindGoto && j.Goto != nil:
		return j.Goto.Target, true
	case j.Kind == KindQuarry && j.Quarry != nil:
		return j.Quarry.TopCorner, true
	case j.Kind == KindStripMine && j.StripMine != nil:
		return j.StripMine.Start, true
	}
	return pathfind.Pos{}, false
}

// Registry keeps jobs in submission order.
type Registry struct {
	mu   sync.RWMutex
	next uint64
	jobs []Job
	byID map[uint64]int
}

func NewRegistry() *Registry {
	return &Registry{next: 1, byID: map[uint64]int{}}
}

// Add validates j, assigns the next id and stores it. A blank status becomes pending.
func (r *Registry) Add(j Job) (Job, error) {
	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	j.ID = r.next
	r.next++
	r.byID[j.ID] = len(r.jobs)
	r.jobs = append(r.jobs, j)
	return j, nil
}

func (r *Registry) Get(id uint64) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byID[id]
	if !ok {
		return Job{}, false
	}
	return r.jobs[i], true
}

func (r *Registry) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}
