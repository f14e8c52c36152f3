// Package planner turns protocol requests into Store calls. The HTTP and WebSocket
// adapters share it so both speak the same defaults and error codes.
package planner

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"turtlemanager.dev/internal/protocol"
	"turtlemanager.dev/internal/sim/jobs"
	"turtlemanager.dev/internal/sim/pathfind"
	"turtlemanager.dev/internal/sim/world"
)

type Config struct {
	SecretKey string
	Padding   int
	CanDig    bool
	// Timeout bounds how long a caller waits for one query. Zero waits forever.
	Timeout time.Duration
}

type Service struct {
	store *world.Store
	jobs  *jobs.Registry
	cfg   Config
}

func New(store *world.Store, reg *jobs.Registry, cfg Config) *Service {
	if reg == nil {
		reg = jobs.NewRegistry()
	}
	return &Service{store: store, jobs: reg, cfg: cfg}
}

func (s *Service) Store() *world.Store  { return s.store }
func (s *Service) Jobs() *jobs.Registry { return s.jobs }

// Authorized reports whether token matches the configured secret. No secret means open access.
func (s *Service) Authorized(token string) bool {
	if s.cfg.SecretKey == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.SecretKey)) == 1
}

func (s *Service) Params() protocol.PathParams {
	wc := s.store.Config()
	return protocol.PathParams{
		Padding: s.cfg.Padding,
		CanDig:  s.cfg.CanDig,
		MinY:    wc.MinY,
		MaxY:    wc.MaxY,
	}
}

// Error is a failed request with its protocol error code.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Msg(requestID string) protocol.ErrorMsg {
	return protocol.NewError(requestID, e.Code, e.Err.Error())
}

func fail(code string, format string, args ...any) *Error {
	return &Error{Code: code, Err: fmt.Errorf(format, args...)}
}

// Path resolves the destination, applies defaults and runs the query.
func (s *Service) Path(ctx context.Context, source string, m protocol.PathRequestMsg) (protocol.PathMsg, *Error) {
	start := pathfind.FromArray(m.Start)
	var goal pathfind.Pos
	switch {
	case m.Goal != nil:
		goal = pathfind.FromArray(*m.Goal)
	case m.JobID != 0:
		j, ok := s.jobs.Get(m.JobID)
		if !ok {
			return protocol.PathMsg{}, fail(protocol.ErrNotFound, "job %d not found", m.JobID)
		}
		g, ok := j.PathGoal()
		if !ok {
			return protocol.PathMsg{}, fail(protocol.ErrBadRequest, "job %d has no destination", m.JobID)
		}
		goal = g
	default:
		return protocol.PathMsg{}, fail(protocol.ErrBadRequest, "goal or job_id required")
	}

	out := protocol.PathMsg{
		Type:            protocol.TypePath,
		ProtocolVersion: protocol.Version,
		RequestID:       m.RequestID,
	}
	if start == goal {
		out.Goal = goal.Array()
		out.Steps = []string{}
		out.Path = [][3]int{start.Array()}
		return out, nil
	}

	req := world.PathRequest{
		ID:      m.RequestID,
		Source:  source,
		Start:   start,
		Goal:    goal,
		JobID:   m.JobID,
		Padding: s.cfg.Padding,
		CanDig:  s.cfg.CanDig,
	}
	if m.Padding != nil {
		req.Padding = *m.Padding
	}
	if m.CanDig != nil {
		req.CanDig = *m.CanDig
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	route, err := s.store.PathContext(ctx, req)
	if err != nil {
		return protocol.PathMsg{}, &Error{Code: Code(err), Err: err}
	}
	out.RequestID = route.ID
	out.Goal = route.Goal.Array()
	out.Steps = route.Steps
	out.Cost = route.Cost
	out.Path = make([][3]int, len(route.Path))
	for i, p := range route.Path {
		out.Path[i] = p.Array()
	}
	return out, nil
}

// Report applies a batch of block observations.
func (s *Service) Report(source string, m protocol.BlocksMsg) (protocol.AckMsg, *Error) {
	blocks := make([]world.Block, 0, len(m.Blocks))
	for i, b := range m.Blocks {
		if b.Type == "" {
			return protocol.AckMsg{}, fail(protocol.ErrBadRequest, "block %d: empty type", i)
		}
		blocks = append(blocks, world.Block{Pos: pathfind.FromArray(b.Pos), Type: b.Type})
	}
	changed := s.store.ApplyBlocks(source, blocks)
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		Received:        len(blocks),
		Changed:         changed,
	}, nil
}

// Code maps a planner error onto a protocol error code.
func Code(err error) string {
	var pe *Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &pe):
		return pe.Code
	case errors.Is(err, world.ErrNoPath):
		return protocol.ErrNoPath
	case errors.Is(err, pathfind.ErrGridTooLarge):
		return protocol.ErrTooLarge
	case errors.Is(err, pathfind.ErrBounds):
		return protocol.ErrBadRequest
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return protocol.ErrTimeout
	default:
		return protocol.ErrInternal
	}
}
