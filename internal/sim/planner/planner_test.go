package planner

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"turtlemanager.dev/internal/protocol"
	"turtlemanager.dev/internal/sim/jobs"
	"turtlemanager.dev/internal/sim/pathfind"
	"turtlemanager.dev/internal/sim/world"
)

func newService(t *testing.T, cfg Config) *Service {
	t.Helper()
	w := world.New(world.WorldConfig{
		MinY:           -60,
		MaxY:           318,
		MaxGridCells:   1 << 16,
		AirType:        "minecraft:air",
		Indestructible: []string{"minecraft:bedrock"},
	})
	return New(world.NewStore(w), jobs.NewRegistry(), cfg)
}

func vec(x, y, z int) *[3]int { return &[3]int{x, y, z} }

func TestService_PathWithDefaults(t *testing.T) {
	s := newService(t, Config{Padding: 0, CanDig: true})
	if _, perr := s.Report("t1", protocol.BlocksMsg{Blocks: []protocol.BlockReport{{Pos: [3]int{1, 0, 0}, Type: "minecraft:stone"}}}); perr != nil {
		t.Fatalf("Report: %v", perr)
	}

	got, perr := s.Path(context.Background(), "t1", protocol.PathRequestMsg{RequestID: "r1", Start: [3]int{0, 0, 0}, Goal: vec(2, 0, 0)})
	if perr != nil {
		t.Fatalf("Path: %v", perr)
	}
	if got.Type != protocol.TypePath || got.RequestID != "r1" || got.Cost != 3 {
		t.Fatalf("msg=%+v", got)
	}
	if !reflect.DeepEqual(got.Steps, []string{"faceeast", "dig", "east", "east"}) {
		t.Fatalf("steps=%v", got.Steps)
	}

	noDig := false
	_, perr = s.Path(context.Background(), "t1", protocol.PathRequestMsg{Start: [3]int{0, 0, 0}, Goal: vec(2, 0, 0), CanDig: &noDig})
	if perr == nil || perr.Code != protocol.ErrNoPath {
		t.Fatalf("err=%v want E_NO_PATH", perr)
	}
	pad := 1
	got, perr = s.Path(context.Background(), "t1", protocol.PathRequestMsg{Start: [3]int{0, 0, 0}, Goal: vec(2, 0, 0), CanDig: &noDig, Padding: &pad})
	if perr != nil || len(got.Steps) != 4 {
		t.Fatalf("detour: msg=%+v err=%v", got, perr)
	}
}

func TestService_StartEqualsGoal(t *testing.T) {
	s := newService(t, Config{})
	got, perr := s.Path(context.Background(), "", protocol.PathRequestMsg{Start: [3]int{4, 5, 6}, Goal: vec(4, 5, 6)})
	if perr != nil {
		t.Fatalf("Path: %v", perr)
	}
	if got.Steps == nil || len(got.Steps) != 0 || len(got.Path) != 1 {
		t.Fatalf("msg=%+v", got)
	}
}

func TestService_JobGoal(t *testing.T) {
	s := newService(t, Config{CanDig: true})
	j, err := s.Jobs().Add(jobs.Job{Kind: jobs.KindGoto, Goto: &jobs.GotoSpec{Target: pathfind.Pos{X: 3}}})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	got, perr := s.Path(context.Background(), "", protocol.PathRequestMsg{Start: [3]int{0, 0, 0}, JobID: j.ID})
	if perr != nil {
		t.Fatalf("Path: %v", perr)
	}
	if got.Goal != [3]int{3, 0, 0} || len(got.Steps) != 3 {
		t.Fatalf("msg=%+v", got)
	}

	if _, perr := s.Path(context.Background(), "", protocol.PathRequestMsg{JobID: 99}); perr == nil || perr.Code != protocol.ErrNotFound {
		t.Fatalf("missing job err=%v", perr)
	}
	if _, perr := s.Path(context.Background(), "", protocol.PathRequestMsg{}); perr == nil || perr.Code != protocol.ErrBadRequest {
		t.Fatalf("no goal err=%v", perr)
	}
}

func TestService_TooLargeAndBadReport(t *testing.T) {
	s := newService(t, Config{})
	_, perr := s.Path(context.Background(), "", protocol.PathRequestMsg{Start: [3]int{0, 0, 0}, Goal: vec(100, 100, 100)})
	if perr == nil || perr.Code != protocol.ErrTooLarge {
		t.Fatalf("err=%v want E_TOO_LARGE", perr)
	}
	msg := perr.Msg("r")
	if msg.Type != protocol.TypeError || msg.RequestID != "r" || msg.Message == "" {
		t.Fatalf("error msg=%+v", msg)
	}

	if _, perr := s.Report("", protocol.BlocksMsg{Blocks: []protocol.BlockReport{{Pos: [3]int{0, 0, 0}}}}); perr == nil || perr.Code != protocol.ErrBadRequest {
		t.Fatalf("empty type err=%v", perr)
	}
}

func TestService_Authorized(t *testing.T) {
	open := newService(t, Config{})
	if !open.Authorized("") || !open.Authorized("anything") {
		t.Fatalf("no secret should allow all")
	}
	locked := newService(t, Config{SecretKey: "hunter2"})
	if locked.Authorized("") || locked.Authorized("hunter") || !locked.Authorized("hunter2") {
		t.Fatalf("secret check mismatch")
	}
}

func TestCode(t *testing.T) {
	cases := map[error]string{
		nil:                                     "",
		world.ErrNoPath:                         protocol.ErrNoPath,
		fmt.Errorf("x: %w", pathfind.ErrBounds): protocol.ErrBadRequest,
		context.DeadlineExceeded:                protocol.ErrTimeout,
		errors.New("disk on fire"):              protocol.ErrInternal,
		&Error{Code: protocol.ErrNotFound, Err: errors.New("nope")}: protocol.ErrNotFound,
	}
	for err, want := range cases {
		if got := Code(err); got != want {
			t.Fatalf("Code(%v)=%q want %q", err, got, want)
		}
		if !protocol.IsKnownCode(Code(err)) {
			t.Fatalf("Code(%v) not a known protocol code", err)
		}
	}
}
