package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"turtlemanager.dev/internal/sim/world"
)

func TestClient_PutSignsRequest(t *testing.T) {
	var (
		gotPath, gotAuth, gotHash, gotDate string
		gotBody                            []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method=%s", r.Method)
		}
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotHash = r.Header.Get("x-amz-content-sha256")
		gotDate = r.Header.Get("x-amz-date")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	c, err := NewClient(ClientConfig{Endpoint: srv.URL, Bucket: "turtles", AccessKeyID: "AK", SecretAccessKey: "SK"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }

	local := filepath.Join(t.TempDir(), "world.bin")
	if err := os.WriteFile(local, []byte("snapshot bytes"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := c.Put(context.Background(), "/prod//snapshots/world 1.bin", local); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if gotPath != "/turtles/prod/snapshots/world%201.bin" {
		t.Fatalf("path=%q", gotPath)
	}
	if string(gotBody) != "snapshot bytes" {
		t.Fatalf("body=%q", gotBody)
	}
	sum := sha256.Sum256([]byte("snapshot bytes"))
	if gotHash != hex.EncodeToString(sum[:]) {
		t.Fatalf("hash=%q", gotHash)
	}
	if gotDate != "20260501T120000Z" {
		t.Fatalf("date=%q", gotDate)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256 Credential=AK/20260501/auto/s3/aws4_request, SignedHeaders=host;x-amz-content-sha256;x-amz-date, Signature=") {
		t.Fatalf("auth=%q", gotAuth)
	}
}

func TestClient_PutErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "AccessDenied", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := NewClient(ClientConfig{Endpoint: srv.URL, Bucket: "b"}); err == nil {
		t.Fatalf("expected missing keys error")
	}
	c, err := NewClient(ClientConfig{Endpoint: srv.URL, Bucket: "b", AccessKeyID: "a", SecretAccessKey: "s"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	local := filepath.Join(t.TempDir(), "f")
	_ = os.WriteFile(local, []byte("x"), 0o644)

	if err := c.Put(context.Background(), "k", local); err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected status error, got %v", err)
	}
	if err := c.Put(context.Background(), "/", local); err == nil {
		t.Fatalf("expected empty key error")
	}
	if err := c.Put(context.Background(), "k", filepath.Join(t.TempDir(), "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not exist, got %v", err)
	}
}

type fakePutter struct {
	mu    sync.Mutex
	keys  []string
	fails int
	block chan struct{}
}

func (f *fakePutter) Put(_ context.Context, key, _ string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return errors.New("unavailable")
	}
	f.keys = append(f.keys, key)
	return nil
}

func TestMirror_Keys(t *testing.T) {
	base := t.TempDir()
	put := &fakePutter{fails: 1}
	m := NewMirror(put, Options{BaseDir: base, Prefix: "/prod/"}, nil)
	m.sleep = func(time.Duration) {}

	m.Enqueue(filepath.Join(base, "logs", "queries", "queries-2026-05-01-12.jsonl.zst"))
	m.Enqueue(filepath.Join(filepath.Dir(base), "elsewhere.txt"))
	m.RecordSnapshot(world.SnapshotInfo{Path: filepath.Join(base, "world.bin"), Time: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)})
	m.RecordSnapshot(world.SnapshotInfo{Path: filepath.Join(base, "world.bin"), Err: "disk full"})
	m.Close()

	want := map[string]bool{
		"prod/logs/queries/queries-2026-05-01-12.jsonl.zst": true,
		"prod/snapshots/world-20260501T120000Z.bin":         true,
	}
	if len(put.keys) != len(want) {
		t.Fatalf("keys=%v", put.keys)
	}
	for _, k := range put.keys {
		if !want[k] {
			t.Fatalf("unexpected key %q (all=%v)", k, put.keys)
		}
	}
	st := m.Stats()
	if st.EnqueuedTotal != 2 || st.UploadedTotal != 2 || st.FailedTotal != 0 || st.LastUploadUnix == 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestMirror_GivesUpAndDrops(t *testing.T) {
	base := t.TempDir()
	put := &fakePutter{fails: 100}
	m := NewMirror(put, Options{BaseDir: base, Attempts: 2}, nil)
	m.sleep = func(time.Duration) {}
	m.Enqueue(filepath.Join(base, "a"))
	m.Close()
	if st := m.Stats(); st.FailedTotal != 1 || st.UploadedTotal != 0 || st.LastErrorUnix == 0 {
		t.Fatalf("stats=%+v", st)
	}

	block := make(chan struct{})
	put = &fakePutter{block: block}
	m = NewMirror(put, Options{BaseDir: base, Queue: 1, EnqueueWait: time.Millisecond}, nil)
	for i := 0; i < 4; i++ {
		m.Enqueue(filepath.Join(base, "b"))
	}
	close(block)
	m.Close()
	st := m.Stats()
	if st.DroppedTotal == 0 || st.DroppedTotal+st.UploadedTotal != 4 {
		t.Fatalf("stats=%+v", st)
	}
}
