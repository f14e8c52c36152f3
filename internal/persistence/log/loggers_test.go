package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"turtlemanager.dev/internal/sim/world"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()
	var out []string
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestJSONLZstdWriter_Rotates(t *testing.T) {
	dir := t.TempDir()
	var closed []string
	w := NewJSONLZstdWriter(dir, "x", LoggerOptions{OnClose: func(p string) { closed = append(closed, p) }})
	clock := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		if err := w.Write(map[string]int{"i": i}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	clock = clock.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"i": 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	first := filepath.Join(dir, "x-2026-03-01-10.jsonl.zst")
	second := filepath.Join(dir, "x-2026-03-01-11.jsonl.zst")
	if got := readLines(t, first); len(got) != 3 || got[2] != `{"i":2}` {
		t.Fatalf("first file lines=%v", got)
	}
	if got := readLines(t, second); len(got) != 1 {
		t.Fatalf("second file lines=%v", got)
	}
	if len(closed) != 2 || closed[0] != first || closed[1] != second {
		t.Fatalf("OnClose calls=%v", closed)
	}
}

func TestQueryAndReportLoggers(t *testing.T) {
	dir := t.TempDir()
	ql := NewQueryLogger(dir, LoggerOptions{RotateLayout: "2006"})
	rl := NewReportLogger(dir, LoggerOptions{RotateLayout: "2006"})

	if err := ql.WriteQuery(world.QueryLogEntry{ID: "q1", Found: true, Moves: 4}); err != nil {
		t.Fatalf("WriteQuery: %v", err)
	}
	if err := rl.WriteReport(world.ReportLogEntry{Source: "t", Received: 1, Changes: []world.BlockChange{{Pos: [3]int{1, 2, 3}, To: "minecraft:stone"}}}); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	_ = ql.Close()
	_ = rl.Close()

	year := time.Now().UTC().Format("2006")
	lines := readLines(t, filepath.Join(dir, "queries", "queries-"+year+".jsonl.zst"))
	if len(lines) != 1 {
		t.Fatalf("query lines=%v", lines)
	}
	var q world.QueryLogEntry
	if err := json.Unmarshal([]byte(lines[0]), &q); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if q.ID != "q1" || !q.Found || q.Moves != 4 {
		t.Fatalf("entry=%+v", q)
	}

	lines = readLines(t, filepath.Join(dir, "reports", "reports-"+year+".jsonl.zst"))
	var r world.ReportLogEntry
	if len(lines) != 1 || json.Unmarshal([]byte(lines[0]), &r) != nil || len(r.Changes) != 1 {
		t.Fatalf("report lines=%v", lines)
	}
}
