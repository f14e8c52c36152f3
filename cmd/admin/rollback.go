package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"turtlemanager.dev/internal/persistence/snapshot"
	"turtlemanager.dev/internal/sim/world"
)

func rollbackCmd(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	snapPath := fs.String("snapshot", "./data/world.bin", "snapshot to roll back")
	logsDir := fs.String("logs", "./data/logs", "log directory (reads <logs>/reports)")
	aabb := fs.String("aabb", "", "box filter: x1,y1,z1:x2,y2,z2 (required)")
	since := fs.String("since", "", "revert changes at or after this RFC3339 time (required)")
	outPath := fs.String("out", "", "output snapshot path (default: <snapshot>.rollback)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*aabb) == "" || strings.TrimSpace(*since) == "" {
		fmt.Fprintln(os.Stderr, "missing -aabb or -since")
		os.Exit(2)
	}
	min, max, err := parseAABB(*aabb)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -aabb:", err)
		os.Exit(2)
	}
	from, err := time.Parse(time.RFC3339, *since)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -since:", err)
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	to := time.UnixMilli(snap.Header.SavedAtUnix)

	recs, err := readReports(filepath.Join(*logsDir, "reports"), from, to, min, max)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read reports:", err)
		os.Exit(1)
	}
	if len(recs) == 0 {
		fmt.Println("no matching block changes; nothing to roll back")
		return
	}

	out, applied := applyRollback(snap, recs)
	if strings.TrimSpace(*outPath) == "" {
		*outPath = *snapPath + ".rollback"
	}
	if err := snapshot.WriteSnapshot(*outPath, out); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("rollback ok: aabb=%s since=%s changes=%d applied=%d blocks=%d out=%s\n",
		*aabb, from.Format(time.RFC3339), len(recs), applied, out.Header.Blocks, *outPath)
}

type changeRec struct {
	Seq    uint64
	Time   time.Time
	Change world.BlockChange
}

// readReports returns matching changes newest first, so reverting them in order
// restores the oldest From value last.
func readReports(dir string, from, to time.Time, min, max [3]int) ([]changeRec, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range ents {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, "reports-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var (
		out []changeRec
		seq uint64
	)
	for _, name := range names {
		recs, err := readReportFile(filepath.Join(dir, name), &seq, from, to, min, max)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.After(out[j].Time)
		}
		return out[i].Seq > out[j].Seq
	})
	return out, nil
}

func readReportFile(path string, seq *uint64, from, to time.Time, min, max [3]int) ([]changeRec, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []changeRec
	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var e world.ReportLogEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		for _, c := range e.Changes {
			*seq++
			if e.Time.Before(from) || e.Time.After(to) || !withinAABB(c.Pos, min, max) {
				continue
			}
			out = append(out, changeRec{Seq: *seq, Time: e.Time, Change: c})
		}
	}
	return out, sc.Err()
}

// applyRollback restores each change's From type. An empty From means the cell
// was unknown before, so the block is forgotten.
func applyRollback(snap snapshot.BlocksV1, recs []changeRec) (snapshot.BlocksV1, int) {
	blocks := make(map[[3]int]string, len(snap.Blocks))
	for _, b := range snap.Blocks {
		blocks[b.Pos] = snap.Palette[b.Type]
	}
	applied := 0
	for _, r := range recs {
		if r.Change.From == "" {
			delete(blocks, r.Change.Pos)
		} else {
			blocks[r.Change.Pos] = r.Change.From
		}
		applied++
	}

	out := snapshot.BlocksV1{Header: snap.Header}
	out.Header.Note = "rollback"
	slot := map[string]uint32{}
	for pos, typ := range blocks {
		i, ok := slot[typ]
		if !ok {
			i = uint32(len(out.Palette))
			slot[typ] = i
			out.Palette = append(out.Palette, typ)
		}
		out.Blocks = append(out.Blocks, snapshot.BlockV1{Pos: pos, Type: i})
	}
	sort.Slice(out.Blocks, func(i, j int) bool {
		a, b := out.Blocks[i].Pos, out.Blocks[j].Pos
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[2] < b[2]
	})
	out.Header.Blocks = len(out.Blocks)
	out.Header.Types = len(out.Palette)
	return out, applied
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		min[i], max[i] = a[i], b[i]
		if a[i] > b[i] {
			min[i], max[i] = b[i], a[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
