package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"

	"turtlemanager.dev/internal/persistence/snapshot"
)

type typeCount struct {
	Type  string
	Count int
}

type summary struct {
	Header   snapshot.Header
	Min, Max [3]int
	Types    []typeCount
}

func summarize(snap snapshot.BlocksV1) summary {
	s := summary{Header: snap.Header}
	counts := make([]int, len(snap.Palette))
	for i, b := range snap.Blocks {
		counts[b.Type]++
		for k := 0; k < 3; k++ {
			if i == 0 || b.Pos[k] < s.Min[k] {
				s.Min[k] = b.Pos[k]
			}
			if i == 0 || b.Pos[k] > s.Max[k] {
				s.Max[k] = b.Pos[k]
			}
		}
	}
	for i, n := range counts {
		if n > 0 {
			s.Types = append(s.Types, typeCount{Type: snap.Palette[i], Count: n})
		}
	}
	sort.Slice(s.Types, func(i, j int) bool {
		if s.Types[i].Count != s.Types[j].Count {
			return s.Types[i].Count > s.Types[j].Count
		}
		return s.Types[i].Type < s.Types[j].Type
	})
	return s
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	path := fs.String("path", "./data/world.bin", "snapshot path")
	top := fs.Int("top", 15, "block types to list")
	_ = fs.Parse(args)

	st, err := os.Stat(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "stat:", err)
		os.Exit(1)
	}
	snap, err := snapshot.ReadSnapshot(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}
	s := summarize(snap)
	saved := time.UnixMilli(s.Header.SavedAtUnix)

	fmt.Printf("snapshot %s (%s, saved %s)\n", *path, humanize.Bytes(uint64(st.Size())), humanize.Time(saved))
	fmt.Printf("blocks: %s  types: %d\n", humanize.Comma(int64(s.Header.Blocks)), s.Header.Types)
	if s.Header.Blocks > 0 {
		fmt.Printf("bounds: %v .. %v\n", s.Min, s.Max)
	}
	for i, t := range s.Types {
		if i >= *top {
			fmt.Printf("  ... %d more\n", len(s.Types)-i)
			break
		}
		fmt.Printf("  %-40s %s\n", t.Type, humanize.Comma(int64(t.Count)))
	}
}
