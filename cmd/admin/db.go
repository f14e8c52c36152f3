package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dbPath := fs.String("db", "./data/index/world.sqlite", "sqlite index path")
	limit := fs.Int("limit", 20, "result limit")
	failed := fs.Bool("failed", false, "queries: only queries that found no path or errored")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	db, err := sql.Open("sqlite", *dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	var rows []map[string]any
	switch q {
	case "snapshots":
		rows, err = queryRows(db, `SELECT ts,path,blocks,types,bytes,duration_ms,error FROM snapshots ORDER BY ts DESC LIMIT ?`, *limit)
	case "queries":
		where := ""
		if *failed {
			where = "WHERE found=0"
		}
		rows, err = queryRows(db, `SELECT id,ts,source,sx,sy,sz,gx,gy,gz,job_id,found,moves,digs,cost,grid_cells,duration_ms,error FROM queries `+where+` ORDER BY ts DESC LIMIT ?`, *limit)
	case "reports":
		rows, err = queryRows(db, `SELECT seq,ts,source,x,y,z,from_type,to_type FROM reports ORDER BY seq DESC LIMIT ?`, *limit)
	case "config":
		rows, err = queryRows(db, `SELECT name,digest,updated_at,json FROM config ORDER BY name LIMIT ?`, *limit)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-db PATH] [-limit N] [-failed] snapshots|queries|reports|config")
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
	for _, r := range rows {
		printJSON(r)
	}
}

// queryRows scans every row into a column-name map.
func queryRows(db *sql.DB, query string, args ...any) ([]map[string]any, error) {
	rs, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rs.Close()
	cols, err := rs.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rs.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rs.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				row[c] = string(b)
				continue
			}
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rs.Err()
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
