package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"turtlemanager.dev/internal/sim/tuning"
	"turtlemanager.dev/internal/sim/world"
)

// SQLiteIndex is a queryable copy of the query and report logs. Writes go through a
// buffered channel to one writer goroutine and are dropped when it falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropQuery    atomic.Uint64
	dropReport   atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqQuery reqKind = iota + 1
	reqReport
	reqSnapshot
	reqConfig
)

type req struct {
	kind reqKind

	query    world.QueryLogEntry
	report   world.ReportLogEntry
	snapshot world.SnapshotInfo
	config   configRow
	done     chan error
}

type configRow struct {
	Name   string
	Digest string
	JSON   string
}

type Stats struct {
	DropQueryTotal    uint64 `json:"drop_query_total"`
	DropReportTotal   uint64 `json:"drop_report_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Block reports arrive in bursts while turtles scan; keep a deep buffer.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS config (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS queries (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			source TEXT NOT NULL,
			sx INTEGER NOT NULL, sy INTEGER NOT NULL, sz INTEGER NOT NULL,
			gx INTEGER NOT NULL, gy INTEGER NOT NULL, gz INTEGER NOT NULL,
			job_id INTEGER NOT NULL,
			found INTEGER NOT NULL,
			path_len INTEGER NOT NULL,
			moves INTEGER NOT NULL,
			digs INTEGER NOT NULL,
			cost INTEGER NOT NULL,
			grid_cells INTEGER NOT NULL,
			duration_ms REAL NOT NULL,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_queries_ts ON queries(ts);`,
		`CREATE TABLE IF NOT EXISTS reports (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			source TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			from_type TEXT NOT NULL,
			to_type TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_pos ON reports(x, z, y, seq);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			ts TEXT NOT NULL,
			path TEXT NOT NULL,
			blocks INTEGER NOT NULL,
			types INTEGER NOT NULL,
			bytes INTEGER NOT NULL,
			duration_ms REAL NOT NULL,
			error TEXT,
			PRIMARY KEY (ts, path)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropQueryTotal:    s.dropQuery.Load(),
		DropReportTotal:   s.dropReport.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
	}
}

func (s *SQLiteIndex) WriteQuery(entry world.QueryLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqQuery, query: entry}:
	default:
		// JSONL logs remain the source of truth.
		s.dropQuery.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteReport(entry world.ReportLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	if len(entry.Changes) == 0 {
		return nil
	}
	select {
	case s.ch <- req{kind: reqReport, report: entry}:
	default:
		s.dropReport.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(info world.SnapshotInfo) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: info}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertTuning stores the tuning actually applied, keyed by digest. It waits for the
// writer goroutine so the row is durable on return.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	done := make(chan error, 1)
	s.ch <- req{kind: reqConfig, config: configRow{Name: "tuning", Digest: hex.EncodeToString(sum[:]), JSON: string(b)}, done: done}
	return <-done
}

func (s *SQLiteIndex) upsertConfig(ctx context.Context, c configRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(`INSERT OR REPLACE INTO config(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		c.Name, c.Digest, c.JSON, now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertQuery, _ := s.db.Prepare(`INSERT OR REPLACE INTO queries(id,ts,source,sx,sy,sz,gx,gy,gz,job_id,found,path_len,moves,digs,cost,grid_cells,duration_ms,error) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertReport, _ := s.db.Prepare(`INSERT INTO reports(ts,source,x,y,z,from_type,to_type) VALUES(?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(ts,path,blocks,types,bytes,duration_ms,error) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertQuery, insertReport, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		if r.kind == reqConfig {
			// Runs outside the batch transaction; the pool has a single connection.
			commit()
			r.done <- s.upsertConfig(ctx, r.config)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqQuery:
			q := r.query
			if insertQuery == nil {
				break
			}
			if _, err := tx.Stmt(insertQuery).Exec(
				q.ID,
				q.Time.UTC().Format(time.RFC3339Nano),
				q.Source,
				q.Start[0], q.Start[1], q.Start[2],
				q.Goal[0], q.Goal[1], q.Goal[2],
				int64(q.JobID),
				boolInt(q.Found),
				q.PathLen,
				q.Moves,
				q.Digs,
				int64(q.Cost),
				q.GridCells,
				q.DurationMS,
				nullString(q.Error),
			); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqReport:
			rep := r.report
			if insertReport == nil {
				break
			}
			ts := rep.Time.UTC().Format(time.RFC3339Nano)
			for _, c := range rep.Changes {
				if _, err := tx.Stmt(insertReport).Exec(ts, rep.Source, c.Pos[0], c.Pos[1], c.Pos[2], c.From, c.To); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot == nil {
				break
			}
			if _, err := tx.Stmt(insertSnapshot).Exec(
				sn.Time.UTC().Format(time.RFC3339Nano),
				sn.Path,
				sn.Blocks,
				sn.Types,
				sn.Bytes,
				float64(sn.Duration.Microseconds())/1000,
				nullString(sn.Err),
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
