package world

import "time"

// QueryLogEntry describes one path query, successful or not.
type QueryLogEntry struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Source     string    `json:"source,omitempty"`
	Start      [3]int    `json:"start"`
	Goal       [3]int    `json:"goal"`
	JobID      uint64    `json:"job_id,omitempty"`
	Padding    int       `json:"padding"`
	CanDig     bool      `json:"can_dig"`
	Found      bool      `json:"found"`
	PathLen    int       `json:"path_len"`
	Moves      int       `json:"moves"`
	Digs       int       `json:"digs"`
	Cost       uint64    `json:"cost"`
	GridCells  int       `json:"grid_cells"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

type BlockChange struct {
	Pos  [3]int `json:"pos"`
	From string `json:"from,omitempty"`
	To   string `json:"to"`
}

// ReportLogEntry describes one applied block report. Only cells whose type actually
// changed are listed.
type ReportLogEntry struct {
	Time     time.Time     `json:"time"`
	Source   string        `json:"source,omitempty"`
	Received int           `json:"received"`
	Changes  []BlockChange `json:"changes"`
}

type SnapshotInfo struct {
	Path     string        `json:"path"`
	Time     time.Time     `json:"time"`
	Blocks   int           `json:"blocks"`
	Types    int           `json:"types"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

type QueryLogger interface {
	WriteQuery(QueryLogEntry) error
}

type ReportLogger interface {
	WriteReport(ReportLogEntry) error
}

type SnapshotRecorder interface {
	RecordSnapshot(SnapshotInfo)
}
