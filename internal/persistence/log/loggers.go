package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"turtlemanager.dev/internal/sim/world"
)

// DefaultRotateLayout starts a new file every UTC hour.
const DefaultRotateLayout = "2006-01-02-15"

type LoggerOptions struct {
	// RotateLayout is a time layout; a new file starts whenever the formatted time changes.
	RotateLayout string
	// OnClose is called with the path of every file the writer finishes.
	OnClose func(path string)
}

// JSONLZstdWriter appends JSON lines to zstd-compressed files under baseDir, one file
// per rotation period. Files are named <prefix>-<period>.jsonl.zst.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	opts    LoggerOptions
	now     func() time.Time

	mu        sync.Mutex
	curPeriod string
	curPath   string
	f         *os.File
	enc       *zstd.Encoder
	w         *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string, opts LoggerOptions) *JSONLZstdWriter {
	if opts.RotateLayout == "" {
		opts.RotateLayout = DefaultRotateLayout
	}
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		opts:    opts,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	period := w.now().UTC().Format(w.opts.RotateLayout)
	if period != w.curPeriod || w.w == nil {
		if err := w.rotateLocked(period); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(period string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathFor(period)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Appending after a restart adds a second zstd frame; decoders read concatenated frames.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curPeriod = period
	w.curPath = path
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
		if w.opts.OnClose != nil {
			w.opts.OnClose(w.curPath)
		}
	}
	w.w = nil
	return err1
}

func (w *JSONLZstdWriter) pathFor(period string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, period))
}

// QueryLogger writes one JSONL entry per path query (compressed).
type QueryLogger struct{ w *JSONLZstdWriter }

func NewQueryLogger(dir string, opts LoggerOptions) *QueryLogger {
	return &QueryLogger{w: NewJSONLZstdWriter(filepath.Join(dir, "queries"), "queries", opts)}
}

func (l *QueryLogger) WriteQuery(v world.QueryLogEntry) error { return l.w.Write(v) }
func (l *QueryLogger) Close() error                           { return l.w.Close() }

// ReportLogger writes block report JSONL entries (compressed).
type ReportLogger struct{ w *JSONLZstdWriter }

func NewReportLogger(dir string, opts LoggerOptions) *ReportLogger {
	return &ReportLogger{w: NewJSONLZstdWriter(filepath.Join(dir, "reports"), "reports", opts)}
}

func (l *ReportLogger) WriteReport(v world.ReportLogEntry) error { return l.w.Write(v) }
func (l *ReportLogger) Close() error                             { return l.w.Close() }
