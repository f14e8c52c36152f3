package backup

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"turtlemanager.dev/internal/sim/world"
)

// Putter stores one local file under an object key.
type Putter interface {
	Put(ctx context.Context, key, localPath string) error
}

type Options struct {
	// BaseDir is the local root; object keys are paths relative to it.
	BaseDir string
	Prefix  string
	Workers int
	Queue   int
	// EnqueueWait bounds how long Enqueue blocks on a full queue before dropping.
	EnqueueWait time.Duration
	Attempts    int
}

type Stats struct {
	QueueDepth     int    `json:"queue_depth"`
	QueueCapacity  int    `json:"queue_capacity"`
	EnqueuedTotal  uint64 `json:"enqueued_total"`
	DroppedTotal   uint64 `json:"dropped_total"`
	UploadedTotal  uint64 `json:"uploaded_total"`
	FailedTotal    uint64 `json:"failed_total"`
	LastUploadUnix int64  `json:"last_upload_unix"`
	LastErrorUnix  int64  `json:"last_error_unix"`
}

type job struct {
	key  string
	path string
}

// Mirror copies finished log segments and world snapshots to object storage in the
// background. Uploads that keep failing are logged and counted, never retried forever.
type Mirror struct {
	put    Putter
	opts   Options
	logger *log.Logger
	now    func() time.Time
	sleep  func(time.Duration)

	jobs chan job
	wg   sync.WaitGroup
	once sync.Once

	enqueued   atomic.Uint64
	dropped    atomic.Uint64
	uploaded   atomic.Uint64
	failed     atomic.Uint64
	lastUpload atomic.Int64
	lastError  atomic.Int64
}

func NewMirror(put Putter, opts Options, logger *log.Logger) *Mirror {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Queue <= 0 {
		opts.Queue = 1024
	}
	if opts.EnqueueWait <= 0 {
		opts.EnqueueWait = 25 * time.Millisecond
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 4
	}
	opts.Prefix = strings.Trim(strings.ReplaceAll(opts.Prefix, "\\", "/"), "/")
	m := &Mirror{
		put:    put,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		sleep:  time.Sleep,
		jobs:   make(chan job, opts.Queue),
	}
	for i := 0; i < opts.Workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for j := range m.jobs {
				m.upload(j)
			}
		}()
	}
	return m
}

// Enqueue schedules localPath for upload under its path relative to BaseDir.
// It matches persistence/log.LoggerOptions.OnClose.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil {
		return
	}
	rel, err := m.relative(localPath)
	if err != nil {
		m.printf("backup skip %s: %v", localPath, err)
		return
	}
	m.push(job{key: m.key(rel), path: localPath})
}

// RecordSnapshot uploads each successful save under a timestamped key so older
// snapshots survive the next overwrite of the local file.
func (m *Mirror) RecordSnapshot(info world.SnapshotInfo) {
	if m == nil || info.Err != "" || info.Path == "" {
		return
	}
	base := filepath.Base(info.Path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext) + "-" + info.Time.UTC().Format("20060102T150405Z") + ext
	m.push(job{key: m.key(path.Join("snapshots", name)), path: info.Path})
}

func (m *Mirror) push(j job) {
	m.enqueued.Add(1)
	select {
	case m.jobs <- j:
		return
	default:
	}
	t := time.NewTimer(m.opts.EnqueueWait)
	defer t.Stop()
	select {
	case m.jobs <- j:
	case <-t.C:
		n := m.dropped.Add(1)
		m.printf("backup drop key=%s reason=queue_full dropped_total=%d", j.key, n)
	}
}

func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.once.Do(func() {
		close(m.jobs)
		m.wg.Wait()
	})
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:     len(m.jobs),
		QueueCapacity:  cap(m.jobs),
		EnqueuedTotal:  m.enqueued.Load(),
		DroppedTotal:   m.dropped.Load(),
		UploadedTotal:  m.uploaded.Load(),
		FailedTotal:    m.failed.Load(),
		LastUploadUnix: m.lastUpload.Load(),
		LastErrorUnix:  m.lastError.Load(),
	}
}

func (m *Mirror) upload(j job) {
	var err error
	for attempt := 1; attempt <= m.opts.Attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		err = m.put.Put(ctx, j.key, j.path)
		cancel()
		if err == nil {
			m.uploaded.Add(1)
			m.lastUpload.Store(m.now().Unix())
			m.printf("backup uploaded key=%s", j.key)
			return
		}
		if attempt < m.opts.Attempts {
			m.sleep(time.Duration(attempt*attempt) * 200 * time.Millisecond)
		}
	}
	m.failed.Add(1)
	m.lastError.Store(m.now().Unix())
	m.printf("backup upload failed key=%s local=%s: %v", j.key, j.path, err)
}

func (m *Mirror) relative(localPath string) (string, error) {
	base, err := filepath.Abs(m.opts.BaseDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("outside %s", base)
	}
	return rel, nil
}

func (m *Mirror) key(rel string) string {
	if m.opts.Prefix == "" {
		return rel
	}
	return path.Join(m.opts.Prefix, rel)
}

func (m *Mirror) printf(format string, args ...any) {
	if m.logger != nil {
		m.logger.Printf(format, args...)
	}
}
