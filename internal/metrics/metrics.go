// Package metrics exports planner activity to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"turtlemanager.dev/internal/sim/world"
)

// Collector implements world.QueryLogger, world.ReportLogger and world.SnapshotRecorder.
type Collector struct {
	reg *prometheus.Registry

	queries       *prometheus.CounterVec
	queryDuration prometheus.Histogram
	pathLength    prometheus.Histogram
	gridCells     prometheus.Histogram
	digs          prometheus.Counter

	reports      prometheus.Counter
	blockChanges prometheus.Counter

	snapshots        *prometheus.CounterVec
	snapshotBytes    prometheus.Gauge
	snapshotBlocks   prometheus.Gauge
	snapshotDuration prometheus.Histogram

	httpDuration *prometheus.HistogramVec
}

func New(namespace string) *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_queries_total",
			Help:      "Path queries by outcome.",
		}, []string{"result"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "path_query_duration_seconds",
			Help:      "Time spent planning and translating a path.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		pathLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "path_length_cells",
			Help:      "Cells on returned paths, endpoints included.",
			Buckets:   prometheus.ExponentialBuckets(2, 2, 10),
		}),
		gridCells: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "path_grid_cells",
			Help:      "Cells in the search box of each query.",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
		}),
		digs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "path_digs_total",
			Help:      "Dig commands emitted on returned paths.",
		}),
		reports: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_reports_total",
			Help:      "Block report batches applied.",
		}),
		blockChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_changes_total",
			Help:      "Known-block cells inserted or changed by reports.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshot saves by outcome.",
		}, []string{"result"}),
		snapshotBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_last_bytes",
			Help:      "Size of the last successful snapshot.",
		}),
		snapshotBlocks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_last_blocks",
			Help:      "Blocks in the last successful snapshot.",
		}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_duration_seconds",
			Help:      "Time to copy, encode and write a snapshot.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "path", "status"}),
	}
	c.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.queries, c.queryDuration, c.pathLength, c.gridCells, c.digs,
		c.reports, c.blockChanges,
		c.snapshots, c.snapshotBytes, c.snapshotBlocks, c.snapshotDuration,
		c.httpDuration,
	)
	return c
}

// Registry exposes the underlying registry for extra collectors and tests.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// WatchGauge registers a gauge sampled from fn at scrape time.
func (c *Collector) WatchGauge(namespace, name, help string, fn func() float64) {
	c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (c *Collector) WriteQuery(e world.QueryLogEntry) error {
	c.queryDuration.Observe(e.DurationMS / 1000)
	if e.GridCells > 0 {
		c.gridCells.Observe(float64(e.GridCells))
	}
	switch {
	case e.Found:
		c.queries.WithLabelValues("found").Inc()
		c.pathLength.Observe(float64(e.PathLen))
		c.digs.Add(float64(e.Digs))
	case e.Error == world.ErrNoPath.Error():
		c.queries.WithLabelValues("no_path").Inc()
	default:
		c.queries.WithLabelValues("error").Inc()
	}
	return nil
}

func (c *Collector) WriteReport(e world.ReportLogEntry) error {
	c.reports.Inc()
	c.blockChanges.Add(float64(len(e.Changes)))
	return nil
}

func (c *Collector) RecordSnapshot(info world.SnapshotInfo) {
	c.snapshotDuration.Observe(info.Duration.Seconds())
	if info.Err != "" {
		c.snapshots.WithLabelValues("error").Inc()
		return
	}
	c.snapshots.WithLabelValues("ok").Inc()
	c.snapshotBytes.Set(float64(info.Bytes))
	c.snapshotBlocks.Set(float64(info.Blocks))
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

// Instrument records latency for every request served by next under the route label.
func (c *Collector) Instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		c.httpDuration.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
