package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"turtlemanager.dev/internal/metrics"
	"turtlemanager.dev/internal/persistence/indexdb"
	persistlog "turtlemanager.dev/internal/persistence/log"
	"turtlemanager.dev/internal/sim/jobs"
	"turtlemanager.dev/internal/sim/planner"
	"turtlemanager.dev/internal/sim/tuning"
	"turtlemanager.dev/internal/sim/world"
	"turtlemanager.dev/internal/transport/rest"
	"turtlemanager.dev/internal/transport/ws"
)

func main() {
	var (
		configPath   = flag.String("config", "./configs/tuning.yaml", "path to tuning.yaml (defaults are used when missing)")
		addr         = flag.String("addr", "", "http listen address (overrides server.addr)")
		dataDir      = flag.String("data", "", "runtime data directory (overrides snapshot, log and index paths)")
		disableIndex = flag.Bool("disable_index", false, "disable the sqlite query/report index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Printf("no tuning at %s; using defaults", *configPath)
		tune = tuning.Defaults()
	case err != nil:
		logger.Fatalf("load tuning: %v", err)
	}
	if a := strings.TrimSpace(*addr); a != "" {
		tune.Server.Addr = a
	}
	if d := strings.TrimSpace(*dataDir); d != "" {
		tune.Snapshot.Path = filepath.Join(d, "world.bin")
		tune.Logs.Dir = filepath.Join(d, "logs")
		tune.Logs.IndexDB = filepath.Join(d, "index", "world.sqlite")
	}
	if s := strings.TrimSpace(os.Getenv("TM_SECRET_KEY")); s != "" {
		tune.Server.SecretKey = s
	}

	store := world.NewStore(world.New(world.WorldConfig{
		MinY:           tune.Path.MinY,
		MaxY:           tune.Path.MaxY,
		MaxGridCells:   tune.Path.MaxGridCells,
		AirType:        tune.Blocks.Air,
		Indestructible: tune.Blocks.Indestructible,
	}))
	n, err := store.Load(tune.Snapshot.Path)
	if err != nil {
		// A corrupt snapshot is left in place for inspection; refuse to overwrite it.
		logger.Fatalf("%v", err)
	}
	if n > 0 {
		logger.Printf("resumed %d blocks from %s", n, tune.Snapshot.Path)
	} else {
		logger.Printf("starting with an empty world (no snapshot at %s)", tune.Snapshot.Path)
	}

	collector := metrics.New("turtlemanager")

	mirror, err := buildBackupMirror(filepath.Dir(tune.Logs.Dir), logger)
	if err != nil {
		logger.Fatalf("init backup: %v", err)
	}
	defer mirror.Close()

	logOpts := persistlog.LoggerOptions{}
	if mirror != nil {
		// Shorter segments so a crash loses at most a minute of mirrored logs.
		logOpts.RotateLayout = "2006-01-02-15-04"
		logOpts.OnClose = mirror.Enqueue
	}
	queryLog := persistlog.NewQueryLogger(tune.Logs.Dir, logOpts)
	reportLog := persistlog.NewReportLogger(tune.Logs.Dir, logOpts)
	defer queryLog.Close()
	defer reportLog.Close()

	var idx *indexdb.SQLiteIndex
	if !*disableIndex && tune.Logs.IndexDB != "" {
		idx, err = indexdb.OpenSQLite(tune.Logs.IndexDB)
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
	}

	queries := multiQueryLogger{queryLog, collector}
	reports := multiReportLogger{reportLog, collector}
	snaps := multiSnapshotRecorder{collector}
	if idx != nil {
		queries = append(queries, idx)
		reports = append(reports, idx)
		snaps = append(snaps, idx)
	}
	if mirror != nil {
		snaps = append(snaps, mirror)
	}
	store.SetQueryLogger(queries)
	store.SetReportLogger(reports)
	store.SetSnapshotRecorder(snaps)

	collector.WatchGauge("turtlemanager", "world_blocks", "Known blocks in the world store.", func() float64 {
		return float64(store.Len())
	})
	if idx != nil {
		collector.WatchGauge("turtlemanager", "index_queue_depth", "Pending sqlite index writes.", func() float64 {
			return float64(idx.Stats().QueueDepth)
		})
		collector.WatchGauge("turtlemanager", "index_dropped_total", "Index writes dropped because the queue was full.", func() float64 {
			st := idx.Stats()
			return float64(st.DropQueryTotal + st.DropReportTotal + st.DropSnapshotTotal)
		})
	}
	if mirror != nil {
		collector.WatchGauge("turtlemanager", "backup_queue_depth", "Pending backup uploads.", func() float64 {
			return float64(mirror.Stats().QueueDepth)
		})
		collector.WatchGauge("turtlemanager", "backup_failed_total", "Backup uploads that failed after retries.", func() float64 {
			return float64(mirror.Stats().FailedTotal)
		})
	}

	svc := planner.New(store, jobs.NewRegistry(), planner.Config{
		SecretKey: tune.Server.SecretKey,
		Padding:   tune.Path.Padding,
		CanDig:    tune.Path.CanDig,
		Timeout:   tune.QueryTimeout(),
	})
	if tune.Server.SecretKey == "" {
		logger.Printf("server.secret_key is empty; requests are not authenticated")
	}

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", collector.Handler())
	rest.NewServer(svc, logger).Register(mux, collector.Instrument)
	mux.Handle("/v1/ws", ws.NewServer(svc, logger).Handler())

	if envBool("TM_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		a := &admin{store: store, jobs: svc.Jobs(), snapshotPath: tune.Snapshot.Path, index: idx, mirror: mirror}
		a.register(mux)
	}
	if envBool("TM_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	go store.RunSnapshots(ctx, tune.Snapshot.Path, tune.SnapshotEvery(), logger)

	srv := &http.Server{
		Addr:              tune.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (snapshot every %s)", tune.Server.Addr, tune.SnapshotEvery())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("http server: %v", err)
	}

	info, err := store.Save(tune.Snapshot.Path)
	if err != nil {
		logger.Printf("final snapshot: %v", err)
	} else {
		logger.Printf("final snapshot: %d blocks (%s)", info.Blocks, humanize.Bytes(uint64(info.Bytes)))
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
