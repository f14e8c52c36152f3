package main

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"turtlemanager.dev/internal/persistence/backup"
	"turtlemanager.dev/internal/persistence/indexdb"
	"turtlemanager.dev/internal/sim/jobs"
	"turtlemanager.dev/internal/sim/world"
)

// admin serves loopback-only operator endpoints.
type admin struct {
	store        *world.Store
	jobs         *jobs.Registry
	snapshotPath string
	index        *indexdb.SQLiteIndex
	mirror       *backup.Mirror
}

type adminState struct {
	Blocks       int            `json:"blocks"`
	Jobs         int            `json:"jobs"`
	SnapshotPath string         `json:"snapshot_path"`
	Index        *indexdb.Stats `json:"index,omitempty"`
	Backup       *backup.Stats  `json:"backup,omitempty"`
}

func (a *admin) register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/state", a.handleState)
	mux.HandleFunc("/admin/v1/snapshot", a.handleSnapshot)
}

func (a *admin) handleState(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	st := adminState{
		Blocks:       a.store.Len(),
		Jobs:         len(a.jobs.List()),
		SnapshotPath: a.snapshotPath,
	}
	if a.index != nil {
		s := a.index.Stats()
		st.Index = &s
	}
	if a.mirror != nil {
		s := a.mirror.Stats()
		st.Backup = &s
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(st)
}

func (a *admin) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	info, err := a.store.Save(a.snapshotPath)
	rw.Header().Set("Content-Type", "application/json")
	if err != nil {
		rw.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(rw).Encode(map[string]string{"error": err.Error()})
		return
	}
	_ = json.NewEncoder(rw).Encode(map[string]any{
		"path":   info.Path,
		"blocks": info.Blocks,
		"bytes":  info.Bytes,
	})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
