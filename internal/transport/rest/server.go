// Package rest is the HTTP adapter for turtles that poll instead of holding a socket.
package rest

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"turtlemanager.dev/internal/protocol"
	"turtlemanager.dev/internal/sim/jobs"
	"turtlemanager.dev/internal/sim/planner"
)

const maxBody = 8 << 20

const banner = "turtle manager is running"

type Server struct {
	svc *planner.Service
	log *log.Logger
}

func NewServer(svc *planner.Service, logger *log.Logger) *Server {
	return &Server{svc: svc, log: logger}
}

// Register mounts the public routes. wrap, when non-nil, decorates each handler with
// its route name (used for request metrics).
func (s *Server) Register(mux *http.ServeMux, wrap func(route string, h http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(_ string, h http.Handler) http.Handler { return h }
	}
	mux.Handle("/", wrap("/", http.HandlerFunc(s.handleRoot)))
	mux.Handle("/v1/path", wrap("/v1/path", s.authed(s.handlePath)))
	mux.Handle("/v1/blocks", wrap("/v1/blocks", s.authed(s.handleBlocks)))
	mux.Handle("/v1/jobs", wrap("/v1/jobs", s.authed(s.handleJobs)))
}

func (s *Server) handleRoot(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(rw, r)
		return
	}
	rw.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintln(rw, banner)
}

func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
		if !s.svc.Authorized(token) {
			writeError(rw, &planner.Error{Code: protocol.ErrUnauthorized, Err: fmt.Errorf("bad or missing Authorization header")}, "")
			return
		}
		next(rw, r)
	})
}

func (s *Server) handlePath(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var m protocol.PathRequestMsg
	if err := decode(rw, r, &m); err != nil {
		writeError(rw, &planner.Error{Code: protocol.ErrBadRequest, Err: err}, "")
		return
	}
	started := time.Now()
	resp, perr := s.svc.Path(r.Context(), "http:"+r.RemoteAddr, m)
	if perr != nil {
		writeError(rw, perr, m.RequestID)
		return
	}
	if s.log != nil {
		s.log.Printf("handled request with %d moves in %s", len(resp.Steps), time.Since(started).Round(time.Microsecond))
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleBlocks(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var m protocol.BlocksMsg
	if err := decode(rw, r, &m); err != nil {
		writeError(rw, &planner.Error{Code: protocol.ErrBadRequest, Err: err}, "")
		return
	}
	ack, perr := s.svc.Report("http:"+r.RemoteAddr, m)
	if perr != nil {
		writeError(rw, perr, "")
		return
	}
	writeJSON(rw, http.StatusOK, ack)
}

func (s *Server) handleJobs(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(rw, http.StatusOK, map[string]any{"jobs": s.svc.Jobs().List()})
	case http.MethodPost:
		var j jobs.Job
		if err := decode(rw, r, &j); err != nil {
			writeError(rw, &planner.Error{Code: protocol.ErrBadRequest, Err: err}, "")
			return
		}
		added, err := s.svc.Jobs().Add(j)
		if err != nil {
			writeError(rw, &planner.Error{Code: protocol.ErrBadRequest, Err: err}, "")
			return
		}
		writeJSON(rw, http.StatusCreated, added)
	default:
		rw.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func decode(rw http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func statusFor(code string) int {
	switch code {
	case protocol.ErrBadRequest, protocol.ErrProtoBadRequest:
		return http.StatusBadRequest
	case protocol.ErrUnauthorized:
		return http.StatusUnauthorized
	case protocol.ErrNotFound:
		return http.StatusNotFound
	case protocol.ErrNoPath, protocol.ErrTooLarge:
		return http.StatusUnprocessableEntity
	case protocol.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(rw http.ResponseWriter, perr *planner.Error, requestID string) {
	writeJSON(rw, statusFor(perr.Code), perr.Msg(requestID))
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
