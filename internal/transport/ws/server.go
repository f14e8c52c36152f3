package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"turtlemanager.dev/internal/protocol"
	"turtlemanager.dev/internal/sim/planner"
)

// Per-session cap on path queries running at once.
const maxInflight = 4

type Server struct {
	svc *planner.Service
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(svc *planner.Service, logger *log.Logger) *Server {
	return &Server{
		svc: svc,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // turtles are not browsers
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		source, ok := s.handshake(conn)
		if !ok {
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		out := make(chan any, 16)

		// Writer goroutine.
		var wwg sync.WaitGroup
		wwg.Add(1)
		go func() {
			defer wwg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case v := <-out:
					if err := writeJSON(conn, v); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		send := func(v any) {
			select {
			case out <- v:
			case <-ctx.Done():
			}
		}

		// Reader loop.
		var qwg sync.WaitGroup
		sem := make(chan struct{}, maxInflight)
	reader:
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				send(protocol.NewError("", protocol.ErrProtoBadRequest, "malformed json"))
				continue
			}
			if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
				send(protocol.NewError("", protocol.ErrProtoBadRequest, "bad protocol_version"))
				continue
			}
			switch base.Type {
			case protocol.TypeBlocks:
				var m protocol.BlocksMsg
				if err := json.Unmarshal(msg, &m); err != nil {
					send(protocol.NewError("", protocol.ErrProtoBadRequest, err.Error()))
					continue
				}
				ack, perr := s.svc.Report(source, m)
				if perr != nil {
					send(perr.Msg(""))
					continue
				}
				send(ack)

			case protocol.TypePathRequest:
				var m protocol.PathRequestMsg
				if err := json.Unmarshal(msg, &m); err != nil {
					send(protocol.NewError("", protocol.ErrProtoBadRequest, err.Error()))
					continue
				}
				if m.RequestID == "" {
					m.RequestID = uuid.NewString()
				}
				if !acquire(ctx, sem) {
					break reader
				}
				qwg.Add(1)
				go func() {
					defer qwg.Done()
					defer func() { <-sem }()
					resp, perr := s.svc.Path(ctx, source, m)
					if perr != nil {
						send(perr.Msg(m.RequestID))
						return
					}
					send(resp)
				}()

			default:
				send(protocol.NewError("", protocol.ErrProtoBadRequest, "unknown message type "+base.Type))
			}
		}
		cancel()
		qwg.Wait()
		wwg.Wait()
	}
}

// handshake reads HELLO, checks the token and answers WELCOME. It returns the log
// source for the session.
func (s *Server) handshake(conn *websocket.Conn) (source string, ok bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closeWith(conn, websocket.ClosePolicyViolation, "expected HELLO")
		return "", false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		closeWith(conn, websocket.ClosePolicyViolation, "bad HELLO")
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, websocket.ClosePolicyViolation, "bad protocol_version")
		return "", false
	}
	token := ""
	if hello.Auth != nil {
		token = strings.TrimSpace(hello.Auth.Token)
	}
	if !s.svc.Authorized(token) {
		_ = writeJSON(conn, protocol.NewError("", protocol.ErrUnauthorized, "bad token"))
		closeWith(conn, websocket.ClosePolicyViolation, "unauthorized")
		return "", false
	}
	name := strings.TrimSpace(hello.TurtleName)
	if name == "" {
		name = "turtle"
	}

	sessionID := uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		PathParams:      s.svc.Params(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", false
	}
	if s.log != nil {
		s.log.Printf("ws session %s: %s joined", sessionID, name)
	}
	return "ws:" + name, true
}

// acquire takes a query slot, waiting while the session is alive. It reports false once
// ctx is done; no slot is held then.
func acquire(ctx context.Context, sem chan struct{}) bool {
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}
	if ctx.Err() != nil {
		<-sem
		return false
	}
	return true
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
