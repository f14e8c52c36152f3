package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"turtlemanager.dev/internal/protocol"
)

// bot is a scripted turtle: it reports some blocks, asks for one path and prints
// the resulting steps.
func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name       = flag.String("name", "bot", "turtle name")
		token      = flag.String("token", os.Getenv("TM_SECRET_KEY"), "secret key")
		start      = flag.String("start", "0,64,0", "start x,y,z")
		goal       = flag.String("goal", "", "goal x,y,z")
		jobID      = flag.Uint64("job", 0, "job id (instead of -goal)")
		blocksPath = flag.String("blocks", "", "JSON file with [{pos:[x,y,z],type}] to report first")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)

	req := protocol.PathRequestMsg{JobID: *jobID}
	var err error
	if req.Start, err = parseVec3(*start); err != nil {
		logger.Fatalf("bad -start: %v", err)
	}
	if *goal != "" {
		g, err := parseVec3(*goal)
		if err != nil {
			logger.Fatalf("bad -goal: %v", err)
		}
		req.Goal = &g
	}
	var blocks []protocol.BlockReport
	if *blocksPath != "" {
		raw, err := os.ReadFile(*blocksPath)
		if err != nil {
			logger.Fatalf("read blocks: %v", err)
		}
		if err := json.Unmarshal(raw, &blocks); err != nil {
			logger.Fatalf("parse blocks: %v", err)
		}
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	pm, err := run(conn, *name, *token, blocks, req, logger)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	fmt.Println(strings.Join(pm.Steps, "\n"))
}

func run(conn *websocket.Conn, name, token string, blocks []protocol.BlockReport, req protocol.PathRequestMsg, logger *log.Logger) (protocol.PathMsg, error) {
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		TurtleName:      name,
	}
	if token != "" {
		hello.Auth = &protocol.HelloAuth{Token: token}
	}
	if err := conn.WriteJSON(hello); err != nil {
		return protocol.PathMsg{}, fmt.Errorf("send HELLO: %w", err)
	}
	var welcome protocol.WelcomeMsg
	if err := expect(conn, protocol.TypeWelcome, &welcome); err != nil {
		return protocol.PathMsg{}, err
	}
	logger.Printf("WELCOME session=%s padding=%d can_dig=%v", welcome.SessionID, welcome.PathParams.Padding, welcome.PathParams.CanDig)

	if len(blocks) > 0 {
		if err := conn.WriteJSON(protocol.BlocksMsg{Type: protocol.TypeBlocks, ProtocolVersion: protocol.Version, Blocks: blocks}); err != nil {
			return protocol.PathMsg{}, fmt.Errorf("send BLOCKS: %w", err)
		}
		var ack protocol.AckMsg
		if err := expect(conn, protocol.TypeAck, &ack); err != nil {
			return protocol.PathMsg{}, err
		}
		logger.Printf("ACK received=%d changed=%d", ack.Received, ack.Changed)
	}

	req.Type = protocol.TypePathRequest
	req.ProtocolVersion = protocol.Version
	if req.RequestID == "" {
		req.RequestID = name + "-1"
	}
	if err := conn.WriteJSON(req); err != nil {
		return protocol.PathMsg{}, fmt.Errorf("send PATH_REQUEST: %w", err)
	}
	var pm protocol.PathMsg
	if err := expect(conn, protocol.TypePath, &pm); err != nil {
		return protocol.PathMsg{}, err
	}
	logger.Printf("PATH goal=%v steps=%d cost=%d", pm.Goal, len(pm.Steps), pm.Cost)
	return pm, nil
}

// expect reads one message, decoding it into v when it has type want. An ERROR
// message becomes the returned error.
func expect(conn *websocket.Conn, want string, v any) error {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("read %s: %w", want, err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return err
	}
	switch base.Type {
	case want:
		return json.Unmarshal(msg, v)
	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return err
		}
		return fmt.Errorf("%s: %s", e.Code, e.Message)
	default:
		return errors.New("unexpected " + base.Type + " (want " + want + ")")
	}
}

func parseVec3(s string) ([3]int, error) {
	var v [3]int
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("expected x,y,z")
	}
	for i := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return v, err
		}
		v[i] = n
	}
	return v, nil
}
