package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"turtlemanager.dev/internal/protocol"
)

func compile(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	p := filepath.Join("..", "..", "schemas", name)
	s, err := jsonschema.Compile(p)
	if err != nil {
		t.Fatalf("compile %s: %v", name, err)
	}
	return s
}

// asJSON round-trips v through encoding/json so the validator sees plain maps and slices.
func asJSON(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func parse(t *testing.T, raw string) any {
	t.Helper()
	var out any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	return out
}

func TestSchemas_ValidateSamples(t *testing.T) {
	cases := []struct {
		schema string
		sample string
	}{
		{"hello.schema.json", `{"type":"HELLO","protocol_version":"1.0","turtle_name":"miner-3","turtle_id":3,"auth":{"token":"s3cret"}}`},
		{"welcome.schema.json", `{"type":"WELCOME","protocol_version":"1.0","session_id":"1f0c","path_params":{"padding":3,"can_dig":true,"min_y":-60,"max_y":318}}`},
		{"blocks.schema.json", `{"type":"BLOCKS","protocol_version":"1.0","blocks":[{"pos":[1,64,-2],"type":"minecraft:stone"}]}`},
		{"blocks.schema.json", `{"blocks":[]}`},
		{"ack.schema.json", `{"type":"ACK","protocol_version":"1.0","received":4,"changed":2}`},
		{"path_request.schema.json", `{"type":"PATH_REQUEST","protocol_version":"1.0","request_id":"r1","start":[0,64,0],"goal":[10,60,5],"can_dig":false}`},
		{"path_request.schema.json", `{"start":[0,64,0],"job_id":2}`},
		{"path.schema.json", `{"type":"PATH","protocol_version":"1.0","request_id":"r1","goal":[2,0,0],"steps":["faceeast","dig","east","east"],"path":[[0,0,0],[1,0,0],[2,0,0]],"cost":3}`},
		{"error.schema.json", `{"type":"ERROR","protocol_version":"1.0","code":"E_NO_PATH","message":"world: no path"}`},
	}
	for _, c := range cases {
		s := compile(t, c.schema)
		if err := s.Validate(parse(t, c.sample)); err != nil {
			t.Fatalf("%s: validate: %v", c.schema, err)
		}
	}
}

func TestSchemas_RejectBadSamples(t *testing.T) {
	cases := []struct {
		schema string
		sample string
	}{
		{"hello.schema.json", `{"type":"HELLO","protocol_version":"1.0"}`},
		{"blocks.schema.json", `{"blocks":[{"pos":[1,2],"type":"minecraft:stone"}]}`},
		{"path_request.schema.json", `{"start":[0,0,0]}`},
		{"path.schema.json", `{"type":"PATH","protocol_version":"1.0","goal":[0,0,0],"steps":["fly"],"cost":0}`},
		{"error.schema.json", `{"type":"ERROR","protocol_version":"1.0","code":"E_WHATEVER","message":""}`},
	}
	for _, c := range cases {
		s := compile(t, c.schema)
		if err := s.Validate(parse(t, c.sample)); err == nil {
			t.Fatalf("%s: expected %s to be rejected", c.schema, c.sample)
		}
	}
}

func TestSchemas_GoMessagesConform(t *testing.T) {
	id := 4
	goal := [3]int{5, 60, -5}
	dig := true
	pad := 2
	cases := []struct {
		schema string
		msg    any
	}{
		{"hello.schema.json", protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, TurtleName: "t4", TurtleID: &id}},
		{"welcome.schema.json", protocol.WelcomeMsg{Type: protocol.TypeWelcome, ProtocolVersion: protocol.Version, SessionID: "abc", PathParams: protocol.PathParams{Padding: 3, CanDig: true, MinY: -60, MaxY: 318}}},
		{"blocks.schema.json", protocol.BlocksMsg{Type: protocol.TypeBlocks, ProtocolVersion: protocol.Version, Blocks: []protocol.BlockReport{{Pos: [3]int{0, 1, 2}, Type: "minecraft:dirt"}}}},
		{"ack.schema.json", protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, Received: 1, Changed: 1}},
		{"path_request.schema.json", protocol.PathRequestMsg{Type: protocol.TypePathRequest, ProtocolVersion: protocol.Version, Start: [3]int{0, 0, 0}, Goal: &goal, CanDig: &dig, Padding: &pad}},
		{"path.schema.json", protocol.PathMsg{Type: protocol.TypePath, ProtocolVersion: protocol.Version, Goal: goal, Steps: []string{"north", "digup", "up"}}},
		{"error.schema.json", protocol.NewError("r9", protocol.ErrTooLarge, "too big")},
	}
	for _, c := range cases {
		s := compile(t, c.schema)
		if err := s.Validate(asJSON(t, c.msg)); err != nil {
			t.Fatalf("%s: Go message does not conform: %v", c.schema, err)
		}
	}
}
