package protocol

// HELLO (turtle -> server)
type HelloMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	TurtleName      string     `json:"turtle_name"`
	TurtleID        *int       `json:"turtle_id,omitempty"`
	Auth            *HelloAuth `json:"auth,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> turtle)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	PathParams      PathParams `json:"path_params"`
}

// PathParams are the server defaults applied when a request leaves them out.
type PathParams struct {
	Padding int  `json:"padding"`
	CanDig  bool `json:"can_dig"`
	MinY    int  `json:"min_y"`
	MaxY    int  `json:"max_y"`
}

// BLOCKS (turtle -> server). Also the body of POST /v1/blocks.
type BlocksMsg struct {
	Type            string        `json:"type,omitempty"`
	ProtocolVersion string        `json:"protocol_version,omitempty"`
	Blocks          []BlockReport `json:"blocks"`
}

type BlockReport struct {
	Pos  [3]int `json:"pos"`
	Type string `json:"type"`
}

// ACK (server -> turtle)
type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Received        int    `json:"received"`
	Changed         int    `json:"changed"`
}

// PATH_REQUEST (turtle -> server). Also the body of POST /v1/path.
// Either Goal or JobID names the destination.
type PathRequestMsg struct {
	Type            string  `json:"type,omitempty"`
	ProtocolVersion string  `json:"protocol_version,omitempty"`
	RequestID       string  `json:"request_id,omitempty"`
	Start           [3]int  `json:"start"`
	Goal            *[3]int `json:"goal,omitempty"`
	JobID           uint64  `json:"job_id,omitempty"`
	CanDig          *bool   `json:"can_dig,omitempty"`
	Padding         *int    `json:"padding,omitempty"`
}

// PATH (server -> turtle)
type PathMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	RequestID       string   `json:"request_id,omitempty"`
	Goal            [3]int   `json:"goal"`
	Steps           []string `json:"steps"`
	Path            [][3]int `json:"path,omitempty"`
	Cost            uint64   `json:"cost"`
}

// ERROR (server -> turtle)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(requestID, code, message string) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		RequestID:       requestID,
		Code:            code,
		Message:         message,
	}
}
