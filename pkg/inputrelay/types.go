// Package inputrelay implements the LAN Input Server and its symmetric
// Input Client: a TCP, newline-delimited JSON protocol that authenticates
// peers against a token/session/stream triple and, while the local
// session is marked active, funnels input events into a
// pkg/inject.Injector. Grounded on the teacher's pkg/p2p/connection.go
// accept-loop/worker-goroutine shape, adapted from its length-prefixed
// JSON framing to spec.md section 6's line-delimited framing.
package inputrelay

import "encoding/json"

// Event tags, matching spec.md section 6 exactly.
const (
	TypeAuth             = "auth"
	TypeAuthOK           = "auth_ok"
	TypeAuthError        = "auth_error"
	TypeMouseMove        = "mouse_move"
	TypeMouseButton      = "mouse_button"
	TypeMouseWheel       = "mouse_wheel"
	TypeKey              = "key"
	TypeDisconnectHotkey = "disconnect_hotkey"
	TypePing             = "ping"
)

// Auth failure reasons, in the precedence order spec.md section 4.4
// requires: the first applicable reason is the one reported.
const (
	ReasonTokenExpired    = "token_expired"
	ReasonInvalidToken    = "invalid_token"
	ReasonInvalidSession  = "invalid_session"
	ReasonInvalidStream   = "invalid_stream"
	ReasonSessionInactive = "session_inactive"
	ReasonExpectedAuth    = "expected_auth"
	ReasonInvalidAuthJSON = "invalid_auth_json"
	ReasonUnknown         = "unknown"
)

// envelope is the minimal shape every inbound line is first decoded into
// to read its tag before dispatching to a typed payload.
type envelope struct {
	Type string `json:"type"`
}

// AuthMessage is the client->server auth frame.
type AuthMessage struct {
	Type      string `json:"type"`
	Token     string `json:"token"`
	SessionID string `json:"sessionId,omitempty"`
	StreamID  string `json:"streamId,omitempty"`
	Version   int    `json:"version,omitempty"`
}

// AuthOKMessage is the server->client success reply.
type AuthOKMessage struct {
	Type string `json:"type"`
}

// AuthErrorMessage is the server->client failure reply.
type AuthErrorMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// PingMessage is the client writer's idle heartbeat.
type PingMessage struct {
	Type string `json:"type"`
	TsUs uint64 `json:"tsUs"`
}

// Event is the tagged union of data-plane input events carried over the
// wire, matching spec.md section 3. Only the fields relevant to Type are
// populated; Ctrl/Alt/Shift/Meta are always present on the wire for key
// events (defaulted false by senders, tolerated absent by receivers).
type Event struct {
	Type      string `json:"type"`
	Seq       uint64 `json:"seq"`
	TsUs      uint64 `json:"tsUs"`
	Dx        int    `json:"dx,omitempty"`
	Dy        int    `json:"dy,omitempty"`
	Button    int    `json:"button,omitempty"`
	Down      bool   `json:"down,omitempty"`
	DeltaX    int    `json:"deltaX,omitempty"`
	DeltaY    int    `json:"deltaY,omitempty"`
	Code      string `json:"code,omitempty"`
	Ctrl      bool   `json:"ctrl"`
	Alt       bool   `json:"alt"`
	Shift     bool   `json:"shift"`
	Meta      bool   `json:"meta"`
}

func encodeLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
