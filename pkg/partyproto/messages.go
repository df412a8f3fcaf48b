package partyproto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// Client message type tags.
const (
	TypeHello            = "hello"
	TypeUpdateProfile    = "update_profile"
	TypeChat             = "chat"
	TypeUpdateScore      = "update_score"
	TypeGetDebugState    = "get_debug_state"
	TypeClearMessages    = "clear_messages"
	TypeClearLeaderboard = "clear_leaderboard"
)

var (
	ErrMalformed    = errors.New("malformed message")
	ErrInvalidDelta = errors.New("invalid score delta")
)

// UnknownTypeError reports a well-formed frame whose type tag is not recognised.
type UnknownTypeError struct{ Type string }

func (e *UnknownTypeError) Error() string { return fmt.Sprintf("unknown message type %q", e.Type) }

// ClientMessage is the closed set of frames a client may send.
// Only types in this package implement it.
type ClientMessage interface {
	Kind() string
	clientMessage()
}

type Hello struct {
	UserID      string  `json:"userId"`
	Nickname    *string `json:"nickname,omitempty"`
	CurrentTask *string `json:"currentTask,omitempty"`
	Role        *string `json:"role,omitempty"`
}

type UpdateProfile struct {
	Name *string `json:"name,omitempty"`
	Task *string `json:"task,omitempty"`
	Role *string `json:"role,omitempty"`
}

type Chat struct {
	Text string `json:"text"`
}

type UpdateScore struct {
	Delta int64 `json:"delta"`
}

type GetDebugState struct {
	DebugKey string `json:"debugKey"`
}

type ClearMessages struct {
	DebugKey string `json:"debugKey"`
}

type ClearLeaderboard struct {
	DebugKey string `json:"debugKey"`
}

func (Hello) Kind() string            { return TypeHello }
func (UpdateProfile) Kind() string    { return TypeUpdateProfile }
func (Chat) Kind() string             { return TypeChat }
func (UpdateScore) Kind() string      { return TypeUpdateScore }
func (GetDebugState) Kind() string    { return TypeGetDebugState }
func (ClearMessages) Kind() string    { return TypeClearMessages }
func (ClearLeaderboard) Kind() string { return TypeClearLeaderboard }

func (Hello) clientMessage()            {}
func (UpdateProfile) clientMessage()    {}
func (Chat) clientMessage()             {}
func (UpdateScore) clientMessage()      {}
func (GetDebugState) clientMessage()    {}
func (ClearMessages) clientMessage()    {}
func (ClearLeaderboard) clientMessage() {}

type envelope struct {
	Type string `json:"type"`
}

// Decode parses one client frame into its concrete message type.
func Decode(raw []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind := strings.TrimSpace(env.Type)
	if kind == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}

	switch kind {
	case TypeHello:
		var m Hello
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		m.UserID = strings.TrimSpace(m.UserID)
		if m.UserID == "" {
			return nil, fmt.Errorf("%w: hello without userId", ErrMalformed)
		}
		return m, nil
	case TypeUpdateProfile:
		var m UpdateProfile
		return decodeInto(raw, &m)
	case TypeChat:
		var m Chat
		return decodeInto(raw, &m)
	case TypeUpdateScore:
		var body struct {
			Delta json.RawMessage `json:"delta"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		d, err := ParseDelta(body.Delta)
		if err != nil {
			return nil, err
		}
		return UpdateScore{Delta: d}, nil
	case TypeGetDebugState:
		var m GetDebugState
		return decodeInto(raw, &m)
	case TypeClearMessages:
		var m ClearMessages
		return decodeInto(raw, &m)
	case TypeClearLeaderboard:
		var m ClearLeaderboard
		return decodeInto(raw, &m)
	default:
		return nil, &UnknownTypeError{Type: kind}
	}
}

func decodeInto[T ClientMessage](raw []byte, m *T) (ClientMessage, error) {
	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return *m, nil
}

// ParseDelta accepts a JSON number (integral or not) and rounds it to the nearest integer.
// Numeric strings are tolerated because HTTP callers sometimes send form-encoded values.
func ParseDelta(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, ErrInvalidDelta
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, ErrInvalidDelta
		}
		raw = json.RawMessage(strings.TrimSpace(s))
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, ErrInvalidDelta
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32 {
		return 0, ErrInvalidDelta
	}
	return int64(math.Round(f)), nil
}
