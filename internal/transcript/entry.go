package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Kind marks entries that need special handling. The zero value is a plain
// conversational entry.
type Kind string

const (
	KindMessage      Kind = ""
	KindSummary      Kind = "summary"
	KindToolResult   Kind = "tool_result"
	KindLocalCommand Kind = "local_command"
	KindContext      Kind = "context"
)

type ToolState string

const (
	ToolPending  ToolState = "pending"
	ToolRunning  ToolState = "running"
	ToolComplete ToolState = "complete"
	ToolError    ToolState = "error"
)

type ToolInvocation struct {
	Name   string          `json:"name"`
	Input  json.RawMessage `json:"input,omitempty"`
	State  ToolState       `json:"state,omitempty"`
	Result string          `json:"result,omitempty"`

	// HasResult distinguishes "no result yet" from an empty result payload.
	HasResult bool `json:"hasResult,omitempty"`
}

// Entry is one reconciled unit of a session transcript.
type Entry struct {
	ID        string            `json:"id"`
	Role      Role              `json:"role"`
	Timestamp time.Time         `json:"timestamp"`
	Text      string            `json:"text,omitempty"`
	Tools     []*ToolInvocation `json:"tools,omitempty"`
	Kind      Kind              `json:"kind,omitempty"`

	// Provisional marks a locally synthesized entry awaiting its
	// authoritative echo from the stream.
	Provisional bool `json:"-"`
}

// toolOnly reports whether the entry is an assistant turn that carries
// nothing but tool invocations. Consecutive tool-only turns are merged
// into a single block by the reconciler.
func (e *Entry) toolOnly() bool {
	return e.Role == RoleAssistant &&
		strings.TrimSpace(e.Text) == "" &&
		len(e.Tools) > 0 &&
		e.Kind == KindMessage
}

func knownKind(k Kind) bool {
	switch k {
	case KindMessage, KindSummary, KindToolResult, KindLocalCommand, KindContext:
		return true
	}
	return false
}

// Event is one frame of the live session stream.
type Event struct {
	Type    string `json:"type"`
	Message *Entry `json:"message,omitempty"`
}

const (
	EventConnected = "connected"
	EventMessage   = "message"
)

func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode stream event: %w", err)
	}
	return ev, nil
}

func DecodeEntries(data []byte) ([]*Entry, error) {
	var payload struct {
		Entries []*Entry `json:"entries"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode history payload: %w", err)
	}
	return payload.Entries, nil
}
