// Package agent implements the career-mentor assistant pipeline: a single
// LLM-backed agent wrapped in a round-robin team that runs one conversation
// turn at a time and terminates on a sentinel token.
package agent

// EventKind discriminates the closed set of streamed event variants.
type EventKind int

const (
	// EventToolCallRequest is emitted when the model requests one or more tool calls.
	EventToolCallRequest EventKind = iota + 1
	// EventTextMessage is emitted for each text reply produced during a turn.
	EventTextMessage
	// EventFinalResponse wraps the text message that ends a participant's turn.
	EventFinalResponse
)

// ToolCall is one requested tool invocation.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Event is one unit of agent output emitted while a turn is in progress.
// Content carries the raw, unstripped text: termination matching must see the
// sentinel token even though the display layer removes it.
type Event struct {
	Kind    EventKind  `json:"kind"`
	Source  string     `json:"source"`
	Content string     `json:"content,omitempty"`
	Calls   []ToolCall `json:"calls,omitempty"`
}
