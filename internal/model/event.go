package model

import "time"

// EventType tags a StreamEvent. The set is closed; consumers can match
// exhaustively.
type EventType string

const (
	EventStart    EventType = "start"
	EventContent  EventType = "content"
	EventToolCall EventType = "tool_call"
	EventCitation EventType = "citation"
	EventError    EventType = "error"
	EventEnd      EventType = "end"
)

// StartPayload opens a stream.
type StartPayload struct {
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

// ContentPayload carries one model text fragment, in arrival order.
type ContentPayload struct {
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
}

// ToolCallPayload reports a capability invocation. Search-backed calls
// additionally carry iteration metadata.
type ToolCallPayload struct {
	Record      ToolCallRecord `json:"record"`
	Iteration   int            `json:"iteration,omitempty"`
	SearchType  string         `json:"search_type,omitempty"`
	ResultCount int            `json:"result_count,omitempty"`
}

// ErrorPayload reports a failure already converted to stream form.
type ErrorPayload struct {
	Message     string `json:"message"`
	Code        string `json:"code"`
	Recoverable bool   `json:"recoverable"`
	RetryAfter  string `json:"retry_after,omitempty"`
}

// EndStatus is the terminal disposition of a stream.
type EndStatus string

const (
	EndCompleted EndStatus = "completed"
	EndError     EndStatus = "error"
	EndStopped   EndStatus = "stopped"
)

// EndPayload closes a stream. Always the last event on a channel.
type EndPayload struct {
	MessageID   string        `json:"message_id"`
	Status      EndStatus     `json:"status"`
	Duration    time.Duration `json:"duration"`
	TotalTokens int64         `json:"total_tokens,omitempty"`
	CostUSD     float64       `json:"cost_usd,omitempty"`
}

// StreamEvent is the unit delivered to the caller. Exactly one payload
// field is non-nil, matching Type. Events are produced by the stream
// session only and never mutated after emission.
type StreamEvent struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	Start    *StartPayload    `json:"start,omitempty"`
	Content  *ContentPayload  `json:"content,omitempty"`
	ToolCall *ToolCallPayload `json:"tool_call,omitempty"`
	Citation *Citation        `json:"citation,omitempty"`
	Error    *ErrorPayload    `json:"error,omitempty"`
	End      *EndPayload      `json:"end,omitempty"`
}
