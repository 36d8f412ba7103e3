package providers

import "time"

// Message is a single conversation entry as sent to and received from a
// backend. Channel and Sender are attribution labels for cross-channel
// history display; they carry no security meaning.
type Message struct {
	Role       string         `json:"role"` // system, user, assistant, tool
	Content    string         `json:"content"`
	Reasoning  string         `json:"reasoning_content,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Sender     string         `json:"sender,omitempty"`
	Timestamp  time.Time      `json:"timestamp,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ToolCall is one tool invocation requested by the model.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolDefinition describes a callable tool to the model. Parameters is a
// JSON-schema object ({"type":"object","properties":...,"required":...}).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Fragment is one element of a backend response stream. It is a closed
// union: TextChunk or ToolCallBatch.
type Fragment interface {
	fragment()
}

// TextChunk carries a piece of assistant text. Streaming backends emit one
// chunk per delta; non-streaming backends emit the full text in a single
// chunk.
type TextChunk struct {
	Text string
}

func (TextChunk) fragment() {}

// ToolCallBatch carries the tool invocations of one assistant turn, plus
// any text and reasoning the model produced alongside them. Text always
// holds the complete accumulated text of the turn, even when deltas were
// already emitted as TextChunks.
type ToolCallBatch struct {
	Text      string
	Reasoning string
	Calls     []ToolCall
}

func (ToolCallBatch) fragment() {}
