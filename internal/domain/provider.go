package domain

import "context"

// LLMProvider is the interface for any LLM backend. Providers normalize their
// vendor wire format into StreamDelta values; Chat must be implemented by
// draining ChatStream and accumulating, so both paths always agree.
type LLMProvider interface {
	// Chat sends a request and returns the accumulated response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	// ChatStream sends a request and returns a channel of incremental deltas.
	// The channel is closed when the stream ends or ctx is cancelled.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamDelta, error)
	// Name returns the provider's identifier (e.g. "openai", "anthropic").
	Name() string
}

// ToolCallDelta is a fragment of a tool call inside a streaming response.
// Index identifies which in-flight call the fragment belongs to; a single
// delta may carry the ID and Name (first fragment) or only an Arguments
// substring (subsequent fragments).
type ToolCallDelta struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// StreamDelta is a single incremental chunk from a streaming LLM response.
// A non-nil Err means the stream failed after it was established; it is
// always the final delta on the channel, and consumers must propagate it
// instead of treating the text received so far as a complete response.
type StreamDelta struct {
	Content      string          `json:"content,omitempty"`
	ToolCalls    []ToolCallDelta `json:"tool_calls,omitempty"`
	FinishReason string          `json:"finish_reason,omitempty"`
	Done         bool            `json:"done,omitempty"`
	Usage        *Usage          `json:"usage,omitempty"`
	Err          error           `json:"-"`
}
