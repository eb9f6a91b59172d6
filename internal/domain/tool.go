package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
// Parameters is a JSON Schema object.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents an LLM's request to invoke a tool. Arguments is the
// raw argument text as produced by the model and may be malformed JSON;
// executors must tolerate that.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a tool. Failures are carried as
// data (IsError true) rather than Go errors so the model can observe and
// recover from them.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool lookup and execution for the agent loop.
type ToolExecutor interface {
	// Execute runs the named tool. Unknown tools and execution failures are
	// reported through the result's IsError flag, never as a Go error.
	Execute(ctx context.Context, call ToolCall) *ToolResult
	// Schemas returns the schemas for the named tools, skipping unknown names.
	Schemas(names []string) []ToolSchema
}
