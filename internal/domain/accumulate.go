package domain

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// StreamAccumulator collects incremental deltas into a complete message.
// It is the single accumulation rule in the system: providers implement Chat
// by draining ChatStream through an accumulator, and the agent loop uses the
// same type, so buffered and streaming paths cannot diverge.
type StreamAccumulator struct {
	content      strings.Builder
	calls        map[int]*toolCallState
	finishReason string
	usage        Usage
}

type toolCallState struct {
	id   string
	name string
	args strings.Builder
}

// NewStreamAccumulator returns an empty accumulator.
func NewStreamAccumulator() *StreamAccumulator {
	return &StreamAccumulator{calls: make(map[int]*toolCallState)}
}

// Add merges a single streaming delta into the accumulator.
// Tool-call fragments are keyed by index: the first fragment for an index
// establishes ID and Name (later empty fragments never overwrite them) and
// argument substrings are concatenated in arrival order. The last non-empty
// finish reason wins.
func (acc *StreamAccumulator) Add(delta StreamDelta) {
	acc.content.WriteString(delta.Content)

	for _, tc := range delta.ToolCalls {
		if tc.Index < 0 {
			continue
		}
		state, ok := acc.calls[tc.Index]
		if !ok {
			state = &toolCallState{}
			acc.calls[tc.Index] = state
		}
		if state.id == "" && tc.ID != "" {
			state.id = tc.ID
		}
		if state.name == "" && tc.Name != "" {
			state.name = tc.Name
		}
		state.args.WriteString(tc.Arguments)
	}

	if delta.FinishReason != "" {
		acc.finishReason = delta.FinishReason
	}
	if delta.Usage != nil {
		acc.usage = *delta.Usage
	}
}

// Content returns the text accumulated so far.
func (acc *StreamAccumulator) Content() string {
	return acc.content.String()
}

// FinishReason returns the last non-empty finish reason seen.
func (acc *StreamAccumulator) FinishReason() string {
	return acc.finishReason
}

// Usage returns the accumulated token usage.
func (acc *StreamAccumulator) Usage() Usage {
	return acc.usage
}

// Message builds the assistant message from the accumulated state. Tool
// calls appear in ascending index order regardless of the order their
// first fragments arrived in.
func (acc *StreamAccumulator) Message() Message {
	msg := Message{
		Role:      RoleAssistant,
		Content:   acc.content.String(),
		Timestamp: time.Now(),
	}
	for _, idx := range slices.Sorted(maps.Keys(acc.calls)) {
		state := acc.calls[idx]
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        state.id,
			Name:      state.name,
			Arguments: []byte(state.args.String()),
		})
	}
	return msg
}
