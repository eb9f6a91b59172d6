package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"agentgw/internal/domain"
	"agentgw/internal/infra/config"
)

func newAnthropicTestProvider(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAnthropicProvider(config.ProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		Model:   "claude-sonnet-4-20250514",
	}, testLogger())
}

func TestAnthropicChatStreamText(t *testing.T) {
	p := newAnthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "test-key" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got != "2023-06-01" {
			t.Errorf("anthropic-version = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w,
			"event: message_start\n",
			`data: {"type":"message_start","message":{"usage":{"input_tokens":25,"output_tokens":1}}}`, "\n\n",
			"event: content_block_start\n",
			`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`, "\n\n",
			"event: content_block_delta\n",
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`, "\n\n",
			"event: content_block_delta\n",
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`, "\n\n",
			"event: message_delta\n",
			`data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`, "\n\n",
			"event: message_stop\n",
			`data: {"type":"message_stop"}`, "\n\n",
		)
	})

	ch, err := p.ChatStream(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	acc := domain.NewStreamAccumulator()
	sawDone := false
	for d := range ch {
		acc.Add(d)
		if d.Done {
			sawDone = true
		}
	}
	if !sawDone {
		t.Error("expected a Done delta from message_stop")
	}
	if got := acc.Content(); got != "Hello world" {
		t.Errorf("content = %q", got)
	}
	if acc.FinishReason() != "end_turn" {
		t.Errorf("finish reason = %q", acc.FinishReason())
	}
	// Input tokens come from message_start, output from message_delta.
	usage := acc.Usage()
	if usage.PromptTokens != 25 || usage.CompletionTokens != 7 || usage.TotalTokens != 32 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestAnthropicChatStreamToolUseBlocks(t *testing.T) {
	p := newAnthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Block index 1 on the wire: a text block occupies index 0. The
		// adapter must assign the tool call index 0 regardless.
		fmt.Fprint(w,
			`data: {"type":"message_start","message":{"usage":{"input_tokens":10,"output_tokens":1}}}`, "\n\n",
			`data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`, "\n\n",
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me check."}}`, "\n\n",
			`data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_01","name":"search_documents"}}`, "\n\n",
			`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"query\":"}}`, "\n\n",
			`data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"go routines\"}"}}`, "\n\n",
			`data: {"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":15}}`, "\n\n",
			`data: {"type":"message_stop"}`, "\n\n",
		)
	})

	ch, err := p.ChatStream(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "search"}},
	})
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}

	acc := domain.NewStreamAccumulator()
	for d := range ch {
		acc.Add(d)
	}
	msg := acc.Message()
	if msg.Content != "Let me check." {
		t.Errorf("content = %q", msg.Content)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(msg.ToolCalls))
	}
	tc := msg.ToolCalls[0]
	if tc.ID != "toolu_01" || tc.Name != "search_documents" {
		t.Errorf("identity = (%q, %q)", tc.ID, tc.Name)
	}
	if string(tc.Arguments) != `{"query":"go routines"}` {
		t.Errorf("arguments = %s", tc.Arguments)
	}
	if acc.FinishReason() != "tool_use" {
		t.Errorf("finish reason = %q", acc.FinishReason())
	}
}

func TestAnthropicRequestShaping(t *testing.T) {
	var captured anthropicRequest
	p := newAnthropicTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"type":"message_stop"}`, "\n\n")
	})

	req := domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "be terse"},
			{Role: domain.RoleUser, Content: "read a.txt"},
			{Role: domain.RoleAssistant, ToolCalls: []domain.ToolCall{
				{ID: "toolu_01", Name: "read_file", Arguments: json.RawMessage(`{"path":"a.txt"}`)},
			}},
			{Role: domain.RoleTool, Name: "read_file", ToolCallID: "toolu_01", Content: "contents"},
		},
		Tools: []domain.ToolSchema{{
			Name:        "read_file",
			Description: "Read a file",
			Parameters:  json.RawMessage(`{"type":"object"}`),
		}},
	}
	ch, err := p.ChatStream(context.Background(), req)
	if err != nil {
		t.Fatalf("ChatStream: %v", err)
	}
	for range ch {
	}

	if captured.System != "be terse" {
		t.Errorf("system = %q, want hoisted system prompt", captured.System)
	}
	if captured.MaxTokens != 4096 {
		t.Errorf("max_tokens = %d, want 4096 default", captured.MaxTokens)
	}
	// System message is hoisted, so three wire messages remain.
	if len(captured.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(captured.Messages))
	}
	assistant := captured.Messages[1]
	if assistant.Role != "assistant" || len(assistant.Content) != 1 {
		t.Fatalf("assistant message = %+v", assistant)
	}
	if assistant.Content[0].Type != "tool_use" || assistant.Content[0].ID != "toolu_01" {
		t.Errorf("tool_use block = %+v", assistant.Content[0])
	}
	toolResult := captured.Messages[2]
	if toolResult.Role != "user" {
		t.Errorf("tool result role = %q, want user", toolResult.Role)
	}
	if toolResult.Content[0].Type != "tool_result" || toolResult.Content[0].ToolUseID != "toolu_01" {
		t.Errorf("tool_result block = %+v", toolResult.Content[0])
	}
	if len(captured.Tools) != 1 || captured.Tools[0].Name != "read_file" {
		t.Errorf("tools = %+v", captured.Tools)
	}
}

func TestNormalizeToolInput(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{``, `{}`},
		{`{"broken`, `{}`},
	}
	for _, tc := range cases {
		got := string(normalizeToolInput(json.RawMessage(tc.in)))
		if got != tc.want {
			t.Errorf("normalizeToolInput(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
