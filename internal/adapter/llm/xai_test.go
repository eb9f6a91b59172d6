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

func TestXAIDelegatesToOpenAIWireFormat(t *testing.T) {
	var captured openaiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer xai-key" {
			t.Errorf("authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseBody(`{"choices":[{"delta":{"content":"grok says hi"},"finish_reason":"stop"}]}`))
	}))
	t.Cleanup(srv.Close)

	p := NewXAIProvider(config.ProviderConfig{
		BaseURL: srv.URL,
		APIKey:  "xai-key",
	}, testLogger())

	if p.Name() != "xai" {
		t.Errorf("name = %q", p.Name())
	}

	resp, err := p.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Message.Content != "grok says hi" {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if captured.Model != "grok-beta" {
		t.Errorf("model = %q, want grok-beta default", captured.Model)
	}
}

func TestNewProviderSelectsType(t *testing.T) {
	cases := []struct {
		typ  string
		want string
	}{
		{"openai", "openai"},
		{"", "openai"},
		{"anthropic", "anthropic"},
		{"xai", "xai"},
	}
	for _, tc := range cases {
		p, err := NewProvider(config.ProviderConfig{Type: tc.typ}, config.CircuitBreakerConfig{}, testLogger())
		if err != nil {
			t.Fatalf("type %q: %v", tc.typ, err)
		}
		if p.Name() != tc.want {
			t.Errorf("type %q: name = %q, want %q", tc.typ, p.Name(), tc.want)
		}
	}

	if _, err := NewProvider(config.ProviderConfig{Type: "bogus"}, config.CircuitBreakerConfig{}, testLogger()); err == nil {
		t.Error("expected error for unknown provider type")
	}
}
