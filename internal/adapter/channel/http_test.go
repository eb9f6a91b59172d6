package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"agentgw/internal/domain"
	"agentgw/internal/infra/config"
	"agentgw/internal/usecase"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedProvider streams one canned answer per call.
type scriptedProvider struct {
	answer string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	ch := make(chan domain.StreamDelta, 2)
	ch <- domain.StreamDelta{Content: p.answer}
	ch <- domain.StreamDelta{FinishReason: "stop", Done: true}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return &domain.ChatResponse{
		Message:      domain.Message{Role: domain.RoleAssistant, Content: p.answer},
		FinishReason: "stop",
	}, nil
}

type staticSkills struct{ skills []domain.Skill }

func (s *staticSkills) Get(name string) (*domain.Skill, error) {
	for i := range s.skills {
		if s.skills[i].Name == name {
			return &s.skills[i], nil
		}
	}
	return nil, domain.NewDomainError("static", domain.ErrSkillNotFound, name)
}

func (s *staticSkills) List() []domain.Skill { return s.skills }

type noTools struct{}

func (noTools) Execute(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	return &domain.ToolResult{ToolCallID: call.ID, Content: "", IsError: true}
}
func (noTools) Schemas(names []string) []domain.ToolSchema { return nil }

func newTestServer(t *testing.T) (*HTTPServer, string) {
	t.Helper()
	svc := usecase.NewService(usecase.ServiceConfig{
		Skills: &staticSkills{skills: []domain.Skill{{
			Name:          "helper",
			Description:   "a test skill",
			SystemPrompt:  "be helpful",
			MaxIterations: 3,
		}}},
		LLM:    &scriptedProvider{answer: "Hello from the agent"},
		Tools:  noTools{},
		Logger: testLogger(),
	})

	srv, err := NewHTTPServer(config.ServerConfig{
		Addr:            "127.0.0.1:0",
		RateLimitPerMin: 600,
		RateLimitBurst:  100,
	}, svc, nil, nil, nil, testLogger())
	if err != nil {
		t.Fatalf("NewHTTPServer: %v", err)
	}
	go srv.Start()
	t.Cleanup(func() { srv.Stop(context.Background()) })
	return srv, "http://" + srv.Addr()
}

func TestHealthEndpoint(t *testing.T) {
	_, base := newTestServer(t)
	resp, err := http.Get(base + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestChatStreamsSSE(t *testing.T) {
	_, base := newTestServer(t)

	resp, err := http.Post(base+"/api/chat", "application/json",
		strings.NewReader(`{"skill":"helper","message":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	var events []string
	var chunks []string
	var sessionID string
	scanner := bufio.NewScanner(resp.Body)
	var currentEvent string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			currentEvent = strings.TrimPrefix(line, "event: ")
			events = append(events, currentEvent)
		case strings.HasPrefix(line, "data: "):
			data := strings.TrimPrefix(line, "data: ")
			var payload map[string]string
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				t.Fatalf("bad event data %q: %v", data, err)
			}
			switch currentEvent {
			case "session":
				sessionID = payload["session_id"]
			case "chunk":
				chunks = append(chunks, payload["content"])
			}
		}
	}

	if len(events) == 0 || events[0] != "session" {
		t.Errorf("events = %v, want session first", events)
	}
	if events[len(events)-1] != "done" {
		t.Errorf("events = %v, want done last", events)
	}
	if sessionID == "" {
		t.Error("missing session id")
	}
	if strings.Join(chunks, "") != "Hello from the agent" {
		t.Errorf("chunks = %v", chunks)
	}
}

func TestChatUnknownSkill(t *testing.T) {
	_, base := newTestServer(t)
	resp, err := http.Post(base+"/api/chat", "application/json",
		strings.NewReader(`{"skill":"ghost","message":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestChatValidation(t *testing.T) {
	_, base := newTestServer(t)
	resp, err := http.Post(base+"/api/chat", "application/json",
		strings.NewReader(`{"skill":"helper"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSkillsEndpoint(t *testing.T) {
	_, base := newTestServer(t)
	resp, err := http.Get(base + "/api/skills")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Skills []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"skills"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Skills) != 1 || body.Skills[0].Name != "helper" {
		t.Errorf("skills = %+v", body.Skills)
	}
}

func TestKnowledgeBaseDisabledReturns503(t *testing.T) {
	_, base := newTestServer(t)
	resp, err := http.Post(base+"/api/ingest", "application/json",
		strings.NewReader(`{"text":"doc","source":"a.md"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}
