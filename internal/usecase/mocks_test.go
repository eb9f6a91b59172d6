package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"agentgw/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockProvider replays scripted streams, one per ChatStream call, and
// records every request it sees.
type mockProvider struct {
	mu       sync.Mutex
	turns    [][]domain.StreamDelta
	requests []domain.ChatRequest
	err      error
}

var _ domain.LLMProvider = (*mockProvider)(nil)

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockProvider) request(i int) domain.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

func (m *mockProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	m.mu.Lock()
	if m.err != nil {
		m.mu.Unlock()
		return nil, m.err
	}
	turn := len(m.requests)
	m.requests = append(m.requests, req)
	var deltas []domain.StreamDelta
	if turn < len(m.turns) {
		deltas = m.turns[turn]
	} else if len(m.turns) > 0 {
		// Past the script, keep replaying the last turn. Lets exhaustion
		// tests script a single endlessly tool-calling response.
		deltas = m.turns[len(m.turns)-1]
	}
	m.mu.Unlock()

	ch := make(chan domain.StreamDelta, len(deltas))
	for _, d := range deltas {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	ch, err := m.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}
	acc := domain.NewStreamAccumulator()
	for d := range ch {
		acc.Add(d)
	}
	return &domain.ChatResponse{
		Model:        req.Model,
		Message:      acc.Message(),
		FinishReason: acc.FinishReason(),
		Usage:        acc.Usage(),
	}, nil
}

// textTurn scripts a plain streamed answer.
func textTurn(parts ...string) []domain.StreamDelta {
	var deltas []domain.StreamDelta
	for _, p := range parts {
		deltas = append(deltas, domain.StreamDelta{Content: p})
	}
	return append(deltas, domain.StreamDelta{FinishReason: "stop", Done: true})
}

// toolTurn scripts a response consisting of the given tool calls.
func toolTurn(calls ...domain.ToolCallDelta) []domain.StreamDelta {
	return []domain.StreamDelta{
		{ToolCalls: calls},
		{FinishReason: "tool_calls", Done: true},
	}
}

// mockExecutor answers tool calls from a canned map and records each call
// along with the orchestration depth it observed.
type mockExecutor struct {
	mu      sync.Mutex
	results map[string]string
	calls   []domain.ToolCall
	depths  []int
	args    []json.RawMessage
}

var _ domain.ToolExecutor = (*mockExecutor)(nil)

func (m *mockExecutor) Execute(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.depths = append(m.depths, domain.DepthFromContext(ctx))
	m.args = append(m.args, call.Arguments)
	m.mu.Unlock()

	content, ok := m.results[call.Name]
	if !ok {
		return &domain.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Error: unknown tool %q", call.Name),
			IsError:    true,
		}
	}
	return &domain.ToolResult{ToolCallID: call.ID, Content: content}
}

func (m *mockExecutor) Schemas(names []string) []domain.ToolSchema {
	schemas := make([]domain.ToolSchema, 0, len(names))
	for _, name := range names {
		schemas = append(schemas, domain.ToolSchema{
			Name:       name,
			Parameters: json.RawMessage(`{"type":"object"}`),
		})
	}
	return schemas
}

// mockHistory is an in-memory HistoryStore.
type mockHistory struct {
	mu        sync.Mutex
	sessions  map[string]string
	messages  map[string][]domain.Message
	feedback  []domain.Feedback
	nextID    int64
	saveErr   error
	createErr error
}

var _ domain.HistoryStore = (*mockHistory)(nil)

func newMockHistory() *mockHistory {
	return &mockHistory{
		sessions: make(map[string]string),
		messages: make(map[string][]domain.Message),
	}
}

func (m *mockHistory) CreateSession(ctx context.Context, id, skillName string) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = skillName
	return nil
}

func (m *mockHistory) TouchSession(ctx context.Context, id string) error { return nil }

func (m *mockHistory) SaveMessage(ctx context.Context, sessionID, skillName string, msg domain.Message) (int64, error) {
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[sessionID] = append(m.messages[sessionID], msg)
	m.nextID++
	return m.nextID, nil
}

func (m *mockHistory) History(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.messages[sessionID]...), nil
}

func (m *mockHistory) ListSessions(ctx context.Context, limit int) ([]domain.SessionRecord, error) {
	return nil, nil
}

func (m *mockHistory) SessionMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	return m.History(ctx, sessionID, 0)
}

func (m *mockHistory) LastAssistantMessageID(ctx context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return 0, domain.NewDomainError("mock", domain.ErrSessionNotFound, sessionID)
	}
	return m.nextID, nil
}

func (m *mockHistory) SaveFeedback(ctx context.Context, fb domain.Feedback) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = append(m.feedback, fb)
	return int64(len(m.feedback)), nil
}

func (m *mockHistory) saved(sessionID string) []domain.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Message(nil), m.messages[sessionID]...)
}

// mockSkills serves a fixed skill set.
type mockSkills struct {
	skills []domain.Skill
}

var _ domain.SkillProvider = (*mockSkills)(nil)

func (m *mockSkills) Get(name string) (*domain.Skill, error) {
	for i := range m.skills {
		if m.skills[i].Name == name {
			return &m.skills[i], nil
		}
	}
	return nil, domain.NewDomainError("mock", domain.ErrSkillNotFound, name)
}

func (m *mockSkills) List() []domain.Skill {
	return append([]domain.Skill(nil), m.skills...)
}

// mockSearcher returns fixed results or an error.
type mockSearcher struct {
	results []domain.SearchResult
	err     error
	queries []string
}

var _ domain.RAGSearcher = (*mockSearcher)(nil)

func (m *mockSearcher) Search(ctx context.Context, query string, topK int, skills, tags []string) ([]domain.SearchResult, error) {
	m.queries = append(m.queries, query)
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

func testSkill(name string, tools ...string) domain.Skill {
	return domain.Skill{
		Name:          name,
		Description:   "test skill",
		SystemPrompt:  "You are a test assistant.",
		Tools:         tools,
		MaxIterations: 10,
	}
}
