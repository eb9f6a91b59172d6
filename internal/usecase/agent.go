package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"agentgw/internal/domain"
	"agentgw/internal/infra/tracer"
)

// maxIterationsNotice is appended to the visible stream when the loop stops
// without the model producing a final text-only answer.
const maxIterationsNotice = "\n\n[Agent reached maximum iterations]"

// ragHeader introduces retrieved knowledge-base context in the system prompt.
const ragHeader = "\n\n## Relevant Knowledge Base Context\n"

// AgentDeps holds injected dependencies for the agent loop.
type AgentDeps struct {
	Skill   domain.Skill // immutable snapshot, model override already applied
	LLM     domain.LLMProvider
	Tools   domain.ToolExecutor
	History domain.HistoryStore
	RAG     domain.RAGSearcher // optional, nil = no knowledge-base injection
	Events  domain.EventSink   // optional, nil = no webhooks
	Logger  *slog.Logger
	Depth   int // orchestration depth this agent runs at
}

// Agent orchestrates the receive-think-act loop for a single session.
type Agent struct {
	deps    AgentDeps
	session *Session
	maxIter int
}

// NewAgent creates an agent bound to a session. The iteration budget comes
// from the skill, defaulting to 10.
func NewAgent(deps AgentDeps, session *Session) *Agent {
	maxIter := deps.Skill.MaxIterations
	if maxIter <= 0 {
		maxIter = 10
	}
	return &Agent{deps: deps, session: session, maxIter: maxIter}
}

// Session returns the agent's session.
func (a *Agent) Session() *Session { return a.session }

// Run processes one user message through the agent loop, streaming visible
// text fragments on the returned channel. The error channel delivers at
// most one error; both channels are closed when the turn ends. Each call
// starts a fresh iteration budget.
func (a *Agent) Run(ctx context.Context, userMsg string) (<-chan string, <-chan error) {
	out := make(chan string, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)
		if err := a.run(ctx, userMsg, out); err != nil {
			a.emit(domain.EventAgentFailed, map[string]any{
				"session_id": a.session.ID,
				"skill":      a.deps.Skill.Name,
				"error":      err.Error(),
			})
			errCh <- err
		}
	}()

	return out, errCh
}

// RunToCompletion drains Run and returns the joined visible text. It is a
// thin wrapper, never a separate execution path.
func (a *Agent) RunToCompletion(ctx context.Context, userMsg string) (string, error) {
	out, errCh := a.Run(ctx, userMsg)

	var sb strings.Builder
	for fragment := range out {
		sb.WriteString(fragment)
	}
	if err := <-errCh; err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (a *Agent) run(ctx context.Context, userMsg string, out chan<- string) error {
	ctx, span := tracer.StartSpan(ctx, "agent.run",
		trace.WithAttributes(
			tracer.StringAttr("agent.skill", a.deps.Skill.Name),
			tracer.StringAttr("agent.session", a.session.ID),
			tracer.IntAttr("agent.depth", a.deps.Depth),
		),
	)
	defer span.End()

	ctx = domain.ContextWithSessionID(ctx, a.session.ID)

	a.emit(domain.EventAgentStarted, map[string]any{
		"session_id": a.session.ID,
		"skill":      a.deps.Skill.Name,
	})

	// The user message is persisted once, before the first provider call.
	userMessage := domain.Message{
		Role:      domain.RoleUser,
		Content:   userMsg,
		Timestamp: time.Now(),
	}
	a.session.AddMessage(userMessage)
	if err := a.persist(ctx, userMessage); err != nil {
		tracer.RecordError(span, err)
		return err
	}

	var finalText strings.Builder

	for iteration := 0; iteration < a.maxIter; iteration++ {
		req := domain.ChatRequest{
			Model:       a.deps.Skill.Model,
			Messages:    a.buildMessages(ctx),
			Tools:       a.deps.Tools.Schemas(a.deps.Skill.Tools),
			Temperature: a.deps.Skill.Temperature,
		}

		msg, err := a.streamIteration(ctx, req, out, &finalText)
		if err != nil {
			tracer.RecordError(span, err)
			return domain.WrapOp("Agent.Run", err)
		}

		a.session.AddMessage(msg)
		if err := a.persist(ctx, msg); err != nil {
			tracer.RecordError(span, err)
			return err
		}

		if len(msg.ToolCalls) == 0 {
			tracer.SetOK(span)
			a.emit(domain.EventAgentCompleted, map[string]any{
				"session_id": a.session.ID,
				"skill":      a.deps.Skill.Name,
				"response":   finalText.String(),
			})
			return nil
		}

		// Tools observe this agent's depth, not the caller's.
		toolCtx := domain.ContextWithDepth(ctx, a.deps.Depth)
		for _, call := range msg.ToolCalls {
			toolMsg := a.executeTool(toolCtx, call)
			a.session.AddMessage(toolMsg)
			if err := a.persist(ctx, toolMsg); err != nil {
				tracer.RecordError(span, err)
				return err
			}
		}
	}

	// Budget exhausted with tool calls still pending: surface the sentinel
	// in the visible stream rather than failing the turn.
	out <- maxIterationsNotice
	a.deps.Logger.Warn("agent reached maximum iterations",
		"session_id", a.session.ID,
		"skill", a.deps.Skill.Name,
		"max_iterations", a.maxIter,
	)
	tracer.SetOK(span)
	a.emit(domain.EventAgentCompleted, map[string]any{
		"session_id": a.session.ID,
		"skill":      a.deps.Skill.Name,
		"response":   finalText.String() + maxIterationsNotice,
	})
	return nil
}

// streamIteration performs one provider call, forwarding text fragments to
// out while accumulating the full assistant message.
func (a *Agent) streamIteration(ctx context.Context, req domain.ChatRequest, out chan<- string, finalText *strings.Builder) (domain.Message, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.iteration")
	defer span.End()

	ch, err := a.deps.LLM.ChatStream(ctx, req)
	if err != nil {
		tracer.RecordError(span, err)
		return domain.Message{}, err
	}

	acc := domain.NewStreamAccumulator()
	for delta := range ch {
		if delta.Err != nil {
			// Text already forwarded to the caller is visibly truncated;
			// nothing from this iteration is persisted.
			tracer.RecordError(span, delta.Err)
			return domain.Message{}, delta.Err
		}
		acc.Add(delta)
		if delta.Content != "" {
			finalText.WriteString(delta.Content)
			select {
			case out <- delta.Content:
			case <-ctx.Done():
				return domain.Message{}, ctx.Err()
			}
		}
	}

	span.SetAttributes(
		tracer.IntAttr("llm.prompt_tokens", acc.Usage().PromptTokens),
		tracer.IntAttr("llm.completion_tokens", acc.Usage().CompletionTokens),
	)
	tracer.SetOK(span)
	return acc.Message(), nil
}

// executeTool dispatches a single tool call and shapes the result into a
// tool-role message correlated by the call's ID. Tool failures are data.
func (a *Agent) executeTool(ctx context.Context, call domain.ToolCall) domain.Message {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(tracer.StringAttr("tool.name", call.Name)),
	)
	defer span.End()

	// Malformed argument text from the model degrades to an empty object;
	// the tool reports its own missing-argument error back to the model.
	if len(call.Arguments) == 0 || !json.Valid(call.Arguments) {
		call.Arguments = json.RawMessage(`{}`)
	}

	start := time.Now()
	result := a.deps.Tools.Execute(ctx, call)
	a.emit(domain.EventToolExecuted, map[string]any{
		"session_id": a.session.ID,
		"tool":       call.Name,
		"success":    fmt.Sprintf("%v", !result.IsError),
		"duration":   time.Since(start).String(),
	})

	if result.IsError {
		span.SetAttributes(tracer.StringAttr("tool.error", result.Content))
	} else {
		tracer.SetOK(span)
	}

	return domain.Message{
		Role:       domain.RoleTool,
		Name:       call.Name,
		Content:    result.Content,
		ToolCallID: call.ID,
		Timestamp:  time.Now(),
	}
}

// buildMessages assembles the prompt: system prompt (with retrieved context
// when configured), few-shot examples, then the full session history. It is
// rebuilt from scratch every iteration.
func (a *Agent) buildMessages(ctx context.Context) []domain.Message {
	systemContent := a.deps.Skill.SystemPrompt
	if block := a.ragBlock(ctx); block != "" {
		systemContent += block
	}

	msgs := []domain.Message{{Role: domain.RoleSystem, Content: systemContent}}
	for _, ex := range a.deps.Skill.Examples {
		msgs = append(msgs,
			domain.Message{Role: domain.RoleUser, Content: ex.User},
			domain.Message{Role: domain.RoleAssistant, Content: ex.Assistant},
		)
	}
	return append(msgs, a.session.Messages()...)
}

// ragBlock retrieves knowledge-base context for the most recent user
// message. Retrieval failures degrade to no context; they never fail the
// turn.
func (a *Agent) ragBlock(ctx context.Context) string {
	rc := a.deps.Skill.RAGContext
	if !rc.Enabled || a.deps.RAG == nil {
		return ""
	}

	query := a.lastUserMessage()
	if query == "" {
		return ""
	}

	results, err := a.deps.RAG.Search(ctx, query, rc.TopK, rc.Skills, rc.Tags)
	if err != nil {
		a.deps.Logger.Warn("knowledge base search failed",
			"session_id", a.session.ID,
			"error", err,
		)
		return ""
	}
	if len(results) == 0 {
		return ""
	}

	texts := make([]string, len(results))
	for i, res := range results {
		texts[i] = res.Text
	}
	return ragHeader + strings.Join(texts, "\n---\n")
}

func (a *Agent) lastUserMessage() string {
	msgs := a.session.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}

func (a *Agent) persist(ctx context.Context, msg domain.Message) error {
	if a.deps.History == nil {
		return nil
	}
	if _, err := a.deps.History.SaveMessage(ctx, a.session.ID, a.deps.Skill.Name, msg); err != nil {
		return domain.WrapOp("Agent.persist", err)
	}
	return nil
}

func (a *Agent) emit(event domain.Event, data map[string]any) {
	if a.deps.Events == nil {
		return
	}
	a.deps.Events.Emit(event, data)
}
