package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"agentgw/internal/domain"
)

// Service creates and runs agents on top of the configured skill set. It is
// the single entry point for chat turns, whether driven by the HTTP API,
// the CLI, the scheduler, or delegation from another agent.
type Service struct {
	skills   domain.SkillProvider
	llm      domain.LLMProvider
	tools    domain.ToolExecutor
	history  domain.HistoryStore
	rag      domain.RAGSearcher
	events   domain.EventSink
	logger   *slog.Logger
	maxDepth int
}

// ServiceConfig carries the collaborators a Service needs. RAG and Events
// are optional.
type ServiceConfig struct {
	Skills   domain.SkillProvider
	LLM      domain.LLMProvider
	Tools    domain.ToolExecutor
	History  domain.HistoryStore
	RAG      domain.RAGSearcher
	Events   domain.EventSink
	Logger   *slog.Logger
	MaxDepth int
}

// NewService wires a Service. MaxDepth defaults to 3.
func NewService(cfg ServiceConfig) *Service {
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &Service{
		skills:   cfg.Skills,
		llm:      cfg.LLM,
		tools:    cfg.Tools,
		history:  cfg.History,
		rag:      cfg.RAG,
		events:   cfg.Events,
		logger:   cfg.Logger,
		maxDepth: maxDepth,
	}
}

// AgentOptions adjust how an agent is created for a turn.
type AgentOptions struct {
	// SessionID resumes an existing session when set; a fresh session is
	// created otherwise.
	SessionID string
	// Model overrides the skill's configured model for this agent.
	Model string
	// Depth is the orchestration depth the agent runs at. Zero means the
	// depth carried by the context, or the top level.
	Depth int
}

// CreateAgent builds an agent for the named skill. Unknown skills produce
// an error listing what is available.
func (s *Service) CreateAgent(ctx context.Context, skillName string, opts AgentOptions) (*Agent, error) {
	skill, err := s.skills.Get(skillName)
	if err != nil {
		return nil, fmt.Errorf("skill %q not found, available: %s",
			skillName, strings.Join(s.skillNames(), ", "))
	}

	// The agent works on a snapshot so overrides never leak into the
	// loaded skill set.
	snapshot := *skill
	if opts.Model != "" {
		snapshot.Model = opts.Model
	}

	depth := opts.Depth
	if depth == 0 {
		depth = domain.DepthFromContext(ctx)
	}

	session, err := s.openSession(ctx, skillName, opts.SessionID)
	if err != nil {
		return nil, err
	}

	return NewAgent(AgentDeps{
		Skill:   snapshot,
		LLM:     s.llm,
		Tools:   s.tools,
		History: s.history,
		RAG:     s.rag,
		Events:  s.events,
		Logger:  s.logger,
		Depth:   depth,
	}, session), nil
}

// openSession resumes sessionID when set, replaying persisted history into
// the in-memory session, or creates a fresh one.
func (s *Service) openSession(ctx context.Context, skillName, sessionID string) (*Session, error) {
	if sessionID == "" {
		session := NewSession(skillName)
		if s.history != nil {
			if err := s.history.CreateSession(ctx, session.ID, skillName); err != nil {
				return nil, domain.WrapOp("Service.openSession", err)
			}
		}
		if s.events != nil {
			s.events.Emit(domain.EventSessionCreated, map[string]any{
				"session_id": session.ID,
				"skill":      skillName,
			})
		}
		return session, nil
	}

	var history []domain.Message
	if s.history != nil {
		msgs, err := s.history.History(ctx, sessionID, 0)
		if err != nil {
			return nil, domain.WrapOp("Service.openSession", err)
		}
		history = msgs
		if err := s.history.TouchSession(ctx, sessionID); err != nil {
			s.logger.Warn("failed to touch session", "session_id", sessionID, "error", err)
		}
	}
	return ResumeSession(sessionID, skillName, history), nil
}

// RunSkill executes a single task against a skill at the given orchestration
// depth and returns the final text. This is the entry point the delegate
// tool calls; depth is the sub-agent's own depth, already incremented by the
// caller. The delegate tool gates at the cap before incrementing, so depths
// up to and including maxDepth are legal here; anything beyond means a
// caller bypassed the gate, and the run is refused before building anything
// so it has no side effects.
func (s *Service) RunSkill(ctx context.Context, skillName, task string, depth int) (string, error) {
	if depth > s.maxDepth {
		return "", domain.NewDomainError("Service.RunSkill", domain.ErrMaxDepth,
			fmt.Sprintf("orchestration depth %d exceeds the limit of %d", depth, s.maxDepth))
	}

	agent, err := s.CreateAgent(ctx, skillName, AgentOptions{Depth: depth})
	if err != nil {
		return "", err
	}

	s.logger.Info("running delegated task",
		"skill", skillName,
		"depth", depth,
		"session_id", agent.Session().ID,
	)
	return agent.RunToCompletion(ctx, task)
}

// Skills returns the loaded skill set.
func (s *Service) Skills() []domain.Skill { return s.skills.List() }

// MaxDepth reports the orchestration depth limit.
func (s *Service) MaxDepth() int { return s.maxDepth }

// SaveFeedback records a rating against the most recent assistant message
// of a session.
func (s *Service) SaveFeedback(ctx context.Context, sessionID string, rating int, comment string) error {
	if s.history == nil {
		return domain.NewDomainError("Service.SaveFeedback", domain.ErrHistoryStore, "history store not configured")
	}
	msgID, err := s.history.LastAssistantMessageID(ctx, sessionID)
	if err != nil {
		return err
	}
	fb := domain.Feedback{
		MessageID: msgID,
		SessionID: sessionID,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: time.Now(),
	}
	if _, err := s.history.SaveFeedback(ctx, fb); err != nil {
		return err
	}
	if s.events != nil {
		s.events.Emit(domain.EventFeedbackReceived, map[string]any{
			"session_id": sessionID,
			"rating":     fmt.Sprintf("%d", rating),
		})
	}
	return nil
}

func (s *Service) skillNames() []string {
	skills := s.skills.List()
	names := make([]string, len(skills))
	for i, sk := range skills {
		names[i] = sk.Name
	}
	return names
}
