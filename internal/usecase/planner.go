package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"agentgw/internal/domain"
)

const plannerPrompt = `You are a request router. Given a user message and a list of available skills, pick the single best skill to handle it.

Available skills:
%s

Respond with ONLY a JSON object, no prose, in this shape:
{"skill": "<skill name>", "reasoning": "<one sentence>", "refined_message": "<the user message, sharpened for the chosen skill>"}

If no skill fits, set "skill" to null.`

// RouteDecision is the planner's answer for a message.
type RouteDecision struct {
	Skill          string `json:"skill"`
	Reasoning      string `json:"reasoning"`
	RefinedMessage string `json:"refined_message"`
}

// Planner routes incoming messages to the most suitable skill using a
// single low-temperature model call.
type Planner struct {
	llm    domain.LLMProvider
	skills domain.SkillProvider
	model  string
	logger *slog.Logger
}

// NewPlanner creates a planner that routes with the given model.
func NewPlanner(llm domain.LLMProvider, skills domain.SkillProvider, model string, logger *slog.Logger) *Planner {
	return &Planner{llm: llm, skills: skills, model: model, logger: logger}
}

// Route asks the model to pick a skill for the message. A response the
// model fails to shape as JSON routes nowhere; the diagnostic lands in
// Reasoning rather than an error, so callers can fall back to a default
// skill.
func (p *Planner) Route(ctx context.Context, message string) (*RouteDecision, error) {
	resp, err := p.llm.Chat(ctx, domain.ChatRequest{
		Model: p.model,
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: fmt.Sprintf(plannerPrompt, p.skillCatalog())},
			{Role: domain.RoleUser, Content: message},
		},
		Temperature: 0.1,
	})
	if err != nil {
		return nil, domain.WrapOp("Planner.Route", err)
	}

	raw := extractJSON(resp.Message.Content)
	var decision RouteDecision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		p.logger.Warn("planner returned non-JSON response", "response", resp.Message.Content)
		return &RouteDecision{
			Reasoning: fmt.Sprintf("router response was not valid JSON: %s", resp.Message.Content),
		}, nil
	}
	return &decision, nil
}

func (p *Planner) skillCatalog() string {
	var sb strings.Builder
	for _, sk := range p.skills.List() {
		fmt.Fprintf(&sb, "- %s: %s\n", sk.Name, sk.Description)
	}
	return sb.String()
}

// extractJSON strips markdown code fences models often wrap JSON in.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if after, ok := strings.CutPrefix(s, "```json"); ok {
		s = after
	} else if after, ok := strings.CutPrefix(s, "```"); ok {
		s = after
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
