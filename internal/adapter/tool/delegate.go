package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"agentgw/internal/domain"
)

// AgentRunner creates a fresh agent for a skill at the given orchestration
// depth and runs the task to completion. The delegation tool depends on
// this function type rather than the agent use case directly to keep the
// dependency direction clean.
type AgentRunner func(ctx context.Context, skillName, task string, depth int) (string, error)

// DelegateTool lets an agent hand a sub-task to another skill. Each
// delegation runs in a brand-new session one orchestration level deeper;
// the depth cap is enforced here, before any agent is constructed.
type DelegateTool struct {
	runner   AgentRunner
	maxDepth int
	logger   *slog.Logger
}

// NewDelegateTool creates the delegation tool. maxDepth <= 0 uses the
// default of 3.
func NewDelegateTool(runner AgentRunner, maxDepth int, logger *slog.Logger) *DelegateTool {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &DelegateTool{runner: runner, maxDepth: maxDepth, logger: logger}
}

func (t *DelegateTool) Name() string { return "delegate_to_agent" }

func (t *DelegateTool) Description() string {
	return "Delegate a task to another agent skill. The sub-agent runs in a fresh session and returns its final answer."
}

func (t *DelegateTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"skill_name": {"type": "string", "description": "Name of the skill to delegate to"},
				"task": {"type": "string", "description": "Task for the sub-agent"},
				"context": {"type": "string", "description": "Optional background to prepend to the task"}
			},
			"required": ["skill_name", "task"]
		}`),
	}
}

func (t *DelegateTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	var args struct {
		SkillName string `json:"skill_name"`
		Task      string `json:"task"`
		Context   string `json:"context"`
	}
	if err := json.Unmarshal(params, &args); err != nil {
		return &domain.ToolResult{Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true}, nil
	}

	depth := domain.DepthFromContext(ctx)
	if depth >= t.maxDepth {
		// Hard cap: refuse as data so the caller can report it, without
		// ever constructing the sub-agent.
		return &domain.ToolResult{
			Content: fmt.Sprintf("Maximum orchestration depth (%d) reached. Cannot delegate further.", t.maxDepth),
			IsError: true,
		}, nil
	}

	task := args.Task
	if args.Context != "" {
		task = args.Context + "\n\n" + args.Task
	}

	t.logger.Info("delegating to sub-agent",
		"skill", args.SkillName,
		"depth", depth+1,
	)

	answer, err := t.runner(ctx, args.SkillName, task, depth+1)
	if err != nil {
		return &domain.ToolResult{
			Content: fmt.Sprintf("Error delegating to %q: %v", args.SkillName, err),
			IsError: true,
		}, nil
	}

	payload, err := json.Marshal(map[string]string{
		"skill":  args.SkillName,
		"result": answer,
	})
	if err != nil {
		return &domain.ToolResult{Content: answer}, nil
	}
	return &domain.ToolResult{Content: string(payload)}, nil
}
