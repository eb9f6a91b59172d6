package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"agentgw/internal/domain"
)

// Registry holds named tools. Registration is explicit: every tool is
// wired at construction time, never discovered.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger
}

// Compile-time interface assertion.
var _ domain.ToolExecutor = (*Registry)(nil)

// NewRegistry creates an empty tool registry. Registered tools are wrapped
// with JSON Schema argument validation; if a tool's schema fails to
// compile, the tool is registered unwrapped and a warning is logged.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
}

// Register adds a tool. Returns error if name already registered.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}

	wrapped, err := WithSchemaValidation(t)
	if err != nil {
		r.logger.Warn("schema validation disabled for tool",
			"tool", name, "error", err)
	} else {
		t = wrapped
	}

	r.tools[name] = t
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrToolNotFound, name)
	}
	return t, nil
}

// List returns the names of all registered tools.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Schemas implements domain.ToolExecutor. Unknown names are skipped so a
// skill referencing a missing tool still gets its remaining tools.
func (r *Registry) Schemas(names []string) []domain.ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]domain.ToolSchema, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			r.logger.Warn("skill references unknown tool", "tool", name)
			continue
		}
		schemas = append(schemas, t.Schema())
	}
	return schemas
}

// Execute implements domain.ToolExecutor. Failures never surface as Go
// errors: unknown tools, execution errors, and panics become error-flagged
// results so the model can observe them and recover.
func (r *Registry) Execute(ctx context.Context, call domain.ToolCall) *domain.ToolResult {
	t, err := r.Get(call.Name)
	if err != nil {
		return &domain.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Error: unknown tool %q", call.Name),
			IsError:    true,
		}
	}

	result, err := r.execute(ctx, t, call.Arguments)
	if err != nil {
		return &domain.ToolResult{
			ToolCallID: call.ID,
			Content:    fmt.Sprintf("Error executing tool: %v", err),
			IsError:    true,
		}
	}

	result.ToolCallID = call.ID
	return result
}

// execute runs the tool with a recover barrier. A panicking tool must not
// take down the agent goroutine it runs on.
func (r *Registry) execute(ctx context.Context, t domain.Tool, params json.RawMessage) (result *domain.ToolResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool panicked",
				"tool", t.Name(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			result = nil
			err = fmt.Errorf("tool %q panicked: %v", t.Name(), rec)
		}
	}()
	return t.Execute(ctx, params)
}
