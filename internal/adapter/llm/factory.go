package llm

import (
	"fmt"
	"log/slog"

	"agentgw/internal/domain"
	"agentgw/internal/infra/config"
)

// NewProvider constructs an LLM provider from its config. The breaker
// wrapper is applied when enabled so every provider type gets the same
// failure isolation.
func NewProvider(cfg config.ProviderConfig, cb config.CircuitBreakerConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	var p domain.LLMProvider
	switch cfg.Type {
	case "openai", "":
		p = NewOpenAIProvider(cfg, logger)
	case "anthropic":
		p = NewAnthropicProvider(cfg, logger)
	case "xai":
		p = NewXAIProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown provider type %q", cfg.Type)
	}

	if cb.Enabled {
		p = NewCircuitBreakerProvider(p, cb, logger)
	}
	return p, nil
}
