package llm

import (
	"context"
	"log/slog"
	"strings"

	"agentgw/internal/domain"
	"agentgw/internal/infra/config"
)

// Compile-time interface assertion.
var _ domain.LLMProvider = (*XAIProvider)(nil)

// XAIProvider wraps OpenAIProvider to work with the xAI API. The wire
// format is OpenAI-compatible; only the base URL and default model differ.
type XAIProvider struct {
	inner *OpenAIProvider
}

// NewXAIProvider creates an xAI provider that delegates to OpenAIProvider.
func NewXAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *XAIProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.x.ai/v1"
	}

	name := cfg.Name
	if name == "" {
		name = "xai"
	}

	model := cfg.Model
	if model == "" {
		model = "grok-beta"
	}

	return &XAIProvider{
		inner: &OpenAIProvider{
			name:    name,
			model:   model,
			apiKey:  cfg.APIKey,
			baseURL: baseURL,
			client:  NewHTTPClient(cfg),
			logger:  logger,
		},
	}
}

// Chat implements domain.LLMProvider.
func (p *XAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	return p.inner.Chat(ctx, req)
}

// ChatStream implements domain.LLMProvider.
func (p *XAIProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	return p.inner.ChatStream(ctx, req)
}

// Name implements domain.LLMProvider.
func (p *XAIProvider) Name() string { return p.inner.Name() }
