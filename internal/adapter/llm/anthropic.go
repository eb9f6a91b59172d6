package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"agentgw/internal/domain"
	"agentgw/internal/infra/config"
)

const defaultAnthropicVersion = "2023-06-01"

// Compile-time interface assertion.
var _ domain.LLMProvider = (*AnthropicProvider)(nil)

// AnthropicProvider implements domain.LLMProvider for the Anthropic
// Messages API.
type AnthropicProvider struct {
	name    string
	model   string
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	version string
}

// NewAnthropicProvider creates a provider for the Anthropic Messages API.
func NewAnthropicProvider(cfg config.ProviderConfig, logger *slog.Logger) *AnthropicProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	name := cfg.Name
	if name == "" {
		name = "anthropic"
	}

	return &AnthropicProvider{
		name:    name,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  NewHTTPClient(cfg),
		logger:  logger,
		version: defaultAnthropicVersion,
	}
}

// Chat implements domain.LLMProvider by accumulating the stream.
func (p *AnthropicProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	return chatViaStream(ctx, p, req, p.logger)
}

// Name implements domain.LLMProvider.
func (p *AnthropicProvider) Name() string { return p.name }

// --- Anthropic API wire types ---

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- Anthropic streaming wire types ---

type anthropicStreamEvent struct {
	Type  string          `json:"type"`
	Index int             `json:"index"`
	Delta json.RawMessage `json:"delta,omitempty"`
	Usage json.RawMessage `json:"usage,omitempty"`

	// content_block_start fields
	ContentBlock *anthropicContent `json:"content_block,omitempty"`

	// message_start carries the initial usage snapshot
	Message *anthropicStreamMessage `json:"message,omitempty"`
}

type anthropicStreamMessage struct {
	Usage anthropicUsage `json:"usage"`
}

type anthropicDeltaText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicDeltaToolInput struct {
	Type        string `json:"type"`
	PartialJSON string `json:"partial_json"`
}

type anthropicMessageDelta struct {
	StopReason string `json:"stop_reason"`
}

// ChatStream implements domain.LLMProvider. The Messages API streams
// content blocks rather than message deltas: each tool_use block opens with
// content_block_start (carrying id and name) and its arguments arrive as
// input_json_delta fragments addressed by the API block index. The adapter
// assigns tool-call indices in block-open order and translates block-index
// addressing into index-keyed ToolCallDelta fragments.
func (p *AnthropicProvider) ChatStream(ctx context.Context, req domain.ChatRequest) (<-chan domain.StreamDelta, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	antReq := toAnthropicRequest(req)
	antReq.Stream = true

	body, err := json.Marshal(antReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": p.version,
	}

	httpResp, err := doStreamRequest(ctx, p.client, p.baseURL+"/v1/messages", body, headers)
	if err != nil {
		return nil, err
	}

	// Per-stream translation state: API block index → tool-call index,
	// assigned sequentially as tool_use blocks open. Input tokens arrive in
	// message_start, output tokens in message_delta; both are needed for
	// the final usage.
	blockToCall := make(map[int]int)
	nextCallIndex := 0
	var inputTokens int

	ch := parseSSEStream(ctx, httpResp.Body, func(data []byte) (*domain.StreamDelta, error) {
		var evt anthropicStreamEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, err
		}

		switch evt.Type {
		case "message_start":
			if evt.Message != nil {
				inputTokens = evt.Message.Usage.InputTokens
			}
			return nil, nil

		case "content_block_start":
			if evt.ContentBlock != nil && evt.ContentBlock.Type == "tool_use" {
				callIdx := nextCallIndex
				nextCallIndex++
				blockToCall[evt.Index] = callIdx
				return &domain.StreamDelta{
					ToolCalls: []domain.ToolCallDelta{{
						Index: callIdx,
						ID:    evt.ContentBlock.ID,
						Name:  evt.ContentBlock.Name,
					}},
				}, nil
			}
			return nil, nil

		case "content_block_delta":
			var td anthropicDeltaText
			if err := json.Unmarshal(evt.Delta, &td); err == nil && td.Type == "text_delta" {
				return &domain.StreamDelta{Content: td.Text}, nil
			}
			var ti anthropicDeltaToolInput
			if err := json.Unmarshal(evt.Delta, &ti); err == nil && ti.Type == "input_json_delta" {
				callIdx, ok := blockToCall[evt.Index]
				if !ok {
					return nil, nil
				}
				return &domain.StreamDelta{
					ToolCalls: []domain.ToolCallDelta{{
						Index:     callIdx,
						Arguments: ti.PartialJSON,
					}},
				}, nil
			}
			return nil, nil

		case "message_delta":
			delta := &domain.StreamDelta{}
			var md anthropicMessageDelta
			if err := json.Unmarshal(evt.Delta, &md); err == nil && md.StopReason != "" {
				delta.FinishReason = md.StopReason
			}
			if len(evt.Usage) > 0 {
				var u anthropicUsage
				if err := json.Unmarshal(evt.Usage, &u); err == nil {
					if u.InputTokens == 0 {
						u.InputTokens = inputTokens
					}
					delta.Usage = &domain.Usage{
						PromptTokens:     u.InputTokens,
						CompletionTokens: u.OutputTokens,
						TotalTokens:      u.InputTokens + u.OutputTokens,
					}
				}
			}
			return delta, nil

		case "message_stop":
			return &domain.StreamDelta{Done: true}, nil

		default:
			return nil, nil
		}
	})

	return ch, nil
}

func toAnthropicRequest(req domain.ChatRequest) anthropicRequest {
	antReq := anthropicRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}

	if antReq.MaxTokens <= 0 {
		antReq.MaxTokens = 4096
	}
	if req.Temperature != 0 {
		antReq.Temperature = &req.Temperature
	}

	// The Messages API has no system role: the system prompt is hoisted to
	// the top-level field, and tool results travel as user messages with a
	// tool_result block.
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			antReq.System = m.Content

		case domain.RoleTool:
			antReq.Messages = append(antReq.Messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContent{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})

		default:
			antMsg := anthropicMessage{Role: m.Role}

			if len(m.ToolCalls) > 0 {
				if m.Content != "" {
					antMsg.Content = append(antMsg.Content, anthropicContent{Type: "text", Text: m.Content})
				}
				for _, tc := range m.ToolCalls {
					antMsg.Content = append(antMsg.Content, anthropicContent{
						Type:  "tool_use",
						ID:    tc.ID,
						Name:  tc.Name,
						Input: normalizeToolInput(tc.Arguments),
					})
				}
			} else {
				antMsg.Content = append(antMsg.Content, anthropicContent{Type: "text", Text: m.Content})
			}

			antReq.Messages = append(antReq.Messages, antMsg)
		}
	}

	for _, t := range req.Tools {
		antReq.Tools = append(antReq.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.Parameters,
		})
	}

	return antReq
}

// normalizeToolInput re-serializes accumulated tool-call arguments as a JSON
// object. The Messages API requires tool_use input to be structured JSON;
// unparseable argument text degrades to an empty object.
func normalizeToolInput(args json.RawMessage) json.RawMessage {
	if len(args) == 0 {
		return json.RawMessage(`{}`)
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return json.RawMessage(`{}`)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return out
}
