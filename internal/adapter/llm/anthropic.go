package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"solmate/internal/domain"
	"solmate/internal/infra/config"
	"solmate/internal/infra/tracer"
)

// Compile-time interface assertions.
var (
	_ domain.Generator          = (*AnthropicProvider)(nil)
	_ domain.StreamingGenerator = (*AnthropicProvider)(nil)
)

const defaultAnthropicVersion = "2023-06-01"

// anthropicDefaultMaxTokens is used when the caller sets no limit;
// max_tokens is mandatory in the Messages API.
const anthropicDefaultMaxTokens = 1000

// AnthropicProvider implements domain.Generator for the Anthropic
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

	return &AnthropicProvider{
		name:    cfg.Name,
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  NewHTTPClient(cfg),
		logger:  logger,
		version: defaultAnthropicVersion,
	}
}

// Generate implements domain.Generator.
func (p *AnthropicProvider) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.CompletionResponse, error) {
	ctx, span := tracer.StartSpan(ctx, "llm.generate",
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	if req.Model == "" {
		req.Model = p.model
	}

	body, err := json.Marshal(toAnthropicRequest(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := doJSONRequest(ctx, p.client, p.baseURL+"/v1/messages", body, p.headers(req))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var antResp anthropicResponse
	if err := json.Unmarshal(respBody, &antResp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("%w: unmarshal response: %v", domain.ErrUpstream, err)
	}

	result := fromAnthropicResponse(p.name, req.Model, antResp, respBody)
	tracer.SetOK(span)
	logGenerateCompleted(p.logger, p.name, result)

	return result, nil
}

// GenerateStream implements domain.StreamingGenerator.
func (p *AnthropicProvider) GenerateStream(ctx context.Context, req domain.GenerateRequest) (<-chan domain.StreamDelta, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	antReq := toAnthropicRequest(req)
	antReq.Stream = true

	body, err := json.Marshal(antReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpResp, err := doStreamRequest(ctx, p.client, p.baseURL+"/v1/messages", body, p.headers(req))
	if err != nil {
		return nil, err
	}

	// Anthropic uses "event: <type>\ndata: <json>" pairs, but the data JSON
	// repeats the event type in a "type" field, so dispatching on data lines
	// alone is sufficient.
	ch := parseSSEStream(ctx, httpResp.Body, func(data []byte) (*domain.StreamDelta, error) {
		var evt anthropicStreamEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, err
		}

		switch evt.Type {
		case "content_block_delta":
			var td anthropicDeltaText
			if err := json.Unmarshal(evt.Delta, &td); err == nil && td.Type == "text_delta" {
				return &domain.StreamDelta{Content: td.Text}, nil
			}
			return nil, nil

		case "message_stop":
			return &domain.StreamDelta{Done: true}, nil

		default:
			return nil, nil
		}
	})

	return ch, nil
}

// Name implements domain.Generator.
func (p *AnthropicProvider) Name() string { return p.name }

func (p *AnthropicProvider) headers(req domain.GenerateRequest) map[string]string {
	key := p.apiKey
	if req.APIKey != "" {
		key = req.APIKey
	}
	return map[string]string{
		"x-api-key":         key,
		"anthropic-version": p.version,
	}
}

// --- Anthropic API wire types ---

type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// --- Anthropic streaming wire types ---

type anthropicStreamEvent struct {
	Type  string          `json:"type"`
	Delta json.RawMessage `json:"delta,omitempty"`
}

type anthropicDeltaText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func toAnthropicRequest(req domain.GenerateRequest) anthropicRequest {
	antReq := anthropicRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}

	if antReq.MaxTokens <= 0 {
		antReq.MaxTokens = anthropicDefaultMaxTokens
	}
	if req.Temperature > 0 {
		antReq.Temperature = &req.Temperature
	}
	if req.TopP > 0 {
		antReq.TopP = &req.TopP
	}

	// System messages are a top-level field in the Messages API; multiple
	// system messages are joined in order.
	var system []string
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		antReq.Messages = append(antReq.Messages, anthropicMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	antReq.System = strings.Join(system, "\n\n")

	return antReq
}

func fromAnthropicResponse(provider, reqModel string, resp anthropicResponse, raw []byte) *domain.CompletionResponse {
	result := &domain.CompletionResponse{
		Provider:  provider,
		Model:     resp.Model,
		Raw:       raw,
		CreatedAt: time.Now().UTC(),
	}
	if result.Model == "" {
		result.Model = reqModel
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	result.Content = strings.Join(parts, "")

	return result
}
