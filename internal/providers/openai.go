package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/machellerogden/thinksuit-sub000/internal/backoff"
	"github.com/machellerogden/thinksuit-sub000/internal/ratelimit"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// chatAPI is the subset of the OpenAI SDK client the adapter uses.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
	Limiter    *ratelimit.Limiter
	Logger     *slog.Logger
}

// OpenAIProvider adapts the OpenAI Chat Completions API. Tool results are
// threaded responses-style: function_call_output items keyed by call_id,
// mapped onto tool messages at the wire.
type OpenAIProvider struct {
	baseProvider
	client       chatAPI
	defaultModel string
}

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}
	var client *openai.Client
	if cfg.BaseURL != "" {
		clientConfig := openai.DefaultConfig(cfg.APIKey)
		clientConfig.BaseURL = cfg.BaseURL
		client = openai.NewClientWithConfig(clientConfig)
	} else {
		client = openai.NewClient(cfg.APIKey)
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIProvider{
		baseProvider: newBaseProvider("openai", cfg.MaxRetries, cfg.RetryDelay, cfg.Limiter, cfg.Logger),
		client:       client,
		defaultModel: model,
	}, nil
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string { return "openai" }

// Paradigm returns the responses paradigm.
func (p *OpenAIProvider) Paradigm() Paradigm { return ParadigmResponses }

var openaiModels = map[string]Capabilities{
	"gpt-4o":        {Tools: true, Vision: true, ContextSize: 128000},
	"gpt-4o-mini":   {Tools: true, Vision: true, ContextSize: 128000},
	"gpt-4-turbo":   {Tools: true, Vision: true, ContextSize: 128000},
	"gpt-4":         {Tools: true, Vision: false, ContextSize: 8192},
	"gpt-3.5-turbo": {Tools: true, Vision: false, ContextSize: 16385},
	"o1":            {Tools: true, Vision: true, ContextSize: 200000},
	"o1-mini":       {Tools: false, Vision: false, ContextSize: 128000},
}

// Capabilities reports what the named model supports.
func (p *OpenAIProvider) Capabilities(model string) Capabilities {
	if model == "" {
		model = p.defaultModel
	}
	if caps, ok := openaiModels[model]; ok {
		return caps
	}
	return Capabilities{Tools: true, Vision: false, ContextSize: 128000}
}

// Complete issues one Chat Completions call.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*models.Response, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: p.buildMessages(req),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = buildOpenAITools(req.Tools)
	}

	req.tap(models.EventProviderRawRequest, "openai", model, chatReq)

	var resp openai.ChatCompletionResponse
	err := p.retry(ctx, func(ctx context.Context) error {
		r, callErr := p.client.CreateChatCompletion(ctx, chatReq)
		if callErr != nil {
			werr := p.wrapError(callErr, model)
			if !IsRetryable(werr) {
				return backoff.Permanent(werr)
			}
			return werr
		}
		resp = r
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if perr, ok := GetProviderError(err); ok {
			return nil, kindError(perr)
		}
		return nil, kindError(NewProviderError("openai", model, err))
	}

	req.tap(models.EventProviderRawResponse, "openai", model, resp)

	if len(resp.Choices) == 0 {
		perr := NewProviderError("openai", model, fmt.Errorf("no choices in response"))
		return nil, kindError(perr)
	}
	return p.translate(resp, model), nil
}

// buildMessages converts the engine thread into chat messages. The
// engine threads tool traffic as function_call / function_call_output
// items; calls merge back into their assistant turn and outputs become
// tool messages keyed by call_id.
func (p *OpenAIProvider) buildMessages(req Request) []openai.ChatCompletionMessage {
	var msgs []openai.ChatCompletionMessage
	var pending *openai.ChatCompletionMessage

	flush := func() {
		if pending != nil {
			msgs = append(msgs, *pending)
			pending = nil
		}
	}

	if req.System != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Thread {
		switch m.Role {
		case models.RoleSystem:
			flush()
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: m.Content,
			})
		case models.RoleUser:
			flush()
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
			})
		case models.RoleAssistant:
			flush()
			pending = &openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
		case models.RoleFunctionCall:
			if pending == nil {
				pending = &openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant}
			}
			pending.ToolCalls = append(pending.ToolCalls, openai.ToolCall{
				ID:   m.CallID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      m.Name,
					Arguments: string(m.Arguments),
				},
			})
		case models.RoleFunctionCallOutput:
			flush()
			content := m.Output
			if content == "" {
				content = m.Content
			}
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: m.CallID,
			})
		case models.RoleTool:
			flush()
			id := m.ToolCallID
			if id == "" {
				id = m.CallID
			}
			content := m.Content
			if content == "" {
				content = m.Output
			}
			msgs = append(msgs, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: id,
			})
		}
	}
	flush()

	return msgs
}

func buildOpenAITools(tools []ToolDef) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  schema,
			},
		})
	}
	return result
}

// translate converts a chat completion into an engine response.
func (p *OpenAIProvider) translate(resp openai.ChatCompletionResponse, model string) *models.Response {
	choice := resp.Choices[0]

	out := &models.Response{
		Model:  model,
		Output: choice.Message.Content,
		Usage: models.Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
		},
	}

	if out.Output != "" {
		out.OutputItems = append(out.OutputItems, models.AssistantMessage(out.Output))
	}
	for _, tc := range choice.Message.ToolCalls {
		args := json.RawMessage(tc.Function.Arguments)
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
		out.OutputItems = append(out.OutputItems, models.Message{
			Role:      models.RoleFunctionCall,
			Name:      tc.Function.Name,
			CallID:    tc.ID,
			Arguments: args,
		})
	}

	switch string(choice.FinishReason) {
	case "tool_calls", "function_call":
		out.FinishReason = models.FinishToolCalls
	case "length":
		out.FinishReason = models.FinishMaxTokens
	default:
		out.FinishReason = models.FinishComplete
	}
	if len(out.ToolCalls) > 0 && !out.FinishReason.IsContinuation() {
		out.FinishReason = models.FinishToolCalls
	}

	return out
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		providerErr := &ProviderError{
			Provider: "openai",
			Model:    model,
			Cause:    err,
			Reason:   ReasonUnknown,
		}
		providerErr = providerErr.WithStatus(apiErr.HTTPStatusCode)
		if apiErr.Message != "" {
			providerErr = providerErr.WithMessage(apiErr.Message)
		}
		if apiErr.Code != nil {
			providerErr = providerErr.WithCode(fmt.Sprintf("%v", apiErr.Code))
		}
		return providerErr
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		providerErr := &ProviderError{
			Provider: "openai",
			Model:    model,
			Cause:    err,
			Reason:   ReasonUnknown,
		}
		providerErr = providerErr.WithStatus(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			providerErr = providerErr.WithMessage(reqErr.Err.Error())
		}
		return providerErr
	}

	return NewProviderError("openai", model, err)
}
