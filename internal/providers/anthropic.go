package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/machellerogden/thinksuit-sub000/internal/backoff"
	"github.com/machellerogden/thinksuit-sub000/internal/ratelimit"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// messagesAPI is the subset of the Anthropic SDK client the adapter uses.
// Extracted so tests can stub the wire call.
type messagesAPI interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
	Limiter    *ratelimit.Limiter
	Logger     *slog.Logger
}

// AnthropicProvider adapts the Anthropic Messages API. Tool results are
// threaded chat-style: role:"tool" messages keyed by tool_call_id.
type AnthropicProvider struct {
	baseProvider
	client       messagesAPI
	defaultModel string
}

const anthropicDefaultMaxTokens = 4096

// NewAnthropic creates an Anthropic provider.
func NewAnthropic(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicProvider{
		baseProvider: newBaseProvider("anthropic", cfg.MaxRetries, cfg.RetryDelay, cfg.Limiter, cfg.Logger),
		client:       &client.Messages,
		defaultModel: model,
	}, nil
}

// Name returns "anthropic".
func (p *AnthropicProvider) Name() string { return "anthropic" }

// Paradigm returns the chat paradigm.
func (p *AnthropicProvider) Paradigm() Paradigm { return ParadigmChat }

var anthropicModels = map[string]Capabilities{
	"claude-sonnet-4-20250514":   {Tools: true, Vision: true, ContextSize: 200000},
	"claude-opus-4-20250514":     {Tools: true, Vision: true, ContextSize: 200000},
	"claude-3-5-sonnet-20241022": {Tools: true, Vision: true, ContextSize: 200000},
	"claude-3-5-haiku-20241022":  {Tools: true, Vision: true, ContextSize: 200000},
	"claude-3-opus-20240229":     {Tools: true, Vision: true, ContextSize: 200000},
	"claude-3-haiku-20240307":    {Tools: true, Vision: true, ContextSize: 200000},
}

// Capabilities reports what the named model supports. Unknown models get
// the family defaults.
func (p *AnthropicProvider) Capabilities(model string) Capabilities {
	if model == "" {
		model = p.defaultModel
	}
	if caps, ok := anthropicModels[model]; ok {
		return caps
	}
	return Capabilities{Tools: true, Vision: true, ContextSize: 200000}
}

// Complete issues one Messages API call.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (*models.Response, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	params, err := p.buildParams(model, req)
	if err != nil {
		perr := NewProviderError("anthropic", model, err)
		perr.Reason = ReasonInvalidRequest
		return nil, kindError(perr)
	}

	req.tap(models.EventProviderRawRequest, "anthropic", model, params)

	var msg *anthropic.Message
	err = p.retry(ctx, func(ctx context.Context) error {
		m, callErr := p.client.New(ctx, params)
		if callErr != nil {
			werr := p.wrapError(callErr, model)
			if !IsRetryable(werr) {
				return backoff.Permanent(werr)
			}
			return werr
		}
		msg = m
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if perr, ok := GetProviderError(err); ok {
			return nil, kindError(perr)
		}
		return nil, kindError(NewProviderError("anthropic", model, err))
	}

	req.tap(models.EventProviderRawResponse, "anthropic", model, msg)

	return p.translate(msg, model), nil
}

// buildParams converts the engine thread into Anthropic wire format.
// System messages collect into params.System; tool_use blocks join the
// preceding assistant turn; consecutive tool results group into one user
// message so each result block directly follows its tool_use.
func (p *AnthropicProvider) buildParams(model string, req Request) (anthropic.MessageNewParams, error) {
	var (
		msgs      []anthropic.MessageParam
		system    []anthropic.TextBlockParam
		assistant []anthropic.ContentBlockParamUnion
		results   []anthropic.ContentBlockParamUnion
	)

	flushAssistant := func() {
		if len(assistant) > 0 {
			msgs = append(msgs, anthropic.NewAssistantMessage(assistant...))
			assistant = nil
		}
	}
	flushResults := func() {
		if len(results) > 0 {
			msgs = append(msgs, anthropic.NewUserMessage(results...))
			results = nil
		}
	}

	if req.System != "" {
		system = append(system, anthropic.TextBlockParam{Type: "text", Text: req.System})
	}

	for _, m := range req.Thread {
		switch m.Role {
		case models.RoleSystem:
			flushAssistant()
			flushResults()
			system = append(system, anthropic.TextBlockParam{Type: "text", Text: m.Content})
		case models.RoleUser:
			flushAssistant()
			flushResults()
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case models.RoleAssistant:
			flushResults()
			flushAssistant()
			if m.Content != "" {
				assistant = append(assistant, anthropic.NewTextBlock(m.Content))
			}
		case models.RoleFunctionCall:
			flushResults()
			input := map[string]any{}
			if len(m.Arguments) > 0 {
				if err := json.Unmarshal(m.Arguments, &input); err != nil {
					return anthropic.MessageNewParams{}, fmt.Errorf("invalid tool call arguments for %s: %w", m.Name, err)
				}
			}
			assistant = append(assistant, anthropic.NewToolUseBlock(m.CallID, input, m.Name))
		case models.RoleTool, models.RoleFunctionCallOutput:
			flushAssistant()
			id := m.ToolCallID
			if id == "" {
				id = m.CallID
			}
			content := m.Content
			if content == "" {
				content = m.Output
			}
			results = append(results, anthropic.NewToolResultBlock(id, content, false))
		}
	}
	flushAssistant()
	flushResults()

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  msgs,
		MaxTokens: int64(maxTokens),
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, t := range req.Tools {
			raw := t.InputSchema
			if len(raw) == 0 {
				raw = json.RawMessage(`{"type":"object"}`)
			}
			var schema anthropic.ToolInputSchemaParam
			if err := json.Unmarshal(raw, &schema); err != nil {
				return anthropic.MessageNewParams{}, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
			}
			toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
			if toolParam.OfTool == nil {
				return anthropic.MessageNewParams{}, fmt.Errorf("invalid tool schema for %s: missing tool definition", t.Name)
			}
			if t.Description != "" {
				toolParam.OfTool.Description = anthropic.String(t.Description)
			}
			tools = append(tools, toolParam)
		}
		params.Tools = tools
	}

	return params, nil
}

// translate converts an Anthropic message into an engine response. Text
// blocks join into Output; tool_use blocks become tool calls plus
// function_call output items so the next cycle can rebuild the turn.
func (p *AnthropicProvider) translate(msg *anthropic.Message, model string) *models.Response {
	resp := &models.Response{
		Model: model,
		Usage: models.Usage{
			Prompt:     int(msg.Usage.InputTokens),
			Completion: int(msg.Usage.OutputTokens),
		},
	}

	var texts []string
	var callItems []models.Message
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				texts = append(texts, block.Text)
			}
		case "tool_use":
			args := json.RawMessage(block.Input)
			resp.ToolCalls = append(resp.ToolCalls, models.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
			callItems = append(callItems, models.Message{
				Role:      models.RoleFunctionCall,
				Name:      block.Name,
				CallID:    block.ID,
				Arguments: args,
			})
		}
	}

	resp.Output = strings.Join(texts, "\n")
	if resp.Output != "" {
		resp.OutputItems = append(resp.OutputItems, models.AssistantMessage(resp.Output))
	}
	resp.OutputItems = append(resp.OutputItems, callItems...)

	switch string(msg.StopReason) {
	case "tool_use":
		resp.FinishReason = models.FinishToolUse
	case "max_tokens":
		resp.FinishReason = models.FinishMaxTokens
	default:
		resp.FinishReason = models.FinishComplete
	}
	if len(resp.ToolCalls) > 0 && !resp.FinishReason.IsContinuation() {
		resp.FinishReason = models.FinishToolUse
	}

	return resp
}

type anthropicErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
	RequestID string `json:"request_id"`
}

func (p *AnthropicProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		providerErr := &ProviderError{
			Provider: "anthropic",
			Model:    model,
			Cause:    err,
			Reason:   ReasonUnknown,
		}
		providerErr = providerErr.WithStatus(apiErr.StatusCode)

		message := ""
		code := ""
		requestID := apiErr.RequestID

		raw := apiErr.RawJSON()
		if raw != "" {
			var payload anthropicErrorPayload
			if json.Unmarshal([]byte(raw), &payload) == nil {
				if payload.Error.Message != "" {
					message = payload.Error.Message
				}
				if payload.Error.Type != "" {
					code = payload.Error.Type
				}
				if payload.RequestID != "" {
					requestID = payload.RequestID
				}
			}
		}

		if message != "" {
			providerErr = providerErr.WithMessage(message)
		} else if providerErr.Message == "" {
			providerErr.Message = "anthropic request failed"
		}
		if code != "" {
			providerErr = providerErr.WithCode(code)
		}
		if requestID != "" {
			providerErr = providerErr.WithRequestID(requestID)
		}
		return providerErr
	}

	return NewProviderError("anthropic", model, err)
}
