package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/machellerogden/thinksuit-sub000/internal/backoff"
	"github.com/machellerogden/thinksuit-sub000/internal/ratelimit"
	"github.com/machellerogden/thinksuit-sub000/pkg/models"
)

// generateAPI is the subset of the genai SDK client the adapter uses.
type generateAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GoogleConfig configures the Gemini adapter.
type GoogleConfig struct {
	APIKey     string
	Model      string
	MaxRetries int
	RetryDelay time.Duration
	Limiter    *ratelimit.Limiter
	Logger     *slog.Logger
}

// GoogleProvider adapts the Gemini API. Tool results are threaded
// chat-style. Gemini does not assign tool call IDs, so the adapter
// generates them and recovers the function name from the thread when
// sending results back.
type GoogleProvider struct {
	baseProvider
	client       generateAPI
	defaultModel string
}

// NewGoogle creates a Gemini provider.
func NewGoogle(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("google: api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}
	return &GoogleProvider{
		baseProvider: newBaseProvider("google", cfg.MaxRetries, cfg.RetryDelay, cfg.Limiter, cfg.Logger),
		client:       client.Models,
		defaultModel: model,
	}, nil
}

// Name returns "google".
func (p *GoogleProvider) Name() string { return "google" }

// Paradigm returns the chat paradigm.
func (p *GoogleProvider) Paradigm() Paradigm { return ParadigmChat }

var googleModels = map[string]Capabilities{
	"gemini-2.0-flash":      {Tools: true, Vision: true, ContextSize: 1048576},
	"gemini-2.0-flash-lite": {Tools: true, Vision: true, ContextSize: 1048576},
	"gemini-1.5-pro":        {Tools: true, Vision: true, ContextSize: 2097152},
	"gemini-1.5-flash":      {Tools: true, Vision: true, ContextSize: 1048576},
}

// Capabilities reports what the named model supports.
func (p *GoogleProvider) Capabilities(model string) Capabilities {
	if model == "" {
		model = p.defaultModel
	}
	if caps, ok := googleModels[model]; ok {
		return caps
	}
	return Capabilities{Tools: true, Vision: true, ContextSize: 1048576}
}

// Complete issues one generateContent call.
func (p *GoogleProvider) Complete(ctx context.Context, req Request) (*models.Response, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	contents, system := p.buildContents(req)
	config := p.buildConfig(req, system)

	req.tap(models.EventProviderRawRequest, "google", model, map[string]any{
		"contents": contents,
		"config":   config,
	})

	var resp *genai.GenerateContentResponse
	err := p.retry(ctx, func(ctx context.Context) error {
		r, callErr := p.client.GenerateContent(ctx, model, contents, config)
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
		return nil, kindError(NewProviderError("google", model, err))
	}

	req.tap(models.EventProviderRawResponse, "google", model, resp)

	if len(resp.Candidates) == 0 {
		perr := NewProviderError("google", model, fmt.Errorf("no candidates in response"))
		return nil, kindError(perr)
	}
	return p.translate(resp, model), nil
}

// buildContents converts the engine thread into Gemini contents and
// collects system text for the SystemInstruction slot. Function calls
// join the preceding model turn; consecutive function responses group
// into one user turn.
func (p *GoogleProvider) buildContents(req Request) ([]*genai.Content, string) {
	var (
		contents []*genai.Content
		system   []string
		pending  *genai.Content
		results  *genai.Content
	)

	flushPending := func() {
		if pending != nil && len(pending.Parts) > 0 {
			contents = append(contents, pending)
		}
		pending = nil
	}
	flushResults := func() {
		if results != nil && len(results.Parts) > 0 {
			contents = append(contents, results)
		}
		results = nil
	}

	if req.System != "" {
		system = append(system, req.System)
	}

	for _, m := range req.Thread {
		switch m.Role {
		case models.RoleSystem:
			flushPending()
			flushResults()
			system = append(system, m.Content)
		case models.RoleUser:
			flushPending()
			flushResults()
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content}},
			})
		case models.RoleAssistant:
			flushResults()
			flushPending()
			pending = &genai.Content{Role: genai.RoleModel}
			if m.Content != "" {
				pending.Parts = append(pending.Parts, &genai.Part{Text: m.Content})
			}
		case models.RoleFunctionCall:
			flushResults()
			if pending == nil {
				pending = &genai.Content{Role: genai.RoleModel}
			}
			var args map[string]any
			if err := json.Unmarshal(m.Arguments, &args); err != nil {
				args = make(map[string]any)
			}
			pending.Parts = append(pending.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					Name: m.Name,
					Args: args,
				},
			})
		case models.RoleTool, models.RoleFunctionCallOutput:
			flushPending()
			if results == nil {
				results = &genai.Content{Role: genai.RoleUser}
			}
			content := m.Content
			if content == "" {
				content = m.Output
			}
			var response map[string]any
			if err := json.Unmarshal([]byte(content), &response); err != nil {
				response = map[string]any{"result": content}
			}
			results.Parts = append(results.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					Name:     p.resolveToolName(req.Thread, m),
					Response: response,
				},
			})
		}
	}
	flushPending()
	flushResults()

	return contents, strings.Join(system, "\n\n")
}

func (p *GoogleProvider) buildConfig(req Request, system string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if len(req.Tools) > 0 {
		config.Tools = buildGoogleTools(req.Tools)
	}
	return config
}

func buildGoogleTools(tools []ToolDef) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		var schemaMap map[string]any
		if len(t.InputSchema) > 0 {
			if err := json.Unmarshal(t.InputSchema, &schemaMap); err != nil {
				continue
			}
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(schemaMap),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a JSON Schema map to Gemini's Schema type.
func toGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}
	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = toGeminiSchema(items)
	}

	return schema
}

// translate converts a Gemini response into an engine response.
func (p *GoogleProvider) translate(resp *genai.GenerateContentResponse, model string) *models.Response {
	out := &models.Response{Model: model}

	if resp.UsageMetadata != nil {
		out.Usage = models.Usage{
			Prompt:     int(resp.UsageMetadata.PromptTokenCount),
			Completion: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	cand := resp.Candidates[0]

	var texts []string
	var callItems []models.Message
	if cand.Content != nil {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				texts = append(texts, part.Text)
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					args = []byte(`{}`)
				}
				id := generateToolCallID(part.FunctionCall.Name)
				out.ToolCalls = append(out.ToolCalls, models.ToolCall{
					ID:        id,
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
				callItems = append(callItems, models.Message{
					Role:      models.RoleFunctionCall,
					Name:      part.FunctionCall.Name,
					CallID:    id,
					Arguments: args,
				})
			}
		}
	}

	out.Output = strings.Join(texts, "\n")
	if out.Output != "" {
		out.OutputItems = append(out.OutputItems, models.AssistantMessage(out.Output))
	}
	out.OutputItems = append(out.OutputItems, callItems...)

	switch cand.FinishReason {
	case genai.FinishReasonMaxTokens:
		out.FinishReason = models.FinishMaxTokens
	default:
		out.FinishReason = models.FinishComplete
	}
	// Gemini reports STOP even when the turn requested function calls.
	if len(out.ToolCalls) > 0 && !out.FinishReason.IsContinuation() {
		out.FinishReason = models.FinishToolUse
	}

	return out
}

func (p *GoogleProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	if IsProviderError(err) {
		return err
	}

	providerErr := NewProviderError("google", model, err)

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "401") || strings.Contains(errMsg, "unauthenticated") {
		providerErr = providerErr.WithStatus(http.StatusUnauthorized)
	} else if strings.Contains(errMsg, "403") || strings.Contains(errMsg, "permission denied") {
		providerErr = providerErr.WithStatus(http.StatusForbidden)
	} else if strings.Contains(errMsg, "404") || strings.Contains(errMsg, "not found") {
		providerErr = providerErr.WithStatus(http.StatusNotFound)
	} else if strings.Contains(errMsg, "429") || strings.Contains(errMsg, "resource exhausted") {
		providerErr = providerErr.WithStatus(http.StatusTooManyRequests)
	} else if strings.Contains(errMsg, "500") {
		providerErr = providerErr.WithStatus(http.StatusInternalServerError)
	} else if strings.Contains(errMsg, "503") {
		providerErr = providerErr.WithStatus(http.StatusServiceUnavailable)
	}

	return providerErr
}

// generateToolCallID generates a unique ID for a tool call. Gemini does
// not provide tool call IDs, so the adapter mints them.
func generateToolCallID(name string) string {
	return fmt.Sprintf("call_%s_%d", name, time.Now().UnixNano())
}

// resolveToolName recovers the function name a result belongs to: the
// message's own Name when set, else the thread's matching call, else the
// minted ID format "call_<name>_<timestamp>".
func (p *GoogleProvider) resolveToolName(thread models.Thread, m models.Message) string {
	if m.Name != "" {
		return m.Name
	}
	id := m.ToolCallID
	if id == "" {
		id = m.CallID
	}
	for _, prev := range thread {
		if prev.Role == models.RoleFunctionCall && prev.CallID == id {
			return prev.Name
		}
	}
	trimmed := strings.TrimPrefix(id, "call_")
	if i := strings.LastIndex(trimmed, "_"); i > 0 {
		return trimmed[:i]
	}
	return ""
}
