package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	. "github.com/roelfdiedericks/garage/internal/logging"
	. "github.com/roelfdiedericks/garage/internal/metrics"
	"github.com/roelfdiedericks/garage/internal/types"
)

// AnthropicProvider implements Provider for Anthropic's Messages API.
// Also works with Anthropic-compatible APIs via BaseURL.
type AnthropicProvider struct {
	name         string
	client       anthropic.Client
	model        string
	maxTokens    int
	metricPrefix string // e.g., "llm/anthropic/claude-sonnet-4-5"
}

// NewAnthropicProvider creates an Anthropic provider from ProviderConfig.
func NewAnthropicProvider(name string, cfg ProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrUnavailable{Provider: name, Reason: "anthropic api key not configured"}
	}
	if cfg.Model == "" {
		return nil, ErrUnavailable{Provider: name, Reason: "no model configured"}
	}

	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: time.Duration(timeout) * time.Second}),
		// Retries are owned by the caller's retry policy.
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "(default)"
	}
	L_debug("anthropic provider created", "name", name, "model", cfg.Model, "baseURL", baseURL, "maxTokens", maxTokens)

	return &AnthropicProvider{
		name:         name,
		client:       anthropic.NewClient(opts...),
		model:        cfg.Model,
		maxTokens:    maxTokens,
		metricPrefix: fmt.Sprintf("llm/anthropic/%s", cfg.Model),
	}, nil
}

// Name returns the provider instance name
func (p *AnthropicProvider) Name() string {
	return p.name
}

// Type returns the provider driver
func (p *AnthropicProvider) Type() string {
	return DriverAnthropic
}

// Model returns the configured model
func (p *AnthropicProvider) Model() string {
	return p.model
}

// Chat sends a single Messages API request.
// Anthropic has no JSON response mode, so JSONOutput is expressed in the
// system prompt by the caller.
func (p *AnthropicProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	startTime := time.Now()
	L_debug("llm: request started", "provider", p.name, "model", p.model, "messages", len(req.Messages), "tools", len(req.Tools))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages:  convertMessages(req.Messages),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
	}

	message, err := p.client.Messages.New(ctx, params)
	MetricDuration(p.metricPrefix, "request", time.Since(startTime))
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			L_warn("anthropic: request failed", "provider", p.name, "model", p.model, "statusCode", apiErr.StatusCode, "error", err)
			MetricFailWithReason(p.metricPrefix, "request_status", string(ClassifyError(err.Error())))
		} else {
			L_warn("anthropic: request failed", "provider", p.name, "model", p.model, "error", err)
			MetricFailWithReason(p.metricPrefix, "request_status", "transport")
		}
		return nil, fmt.Errorf("%s chat: %w", p.name, err)
	}

	MetricSuccess(p.metricPrefix, "request_status")
	MetricAdd(p.metricPrefix, "input_tokens", message.Usage.InputTokens)
	MetricAdd(p.metricPrefix, "output_tokens", message.Usage.OutputTokens)

	response := &Response{
		StopReason:   string(message.StopReason),
		InputTokens:  int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}

	var text strings.Builder
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			inputBytes, _ := json.Marshal(variant.Input)
			response.ToolCalls = append(response.ToolCalls, types.ToolCall{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: inputBytes,
			})
			L_debug("llm: tool use", "tool", variant.Name, "id", variant.ID)
		}
	}
	response.Text = text.String()

	L_elapsed(startTime, "llm: request completed",
		"provider", p.name,
		"model", p.model,
		"stopReason", response.StopReason,
		"toolCalls", len(response.ToolCalls),
		"inputTokens", response.InputTokens,
		"outputTokens", response.OutputTokens)
	return response, nil
}

// convertMessages converts internal messages to Anthropic format.
// Consecutive tool_use messages are grouped into one assistant turn and
// consecutive tool_result messages into one user turn, as the API requires.
func convertMessages(messages []types.Message) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	var toolUses, toolResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(toolUses) > 0 {
			result = append(result, anthropic.NewAssistantMessage(toolUses...))
			toolUses = nil
		}
		if len(toolResults) > 0 {
			result = append(result, anthropic.NewUserMessage(toolResults...))
			toolResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleToolUse:
			if len(toolResults) > 0 {
				flush()
			}
			input := msg.ToolInput
			if len(input) == 0 {
				input = json.RawMessage("{}")
			}
			toolUses = append(toolUses, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    sanitizeToolID(msg.ToolUseID),
					Name:  msg.ToolName,
					Input: input,
				},
			})

		case types.RoleToolResult:
			if len(toolUses) > 0 {
				result = append(result, anthropic.NewAssistantMessage(toolUses...))
				toolUses = nil
			}
			content := msg.Content
			if content == "" {
				content = "(no output)"
			}
			toolResults = append(toolResults, anthropic.NewToolResultBlock(sanitizeToolID(msg.ToolUseID), content, msg.IsError))

		case types.RoleAssistant:
			flush()
			if msg.Content != "" {
				result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			}

		default:
			flush()
			if msg.Content != "" {
				result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
			}
		}
	}
	flush()

	return result
}

// convertTools converts our tool definitions to Anthropic format
func convertTools(defs []types.ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(defs))

	for _, def := range defs {
		var properties any
		if props, ok := def.InputSchema["properties"]; ok {
			properties = props
		}
		var required []string
		if req, ok := def.InputSchema["required"].([]string); ok {
			required = req
		}

		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: properties,
					Required:   required,
				},
			},
		})
	}

	return result
}

// validToolIDPattern matches Anthropic's required format: ^[a-zA-Z0-9_-]+$
var validToolIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// sanitizeToolID replaces characters Anthropic rejects in tool IDs.
// IDs minted by other backends (e.g. "call:1") would otherwise fail.
func sanitizeToolID(id string) string {
	if id != "" && validToolIDPattern.MatchString(id) {
		return id
	}
	if id == "" {
		return "tool_0"
	}
	var result strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' || r == '-' {
			result.WriteRune(r)
		} else {
			result.WriteRune('_')
		}
	}
	return result.String()
}
