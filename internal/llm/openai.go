package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	. "github.com/roelfdiedericks/garage/internal/logging"
	. "github.com/roelfdiedericks/garage/internal/metrics"
	"github.com/roelfdiedericks/garage/internal/types"
)

// OpenAIProvider implements Provider for the OpenAI chat completions API.
// Works with OpenAI, Azure OpenAI deployments and Ollama's OpenAI-compatible
// endpoint.
type OpenAIProvider struct {
	name         string // Provider instance name
	driver       string // openai, azure or ollama
	client       *openai.Client
	model        string
	maxTokens    int
	baseURL      string
	metricPrefix string // e.g., "llm/azure/gpt-4o"
}

// NewOpenAIProvider creates an OpenAI-compatible provider from ProviderConfig.
// The API key is optional for ollama.
func NewOpenAIProvider(name string, cfg ProviderConfig) (*OpenAIProvider, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverOpenAI
	}

	apiKey := cfg.APIKey
	model := cfg.Model

	var config openai.ClientConfig
	switch driver {
	case DriverAzure:
		if cfg.Endpoint == "" {
			return nil, ErrUnavailable{Provider: name, Reason: "azure endpoint not configured"}
		}
		if apiKey == "" {
			return nil, ErrUnavailable{Provider: name, Reason: "azure api key not configured"}
		}
		config = openai.DefaultAzureConfig(apiKey, cfg.Endpoint)
		config.APIVersion = cfg.APIVersion
		if config.APIVersion == "" {
			config.APIVersion = DefaultAzureAPIVersion
		}
		deployment := cfg.Deployment
		if deployment == "" {
			deployment = model
		}
		if model == "" {
			model = deployment
		}
		config.AzureModelMapperFunc = func(string) string { return deployment }

	case DriverOllama:
		if apiKey == "" {
			apiKey = "ollama" // ignored by the server but required by the client
		}
		config = openai.DefaultConfig(apiKey)
		config.BaseURL = normalizeV1(cfg.BaseURL, DefaultOllamaURL)

	case DriverOpenAI:
		if apiKey == "" {
			return nil, ErrUnavailable{Provider: name, Reason: "api key not configured"}
		}
		config = openai.DefaultConfig(apiKey)
		if cfg.BaseURL != "" {
			config.BaseURL = normalizeV1(cfg.BaseURL, "")
		}

	default:
		return nil, fmt.Errorf("openai provider does not handle driver %q", driver)
	}

	if model == "" {
		return nil, ErrUnavailable{Provider: name, Reason: "no model configured"}
	}

	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = DefaultTimeoutSeconds
	}
	config.HTTPClient = &http.Client{Timeout: time.Duration(timeout) * time.Second}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = DefaultMaxTokens
	}

	displayURL := config.BaseURL
	if displayURL == "" {
		displayURL = "(default)"
	}
	L_debug("openai provider created", "name", name, "driver", driver, "model", model, "baseURL", displayURL, "maxTokens", maxTokens)

	return &OpenAIProvider{
		name:         name,
		driver:       driver,
		client:       openai.NewClientWithConfig(config),
		model:        model,
		maxTokens:    maxTokens,
		baseURL:      config.BaseURL,
		metricPrefix: fmt.Sprintf("llm/%s/%s", driver, model),
	}, nil
}

// normalizeV1 makes sure an OpenAI-compatible base URL ends with /v1.
func normalizeV1(baseURL, fallback string) string {
	if baseURL == "" {
		baseURL = fallback
	}
	if baseURL == "" {
		return ""
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasSuffix(baseURL, "/v1") {
		baseURL += "/v1"
	}
	return baseURL
}

// Name returns the provider instance name
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Type returns the provider driver
func (p *OpenAIProvider) Type() string {
	return p.driver
}

// Model returns the configured model
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Chat sends a non-streaming chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req *Request) (*Response, error) {
	startTime := time.Now()
	L_debug("llm: request started", "provider", p.name, "model", p.model, "messages", len(req.Messages), "tools", len(req.Tools))

	messages := convertToOpenAIMessages(req.Messages)
	if req.System != "" {
		messages = append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
		}, messages...)
	}

	creq := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: messages,
		Tools:    convertToOpenAITools(req.Tools),
	}
	// Ollama still expects max_tokens; OpenAI and Azure reasoning models reject it.
	if p.driver == DriverOllama {
		creq.MaxTokens = p.maxTokens
	} else {
		creq.MaxCompletionTokens = p.maxTokens
	}
	// JSON mode and tools don't mix on every backend; the final answer is
	// still validated by the caller.
	if req.JSONOutput && len(creq.Tools) == 0 {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		MetricDuration(p.metricPrefix, "request", time.Since(startTime))
		var apiErr *openai.APIError
		var reqErr *openai.RequestError
		switch {
		case errors.As(err, &apiErr):
			L_warn("openai: request failed",
				"provider", p.name,
				"model", p.model,
				"statusCode", apiErr.HTTPStatusCode,
				"code", apiErr.Code,
				"type", apiErr.Type,
				"message", apiErr.Message)
			MetricFailWithReason(p.metricPrefix, "request_status", string(ClassifyError(err.Error())))
		case errors.As(err, &reqErr):
			L_warn("openai: request failed",
				"provider", p.name,
				"model", p.model,
				"statusCode", reqErr.HTTPStatusCode,
				"error", reqErr.Error())
			MetricFailWithReason(p.metricPrefix, "request_status", string(ClassifyError(err.Error())))
		default:
			L_warn("openai: request failed", "provider", p.name, "model", p.model, "error", err)
			MetricFailWithReason(p.metricPrefix, "request_status", "transport")
		}
		return nil, fmt.Errorf("%s chat: %w", p.name, err)
	}

	MetricDuration(p.metricPrefix, "request", time.Since(startTime))
	MetricSuccess(p.metricPrefix, "request_status")
	MetricAdd(p.metricPrefix, "input_tokens", int64(resp.Usage.PromptTokens))
	MetricAdd(p.metricPrefix, "output_tokens", int64(resp.Usage.CompletionTokens))

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s chat: response has no choices", p.name)
	}
	choice := resp.Choices[0]

	out := &Response{
		Text:         choice.Message.Content,
		StopReason:   string(choice.FinishReason),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	for _, tc := range choice.Message.ToolCalls {
		args := tc.Function.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, types.ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(args),
		})
	}

	L_elapsed(startTime, "llm: request completed",
		"provider", p.name,
		"model", p.model,
		"finish", out.StopReason,
		"toolCalls", len(out.ToolCalls),
		"inputTokens", out.InputTokens,
		"outputTokens", out.OutputTokens)
	return out, nil
}

// convertToOpenAIMessages converts internal messages to OpenAI format.
// Consecutive tool_use messages become one assistant message carrying all
// the tool calls; each tool_result becomes a "tool" role message.
func convertToOpenAIMessages(messages []types.Message) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage
	var pendingToolCalls []openai.ToolCall

	flush := func() {
		if len(pendingToolCalls) == 0 {
			return
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			ToolCalls: pendingToolCalls,
		})
		pendingToolCalls = nil
	}

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleToolUse:
			pendingToolCalls = append(pendingToolCalls, openai.ToolCall{
				ID:   msg.ToolUseID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      msg.ToolName,
					Arguments: string(msg.ToolInput),
				},
			})

		case types.RoleToolResult:
			flush()
			// Some backends reject empty tool content
			content := msg.Content
			if content == "" {
				content = "(no output)"
			}
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    content,
				ToolCallID: msg.ToolUseID,
			})

		case types.RoleAssistant:
			flush()
			if msg.Content != "" {
				result = append(result, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: msg.Content,
				})
			}

		default:
			flush()
			if msg.Content != "" {
				result = append(result, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleUser,
					Content: msg.Content,
				})
			}
		}
	}
	flush()

	return result
}

// convertToOpenAITools converts tool definitions to OpenAI format
func convertToOpenAITools(toolDefs []types.ToolDefinition) []openai.Tool {
	if len(toolDefs) == 0 {
		return nil
	}

	result := make([]openai.Tool, len(toolDefs))
	for i, td := range toolDefs {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.InputSchema,
			},
		}
	}
	return result
}
