// Package llm provides a unified chat interface over the LLM backends garage
// talks to: OpenAI, Azure OpenAI, Ollama (OpenAI-compatible) and Anthropic.
package llm

import (
	"context"

	"github.com/roelfdiedericks/garage/internal/types"
)

// Provider is the unified interface for all LLM backends.
// Implementations: OpenAIProvider, AnthropicProvider
type Provider interface {
	Name() string  // Provider instance name (e.g., "azure", "ollama-local")
	Type() string  // Driver (e.g., "openai", "anthropic")
	Model() string // Model or deployment name

	// Chat sends one request and returns the model's reply, which is either
	// final text or one or more tool calls.
	Chat(ctx context.Context, req *Request) (*Response, error)
}

// Request is a single chat completion call.
type Request struct {
	System   string
	Messages []types.Message
	Tools    []types.ToolDefinition

	// JSONOutput asks the backend for a JSON object reply where supported.
	JSONOutput bool
}

// Response represents the LLM response
type Response struct {
	Text       string           // final text, empty when the model only called tools
	ToolCalls  []types.ToolCall // tool invocations, in the order the model produced them
	StopReason string           // "stop", "end_turn", "tool_calls", "tool_use", ...

	InputTokens  int
	OutputTokens int
}

// HasToolUse returns true if the response contains a tool use request
func (r *Response) HasToolUse() bool {
	return len(r.ToolCalls) > 0
}

// ErrUnavailable is returned when a provider cannot be constructed or used
type ErrUnavailable struct {
	Provider string
	Reason   string
}

func (e ErrUnavailable) Error() string {
	if e.Reason != "" {
		return e.Provider + " is unavailable: " + e.Reason
	}
	return e.Provider + " is unavailable"
}
