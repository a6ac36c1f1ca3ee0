// Package agent runs a single LLM agent to a structured, validated result:
// system prompt, tool-calling loop, then a JSON answer decoded into the
// agent's output type.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roelfdiedericks/garage/internal/llm"
	"github.com/roelfdiedericks/garage/internal/logging"
	. "github.com/roelfdiedericks/garage/internal/metrics"
	"github.com/roelfdiedericks/garage/internal/retry"
	"github.com/roelfdiedericks/garage/internal/schema"
	"github.com/roelfdiedericks/garage/internal/tools"
	"github.com/roelfdiedericks/garage/internal/types"
)

// DefaultMaxToolTurns bounds how many tool rounds a run may take.
const DefaultMaxToolTurns = 8

// ErrToolTurnsExceeded is returned when the model keeps calling tools past MaxToolTurns.
var ErrToolTurnsExceeded = errors.New("tool turns exceeded")

// OutputError means the model's final answer could not be decoded or failed validation.
type OutputError struct {
	Agent string
	Raw   string // the model's final text
	Err   error
}

func (e *OutputError) Error() string {
	return fmt.Sprintf("agent %s: invalid output: %v", e.Agent, e.Err)
}

func (e *OutputError) Unwrap() error {
	return e.Err
}

// Config configures an Agent.
type Config struct {
	Name         string
	SystemPrompt string
	Tools        *tools.Registry // nil for tool-less agents

	// MaxToolTurns defaults to DefaultMaxToolTurns.
	MaxToolTurns int

	// OutputRetries is how many times an undecodable or invalid answer is sent
	// back to the model with the error before giving up. Zero means never.
	OutputRetries int

	// Retry wraps every provider call. The zero value means
	// retry.DefaultPolicy; Retryable defaults to llm.IsRateLimited.
	Retry retry.Policy
}

// Agent produces a T from a prompt.
type Agent[T schema.Output] struct {
	name          string
	system        string
	provider      llm.Provider
	tools         *tools.Registry
	maxToolTurns  int
	outputRetries int
	policy        retry.Policy
}

// Result is a completed run.
type Result[T schema.Output] struct {
	Output       T
	RunID        string
	Turns        int // provider calls made, retries not counted
	ToolCalls    int
	InputTokens  int
	OutputTokens int
}

// New builds an agent. The retry policy is validated here so a bad config
// fails before any request is sent.
func New[T schema.Output](provider llm.Provider, cfg Config) (*Agent[T], error) {
	if provider == nil {
		return nil, errors.New("agent: provider is required")
	}
	if cfg.Name == "" {
		return nil, errors.New("agent: name is required")
	}

	policy := cfg.Retry
	if policy.MaxAttempts == 0 && policy.InitialDelay == 0 {
		policy = retry.DefaultPolicy(llm.IsRateLimited)
	}
	if policy.Retryable == nil {
		policy.Retryable = llm.IsRateLimited
	}
	if policy.Name == "" {
		policy.Name = "llm/" + cfg.Name
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.Name, err)
	}

	maxTurns := cfg.MaxToolTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxToolTurns
	}
	if cfg.OutputRetries < 0 {
		return nil, fmt.Errorf("agent %s: output retries must not be negative", cfg.Name)
	}

	// an empty registry is the same as none: no tool definitions are sent
	reg := cfg.Tools
	if reg != nil && reg.Count() == 0 {
		reg = nil
	}

	return &Agent[T]{
		name:          cfg.Name,
		system:        cfg.SystemPrompt,
		provider:      provider,
		tools:         reg,
		maxToolTurns:  maxTurns,
		outputRetries: cfg.OutputRetries,
		policy:        policy,
	}, nil
}

// Name returns the agent name
func (a *Agent[T]) Name() string {
	return a.name
}

// RunOption adjusts a single run.
type RunOption func(*runOptions)

type runOptions struct {
	context []string
}

// WithContext adds a named JSON document to the system prompt, e.g. the
// database row a question is about.
func WithContext(name string, v any) RunOption {
	return func(o *runOptions) {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			logging.L_warn("agent: context not serializable", "name", name, "error", err)
			return
		}
		o.context = append(o.context, fmt.Sprintf("## %s\n```json\n%s\n```", name, data))
	}
}

// Run executes the agent loop until the model produces a valid T.
func (a *Agent[T]) Run(ctx context.Context, prompt string, opts ...RunOption) (*Result[T], error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	start := time.Now()
	topic := "agent/" + a.name
	res := &Result[T]{RunID: uuid.New().String()}
	logging.L_info("agent: run started", "agent", a.name, "runID", res.RunID, "provider", a.provider.Name(), "model", a.provider.Model())

	req := &llm.Request{
		System:     a.buildSystemPrompt(ro.context),
		Messages:   []types.Message{types.UserMessage(prompt)},
		JSONOutput: true,
	}
	if a.tools != nil {
		req.Tools = a.tools.Definitions()
	}

	toolTurns := 0
	outputAttempts := 0
	for {
		resp, err := retry.Do(ctx, a.policy, func(ctx context.Context) (*llm.Response, error) {
			return a.provider.Chat(ctx, req)
		})
		if err != nil {
			MetricOutcome(topic, "run", "llm_error")
			return nil, fmt.Errorf("agent %s: %w", a.name, err)
		}
		res.Turns++
		res.InputTokens += resp.InputTokens
		res.OutputTokens += resp.OutputTokens

		if resp.HasToolUse() {
			if toolTurns >= a.maxToolTurns {
				MetricOutcome(topic, "run", "tool_turns_exceeded")
				return nil, fmt.Errorf("agent %s: %w (%d)", a.name, ErrToolTurnsExceeded, a.maxToolTurns)
			}
			toolTurns++
			req.Messages = append(req.Messages, a.runTools(ctx, res, resp.ToolCalls)...)
			continue
		}

		out, err := a.decode(resp.Text)
		if err == nil {
			res.Output = out
			MetricSince(topic, "run", start)
			MetricOutcome(topic, "run", "success")
			logging.L_elapsed(start, "agent: run completed", "agent", a.name, "runID", res.RunID, "turns", res.Turns, "toolCalls", res.ToolCalls)
			return res, nil
		}

		if outputAttempts >= a.outputRetries {
			MetricOutcome(topic, "run", "output_error")
			logging.L_warn("agent: invalid output", "agent", a.name, "runID", res.RunID, "error", err)
			return nil, err
		}
		outputAttempts++
		logging.L_debug("agent: asking model to fix output", "agent", a.name, "runID", res.RunID, "attempt", outputAttempts, "error", err)
		req.Messages = append(req.Messages,
			types.Message{Role: types.RoleAssistant, Content: resp.Text},
			types.UserMessage(fmt.Sprintf("Your answer was rejected: %v\nReply again with only the corrected JSON object.", errors.Unwrap(err))),
		)
	}
}

// runTools executes each requested call and returns the tool_use/tool_result
// messages to append. Failures are reported to the model, not the caller.
func (a *Agent[T]) runTools(ctx context.Context, res *Result[T], calls []types.ToolCall) []types.Message {
	msgs := make([]types.Message, 0, 2*len(calls))
	for _, call := range calls {
		msgs = append(msgs, types.Message{
			Role:      types.RoleToolUse,
			ToolUseID: call.ID,
			ToolName:  call.Name,
			ToolInput: call.Input,
		})
	}

	for _, call := range calls {
		res.ToolCalls++
		logging.L_info("agent: tool call", "agent", a.name, "runID", res.RunID, "tool", call.Name)

		var result string
		var err error
		if a.tools == nil {
			err = fmt.Errorf("%w: %s", tools.ErrUnknownTool, call.Name)
		} else {
			result, err = a.tools.Execute(ctx, call.Name, call.Input)
		}

		msg := types.Message{
			Role:      types.RoleToolResult,
			ToolUseID: call.ID,
			ToolName:  call.Name,
			Content:   result,
		}
		if err != nil {
			logging.L_warn("agent: tool failed", "agent", a.name, "tool", call.Name, "error", err)
			msg.Content = fmt.Sprintf("Error: %s", err.Error())
			msg.IsError = true
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

func (a *Agent[T]) decode(text string) (T, error) {
	var out T
	raw := ExtractJSON(text)
	if raw == "" {
		return out, &OutputError{Agent: a.name, Raw: text, Err: errors.New("no JSON object in answer")}
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, &OutputError{Agent: a.name, Raw: text, Err: err}
	}
	if err := out.Validate(); err != nil {
		return out, &OutputError{Agent: a.name, Raw: text, Err: err}
	}
	return out, nil
}

func (a *Agent[T]) buildSystemPrompt(docs []string) string {
	var zero T
	var sb strings.Builder

	sb.WriteString(strings.TrimSpace(a.system))
	sb.WriteString("\n\n")
	if a.tools != nil {
		if summary := a.tools.BuildToolSummary(); summary != "" {
			sb.WriteString(summary)
			sb.WriteString("\n")
		}
	}
	for _, doc := range docs {
		sb.WriteString(doc)
		sb.WriteString("\n\n")
	}

	schemaJSON, _ := json.MarshalIndent(zero.JSONSchema(), "", "  ")
	sb.WriteString("## Output\n")
	sb.WriteString("When you have the answer, reply with a single JSON object and nothing else. It must match this JSON Schema:\n")
	sb.WriteString(string(schemaJSON))
	return sb.String()
}
