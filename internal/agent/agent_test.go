package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/roelfdiedericks/garage/internal/llm"
	"github.com/roelfdiedericks/garage/internal/retry"
	"github.com/roelfdiedericks/garage/internal/schema"
	"github.com/roelfdiedericks/garage/internal/tools"
	"github.com/roelfdiedericks/garage/internal/types"
)

type step struct {
	resp *llm.Response
	err  error
}

// scriptedProvider replays steps in order and records every request.
type scriptedProvider struct {
	steps    []step
	requests []llm.Request
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Type() string  { return "test" }
func (p *scriptedProvider) Model() string { return "test-model" }

func (p *scriptedProvider) Chat(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	r := *req
	r.Messages = append([]types.Message(nil), req.Messages...)
	p.requests = append(p.requests, r)
	if len(p.steps) == 0 {
		return nil, errors.New("script exhausted")
	}
	s := p.steps[0]
	p.steps = p.steps[1:]
	return s.resp, s.err
}

func text(s string) step {
	return step{resp: &llm.Response{Text: s, StopReason: "stop", InputTokens: 10, OutputTokens: 5}}
}

func toolCall(id, name, input string) step {
	return step{resp: &llm.Response{
		StopReason: "tool_calls",
		ToolCalls:  []types.ToolCall{{ID: id, Name: name, Input: json.RawMessage(input)}},
	}}
}

var rateLimited = &openai.APIError{HTTPStatusCode: 429, Message: "Rate limit reached"}

// echoTool returns its input, or fails when asked to.
type echoTool struct{ calls int }

func (t *echoTool) Name() string           { return "echo" }
func (t *echoTool) Description() string    { return "Echo the input back." }
func (t *echoTool) Schema() map[string]any { return map[string]any{"type": "object"} }
func (t *echoTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	t.calls++
	if strings.Contains(string(input), "fail") {
		return "", errors.New("echo refused")
	}
	return string(input), nil
}

func testConfig(reg *tools.Registry) Config {
	return Config{
		Name:         "test",
		SystemPrompt: "You are a mechanic.",
		Tools:        reg,
		Retry:        retry.Policy{MaxAttempts: 3, InitialDelay: time.Millisecond, Multiplier: 2},
	}
}

func TestRunToolLoopThenOutput(t *testing.T) {
	echo := &echoTool{}
	p := &scriptedProvider{steps: []step{
		toolCall("c1", "echo", `{"car_id":1}`),
		text("```json\n{\"recommendation\":\"Check the engine\",\"urgency\":3}\n```"),
	}}
	a, err := New[schema.MaintenanceOutput](p, testConfig(tools.NewRegistry(echo)))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	res, err := a.Run(context.Background(), "check car 1")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Output.Recommendation != "Check the engine" || res.Output.Urgency != 3 {
		t.Errorf("output = %+v", res.Output)
	}
	if res.Turns != 2 || res.ToolCalls != 1 || echo.calls != 1 {
		t.Errorf("turns=%d toolCalls=%d echo=%d", res.Turns, res.ToolCalls, echo.calls)
	}
	if res.RunID == "" {
		t.Error("missing run id")
	}

	second := p.requests[1].Messages
	if len(second) != 3 {
		t.Fatalf("second request has %d messages, want 3", len(second))
	}
	if second[1].Role != types.RoleToolUse || second[2].Role != types.RoleToolResult || second[2].Content != `{"car_id":1}` {
		t.Errorf("tool messages = %+v", second[1:])
	}
	if !strings.Contains(p.requests[0].System, `"urgency"`) || !strings.Contains(p.requests[0].System, "- echo:") {
		t.Errorf("system prompt lacks schema or tool summary:\n%s", p.requests[0].System)
	}
	if len(p.requests[0].Tools) != 1 || !p.requests[0].JSONOutput {
		t.Errorf("request = %+v", p.requests[0])
	}
}

func TestEmptyRegistrySendsNoTools(t *testing.T) {
	p := &scriptedProvider{steps: []step{text(`{"recommendation":"Rotate the tyres","urgency":2}`)}}
	a, err := New[schema.MaintenanceOutput](p, testConfig(tools.NewRegistry()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := a.Run(context.Background(), "q"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(p.requests[0].Tools) != 0 {
		t.Errorf("sent %d tool definitions, want none", len(p.requests[0].Tools))
	}
	if strings.Contains(p.requests[0].System, "Available Tools") {
		t.Error("system prompt lists tools for an empty registry")
	}
}

func TestToolErrorsGoBackToModel(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		toolCall("c1", "echo", `{"mode":"fail"}`),
		toolCall("c2", "no_such_tool", `{}`),
		text(`{"recommendation":"Could not look it up","urgency":1}`),
	}}
	a, _ := New[schema.MaintenanceOutput](p, testConfig(tools.NewRegistry(&echoTool{})))

	if _, err := a.Run(context.Background(), "q"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	msgs := p.requests[2].Messages
	first, second := msgs[2], msgs[4]
	if !first.IsError || !strings.Contains(first.Content, "echo refused") {
		t.Errorf("tool failure not reported: %+v", first)
	}
	if !second.IsError || !strings.Contains(second.Content, "unknown tool") {
		t.Errorf("unknown tool not reported: %+v", second)
	}
}

func TestRateLimitedCallsAreRetried(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		{err: rateLimited},
		{err: rateLimited},
		text(`{"recommendation":"ok","urgency":2}`),
	}}
	a, _ := New[schema.MaintenanceOutput](p, testConfig(nil))

	res, err := a.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(p.requests) != 3 || res.Turns != 1 {
		t.Errorf("requests=%d turns=%d", len(p.requests), res.Turns)
	}
}

func TestRateLimitExhaustion(t *testing.T) {
	p := &scriptedProvider{steps: []step{{err: rateLimited}, {err: rateLimited}, {err: rateLimited}, text("{}")}}
	a, _ := New[schema.MaintenanceOutput](p, testConfig(nil))

	_, err := a.Run(context.Background(), "q")
	if !errors.Is(err, retry.ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if len(p.requests) != 3 {
		t.Errorf("requests = %d, want 3", len(p.requests))
	}
}

func TestFatalLLMErrorIsNotRetried(t *testing.T) {
	authErr := &openai.APIError{HTTPStatusCode: 401, Message: "bad key"}
	p := &scriptedProvider{steps: []step{{err: authErr}, text("{}")}}
	a, _ := New[schema.MaintenanceOutput](p, testConfig(nil))

	_, err := a.Run(context.Background(), "q")
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) || apiErr.HTTPStatusCode != 401 {
		t.Fatalf("expected the 401 back, got %v", err)
	}
	if len(p.requests) != 1 {
		t.Errorf("requests = %d, want 1", len(p.requests))
	}
}

func TestInvalidOutput(t *testing.T) {
	p := &scriptedProvider{steps: []step{text(`{"recommendation":"x","urgency":42}`)}}
	a, _ := New[schema.MaintenanceOutput](p, testConfig(nil))

	_, err := a.Run(context.Background(), "q")
	var outErr *OutputError
	if !errors.As(err, &outErr) {
		t.Fatalf("expected *OutputError, got %v", err)
	}
	if !errors.Is(err, schema.ErrInvalidOutput) || outErr.Agent != "test" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOutputRetryRepairsAnswer(t *testing.T) {
	p := &scriptedProvider{steps: []step{
		text("I think urgency is high"),
		text(`{"recommendation":"Replace the brakes","urgency":9}`),
	}}
	cfg := testConfig(nil)
	cfg.OutputRetries = 1
	a, _ := New[schema.MaintenanceOutput](p, cfg)

	res, err := a.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Output.Urgency != 9 {
		t.Errorf("output = %+v", res.Output)
	}
	last := p.requests[1].Messages
	if last[len(last)-1].Role != types.RoleUser || !strings.Contains(last[len(last)-1].Content, "rejected") {
		t.Errorf("repair prompt missing: %+v", last)
	}
}

func TestToolTurnsExceeded(t *testing.T) {
	var steps []step
	for i := 0; i < 5; i++ {
		steps = append(steps, toolCall("c", "echo", `{}`))
	}
	p := &scriptedProvider{steps: steps}
	cfg := testConfig(tools.NewRegistry(&echoTool{}))
	cfg.MaxToolTurns = 2
	a, _ := New[schema.MaintenanceOutput](p, cfg)

	if _, err := a.Run(context.Background(), "q"); !errors.Is(err, ErrToolTurnsExceeded) {
		t.Fatalf("expected ErrToolTurnsExceeded, got %v", err)
	}
	if len(p.requests) != 3 {
		t.Errorf("requests = %d, want 3", len(p.requests))
	}
}

func TestNewRejectsInvalidPolicy(t *testing.T) {
	cfg := testConfig(nil)
	cfg.Retry.Multiplier = -1
	if _, err := New[schema.MaintenanceOutput](&scriptedProvider{}, cfg); !errors.Is(err, retry.ErrInvalidPolicy) {
		t.Errorf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestWithContextInSystemPrompt(t *testing.T) {
	p := &scriptedProvider{steps: []step{text(`{"target":"car"}`)}}
	a, _ := New[schema.RouterOutput](p, testConfig(nil))

	if _, err := a.Run(context.Background(), "q", WithContext("Car", map[string]any{"make": "Volvo"})); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p.requests[0].System, "## Car") || !strings.Contains(p.requests[0].System, `"make": "Volvo"`) {
		t.Errorf("context missing:\n%s", p.requests[0].System)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"<think>maybe {\"a\":0}</think>\n{\"a\":2}", `{"a":2}`},
		{`Sure! {"a":{"b":3}} hope that helps`, `{"a":{"b":3}}`},
		{"no json here", ""},
	}
	for _, tc := range cases {
		if got := ExtractJSON(tc.in); got != tc.want {
			t.Errorf("ExtractJSON(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
