package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roelfdiedericks/garage/internal/llm"
	"github.com/roelfdiedericks/garage/internal/retry"
	"github.com/roelfdiedericks/garage/internal/router"
	"github.com/roelfdiedericks/garage/internal/schema"
	"github.com/roelfdiedericks/garage/internal/store"
	"github.com/roelfdiedericks/garage/internal/types"
)

// scriptedProvider replays replies in order and records every request.
type scriptedProvider struct {
	replies  []*llm.Response
	requests []llm.Request
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Type() string  { return "test" }
func (p *scriptedProvider) Model() string { return "test-model" }

func (p *scriptedProvider) Chat(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	r := *req
	r.Messages = append([]types.Message(nil), req.Messages...)
	p.requests = append(p.requests, r)
	if len(p.replies) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := p.replies[0]
	p.replies = p.replies[1:]
	return resp, nil
}

func reply(s string) *llm.Response {
	return &llm.Response{Text: s, StopReason: "stop"}
}

func toolUse(id, name, input string) *llm.Response {
	return &llm.Response{
		StopReason: "tool_calls",
		ToolCalls:  []types.ToolCall{{ID: id, Name: name, Input: json.RawMessage(input)}},
	}
}

type fakeStore struct {
	cars   map[int64]*store.Car
	trucks map[int64]*store.Truck
}

func (f *fakeStore) GetCar(ctx context.Context, id int64) (*store.Car, error) {
	if c, ok := f.cars[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("car %d: %w", id, store.ErrNotFound)
}

func (f *fakeStore) GetTruck(ctx context.Context, id int64) (*store.Truck, error) {
	if tr, ok := f.trucks[id]; ok {
		return tr, nil
	}
	return nil, fmt.Errorf("truck %d: %w", id, store.ErrNotFound)
}

func (f *fakeStore) WorstInterference(ctx context.Context, limit int) ([]store.TimeSeries, error) {
	return []store.TimeSeries{{ID: 7, Hex: "4ca1fa", InterferenceRatio: 0.9, Total: 10}}, nil
}

func newSet(t *testing.T, p *scriptedProvider) *Set {
	t.Helper()
	s, err := New(Deps{
		Provider: p,
		Store: &fakeStore{
			cars:   map[int64]*store.Car{1: &store.SeedCars[0]},
			trucks: map[int64]*store.Truck{1: &store.SeedTrucks[0]},
		},
		Retry: retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, Multiplier: 2},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestLoadPromptsBuiltin(t *testing.T) {
	p, err := LoadPrompts("")
	if err != nil {
		t.Fatalf("LoadPrompts failed: %v", err)
	}
	if !strings.Contains(p.Car.System, "get_car_info") {
		t.Error("car prompt should mention get_car_info")
	}
	if !strings.Contains(p.Router.System, "weather") {
		t.Error("router prompt should list the weather label")
	}
}

func TestLoadPromptsOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.toml")
	body := "[truck]\nsystem = \"You only fix Scanias.\"\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPrompts(path)
	if err != nil {
		t.Fatalf("LoadPrompts failed: %v", err)
	}
	if p.Truck.System != "You only fix Scanias." {
		t.Errorf("truck prompt = %q", p.Truck.System)
	}
	if !strings.Contains(p.Car.System, "get_car_info") {
		t.Error("entries missing from the override should keep the built-in prompt")
	}

	empty := filepath.Join(t.TempDir(), "empty.toml")
	if err := os.WriteFile(empty, []byte("[car]\nsystem = \"  \"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadPrompts(empty); err == nil {
		t.Error("expected error for an empty prompt")
	}
}

func TestNewRequiresDeps(t *testing.T) {
	if _, err := New(Deps{Store: &fakeStore{}}); err == nil {
		t.Error("expected error without provider")
	}
	if _, err := New(Deps{Provider: &scriptedProvider{}}); err == nil {
		t.Error("expected error without store")
	}
}

func TestClassify(t *testing.T) {
	p := &scriptedProvider{replies: []*llm.Response{reply(`{"target": "truck"}`)}}
	s := newSet(t, p)

	label, err := s.Classify(context.Background(), "My truck with ID 1 has worn brakes")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	if label != router.LabelTruck {
		t.Errorf("label = %v, want truck", label)
	}
	if len(p.requests[0].Tools) != 0 {
		t.Error("router agent should not offer tools")
	}
	if !strings.Contains(p.requests[0].System, `"enum"`) {
		t.Error("router prompt should carry the label enum schema")
	}
}

func TestClassifyRejectsUnknownLabel(t *testing.T) {
	p := &scriptedProvider{replies: []*llm.Response{reply(`{"target": "bus"}`)}}
	s := newSet(t, p)

	if _, err := s.Classify(context.Background(), "my bus"); !errors.Is(err, schema.ErrInvalidOutput) {
		t.Fatalf("expected ErrInvalidOutput, got %v", err)
	}
}

func TestCarPreloadsRow(t *testing.T) {
	p := &scriptedProvider{replies: []*llm.Response{
		reply(`{"recommendation": "Replace brake pads soon.", "urgency": 6}`),
	}}
	s := newSet(t, p)

	res, err := s.Car(context.Background(), "What should I do with my car?", 1)
	if err != nil {
		t.Fatalf("Car failed: %v", err)
	}
	if res.Output.Urgency != 6 {
		t.Errorf("urgency = %d", res.Output.Urgency)
	}
	sys := p.requests[0].System
	if !strings.Contains(sys, "Context (preloaded info)") || !strings.Contains(sys, store.SeedCars[0].Make) {
		t.Errorf("car row not preloaded into prompt:\n%s", sys)
	}
}

func TestCarUnknownIDStillRuns(t *testing.T) {
	p := &scriptedProvider{replies: []*llm.Response{
		reply(`{"recommendation": "No record for this car; book an inspection.", "urgency": 3}`),
	}}
	s := newSet(t, p)

	if _, err := s.Car(context.Background(), "car 99?", 99); err != nil {
		t.Fatalf("Car failed: %v", err)
	}
	if !strings.Contains(p.requests[0].System, `"car": null`) {
		t.Error("missing car should be preloaded as null")
	}
}

func TestTruckUsesTool(t *testing.T) {
	p := &scriptedProvider{replies: []*llm.Response{
		toolUse("call_1", "get_truck_info", `{"truck_id": 1}`),
		reply(`{"recommendation": "Brakes are worn; service immediately.", "urgency": 9}`),
	}}
	s := newSet(t, p)

	res, err := s.Truck(context.Background(), "How is my truck?", 0)
	if err != nil {
		t.Fatalf("Truck failed: %v", err)
	}
	if res.ToolCalls != 1 {
		t.Errorf("ToolCalls = %d, want 1", res.ToolCalls)
	}
	last := p.requests[1].Messages
	result := last[len(last)-1]
	if result.Role != "tool_result" || !strings.Contains(result.Content, store.SeedTrucks[0].Make) {
		t.Errorf("tool result not sent back: %+v", result)
	}
}

func TestTimeSeries(t *testing.T) {
	p := &scriptedProvider{replies: []*llm.Response{
		toolUse("call_1", "get_worst_interference", `{}`),
		reply(`{"rows": [{"id": 7, "hex": "4ca1fa", "interference_ratio": 0.9, "total": 10, "good_aircraft": 1, "bad_aircraft": 9, "lat": 59.9, "lon": 10.7}], "summary": "One hotspot near Oslo."}`),
	}}
	s := newSet(t, p)

	res, err := s.TimeSeries(context.Background(), "Where is interference worst?")
	if err != nil {
		t.Fatalf("TimeSeries failed: %v", err)
	}
	if len(res.Output.Rows) != 1 || res.Output.Rows[0].Hex != "4ca1fa" {
		t.Errorf("unexpected rows: %+v", res.Output.Rows)
	}
}

func TestAskRoutesToTruck(t *testing.T) {
	p := &scriptedProvider{replies: []*llm.Response{
		reply(`{"target": "truck"}`),
		reply(`{"recommendation": "Replace the brakes before the next haul.", "urgency": 8}`),
	}}
	s := newSet(t, p)

	ans, err := s.Ask(context.Background(), "My truck with ID 1 has worn brakes")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if ans.Label != router.LabelTruck {
		t.Errorf("label = %v", ans.Label)
	}
	out, ok := ans.Output.(schema.MaintenanceOutput)
	if !ok || out.Urgency != 8 {
		t.Errorf("unexpected output: %#v", ans.Output)
	}
	if len(p.requests) != 2 {
		t.Fatalf("expected 2 provider calls, got %d", len(p.requests))
	}
	if !strings.Contains(p.requests[1].System, `"truck_id": 1`) {
		t.Error("truck id from the query should be preloaded")
	}

	data, err := json.Marshal(ans)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"label":"truck"`) {
		t.Errorf("answer json = %s", data)
	}
}

func TestAskReclassifiesEveryCall(t *testing.T) {
	p := &scriptedProvider{replies: []*llm.Response{
		reply(`{"target": "weather"}`),
		reply(`{"city": "Oslo", "temp_c": 4.5, "condition": "light rain"}`),
		reply(`{"target": "weather"}`),
		reply(`{"city": "Oslo", "temp_c": 4.5, "condition": "light rain"}`),
	}}
	s := newSet(t, p)

	for i := 0; i < 2; i++ {
		ans, err := s.Ask(context.Background(), "Weather in Oslo?")
		if err != nil {
			t.Fatalf("Ask %d failed: %v", i, err)
		}
		if ans.Label != router.LabelWeather {
			t.Errorf("label = %v", ans.Label)
		}
	}
	if len(p.requests) != 4 {
		t.Errorf("expected 4 provider calls, got %d", len(p.requests))
	}
}

func TestAskPreloadsHashID(t *testing.T) {
	p := &scriptedProvider{replies: []*llm.Response{
		reply(`{"target": "car"}`),
		reply(`{"recommendation": "Routine service.", "urgency": 2}`),
	}}
	s := newSet(t, p)

	if _, err := s.Ask(context.Background(), "car #1 needs a service"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !strings.Contains(p.requests[1].System, `"car_id": 1`) {
		t.Error("car id written as #1 should be preloaded")
	}
}

func TestAskClassifierFailureInvokesNoAgent(t *testing.T) {
	p := &scriptedProvider{replies: []*llm.Response{reply("I am not sure.")}}
	s := newSet(t, p)

	_, err := s.Ask(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, router.ErrUnroutableQuery) {
		t.Error("a classifier failure is not an unroutable query")
	}
	if len(p.requests) != 1 {
		t.Errorf("expected only the router call, got %d", len(p.requests))
	}
}

func TestExtractID(t *testing.T) {
	cases := []struct {
		query string
		want  int64
	}{
		{"My truck with ID 1 has worn brakes", 1},
		{"car #2 needs a service", 2},
		{"id: 42", 42},
		{"car number 7", 7},
		{"#3", 3},
		{"truck no. 4 is leaking", 4},
		{"my Volvo (#12) rattles", 12},
		{"a valid question", 0},
		{"my volvo is making noises", 0},
		{"Is it raining in Oslo?", 0},
	}
	for _, c := range cases {
		if got := ExtractID(c.query); got != c.want {
			t.Errorf("ExtractID(%q) = %d, want %d", c.query, got, c.want)
		}
	}
}
