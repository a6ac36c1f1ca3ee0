package router

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func fixed(label Label, calls *int) Classifier {
	return ClassifierFunc(func(ctx context.Context, query string) (Label, error) {
		*calls++
		return label, nil
	})
}

func TestRouteInvokesMatchingHandlerOnly(t *testing.T) {
	var classified, carCalls, truckCalls int
	handlers := Handlers[string]{
		LabelCar: func(ctx context.Context, q string) (string, error) {
			carCalls++
			return "car:" + q, nil
		},
		LabelTruck: func(ctx context.Context, q string) (string, error) {
			truckCalls++
			return "truck:" + q, nil
		},
	}

	got, err := Route(context.Background(), "my volvo", fixed(LabelCar, &classified), handlers)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if got != "car:my volvo" {
		t.Errorf("got %q", got)
	}
	if classified != 1 {
		t.Errorf("classifier called %d times, want 1", classified)
	}
	if carCalls != 1 || truckCalls != 0 {
		t.Errorf("car=%d truck=%d, want 1/0", carCalls, truckCalls)
	}
}

func TestRouteUnknownLabelInvokesNothing(t *testing.T) {
	var classified, calls int
	handlers := Handlers[int]{
		LabelCar:   func(ctx context.Context, q string) (int, error) { calls++; return 1, nil },
		LabelTruck: func(ctx context.Context, q string) (int, error) { calls++; return 2, nil },
	}

	_, err := Route(context.Background(), "is it raining in Oslo?", fixed(LabelWeather, &classified), handlers)
	if !errors.Is(err, ErrUnroutableQuery) {
		t.Fatalf("expected ErrUnroutableQuery, got %v", err)
	}
	var ue *UnroutableQueryError
	if !errors.As(err, &ue) || ue.Label != LabelWeather {
		t.Errorf("expected label weather in error, got %#v", err)
	}
	if calls != 0 {
		t.Errorf("handlers invoked %d times", calls)
	}
}

func TestRouteNilHandlerIsUnroutable(t *testing.T) {
	var classified int
	handlers := Handlers[int]{LabelCar: nil}
	if _, err := Route(context.Background(), "q", fixed(LabelCar, &classified), handlers); !errors.Is(err, ErrUnroutableQuery) {
		t.Fatalf("expected ErrUnroutableQuery, got %v", err)
	}
}

func TestRouteLabelOutsideSetIsUnroutable(t *testing.T) {
	called := false
	h := func(ctx context.Context, q string) (int, error) { called = true; return 0, nil }
	handlers := Handlers[int]{LabelUnknown: h, Label(42): h}

	for _, l := range []Label{LabelUnknown, Label(42)} {
		var classified int
		_, err := Route(context.Background(), "q", fixed(l, &classified), handlers)
		if !errors.Is(err, ErrUnroutableQuery) {
			t.Errorf("label %d: expected ErrUnroutableQuery, got %v", int(l), err)
		}
	}
	if called {
		t.Error("handler registered under an invalid label was invoked")
	}
	if LabelUnknown.Valid() || !LabelWeather.Valid() {
		t.Error("Valid disagrees with Labels")
	}
}

func TestRouteReclassifiesEveryCall(t *testing.T) {
	var classified int
	handlers := Handlers[int]{LabelTruck: func(ctx context.Context, q string) (int, error) { return 0, nil }}
	c := fixed(LabelTruck, &classified)
	for i := 0; i < 3; i++ {
		if _, err := Route(context.Background(), "same query", c, handlers); err != nil {
			t.Fatal(err)
		}
	}
	if classified != 3 {
		t.Errorf("classifier called %d times, want 3", classified)
	}
}

func TestRouteClassifierError(t *testing.T) {
	boom := errors.New("llm down")
	c := ClassifierFunc(func(ctx context.Context, q string) (Label, error) { return LabelUnknown, boom })
	called := false
	handlers := Handlers[int]{LabelCar: func(ctx context.Context, q string) (int, error) { called = true; return 0, nil }}

	_, err := Route(context.Background(), "q", c, handlers)
	if !errors.Is(err, boom) {
		t.Fatalf("expected classifier error to be wrapped, got %v", err)
	}
	if errors.Is(err, ErrUnroutableQuery) {
		t.Error("classifier failure is not an unroutable query")
	}
	if called {
		t.Error("handler invoked after classifier failure")
	}
}

func TestParseLabel(t *testing.T) {
	ok := map[string]Label{
		"car":       LabelCar,
		" Truck ":   LabelTruck,
		"'weather'": LabelWeather,
		`"CAR"`:     LabelCar,
		"weather.":  LabelWeather,
	}
	for in, want := range ok {
		got, err := ParseLabel(in)
		if err != nil || got != want {
			t.Errorf("ParseLabel(%q) = %v, %v; want %v", in, got, err, want)
		}
	}

	for _, in := range []string{"", "bus", "unknown", "cars"} {
		if _, err := ParseLabel(in); !errors.Is(err, ErrUnknownLabel) {
			t.Errorf("ParseLabel(%q): expected ErrUnknownLabel, got %v", in, err)
		}
	}
}

func TestLabelJSON(t *testing.T) {
	var out struct {
		Target Label `json:"target"`
	}
	if err := json.Unmarshal([]byte(`{"target":"truck"}`), &out); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if out.Target != LabelTruck {
		t.Errorf("got %v", out.Target)
	}
	if err := json.Unmarshal([]byte(`{"target":"boat"}`), &out); err == nil {
		t.Error("expected error for unknown label")
	}

	data, _ := json.Marshal(out)
	if string(data) != `{"target":"truck"}` {
		t.Errorf("marshal = %s", data)
	}
}
