// Package router sends a free-text query to one of a fixed set of handlers,
// chosen by a classifier (usually an LLM) that labels the query.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	. "github.com/roelfdiedericks/garage/internal/logging"
	. "github.com/roelfdiedericks/garage/internal/metrics"
)

// Label is the closed set of routing targets.
type Label int

const (
	LabelUnknown Label = iota
	LabelCar
	LabelTruck
	LabelWeather
)

// Labels lists every routable label in declaration order.
var Labels = []Label{LabelCar, LabelTruck, LabelWeather}

func (l Label) String() string {
	switch l {
	case LabelCar:
		return "car"
	case LabelTruck:
		return "truck"
	case LabelWeather:
		return "weather"
	default:
		return "unknown"
	}
}

// Valid reports whether l is one of Labels.
func (l Label) Valid() bool {
	switch l {
	case LabelCar, LabelTruck, LabelWeather:
		return true
	}
	return false
}

// ErrUnknownLabel is returned by ParseLabel for text outside the label set.
var ErrUnknownLabel = errors.New("unknown route label")

// ParseLabel accepts a label name in any case, optionally quoted or padded,
// as models tend to answer `'car'` or `Car`.
func ParseLabel(s string) (Label, error) {
	clean := strings.ToLower(strings.Trim(strings.TrimSpace(s), `"'.`+"`"))
	for _, l := range Labels {
		if clean == l.String() {
			return l, nil
		}
	}
	return LabelUnknown, fmt.Errorf("%w: %q", ErrUnknownLabel, s)
}

// MarshalText encodes the label name.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a label name via ParseLabel.
func (l *Label) UnmarshalText(text []byte) error {
	parsed, err := ParseLabel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// Classifier labels a query.
type Classifier interface {
	Classify(ctx context.Context, query string) (Label, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, query string) (Label, error)

func (f ClassifierFunc) Classify(ctx context.Context, query string) (Label, error) {
	return f(ctx, query)
}

// Handler answers a routed query.
type Handler[T any] func(ctx context.Context, query string) (T, error)

// Handlers maps labels to their handler.
type Handlers[T any] map[Label]Handler[T]

// ErrUnroutableQuery is matched by every *UnroutableQueryError.
var ErrUnroutableQuery = errors.New("unroutable query")

// UnroutableQueryError means the classifier picked a label with no handler.
type UnroutableQueryError struct {
	Label Label
	Query string
}

func (e *UnroutableQueryError) Error() string {
	return fmt.Sprintf("unroutable query: no handler for label %q", e.Label)
}

func (e *UnroutableQueryError) Is(target error) bool {
	return target == ErrUnroutableQuery
}

// Route classifies query once and invokes the handler registered for the
// resulting label. A label outside Labels is unroutable even if a handler
// is registered for it. Nothing is cached; identical queries are reclassified.
func Route[T any](ctx context.Context, query string, classifier Classifier, handlers Handlers[T]) (T, error) {
	var zero T

	label, err := classifier.Classify(ctx, query)
	if err != nil {
		MetricFailWithReason("router", "classify", "classifier_error")
		return zero, fmt.Errorf("classify query: %w", err)
	}

	handler, ok := handlers[label]
	if !label.Valid() || !ok || handler == nil {
		MetricOutcome("router", "label", "unroutable")
		L_warn("router: no handler for label", "label", label, "handlers", len(handlers))
		return zero, &UnroutableQueryError{Label: label, Query: query}
	}

	MetricOutcome("router", "label", label.String())
	L_info("router: dispatching", "label", label)
	return handler(ctx, query)
}
