// Package schema defines the structured outputs agents must produce.
// Every output validates itself and describes its JSON shape so the prompt
// can tell the model what to return.
package schema

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/roelfdiedericks/garage/internal/router"
)

// Output is implemented by every agent result type.
type Output interface {
	Validate() error
	JSONSchema() map[string]any
}

// ErrInvalidOutput is matched by every *ValidationError.
var ErrInvalidOutput = errors.New("invalid output")

// ValidationError names the field that failed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid output: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidOutput
}

// MaintenanceOutput is maintenance advice for a car or truck.
type MaintenanceOutput struct {
	Recommendation string `json:"recommendation"`
	Urgency        int    `json:"urgency"`
}

// Urgency bounds.
const (
	MinUrgency = 1
	MaxUrgency = 10
)

func (o MaintenanceOutput) Validate() error {
	if strings.TrimSpace(o.Recommendation) == "" {
		return &ValidationError{Field: "recommendation", Reason: "must not be empty"}
	}
	if o.Urgency < MinUrgency || o.Urgency > MaxUrgency {
		return &ValidationError{Field: "urgency", Reason: fmt.Sprintf("must be between %d and %d, got %d", MinUrgency, MaxUrgency, o.Urgency)}
	}
	return nil
}

func (MaintenanceOutput) JSONSchema() map[string]any {
	return object(map[string]any{
		"recommendation": prop("string", "Maintenance advice for the vehicle owner"),
		"urgency": map[string]any{
			"type":        "integer",
			"description": "Urgency level from 1 (low) to 10 (high)",
			"minimum":     MinUrgency,
			"maximum":     MaxUrgency,
		},
	}, "recommendation", "urgency")
}

// WeatherOutput is the current weather for a city.
type WeatherOutput struct {
	City      string  `json:"city"`
	TempC     float64 `json:"temp_c"`
	Condition string  `json:"condition"`
}

func (o WeatherOutput) Validate() error {
	if strings.TrimSpace(o.City) == "" {
		return &ValidationError{Field: "city", Reason: "must not be empty"}
	}
	// Coldest and hottest air temperatures ever recorded, with margin.
	if math.IsNaN(o.TempC) || o.TempC < -100 || o.TempC > 70 {
		return &ValidationError{Field: "temp_c", Reason: fmt.Sprintf("implausible temperature %v", o.TempC)}
	}
	if strings.TrimSpace(o.Condition) == "" {
		return &ValidationError{Field: "condition", Reason: "must not be empty"}
	}
	return nil
}

func (WeatherOutput) JSONSchema() map[string]any {
	return object(map[string]any{
		"city":      prop("string", "City name"),
		"temp_c":    prop("number", "Current temperature in degrees Celsius"),
		"condition": prop("string", "Short description, e.g. 'light rain'"),
	}, "city", "temp_c", "condition")
}

// InterferenceRow is one aircraft hex with its interference counts.
type InterferenceRow struct {
	Hex               string  `json:"hex"`
	GoodAircraft      int     `json:"good_aircraft"`
	BadAircraft       int     `json:"bad_aircraft"`
	Total             int     `json:"total"`
	InterferenceRatio float64 `json:"interference_ratio"`
	Lat               float64 `json:"lat"`
	Lon               float64 `json:"lon"`
}

func (r InterferenceRow) validate(i int) error {
	field := func(name string) string { return fmt.Sprintf("rows[%d].%s", i, name) }
	if r.Hex == "" {
		return &ValidationError{Field: field("hex"), Reason: "must not be empty"}
	}
	if math.IsNaN(r.InterferenceRatio) || r.InterferenceRatio < 0 || r.InterferenceRatio > 1 {
		return &ValidationError{Field: field("interference_ratio"), Reason: fmt.Sprintf("must be between 0 and 1, got %v", r.InterferenceRatio)}
	}
	return nil
}

// WorstInterferenceOutput summarises the worst interference locations.
type WorstInterferenceOutput struct {
	Rows    []InterferenceRow `json:"rows"`
	Summary string            `json:"summary"`
}

func (o WorstInterferenceOutput) Validate() error {
	for i, r := range o.Rows {
		if err := r.validate(i); err != nil {
			return err
		}
	}
	if strings.TrimSpace(o.Summary) == "" {
		return &ValidationError{Field: "summary", Reason: "must not be empty"}
	}
	return nil
}

func (WorstInterferenceOutput) JSONSchema() map[string]any {
	row := object(map[string]any{
		"hex":           prop("string", "Aircraft ICAO hex"),
		"good_aircraft": prop("integer", ""),
		"bad_aircraft":  prop("integer", ""),
		"total":         prop("integer", ""),
		"interference_ratio": map[string]any{
			"type":    "number",
			"minimum": 0,
			"maximum": 1,
		},
		"lat": prop("number", ""),
		"lon": prop("number", ""),
	}, "hex", "good_aircraft", "bad_aircraft", "total", "interference_ratio", "lat", "lon")

	return object(map[string]any{
		"rows":    map[string]any{"type": "array", "items": row},
		"summary": prop("string", "One-paragraph summary of the findings"),
	}, "rows", "summary")
}

// RouterOutput is the router agent's decision.
type RouterOutput struct {
	Target string `json:"target"`
}

// Label parses Target into the closed label set.
func (o RouterOutput) Label() (router.Label, error) {
	return router.ParseLabel(o.Target)
}

func (o RouterOutput) Validate() error {
	if _, err := o.Label(); err != nil {
		return &ValidationError{Field: "target", Reason: err.Error()}
	}
	return nil
}

func (RouterOutput) JSONSchema() map[string]any {
	names := make([]string, len(router.Labels))
	for i, l := range router.Labels {
		names[i] = l.String()
	}
	return object(map[string]any{
		"target": map[string]any{
			"type":        "string",
			"description": "Which agent should answer the query",
			"enum":        names,
		},
	}, "target")
}

func object(properties map[string]any, required ...string) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func prop(typ, description string) map[string]any {
	p := map[string]any{"type": typ}
	if description != "" {
		p["description"] = description
	}
	return p
}
