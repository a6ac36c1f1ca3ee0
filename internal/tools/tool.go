// Package tools provides the tool execution framework and the data tools
// agents call.
package tools

import (
	"context"
	"encoding/json"

	"github.com/roelfdiedericks/garage/internal/types"
)

// Tool is the interface that all tools must implement
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a human-readable description for the LLM
	Description() string

	// Schema returns the JSON Schema for the tool's input parameters
	Schema() map[string]any

	// Execute runs the tool with the given input and returns its result,
	// usually JSON, as text for the model.
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// ToDefinition converts a Tool to the API format
func ToDefinition(t Tool) types.ToolDefinition {
	return types.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Schema(),
	}
}

// decodeInput unmarshals tool input, treating empty input as "{}".
func decodeInput(input json.RawMessage, v any) error {
	if len(input) == 0 || string(input) == "null" {
		return nil
	}
	return json.Unmarshal(input, v)
}

// jsonResult encodes a tool result for the model.
func jsonResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
