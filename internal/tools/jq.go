package tools

import (
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
)

// queryJSON runs a jq query over a JSON document and returns the first result.
func queryJSON(query string, data []byte) (any, error) {
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid jq query: %w", err)
	}

	iter := parsed.Run(input)
	v, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("jq query %q produced no result", query)
	}
	if err, isErr := v.(error); isErr {
		return nil, fmt.Errorf("jq error: %w", err)
	}
	return v, nil
}
