package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/roelfdiedericks/garage/internal/store"
)

// Row limits for get_worst_interference.
const (
	DefaultInterferenceLimit = 10
	MaxInterferenceLimit     = 100
)

// InterferenceStore is the slice of store.Store the interference tool reads.
type InterferenceStore interface {
	WorstInterference(ctx context.Context, limit int) ([]store.TimeSeries, error)
}

// WorstInterferenceTool returns the locations with the highest interference ratio
type WorstInterferenceTool struct {
	store InterferenceStore
}

// NewWorstInterferenceTool creates the get_worst_interference tool
func NewWorstInterferenceTool(s InterferenceStore) *WorstInterferenceTool {
	return &WorstInterferenceTool{store: s}
}

func (t *WorstInterferenceTool) Name() string {
	return "get_worst_interference"
}

func (t *WorstInterferenceTool) Description() string {
	return "Fetch the rows with the worst interference ratio (bad aircraft / total), highest first. Defaults to 10 rows."
}

func (t *WorstInterferenceTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"limit": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("Number of rows, 1-%d (default %d)", MaxInterferenceLimit, DefaultInterferenceLimit),
			},
		},
	}
}

type interferenceResult struct {
	Summary string             `json:"summary"`
	Rows    []store.TimeSeries `json:"rows"`
}

func (t *WorstInterferenceTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var params struct {
		Limit int `json:"limit"`
	}
	if err := decodeInput(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	limit := params.Limit
	if limit == 0 {
		limit = DefaultInterferenceLimit
	}
	if limit < 0 || limit > MaxInterferenceLimit {
		return "", fmt.Errorf("limit must be between 1 and %d, got %d", MaxInterferenceLimit, limit)
	}

	rows, err := t.store.WorstInterference(ctx, limit)
	if err != nil {
		return "", err
	}
	if rows == nil {
		rows = []store.TimeSeries{}
	}
	return jsonResult(interferenceResult{
		Summary: fmt.Sprintf("Top %d worst interference locations", len(rows)),
		Rows:    rows,
	})
}
