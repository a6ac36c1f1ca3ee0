package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	. "github.com/roelfdiedericks/garage/internal/logging"
	. "github.com/roelfdiedericks/garage/internal/metrics"
	"github.com/roelfdiedericks/garage/internal/types"
)

// ErrUnknownTool is returned by Execute for a name that was never registered.
var ErrUnknownTool = errors.New("unknown tool")

// Registry holds all registered tools
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates a registry holding the given tools
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		tools: make(map[string]Tool),
	}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool to the registry
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs a tool by name with the given input
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		MetricOutcome("tools", "execute", "unknown_tool")
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	start := time.Now()
	topic := "tools/" + name
	result, err := tool.Execute(ctx, input)
	MetricSince(topic, "execute", start)
	if err != nil {
		MetricFail(topic, "execute")
		L_debug("tools: execution failed", "tool", name, "error", err)
		return "", err
	}
	MetricSuccess(topic, "execute")
	L_debug("tools: executed", "tool", name, "resultLen", len(result), "elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}

// List returns all registered tool names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all tools in API format, sorted by name
func (r *Registry) Definitions() []types.ToolDefinition {
	names := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]types.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, ToDefinition(r.tools[name]))
	}
	return defs
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// BuildToolSummary generates a system prompt section listing available tools.
// Small local models pick tools more reliably when they also see them in the
// prompt.
//
// Returns a formatted string like:
//
//	## Available Tools
//	- get_car_info: Fetch information about a car by ID.
func (r *Registry) BuildToolSummary() string {
	names := r.List()
	if len(names) == 0 {
		return ""
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("## Available Tools\n")
	sb.WriteString("Tool names are case-sensitive. Call tools exactly as listed.\n")
	for _, name := range names {
		summary := truncateDescription(r.tools[name].Description(), 100)
		sb.WriteString(fmt.Sprintf("- %s: %s\n", name, summary))
	}
	return sb.String()
}

// truncateDescription shortens a description for the summary view
func truncateDescription(desc string, maxLen int) string {
	// First try to get just the first sentence
	if idx := strings.Index(desc, ". "); idx > 0 && idx < maxLen {
		return desc[:idx+1]
	}
	if len(desc) <= maxLen {
		return desc
	}

	// Find last space before maxLen to avoid cutting words
	truncated := desc[:maxLen]
	if idx := strings.LastIndex(truncated, " "); idx > maxLen/2 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}
