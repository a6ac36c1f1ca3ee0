package agents

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	. "github.com/roelfdiedericks/garage/internal/logging"
)

//go:embed prompts.toml
var defaultPrompts string

// Prompt is one agent's prompt entry.
type Prompt struct {
	System string `toml:"system"`
}

// Prompts is the prompt catalogue, one entry per agent.
type Prompts struct {
	Car        Prompt `toml:"car"`
	Truck      Prompt `toml:"truck"`
	Weather    Prompt `toml:"weather"`
	TimeSeries Prompt `toml:"timeseries"`
	Router     Prompt `toml:"router"`
}

// LoadPrompts decodes the built-in catalogue and, when overridePath is set,
// decodes that file over it so it only needs the entries it changes.
func LoadPrompts(overridePath string) (*Prompts, error) {
	var p Prompts
	if _, err := toml.Decode(defaultPrompts, &p); err != nil {
		return nil, fmt.Errorf("built-in prompts: %w", err)
	}

	if overridePath != "" {
		md, err := toml.DecodeFile(overridePath, &p)
		if err != nil {
			return nil, fmt.Errorf("prompts file %s: %w", overridePath, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			L_warn("agents: unknown keys in prompts file", "path", overridePath, "keys", undecoded)
		}
		L_debug("agents: prompts overridden", "path", overridePath)
	}

	for name, prompt := range map[string]Prompt{
		"car":        p.Car,
		"truck":      p.Truck,
		"weather":    p.Weather,
		"timeseries": p.TimeSeries,
		"router":     p.Router,
	} {
		if strings.TrimSpace(prompt.System) == "" {
			return nil, fmt.Errorf("prompt %q is empty", name)
		}
	}
	return &p, nil
}
