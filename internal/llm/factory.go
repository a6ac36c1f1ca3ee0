// Package llm - Provider factory
package llm

import "fmt"

// NewProvider creates a provider instance from config.
// Dispatches to the appropriate constructor based on cfg.Driver.
func NewProvider(name string, cfg ProviderConfig) (Provider, error) {
	switch cfg.Driver {
	case DriverOpenAI, DriverAzure, DriverOllama:
		return NewOpenAIProvider(name, cfg)
	case DriverAnthropic:
		return NewAnthropicProvider(name, cfg)
	default:
		return nil, fmt.Errorf("unknown provider driver: %q", cfg.Driver)
	}
}
