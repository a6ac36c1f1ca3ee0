package llm

// Drivers understood by NewProvider.
const (
	DriverOpenAI    = "openai"
	DriverAzure     = "azure"
	DriverOllama    = "ollama"
	DriverAnthropic = "anthropic"
)

// Defaults applied when the config leaves a field empty.
const (
	DefaultAzureAPIVersion = "2024-12-01-preview"
	DefaultOllamaURL       = "http://localhost:11434/v1"
	DefaultMaxTokens       = 4096
	DefaultTimeoutSeconds  = 120
)

// Drivers lists every supported driver.
var Drivers = []string{DriverOpenAI, DriverAzure, DriverOllama, DriverAnthropic}

// ProviderConfig is the configuration for a single provider instance.
type ProviderConfig struct {
	Driver         string `json:"driver"`                   // "openai", "azure", "ollama", "anthropic"
	Model          string `json:"model"`                    // model name; for azure the deployment's model
	APIKey         string `json:"apiKey,omitempty"`         // not needed for ollama
	BaseURL        string `json:"baseURL,omitempty"`        // OpenAI-compatible or Anthropic-compatible endpoint
	Endpoint       string `json:"endpoint,omitempty"`       // Azure resource endpoint
	Deployment     string `json:"deployment,omitempty"`     // Azure deployment name
	APIVersion     string `json:"apiVersion,omitempty"`     // Azure api-version
	MaxTokens      int    `json:"maxTokens,omitempty"`      // output limit
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"` // per-request HTTP timeout
}

// KnownDriver reports whether d is in Drivers.
func KnownDriver(d string) bool {
	for _, known := range Drivers {
		if d == known {
			return true
		}
	}
	return false
}
