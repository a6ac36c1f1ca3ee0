// Package config loads garage settings: built-in defaults, overlaid by
// garage.json, overlaid by .env and the process environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"

	"github.com/roelfdiedericks/garage/internal/llm"
	"github.com/roelfdiedericks/garage/internal/logging"
	"github.com/roelfdiedericks/garage/internal/paths"
	"github.com/roelfdiedericks/garage/internal/retry"
)

// Config represents the merged garage configuration
type Config struct {
	LLM      llm.ProviderConfig `json:"llm"`
	Retry    RetryConfig        `json:"retry"`
	Database DatabaseConfig     `json:"database"`
	Weather  WeatherConfig      `json:"weather"`
	Agent    AgentConfig        `json:"agent"`
	LogLevel string             `json:"logLevel"`

	// Path is the file the config was read from, empty when none existed.
	Path string `json:"-"`
}

// RetryConfig is the rate-limit retry policy shared by LLM and weather calls.
type RetryConfig struct {
	MaxAttempts    int     `json:"maxAttempts"`
	InitialDelayMs int     `json:"initialDelayMs"`
	Multiplier     float64 `json:"multiplier"`
	MaxJitterMs    int     `json:"maxJitterMs"`
}

type DatabaseConfig struct {
	Path          string `json:"path"`
	BusyTimeoutMs int    `json:"busyTimeoutMs"`
}

type WeatherConfig struct {
	APIKey         string `json:"apiKey"`
	BaseURL        string `json:"baseURL"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

type AgentConfig struct {
	MaxToolTurns  int    `json:"maxToolTurns"`
	OutputRetries int    `json:"outputRetries"`
	PromptsFile   string `json:"promptsFile,omitempty"` // TOML overriding the built-in prompts
}

// Environment variables read by Load. The names match the .env files the
// deployment already uses.
const (
	EnvAzureEndpoint   = "AZURE_ENDPOINT"
	EnvAzureDeployment = "AZURE_OPENAI_DEPLOYMENT"
	EnvAPIKey          = "API_KEY"
	EnvAzureAPIVersion = "AZURE_API_VERSION"
	EnvLLMDriver       = "LLM_DRIVER"
	EnvLLMModel        = "LLM_MODEL"
	EnvLLMBaseURL      = "LLM_BASE_URL"
	EnvWeatherAPIKey   = "WEATHER_API_KEY"
	EnvDatabase        = "GARAGE_DB"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LLM: llm.ProviderConfig{
			Driver:         llm.DriverAzure,
			APIVersion:     llm.DefaultAzureAPIVersion,
			MaxTokens:      llm.DefaultMaxTokens,
			TimeoutSeconds: llm.DefaultTimeoutSeconds,
		},
		Retry: RetryConfig{
			MaxAttempts:    5,
			InitialDelayMs: 1000,
			Multiplier:     2,
			MaxJitterMs:    500,
		},
		Database: DatabaseConfig{
			Path:          paths.DefaultDatabasePath(),
			BusyTimeoutMs: 5000,
		},
		Weather: WeatherConfig{
			TimeoutSeconds: 10,
		},
		Agent: AgentConfig{
			MaxToolTurns:  8,
			OutputRetries: 1,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration. path may be empty, in which case
// paths.ConfigPath() decides; a missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		var err error
		if path, err = paths.ConfigPath(); err != nil {
			return nil, err
		}
	}
	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
		cfg.Path = path
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.L_warn("config: .env not loaded", "error", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.L_debug("config: loaded", "path", cfg.Path, "driver", cfg.LLM.Driver, "model", cfg.LLM.Model)
	return cfg, nil
}

// mergeFile overlays the non-zero fields of a JSON file onto c.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	var file Config
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := mergo.Merge(c, file, mergo.WithOverride); err != nil {
		return fmt.Errorf("failed to merge %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.LLM.Driver, EnvLLMDriver)
	set(&c.LLM.Model, EnvLLMModel)
	set(&c.LLM.BaseURL, EnvLLMBaseURL)
	set(&c.LLM.APIKey, EnvAPIKey)
	set(&c.LLM.Endpoint, EnvAzureEndpoint)
	set(&c.LLM.Deployment, EnvAzureDeployment)
	set(&c.LLM.APIVersion, EnvAzureAPIVersion)
	set(&c.Weather.APIKey, EnvWeatherAPIKey)
	set(&c.Database.Path, EnvDatabase)
}

// Validate rejects unusable settings. Provider credentials are checked later,
// when the provider is built, so commands that never call an LLM still run.
func (c *Config) Validate() error {
	if !llm.KnownDriver(c.LLM.Driver) {
		return fmt.Errorf("llm.driver: unknown driver %q (want one of %s)", c.LLM.Driver, strings.Join(llm.Drivers, ", "))
	}
	if c.LLM.MaxTokens < 0 || c.LLM.TimeoutSeconds < 0 {
		return errors.New("llm: maxTokens and timeoutSeconds must not be negative")
	}
	if err := c.Retry.Policy(func(error) bool { return false }).Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.Agent.MaxToolTurns < 1 {
		return fmt.Errorf("agent.maxToolTurns: must be at least 1, got %d", c.Agent.MaxToolTurns)
	}
	if c.Agent.OutputRetries < 0 {
		return fmt.Errorf("agent.outputRetries: must not be negative, got %d", c.Agent.OutputRetries)
	}
	if c.Database.Path == "" {
		return errors.New("database.path: must be set")
	}
	return nil
}

// Policy converts the section into a retry.Policy using the given predicate.
func (r RetryConfig) Policy(retryable func(error) bool) retry.Policy {
	return retry.Policy{
		MaxAttempts:  r.MaxAttempts,
		InitialDelay: time.Duration(r.InitialDelayMs) * time.Millisecond,
		Multiplier:   r.Multiplier,
		MaxJitter:    time.Duration(r.MaxJitterMs) * time.Millisecond,
		Retryable:    retryable,
	}
}

// Init writes the default configuration to path. An existing file is only
// replaced when force is set, and is kept as a .bak first.
func Init(path string, force bool) error {
	if path == "" {
		var err error
		if path, err = paths.DefaultConfigPath(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(path); err == nil {
		if !force {
			return fmt.Errorf("%s already exists (use --force to replace it)", path)
		}
		if err := BackupAndWriteJSON(path, Default(), DefaultBackupCount); err != nil {
			return err
		}
	} else if err := AtomicWriteJSON(path, Default(), 0600); err != nil {
		return err
	}
	logging.L_info("config: wrote defaults", "path", path)
	return nil
}
