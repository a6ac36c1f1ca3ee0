package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	. "github.com/roelfdiedericks/garage/internal/logging"
	"github.com/roelfdiedericks/garage/internal/retry"
)

// DefaultWeatherURL is the OpenWeatherMap API root.
const DefaultWeatherURL = "https://api.openweathermap.org"

// weatherQuery extracts what the agent needs from a /data/2.5/weather reply.
const weatherQuery = `{temp_c: .main.temp, condition: (.weather[0].description // "unknown"), city: .name}`

// WeatherConfig configures the get_temperature tool
type WeatherConfig struct {
	APIKey  string
	BaseURL string        // default DefaultWeatherURL
	Timeout time.Duration // per HTTP request, default 10s
	Retry   retry.Policy  // zero value means retry.DefaultPolicy; Retryable defaults to IsWeatherRateLimited
}

// HTTPStatusError is a non-2xx reply from the weather API.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("weather api returned %d: %s", e.StatusCode, e.Body)
}

// IsWeatherRateLimited reports a 429 from the weather API.
func IsWeatherRateLimited(err error) bool {
	var statusErr *HTTPStatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests
}

// TemperatureTool fetches current weather for a city
type TemperatureTool struct {
	apiKey  string
	baseURL string
	client  *http.Client
	policy  retry.Policy
}

// NewTemperatureTool creates the get_temperature tool
func NewTemperatureTool(cfg WeatherConfig) *TemperatureTool {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultWeatherURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 && policy.InitialDelay == 0 {
		policy = retry.DefaultPolicy(IsWeatherRateLimited)
	}
	if policy.Retryable == nil {
		policy.Retryable = IsWeatherRateLimited
	}
	if policy.Name == "" {
		policy.Name = "weather"
	}
	return &TemperatureTool{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		policy:  policy,
	}
}

func (t *TemperatureTool) Name() string {
	return "get_temperature"
}

func (t *TemperatureTool) Description() string {
	return "Get the current temperature in Celsius and a short weather condition for a city."
}

func (t *TemperatureTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{
				"type":        "string",
				"description": "City name, optionally with country code (e.g. 'Oslo,NO')",
			},
		},
		"required": []string{"city"},
	}
}

func (t *TemperatureTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	var params struct {
		City string `json:"city"`
	}
	if err := decodeInput(input, &params); err != nil {
		return "", fmt.Errorf("invalid input: %w", err)
	}
	city := strings.TrimSpace(params.City)
	if city == "" {
		return "", errors.New("city is required")
	}
	if t.apiKey == "" {
		return "", errors.New("weather api key not configured (WEATHER_API_KEY)")
	}

	body, err := retry.Do(ctx, t.policy, func(ctx context.Context) ([]byte, error) {
		return t.fetch(ctx, city)
	})
	if err != nil {
		return "", err
	}

	v, err := queryJSON(weatherQuery, body)
	if err != nil {
		return "", err
	}
	result, ok := v.(map[string]any)
	if !ok {
		return "", fmt.Errorf("unexpected weather reply shape %T", v)
	}
	switch result["temp_c"].(type) {
	case float64, int:
	default:
		return "", errors.New("weather reply has no temperature")
	}
	if name, _ := result["city"].(string); name == "" {
		result["city"] = city
	}

	L_debug("get_temperature: fetched", "city", city, "temp_c", result["temp_c"], "condition", result["condition"])
	return jsonResult(result)
}

func (t *TemperatureTool) fetch(ctx context.Context, city string) ([]byte, error) {
	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", t.apiKey)
	q.Set("units", "metric")
	endpoint := t.baseURL + "/data/2.5/weather?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("weather read failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
