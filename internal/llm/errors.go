package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
)

// ErrorType categorizes LLM errors for retry and user messaging decisions.
type ErrorType string

const (
	ErrorTypeUnknown         ErrorType = "unknown"
	ErrorTypeContextOverflow ErrorType = "context_overflow"
	ErrorTypeRateLimit       ErrorType = "rate_limit"
	ErrorTypeOverloaded      ErrorType = "overloaded"
	ErrorTypeAuth            ErrorType = "auth"
	ErrorTypeBilling         ErrorType = "billing"
	ErrorTypeTimeout         ErrorType = "timeout"
	ErrorTypeFormat          ErrorType = "format"
)

// StatusCode extracts the HTTP status carried by an SDK error, or 0.
func StatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		return anthErr.StatusCode
	}
	return 0
}

// IsRateLimited reports whether err is a transient rate-limit rejection that
// is worth retrying after a backoff. When the SDK error carries a status the
// decision is the status alone, except for a 429 whose error code says the
// account is out of quota: waiting will not fix it.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if code := StatusCode(err); code != 0 {
		return code == http.StatusTooManyRequests && !isQuotaExceeded(err)
	}
	msg := err.Error()
	return IsRateLimitMessage(msg) && !IsBillingMessage(msg)
}

// quotaCode is the error code/type OpenAI-compatible APIs send with a 429
// when the account has no quota left.
const quotaCode = "insufficient_quota"

// isQuotaExceeded checks the structured error code, never the message text.
func isQuotaExceeded(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Type == quotaCode {
		return true
	}
	code, ok := apiErr.Code.(string)
	return ok && code == quotaCode
}

// ErrorTypeOf classifies err, preferring the HTTP status over message text.
func ErrorTypeOf(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	msg := err.Error()
	switch StatusCode(err) {
	case http.StatusTooManyRequests:
		if isQuotaExceeded(err) {
			return ErrorTypeBilling
		}
		return ErrorTypeRateLimit
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrorTypeAuth
	case http.StatusPaymentRequired:
		return ErrorTypeBilling
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ErrorTypeTimeout
	case http.StatusServiceUnavailable, 529:
		return ErrorTypeOverloaded
	}
	return ClassifyError(msg)
}

// ClassifyError determines the error type from an error message.
// Returns ErrorTypeUnknown if the error doesn't match any known pattern.
func ClassifyError(msg string) ErrorType {
	if msg == "" {
		return ErrorTypeUnknown
	}
	// Check in order of specificity; billing before rate limit because
	// quota errors arrive as 429s.
	if IsContextOverflowMessage(msg) {
		return ErrorTypeContextOverflow
	}
	if IsBillingMessage(msg) {
		return ErrorTypeBilling
	}
	if IsRateLimitMessage(msg) {
		return ErrorTypeRateLimit
	}
	if IsOverloadedMessage(msg) {
		return ErrorTypeOverloaded
	}
	if IsAuthMessage(msg) {
		return ErrorTypeAuth
	}
	if IsTimeoutMessage(msg) {
		return ErrorTypeTimeout
	}
	if IsFormatMessage(msg) {
		return ErrorTypeFormat
	}
	return ErrorTypeUnknown
}

// FormatErrorForUser returns a user-friendly error message based on error type.
func FormatErrorForUser(msg string, errType ErrorType) string {
	switch errType {
	case ErrorTypeContextOverflow:
		return "The prompt is too large for the model."
	case ErrorTypeRateLimit:
		return "Rate limited - too many requests. Please wait a moment and try again."
	case ErrorTypeOverloaded:
		return "The AI service is temporarily overloaded. Please try again in a moment."
	case ErrorTypeAuth:
		return "Authentication failed. Check your API key configuration."
	case ErrorTypeBilling:
		return "Billing issue with the AI provider. Check your account credits/plan."
	case ErrorTypeTimeout:
		return "Request timed out. Please try again."
	case ErrorTypeFormat:
		return "The AI service rejected the request format."
	default:
		return fmt.Sprintf("LLM error: %s", msg)
	}
}

// IsContextOverflowMessage checks if an error message indicates context overflow.
func IsContextOverflowMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return containsAny(lower,
		"context_length_exceeded",
		"context length exceeded",
		"maximum context length",
		"prompt is too long",
		"request_too_large",
		"exceeds model context window",
	)
}

// IsRateLimitMessage checks if a message indicates rate limiting.
func IsRateLimitMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return containsAny(lower,
		"429",
		"rate_limit",
		"rate limit",
		"too many requests",
		"requests per minute",
		"requests per day",
	)
}

// IsOverloadedMessage checks if a message indicates the service is overloaded.
func IsOverloadedMessage(msg string) bool {
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "503") && (strings.Contains(lower, "service") || strings.Contains(lower, "unavailable")) {
		return true
	}
	return containsAny(lower,
		"overloaded",
		"server is busy",
		"temporarily unavailable",
	)
}

// IsAuthMessage checks if a message indicates authentication failure.
func IsAuthMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return containsAny(lower,
		"401",
		"403",
		"invalid api key",
		"invalid_api_key",
		"incorrect api key",
		"unauthorized",
		"forbidden",
		"access denied",
		"authentication",
	)
}

// IsBillingMessage checks if a message indicates billing/payment issues.
func IsBillingMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return containsAny(lower,
		"payment required",
		"insufficient credits",
		"credit balance",
		"billing",
		"insufficient_quota",
		"exceeded your current quota",
	)
}

// IsTimeoutMessage checks if a message indicates a timeout.
func IsTimeoutMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return containsAny(lower,
		"408",
		"504",
		"timeout",
		"timed out",
		"deadline exceeded",
		"connection reset",
	)
}

// IsFormatMessage checks if a message indicates invalid request format.
func IsFormatMessage(msg string) bool {
	lower := strings.ToLower(msg)
	return containsAny(lower,
		"invalid request format",
		"roles must alternate",
		"tool_use.id",
		"invalid_request_error",
		"malformed",
	)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
