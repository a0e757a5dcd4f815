package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorType classifies a language-model failure.
type ErrorType string

const (
	ErrorTypeEndpoint      ErrorType = "endpoint"
	ErrorTypeAuth          ErrorType = "auth"
	ErrorTypeModel         ErrorType = "model"
	ErrorTypeRateLimited   ErrorType = "rate_limited"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeCanceled      ErrorType = "canceled"
	ErrorTypeCircuitOpen   ErrorType = "circuit_open"
	ErrorTypeEmptyResponse ErrorType = "empty_response"
	ErrorTypeUnknown       ErrorType = "unknown"
)

// Error represents a structured LLM error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Model      string    // Model name if known
	Endpoint   string    // Endpoint URL if known
}

// Error implements the error interface. The endpoint is reduced to its host.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable implements the retry.RetryableError interface.
// This allows the retry package to check retryability without importing llm.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a new structured LLM error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a new structured LLM error with additional context.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// ClassifyError categorizes an error and returns a structured Error.
// Typed context and go-openai errors are inspected first; anything else is
// classified from its text, which covers the Anthropic client and proxies.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(ErrorTypeTimeout, "request timeout", true, err)
	}
	if errors.Is(err, context.Canceled) {
		return NewError(ErrorTypeCanceled, "request canceled", false, err)
	}

	statusCode := statusCodeOf(err)
	if statusCode != 0 {
		if classified := classifyStatus(statusCode, err); classified != nil {
			return classified
		}
	}

	errStr := err.Error()
	lower := strings.ToLower(errStr)

	if statusCode == 0 {
		for _, code := range []int{400, 401, 403, 404, 429, 500, 502, 503, 504, 529} {
			if strings.Contains(errStr, fmt.Sprintf("%d", code)) {
				statusCode = code
				break
			}
		}
	}

	withStatus := func(e *Error) *Error {
		e.StatusCode = statusCode
		return e
	}

	switch {
	// Authentication errors (not retryable)
	case strings.Contains(errStr, "401") || strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "invalid api key") || strings.Contains(lower, "incorrect api key") ||
		strings.Contains(lower, "authentication_error"):
		return withStatus(NewError(ErrorTypeAuth, "authentication failed", false, err))

	// Model not found (not retryable without config change)
	case strings.Contains(lower, "model") && (strings.Contains(lower, "not found") ||
		strings.Contains(lower, "does not exist")):
		return withStatus(NewError(ErrorTypeModel, "model not found", false, err))

	// Endpoint not found (not retryable without config change)
	case strings.Contains(errStr, "404"):
		return withStatus(NewError(ErrorTypeEndpoint, "endpoint not found", false, err))

	// Connection errors (retryable)
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "no such host") ||
		strings.Contains(lower, "connection reset") || strings.Contains(lower, "eof"):
		return withStatus(NewError(ErrorTypeEndpoint, "connection failed", true, err))

	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return withStatus(NewError(ErrorTypeTimeout, "request timeout", true, err))

	// Rate limiting and provider overload (retryable after backoff)
	case strings.Contains(errStr, "429") || strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "overloaded") || strings.Contains(errStr, "529"):
		return withStatus(NewError(ErrorTypeRateLimited, "rate limited", true, err))

	// 5xx server errors (retryable)
	case strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504"):
		return withStatus(NewError(ErrorTypeEndpoint, "server error", true, err))
	}

	return withStatus(NewError(ErrorTypeUnknown, "llm error", false, err))
}

func statusCodeOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func classifyStatus(code int, err error) *Error {
	var e *Error
	switch {
	case code == 401 || code == 403:
		e = NewError(ErrorTypeAuth, "authentication failed", false, err)
	case code == 404:
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "model") {
			e = NewError(ErrorTypeModel, "model not found", false, err)
		} else {
			e = NewError(ErrorTypeEndpoint, "endpoint not found", false, err)
		}
	case code == 408:
		e = NewError(ErrorTypeTimeout, "request timeout", true, err)
	case code == 429 || code == 529:
		e = NewError(ErrorTypeRateLimited, "rate limited", true, err)
	case code >= 500:
		e = NewError(ErrorTypeEndpoint, "server error", true, err)
	default:
		return nil
	}
	e.StatusCode = code
	return e
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}
