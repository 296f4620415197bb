package providers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorKind categorizes failures across the core: providers, embedding,
// stores, gateway, and the orchestrator share one taxonomy so callers can
// branch on kind instead of string matching.
type ErrorKind string

const (
	KindAuthenticationFailed  ErrorKind = "authentication_failed"
	KindInvalidRequest        ErrorKind = "invalid_request"
	KindRateLimited           ErrorKind = "rate_limited"
	KindModelNotFound         ErrorKind = "model_not_found"
	KindProviderUnavailable   ErrorKind = "provider_unavailable"
	KindNetworkError          ErrorKind = "network_error"
	KindServerError           ErrorKind = "server_error"
	KindParseError            ErrorKind = "parse_error"
	KindBatchSizeLimitExceeded ErrorKind = "batch_size_limit_exceeded"
	KindInputTooLong          ErrorKind = "input_too_long"
	KindInvalidConfig         ErrorKind = "invalid_config"
	KindNotFound              ErrorKind = "not_found"
	KindBudgetExceeded        ErrorKind = "budget_exceeded"
	KindIterationLimit        ErrorKind = "iteration_limit"
	KindCancelled             ErrorKind = "cancelled"
	KindOther                 ErrorKind = "other"
)

// IsRetryable returns true when a retry of the same request may succeed.
func (k ErrorKind) IsRetryable() bool {
	switch k {
	case KindNetworkError, KindRateLimited, KindServerError, KindProviderUnavailable:
		return true
	default:
		return false
	}
}

// CoreError is the structured error carried across component boundaries.
// Component names the failing subsystem ("minimax", "qwen",
// "SchemaValidation") so user-visible diagnostics stay actionable.
type CoreError struct {
	Kind      ErrorKind
	Component string
	Message   string
	Status    int

	// RetryAfter is set for rate-limit errors when the server supplied
	// a retry hint.
	RetryAfter time.Duration

	Cause error
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	var parts []string
	if e.Component != "" {
		parts = append(parts, e.Component+":")
	}
	parts = append(parts, fmt.Sprintf("[%s]", e.Kind))
	if e.Status != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.Status))
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *CoreError) Unwrap() error { return e.Cause }

// KindOf extracts the ErrorKind from an error chain, classifying raw
// errors by message when no CoreError is present.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindOther
	}
	var core *CoreError
	if errors.As(err, &core) {
		return core.Kind
	}
	return classifyMessage(err.Error())
}

// IsRetryable reports whether an error warrants a retry.
func IsRetryable(err error) bool { return KindOf(err).IsRetryable() }

// MapHTTPStatus converts an HTTP failure into a CoreError per the
// provider error-mapping rules: 401 and authentication wording →
// authentication failed; 429 → rate limited; 404 → model not found;
// other 4xx → invalid request; 5xx → server error.
func MapHTTPStatus(component string, status int, body string) *CoreError {
	err := &CoreError{Component: component, Status: status, Message: strings.TrimSpace(body)}
	lower := strings.ToLower(body)

	switch {
	case status == http.StatusUnauthorized || strings.Contains(lower, "authentication") || strings.Contains(lower, "invalid api key"):
		err.Kind = KindAuthenticationFailed
	case status == http.StatusTooManyRequests || strings.Contains(lower, "rate limit") || strings.Contains(lower, "rate_limit"):
		err.Kind = KindRateLimited
	case status == http.StatusNotFound || strings.Contains(lower, "not found"):
		err.Kind = KindModelNotFound
	case status >= 400 && status < 500:
		err.Kind = KindInvalidRequest
	case status >= 500:
		err.Kind = KindServerError
	default:
		err.Kind = KindOther
	}
	return err
}

// WrapNetworkError converts transport-level failures (connect, timeout)
// into the network/unavailable kinds.
func WrapNetworkError(component string, cause error) *CoreError {
	kind := KindNetworkError
	msg := strings.ToLower(cause.Error())
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") {
		kind = KindProviderUnavailable
	}
	return &CoreError{Kind: kind, Component: component, Cause: cause}
}

func classifyMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "context canceled"), strings.Contains(lower, "cancelled"):
		return KindCancelled
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return KindNetworkError
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "429"):
		return KindRateLimited
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "authentication"), strings.Contains(lower, "401"):
		return KindAuthenticationFailed
	case strings.Contains(lower, "not found"), strings.Contains(lower, "404"):
		return KindNotFound
	case strings.Contains(lower, "500"), strings.Contains(lower, "502"), strings.Contains(lower, "503"), strings.Contains(lower, "server error"):
		return KindServerError
	case strings.Contains(lower, "connection refused"), strings.Contains(lower, "no such host"):
		return KindProviderUnavailable
	default:
		return KindOther
	}
}
