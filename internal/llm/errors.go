package llm

import (
	"errors"
	"strings"
)

// Reason categorizes a provider failure for retry purposes. Grounded on an
// internal/agent/providers.FailoverReason shape, trimmed to the
// distinctions the single-backend retry loop actually branches on (a
// failover-to-a-different-provider reason set doesn't apply here, since
// this client retries the same provider rather than swapping one).
type Reason string

const (
	ReasonRateLimit   Reason = "rate_limit"
	ReasonTimeout     Reason = "timeout"
	ReasonServerError Reason = "server_error"
	ReasonAuth        Reason = "auth"
	ReasonInvalid     Reason = "invalid_request"
	ReasonUnknown     Reason = "unknown"
)

// Retryable reports whether a failure of this reason is worth another
// attempt.
func (r Reason) Retryable() bool {
	switch r {
	case ReasonRateLimit, ReasonTimeout, ReasonServerError:
		return true
	default:
		return false
	}
}

// ProviderError wraps a provider SDK error with the classification the
// retry loop needs.
type ProviderError struct {
	Provider string
	Model    string
	Status   int
	Reason   Reason
	Cause    error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + string(e.Reason)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// NewProviderError classifies cause by message content and, when status is
// non-zero, by HTTP status code (status takes precedence).
func NewProviderError(provider, model string, status int, cause error) *ProviderError {
	e := &ProviderError{Provider: provider, Model: model, Status: status, Cause: cause}
	if status != 0 {
		e.Reason = classifyStatus(status)
	} else {
		e.Reason = classifyMessage(cause)
	}
	return e
}

func classifyStatus(status int) Reason {
	switch {
	case status == 429:
		return ReasonRateLimit
	case status == 401 || status == 403:
		return ReasonAuth
	case status == 400 || status == 422:
		return ReasonInvalid
	case status >= 500:
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

func classifyMessage(err error) Reason {
	if err == nil {
		return ReasonUnknown
	}
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "rate limit"), strings.Contains(s, "rate_limit"), strings.Contains(s, "too many requests"), strings.Contains(s, "429"):
		return ReasonRateLimit
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"), strings.Contains(s, "connection reset"):
		return ReasonTimeout
	case strings.Contains(s, "unauthorized"), strings.Contains(s, "invalid api key"), strings.Contains(s, "authentication"):
		return ReasonAuth
	case strings.Contains(s, "500"), strings.Contains(s, "502"), strings.Contains(s, "503"), strings.Contains(s, "overloaded"):
		return ReasonServerError
	default:
		return ReasonUnknown
	}
}

// IsRetryable reports whether err (a raw provider error, possibly wrapped
// in a *ProviderError) is worth a retry attempt.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Reason.Retryable()
	}
	return classifyMessage(err).Retryable()
}

// ErrThinkingToolOrder is raised when a provider rejects a request because
// a thinking block did not immediately precede the tool_use blocks that
// followed it in history — the signal that triggers the client's
// strip-thinking-and-retry-once path.
var ErrThinkingToolOrder = errors.New("llm: thinking block must immediately precede following tool use")

func isThinkingOrderError(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "thinking") && (strings.Contains(s, "tool_use") || strings.Contains(s, "must be immediately"))
}
