package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind classifies provider failures for the orchestrator.
type ErrorKind int

const (
	// KindUnavailable covers network failures, malformed replies, empty replies and missing credentials.
	KindUnavailable ErrorKind = iota
	// KindRateLimited means the provider reported quota or rate exhaustion.
	KindRateLimited
)

func (k ErrorKind) String() string {
	if k == KindRateLimited {
		return "rate_limited"
	}
	return "unavailable"
}

var (
	ErrEmptyResponse      = errors.New("provider returned an empty response")
	ErrMissingCredentials = errors.New("provider credentials are not configured")
)

// ProviderError is the only error type adapters return from Send.
type ProviderError struct {
	Provider   ProviderID
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a rate-limit classified provider failure.
func IsRateLimited(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == KindRateLimited
}

func unavailable(provider ProviderID, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: KindUnavailable, StatusCode: status, Err: err}
}

// rateLimitCodes are structured error codes/statuses that mean quota exhaustion.
var rateLimitCodes = map[string]bool{
	"resource_exhausted":  true,
	"rate_limit_exceeded": true,
	"rate_limit_error":    true,
	"insufficient_quota":  true,
	"too_many_requests":   true,
}

// classify inspects the HTTP status and the provider's structured error code first.
// The message substring check is only used when neither is available.
func classify(status int, code, message string) ErrorKind {
	if status == http.StatusTooManyRequests {
		return KindRateLimited
	}
	if rateLimitCodes[strings.ToLower(code)] {
		return KindRateLimited
	}
	if status == 0 && code == "" && looksRateLimited(message) {
		return KindRateLimited
	}
	return KindUnavailable
}

func looksRateLimited(message string) bool {
	m := strings.ToLower(message)
	for _, needle := range []string{"429", "quota", "rate limit", "too many requests"} {
		if strings.Contains(m, needle) {
			return true
		}
	}
	return false
}

// transportError wraps failures that happened before any HTTP status was received.
func transportError(provider ProviderID, err error) *ProviderError {
	if errors.Is(err, context.DeadlineExceeded) {
		return unavailable(provider, 0, errors.Wrap(err, "provider call timed out"))
	}
	if errors.Is(err, context.Canceled) {
		return unavailable(provider, 0, errors.Wrap(err, "provider call canceled"))
	}
	return &ProviderError{Provider: provider, Kind: classify(0, "", err.Error()), Err: err}
}
