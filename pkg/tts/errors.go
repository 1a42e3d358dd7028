package tts

import (
	"errors"
	"fmt"
)

var (
	ErrNoAPIKey            = errors.New("tts: API key required")
	ErrInvalidSpeed        = errors.New("tts: speed out of range [0.25, 4.0]")
	ErrEmptyText           = errors.New("tts: nothing to say")
	ErrProviderUnavailable = errors.New("tts: no provider available")
)

// APIError is a non-2xx answer from a speech API.
type APIError struct {
	Provider   string
	StatusCode int
	// Code is the API's error code, when it sent one.
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tts %s: HTTP %d (%s): %s", e.Provider, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("tts %s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsUnauthorized reports a rejected API key.
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == 401 || e.StatusCode == 403 }

// IsRetryable reports rate limiting and server-side failures.
func (e *APIError) IsRetryable() bool { return e.StatusCode == 429 || e.StatusCode >= 500 }

// ProviderError tags err with the provider that produced it.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string { return "tts " + e.Provider + ": " + e.Err.Error() }

func (e *ProviderError) Unwrap() error { return e.Err }

// WrapError tags a non-nil err with provider.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError holds one error per provider tried, in order.
type ChainError struct {
	Errors []error
}

func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "tts chain: failed"
	}
	return fmt.Sprintf("tts chain: %d provider(s) failed: %v", len(e.Errors), e.Errors[len(e.Errors)-1])
}

func (e *ChainError) Unwrap() []error { return e.Errors }
