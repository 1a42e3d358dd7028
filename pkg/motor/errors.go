package motor

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	ErrUnknownCommand = errors.New("motor: unknown command")
	ErrRejected       = errors.New("motor: command rejected by rover")
)

// APIError is returned when the motor bridge answers with an HTTP error.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("motor: bridge error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable reports whether the same command may succeed if sent again.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
