package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Simulation Errors
	ErrDataIntegrity    = errors.New("price series failed integrity checks")
	ErrInvalidState     = errors.New("operation not allowed in current engine state")
	ErrOrderNotApproved = errors.New("order reached execution without an approving risk decision")

	// Exchange Specific Errors
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrPositionNotFound     = errors.New("position not found on the exchange")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrQueryFailed    = errors.New("database query failed")
)

// ConfigError reports configuration rejected at construction time.
// It matches ErrConfigurationError with errors.Is.
type ConfigError struct {
	Component string
	Err       error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s configuration: %v", e.Component, e.Err)
}

func (e *ConfigError) Unwrap() []error {
	return []error{ErrConfigurationError, e.Err}
}

// NewConfigError builds a ConfigError from a formatted message.
func NewConfigError(component, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Component: component, Err: fmt.Errorf(format, args...)}
}

// DataError reports malformed input data found while running.
// It matches ErrDataIntegrity with errors.Is.
type DataError struct {
	Op  string
	Err error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DataError) Unwrap() []error {
	return []error{ErrDataIntegrity, e.Err}
}
