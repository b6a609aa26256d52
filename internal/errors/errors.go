// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrTimeout            = errors.New("operation timed out")
	ErrRateLimited        = errors.New("rate limited")
	ErrConnectionFailed   = errors.New("connection failed")
	ErrOrderRejected      = errors.New("order rejected")
	ErrInsufficientMargin = errors.New("insufficient margin")
	ErrInvalidLeverage    = errors.New("invalid leverage")
	ErrPositionNotFound   = errors.New("position not found")
	ErrConfigInvalid      = errors.New("invalid configuration")
	ErrFeedClosed         = errors.New("market data feed closed")
	ErrEmergencyStop      = errors.New("emergency stop engaged")
)

// GatewayError represents an error from the exchange gateway. Retryable
// distinguishes transient network/rate failures from authoritative
// business rejections, which must never be retried.
type GatewayError struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gateway error [%s]: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("gateway error [%s]: %s", e.Code, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError creates a new GatewayError.
func NewGatewayError(code, message string, retryable bool, err error) *GatewayError {
	return &GatewayError{
		Code:      code,
		Message:   message,
		Retryable: retryable,
		Err:       err,
	}
}

// IsRetryable reports whether err is a transient gateway failure that may
// be retried with the same idempotency key.
func IsRetryable(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Retryable
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited) || errors.Is(err, ErrConnectionFailed)
}

// OrderError represents an error related to order operations.
type OrderError struct {
	ClientID string
	Symbol   string
	Action   string
	Reason   string
	Err      error
}

func (e *OrderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order error [%s] %s %s: %s: %v", e.ClientID, e.Action, e.Symbol, e.Reason, e.Err)
	}
	return fmt.Sprintf("order error [%s] %s %s: %s", e.ClientID, e.Action, e.Symbol, e.Reason)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

// NewOrderError creates a new OrderError.
func NewOrderError(clientID, symbol, action, reason string, err error) *OrderError {
	return &OrderError{
		ClientID: clientID,
		Symbol:   symbol,
		Action:   action,
		Reason:   reason,
		Err:      err,
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
