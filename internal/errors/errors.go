// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrNoData           = errors.New("no market data")
	ErrEmptySignals     = errors.New("empty signal series")
	ErrEmptyGrid        = errors.New("empty parameter grid")
	ErrUnknownMetric    = errors.New("unknown metric")
	ErrUnknownStrategy  = errors.New("unknown strategy")
	ErrStoreUnavailable = errors.New("data store unavailable")
)

// ConfigError represents an invalid run configuration. It fails a run
// before the simulation starts.
type ConfigError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field string, value interface{}, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents malformed or insufficient market data. It fails the
// whole run with no partial result.
type DataError struct {
	Symbol  string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s]: %s: %v", e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s]: %s", e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(symbol, message string, err error) *DataError {
	return &DataError{
		Symbol:  symbol,
		Message: message,
		Err:     err,
	}
}

// InsufficientDataError is returned when walk-forward validation cannot
// form even one full train/test window. It names the shortfall.
type InsufficientDataError struct {
	Need    int
	Have    int
	Message string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: %s (need %d bars, have %d)", e.Message, e.Need, e.Have)
}

// NewInsufficientDataError creates a new InsufficientDataError.
func NewInsufficientDataError(need, have int, message string) *InsufficientDataError {
	return &InsufficientDataError{
		Need:    need,
		Have:    have,
		Message: message,
	}
}

// StoreError represents a data-store failure.
type StoreError struct {
	Operation string
	Symbol    string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error [%s] %s: %v", e.Operation, e.Symbol, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation, symbol string, err error) *StoreError {
	return &StoreError{
		Operation: operation,
		Symbol:    symbol,
		Err:       err,
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
