package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidInput is matched by every ValidationError.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInsufficientFunds is returned when a buy costs more than the cash balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientShares is returned when a sell exceeds the held quantity.
	ErrInsufficientShares = errors.New("insufficient shares")

	// ErrNotFound is returned when a symbol is not part of the market universe.
	ErrNotFound = errors.New("not found")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)

// ValidationError reports a rejected argument (non-positive quantity or price,
// blank symbol, nil required value). Nothing is mutated when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid " + e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

func invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// InsufficientFundsError carries the cost of a rejected buy and the cash on hand.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, available %s",
		e.Required.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

// InsufficientSharesError carries the requested and the owned quantity.
// Available is 0 when the symbol is not held at all.
type InsufficientSharesError struct {
	Required  int
	Available int
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("insufficient shares: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientSharesError) Unwrap() error {
	return ErrInsufficientShares
}

// NotFoundError reports a symbol missing from the market.
type NotFoundError struct {
	Symbol string
}

func (e *NotFoundError) Error() string {
	return "stock " + e.Symbol + " not found"
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsRejection reports whether err is an expected business rejection rather
// than a fault (validation, funds, shares, unknown symbol).
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrInsufficientShares) ||
		errors.Is(err, ErrNotFound)
}
