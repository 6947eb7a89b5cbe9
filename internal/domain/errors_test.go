package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func TestValidationError(t *testing.T) {
	err := invalid("quantity", "must be greater than 0")

	if err.Error() != "invalid quantity: must be greater than 0" {
		t.Errorf("Error message = %q", err.Error())
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("Expected ValidationError to match ErrInvalidInput")
	}

	var ve *ValidationError
	wrapped := fmt.Errorf("buy: %w", err)
	if !errors.As(wrapped, &ve) || ve.Field != "quantity" {
		t.Errorf("errors.As should extract field, got %+v", ve)
	}
}

func TestInsufficientFundsError(t *testing.T) {
	err := &InsufficientFundsError{Required: decimal.NewFromInt(1500), Available: decimal.NewFromInt(1000)}

	expected := "insufficient funds: required 1500.00, available 1000.00"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Error("Expected match with ErrInsufficientFunds")
	}
}

func TestInsufficientSharesError(t *testing.T) {
	err := &InsufficientSharesError{Required: 5, Available: 2}

	if err.Error() != "insufficient shares: required 5, available 2" {
		t.Errorf("Error message = %q", err.Error())
	}
	if !errors.Is(err, ErrInsufficientShares) {
		t.Error("Expected match with ErrInsufficientShares")
	}
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "market.stocks", Err: baseErr}

	expected := "config error [market.stocks]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, baseErr) {
		t.Error("Expected ConfigError to wrap baseErr")
	}
}

func TestIsRejection(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"validation", invalid("symbol", "empty"), true},
		{"funds", &InsufficientFundsError{}, true},
		{"shares", &InsufficientSharesError{}, true},
		{"not found", &NotFoundError{Symbol: "NVDA"}, true},
		{"plain", errors.New("disk full"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRejection(tc.err); got != tc.want {
				t.Errorf("IsRejection = %v, want %v", got, tc.want)
			}
		})
	}
}
