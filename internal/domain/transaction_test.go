package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestTradeSide(t *testing.T) {
	if SideBuy.String() != "BUY" || SideSell.String() != "SELL" {
		t.Errorf("unexpected side strings: %s %s", SideBuy, SideSell)
	}
	if TradeSide(0).String() != "UNKNOWN" {
		t.Errorf("Expected UNKNOWN, got %s", TradeSide(0))
	}

	side, err := ParseTradeSide("SELL")
	if err != nil || side != SideSell {
		t.Errorf("ParseTradeSide(SELL) = %v, %v", side, err)
	}
	if _, err := ParseTradeSide("HOLD"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestNewTransaction(t *testing.T) {
	at := time.Date(2025, 1, 10, 14, 30, 0, 0, time.UTC)

	t.Run("valid buy", func(t *testing.T) {
		tx, err := NewTransaction(SideBuy, "aapl", 10, d("150.50"), at, decimal.NullDecimal{})
		if err != nil {
			t.Fatalf("NewTransaction failed: %v", err)
		}
		if tx.ID == uuid.Nil {
			t.Error("Expected a generated id")
		}
		if tx.Symbol != "AAPL" {
			t.Errorf("Expected AAPL, got %s", tx.Symbol)
		}
		if !tx.TotalValue().Equal(d("1505")) {
			t.Errorf("Expected total 1505, got %s", tx.TotalValue())
		}
		if tx.RealizedPnL.Valid {
			t.Error("Buy must not carry realized P&L")
		}
	})

	t.Run("ids are unique", func(t *testing.T) {
		a, _ := NewTransaction(SideBuy, "AAPL", 1, d("1"), at, decimal.NullDecimal{})
		b, _ := NewTransaction(SideBuy, "AAPL", 1, d("1"), at, decimal.NullDecimal{})
		if a.ID == b.ID {
			t.Error("Expected distinct ids")
		}
	})

	t.Run("sell with pnl", func(t *testing.T) {
		pnl := decimal.NewNullDecimal(d("-12.5"))
		tx, err := NewTransaction(SideSell, "TSLA", 5, d("200"), at, pnl)
		if err != nil {
			t.Fatalf("NewTransaction failed: %v", err)
		}
		if !tx.RealizedPnL.Valid || !tx.RealizedPnL.Decimal.Equal(d("-12.5")) {
			t.Errorf("Expected pnl -12.5, got %v", tx.RealizedPnL)
		}
	})

	invalidCases := []struct {
		name     string
		side     TradeSide
		symbol   string
		qty      int
		price    string
		realized decimal.NullDecimal
	}{
		{"blank symbol", SideBuy, " ", 1, "1", decimal.NullDecimal{}},
		{"zero quantity", SideBuy, "AAPL", 0, "1", decimal.NullDecimal{}},
		{"negative quantity", SideSell, "AAPL", -3, "1", decimal.NullDecimal{}},
		{"zero price", SideBuy, "AAPL", 1, "0", decimal.NullDecimal{}},
		{"unknown side", TradeSide(9), "AAPL", 1, "1", decimal.NullDecimal{}},
		{"buy with pnl", SideBuy, "AAPL", 1, "1", decimal.NewNullDecimal(decimal.NewFromInt(1))},
	}
	for _, tc := range invalidCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTransaction(tc.side, tc.symbol, tc.qty, d(tc.price), at, tc.realized)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("Expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestRestoreTransaction_KeepsID(t *testing.T) {
	id := uuid.New()
	tx, err := RestoreTransaction(id, SideBuy, "AAPL", 1, d("10"), time.Now(), decimal.NullDecimal{})
	if err != nil {
		t.Fatalf("RestoreTransaction failed: %v", err)
	}
	if tx.ID != id {
		t.Errorf("Expected id %s, got %s", id, tx.ID)
	}
}
