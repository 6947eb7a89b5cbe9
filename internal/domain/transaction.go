package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeSide is the direction of an executed trade.
type TradeSide int

const (
	SideBuy TradeSide = iota + 1
	SideSell
)

// String returns the string representation of TradeSide
func (s TradeSide) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseTradeSide accepts "BUY" or "SELL".
func ParseTradeSide(s string) (TradeSide, error) {
	switch s {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return 0, invalid("type", fmt.Sprintf("unknown trade side %q", s))
	}
}

// Transaction is the immutable record of one executed trade.
// RealizedPnL is valid only for sells.
type Transaction struct {
	ID            uuid.UUID
	Time          time.Time
	Symbol        string
	Side          TradeSide
	Quantity      int
	PricePerShare decimal.Decimal
	RealizedPnL   decimal.NullDecimal
}

// NewTransaction validates the trade fields and assigns a fresh id.
func NewTransaction(side TradeSide, symbol string, quantity int, price decimal.Decimal, at time.Time, realized decimal.NullDecimal) (Transaction, error) {
	return RestoreTransaction(uuid.New(), side, symbol, quantity, price, at, realized)
}

// RestoreTransaction rebuilds a persisted transaction keeping its id.
func RestoreTransaction(id uuid.UUID, side TradeSide, symbol string, quantity int, price decimal.Decimal, at time.Time, realized decimal.NullDecimal) (Transaction, error) {
	symbol = NormalizeSymbol(symbol)
	switch {
	case symbol == "":
		return Transaction{}, invalid("symbol", "cannot be empty")
	case side != SideBuy && side != SideSell:
		return Transaction{}, invalid("type", "must be BUY or SELL")
	case quantity <= 0:
		return Transaction{}, invalid("quantity", "must be greater than 0")
	case !price.IsPositive():
		return Transaction{}, invalid("price", "must be greater than 0")
	case realized.Valid && side == SideBuy:
		return Transaction{}, invalid("realizedPnL", "only sells carry realized P&L")
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	return Transaction{
		ID:            id,
		Time:          at,
		Symbol:        symbol,
		Side:          side,
		Quantity:      quantity,
		PricePerShare: price,
		RealizedPnL:   realized,
	}, nil
}

// TotalValue is quantity × price per share.
func (t Transaction) TotalValue() decimal.Decimal {
	return t.PricePerShare.Mul(decimal.NewFromInt(int64(t.Quantity)))
}

func (t Transaction) String() string {
	pnl := "-"
	if t.RealizedPnL.Valid {
		pnl = t.RealizedPnL.Decimal.StringFixed(2)
	}
	return fmt.Sprintf("%s | %s | QTY: %d | Price per share: %s | Total: %s | PnL: %s | Time: %s",
		t.Side, t.Symbol, t.Quantity, t.PricePerShare.StringFixed(2), t.TotalValue().StringFixed(2),
		pnl, t.Time.Format(time.RFC3339))
}
