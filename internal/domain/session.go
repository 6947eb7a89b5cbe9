package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionState is the persisted snapshot of an account and its market.
// Only Balance is required; the collections may be absent.
type SessionState struct {
	Balance      decimal.Decimal       `json:"balance"`
	RealizedPnL  decimal.Decimal       `json:"realizedPnL"`
	Items        []ItemSnapshot        `json:"items"`
	Transactions []TransactionSnapshot `json:"transactions"`
	MarketData   []StockSnapshot       `json:"marketData"`
	SavedAt      time.Time             `json:"savedAt,omitzero"`
}

// ItemSnapshot is one persisted holding.
type ItemSnapshot struct {
	Symbol       string          `json:"symbol"`
	Quantity     int             `json:"quantity"`
	AveragePrice decimal.Decimal `json:"averagePrice"`
}

// TransactionSnapshot is one persisted trade; Type is "BUY" or "SELL".
type TransactionSnapshot struct {
	ID            uuid.UUID        `json:"id"`
	Timestamp     time.Time        `json:"timestamp"`
	Type          string           `json:"type"`
	Symbol        string           `json:"symbol"`
	Quantity      int              `json:"quantity"`
	PricePerShare decimal.Decimal  `json:"pricePerShare"`
	RealizedPnL   *decimal.Decimal `json:"realizedPnL,omitempty"`
}

// StockSnapshot is one persisted market instrument.
type StockSnapshot struct {
	Symbol       string            `json:"symbol"`
	Name         string            `json:"name"`
	Price        decimal.Decimal   `json:"price"`
	PriceHistory []decimal.Decimal `json:"priceHistory"`
}

var errMissingBalance = &ValidationError{Field: "balance", Reason: "field is required"}

// UnmarshalJSON rejects snapshots without a balance field.
func (s *SessionState) UnmarshalJSON(data []byte) error {
	type plain SessionState
	var wire struct {
		plain
		Balance *decimal.Decimal `json:"balance"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Balance == nil {
		return errMissingBalance
	}
	*s = SessionState(wire.plain)
	s.Balance = *wire.Balance
	return nil
}

// IsMissingBalance reports a snapshot decode failure caused by an absent balance.
func IsMissingBalance(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve == errMissingBalance
}

// SnapshotTransaction converts a ledger transaction to its persisted form.
func SnapshotTransaction(tx Transaction) TransactionSnapshot {
	out := TransactionSnapshot{
		ID:            tx.ID,
		Timestamp:     tx.Time,
		Type:          tx.Side.String(),
		Symbol:        tx.Symbol,
		Quantity:      tx.Quantity,
		PricePerShare: tx.PricePerShare,
	}
	if tx.RealizedPnL.Valid {
		pnl := tx.RealizedPnL.Decimal
		out.RealizedPnL = &pnl
	}
	return out
}

// Transaction rebuilds the ledger transaction, validating every field.
func (ts TransactionSnapshot) Transaction() (Transaction, error) {
	side, err := ParseTradeSide(ts.Type)
	if err != nil {
		return Transaction{}, err
	}
	var realized decimal.NullDecimal
	if ts.RealizedPnL != nil {
		realized = decimal.NewNullDecimal(*ts.RealizedPnL)
	}
	return RestoreTransaction(ts.ID, side, ts.Symbol, ts.Quantity, ts.PricePerShare, ts.Timestamp, realized)
}

// SnapshotStock captures a stock's price and full history.
func SnapshotStock(s *Stock) StockSnapshot {
	return StockSnapshot{
		Symbol:       s.Symbol(),
		Name:         s.Name(),
		Price:        s.Price(),
		PriceHistory: s.PriceHistory(),
	}
}

// Stock builds a detached Stock carrying the snapshot's price and history.
func (ss StockSnapshot) Stock() (*Stock, error) {
	s, err := NewStock(ss.Symbol, ss.Name, ss.Price)
	if err != nil {
		return nil, err
	}
	if len(ss.PriceHistory) > 0 {
		if err := s.ReplaceHistory(ss.PriceHistory); err != nil {
			return nil, err
		}
	}
	return s, nil
}
