package strategy

import (
	"trade_sim/internal/engine"

	"github.com/shopspring/decimal"
)

// ActionType defines the type of trading action
type ActionType int

const (
	ActionBuy  ActionType = iota + 1
	ActionSell // Sell
)

// String returns the string representation of ActionType
func (a ActionType) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

func (a ActionType) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Signal is an advisory decision made by a strategy. Nothing executes it;
// the user decides whether to trade.
type Signal struct {
	Type     ActionType      `json:"action"`
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"`
	ShortSMA decimal.Decimal `json:"short_sma"`
	LongSMA  decimal.Decimal `json:"long_sma"`
}

// Strategy is the interface that all trading strategies must implement.
// It is called synchronously from inside the Sequencer after each tick.
type Strategy interface {
	// OnQuote is called with every new quote of the strategy's symbol.
	OnQuote(q engine.Quote) []Signal
	Symbol() string
}
