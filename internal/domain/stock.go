package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of decimal places kept for tick-generated prices.
const PriceScale int32 = 4

// DefaultPriceFloor is the lowest price a tick can push a stock to.
var DefaultPriceFloor = decimal.RequireFromString("0.01")

// Stock is a priced instrument owned by the MarketEngine.
// Every price mutation appends to the history and refreshes LastChange.
type Stock struct {
	symbol     string
	name       string
	price      decimal.Decimal
	lastChange decimal.Decimal
	history    []decimal.Decimal
	floor      decimal.Decimal
}

// NewStock creates a stock whose history starts with the initial price.
func NewStock(symbol, name string, initialPrice decimal.Decimal) (*Stock, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, invalid("symbol", "cannot be empty")
	}
	if !initialPrice.IsPositive() {
		return nil, invalid("price", "initial price must be greater than 0")
	}

	s := &Stock{
		symbol:     symbol,
		name:       name,
		price:      initialPrice,
		lastChange: decimal.Zero,
		history:    []decimal.Decimal{initialPrice},
		floor:      DefaultPriceFloor,
	}
	return s, nil
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func (s *Stock) Symbol() string              { return s.symbol }
func (s *Stock) Name() string                { return s.name }
func (s *Stock) Price() decimal.Decimal      { return s.price }
func (s *Stock) LastChange() decimal.Decimal { return s.lastChange }
func (s *Stock) Floor() decimal.Decimal      { return s.floor }

// PriceHistory returns a copy of the recorded prices, oldest first.
func (s *Stock) PriceHistory() []decimal.Decimal {
	out := make([]decimal.Decimal, len(s.history))
	copy(out, s.history)
	return out
}

// SetFloor changes the minimum price applied by UpdatePrice.
func (s *Stock) SetFloor(floor decimal.Decimal) error {
	if !floor.IsPositive() {
		return invalid("floor", "must be greater than 0")
	}
	s.floor = floor
	return nil
}

// UpdatePrice moves the price by percentageChange (0.01 = +1%).
// The result is rounded to PriceScale and never drops below the floor.
func (s *Stock) UpdatePrice(percentageChange decimal.Decimal) error {
	next := s.price.Add(s.price.Mul(percentageChange)).Round(PriceScale)
	if next.LessThan(s.floor) {
		next = s.floor
	}
	return s.SetPrice(next)
}

// SetPrice assigns a price directly. Used by session restore.
func (s *Stock) SetPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return invalid("price", "must be greater than 0")
	}
	s.lastChange = price.Sub(s.price)
	s.price = price
	s.history = append(s.history, price)
	return nil
}

// ReplaceHistory discards the recorded prices and installs history instead.
// The current price is left untouched.
func (s *Stock) ReplaceHistory(history []decimal.Decimal) error {
	if len(history) == 0 {
		return invalid("priceHistory", "cannot be empty")
	}
	for _, p := range history {
		if !p.IsPositive() {
			return invalid("priceHistory", "entries must be greater than 0")
		}
	}
	s.history = append(s.history[:0:0], history...)
	return nil
}

func (s *Stock) String() string {
	return s.symbol + " - " + s.price.StringFixed(2)
}
