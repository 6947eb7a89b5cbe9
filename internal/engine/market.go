package engine

import (
	"fmt"
	"math/rand/v2"

	"trade_sim/internal/domain"

	"github.com/shopspring/decimal"
)

// changeScale is the number of decimal places kept for a drawn tick change.
const changeScale int32 = 6

// DefaultMaxChange bounds a single tick move to ±2%.
var DefaultMaxChange = decimal.RequireFromString("0.02")

// Quote is a read-only view of one stock after a tick.
type Quote struct {
	Symbol     string          `json:"symbol"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	LastChange decimal.Decimal `json:"lastChange"`
}

// MarketEngine owns the stock universe and is the only writer of prices
// during normal operation. It is not safe for concurrent use; callers
// serialize access through the Sequencer.
type MarketEngine struct {
	stocks    []*domain.Stock
	index     map[string]*domain.Stock
	rng       *rand.Rand
	maxChange decimal.Decimal
}

// MarketOption configures a MarketEngine.
type MarketOption func(*MarketEngine) error

// WithMaxChange sets the symmetric bound of the per-tick uniform draw.
func WithMaxChange(max decimal.Decimal) MarketOption {
	return func(m *MarketEngine) error {
		if !max.IsPositive() || max.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return &domain.ValidationError{Field: "maxChange", Reason: "must be in (0, 1)"}
		}
		m.maxChange = max
		return nil
	}
}

// WithPriceFloor applies floor to every stock in the universe.
func WithPriceFloor(floor decimal.Decimal) MarketOption {
	return func(m *MarketEngine) error {
		for _, s := range m.stocks {
			if err := s.SetFloor(floor); err != nil {
				return err
			}
		}
		return nil
	}
}

// NewMarketEngine builds the engine over stocks, kept in the given order.
// A nil slice is rejected; an empty one gives a degenerate market.
func NewMarketEngine(stocks []*domain.Stock, rng *rand.Rand, opts ...MarketOption) (*MarketEngine, error) {
	if stocks == nil {
		return nil, &domain.ValidationError{Field: "stocks", Reason: "cannot be nil"}
	}
	if rng == nil {
		return nil, &domain.ValidationError{Field: "rng", Reason: "cannot be nil"}
	}

	m := &MarketEngine{
		stocks:    make([]*domain.Stock, 0, len(stocks)),
		index:     make(map[string]*domain.Stock, len(stocks)),
		rng:       rng,
		maxChange: DefaultMaxChange,
	}
	for i, s := range stocks {
		if s == nil {
			return nil, &domain.ValidationError{Field: fmt.Sprintf("stocks[%d]", i), Reason: "cannot be nil"}
		}
		if _, dup := m.index[s.Symbol()]; dup {
			return nil, &domain.ValidationError{Field: fmt.Sprintf("stocks[%d]", i), Reason: "duplicate symbol " + s.Symbol()}
		}
		m.stocks = append(m.stocks, s)
		m.index[s.Symbol()] = s
	}

	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Tick advances every stock by one independent uniform draw in
// [-maxChange, +maxChange] and returns the resulting quotes.
func (m *MarketEngine) Tick() []Quote {
	for _, s := range m.stocks {
		if err := s.UpdatePrice(m.drawChange()); err != nil {
			panic(fmt.Sprintf("TICK_INVARIANT_VIOLATION: %s: %v", s.Symbol(), err))
		}
	}
	return m.Quotes()
}

func (m *MarketEngine) drawChange() decimal.Decimal {
	u := decimal.NewFromFloat(m.rng.Float64()*2 - 1)
	return u.Mul(m.maxChange).Round(changeScale)
}

// Stocks returns the universe in insertion order.
func (m *MarketEngine) Stocks() []*domain.Stock {
	out := make([]*domain.Stock, len(m.stocks))
	copy(out, m.stocks)
	return out
}

// FindBySymbol is a case-insensitive exact lookup.
func (m *MarketEngine) FindBySymbol(symbol string) (*domain.Stock, bool) {
	s, ok := m.index[domain.NormalizeSymbol(symbol)]
	return s, ok
}

// Quotes returns the current price view of every stock in order.
func (m *MarketEngine) Quotes() []Quote {
	out := make([]Quote, 0, len(m.stocks))
	for _, s := range m.stocks {
		out = append(out, Quote{
			Symbol:     s.Symbol(),
			Name:       s.Name(),
			Price:      s.Price(),
			LastChange: s.LastChange(),
		})
	}
	return out
}
