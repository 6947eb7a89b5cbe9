package strategy

import (
	"fmt"

	"trade_sim/internal/engine"

	"github.com/shopspring/decimal"
)

// SMACrossStrategy implements a simple SMA Crossover strategy.
// It is stateful and deterministic. Prices live in a ring buffer sized for
// the long period, with a running sum for the long SMA.
type SMACrossStrategy struct {
	symbol      string
	shortPeriod int
	longPeriod  int

	// State (Ring Buffer)
	prices []decimal.Decimal
	head   int             // Current write position
	count  int             // Number of elements filled
	sum    decimal.Decimal // Running sum over the long period

	prevShortSMA decimal.Decimal
	prevLongSMA  decimal.Decimal
	primed       bool
}

// NewSMACrossStrategy creates a new instance.
func NewSMACrossStrategy(symbol string, shortPeriod, longPeriod int) (*SMACrossStrategy, error) {
	if shortPeriod <= 0 || shortPeriod >= longPeriod {
		return nil, fmt.Errorf("sma cross: need 0 < short (%d) < long (%d)", shortPeriod, longPeriod)
	}
	return &SMACrossStrategy{
		symbol:      symbol,
		shortPeriod: shortPeriod,
		longPeriod:  longPeriod,
		prices:      make([]decimal.Decimal, longPeriod), // Fixed size allocation
	}, nil
}

func (s *SMACrossStrategy) Symbol() string { return s.symbol }

// OnQuote processes a quote and emits a signal on a crossover.
func (s *SMACrossStrategy) OnQuote(q engine.Quote) []Signal {
	// 1. Filter by symbol
	if q.Symbol != s.symbol {
		return nil
	}

	// 2. Update Price History (Ring Buffer)
	// If full, subtract the oldest value from sum before overwriting
	if s.count == s.longPeriod {
		s.sum = s.sum.Sub(s.prices[s.head]) // s.head points to the oldest value when full
	}
	s.prices[s.head] = q.Price
	s.sum = s.sum.Add(q.Price)
	s.head = (s.head + 1) % s.longPeriod
	if s.count < s.longPeriod {
		s.count++
	}

	// 3. Check if we have enough data
	if s.count < s.longPeriod {
		return nil
	}

	// 4. Calculate SMAs
	currLongSMA := s.sum.Div(decimal.NewFromInt(int64(s.longPeriod)))
	currShortSMA := s.calculateShortSMA()

	var signals []Signal

	// 5. Check for Cross
	if s.primed {
		// Golden Cross: Short goes above Long
		if s.prevShortSMA.LessThanOrEqual(s.prevLongSMA) && currShortSMA.GreaterThan(currLongSMA) {
			signals = append(signals, s.signal(ActionBuy, q, currShortSMA, currLongSMA))
		}

		// Dead Cross: Short goes below Long
		if s.prevShortSMA.GreaterThanOrEqual(s.prevLongSMA) && currShortSMA.LessThan(currLongSMA) {
			signals = append(signals, s.signal(ActionSell, q, currShortSMA, currLongSMA))
		}
	}

	// 6. Update State
	s.prevShortSMA = currShortSMA
	s.prevLongSMA = currLongSMA
	s.primed = true

	return signals
}

func (s *SMACrossStrategy) signal(action ActionType, q engine.Quote, short, long decimal.Decimal) Signal {
	return Signal{
		Type:     action,
		Symbol:   s.symbol,
		Price:    q.Price,
		ShortSMA: short.Round(4),
		LongSMA:  long.Round(4),
	}
}

// calculateShortSMA calculates the SMA for the short period using the ring buffer.
func (s *SMACrossStrategy) calculateShortSMA() decimal.Decimal {
	sum := decimal.Zero
	// Walk backwards from current head (which points to next write slot, so head-1 is latest)
	idx := s.head
	for i := 0; i < s.shortPeriod; i++ {
		idx--
		if idx < 0 {
			idx = s.longPeriod - 1
		}
		sum = sum.Add(s.prices[idx])
	}
	return sum.Div(decimal.NewFromInt(int64(s.shortPeriod)))
}
