package domain

import "github.com/shopspring/decimal"

// AlertDirection tells which way the price must cross the target.
type AlertDirection int

const (
	AlertUp AlertDirection = iota + 1
	AlertDown
)

func (d AlertDirection) String() string {
	switch d {
	case AlertUp:
		return "UP"
	case AlertDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

func (d AlertDirection) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// PriceAlert represents a price alert on one stock
type PriceAlert struct {
	ID           int             `json:"id"`
	Symbol       string          `json:"symbol"`
	TargetPrice  decimal.Decimal `json:"target"`
	Direction    AlertDirection  `json:"direction"`
	IsPersistent bool            `json:"is_persistent"`
	active       bool
}

// NewPriceAlert creates a new alert.
// Direction is automatically determined based on currentPrice:
// - UP: targetPrice >= currentPrice (waiting for price to rise)
// - DOWN: targetPrice < currentPrice (waiting for price to fall)
func NewPriceAlert(symbol string, targetPrice, currentPrice decimal.Decimal, isPersistent bool) (*PriceAlert, error) {
	sym := NormalizeSymbol(symbol)
	if sym == "" {
		return nil, invalid("symbol", "cannot be blank")
	}
	if !targetPrice.IsPositive() {
		return nil, invalid("target", "must be greater than 0")
	}
	direction := AlertUp
	if targetPrice.LessThan(currentPrice) {
		direction = AlertDown
	}
	return &PriceAlert{
		Symbol:       sym,
		TargetPrice:  targetPrice,
		Direction:    direction,
		IsPersistent: isPersistent,
		active:       true,
	}, nil
}

// IsActive returns whether the alert is active
func (a *PriceAlert) IsActive() bool {
	return a.active
}

// SetActive sets the alert's active state
func (a *PriceAlert) SetActive(active bool) {
	a.active = active
}

// CheckCondition checks if alert condition is met.
// Returns true when:
// - Direction is UP and currentPrice >= targetPrice
// - Direction is DOWN and currentPrice <= targetPrice
func (a *PriceAlert) CheckCondition(currentPrice decimal.Decimal) bool {
	if !a.active {
		return false
	}
	return a.crossed(currentPrice)
}

// Rearm re-activates a fired persistent alert once the price is back on the
// waiting side of the target.
func (a *PriceAlert) Rearm(currentPrice decimal.Decimal) {
	if a.IsPersistent && !a.active && !a.crossed(currentPrice) {
		a.active = true
	}
}

func (a *PriceAlert) crossed(price decimal.Decimal) bool {
	switch a.Direction {
	case AlertUp:
		return price.GreaterThanOrEqual(a.TargetPrice)
	case AlertDown:
		return price.LessThanOrEqual(a.TargetPrice)
	default:
		return false
	}
}
