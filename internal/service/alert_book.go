package service

import (
	"trade_sim/internal/domain"
	"trade_sim/internal/engine"

	"github.com/shopspring/decimal"
)

// AlertBook holds the price alerts checked after every tick.
// Not goroutine-safe; use it from inside the Sequencer.
type AlertBook struct {
	alerts []*domain.PriceAlert
	nextID int
}

func NewAlertBook() *AlertBook {
	return &AlertBook{nextID: 1}
}

// Add registers an alert on stock; its direction follows the current price.
func (b *AlertBook) Add(stock *domain.Stock, target decimal.Decimal, persistent bool) (domain.PriceAlert, error) {
	if stock == nil {
		return domain.PriceAlert{}, &domain.ValidationError{Field: "stock", Reason: "cannot be nil"}
	}
	a, err := domain.NewPriceAlert(stock.Symbol(), target, stock.Price(), persistent)
	if err != nil {
		return domain.PriceAlert{}, err
	}
	a.ID = b.nextID
	b.nextID++
	b.alerts = append(b.alerts, a)
	return *a, nil
}

// Remove deletes the alert with id and reports whether it existed.
func (b *AlertBook) Remove(id int) bool {
	for i, a := range b.alerts {
		if a.ID == id {
			b.alerts = append(b.alerts[:i], b.alerts[i+1:]...)
			return true
		}
	}
	return false
}

// List returns copies of every alert in creation order.
func (b *AlertBook) List() []domain.PriceAlert {
	out := make([]domain.PriceAlert, 0, len(b.alerts))
	for _, a := range b.alerts {
		out = append(out, *a)
	}
	return out
}

// Check returns the alerts fired by quotes. One-shot alerts are removed once
// fired; persistent ones disarm until the price comes back.
func (b *AlertBook) Check(quotes []engine.Quote) []domain.PriceAlert {
	if len(b.alerts) == 0 {
		return nil
	}
	prices := make(map[string]decimal.Decimal, len(quotes))
	for _, q := range quotes {
		prices[q.Symbol] = q.Price
	}

	var fired []domain.PriceAlert
	kept := b.alerts[:0]
	for _, a := range b.alerts {
		price, ok := prices[a.Symbol]
		if !ok {
			kept = append(kept, a)
			continue
		}
		a.Rearm(price)
		if a.CheckCondition(price) {
			a.SetActive(false)
			fired = append(fired, *a)
			if !a.IsPersistent {
				continue
			}
		}
		kept = append(kept, a)
	}
	clear(b.alerts[len(kept):])
	b.alerts = kept
	return fired
}
