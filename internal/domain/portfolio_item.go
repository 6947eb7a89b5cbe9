package domain

import (
	"github.com/shopspring/decimal"
)

// PortfolioItem is a single holding. The stock is a non-owning reference to
// the market's live instance; the item only reads its price.
type PortfolioItem struct {
	stock       *Stock
	quantity    int
	averageCost decimal.Decimal
}

// NewPortfolioItem creates a holding with quantity > 0.
func NewPortfolioItem(stock *Stock, quantity int, averageCost decimal.Decimal) (*PortfolioItem, error) {
	if stock == nil {
		return nil, invalid("stock", "cannot be nil")
	}
	if quantity <= 0 {
		return nil, invalid("quantity", "must be greater than 0")
	}
	if averageCost.IsNegative() {
		return nil, invalid("averageCost", "cannot be negative")
	}
	return &PortfolioItem{stock: stock, quantity: quantity, averageCost: averageCost}, nil
}

func (i *PortfolioItem) Stock() *Stock                { return i.stock }
func (i *PortfolioItem) Symbol() string               { return i.stock.Symbol() }
func (i *PortfolioItem) Quantity() int                { return i.quantity }
func (i *PortfolioItem) AverageCost() decimal.Decimal { return i.averageCost }

// TotalValue is the live market value of the holding.
func (i *PortfolioItem) TotalValue() decimal.Decimal {
	return i.stock.Price().Mul(decimal.NewFromInt(int64(i.quantity)))
}

// UnrealizedPnL is (price − averageCost) × quantity at the live price.
func (i *PortfolioItem) UnrealizedPnL() decimal.Decimal {
	return i.stock.Price().Sub(i.averageCost).Mul(decimal.NewFromInt(int64(i.quantity)))
}

// Relink points the item at the market's live stock for the same symbol.
func (i *PortfolioItem) Relink(live *Stock) error {
	if live == nil {
		return invalid("stock", "cannot be nil")
	}
	if live.Symbol() != i.stock.Symbol() {
		return invalid("stock", "symbol mismatch: "+live.Symbol()+" != "+i.stock.Symbol())
	}
	i.stock = live
	return nil
}

// add re-weights the average cost: (avg×qty + price×n) / (qty + n).
func (i *PortfolioItem) add(amount int, price decimal.Decimal) {
	oldQty := decimal.NewFromInt(int64(i.quantity))
	added := decimal.NewFromInt(int64(amount))
	totalCost := i.averageCost.Mul(oldQty).Add(price.Mul(added))
	i.quantity += amount
	i.averageCost = totalCost.Div(decimal.NewFromInt(int64(i.quantity)))
}

// remove reduces the quantity; the average cost is unchanged on sells.
func (i *PortfolioItem) remove(amount int) {
	if amount > i.quantity {
		panic("PORTFOLIO_ITEM_OVERSOLD: " + i.Symbol())
	}
	i.quantity -= amount
}

func (i *PortfolioItem) clone() PortfolioItem {
	return *i
}
