package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultInitialBalance is the starting cash of a fresh account.
var DefaultInitialBalance = decimal.NewFromInt(10000)

// Portfolio is the cash + holdings ledger. Buy and Sell are check-then-act:
// either every field is updated or none is.
//
// Invariants:
//   - balance is never negative
//   - no held item has quantity 0
//   - TotalValue is balance + Σ item values, computed on demand
type Portfolio struct {
	balance      decimal.Decimal
	realizedPnL  decimal.Decimal
	items        map[string]*PortfolioItem
	order        []string // symbols in insertion order
	transactions []Transaction
	now          func() time.Time
}

// PortfolioOption configures a Portfolio.
type PortfolioOption func(*Portfolio)

// WithClock overrides the timestamp source for new transactions.
func WithClock(now func() time.Time) PortfolioOption {
	return func(p *Portfolio) {
		if now != nil {
			p.now = now
		}
	}
}

// NewPortfolio creates an empty account funded with initialBalance.
func NewPortfolio(initialBalance decimal.Decimal, opts ...PortfolioOption) (*Portfolio, error) {
	if initialBalance.IsNegative() {
		return nil, invalid("balance", "initial balance cannot be negative")
	}
	p := &Portfolio{
		balance:     initialBalance,
		realizedPnL: decimal.Zero,
		items:       make(map[string]*PortfolioItem),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Portfolio) Balance() decimal.Decimal     { return p.balance }
func (p *Portfolio) RealizedPnL() decimal.Decimal { return p.realizedPnL }

// TotalValue is cash plus the live value of every holding.
func (p *Portfolio) TotalValue() decimal.Decimal {
	total := p.balance
	for _, item := range p.items {
		total = total.Add(item.TotalValue())
	}
	return total
}

// UnrealizedPnL sums the paper profit of all holdings.
func (p *Portfolio) UnrealizedPnL() decimal.Decimal {
	total := decimal.Zero
	for _, item := range p.items {
		total = total.Add(item.UnrealizedPnL())
	}
	return total
}

// Items returns a snapshot of the holdings in insertion order.
func (p *Portfolio) Items() []PortfolioItem {
	out := make([]PortfolioItem, 0, len(p.order))
	for _, symbol := range p.order {
		out = append(out, p.items[symbol].clone())
	}
	return out
}

// Item returns a snapshot of one holding.
func (p *Portfolio) Item(symbol string) (PortfolioItem, bool) {
	item, ok := p.items[NormalizeSymbol(symbol)]
	if !ok {
		return PortfolioItem{}, false
	}
	return item.clone(), true
}

// Transactions returns the trade history in chronological order.
func (p *Portfolio) Transactions() []Transaction {
	out := make([]Transaction, len(p.transactions))
	copy(out, p.transactions)
	return out
}

// BuyStock debits price × quantity and adds to (or opens) the holding.
func (p *Portfolio) BuyStock(stock *Stock, quantity int) (Transaction, error) {
	if stock == nil {
		return Transaction{}, invalid("stock", "cannot be nil")
	}
	if quantity <= 0 {
		return Transaction{}, invalid("quantity", "must be greater than 0")
	}

	price := stock.Price()
	cost := price.Mul(decimal.NewFromInt(int64(quantity)))
	if p.balance.LessThan(cost) {
		return Transaction{}, &InsufficientFundsError{Required: cost, Available: p.balance}
	}

	tx, err := NewTransaction(SideBuy, stock.Symbol(), quantity, price, p.now(), decimal.NullDecimal{})
	if err != nil {
		return Transaction{}, err
	}

	p.debit(cost)
	if item, ok := p.items[stock.Symbol()]; ok {
		item.add(quantity, price)
	} else {
		p.items[stock.Symbol()] = &PortfolioItem{stock: stock, quantity: quantity, averageCost: price}
		p.order = append(p.order, stock.Symbol())
	}
	p.transactions = append(p.transactions, tx)
	return tx, nil
}

// SellStock credits price × quantity and books P&L against the average cost
// held before the sale. A holding that reaches zero is removed.
func (p *Portfolio) SellStock(stock *Stock, quantity int) (Transaction, error) {
	if stock == nil {
		return Transaction{}, invalid("stock", "cannot be nil")
	}
	if quantity <= 0 {
		return Transaction{}, invalid("quantity", "must be greater than 0")
	}

	item, ok := p.items[stock.Symbol()]
	if !ok {
		return Transaction{}, &InsufficientSharesError{Required: quantity, Available: 0}
	}
	if item.quantity < quantity {
		return Transaction{}, &InsufficientSharesError{Required: quantity, Available: item.quantity}
	}

	price := stock.Price()
	qty := decimal.NewFromInt(int64(quantity))
	realized := price.Sub(item.averageCost).Mul(qty)
	proceeds := price.Mul(qty)

	tx, err := NewTransaction(SideSell, stock.Symbol(), quantity, price, p.now(), decimal.NewNullDecimal(realized))
	if err != nil {
		return Transaction{}, err
	}

	p.realizedPnL = p.realizedPnL.Add(realized)
	p.balance = p.balance.Add(proceeds)
	item.remove(quantity)
	if item.quantity == 0 {
		p.drop(stock.Symbol())
	}
	p.transactions = append(p.transactions, tx)
	return tx, nil
}

// ValidateLoad checks the inputs of LoadPortfolio without touching any state.
func ValidateLoad(balance decimal.Decimal, items []*PortfolioItem) error {
	if balance.IsNegative() {
		return invalid("balance", "cannot be negative")
	}
	seen := make(map[string]struct{}, len(items))
	for idx, item := range items {
		if item == nil || item.stock == nil {
			return invalid(fmt.Sprintf("items[%d]", idx), "cannot be nil")
		}
		if item.quantity <= 0 {
			return invalid(fmt.Sprintf("items[%d].quantity", idx), "must be greater than 0")
		}
		if _, dup := seen[item.Symbol()]; dup {
			return invalid(fmt.Sprintf("items[%d].symbol", idx), "duplicate symbol "+item.Symbol())
		}
		seen[item.Symbol()] = struct{}{}
	}
	return nil
}

// LoadPortfolio replaces the whole ledger. Nil collections load as empty.
// This is a hard reset, not a merge.
func (p *Portfolio) LoadPortfolio(balance, realizedPnL decimal.Decimal, items []*PortfolioItem, transactions []Transaction) error {
	if err := ValidateLoad(balance, items); err != nil {
		return err
	}

	p.balance = balance
	p.realizedPnL = realizedPnL
	p.items = make(map[string]*PortfolioItem, len(items))
	p.order = make([]string, 0, len(items))
	for _, item := range items {
		p.items[item.Symbol()] = item
		p.order = append(p.order, item.Symbol())
	}
	p.transactions = make([]Transaction, len(transactions))
	copy(p.transactions, transactions)
	return nil
}

func (p *Portfolio) debit(amount decimal.Decimal) {
	next := p.balance.Sub(amount)
	if next.IsNegative() {
		panic(fmt.Sprintf("BALANCE_INVARIANT_NEGATIVE: %s - %s", p.balance, amount))
	}
	p.balance = next
}

func (p *Portfolio) drop(symbol string) {
	delete(p.items, symbol)
	for i, s := range p.order {
		if s == symbol {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}
