package service

import (
	"fmt"
	"time"

	"trade_sim/internal/domain"
	"trade_sim/internal/engine"

	"github.com/shopspring/decimal"
)

// PortfolioService resolves symbols against the market and delegates trades
// to the portfolio. Like the types it wraps it is not goroutine-safe; the
// Sequencer is its only caller at runtime.
type PortfolioService struct {
	portfolio *domain.Portfolio
	market    *engine.MarketEngine
	now       func() time.Time
}

var _ engine.Ledger = (*PortfolioService)(nil)

// NewPortfolioService creates a new PortfolioService instance
func NewPortfolioService(portfolio *domain.Portfolio, market *engine.MarketEngine) (*PortfolioService, error) {
	if portfolio == nil {
		return nil, &domain.ValidationError{Field: "portfolio", Reason: "cannot be nil"}
	}
	if market == nil {
		return nil, &domain.ValidationError{Field: "market", Reason: "cannot be nil"}
	}
	return &PortfolioService{portfolio: portfolio, market: market, now: time.Now}, nil
}

// Buy executes a market buy of quantity shares of symbol at the live price.
func (s *PortfolioService) Buy(symbol string, quantity int) (domain.Transaction, error) {
	stock, err := s.resolve(symbol)
	if err != nil {
		return domain.Transaction{}, err
	}
	return s.portfolio.BuyStock(stock, quantity)
}

// Sell executes a market sell of quantity shares of symbol at the live price.
func (s *PortfolioService) Sell(symbol string, quantity int) (domain.Transaction, error) {
	stock, err := s.resolve(symbol)
	if err != nil {
		return domain.Transaction{}, err
	}
	return s.portfolio.SellStock(stock, quantity)
}

func (s *PortfolioService) resolve(symbol string) (*domain.Stock, error) {
	stock, ok := s.market.FindBySymbol(symbol)
	if !ok {
		return nil, &domain.NotFoundError{Symbol: domain.NormalizeSymbol(symbol)}
	}
	return stock, nil
}

// LoadPortfolio replaces the ledger and syncs the live market with a saved
// snapshot. Ledger inputs are validated before anything is touched.
//
// Stocks present in both marketSnapshot and the market get the snapshot's
// price and history. Items whose symbol is in the market are re-linked to the
// live stock; others keep the stock they came with.
func (s *PortfolioService) LoadPortfolio(balance, realizedPnL decimal.Decimal, items []*domain.PortfolioItem, transactions []domain.Transaction, marketSnapshot []*domain.Stock) error {
	if err := domain.ValidateLoad(balance, items); err != nil {
		return err
	}

	for _, snap := range marketSnapshot {
		if snap == nil {
			continue
		}
		live, ok := s.market.FindBySymbol(snap.Symbol())
		if !ok {
			continue
		}
		if err := live.SetPrice(snap.Price()); err != nil {
			return fmt.Errorf("sync %s price: %w", snap.Symbol(), err)
		}
		if history := snap.PriceHistory(); len(history) > 0 {
			if err := live.ReplaceHistory(history); err != nil {
				return fmt.Errorf("sync %s history: %w", snap.Symbol(), err)
			}
		}
	}

	index := make(map[string]*domain.Stock)
	for _, live := range s.market.Stocks() {
		index[live.Symbol()] = live
	}
	for _, item := range items {
		if live, ok := index[item.Symbol()]; ok {
			if err := item.Relink(live); err != nil {
				return err
			}
		}
	}

	return s.portfolio.LoadPortfolio(balance, realizedPnL, items, transactions)
}

// Snapshot captures the ledger and the market in their persisted form.
func (s *PortfolioService) Snapshot() domain.SessionState {
	state := domain.SessionState{
		Balance:     s.portfolio.Balance(),
		RealizedPnL: s.portfolio.RealizedPnL(),
		SavedAt:     s.now().UTC(),
	}
	for _, item := range s.portfolio.Items() {
		state.Items = append(state.Items, domain.ItemSnapshot{
			Symbol:       item.Symbol(),
			Quantity:     item.Quantity(),
			AveragePrice: item.AverageCost(),
		})
	}
	for _, tx := range s.portfolio.Transactions() {
		state.Transactions = append(state.Transactions, domain.SnapshotTransaction(tx))
	}
	for _, stock := range s.market.Stocks() {
		state.MarketData = append(state.MarketData, domain.SnapshotStock(stock))
	}
	return state
}

// Restore rebuilds the ledger from a saved session. Holdings whose symbol is
// no longer traded keep a detached stock from the saved market data, or one
// priced at their average cost when the market data lacks it too.
func (s *PortfolioService) Restore(state domain.SessionState) error {
	saved := make(map[string]*domain.Stock, len(state.MarketData))
	snapshot := make([]*domain.Stock, 0, len(state.MarketData))
	for i, ss := range state.MarketData {
		stock, err := ss.Stock()
		if err != nil {
			return fmt.Errorf("marketData[%d]: %w", i, err)
		}
		saved[stock.Symbol()] = stock
		snapshot = append(snapshot, stock)
	}

	items := make([]*domain.PortfolioItem, 0, len(state.Items))
	for i, is := range state.Items {
		stock, ok := saved[domain.NormalizeSymbol(is.Symbol)]
		if !ok {
			stock, ok = s.market.FindBySymbol(is.Symbol)
		}
		if !ok {
			var err error
			stock, err = domain.NewStock(is.Symbol, is.Symbol, is.AveragePrice)
			if err != nil {
				return fmt.Errorf("items[%d]: %w", i, err)
			}
		}
		item, err := domain.NewPortfolioItem(stock, is.Quantity, is.AveragePrice)
		if err != nil {
			return fmt.Errorf("items[%d]: %w", i, err)
		}
		items = append(items, item)
	}

	txs := make([]domain.Transaction, 0, len(state.Transactions))
	for i, ts := range state.Transactions {
		tx, err := ts.Transaction()
		if err != nil {
			return fmt.Errorf("transactions[%d]: %w", i, err)
		}
		txs = append(txs, tx)
	}

	return s.LoadPortfolio(state.Balance, state.RealizedPnL, items, txs, snapshot)
}

func (s *PortfolioService) Balance() decimal.Decimal       { return s.portfolio.Balance() }
func (s *PortfolioService) RealizedPnL() decimal.Decimal   { return s.portfolio.RealizedPnL() }
func (s *PortfolioService) TotalValue() decimal.Decimal    { return s.portfolio.TotalValue() }
func (s *PortfolioService) UnrealizedPnL() decimal.Decimal { return s.portfolio.UnrealizedPnL() }
func (s *PortfolioService) Items() []domain.PortfolioItem  { return s.portfolio.Items() }
func (s *PortfolioService) Transactions() []domain.Transaction {
	return s.portfolio.Transactions()
}

// AllStocks returns the market universe in order.
func (s *PortfolioService) AllStocks() []*domain.Stock { return s.market.Stocks() }
