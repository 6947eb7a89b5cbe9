package service

import (
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"trade_sim/internal/domain"
	"trade_sim/internal/engine"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T, balance string) (*PortfolioService, *engine.MarketEngine) {
	t.Helper()
	var stocks []*domain.Stock
	for _, sc := range []struct{ sym, name, price string }{
		{"AAPL", "Apple Inc.", "100"},
		{"MSFT", "Microsoft", "150"},
		{"TSLA", "Tesla", "200"},
	} {
		s, err := domain.NewStock(sc.sym, sc.name, d(sc.price))
		if err != nil {
			t.Fatalf("NewStock failed: %v", err)
		}
		stocks = append(stocks, s)
	}
	market, err := engine.NewMarketEngine(stocks, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("NewMarketEngine failed: %v", err)
	}
	p, err := domain.NewPortfolio(d(balance), domain.WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("NewPortfolio failed: %v", err)
	}
	svc, err := NewPortfolioService(p, market)
	if err != nil {
		t.Fatalf("NewPortfolioService failed: %v", err)
	}
	svc.now = func() time.Time { return fixedNow }
	return svc, market
}

func TestNewPortfolioService_RejectsNil(t *testing.T) {
	p, _ := domain.NewPortfolio(d("100"))
	market, _ := engine.NewMarketEngine([]*domain.Stock{}, rand.New(rand.NewPCG(1, 2)))

	if _, err := NewPortfolioService(nil, market); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil portfolio, got %v", err)
	}
	if _, err := NewPortfolioService(p, nil); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil market, got %v", err)
	}
}

func TestPortfolioService_Trade(t *testing.T) {
	t.Run("buy resolves symbol case-insensitively", func(t *testing.T) {
		svc, _ := newFixture(t, "1000")
		tx, err := svc.Buy("aapl", 5)
		if err != nil {
			t.Fatalf("Buy failed: %v", err)
		}
		if tx.Symbol != "AAPL" || tx.Side != domain.SideBuy {
			t.Errorf("unexpected transaction %v", tx)
		}
		if !svc.Balance().Equal(d("500")) {
			t.Errorf("Expected balance 500, got %s", svc.Balance())
		}
	})

	t.Run("unknown and blank symbols", func(t *testing.T) {
		svc, _ := newFixture(t, "1000")
		for _, sym := range []string{"NVDA", "", "   "} {
			if _, err := svc.Buy(sym, 1); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("Buy(%q): expected ErrNotFound, got %v", sym, err)
			}
			if _, err := svc.Sell(sym, 1); !errors.Is(err, domain.ErrNotFound) {
				t.Errorf("Sell(%q): expected ErrNotFound, got %v", sym, err)
			}
		}
		if !svc.Balance().Equal(d("1000")) || len(svc.Transactions()) != 0 {
			t.Error("rejected trades must not change the ledger")
		}
	})

	t.Run("not found error carries symbol", func(t *testing.T) {
		svc, _ := newFixture(t, "1000")
		_, err := svc.Buy(" nvda", 1)
		var nf *domain.NotFoundError
		if !errors.As(err, &nf) || nf.Symbol != "NVDA" {
			t.Errorf("Expected NotFoundError for NVDA, got %v", err)
		}
	})

	t.Run("sell books realized pnl after tick", func(t *testing.T) {
		svc, market := newFixture(t, "1000")
		if _, err := svc.Buy("MSFT", 2); err != nil {
			t.Fatalf("Buy failed: %v", err)
		}
		stock, _ := market.FindBySymbol("MSFT")
		if err := stock.SetPrice(d("160")); err != nil {
			t.Fatalf("SetPrice failed: %v", err)
		}
		tx, err := svc.Sell("MSFT", 2)
		if err != nil {
			t.Fatalf("Sell failed: %v", err)
		}
		if !tx.RealizedPnL.Valid || !tx.RealizedPnL.Decimal.Equal(d("20")) {
			t.Errorf("Expected realized 20, got %v", tx.RealizedPnL)
		}
		if !svc.RealizedPnL().Equal(d("20")) || !svc.Balance().Equal(d("1020")) {
			t.Errorf("Expected pnl 20 balance 1020, got %s %s", svc.RealizedPnL(), svc.Balance())
		}
		if len(svc.Items()) != 0 {
			t.Errorf("Expected holding removed, got %d items", len(svc.Items()))
		}
	})
}

func TestPortfolioService_LoadPortfolio(t *testing.T) {
	t.Run("syncs market and relinks items", func(t *testing.T) {
		svc, market := newFixture(t, "1000")

		detached, _ := domain.NewStock("AAPL", "Apple Inc.", d("1"))
		item, _ := domain.NewPortfolioItem(detached, 4, d("90"))
		saved, _ := domain.NewStock("AAPL", "Apple Inc.", d("95"))
		_ = saved.ReplaceHistory([]decimal.Decimal{d("90"), d("95")})

		err := svc.LoadPortfolio(d("250"), d("12"), []*domain.PortfolioItem{item}, nil, []*domain.Stock{saved})
		if err != nil {
			t.Fatalf("LoadPortfolio failed: %v", err)
		}

		live, _ := market.FindBySymbol("AAPL")
		if !live.Price().Equal(d("95")) {
			t.Errorf("Expected live price 95, got %s", live.Price())
		}
		if h := live.PriceHistory(); len(h) != 2 || !h[0].Equal(d("90")) {
			t.Errorf("Expected replaced history [90 95], got %v", h)
		}
		items := svc.Items()
		if len(items) != 1 || items[0].Stock() != live {
			t.Fatal("Expected item relinked to live stock")
		}
		// 250 + 4*95
		if !svc.TotalValue().Equal(d("630")) {
			t.Errorf("Expected total 630, got %s", svc.TotalValue())
		}
		if !svc.RealizedPnL().Equal(d("12")) {
			t.Errorf("Expected realized 12, got %s", svc.RealizedPnL())
		}
	})

	t.Run("invalid load touches nothing", func(t *testing.T) {
		svc, market := newFixture(t, "1000")
		saved, _ := domain.NewStock("AAPL", "Apple Inc.", d("95"))

		err := svc.LoadPortfolio(d("-1"), decimal.Zero, nil, nil, []*domain.Stock{saved})
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Expected ErrInvalidInput, got %v", err)
		}
		live, _ := market.FindBySymbol("AAPL")
		if !live.Price().Equal(d("100")) {
			t.Errorf("market must be unchanged, got %s", live.Price())
		}
		if !svc.Balance().Equal(d("1000")) {
			t.Errorf("ledger must be unchanged, got %s", svc.Balance())
		}
	})

	t.Run("unknown snapshot symbols are ignored", func(t *testing.T) {
		svc, market := newFixture(t, "1000")
		gone, _ := domain.NewStock("GONE", "Delisted", d("5"))
		if err := svc.LoadPortfolio(d("10"), decimal.Zero, nil, nil, []*domain.Stock{gone}); err != nil {
			t.Fatalf("LoadPortfolio failed: %v", err)
		}
		if _, ok := market.FindBySymbol("GONE"); ok {
			t.Error("snapshot must not add stocks to the market")
		}
	})
}

func TestPortfolioService_SnapshotRestore(t *testing.T) {
	src, _ := newFixture(t, "1000")
	if _, err := src.Buy("AAPL", 3); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if _, err := src.Buy("TSLA", 2); err != nil {
		t.Fatalf("Buy failed: %v", err)
	}
	if _, err := src.Sell("AAPL", 1); err != nil {
		t.Fatalf("Sell failed: %v", err)
	}

	state := src.Snapshot()
	if !state.SavedAt.Equal(fixedNow) {
		t.Errorf("Expected SavedAt %v, got %v", fixedNow, state.SavedAt)
	}
	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded domain.SessionState
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	dst, market := newFixture(t, "5")
	if err := dst.Restore(decoded); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if !dst.Balance().Equal(src.Balance()) {
		t.Errorf("Expected balance %s, got %s", src.Balance(), dst.Balance())
	}
	if len(dst.Transactions()) != 3 {
		t.Fatalf("Expected 3 transactions, got %d", len(dst.Transactions()))
	}
	if dst.Transactions()[0].ID != src.Transactions()[0].ID {
		t.Error("transaction ids must survive a restore")
	}
	items := dst.Items()
	if len(items) != 2 || items[0].Symbol() != "AAPL" || items[0].Quantity() != 2 {
		t.Fatalf("unexpected items %v", items)
	}
	live, _ := market.FindBySymbol("AAPL")
	if items[0].Stock() != live {
		t.Error("restored item must follow the live stock")
	}
}

func TestPortfolioService_RestoreDelisted(t *testing.T) {
	t.Run("uses saved market data", func(t *testing.T) {
		svc, _ := newFixture(t, "0")
		state := domain.SessionState{
			Balance: d("10"),
			Items:   []domain.ItemSnapshot{{Symbol: "GONE", Quantity: 2, AveragePrice: d("4")}},
			MarketData: []domain.StockSnapshot{
				{Symbol: "GONE", Name: "Delisted", Price: d("6"), PriceHistory: []decimal.Decimal{d("4"), d("6")}},
			},
		}
		if err := svc.Restore(state); err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
		item := svc.Items()[0]
		if !item.Stock().Price().Equal(d("6")) || item.Stock().Name() != "Delisted" {
			t.Errorf("Expected detached stock at 6, got %v", item.Stock())
		}
		// 10 + 2*6
		if !svc.TotalValue().Equal(d("22")) {
			t.Errorf("Expected total 22, got %s", svc.TotalValue())
		}
	})

	t.Run("falls back to average cost", func(t *testing.T) {
		svc, _ := newFixture(t, "0")
		state := domain.SessionState{
			Balance: d("10"),
			Items:   []domain.ItemSnapshot{{Symbol: "GONE", Quantity: 3, AveragePrice: d("4")}},
		}
		if err := svc.Restore(state); err != nil {
			t.Fatalf("Restore failed: %v", err)
		}
		if !svc.UnrealizedPnL().IsZero() {
			t.Errorf("Expected zero unrealized pnl, got %s", svc.UnrealizedPnL())
		}
	})

	t.Run("bad transaction aborts restore", func(t *testing.T) {
		svc, _ := newFixture(t, "50")
		state := domain.SessionState{
			Balance:      d("10"),
			Transactions: []domain.TransactionSnapshot{{Type: "HOLD", Symbol: "AAPL", Quantity: 1, PricePerShare: d("1")}},
		}
		if err := svc.Restore(state); err == nil {
			t.Fatal("Expected error for unknown transaction type")
		}
		if !svc.Balance().Equal(d("50")) {
			t.Errorf("ledger must be unchanged, got %s", svc.Balance())
		}
	})
}
