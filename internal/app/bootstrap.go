package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"trade_sim/internal/domain"
	"trade_sim/internal/engine"
	"trade_sim/internal/infra"
	"trade_sim/internal/infra/feed"
	"trade_sim/internal/infra/storage"
	"trade_sim/internal/service"
	"trade_sim/internal/strategy"
)

const (
	inboxSize = 1024

	// second PCG word, so a single configured seed fully determines the stream
	seedMix = 0x9e3779b97f4a7c15
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config     *infra.Config
	Metrics    *infra.Metrics
	Repository domain.SessionRepository
	Market     *engine.MarketEngine
	Service    *service.PortfolioService
	Sequencer  *engine.Sequencer
	Hub        *feed.Hub
	Alerts     *service.AlertBook
	Watcher    *Watcher
	Seed       uint64
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{Metrics: infra.GlobalMetrics}
}

// Initialize loads the config, installs the logger and builds every component.
func (b *Bootstrap) Initialize() error {
	// 1. Load Config (.env first so TRADESIM_* overrides can live there)
	if err := infra.LoadDotEnv(""); err != nil {
		return err
	}
	path := infra.ConfigPath()
	cfg, err := infra.LoadConfig(path)
	if errors.Is(err, domain.ErrConfigNotFound) {
		slog.Warn("Config file not found, using defaults", slog.String("path", path))
		cfg, err = infra.LoadDefaultConfig()
	}
	if err != nil {
		return err // Let main handle the error
	}

	// 2. Setup Logger
	slog.SetDefault(infra.NewLogger(cfg))
	slog.Info("🚀 Bootstrapping Trade Sim...", slog.String("version", cfg.App.Version))

	return b.Build(cfg)
}

// Build wires market, ledger, sequencer, storage and feed from cfg.
func (b *Bootstrap) Build(cfg *infra.Config) error {
	b.Config = cfg
	if b.Metrics == nil {
		b.Metrics = infra.GlobalMetrics
	}

	// 1. Market
	stocks := make([]*domain.Stock, 0, len(cfg.Market.Stocks))
	for _, sc := range cfg.Market.Stocks {
		s, err := domain.NewStock(sc.Symbol, sc.Name, sc.Price)
		if err != nil {
			return fmt.Errorf("stock %s: %w", sc.Symbol, err)
		}
		stocks = append(stocks, s)
	}

	b.Seed = cfg.Market.Seed
	if b.Seed == 0 {
		b.Seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(b.Seed, b.Seed^seedMix))

	market, err := engine.NewMarketEngine(stocks, rng,
		engine.WithMaxChange(cfg.Market.MaxChange),
		engine.WithPriceFloor(cfg.Market.PriceFloor),
	)
	if err != nil {
		return err
	}
	b.Market = market
	slog.Info("✅ Market ready", slog.Int("stocks", len(stocks)), slog.Uint64("seed", b.Seed))

	// 2. Ledger
	portfolio, err := domain.NewPortfolio(cfg.Portfolio.InitialBalance)
	if err != nil {
		return err
	}
	svc, err := service.NewPortfolioService(portfolio, market)
	if err != nil {
		return err
	}
	b.Service = svc

	// 3. Storage
	repo, err := OpenRepository(cfg)
	if err != nil {
		return err
	}
	b.Repository = repo
	slog.Info("✅ Storage initialized", slog.String("backend", cfg.Storage.Backend), slog.String("path", cfg.Storage.Path))

	// 4. Feed, alerts, signals
	if cfg.Feed.Enabled {
		b.Hub = feed.NewHub(b.Metrics)
	}
	b.Alerts = service.NewAlertBook()
	var strategies []strategy.Strategy
	if cfg.Signals.Enabled {
		for _, s := range stocks {
			strat, err := strategy.NewSMACrossStrategy(s.Symbol(), cfg.Signals.ShortPeriod, cfg.Signals.LongPeriod)
			if err != nil {
				return err
			}
			strategies = append(strategies, strat)
		}
	}
	b.Watcher = NewWatcher(b.Hub, b.Alerts, strategies)

	// 5. Sequencer
	b.Sequencer = engine.NewSequencer(inboxSize, market, svc, b.Watcher.OnTick)
	b.Sequencer.SetMetrics(b.Metrics)

	return nil
}

// settingsStore is implemented by repositories that keep key-value settings
// next to the session.
type settingsStore interface {
	SaveConfig(key, value string) error
	LoadConfigMap() (map[string]string, error)
}

// OpenRepository returns the session repository selected by cfg.
func OpenRepository(cfg *infra.Config) (domain.SessionRepository, error) {
	switch cfg.Storage.Backend {
	case infra.BackendJSON:
		return storage.NewFileStore(cfg.Storage.Path)
	case infra.BackendSQLite:
		return storage.NewStorage(cfg.Storage.Path)
	case infra.BackendPebble:
		return storage.NewPebbleStore(cfg.Storage.Path)
	default:
		return nil, &domain.ConfigError{Field: "storage.backend", Err: fmt.Errorf("unknown backend %q", cfg.Storage.Backend)}
	}
}

// RestoreSession loads the saved session into the running sequencer.
// It reports false when there was nothing to restore.
func (b *Bootstrap) RestoreSession(ctx context.Context) (bool, error) {
	state, err := b.Repository.LoadSession(ctx)
	if err != nil {
		return false, err
	}
	if state == nil {
		slog.Info("No saved session, starting fresh",
			slog.String("balance", b.Config.Portfolio.InitialBalance.String()))
		return false, nil
	}

	if err := b.Sequencer.Restore(ctx, *state); err != nil {
		return false, fmt.Errorf("restore session: %w", err)
	}

	attrs := []any{
		slog.String("balance", state.Balance.String()),
		slog.Int("holdings", len(state.Items)),
		slog.Int("transactions", len(state.Transactions)),
	}
	if store, ok := b.Repository.(settingsStore); ok {
		if meta, err := store.LoadConfigMap(); err == nil && meta["last_seed"] != "" {
			attrs = append(attrs, slog.String("last_seed", meta["last_seed"]))
		}
	}
	slog.Info("✅ Session restored", attrs...)
	return true, nil
}

// Warmup runs the configured number of ticks so charts start with history.
func (b *Bootstrap) Warmup(ctx context.Context) error {
	for i := 0; i < b.Config.Market.WarmupTicks; i++ {
		if _, err := b.Sequencer.Tick(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SaveSession snapshots the ledger between two jobs and persists it.
func (b *Bootstrap) SaveSession(ctx context.Context) error {
	state, err := b.Sequencer.Snapshot(ctx)
	if err != nil {
		return err
	}
	if err := b.Repository.SaveSession(ctx, &state); err != nil {
		b.Metrics.RecordError()
		return err
	}
	if store, ok := b.Repository.(settingsStore); ok {
		if err := store.SaveConfig("last_seed", strconv.FormatUint(b.Seed, 10)); err != nil {
			slog.Warn("Failed to record seed", slog.Any("error", err))
		}
	}
	slog.Info("💾 Session saved",
		slog.String("balance", state.Balance.String()),
		slog.Int("transactions", len(state.Transactions)))
	return nil
}

// AutoTick advances the market every tick interval until ctx is done.
// A zero interval disables it.
func (b *Bootstrap) AutoTick(ctx context.Context) {
	interval := time.Duration(b.Config.Market.TickIntervalMS) * time.Millisecond
	if interval <= 0 {
		slog.Info("Auto-tick disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := b.Sequencer.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("Tick failed", slog.Any("error", err))
			}
		}
	}
}

// Close releases the repository and disconnects feed clients. Safe to call twice.
func (b *Bootstrap) Close() error {
	if b.Hub != nil {
		b.Hub.Close()
	}
	if b.Repository != nil {
		repo := b.Repository
		b.Repository = nil
		return repo.Close()
	}
	return nil
}
