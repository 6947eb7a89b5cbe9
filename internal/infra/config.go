package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"trade_sim/internal/domain"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "configs/config.yaml"

	BackendSQLite = "sqlite"
	BackendJSON   = "json"
	BackendPebble = "pebble"
)

// StockConfig describes one instrument of the simulated universe.
type StockConfig struct {
	Symbol string          `yaml:"symbol"`
	Name   string          `yaml:"name"`
	Price  decimal.Decimal `yaml:"price"`
}

// Config holds every setting of the simulator.
// LoadConfig로 로드된 후에 환경 변수를 통해 일부 값을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Market struct {
		// Seed 0 picks a time-based seed at startup.
		Seed           uint64          `yaml:"seed"`
		MaxChange      decimal.Decimal `yaml:"max_change"`
		PriceFloor     decimal.Decimal `yaml:"price_floor"`
		TickIntervalMS int             `yaml:"tick_interval_ms"`
		WarmupTicks    int             `yaml:"warmup_ticks"`
		Stocks         []StockConfig   `yaml:"stocks"`
	} `yaml:"market"`

	Signals struct {
		Enabled     bool `yaml:"enabled"`
		ShortPeriod int  `yaml:"short_period"`
		LongPeriod  int  `yaml:"long_period"`
	} `yaml:"signals"`

	Portfolio struct {
		InitialBalance decimal.Decimal `yaml:"initial_balance"`
	} `yaml:"portfolio"`

	Storage struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
	} `yaml:"storage"`

	Feed struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"feed"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultStocks is the universe used when the config lists none.
func DefaultStocks() []StockConfig {
	return []StockConfig{
		{Symbol: "AAPL", Name: "Apple Inc.", Price: decimal.NewFromInt(150)},
		{Symbol: "TSLA", Name: "Tesla, Inc.", Price: decimal.NewFromInt(220)},
		{Symbol: "MSFT", Name: "Microsoft Corporation", Price: decimal.NewFromInt(310)},
		{Symbol: "GOOGL", Name: "Alphabet Inc.", Price: decimal.NewFromInt(280)},
		{Symbol: "PLTR", Name: "Palantir Technologies", Price: decimal.NewFromInt(140)},
		{Symbol: "BTCUSD", Name: "Bitcoin", Price: decimal.NewFromInt(96430)},
		{Symbol: "NFLX", Name: "Netflix, Inc.", Price: decimal.NewFromInt(88)},
	}
}

// DefaultConfig returns a configuration that passes Validate.
func DefaultConfig() *Config {
	var cfg Config
	cfg.App.Name = "trade_sim"
	cfg.App.Version = "0.1.0"
	cfg.Market.MaxChange = decimal.RequireFromString("0.02")
	cfg.Market.PriceFloor = decimal.RequireFromString("0.01")
	cfg.Market.TickIntervalMS = 1000
	cfg.Market.WarmupTicks = 20
	cfg.Market.Stocks = DefaultStocks()
	cfg.Signals.Enabled = true
	cfg.Signals.ShortPeriod = 5
	cfg.Signals.LongPeriod = 20
	cfg.Portfolio.InitialBalance = decimal.NewFromInt(10000)
	cfg.Storage.Backend = BackendSQLite
	cfg.Storage.Path = "data/trade_sim.db"
	cfg.Feed.Addr = "127.0.0.1:8090"
	cfg.Logging.Level = "info"
	cfg.Logging.Dir = "logs"
	return &cfg
}

// LoadConfig reads the YAML file at path over the defaults.
// A missing file is reported as domain.ErrConfigNotFound.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, domain.ErrConfigNotFound)
		}
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.Market.Stocks = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(cfg.Market.Stocks) == 0 {
		cfg.Market.Stocks = DefaultStocks()
	}

	// 환경 변수 오버라이드 지원
	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadDefaultConfig is the fallback when no config file exists: the
// built-in defaults with environment overrides applied.
func LoadDefaultConfig() (*Config, error) {
	cfg := DefaultConfig()
	if err := overrideWithEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	// Market
	if !c.Market.MaxChange.IsPositive() || c.Market.MaxChange.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return configErr("market.max_change", "must be in (0, 1), got %s", c.Market.MaxChange)
	}
	if !c.Market.PriceFloor.IsPositive() {
		return configErr("market.price_floor", "must be positive, got %s", c.Market.PriceFloor)
	}
	if c.Market.TickIntervalMS < 0 {
		return configErr("market.tick_interval_ms", "cannot be negative, got %d", c.Market.TickIntervalMS)
	}
	if c.Market.WarmupTicks < 0 {
		return configErr("market.warmup_ticks", "cannot be negative, got %d", c.Market.WarmupTicks)
	}
	seen := make(map[string]struct{}, len(c.Market.Stocks))
	for i, s := range c.Market.Stocks {
		field := fmt.Sprintf("market.stocks[%d]", i)
		sym := domain.NormalizeSymbol(s.Symbol)
		if sym == "" {
			return configErr(field, "symbol is required")
		}
		if _, dup := seen[sym]; dup {
			return configErr(field, "duplicate symbol %s", sym)
		}
		seen[sym] = struct{}{}
		if !s.Price.IsPositive() {
			return configErr(field, "price must be positive, got %s", s.Price)
		}
	}

	// Signals
	if c.Signals.Enabled && (c.Signals.ShortPeriod <= 0 || c.Signals.ShortPeriod >= c.Signals.LongPeriod) {
		return configErr("signals", "need 0 < short_period (%d) < long_period (%d)", c.Signals.ShortPeriod, c.Signals.LongPeriod)
	}

	// Portfolio
	if c.Portfolio.InitialBalance.IsNegative() {
		return configErr("portfolio.initial_balance", "cannot be negative, got %s", c.Portfolio.InitialBalance)
	}

	// Storage
	switch c.Storage.Backend {
	case BackendSQLite, BackendJSON, BackendPebble:
	default:
		return configErr("storage.backend", "unknown backend %q", c.Storage.Backend)
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		return configErr("storage.path", "is required")
	}

	// Feed
	if c.Feed.Enabled && c.Feed.Addr == "" {
		return configErr("feed.addr", "is required when the feed is enabled")
	}

	// Logging
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return configErr("logging.level", "unknown level %q", c.Logging.Level)
	}

	return nil
}

func configErr(field, format string, args ...any) error {
	return &domain.ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

// ConfigPath returns TRADESIM_CONFIG when set, else DefaultConfigPath.
// LoadDotEnv는 .env 파일(path가 비어 있으면 현재 디렉터리)을 환경 변수로 읽습니다.
// 이미 설정된 변수는 덮어쓰지 않으며, 파일이 없으면 무시합니다.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func ConfigPath() string {
	if p := os.Getenv("TRADESIM_CONFIG"); p != "" {
		return p
	}
	return DefaultConfigPath
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	if path := os.Getenv("TRADESIM_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if addr := os.Getenv("TRADESIM_FEED_ADDR"); addr != "" {
		cfg.Feed.Addr = addr
		cfg.Feed.Enabled = true
	}
	if level := os.Getenv("TRADESIM_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = strings.ToLower(level)
	}
	if raw := os.Getenv("TRADESIM_SEED"); raw != "" {
		seed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return &domain.ConfigError{Field: "TRADESIM_SEED", Err: err}
		}
		cfg.Market.Seed = seed
	}
	return nil
}
