package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"trade_sim/internal/domain"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const sessionRowID = 1

// Storage is the SQLite-backed session repository.
type Storage struct {
	db *gorm.DB
}

var _ domain.SessionRepository = (*Storage)(nil)

// NewStorage opens (or creates) the SQLite database at dbPath.
// An empty dbPath resolves to the per-user data directory.
func NewStorage(dbPath string) (*Storage, error) {
	if dbPath == "" {
		var err error
		if dbPath, err = getDBPath(); err != nil {
			return nil, fmt.Errorf("failed to resolve DB path: %w", err)
		}
	}

	// Ensure directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Connect to SQLite (Pure Go)
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	return &Storage{db: db}, nil
}

func migrate(db *gorm.DB) error {
	// Auto Migration
	err := db.AutoMigrate(
		&domain.SessionRecord{},
		&domain.HoldingRecord{},
		&domain.TransactionRecord{},
		&domain.StockRecord{},
		&domain.PricePoint{},
		&domain.AppConfig{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// getDBPath resolves the database file path based on OS
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "TradeSim", "data", "trade_sim.db"), nil
}

// Close releases the underlying connection pool.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ======================================================================================
// Session Operations
// ======================================================================================

// SaveSession replaces the stored session with state in one transaction.
func (s *Storage) SaveSession(ctx context.Context, state *domain.SessionState) error {
	if state == nil {
		return &domain.ValidationError{Field: "state", Reason: "cannot be nil"}
	}

	savedAt := state.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{
			&domain.SessionRecord{}, &domain.HoldingRecord{}, &domain.TransactionRecord{},
			&domain.StockRecord{}, &domain.PricePoint{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}

		header := domain.SessionRecord{
			ID:          sessionRowID,
			Balance:     state.Balance,
			RealizedPnL: state.RealizedPnL,
			SavedAt:     savedAt,
		}
		if err := tx.Create(&header).Error; err != nil {
			return err
		}

		if len(state.Items) > 0 {
			holdings := make([]domain.HoldingRecord, 0, len(state.Items))
			for i, item := range state.Items {
				holdings = append(holdings, domain.HoldingRecord{
					Symbol:       item.Symbol,
					Position:     i,
					Quantity:     item.Quantity,
					AveragePrice: item.AveragePrice,
				})
			}
			if err := tx.Create(&holdings).Error; err != nil {
				return err
			}
		}

		if len(state.Transactions) > 0 {
			rows := make([]domain.TransactionRecord, 0, len(state.Transactions))
			for i, t := range state.Transactions {
				row := domain.TransactionRecord{
					ID:            t.ID.String(),
					Position:      i,
					Timestamp:     t.Timestamp,
					Type:          t.Type,
					Symbol:        t.Symbol,
					Quantity:      t.Quantity,
					PricePerShare: t.PricePerShare,
				}
				if t.RealizedPnL != nil {
					row.RealizedPnL.Decimal = *t.RealizedPnL
					row.RealizedPnL.Valid = true
				}
				rows = append(rows, row)
			}
			if err := tx.CreateInBatches(&rows, 500).Error; err != nil {
				return err
			}
		}

		if len(state.MarketData) > 0 {
			stocks := make([]domain.StockRecord, 0, len(state.MarketData))
			var points []domain.PricePoint
			for i, m := range state.MarketData {
				stocks = append(stocks, domain.StockRecord{
					Symbol:   m.Symbol,
					Position: i,
					Name:     m.Name,
					Price:    m.Price,
				})
				for seq, p := range m.PriceHistory {
					points = append(points, domain.PricePoint{Symbol: m.Symbol, Seq: seq, Price: p})
				}
			}
			if err := tx.Create(&stocks).Error; err != nil {
				return err
			}
			if len(points) > 0 {
				if err := tx.CreateInBatches(&points, 1000).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// LoadSession returns the stored session, or (nil, nil) when none was saved.
func (s *Storage) LoadSession(ctx context.Context) (*domain.SessionState, error) {
	db := s.db.WithContext(ctx)

	var header domain.SessionRecord
	err := db.First(&header, sessionRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	state := &domain.SessionState{
		Balance:     header.Balance,
		RealizedPnL: header.RealizedPnL,
		SavedAt:     header.SavedAt,
	}

	var holdings []domain.HoldingRecord
	if err := db.Order("position").Find(&holdings).Error; err != nil {
		return nil, fmt.Errorf("load holdings: %w", err)
	}
	for _, h := range holdings {
		state.Items = append(state.Items, domain.ItemSnapshot{
			Symbol:       h.Symbol,
			Quantity:     h.Quantity,
			AveragePrice: h.AveragePrice,
		})
	}

	var rows []domain.TransactionRecord
	if err := db.Order("position").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	for _, r := range rows {
		id, err := uuid.Parse(r.ID)
		if err != nil {
			return nil, fmt.Errorf("load transactions: bad id %q: %w", r.ID, err)
		}
		snap := domain.TransactionSnapshot{
			ID:            id,
			Timestamp:     r.Timestamp,
			Type:          r.Type,
			Symbol:        r.Symbol,
			Quantity:      r.Quantity,
			PricePerShare: r.PricePerShare,
		}
		if r.RealizedPnL.Valid {
			pnl := r.RealizedPnL.Decimal
			snap.RealizedPnL = &pnl
		}
		state.Transactions = append(state.Transactions, snap)
	}

	var stocks []domain.StockRecord
	if err := db.Order("position").Find(&stocks).Error; err != nil {
		return nil, fmt.Errorf("load stocks: %w", err)
	}
	var points []domain.PricePoint
	if err := db.Order("symbol, seq").Find(&points).Error; err != nil {
		return nil, fmt.Errorf("load price history: %w", err)
	}
	history := make(map[string][]domain.PricePoint)
	for _, p := range points {
		history[p.Symbol] = append(history[p.Symbol], p)
	}
	for _, st := range stocks {
		snap := domain.StockSnapshot{Symbol: st.Symbol, Name: st.Name, Price: st.Price}
		for _, p := range history[st.Symbol] {
			snap.PriceHistory = append(snap.PriceHistory, p.Price)
		}
		state.MarketData = append(state.MarketData, snap)
	}

	return state, nil
}

// ======================================================================================
// Config Operations
// ======================================================================================

// SaveConfig saves a user configuration
func (s *Storage) SaveConfig(key, value string) error {
	config := domain.AppConfig{
		Key:   key,
		Value: value,
	}
	return s.db.Save(&config).Error
}

// LoadConfigMap loads all user configurations as a map
func (s *Storage) LoadConfigMap() (map[string]string, error) {
	var configs []domain.AppConfig
	if err := s.db.Find(&configs).Error; err != nil {
		return nil, err
	}

	result := make(map[string]string)
	for _, cfg := range configs {
		result[cfg.Key] = cfg.Value
	}
	return result, nil
}
