package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Persistence rows for the SQLite session repository. Decimals are stored as
// text so no precision is lost.

// SessionRecord is the single account header row (ID is always 1).
type SessionRecord struct {
	ID          uint            `gorm:"primaryKey"`
	Balance     decimal.Decimal `gorm:"type:text;not null"`
	RealizedPnL decimal.Decimal `gorm:"type:text;not null"`
	SavedAt     time.Time
	UpdatedAt   time.Time
}

func (SessionRecord) TableName() string { return "session" }

// HoldingRecord is one portfolio item; Position keeps insertion order.
type HoldingRecord struct {
	Symbol       string          `gorm:"primaryKey"`
	Position     int             `gorm:"index"`
	Quantity     int             `gorm:"not null"`
	AveragePrice decimal.Decimal `gorm:"type:text;not null"`
}

func (HoldingRecord) TableName() string { return "holdings" }

// TransactionRecord is one executed trade in chronological Position order.
type TransactionRecord struct {
	ID            string              `gorm:"primaryKey"`
	Position      int                 `gorm:"index"`
	Timestamp     time.Time           `gorm:"not null"`
	Type          string              `gorm:"not null"`
	Symbol        string              `gorm:"index;not null"`
	Quantity      int                 `gorm:"not null"`
	PricePerShare decimal.Decimal     `gorm:"type:text;not null"`
	RealizedPnL   decimal.NullDecimal `gorm:"type:text"`
}

func (TransactionRecord) TableName() string { return "transactions" }

// StockRecord is one instrument of the saved market.
type StockRecord struct {
	Symbol   string          `gorm:"primaryKey"`
	Position int             `gorm:"index"`
	Name     string          `gorm:"not null"`
	Price    decimal.Decimal `gorm:"type:text;not null"`
}

func (StockRecord) TableName() string { return "stocks" }

// PricePoint is one entry of a stock's price history.
type PricePoint struct {
	ID     uint            `gorm:"primaryKey"`
	Symbol string          `gorm:"index:idx_symbol_seq,priority:1;not null"`
	Seq    int             `gorm:"index:idx_symbol_seq,priority:2"`
	Price  decimal.Decimal `gorm:"type:text;not null"`
}

func (PricePoint) TableName() string { return "price_points" }

// AppConfig represents user-specific configuration (Key-Value)
type AppConfig struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}
