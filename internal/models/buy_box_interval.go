package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BuyBoxInterval is a span during which one seller held the Buy Box of a
// product. The row with EndedAt == nil is the current holder; LastPrice and
// LastSeenAt are refreshed on every pass that confirms the same holder.
type BuyBoxInterval struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	ASIN       string `gorm:"type:varchar(20);not null;index:idx_bbh_asin_started,priority:1"`
	SellerID   string `gorm:"type:varchar(40);not null;index"`
	SellerName string `gorm:"type:varchar(255)"`

	StartedAt       time.Time           `gorm:"type:timestamptz;not null;index:idx_bbh_asin_started,priority:2"`
	EndedAt         *time.Time          `gorm:"type:timestamptz;index"`
	DurationMinutes *int
	AveragePrice    decimal.NullDecimal `gorm:"type:numeric(12,2)"`

	LastPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	LastSeenAt time.Time       `gorm:"type:timestamptz;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (BuyBoxInterval) TableName() string {
	return "buy_box_history"
}

func (i BuyBoxInterval) IsOpen() bool {
	return i.EndedAt == nil
}
