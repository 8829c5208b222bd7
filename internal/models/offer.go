package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Offer is one seller's offer for a product as seen in a single collection
// pass. Rows are append-only.
type Offer struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	ASIN       string `gorm:"type:varchar(20);not null;index:idx_offer_asin_observed,priority:1"`
	SellerID   string `gorm:"type:varchar(40);not null;index"`
	SellerName string `gorm:"type:varchar(255)"`

	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	ShippingPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	// PriceDifference is Price minus the winning offer's price in the same pass.
	PriceDifference decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	IsBuyBoxWinner           bool `gorm:"not null;index"`
	IsFulfilledByMarketplace bool `gorm:"not null"`

	FeedbackRating *float64 `gorm:"type:numeric(5,2)"`
	FeedbackCount  *int

	ObservedAt time.Time `gorm:"type:timestamptz;not null;index:idx_offer_asin_observed,priority:2"`
}

func (Offer) TableName() string {
	return "competitor_tracking"
}

func (o Offer) LandedPrice() decimal.Decimal {
	return o.Price.Add(o.ShippingPrice)
}
