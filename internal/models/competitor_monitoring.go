package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CompetitorMonitoring is one comparison sample of a manual pair.
type CompetitorMonitoring struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	ManualCompetitorID uint64    `gorm:"not null;index:idx_cm_pair_sampled,priority:1"`
	SampledAt          time.Time `gorm:"type:timestamptz;not null;index:idx_cm_pair_sampled,priority:2"`

	OurPrice               decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	CompetitorPrice        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PriceDifference        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PriceDifferencePercent decimal.Decimal `gorm:"type:numeric(8,2);not null"`

	OurRank           int
	CompetitorRank    int
	OurRating         float64 `gorm:"type:numeric(3,2)"`
	CompetitorRating  float64 `gorm:"type:numeric(3,2)"`
	OurReviews        int
	CompetitorReviews int

	// Degraded flags record that a lookup failed and zero values were stored.
	OurDegraded        bool `gorm:"not null"`
	CompetitorDegraded bool `gorm:"not null"`
}

func (CompetitorMonitoring) TableName() string {
	return "competitor_monitoring"
}
