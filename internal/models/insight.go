package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	InsightTypeBuyBoxChange   = "buy_box_change"
	InsightTypeNewCompetitor  = "new_competitor"
	InsightTypeManualPriceGap = "manual_competitor_price_gap"

	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"

	InsightStatusPending   = "pending"
	InsightStatusApplied   = "applied"
	InsightStatusDismissed = "dismissed"

	ActionWonBuyBox     = "won_buy_box"
	ActionLoweredPrice  = "lowered_price"
	ActionNewCompetitor = "new_competitor"
)

type Insight struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	ASIN        string `gorm:"type:varchar(20);not null;index"`
	InsightType string `gorm:"type:varchar(40);not null;index"`
	Priority    string `gorm:"type:varchar(10);not null;index"`

	Title          string `gorm:"type:varchar(255);not null"`
	Description    string `gorm:"type:text"`
	Recommendation string `gorm:"type:text"`

	CompetitorName     string `gorm:"type:varchar(255)"`
	CompetitorSellerID string `gorm:"type:varchar(40);index"`
	CompetitorAction   string `gorm:"type:varchar(30)"`

	SupportingData  datatypes.JSON  `gorm:"type:jsonb"`
	ConfidenceScore float64         `gorm:"type:numeric(4,3);not null"`
	PotentialImpact decimal.Decimal `gorm:"type:numeric(14,2);not null"`

	Status    string    `gorm:"type:varchar(20);not null;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Insight) TableName() string {
	return "ai_insights"
}

func ValidInsightStatus(status string) bool {
	switch status {
	case InsightStatusPending, InsightStatusApplied, InsightStatusDismissed:
		return true
	default:
		return false
	}
}
