package models

import "time"

const (
	CompetitionDirect   = "direct"
	CompetitionIndirect = "indirect"
)

// ManualCompetitor pairs one of the brand owner's ASINs with a competitor
// ASIN the owner chose to watch. Pairs are deactivated, never deleted.
type ManualCompetitor struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	BrandOwnerID   uint64 `gorm:"not null;uniqueIndex:uq_manual_pair,priority:1"`
	OurASIN        string `gorm:"type:varchar(20);not null;uniqueIndex:uq_manual_pair,priority:2"`
	CompetitorASIN string `gorm:"type:varchar(20);not null;uniqueIndex:uq_manual_pair,priority:3"`

	CompetitorBrand  string `gorm:"type:varchar(255)"`
	CompetitionLevel string `gorm:"type:varchar(20);not null"`
	Notes            string `gorm:"type:text"`
	IsActive         bool   `gorm:"not null;index"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (ManualCompetitor) TableName() string {
	return "manual_competitors"
}
