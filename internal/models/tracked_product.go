package models

import "time"

// TrackedProduct is a catalog item whose competitive offers are collected on
// every regular pass.
type TrackedProduct struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	ASIN        string `gorm:"type:varchar(20);not null;uniqueIndex"`
	Title       string `gorm:"type:text"`
	Marketplace string `gorm:"type:varchar(30);not null"`
	IsActive    bool   `gorm:"not null;index"`

	LastCheckedAt *time.Time `gorm:"type:timestamptz;index"`
	CreatedAt     time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (TrackedProduct) TableName() string {
	return "products"
}
