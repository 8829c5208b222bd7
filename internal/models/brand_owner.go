package models

import "time"

type BrandOwner struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	SellerID    string `gorm:"type:varchar(40);not null;uniqueIndex"`
	BrandName   string `gorm:"type:varchar(255);not null"`
	IsExclusive bool   `gorm:"not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (BrandOwner) TableName() string {
	return "brand_owners"
}

// BrandOwnerProduct is one of the brand owner's own listings.
type BrandOwnerProduct struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	BrandOwnerID uint64 `gorm:"not null;uniqueIndex:uq_brand_owner_product,priority:1"`
	ASIN         string `gorm:"type:varchar(20);not null;uniqueIndex:uq_brand_owner_product,priority:2"`
	ProductName  string `gorm:"type:text"`
	Category     string `gorm:"type:varchar(120)"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (BrandOwnerProduct) TableName() string {
	return "brand_owner_products"
}
