package models

import "time"

// SellerCache maps an opaque seller id to a display name. Entries older than
// the cache TTL are refreshed on the next lookup.
type SellerCache struct {
	SellerID   string `gorm:"primaryKey;type:varchar(40)"`
	SellerName string `gorm:"type:varchar(255);not null"`

	FeedbackRating *float64 `gorm:"type:numeric(5,2)"`
	FeedbackCount  *int

	// Synthesized marks names derived from the id because no lookup succeeded.
	Synthesized bool      `gorm:"not null"`
	LastUpdated time.Time `gorm:"type:timestamptz;not null;index"`
}

func (SellerCache) TableName() string {
	return "sellers_cache"
}
