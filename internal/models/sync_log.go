package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SyncTypeRegular    = "competitor_pricing"
	SyncTypeIntensive  = "competitor_pricing_intensive"
	SyncTypeCleanup    = "competitor_cleanup"
	SyncTypeBrandOwner = "brand_owner_monitoring"

	SyncStatusSuccess = "success"
	SyncStatusPartial = "partial"
	SyncStatusFailed  = "failed"
	SyncStatusSkipped = "skipped"
)

// SyncLog is the run summary of one scheduled pass.
type SyncLog struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	RunID    string `gorm:"type:varchar(36);not null;uniqueIndex"`
	SyncType string `gorm:"type:varchar(40);not null;index:idx_sync_logs_type_started,priority:1"`
	Status   string `gorm:"type:varchar(20);not null"`

	RecordsSynced int    `gorm:"not null"`
	ErrorCount    int    `gorm:"not null"`
	RateLimited   int    `gorm:"not null"`
	ErrorMessage  string `gorm:"type:text"`

	Details datatypes.JSON `gorm:"type:jsonb"`

	StartedAt   time.Time `gorm:"type:timestamptz;not null;index:idx_sync_logs_type_started,priority:2"`
	CompletedAt time.Time `gorm:"type:timestamptz;not null"`
}

func (SyncLog) TableName() string {
	return "sync_logs"
}
