package db

import (
	"buybox/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	if err := db.Gorm.AutoMigrate(
		&models.TrackedProduct{},
		&models.Offer{},
		&models.BuyBoxInterval{},
		&models.Insight{},
		&models.SellerCache{},
		&models.BrandOwner{},
		&models.BrandOwnerProduct{},
		&models.ManualCompetitor{},
		&models.CompetitorMonitoring{},
		&models.SyncLog{},
		&models.SystemSetting{},
	); err != nil {
		return err
	}

	// One open ownership interval per product.
	return db.Gorm.Exec(
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_buy_box_history_open ON buy_box_history (asin) WHERE ended_at IS NULL",
	).Error
}
