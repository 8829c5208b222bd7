package gormrepository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"buybox/internal/models"
)

func (s *Store) UpsertBrandOwner(ctx context.Context, item *models.BrandOwner) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.SellerID = strings.TrimSpace(item.SellerID)
	if item.SellerID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "seller_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"brand_name",
			"is_exclusive",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetBrandOwnerBySellerID(ctx context.Context, sellerID string) (*models.BrandOwner, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, nil
	}
	var item models.BrandOwner
	err := s.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListBrandOwners(ctx context.Context) ([]models.BrandOwner, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.BrandOwner
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpsertBrandOwnerProduct(ctx context.Context, item *models.BrandOwnerProduct) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "brand_owner_id"}, {Name: "asin"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"product_name",
			"category",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) ListBrandOwnerProducts(ctx context.Context, brandOwnerID uint64) ([]models.BrandOwnerProduct, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.BrandOwnerProduct
	err := s.db.WithContext(ctx).
		Where("brand_owner_id = ?", brandOwnerID).
		Order("asin ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpsertManualCompetitor re-registering an inactive pair reactivates it.
func (s *Store) UpsertManualCompetitor(ctx context.Context, item *models.ManualCompetitor) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "brand_owner_id"}, {Name: "our_asin"}, {Name: "competitor_asin"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"competitor_brand",
			"competition_level",
			"notes",
			"is_active",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetManualCompetitor(ctx context.Context, id uint64) (*models.ManualCompetitor, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.ManualCompetitor
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListManualCompetitors(ctx context.Context, brandOwnerID uint64, activeOnly bool) ([]models.ManualCompetitor, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Where("brand_owner_id = ?", brandOwnerID)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var items []models.ManualCompetitor
	if err := query.Order("id ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetManualCompetitorActive(ctx context.Context, id uint64, active bool) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.ManualCompetitor{}).
		Where("id = ?", id).
		Update("is_active", active)
	return res.RowsAffected, res.Error
}

func (s *Store) InsertCompetitorMonitoring(ctx context.Context, item *models.CompetitorMonitoring) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListCompetitorMonitoring(ctx context.Context, pairID uint64, limit int) ([]models.CompetitorMonitoring, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.CompetitorMonitoring
	err := s.db.WithContext(ctx).
		Where("manual_competitor_id = ?", pairID).
		Order("sampled_at DESC").
		Limit(normalizeLimit(limit, 100)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetLatestCompetitorMonitoring(ctx context.Context, pairID uint64) (*models.CompetitorMonitoring, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.CompetitorMonitoring
	err := s.db.WithContext(ctx).
		Where("manual_competitor_id = ?", pairID).
		Order("sampled_at DESC").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}
