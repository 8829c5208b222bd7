package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"buybox/internal/models"
	"buybox/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// conn prefers the caller's transaction and falls back to the pool.
func (s *Store) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return s.db.WithContext(ctx)
}

// --- tracked products -------------------------------------------------------

func (s *Store) UpsertTrackedProduct(ctx context.Context, item *models.TrackedProduct) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.ASIN = strings.TrimSpace(item.ASIN)
	if item.ASIN == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asin"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title",
			"marketplace",
			"is_active",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetTrackedProduct(ctx context.Context, asin string) (*models.TrackedProduct, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	asin = strings.TrimSpace(asin)
	if asin == "" {
		return nil, nil
	}
	var item models.TrackedProduct
	err := s.db.WithContext(ctx).Where("asin = ?", asin).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListActiveTrackedProducts(ctx context.Context, limit int) ([]models.TrackedProduct, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TrackedProduct
	err := s.db.WithContext(ctx).
		Model(&models.TrackedProduct{}).
		Where("is_active = ?", true).
		Order("last_checked_at ASC NULLS FIRST").
		Order("id ASC").
		Limit(normalizeLimit(limit, 50)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListHotProducts(ctx context.Context, since time.Time, minObservations int, limit int) ([]repository.HotProduct, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if minObservations <= 0 {
		minObservations = 1
	}
	var rows []repository.HotProduct
	err := s.db.WithContext(ctx).
		Table("competitor_tracking AS ct").
		Select("ct.asin AS asin, COUNT(*) AS observations").
		Joins("JOIN products p ON p.asin = ct.asin AND p.is_active = ?", true).
		Where("ct.observed_at >= ?", since).
		Group("ct.asin").
		Having("COUNT(*) >= ?", minObservations).
		Order("observations DESC").
		Limit(normalizeLimit(limit, 20)).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) MarkProductCheckedTx(ctx context.Context, tx *gorm.DB, asin string, at time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.conn(ctx, tx).
		Model(&models.TrackedProduct{}).
		Where("asin = ?", asin).
		Update("last_checked_at", at).Error
}

// --- offer ledger -----------------------------------------------------------

func (s *Store) InsertOffersTx(ctx context.Context, tx *gorm.DB, items []models.Offer) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return createInBatches(s.conn(ctx, tx), items, 200)
}

func (s *Store) GetLatestWinningOfferTx(ctx context.Context, tx *gorm.DB, asin string, before time.Time) (*models.Offer, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Offer
	err := s.conn(ctx, tx).
		Where("asin = ?", asin).
		Where("is_buy_box_winner = ?", true).
		Where("observed_at < ?", before).
		Order("observed_at DESC").
		Order("id DESC").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOffers(ctx context.Context, params repository.ListOffersParams) ([]models.Offer, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Offer{})
	if params.ASIN != nil && strings.TrimSpace(*params.ASIN) != "" {
		query = query.Where("asin = ?", strings.TrimSpace(*params.ASIN))
	}
	if params.SellerID != nil && strings.TrimSpace(*params.SellerID) != "" {
		query = query.Where("seller_id = ?", strings.TrimSpace(*params.SellerID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("observed_at >= ?", *params.Since)
	}
	var items []models.Offer
	err := query.Order("observed_at DESC").Order("id DESC").
		Limit(normalizeLimit(params.Limit, 200)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListNewCompetitors(ctx context.Context, since time.Time, minAppearances int) ([]repository.NewCompetitorRow, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	if minAppearances <= 0 {
		minAppearances = 1
	}
	var rows []repository.NewCompetitorRow
	err := s.db.WithContext(ctx).
		Table("competitor_tracking AS ct").
		Select(`
			ct.asin AS asin,
			ct.seller_id AS seller_id,
			MAX(ct.seller_name) AS seller_name,
			MIN(ct.observed_at) AS first_seen,
			COUNT(*) AS appearances,
			AVG(ct.price) AS avg_price
		`).
		Where("ct.observed_at >= ?", since).
		Where(`NOT EXISTS (
			SELECT 1 FROM competitor_tracking prior
			WHERE prior.asin = ct.asin AND prior.seller_id = ct.seller_id AND prior.observed_at < ?
		)`, since).
		Group("ct.asin, ct.seller_id").
		Having("COUNT(*) >= ?", minAppearances).
		Order("first_seen ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) DeleteOffersBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("observed_at < ?", before).
		Delete(&models.Offer{})
	return res.RowsAffected, res.Error
}

// --- ownership intervals ----------------------------------------------------

func (s *Store) GetOpenIntervalTx(ctx context.Context, tx *gorm.DB, asin string) (*models.BuyBoxInterval, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.BuyBoxInterval
	err := s.conn(ctx, tx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("asin = ?", asin).
		Where("ended_at IS NULL").
		Order("started_at DESC").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) InsertIntervalTx(ctx context.Context, tx *gorm.DB, item *models.BuyBoxInterval) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Create(item).Error
}

func (s *Store) CloseIntervalTx(ctx context.Context, tx *gorm.DB, id uint64, endedAt time.Time, durationMinutes int, averagePrice decimal.Decimal) error {
	if s == nil || s.db == nil {
		return nil
	}
	res := s.conn(ctx, tx).
		Model(&models.BuyBoxInterval{}).
		Where("id = ?", id).
		Where("ended_at IS NULL").
		Updates(map[string]any{
			"ended_at":         endedAt,
			"duration_minutes": durationMinutes,
			"average_price":    decimal.NewNullDecimal(averagePrice),
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) TouchIntervalTx(ctx context.Context, tx *gorm.DB, id uint64, lastPrice decimal.Decimal, lastSeenAt time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.conn(ctx, tx).
		Model(&models.BuyBoxInterval{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_price":   lastPrice,
			"last_seen_at": lastSeenAt,
			"updated_at":   time.Now().UTC(),
		}).Error
}

func (s *Store) ListOpenIntervals(ctx context.Context, limit int) ([]models.BuyBoxInterval, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.BuyBoxInterval
	err := s.db.WithContext(ctx).
		Where("ended_at IS NULL").
		Order("last_seen_at DESC").
		Limit(normalizeLimit(limit, 200)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListIntervals(ctx context.Context, params repository.ListIntervalsParams) ([]models.BuyBoxInterval, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.BuyBoxInterval{})
	if params.ASIN != nil && strings.TrimSpace(*params.ASIN) != "" {
		query = query.Where("asin = ?", strings.TrimSpace(*params.ASIN))
	}
	if params.SellerID != nil && strings.TrimSpace(*params.SellerID) != "" {
		query = query.Where("seller_id = ?", strings.TrimSpace(*params.SellerID))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("started_at >= ?", *params.Since)
	}
	var items []models.BuyBoxInterval
	err := query.Order("started_at DESC").
		Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteClosedIntervalsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("ended_at IS NOT NULL").
		Where("started_at < ?", before).
		Delete(&models.BuyBoxInterval{})
	return res.RowsAffected, res.Error
}

// --- insights ---------------------------------------------------------------

func (s *Store) InsertInsightTx(ctx context.Context, tx *gorm.DB, item *models.Insight) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if item.Status == "" {
		item.Status = models.InsightStatusPending
	}
	return s.conn(ctx, tx).Create(item).Error
}

func (s *Store) InsertInsight(ctx context.Context, item *models.Insight) error {
	return s.InsertInsightTx(ctx, nil, item)
}

func (s *Store) GetInsight(ctx context.Context, id uint64) (*models.Insight, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Insight
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) HasInsightSince(ctx context.Context, asin, insightType, competitorSellerID string, since time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	var count int64
	query := s.db.WithContext(ctx).
		Model(&models.Insight{}).
		Where("asin = ?", asin).
		Where("insight_type = ?", insightType).
		Where("created_at >= ?", since)
	if competitorSellerID != "" {
		query = query.Where("competitor_seller_id = ?", competitorSellerID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) ListInsights(ctx context.Context, params repository.ListInsightsParams) ([]models.Insight, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Insight{})
	if params.ASIN != nil && strings.TrimSpace(*params.ASIN) != "" {
		query = query.Where("asin = ?", strings.TrimSpace(*params.ASIN))
	}
	if params.Type != nil && strings.TrimSpace(*params.Type) != "" {
		query = query.Where("insight_type = ?", strings.TrimSpace(*params.Type))
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.TrimSpace(*params.Status))
	}
	if params.Priority != nil && strings.TrimSpace(*params.Priority) != "" {
		query = query.Where("priority = ?", strings.TrimSpace(*params.Priority))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	var items []models.Insight
	err := query.Limit(normalizeLimit(params.Limit, 100)).
		Offset(normalizeOffset(params.Offset)).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) UpdateInsightStatus(ctx context.Context, id uint64, status string) error {
	if s == nil || s.db == nil {
		return nil
	}
	res := s.db.WithContext(ctx).
		Model(&models.Insight{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *Store) DeleteDismissedInsightsBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("status = ?", models.InsightStatusDismissed).
		Where("created_at < ?", before).
		Delete(&models.Insight{})
	return res.RowsAffected, res.Error
}

// --- seller cache -----------------------------------------------------------

func (s *Store) GetSellerCache(ctx context.Context, sellerID string) (*models.SellerCache, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SellerCache
	err := s.db.WithContext(ctx).Where("seller_id = ?", sellerID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpsertSellerCache keeps previously known feedback figures when the new
// observation carries none.
func (s *Store) UpsertSellerCache(ctx context.Context, item *models.SellerCache) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.SellerID = strings.TrimSpace(item.SellerID)
	if item.SellerID == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "seller_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"seller_name":     gorm.Expr("EXCLUDED.seller_name"),
			"synthesized":     gorm.Expr("EXCLUDED.synthesized"),
			"feedback_rating": gorm.Expr("COALESCE(EXCLUDED.feedback_rating, sellers_cache.feedback_rating)"),
			"feedback_count":  gorm.Expr("COALESCE(EXCLUDED.feedback_count, sellers_cache.feedback_count)"),
			"last_updated":    gorm.Expr("EXCLUDED.last_updated"),
		}),
	}).Create(item).Error
}

func (s *Store) DeleteSellerCacheBefore(ctx context.Context, before time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("last_updated < ?", before).
		Delete(&models.SellerCache{})
	return res.RowsAffected, res.Error
}

// --- sync logs and settings -------------------------------------------------

func (s *Store) InsertSyncLog(ctx context.Context, item *models.SyncLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListSyncLogs(ctx context.Context, params repository.ListSyncLogsParams) ([]models.SyncLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SyncLog{})
	if params.SyncType != nil && strings.TrimSpace(*params.SyncType) != "" {
		query = query.Where("sync_type = ?", strings.TrimSpace(*params.SyncType))
	}
	var items []models.SyncLog
	if err := query.Order("started_at DESC").Limit(normalizeLimit(params.Limit, 50)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CollectionStats(ctx context.Context, since time.Time) (repository.CollectionStats, error) {
	out := repository.CollectionStats{Since: since}
	if s == nil || s.db == nil {
		return out, nil
	}
	var row struct {
		Offers   int64
		Products int64
	}
	err := s.db.WithContext(ctx).
		Table("competitor_tracking").
		Select("COUNT(*) AS offers, COUNT(DISTINCT asin) AS products").
		Where("observed_at >= ?", since).
		Scan(&row).Error
	if err != nil {
		return out, err
	}
	out.Offers = row.Offers
	out.Products = row.Products

	counts := []struct {
		dest  *int64
		model any
		where func(*gorm.DB) *gorm.DB
	}{
		{&out.Transitions, &models.BuyBoxInterval{}, func(q *gorm.DB) *gorm.DB { return q.Where("ended_at >= ?", since) }},
		{&out.PendingInsights, &models.Insight{}, func(q *gorm.DB) *gorm.DB { return q.Where("status = ?", models.InsightStatusPending) }},
		{&out.CachedSellers, &models.SellerCache{}, func(q *gorm.DB) *gorm.DB { return q }},
		{&out.ActiveProducts, &models.TrackedProduct{}, func(q *gorm.DB) *gorm.DB { return q.Where("is_active = ?", true) }},
		{&out.ActiveManualPair, &models.ManualCompetitor{}, func(q *gorm.DB) *gorm.DB { return q.Where("is_active = ?", true) }},
	}
	for _, c := range counts {
		if err := c.where(s.db.WithContext(ctx).Model(c.model)).Count(c.dest).Error; err != nil {
			return out, err
		}
	}
	return out, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.SystemSetting
	if err := s.db.WithContext(ctx).Order("key ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- helpers ----------------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	switch column {
	case "created_at", "priority", "potential_impact", "confidence_score":
	default:
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := db.CreateInBatches(items[i:end], batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

var _ repository.Repository = (*Store)(nil)
