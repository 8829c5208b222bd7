package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"buybox/internal/models"
)

// TrackingRepository holds the offer ledger, the ownership intervals, the
// insight ledger and the seller-name cache. Methods with a Tx suffix run on
// the transaction handed out by InTx.
type TrackingRepository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	UpsertTrackedProduct(ctx context.Context, item *models.TrackedProduct) error
	GetTrackedProduct(ctx context.Context, asin string) (*models.TrackedProduct, error)
	ListActiveTrackedProducts(ctx context.Context, limit int) ([]models.TrackedProduct, error)
	ListHotProducts(ctx context.Context, since time.Time, minObservations int, limit int) ([]HotProduct, error)
	MarkProductCheckedTx(ctx context.Context, tx *gorm.DB, asin string, at time.Time) error

	InsertOffersTx(ctx context.Context, tx *gorm.DB, items []models.Offer) error
	GetLatestWinningOfferTx(ctx context.Context, tx *gorm.DB, asin string, before time.Time) (*models.Offer, error)
	ListOffers(ctx context.Context, params ListOffersParams) ([]models.Offer, error)
	ListNewCompetitors(ctx context.Context, since time.Time, minAppearances int) ([]NewCompetitorRow, error)
	DeleteOffersBefore(ctx context.Context, before time.Time) (int64, error)

	GetOpenIntervalTx(ctx context.Context, tx *gorm.DB, asin string) (*models.BuyBoxInterval, error)
	InsertIntervalTx(ctx context.Context, tx *gorm.DB, item *models.BuyBoxInterval) error
	CloseIntervalTx(ctx context.Context, tx *gorm.DB, id uint64, endedAt time.Time, durationMinutes int, averagePrice decimal.Decimal) error
	TouchIntervalTx(ctx context.Context, tx *gorm.DB, id uint64, lastPrice decimal.Decimal, lastSeenAt time.Time) error
	ListOpenIntervals(ctx context.Context, limit int) ([]models.BuyBoxInterval, error)
	ListIntervals(ctx context.Context, params ListIntervalsParams) ([]models.BuyBoxInterval, error)
	DeleteClosedIntervalsBefore(ctx context.Context, before time.Time) (int64, error)

	InsertInsightTx(ctx context.Context, tx *gorm.DB, item *models.Insight) error
	InsertInsight(ctx context.Context, item *models.Insight) error
	GetInsight(ctx context.Context, id uint64) (*models.Insight, error)
	HasInsightSince(ctx context.Context, asin, insightType, competitorSellerID string, since time.Time) (bool, error)
	ListInsights(ctx context.Context, params ListInsightsParams) ([]models.Insight, error)
	UpdateInsightStatus(ctx context.Context, id uint64, status string) error
	DeleteDismissedInsightsBefore(ctx context.Context, before time.Time) (int64, error)

	GetSellerCache(ctx context.Context, sellerID string) (*models.SellerCache, error)
	UpsertSellerCache(ctx context.Context, item *models.SellerCache) error
	DeleteSellerCacheBefore(ctx context.Context, before time.Time) (int64, error)
}

// RegistryRepository holds brand owners, their manual competitor pairs and
// the monitoring samples of those pairs.
type RegistryRepository interface {
	UpsertBrandOwner(ctx context.Context, item *models.BrandOwner) error
	GetBrandOwnerBySellerID(ctx context.Context, sellerID string) (*models.BrandOwner, error)
	ListBrandOwners(ctx context.Context) ([]models.BrandOwner, error)
	UpsertBrandOwnerProduct(ctx context.Context, item *models.BrandOwnerProduct) error
	ListBrandOwnerProducts(ctx context.Context, brandOwnerID uint64) ([]models.BrandOwnerProduct, error)

	UpsertManualCompetitor(ctx context.Context, item *models.ManualCompetitor) error
	GetManualCompetitor(ctx context.Context, id uint64) (*models.ManualCompetitor, error)
	ListManualCompetitors(ctx context.Context, brandOwnerID uint64, activeOnly bool) ([]models.ManualCompetitor, error)
	SetManualCompetitorActive(ctx context.Context, id uint64, active bool) (int64, error)

	InsertCompetitorMonitoring(ctx context.Context, item *models.CompetitorMonitoring) error
	ListCompetitorMonitoring(ctx context.Context, pairID uint64, limit int) ([]models.CompetitorMonitoring, error)
	GetLatestCompetitorMonitoring(ctx context.Context, pairID uint64) (*models.CompetitorMonitoring, error)
}

// Repository is everything the tracker process needs from storage.
type Repository interface {
	TrackingRepository
	RegistryRepository

	InsertSyncLog(ctx context.Context, item *models.SyncLog) error
	ListSyncLogs(ctx context.Context, params ListSyncLogsParams) ([]models.SyncLog, error)
	CollectionStats(ctx context.Context, since time.Time) (CollectionStats, error)

	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context) ([]models.SystemSetting, error)
}

type ListOffersParams struct {
	ASIN     *string
	SellerID *string
	Since    *time.Time
	Limit    int
	Offset   int
}

type ListIntervalsParams struct {
	ASIN     *string
	SellerID *string
	Since    *time.Time
	Limit    int
	Offset   int
}

type ListInsightsParams struct {
	ASIN     *string
	Type     *string
	Status   *string
	Priority *string
	Since    *time.Time
	Limit    int
	Offset   int
	OrderBy  string
	Asc      *bool
}

type ListSyncLogsParams struct {
	SyncType *string
	Limit    int
}

type HotProduct struct {
	ASIN         string `json:"asin"`
	Observations int64  `json:"observations"`
}

// NewCompetitorRow is a seller first seen on a product inside the lookup window.
type NewCompetitorRow struct {
	ASIN        string          `json:"asin"`
	SellerID    string          `json:"seller_id"`
	SellerName  string          `json:"seller_name"`
	FirstSeen   time.Time       `json:"first_seen"`
	Appearances int64           `json:"appearances"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
}

type CollectionStats struct {
	Since            time.Time `json:"since"`
	Offers           int64     `json:"offers"`
	Products         int64     `json:"products"`
	Transitions      int64     `json:"transitions"`
	PendingInsights  int64     `json:"pending_insights"`
	CachedSellers    int64     `json:"cached_sellers"`
	ActiveProducts   int64     `json:"active_products"`
	ActiveManualPair int64     `json:"active_manual_pairs"`
}
