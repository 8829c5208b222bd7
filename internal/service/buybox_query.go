package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"buybox/internal/models"
	"buybox/internal/repository"
)

// BuyBoxQueryService serves the read side: current holders, ownership
// history, the insight ledger and collection statistics.
type BuyBoxQueryService struct {
	Repo repository.Repository
	Now  func() time.Time
}

type BuyBoxStatus struct {
	ASIN    string                 `json:"asin"`
	Product *models.TrackedProduct `json:"product,omitempty"`
	Holder  *models.BuyBoxInterval `json:"holder,omitempty"`
	// HeldForMinutes is the age of the open interval at query time.
	HeldForMinutes int            `json:"held_for_minutes"`
	Offers         []models.Offer `json:"offers"`
}

// Status returns the current holder and the most recent offer batch of asin.
func (s *BuyBoxQueryService) Status(ctx context.Context, asin string) (*BuyBoxStatus, error) {
	asin = strings.TrimSpace(asin)
	if asin == "" {
		return nil, &ValidationError{Field: "asin", Reason: "required"}
	}
	product, err := s.Repo.GetTrackedProduct(ctx, asin)
	if err != nil {
		return nil, &StorageError{Op: "load product", Err: err}
	}
	holder, err := s.Repo.GetOpenIntervalTx(ctx, nil, asin)
	if err != nil {
		return nil, &StorageError{Op: "load holder", Err: err}
	}
	if product == nil && holder == nil {
		return nil, &NotFoundError{Entity: "product", Key: asin}
	}
	offers, err := s.Repo.ListOffers(ctx, repository.ListOffersParams{ASIN: &asin, Limit: 50})
	if err != nil {
		return nil, &StorageError{Op: "list offers", Err: err}
	}
	out := &BuyBoxStatus{ASIN: asin, Product: product, Holder: holder, Offers: latestBatch(offers)}
	if holder != nil {
		out.HeldForMinutes = int(s.now().Sub(holder.StartedAt) / time.Minute)
	}
	return out, nil
}

// latestBatch keeps the offers sharing the newest ObservedAt. offers must be
// ordered newest first.
func latestBatch(offers []models.Offer) []models.Offer {
	if len(offers) == 0 {
		return []models.Offer{}
	}
	newest := offers[0].ObservedAt
	end := 0
	for end < len(offers) && offers[end].ObservedAt.Equal(newest) {
		end++
	}
	return offers[:end]
}

func (s *BuyBoxQueryService) Holders(ctx context.Context, limit int) ([]models.BuyBoxInterval, error) {
	items, err := s.Repo.ListOpenIntervals(ctx, limit)
	if err != nil {
		return nil, &StorageError{Op: "list holders", Err: err}
	}
	return items, nil
}

func (s *BuyBoxQueryService) History(ctx context.Context, params repository.ListIntervalsParams) ([]models.BuyBoxInterval, error) {
	items, err := s.Repo.ListIntervals(ctx, params)
	if err != nil {
		return nil, &StorageError{Op: "list history", Err: err}
	}
	return items, nil
}

func (s *BuyBoxQueryService) Offers(ctx context.Context, params repository.ListOffersParams) ([]models.Offer, error) {
	items, err := s.Repo.ListOffers(ctx, params)
	if err != nil {
		return nil, &StorageError{Op: "list offers", Err: err}
	}
	return items, nil
}

func (s *BuyBoxQueryService) Insights(ctx context.Context, params repository.ListInsightsParams) ([]models.Insight, error) {
	items, err := s.Repo.ListInsights(ctx, params)
	if err != nil {
		return nil, &StorageError{Op: "list insights", Err: err}
	}
	return items, nil
}

// SetInsightStatus is the operator action that applies or dismisses an
// insight.
func (s *BuyBoxQueryService) SetInsightStatus(ctx context.Context, id uint64, status string) (*models.Insight, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !models.ValidInsightStatus(status) {
		return nil, &ValidationError{Field: "status", Reason: "must be pending, applied or dismissed"}
	}
	item, err := s.Repo.GetInsight(ctx, id)
	if err != nil {
		return nil, &StorageError{Op: "load insight", Err: err}
	}
	if item == nil {
		return nil, &NotFoundError{Entity: "insight", Key: strconv.FormatUint(id, 10)}
	}
	if err := s.Repo.UpdateInsightStatus(ctx, id, status); err != nil {
		return nil, &StorageError{Op: "update insight", Err: err}
	}
	item.Status = status
	return item, nil
}

func (s *BuyBoxQueryService) Stats(ctx context.Context, window time.Duration) (repository.CollectionStats, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	stats, err := s.Repo.CollectionStats(ctx, s.now().Add(-window))
	if err != nil {
		return repository.CollectionStats{}, &StorageError{Op: "collection stats", Err: err}
	}
	return stats, nil
}

func (s *BuyBoxQueryService) SyncLogs(ctx context.Context, params repository.ListSyncLogsParams) ([]models.SyncLog, error) {
	items, err := s.Repo.ListSyncLogs(ctx, params)
	if err != nil {
		return nil, &StorageError{Op: "list sync logs", Err: err}
	}
	return items, nil
}

func (s *BuyBoxQueryService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
