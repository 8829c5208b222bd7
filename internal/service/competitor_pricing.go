package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"buybox/internal/client/amazon/spapi"
	"buybox/internal/insight"
	"buybox/internal/models"
	"buybox/internal/notify"
	"buybox/internal/repository"
	"buybox/internal/tracker"
)

const newCompetitorDedupWindow = 24 * time.Hour

// OffersFetcher is the pricing capability the collector depends on.
type OffersFetcher interface {
	FetchCompetitiveOffers(ctx context.Context, asin string) ([]spapi.Offer, error)
}

// CompetitorPricingService runs one product's collection: fetch offers,
// record them, advance the Buy Box tracker and emit the transition insight.
type CompetitorPricingService struct {
	Repo      repository.Repository
	Offers    OffersFetcher
	Sellers   *SellerIdentityService
	Tracker   *tracker.Tracker
	Insights  *insight.Generator
	Publisher notify.Publisher
	Logger    *zap.Logger
	Now       func() time.Time

	Marketplace      string
	NewCompetitorMin int

	inflight sync.Map
}

type CollectResult struct {
	ASIN    string                   `json:"asin"`
	Offers  int                      `json:"offers"`
	Winner  string                   `json:"winner,omitempty"`
	Event   *tracker.TransitionEvent `json:"event,omitempty"`
	Insight *models.Insight          `json:"insight,omitempty"`
}

// CollectProduct returns fetch errors unchanged so callers can match the
// spapi sentinels. A product without listings is recorded as an empty pass.
// Only one collection per ASIN runs at a time; a second caller gets
// ErrCollectInProgress.
func (s *CompetitorPricingService) CollectProduct(ctx context.Context, asin string) (CollectResult, error) {
	asin = strings.TrimSpace(asin)
	res := CollectResult{ASIN: asin}
	if s == nil || s.Repo == nil || s.Offers == nil {
		return res, errors.New("competitor pricing service not configured")
	}
	if _, busy := s.inflight.LoadOrStore(asin, struct{}{}); busy {
		return res, ErrCollectInProgress
	}
	defer s.inflight.Delete(asin)

	fetched, err := s.Offers.FetchCompetitiveOffers(ctx, asin)
	if errors.Is(err, spapi.ErrNotFound) {
		fetched, err = nil, nil
	}
	if err != nil {
		return res, err
	}

	observedAt := s.now()
	offers := s.buildOffers(ctx, asin, fetched, observedAt)
	res.Offers = len(offers)
	if w := tracker.Winner(offers); w != nil {
		res.Winner = w.SellerID
	}

	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Repo.InsertOffersTx(ctx, tx, offers); err != nil {
			return err
		}
		ev, err := s.Tracker.Apply(ctx, tx, asin, offers, observedAt)
		if err != nil {
			return err
		}
		if ev != nil && s.Insights != nil {
			item := s.Insights.FromTransition(*ev)
			if err := s.Repo.InsertInsightTx(ctx, tx, &item); err != nil {
				return err
			}
			res.Insight = &item
		}
		res.Event = ev
		return s.Repo.MarkProductCheckedTx(ctx, tx, asin, observedAt)
	})
	if err != nil {
		return CollectResult{ASIN: asin}, &StorageError{Op: "record offers for " + asin, Err: err}
	}

	if res.Event != nil {
		s.logger().Info("buy box changed",
			zap.String("asin", asin),
			zap.String("from", res.Event.Previous.SellerID),
			zap.String("to", res.Event.New.SellerID),
			zap.String("price_difference", res.Event.PriceDifference.String()),
		)
		s.publish(ctx, notify.Event{
			Type:     notify.EventBuyBoxChange,
			ASIN:     asin,
			Priority: models.PriorityHigh,
			Message:  insightTitle(res.Insight),
			Payload:  res.Event,
			At:       observedAt,
		})
	}
	return res, nil
}

// buildOffers resolves seller names and keeps at most one winner per batch.
func (s *CompetitorPricingService) buildOffers(ctx context.Context, asin string, fetched []spapi.Offer, observedAt time.Time) []models.Offer {
	out := make([]models.Offer, 0, len(fetched))
	winnerSeen := false
	var winnerPrice decimal.Decimal
	for _, f := range fetched {
		isWinner := f.IsBuyBoxWinner && !winnerSeen
		if isWinner {
			winnerSeen = true
			winnerPrice = f.Price
		}
		out = append(out, models.Offer{
			ASIN:                     asin,
			SellerID:                 f.SellerID,
			SellerName:               s.Sellers.ResolveSellerName(ctx, f.SellerID, SellerFeedback{Rating: f.FeedbackRating, Count: f.FeedbackCount}),
			Price:                    f.Price,
			ShippingPrice:            f.ShippingPrice,
			IsBuyBoxWinner:           isWinner,
			IsFulfilledByMarketplace: f.IsFulfilledByAmazon,
			FeedbackRating:           f.FeedbackRating,
			FeedbackCount:            f.FeedbackCount,
			ObservedAt:               observedAt,
		})
	}
	if winnerSeen {
		for i := range out {
			out[i].PriceDifference = out[i].Price.Sub(winnerPrice)
		}
	}
	return out
}

// DetectNewCompetitors creates one insight per seller first seen on a
// product since the given time, at most once per 24 hours per pair.
func (s *CompetitorPricingService) DetectNewCompetitors(ctx context.Context, since time.Time) (int, error) {
	if s == nil || s.Repo == nil || s.Insights == nil {
		return 0, nil
	}
	minAppearances := s.NewCompetitorMin
	if minAppearances <= 0 {
		minAppearances = 3
	}
	rows, err := s.Repo.ListNewCompetitors(ctx, since, minAppearances)
	if err != nil {
		return 0, err
	}
	now := s.now()
	created := 0
	for _, row := range rows {
		if s.Insights.IsOurs(row.SellerID) {
			continue
		}
		seen, err := s.Repo.HasInsightSince(ctx, row.ASIN, models.InsightTypeNewCompetitor, row.SellerID, now.Add(-newCompetitorDedupWindow))
		if err != nil {
			return created, err
		}
		if seen {
			continue
		}
		item := s.Insights.FromNewCompetitor(row)
		item.CreatedAt = now
		if err := s.Repo.InsertInsight(ctx, &item); err != nil {
			return created, err
		}
		created++
		s.publish(ctx, notify.Event{
			Type:     notify.EventInsight,
			ASIN:     row.ASIN,
			Priority: item.Priority,
			Message:  item.Title,
			Payload:  item,
			At:       now,
		})
	}
	return created, nil
}

// TrackProduct adds or reactivates asin in the regular collection set.
func (s *CompetitorPricingService) TrackProduct(ctx context.Context, asin, title string, active bool) (*models.TrackedProduct, error) {
	asin = strings.TrimSpace(asin)
	if asin == "" {
		return nil, &ValidationError{Field: "asin", Reason: "required"}
	}
	item := &models.TrackedProduct{
		ASIN:        asin,
		Title:       strings.TrimSpace(title),
		Marketplace: s.Marketplace,
		IsActive:    active,
	}
	if item.Marketplace == "" {
		item.Marketplace = "amazon"
	}
	if err := s.Repo.UpsertTrackedProduct(ctx, item); err != nil {
		return nil, &StorageError{Op: "track product " + asin, Err: err}
	}
	return item, nil
}

func (s *CompetitorPricingService) publish(ctx context.Context, ev notify.Event) {
	if s.Publisher == nil {
		return
	}
	if err := s.Publisher.Publish(ctx, ev); err != nil {
		s.logger().Warn("publish failed", zap.String("type", ev.Type), zap.String("asin", ev.ASIN), zap.Error(err))
	}
}

func (s *CompetitorPricingService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *CompetitorPricingService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func insightTitle(item *models.Insight) string {
	if item == nil {
		return ""
	}
	return item.Title
}
