package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"buybox/internal/client/amazon/storefront"
	"buybox/internal/models"
	"buybox/internal/repository"
)

const defaultSellerCacheTTL = 7 * 24 * time.Hour

// SellerLookup resolves a seller id to a public profile.
type SellerLookup interface {
	LookupSeller(ctx context.Context, sellerID string) (storefront.Profile, error)
}

// SellerIdentityService caches seller display names. Resolution never fails;
// when nothing better is known the name is synthesized from the id.
type SellerIdentityService struct {
	Repo   repository.TrackingRepository
	Lookup SellerLookup
	TTL    time.Duration
	Logger *zap.Logger
	Now    func() time.Time
}

// SellerFeedback is the rating data an offer may already carry.
type SellerFeedback struct {
	Rating *float64
	Count  *int
}

func (s *SellerIdentityService) ResolveSellerName(ctx context.Context, sellerID string, feedback SellerFeedback) string {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return "Unknown seller"
	}
	if s == nil || s.Repo == nil {
		return SynthesizedSellerName(sellerID)
	}
	now := s.now()

	cached, err := s.Repo.GetSellerCache(ctx, sellerID)
	if err != nil {
		s.logger().Warn("seller cache read failed", zap.String("seller_id", sellerID), zap.Error(err))
	}
	if cached != nil && cached.SellerName != "" && now.Sub(cached.LastUpdated) < s.ttl() {
		return cached.SellerName
	}

	entry := &models.SellerCache{
		SellerID:       sellerID,
		SellerName:     SynthesizedSellerName(sellerID),
		FeedbackRating: feedback.Rating,
		FeedbackCount:  feedback.Count,
		Synthesized:    true,
		LastUpdated:    now,
	}
	if s.Lookup != nil {
		profile, err := s.Lookup.LookupSeller(ctx, sellerID)
		switch {
		case err != nil:
			s.logger().Debug("seller lookup failed", zap.String("seller_id", sellerID), zap.Error(err))
		case strings.TrimSpace(profile.Name) != "":
			entry.SellerName = strings.TrimSpace(profile.Name)
			entry.Synthesized = false
			if entry.FeedbackRating == nil {
				entry.FeedbackRating = profile.FeedbackRating
			}
			if entry.FeedbackCount == nil {
				entry.FeedbackCount = profile.FeedbackCount
			}
		}
	}
	if entry.Synthesized && cached != nil && !cached.Synthesized && cached.SellerName != "" {
		// A stale real name is still better than a synthesized one.
		entry.SellerName = cached.SellerName
		entry.Synthesized = false
	}

	if err := s.Repo.UpsertSellerCache(ctx, entry); err != nil {
		s.logger().Warn("seller cache write failed", zap.String("seller_id", sellerID), zap.Error(err))
	}
	return entry.SellerName
}

// SynthesizedSellerName is the deterministic fallback for sellerID.
func SynthesizedSellerName(sellerID string) string {
	id := strings.TrimSpace(sellerID)
	if len(id) > 8 {
		id = id[:8]
	}
	return "Seller " + id
}

func (s *SellerIdentityService) ttl() time.Duration {
	if s.TTL <= 0 {
		return defaultSellerCacheTTL
	}
	return s.TTL
}

func (s *SellerIdentityService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *SellerIdentityService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
