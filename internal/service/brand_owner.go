package service

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"buybox/internal/client/amazon/spapi"
	"buybox/internal/insight"
	"buybox/internal/models"
	"buybox/internal/notify"
	"buybox/internal/repository"
	"buybox/internal/tracker"
)

const (
	defaultBrandOwnerBatchSize  = 5
	defaultBrandOwnerBatchPause = 2 * time.Second
	defaultBrandOwnerBackoff    = 30 * time.Second
)

// DetailsFetcher is the catalog capability used for manual comparisons.
type DetailsFetcher interface {
	FetchProductDetails(ctx context.Context, asin string) (spapi.ProductDetails, error)
}

// BrandOwnerService is the manual competitor registry: brand owners, the
// competitor ASINs they chose to watch, and the periodic comparison samples.
type BrandOwnerService struct {
	Repo      repository.Repository
	Catalog   DetailsFetcher
	Insights  *insight.Generator
	Publisher notify.Publisher
	Logger    *zap.Logger

	BatchSize  int
	BatchPause time.Duration
	// RateLimitBackoff replaces BatchPause after a batch hit the quota.
	RateLimitBackoff time.Duration
	Sleep            func(ctx context.Context, d time.Duration) error
	Now              func() time.Time
}

type PairInput struct {
	SellerID         string `json:"seller_id"`
	OurASIN          string `json:"our_asin"`
	CompetitorASIN   string `json:"competitor_asin"`
	CompetitorBrand  string `json:"competitor_brand"`
	CompetitionLevel string `json:"competition_level"`
	Notes            string `json:"notes"`
}

type RefreshSummary struct {
	Pairs       int `json:"pairs"`
	Success     int `json:"success"`
	Errors      int `json:"errors"`
	Insights    int `json:"insights"`
	RateLimited int `json:"rate_limited"`
}

func (r *RefreshSummary) add(o RefreshSummary) {
	r.Pairs += o.Pairs
	r.Success += o.Success
	r.Errors += o.Errors
	r.Insights += o.Insights
	r.RateLimited += o.RateLimited
}

func (s *BrandOwnerService) RegisterBrandOwner(ctx context.Context, sellerID, brandName string, exclusive bool) (uint64, error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return 0, &ValidationError{Field: "seller_id", Reason: "required"}
	}
	brandName = strings.TrimSpace(brandName)
	if brandName == "" {
		return 0, &ValidationError{Field: "brand_name", Reason: "required"}
	}
	item := &models.BrandOwner{SellerID: sellerID, BrandName: brandName, IsExclusive: exclusive}
	if err := s.Repo.UpsertBrandOwner(ctx, item); err != nil {
		return 0, &StorageError{Op: "register brand owner", Err: err}
	}
	if item.ID == 0 {
		// Some drivers do not return the id on the update path.
		stored, err := s.Repo.GetBrandOwnerBySellerID(ctx, sellerID)
		if err != nil {
			return 0, &StorageError{Op: "register brand owner", Err: err}
		}
		if stored != nil {
			item.ID = stored.ID
		}
	}
	return item.ID, nil
}

func (s *BrandOwnerService) RegisterProduct(ctx context.Context, sellerID, asin, name, category string) (uint64, error) {
	owner, err := s.owner(ctx, sellerID)
	if err != nil {
		return 0, err
	}
	asin = strings.TrimSpace(asin)
	if asin == "" {
		return 0, &ValidationError{Field: "asin", Reason: "required"}
	}
	item := &models.BrandOwnerProduct{BrandOwnerID: owner.ID, ASIN: asin, ProductName: name, Category: category}
	if err := s.Repo.UpsertBrandOwnerProduct(ctx, item); err != nil {
		return 0, &StorageError{Op: "register brand owner product", Err: err}
	}
	return item.ID, nil
}

// RegisterPair fails with *NotFoundError when sellerID has no brand owner.
// Registering an existing pair reactivates it. The first sample is taken
// right away; its failure does not fail the registration.
func (s *BrandOwnerService) RegisterPair(ctx context.Context, in PairInput) (uint64, error) {
	owner, err := s.owner(ctx, in.SellerID)
	if err != nil {
		return 0, err
	}
	in.OurASIN = strings.TrimSpace(in.OurASIN)
	in.CompetitorASIN = strings.TrimSpace(in.CompetitorASIN)
	if in.OurASIN == "" {
		return 0, &ValidationError{Field: "our_asin", Reason: "required"}
	}
	if in.CompetitorASIN == "" {
		return 0, &ValidationError{Field: "competitor_asin", Reason: "required"}
	}
	if in.OurASIN == in.CompetitorASIN {
		return 0, &ValidationError{Field: "competitor_asin", Reason: "must differ from our_asin"}
	}
	level := strings.ToLower(strings.TrimSpace(in.CompetitionLevel))
	switch level {
	case "":
		level = models.CompetitionDirect
	case models.CompetitionDirect, models.CompetitionIndirect:
	default:
		return 0, &ValidationError{Field: "competition_level", Reason: "must be direct or indirect"}
	}

	pair := &models.ManualCompetitor{
		BrandOwnerID:     owner.ID,
		OurASIN:          in.OurASIN,
		CompetitorASIN:   in.CompetitorASIN,
		CompetitorBrand:  strings.TrimSpace(in.CompetitorBrand),
		CompetitionLevel: level,
		Notes:            in.Notes,
		IsActive:         true,
	}
	if err := s.Repo.UpsertManualCompetitor(ctx, pair); err != nil {
		return 0, &StorageError{Op: "register pair", Err: err}
	}
	if _, _, _, err := s.refresh(ctx, *pair); err != nil {
		s.logger().Warn("initial pair refresh failed", zap.Uint64("pair_id", pair.ID), zap.Error(err))
	}
	return pair.ID, nil
}

func (s *BrandOwnerService) DeactivatePair(ctx context.Context, pairID uint64) error {
	n, err := s.Repo.SetManualCompetitorActive(ctx, pairID, false)
	if err != nil {
		return &StorageError{Op: "deactivate pair", Err: err}
	}
	if n == 0 {
		return &NotFoundError{Entity: "manual competitor", Key: strconv.FormatUint(pairID, 10)}
	}
	return nil
}

// RefreshPair samples both products of one pair. A failed lookup leaves that
// side zeroed and flagged as degraded instead of failing the pair.
func (s *BrandOwnerService) RefreshPair(ctx context.Context, pairID uint64) (*models.CompetitorMonitoring, *models.Insight, error) {
	pair, err := s.Repo.GetManualCompetitor(ctx, pairID)
	if err != nil {
		return nil, nil, &StorageError{Op: "load pair", Err: err}
	}
	if pair == nil {
		return nil, nil, &NotFoundError{Entity: "manual competitor", Key: strconv.FormatUint(pairID, 10)}
	}
	sample, item, _, err := s.refresh(ctx, *pair)
	return sample, item, err
}

// refresh also reports whether either lookup was rate limited.
func (s *BrandOwnerService) refresh(ctx context.Context, pair models.ManualCompetitor) (*models.CompetitorMonitoring, *models.Insight, bool, error) {
	var (
		wg                 sync.WaitGroup
		ours, theirs       spapi.ProductDetails
		oursErr, theirsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ours, oursErr = s.details(ctx, pair.OurASIN)
	}()
	go func() {
		defer wg.Done()
		theirs, theirsErr = s.details(ctx, pair.CompetitorASIN)
	}()
	wg.Wait()
	limited := errors.Is(oursErr, spapi.ErrRateLimited) || errors.Is(theirsErr, spapi.ErrRateLimited)

	if oursErr != nil {
		s.logger().Warn("product lookup failed", zap.String("asin", pair.OurASIN), zap.Error(oursErr))
		ours = spapi.ProductDetails{ASIN: pair.OurASIN}
	}
	if theirsErr != nil {
		s.logger().Warn("product lookup failed", zap.String("asin", pair.CompetitorASIN), zap.Error(theirsErr))
		theirs = spapi.ProductDetails{ASIN: pair.CompetitorASIN}
	}

	diff := ours.Price.Sub(theirs.Price)
	sample := &models.CompetitorMonitoring{
		ManualCompetitorID:     pair.ID,
		SampledAt:              s.now(),
		OurPrice:               ours.Price,
		CompetitorPrice:        theirs.Price,
		PriceDifference:        diff,
		PriceDifferencePercent: tracker.PercentOf(diff, theirs.Price),
		OurRank:                ours.Rank,
		CompetitorRank:         theirs.Rank,
		OurRating:              ours.Rating,
		CompetitorRating:       theirs.Rating,
		OurReviews:             ours.ReviewsCount,
		CompetitorReviews:      theirs.ReviewsCount,
		OurDegraded:            oursErr != nil,
		CompetitorDegraded:     theirsErr != nil,
	}
	if err := s.Repo.InsertCompetitorMonitoring(ctx, sample); err != nil {
		return nil, nil, limited, &StorageError{Op: "record pair sample", Err: err}
	}

	// A zeroed side would look like a huge gap, so degraded samples never
	// produce insights.
	if s.Insights == nil || sample.OurDegraded || sample.CompetitorDegraded {
		return sample, nil, limited, nil
	}
	item := s.Insights.FromPriceGap(insight.PriceGap{
		OurASIN:         pair.OurASIN,
		CompetitorASIN:  pair.CompetitorASIN,
		CompetitorBrand: pair.CompetitorBrand,
		OurPrice:        ours.Price,
		CompetitorPrice: theirs.Price,
		ObservedAt:      sample.SampledAt,
	})
	if item == nil {
		return sample, nil, limited, nil
	}
	if err := s.Repo.InsertInsight(ctx, item); err != nil {
		return sample, nil, limited, &StorageError{Op: "record price gap insight", Err: err}
	}
	if s.Publisher != nil {
		if err := s.Publisher.Publish(ctx, notify.Event{
			Type:     notify.EventInsight,
			ASIN:     item.ASIN,
			Priority: item.Priority,
			Message:  item.Title,
			Payload:  item,
			At:       sample.SampledAt,
		}); err != nil {
			s.logger().Warn("publish failed", zap.Uint64("insight_id", item.ID), zap.Error(err))
		}
	}
	return sample, item, limited, nil
}

func (s *BrandOwnerService) details(ctx context.Context, asin string) (spapi.ProductDetails, error) {
	if s.Catalog == nil {
		return spapi.ProductDetails{}, errors.New("catalog fetcher not configured")
	}
	return s.Catalog.FetchProductDetails(ctx, asin)
}

// RefreshAllForSeller refreshes every active pair of one brand owner in
// batches. Pairs within a batch run concurrently; a failing pair is counted
// and never stops the rest.
func (s *BrandOwnerService) RefreshAllForSeller(ctx context.Context, sellerID string) (RefreshSummary, error) {
	owner, err := s.owner(ctx, sellerID)
	if err != nil {
		return RefreshSummary{}, err
	}
	pairs, err := s.Repo.ListManualCompetitors(ctx, owner.ID, true)
	if err != nil {
		return RefreshSummary{}, &StorageError{Op: "list pairs", Err: err}
	}
	return s.refreshBatches(ctx, pairs)
}

// RefreshAll runs RefreshAllForSeller for every brand owner.
func (s *BrandOwnerService) RefreshAll(ctx context.Context) (RefreshSummary, error) {
	owners, err := s.Repo.ListBrandOwners(ctx)
	if err != nil {
		return RefreshSummary{}, &StorageError{Op: "list brand owners", Err: err}
	}
	var total RefreshSummary
	for _, owner := range owners {
		pairs, err := s.Repo.ListManualCompetitors(ctx, owner.ID, true)
		if err != nil {
			total.Errors++
			s.logger().Warn("list pairs failed", zap.String("seller_id", owner.SellerID), zap.Error(err))
			continue
		}
		sum, err := s.refreshBatches(ctx, pairs)
		total.add(sum)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s *BrandOwnerService) refreshBatches(ctx context.Context, pairs []models.ManualCompetitor) (RefreshSummary, error) {
	size := s.BatchSize
	if size <= 0 {
		size = defaultBrandOwnerBatchSize
	}
	pause := s.BatchPause
	if pause <= 0 {
		pause = defaultBrandOwnerBatchPause
	}
	backoff := s.RateLimitBackoff
	if backoff <= 0 {
		backoff = defaultBrandOwnerBackoff
	}
	out := RefreshSummary{Pairs: len(pairs)}
	limited := false
	for start := 0; start < len(pairs); start += size {
		if start > 0 {
			wait := pause
			if limited {
				wait = backoff
				s.logger().Warn("rate limited, backing off", zap.Duration("backoff", wait))
			}
			if err := s.sleep(ctx, wait); err != nil {
				return out, err
			}
		}
		limited = false
		end := start + size
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := pairs[start:end]

		var (
			wg sync.WaitGroup
			mu sync.Mutex
		)
		for _, pair := range batch {
			pair := pair
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, item, hitLimit, err := s.refresh(ctx, pair)
				mu.Lock()
				defer mu.Unlock()
				if hitLimit {
					out.RateLimited++
					limited = true
				}
				if err != nil {
					out.Errors++
					s.logger().Warn("pair refresh failed", zap.Uint64("pair_id", pair.ID), zap.Error(err))
					return
				}
				out.Success++
				if item != nil {
					out.Insights++
				}
			}()
		}
		wg.Wait()
	}
	return out, nil
}

type PairView struct {
	models.ManualCompetitor
	Latest *models.CompetitorMonitoring `json:"latest,omitempty"`
}

type CompetitionDashboard struct {
	Owner    models.BrandOwner          `json:"owner"`
	Products []models.BrandOwnerProduct `json:"products"`
	Pairs    []PairView                 `json:"pairs"`
	// AvgPriceDifferencePercent averages the latest non-degraded sample of
	// every active pair.
	AvgPriceDifferencePercent decimal.Decimal `json:"avg_price_difference_percent"`
	PairsPricedAbove          int             `json:"pairs_priced_above"`
	PairsPricedBelow          int             `json:"pairs_priced_below"`
}

func (s *BrandOwnerService) Dashboard(ctx context.Context, sellerID string) (*CompetitionDashboard, error) {
	owner, err := s.owner(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	products, err := s.Repo.ListBrandOwnerProducts(ctx, owner.ID)
	if err != nil {
		return nil, &StorageError{Op: "list products", Err: err}
	}
	pairs, err := s.Repo.ListManualCompetitors(ctx, owner.ID, false)
	if err != nil {
		return nil, &StorageError{Op: "list pairs", Err: err}
	}
	out := &CompetitionDashboard{Owner: *owner, Products: products, Pairs: make([]PairView, 0, len(pairs))}
	sum := decimal.Zero
	counted := 0
	for _, p := range pairs {
		latest, err := s.Repo.GetLatestCompetitorMonitoring(ctx, p.ID)
		if err != nil {
			return nil, &StorageError{Op: "latest sample", Err: err}
		}
		out.Pairs = append(out.Pairs, PairView{ManualCompetitor: p, Latest: latest})
		if !p.IsActive || latest == nil || latest.OurDegraded || latest.CompetitorDegraded {
			continue
		}
		sum = sum.Add(latest.PriceDifferencePercent)
		counted++
		switch {
		case latest.PriceDifference.IsPositive():
			out.PairsPricedAbove++
		case latest.PriceDifference.IsNegative():
			out.PairsPricedBelow++
		}
	}
	if counted > 0 {
		out.AvgPriceDifferencePercent = sum.Div(decimal.NewFromInt(int64(counted))).Round(2)
	}
	return out, nil
}

func (s *BrandOwnerService) ListSamples(ctx context.Context, pairID uint64, limit int) ([]models.CompetitorMonitoring, error) {
	pair, err := s.Repo.GetManualCompetitor(ctx, pairID)
	if err != nil {
		return nil, &StorageError{Op: "load pair", Err: err}
	}
	if pair == nil {
		return nil, &NotFoundError{Entity: "manual competitor", Key: strconv.FormatUint(pairID, 10)}
	}
	return s.Repo.ListCompetitorMonitoring(ctx, pairID, limit)
}

func (s *BrandOwnerService) owner(ctx context.Context, sellerID string) (*models.BrandOwner, error) {
	sellerID = strings.TrimSpace(sellerID)
	if sellerID == "" {
		return nil, &ValidationError{Field: "seller_id", Reason: "required"}
	}
	owner, err := s.Repo.GetBrandOwnerBySellerID(ctx, sellerID)
	if err != nil {
		return nil, &StorageError{Op: "load brand owner", Err: err}
	}
	if owner == nil {
		return nil, &NotFoundError{Entity: "brand owner", Key: sellerID}
	}
	return owner, nil
}

func (s *BrandOwnerService) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return SleepContext(ctx, d)
}

func (s *BrandOwnerService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *BrandOwnerService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
