// Package worker owns the scheduled passes: regular and intensive offer
// collection, brand-owner monitoring and retention cleanup.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"buybox/internal/client/amazon/spapi"
	"buybox/internal/metrics"
	"buybox/internal/models"
	"buybox/internal/notify"
	"buybox/internal/repository"
	"buybox/internal/service"
)

var ErrPassInProgress = errors.New("worker: a collection pass is already running")

type State int32

const (
	StateIdle State = iota
	StateCollecting
)

func (s State) String() string {
	if s == StateCollecting {
		return "collecting"
	}
	return "idle"
}

type Collector interface {
	CollectProduct(ctx context.Context, asin string) (service.CollectResult, error)
	DetectNewCompetitors(ctx context.Context, since time.Time) (int, error)
}

type BrandOwnerRefresher interface {
	RefreshAll(ctx context.Context) (service.RefreshSummary, error)
}

type Options struct {
	BatchLimit       int
	CallDelay        time.Duration
	IntensiveDelay   time.Duration
	CallTimeout      time.Duration
	RateLimitBackoff time.Duration

	HotWindow          time.Duration
	HotMinObservations int
	HotLimit           int
	NewCompetitorSince time.Duration

	BusinessHourStart int
	BusinessHourEnd   int
	Location          *time.Location

	OfferRetention       time.Duration
	IntervalRetention    time.Duration
	DismissedRetention   time.Duration
	SellerCacheRetention time.Duration
}

func DefaultOptions() Options {
	return Options{
		BatchLimit:           50,
		CallDelay:            120 * time.Millisecond,
		IntensiveDelay:       100 * time.Millisecond,
		CallTimeout:          20 * time.Second,
		RateLimitBackoff:     30 * time.Second,
		HotWindow:            2 * time.Hour,
		HotMinObservations:   3,
		HotLimit:             20,
		NewCompetitorSince:   24 * time.Hour,
		BusinessHourStart:    9,
		BusinessHourEnd:      22,
		Location:             time.UTC,
		OfferRetention:       30 * 24 * time.Hour,
		IntervalRetention:    90 * 24 * time.Hour,
		DismissedRetention:   7 * 24 * time.Hour,
		SellerCacheRetention: 30 * 24 * time.Hour,
	}
}

type PassSummary struct {
	RunID       string           `json:"run_id"`
	Type        string           `json:"type"`
	Status      string           `json:"status"`
	Products    int              `json:"products"`
	Success     int              `json:"success"`
	Errors      int              `json:"errors"`
	RateLimited int              `json:"rate_limited"`
	Busy        int              `json:"busy,omitempty"`
	Offers      int              `json:"offers"`
	Transitions int              `json:"transitions"`
	Insights    int              `json:"insights"`
	Purged      map[string]int64 `json:"purged,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt time.Time        `json:"completed_at"`
}

type Stats struct {
	State string                 `json:"state"`
	Last  map[string]PassSummary `json:"last"`
}

// Scheduler is the single process-wide owner of collection passes. Regular
// and intensive passes share one Idle/Collecting flag; a trigger that finds
// the flag taken is skipped, never queued.
type Scheduler struct {
	Repo        repository.Repository
	Collector   Collector
	BrandOwners BrandOwnerRefresher
	Metrics     *metrics.Metrics
	Publisher   notify.Publisher
	Logger      *zap.Logger
	Options     Options

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error

	state      atomic.Int32
	brandOwner atomic.Bool

	mu   sync.Mutex
	last map[string]PassSummary
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	last := make(map[string]PassSummary, len(s.last))
	for k, v := range s.last {
		last[k] = v
	}
	return Stats{State: s.State().String(), Last: last}
}

// RunRegularPass collects the least recently checked active products.
func (s *Scheduler) RunRegularPass(ctx context.Context) (PassSummary, error) {
	return s.collect(ctx, models.SyncTypeRegular, func(ctx context.Context) ([]string, error) {
		products, err := s.Repo.ListActiveTrackedProducts(ctx, s.Options.BatchLimit)
		if err != nil {
			return nil, err
		}
		asins := make([]string, 0, len(products))
		for _, p := range products {
			asins = append(asins, p.ASIN)
		}
		return asins, nil
	}, s.Options.CallDelay)
}

// RunIntensivePass re-collects hot products, only inside business hours.
func (s *Scheduler) RunIntensivePass(ctx context.Context) (PassSummary, error) {
	now := s.now()
	if !s.InBusinessHours(now) {
		sum := PassSummary{
			Type:        models.SyncTypeIntensive,
			Status:      models.SyncStatusSkipped,
			Reason:      "outside business hours",
			StartedAt:   now,
			CompletedAt: now,
		}
		s.remember(sum)
		return sum, nil
	}
	return s.collect(ctx, models.SyncTypeIntensive, func(ctx context.Context) ([]string, error) {
		hot, err := s.Repo.ListHotProducts(ctx, s.now().Add(-s.Options.HotWindow), s.Options.HotMinObservations, s.Options.HotLimit)
		if err != nil {
			return nil, err
		}
		asins := make([]string, 0, len(hot))
		for _, h := range hot {
			asins = append(asins, h.ASIN)
		}
		return asins, nil
	}, s.Options.IntensiveDelay)
}

func (s *Scheduler) InBusinessHours(t time.Time) bool {
	loc := s.Options.Location
	if loc == nil {
		loc = time.UTC
	}
	start, end := s.Options.BusinessHourStart, s.Options.BusinessHourEnd
	if start == end {
		return true
	}
	h := t.In(loc).Hour()
	if start < end {
		return h >= start && h < end
	}
	// Window wraps midnight.
	return h >= start || h < end
}

func (s *Scheduler) collect(ctx context.Context, passType string, list func(context.Context) ([]string, error), delay time.Duration) (PassSummary, error) {
	started := s.now()
	sum := PassSummary{RunID: uuid.NewString(), Type: passType, StartedAt: started}

	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateCollecting)) {
		sum.Status = models.SyncStatusSkipped
		sum.Reason = "previous pass still running"
		sum.CompletedAt = started
		s.logger().Info("collection pass skipped", zap.String("type", passType), zap.String("reason", sum.Reason))
		s.finish(ctx, &sum)
		return sum, ErrPassInProgress
	}
	s.Metrics.SetCollecting(true)
	defer func() {
		s.state.Store(int32(StateIdle))
		s.Metrics.SetCollecting(false)
	}()

	asins, err := list(ctx)
	if err != nil {
		sum.Status = models.SyncStatusFailed
		sum.Error = err.Error()
		sum.CompletedAt = s.now()
		s.finish(ctx, &sum)
		return sum, err
	}
	sum.Products = len(asins)

	var passErr error
	for i, asin := range asins {
		if i > 0 {
			if err := s.sleep(ctx, delay); err != nil {
				passErr = err
				break
			}
		}
		s.collectOne(ctx, asin, &sum)
	}
	if passErr == nil && passType == models.SyncTypeRegular {
		if n, err := s.Collector.DetectNewCompetitors(ctx, started.Add(-s.Options.NewCompetitorSince)); err != nil {
			s.logger().Warn("new competitor detection failed", zap.Error(err))
		} else {
			sum.Insights += n
			s.Metrics.InsightCreated(models.InsightTypeNewCompetitor, n)
		}
	}

	sum.Status = outcome(sum.Success, sum.Errors)
	if passErr != nil {
		sum.Error = passErr.Error()
		if sum.Status == models.SyncStatusSuccess {
			sum.Status = models.SyncStatusPartial
		}
	}
	sum.CompletedAt = s.now()
	s.finish(ctx, &sum)
	return sum, passErr
}

// collectOne never lets a product error escape; it is folded into sum.
func (s *Scheduler) collectOne(ctx context.Context, asin string, sum *PassSummary) {
	callCtx := ctx
	cancel := func() {}
	if s.Options.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.Options.CallTimeout)
	}
	res, err := s.Collector.CollectProduct(callCtx, asin)
	cancel()

	switch {
	case err == nil:
		sum.Success++
		sum.Offers += res.Offers
		if res.Event != nil {
			sum.Transitions++
		}
		if res.Insight != nil {
			sum.Insights++
			s.Metrics.InsightCreated(res.Insight.InsightType, 1)
		}
		s.Metrics.ProductCollected("ok", res.Offers, res.Event != nil)
	case errors.Is(err, service.ErrCollectInProgress):
		// A manual collect holds the product; this pass leaves it alone.
		sum.Busy++
		s.Metrics.ProductCollected("busy", 0, false)
	case errors.Is(err, spapi.ErrRateLimited):
		sum.Errors++
		sum.RateLimited++
		s.Metrics.ProductCollected("rate_limited", 0, false)
		s.Metrics.RateLimited()
		s.logger().Warn("rate limited, backing off",
			zap.String("asin", asin),
			zap.Duration("backoff", s.Options.RateLimitBackoff),
		)
		// A cancelled backoff surfaces on the next inter-call sleep.
		_ = s.sleep(ctx, s.Options.RateLimitBackoff)
	default:
		sum.Errors++
		outcome := "error"
		var storageErr *service.StorageError
		if errors.As(err, &storageErr) {
			outcome = "storage_error"
		}
		s.Metrics.ProductCollected(outcome, 0, false)
		s.logger().Warn("product collection failed", zap.String("asin", asin), zap.Error(err))
	}
}

// RunCleanupPass purges aged rows. It does not take the collection flag.
func (s *Scheduler) RunCleanupPass(ctx context.Context) (PassSummary, error) {
	now := s.now()
	sum := PassSummary{
		RunID:     uuid.NewString(),
		Type:      models.SyncTypeCleanup,
		StartedAt: now,
		Purged:    map[string]int64{},
	}
	steps := []struct {
		table string
		keep  time.Duration
		run   func(context.Context, time.Time) (int64, error)
	}{
		{"competitor_tracking", s.Options.OfferRetention, s.Repo.DeleteOffersBefore},
		{"buy_box_history", s.Options.IntervalRetention, s.Repo.DeleteClosedIntervalsBefore},
		{"ai_insights", s.Options.DismissedRetention, s.Repo.DeleteDismissedInsightsBefore},
		{"sellers_cache", s.Options.SellerCacheRetention, s.Repo.DeleteSellerCacheBefore},
	}
	var errs []string
	for _, step := range steps {
		if step.keep <= 0 {
			continue
		}
		n, err := step.run(ctx, now.Add(-step.keep))
		if err != nil {
			sum.Errors++
			errs = append(errs, step.table+": "+err.Error())
			s.logger().Warn("cleanup step failed", zap.String("table", step.table), zap.Error(err))
			continue
		}
		sum.Success++
		sum.Purged[step.table] = n
		s.Metrics.Purged(step.table, n)
	}
	sum.Status = outcome(sum.Success, sum.Errors)
	sum.Error = strings.Join(errs, "; ")
	sum.CompletedAt = s.now()
	s.finish(ctx, &sum)
	if sum.Errors > 0 {
		return sum, errors.New("cleanup: " + sum.Error)
	}
	return sum, nil
}

// RunBrandOwnerPass refreshes every active manual pair. It has its own
// overlap guard so a slow hourly run cannot stack up.
func (s *Scheduler) RunBrandOwnerPass(ctx context.Context) (PassSummary, error) {
	started := s.now()
	sum := PassSummary{RunID: uuid.NewString(), Type: models.SyncTypeBrandOwner, StartedAt: started}
	if s.BrandOwners == nil {
		sum.Status = models.SyncStatusSkipped
		sum.Reason = "brand owner refresher not configured"
		sum.CompletedAt = started
		s.remember(sum)
		return sum, nil
	}
	if !s.brandOwner.CompareAndSwap(false, true) {
		sum.Status = models.SyncStatusSkipped
		sum.Reason = "previous pass still running"
		sum.CompletedAt = started
		s.finish(ctx, &sum)
		return sum, ErrPassInProgress
	}
	defer s.brandOwner.Store(false)

	res, err := s.BrandOwners.RefreshAll(ctx)
	sum.Products = res.Pairs
	sum.Success = res.Success
	sum.Errors = res.Errors
	sum.Insights = res.Insights
	sum.RateLimited = res.RateLimited
	s.Metrics.InsightCreated(models.InsightTypeManualPriceGap, res.Insights)
	sum.Status = outcome(sum.Success, sum.Errors)
	if err != nil {
		sum.Error = err.Error()
		sum.Status = models.SyncStatusFailed
	}
	sum.CompletedAt = s.now()
	s.finish(ctx, &sum)
	return sum, err
}

func outcome(success, failed int) string {
	switch {
	case failed == 0:
		return models.SyncStatusSuccess
	case success == 0:
		return models.SyncStatusFailed
	default:
		return models.SyncStatusPartial
	}
}

// finish records the run summary in the sync log, metrics and subscribers.
func (s *Scheduler) finish(ctx context.Context, sum *PassSummary) {
	s.remember(*sum)
	s.Metrics.ObservePass(sum.Type, sum.Status, sum.CompletedAt.Sub(sum.StartedAt))

	fields := []zap.Field{
		zap.String("run_id", sum.RunID),
		zap.String("type", sum.Type),
		zap.String("status", sum.Status),
		zap.Int("products", sum.Products),
		zap.Int("success", sum.Success),
		zap.Int("errors", sum.Errors),
		zap.Int("rate_limited", sum.RateLimited),
		zap.Duration("took", sum.CompletedAt.Sub(sum.StartedAt)),
	}
	if sum.Status == models.SyncStatusFailed {
		s.logger().Warn("pass finished", fields...)
	} else {
		s.logger().Info("pass finished", fields...)
	}

	if s.Repo != nil {
		details, _ := json.Marshal(sum)
		// The log row must land even when the pass context is already done.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Repo.InsertSyncLog(writeCtx, &models.SyncLog{
			RunID:         sum.RunID,
			SyncType:      sum.Type,
			Status:        sum.Status,
			RecordsSynced: sum.Success,
			ErrorCount:    sum.Errors,
			RateLimited:   sum.RateLimited,
			ErrorMessage:  sum.Error,
			Details:       datatypes.JSON(details),
			StartedAt:     sum.StartedAt,
			CompletedAt:   sum.CompletedAt,
		}); err != nil {
			s.logger().Warn("sync log write failed", zap.String("run_id", sum.RunID), zap.Error(err))
		}
	}

	if s.Publisher != nil && sum.Status != models.SyncStatusSkipped {
		_ = s.Publisher.Publish(ctx, notify.Event{
			Type:     notify.EventPassSummary,
			Priority: models.PriorityLow,
			Payload:  *sum,
			At:       sum.CompletedAt,
		})
	}
}

func (s *Scheduler) remember(sum PassSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		s.last = map[string]PassSummary{}
	}
	s.last[sum.Type] = sum
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if s.Sleep != nil {
		return s.Sleep(ctx, d)
	}
	return service.SleepContext(ctx, d)
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
