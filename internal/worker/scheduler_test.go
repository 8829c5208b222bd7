package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"buybox/internal/client/amazon/spapi"
	"buybox/internal/models"
	"buybox/internal/repository"
	memrepo "buybox/internal/repository/memory"
	"buybox/internal/service"
)

type fakeCollector struct {
	mu      sync.Mutex
	errs    map[string]error
	calls   []string
	block   chan struct{}
	entered chan struct{}
	detect  int
}

func (f *fakeCollector) CollectProduct(ctx context.Context, asin string) (service.CollectResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, asin)
	err := f.errs[asin]
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return service.CollectResult{ASIN: asin}, err
	}
	return service.CollectResult{ASIN: asin, Offers: 2}, nil
}

func (f *fakeCollector) DetectNewCompetitors(ctx context.Context, since time.Time) (int, error) {
	return f.detect, nil
}

func (f *fakeCollector) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeRefresher struct {
	sum service.RefreshSummary
	err error
}

func (f *fakeRefresher) RefreshAll(ctx context.Context) (service.RefreshSummary, error) {
	return f.sum, f.err
}

var brt = time.FixedZone("BRT", -3*3600)

func newScheduler(repo *memrepo.Store, collector *fakeCollector, now time.Time) (*Scheduler, *[]time.Duration) {
	var mu sync.Mutex
	var pauses []time.Duration
	opts := DefaultOptions()
	opts.Location = brt
	return &Scheduler{
		Repo:      repo,
		Collector: collector,
		Options:   opts,
		Now:       func() time.Time { return now },
		Sleep: func(ctx context.Context, d time.Duration) error {
			mu.Lock()
			pauses = append(pauses, d)
			mu.Unlock()
			return ctx.Err()
		},
	}, &pauses
}

func track(t *testing.T, repo *memrepo.Store, asins ...string) {
	t.Helper()
	for _, asin := range asins {
		if err := repo.UpsertTrackedProduct(context.Background(), &models.TrackedProduct{ASIN: asin, Marketplace: "BR", IsActive: true}); err != nil {
			t.Fatalf("track %s err=%v", asin, err)
		}
	}
}

func syncLogs(t *testing.T, repo *memrepo.Store, syncType string) []models.SyncLog {
	t.Helper()
	logs, err := repo.ListSyncLogs(context.Background(), repository.ListSyncLogsParams{SyncType: &syncType, Limit: 10})
	if err != nil {
		t.Fatalf("list sync logs err=%v", err)
	}
	return logs
}

// 13:00 UTC is 10:00 in BRT.
var businessNoon = time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)

func TestRegularPassBacksOffOnRateLimit(t *testing.T) {
	repo := memrepo.New()
	track(t, repo, "B0A", "B0B", "B0C")
	collector := &fakeCollector{errs: map[string]error{"B0B": &spapi.APIError{Status: 429}}}
	s, pauses := newScheduler(repo, collector, businessNoon)

	sum, err := s.RunRegularPass(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sum.Success != 2 || sum.Errors != 1 || sum.RateLimited != 1 || sum.Status != models.SyncStatusPartial {
		t.Fatalf("summary=%+v", sum)
	}
	if got := collector.called(); len(got) != 3 {
		t.Fatalf("calls=%v want all three products", got)
	}
	backoffs, delays := 0, 0
	for _, d := range *pauses {
		switch d {
		case 30 * time.Second:
			backoffs++
		case 120 * time.Millisecond:
			delays++
		default:
			t.Fatalf("unexpected pause %v", d)
		}
	}
	if backoffs != 1 || delays != 2 {
		t.Fatalf("backoffs=%d delays=%d", backoffs, delays)
	}

	logs := syncLogs(t, repo, models.SyncTypeRegular)
	if len(logs) != 1 || logs[0].RateLimited != 1 || logs[0].ErrorCount != 1 || logs[0].RunID == "" {
		t.Fatalf("logs=%+v", logs)
	}
	if s.State() != StateIdle {
		t.Fatalf("state=%v after pass", s.State())
	}
}

func TestRegularPassIsolatesProductFailures(t *testing.T) {
	repo := memrepo.New()
	track(t, repo, "B0A", "B0B")
	collector := &fakeCollector{errs: map[string]error{
		"B0A": &service.StorageError{Op: "collect", Err: errors.New("disk full")},
		"B0B": &spapi.APIError{Status: 500},
	}}
	s, _ := newScheduler(repo, collector, businessNoon)

	sum, err := s.RunRegularPass(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sum.Status != models.SyncStatusFailed || sum.Errors != 2 || len(collector.called()) != 2 {
		t.Fatalf("summary=%+v calls=%v", sum, collector.called())
	}
}

func TestOverlappingPassIsSkipped(t *testing.T) {
	repo := memrepo.New()
	track(t, repo, "B0A")
	collector := &fakeCollector{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	s, _ := newScheduler(repo, collector, businessNoon)

	done := make(chan PassSummary)
	go func() {
		sum, _ := s.RunRegularPass(context.Background())
		done <- sum
	}()
	<-collector.entered
	if s.State() != StateCollecting {
		t.Fatalf("state=%v want collecting", s.State())
	}

	skipped, err := s.RunIntensivePass(context.Background())
	if !errors.Is(err, ErrPassInProgress) || skipped.Status != models.SyncStatusSkipped {
		t.Fatalf("skipped=%+v err=%v", skipped, err)
	}
	if _, err := s.RunRegularPass(context.Background()); !errors.Is(err, ErrPassInProgress) {
		t.Fatalf("second regular err=%v", err)
	}

	close(collector.block)
	first := <-done
	if first.Status != models.SyncStatusSuccess || first.Success != 1 {
		t.Fatalf("first=%+v", first)
	}
	if n := len(collector.called()); n != 1 {
		t.Fatalf("calls=%d want=1", n)
	}
	logs := syncLogs(t, repo, models.SyncTypeIntensive)
	if len(logs) != 1 || logs[0].Status != models.SyncStatusSkipped {
		t.Fatalf("intensive logs=%+v", logs)
	}
	if st := s.Stats(); st.State != "idle" || st.Last[models.SyncTypeRegular].Status != models.SyncStatusSuccess {
		t.Fatalf("stats=%+v", st)
	}
}

func TestIntensivePassRespectsBusinessHours(t *testing.T) {
	repo := memrepo.New()
	track(t, repo, "B0HOT")
	// Three offer rows in the hot window.
	var rows []models.Offer
	for i := 0; i < 3; i++ {
		rows = append(rows, models.Offer{ASIN: "B0HOT", SellerID: "S", ObservedAt: businessNoon.Add(-time.Duration(i+1) * 10 * time.Minute)})
	}
	if err := repo.InsertOffersTx(context.Background(), nil, rows); err != nil {
		t.Fatalf("insert err=%v", err)
	}

	collector := &fakeCollector{}
	night := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC) // 00:00 BRT
	s, _ := newScheduler(repo, collector, night)
	sum, err := s.RunIntensivePass(context.Background())
	if err != nil || sum.Status != models.SyncStatusSkipped || len(collector.called()) != 0 {
		t.Fatalf("night sum=%+v err=%v calls=%v", sum, err, collector.called())
	}

	s.Now = func() time.Time { return businessNoon }
	sum, err = s.RunIntensivePass(context.Background())
	if err != nil || sum.Success != 1 {
		t.Fatalf("day sum=%+v err=%v", sum, err)
	}
	if got := collector.called(); len(got) != 1 || got[0] != "B0HOT" {
		t.Fatalf("calls=%v", got)
	}
}

func TestInBusinessHours(t *testing.T) {
	s := &Scheduler{Options: Options{BusinessHourStart: 9, BusinessHourEnd: 22, Location: brt}}
	cases := []struct {
		hourUTC int
		want    bool
	}{
		{11, false}, // 08:00
		{12, true},  // 09:00
		{0, true},   // 21:00
		{1, false},  // 22:00
	}
	for _, c := range cases {
		at := time.Date(2026, 3, 2, c.hourUTC, 0, 0, 0, time.UTC)
		if got := s.InBusinessHours(at); got != c.want {
			t.Fatalf("hour=%d got=%v want=%v", c.hourUTC, got, c.want)
		}
	}
	wrap := &Scheduler{Options: Options{BusinessHourStart: 22, BusinessHourEnd: 6, Location: time.UTC}}
	if !wrap.InBusinessHours(time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)) || wrap.InBusinessHours(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("wrapping window mismatch")
	}
}

func TestCleanupPassHonorsRetention(t *testing.T) {
	ctx := context.Background()
	repo := memrepo.New()
	now := businessNoon
	day := 24 * time.Hour

	_ = repo.InsertOffersTx(ctx, nil, []models.Offer{
		{ASIN: "B0A", SellerID: "OLD", ObservedAt: now.Add(-31 * day)},
		{ASIN: "B0A", SellerID: "NEW", ObservedAt: now.Add(-29 * day)},
	})
	ended := now.Add(-80 * day)
	_ = repo.InsertIntervalTx(ctx, nil, &models.BuyBoxInterval{ASIN: "B0A", SellerID: "OLD", StartedAt: now.Add(-91 * day), EndedAt: &ended, LastSeenAt: ended})
	_ = repo.InsertIntervalTx(ctx, nil, &models.BuyBoxInterval{ASIN: "B0B", SellerID: "OPEN", StartedAt: now.Add(-100 * day), LastSeenAt: now})
	_ = repo.InsertInsight(ctx, &models.Insight{ASIN: "B0A", Status: models.InsightStatusDismissed, CreatedAt: now.Add(-8 * day)})
	_ = repo.InsertInsight(ctx, &models.Insight{ASIN: "B0A", Status: models.InsightStatusPending, CreatedAt: now.Add(-8 * day)})
	_ = repo.UpsertSellerCache(ctx, &models.SellerCache{SellerID: "STALE", SellerName: "x", LastUpdated: now.Add(-31 * day)})
	_ = repo.UpsertSellerCache(ctx, &models.SellerCache{SellerID: "FRESH", SellerName: "y", LastUpdated: now.Add(-day)})

	s, _ := newScheduler(repo, &fakeCollector{}, now)
	sum, err := s.RunCleanupPass(ctx)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	want := map[string]int64{"competitor_tracking": 1, "buy_box_history": 1, "ai_insights": 1, "sellers_cache": 1}
	for table, n := range want {
		if sum.Purged[table] != n {
			t.Fatalf("purged[%s]=%d want=%d (all=%v)", table, sum.Purged[table], n, sum.Purged)
		}
	}
	if open, _ := repo.GetOpenIntervalTx(ctx, nil, "B0B"); open == nil {
		t.Fatalf("open interval purged")
	}
	if c, _ := repo.GetSellerCache(ctx, "FRESH"); c == nil {
		t.Fatalf("fresh seller purged")
	}
	offers, _ := repo.ListOffers(ctx, repository.ListOffersParams{})
	if len(offers) != 1 || offers[0].SellerID != "NEW" {
		t.Fatalf("offers=%+v", offers)
	}
}

func TestBrandOwnerPassRecordsSummary(t *testing.T) {
	repo := memrepo.New()
	s, _ := newScheduler(repo, &fakeCollector{}, businessNoon)
	s.BrandOwners = &fakeRefresher{sum: service.RefreshSummary{Pairs: 5, Success: 4, Errors: 1, Insights: 2}}

	sum, err := s.RunBrandOwnerPass(context.Background())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if sum.Status != models.SyncStatusPartial || sum.Insights != 2 {
		t.Fatalf("summary=%+v", sum)
	}
	logs := syncLogs(t, repo, models.SyncTypeBrandOwner)
	if len(logs) != 1 || logs[0].RecordsSynced != 4 {
		t.Fatalf("logs=%+v", logs)
	}
}
