package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"buybox/internal/client/amazon/spapi"
	"buybox/internal/insight"
	"buybox/internal/models"
	"buybox/internal/notify"
	"buybox/internal/repository"
	memrepo "buybox/internal/repository/memory"
	"buybox/internal/tracker"
)

const testASIN = "B0COLLECT1"

func offer(seller string, price string, winner bool) spapi.Offer {
	return spapi.Offer{SellerID: seller, Price: decimal.RequireFromString(price), IsBuyBoxWinner: winner}
}

func newPricingService(repo *memrepo.Store, fetcher *fakeOffers, clk *clock) (*CompetitorPricingService, *recordingPublisher) {
	pub := &recordingPublisher{}
	return &CompetitorPricingService{
		Repo:      repo,
		Offers:    fetcher,
		Sellers:   &SellerIdentityService{Repo: repo, Now: clk.Now},
		Tracker:   &tracker.Tracker{Repo: repo},
		Insights:  insight.NewGenerator([]string{"OURSELLER"}, 100, 10, "R$"),
		Publisher: pub,
		Now:       clk.Now,
	}, pub
}

func TestCollectProductDetectsTransition(t *testing.T) {
	repo := memrepo.New()
	fetcher := newFakeOffers()
	clk := &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	svc, pub := newPricingService(repo, fetcher, clk)
	if _, err := svc.TrackProduct(context.Background(), testASIN, "Garrafa", true); err != nil {
		t.Fatalf("track err=%v", err)
	}

	fetcher.offers[testASIN] = []spapi.Offer{offer("OURSELLER", "100", true), offer("RIVAL0001", "104", false)}
	res, err := svc.CollectProduct(context.Background(), testASIN)
	if err != nil || res.Event != nil || res.Offers != 2 {
		t.Fatalf("baseline res=%+v err=%v", res, err)
	}

	clk.Advance(15 * time.Minute)
	fetcher.offers[testASIN] = []spapi.Offer{offer("OURSELLER", "100", false), offer("RIVAL0001", "95", true)}
	res, err = svc.CollectProduct(context.Background(), testASIN)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Event == nil || res.Insight == nil {
		t.Fatalf("expected event and insight, got %+v", res)
	}
	if res.Insight.Priority != models.PriorityHigh || res.Insight.ID == 0 {
		t.Fatalf("insight=%+v", res.Insight)
	}
	if pub.count(notify.EventBuyBoxChange) != 1 {
		t.Fatalf("published=%d want=1", pub.count(notify.EventBuyBoxChange))
	}

	p, _ := repo.GetTrackedProduct(context.Background(), testASIN)
	if p.LastCheckedAt == nil || !p.LastCheckedAt.Equal(clk.Now()) {
		t.Fatalf("last checked=%v", p.LastCheckedAt)
	}
	asin := testASIN
	offers, _ := repo.ListOffers(context.Background(), repository.ListOffersParams{ASIN: &asin})
	if len(offers) != 4 {
		t.Fatalf("offers=%d want=4", len(offers))
	}
	for _, o := range offers {
		if o.SellerID == "OURSELLER" && o.ObservedAt.Equal(clk.Now()) && !o.PriceDifference.Equal(decimal.NewFromInt(5)) {
			t.Fatalf("price difference=%s want=5", o.PriceDifference)
		}
	}
}

func TestCollectProductNotFoundRecordsEmptyPass(t *testing.T) {
	repo := memrepo.New()
	fetcher := newFakeOffers()
	clk := &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	svc, _ := newPricingService(repo, fetcher, clk)
	_, _ = svc.TrackProduct(context.Background(), testASIN, "", true)

	fetcher.offers[testASIN] = []spapi.Offer{offer("A", "10", true)}
	_, _ = svc.CollectProduct(context.Background(), testASIN)

	clk.Advance(time.Minute)
	fetcher.errs[testASIN] = &spapi.APIError{Status: 404}
	res, err := svc.CollectProduct(context.Background(), testASIN)
	if err != nil || res.Offers != 0 || res.Event != nil {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	open, _ := repo.GetOpenIntervalTx(context.Background(), nil, testASIN)
	if open == nil || open.SellerID != "A" {
		t.Fatalf("holder lost on empty pass: %+v", open)
	}
	p, _ := repo.GetTrackedProduct(context.Background(), testASIN)
	if !p.LastCheckedAt.Equal(clk.Now()) {
		t.Fatalf("empty pass not marked checked")
	}
}

func TestCollectProductPassesFetchErrorsThrough(t *testing.T) {
	repo := memrepo.New()
	fetcher := newFakeOffers()
	svc, _ := newPricingService(repo, fetcher, &clock{now: time.Now()})
	fetcher.errs[testASIN] = &spapi.APIError{Status: 429}
	_, err := svc.CollectProduct(context.Background(), testASIN)
	if !errors.Is(err, spapi.ErrRateLimited) {
		t.Fatalf("err=%v want rate limited", err)
	}
}

func TestCollectProductKeepsSingleWinner(t *testing.T) {
	repo := memrepo.New()
	fetcher := newFakeOffers()
	svc, _ := newPricingService(repo, fetcher, &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)})
	fetcher.offers[testASIN] = []spapi.Offer{offer("A", "10", true), offer("B", "9", true)}
	res, err := svc.CollectProduct(context.Background(), testASIN)
	if err != nil || res.Winner != "A" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	asin := testASIN
	offers, _ := repo.ListOffers(context.Background(), repository.ListOffersParams{ASIN: &asin})
	winners := 0
	for _, o := range offers {
		if o.IsBuyBoxWinner {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("winners=%d want=1", winners)
	}
}

func TestCollectProductStorageFailureIsAtomic(t *testing.T) {
	repo := memrepo.New()
	fetcher := newFakeOffers()
	clk := &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	svc, pub := newPricingService(repo, fetcher, clk)
	fetcher.offers[testASIN] = []spapi.Offer{offer("A", "10", true)}
	_, _ = svc.CollectProduct(context.Background(), testASIN)

	repo.FailWrite = func(op string, _ any) error {
		if op == "InsertInsight" {
			return errors.New("disk full")
		}
		return nil
	}
	clk.Advance(time.Minute)
	fetcher.offers[testASIN] = []spapi.Offer{offer("B", "9", true)}
	_, err := svc.CollectProduct(context.Background(), testASIN)
	var storageErr *StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("err=%v want StorageError", err)
	}
	asin := testASIN
	offers, _ := repo.ListOffers(context.Background(), repository.ListOffersParams{ASIN: &asin})
	if len(offers) != 1 {
		t.Fatalf("offers=%d want=1", len(offers))
	}
	open, _ := repo.GetOpenIntervalTx(context.Background(), nil, testASIN)
	if open == nil || open.SellerID != "A" {
		t.Fatalf("holder=%+v", open)
	}
	if pub.count(notify.EventBuyBoxChange) != 0 {
		t.Fatalf("rolled back transition was published")
	}
}

func TestCollectProductRejectsConcurrentSameASIN(t *testing.T) {
	repo := memrepo.New()
	fetcher := newFakeOffers()
	fetcher.entered = make(chan string, 4)
	fetcher.block = make(chan struct{})
	clk := &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	svc, _ := newPricingService(repo, fetcher, clk)
	fetcher.offers[testASIN] = []spapi.Offer{offer("A", "10", true)}

	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.CollectProduct(context.Background(), testASIN)
		firstErr <- err
	}()
	<-fetcher.entered

	if _, err := svc.CollectProduct(context.Background(), testASIN); !errors.Is(err, ErrCollectInProgress) {
		t.Fatalf("second err=%v want=ErrCollectInProgress", err)
	}
	close(fetcher.block)
	if err := <-firstErr; err != nil {
		t.Fatalf("first err=%v", err)
	}

	// The guard is released once the first collection returns.
	if _, err := svc.CollectProduct(context.Background(), testASIN); err != nil {
		t.Fatalf("third err=%v", err)
	}
	open, _ := repo.ListOpenIntervals(context.Background(), 10)
	if len(open) != 1 {
		t.Fatalf("open intervals=%d want=1", len(open))
	}
	if fetcher.calls[testASIN] != 2 {
		t.Fatalf("fetches=%d want=2", fetcher.calls[testASIN])
	}
}

func TestDetectNewCompetitorsDedupes(t *testing.T) {
	repo := memrepo.New()
	fetcher := newFakeOffers()
	clk := &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	svc, _ := newPricingService(repo, fetcher, clk)
	since := clk.Now()

	for i := 0; i < 3; i++ {
		fetcher.offers[testASIN] = []spapi.Offer{offer("A", "10", true), offer("NEWBIE", "11", false), offer("OURSELLER", "12", false)}
		if _, err := svc.CollectProduct(context.Background(), testASIN); err != nil {
			t.Fatalf("collect err=%v", err)
		}
		clk.Advance(15 * time.Minute)
	}
	n, err := svc.DetectNewCompetitors(context.Background(), since)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// A and NEWBIE qualify; our own seller never does.
	if n != 2 {
		t.Fatalf("created=%d want=2", n)
	}
	n, _ = svc.DetectNewCompetitors(context.Background(), since)
	if n != 0 {
		t.Fatalf("second run created=%d want=0", n)
	}
}
