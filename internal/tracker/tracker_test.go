package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"buybox/internal/models"
	"buybox/internal/repository"
	memrepo "buybox/internal/repository/memory"
)

const asin = "B0TRACK001"

func batch(at time.Time, winner string, price float64, others ...string) []models.Offer {
	out := []models.Offer{{
		ASIN:           asin,
		SellerID:       winner,
		SellerName:     "Seller " + winner,
		Price:          decimal.NewFromFloat(price),
		IsBuyBoxWinner: true,
		ObservedAt:     at,
	}}
	for _, id := range others {
		out = append(out, models.Offer{
			ASIN:       asin,
			SellerID:   id,
			Price:      decimal.NewFromFloat(price + 10),
			ObservedAt: at,
		})
	}
	return out
}

func observe(t *testing.T, repo *memrepo.Store, tr *Tracker, offers []models.Offer, at time.Time) *TransitionEvent {
	t.Helper()
	var ev *TransitionEvent
	err := repo.InTx(context.Background(), func(tx *gorm.DB) error {
		if err := repo.InsertOffersTx(context.Background(), tx, offers); err != nil {
			return err
		}
		var err error
		ev, err = tr.Apply(context.Background(), tx, asin, offers, at)
		return err
	})
	if err != nil {
		t.Fatalf("apply err=%v", err)
	}
	return ev
}

func TestTransitionClosesPreviousInterval(t *testing.T) {
	repo := memrepo.New()
	tr := &Tracker{Repo: repo}
	t1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(47*time.Minute + 30*time.Second)

	if ev := observe(t, repo, tr, batch(t1, "A", 100, "C"), t1); ev != nil {
		t.Fatalf("baseline produced event %+v", ev)
	}
	ev := observe(t, repo, tr, batch(t2, "B", 95, "A"), t2)
	if ev == nil {
		t.Fatalf("expected transition")
	}
	if ev.Previous.SellerID != "A" || ev.New.SellerID != "B" {
		t.Fatalf("event=%+v", ev)
	}
	if !ev.PriceDifference.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("diff=%s want=5", ev.PriceDifference)
	}
	if !ev.PriceDifferencePercent.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("pct=%s want=5", ev.PriceDifferencePercent)
	}
	if ev.PreviousDurationMinutes != 47 {
		t.Fatalf("duration=%d want=47", ev.PreviousDurationMinutes)
	}

	intervals, _ := repo.ListIntervals(context.Background(), repoParams())
	if len(intervals) != 2 {
		t.Fatalf("intervals=%d want=2", len(intervals))
	}
	var closed, open *models.BuyBoxInterval
	for i := range intervals {
		if intervals[i].IsOpen() {
			open = &intervals[i]
		} else {
			closed = &intervals[i]
		}
	}
	if closed == nil || open == nil {
		t.Fatalf("want one open and one closed interval, got %+v", intervals)
	}
	if closed.SellerID != "A" || !closed.EndedAt.Equal(t2) {
		t.Fatalf("closed=%+v", closed)
	}
	if closed.DurationMinutes == nil || *closed.DurationMinutes != 47 {
		t.Fatalf("closed duration=%v", closed.DurationMinutes)
	}
	if !closed.AveragePrice.Valid || !closed.AveragePrice.Decimal.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("closed avg=%v", closed.AveragePrice)
	}
	if open.SellerID != "B" || !open.StartedAt.Equal(t2) {
		t.Fatalf("open=%+v", open)
	}
}

func TestSameWinnerIsNoop(t *testing.T) {
	repo := memrepo.New()
	tr := &Tracker{Repo: repo}
	t1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(15 * time.Minute)

	observe(t, repo, tr, batch(t1, "A", 100), t1)
	if ev := observe(t, repo, tr, batch(t2, "A", 98), t2); ev != nil {
		t.Fatalf("same winner produced event %+v", ev)
	}
	open, _ := repo.GetOpenIntervalTx(context.Background(), nil, asin)
	if open == nil || open.SellerID != "A" {
		t.Fatalf("open=%+v", open)
	}
	if !open.StartedAt.Equal(t1) || !open.LastSeenAt.Equal(t2) || !open.LastPrice.Equal(decimal.NewFromInt(98)) {
		t.Fatalf("open interval not refreshed: %+v", open)
	}
	intervals, _ := repo.ListIntervals(context.Background(), repoParams())
	if len(intervals) != 1 {
		t.Fatalf("intervals=%d want=1", len(intervals))
	}
}

func TestFirstObservationNeverTransitions(t *testing.T) {
	for _, seller := range []string{"A", "B", "Z"} {
		repo := memrepo.New()
		tr := &Tracker{Repo: repo}
		at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
		if ev := observe(t, repo, tr, batch(at, seller, 50), at); ev != nil {
			t.Fatalf("seller=%s first observation produced event", seller)
		}
		open, _ := repo.GetOpenIntervalTx(context.Background(), nil, asin)
		if open == nil || open.SellerID != seller {
			t.Fatalf("seller=%s baseline interval missing", seller)
		}
	}
}

func TestBatchWithoutWinnerKeepsHolder(t *testing.T) {
	repo := memrepo.New()
	tr := &Tracker{Repo: repo}
	t1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	observe(t, repo, tr, batch(t1, "A", 100), t1)

	t2 := t1.Add(15 * time.Minute)
	if ev := observe(t, repo, tr, nil, t2); ev != nil {
		t.Fatalf("empty batch produced event")
	}
	noWinner := batch(t2, "B", 90)
	noWinner[0].IsBuyBoxWinner = false
	if ev := observe(t, repo, tr, noWinner, t2); ev != nil {
		t.Fatalf("batch without winner produced event")
	}
	open, _ := repo.GetOpenIntervalTx(context.Background(), nil, asin)
	if open == nil || open.SellerID != "A" || !open.LastSeenAt.Equal(t1) {
		t.Fatalf("holder changed: %+v", open)
	}

	t3 := t2.Add(15 * time.Minute)
	ev := observe(t, repo, tr, batch(t3, "B", 90), t3)
	if ev == nil || ev.Previous.SellerID != "A" {
		t.Fatalf("event=%+v", ev)
	}
	if ev.PreviousDurationMinutes != 30 {
		t.Fatalf("duration=%d want=30", ev.PreviousDurationMinutes)
	}
}

func TestFallsBackToOfferLedger(t *testing.T) {
	repo := memrepo.New()
	tr := &Tracker{Repo: repo}
	t1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	// Ledger rows written before intervals were materialized.
	if err := repo.InsertOffersTx(context.Background(), nil, batch(t1, "A", 80)); err != nil {
		t.Fatalf("seed err=%v", err)
	}

	t2 := t1.Add(time.Hour)
	ev := observe(t, repo, tr, batch(t2, "B", 60), t2)
	if ev == nil {
		t.Fatalf("expected transition from ledger")
	}
	if !ev.PriceDifference.Equal(decimal.NewFromInt(20)) || !ev.PriceDifferencePercent.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("event=%+v", ev)
	}
	if ev.PreviousDurationMinutes != 60 {
		t.Fatalf("duration=%d want=60", ev.PreviousDurationMinutes)
	}
	open, _ := repo.GetOpenIntervalTx(context.Background(), nil, asin)
	if open == nil || open.SellerID != "B" {
		t.Fatalf("open=%+v", open)
	}
	intervals, _ := repo.ListIntervals(context.Background(), repoParams())
	if len(intervals) != 2 {
		t.Fatalf("intervals=%d want=2", len(intervals))
	}
	for _, it := range intervals {
		if it.SellerID != "A" {
			continue
		}
		if it.IsOpen() || !it.StartedAt.Equal(t1) || !it.EndedAt.Equal(t2) || *it.DurationMinutes != 60 {
			t.Fatalf("ledger holder interval=%+v", it)
		}
	}
}

func TestFailedWriteRollsBack(t *testing.T) {
	repo := memrepo.New()
	tr := &Tracker{Repo: repo}
	t1 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	observe(t, repo, tr, batch(t1, "A", 100), t1)

	repo.FailWrite = func(op string, _ any) error {
		if op == "InsertInterval" {
			return gorm.ErrInvalidTransaction
		}
		return nil
	}
	t2 := t1.Add(10 * time.Minute)
	offers := batch(t2, "B", 90)
	err := repo.InTx(context.Background(), func(tx *gorm.DB) error {
		if err := repo.InsertOffersTx(context.Background(), tx, offers); err != nil {
			return err
		}
		_, err := tr.Apply(context.Background(), tx, asin, offers, t2)
		return err
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	open, _ := repo.GetOpenIntervalTx(context.Background(), nil, asin)
	if open == nil || open.SellerID != "A" {
		t.Fatalf("rollback left holder=%+v", open)
	}
	all, _ := repo.ListOffers(context.Background(), offerParams())
	if len(all) != 1 {
		t.Fatalf("offers=%d want=1 after rollback", len(all))
	}
}

func TestPercentOf(t *testing.T) {
	if got := PercentOf(decimal.NewFromInt(1), decimal.Zero); !got.IsZero() {
		t.Fatalf("pct=%s want=0", got)
	}
	if got := PercentOf(decimal.NewFromInt(1), decimal.NewFromInt(3)); got.String() != "33.33" {
		t.Fatalf("pct=%s want=33.33", got)
	}
}

func repoParams() repository.ListIntervalsParams {
	a := asin
	return repository.ListIntervalsParams{ASIN: &a}
}

func offerParams() repository.ListOffersParams {
	a := asin
	return repository.ListOffersParams{ASIN: &a}
}
