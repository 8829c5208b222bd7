package service

import (
	"context"
	"errors"
	"testing"
	"time"

	memrepo "buybox/internal/repository/memory"
)

func TestResolveSellerNameCacheHit(t *testing.T) {
	repo := memrepo.New()
	lookup := &fakeLookup{names: map[string]string{"A1SELLER99": "Loja Boa"}}
	clk := &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	svc := &SellerIdentityService{Repo: repo, Lookup: lookup, Now: clk.Now}

	first := svc.ResolveSellerName(context.Background(), "A1SELLER99", SellerFeedback{})
	clk.Advance(6 * 24 * time.Hour)
	second := svc.ResolveSellerName(context.Background(), "A1SELLER99", SellerFeedback{})
	if first != "Loja Boa" || second != first {
		t.Fatalf("first=%q second=%q", first, second)
	}
	if lookup.calls != 1 {
		t.Fatalf("lookup calls=%d want=1", lookup.calls)
	}
}

func TestResolveSellerNameRefreshesStaleEntry(t *testing.T) {
	repo := memrepo.New()
	lookup := &fakeLookup{names: map[string]string{"A1SELLER99": "Loja Boa"}}
	clk := &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	svc := &SellerIdentityService{Repo: repo, Lookup: lookup, Now: clk.Now}

	svc.ResolveSellerName(context.Background(), "A1SELLER99", SellerFeedback{})
	clk.Advance(7*24*time.Hour + time.Minute)
	lookup.names["A1SELLER99"] = "Loja Boa Renomeada"
	if got := svc.ResolveSellerName(context.Background(), "A1SELLER99", SellerFeedback{}); got != "Loja Boa Renomeada" {
		t.Fatalf("name=%q", got)
	}
	if lookup.calls != 2 {
		t.Fatalf("lookup calls=%d want=2", lookup.calls)
	}
	cached, _ := repo.GetSellerCache(context.Background(), "A1SELLER99")
	if cached == nil || !cached.LastUpdated.Equal(clk.Now()) {
		t.Fatalf("cache=%+v", cached)
	}
}

func TestResolveSellerNameSynthesizesAndCaches(t *testing.T) {
	repo := memrepo.New()
	lookup := &fakeLookup{err: errors.New("captcha")}
	svc := &SellerIdentityService{Repo: repo, Lookup: lookup}

	rating := 91.0
	got := svc.ResolveSellerName(context.Background(), "A3UNRESOLVABLE", SellerFeedback{Rating: &rating})
	if got != "Seller A3UNRESO" {
		t.Fatalf("name=%q", got)
	}
	cached, _ := repo.GetSellerCache(context.Background(), "A3UNRESOLVABLE")
	if cached == nil || !cached.Synthesized || cached.FeedbackRating == nil || *cached.FeedbackRating != 91 {
		t.Fatalf("cache=%+v", cached)
	}
	svc.ResolveSellerName(context.Background(), "A3UNRESOLVABLE", SellerFeedback{})
	if lookup.calls != 1 {
		t.Fatalf("lookup calls=%d want=1", lookup.calls)
	}
}

func TestResolveSellerNameSurvivesStorageFailure(t *testing.T) {
	repo := memrepo.New()
	repo.FailWrite = func(op string, _ any) error { return errors.New("db down") }
	svc := &SellerIdentityService{Repo: repo}
	if got := svc.ResolveSellerName(context.Background(), "SHORT", SellerFeedback{}); got != "Seller SHORT" {
		t.Fatalf("name=%q", got)
	}
}

func TestResolveSellerNameKeepsStaleRealName(t *testing.T) {
	repo := memrepo.New()
	lookup := &fakeLookup{names: map[string]string{"A1SELLER99": "Loja Boa"}}
	clk := &clock{now: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	svc := &SellerIdentityService{Repo: repo, Lookup: lookup, Now: clk.Now}

	svc.ResolveSellerName(context.Background(), "A1SELLER99", SellerFeedback{})
	clk.Advance(8 * 24 * time.Hour)
	lookup.err = errors.New("blocked")
	if got := svc.ResolveSellerName(context.Background(), "A1SELLER99", SellerFeedback{}); got != "Loja Boa" {
		t.Fatalf("name=%q", got)
	}
}
