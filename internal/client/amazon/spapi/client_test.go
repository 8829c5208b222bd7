package spapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const offersBody = `{
  "payload": {
    "ASIN": "B000TEST01",
    "status": "Success",
    "Offers": [
      {
        "SellerId": "A1WINNER",
        "ListingPrice": {"CurrencyCode": "BRL", "Amount": 99.90},
        "Shipping": {"CurrencyCode": "BRL", "Amount": 0},
        "IsFulfilledByAmazon": true,
        "IsBuyBoxWinner": true,
        "SellerFeedbackRating": {"SellerPositiveFeedbackRating": 97, "FeedbackCount": 1520}
      },
      {
        "sellerId": "A2OTHER",
        "listingPrice": {"amount": 104.50},
        "shipping": {"amount": 12.00},
        "isBuyBoxWinner": false
      },
      {"SellerId": "", "ListingPrice": {"Amount": 1}}
    ]
  }
}`

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(Options{
		BaseURL:         srv.URL,
		MarketplaceID:   "A2Q3Y263D00KWC",
		AccessToken:     "static-token",
		BreakerFailures: 2,
	})
	return c, srv
}

func TestFetchCompetitiveOffersParsesBothCasings(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-amz-access-token"); got != "static-token" {
			t.Errorf("token header=%q", got)
		}
		if !strings.HasSuffix(r.URL.Path, "/items/B000TEST01/offers") {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.URL.Query().Get("ItemCondition") != "New" {
			t.Errorf("missing ItemCondition")
		}
		_, _ = w.Write([]byte(offersBody))
	})

	offers, err := c.FetchCompetitiveOffers(context.Background(), "B000TEST01")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("offers=%d want=2", len(offers))
	}
	if offers[0].SellerID != "A1WINNER" || !offers[0].IsBuyBoxWinner || !offers[0].IsFulfilledByAmazon {
		t.Fatalf("first offer=%+v", offers[0])
	}
	if offers[0].FeedbackCount == nil || *offers[0].FeedbackCount != 1520 {
		t.Fatalf("feedback count=%v", offers[0].FeedbackCount)
	}
	if offers[1].SellerID != "A2OTHER" || offers[1].Price.String() != "104.5" || offers[1].ShippingPrice.String() != "12" {
		t.Fatalf("second offer=%+v", offers[1])
	}
	if LowestPrice(offers).String() != "99.9" {
		t.Fatalf("lowest=%s", LowestPrice(offers))
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusInternalServerError, ErrTransient},
		{http.StatusBadGateway, ErrTransient},
	}
	for _, tc := range cases {
		c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		})
		_, err := c.FetchCompetitiveOffers(context.Background(), "B000TEST01")
		if !errors.Is(err, tc.want) {
			t.Fatalf("status=%d err=%v want=%v", tc.status, err, tc.want)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != tc.status {
			t.Fatalf("status=%d expected APIError, got %v", tc.status, err)
		}
	}
}

func TestBreakerOpensOnTransientFailures(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	for i := 0; i < 2; i++ {
		if _, err := c.FetchCompetitiveOffers(context.Background(), "B000TEST01"); !errors.Is(err, ErrTransient) {
			t.Fatalf("call %d err=%v", i, err)
		}
	}
	_, err := c.FetchCompetitiveOffers(context.Background(), "B000TEST01")
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("open breaker err=%v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("hits=%d want=2 (third call must not reach upstream)", hits.Load())
	}
}

func TestRateLimitDoesNotTripBreaker(t *testing.T) {
	var hits atomic.Int32
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	})
	for i := 0; i < 4; i++ {
		if _, err := c.FetchCompetitiveOffers(context.Background(), "B000TEST01"); !errors.Is(err, ErrRateLimited) {
			t.Fatalf("call %d err=%v", i, err)
		}
	}
	if hits.Load() != 4 {
		t.Fatalf("hits=%d want=4", hits.Load())
	}
}

func TestFetchProductDetails(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/catalog/2022-04-01/items/"):
			_, _ = w.Write([]byte(`{
			  "asin": "B000TEST01",
			  "summaries": [{"itemName": "Garrafa Termica 1L"}],
			  "salesRanks": [{"displayGroupRanks": [{"rank": 321}]}],
			  "attributes": {"total_review_count": [{"value": "88"}], "star_rating": [{"value": 4.6}]}
			}`))
		default:
			_, _ = w.Write([]byte(offersBody))
		}
	})
	d, err := c.FetchProductDetails(context.Background(), "B000TEST01")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if d.Title != "Garrafa Termica 1L" || d.Rank != 321 || d.ReviewsCount != 88 || d.Rating != 4.6 {
		t.Fatalf("details=%+v", d)
	}
	if d.Price.String() != "99.9" {
		t.Fatalf("price=%s", d.Price)
	}
}

func TestTokenRefresh(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/o2/token" {
			tokenCalls.Add(1)
			if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "refresh_token" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"fresh","expires_in":3600,"token_type":"bearer"}`))
			return
		}
		if r.Header.Get("x-amz-access-token") != "fresh" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(offersBody))
	}))
	defer srv.Close()

	c := NewClient(Options{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/auth/o2/token",
		RefreshToken: "refresh",
		ClientID:     "id",
		ClientSecret: "secret",
	})
	for i := 0; i < 3; i++ {
		if _, err := c.FetchCompetitiveOffers(context.Background(), "B000TEST01"); err != nil {
			t.Fatalf("call %d err=%v", i, err)
		}
	}
	if tokenCalls.Load() != 1 {
		t.Fatalf("token calls=%d want=1", tokenCalls.Load())
	}
}
