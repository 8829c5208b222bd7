// Package storefront resolves seller display names from the public seller
// profile page. It is a best-effort fallback for ids the pricing API returns
// without a name.
package storefront

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"buybox/internal/ratelimit"
)

var ErrNoName = errors.New("storefront: seller name not found")

var nameSelectors = []string{
	"#seller-name",
	"#sellerName-rd",
	"#sellerName",
	"h1#seller-name",
	".seller-name",
}

var (
	ratingPattern = regexp.MustCompile(`(\d{1,3})\s*%`)
	countPattern  = regexp.MustCompile(`\(([\d.,]+)`)
)

type Profile struct {
	SellerID       string
	Name           string
	FeedbackRating *float64
	FeedbackCount  *int
}

type Client struct {
	http    *resty.Client
	limiter *ratelimit.Limiter
}

func NewClient(baseURL string, timeout time.Duration, limiter *ratelimit.Limiter) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(timeout).
			SetHeader("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36").
			SetHeader("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8").
			SetHeader("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8"),
		limiter: limiter,
	}
}

// LookupSeller fetches the profile page of sellerID.
func (c *Client) LookupSeller(ctx context.Context, sellerID string) (Profile, error) {
	sellerID = strings.TrimSpace(sellerID)
	if c == nil || sellerID == "" {
		return Profile{}, ErrNoName
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return Profile{}, err
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("seller", sellerID).
		Get("/sp")
	if err != nil {
		return Profile{}, fmt.Errorf("storefront: fetch %s: %w", sellerID, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return Profile{}, fmt.Errorf("storefront: fetch %s: status %d", sellerID, resp.StatusCode())
	}
	return parseProfile(sellerID, resp.Body())
}

func parseProfile(sellerID string, body []byte) (Profile, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Profile{}, fmt.Errorf("storefront: parse: %w", err)
	}
	out := Profile{SellerID: sellerID}
	for _, sel := range nameSelectors {
		if name := strings.TrimSpace(doc.Find(sel).First().Text()); name != "" {
			out.Name = name
			break
		}
	}
	if out.Name == "" {
		return Profile{}, ErrNoName
	}

	feedback := strings.TrimSpace(doc.Find("#seller-feedback-summary").First().Text())
	if m := ratingPattern.FindStringSubmatch(feedback); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			out.FeedbackRating = &v
		}
	}
	if m := countPattern.FindStringSubmatch(feedback); m != nil {
		digits := strings.NewReplacer(".", "", ",", "").Replace(m[1])
		if v, err := strconv.Atoi(digits); err == nil {
			out.FeedbackCount = &v
		}
	}
	return out, nil
}
