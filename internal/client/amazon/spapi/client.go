package spapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"buybox/internal/ratelimit"
)

const (
	defaultBaseURL  = "https://sellingpartnerapi-na.amazon.com"
	defaultTokenURL = "https://api.amazon.com/auth/o2/token"

	// tokenSkew refreshes the LWA token this long before it expires.
	tokenSkew = 5 * time.Minute
)

type Options struct {
	BaseURL       string
	TokenURL      string
	MarketplaceID string
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	// AccessToken is used as is when no RefreshToken is configured.
	AccessToken string
	Timeout     time.Duration

	BreakerFailures int
	BreakerTimeout  time.Duration

	Limiter *ratelimit.Limiter
	Logger  *zap.Logger
}

// Client talks to the Selling Partner API. Every request waits on the shared
// Limiter and runs through one circuit breaker.
type Client struct {
	http          *resty.Client
	tokenURL      string
	marketplaceID string
	clientID      string
	clientSecret  string
	refreshToken  string

	limiter *ratelimit.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.Logger
	now     func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(opts Options) *Client {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = defaultBaseURL
	}
	tokenURL := strings.TrimSpace(opts.TokenURL)
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(base).
			SetTimeout(timeout).
			SetHeader("Accept", "application/json").
			SetHeader("User-Agent", "buybox-tracker/1.0 (Language=Go)"),
		tokenURL:      tokenURL,
		marketplaceID: strings.TrimSpace(opts.MarketplaceID),
		clientID:      opts.ClientID,
		clientSecret:  opts.ClientSecret,
		refreshToken:  opts.RefreshToken,
		limiter:       opts.Limiter,
		logger:        logger,
		now:           time.Now,
	}
	if opts.RefreshToken == "" && opts.AccessToken != "" {
		c.token = opts.AccessToken
		c.tokenExpiry = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	failures := opts.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	openFor := opts.BreakerTimeout
	if openFor <= 0 {
		openFor = time.Minute
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "spapi",
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			return !countsAsFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return c
}

func (c *Client) MarketplaceID() string {
	return c.marketplaceID
}

// FetchCompetitiveOffers returns all new-condition offers for asin.
func (c *Client) FetchCompetitiveOffers(ctx context.Context, asin string) ([]Offer, error) {
	asin = strings.TrimSpace(asin)
	if asin == "" {
		return nil, fmt.Errorf("asin is required")
	}
	body, err := c.get(ctx, "/products/pricing/v0/items/"+url.PathEscape(asin)+"/offers", map[string]string{
		"MarketplaceId": c.marketplaceID,
		"ItemCondition": "New",
		"CustomerType":  "Consumer",
	})
	if err != nil {
		return nil, err
	}
	offers, err := parseOffers(body)
	if err != nil {
		return nil, transient("parse offers", err)
	}
	return offers, nil
}

// FetchProductDetails combines the catalog item with the lowest current
// listing price. Two requests, each drawing from the rate budget.
func (c *Client) FetchProductDetails(ctx context.Context, asin string) (ProductDetails, error) {
	asin = strings.TrimSpace(asin)
	if asin == "" {
		return ProductDetails{}, fmt.Errorf("asin is required")
	}
	body, err := c.get(ctx, "/catalog/2022-04-01/items/"+url.PathEscape(asin), map[string]string{
		"marketplaceIds": c.marketplaceID,
		"includedData":   "attributes,images,salesRanks,summaries",
	})
	if err != nil {
		return ProductDetails{}, err
	}
	details, err := parseCatalogItem(asin, body)
	if err != nil {
		return ProductDetails{}, transient("parse catalog item", err)
	}

	offers, err := c.FetchCompetitiveOffers(ctx, asin)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return details, err
	}
	details.Price = LowestPrice(offers)
	return details, nil
}

func (c *Client) get(ctx context.Context, path string, query map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transient("wait for rate budget", err)
	}
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("x-amz-access-token", token).
			SetQueryParams(query).
			Get(path)
		if err != nil {
			return nil, transient("GET "+path, err)
		}
		if resp.StatusCode() != http.StatusOK {
			if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
				c.invalidateToken()
			}
			return nil, &APIError{Status: resp.StatusCode(), Body: string(resp.Body())}
		}
		return resp.Body(), nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, transient("circuit "+c.breaker.Name(), err)
	}
	return body, err
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	if c.refreshToken == "" {
		return "", fmt.Errorf("spapi: no refresh token or access token configured")
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": c.refreshToken,
			"client_id":     c.clientID,
			"client_secret": c.clientSecret,
		}).
		Post(c.tokenURL)
	if err != nil {
		return "", transient("refresh token", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", &APIError{Status: resp.StatusCode(), Body: string(resp.Body())}
	}
	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return "", transient("decode token", err)
	}
	if tr.AccessToken == "" {
		return "", transient("refresh token", errors.New("empty access_token"))
	}
	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	c.token = tr.AccessToken
	c.tokenExpiry = c.now().Add(ttl - tokenSkew)
	c.logger.Debug("spapi token refreshed", zap.Duration("ttl", ttl))
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshToken == "" {
		return
	}
	c.token = ""
	c.tokenExpiry = time.Time{}
}
