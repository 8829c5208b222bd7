package service

import (
	"context"
	"sync"
	"time"

	"buybox/internal/client/amazon/spapi"
	"buybox/internal/client/amazon/storefront"
	"buybox/internal/notify"
)

type fakeOffers struct {
	mu     sync.Mutex
	offers map[string][]spapi.Offer
	errs   map[string]error
	calls  map[string]int
	// When set, each fetch announces itself on entered and waits on block.
	entered chan string
	block   chan struct{}
}

func newFakeOffers() *fakeOffers {
	return &fakeOffers{offers: map[string][]spapi.Offer{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeOffers) FetchCompetitiveOffers(ctx context.Context, asin string) ([]spapi.Offer, error) {
	if f.block != nil {
		f.entered <- asin
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[asin]++
	if err := f.errs[asin]; err != nil {
		return nil, err
	}
	return append([]spapi.Offer(nil), f.offers[asin]...), nil
}

type fakeLookup struct {
	mu    sync.Mutex
	names map[string]string
	err   error
	calls int
}

func (f *fakeLookup) LookupSeller(ctx context.Context, sellerID string) (storefront.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return storefront.Profile{}, f.err
	}
	name, ok := f.names[sellerID]
	if !ok {
		return storefront.Profile{}, storefront.ErrNoName
	}
	return storefront.Profile{SellerID: sellerID, Name: name}, nil
}

type fakeCatalog struct {
	mu      sync.Mutex
	details map[string]spapi.ProductDetails
	errs    map[string]error
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{details: map[string]spapi.ProductDetails{}, errs: map[string]error{}}
}

func (f *fakeCatalog) FetchProductDetails(ctx context.Context, asin string) (spapi.ProductDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[asin]; err != nil {
		return spapi.ProductDetails{}, err
	}
	d, ok := f.details[asin]
	if !ok {
		return spapi.ProductDetails{}, spapi.ErrNotFound
	}
	return d, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
