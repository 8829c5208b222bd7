// Package tracker derives Buy Box ownership intervals from successive offer
// batches of a product.
package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"buybox/internal/models"
	"buybox/internal/repository"
)

var hundred = decimal.NewFromInt(100)

type Holder struct {
	SellerID   string          `json:"seller_id"`
	SellerName string          `json:"seller_name"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// TransitionEvent reports that the Buy Box of ASIN moved from Previous to New.
// PriceDifference is Previous.Price minus New.Price.
type TransitionEvent struct {
	ASIN                   string          `json:"asin"`
	Previous               Holder          `json:"previous"`
	New                    Holder          `json:"new"`
	PriceDifference        decimal.Decimal `json:"price_difference"`
	PriceDifferencePercent decimal.Decimal `json:"price_difference_percent"`
	// PreviousDurationMinutes counts from the previous interval's start, or
	// from the last ledger sighting when no interval existed.
	PreviousDurationMinutes int `json:"previous_duration_minutes"`
}

type Tracker struct {
	Repo repository.TrackingRepository
}

// Apply compares the winner of offers with the current holder of asin and
// updates the interval ledger on tx. It returns nil when there is nothing to
// report: the first observation, an unchanged holder, or a batch without a
// winner. The batch itself must already be written on tx.
func (t *Tracker) Apply(ctx context.Context, tx *gorm.DB, asin string, offers []models.Offer, observedAt time.Time) (*TransitionEvent, error) {
	if t == nil || t.Repo == nil {
		return nil, fmt.Errorf("tracker: repository is nil")
	}
	asin = strings.TrimSpace(asin)
	winner := Winner(offers)
	if winner == nil {
		// No winner is not evidence of a change; keep the current holder.
		return nil, nil
	}
	next := Holder{
		SellerID:   winner.SellerID,
		SellerName: winner.SellerName,
		Price:      winner.Price,
		ObservedAt: observedAt,
	}

	open, err := t.Repo.GetOpenIntervalTx(ctx, tx, asin)
	if err != nil {
		return nil, err
	}
	if open != nil {
		if open.SellerID == next.SellerID {
			return nil, t.Repo.TouchIntervalTx(ctx, tx, open.ID, next.Price, observedAt)
		}
		prev := Holder{
			SellerID:   open.SellerID,
			SellerName: open.SellerName,
			Price:      open.LastPrice,
			ObservedAt: open.LastSeenAt,
		}
		minutes := durationMinutes(open.StartedAt, observedAt)
		if err := t.Repo.CloseIntervalTx(ctx, tx, open.ID, observedAt, minutes, prev.Price); err != nil {
			return nil, err
		}
		if err := t.openInterval(ctx, tx, asin, next); err != nil {
			return nil, err
		}
		ev := newEvent(asin, prev, next)
		ev.PreviousDurationMinutes = minutes
		return &ev, nil
	}

	// No materialized holder yet: fall back to the offer ledger.
	last, err := t.Repo.GetLatestWinningOfferTx(ctx, tx, asin, observedAt)
	if err != nil {
		return nil, err
	}
	if last == nil {
		return nil, t.openInterval(ctx, tx, asin, next)
	}
	if last.SellerID == next.SellerID {
		start := next
		start.ObservedAt = last.ObservedAt
		if err := t.openInterval(ctx, tx, asin, start); err != nil {
			return nil, err
		}
		return nil, nil
	}
	prev := Holder{
		SellerID:   last.SellerID,
		SellerName: last.SellerName,
		Price:      last.Price,
		ObservedAt: last.ObservedAt,
	}
	// The ledger only proves the previous holder from its last sighting on.
	minutes := durationMinutes(prev.ObservedAt, observedAt)
	end := observedAt
	if err := t.Repo.InsertIntervalTx(ctx, tx, &models.BuyBoxInterval{
		ASIN:            asin,
		SellerID:        prev.SellerID,
		SellerName:      prev.SellerName,
		StartedAt:       prev.ObservedAt,
		EndedAt:         &end,
		DurationMinutes: &minutes,
		AveragePrice:    decimal.NewNullDecimal(prev.Price),
		LastPrice:       prev.Price,
		LastSeenAt:      prev.ObservedAt,
	}); err != nil {
		return nil, err
	}
	if err := t.openInterval(ctx, tx, asin, next); err != nil {
		return nil, err
	}
	ev := newEvent(asin, prev, next)
	ev.PreviousDurationMinutes = minutes
	return &ev, nil
}

func (t *Tracker) openInterval(ctx context.Context, tx *gorm.DB, asin string, h Holder) error {
	return t.Repo.InsertIntervalTx(ctx, tx, &models.BuyBoxInterval{
		ASIN:       asin,
		SellerID:   h.SellerID,
		SellerName: h.SellerName,
		StartedAt:  h.ObservedAt,
		LastPrice:  h.Price,
		LastSeenAt: h.ObservedAt,
	})
}

// Winner returns the first offer flagged as Buy Box winner, or nil.
func Winner(offers []models.Offer) *models.Offer {
	for i := range offers {
		if offers[i].IsBuyBoxWinner {
			return &offers[i]
		}
	}
	return nil
}

func newEvent(asin string, prev, next Holder) TransitionEvent {
	diff := prev.Price.Sub(next.Price)
	return TransitionEvent{
		ASIN:                   asin,
		Previous:               prev,
		New:                    next,
		PriceDifference:        diff,
		PriceDifferencePercent: PercentOf(diff, prev.Price),
	}
}

// PercentOf returns part/whole*100 rounded to two places, or zero when whole
// is zero.
func PercentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred).Round(2)
}

func durationMinutes(start, end time.Time) int {
	if end.Before(start) {
		return 0
	}
	return int(end.Sub(start) / time.Minute)
}
