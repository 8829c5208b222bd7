package insight

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Text is the human-facing part of an insight. It is rendered from already
// computed numbers so the numeric fields stay testable on their own.
type Text struct {
	Title          string
	Description    string
	Recommendation string
}

func money(currency string, v decimal.Decimal) string {
	return fmt.Sprintf("%s %s", currency, v.StringFixed(2))
}

func transitionText(currency, product, prevName, newName string, prevPrice, newPrice, percentChange decimal.Decimal, lost bool, targetPrice decimal.Decimal) Text {
	t := Text{
		Title: fmt.Sprintf("%s won the Buy Box on %s", newName, product),
		Description: fmt.Sprintf("Buy Box moved from %s (%s) to %s (%s), a %s%% price change.",
			prevName, money(currency, prevPrice), newName, money(currency, newPrice), percentChange.StringFixed(2)),
	}
	if lost {
		t.Recommendation = fmt.Sprintf("Set the price to %s to undercut %s by 1%% and recover the Buy Box.",
			money(currency, targetPrice), newName)
	} else {
		t.Recommendation = fmt.Sprintf("Hold the price at %s and keep monitoring %s.",
			money(currency, newPrice), prevName)
	}
	return t
}

func priceGapText(currency, ourASIN, competitorASIN, competitorBrand string, ourPrice, competitorPrice, percentGap decimal.Decimal, weAreHigher bool, targetPrice decimal.Decimal) Text {
	brand := competitorBrand
	if brand == "" {
		brand = competitorASIN
	}
	t := Text{
		Title: fmt.Sprintf("Price gap of %s%% against %s", percentGap.StringFixed(1), brand),
		Description: fmt.Sprintf("%s is listed at %s while %s is at %s.",
			ourASIN, money(currency, ourPrice), competitorASIN, money(currency, competitorPrice)),
	}
	if weAreHigher {
		t.Recommendation = fmt.Sprintf("Lower the price to %s to sit 1%% below %s.",
			money(currency, targetPrice), brand)
	} else {
		t.Recommendation = fmt.Sprintf("You are %s%% cheaper than %s. Hold the price and monitor for a reaction.",
			percentGap.StringFixed(1), brand)
	}
	return t
}

func newCompetitorText(currency, product, sellerName string, appearances int64, avgPrice decimal.Decimal) Text {
	return Text{
		Title: fmt.Sprintf("New competitor %s on %s", sellerName, product),
		Description: fmt.Sprintf("%s appeared in %d collections with an average price of %s.",
			sellerName, appearances, money(currency, avgPrice)),
		Recommendation: fmt.Sprintf("Review pricing on %s against %s.", product, sellerName),
	}
}
