package spapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Offer is a normalized competitive offer.
type Offer struct {
	SellerID            string
	Price               decimal.Decimal
	ShippingPrice       decimal.Decimal
	IsBuyBoxWinner      bool
	IsFulfilledByAmazon bool
	FeedbackRating      *float64
	FeedbackCount       *int
}

// ProductDetails is the subset of catalog and pricing data used for manual
// competitor comparisons.
type ProductDetails struct {
	ASIN         string          `json:"asin"`
	Title        string          `json:"title"`
	Price        decimal.Decimal `json:"price"`
	Rank         int             `json:"rank"`
	ReviewsCount int             `json:"reviews_count"`
	Rating       float64         `json:"rating"`
	ImageURL     string          `json:"image_url,omitempty"`
}

type money struct {
	CurrencyCode string          `json:"CurrencyCode"`
	Amount       decimal.Decimal `json:"Amount"`
}

type offerPayload struct {
	SellerID             string `json:"SellerId"`
	SellerFeedbackRating *struct {
		SellerPositiveFeedbackRating *float64 `json:"SellerPositiveFeedbackRating"`
		FeedbackCount                *int     `json:"FeedbackCount"`
	} `json:"SellerFeedbackRating"`
	ListingPrice        money `json:"ListingPrice"`
	Shipping            money `json:"Shipping"`
	IsFulfilledByAmazon bool  `json:"IsFulfilledByAmazon"`
	IsBuyBoxWinner      bool  `json:"IsBuyBoxWinner"`
}

type itemOffersResponse struct {
	Payload struct {
		ASIN   string         `json:"ASIN"`
		Status string         `json:"status"`
		Offers []offerPayload `json:"Offers"`
	} `json:"payload"`
}

type catalogItemResponse struct {
	ASIN      string `json:"asin"`
	Summaries []struct {
		ItemName string `json:"itemName"`
		Brand    string `json:"brand"`
	} `json:"summaries"`
	SalesRanks []struct {
		ClassificationRanks []struct {
			Rank int `json:"rank"`
		} `json:"classificationRanks"`
		DisplayGroupRanks []struct {
			Rank int `json:"rank"`
		} `json:"displayGroupRanks"`
	} `json:"salesRanks"`
	Images []struct {
		Images []struct {
			Link string `json:"link"`
		} `json:"images"`
	} `json:"images"`
	Attributes map[string][]attributeValue `json:"attributes"`
}

type attributeValue struct {
	Value json.RawMessage `json:"value"`
}

// parseOffers decodes a getItemOffers body. JSON field matching is case
// insensitive, so both the PascalCase and camelCase variants of the payload
// decode into the same struct.
func parseOffers(body []byte) ([]Offer, error) {
	var resp itemOffersResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode offers: %w", err)
	}
	out := make([]Offer, 0, len(resp.Payload.Offers))
	for _, raw := range resp.Payload.Offers {
		sellerID := strings.TrimSpace(raw.SellerID)
		if sellerID == "" {
			continue
		}
		o := Offer{
			SellerID:            sellerID,
			Price:               raw.ListingPrice.Amount,
			ShippingPrice:       raw.Shipping.Amount,
			IsBuyBoxWinner:      raw.IsBuyBoxWinner,
			IsFulfilledByAmazon: raw.IsFulfilledByAmazon,
		}
		if raw.SellerFeedbackRating != nil {
			o.FeedbackRating = raw.SellerFeedbackRating.SellerPositiveFeedbackRating
			o.FeedbackCount = raw.SellerFeedbackRating.FeedbackCount
		}
		out = append(out, o)
	}
	return out, nil
}

func parseCatalogItem(asin string, body []byte) (ProductDetails, error) {
	var resp catalogItemResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ProductDetails{}, fmt.Errorf("decode catalog item: %w", err)
	}
	out := ProductDetails{ASIN: asin, Title: "Unknown"}
	if len(resp.Summaries) > 0 && strings.TrimSpace(resp.Summaries[0].ItemName) != "" {
		out.Title = strings.TrimSpace(resp.Summaries[0].ItemName)
	}
	if len(resp.SalesRanks) > 0 {
		sr := resp.SalesRanks[0]
		switch {
		case len(sr.DisplayGroupRanks) > 0:
			out.Rank = sr.DisplayGroupRanks[0].Rank
		case len(sr.ClassificationRanks) > 0:
			out.Rank = sr.ClassificationRanks[0].Rank
		}
	}
	if len(resp.Images) > 0 && len(resp.Images[0].Images) > 0 {
		out.ImageURL = resp.Images[0].Images[0].Link
	}
	out.ReviewsCount = int(attributeNumber(resp.Attributes, "total_review_count"))
	out.Rating = attributeNumber(resp.Attributes, "star_rating")
	return out, nil
}

// attributeNumber reads attributes[name][0].value, which the catalog API
// returns either as a JSON number or as a quoted number.
func attributeNumber(attrs map[string][]attributeValue, name string) float64 {
	vals := attrs[name]
	if len(vals) == 0 || len(vals[0].Value) == 0 {
		return 0
	}
	raw := strings.Trim(string(vals[0].Value), `"`)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	f, _ := d.Float64()
	return f
}

// LowestPrice is the cheapest listing price among offers, or zero.
func LowestPrice(offers []Offer) decimal.Decimal {
	var lowest decimal.Decimal
	for i, o := range offers {
		if i == 0 || o.Price.LessThan(lowest) {
			lowest = o.Price
		}
	}
	return lowest
}
