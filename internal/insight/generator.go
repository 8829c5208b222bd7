// Package insight turns Buy Box transitions, manual price gaps and newly seen
// sellers into pending insight rows.
package insight

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"buybox/internal/models"
	"buybox/internal/repository"
	"buybox/internal/tracker"
)

const (
	transitionConfidence    = 0.95
	priceGapConfidence      = 0.9
	newCompetitorConfidence = 0.8
)

var (
	undercut          = decimal.RequireFromString("0.99")
	gapThreshold      = decimal.RequireFromString("0.10")
	highGapThreshold  = decimal.RequireFromString("0.20")
	newCompetitorCost = decimal.NewFromInt(50)
	hundred           = decimal.NewFromInt(100)
)

type Generator struct {
	// OurSellerIDs decides whether a transition is a loss or a gain.
	OurSellerIDs []string
	// TransitionImpactScale multiplies |priceDifference| into potentialImpact.
	TransitionImpactScale decimal.Decimal
	GapImpactScale        decimal.Decimal
	Currency              string
}

func NewGenerator(ourSellerIDs []string, transitionScale, gapScale float64, currency string) *Generator {
	if transitionScale <= 0 {
		transitionScale = 100
	}
	if gapScale <= 0 {
		gapScale = 10
	}
	if strings.TrimSpace(currency) == "" {
		currency = "R$"
	}
	return &Generator{
		OurSellerIDs:          ourSellerIDs,
		TransitionImpactScale: decimal.NewFromFloat(transitionScale),
		GapImpactScale:        decimal.NewFromFloat(gapScale),
		Currency:              currency,
	}
}

func (g *Generator) IsOurs(sellerID string) bool {
	for _, id := range g.OurSellerIDs {
		if strings.EqualFold(strings.TrimSpace(id), sellerID) {
			return true
		}
	}
	return false
}

// FromTransition always yields a high priority insight. The recommendation
// carries a target price of 99% of the new winner's price unless the new
// winner is one of our sellers.
func (g *Generator) FromTransition(ev tracker.TransitionEvent) models.Insight {
	won := g.IsOurs(ev.New.SellerID)
	target := ev.New.Price.Mul(undercut).Round(2)

	action := models.ActionWonBuyBox
	if ev.New.Price.LessThan(ev.Previous.Price) {
		action = models.ActionLoweredPrice
	}
	text := transitionText(g.Currency, ev.ASIN, displayName(ev.Previous), displayName(ev.New),
		ev.Previous.Price, ev.New.Price, ev.PriceDifferencePercent, !won, target)

	data := map[string]any{
		"previous_seller_id":       ev.Previous.SellerID,
		"previous_price":           ev.Previous.Price,
		"new_seller_id":            ev.New.SellerID,
		"new_price":                ev.New.Price,
		"price_difference":         ev.PriceDifference,
		"price_difference_percent": ev.PriceDifferencePercent,
		"previous_duration_min":    ev.PreviousDurationMinutes,
		"we_won":                   won,
	}
	if !won {
		data["target_price"] = target
	}
	return models.Insight{
		ASIN:               ev.ASIN,
		InsightType:        models.InsightTypeBuyBoxChange,
		Priority:           models.PriorityHigh,
		Title:              text.Title,
		Description:        text.Description,
		Recommendation:     text.Recommendation,
		CompetitorName:     ev.New.SellerName,
		CompetitorSellerID: ev.New.SellerID,
		CompetitorAction:   action,
		SupportingData:     encode(data),
		ConfidenceScore:    transitionConfidence,
		PotentialImpact:    ev.PriceDifference.Abs().Mul(g.TransitionImpactScale).Round(2),
		Status:             models.InsightStatusPending,
		CreatedAt:          ev.New.ObservedAt,
	}
}

type PriceGap struct {
	OurASIN         string
	CompetitorASIN  string
	CompetitorBrand string
	OurPrice        decimal.Decimal
	CompetitorPrice decimal.Decimal
	ObservedAt      time.Time
}

// GapRatio is |our - competitor| / competitor. ok is false when the
// competitor price is not positive.
func (p PriceGap) GapRatio() (ratio decimal.Decimal, ok bool) {
	if !p.CompetitorPrice.IsPositive() {
		return decimal.Zero, false
	}
	return p.OurPrice.Sub(p.CompetitorPrice).Abs().Div(p.CompetitorPrice), true
}

// FromPriceGap returns nil unless the gap is strictly above 10%.
func (g *Generator) FromPriceGap(p PriceGap) *models.Insight {
	ratio, ok := p.GapRatio()
	if !ok || !ratio.GreaterThan(gapThreshold) {
		return nil
	}
	priority := models.PriorityMedium
	if ratio.GreaterThan(highGapThreshold) {
		priority = models.PriorityHigh
	}
	higher := p.OurPrice.GreaterThan(p.CompetitorPrice)
	target := p.CompetitorPrice.Mul(undercut).Round(2)
	pct := ratio.Mul(hundred).Round(2)
	diff := p.OurPrice.Sub(p.CompetitorPrice)

	text := priceGapText(g.Currency, p.OurASIN, p.CompetitorASIN, p.CompetitorBrand,
		p.OurPrice, p.CompetitorPrice, pct, higher, target)
	data := map[string]any{
		"our_asin":                 p.OurASIN,
		"competitor_asin":          p.CompetitorASIN,
		"our_price":                p.OurPrice,
		"competitor_price":         p.CompetitorPrice,
		"price_difference":         diff,
		"price_difference_percent": pct,
		"we_are_higher":            higher,
	}
	if higher {
		data["target_price"] = target
	}
	action := models.ActionLoweredPrice
	if !higher {
		action = ""
	}
	return &models.Insight{
		ASIN:             p.OurASIN,
		InsightType:      models.InsightTypeManualPriceGap,
		Priority:         priority,
		Title:            text.Title,
		Description:      text.Description,
		Recommendation:   text.Recommendation,
		CompetitorName:   p.CompetitorBrand,
		CompetitorAction: action,
		SupportingData:   encode(data),
		ConfidenceScore:  priceGapConfidence,
		PotentialImpact:  diff.Abs().Mul(g.GapImpactScale).Round(2),
		Status:           models.InsightStatusPending,
		CreatedAt:        p.ObservedAt,
	}
}

func (g *Generator) FromNewCompetitor(row repository.NewCompetitorRow) models.Insight {
	name := row.SellerName
	if name == "" {
		name = row.SellerID
	}
	text := newCompetitorText(g.Currency, row.ASIN, name, row.Appearances, row.AvgPrice.Round(2))
	return models.Insight{
		ASIN:               row.ASIN,
		InsightType:        models.InsightTypeNewCompetitor,
		Priority:           models.PriorityMedium,
		Title:              text.Title,
		Description:        text.Description,
		Recommendation:     text.Recommendation,
		CompetitorName:     name,
		CompetitorSellerID: row.SellerID,
		CompetitorAction:   models.ActionNewCompetitor,
		SupportingData: encode(map[string]any{
			"first_seen":  row.FirstSeen,
			"appearances": row.Appearances,
			"avg_price":   row.AvgPrice.Round(2),
		}),
		ConfidenceScore: newCompetitorConfidence,
		PotentialImpact: newCompetitorCost,
		Status:          models.InsightStatusPending,
	}
}

func displayName(h tracker.Holder) string {
	if strings.TrimSpace(h.SellerName) != "" {
		return h.SellerName
	}
	return h.SellerID
}

func encode(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(raw)
}
