package pricing

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lensdist-backend/internal/discounts"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

// ProductInfo is the slice of catalog data pricing needs.
type ProductInfo struct {
	ID          uuid.UUID
	BrandID     uuid.UUID
	ProductType enums.ProductType
	ListPrice   *int64
}

// Resolution describes which tier priced a line and how.
type Resolution struct {
	ProductID   uuid.UUID         `json:"product_id"`
	Quantity    int               `json:"quantity"`
	ListPrice   int64             `json:"list_price"`
	UnitPrice   int64             `json:"unit_price"`
	LineTotal   int64             `json:"line_total"`
	Tier        enums.PricingTier `json:"tier"`
	Rate        *decimal.Decimal  `json:"discount_rate,omitempty"`
	GroupRuleID *uuid.UUID        `json:"group_rule_id,omitempty"`
	Clamped     bool              `json:"clamped,omitempty"`
}

type pricingContext struct {
	rules     *discounts.RuleSet
	product   ProductInfo
	listPrice int64
	quantity  int
}

type tier func(pc pricingContext) (Resolution, bool)

// tiers is evaluated in order; the first tier that yields a result wins.
var tiers = []tier{
	specialPriceTier,
	productDiscountTier,
	brandDiscountTier,
	groupDiscountTier,
	baseDiscountTier,
}

// Resolve prices one line. It is pure: identical inputs always give identical output.
func Resolve(rules *discounts.RuleSet, product ProductInfo, quantity int) (Resolution, error) {
	if rules == nil {
		return Resolution{}, pkgerrors.New(pkgerrors.CodeValidation, "rule set is required")
	}
	if quantity < 1 {
		return Resolution{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if product.ListPrice == nil {
		return Resolution{}, pkgerrors.New(pkgerrors.CodeInvalidProduct, "product has no list price").
			WithDetails(map[string]any{"product_id": product.ID})
	}

	pc := pricingContext{rules: rules, product: product, listPrice: *product.ListPrice, quantity: quantity}
	for _, t := range tiers {
		res, ok := t(pc)
		if !ok {
			continue
		}
		res.ProductID = product.ID
		res.Quantity = quantity
		res.ListPrice = pc.listPrice
		if res.UnitPrice < 0 {
			res.UnitPrice = 0
			res.Clamped = true
		}
		res.LineTotal = res.UnitPrice * int64(quantity)
		return res, nil
	}
	// baseDiscountTier always matches.
	return Resolution{}, pkgerrors.New(pkgerrors.CodeInternal, "no pricing tier matched")
}

// ApplyRate returns listPrice * (1 - rate/100) rounded half-up to a whole unit.
func ApplyRate(listPrice int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(listPrice).
		Mul(hundred.Sub(rate)).
		Div(hundred).
		Round(0).
		IntPart()
}

func rateResolution(pc pricingContext, t enums.PricingTier, rate decimal.Decimal) Resolution {
	r := rate
	return Resolution{
		UnitPrice: ApplyRate(pc.listPrice, rate),
		Tier:      t,
		Rate:      &r,
	}
}

func specialPriceTier(pc pricingContext) (Resolution, bool) {
	price, ok := pc.rules.SpecialPrices[pc.product.ID]
	if !ok {
		return Resolution{}, false
	}
	return Resolution{UnitPrice: price, Tier: enums.PricingTierSpecialPrice}, true
}

func productDiscountTier(pc pricingContext) (Resolution, bool) {
	rate, ok := pc.rules.ProductRates[pc.product.ID]
	if !ok {
		return Resolution{}, false
	}
	return rateResolution(pc, enums.PricingTierProductDiscount, rate), true
}

func brandDiscountTier(pc pricingContext) (Resolution, bool) {
	rate, ok := pc.rules.BrandRates[pc.product.BrandID]
	if !ok {
		return Resolution{}, false
	}
	return rateResolution(pc, enums.PricingTierBrandDiscount, rate), true
}

func groupDiscountTier(pc pricingContext) (Resolution, bool) {
	if pc.rules.GroupID == nil {
		return Resolution{}, false
	}
	rule, ok := bestGroupRule(pc.rules.GroupRules, pc.product, pc.quantity)
	if !ok {
		return Resolution{}, false
	}
	res := rateResolution(pc, enums.PricingTierGroupDiscount, rule.Rate)
	id := rule.ID
	res.GroupRuleID = &id
	return res, true
}

func baseDiscountTier(pc pricingContext) (Resolution, bool) {
	return rateResolution(pc, enums.PricingTierBaseDiscount, pc.rules.BaseRate), true
}

// bestGroupRule picks among qualifying rules: brand-specific over wildcard,
// exact product type over "all", higher rate, then lowest id.
func bestGroupRule(rules []discounts.GroupRule, product ProductInfo, quantity int) (discounts.GroupRule, bool) {
	candidates := make([]discounts.GroupRule, 0, len(rules))
	for _, rule := range rules {
		if rule.BrandID != nil && *rule.BrandID != product.BrandID {
			continue
		}
		if !rule.ProductScope.Matches(product.ProductType) {
			continue
		}
		if quantity < rule.MinQuantity {
			continue
		}
		candidates = append(candidates, rule)
	}
	if len(candidates) == 0 {
		return discounts.GroupRule{}, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if aSpecific, bSpecific := a.BrandID != nil, b.BrandID != nil; aSpecific != bSpecific {
			return aSpecific
		}
		if aExact, bExact := a.ProductScope != enums.GroupProductScopeAll, b.ProductScope != enums.GroupProductScopeAll; aExact != bExact {
			return aExact
		}
		if cmp := a.Rate.Cmp(b.Rate); cmp != 0 {
			return cmp > 0
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
	return candidates[0], true
}
