package enums

// PricingTier names the precedence level that produced a unit price.
type PricingTier string

const (
	PricingTierSpecialPrice    PricingTier = "special_price"
	PricingTierProductDiscount PricingTier = "product_discount"
	PricingTierBrandDiscount   PricingTier = "brand_discount"
	PricingTierGroupDiscount   PricingTier = "group_discount"
	PricingTierBaseDiscount    PricingTier = "base_discount"
)

func (t PricingTier) String() string {
	return string(t)
}
