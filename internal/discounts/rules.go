package discounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
)

// RuleSet is every pricing rule that can apply to one store at read time.
type RuleSet struct {
	StoreID       uuid.UUID                     `json:"store_id"`
	BaseRate      decimal.Decimal               `json:"base_rate"`
	GroupID       *uuid.UUID                    `json:"group_id,omitempty"`
	BrandRates    map[uuid.UUID]decimal.Decimal `json:"brand_rates"`
	ProductRates  map[uuid.UUID]decimal.Decimal `json:"product_rates"`
	SpecialPrices map[uuid.UUID]int64           `json:"special_prices"`
	GroupRules    []GroupRule                   `json:"group_rules"`
}

// GroupRule is a group discount as seen by pricing. A nil BrandID matches every brand.
type GroupRule struct {
	ID           uuid.UUID               `json:"id"`
	GroupID      uuid.UUID               `json:"group_id"`
	BrandID      *uuid.UUID              `json:"brand_id,omitempty"`
	ProductScope enums.GroupProductScope `json:"product_scope"`
	Rate         decimal.Decimal         `json:"discount_rate"`
	MinQuantity  int                     `json:"min_quantity"`
	CreatedAt    time.Time               `json:"created_at"`
	UpdatedAt    time.Time               `json:"updated_at"`
}

// GroupRuleInput creates or replaces a group discount.
type GroupRuleInput struct {
	BrandID      *uuid.UUID
	ProductScope enums.GroupProductScope
	Rate         decimal.Decimal
	MinQuantity  int
}

func newRuleSet(store *models.Store) *RuleSet {
	set := &RuleSet{
		StoreID:       store.ID,
		BaseRate:      store.BaseDiscountRate,
		BrandRates:    map[uuid.UUID]decimal.Decimal{},
		ProductRates:  map[uuid.UUID]decimal.Decimal{},
		SpecialPrices: map[uuid.UUID]int64{},
		GroupRules:    []GroupRule{},
	}
	if store.GroupID != nil {
		id := *store.GroupID
		set.GroupID = &id
	}
	return set
}

func groupRuleFromModel(m *models.GroupDiscount) GroupRule {
	rule := GroupRule{
		ID:           m.ID,
		GroupID:      m.GroupID,
		ProductScope: m.ProductScope,
		Rate:         m.DiscountRate,
		MinQuantity:  m.MinQuantity,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.BrandID != nil {
		id := *m.BrandID
		rule.BrandID = &id
	}
	return rule
}
