package enums

import "slices"

// ProductType distinguishes prescription lenses from stock (spare) lenses.
type ProductType string

const (
	ProductTypeRx    ProductType = "rx"
	ProductTypeSpare ProductType = "spare"
)

var productTypes = []ProductType{ProductTypeRx, ProductTypeSpare}

func (p ProductType) String() string { return string(p) }

func (p ProductType) IsValid() bool { return slices.Contains(productTypes, p) }

func ParseProductType(value string) (ProductType, error) {
	return parseOneOf("product type", productTypes, value)
}

// GroupProductScope is the product type a group discount rule targets; "all"
// matches every type.
type GroupProductScope string

const (
	GroupProductScopeAll   GroupProductScope = "all"
	GroupProductScopeRx    GroupProductScope = "rx"
	GroupProductScopeSpare GroupProductScope = "spare"
)

var groupProductScopes = []GroupProductScope{GroupProductScopeAll, GroupProductScopeRx, GroupProductScopeSpare}

func (s GroupProductScope) IsValid() bool { return slices.Contains(groupProductScopes, s) }

// Matches reports whether the scope covers the given product type.
func (s GroupProductScope) Matches(p ProductType) bool {
	return s == GroupProductScopeAll || string(s) == string(p)
}

func ParseGroupProductScope(value string) (GroupProductScope, error) {
	return parseOneOf("group product scope", groupProductScopes, value)
}
