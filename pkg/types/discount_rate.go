package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// MinDiscountRate and MaxDiscountRate bound every stored discount percentage.
	MinDiscountRate = decimal.Zero
	MaxDiscountRate = decimal.NewFromInt(100)
)

// ValidateDiscountRate rejects percentages outside [0, 100] or with more than two decimals.
func ValidateDiscountRate(rate decimal.Decimal) error {
	if rate.LessThan(MinDiscountRate) || rate.GreaterThan(MaxDiscountRate) {
		return fmt.Errorf("discount rate must be between 0 and 100, got %s", rate.String())
	}
	if !rate.Equal(rate.Truncate(2)) {
		return fmt.Errorf("discount rate supports at most two decimals, got %s", rate.String())
	}
	return nil
}
