package enums

import "slices"

// AdjustmentDirection states whether a manual adjustment raises or lowers
// what a store owes. Amounts on adjustments are always positive.
type AdjustmentDirection string

const (
	AdjustmentIncrease AdjustmentDirection = "increase"
	AdjustmentDecrease AdjustmentDirection = "decrease"
)

var adjustmentDirections = []AdjustmentDirection{AdjustmentIncrease, AdjustmentDecrease}

func (d AdjustmentDirection) IsValid() bool { return slices.Contains(adjustmentDirections, d) }

func ParseAdjustmentDirection(value string) (AdjustmentDirection, error) {
	return parseOneOf("adjustment direction", adjustmentDirections, value)
}
