package types

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidateDiscountRate(t *testing.T) {
	cases := []struct {
		rate    string
		wantErr bool
	}{
		{"0", false},
		{"12.5", false},
		{"100", false},
		{"99.99", false},
		{"-0.01", true},
		{"100.01", true},
		{"10.125", true},
	}
	for _, tc := range cases {
		err := ValidateDiscountRate(decimal.RequireFromString(tc.rate))
		if tc.wantErr {
			assert.Error(t, err, tc.rate)
		} else {
			assert.NoError(t, err, tc.rate)
		}
	}
}
