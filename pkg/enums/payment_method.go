package enums

import "slices"

// PaymentMethod describes how a store settled a deposit.
type PaymentMethod string

const (
	PaymentMethodCash     PaymentMethod = "cash"
	PaymentMethodTransfer PaymentMethod = "transfer"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodCheck    PaymentMethod = "check"
	PaymentMethodOther    PaymentMethod = "other"
)

var paymentMethods = []PaymentMethod{
	PaymentMethodCash, PaymentMethodTransfer, PaymentMethodCard, PaymentMethodCheck, PaymentMethodOther,
}

func (p PaymentMethod) String() string { return string(p) }

func (p PaymentMethod) IsValid() bool { return slices.Contains(paymentMethods, p) }

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parseOneOf("payment method", paymentMethods, value)
}
