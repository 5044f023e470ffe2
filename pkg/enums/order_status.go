package enums

// OrderStatus tracks how much of a confirmed order has been returned.
type OrderStatus string

const (
	OrderStatusConfirmed         OrderStatus = "confirmed"
	OrderStatusPartiallyReturned OrderStatus = "partially_returned"
	OrderStatusReturned          OrderStatus = "returned"
)
