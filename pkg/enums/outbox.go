package enums

import "slices"

// OutboxAggregateType names what an outbox event is about. Its ID becomes
// the Pub/Sub ordering key, so events for one store arrive in order.
type OutboxAggregateType string

const (
	AggregateStore OutboxAggregateType = "store"
	AggregateOrder OutboxAggregateType = "order"
)

var aggregateTypes = []OutboxAggregateType{AggregateStore, AggregateOrder}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(aggregateTypes, a)
}

// OutboxEventType is the event_type attribute consumers filter on.
type OutboxEventType string

const (
	EventLedgerTransactionPosted OutboxEventType = "ledger_transaction_posted"
	EventOrderConfirmed          OutboxEventType = "order_confirmed"
)

// Aggregate is the only aggregate an event type may be emitted for, or ""
// for an unknown type.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	switch e {
	case EventLedgerTransactionPosted:
		return AggregateStore
	case EventOrderConfirmed:
		return AggregateOrder
	}
	return ""
}

func (e OutboxEventType) IsValid() bool {
	return e.Aggregate() != ""
}
