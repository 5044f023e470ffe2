package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lensdist-backend/pkg/enums"
)

// LedgerTransactionPostedEvent is emitted for every committed ledger row.
type LedgerTransactionPostedEvent struct {
	TransactionID uuid.UUID                   `json:"transaction_id"`
	StoreID       uuid.UUID                   `json:"store_id"`
	Sequence      int64                       `json:"sequence"`
	Type          enums.LedgerTransactionType `json:"type"`
	Amount        int64                       `json:"amount"`
	Delta         int64                       `json:"delta"`
	BalanceAfter  int64                       `json:"balance_after"`
	OrderID       *uuid.UUID                  `json:"order_id,omitempty"`
	OrderNo       *string                     `json:"order_no,omitempty"`
	ProcessedAt   time.Time                   `json:"processed_at"`
}

// OrderConfirmedEvent is emitted once an order has been priced and billed.
type OrderConfirmedEvent struct {
	OrderID           uuid.UUID `json:"order_id"`
	OrderNo           string    `json:"order_no"`
	StoreID           uuid.UUID `json:"store_id"`
	TotalAmount       int64     `json:"total_amount"`
	LineCount         int       `json:"line_count"`
	SaleTransactionID uuid.UUID `json:"sale_transaction_id"`
}
