package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
)

// PostInput describes one posting. Amount is the positive magnitude; the
// sign comes from Type, or from Direction for adjustments.
type PostInput struct {
	StoreID       uuid.UUID
	Type          enums.LedgerTransactionType
	Amount        int64
	Direction     enums.AdjustmentDirection
	OrderID       *uuid.UUID
	OrderNo       string
	PaymentMethod enums.PaymentMethod
	Depositor     string
	BankName      string
	Memo          string
	ProcessedBy   string
	Metadata      map[string]any

	// WithinTx runs after the row is inserted and before commit. An error
	// rolls the posting back.
	WithinTx func(tx *gorm.DB, posted *models.LedgerTransaction) error
}

// ListFilter narrows ListTransactions. Zero values mean no constraint.
type ListFilter struct {
	StoreID *uuid.UUID
	Type    *enums.LedgerTransactionType
	From    *time.Time
	To      *time.Time
}

type TransactionDTO struct {
	ID            uuid.UUID                   `json:"id"`
	StoreID       uuid.UUID                   `json:"store_id"`
	Sequence      int64                       `json:"sequence"`
	Type          enums.LedgerTransactionType `json:"type"`
	Amount        int64                       `json:"amount"`
	Delta         int64                       `json:"delta"`
	BalanceAfter  int64                       `json:"balance_after"`
	OrderID       *uuid.UUID                  `json:"order_id,omitempty"`
	OrderNo       *string                     `json:"order_no,omitempty"`
	PaymentMethod *enums.PaymentMethod        `json:"payment_method,omitempty"`
	Depositor     *string                     `json:"depositor,omitempty"`
	BankName      *string                     `json:"bank_name,omitempty"`
	Memo          *string                     `json:"memo,omitempty"`
	ProcessedBy   *string                     `json:"processed_by,omitempty"`
	ProcessedAt   time.Time                   `json:"processed_at"`
	Metadata      json.RawMessage             `json:"metadata,omitempty"`
}

func FromModel(m models.LedgerTransaction) TransactionDTO {
	dto := TransactionDTO{
		ID:            m.ID,
		StoreID:       m.StoreID,
		Sequence:      m.Sequence,
		Type:          m.Type,
		Amount:        m.Amount,
		Delta:         m.Delta,
		BalanceAfter:  m.BalanceAfter,
		OrderID:       m.OrderID,
		OrderNo:       m.OrderNo,
		PaymentMethod: m.PaymentMethod,
		Depositor:     m.Depositor,
		BankName:      m.BankName,
		Memo:          m.Memo,
		ProcessedBy:   m.ProcessedBy,
		ProcessedAt:   m.ProcessedAt.UTC(),
	}
	if len(m.Metadata) > 0 {
		dto.Metadata = json.RawMessage(m.Metadata)
	}
	return dto
}

type TransactionPage struct {
	Items      []TransactionDTO `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// Statement is one calendar month of a store's ledger in the business timezone.
type Statement struct {
	StoreID        uuid.UUID        `json:"store_id"`
	PeriodStart    time.Time        `json:"period_start"`
	PeriodEnd      time.Time        `json:"period_end"`
	OpeningBalance int64            `json:"opening_balance"`
	Sales          int64            `json:"sales"`
	Deposits       int64            `json:"deposits"`
	Returns        int64            `json:"returns"`
	Adjustments    int64            `json:"adjustments"`
	ClosingBalance int64            `json:"closing_balance"`
	Transactions   []TransactionDTO `json:"transactions"`
}

// ChainReport is the outcome of replaying a store's deltas.
type ChainReport struct {
	StoreID  uuid.UUID `json:"store_id"`
	Checked  int       `json:"checked"`
	Valid    bool      `json:"valid"`
	Sequence *int64    `json:"first_mismatch_sequence,omitempty"`
	Expected int64     `json:"expected_balance,omitempty"`
	Actual   int64     `json:"actual_balance,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

// ReceivableFacts carries what the receivables aggregator needs from one store's history.
type ReceivableFacts struct {
	Balance         int64
	HasTransactions bool
	LastDepositAt   *time.Time
}
