package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/lensdist-backend/pkg/enums"
)

// LedgerTransaction is an immutable receivable entry. Amount is always the
// positive magnitude; Delta is the signed effect on what the store owes.
type LedgerTransaction struct {
	ID            uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID       uuid.UUID                   `gorm:"column:store_id;type:uuid;not null"`
	Sequence      int64                       `gorm:"column:sequence;not null"`
	Type          enums.LedgerTransactionType `gorm:"column:type;type:ledger_transaction_type;not null"`
	Amount        int64                       `gorm:"column:amount;not null"`
	Delta         int64                       `gorm:"column:delta;not null"`
	BalanceAfter  int64                       `gorm:"column:balance_after;not null"`
	OrderID       *uuid.UUID                  `gorm:"column:order_id;type:uuid"`
	OrderNo       *string                     `gorm:"column:order_no"`
	PaymentMethod *enums.PaymentMethod        `gorm:"column:payment_method"`
	Depositor     *string                     `gorm:"column:depositor"`
	BankName      *string                     `gorm:"column:bank_name"`
	Memo          *string                     `gorm:"column:memo"`
	ProcessedBy   *string                     `gorm:"column:processed_by"`
	ProcessedAt   time.Time                   `gorm:"column:processed_at;not null"`
	Metadata      datatypes.JSON              `gorm:"column:metadata"`
	CreatedAt     time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
