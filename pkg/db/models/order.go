package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lensdist-backend/pkg/enums"
)

// Order is a confirmed store order; its total was posted to the ledger as a sale.
type Order struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNo           string            `gorm:"column:order_no;not null"`
	StoreID           uuid.UUID         `gorm:"column:store_id;type:uuid;not null"`
	Status            enums.OrderStatus `gorm:"column:status;type:order_status;not null"`
	TotalAmount       int64             `gorm:"column:total_amount;not null"`
	ReturnedAmount    int64             `gorm:"column:returned_amount;not null;default:0"`
	SaleTransactionID uuid.UUID         `gorm:"column:sale_transaction_id;type:uuid;not null"`
	ConfirmedBy       *string           `gorm:"column:confirmed_by"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`

	Lines []OrderLine `gorm:"foreignKey:OrderID"`
}

// OrderLine snapshots how a line was priced at confirmation time.
type OrderLine struct {
	ID           uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID      uuid.UUID         `gorm:"column:order_id;type:uuid;not null"`
	ProductID    uuid.UUID         `gorm:"column:product_id;type:uuid;not null"`
	Quantity     int               `gorm:"column:quantity;not null"`
	ListPrice    int64             `gorm:"column:list_price;not null"`
	UnitPrice    int64             `gorm:"column:unit_price;not null"`
	LineTotal    int64             `gorm:"column:line_total;not null"`
	PricingTier  enums.PricingTier `gorm:"column:pricing_tier;not null"`
	DiscountRate *decimal.Decimal  `gorm:"column:discount_rate;type:numeric(5,2)"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime"`
}
