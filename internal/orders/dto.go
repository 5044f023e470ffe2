package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lensdist-backend/internal/ledger"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
)

// ConfirmLine is one requested product on an order.
type ConfirmLine struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

// ConfirmInput prices and bills a new order.
type ConfirmInput struct {
	StoreID     uuid.UUID
	OrderNo     string
	Lines       []ConfirmLine
	ProcessedBy string
}

// ReturnInput credits part or all of an order. A nil Amount returns
// everything not yet returned.
type ReturnInput struct {
	Amount      *int64
	Memo        string
	ProcessedBy string
}

type OrderLineDTO struct {
	ProductID    uuid.UUID         `json:"product_id"`
	Quantity     int               `json:"quantity"`
	ListPrice    int64             `json:"list_price"`
	UnitPrice    int64             `json:"unit_price"`
	LineTotal    int64             `json:"line_total"`
	PricingTier  enums.PricingTier `json:"pricing_tier"`
	DiscountRate *decimal.Decimal  `json:"discount_rate,omitempty"`
}

type OrderDTO struct {
	ID                uuid.UUID         `json:"id"`
	OrderNo           string            `json:"order_no"`
	StoreID           uuid.UUID         `json:"store_id"`
	Status            enums.OrderStatus `json:"status"`
	TotalAmount       int64             `json:"total_amount"`
	ReturnedAmount    int64             `json:"returned_amount"`
	RemainingAmount   int64             `json:"remaining_amount"`
	SaleTransactionID uuid.UUID         `json:"sale_transaction_id"`
	ConfirmedBy       *string           `json:"confirmed_by,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	Lines             []OrderLineDTO    `json:"lines,omitempty"`
}

// ReturnResult pairs the updated order with the posted return transaction.
type ReturnResult struct {
	Order       OrderDTO              `json:"order"`
	Transaction ledger.TransactionDTO `json:"transaction"`
}

// OrderList is one page of a store's orders, newest first.
type OrderList struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func FromModel(m *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                m.ID,
		OrderNo:           m.OrderNo,
		StoreID:           m.StoreID,
		Status:            m.Status,
		TotalAmount:       m.TotalAmount,
		ReturnedAmount:    m.ReturnedAmount,
		RemainingAmount:   m.TotalAmount - m.ReturnedAmount,
		SaleTransactionID: m.SaleTransactionID,
		ConfirmedBy:       m.ConfirmedBy,
		CreatedAt:         m.CreatedAt,
	}
	for _, line := range m.Lines {
		dto.Lines = append(dto.Lines, OrderLineDTO{
			ProductID:    line.ProductID,
			Quantity:     line.Quantity,
			ListPrice:    line.ListPrice,
			UnitPrice:    line.UnitPrice,
			LineTotal:    line.LineTotal,
			PricingTier:  line.PricingTier,
			DiscountRate: line.DiscountRate,
		})
	}
	return dto
}
