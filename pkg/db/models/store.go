package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is an optician shop buying lenses on credit.
type Store struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code             string          `gorm:"column:code;not null"`
	Name             string          `gorm:"column:name;not null"`
	GroupID          *uuid.UUID      `gorm:"column:group_id;type:uuid"`
	BaseDiscountRate decimal.Decimal `gorm:"column:base_discount_rate;type:numeric(5,2);not null;default:0"`
	CreditLimit      int64           `gorm:"column:credit_limit;not null;default:0"`
	PaymentTermDays  int             `gorm:"column:payment_term_days;not null;default:30"`
	IsActive         bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
