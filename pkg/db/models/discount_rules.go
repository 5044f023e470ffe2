package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/lensdist-backend/pkg/enums"
)

// BrandDiscount overrides the store base rate for every product of a brand.
type BrandDiscount struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID      uuid.UUID       `gorm:"column:store_id;type:uuid;not null"`
	BrandID      uuid.UUID       `gorm:"column:brand_id;type:uuid;not null"`
	DiscountRate decimal.Decimal `gorm:"column:discount_rate;type:numeric(5,2);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductDiscount overrides brand and base rates for a single product.
type ProductDiscount struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID      uuid.UUID       `gorm:"column:store_id;type:uuid;not null"`
	ProductID    uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	DiscountRate decimal.Decimal `gorm:"column:discount_rate;type:numeric(5,2);not null"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// ProductSpecialPrice fixes the unit price of a product for a store.
type ProductSpecialPrice struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StoreID      uuid.UUID `gorm:"column:store_id;type:uuid;not null"`
	ProductID    uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	SpecialPrice int64     `gorm:"column:special_price;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// GroupDiscount applies to every store of a group once an order line reaches MinQuantity.
// A nil BrandID matches all brands.
type GroupDiscount struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GroupID      uuid.UUID               `gorm:"column:group_id;type:uuid;not null"`
	BrandID      *uuid.UUID              `gorm:"column:brand_id;type:uuid"`
	ProductScope enums.GroupProductScope `gorm:"column:product_scope;type:group_product_scope;not null;default:'all'"`
	DiscountRate decimal.Decimal         `gorm:"column:discount_rate;type:numeric(5,2);not null"`
	MinQuantity  int                     `gorm:"column:min_quantity;not null;default:1"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
