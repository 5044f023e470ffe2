package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lensdist-backend/pkg/enums"
)

// Product is a lens SKU. ListPrice is nil until the catalog team prices it.
type Product struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BrandID     uuid.UUID         `gorm:"column:brand_id;type:uuid;not null"`
	Code        string            `gorm:"column:code;not null"`
	Name        string            `gorm:"column:name;not null"`
	ProductType enums.ProductType `gorm:"column:product_type;type:product_type;not null"`
	ListPrice   *int64            `gorm:"column:list_price"`
	IsActive    bool              `gorm:"column:is_active;not null;default:true"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
