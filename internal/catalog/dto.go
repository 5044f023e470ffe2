package catalog

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
)

type BrandDTO struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductDTO is the catalog view of a lens SKU. ListPrice stays nil until priced.
type ProductDTO struct {
	ID          uuid.UUID         `json:"id"`
	BrandID     uuid.UUID         `json:"brand_id"`
	Code        string            `json:"code"`
	Name        string            `json:"name"`
	ProductType enums.ProductType `json:"product_type"`
	ListPrice   *int64            `json:"list_price"`
	IsActive    bool              `json:"is_active"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type CreateBrandInput struct {
	Code string
	Name string
}

type CreateProductInput struct {
	BrandID     uuid.UUID
	Code        string
	Name        string
	ProductType enums.ProductType
	ListPrice   *int64
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	BrandID     *uuid.UUID
	ProductType *enums.ProductType
	ActiveOnly  bool
}

func brandFromModel(m *models.Brand) BrandDTO {
	return BrandDTO{
		ID:        m.ID,
		Code:      m.Code,
		Name:      m.Name,
		IsActive:  m.IsActive,
		CreatedAt: m.CreatedAt,
	}
}

func productFromModel(m *models.Product) ProductDTO {
	dto := ProductDTO{
		ID:          m.ID,
		BrandID:     m.BrandID,
		Code:        m.Code,
		Name:        m.Name,
		ProductType: m.ProductType,
		IsActive:    m.IsActive,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
	if m.ListPrice != nil {
		price := *m.ListPrice
		dto.ListPrice = &price
	}
	return dto
}
