package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
)

// Service manages brands and products.
type Service interface {
	CreateBrand(ctx context.Context, input CreateBrandInput) (*BrandDTO, error)
	ListBrands(ctx context.Context) ([]BrandDTO, error)
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]ProductDTO, error)
	UpdateListPrice(ctx context.Context, id uuid.UUID, price *int64) (*ProductDTO, error)
}

type catalogRepository interface {
	CreateBrand(ctx context.Context, brand *models.Brand) error
	FindBrandByID(ctx context.Context, id uuid.UUID) (*models.Brand, error)
	ListBrands(ctx context.Context) ([]models.Brand, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	FindProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error)
	UpdateListPrice(ctx context.Context, id uuid.UUID, price *int64) (bool, error)
}

type service struct {
	repo catalogRepository
}

func NewService(repo catalogRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) CreateBrand(ctx context.Context, input CreateBrandInput) (*BrandDTO, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code and name are required")
	}
	brand := &models.Brand{ID: uuid.New(), Code: code, Name: name, IsActive: true}
	if err := s.repo.CreateBrand(ctx, brand); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "brand code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create brand")
	}
	dto := brandFromModel(brand)
	return &dto, nil
}

func (s *service) ListBrands(ctx context.Context) ([]BrandDTO, error) {
	rows, err := s.repo.ListBrands(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list brands")
	}
	out := make([]BrandDTO, 0, len(rows))
	for i := range rows {
		out = append(out, brandFromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	code := strings.TrimSpace(input.Code)
	name := strings.TrimSpace(input.Name)
	if code == "" || name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code and name are required")
	}
	if !input.ProductType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product type must be rx or spare")
	}
	if err := validateListPrice(input.ListPrice); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindBrandByID(ctx, input.BrandID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "brand not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load brand")
	}

	product := &models.Product{
		ID:          uuid.New(),
		BrandID:     input.BrandID,
		Code:        code,
		Name:        name,
		ProductType: input.ProductType,
		ListPrice:   input.ListPrice,
		IsActive:    true,
	}
	if err := s.repo.CreateProduct(ctx, product); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "product code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	dto := productFromModel(product)
	return &dto, nil
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindProductByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	dto := productFromModel(product)
	return &dto, nil
}

func (s *service) ListProducts(ctx context.Context, filter ProductFilter) ([]ProductDTO, error) {
	if filter.ProductType != nil && !filter.ProductType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product type must be rx or spare")
	}
	rows, err := s.repo.ListProducts(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	out := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, productFromModel(&rows[i]))
	}
	return out, nil
}

// UpdateListPrice sets the list price; nil clears it and makes the product unpriceable.
func (s *service) UpdateListPrice(ctx context.Context, id uuid.UUID, price *int64) (*ProductDTO, error) {
	if err := validateListPrice(price); err != nil {
		return nil, err
	}
	found, err := s.repo.UpdateListPrice(ctx, id, price)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update list price")
	}
	if !found {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return s.GetProduct(ctx, id)
}

func validateListPrice(price *int64) error {
	if price != nil && *price < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "list price must be non-negative")
	}
	return nil
}
