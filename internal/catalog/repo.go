package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
)

// Repository persists brands and products.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateBrand(ctx context.Context, brand *models.Brand) error {
	if brand == nil {
		return fmt.Errorf("brand is required")
	}
	if brand.ID == uuid.Nil {
		brand.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(brand).Error
}

func (r *Repository) FindBrandByID(ctx context.Context, id uuid.UUID) (*models.Brand, error) {
	var brand models.Brand
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&brand).Error; err != nil {
		return nil, err
	}
	return &brand, nil
}

func (r *Repository) ListBrands(ctx context.Context) ([]models.Brand, error) {
	var brands []models.Brand
	if err := r.db.WithContext(ctx).Order("code ASC").Find(&brands).Error; err != nil {
		return nil, err
	}
	return brands, nil
}

func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	if product == nil {
		return fmt.Errorf("product is required")
	}
	if product.ID == uuid.Nil {
		product.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *Repository) FindProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindProductsByIDs returns the products that exist among ids; callers detect missing ones.
func (r *Repository) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}
	var products []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *Repository) ListProducts(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})
	if filter.BrandID != nil {
		query = query.Where("brand_id = ?", *filter.BrandID)
	}
	if filter.ProductType != nil {
		query = query.Where("product_type = ?", *filter.ProductType)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	var products []models.Product
	if err := query.Order("code ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

// UpdateListPrice sets or clears the list price and reports whether a row matched.
func (r *Repository) UpdateListPrice(ctx context.Context, id uuid.UUID, price *int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Update("list_price", price)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
