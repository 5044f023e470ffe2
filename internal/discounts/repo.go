package discounts

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
)

// Repository reads and writes discount rules. Every method runs on the handle
// it is given so callers can group reads and writes in one transaction.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// LockStore loads the store row with FOR UPDATE where the dialect supports it.
func (r *Repository) LockStore(tx *gorm.DB, storeID uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", storeID).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *Repository) FindStore(tx *gorm.DB, storeID uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := tx.Where("id = ?", storeID).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

func (r *Repository) BrandExists(tx *gorm.DB, brandID uuid.UUID) (bool, error) {
	return exists(tx, &models.Brand{}, "id = ?", brandID)
}

func (r *Repository) ProductExists(tx *gorm.DB, productID uuid.UUID) (bool, error) {
	return exists(tx, &models.Product{}, "id = ?", productID)
}

func (r *Repository) GroupExists(tx *gorm.DB, groupID uuid.UUID) (bool, error) {
	return exists(tx, &models.StoreGroup{}, "id = ?", groupID)
}

func (r *Repository) HasProductDiscount(tx *gorm.DB, storeID, productID uuid.UUID) (bool, error) {
	return exists(tx, &models.ProductDiscount{}, "store_id = ? AND product_id = ?", storeID, productID)
}

func (r *Repository) HasSpecialPrice(tx *gorm.DB, storeID, productID uuid.UUID) (bool, error) {
	return exists(tx, &models.ProductSpecialPrice{}, "store_id = ? AND product_id = ?", storeID, productID)
}

func (r *Repository) BrandDiscounts(tx *gorm.DB, storeID uuid.UUID) ([]models.BrandDiscount, error) {
	var rows []models.BrandDiscount
	if err := tx.Where("store_id = ?", storeID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) ProductDiscounts(tx *gorm.DB, storeID uuid.UUID) ([]models.ProductDiscount, error) {
	var rows []models.ProductDiscount
	if err := tx.Where("store_id = ?", storeID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) SpecialPrices(tx *gorm.DB, storeID uuid.UUID) ([]models.ProductSpecialPrice, error) {
	var rows []models.ProductSpecialPrice
	if err := tx.Where("store_id = ?", storeID).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GroupDiscounts returns the rules of a group ordered by id for stable tie-breaking.
func (r *Repository) GroupDiscounts(tx *gorm.DB, groupID uuid.UUID) ([]models.GroupDiscount, error) {
	var rows []models.GroupDiscount
	if err := tx.Where("group_id = ?", groupID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) FindGroupDiscount(tx *gorm.DB, groupID, ruleID uuid.UUID) (*models.GroupDiscount, error) {
	var row models.GroupDiscount
	if err := tx.Where("id = ? AND group_id = ?", ruleID, groupID).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) UpsertBrandDiscount(tx *gorm.DB, storeID, brandID uuid.UUID, rate decimal.Decimal) error {
	row := models.BrandDiscount{ID: uuid.New(), StoreID: storeID, BrandID: brandID, DiscountRate: rate}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_id"}, {Name: "brand_id"}},
		DoUpdates: clause.Assignments(map[string]any{"discount_rate": rate, "updated_at": time.Now().UTC()}),
	}).Create(&row).Error
}

func (r *Repository) UpsertProductDiscount(tx *gorm.DB, storeID, productID uuid.UUID, rate decimal.Decimal) error {
	row := models.ProductDiscount{ID: uuid.New(), StoreID: storeID, ProductID: productID, DiscountRate: rate}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{"discount_rate": rate, "updated_at": time.Now().UTC()}),
	}).Create(&row).Error
}

func (r *Repository) UpsertSpecialPrice(tx *gorm.DB, storeID, productID uuid.UUID, price int64) error {
	row := models.ProductSpecialPrice{ID: uuid.New(), StoreID: storeID, ProductID: productID, SpecialPrice: price}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "store_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{"special_price": price, "updated_at": time.Now().UTC()}),
	}).Create(&row).Error
}

func (r *Repository) DeleteBrandDiscount(tx *gorm.DB, storeID, brandID uuid.UUID) error {
	return tx.Where("store_id = ? AND brand_id = ?", storeID, brandID).Delete(&models.BrandDiscount{}).Error
}

func (r *Repository) DeleteProductDiscount(tx *gorm.DB, storeID, productID uuid.UUID) error {
	return tx.Where("store_id = ? AND product_id = ?", storeID, productID).Delete(&models.ProductDiscount{}).Error
}

func (r *Repository) DeleteSpecialPrice(tx *gorm.DB, storeID, productID uuid.UUID) error {
	return tx.Where("store_id = ? AND product_id = ?", storeID, productID).Delete(&models.ProductSpecialPrice{}).Error
}

func (r *Repository) CreateGroupDiscount(tx *gorm.DB, row *models.GroupDiscount) error {
	if row == nil {
		return fmt.Errorf("group discount is required")
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return tx.Create(row).Error
}

func (r *Repository) SaveGroupDiscount(tx *gorm.DB, row *models.GroupDiscount) error {
	return tx.Save(row).Error
}

func (r *Repository) DeleteGroupDiscount(tx *gorm.DB, groupID, ruleID uuid.UUID) error {
	return tx.Where("id = ? AND group_id = ?", ruleID, groupID).Delete(&models.GroupDiscount{}).Error
}

func exists(tx *gorm.DB, model any, query string, args ...any) (bool, error) {
	var count int64
	if err := tx.Model(model).Where(query, args...).Limit(1).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
