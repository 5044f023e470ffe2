package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
)

// ErrHasLedgerHistory is returned by DeleteWithTx when the store owns ledger rows.
var ErrHasLedgerHistory = errors.New("store has ledger transactions")

// Repository handles store and store group persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to store operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists a new store row.
func (r *Repository) Create(ctx context.Context, store *models.Store) error {
	if store == nil {
		return fmt.Errorf("store is required")
	}
	if store.ID == uuid.Nil {
		store.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(store).Error
}

// FindByID loads a store by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

// FindByIDs loads the requested stores; missing ids are skipped.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Store, error) {
	if len(ids) == 0 {
		return []models.Store{}, nil
	}
	var stores []models.Store
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("code ASC").Find(&stores).Error; err != nil {
		return nil, err
	}
	return stores, nil
}

// List returns stores ordered by code.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]models.Store, error) {
	query := r.db.WithContext(ctx).Model(&models.Store{})
	if filter.GroupID != nil {
		query = query.Where("group_id = ?", *filter.GroupID)
	}
	if filter.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}
	if term := strings.TrimSpace(filter.Search); term != "" {
		like := "%" + strings.ToLower(term) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(code) LIKE ?", like, like)
	}
	var stores []models.Store
	if err := query.Order("code ASC").Find(&stores).Error; err != nil {
		return nil, err
	}
	return stores, nil
}

// Update saves the provided store.
func (r *Repository) Update(ctx context.Context, store *models.Store) error {
	if store == nil {
		return fmt.Errorf("store is required")
	}
	return r.db.WithContext(ctx).Save(store).Error
}

// DeleteWithTx removes a store and its pricing rules after locking the row.
// Stores with ledger history are never removed.
func (r *Repository) DeleteWithTx(tx *gorm.DB, id uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	var store models.Store
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&store, "id = ?", id).Error; err != nil {
		return err
	}
	var count int64
	if err := tx.Model(&models.LedgerTransaction{}).Where("store_id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrHasLedgerHistory
	}
	for _, model := range []any{&models.BrandDiscount{}, &models.ProductDiscount{}, &models.ProductSpecialPrice{}} {
		if err := tx.Where("store_id = ?", id).Delete(model).Error; err != nil {
			return err
		}
	}
	return tx.Delete(&models.Store{}, "id = ?", id).Error
}

// CreateGroup persists a new store group.
func (r *Repository) CreateGroup(ctx context.Context, group *models.StoreGroup) error {
	if group == nil {
		return fmt.Errorf("group is required")
	}
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(group).Error
}

// FindGroupByID loads a store group.
func (r *Repository) FindGroupByID(ctx context.Context, id uuid.UUID) (*models.StoreGroup, error) {
	var group models.StoreGroup
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// ListGroups returns all store groups ordered by name.
func (r *Repository) ListGroups(ctx context.Context) ([]models.StoreGroup, error) {
	var groups []models.StoreGroup
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}
