package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	"github.com/angelmondragon/lensdist-backend/pkg/pagination"
)

// Repository manages persistence for ledger transactions. Rows are only ever
// inserted; there is no update or delete path.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	LockStore(ctx context.Context, storeID uuid.UUID) (*models.Store, error)
	Latest(ctx context.Context, storeID uuid.UUID) (*models.LedgerTransaction, error)
	Create(ctx context.Context, txn *models.LedgerTransaction) error
	Exists(ctx context.Context, storeID uuid.UUID) (bool, error)
	List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.LedgerTransaction, error)
	BalanceBefore(ctx context.Context, storeID uuid.UUID, before time.Time) (int64, error)
	Between(ctx context.Context, storeID uuid.UUID, from, to time.Time) ([]models.LedgerTransaction, error)
	ScanChain(ctx context.Context, storeID uuid.UUID, batch int, fn func([]models.LedgerTransaction) error) error
	LastOfType(ctx context.Context, storeID uuid.UUID, txType enums.LedgerTransactionType) (*models.LedgerTransaction, error)
	SumAmount(ctx context.Context, storeID uuid.UUID, txType enums.LedgerTransactionType, from, to time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// LockStore takes the store row lock that serializes writers across processes.
func (r *repository) LockStore(ctx context.Context, storeID uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", storeID).
		First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

// Latest returns the highest-sequence row for the store, or nil when the
// store has no history.
func (r *repository) Latest(ctx context.Context, storeID uuid.UUID) (*models.LedgerTransaction, error) {
	return r.firstOrNil(r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("sequence DESC"))
}

func (r *repository) Create(ctx context.Context, txn *models.LedgerTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) Exists(ctx context.Context, storeID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerTransaction{}).
		Where("store_id = ?", storeID).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// List pages newest first. Within one store the order is sequence, which is
// insertion order and never disagrees with processed_at. Across stores rows
// are ordered by (processed_at, store_id, sequence).
func (r *repository) List(ctx context.Context, filter ListFilter, cursor *pagination.Cursor, limit int) ([]models.LedgerTransaction, error) {
	q := r.db.WithContext(ctx).Model(&models.LedgerTransaction{})
	if filter.Type != nil {
		q = q.Where("type = ?", *filter.Type)
	}
	if filter.From != nil {
		q = q.Where("processed_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		q = q.Where("processed_at < ?", filter.To.UTC())
	}

	if filter.StoreID != nil {
		q = q.Where("store_id = ?", *filter.StoreID)
		if cursor != nil {
			q = q.Where("sequence < ?", cursor.Seq)
		}
		q = q.Order("sequence DESC")
	} else {
		if cursor != nil {
			q = q.Where("(processed_at < ? OR (processed_at = ? AND (store_id < ? OR (store_id = ? AND sequence < ?))))",
				cursor.At, cursor.At, cursor.ID, cursor.ID, cursor.Seq)
		}
		q = q.Order("processed_at DESC").Order("store_id DESC").Order("sequence DESC")
	}

	var rows []models.LedgerTransaction
	if err := q.Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// BalanceBefore returns the running balance carried into the instant before.
func (r *repository) BalanceBefore(ctx context.Context, storeID uuid.UUID, before time.Time) (int64, error) {
	row, err := r.firstOrNil(r.db.WithContext(ctx).
		Where("store_id = ? AND processed_at < ?", storeID, before.UTC()).
		Order("sequence DESC"))
	if err != nil || row == nil {
		return 0, err
	}
	return row.BalanceAfter, nil
}

func (r *repository) Between(ctx context.Context, storeID uuid.UUID, from, to time.Time) ([]models.LedgerTransaction, error) {
	var rows []models.LedgerTransaction
	if err := r.db.WithContext(ctx).
		Where("store_id = ? AND processed_at >= ? AND processed_at < ?", storeID, from.UTC(), to.UTC()).
		Order("sequence ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ScanChain walks the store history in sequence order, batch rows at a time.
func (r *repository) ScanChain(ctx context.Context, storeID uuid.UUID, batch int, fn func([]models.LedgerTransaction) error) error {
	if batch <= 0 {
		batch = 500
	}
	var after int64
	for {
		var rows []models.LedgerTransaction
		if err := r.db.WithContext(ctx).
			Where("store_id = ? AND sequence > ?", storeID, after).
			Order("sequence ASC").
			Limit(batch).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := fn(rows); err != nil {
			return err
		}
		if len(rows) < batch {
			return nil
		}
		after = rows[len(rows)-1].Sequence
	}
}

func (r *repository) LastOfType(ctx context.Context, storeID uuid.UUID, txType enums.LedgerTransactionType) (*models.LedgerTransaction, error) {
	return r.firstOrNil(r.db.WithContext(ctx).
		Where("store_id = ? AND type = ?", storeID, txType).
		Order("sequence DESC"))
}

func (r *repository) SumAmount(ctx context.Context, storeID uuid.UUID, txType enums.LedgerTransactionType, from, to time.Time) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerTransaction{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("store_id = ? AND type = ? AND processed_at >= ? AND processed_at < ?", storeID, txType, from.UTC(), to.UTC()).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) firstOrNil(q *gorm.DB) (*models.LedgerTransaction, error) {
	var row models.LedgerTransaction
	if err := q.Limit(1).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
