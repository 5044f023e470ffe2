package notifications

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	"github.com/angelmondragon/lensdist-backend/pkg/pagination"
)

// Repository exposes persistence helpers for notifications.
type Repository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, filter listFilter, cursor *pagination.Cursor, limit int) ([]models.Notification, error)
	CountUnread(ctx context.Context, storeID *uuid.UUID) (int64, error)
	HasUnread(ctx context.Context, storeID uuid.UUID, kind enums.NotificationType) (bool, error)
	MarkRead(ctx context.Context, id uuid.UUID, now time.Time) (found bool, err error)
	MarkAllRead(ctx context.Context, storeID *uuid.UUID, now time.Time) (int64, error)
	DeleteReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type listFilter struct {
	StoreID    *uuid.UUID
	UnreadOnly bool
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *repositoryImpl) List(ctx context.Context, filter listFilter, cursor *pagination.Cursor, limit int) ([]models.Notification, error) {
	query := r.scoped(ctx, filter.StoreID)
	if filter.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}
	if cursor != nil {
		query = query.Where("(created_at < ? OR (created_at = ? AND id < ?))", cursor.At, cursor.At, cursor.ID)
	}

	var rows []models.Notification
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) CountUnread(ctx context.Context, storeID *uuid.UUID) (int64, error) {
	var count int64
	err := r.scoped(ctx, storeID).Where("read_at IS NULL").Count(&count).Error
	return count, err
}

// HasUnread reports whether the store already has an unread alert of kind.
func (r *repositoryImpl) HasUnread(ctx context.Context, storeID uuid.UUID, kind enums.NotificationType) (bool, error) {
	var count int64
	err := r.scoped(ctx, &storeID).
		Where("type = ? AND read_at IS NULL", kind).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// MarkRead reports found=true for an already-read notification too.
func (r *repositoryImpl) MarkRead(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND read_at IS NULL", id).
		UpdateColumn("read_at", now.UTC())
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, storeID *uuid.UUID, now time.Time) (int64, error) {
	result := r.scoped(ctx, storeID).
		Where("read_at IS NULL").
		UpdateColumn("read_at", now.UTC())
	return result.RowsAffected, result.Error
}

// DeleteReadBefore removes notifications that were read before cutoff.
// Unread notifications are kept regardless of age.
func (r *repositoryImpl) DeleteReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).
		Where("read_at IS NOT NULL AND read_at < ?", cutoff.UTC()).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}

func (r *repositoryImpl) scoped(ctx context.Context, storeID *uuid.UUID) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Notification{})
	if storeID != nil {
		query = query.Where("store_id = ?", *storeID)
	}
	return query
}
