package outbox

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
)

// maxErrorLen bounds stored publish errors; Pub/Sub errors can embed
// whole gRPC status payloads.
const maxErrorLen = 1024

var errTxRequired = errors.New("transaction required")

// Repository is the outbox_events table. Every write takes the caller's tx so
// outbox rows commit or roll back with the business change that produced them.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&event).Error
}

// ClaimPending selects up to limit unpublished rows, oldest first, that have
// fewer than maxAttempts attempts (maxAttempts <= 0 means no cap). On Postgres
// the rows stay locked with SKIP LOCKED until tx ends, so concurrent relays
// never claim the same event.
func (r *Repository) ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	q := tx.Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := q.Order("created_at ASC").Order("id ASC").Limit(limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return r.update(tx, id, map[string]any{"published_at": r.now(), "last_error": nil})
}

// MarkRetry records a transient failure; the row stays claimable.
func (r *Repository) MarkRetry(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(tx, id, map[string]any{
		"last_error":    truncateErr(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkDeadLettered stamps published_at so the row is never claimed again.
// The DLQ row written in the same tx holds the details.
func (r *Repository) MarkDeadLettered(tx *gorm.DB, id uuid.UUID, cause error) error {
	return r.update(tx, id, map[string]any{
		"published_at":  r.now(),
		"last_error":    truncateErr(cause),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, fields map[string]any) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(fields).Error
}

// DeletePublishedBefore removes up to limit published rows older than cutoff.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	if tx == nil {
		return 0, errTxRequired
	}
	oldest := tx.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Select("id").
		Where("published_at IS NOT NULL AND published_at < ?", cutoff.UTC()).
		Order("published_at ASC").
		Limit(limit)
	res := tx.WithContext(ctx).Where("id IN (?)", oldest).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func truncateErr(err error) string {
	if err == nil {
		return ""
	}
	return truncate(err.Error())
}

func truncate(msg string) string {
	if len(msg) <= maxErrorLen {
		return msg
	}
	cut := msg[:maxErrorLen]
	// back off to a rune boundary
	for len(cut) > 0 && !utf8.ValidString(cut) {
		cut = cut[:len(cut)-1]
	}
	return cut
}
