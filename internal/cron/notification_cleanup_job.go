package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/clock"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

const notificationRetentionDays = 90

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository notificationsCleanupRepo
	Clock      clock.Clock
	Retention  int
}

type notificationsCleanupRepo interface {
	DeleteReadBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewNotificationCleanupJob drops store alerts read more than Retention days
// ago. Unread alerts are never removed.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	repo := params.Repository
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return newRetentionSweep("notification-cleanup", params.Logger, params.DB, params.Clock,
		params.Retention, notificationRetentionDays, 0,
		func(ctx context.Context, tx *gorm.DB, cutoff time.Time, _ int) (int64, error) {
			return repo.DeleteReadBefore(ctx, tx, cutoff)
		})
}
