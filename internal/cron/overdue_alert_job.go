package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/lensdist-backend/internal/receivables"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

type overdueLister interface {
	List(ctx context.Context, filter receivables.ListFilter) ([]receivables.StoreReceivable, error)
}

type overdueAlertRepo interface {
	HasUnread(ctx context.Context, storeID uuid.UUID, kind enums.NotificationType) (bool, error)
	Create(ctx context.Context, notification *models.Notification) error
}

type OverdueAlertJobParams struct {
	Logger        *logger.Logger
	Receivables   overdueLister
	Notifications overdueAlertRepo
}

// NewOverdueAlertJob raises one overdue alert per active store past its
// payment term. A store with an unread overdue alert is skipped, so staff
// see a fresh alert only after acknowledging the previous one.
func NewOverdueAlertJob(params OverdueAlertJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Receivables == nil {
		return nil, fmt.Errorf("receivables service required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	return &overdueAlertJob{logg: params.Logger, receivables: params.Receivables, repo: params.Notifications}, nil
}

type overdueAlertJob struct {
	logg        *logger.Logger
	receivables overdueLister
	repo        overdueAlertRepo
}

func (j *overdueAlertJob) Name() string { return "overdue-alerts" }

func (j *overdueAlertJob) Every() time.Duration { return 24 * time.Hour }

func (j *overdueAlertJob) Run(ctx context.Context) error {
	rows, err := j.receivables.List(ctx, receivables.ListFilter{Overdue: true, ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("list overdue stores: %w", err)
	}

	created, skipped := 0, 0
	for _, row := range rows {
		if row.OverdueDays == nil {
			continue
		}
		open, err := j.repo.HasUnread(ctx, row.StoreID, enums.NotificationTypeOverdue)
		if err != nil {
			return fmt.Errorf("check overdue alert for %s: %w", row.StoreID, err)
		}
		if open {
			skipped++
			continue
		}
		if err := j.repo.Create(ctx, overdueNotification(row)); err != nil {
			return fmt.Errorf("create overdue alert for %s: %w", row.StoreID, err)
		}
		created++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"overdue_stores": len(rows),
		"alerts_created": created,
		"alerts_skipped": skipped,
	}), "overdue alert sweep complete")
	return nil
}

func overdueNotification(row receivables.StoreReceivable) *models.Notification {
	link := fmt.Sprintf("/stores/%s/receivable", row.StoreID)
	due := ""
	if row.DueDate != nil {
		due = " (due " + row.DueDate.Format(time.DateOnly) + ")"
	}
	return &models.Notification{
		ID:      uuid.New(),
		StoreID: row.StoreID,
		Type:    enums.NotificationTypeOverdue,
		Title:   "Payment overdue",
		Message: fmt.Sprintf("%s (%s) is %d days past its %d-day term%s with %d KRW outstanding.",
			row.StoreName, row.StoreCode, *row.OverdueDays, row.PaymentTermDays, due, row.Balance),
		Link: &link,
	}
}
