package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/clock"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

const (
	outboxRetentionDays = 30
	outboxDeleteBatch   = 1000
)

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	Clock      clock.Clock
	Retention  int
	BatchSize  int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

// NewOutboxRetentionJob prunes published outbox rows in batches of BatchSize,
// one transaction per batch. Unpublished rows are kept regardless of age.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = outboxDeleteBatch
	}
	return newRetentionSweep("outbox-retention", params.Logger, params.DB, params.Clock,
		params.Retention, outboxRetentionDays, batch, params.Repository.DeletePublishedBefore)
}
