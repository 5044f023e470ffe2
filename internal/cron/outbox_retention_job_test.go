package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/clock"
	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/db/dbtest"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func seedOutboxRow(t *testing.T, conn *gorm.DB, publishedAt *time.Time) uuid.UUID {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventLedgerTransactionPosted,
		AggregateType: enums.AggregateStore,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{}`),
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		PublishedAt:   publishedAt,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row.ID
}

func TestOutboxRetentionJobDeletesOldPublishedRowsInBatches(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-45 * 24 * time.Hour)
	recent := now.Add(-2 * 24 * time.Hour)

	for range 5 {
		seedOutboxRow(t, conn, &old)
	}
	keepRecent := seedOutboxRow(t, conn, &recent)
	keepPending := seedOutboxRow(t, conn, nil)

	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         db.NewFromConn(conn),
		Repository: outbox.NewRepository(conn),
		Clock:      clock.NewFakeClock(now),
		BatchSize:  2,
	})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))

	var ids []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Pluck("id", &ids).Error)
	assert.ElementsMatch(t, []uuid.UUID{keepRecent, keepPending}, ids)
}

type failingOutboxRepo struct{ calls int }

func (f *failingOutboxRepo) DeletePublishedBefore(context.Context, *gorm.DB, time.Time, int) (int64, error) {
	f.calls++
	return 0, errors.New("boom")
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	repo := &failingOutboxRepo{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     testLogger(),
		DB:         passthroughTx{},
		Repository: repo,
	})
	require.NoError(t, err)

	assert.ErrorContains(t, job.Run(context.Background()), "outbox retention: boom")
	assert.Equal(t, 1, repo.calls)
	assert.Equal(t, 24*time.Hour, everyOf(job))
}
