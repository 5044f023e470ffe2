package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/clock"
)

type fakeNotificationRepo struct {
	lastCutoff  time.Time
	called      int
	deletedRows int64
	err         error
}

func (f *fakeNotificationRepo) DeleteReadBefore(_ context.Context, _ *gorm.DB, cutoff time.Time) (int64, error) {
	f.called++
	f.lastCutoff = cutoff
	return f.deletedRows, f.err
}

func TestNotificationCleanupJobUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	repo := &fakeNotificationRepo{deletedRows: 42}
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger:     testLogger(),
		DB:         passthroughTx{},
		Repository: repo,
		Clock:      clock.NewFakeClock(now),
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, repo.called)
	assert.True(t, repo.lastCutoff.Equal(now.Add(-notificationRetentionDays*24*time.Hour)))
}

func TestNotificationCleanupJobPropagatesError(t *testing.T) {
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger:     testLogger(),
		DB:         passthroughTx{},
		Repository: &fakeNotificationRepo{err: errors.New("boom")},
	})
	require.NoError(t, err)
	assert.ErrorContains(t, job.Run(context.Background()), "notification cleanup: boom")

	_, err = NewNotificationCleanupJob(NotificationCleanupJobParams{Logger: testLogger()})
	assert.Error(t, err)
}

func TestNotificationCleanupJobHonoursRetentionOverride(t *testing.T) {
	now := time.Date(2026, 5, 31, 12, 0, 0, 0, time.UTC)
	repo := &fakeNotificationRepo{}
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger:     testLogger(),
		DB:         passthroughTx{},
		Repository: repo,
		Clock:      clock.NewFakeClock(now),
		Retention:  7,
	})
	require.NoError(t, err)
	assert.Equal(t, "notification-cleanup", job.Name())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, repo.called, "unbatched sweep runs one delete")
	assert.Equal(t, now.Add(-7*24*time.Hour), repo.lastCutoff)
}
