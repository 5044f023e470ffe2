package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeClockAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewFakeClock(start)
	c.Advance(36 * time.Hour)
	assert.Equal(t, start.Add(36*time.Hour), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}

func TestDaysBetweenUsesLocalCalendar(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	// 23:30 UTC is already the next morning in Seoul.
	a := time.Date(2026, 1, 1, 23, 30, 0, 0, time.UTC)
	b := time.Date(2026, 1, 2, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysBetween(a, b, seoul))
	assert.Equal(t, 1, DaysBetween(a, b, time.UTC))
	assert.Equal(t, -1, DaysBetween(b, a, time.UTC))
	assert.Equal(t, 31, DaysBetween(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), nil))
}

func TestMonthRange(t *testing.T) {
	start, end := MonthRange(time.Date(2026, 2, 17, 12, 0, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), end)
}
