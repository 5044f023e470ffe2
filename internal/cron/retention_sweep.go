package cron

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/clock"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

const day = 24 * time.Hour

// deleteFunc removes at most limit rows older than cutoff. limit <= 0 means
// no cap.
type deleteFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error)

// retentionSweep is the shared body of the daily cleanup jobs: compute a
// cutoff from the clock and delete in transactions until a short batch.
type retentionSweep struct {
	name   string
	logg   *logger.Logger
	db     txRunner
	clock  clock.Clock
	keep   int
	batch  int
	delete deleteFunc
}

func newRetentionSweep(name string, logg *logger.Logger, db txRunner, clk clock.Clock, keep, defaultKeep, batch int, del deleteFunc) (*retentionSweep, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if db == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if keep <= 0 {
		keep = defaultKeep
	}
	return &retentionSweep{name: name, logg: logg, db: db, clock: clk, keep: keep, batch: batch, delete: del}, nil
}

func (s *retentionSweep) Name() string { return s.name }

func (s *retentionSweep) Every() time.Duration { return day }

func (s *retentionSweep) cutoff() time.Time {
	return s.clock.Now().UTC().Add(-time.Duration(s.keep) * day)
}

func (s *retentionSweep) Run(ctx context.Context) error {
	cutoff := s.cutoff()
	var total int64
	for {
		var n int64
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			n, err = s.delete(ctx, tx, cutoff, s.batch)
			return err
		})
		if err != nil {
			return fmt.Errorf("%s: %w", s.label(), err)
		}
		total += n
		if s.batch <= 0 || n < int64(s.batch) || ctx.Err() != nil {
			break
		}
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"job":            s.name,
		"cutoff":         cutoff,
		"retention_days": s.keep,
		"rows_deleted":   total,
	}), "retention sweep complete")
	return nil
}

// label turns "outbox-retention" into "outbox retention" for error prefixes.
func (s *retentionSweep) label() string {
	return strings.ReplaceAll(s.name, "-", " ")
}
