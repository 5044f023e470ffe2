package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/lensdist-backend/internal/ledger"
	"github.com/angelmondragon/lensdist-backend/internal/stores"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

type storeLister interface {
	List(ctx context.Context, filter stores.ListFilter) ([]models.Store, error)
}

type chainVerifier interface {
	VerifyChain(ctx context.Context, storeID uuid.UUID) (*ledger.ChainReport, error)
}

type LedgerAuditJobParams struct {
	Logger *logger.Logger
	Stores storeLister
	Ledger chainVerifier
}

func NewLedgerAuditJob(params LedgerAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Stores == nil {
		return nil, fmt.Errorf("store lister required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger verifier required")
	}
	return &ledgerAuditJob{logg: params.Logger, stores: params.Stores, ledger: params.Ledger}, nil
}

type ledgerAuditJob struct {
	logg   *logger.Logger
	stores storeLister
	ledger chainVerifier
}

func (j *ledgerAuditJob) Name() string { return "ledger-audit" }

func (j *ledgerAuditJob) Every() time.Duration { return 24 * time.Hour }

// Run replays every store's chain, inactive stores included. A broken chain
// or a failed read does not stop the audit of the remaining stores.
func (j *ledgerAuditJob) Run(ctx context.Context) error {
	list, err := j.stores.List(ctx, stores.ListFilter{})
	if err != nil {
		return fmt.Errorf("list stores: %w", err)
	}

	var errs error
	checked := 0
	broken := 0
	for _, store := range list {
		if ctx.Err() != nil {
			return multierr.Append(errs, ctx.Err())
		}
		report, err := j.ledger.VerifyChain(ctx, store.ID)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("store %s: %w", store.Code, err))
			continue
		}
		checked += report.Checked
		if report.Valid {
			continue
		}
		broken++
		errs = multierr.Append(errs, fmt.Errorf("store %s: %s at sequence %d", store.Code, report.Reason, *report.Sequence))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"stores":        len(list),
		"rows_checked":  checked,
		"broken_chains": broken,
	})
	if errs != nil {
		j.logg.Warn(logCtx, "ledger audit found problems")
		return errs
	}
	j.logg.Info(logCtx, "ledger audit clean")
	return nil
}
