package receivables

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/internal/ledger"
	"github.com/angelmondragon/lensdist-backend/internal/stores"
	"github.com/angelmondragon/lensdist-backend/pkg/clock"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
)

const defaultConcurrency = 8

// Service answers receivable questions. Balances always come from the
// ledger's latest row.
type Service interface {
	GetOutstanding(ctx context.Context, storeID uuid.UUID) (int64, error)
	GetOverdueDays(ctx context.Context, storeID uuid.UUID) (*int, error)
	IsOverLimit(ctx context.Context, storeID uuid.UUID) (bool, error)
	StoreStatus(ctx context.Context, storeID uuid.UUID) (*StoreReceivable, error)
	List(ctx context.Context, filter ListFilter) ([]StoreReceivable, error)
	Summarize(ctx context.Context, storeIDs []uuid.UUID, period Period) (*Summary, error)
}

type storeSource interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Store, error)
	List(ctx context.Context, filter stores.ListFilter) ([]models.Store, error)
}

type ledgerReader interface {
	Facts(ctx context.Context, storeID uuid.UUID) (*ledger.ReceivableFacts, error)
	DepositsBetween(ctx context.Context, storeID uuid.UUID, from, to time.Time) (int64, error)
}

type ServiceParams struct {
	Stores      storeSource
	Ledger      ledgerReader
	Clock       clock.Clock
	Location    *time.Location
	Concurrency int
}

type service struct {
	stores      storeSource
	ledger      ledgerReader
	clock       clock.Clock
	loc         *time.Location
	concurrency int
}

func NewService(params ServiceParams) (Service, error) {
	if params.Stores == nil {
		return nil, fmt.Errorf("store source required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger reader required")
	}
	svc := &service{
		stores:      params.Stores,
		ledger:      params.Ledger,
		clock:       params.Clock,
		loc:         params.Location,
		concurrency: params.Concurrency,
	}
	if svc.clock == nil {
		svc.clock = clock.Real()
	}
	if svc.loc == nil {
		svc.loc = time.UTC
	}
	if svc.concurrency <= 0 {
		svc.concurrency = defaultConcurrency
	}
	return svc, nil
}

func (s *service) GetOutstanding(ctx context.Context, storeID uuid.UUID) (int64, error) {
	status, err := s.StoreStatus(ctx, storeID)
	if err != nil {
		return 0, err
	}
	return status.Balance, nil
}

func (s *service) GetOverdueDays(ctx context.Context, storeID uuid.UUID) (*int, error) {
	status, err := s.StoreStatus(ctx, storeID)
	if err != nil {
		return nil, err
	}
	return status.OverdueDays, nil
}

func (s *service) IsOverLimit(ctx context.Context, storeID uuid.UUID) (bool, error) {
	status, err := s.StoreStatus(ctx, storeID)
	if err != nil {
		return false, err
	}
	return status.OverLimit, nil
}

func (s *service) StoreStatus(ctx context.Context, storeID uuid.UUID) (*StoreReceivable, error) {
	store, err := s.stores.FindByID(ctx, storeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store")
	}
	return s.status(ctx, *store, s.clock.Now())
}

func (s *service) status(ctx context.Context, store models.Store, now time.Time) (*StoreReceivable, error) {
	facts, err := s.ledger.Facts(ctx, store.ID)
	if err != nil {
		return nil, err
	}

	row := &StoreReceivable{
		StoreID:         store.ID,
		StoreCode:       store.Code,
		StoreName:       store.Name,
		GroupID:         store.GroupID,
		IsActive:        store.IsActive,
		Balance:         facts.Balance,
		CreditLimit:     store.CreditLimit,
		PaymentTermDays: store.PaymentTermDays,
		OverLimit:       facts.Balance > store.CreditLimit,
		LastDepositAt:   facts.LastDepositAt,
	}
	row.OverdueDays, row.DueDate = OverdueDays(*facts, store.PaymentTermDays, now, s.loc)
	row.AgingBucket = agingBucket(facts.Balance, row.OverdueDays)
	return row, nil
}

// OverdueDays anchors on the latest deposit. The due date is the deposit's
// calendar day plus termDays in loc. A store that never paid has no due date
// and is not overdue, and neither is a store with nothing owed.
func OverdueDays(facts ledger.ReceivableFacts, termDays int, now time.Time, loc *time.Location) (*int, *time.Time) {
	anchor := facts.LastDepositAt
	if anchor == nil {
		return nil, nil
	}
	due := clock.StartOfDay(*anchor, loc).AddDate(0, 0, termDays)
	if facts.Balance <= 0 {
		return nil, &due
	}
	days := clock.DaysBetween(due, now, loc)
	if days <= 0 {
		return nil, &due
	}
	return &days, &due
}

func agingBucket(balance int64, overdue *int) string {
	if balance <= 0 {
		return ""
	}
	if overdue == nil {
		return BucketCurrent
	}
	switch days := *overdue; {
	case days <= 30:
		return Bucket1To30
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	default:
		return BucketOver90
	}
}

func (s *service) List(ctx context.Context, filter ListFilter) ([]StoreReceivable, error) {
	list, err := s.stores.List(ctx, stores.ListFilter{GroupID: filter.GroupID, ActiveOnly: filter.ActiveOnly})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stores")
	}

	rows, err := s.collect(ctx, list, nil)
	if err != nil {
		return nil, err
	}

	out := make([]StoreReceivable, 0, len(rows))
	for _, r := range rows {
		if filter.HasDebt && r.status.Balance <= 0 {
			continue
		}
		if filter.OverLimit && !r.status.OverLimit {
			continue
		}
		if filter.Overdue && r.status.OverdueDays == nil {
			continue
		}
		out = append(out, *r.status)
	}
	return out, nil
}

func (s *service) Summarize(ctx context.Context, storeIDs []uuid.UUID, period Period) (*Summary, error) {
	now := s.clock.Now()
	if period.From.IsZero() && period.To.IsZero() {
		period.From, period.To = clock.MonthRange(now, s.loc)
	}
	if !period.From.Before(period.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "period start must precede its end")
	}

	var list []models.Store
	var err error
	if len(storeIDs) == 0 {
		list, err = s.stores.List(ctx, stores.ListFilter{ActiveOnly: true})
	} else {
		list, err = s.stores.FindByIDs(ctx, uniqueIDs(storeIDs))
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load stores")
	}
	if missing := missingIDs(storeIDs, list); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "one or more stores not found").
			WithDetails(map[string]any{"storeIds": missing})
	}

	rows, err := s.collect(ctx, list, &period)
	if err != nil {
		return nil, err
	}

	summary := &Summary{PeriodStart: period.From, PeriodEnd: period.To, StoreCount: len(rows)}
	for _, r := range rows {
		st := r.status
		summary.PeriodDeposits += r.deposits
		switch {
		case st.Balance > 0:
			summary.TotalOutstanding += st.Balance
			summary.StoresWithDebt++
			summary.Aging.add(st.AgingBucket, st.Balance)
		case st.Balance < 0:
			summary.CreditBalanceTotal += -st.Balance
		}
		if st.OverdueDays != nil {
			summary.OverdueAmount += st.Balance
			summary.OverdueCount++
		}
		if st.OverLimit {
			summary.OverLimitCount++
		}
	}
	return summary, nil
}

type collected struct {
	status   *StoreReceivable
	deposits int64
}

// collect evaluates every store with bounded parallelism, keeping input order.
func (s *service) collect(ctx context.Context, list []models.Store, period *Period) ([]collected, error) {
	now := s.clock.Now()
	out := make([]collected, len(list))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range list {
		g.Go(func() error {
			status, err := s.status(gctx, list[i], now)
			if err != nil {
				return err
			}
			out[i].status = status
			if period == nil {
				return nil
			}
			deposits, err := s.ledger.DepositsBetween(gctx, list[i].ID, period.From, period.To)
			if err != nil {
				return err
			}
			out[i].deposits = deposits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "collect receivables")
	}
	return out, nil
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(requested []uuid.UUID, found []models.Store) []string {
	if len(requested) == 0 {
		return nil
	}
	have := make(map[uuid.UUID]struct{}, len(found))
	for _, st := range found {
		have[st.ID] = struct{}{}
	}
	var missing []string
	for _, id := range uniqueIDs(requested) {
		if _, ok := have[id]; !ok {
			missing = append(missing, id.String())
		}
	}
	return missing
}
