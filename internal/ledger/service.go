package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/pkg/clock"
	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/metrics"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/lensdist-backend/pkg/pagination"
)

const (
	defaultLockTimeout = 5 * time.Second
	chainBatchSize     = 500
)

// Service is the only writer of ledger_transactions.
type Service interface {
	PostTransaction(ctx context.Context, input PostInput) (*models.LedgerTransaction, error)
	CurrentBalance(ctx context.Context, storeID uuid.UUID) (int64, error)
	HasTransactions(ctx context.Context, storeID uuid.UUID) (bool, error)
	ListTransactions(ctx context.Context, filter ListFilter, params pagination.Params) (*TransactionPage, error)
	Statement(ctx context.Context, storeID uuid.UUID, month time.Time) (*Statement, error)
	VerifyChain(ctx context.Context, storeID uuid.UUID) (*ChainReport, error)
	Facts(ctx context.Context, storeID uuid.UUID) (*ReceivableFacts, error)
	DepositsBetween(ctx context.Context, storeID uuid.UUID, from, to time.Time) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams wires the ledger engine. Outbox and Metrics are optional.
type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Locker      Locker
	Outbox      eventEmitter
	Logger      *logger.Logger
	Metrics     *metrics.LedgerMetrics
	Clock       clock.Clock
	Location    *time.Location
	LockTimeout time.Duration
}

type service struct {
	repo        Repository
	tx          txRunner
	locker      Locker
	outbox      eventEmitter
	logg        *logger.Logger
	metrics     *metrics.LedgerMetrics
	clock       clock.Clock
	loc         *time.Location
	lockTimeout time.Duration
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("ledger locker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	svc := &service{
		repo:        params.Repo,
		tx:          params.Tx,
		locker:      params.Locker,
		outbox:      params.Outbox,
		logg:        params.Logger,
		metrics:     params.Metrics,
		clock:       params.Clock,
		loc:         params.Location,
		lockTimeout: params.LockTimeout,
	}
	if svc.clock == nil {
		svc.clock = clock.Real()
	}
	if svc.loc == nil {
		svc.loc = time.UTC
	}
	if svc.lockTimeout <= 0 {
		svc.lockTimeout = defaultLockTimeout
	}
	return svc, nil
}

// signedDelta validates the input and returns its effect on the balance.
func signedDelta(input PostInput) (int64, error) {
	if input.StoreID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "store id is required")
	}
	if !input.Type.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown transaction type %q", input.Type))
	}
	if input.Amount <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeInvalidAmount, "amount must be greater than zero").
			WithDetails(map[string]any{"amount": input.Amount})
	}
	if input.PaymentMethod != "" && !input.PaymentMethod.IsValid() {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown payment method %q", input.PaymentMethod))
	}

	if input.Type != enums.LedgerTransactionAdjustment && input.Direction != "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "direction applies to adjustments only")
	}

	switch input.Type {
	case enums.LedgerTransactionSale:
		return input.Amount, nil
	case enums.LedgerTransactionDeposit, enums.LedgerTransactionReturn:
		return -input.Amount, nil
	default:
		if strings.TrimSpace(input.Memo) == "" {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "adjustments require a memo")
		}
		switch input.Direction {
		case enums.AdjustmentIncrease:
			return input.Amount, nil
		case enums.AdjustmentDecrease:
			return -input.Amount, nil
		default:
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "adjustment direction must be increase or decrease")
		}
	}
}

func (s *service) PostTransaction(ctx context.Context, input PostInput) (*models.LedgerTransaction, error) {
	delta, err := signedDelta(input)
	if err != nil {
		s.metrics.ObservePosting(string(input.Type), "rejected")
		return nil, err
	}
	metadata, err := encodeMetadata(input.Metadata)
	if err != nil {
		s.metrics.ObservePosting(string(input.Type), "rejected")
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "metadata must be JSON encodable")
	}

	ctx = s.logg.WithStoreID(ctx, input.StoreID.String())

	waitStart := time.Now()
	release, err := s.locker.Acquire(ctx, input.StoreID, s.lockTimeout)
	s.metrics.ObserveLockWait(time.Since(waitStart))
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			s.metrics.ObservePosting(string(input.Type), "busy")
			s.logg.Warn(ctx, "ledger lock wait timed out")
			return nil, pkgerrors.Wrap(pkgerrors.CodeLedgerBusy, err, "ledger is busy for this store, retry shortly")
		}
		s.metrics.ObservePosting(string(input.Type), "failed")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire ledger lock")
	}
	defer release()

	var posted *models.LedgerTransaction
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.LockStore(ctx, input.StoreID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
			}
			return err
		}

		prev, err := repo.Latest(ctx, input.StoreID)
		if err != nil {
			return err
		}

		processedAt := s.clock.Now().UTC()
		var sequence, balance int64
		if prev != nil {
			sequence = prev.Sequence
			balance = prev.BalanceAfter
			if prev.ProcessedAt.After(processedAt) {
				processedAt = prev.ProcessedAt.UTC()
			}
		}

		row := &models.LedgerTransaction{
			ID:           uuid.New(),
			StoreID:      input.StoreID,
			Sequence:     sequence + 1,
			Type:         input.Type,
			Amount:       input.Amount,
			Delta:        delta,
			BalanceAfter: balance + delta,
			OrderID:      input.OrderID,
			OrderNo:      optionalString(input.OrderNo),
			Depositor:    optionalString(input.Depositor),
			BankName:     optionalString(input.BankName),
			Memo:         optionalString(input.Memo),
			ProcessedBy:  optionalString(input.ProcessedBy),
			ProcessedAt:  processedAt,
			Metadata:     metadata,
		}
		if input.PaymentMethod != "" {
			method := input.PaymentMethod
			row.PaymentMethod = &method
		}

		if err := repo.Create(ctx, row); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.Wrap(pkgerrors.CodeLedgerBusy, err, "concurrent ledger write detected, retry shortly")
			}
			return err
		}

		if input.WithinTx != nil {
			if err := input.WithinTx(tx, row); err != nil {
				return err
			}
		}

		if s.outbox != nil {
			if err := s.outbox.Emit(ctx, tx, postedEvent(row)); err != nil {
				return err
			}
		}

		posted = row
		return nil
	})
	if err != nil {
		mapped := mapError(err, "post ledger transaction")
		outcome := "failed"
		if pkgerrors.IsCode(mapped, pkgerrors.CodeLedgerBusy) {
			outcome = "busy"
		}
		s.metrics.ObservePosting(string(input.Type), outcome)
		return nil, mapped
	}

	s.metrics.ObservePosting(string(input.Type), "posted")
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"transaction_id": posted.ID.String(),
		"type":           posted.Type,
		"amount":         posted.Amount,
		"balance_after":  posted.BalanceAfter,
		"sequence":       posted.Sequence,
	})
	s.logg.Info(logCtx, "ledger transaction posted")
	return posted, nil
}

func postedEvent(row *models.LedgerTransaction) outbox.DomainEvent {
	event := outbox.DomainEvent{
		EventType:     enums.EventLedgerTransactionPosted,
		AggregateType: enums.AggregateStore,
		AggregateID:   row.StoreID,
		OccurredAt:    row.ProcessedAt,
		Data: payloads.LedgerTransactionPostedEvent{
			TransactionID: row.ID,
			StoreID:       row.StoreID,
			Sequence:      row.Sequence,
			Type:          row.Type,
			Amount:        row.Amount,
			Delta:         row.Delta,
			BalanceAfter:  row.BalanceAfter,
			OrderID:       row.OrderID,
			OrderNo:       row.OrderNo,
			ProcessedAt:   row.ProcessedAt,
		},
	}
	if row.ProcessedBy != nil {
		event.Actor = outbox.NewActor(*row.ProcessedBy)
	}
	return event
}

// CurrentBalance is the balanceAfter of the latest row, 0 for a store with no history.
func (s *service) CurrentBalance(ctx context.Context, storeID uuid.UUID) (int64, error) {
	latest, err := s.repo.Latest(ctx, storeID)
	if err != nil {
		return 0, mapError(err, "load current balance")
	}
	if latest == nil {
		return 0, nil
	}
	return latest.BalanceAfter, nil
}

func (s *service) HasTransactions(ctx context.Context, storeID uuid.UUID) (bool, error) {
	exists, err := s.repo.Exists(ctx, storeID)
	if err != nil {
		return false, mapError(err, "check ledger history")
	}
	return exists, nil
}

func (s *service) ListTransactions(ctx context.Context, filter ListFilter, params pagination.Params) (*TransactionPage, error) {
	if filter.Type != nil && !filter.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown transaction type")
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "from must be before to")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if cursor != nil && cursor.Seq == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, filter, cursor, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, mapError(err, "list ledger transactions")
	}

	rows, next := pagination.Trim(rows, limit, func(tx models.LedgerTransaction) pagination.Cursor {
		return pagination.Cursor{At: tx.ProcessedAt, ID: tx.StoreID, Seq: tx.Sequence}
	})
	page := &TransactionPage{Items: make([]TransactionDTO, 0, len(rows)), NextCursor: next}
	for _, row := range rows {
		page.Items = append(page.Items, FromModel(row))
	}
	return page, nil
}

// Statement covers the calendar month containing month in the business
// timezone. A zero month means the current one.
func (s *service) Statement(ctx context.Context, storeID uuid.UUID, month time.Time) (*Statement, error) {
	if month.IsZero() {
		month = s.clock.Now()
	}
	from, to := clock.MonthRange(month, s.loc)

	opening, err := s.repo.BalanceBefore(ctx, storeID, from)
	if err != nil {
		return nil, mapError(err, "load opening balance")
	}
	rows, err := s.repo.Between(ctx, storeID, from, to)
	if err != nil {
		return nil, mapError(err, "load statement rows")
	}

	stmt := &Statement{
		StoreID:        storeID,
		PeriodStart:    from,
		PeriodEnd:      to,
		OpeningBalance: opening,
		ClosingBalance: opening,
		Transactions:   make([]TransactionDTO, 0, len(rows)),
	}
	for _, row := range rows {
		switch row.Type {
		case enums.LedgerTransactionSale:
			stmt.Sales += row.Amount
		case enums.LedgerTransactionDeposit:
			stmt.Deposits += row.Amount
		case enums.LedgerTransactionReturn:
			stmt.Returns += row.Amount
		case enums.LedgerTransactionAdjustment:
			stmt.Adjustments += row.Delta
		}
		stmt.ClosingBalance = row.BalanceAfter
		stmt.Transactions = append(stmt.Transactions, FromModel(row))
	}
	return stmt, nil
}

// VerifyChain replays every delta from zero and stops at the first row whose
// sequence or balanceAfter disagrees with the replay.
func (s *service) VerifyChain(ctx context.Context, storeID uuid.UUID) (*ChainReport, error) {
	report := &ChainReport{StoreID: storeID, Valid: true}
	var running, expectedSeq int64

	errStop := errors.New("stop")
	err := s.repo.ScanChain(ctx, storeID, chainBatchSize, func(rows []models.LedgerTransaction) error {
		for _, row := range rows {
			expectedSeq++
			running += row.Delta
			report.Checked++

			reason := ""
			switch {
			case row.Sequence != expectedSeq:
				reason = fmt.Sprintf("sequence gap: expected %d", expectedSeq)
			case row.BalanceAfter != running:
				reason = "balance mismatch"
			case !deltaMatchesType(row):
				reason = "delta sign does not match type"
			}
			if reason != "" {
				seq := row.Sequence
				report.Valid = false
				report.Sequence = &seq
				report.Expected = running
				report.Actual = row.BalanceAfter
				report.Reason = reason
				return errStop
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, mapError(err, "verify ledger chain")
	}

	if !report.Valid {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"store_id": storeID.String(),
			"code":     pkgerrors.CodeDataIntegrity,
			"sequence": *report.Sequence,
			"expected": report.Expected,
			"actual":   report.Actual,
			"reason":   report.Reason,
		})
		s.logg.Warn(logCtx, "ledger chain mismatch")
	}
	return report, nil
}

func deltaMatchesType(row models.LedgerTransaction) bool {
	switch row.Type {
	case enums.LedgerTransactionSale:
		return row.Delta == row.Amount
	case enums.LedgerTransactionDeposit, enums.LedgerTransactionReturn:
		return row.Delta == -row.Amount
	default:
		return row.Delta == row.Amount || row.Delta == -row.Amount
	}
}

func (s *service) Facts(ctx context.Context, storeID uuid.UUID) (*ReceivableFacts, error) {
	latest, err := s.repo.Latest(ctx, storeID)
	if err != nil {
		return nil, mapError(err, "load latest transaction")
	}
	facts := &ReceivableFacts{}
	if latest == nil {
		return facts, nil
	}
	facts.Balance = latest.BalanceAfter
	facts.HasTransactions = true

	deposit, err := s.repo.LastOfType(ctx, storeID, enums.LedgerTransactionDeposit)
	if err != nil {
		return nil, mapError(err, "load last deposit")
	}
	if deposit != nil {
		at := deposit.ProcessedAt.UTC()
		facts.LastDepositAt = &at
	}
	return facts, nil
}

func (s *service) DepositsBetween(ctx context.Context, storeID uuid.UUID, from, to time.Time) (int64, error) {
	total, err := s.repo.SumAmount(ctx, storeID, enums.LedgerTransactionDeposit, from, to)
	if err != nil {
		return 0, mapError(err, "sum deposits")
	}
	return total, nil
}

func encodeMetadata(values map[string]any) (datatypes.JSON, error) {
	if len(values) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func mapError(err error, op string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "record not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
