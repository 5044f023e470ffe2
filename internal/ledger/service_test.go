package ledger

import (
	"context"
	"errors"
	"io"
	"sync"
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
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
	"github.com/angelmondragon/lensdist-backend/pkg/outbox"
	"github.com/angelmondragon/lensdist-backend/pkg/pagination"
)

var kst = time.FixedZone("KST", 9*3600)

type fixture struct {
	conn   *gorm.DB
	svc    Service
	clock  *clock.FakeClock
	locker *MemoryLocker
	store  models.Store
}

func newFixture(t *testing.T, opts ...func(*ServiceParams)) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	fake := clock.NewFakeClock(time.Date(2026, 3, 10, 1, 0, 0, 0, time.UTC))
	locker := NewMemoryLocker()
	logg := logger.New(logger.Options{ServiceName: "ledger-test", Output: io.Discard})

	params := ServiceParams{
		Repo:     NewRepository(conn),
		Tx:       db.NewFromConn(conn),
		Locker:   locker,
		Outbox:   outbox.NewService(outbox.NewRepository(conn), nil),
		Logger:   logg,
		Clock:    fake,
		Location: kst,
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	store := models.Store{ID: uuid.New(), Code: "S-100", Name: "Bright Optics", CreditLimit: 1_000_000, PaymentTermDays: 30, IsActive: true}
	require.NoError(t, conn.Create(&store).Error)
	return &fixture{conn: conn, svc: svc, clock: fake, locker: locker, store: store}
}

func (f *fixture) post(t *testing.T, txType enums.LedgerTransactionType, amount int64) *models.LedgerTransaction {
	t.Helper()
	row, err := f.svc.PostTransaction(context.Background(), PostInput{StoreID: f.store.ID, Type: txType, Amount: amount})
	require.NoError(t, err)
	return row
}

func codeOf(err error) pkgerrors.Code {
	return pkgerrors.As(err).Code()
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	logg := logger.New(logger.Options{Output: io.Discard})
	_, err := NewService(ServiceParams{Tx: db.NewFromConn(nil), Locker: NewMemoryLocker(), Logger: logg})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Repo: NewRepository(nil), Locker: NewMemoryLocker(), Logger: logg})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Repo: NewRepository(nil), Tx: db.NewFromConn(nil), Logger: logg})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Repo: NewRepository(nil), Tx: db.NewFromConn(nil), Locker: NewMemoryLocker()})
	require.Error(t, err)
}

func TestSaleThenDepositRunsBalance(t *testing.T) {
	f := newFixture(t)

	sale := f.post(t, enums.LedgerTransactionSale, 50_000)
	assert.Equal(t, int64(1), sale.Sequence)
	assert.Equal(t, int64(50_000), sale.Delta)
	assert.Equal(t, int64(50_000), sale.BalanceAfter)

	deposit := f.post(t, enums.LedgerTransactionDeposit, 20_000)
	assert.Equal(t, int64(2), deposit.Sequence)
	assert.Equal(t, int64(-20_000), deposit.Delta)
	assert.Equal(t, int64(30_000), deposit.BalanceAfter)

	balance, err := f.svc.CurrentBalance(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30_000), balance)
}

func TestReturnAndAdjustmentSigns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.post(t, enums.LedgerTransactionSale, 100_000)
	ret := f.post(t, enums.LedgerTransactionReturn, 10_000)
	assert.Equal(t, int64(90_000), ret.BalanceAfter)

	up, err := f.svc.PostTransaction(ctx, PostInput{StoreID: f.store.ID, Type: enums.LedgerTransactionAdjustment, Amount: 3_000, Direction: enums.AdjustmentIncrease, Memo: "shipping fee"})
	require.NoError(t, err)
	assert.Equal(t, int64(3_000), up.Delta)
	assert.Equal(t, int64(93_000), up.BalanceAfter)

	down, err := f.svc.PostTransaction(ctx, PostInput{StoreID: f.store.ID, Type: enums.LedgerTransactionAdjustment, Amount: 93_500, Direction: enums.AdjustmentDecrease, Memo: "write-off"})
	require.NoError(t, err)
	assert.Equal(t, int64(-93_500), down.Delta)
	assert.Equal(t, int64(-500), down.BalanceAfter)
}

func TestPostTransactionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input PostInput
		code  pkgerrors.Code
	}{
		{"zero amount", PostInput{StoreID: f.store.ID, Type: enums.LedgerTransactionSale, Amount: 0}, pkgerrors.CodeInvalidAmount},
		{"negative amount", PostInput{StoreID: f.store.ID, Type: enums.LedgerTransactionDeposit, Amount: -5}, pkgerrors.CodeInvalidAmount},
		{"unknown type", PostInput{StoreID: f.store.ID, Type: "refund", Amount: 10}, pkgerrors.CodeValidation},
		{"missing store", PostInput{Type: enums.LedgerTransactionSale, Amount: 10}, pkgerrors.CodeValidation},
		{"adjustment without direction", PostInput{StoreID: f.store.ID, Type: enums.LedgerTransactionAdjustment, Amount: 10, Memo: "fix"}, pkgerrors.CodeValidation},
		{"adjustment without memo", PostInput{StoreID: f.store.ID, Type: enums.LedgerTransactionAdjustment, Amount: 10, Direction: enums.AdjustmentIncrease}, pkgerrors.CodeValidation},
		{"direction on sale", PostInput{StoreID: f.store.ID, Type: enums.LedgerTransactionSale, Amount: 10, Direction: enums.AdjustmentDecrease}, pkgerrors.CodeValidation},
		{"bad payment method", PostInput{StoreID: f.store.ID, Type: enums.LedgerTransactionDeposit, Amount: 10, PaymentMethod: "barter"}, pkgerrors.CodeValidation},
		{"unknown store", PostInput{StoreID: uuid.New(), Type: enums.LedgerTransactionSale, Amount: 10}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.PostTransaction(ctx, tc.input)
			require.Error(t, err)
			assert.Equal(t, tc.code, codeOf(err))
		})
	}

	has, err := f.svc.HasTransactions(ctx, f.store.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

type refusingLocker struct{ calls int }

func (l *refusingLocker) Acquire(context.Context, uuid.UUID, time.Duration) (func(), error) {
	l.calls++
	return nil, errors.New("must not be called")
}

func TestInvalidAmountRejectedBeforeLocking(t *testing.T) {
	locker := &refusingLocker{}
	f := newFixture(t, func(p *ServiceParams) { p.Locker = locker })

	_, err := f.svc.PostTransaction(context.Background(), PostInput{StoreID: f.store.ID, Type: enums.LedgerTransactionSale, Amount: 0})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeInvalidAmount, codeOf(err))
	assert.Zero(t, locker.calls)
}

func TestPostingCarriesMetadata(t *testing.T) {
	f := newFixture(t)
	orderID := uuid.New()

	row, err := f.svc.PostTransaction(context.Background(), PostInput{
		StoreID:       f.store.ID,
		Type:          enums.LedgerTransactionDeposit,
		Amount:        15_000,
		OrderID:       &orderID,
		OrderNo:       "ORD-7",
		PaymentMethod: enums.PaymentMethodTransfer,
		Depositor:     "Park",
		BankName:      "Shinhan",
		ProcessedBy:   "admin@lens",
		Metadata:      map[string]any{"slip": "A-19"},
	})
	require.NoError(t, err)

	var stored models.LedgerTransaction
	require.NoError(t, f.conn.First(&stored, "id = ?", row.ID).Error)
	require.NotNil(t, stored.PaymentMethod)
	assert.Equal(t, enums.PaymentMethodTransfer, *stored.PaymentMethod)
	assert.Equal(t, "Park", *stored.Depositor)
	assert.Equal(t, "Shinhan", *stored.BankName)
	assert.Equal(t, "ORD-7", *stored.OrderNo)
	assert.Equal(t, orderID, *stored.OrderID)
	assert.Nil(t, stored.Memo)
	assert.JSONEq(t, `{"slip":"A-19"}`, string(stored.Metadata))

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventLedgerTransactionPosted, events[0].EventType)
	assert.Equal(t, f.store.ID, events[0].AggregateID)
}

func TestWithinTxFailureRollsBackPosting(t *testing.T) {
	f := newFixture(t)
	boom := pkgerrors.New(pkgerrors.CodeConflict, "order number taken")

	_, err := f.svc.PostTransaction(context.Background(), PostInput{
		StoreID: f.store.ID,
		Type:    enums.LedgerTransactionSale,
		Amount:  40_000,
		WithinTx: func(tx *gorm.DB, posted *models.LedgerTransaction) error {
			assert.Equal(t, int64(40_000), posted.BalanceAfter)
			return boom
		},
	})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeConflict, codeOf(err))

	var count int64
	require.NoError(t, f.conn.Model(&models.LedgerTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLockTimeoutReportsBusy(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) { p.LockTimeout = 20 * time.Millisecond })

	release, err := f.locker.Acquire(context.Background(), f.store.ID, time.Second)
	require.NoError(t, err)
	defer release()

	_, err = f.svc.PostTransaction(context.Background(), PostInput{StoreID: f.store.ID, Type: enums.LedgerTransactionSale, Amount: 1_000})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeLedgerBusy, codeOf(err))
	assert.True(t, pkgerrors.As(err).Retryable())
}

// staleRepo hides the latest row from the writer, as a process that skipped
// the lock would see it.
type staleRepo struct {
	Repository
}

func (r staleRepo) WithTx(tx *gorm.DB) Repository {
	return staleRepo{Repository: r.Repository.WithTx(tx)}
}

func (r staleRepo) Latest(context.Context, uuid.UUID) (*models.LedgerTransaction, error) {
	return nil, nil
}

func TestSequenceCollisionReportsBusy(t *testing.T) {
	f := newFixture(t)
	f.post(t, enums.LedgerTransactionSale, 10_000)

	stale, err := NewService(ServiceParams{
		Repo:   staleRepo{Repository: NewRepository(f.conn)},
		Tx:     db.NewFromConn(f.conn),
		Locker: NewMemoryLocker(),
		Logger: logger.New(logger.Options{Output: io.Discard}),
		Clock:  f.clock,
	})
	require.NoError(t, err)

	_, err = stale.PostTransaction(context.Background(), PostInput{StoreID: f.store.ID, Type: enums.LedgerTransactionSale, Amount: 5_000})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeLedgerBusy, codeOf(err))

	balance, err := f.svc.CurrentBalance(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), balance)
}

func TestConcurrentPostingsKeepInvariant(t *testing.T) {
	f := newFixture(t)
	other := models.Store{ID: uuid.New(), Code: "S-200", Name: "Clear Vision", PaymentTermDays: 30, IsActive: true}
	require.NoError(t, f.conn.Create(&other).Error)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers*2)
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			txType := enums.LedgerTransactionSale
			if i%4 == 0 {
				txType = enums.LedgerTransactionDeposit
			}
			_, err := f.svc.PostTransaction(context.Background(), PostInput{StoreID: f.store.ID, Type: txType, Amount: 1_000})
			errs <- err
		}(i)
		go func() {
			defer wg.Done()
			_, err := f.svc.PostTransaction(context.Background(), PostInput{StoreID: other.ID, Type: enums.LedgerTransactionSale, Amount: 500})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// 15 sales and 5 deposits of 1,000 each.
	balance, err := f.svc.CurrentBalance(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000), balance)

	report, err := f.svc.VerifyChain(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, writers, report.Checked)

	otherBalance, err := f.svc.CurrentBalance(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(writers*500), otherBalance)
}

func TestProcessedAtNeverMovesBackwards(t *testing.T) {
	f := newFixture(t)
	first := f.post(t, enums.LedgerTransactionSale, 1_000)

	f.clock.Advance(-2 * time.Hour)
	second := f.post(t, enums.LedgerTransactionSale, 1_000)

	assert.True(t, second.ProcessedAt.Equal(first.ProcessedAt))
	assert.Equal(t, first.Sequence+1, second.Sequence)
}

func TestListTransactionsPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.post(t, enums.LedgerTransactionSale, int64(1_000*(i+1)))
		f.clock.Advance(time.Minute)
	}
	f.post(t, enums.LedgerTransactionDeposit, 500)

	ctx := context.Background()
	storeID := f.store.ID
	saleType := enums.LedgerTransactionSale
	filter := ListFilter{StoreID: &storeID, Type: &saleType}

	page, err := f.svc.ListTransactions(ctx, filter, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(5), page.Items[0].Sequence)
	assert.Equal(t, int64(4), page.Items[1].Sequence)
	require.NotEmpty(t, page.NextCursor)

	page, err = f.svc.ListTransactions(ctx, filter, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Items[0].Sequence)
	assert.Equal(t, int64(2), page.Items[1].Sequence)

	page, err = f.svc.ListTransactions(ctx, filter, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, int64(1), page.Items[0].Sequence)
	assert.Empty(t, page.NextCursor)

	_, err = f.svc.ListTransactions(ctx, filter, pagination.Params{Cursor: "%%%"})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(err))
}

func TestListTransactionsKeepsInsertionOrderOnEqualTimestamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		f.post(t, enums.LedgerTransactionSale, int64(1_000*(i+1)))
	}

	storeID := f.store.ID
	filter := ListFilter{StoreID: &storeID}
	var got []int64
	cursor := ""
	for {
		page, err := f.svc.ListTransactions(ctx, filter, pagination.Params{Limit: 4, Cursor: cursor})
		require.NoError(t, err)
		for _, item := range page.Items {
			got = append(got, item.Sequence)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, []int64{6, 5, 4, 3, 2, 1}, got)

	other := models.Store{ID: uuid.New(), Code: "S-200", Name: "Clear Lens", CreditLimit: 1_000_000, PaymentTermDays: 30, IsActive: true}
	require.NoError(t, f.conn.Create(&other).Error)
	for i := 0; i < 3; i++ {
		_, err := f.svc.PostTransaction(ctx, PostInput{StoreID: other.ID, Type: enums.LedgerTransactionSale, Amount: 500})
		require.NoError(t, err)
	}

	seen := map[uuid.UUID][]int64{}
	total := 0
	cursor = ""
	for {
		page, err := f.svc.ListTransactions(ctx, ListFilter{}, pagination.Params{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, item := range page.Items {
			seen[item.StoreID] = append(seen[item.StoreID], item.Sequence)
			total++
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	assert.Equal(t, 9, total)
	assert.Equal(t, []int64{6, 5, 4, 3, 2, 1}, seen[f.store.ID])
	assert.Equal(t, []int64{3, 2, 1}, seen[other.ID])

	legacy := pagination.EncodeCursor(pagination.Cursor{At: f.clock.Now(), ID: uuid.New()})
	_, err := f.svc.ListTransactions(ctx, filter, pagination.Params{Cursor: legacy})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, codeOf(err))
}

func TestStatementCarriesBalanceForward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.clock.Set(time.Date(2026, 2, 20, 3, 0, 0, 0, time.UTC))
	f.post(t, enums.LedgerTransactionSale, 100_000)

	// 2026-03-01 05:00 KST belongs to March even though it is still February in UTC.
	f.clock.Set(time.Date(2026, 2, 28, 20, 0, 0, 0, time.UTC))
	f.post(t, enums.LedgerTransactionDeposit, 40_000)

	f.clock.Set(time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC))
	f.post(t, enums.LedgerTransactionSale, 20_000)
	_, err := f.svc.PostTransaction(ctx, PostInput{StoreID: f.store.ID, Type: enums.LedgerTransactionAdjustment, Amount: 5_000, Direction: enums.AdjustmentDecrease, Memo: "promo credit"})
	require.NoError(t, err)

	f.clock.Set(time.Date(2026, 4, 2, 3, 0, 0, 0, time.UTC))
	f.post(t, enums.LedgerTransactionSale, 1)

	stmt, err := f.svc.Statement(ctx, f.store.ID, time.Date(2026, 3, 15, 0, 0, 0, 0, kst))
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), stmt.OpeningBalance)
	assert.Equal(t, int64(20_000), stmt.Sales)
	assert.Equal(t, int64(40_000), stmt.Deposits)
	assert.Equal(t, int64(0), stmt.Returns)
	assert.Equal(t, int64(-5_000), stmt.Adjustments)
	assert.Equal(t, int64(75_000), stmt.ClosingBalance)
	assert.Len(t, stmt.Transactions, 3)
	assert.True(t, stmt.PeriodStart.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, kst)))

	empty, err := f.svc.Statement(ctx, f.store.ID, time.Date(2026, 1, 5, 0, 0, 0, 0, kst))
	require.NoError(t, err)
	assert.Zero(t, empty.OpeningBalance)
	assert.Zero(t, empty.ClosingBalance)
	assert.Empty(t, empty.Transactions)
}

func TestVerifyChainFindsTamperedRow(t *testing.T) {
	f := newFixture(t)
	f.post(t, enums.LedgerTransactionSale, 10_000)

	tampered := models.LedgerTransaction{
		ID:           uuid.New(),
		StoreID:      f.store.ID,
		Sequence:     2,
		Type:         enums.LedgerTransactionDeposit,
		Amount:       4_000,
		Delta:        -4_000,
		BalanceAfter: 7_000,
		ProcessedAt:  f.clock.Now(),
	}
	require.NoError(t, f.conn.Create(&tampered).Error)

	report, err := f.svc.VerifyChain(context.Background(), f.store.ID)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.NotNil(t, report.Sequence)
	assert.Equal(t, int64(2), *report.Sequence)
	assert.Equal(t, int64(6_000), report.Expected)
	assert.Equal(t, int64(7_000), report.Actual)
}

func TestFactsAndDeposits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	facts, err := f.svc.Facts(ctx, f.store.ID)
	require.NoError(t, err)
	assert.False(t, facts.HasTransactions)
	assert.Nil(t, facts.LastDepositAt)

	start := f.clock.Now()
	f.post(t, enums.LedgerTransactionSale, 80_000)
	f.clock.Advance(48 * time.Hour)
	depositAt := f.clock.Now()
	f.post(t, enums.LedgerTransactionDeposit, 30_000)
	f.clock.Advance(time.Hour)
	f.post(t, enums.LedgerTransactionSale, 5_000)

	facts, err = f.svc.Facts(ctx, f.store.ID)
	require.NoError(t, err)
	assert.True(t, facts.HasTransactions)
	assert.Equal(t, int64(55_000), facts.Balance)
	require.NotNil(t, facts.LastDepositAt)
	assert.True(t, facts.LastDepositAt.Equal(depositAt))

	total, err := f.svc.DepositsBetween(ctx, f.store.ID, start, f.clock.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(30_000), total)
}
