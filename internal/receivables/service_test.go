package receivables

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/lensdist-backend/internal/ledger"
	"github.com/angelmondragon/lensdist-backend/internal/stores"
	"github.com/angelmondragon/lensdist-backend/pkg/clock"
	"github.com/angelmondragon/lensdist-backend/pkg/db"
	"github.com/angelmondragon/lensdist-backend/pkg/db/dbtest"
	"github.com/angelmondragon/lensdist-backend/pkg/db/models"
	"github.com/angelmondragon/lensdist-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/lensdist-backend/pkg/errors"
	"github.com/angelmondragon/lensdist-backend/pkg/logger"
)

var kst = time.FixedZone("KST", 9*3600)

// noon KST on the given day.
func day(month time.Month, d int) time.Time {
	return time.Date(2026, month, d, 12, 0, 0, 0, kst)
}

type entry struct {
	txType enums.LedgerTransactionType
	amount int64
	at     time.Time
}

type fixture struct {
	conn  *gorm.DB
	svc   Service
	clock *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	fake := clock.NewFakeClock(day(time.May, 1))
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:     ledger.NewRepository(conn),
		Tx:       db.NewFromConn(conn),
		Locker:   ledger.NewMemoryLocker(),
		Logger:   logger.New(logger.Options{Output: io.Discard}),
		Clock:    fake,
		Location: kst,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Stores:      stores.NewRepository(conn),
		Ledger:      ledgerSvc,
		Clock:       fake,
		Location:    kst,
		Concurrency: 2,
	})
	require.NoError(t, err)
	return &fixture{conn: conn, svc: svc, clock: fake}
}

func (f *fixture) store(t *testing.T, code string, creditLimit int64, entries ...entry) models.Store {
	t.Helper()
	store := models.Store{ID: uuid.New(), Code: code, Name: "Store " + code, CreditLimit: creditLimit, PaymentTermDays: 30, IsActive: true}
	require.NoError(t, f.conn.Create(&store).Error)

	var balance int64
	for i, e := range entries {
		delta := e.amount
		if e.txType == enums.LedgerTransactionDeposit || e.txType == enums.LedgerTransactionReturn {
			delta = -e.amount
		}
		balance += delta
		row := models.LedgerTransaction{
			ID:           uuid.New(),
			StoreID:      store.ID,
			Sequence:     int64(i + 1),
			Type:         e.txType,
			Amount:       e.amount,
			Delta:        delta,
			BalanceAfter: balance,
			ProcessedAt:  e.at.UTC(),
		}
		require.NoError(t, f.conn.Create(&row).Error)
	}
	return store
}

func sale(amount int64, at time.Time) entry {
	return entry{txType: enums.LedgerTransactionSale, amount: amount, at: at}
}

func deposit(amount int64, at time.Time) entry {
	return entry{txType: enums.LedgerTransactionDeposit, amount: amount, at: at}
}

func TestOverdueBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Last deposit 31 days before 2026-05-01 with 100,000 still owed.
	owing := f.store(t, "A", 1_000_000, sale(150_000, day(time.March, 1)), deposit(50_000, day(time.March, 31)))
	days, err := f.svc.GetOverdueDays(ctx, owing.ID)
	require.NoError(t, err)
	require.NotNil(t, days)
	assert.Equal(t, 1, *days)

	outstanding, err := f.svc.GetOutstanding(ctx, owing.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000), outstanding)

	settled := f.store(t, "B", 1_000_000, sale(150_000, day(time.January, 1)), deposit(150_000, day(time.January, 2)))
	days, err = f.svc.GetOverdueDays(ctx, settled.ID)
	require.NoError(t, err)
	assert.Nil(t, days)
}

func TestOverdueOnDueDateIsNotOverdue(t *testing.T) {
	f := newFixture(t)
	store := f.store(t, "A", 1_000_000, sale(10_000, day(time.March, 1)), deposit(1_000, day(time.April, 1)))

	days, err := f.svc.GetOverdueDays(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Nil(t, days)

	status, err := f.svc.StoreStatus(context.Background(), store.ID)
	require.NoError(t, err)
	require.NotNil(t, status.DueDate)
	assert.True(t, status.DueDate.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, kst)))
	assert.Equal(t, BucketCurrent, status.AgingBucket)
}

func TestNeverPaidStoreIsNotOverdue(t *testing.T) {
	f := newFixture(t)
	store := f.store(t, "A", 1_000_000, sale(10_000, day(time.March, 1)), sale(5_000, day(time.April, 20)))

	days, err := f.svc.GetOverdueDays(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Nil(t, days)

	status, err := f.svc.StoreStatus(context.Background(), store.ID)
	require.NoError(t, err)
	assert.Nil(t, status.DueDate)
	assert.Equal(t, BucketCurrent, status.AgingBucket)

	got, due := OverdueDays(ledger.ReceivableFacts{Balance: 10_000, HasTransactions: true}, 30, day(time.May, 1), kst)
	assert.Nil(t, got)
	assert.Nil(t, due)
}

func TestStoreWithoutHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := f.store(t, "A", 0)

	days, err := f.svc.GetOverdueDays(ctx, store.ID)
	require.NoError(t, err)
	assert.Nil(t, days)

	over, err := f.svc.IsOverLimit(ctx, store.ID)
	require.NoError(t, err)
	assert.False(t, over)

	_, err = f.svc.StoreStatus(ctx, uuid.New())
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestIsOverLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := f.store(t, "A", 50_000, sale(50_000, day(time.April, 28)))

	over, err := f.svc.IsOverLimit(ctx, store.ID)
	require.NoError(t, err)
	assert.False(t, over)

	more := models.LedgerTransaction{ID: uuid.New(), StoreID: store.ID, Sequence: 2, Type: enums.LedgerTransactionSale, Amount: 1, Delta: 1, BalanceAfter: 50_001, ProcessedAt: day(time.April, 29).UTC()}
	require.NoError(t, f.conn.Create(&more).Error)

	over, err = f.svc.IsOverLimit(ctx, store.ID)
	require.NoError(t, err)
	assert.True(t, over)
}

func TestSummarizeFleet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store(t, "A", 50_000, sale(150_000, day(time.March, 1)), deposit(50_000, day(time.March, 31)))
	f.store(t, "B", 1_000_000, sale(10_000, day(time.April, 10)), deposit(30_000, day(time.April, 15)))
	f.store(t, "C", 1_000_000, sale(30_000, day(time.April, 25)))
	inactive := f.store(t, "D", 0, sale(999_000, day(time.January, 5)))
	require.NoError(t, f.conn.Model(&models.Store{}).Where("id = ?", inactive.ID).Update("is_active", false).Error)

	april := Period{From: time.Date(2026, 4, 1, 0, 0, 0, 0, kst), To: time.Date(2026, 5, 1, 0, 0, 0, 0, kst)}
	summary, err := f.svc.Summarize(ctx, nil, april)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.StoreCount)
	assert.Equal(t, int64(130_000), summary.TotalOutstanding)
	assert.Equal(t, 2, summary.StoresWithDebt)
	assert.Equal(t, int64(20_000), summary.CreditBalanceTotal)
	assert.Equal(t, int64(100_000), summary.OverdueAmount)
	assert.Equal(t, 1, summary.OverdueCount)
	assert.Equal(t, 1, summary.OverLimitCount)
	assert.Equal(t, int64(30_000), summary.PeriodDeposits)
	assert.Equal(t, Aging{Current: 30_000, Days1To30: 100_000}, summary.Aging)
}

func TestSummarizeExplicitStoresAndDefaultPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.store(t, "A", 1_000_000, sale(70_000, day(time.April, 1)), deposit(20_000, day(time.May, 1)))
	f.store(t, "B", 1_000_000, sale(10_000, day(time.April, 2)))

	summary, err := f.svc.Summarize(ctx, []uuid.UUID{a.ID, a.ID}, Period{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.StoreCount)
	assert.Equal(t, int64(50_000), summary.TotalOutstanding)
	assert.Equal(t, int64(20_000), summary.PeriodDeposits)
	assert.True(t, summary.PeriodStart.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, kst)))

	_, err = f.svc.Summarize(ctx, []uuid.UUID{a.ID, uuid.New()}, Period{})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	_, err = f.svc.Summarize(ctx, nil, Period{From: day(time.May, 2), To: day(time.May, 1)})
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
}

func TestListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	group := models.StoreGroup{ID: uuid.New(), Name: "Busan"}
	require.NoError(t, f.conn.Create(&group).Error)

	a := f.store(t, "A", 50_000, sale(150_000, day(time.March, 1)), deposit(50_000, day(time.March, 31)))
	f.store(t, "B", 1_000_000, sale(10_000, day(time.April, 10)), deposit(30_000, day(time.April, 15)))
	c := f.store(t, "C", 1_000_000, sale(30_000, day(time.April, 25)))
	require.NoError(t, f.conn.Model(&models.Store{}).Where("id = ?", c.ID).Update("group_id", group.ID).Error)

	all, err := f.svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	debt, err := f.svc.List(ctx, ListFilter{HasDebt: true})
	require.NoError(t, err)
	require.Len(t, debt, 2)
	assert.Equal(t, "A", debt[0].StoreCode)
	assert.Equal(t, "C", debt[1].StoreCode)

	overdue, err := f.svc.List(ctx, ListFilter{Overdue: true})
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, a.ID, overdue[0].StoreID)
	assert.Equal(t, Bucket1To30, overdue[0].AgingBucket)

	overLimit, err := f.svc.List(ctx, ListFilter{OverLimit: true})
	require.NoError(t, err)
	require.Len(t, overLimit, 1)
	assert.Equal(t, a.ID, overLimit[0].StoreID)

	grouped, err := f.svc.List(ctx, ListFilter{GroupID: &group.ID})
	require.NoError(t, err)
	require.Len(t, grouped, 1)
	assert.Equal(t, c.ID, grouped[0].StoreID)
}

func TestOverdueDaysAcrossBuckets(t *testing.T) {
	anchor := time.Date(2026, 1, 10, 23, 30, 0, 0, time.UTC) // 2026-01-11 08:30 KST
	cases := []struct {
		name    string
		balance int64
		now     time.Time
		want    *int
		bucket  string
	}{
		{"before due", 1_000, day(time.February, 5), nil, BucketCurrent},
		{"on due date", 1_000, day(time.February, 10), nil, BucketCurrent},
		{"one day late", 1_000, day(time.February, 11), intPtr(1), Bucket1To30},
		{"sixty days late", 1_000, day(time.April, 11), intPtr(60), Bucket31To60},
		{"ninety one days late", 1_000, day(time.May, 12), intPtr(91), BucketOver90},
		{"credit balance", -1_000, day(time.May, 12), nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			facts := ledger.ReceivableFacts{Balance: tc.balance, HasTransactions: true, LastDepositAt: &anchor}
			got, due := OverdueDays(facts, 30, tc.now, kst)
			require.NotNil(t, due)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.bucket, agingBucket(tc.balance, got))
		})
	}
}

func intPtr(v int) *int { return &v }
