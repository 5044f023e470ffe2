package receivables

import (
	"time"

	"github.com/google/uuid"
)

// Aging bucket labels.
const (
	BucketCurrent = "current"
	Bucket1To30   = "1-30"
	Bucket31To60  = "31-60"
	Bucket61To90  = "61-90"
	BucketOver90  = "90+"
)

// StoreReceivable is one store's receivable position at a point in time.
type StoreReceivable struct {
	StoreID         uuid.UUID  `json:"store_id"`
	StoreCode       string     `json:"store_code"`
	StoreName       string     `json:"store_name"`
	GroupID         *uuid.UUID `json:"group_id,omitempty"`
	IsActive        bool       `json:"is_active"`
	Balance         int64      `json:"balance"`
	CreditLimit     int64      `json:"credit_limit"`
	PaymentTermDays int        `json:"payment_term_days"`
	OverLimit       bool       `json:"over_limit"`
	OverdueDays     *int       `json:"overdue_days"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	LastDepositAt   *time.Time `json:"last_deposit_at,omitempty"`
	AgingBucket     string     `json:"aging_bucket,omitempty"`
}

// ListFilter narrows List. Boolean flags only ever restrict the result.
type ListFilter struct {
	HasDebt    bool
	OverLimit  bool
	Overdue    bool
	GroupID    *uuid.UUID
	ActiveOnly bool
}

// Period is a half-open [From, To) window. The zero value means the current month.
type Period struct {
	From time.Time
	To   time.Time
}

// Aging sums positive balances by days overdue.
type Aging struct {
	Current    int64 `json:"current"`
	Days1To30  int64 `json:"days_1_30"`
	Days31To60 int64 `json:"days_31_60"`
	Days61To90 int64 `json:"days_61_90"`
	Over90     int64 `json:"over_90"`
}

func (a *Aging) add(bucket string, amount int64) {
	switch bucket {
	case BucketCurrent:
		a.Current += amount
	case Bucket1To30:
		a.Days1To30 += amount
	case Bucket31To60:
		a.Days31To60 += amount
	case Bucket61To90:
		a.Days61To90 += amount
	case BucketOver90:
		a.Over90 += amount
	}
}

type Summary struct {
	PeriodStart        time.Time `json:"period_start"`
	PeriodEnd          time.Time `json:"period_end"`
	StoreCount         int       `json:"store_count"`
	TotalOutstanding   int64     `json:"total_outstanding"`
	StoresWithDebt     int       `json:"stores_with_debt"`
	OverdueAmount      int64     `json:"overdue_amount"`
	OverdueCount       int       `json:"overdue_count"`
	PeriodDeposits     int64     `json:"period_deposits"`
	OverLimitCount     int       `json:"over_limit_count"`
	CreditBalanceTotal int64     `json:"credit_balance_total"`
	Aging              Aging     `json:"aging"`
}
