package enums

import "slices"

// LedgerTransactionType maps to the ledger_transaction_type enum in Postgres.
type LedgerTransactionType string

const (
	LedgerTransactionSale       LedgerTransactionType = "sale"
	LedgerTransactionDeposit    LedgerTransactionType = "deposit"
	LedgerTransactionReturn     LedgerTransactionType = "return"
	LedgerTransactionAdjustment LedgerTransactionType = "adjustment"
)

var ledgerTransactionTypes = []LedgerTransactionType{
	LedgerTransactionSale, LedgerTransactionDeposit, LedgerTransactionReturn, LedgerTransactionAdjustment,
}

func (t LedgerTransactionType) String() string { return string(t) }

func (t LedgerTransactionType) IsValid() bool { return slices.Contains(ledgerTransactionTypes, t) }

func ParseLedgerTransactionType(value string) (LedgerTransactionType, error) {
	return parseOneOf("ledger transaction type", ledgerTransactionTypes, value)
}
