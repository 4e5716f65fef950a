package accounts

import "time"

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeCOGS      AccountType = "COGS"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalBalance marks which side grows an account.
type NormalBalance string

const (
	NormalBalanceDebit  NormalBalance = "DEBIT"
	NormalBalanceCredit NormalBalance = "CREDIT"
)

// Account models a chart of accounts node. Only detail accounts may carry
// journal lines; system accounts cannot be deleted.
type Account struct {
	ID              int64
	Code            string
	Name            string
	Type            AccountType
	NormalBalance   NormalBalance
	IsDetailAccount bool
	IsSystemAccount bool
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Postable reports whether journal lines may reference the account.
func (a Account) Postable() bool {
	return a.IsDetailAccount && a.IsActive
}

// DefaultNormalBalance returns the conventional balance side for a type.
func DefaultNormalBalance(t AccountType) NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeCOGS, AccountTypeExpense:
		return NormalBalanceDebit
	default:
		return NormalBalanceCredit
	}
}
