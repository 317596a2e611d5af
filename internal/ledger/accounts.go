package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side represents the accounting position of a journal line.
type Side string

const (
	// SideDebit records a value on the debit side of an account.
	SideDebit Side = "debit"
	// SideCredit records a value on the credit side of an account.
	SideCredit Side = "credit"
)

// AccountType enumerates the broad classification of an account.
type AccountType string

const (
	// AccountTypeAsset increases on the debit side.
	AccountTypeAsset AccountType = "asset"
	// AccountTypeLiability increases on the credit side.
	AccountTypeLiability AccountType = "liability"
	// AccountTypeEquity captures the owner's residual interest.
	AccountTypeEquity AccountType = "equity"
	// AccountTypeRevenue represents inflows that increase equity.
	AccountTypeRevenue AccountType = "revenue"
	// AccountTypeExpense represents outflows that decrease equity.
	AccountTypeExpense AccountType = "expense"
)

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// CashFlowCategory classifies an account for the cash flow statement.
type CashFlowCategory string

const (
	CashFlowOperating CashFlowCategory = "operating"
	CashFlowInvesting CashFlowCategory = "investing"
	CashFlowFinancing CashFlowCategory = "financing"
)

// Account is a general-ledger account identified by an immutable code.
type Account struct {
	ID       uuid.UUID
	Code     string
	Name     string
	Type     AccountType
	// SubType is free text consumed by the reporting bucket table
	// (e.g. "current_asset", "inventory", "current_liability").
	SubType          string
	CashFlowCategory CashFlowCategory
	// ParentID links a child account into the chart hierarchy. Plain id
	// reference; resolved via lookup at read time.
	ParentID *uuid.UUID
	// IsControl marks sub-ledger control accounts (AR/AP). Direct manual
	// posting is rejected; only authorized document sources may post here.
	IsControl bool
	// IsBank marks accounts eligible to back a bank account.
	IsBank bool
	Active bool
	// OpeningBalance is stored in the account's natural direction.
	OpeningBalance decimal.Decimal
	OpeningDate    time.Time
	Audit          Audit
}

// DebitNature reports whether the account increases on the debit side.
func (a Account) DebitNature() bool {
	return a.Type == AccountTypeAsset || a.Type == AccountTypeExpense
}

// NaturalSign converts a raw debit-minus-credit net into the account's
// natural direction: +1 for debit-natured accounts, -1 otherwise.
func (a Account) NaturalSign(net decimal.Decimal) decimal.Decimal {
	if a.DebitNature() {
		return net
	}
	return net.Neg()
}

// Audit records the acting user and timestamps for every mutation.
type Audit struct {
	CreatedBy string
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
}

// Touch updates the audit trail for a mutation by actor at now.
func (a *Audit) Touch(actor string, now time.Time) {
	if a.CreatedAt.IsZero() {
		a.CreatedBy = actor
		a.CreatedAt = now
	}
	a.UpdatedBy = actor
	a.UpdatedAt = now
}
