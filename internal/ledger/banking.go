package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankAccount wraps a GL account with statement bookkeeping state. The GL
// account must be an active asset account flagged as bank.
type BankAccount struct {
	ID          uuid.UUID
	Name        string
	Currency    string
	GLAccountID uuid.UUID
	// CurrentBalance is maintained in the bank account currency.
	CurrentBalance        decimal.Decimal
	LastReconciledDate    *time.Time
	LastReconciledBalance decimal.Decimal
	Active                bool
	Audit                 Audit
}

// BankTxnType classifies bank activity.
type BankTxnType string

const (
	BankTxnDeposit    BankTxnType = "deposit"
	BankTxnWithdrawal BankTxnType = "withdrawal"
	BankTxnTransfer   BankTxnType = "transfer"
	BankTxnFee        BankTxnType = "fee"
	BankTxnInterest   BankTxnType = "interest"
)

// BankTransaction is one movement on a bank account. Amount is signed:
// deposits positive, withdrawals negative.
type BankTransaction struct {
	ID            uuid.UUID
	BankAccountID uuid.UUID
	Date          time.Time
	Type          BankTxnType
	Description   string
	Amount        decimal.Decimal
	// FromStatement marks lines imported from a bank statement as opposed
	// to book-side transactions.
	FromStatement bool
	// SourceID back-references the payment that booked this transaction.
	SourceID *uuid.UUID
	Reconciled    bool
	// ReconciliationID back-references the reconciliation that locked this
	// transaction.
	ReconciliationID *uuid.UUID
	Audit            Audit
}

// ReconciliationStatus is the reconciliation lifecycle.
type ReconciliationStatus string

const (
	ReconciliationDraft     ReconciliationStatus = "draft"
	ReconciliationFinalized ReconciliationStatus = "finalized"
)

// BankReconciliation is a snapshot proving the statement ending balance ties
// to the book balance after designating cleared transactions.
// Unique on (bank account, statement date).
type BankReconciliation struct {
	ID                     uuid.UUID
	Number                 string
	BankAccountID          uuid.UUID
	StatementDate          time.Time
	StatementEndingBalance decimal.Decimal
	CalculatedBookBalance  decimal.Decimal
	ReconciledDifference   decimal.Decimal
	Status                 ReconciliationStatus
	Audit                  Audit
}

// RecurringFrequency enumerates schedule frequencies for recurring entries.
type RecurringFrequency string

const (
	FreqDaily     RecurringFrequency = "daily"
	FreqWeekly    RecurringFrequency = "weekly"
	FreqMonthly   RecurringFrequency = "monthly"
	FreqQuarterly RecurringFrequency = "quarterly"
	FreqYearly    RecurringFrequency = "yearly"
)

// RecurringPattern generates journal entries from a template on a schedule.
type RecurringPattern struct {
	ID              uuid.UUID
	Name            string
	TemplateEntryID uuid.UUID
	Frequency       RecurringFrequency
	Interval        int
	StartDate       time.Time
	EndDate         *time.Time
	// DayOfMonth anchors monthly/quarterly/yearly schedules; clamped to the
	// target month's last day (Jan 31 + 1 month -> Feb 28/29).
	DayOfMonth *int
	// DayOfWeek anchors weekly schedules.
	DayOfWeek          *time.Weekday
	LastGeneratedDate  *time.Time
	NextGenerationDate time.Time
	Active             bool
	Audit              Audit
}
