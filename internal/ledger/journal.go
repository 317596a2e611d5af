package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalType identifies the journal a posting belongs to.
type JournalType string

const (
	JournalGeneral     JournalType = "general"
	JournalSales       JournalType = "sales"
	JournalPurchase    JournalType = "purchase"
	JournalCashReceipt JournalType = "cash_receipt"
	JournalCashPayment JournalType = "cash_payment"
)

// SourceType tags the business document a journal entry was posted from.
// Entries without a source are manual.
type SourceType string

const (
	SourceManual          SourceType = ""
	SourceSalesInvoice    SourceType = "sales_invoice"
	SourcePurchaseInvoice SourceType = "purchase_invoice"
	SourcePayment         SourceType = "payment"
	SourceRecurring       SourceType = "recurring"
	SourceRevaluation     SourceType = "revaluation"
)

// AuthorizedControlSource reports whether entries from this source may post
// to control accounts.
func (s SourceType) AuthorizedControlSource() bool {
	switch s {
	case SourceSalesInvoice, SourcePurchaseInvoice, SourcePayment, SourceRevaluation:
		return true
	}
	return false
}

// JournalEntry is a balanced set of debit/credit lines for one accounting event.
type JournalEntry struct {
	ID          uuid.UUID
	EntryNo     string
	Type        JournalType
	Date        time.Time
	PeriodID    uuid.UUID
	Description string
	Posted      bool
	// Reversed marks that this entry has been reversed by another.
	Reversed bool
	// ReversingEntryID links the two halves of a reversal pair in both
	// directions. Plain id reference, never an owning pointer.
	ReversingEntryID *uuid.UUID
	SourceType       SourceType
	SourceID         *uuid.UUID
	Lines            []JournalLine
	Audit            Audit
}

// JournalLine carries one side of a posting against an account. Amounts are
// in the line currency; Rate converts to the base currency.
type JournalLine struct {
	ID        uuid.UUID
	EntryID   uuid.UUID
	LineNo    int
	AccountID uuid.UUID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Currency  string
	// Rate is the line currency -> base currency rate, 6 fraction digits.
	Rate      decimal.Decimal
	TaxCode   string
	TaxAmount decimal.Decimal
	Dim1      string
	Dim2      string
}

// BaseDebit returns the base-currency debit, rounded half-even at the line.
func (l JournalLine) BaseDebit() decimal.Decimal {
	return l.Debit.Mul(l.Rate).RoundBank(2)
}

// BaseCredit returns the base-currency credit, rounded half-even at the line.
func (l JournalLine) BaseCredit() decimal.Decimal {
	return l.Credit.Mul(l.Rate).RoundBank(2)
}

// BaseNet returns base debit minus base credit for the line.
func (l JournalLine) BaseNet() decimal.Decimal {
	return l.BaseDebit().Sub(l.BaseCredit())
}

// Zero reports whether both sides of the line are zero.
func (l JournalLine) Zero() bool {
	return l.Debit.IsZero() && l.Credit.IsZero()
}

// BaseTotals sums base debits and credits across lines.
func (e JournalEntry) BaseTotals() (debits, credits decimal.Decimal) {
	debits, credits = decimal.Zero, decimal.Zero
	for _, ln := range e.Lines {
		debits = debits.Add(ln.BaseDebit())
		credits = credits.Add(ln.BaseCredit())
	}
	return debits, credits
}

// Balanced reports whether base debits equal base credits to the cent.
func (e JournalEntry) Balanced() bool {
	d, c := e.BaseTotals()
	return d.Equal(c)
}

// PostedLine is a journal line joined with its entry header, the unit the
// general ledger renders. Ordered by (entry date, entry no, line no).
type PostedLine struct {
	Line        JournalLine
	EntryID     uuid.UUID
	EntryNo     string
	Date        time.Time
	Description string
}
