package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is one quoted rate from a currency pair on a date.
// Rates carry 6 fraction digits.
type ExchangeRate struct {
	From  string
	To    string
	Date  time.Time
	Rate  decimal.Decimal
	Audit Audit
}

// Sequence is a named document number source. Increment is atomic under a
// row lock; Cycle wraps NextValue back to MinValue when MaxValue is exceeded.
type Sequence struct {
	Name        string
	Prefix      string
	Suffix      string
	NextValue   int64
	IncrementBy int64
	MinValue    int64
	MaxValue    int64
	Cycle       bool
	// Pad is the width the numeric portion is left-padded to.
	Pad   int
	Audit Audit
}

// Well-known sequence names used by the engine.
const (
	SeqJournalEntry    = "journal_entry"
	SeqSalesInvoice    = "sales_invoice"
	SeqPurchaseInvoice = "purchase_invoice"
	SeqPayment         = "payment"
	SeqWHTCertificate  = "wht_certificate"
	SeqReconciliation  = "bank_reconciliation"
)
