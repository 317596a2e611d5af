package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PartyKind distinguishes the two trading counterparties.
type PartyKind string

const (
	PartyCustomer PartyKind = "customer"
	PartyVendor   PartyKind = "vendor"
)

// Party is a customer or vendor. The receivables/payables account overrides
// the system default control account when set.
type Party struct {
	ID       uuid.UUID
	Kind     PartyKind
	Name     string
	Currency string
	// ReceivablesAccountID applies to customers, PayablesAccountID to vendors.
	ReceivablesAccountID *uuid.UUID
	PayablesAccountID    *uuid.UUID
	// WHTRate is the withholding percentage applied to this vendor's
	// payments; zero means no withholding.
	WHTRate decimal.Decimal
	Active  bool
	Audit   Audit
}

// InvoiceStatus is shared by sales and purchase invoices. Disputed applies
// to purchase invoices only.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "draft"
	InvoiceApproved      InvoiceStatus = "approved"
	InvoiceSent          InvoiceStatus = "sent"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
	InvoiceOverdue       InvoiceStatus = "overdue"
	InvoiceVoided        InvoiceStatus = "voided"
	InvoiceDisputed      InvoiceStatus = "disputed"
)

// Open reports whether the invoice still counts toward AR/AP outstanding.
func (s InvoiceStatus) Open() bool {
	switch s {
	case InvoiceApproved, InvoiceSent, InvoicePartiallyPaid, InvoiceOverdue:
		return true
	}
	return false
}

// InvoiceLine is one priced row of an invoice. The account id is the revenue
// account (sales) or expense/inventory account (purchase) the catalog item
// resolves to.
type InvoiceLine struct {
	ID          uuid.UUID
	InvoiceID   uuid.UUID
	LineNo      int
	Description string
	AccountID   uuid.UUID
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	// DiscountPct is a percentage deducted from quantity*unit price.
	DiscountPct decimal.Decimal
	TaxCode     string
	// TaxInclusive marks the unit price as already carrying the tax.
	TaxInclusive bool
	Subtotal     decimal.Decimal
	TaxAmount    decimal.Decimal
	Total        decimal.Decimal
}

// Invoice is the shared shape of sales and purchase invoices; Kind selects
// the posting mapping. Amounts are in the document currency.
type Invoice struct {
	ID        uuid.UUID
	Kind      DocumentKind
	Number    string
	PartyID   uuid.UUID
	IssueDate time.Time
	DueDate   time.Time
	Currency  string
	// Rate converts document currency to base, fixed at issue.
	Rate           decimal.Decimal
	Subtotal       decimal.Decimal
	TaxAmount      decimal.Decimal
	Total          decimal.Decimal
	AmountPaid     decimal.Decimal
	Status         InvoiceStatus
	JournalEntryID *uuid.UUID
	Lines          []InvoiceLine
	Audit          Audit
}

// Outstanding returns the unpaid remainder in document currency.
func (inv Invoice) Outstanding() decimal.Decimal {
	return inv.Total.Sub(inv.AmountPaid)
}

// DocumentKind is the tagged variant discriminator for document references.
type DocumentKind string

const (
	DocSalesInvoice    DocumentKind = "sales_invoice"
	DocPurchaseInvoice DocumentKind = "purchase_invoice"
	DocCreditNote      DocumentKind = "credit_note"
	DocDebitNote       DocumentKind = "debit_note"
	DocOther           DocumentKind = "other"
)

// DocumentRef is a tagged (kind, id) reference; never a runtime-typed pointer.
type DocumentRef struct {
	Kind DocumentKind
	ID   uuid.UUID
}
