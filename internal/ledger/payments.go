package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentType classifies the direction and nature of a payment.
type PaymentType string

const (
	PaymentCustomer       PaymentType = "customer_payment"
	PaymentVendor         PaymentType = "vendor_payment"
	PaymentRefund         PaymentType = "refund"
	PaymentCreditNoteAppl PaymentType = "credit_note_application"
	PaymentOther          PaymentType = "other"
)

// PaymentStatus is the payment lifecycle.
type PaymentStatus string

const (
	PaymentDraft     PaymentStatus = "draft"
	PaymentApproved  PaymentStatus = "approved"
	PaymentCompleted PaymentStatus = "completed"
	PaymentVoided    PaymentStatus = "voided"
	PaymentReturned  PaymentStatus = "returned"
)

// Payment records money received or paid, allocated across documents.
type Payment struct {
	ID     uuid.UUID
	Number string
	Type   PaymentType
	Method string
	Date   time.Time
	// PartyKind/PartyID is the tagged entity reference.
	PartyKind     PartyKind
	PartyID       uuid.UUID
	BankAccountID *uuid.UUID
	Currency      string
	// Rate converts payment currency to base at the payment date.
	Rate           decimal.Decimal
	Amount         decimal.Decimal
	Status         PaymentStatus
	JournalEntryID *uuid.UUID
	// WHTCertificateID links the certificate created for withheld vendor
	// payments.
	WHTCertificateID *uuid.UUID
	Allocations      []Allocation
	Audit            Audit
}

// Allocation applies a portion of a payment against one document.
// Sum of allocations never exceeds the payment amount.
type Allocation struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
	Document  DocumentRef
	// Amount applied, in the payment currency.
	Amount decimal.Decimal
}

// AllocatedTotal sums allocations in the payment currency.
func (p Payment) AllocatedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Amount)
	}
	return total
}
