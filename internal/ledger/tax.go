package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TaxKind selects the posting account a tax code resolves to downstream.
// The numeric computation is identical for output and input GST.
type TaxKind string

const (
	TaxGSTOutput   TaxKind = "gst_output"
	TaxGSTInput    TaxKind = "gst_input"
	TaxWithholding TaxKind = "withholding"
	TaxExempt      TaxKind = "exempt"
)

// TaxCode is a named fixed-percentage tax rule.
type TaxCode struct {
	Code string
	Name string
	Kind TaxKind
	// Rate is a percentage with 2 fraction digits, e.g. 9.00 for SG GST.
	Rate   decimal.Decimal
	Active bool
	Audit  Audit
}

// WHTCertStatus is the lifecycle of a withholding tax certificate.
type WHTCertStatus string

const (
	WHTCertDraft  WHTCertStatus = "draft"
	WHTCertIssued WHTCertStatus = "issued"
	WHTCertVoided WHTCertStatus = "voided"
)

// WHTCertificate is issued once per applicable vendor payment.
type WHTCertificate struct {
	ID             uuid.UUID
	CertificateNo  string
	PaymentID      uuid.UUID
	VendorID       uuid.UUID
	Rate           decimal.Decimal
	GrossAmount    decimal.Decimal
	WithheldAmount decimal.Decimal
	NetAmount      decimal.Decimal
	JournalEntryID *uuid.UUID
	Status         WHTCertStatus
	Audit          Audit
}
