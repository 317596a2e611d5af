package document

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

// CreatePayment validates allocations, assigns a number, and persists the
// payment as Draft. Sum of allocations must not exceed the payment amount
// and each allocation must not exceed its target document's outstanding.
func (s *service) CreatePayment(ctx context.Context, p ledger.Payment, actor string) (ledger.Payment, error) {
	if p.PartyID == uuid.Nil || p.Date.IsZero() {
		return ledger.Payment{}, fmt.Errorf("party and date are required: %w", errs.ErrInvalid)
	}
	if !p.Amount.IsPositive() {
		return ledger.Payment{}, fmt.Errorf("amount must be positive: %w", errs.ErrInvalid)
	}
	party, err := s.repo.Party(ctx, p.PartyID)
	if err != nil {
		return ledger.Payment{}, err
	}
	switch p.Type {
	case ledger.PaymentCustomer:
		if party.Kind != ledger.PartyCustomer {
			return ledger.Payment{}, fmt.Errorf("customer payment requires a customer: %w", errs.ErrInvalid)
		}
	case ledger.PaymentVendor:
		if party.Kind != ledger.PartyVendor {
			return ledger.Payment{}, fmt.Errorf("vendor payment requires a vendor: %w", errs.ErrInvalid)
		}
	default:
		return ledger.Payment{}, fmt.Errorf("payment type %q: %w", p.Type, errs.ErrInvalid)
	}
	p.PartyKind = party.Kind

	if p.BankAccountID == nil {
		return ledger.Payment{}, fmt.Errorf("bank account is required: %w", errs.ErrInvalid)
	}
	bank, err := s.repo.BankAccount(ctx, *p.BankAccountID)
	if err != nil {
		return ledger.Payment{}, err
	}
	if p.Currency == "" {
		p.Currency = bank.Currency
	}
	p.Currency = strings.ToUpper(p.Currency)
	if p.Currency != strings.ToUpper(bank.Currency) {
		return ledger.Payment{}, fmt.Errorf("payment currency %s does not match bank account currency %s: %w", p.Currency, bank.Currency, errs.ErrInvalid)
	}
	if p.Rate.IsZero() {
		rate, err := s.rates.Rate(ctx, p.Currency, s.base, p.Date)
		if err != nil {
			return ledger.Payment{}, err
		}
		p.Rate = rate
	}

	allocated := decimal.Zero
	for i := range p.Allocations {
		a := &p.Allocations[i]
		if !a.Amount.IsPositive() {
			return ledger.Payment{}, fmt.Errorf("allocation[%d]: amount must be positive: %w", i, errs.ErrInvalid)
		}
		inv, err := s.repo.Invoice(ctx, a.Document.ID)
		if err != nil {
			return ledger.Payment{}, err
		}
		if !inv.Status.Open() {
			return ledger.Payment{}, fmt.Errorf("allocation[%d]: invoice %s is %s: %w", i, inv.Number, inv.Status, errs.ErrStateConflict)
		}
		if !strings.EqualFold(inv.Currency, p.Currency) {
			return ledger.Payment{}, fmt.Errorf("allocation[%d]: invoice currency %s differs from payment: %w", i, inv.Currency, errs.ErrInvalid)
		}
		if a.Amount.GreaterThan(inv.Outstanding()) {
			return ledger.Payment{}, fmt.Errorf("allocation[%d]: exceeds outstanding %s: %w", i, inv.Outstanding(), errs.ErrInvalid)
		}
		a.ID = uuid.New()
		allocated = allocated.Add(a.Amount)
	}
	if allocated.GreaterThan(p.Amount) {
		return ledger.Payment{}, fmt.Errorf("allocations %s exceed payment amount %s: %w", allocated, p.Amount, errs.ErrInvalid)
	}

	number, err := s.numbers.Next(ctx, ledger.SeqPayment)
	if err != nil {
		return ledger.Payment{}, err
	}
	p.ID = uuid.New()
	for i := range p.Allocations {
		p.Allocations[i].PaymentID = p.ID
	}
	p.Number = number
	p.Status = ledger.PaymentDraft
	p.JournalEntryID = nil
	p.Audit.Touch(actor, s.now())
	return s.writer.CreatePayment(ctx, p)
}

// ApprovePayment posts the payment's journal entry, applies allocations to
// their invoices, books the bank transaction, and for withheld vendor
// payments creates a draft WHT certificate. One atomic store unit.
func (s *service) ApprovePayment(ctx context.Context, id uuid.UUID, actor string) (ledger.Payment, error) {
	p, err := s.repo.Payment(ctx, id)
	if err != nil {
		return ledger.Payment{}, err
	}
	if p.Status != ledger.PaymentDraft {
		return ledger.Payment{}, fmt.Errorf("payment %s is %s: %w", p.Number, p.Status, errs.ErrStateConflict)
	}
	party, err := s.repo.Party(ctx, p.PartyID)
	if err != nil {
		return ledger.Payment{}, err
	}
	bank, err := s.repo.BankAccount(ctx, *p.BankAccountID)
	if err != nil {
		return ledger.Payment{}, err
	}

	// Re-check allocations against current outstanding under approval.
	invoices := make([]ledger.Invoice, 0, len(p.Allocations))
	for i, a := range p.Allocations {
		inv, err := s.repo.Invoice(ctx, a.Document.ID)
		if err != nil {
			return ledger.Payment{}, err
		}
		if a.Amount.GreaterThan(inv.Outstanding()) {
			return ledger.Payment{}, fmt.Errorf("allocation[%d]: exceeds outstanding: %w", i, errs.ErrStateConflict)
		}
		inv.AmountPaid = inv.AmountPaid.Add(a.Amount)
		if inv.AmountPaid.GreaterThanOrEqual(inv.Total) {
			inv.Status = ledger.InvoicePaid
		} else {
			inv.Status = ledger.InvoicePartiallyPaid
		}
		inv.Audit.Touch(actor, s.now())
		invoices = append(invoices, inv)
	}

	var lines []ledger.JournalLine
	var jtype ledger.JournalType
	var cert *ledger.WHTCertificate
	switch p.Type {
	case ledger.PaymentCustomer:
		jtype = ledger.JournalCashReceipt
		lines, err = s.customerPaymentLines(ctx, p, party, bank, invoices)
	case ledger.PaymentVendor:
		jtype = ledger.JournalCashPayment
		lines, cert, err = s.vendorPaymentLines(ctx, p, party, bank, invoices, actor)
	default:
		return ledger.Payment{}, errs.ErrInvalid
	}
	if err != nil {
		return ledger.Payment{}, err
	}
	lines, err = s.balanceLines(ctx, lines)
	if err != nil {
		return ledger.Payment{}, err
	}

	entry, err := s.journal.BuildPosted(ctx, ledger.JournalEntry{
		Type:        jtype,
		Date:        p.Date,
		Description: string(p.Type) + " " + p.Number + " (" + party.Name + ")",
		SourceType:  ledger.SourcePayment,
		SourceID:    &p.ID,
		Lines:       lines,
	}, actor)
	if err != nil {
		return ledger.Payment{}, err
	}

	// Book-side bank transaction feeding reconciliation. Signed amount:
	// deposits positive, withdrawals negative.
	txnAmount := p.Amount
	txnType := ledger.BankTxnDeposit
	if p.Type == ledger.PaymentVendor {
		txnAmount = s.vendorBankOutflow(p, party).Neg()
		txnType = ledger.BankTxnWithdrawal
	}
	bankTxn := &ledger.BankTransaction{
		ID:            uuid.New(),
		BankAccountID: bank.ID,
		Date:          ledger.DateOnly(p.Date),
		Type:          txnType,
		Description:   p.Number + " " + party.Name,
		Amount:        txnAmount,
		SourceID:      &p.ID,
	}
	bankTxn.Audit.Touch(actor, s.now())

	p.Status = ledger.PaymentCompleted
	p.JournalEntryID = &entry.ID
	if cert != nil {
		cert.JournalEntryID = &entry.ID
		p.WHTCertificateID = &cert.ID
	}
	p.Audit.Touch(actor, s.now())
	if err := s.writer.SavePaymentApproval(ctx, p, entry, invoices, cert, bankTxn); err != nil {
		return ledger.Payment{}, err
	}
	return p, nil
}

// customerPaymentLines maps a customer receipt: Dr bank at the payment rate,
// Cr AR per allocation at each invoice's booked rate, the realized FX
// difference falling out through the balancing line. Any unallocated
// remainder stays on AR at the payment rate as money on account.
func (s *service) customerPaymentLines(ctx context.Context, p ledger.Payment, party ledger.Party, bank ledger.BankAccount, invoices []ledger.Invoice) ([]ledger.JournalLine, error) {
	ar, err := s.controlAccount(ctx, party.ReceivablesAccountID, s.sysacc.DefaultAR)
	if err != nil {
		return nil, err
	}
	lines := []ledger.JournalLine{{
		AccountID: bank.GLAccountID, Debit: p.Amount, Currency: p.Currency, Rate: p.Rate,
	}}
	for i, a := range p.Allocations {
		lines = append(lines, ledger.JournalLine{
			AccountID: ar.ID, Credit: a.Amount, Currency: p.Currency, Rate: invoices[i].Rate,
		})
	}
	if rem := p.Amount.Sub(p.AllocatedTotal()); rem.IsPositive() {
		lines = append(lines, ledger.JournalLine{
			AccountID: ar.ID, Credit: rem, Currency: p.Currency, Rate: p.Rate,
		})
	}
	return lines, nil
}

// vendorPaymentLines mirrors the customer mapping for disbursements and
// carves the withheld portion out of the bank credit into WHT payable.
func (s *service) vendorPaymentLines(ctx context.Context, p ledger.Payment, party ledger.Party, bank ledger.BankAccount, invoices []ledger.Invoice, actor string) ([]ledger.JournalLine, *ledger.WHTCertificate, error) {
	ap, err := s.controlAccount(ctx, party.PayablesAccountID, s.sysacc.DefaultAP)
	if err != nil {
		return nil, nil, err
	}
	var lines []ledger.JournalLine
	for i, a := range p.Allocations {
		lines = append(lines, ledger.JournalLine{
			AccountID: ap.ID, Debit: a.Amount, Currency: p.Currency, Rate: invoices[i].Rate,
		})
	}
	if rem := p.Amount.Sub(p.AllocatedTotal()); rem.IsPositive() {
		lines = append(lines, ledger.JournalLine{
			AccountID: ap.ID, Debit: rem, Currency: p.Currency, Rate: p.Rate,
		})
	}

	withheld := s.taxes.Withholding(p.Amount, party.WHTRate)
	var cert *ledger.WHTCertificate
	if withheld.IsPositive() {
		wht, err := s.repo.AccountByCode(ctx, s.sysacc.WHTPayable)
		if err != nil {
			return nil, nil, err
		}
		lines = append(lines, ledger.JournalLine{
			AccountID: wht.ID, Credit: withheld, Currency: p.Currency, Rate: p.Rate,
		})
		certNo, err := s.numbers.Next(ctx, ledger.SeqWHTCertificate)
		if err != nil {
			return nil, nil, err
		}
		cert = &ledger.WHTCertificate{
			ID:             uuid.New(),
			CertificateNo:  certNo,
			PaymentID:      p.ID,
			VendorID:       party.ID,
			Rate:           party.WHTRate,
			GrossAmount:    p.Amount,
			WithheldAmount: withheld,
			NetAmount:      p.Amount.Sub(withheld),
			Status:         ledger.WHTCertDraft,
		}
		cert.Audit.Touch(actor, s.now())
	}
	lines = append(lines, ledger.JournalLine{
		AccountID: bank.GLAccountID, Credit: p.Amount.Sub(withheld), Currency: p.Currency, Rate: p.Rate,
	})
	return lines, cert, nil
}

// vendorBankOutflow is the net cash leaving the bank for a vendor payment
// (gross less any withheld tax).
func (s *service) vendorBankOutflow(p ledger.Payment, party ledger.Party) decimal.Decimal {
	return p.Amount.Sub(s.taxes.Withholding(p.Amount, party.WHTRate))
}

// VoidPayment reverses the payment's journal entry, unapplies allocations
// (demoting invoice statuses), voids any WHT certificate, and removes the
// unreconciled book bank transaction.
func (s *service) VoidPayment(ctx context.Context, id uuid.UUID, voidDate time.Time, actor string) (ledger.Payment, error) {
	p, err := s.repo.Payment(ctx, id)
	if err != nil {
		return ledger.Payment{}, err
	}
	if p.Status != ledger.PaymentCompleted && p.Status != ledger.PaymentApproved {
		return ledger.Payment{}, fmt.Errorf("payment %s is %s: %w", p.Number, p.Status, errs.ErrStateConflict)
	}
	if p.JournalEntryID == nil {
		return ledger.Payment{}, errs.ErrStateConflict
	}

	var removeTxn *uuid.UUID
	if txn, err := s.repo.BankTransactionBySource(ctx, p.ID); err == nil {
		if txn.Reconciled {
			return ledger.Payment{}, fmt.Errorf("payment %s is reconciled: %w", p.Number, errs.ErrStateConflict)
		}
		removeTxn = &txn.ID
	} else if !errors.Is(err, errs.ErrNotFound) {
		return ledger.Payment{}, err
	}

	orig, reversing, err := s.journal.BuildReversal(ctx, *p.JournalEntryID, voidDate, actor)
	if err != nil {
		return ledger.Payment{}, err
	}

	invoices := make([]ledger.Invoice, 0, len(p.Allocations))
	for _, a := range p.Allocations {
		inv, err := s.repo.Invoice(ctx, a.Document.ID)
		if err != nil {
			return ledger.Payment{}, err
		}
		inv.AmountPaid = inv.AmountPaid.Sub(a.Amount)
		if inv.AmountPaid.IsPositive() {
			inv.Status = ledger.InvoicePartiallyPaid
		} else {
			inv.AmountPaid = decimal.Zero
			inv.Status = ledger.InvoiceApproved
		}
		inv.Audit.Touch(actor, s.now())
		invoices = append(invoices, inv)
	}

	var cert *ledger.WHTCertificate
	if p.WHTCertificateID != nil {
		c := ledger.WHTCertificate{ID: *p.WHTCertificateID, Status: ledger.WHTCertVoided}
		c.Audit.Touch(actor, s.now())
		cert = &c
	}

	p.Status = ledger.PaymentVoided
	p.Audit.Touch(actor, s.now())
	if err := s.writer.SavePaymentVoid(ctx, p, orig, reversing, invoices, cert, removeTxn); err != nil {
		return ledger.Payment{}, err
	}
	return p, nil
}
