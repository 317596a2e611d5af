package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

// Invoice returns one invoice.
func (s *Store) Invoice(_ context.Context, id uuid.UUID) (ledger.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invoices[id]
	if !ok {
		return ledger.Invoice{}, errs.ErrNotFound
	}
	inv.Lines = append([]ledger.InvoiceLine(nil), inv.Lines...)
	return inv, nil
}

// ListInvoices returns invoices of a kind sorted by issue date then number.
// Empty kind means all.
func (s *Store) ListInvoices(_ context.Context, kind ledger.DocumentKind) ([]ledger.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Invoice, 0, len(s.invoices))
	for _, inv := range s.invoices {
		if kind != "" && inv.Kind != kind {
			continue
		}
		inv.Lines = append([]ledger.InvoiceLine(nil), inv.Lines...)
		out = append(out, inv)
	}
	sortInvoices(out)
	return out, nil
}

// OpenInvoices returns invoices still counting toward AR/AP.
func (s *Store) OpenInvoices(_ context.Context, kind ledger.DocumentKind) ([]ledger.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Invoice
	for _, inv := range s.invoices {
		if inv.Kind != kind || !inv.Status.Open() {
			continue
		}
		inv.Lines = append([]ledger.InvoiceLine(nil), inv.Lines...)
		out = append(out, inv)
	}
	sortInvoices(out)
	return out, nil
}

func sortInvoices(out []ledger.Invoice) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IssueDate.Equal(out[j].IssueDate) {
			return out[i].IssueDate.Before(out[j].IssueDate)
		}
		return out[i].Number < out[j].Number
	})
}

// CreateInvoice persists a draft invoice.
func (s *Store) CreateInvoice(_ context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := inv
	c.Lines = append([]ledger.InvoiceLine(nil), inv.Lines...)
	s.invoices[c.ID] = c
	return c, nil
}

// DeleteInvoice removes a draft invoice.
func (s *Store) DeleteInvoice(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.invoices, id)
	return nil
}

// SaveInvoiceApproval persists the posted entry and the approved invoice
// atomically.
func (s *Store) SaveInvoiceApproval(_ context.Context, inv ledger.Invoice, entry ledger.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[inv.ID]; !ok {
		return errs.ErrNotFound
	}
	if _, err := s.createEntryLocked(entry); err != nil {
		return err
	}
	c := inv
	c.Lines = append([]ledger.InvoiceLine(nil), inv.Lines...)
	s.invoices[c.ID] = c
	return nil
}

// SaveInvoiceVoid persists the reversal pair and the voided invoice.
func (s *Store) SaveInvoiceVoid(_ context.Context, inv ledger.Invoice, original, reversing ledger.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invoices[inv.ID]; !ok {
		return errs.ErrNotFound
	}
	if err := s.saveReversalLocked(original, reversing); err != nil {
		return err
	}
	c := inv
	c.Lines = append([]ledger.InvoiceLine(nil), inv.Lines...)
	s.invoices[c.ID] = c
	return nil
}

func (s *Store) saveReversalLocked(original, reversing ledger.JournalEntry) error {
	orig, ok := s.entries[original.ID]
	if !ok {
		return errs.ErrNotFound
	}
	saved, err := s.createEntryLocked(reversing)
	if err != nil {
		return err
	}
	orig.Reversed = true
	orig.ReversingEntryID = &saved.ID
	orig.Audit = original.Audit
	return nil
}

// Payment returns one payment.
func (s *Store) Payment(_ context.Context, id uuid.UUID) (ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return ledger.Payment{}, errs.ErrNotFound
	}
	p.Allocations = append([]ledger.Allocation(nil), p.Allocations...)
	return p, nil
}

// ListPayments returns payments sorted by date then number.
func (s *Store) ListPayments(_ context.Context) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		p.Allocations = append([]ledger.Allocation(nil), p.Allocations...)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Number < out[j].Number
	})
	return out, nil
}

// CreatePayment persists a draft payment.
func (s *Store) CreatePayment(_ context.Context, p ledger.Payment) (ledger.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := p
	c.Allocations = append([]ledger.Allocation(nil), p.Allocations...)
	s.payments[c.ID] = c
	return c, nil
}

// DeletePayment removes a draft payment.
func (s *Store) DeletePayment(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.payments, id)
	return nil
}

// SavePaymentApproval persists the posted entry, the approved payment, the
// allocated invoice updates, the optional certificate, and the book-side
// bank transaction atomically. The bank balance moves with the transaction.
func (s *Store) SavePaymentApproval(_ context.Context, p ledger.Payment, entry ledger.JournalEntry, invoices []ledger.Invoice, cert *ledger.WHTCertificate, bankTxn *ledger.BankTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; !ok {
		return errs.ErrNotFound
	}
	if _, err := s.createEntryLocked(entry); err != nil {
		return err
	}
	c := p
	c.Allocations = append([]ledger.Allocation(nil), p.Allocations...)
	s.payments[c.ID] = c
	for _, inv := range invoices {
		stored := inv
		stored.Lines = append([]ledger.InvoiceLine(nil), inv.Lines...)
		s.invoices[stored.ID] = stored
	}
	if cert != nil {
		s.certs[cert.ID] = *cert
	}
	if bankTxn != nil {
		s.applyBankTxnLocked(*bankTxn)
	}
	return nil
}

// SavePaymentVoid persists the reversal pair, the voided payment, the
// unapplied invoice updates, the voided certificate, and removal of the
// unreconciled book bank transaction atomically.
func (s *Store) SavePaymentVoid(_ context.Context, p ledger.Payment, original, reversing ledger.JournalEntry, invoices []ledger.Invoice, cert *ledger.WHTCertificate, removeBankTxn *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payments[p.ID]; !ok {
		return errs.ErrNotFound
	}
	if err := s.saveReversalLocked(original, reversing); err != nil {
		return err
	}
	c := p
	c.Allocations = append([]ledger.Allocation(nil), p.Allocations...)
	s.payments[c.ID] = c
	for _, inv := range invoices {
		stored := inv
		stored.Lines = append([]ledger.InvoiceLine(nil), inv.Lines...)
		s.invoices[stored.ID] = stored
	}
	if cert != nil {
		// Voiding only changes status and audit; the issued certificate
		// data stays intact.
		stored, ok := s.certs[cert.ID]
		if !ok {
			return errs.ErrNotFound
		}
		stored.Status = cert.Status
		stored.Audit.UpdatedBy = cert.Audit.UpdatedBy
		stored.Audit.UpdatedAt = cert.Audit.UpdatedAt
		s.certs[cert.ID] = stored
	}
	if removeBankTxn != nil {
		s.removeBankTxnLocked(*removeBankTxn)
	}
	return nil
}

// WHTCertificate returns one certificate.
func (s *Store) WHTCertificate(_ context.Context, id uuid.UUID) (ledger.WHTCertificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.certs[id]
	if !ok {
		return ledger.WHTCertificate{}, errs.ErrNotFound
	}
	return c, nil
}

// ListWHTCertificates returns certificates sorted by number.
func (s *Store) ListWHTCertificates(_ context.Context) ([]ledger.WHTCertificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.WHTCertificate, 0, len(s.certs))
	for _, c := range s.certs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CertificateNo < out[j].CertificateNo })
	return out, nil
}
