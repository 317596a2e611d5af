// Package document translates business documents (sales invoices, purchase
// invoices, payments) into balanced journal entries and keeps the documents
// linked back to their postings.
package document

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/config"
	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/fx"
	"github.com/gobooks/ledger/internal/service/journal"
	"github.com/gobooks/ledger/internal/service/numbering"
	"github.com/gobooks/ledger/internal/service/tax"
)

// Repo defines read operations needed by document posting.
type Repo interface {
	Account(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	Invoice(ctx context.Context, id uuid.UUID) (ledger.Invoice, error)
	Payment(ctx context.Context, id uuid.UUID) (ledger.Payment, error)
	Party(ctx context.Context, id uuid.UUID) (ledger.Party, error)
	AccountByCode(ctx context.Context, code string) (ledger.Account, error)
	BankAccount(ctx context.Context, id uuid.UUID) (ledger.BankAccount, error)
	BankTransactionBySource(ctx context.Context, sourceID uuid.UUID) (ledger.BankTransaction, error)
}

// Writer defines the atomic write units for document posting. The store
// locks the document row first in every compound method to prevent
// double-posting.
type Writer interface {
	CreateInvoice(ctx context.Context, inv ledger.Invoice) (ledger.Invoice, error)
	CreatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error)
	DeleteInvoice(ctx context.Context, id uuid.UUID) error
	DeletePayment(ctx context.Context, id uuid.UUID) error
	// SaveInvoiceApproval persists the posted entry and the approved
	// invoice in one transaction.
	SaveInvoiceApproval(ctx context.Context, inv ledger.Invoice, entry ledger.JournalEntry) error
	// SavePaymentApproval persists the posted entry, the payment, the
	// allocated invoice updates, the optional WHT certificate, and the
	// book-side bank transaction in one transaction.
	SavePaymentApproval(ctx context.Context, p ledger.Payment, entry ledger.JournalEntry, invoices []ledger.Invoice, cert *ledger.WHTCertificate, bankTxn *ledger.BankTransaction) error
	// SaveInvoiceVoid persists the reversal pair and the voided invoice.
	SaveInvoiceVoid(ctx context.Context, inv ledger.Invoice, original, reversing ledger.JournalEntry) error
	// SavePaymentVoid persists the reversal pair, the voided payment, the
	// unapplied invoice updates, the voided certificate, and removal of the
	// unreconciled book bank transaction.
	SavePaymentVoid(ctx context.Context, p ledger.Payment, original, reversing ledger.JournalEntry, invoices []ledger.Invoice, cert *ledger.WHTCertificate, removeBankTxn *uuid.UUID) error
}

// Service is the document posting surface.
type Service interface {
	CreateInvoice(ctx context.Context, inv ledger.Invoice, actor string) (ledger.Invoice, error)
	ApproveInvoice(ctx context.Context, id uuid.UUID, actor string) (ledger.Invoice, error)
	VoidInvoice(ctx context.Context, id uuid.UUID, voidDate time.Time, actor string) (ledger.Invoice, error)
	DeleteInvoice(ctx context.Context, id uuid.UUID, actor string) error
	Invoice(ctx context.Context, id uuid.UUID) (ledger.Invoice, error)

	CreatePayment(ctx context.Context, p ledger.Payment, actor string) (ledger.Payment, error)
	ApprovePayment(ctx context.Context, id uuid.UUID, actor string) (ledger.Payment, error)
	VoidPayment(ctx context.Context, id uuid.UUID, voidDate time.Time, actor string) (ledger.Payment, error)
	DeletePayment(ctx context.Context, id uuid.UUID, actor string) error
	Payment(ctx context.Context, id uuid.UUID) (ledger.Payment, error)
}

type service struct {
	repo    Repo
	writer  Writer
	journal journal.Service
	taxes   tax.Service
	rates   fx.Service
	numbers numbering.Service
	sysacc  config.SystemAccounts
	base    string
	now     func() time.Time
}

// New constructs the document posting service.
func New(repo Repo, writer Writer, js journal.Service, ts tax.Service, fs fx.Service, ns numbering.Service, sysacc config.SystemAccounts, base string) Service {
	return &service{
		repo:    repo,
		writer:  writer,
		journal: js,
		taxes:   ts,
		rates:   fs,
		numbers: ns,
		sysacc:  sysacc,
		base:    base,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Invoice(ctx context.Context, id uuid.UUID) (ledger.Invoice, error) {
	return s.repo.Invoice(ctx, id)
}

func (s *service) Payment(ctx context.Context, id uuid.UUID) (ledger.Payment, error) {
	return s.repo.Payment(ctx, id)
}

func (s *service) DeleteInvoice(ctx context.Context, id uuid.UUID, actor string) error {
	inv, err := s.repo.Invoice(ctx, id)
	if err != nil {
		return err
	}
	if inv.Status != ledger.InvoiceDraft {
		return errs.ErrStateConflict
	}
	return s.writer.DeleteInvoice(ctx, id)
}

func (s *service) DeletePayment(ctx context.Context, id uuid.UUID, actor string) error {
	p, err := s.repo.Payment(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != ledger.PaymentDraft {
		return errs.ErrStateConflict
	}
	return s.writer.DeletePayment(ctx, id)
}

// balanceLines appends a base-currency line against the FX gain/loss
// accounts when per-line rounding leaves base debits != base credits. The
// realized FX difference on payments surfaces through this same line.
func (s *service) balanceLines(ctx context.Context, lines []ledger.JournalLine) ([]ledger.JournalLine, error) {
	debits, credits := decimal.Zero, decimal.Zero
	for _, ln := range lines {
		debits = debits.Add(ln.BaseDebit())
		credits = credits.Add(ln.BaseCredit())
	}
	diff := debits.Sub(credits)
	if diff.IsZero() {
		return lines, nil
	}
	one := decimal.NewFromInt(1)
	if diff.IsPositive() {
		// Excess debit value: credit FX gain.
		gain, err := s.repo.AccountByCode(ctx, s.sysacc.FXGain)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ledger.JournalLine{AccountID: gain.ID, Credit: diff, Currency: s.base, Rate: one})
	} else {
		loss, err := s.repo.AccountByCode(ctx, s.sysacc.FXLoss)
		if err != nil {
			return nil, err
		}
		lines = append(lines, ledger.JournalLine{AccountID: loss.ID, Debit: diff.Neg(), Currency: s.base, Rate: one})
	}
	return lines, nil
}
