package v1

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/gobooks/ledger/internal/ledger"
)

// Store is the full storage surface the API wires into its services. Both
// the memory store and the postgres store satisfy it.
type Store interface {
	// Accounts
	Account(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	AccountByCode(ctx context.Context, code string) (ledger.Account, error)
	AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)
	UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error)

	// Parties
	Party(ctx context.Context, id uuid.UUID) (ledger.Party, error)
	ListParties(ctx context.Context, kind ledger.PartyKind) ([]ledger.Party, error)
	CreateParty(ctx context.Context, p ledger.Party) (ledger.Party, error)
	UpdateParty(ctx context.Context, p ledger.Party) (ledger.Party, error)

	// Sequences
	UpdateSequence(ctx context.Context, name string, fn func(seq *ledger.Sequence) error) error

	// Fiscal calendar
	PeriodForDate(ctx context.Context, d time.Time) (ledger.FiscalPeriod, error)
	FiscalYear(ctx context.Context, id uuid.UUID) (ledger.FiscalYear, error)
	FiscalYears(ctx context.Context) ([]ledger.FiscalYear, error)
	PeriodsByYear(ctx context.Context, yearID uuid.UUID) ([]ledger.FiscalPeriod, error)
	CreateFiscalYear(ctx context.Context, y ledger.FiscalYear, periods []ledger.FiscalPeriod) error
	UpdatePeriodStatus(ctx context.Context, periodID uuid.UUID, status ledger.PeriodStatus, actor string) error

	// Exchange rates and tax codes
	RateOnOrBefore(ctx context.Context, from, to string, d time.Time) (ledger.ExchangeRate, error)
	SaveRate(ctx context.Context, r ledger.ExchangeRate) error
	TaxCode(ctx context.Context, code string) (ledger.TaxCode, error)
	ListTaxCodes(ctx context.Context) ([]ledger.TaxCode, error)
	SaveTaxCode(ctx context.Context, tc ledger.TaxCode) error

	// Journal
	EntryByID(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
	ListEntries(ctx context.Context, from, to *time.Time) ([]ledger.JournalEntry, error)
	CreateJournalEntry(ctx context.Context, entry ledger.JournalEntry) (ledger.JournalEntry, error)
	MarkPosted(ctx context.Context, entryID uuid.UUID, actor string, at time.Time) error
	SaveReversal(ctx context.Context, original, reversing ledger.JournalEntry) (ledger.JournalEntry, error)
	SaveRevaluation(ctx context.Context, adjustment, reversal ledger.JournalEntry) error
	PostedLines(ctx context.Context, accountID uuid.UUID, from, to *time.Time) ([]ledger.PostedLine, error)

	// Documents
	Invoice(ctx context.Context, id uuid.UUID) (ledger.Invoice, error)
	ListInvoices(ctx context.Context, kind ledger.DocumentKind) ([]ledger.Invoice, error)
	OpenInvoices(ctx context.Context, kind ledger.DocumentKind) ([]ledger.Invoice, error)
	CreateInvoice(ctx context.Context, inv ledger.Invoice) (ledger.Invoice, error)
	DeleteInvoice(ctx context.Context, id uuid.UUID) error
	SaveInvoiceApproval(ctx context.Context, inv ledger.Invoice, entry ledger.JournalEntry) error
	SaveInvoiceVoid(ctx context.Context, inv ledger.Invoice, original, reversing ledger.JournalEntry) error
	Payment(ctx context.Context, id uuid.UUID) (ledger.Payment, error)
	ListPayments(ctx context.Context) ([]ledger.Payment, error)
	CreatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error)
	DeletePayment(ctx context.Context, id uuid.UUID) error
	SavePaymentApproval(ctx context.Context, p ledger.Payment, entry ledger.JournalEntry, invoices []ledger.Invoice, cert *ledger.WHTCertificate, bankTxn *ledger.BankTransaction) error
	SavePaymentVoid(ctx context.Context, p ledger.Payment, original, reversing ledger.JournalEntry, invoices []ledger.Invoice, cert *ledger.WHTCertificate, removeBankTxn *uuid.UUID) error
	WHTCertificate(ctx context.Context, id uuid.UUID) (ledger.WHTCertificate, error)
	ListWHTCertificates(ctx context.Context) ([]ledger.WHTCertificate, error)

	// Banking
	BankAccount(ctx context.Context, id uuid.UUID) (ledger.BankAccount, error)
	ListBankAccounts(ctx context.Context) ([]ledger.BankAccount, error)
	CreateBankAccount(ctx context.Context, b ledger.BankAccount) (ledger.BankAccount, error)
	CreateBankTransaction(ctx context.Context, t ledger.BankTransaction) (ledger.BankTransaction, error)
	BankTransactionsByIDs(ctx context.Context, ids []uuid.UUID) ([]ledger.BankTransaction, error)
	BankTransactionBySource(ctx context.Context, sourceID uuid.UUID) (ledger.BankTransaction, error)
	UnreconciledTransactions(ctx context.Context, bankAccountID uuid.UUID, asOf time.Time) ([]ledger.BankTransaction, error)
	Reconciliation(ctx context.Context, id uuid.UUID) (ledger.BankReconciliation, error)
	ListReconciliations(ctx context.Context, bankAccountID uuid.UUID) ([]ledger.BankReconciliation, error)
	LastFinalized(ctx context.Context, bankAccountID uuid.UUID, before time.Time) (ledger.BankReconciliation, error)
	ReconciliationTransactionIDs(ctx context.Context, reconciliationID uuid.UUID) ([]uuid.UUID, error)
	SaveDraft(ctx context.Context, rec ledger.BankReconciliation) (ledger.BankReconciliation, error)
	Finalize(ctx context.Context, rec ledger.BankReconciliation, txnIDs []uuid.UUID, bank ledger.BankAccount) error
	DeleteReconciliation(ctx context.Context, id uuid.UUID) error

	// Recurring
	DuePatterns(ctx context.Context, asOf time.Time) ([]ledger.RecurringPattern, error)
	Pattern(ctx context.Context, id uuid.UUID) (ledger.RecurringPattern, error)
	ListPatterns(ctx context.Context) ([]ledger.RecurringPattern, error)
	CreatePattern(ctx context.Context, p ledger.RecurringPattern) (ledger.RecurringPattern, error)
	UpdatePattern(ctx context.Context, p ledger.RecurringPattern) (ledger.RecurringPattern, error)
	SaveGeneration(ctx context.Context, pattern ledger.RecurringPattern, scheduled time.Time, entry ledger.JournalEntry) error
}

// ReadinessChecker is implemented by stores backed by an external database.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}
