// Package reconcile matches statement activity against book transactions
// into a persisted reconciliation snapshot with an enforced balancing
// identity: statement ending balance equals opening book balance plus the
// cleared statement amounts when the books tie out.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/numbering"
)

// Repo defines read operations for reconciliation.
type Repo interface {
	BankAccount(ctx context.Context, id uuid.UUID) (ledger.BankAccount, error)
	Account(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	BankTransactionsByIDs(ctx context.Context, ids []uuid.UUID) ([]ledger.BankTransaction, error)
	// UnreconciledTransactions lists candidates on or before the date.
	UnreconciledTransactions(ctx context.Context, bankAccountID uuid.UUID, asOf time.Time) ([]ledger.BankTransaction, error)
	Reconciliation(ctx context.Context, id uuid.UUID) (ledger.BankReconciliation, error)
	// LastFinalized returns the most recent finalized reconciliation for
	// the bank account strictly before the date. errs.ErrNotFound when none.
	LastFinalized(ctx context.Context, bankAccountID uuid.UUID, before time.Time) (ledger.BankReconciliation, error)
	ReconciliationTransactionIDs(ctx context.Context, reconciliationID uuid.UUID) ([]uuid.UUID, error)
}

// Writer defines the atomic write units. Finalize locks the bank account
// row and then the candidate transaction rows in id order; a candidate
// already locked by another reconciliation fails the whole unit with
// errs.ErrAlreadyReconciled.
type Writer interface {
	SaveDraft(ctx context.Context, rec ledger.BankReconciliation) (ledger.BankReconciliation, error)
	Finalize(ctx context.Context, rec ledger.BankReconciliation, txnIDs []uuid.UUID, bank ledger.BankAccount) error
	// DeleteReconciliation clears the reconciled flag and link on member
	// transactions and removes the row in one transaction.
	DeleteReconciliation(ctx context.Context, id uuid.UUID) error
}

// Summary is the computed outcome of a reconciliation attempt.
type Summary struct {
	Reconciliation ledger.BankReconciliation
	OpeningBalance decimal.Decimal
	ClearedTotal   decimal.Decimal
	Difference     decimal.Decimal
}

// Service drives the reconciliation protocol.
type Service interface {
	// Compute derives opening balance, cleared totals, and the difference
	// for a candidate set without persisting anything.
	Compute(ctx context.Context, bankAccountID uuid.UUID, statementDate time.Time, statementEnding decimal.Decimal, statementIDs, bookIDs []uuid.UUID) (Summary, error)
	// SaveDraft persists a resumable draft; a non-zero difference is allowed.
	SaveDraft(ctx context.Context, bankAccountID uuid.UUID, statementDate time.Time, statementEnding decimal.Decimal, statementIDs, bookIDs []uuid.UUID, actor string) (Summary, error)
	// Finalize persists the snapshot, locks the cleared transactions, and
	// rolls the bank account's last-reconciled state forward. The
	// difference must be zero to the cent.
	Finalize(ctx context.Context, bankAccountID uuid.UUID, statementDate time.Time, statementEnding decimal.Decimal, statementIDs, bookIDs []uuid.UUID, actor string) (Summary, error)
	Delete(ctx context.Context, id uuid.UUID, actor string) error
	Candidates(ctx context.Context, bankAccountID uuid.UUID, asOf time.Time) ([]ledger.BankTransaction, error)
}

type service struct {
	repo    Repo
	writer  Writer
	numbers numbering.Service
	now     func() time.Time
}

func New(repo Repo, writer Writer, numbers numbering.Service) Service {
	return &service{repo: repo, writer: writer, numbers: numbers, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) Candidates(ctx context.Context, bankAccountID uuid.UUID, asOf time.Time) ([]ledger.BankTransaction, error) {
	return s.repo.UnreconciledTransactions(ctx, bankAccountID, asOf)
}

func (s *service) Compute(ctx context.Context, bankAccountID uuid.UUID, statementDate time.Time, statementEnding decimal.Decimal, statementIDs, bookIDs []uuid.UUID) (Summary, error) {
	bank, err := s.repo.BankAccount(ctx, bankAccountID)
	if err != nil {
		return Summary{}, err
	}
	statementDate = ledger.DateOnly(statementDate)

	var opening decimal.Decimal
	prev, err := s.repo.LastFinalized(ctx, bankAccountID, statementDate)
	switch {
	case err == nil:
		opening = prev.StatementEndingBalance
	case errors.Is(err, errs.ErrNotFound):
		// First reconciliation of the account: start from the GL account's
		// opening balance.
		acc, err := s.repo.Account(ctx, bank.GLAccountID)
		if err != nil {
			return Summary{}, err
		}
		opening = acc.OpeningBalance
	default:
		return Summary{}, err
	}

	stmtTxns, err := s.loadCandidates(ctx, bank, statementIDs, true)
	if err != nil {
		return Summary{}, err
	}
	bookTxns, err := s.loadCandidates(ctx, bank, bookIDs, false)
	if err != nil {
		return Summary{}, err
	}

	clearedStatement := sumAmounts(stmtTxns)
	clearedBook := sumAmounts(bookTxns)
	bookBalance := opening.Add(clearedBook)
	difference := statementEnding.Sub(opening.Add(clearedStatement)).RoundBank(2)

	rec := ledger.BankReconciliation{
		BankAccountID:          bankAccountID,
		StatementDate:          statementDate,
		StatementEndingBalance: statementEnding,
		CalculatedBookBalance:  bookBalance,
		ReconciledDifference:   difference,
		Status:                 ledger.ReconciliationDraft,
	}
	return Summary{
		Reconciliation: rec,
		OpeningBalance: opening,
		ClearedTotal:   clearedStatement,
		Difference:     difference,
	}, nil
}

func (s *service) SaveDraft(ctx context.Context, bankAccountID uuid.UUID, statementDate time.Time, statementEnding decimal.Decimal, statementIDs, bookIDs []uuid.UUID, actor string) (Summary, error) {
	sum, err := s.Compute(ctx, bankAccountID, statementDate, statementEnding, statementIDs, bookIDs)
	if err != nil {
		return Summary{}, err
	}
	number, err := s.numbers.Next(ctx, ledger.SeqReconciliation)
	if err != nil {
		return Summary{}, err
	}
	rec := sum.Reconciliation
	rec.ID = uuid.New()
	rec.Number = number
	rec.Audit.Touch(actor, s.now())
	saved, err := s.writer.SaveDraft(ctx, rec)
	if err != nil {
		return Summary{}, err
	}
	sum.Reconciliation = saved
	return sum, nil
}

func (s *service) Finalize(ctx context.Context, bankAccountID uuid.UUID, statementDate time.Time, statementEnding decimal.Decimal, statementIDs, bookIDs []uuid.UUID, actor string) (Summary, error) {
	sum, err := s.Compute(ctx, bankAccountID, statementDate, statementEnding, statementIDs, bookIDs)
	if err != nil {
		return Summary{}, err
	}
	if !sum.Difference.IsZero() {
		return sum, fmt.Errorf("reconciled difference %s != 0: %w", sum.Difference, errs.ErrImbalance)
	}

	number, err := s.numbers.Next(ctx, ledger.SeqReconciliation)
	if err != nil {
		return Summary{}, err
	}
	rec := sum.Reconciliation
	rec.ID = uuid.New()
	rec.Number = number
	rec.Status = ledger.ReconciliationFinalized
	rec.Audit.Touch(actor, s.now())

	// Lock order: bank account row, then transactions sorted by id.
	txnIDs := append(append([]uuid.UUID{}, statementIDs...), bookIDs...)
	sort.Slice(txnIDs, func(i, j int) bool { return txnIDs[i].String() < txnIDs[j].String() })

	bank, err := s.repo.BankAccount(ctx, bankAccountID)
	if err != nil {
		return Summary{}, err
	}
	d := rec.StatementDate
	bank.LastReconciledDate = &d
	bank.LastReconciledBalance = rec.StatementEndingBalance
	bank.Audit.Touch(actor, s.now())

	if err := s.writer.Finalize(ctx, rec, txnIDs, bank); err != nil {
		return Summary{}, err
	}
	sum.Reconciliation = rec
	return sum, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID, actor string) error {
	if _, err := s.repo.Reconciliation(ctx, id); err != nil {
		return err
	}
	return s.writer.DeleteReconciliation(ctx, id)
}

// loadCandidates fetches transactions, checks ownership and side, and
// rejects candidates locked by another reconciliation.
func (s *service) loadCandidates(ctx context.Context, bank ledger.BankAccount, ids []uuid.UUID, fromStatement bool) ([]ledger.BankTransaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	txns, err := s.repo.BankTransactionsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(txns) != len(ids) {
		return nil, fmt.Errorf("unknown bank transactions in candidate set: %w", errs.ErrInvalid)
	}
	for _, t := range txns {
		if t.BankAccountID != bank.ID {
			return nil, fmt.Errorf("transaction %s belongs to another bank account: %w", t.ID, errs.ErrInvalid)
		}
		if t.FromStatement != fromStatement {
			return nil, fmt.Errorf("transaction %s on the wrong side of the match: %w", t.ID, errs.ErrInvalid)
		}
		if t.Reconciled {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, errs.ErrAlreadyReconciled)
		}
	}
	return txns, nil
}

func sumAmounts(txns []ledger.BankTransaction) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		total = total.Add(t.Amount)
	}
	return total
}
