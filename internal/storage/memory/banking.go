package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

// BankAccount returns one bank account.
func (s *Store) BankAccount(_ context.Context, id uuid.UUID) (ledger.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bankAccounts[id]
	if !ok {
		return ledger.BankAccount{}, errs.ErrNotFound
	}
	return b, nil
}

// ListBankAccounts returns all bank accounts sorted by name.
func (s *Store) ListBankAccounts(_ context.Context) ([]ledger.BankAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.BankAccount, 0, len(s.bankAccounts))
	for _, b := range s.bankAccounts {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateBankAccount persists a bank account.
func (s *Store) CreateBankAccount(_ context.Context, b ledger.BankAccount) (ledger.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bankAccounts[b.ID] = b
	return b, nil
}

// CreateBankTransaction records one movement. Book-side transactions move
// the account balance; imported statement lines do not.
func (s *Store) CreateBankTransaction(_ context.Context, t ledger.BankTransaction) (ledger.BankTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bankAccounts[t.BankAccountID]; !ok {
		return ledger.BankTransaction{}, errs.ErrNotFound
	}
	s.applyBankTxnLocked(t)
	return t, nil
}

func (s *Store) applyBankTxnLocked(t ledger.BankTransaction) {
	s.bankTxns[t.ID] = t
	if t.FromStatement {
		return
	}
	b := s.bankAccounts[t.BankAccountID]
	b.CurrentBalance = b.CurrentBalance.Add(t.Amount)
	s.bankAccounts[t.BankAccountID] = b
}

func (s *Store) removeBankTxnLocked(id uuid.UUID) {
	t, ok := s.bankTxns[id]
	if !ok {
		return
	}
	delete(s.bankTxns, id)
	if t.FromStatement {
		return
	}
	b := s.bankAccounts[t.BankAccountID]
	b.CurrentBalance = b.CurrentBalance.Sub(t.Amount)
	s.bankAccounts[t.BankAccountID] = b
}

// BankTransactionsByIDs returns the transactions found, in input order.
func (s *Store) BankTransactionsByIDs(_ context.Context, ids []uuid.UUID) ([]ledger.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.BankTransaction, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.bankTxns[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// BankTransactionBySource resolves the book transaction created by a payment.
func (s *Store) BankTransactionBySource(_ context.Context, sourceID uuid.UUID) (ledger.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.bankTxns {
		if t.SourceID != nil && *t.SourceID == sourceID {
			return t, nil
		}
	}
	return ledger.BankTransaction{}, errs.ErrNotFound
}

// UnreconciledTransactions lists candidates dated on or before asOf.
func (s *Store) UnreconciledTransactions(_ context.Context, bankAccountID uuid.UUID, asOf time.Time) ([]ledger.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := ledger.DateOnly(asOf)
	var out []ledger.BankTransaction
	for _, t := range s.bankTxns {
		if t.BankAccountID != bankAccountID || t.Reconciled || ledger.DateOnly(t.Date).After(day) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// Reconciliation returns one reconciliation.
func (s *Store) Reconciliation(_ context.Context, id uuid.UUID) (ledger.BankReconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reconciliations[id]
	if !ok {
		return ledger.BankReconciliation{}, errs.ErrNotFound
	}
	return r, nil
}

// ListReconciliations returns a bank account's reconciliations newest first.
func (s *Store) ListReconciliations(_ context.Context, bankAccountID uuid.UUID) ([]ledger.BankReconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.BankReconciliation
	for _, r := range s.reconciliations {
		if r.BankAccountID == bankAccountID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StatementDate.After(out[j].StatementDate) })
	return out, nil
}

// LastFinalized returns the most recent finalized reconciliation strictly
// before the date.
func (s *Store) LastFinalized(_ context.Context, bankAccountID uuid.UUID, before time.Time) (ledger.BankReconciliation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := ledger.DateOnly(before)
	var best ledger.BankReconciliation
	found := false
	for _, r := range s.reconciliations {
		if r.BankAccountID != bankAccountID || r.Status != ledger.ReconciliationFinalized {
			continue
		}
		if !ledger.DateOnly(r.StatementDate).Before(day) {
			continue
		}
		if !found || r.StatementDate.After(best.StatementDate) {
			best = r
			found = true
		}
	}
	if !found {
		return ledger.BankReconciliation{}, errs.ErrNotFound
	}
	return best, nil
}

// ReconciliationTransactionIDs returns member transaction ids of a
// reconciliation.
func (s *Store) ReconciliationTransactionIDs(_ context.Context, reconciliationID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.reconTxns[reconciliationID]
	return append([]uuid.UUID(nil), ids...), nil
}

// SaveDraft upserts a draft reconciliation. (bank account, statement date)
// is unique across reconciliations.
func (s *Store) SaveDraft(_ context.Context, rec ledger.BankReconciliation) (ledger.BankReconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := ledger.DateOnly(rec.StatementDate)
	for _, existing := range s.reconciliations {
		if existing.ID != rec.ID && existing.BankAccountID == rec.BankAccountID && ledger.DateOnly(existing.StatementDate).Equal(day) {
			return ledger.BankReconciliation{}, errs.ErrStateConflict
		}
	}
	s.reconciliations[rec.ID] = rec
	return rec, nil
}

// Finalize locks the member transactions, stores the finalized snapshot and
// advances the bank account's reconciled watermark, atomically. Any member
// already reconciled fails the whole call.
func (s *Store) Finalize(_ context.Context, rec ledger.BankReconciliation, txnIDs []uuid.UUID, bank ledger.BankAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range txnIDs {
		t, ok := s.bankTxns[id]
		if !ok {
			return errs.ErrNotFound
		}
		if t.Reconciled {
			return errs.ErrAlreadyReconciled
		}
	}
	day := ledger.DateOnly(rec.StatementDate)
	for _, existing := range s.reconciliations {
		if existing.ID != rec.ID && existing.BankAccountID == rec.BankAccountID && ledger.DateOnly(existing.StatementDate).Equal(day) {
			return errs.ErrStateConflict
		}
	}
	for _, id := range txnIDs {
		t := s.bankTxns[id]
		t.Reconciled = true
		t.ReconciliationID = &rec.ID
		s.bankTxns[id] = t
	}
	s.reconciliations[rec.ID] = rec
	s.reconTxns[rec.ID] = append([]uuid.UUID(nil), txnIDs...)
	s.bankAccounts[bank.ID] = bank
	return nil
}

// DeleteReconciliation unlocks member transactions and removes the row.
func (s *Store) DeleteReconciliation(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reconciliations[id]; !ok {
		return errs.ErrNotFound
	}
	for _, txnID := range s.reconTxns[id] {
		t, ok := s.bankTxns[txnID]
		if !ok {
			continue
		}
		t.Reconciled = false
		t.ReconciliationID = nil
		s.bankTxns[txnID] = t
	}
	delete(s.reconTxns, id)
	delete(s.reconciliations, id)
	return nil
}
