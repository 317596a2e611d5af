package postgres

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

const bankAccountCols = `id, name, currency, gl_account_id, current_balance, last_reconciled_date,
	last_reconciled_balance, active, created_by, created_at, updated_by, updated_at`

func scanBankAccount(row pgx.Row) (ledger.BankAccount, error) {
	var b ledger.BankAccount
	err := row.Scan(&b.ID, &b.Name, &b.Currency, &b.GLAccountID, &b.CurrentBalance,
		&b.LastReconciledDate, &b.LastReconciledBalance, &b.Active,
		&b.Audit.CreatedBy, &b.Audit.CreatedAt, &b.Audit.UpdatedBy, &b.Audit.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.BankAccount{}, errs.ErrNotFound
	}
	return b, err
}

// BankAccount returns one bank account.
func (s *Store) BankAccount(ctx context.Context, id uuid.UUID) (ledger.BankAccount, error) {
	return scanBankAccount(s.pool.QueryRow(ctx, `select `+bankAccountCols+` from bank_accounts where id = $1`, id))
}

// ListBankAccounts returns all bank accounts ordered by name.
func (s *Store) ListBankAccounts(ctx context.Context) ([]ledger.BankAccount, error) {
	rows, err := s.pool.Query(ctx, `select `+bankAccountCols+` from bank_accounts order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.BankAccount, 0)
	for rows.Next() {
		b, err := scanBankAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// CreateBankAccount inserts a bank account row.
func (s *Store) CreateBankAccount(ctx context.Context, b ledger.BankAccount) (ledger.BankAccount, error) {
	_, err := s.pool.Exec(ctx, `
		insert into bank_accounts (`+bankAccountCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, b.ID, b.Name, b.Currency, b.GLAccountID, b.CurrentBalance, b.LastReconciledDate,
		b.LastReconciledBalance, b.Active, b.Audit.CreatedBy, b.Audit.CreatedAt, b.Audit.UpdatedBy, b.Audit.UpdatedAt)
	if err != nil {
		return ledger.BankAccount{}, mapWriteErr(err)
	}
	return b, nil
}

const bankTxnCols = `id, bank_account_id, txn_date, type, description, amount, from_statement,
	source_id, reconciled, reconciliation_id`

func scanBankTxn(row pgx.Row) (ledger.BankTransaction, error) {
	var t ledger.BankTransaction
	err := row.Scan(&t.ID, &t.BankAccountID, &t.Date, &t.Type, &t.Description, &t.Amount,
		&t.FromStatement, &t.SourceID, &t.Reconciled, &t.ReconciliationID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.BankTransaction{}, errs.ErrNotFound
	}
	return t, err
}

// CreateBankTransaction records one movement and moves the account balance
// in the same transaction.
func (s *Store) CreateBankTransaction(ctx context.Context, t ledger.BankTransaction) (ledger.BankTransaction, error) {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		return applyBankTxn(ctx, tx, t)
	})
	if err != nil {
		return ledger.BankTransaction{}, err
	}
	return t, nil
}

func applyBankTxn(ctx context.Context, tx pgx.Tx, t ledger.BankTransaction) error {
	if _, err := tx.Exec(ctx, `
		insert into bank_transactions (`+bankTxnCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, t.ID, t.BankAccountID, ledger.DateOnly(t.Date), t.Type, t.Description, t.Amount,
		t.FromStatement, t.SourceID, t.Reconciled, t.ReconciliationID); err != nil {
		return mapWriteErr(err)
	}
	// Imported statement lines never move the book balance.
	if t.FromStatement {
		var exists bool
		if err := tx.QueryRow(ctx, `select exists(select 1 from bank_accounts where id = $1)`, t.BankAccountID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return errs.ErrNotFound
		}
		return nil
	}
	ct, err := tx.Exec(ctx, `
		update bank_accounts set current_balance = current_balance + $1 where id = $2
	`, t.Amount, t.BankAccountID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func removeBankTxnTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var bankID uuid.UUID
	var amount interface{}
	var fromStatement bool
	row := tx.QueryRow(ctx, `delete from bank_transactions where id = $1 and not reconciled returning bank_account_id, amount, from_statement`, id)
	if err := row.Scan(&bankID, &amount, &fromStatement); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrStateConflict
		}
		return err
	}
	if fromStatement {
		return nil
	}
	_, err := tx.Exec(ctx, `update bank_accounts set current_balance = current_balance - $1 where id = $2`, amount, bankID)
	return err
}

// BankTransactionsByIDs returns the transactions found.
func (s *Store) BankTransactionsByIDs(ctx context.Context, ids []uuid.UUID) ([]ledger.BankTransaction, error) {
	if len(ids) == 0 {
		return []ledger.BankTransaction{}, nil
	}
	rows, err := s.pool.Query(ctx, `select `+bankTxnCols+` from bank_transactions where id = any($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.BankTransaction, 0, len(ids))
	for rows.Next() {
		t, err := scanBankTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// BankTransactionBySource resolves the book transaction created by a payment.
func (s *Store) BankTransactionBySource(ctx context.Context, sourceID uuid.UUID) (ledger.BankTransaction, error) {
	return scanBankTxn(s.pool.QueryRow(ctx, `select `+bankTxnCols+` from bank_transactions where source_id = $1`, sourceID))
}

// UnreconciledTransactions lists candidates dated on or before asOf.
func (s *Store) UnreconciledTransactions(ctx context.Context, bankAccountID uuid.UUID, asOf time.Time) ([]ledger.BankTransaction, error) {
	rows, err := s.pool.Query(ctx, `
		select `+bankTxnCols+` from bank_transactions
		where bank_account_id = $1 and not reconciled and txn_date <= $2
		order by txn_date, id
	`, bankAccountID, ledger.DateOnly(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.BankTransaction, 0)
	for rows.Next() {
		t, err := scanBankTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const reconCols = `id, number, bank_account_id, statement_date, statement_ending_balance,
	calculated_book_balance, reconciled_difference, status, created_by, created_at, updated_by, updated_at`

func scanRecon(row pgx.Row) (ledger.BankReconciliation, error) {
	var r ledger.BankReconciliation
	err := row.Scan(&r.ID, &r.Number, &r.BankAccountID, &r.StatementDate, &r.StatementEndingBalance,
		&r.CalculatedBookBalance, &r.ReconciledDifference, &r.Status,
		&r.Audit.CreatedBy, &r.Audit.CreatedAt, &r.Audit.UpdatedBy, &r.Audit.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.BankReconciliation{}, errs.ErrNotFound
	}
	return r, err
}

// Reconciliation returns one reconciliation.
func (s *Store) Reconciliation(ctx context.Context, id uuid.UUID) (ledger.BankReconciliation, error) {
	return scanRecon(s.pool.QueryRow(ctx, `select `+reconCols+` from bank_reconciliations where id = $1`, id))
}

// ListReconciliations returns a bank account's reconciliations newest first.
func (s *Store) ListReconciliations(ctx context.Context, bankAccountID uuid.UUID) ([]ledger.BankReconciliation, error) {
	rows, err := s.pool.Query(ctx, `
		select `+reconCols+` from bank_reconciliations
		where bank_account_id = $1 order by statement_date desc
	`, bankAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.BankReconciliation, 0)
	for rows.Next() {
		r, err := scanRecon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LastFinalized returns the most recent finalized reconciliation strictly
// before the date.
func (s *Store) LastFinalized(ctx context.Context, bankAccountID uuid.UUID, before time.Time) (ledger.BankReconciliation, error) {
	return scanRecon(s.pool.QueryRow(ctx, `
		select `+reconCols+` from bank_reconciliations
		where bank_account_id = $1 and status = 'finalized' and statement_date < $2
		order by statement_date desc limit 1
	`, bankAccountID, ledger.DateOnly(before)))
}

// ReconciliationTransactionIDs returns member transaction ids.
func (s *Store) ReconciliationTransactionIDs(ctx context.Context, reconciliationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		select id from bank_transactions where reconciliation_id = $1 order by txn_date, id
	`, reconciliationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SaveDraft upserts a draft reconciliation. The (bank account, statement
// date) unique index rejects duplicates.
func (s *Store) SaveDraft(ctx context.Context, rec ledger.BankReconciliation) (ledger.BankReconciliation, error) {
	_, err := s.pool.Exec(ctx, `
		insert into bank_reconciliations (`+reconCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		on conflict (id) do update set statement_ending_balance = excluded.statement_ending_balance,
			calculated_book_balance = excluded.calculated_book_balance,
			reconciled_difference = excluded.reconciled_difference,
			updated_by = excluded.updated_by, updated_at = excluded.updated_at
	`, rec.ID, rec.Number, rec.BankAccountID, ledger.DateOnly(rec.StatementDate), rec.StatementEndingBalance,
		rec.CalculatedBookBalance, rec.ReconciledDifference, rec.Status,
		rec.Audit.CreatedBy, rec.Audit.CreatedAt, rec.Audit.UpdatedBy, rec.Audit.UpdatedAt)
	if err != nil {
		return ledger.BankReconciliation{}, mapWriteErr(err)
	}
	return rec, nil
}

// Finalize locks the member transaction rows in sorted id order, flags them,
// stores the finalized snapshot and advances the bank account's reconciled
// watermark, all in one transaction. A member already reconciled fails the
// whole call.
func (s *Store) Finalize(ctx context.Context, rec ledger.BankReconciliation, txnIDs []uuid.UUID, bank ledger.BankAccount) error {
	sorted := append([]uuid.UUID(nil), txnIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `select 1 from bank_accounts where id = $1 for update`, bank.ID); err != nil {
			return err
		}
		for _, id := range sorted {
			var reconciled bool
			err := tx.QueryRow(ctx, `select reconciled from bank_transactions where id = $1 for update`, id).Scan(&reconciled)
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			if err != nil {
				return err
			}
			if reconciled {
				return errs.ErrAlreadyReconciled
			}
		}
		if _, err := tx.Exec(ctx, `
			update bank_transactions set reconciled = true, reconciliation_id = $1 where id = any($2)
		`, rec.ID, sorted); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			insert into bank_reconciliations (`+reconCols+`)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			on conflict (id) do update set statement_ending_balance = excluded.statement_ending_balance,
				calculated_book_balance = excluded.calculated_book_balance,
				reconciled_difference = excluded.reconciled_difference,
				status = excluded.status,
				updated_by = excluded.updated_by, updated_at = excluded.updated_at
		`, rec.ID, rec.Number, rec.BankAccountID, ledger.DateOnly(rec.StatementDate), rec.StatementEndingBalance,
			rec.CalculatedBookBalance, rec.ReconciledDifference, rec.Status,
			rec.Audit.CreatedBy, rec.Audit.CreatedAt, rec.Audit.UpdatedBy, rec.Audit.UpdatedAt); err != nil {
			return mapWriteErr(err)
		}
		_, err := tx.Exec(ctx, `
			update bank_accounts set last_reconciled_date = $1, last_reconciled_balance = $2,
				updated_by = $3, updated_at = $4
			where id = $5
		`, bank.LastReconciledDate, bank.LastReconciledBalance, bank.Audit.UpdatedBy, bank.Audit.UpdatedAt, bank.ID)
		return err
	})
}

// DeleteReconciliation unlocks member transactions and removes the row.
func (s *Store) DeleteReconciliation(ctx context.Context, id uuid.UUID) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			update bank_transactions set reconciled = false, reconciliation_id = null
			where reconciliation_id = $1
		`, id); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, `delete from bank_reconciliations where id = $1`, id)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}
