package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

const invoiceCols = `id, kind, number, party_id, issue_date, due_date, currency, rate, subtotal,
	tax_amount, total, amount_paid, status, journal_entry_id, created_by, created_at, updated_by, updated_at`

func scanInvoice(row pgx.Row) (ledger.Invoice, error) {
	var inv ledger.Invoice
	err := row.Scan(&inv.ID, &inv.Kind, &inv.Number, &inv.PartyID, &inv.IssueDate, &inv.DueDate,
		&inv.Currency, &inv.Rate, &inv.Subtotal, &inv.TaxAmount, &inv.Total, &inv.AmountPaid,
		&inv.Status, &inv.JournalEntryID,
		&inv.Audit.CreatedBy, &inv.Audit.CreatedAt, &inv.Audit.UpdatedBy, &inv.Audit.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Invoice{}, errs.ErrNotFound
	}
	return inv, err
}

func (s *Store) loadInvoiceLines(ctx context.Context, invoiceIDs []uuid.UUID) (map[uuid.UUID][]ledger.InvoiceLine, error) {
	if len(invoiceIDs) == 0 {
		return map[uuid.UUID][]ledger.InvoiceLine{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		select id, invoice_id, line_no, description, account_id, quantity, unit_price, discount_pct,
		       tax_code, tax_inclusive, subtotal, tax_amount, total
		from invoice_lines where invoice_id = any($1) order by invoice_id, line_no
	`, invoiceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]ledger.InvoiceLine)
	for rows.Next() {
		var l ledger.InvoiceLine
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.LineNo, &l.Description, &l.AccountID, &l.Quantity,
			&l.UnitPrice, &l.DiscountPct, &l.TaxCode, &l.TaxInclusive, &l.Subtotal, &l.TaxAmount, &l.Total); err != nil {
			return nil, err
		}
		out[l.InvoiceID] = append(out[l.InvoiceID], l)
	}
	return out, rows.Err()
}

// Invoice returns one invoice with lines populated.
func (s *Store) Invoice(ctx context.Context, id uuid.UUID) (ledger.Invoice, error) {
	inv, err := scanInvoice(s.pool.QueryRow(ctx, `select `+invoiceCols+` from invoices where id = $1`, id))
	if err != nil {
		return ledger.Invoice{}, err
	}
	lines, err := s.loadInvoiceLines(ctx, []uuid.UUID{id})
	if err != nil {
		return ledger.Invoice{}, err
	}
	inv.Lines = lines[id]
	return inv, nil
}

func (s *Store) queryInvoices(ctx context.Context, where string, args ...interface{}) ([]ledger.Invoice, error) {
	rows, err := s.pool.Query(ctx, `select `+invoiceCols+` from invoices `+where+` order by issue_date, number`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	invoices := make([]ledger.Invoice, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
		ids = append(ids, inv.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lines, err := s.loadInvoiceLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range invoices {
		invoices[i].Lines = lines[invoices[i].ID]
	}
	return invoices, nil
}

// ListInvoices returns invoices of a kind; empty kind means all.
func (s *Store) ListInvoices(ctx context.Context, kind ledger.DocumentKind) ([]ledger.Invoice, error) {
	return s.queryInvoices(ctx, `where ($1 = '' or kind = $1)`, string(kind))
}

// OpenInvoices returns invoices still counting toward AR/AP.
func (s *Store) OpenInvoices(ctx context.Context, kind ledger.DocumentKind) ([]ledger.Invoice, error) {
	return s.queryInvoices(ctx, `where kind = $1 and status in ('approved','sent','partially_paid','overdue')`, string(kind))
}

// CreateInvoice inserts the invoice with its lines in a transaction.
func (s *Store) CreateInvoice(ctx context.Context, inv ledger.Invoice) (ledger.Invoice, error) {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		return insertInvoice(ctx, tx, inv)
	})
	if err != nil {
		return ledger.Invoice{}, err
	}
	return inv, nil
}

func insertInvoice(ctx context.Context, tx pgx.Tx, inv ledger.Invoice) error {
	if _, err := tx.Exec(ctx, `
		insert into invoices (`+invoiceCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, inv.ID, inv.Kind, inv.Number, inv.PartyID, ledger.DateOnly(inv.IssueDate), ledger.DateOnly(inv.DueDate),
		inv.Currency, inv.Rate, inv.Subtotal, inv.TaxAmount, inv.Total, inv.AmountPaid, inv.Status, inv.JournalEntryID,
		inv.Audit.CreatedBy, inv.Audit.CreatedAt, inv.Audit.UpdatedBy, inv.Audit.UpdatedAt); err != nil {
		return mapWriteErr(err)
	}
	for _, l := range inv.Lines {
		if _, err := tx.Exec(ctx, `
			insert into invoice_lines (id, invoice_id, line_no, description, account_id, quantity,
				unit_price, discount_pct, tax_code, tax_inclusive, subtotal, tax_amount, total)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`, l.ID, inv.ID, l.LineNo, l.Description, l.AccountID, l.Quantity, l.UnitPrice, l.DiscountPct,
			l.TaxCode, l.TaxInclusive, l.Subtotal, l.TaxAmount, l.Total); err != nil {
			return mapWriteErr(err)
		}
	}
	return nil
}

func updateInvoice(ctx context.Context, tx pgx.Tx, inv ledger.Invoice) error {
	ct, err := tx.Exec(ctx, `
		update invoices
		set amount_paid=$1, status=$2, journal_entry_id=$3, updated_by=$4, updated_at=$5
		where id=$6
	`, inv.AmountPaid, inv.Status, inv.JournalEntryID, inv.Audit.UpdatedBy, inv.Audit.UpdatedAt, inv.ID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeleteInvoice removes a draft invoice and its lines.
func (s *Store) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `delete from invoice_lines where invoice_id = $1`, id); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, `delete from invoices where id = $1`, id)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

// SaveInvoiceApproval persists the posted entry and the approved invoice in
// one transaction.
func (s *Store) SaveInvoiceApproval(ctx context.Context, inv ledger.Invoice, entry ledger.JournalEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		return updateInvoice(ctx, tx, inv)
	})
}

// SaveInvoiceVoid persists the reversal pair and the voided invoice.
func (s *Store) SaveInvoiceVoid(ctx context.Context, inv ledger.Invoice, original, reversing ledger.JournalEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := saveReversalTx(ctx, tx, original, reversing); err != nil {
			return err
		}
		return updateInvoice(ctx, tx, inv)
	})
}

const paymentCols = `id, number, type, method, payment_date, party_kind, party_id, bank_account_id,
	currency, rate, amount, status, journal_entry_id, wht_certificate_id,
	created_by, created_at, updated_by, updated_at`

func scanPayment(row pgx.Row) (ledger.Payment, error) {
	var p ledger.Payment
	err := row.Scan(&p.ID, &p.Number, &p.Type, &p.Method, &p.Date, &p.PartyKind, &p.PartyID,
		&p.BankAccountID, &p.Currency, &p.Rate, &p.Amount, &p.Status, &p.JournalEntryID, &p.WHTCertificateID,
		&p.Audit.CreatedBy, &p.Audit.CreatedAt, &p.Audit.UpdatedBy, &p.Audit.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Payment{}, errs.ErrNotFound
	}
	return p, err
}

func (s *Store) loadAllocations(ctx context.Context, paymentIDs []uuid.UUID) (map[uuid.UUID][]ledger.Allocation, error) {
	if len(paymentIDs) == 0 {
		return map[uuid.UUID][]ledger.Allocation{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		select id, payment_id, document_kind, document_id, amount
		from payment_allocations where payment_id = any($1) order by payment_id, id
	`, paymentIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]ledger.Allocation)
	for rows.Next() {
		var a ledger.Allocation
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.Document.Kind, &a.Document.ID, &a.Amount); err != nil {
			return nil, err
		}
		out[a.PaymentID] = append(out[a.PaymentID], a)
	}
	return out, rows.Err()
}

// Payment returns one payment with allocations populated.
func (s *Store) Payment(ctx context.Context, id uuid.UUID) (ledger.Payment, error) {
	p, err := scanPayment(s.pool.QueryRow(ctx, `select `+paymentCols+` from payments where id = $1`, id))
	if err != nil {
		return ledger.Payment{}, err
	}
	allocs, err := s.loadAllocations(ctx, []uuid.UUID{id})
	if err != nil {
		return ledger.Payment{}, err
	}
	p.Allocations = allocs[id]
	return p, nil
}

// ListPayments returns payments ordered by date then number.
func (s *Store) ListPayments(ctx context.Context) ([]ledger.Payment, error) {
	rows, err := s.pool.Query(ctx, `select `+paymentCols+` from payments order by payment_date, number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	payments := make([]ledger.Payment, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	allocs, err := s.loadAllocations(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range payments {
		payments[i].Allocations = allocs[payments[i].ID]
	}
	return payments, nil
}

// CreatePayment inserts the payment with its allocations in a transaction.
func (s *Store) CreatePayment(ctx context.Context, p ledger.Payment) (ledger.Payment, error) {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			insert into payments (`+paymentCols+`)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		`, p.ID, p.Number, p.Type, p.Method, ledger.DateOnly(p.Date), p.PartyKind, p.PartyID, p.BankAccountID,
			p.Currency, p.Rate, p.Amount, p.Status, p.JournalEntryID, p.WHTCertificateID,
			p.Audit.CreatedBy, p.Audit.CreatedAt, p.Audit.UpdatedBy, p.Audit.UpdatedAt); err != nil {
			return mapWriteErr(err)
		}
		return insertAllocations(ctx, tx, p)
	})
	if err != nil {
		return ledger.Payment{}, err
	}
	return p, nil
}

func insertAllocations(ctx context.Context, tx pgx.Tx, p ledger.Payment) error {
	for _, a := range p.Allocations {
		if _, err := tx.Exec(ctx, `
			insert into payment_allocations (id, payment_id, document_kind, document_id, amount)
			values ($1,$2,$3,$4,$5)
		`, a.ID, p.ID, a.Document.Kind, a.Document.ID, a.Amount); err != nil {
			return mapWriteErr(err)
		}
	}
	return nil
}

func updatePayment(ctx context.Context, tx pgx.Tx, p ledger.Payment) error {
	ct, err := tx.Exec(ctx, `
		update payments
		set status=$1, journal_entry_id=$2, wht_certificate_id=$3, updated_by=$4, updated_at=$5
		where id=$6
	`, p.Status, p.JournalEntryID, p.WHTCertificateID, p.Audit.UpdatedBy, p.Audit.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeletePayment removes a draft payment and its allocations.
func (s *Store) DeletePayment(ctx context.Context, id uuid.UUID) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `delete from payment_allocations where payment_id = $1`, id); err != nil {
			return err
		}
		ct, err := tx.Exec(ctx, `delete from payments where id = $1`, id)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

// SavePaymentApproval persists the posted entry, the approved payment, the
// allocated invoice updates, the optional certificate, and the book-side
// bank transaction in one transaction. The bank balance moves with the
// transaction row.
func (s *Store) SavePaymentApproval(ctx context.Context, p ledger.Payment, entry ledger.JournalEntry, invoices []ledger.Invoice, cert *ledger.WHTCertificate, bankTxn *ledger.BankTransaction) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		if err := updatePayment(ctx, tx, p); err != nil {
			return err
		}
		for _, inv := range invoices {
			if err := updateInvoice(ctx, tx, inv); err != nil {
				return err
			}
		}
		if cert != nil {
			if err := insertCertificate(ctx, tx, *cert); err != nil {
				return err
			}
		}
		if bankTxn != nil {
			return applyBankTxn(ctx, tx, *bankTxn)
		}
		return nil
	})
}

// SavePaymentVoid persists the reversal pair, the voided payment, the
// unapplied invoice updates, the voided certificate, and removal of the
// unreconciled book bank transaction in one transaction.
func (s *Store) SavePaymentVoid(ctx context.Context, p ledger.Payment, original, reversing ledger.JournalEntry, invoices []ledger.Invoice, cert *ledger.WHTCertificate, removeBankTxn *uuid.UUID) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := saveReversalTx(ctx, tx, original, reversing); err != nil {
			return err
		}
		if err := updatePayment(ctx, tx, p); err != nil {
			return err
		}
		for _, inv := range invoices {
			if err := updateInvoice(ctx, tx, inv); err != nil {
				return err
			}
		}
		if cert != nil {
			if _, err := tx.Exec(ctx, `
				update wht_certificates set status=$1, updated_by=$2, updated_at=$3 where id=$4
			`, cert.Status, cert.Audit.UpdatedBy, cert.Audit.UpdatedAt, cert.ID); err != nil {
				return err
			}
		}
		if removeBankTxn != nil {
			return removeBankTxnTx(ctx, tx, *removeBankTxn)
		}
		return nil
	})
}

const certCols = `id, certificate_no, payment_id, vendor_id, rate, gross_amount, withheld_amount,
	net_amount, journal_entry_id, status, created_by, created_at, updated_by, updated_at`

func insertCertificate(ctx context.Context, tx pgx.Tx, c ledger.WHTCertificate) error {
	_, err := tx.Exec(ctx, `
		insert into wht_certificates (`+certCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, c.ID, c.CertificateNo, c.PaymentID, c.VendorID, c.Rate, c.GrossAmount, c.WithheldAmount,
		c.NetAmount, c.JournalEntryID, c.Status,
		c.Audit.CreatedBy, c.Audit.CreatedAt, c.Audit.UpdatedBy, c.Audit.UpdatedAt)
	return mapWriteErr(err)
}

func scanCertificate(row pgx.Row) (ledger.WHTCertificate, error) {
	var c ledger.WHTCertificate
	err := row.Scan(&c.ID, &c.CertificateNo, &c.PaymentID, &c.VendorID, &c.Rate, &c.GrossAmount,
		&c.WithheldAmount, &c.NetAmount, &c.JournalEntryID, &c.Status,
		&c.Audit.CreatedBy, &c.Audit.CreatedAt, &c.Audit.UpdatedBy, &c.Audit.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.WHTCertificate{}, errs.ErrNotFound
	}
	return c, err
}

// WHTCertificate returns one certificate.
func (s *Store) WHTCertificate(ctx context.Context, id uuid.UUID) (ledger.WHTCertificate, error) {
	return scanCertificate(s.pool.QueryRow(ctx, `select `+certCols+` from wht_certificates where id = $1`, id))
}

// ListWHTCertificates returns certificates ordered by number.
func (s *Store) ListWHTCertificates(ctx context.Context) ([]ledger.WHTCertificate, error) {
	rows, err := s.pool.Query(ctx, `select `+certCols+` from wht_certificates order by certificate_no`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.WHTCertificate, 0)
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
