// Package postgres provides a pgx-backed storage implementation that
// satisfies the repository and writer interfaces used by the HTTP API and
// services.
//
// It is intentionally small and explicit: it maps between domain entities
// and SQL rows and runs the necessary statements and transactions. The
// expected schema lives in db/schema.sql. Compound writer methods run in a
// single transaction; row locks are taken in sorted id order.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

// Store holds a pgx connection pool and implements the read/write
// interfaces used across the service layer. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// mapWriteErr translates unique violations into the domain conflict error.
func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return errs.ErrStateConflict
	}
	return err
}

const accountCols = `id, code, name, type, sub_type, cash_flow_category, parent_id, is_control, is_bank,
	active, opening_balance, opening_date, created_by, created_at, updated_by, updated_at`

func scanAccount(row pgx.Row) (ledger.Account, error) {
	var a ledger.Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.SubType, &a.CashFlowCategory, &a.ParentID,
		&a.IsControl, &a.IsBank, &a.Active, &a.OpeningBalance, &a.OpeningDate,
		&a.Audit.CreatedBy, &a.Audit.CreatedAt, &a.Audit.UpdatedBy, &a.Audit.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, err
}

// Account fetches a single account by id.
func (s *Store) Account(ctx context.Context, id uuid.UUID) (ledger.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `select `+accountCols+` from accounts where id = $1`, id))
}

// AccountByCode resolves an account by its chart code.
func (s *Store) AccountByCode(ctx context.Context, code string) (ledger.Account, error) {
	return scanAccount(s.pool.QueryRow(ctx, `select `+accountCols+` from accounts where code = $1`, code))
}

// AccountsByIDs returns the accounts found keyed by id.
func (s *Store) AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]ledger.Account{}, nil
	}
	rows, err := s.pool.Query(ctx, `select `+accountCols+` from accounts where id = any($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// ListAccounts returns the chart ordered by code.
func (s *Store) ListAccounts(ctx context.Context) ([]ledger.Account, error) {
	rows, err := s.pool.Query(ctx, `select `+accountCols+` from accounts order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateAccount inserts an account row.
func (s *Store) CreateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	_, err := s.pool.Exec(ctx, `
		insert into accounts (`+accountCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, a.ID, a.Code, a.Name, a.Type, a.SubType, a.CashFlowCategory, a.ParentID, a.IsControl, a.IsBank,
		a.Active, a.OpeningBalance, a.OpeningDate,
		a.Audit.CreatedBy, a.Audit.CreatedAt, a.Audit.UpdatedBy, a.Audit.UpdatedAt)
	if err != nil {
		return ledger.Account{}, mapWriteErr(err)
	}
	return a, nil
}

// UpdateAccount updates mutable fields.
func (s *Store) UpdateAccount(ctx context.Context, a ledger.Account) (ledger.Account, error) {
	ct, err := s.pool.Exec(ctx, `
		update accounts
		set name=$1, sub_type=$2, cash_flow_category=$3, parent_id=$4, is_control=$5, is_bank=$6,
		    active=$7, opening_balance=$8, opening_date=$9, updated_by=$10, updated_at=$11
		where id=$12
	`, a.Name, a.SubType, a.CashFlowCategory, a.ParentID, a.IsControl, a.IsBank,
		a.Active, a.OpeningBalance, a.OpeningDate, a.Audit.UpdatedBy, a.Audit.UpdatedAt, a.ID)
	if err != nil {
		return ledger.Account{}, err
	}
	if ct.RowsAffected() == 0 {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

const partyCols = `id, kind, name, currency, receivables_account_id, payables_account_id, wht_rate,
	active, created_by, created_at, updated_by, updated_at`

func scanParty(row pgx.Row) (ledger.Party, error) {
	var p ledger.Party
	err := row.Scan(&p.ID, &p.Kind, &p.Name, &p.Currency, &p.ReceivablesAccountID, &p.PayablesAccountID,
		&p.WHTRate, &p.Active, &p.Audit.CreatedBy, &p.Audit.CreatedAt, &p.Audit.UpdatedBy, &p.Audit.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Party{}, errs.ErrNotFound
	}
	return p, err
}

// Party fetches one party.
func (s *Store) Party(ctx context.Context, id uuid.UUID) (ledger.Party, error) {
	return scanParty(s.pool.QueryRow(ctx, `select `+partyCols+` from parties where id = $1`, id))
}

// ListParties returns parties of a kind ordered by name; empty kind means all.
func (s *Store) ListParties(ctx context.Context, kind ledger.PartyKind) ([]ledger.Party, error) {
	rows, err := s.pool.Query(ctx, `
		select `+partyCols+` from parties
		where ($1 = '' or kind = $1)
		order by name
	`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.Party, 0)
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateParty inserts a party row.
func (s *Store) CreateParty(ctx context.Context, p ledger.Party) (ledger.Party, error) {
	_, err := s.pool.Exec(ctx, `
		insert into parties (`+partyCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, p.ID, p.Kind, p.Name, p.Currency, p.ReceivablesAccountID, p.PayablesAccountID, p.WHTRate,
		p.Active, p.Audit.CreatedBy, p.Audit.CreatedAt, p.Audit.UpdatedBy, p.Audit.UpdatedAt)
	if err != nil {
		return ledger.Party{}, mapWriteErr(err)
	}
	return p, nil
}

// UpdateParty updates mutable fields.
func (s *Store) UpdateParty(ctx context.Context, p ledger.Party) (ledger.Party, error) {
	ct, err := s.pool.Exec(ctx, `
		update parties
		set name=$1, currency=$2, receivables_account_id=$3, payables_account_id=$4, wht_rate=$5,
		    active=$6, updated_by=$7, updated_at=$8
		where id=$9
	`, p.Name, p.Currency, p.ReceivablesAccountID, p.PayablesAccountID, p.WHTRate,
		p.Active, p.Audit.UpdatedBy, p.Audit.UpdatedAt, p.ID)
	if err != nil {
		return ledger.Party{}, err
	}
	if ct.RowsAffected() == 0 {
		return ledger.Party{}, errs.ErrNotFound
	}
	return p, nil
}

// UpdateSequence applies fn to the named sequence inside one transaction
// that holds the row lock from the FOR UPDATE read through the write, so
// concurrent allocators on the same sequence serialize on the row.
func (s *Store) UpdateSequence(ctx context.Context, name string, fn func(seq *ledger.Sequence) error) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var seq ledger.Sequence
		err := tx.QueryRow(ctx, `
			select name, prefix, suffix, next_value, increment_by, min_value, max_value, cycle, pad
			from sequences where name = $1 for update
		`, name).Scan(&seq.Name, &seq.Prefix, &seq.Suffix, &seq.NextValue, &seq.IncrementBy,
			&seq.MinValue, &seq.MaxValue, &seq.Cycle, &seq.Pad)
		if errors.Is(err, pgx.ErrNoRows) {
			return errs.ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := fn(&seq); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `update sequences set next_value = $1 where name = $2`, seq.NextValue, seq.Name)
		return err
	})
}

// PeriodForDate finds the fiscal period containing d.
func (s *Store) PeriodForDate(ctx context.Context, d time.Time) (ledger.FiscalPeriod, error) {
	return scanPeriod(s.pool.QueryRow(ctx, `
		select id, year_id, number, name, start_date, end_date, status
		from fiscal_periods where start_date <= $1 and end_date >= $1
	`, ledger.DateOnly(d)))
}

func scanPeriod(row pgx.Row) (ledger.FiscalPeriod, error) {
	var p ledger.FiscalPeriod
	err := row.Scan(&p.ID, &p.YearID, &p.Number, &p.Name, &p.Start, &p.End, &p.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.FiscalPeriod{}, errs.ErrNotFound
	}
	return p, err
}

// FiscalYear fetches one year.
func (s *Store) FiscalYear(ctx context.Context, id uuid.UUID) (ledger.FiscalYear, error) {
	var y ledger.FiscalYear
	err := s.pool.QueryRow(ctx, `
		select id, name, start_date, end_date from fiscal_years where id = $1
	`, id).Scan(&y.ID, &y.Name, &y.Start, &y.End)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.FiscalYear{}, errs.ErrNotFound
	}
	return y, err
}

// FiscalYears returns all years, earliest first.
func (s *Store) FiscalYears(ctx context.Context) ([]ledger.FiscalYear, error) {
	rows, err := s.pool.Query(ctx, `select id, name, start_date, end_date from fiscal_years order by start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.FiscalYear, 0)
	for rows.Next() {
		var y ledger.FiscalYear
		if err := rows.Scan(&y.ID, &y.Name, &y.Start, &y.End); err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, rows.Err()
}

// PeriodsByYear returns a year's periods ordered by number.
func (s *Store) PeriodsByYear(ctx context.Context, yearID uuid.UUID) ([]ledger.FiscalPeriod, error) {
	rows, err := s.pool.Query(ctx, `
		select id, year_id, number, name, start_date, end_date, status
		from fiscal_periods where year_id = $1 order by number
	`, yearID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.FiscalPeriod, 0)
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateFiscalYear inserts the year and its periods in a transaction.
func (s *Store) CreateFiscalYear(ctx context.Context, y ledger.FiscalYear, periods []ledger.FiscalPeriod) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			insert into fiscal_years (id, name, start_date, end_date) values ($1,$2,$3,$4)
		`, y.ID, y.Name, y.Start, y.End); err != nil {
			return mapWriteErr(err)
		}
		for _, p := range periods {
			if _, err := tx.Exec(ctx, `
				insert into fiscal_periods (id, year_id, number, name, start_date, end_date, status)
				values ($1,$2,$3,$4,$5,$6,$7)
			`, p.ID, p.YearID, p.Number, p.Name, p.Start, p.End, p.Status); err != nil {
				return mapWriteErr(err)
			}
		}
		return nil
	})
}

// UpdatePeriodStatus flips one period's status.
func (s *Store) UpdatePeriodStatus(ctx context.Context, periodID uuid.UUID, status ledger.PeriodStatus, actor string) error {
	ct, err := s.pool.Exec(ctx, `
		update fiscal_periods set status=$1, updated_by=$2, updated_at=now() where id=$3
	`, status, actor, periodID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// RateOnOrBefore returns the latest quote on or before d.
func (s *Store) RateOnOrBefore(ctx context.Context, from, to string, d time.Time) (ledger.ExchangeRate, error) {
	var r ledger.ExchangeRate
	err := s.pool.QueryRow(ctx, `
		select from_currency, to_currency, rate_date, rate
		from exchange_rates
		where from_currency = $1 and to_currency = $2 and rate_date <= $3
		order by rate_date desc limit 1
	`, from, to, ledger.DateOnly(d)).Scan(&r.From, &r.To, &r.Date, &r.Rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.ExchangeRate{}, errs.ErrNotFound
	}
	return r, err
}

// SaveRate upserts the quote for (from, to, date).
func (s *Store) SaveRate(ctx context.Context, r ledger.ExchangeRate) error {
	_, err := s.pool.Exec(ctx, `
		insert into exchange_rates (from_currency, to_currency, rate_date, rate)
		values ($1,$2,$3,$4)
		on conflict (from_currency, to_currency, rate_date) do update set rate = excluded.rate
	`, r.From, r.To, ledger.DateOnly(r.Date), r.Rate)
	return err
}

// TaxCode fetches one tax code.
func (s *Store) TaxCode(ctx context.Context, code string) (ledger.TaxCode, error) {
	var tc ledger.TaxCode
	err := s.pool.QueryRow(ctx, `
		select code, name, kind, rate, active from tax_codes where upper(code) = upper($1)
	`, code).Scan(&tc.Code, &tc.Name, &tc.Kind, &tc.Rate, &tc.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.TaxCode{}, errs.ErrNotFound
	}
	return tc, err
}

// ListTaxCodes returns all codes ordered alphabetically.
func (s *Store) ListTaxCodes(ctx context.Context) ([]ledger.TaxCode, error) {
	rows, err := s.pool.Query(ctx, `select code, name, kind, rate, active from tax_codes order by code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.TaxCode, 0)
	for rows.Next() {
		var tc ledger.TaxCode
		if err := rows.Scan(&tc.Code, &tc.Name, &tc.Kind, &tc.Rate, &tc.Active); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// SaveTaxCode upserts a tax code.
func (s *Store) SaveTaxCode(ctx context.Context, tc ledger.TaxCode) error {
	_, err := s.pool.Exec(ctx, `
		insert into tax_codes (code, name, kind, rate, active)
		values ($1,$2,$3,$4,$5)
		on conflict (code) do update set name = excluded.name, kind = excluded.kind,
			rate = excluded.rate, active = excluded.active
	`, tc.Code, tc.Name, tc.Kind, tc.Rate, tc.Active)
	return err
}
