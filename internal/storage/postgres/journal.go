package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

const entryCols = `id, entry_no, type, entry_date, period_id, description, posted, reversed,
	reversing_entry_id, source_type, source_id, created_by, created_at, updated_by, updated_at`

func scanEntry(row pgx.Row) (ledger.JournalEntry, error) {
	var e ledger.JournalEntry
	err := row.Scan(&e.ID, &e.EntryNo, &e.Type, &e.Date, &e.PeriodID, &e.Description, &e.Posted,
		&e.Reversed, &e.ReversingEntryID, &e.SourceType, &e.SourceID,
		&e.Audit.CreatedBy, &e.Audit.CreatedAt, &e.Audit.UpdatedBy, &e.Audit.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	return e, err
}

func (s *Store) loadLines(ctx context.Context, entryIDs []uuid.UUID) (map[uuid.UUID][]ledger.JournalLine, error) {
	if len(entryIDs) == 0 {
		return map[uuid.UUID][]ledger.JournalLine{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		select id, entry_id, line_no, account_id, debit, credit, currency, rate, tax_code, tax_amount, dim1, dim2
		from journal_lines where entry_id = any($1) order by entry_id, line_no
	`, entryIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]ledger.JournalLine)
	for rows.Next() {
		var l ledger.JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNo, &l.AccountID, &l.Debit, &l.Credit,
			&l.Currency, &l.Rate, &l.TaxCode, &l.TaxAmount, &l.Dim1, &l.Dim2); err != nil {
			return nil, err
		}
		out[l.EntryID] = append(out[l.EntryID], l)
	}
	return out, rows.Err()
}

// EntryByID returns one entry with lines populated.
func (s *Store) EntryByID(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx, `select `+entryCols+` from journal_entries where id = $1`, id))
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	lines, err := s.loadLines(ctx, []uuid.UUID{id})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	e.Lines = lines[id]
	return e, nil
}

// ListEntries returns entries ordered by (date, entry no) with lines
// populated. Nil bounds are open-ended.
func (s *Store) ListEntries(ctx context.Context, from, to *time.Time) ([]ledger.JournalEntry, error) {
	rows, err := s.pool.Query(ctx, `
		select `+entryCols+` from journal_entries
		where ($1::date is null or entry_date >= $1)
		  and ($2::date is null or entry_date <= $2)
		order by entry_date, entry_no
	`, dateArg(from), dateArg(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]ledger.JournalEntry, 0)
	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		ids = append(ids, e.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	lines, err := s.loadLines(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Lines = lines[entries[i].ID]
	}
	return entries, nil
}

func dateArg(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return ledger.DateOnly(*t)
}

// CreateJournalEntry inserts an entry with its lines in a transaction.
func (s *Store) CreateJournalEntry(ctx context.Context, entry ledger.JournalEntry) (ledger.JournalEntry, error) {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		return insertEntry(ctx, tx, entry)
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return entry, nil
}

// MarkPosted flips the posted flag after locking the referenced account
// rows in sorted id order.
func (s *Store) MarkPosted(ctx context.Context, entryID uuid.UUID, actor string, at time.Time) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `select distinct account_id from journal_lines where entry_id = $1`, entryID)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0)
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
		for _, id := range ids {
			if _, err := tx.Exec(ctx, `select 1 from accounts where id = $1 for update`, id); err != nil {
				return err
			}
		}
		ct, err := tx.Exec(ctx, `
			update journal_entries set posted = true, updated_by = $1, updated_at = $2 where id = $3
		`, actor, at, entryID)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
}

// SaveReversal inserts the reversing entry as posted and flags the original
// as reversed in one transaction.
func (s *Store) SaveReversal(ctx context.Context, original, reversing ledger.JournalEntry) (ledger.JournalEntry, error) {
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		return saveReversalTx(ctx, tx, original, reversing)
	})
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return reversing, nil
}

func saveReversalTx(ctx context.Context, tx pgx.Tx, original, reversing ledger.JournalEntry) error {
	if err := insertEntry(ctx, tx, reversing); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `
		update journal_entries
		set reversed = true, reversing_entry_id = $1, updated_by = $2, updated_at = $3
		where id = $4 and reversed = false
	`, reversing.ID, original.Audit.UpdatedBy, original.Audit.UpdatedAt, original.ID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return errs.ErrStateConflict
	}
	return nil
}

// SaveRevaluation inserts the adjustment and its next-day reversal in one
// transaction.
func (s *Store) SaveRevaluation(ctx context.Context, adjustment, reversal ledger.JournalEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := insertEntry(ctx, tx, adjustment); err != nil {
			return err
		}
		return insertEntry(ctx, tx, reversal)
	})
}

func insertEntry(ctx context.Context, tx pgx.Tx, e ledger.JournalEntry) error {
	if _, err := tx.Exec(ctx, `
		insert into journal_entries (`+entryCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, e.ID, e.EntryNo, e.Type, ledger.DateOnly(e.Date), e.PeriodID, e.Description, e.Posted, e.Reversed,
		e.ReversingEntryID, e.SourceType, e.SourceID,
		e.Audit.CreatedBy, e.Audit.CreatedAt, e.Audit.UpdatedBy, e.Audit.UpdatedAt); err != nil {
		return mapWriteErr(err)
	}
	for _, l := range e.Lines {
		if _, err := tx.Exec(ctx, `
			insert into journal_lines (id, entry_id, line_no, account_id, debit, credit, currency, rate, tax_code, tax_amount, dim1, dim2)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, l.ID, e.ID, l.LineNo, l.AccountID, l.Debit, l.Credit, l.Currency, l.Rate, l.TaxCode, l.TaxAmount, l.Dim1, l.Dim2); err != nil {
			return fmt.Errorf("insert line: %w", mapWriteErr(err))
		}
	}
	return nil
}

// PostedLines returns posted lines for the account ordered by
// (entry date, entry no, line no).
func (s *Store) PostedLines(ctx context.Context, accountID uuid.UUID, from, to *time.Time) ([]ledger.PostedLine, error) {
	rows, err := s.pool.Query(ctx, `
		select l.id, l.entry_id, l.line_no, l.account_id, l.debit, l.credit, l.currency, l.rate,
		       l.tax_code, l.tax_amount, l.dim1, l.dim2, e.entry_no, e.entry_date, e.description
		from journal_lines l
		join journal_entries e on e.id = l.entry_id
		where l.account_id = $1 and e.posted
		  and ($2::date is null or e.entry_date >= $2)
		  and ($3::date is null or e.entry_date <= $3)
		order by e.entry_date, e.entry_no, l.line_no
	`, accountID, dateArg(from), dateArg(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.PostedLine, 0)
	for rows.Next() {
		var pl ledger.PostedLine
		if err := rows.Scan(&pl.Line.ID, &pl.Line.EntryID, &pl.Line.LineNo, &pl.Line.AccountID,
			&pl.Line.Debit, &pl.Line.Credit, &pl.Line.Currency, &pl.Line.Rate,
			&pl.Line.TaxCode, &pl.Line.TaxAmount, &pl.Line.Dim1, &pl.Line.Dim2,
			&pl.EntryNo, &pl.Date, &pl.Description); err != nil {
			return nil, err
		}
		pl.EntryID = pl.Line.EntryID
		out = append(out, pl)
	}
	return out, rows.Err()
}

const patternCols = `id, name, template_entry_id, frequency, interval_count, start_date, end_date,
	day_of_month, day_of_week, last_generated_date, next_generation_date, active`

func scanPattern(row pgx.Row) (ledger.RecurringPattern, error) {
	var p ledger.RecurringPattern
	var dow *int
	err := row.Scan(&p.ID, &p.Name, &p.TemplateEntryID, &p.Frequency, &p.Interval, &p.StartDate,
		&p.EndDate, &p.DayOfMonth, &dow, &p.LastGeneratedDate, &p.NextGenerationDate, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.RecurringPattern{}, errs.ErrNotFound
	}
	if dow != nil {
		wd := time.Weekday(*dow)
		p.DayOfWeek = &wd
	}
	return p, err
}

// DuePatterns returns active patterns due on or before asOf ordered by name.
func (s *Store) DuePatterns(ctx context.Context, asOf time.Time) ([]ledger.RecurringPattern, error) {
	rows, err := s.pool.Query(ctx, `
		select `+patternCols+` from recurring_patterns
		where active and next_generation_date <= $1
		order by name
	`, ledger.DateOnly(asOf))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.RecurringPattern, 0)
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Pattern returns one recurring pattern.
func (s *Store) Pattern(ctx context.Context, id uuid.UUID) (ledger.RecurringPattern, error) {
	return scanPattern(s.pool.QueryRow(ctx, `select `+patternCols+` from recurring_patterns where id = $1`, id))
}

// ListPatterns returns all patterns ordered by name.
func (s *Store) ListPatterns(ctx context.Context) ([]ledger.RecurringPattern, error) {
	rows, err := s.pool.Query(ctx, `select `+patternCols+` from recurring_patterns order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ledger.RecurringPattern, 0)
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePattern inserts a recurring pattern.
func (s *Store) CreatePattern(ctx context.Context, p ledger.RecurringPattern) (ledger.RecurringPattern, error) {
	_, err := s.pool.Exec(ctx, `
		insert into recurring_patterns (`+patternCols+`)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, p.ID, p.Name, p.TemplateEntryID, p.Frequency, p.Interval, ledger.DateOnly(p.StartDate),
		dateArg(p.EndDate), p.DayOfMonth, weekdayArg(p.DayOfWeek), dateArg(p.LastGeneratedDate),
		ledger.DateOnly(p.NextGenerationDate), p.Active)
	if err != nil {
		return ledger.RecurringPattern{}, mapWriteErr(err)
	}
	return p, nil
}

// UpdatePattern replaces a pattern's mutable fields.
func (s *Store) UpdatePattern(ctx context.Context, p ledger.RecurringPattern) (ledger.RecurringPattern, error) {
	ct, err := s.pool.Exec(ctx, `
		update recurring_patterns
		set name=$1, frequency=$2, interval_count=$3, start_date=$4, end_date=$5, day_of_month=$6,
		    day_of_week=$7, last_generated_date=$8, next_generation_date=$9, active=$10
		where id=$11
	`, p.Name, p.Frequency, p.Interval, ledger.DateOnly(p.StartDate), dateArg(p.EndDate), p.DayOfMonth,
		weekdayArg(p.DayOfWeek), dateArg(p.LastGeneratedDate), ledger.DateOnly(p.NextGenerationDate), p.Active, p.ID)
	if err != nil {
		return ledger.RecurringPattern{}, err
	}
	if ct.RowsAffected() == 0 {
		return ledger.RecurringPattern{}, errs.ErrNotFound
	}
	return p, nil
}

func weekdayArg(wd *time.Weekday) interface{} {
	if wd == nil {
		return nil
	}
	return int(*wd)
}

// SaveGeneration inserts the generated entry, the (pattern, scheduled date)
// idempotency marker and the advanced pattern in one transaction. A marker
// collision surfaces as the domain conflict error so the run skips the item.
func (s *Store) SaveGeneration(ctx context.Context, pattern ledger.RecurringPattern, scheduled time.Time, entry ledger.JournalEntry) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			insert into recurring_generations (pattern_id, scheduled_date, entry_id)
			values ($1,$2,$3)
		`, pattern.ID, ledger.DateOnly(scheduled), entry.ID); err != nil {
			return mapWriteErr(err)
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			update recurring_patterns
			set last_generated_date=$1, next_generation_date=$2, active=$3
			where id=$4
		`, dateArg(pattern.LastGeneratedDate), ledger.DateOnly(pattern.NextGenerationDate), pattern.Active, pattern.ID)
		return err
	})
}
