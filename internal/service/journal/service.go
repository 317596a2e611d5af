// Package journal implements the posting engine: draft creation, posting,
// reversal, and balance derivations over posted lines.
package journal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/fiscal"
	"github.com/gobooks/ledger/internal/service/fx"
	"github.com/gobooks/ledger/internal/service/numbering"
)

// Repo defines read operations needed by the engine.
type Repo interface {
	AccountsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error)
	Account(ctx context.Context, id uuid.UUID) (ledger.Account, error)
	EntryByID(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
	// PostedLines returns posted lines for an account ordered by
	// (entry_date, entry_no, line_no). Nil bounds are open-ended.
	PostedLines(ctx context.Context, accountID uuid.UUID, from, to *time.Time) ([]ledger.PostedLine, error)
}

// Writer defines write operations needed by the engine. Each method is one
// atomic unit in the store.
type Writer interface {
	CreateJournalEntry(ctx context.Context, entry ledger.JournalEntry) (ledger.JournalEntry, error)
	// MarkPosted flips the posted flag; the store locks the referenced
	// account rows in sorted id order first.
	MarkPosted(ctx context.Context, entryID uuid.UUID, actor string, at time.Time) error
	// SaveReversal persists the reversing entry as posted and flags the
	// original as reversed, both in one transaction.
	SaveReversal(ctx context.Context, original, reversing ledger.JournalEntry) (ledger.JournalEntry, error)
}

// Service is the journal engine surface.
type Service interface {
	CreateDraft(ctx context.Context, entry ledger.JournalEntry, actor string) (ledger.JournalEntry, error)
	// BuildPosted assembles a validated, numbered posted entry without
	// persisting it. Document posting uses this so the entry and the
	// document update can share one store transaction.
	BuildPosted(ctx context.Context, entry ledger.JournalEntry, actor string) (ledger.JournalEntry, error)
	// BuildReversal returns the reversed original and its posted reversing
	// entry without persisting either.
	BuildReversal(ctx context.Context, entryID uuid.UUID, reversalDate time.Time, actor string) (original, reversing ledger.JournalEntry, err error)
	// Post makes a draft effective on balances. Idempotent: posting an
	// already posted entry returns it unchanged.
	Post(ctx context.Context, entryID uuid.UUID, actor string) (ledger.JournalEntry, error)
	Reverse(ctx context.Context, entryID uuid.UUID, reversalDate time.Time, actor string) (ledger.JournalEntry, error)
	Entry(ctx context.Context, entryID uuid.UUID) (ledger.JournalEntry, error)
	// AccountBalance returns opening balance plus posted activity through
	// asOf, in the account's natural direction.
	AccountBalance(ctx context.Context, accountID uuid.UUID, asOf time.Time) (decimal.Decimal, error)
	// PeriodActivity returns raw sum(debit-credit) over [start, end].
	PeriodActivity(ctx context.Context, accountID uuid.UUID, start, end time.Time) (decimal.Decimal, error)
	PostedLines(ctx context.Context, accountID uuid.UUID, start, end time.Time) ([]ledger.PostedLine, error)
}

type service struct {
	repo     Repo
	writer   Writer
	numbers  numbering.Service
	calendar fiscal.Service
	rates    fx.Service
	base     string
	now      func() time.Time
}

// New constructs the journal engine. base is the reporting currency code.
func New(repo Repo, writer Writer, numbers numbering.Service, calendar fiscal.Service, rates fx.Service, base string) Service {
	return &service{
		repo:     repo,
		writer:   writer,
		numbers:  numbers,
		calendar: calendar,
		rates:    rates,
		base:     strings.ToUpper(base),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateDraft validates the lines, resolves missing FX rates, assigns the
// entry number and fiscal period, and persists the draft.
func (s *service) CreateDraft(ctx context.Context, entry ledger.JournalEntry, actor string) (ledger.JournalEntry, error) {
	out, err := s.build(ctx, entry, actor)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return s.writer.CreateJournalEntry(ctx, out)
}

func (s *service) BuildPosted(ctx context.Context, entry ledger.JournalEntry, actor string) (ledger.JournalEntry, error) {
	out, err := s.build(ctx, entry, actor)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	out.Posted = true
	return out, nil
}

// build validates the lines, resolves missing FX rates, and assigns the
// entry number and fiscal period without persisting anything.
func (s *service) build(ctx context.Context, entry ledger.JournalEntry, actor string) (ledger.JournalEntry, error) {
	if entry.Date.IsZero() {
		return ledger.JournalEntry{}, fmt.Errorf("entry date is required: %w", errs.ErrInvalid)
	}
	period, err := s.calendar.RequireOpen(ctx, entry.Date)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	lines, err := s.normalizeLines(ctx, entry)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if err := s.validate(ctx, entry, lines); err != nil {
		return ledger.JournalEntry{}, err
	}

	entryNo, err := s.numbers.Next(ctx, ledger.SeqJournalEntry)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	id := uuid.New()
	for i := range lines {
		lines[i].ID = uuid.New()
		lines[i].EntryID = id
		lines[i].LineNo = i + 1
	}
	if entry.Type == "" {
		entry.Type = ledger.JournalGeneral
	}
	out := ledger.JournalEntry{
		ID:          id,
		EntryNo:     entryNo,
		Type:        entry.Type,
		Date:        ledger.DateOnly(entry.Date),
		PeriodID:    period.ID,
		Description: entry.Description,
		SourceType:  entry.SourceType,
		SourceID:    entry.SourceID,
		Lines:       lines,
	}
	out.Audit.Touch(actor, s.now())
	return out, nil
}

func (s *service) Post(ctx context.Context, entryID uuid.UUID, actor string) (ledger.JournalEntry, error) {
	if entryID == uuid.Nil {
		return ledger.JournalEntry{}, errs.ErrInvalid
	}
	e, err := s.repo.EntryByID(ctx, entryID)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	if e.Posted {
		return e, nil
	}
	// The period may have closed between draft and post.
	if _, err := s.calendar.RequireOpen(ctx, e.Date); err != nil {
		return ledger.JournalEntry{}, err
	}
	if !e.Balanced() {
		return ledger.JournalEntry{}, errs.ErrUnbalancedEntry
	}
	if err := s.writer.MarkPosted(ctx, e.ID, actor, s.now()); err != nil {
		return ledger.JournalEntry{}, err
	}
	e.Posted = true
	e.Audit.Touch(actor, s.now())
	return e, nil
}

// Reverse creates and posts an entry with swapped sides, dated reversalDate,
// and links the pair. Requires the original posted and not already reversed.
func (s *service) Reverse(ctx context.Context, entryID uuid.UUID, reversalDate time.Time, actor string) (ledger.JournalEntry, error) {
	orig, reversing, err := s.BuildReversal(ctx, entryID, reversalDate, actor)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	return s.writer.SaveReversal(ctx, orig, reversing)
}

func (s *service) BuildReversal(ctx context.Context, entryID uuid.UUID, reversalDate time.Time, actor string) (ledger.JournalEntry, ledger.JournalEntry, error) {
	if entryID == uuid.Nil {
		return ledger.JournalEntry{}, ledger.JournalEntry{}, errs.ErrInvalid
	}
	orig, err := s.repo.EntryByID(ctx, entryID)
	if err != nil {
		return ledger.JournalEntry{}, ledger.JournalEntry{}, err
	}
	if !orig.Posted {
		return ledger.JournalEntry{}, ledger.JournalEntry{}, fmt.Errorf("cannot reverse a draft entry: %w", errs.ErrStateConflict)
	}
	if orig.Reversed {
		return ledger.JournalEntry{}, ledger.JournalEntry{}, fmt.Errorf("entry %s already reversed: %w", orig.EntryNo, errs.ErrStateConflict)
	}
	period, err := s.calendar.RequireOpen(ctx, reversalDate)
	if err != nil {
		return ledger.JournalEntry{}, ledger.JournalEntry{}, err
	}
	entryNo, err := s.numbers.Next(ctx, ledger.SeqJournalEntry)
	if err != nil {
		return ledger.JournalEntry{}, ledger.JournalEntry{}, err
	}

	rid := uuid.New()
	lines := make([]ledger.JournalLine, len(orig.Lines))
	for i, ln := range orig.Lines {
		nl := ln
		nl.ID = uuid.New()
		nl.EntryID = rid
		nl.LineNo = i + 1
		nl.Debit, nl.Credit = ln.Credit, ln.Debit
		lines[i] = nl
	}
	reversing := ledger.JournalEntry{
		ID:               rid,
		EntryNo:          entryNo,
		Type:             orig.Type,
		Date:             ledger.DateOnly(reversalDate),
		PeriodID:         period.ID,
		Description:      "Reversal of " + orig.EntryNo + ": " + orig.Description,
		Posted:           true,
		ReversingEntryID: &orig.ID,
		SourceType:       orig.SourceType,
		SourceID:         orig.SourceID,
		Lines:            lines,
	}
	reversing.Audit.Touch(actor, s.now())

	orig.Reversed = true
	orig.ReversingEntryID = &rid
	orig.Audit.Touch(actor, s.now())
	return orig, reversing, nil
}

func (s *service) Entry(ctx context.Context, entryID uuid.UUID) (ledger.JournalEntry, error) {
	return s.repo.EntryByID(ctx, entryID)
}

func (s *service) AccountBalance(ctx context.Context, accountID uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	acc, err := s.repo.Account(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	to := ledger.DateOnly(asOf)
	lines, err := s.repo.PostedLines(ctx, accountID, nil, &to)
	if err != nil {
		return decimal.Zero, err
	}
	net := decimal.Zero
	for _, pl := range lines {
		net = net.Add(pl.Line.BaseNet())
	}
	balance := acc.NaturalSign(net)
	if !asOf.Before(acc.OpeningDate) {
		balance = balance.Add(acc.OpeningBalance)
	}
	return balance, nil
}

func (s *service) PeriodActivity(ctx context.Context, accountID uuid.UUID, start, end time.Time) (decimal.Decimal, error) {
	from, to := ledger.DateOnly(start), ledger.DateOnly(end)
	lines, err := s.repo.PostedLines(ctx, accountID, &from, &to)
	if err != nil {
		return decimal.Zero, err
	}
	net := decimal.Zero
	for _, pl := range lines {
		net = net.Add(pl.Line.BaseNet())
	}
	return net, nil
}

func (s *service) PostedLines(ctx context.Context, accountID uuid.UUID, start, end time.Time) ([]ledger.PostedLine, error) {
	from, to := ledger.DateOnly(start), ledger.DateOnly(end)
	lines, err := s.repo.PostedLines(ctx, accountID, &from, &to)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].Date.Equal(lines[j].Date) {
			return lines[i].Date.Before(lines[j].Date)
		}
		if lines[i].EntryNo != lines[j].EntryNo {
			return lines[i].EntryNo < lines[j].EntryNo
		}
		return lines[i].Line.LineNo < lines[j].Line.LineNo
	})
	return lines, nil
}

// normalizeLines fills line currency and FX rate defaults: base-currency
// lines get rate 1, foreign lines without an explicit rate get the resolved
// rate at the entry date.
func (s *service) normalizeLines(ctx context.Context, entry ledger.JournalEntry) ([]ledger.JournalLine, error) {
	lines := make([]ledger.JournalLine, len(entry.Lines))
	copy(lines, entry.Lines)
	for i := range lines {
		if lines[i].Currency == "" {
			lines[i].Currency = s.base
		}
		lines[i].Currency = strings.ToUpper(lines[i].Currency)
		if lines[i].Rate.IsZero() {
			rate, err := s.rates.Rate(ctx, lines[i].Currency, s.base, entry.Date)
			if err != nil {
				return nil, err
			}
			lines[i].Rate = rate
		}
	}
	return lines, nil
}

func (s *service) validate(ctx context.Context, entry ledger.JournalEntry, lines []ledger.JournalLine) error {
	if len(lines) < 2 {
		return fmt.Errorf("at least 2 lines: %w", errs.ErrInvalidLine)
	}
	ids := make([]uuid.UUID, 0, len(lines))
	allZero := true
	sumDebits, sumCredits := decimal.Zero, decimal.Zero
	for i, ln := range lines {
		if ln.AccountID == uuid.Nil {
			return lineErr(i, "account_id required")
		}
		if ln.Debit.IsNegative() || ln.Credit.IsNegative() {
			return lineErr(i, "amounts must not be negative")
		}
		if ln.Debit.IsPositive() && ln.Credit.IsPositive() {
			return lineErr(i, "debit and credit are exclusive")
		}
		if !ln.Zero() {
			allZero = false
		}
		sumDebits = sumDebits.Add(ln.BaseDebit())
		sumCredits = sumCredits.Add(ln.BaseCredit())
		ids = append(ids, ln.AccountID)
	}
	if allZero {
		return fmt.Errorf("all lines are zero: %w", errs.ErrInvalidLine)
	}
	if !sumDebits.Equal(sumCredits) {
		return fmt.Errorf("sum(debits) %s != sum(credits) %s: %w", sumDebits, sumCredits, errs.ErrUnbalancedEntry)
	}

	accMap, err := s.repo.AccountsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	for i, ln := range lines {
		acc, ok := accMap[ln.AccountID]
		if !ok {
			return lineErr(i, "unknown account")
		}
		if !acc.Active {
			return lineErr(i, "inactive account")
		}
		if acc.IsControl && !entry.SourceType.AuthorizedControlSource() {
			return lineErr(i, "control account "+acc.Code+" requires a document source")
		}
	}
	return nil
}

func lineErr(i int, msg string) error {
	return fmt.Errorf("line[%d]: %s: %w", i, msg, errs.ErrInvalidLine)
}

