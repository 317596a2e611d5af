package recurring

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/fiscal"
	"github.com/gobooks/ledger/internal/service/fx"
	"github.com/gobooks/ledger/internal/service/journal"
	"github.com/gobooks/ledger/internal/service/numbering"
	"github.com/gobooks/ledger/internal/storage/memory"
)

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store    *memory.Store
	svc      Service
	template ledger.JournalEntry
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	store.SeedSequence(ledger.Sequence{Name: ledger.SeqJournalEntry, Prefix: "JE-", NextValue: 1, IncrementBy: 1, MinValue: 1, Pad: 6})

	year := ledger.FiscalYear{ID: uuid.New(), Name: "FY2025", Start: day(2025, 1, 1), End: day(2025, 12, 31)}
	var periods []ledger.FiscalPeriod
	for m := 1; m <= 12; m++ {
		start := day(2025, time.Month(m), 1)
		periods = append(periods, ledger.FiscalPeriod{
			ID: uuid.New(), YearID: year.ID, Number: m, Name: start.Format("Jan 2006"),
			Start: start, End: start.AddDate(0, 1, -1), Status: ledger.PeriodOpen,
		})
	}
	store.SeedFiscalYear(year, periods)

	rent := ledger.Account{ID: uuid.New(), Code: "6100", Name: "Rent", Type: ledger.AccountTypeExpense, Active: true}
	cash := ledger.Account{ID: uuid.New(), Code: "1010", Name: "Bank", Type: ledger.AccountTypeAsset, Active: true}
	store.SeedAccount(rent)
	store.SeedAccount(cash)

	js := journal.New(store, store, numbering.New(store), fiscal.New(store, store), fx.New(store), "SGD")
	amount := decimal.RequireFromString("2500.00")
	template, err := js.CreateDraft(context.Background(), ledger.JournalEntry{
		Date:        day(2025, 1, 1),
		Description: "Office rent",
		Lines: []ledger.JournalLine{
			{AccountID: rent.ID, Debit: amount},
			{AccountID: cash.ID, Credit: amount},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("template: %v", err)
	}

	return fixture{store: store, svc: New(store, store, js), template: template}
}

func (f fixture) monthlyPattern(t *testing.T, dayOfMonth int, next time.Time) ledger.RecurringPattern {
	t.Helper()
	pat := ledger.RecurringPattern{
		ID:                 uuid.New(),
		Name:               "Monthly rent",
		TemplateEntryID:    f.template.ID,
		Frequency:          ledger.FreqMonthly,
		Interval:           1,
		StartDate:          next,
		DayOfMonth:         &dayOfMonth,
		NextGenerationDate: next,
		Active:             true,
	}
	f.store.SeedPattern(pat)
	return pat
}

func TestGenerateDue_CreatesEntryAndAdvances(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	pat := f.monthlyPattern(t, 1, day(2025, 2, 1))
	results, err := f.svc.GenerateDue(ctx, day(2025, 2, 1), "scheduler")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	res := results[0]
	if res.Err != nil || res.Skipped {
		t.Fatalf("unexpected outcome: %+v", res)
	}

	entry, err := f.store.EntryByID(ctx, res.EntryID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if !entry.Posted || entry.SourceType != ledger.SourceRecurring {
		t.Fatalf("generated entry wrong: posted=%v source=%s", entry.Posted, entry.SourceType)
	}
	if !entry.Date.Equal(day(2025, 2, 1)) {
		t.Fatalf("expected scheduled date, got %s", entry.Date)
	}

	advanced, err := f.store.Pattern(ctx, pat.ID)
	if err != nil {
		t.Fatalf("pattern: %v", err)
	}
	if !advanced.NextGenerationDate.Equal(day(2025, 3, 1)) {
		t.Fatalf("next date not advanced: %s", advanced.NextGenerationDate)
	}
	if advanced.LastGeneratedDate == nil || !advanced.LastGeneratedDate.Equal(day(2025, 2, 1)) {
		t.Fatalf("last generated not recorded: %v", advanced.LastGeneratedDate)
	}
}

func TestGenerateDue_NothingDue(t *testing.T) {
	f := setup(t)

	f.monthlyPattern(t, 1, day(2025, 6, 1))
	results, err := f.svc.GenerateDue(context.Background(), day(2025, 5, 31), "scheduler")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no work, got %d results", len(results))
	}
}

func TestGenerateDue_CatchesUpMissedOccurrences(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	pat := f.monthlyPattern(t, 1, day(2025, 2, 1))

	// Two runs past the next date generate Feb then Mar.
	for i := 0; i < 2; i++ {
		results, err := f.svc.GenerateDue(ctx, day(2025, 3, 1), "scheduler")
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if len(results) != 1 || results[0].Err != nil {
			t.Fatalf("run %d: %+v", i, results)
		}
	}
	advanced, err := f.store.Pattern(ctx, pat.ID)
	if err != nil {
		t.Fatalf("pattern: %v", err)
	}
	if !advanced.NextGenerationDate.Equal(day(2025, 4, 1)) {
		t.Fatalf("expected April next, got %s", advanced.NextGenerationDate)
	}
}

func TestGenerateDue_EndDateDeactivates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	end := day(2025, 2, 15)
	pat := f.monthlyPattern(t, 1, day(2025, 2, 1))
	pat.EndDate = &end
	f.store.SeedPattern(pat)

	if _, err := f.svc.GenerateDue(ctx, day(2025, 2, 1), "scheduler"); err != nil {
		t.Fatalf("generate: %v", err)
	}
	after, err := f.store.Pattern(ctx, pat.ID)
	if err != nil {
		t.Fatalf("pattern: %v", err)
	}
	if after.Active {
		t.Fatal("pattern should deactivate once next date passes the end date")
	}
}

func TestNextDate(t *testing.T) {
	anchor := 31
	monthly := ledger.RecurringPattern{Frequency: ledger.FreqMonthly, Interval: 1, DayOfMonth: &anchor}

	// Day-of-month overflow clamps to the month's last day.
	got := NextDate(monthly, day(2025, 1, 31))
	if !got.Equal(day(2025, 2, 28)) {
		t.Fatalf("expected Feb 28, got %s", got)
	}
	// The anchor is restored once a long month returns.
	got = NextDate(monthly, day(2025, 2, 28))
	if !got.Equal(day(2025, 3, 31)) {
		t.Fatalf("expected Mar 31, got %s", got)
	}

	daily := ledger.RecurringPattern{Frequency: ledger.FreqDaily, Interval: 3}
	if got := NextDate(daily, day(2025, 6, 29)); !got.Equal(day(2025, 7, 2)) {
		t.Fatalf("daily interval wrong: %s", got)
	}

	friday := time.Friday
	weekly := ledger.RecurringPattern{Frequency: ledger.FreqWeekly, Interval: 1, DayOfWeek: &friday}
	// 2025-06-02 is a Monday; a week later lands Monday, then walks to Friday.
	if got := NextDate(weekly, day(2025, 6, 2)); got.Weekday() != time.Friday {
		t.Fatalf("expected a Friday, got %s", got.Weekday())
	}

	quarterly := ledger.RecurringPattern{Frequency: ledger.FreqQuarterly, Interval: 1}
	if got := NextDate(quarterly, day(2025, 1, 15)); !got.Equal(day(2025, 4, 15)) {
		t.Fatalf("quarterly wrong: %s", got)
	}
}
