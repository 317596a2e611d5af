package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/fiscal"
	"github.com/gobooks/ledger/internal/service/fx"
	"github.com/gobooks/ledger/internal/service/numbering"
	"github.com/gobooks/ledger/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store   *memory.Store
	svc     Service
	cash    ledger.Account
	revenue ledger.Account
	ar      ledger.Account
	periods []ledger.FiscalPeriod
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

	cash := ledger.Account{ID: uuid.New(), Code: "1010", Name: "Bank", Type: ledger.AccountTypeAsset, Active: true}
	revenue := ledger.Account{ID: uuid.New(), Code: "4000", Name: "Sales", Type: ledger.AccountTypeRevenue, Active: true}
	ar := ledger.Account{ID: uuid.New(), Code: "1200", Name: "AR", Type: ledger.AccountTypeAsset, IsControl: true, Active: true}
	store.SeedAccount(cash)
	store.SeedAccount(revenue)
	store.SeedAccount(ar)

	store.SeedRate(ledger.ExchangeRate{From: "USD", To: "SGD", Date: day(2025, 1, 1), Rate: d("1.350000")})

	svc := New(store, store, numbering.New(store), fiscal.New(store, store), fx.New(store), "SGD")
	return fixture{store: store, svc: svc, cash: cash, revenue: revenue, ar: ar, periods: periods}
}

func (f fixture) entry(date time.Time, amount string) ledger.JournalEntry {
	return ledger.JournalEntry{
		Date:        date,
		Description: "sale",
		Lines: []ledger.JournalLine{
			{AccountID: f.cash.ID, Debit: d(amount)},
			{AccountID: f.revenue.ID, Credit: d(amount)},
		},
	}
}

func TestCreateDraftAndPost(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	draft, err := f.svc.CreateDraft(ctx, f.entry(day(2025, 3, 10), "150.00"), "tester")
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if draft.EntryNo != "JE-000001" {
		t.Fatalf("expected JE-000001, got %s", draft.EntryNo)
	}
	if draft.Posted {
		t.Fatal("draft must not be posted")
	}
	if draft.PeriodID == uuid.Nil {
		t.Fatal("period not assigned")
	}
	for _, ln := range draft.Lines {
		if ln.Currency != "SGD" || !ln.Rate.Equal(decimal.NewFromInt(1)) {
			t.Fatalf("base currency defaults not applied: %+v", ln)
		}
	}

	posted, err := f.svc.Post(ctx, draft.ID, "tester")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if !posted.Posted {
		t.Fatal("entry should be posted")
	}

	// Posting again is a no-op.
	again, err := f.svc.Post(ctx, draft.ID, "tester")
	if err != nil || !again.Posted {
		t.Fatalf("idempotent post: %v", err)
	}
}

func TestCreateDraft_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	e := f.entry(day(2025, 3, 10), "150.00")
	e.Lines[1].Credit = d("149.00")
	if _, err := f.svc.CreateDraft(ctx, e, "tester"); !errors.Is(err, errs.ErrUnbalancedEntry) {
		t.Fatalf("expected ErrUnbalancedEntry, got %v", err)
	}

	e = f.entry(day(2025, 3, 10), "150.00")
	e.Lines[0].Credit = d("1.00")
	if _, err := f.svc.CreateDraft(ctx, e, "tester"); !errors.Is(err, errs.ErrInvalidLine) {
		t.Fatalf("expected ErrInvalidLine for debit+credit, got %v", err)
	}

	e = f.entry(day(2025, 3, 10), "0")
	if _, err := f.svc.CreateDraft(ctx, e, "tester"); !errors.Is(err, errs.ErrInvalidLine) {
		t.Fatalf("expected ErrInvalidLine for all-zero, got %v", err)
	}

	// Manual postings never touch control accounts.
	e = f.entry(day(2025, 3, 10), "150.00")
	e.Lines[0].AccountID = f.ar.ID
	if _, err := f.svc.CreateDraft(ctx, e, "tester"); !errors.Is(err, errs.ErrInvalidLine) {
		t.Fatalf("expected ErrInvalidLine for control account, got %v", err)
	}
}

func TestCreateDraft_ClosedPeriod(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	cal := fiscal.New(f.store, f.store)
	if err := cal.ClosePeriod(ctx, f.periods[2].ID, "tester"); err != nil {
		t.Fatalf("close period: %v", err)
	}
	if _, err := f.svc.CreateDraft(ctx, f.entry(day(2025, 3, 10), "10.00"), "tester"); !errors.Is(err, errs.ErrClosedPeriod) {
		t.Fatalf("expected ErrClosedPeriod, got %v", err)
	}
}

func TestForeignCurrencyRateResolution(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	e := ledger.JournalEntry{
		Date: day(2025, 2, 1),
		Lines: []ledger.JournalLine{
			{AccountID: f.cash.ID, Debit: d("100.00"), Currency: "USD"},
			{AccountID: f.revenue.ID, Credit: d("100.00"), Currency: "USD"},
		},
	}
	draft, err := f.svc.CreateDraft(ctx, e, "tester")
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	for _, ln := range draft.Lines {
		if !ln.Rate.Equal(d("1.35")) {
			t.Fatalf("expected resolved rate 1.35, got %s", ln.Rate)
		}
		if !ln.BaseDebit().Add(ln.BaseCredit()).Equal(d("135.00")) {
			t.Fatalf("base amount should be 135.00, got %s", ln.BaseDebit().Add(ln.BaseCredit()))
		}
	}
}

func TestReverse(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	draft, err := f.svc.CreateDraft(ctx, f.entry(day(2025, 4, 5), "75.00"), "tester")
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}

	// Drafts cannot be reversed.
	if _, err := f.svc.Reverse(ctx, draft.ID, day(2025, 4, 6), "tester"); !errors.Is(err, errs.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict for draft, got %v", err)
	}

	if _, err := f.svc.Post(ctx, draft.ID, "tester"); err != nil {
		t.Fatalf("post: %v", err)
	}
	reversing, err := f.svc.Reverse(ctx, draft.ID, day(2025, 4, 6), "tester")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if !reversing.Posted {
		t.Fatal("reversing entry must be posted")
	}
	if !reversing.Lines[0].Credit.Equal(d("75.00")) || !reversing.Lines[1].Debit.Equal(d("75.00")) {
		t.Fatalf("sides not swapped: %+v", reversing.Lines)
	}

	orig, err := f.svc.Entry(ctx, draft.ID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if !orig.Reversed || orig.ReversingEntryID == nil || *orig.ReversingEntryID != reversing.ID {
		t.Fatalf("original not linked to reversal: %+v", orig)
	}

	if _, err := f.svc.Reverse(ctx, draft.ID, day(2025, 4, 7), "tester"); !errors.Is(err, errs.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict for second reversal, got %v", err)
	}
}

func TestAccountBalance(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	opening := ledger.Account{
		ID: uuid.New(), Code: "1020", Name: "Savings", Type: ledger.AccountTypeAsset,
		Active: true, OpeningBalance: d("500.00"), OpeningDate: day(2025, 1, 1),
	}
	f.store.SeedAccount(opening)

	e := ledger.JournalEntry{
		Date: day(2025, 5, 1),
		Lines: []ledger.JournalLine{
			{AccountID: opening.ID, Debit: d("100.00")},
			{AccountID: f.revenue.ID, Credit: d("100.00")},
		},
	}
	draft, err := f.svc.CreateDraft(ctx, e, "tester")
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if _, err := f.svc.Post(ctx, draft.ID, "tester"); err != nil {
		t.Fatalf("post: %v", err)
	}

	bal, err := f.svc.AccountBalance(ctx, opening.ID, day(2025, 5, 31))
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !bal.Equal(d("600.00")) {
		t.Fatalf("expected 600.00, got %s", bal)
	}

	// Credit-natured accounts report in their natural direction.
	revBal, err := f.svc.AccountBalance(ctx, f.revenue.ID, day(2025, 5, 31))
	if err != nil {
		t.Fatalf("revenue balance: %v", err)
	}
	if !revBal.Equal(d("100.00")) {
		t.Fatalf("expected 100.00, got %s", revBal)
	}

	// Before the opening date only posted activity counts.
	early, err := f.svc.AccountBalance(ctx, opening.ID, day(2024, 12, 31))
	if err != nil {
		t.Fatalf("early balance: %v", err)
	}
	if !early.IsZero() {
		t.Fatalf("expected 0 before opening date, got %s", early)
	}
}
