package report

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
	"github.com/gobooks/ledger/internal/service/journal"
	"github.com/gobooks/ledger/internal/service/numbering"
	"github.com/gobooks/ledger/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store    *memory.Store
	js       journal.Service
	svc      Service
	accounts map[string]ledger.Account
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

	accounts := map[string]ledger.Account{}
	seed := func(code, name string, typ ledger.AccountType, subType string) {
		a := ledger.Account{ID: uuid.New(), Code: code, Name: name, Type: typ, SubType: subType, Active: true}
		store.SeedAccount(a)
		accounts[code] = a
	}
	seed("1010", "Bank", ledger.AccountTypeAsset, "bank")
	seed("1200", "Accounts Receivable", ledger.AccountTypeAsset, "accounts_receivable")
	seed("2100", "Accounts Payable", ledger.AccountTypeLiability, "accounts_payable")
	seed("3000", "Share Capital", ledger.AccountTypeEquity, "share_capital")
	seed("4000", "Sales", ledger.AccountTypeRevenue, "")
	seed("6000", "Expenses", ledger.AccountTypeExpense, "")

	js := journal.New(store, store, numbering.New(store), fiscal.New(store, store), fx.New(store), "SGD")
	svc := New(store, js, fiscal.New(store, store), fx.New(store), "SGD", "1000")
	return fixture{store: store, js: js, svc: svc, accounts: accounts}
}

func (f fixture) posted(t *testing.T, date time.Time, debitCode, creditCode, amount string) {
	t.Helper()
	amt := d(amount)
	entry, err := f.js.BuildPosted(context.Background(), ledger.JournalEntry{
		Date: date,
		Lines: []ledger.JournalLine{
			{AccountID: f.accounts[debitCode].ID, Debit: amt},
			{AccountID: f.accounts[creditCode].ID, Credit: amt},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("build %s->%s: %v", debitCode, creditCode, err)
	}
	if _, err := f.store.CreateJournalEntry(context.Background(), entry); err != nil {
		t.Fatalf("store %s->%s: %v", debitCode, creditCode, err)
	}
}

func TestTrialBalance_ColumnsBalance(t *testing.T) {
	f := setup(t)

	f.posted(t, day(2025, 1, 10), "1010", "3000", "10000.00") // capital in
	f.posted(t, day(2025, 2, 5), "1200", "4000", "1500.00")   // sale on credit
	f.posted(t, day(2025, 2, 20), "6000", "1010", "400.00")   // expense paid

	tb, err := f.svc.TrialBalance(context.Background(), day(2025, 3, 31))
	if err != nil {
		t.Fatalf("trial balance: %v", err)
	}
	if !tb.TotalDebits.Equal(tb.TotalCredits) {
		t.Fatalf("columns differ: %s vs %s", tb.TotalDebits, tb.TotalCredits)
	}
	if !tb.TotalDebits.Equal(d("11500.00")) {
		t.Fatalf("total wrong: %s", tb.TotalDebits)
	}
	for _, row := range tb.Rows {
		if row.Code == "1010" && !row.Debit.Equal(d("9600.00")) {
			t.Fatalf("bank column wrong: %+v", row)
		}
		if row.Code == "4000" && !row.Credit.Equal(d("1500.00")) {
			t.Fatalf("sales column wrong: %+v", row)
		}
	}
}

func TestProfitLoss(t *testing.T) {
	f := setup(t)

	f.posted(t, day(2025, 2, 5), "1200", "4000", "1500.00")
	f.posted(t, day(2025, 2, 20), "6000", "1010", "400.00")
	// Outside the report window.
	f.posted(t, day(2025, 6, 1), "1200", "4000", "999.00")

	pl, err := f.svc.ProfitLoss(context.Background(), day(2025, 1, 1), day(2025, 3, 31))
	if err != nil {
		t.Fatalf("profit loss: %v", err)
	}
	if !pl.TotalRevenue.Equal(d("1500.00")) || !pl.TotalExpense.Equal(d("400.00")) {
		t.Fatalf("totals wrong: %s / %s", pl.TotalRevenue, pl.TotalExpense)
	}
	if !pl.NetProfit.Equal(d("1100.00")) {
		t.Fatalf("net profit wrong: %s", pl.NetProfit)
	}
}

func TestBalanceSheet_Identity(t *testing.T) {
	f := setup(t)

	f.posted(t, day(2025, 1, 10), "1010", "3000", "10000.00")
	f.posted(t, day(2025, 2, 5), "1200", "4000", "1500.00")
	f.posted(t, day(2025, 2, 20), "6000", "1010", "400.00")

	bs, err := f.svc.BalanceSheet(context.Background(), day(2025, 3, 31))
	if err != nil {
		t.Fatalf("balance sheet: %v", err)
	}
	if !bs.Imbalance.IsZero() {
		t.Fatalf("expected zero imbalance, got %s", bs.Imbalance)
	}
	if !bs.TotalAssets.Equal(d("11100.00")) {
		t.Fatalf("assets wrong: %s", bs.TotalAssets)
	}
	if !bs.TotalEquity.Equal(d("10000.00")) {
		t.Fatalf("equity wrong: %s", bs.TotalEquity)
	}
	if !bs.NetProfitYTD.Equal(d("1100.00")) {
		t.Fatalf("YTD profit wrong: %s", bs.NetProfitYTD)
	}
}

func TestBalanceSheet_NoFiscalYear(t *testing.T) {
	store := memory.New()
	store.SeedAccount(ledger.Account{ID: uuid.New(), Code: "1010", Name: "Bank", Type: ledger.AccountTypeAsset, Active: true})
	js := journal.New(store, store, numbering.New(store), fiscal.New(store, store), fx.New(store), "SGD")
	svc := New(store, js, fiscal.New(store, store), fx.New(store), "SGD", "1000")

	_, err := svc.BalanceSheet(context.Background(), day(2025, 3, 31))
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without a fiscal year, got %v", err)
	}
}

func TestGeneralLedger_UnknownAccount(t *testing.T) {
	f := setup(t)

	_, err := f.svc.GeneralLedger(context.Background(), uuid.New(), day(2025, 1, 1), day(2025, 12, 31))
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown account, got %v", err)
	}
}

func TestGeneralLedger_RunningBalance(t *testing.T) {
	f := setup(t)

	f.posted(t, day(2025, 1, 10), "1010", "3000", "10000.00")
	f.posted(t, day(2025, 2, 20), "6000", "1010", "400.00")

	gl, err := f.svc.GeneralLedger(context.Background(), f.accounts["1010"].ID, day(2025, 2, 1), day(2025, 2, 28))
	if err != nil {
		t.Fatalf("general ledger: %v", err)
	}
	if !gl.OpeningBalance.Equal(d("10000.00")) {
		t.Fatalf("opening wrong: %s", gl.OpeningBalance)
	}
	if len(gl.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(gl.Lines))
	}
	if !gl.Lines[0].Credit.Equal(d("400.00")) || !gl.Lines[0].Balance.Equal(d("9600.00")) {
		t.Fatalf("line wrong: %+v", gl.Lines[0])
	}
	if !gl.ClosingBalance.Equal(d("9600.00")) {
		t.Fatalf("closing wrong: %s", gl.ClosingBalance)
	}
}

func TestAging_Buckets(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	party := uuid.New()

	seedInvoice := func(number string, due time.Time, total string) {
		inv := ledger.Invoice{
			ID: uuid.New(), Kind: ledger.DocSalesInvoice, Number: number,
			PartyID: party, IssueDate: due.AddDate(0, -1, 0), DueDate: due,
			Currency: "SGD", Rate: decimal.NewFromInt(1),
			Subtotal: d(total), Total: d(total), Status: ledger.InvoiceApproved,
		}
		if _, err := f.store.CreateInvoice(ctx, inv); err != nil {
			t.Fatalf("invoice %s: %v", number, err)
		}
	}
	asOf := day(2025, 6, 30)
	seedInvoice("INV-1", day(2025, 7, 15), "100.00") // not yet due
	seedInvoice("INV-2", day(2025, 6, 15), "200.00") // 15 days past
	seedInvoice("INV-3", day(2025, 5, 10), "300.00") // 51 days past
	seedInvoice("INV-4", day(2025, 1, 1), "400.00")  // ancient

	ag, err := f.svc.Aging(ctx, asOf, ledger.DocSalesInvoice)
	if err != nil {
		t.Fatalf("aging: %v", err)
	}
	want := map[string]string{
		"current": "100.00",
		"1-30":    "200.00",
		"31-60":   "300.00",
		"61-90":   "0",
		"91+":     "400.00",
	}
	for bucket, amount := range want {
		if !ag.BucketTotals[bucket].Equal(d(amount)) {
			t.Fatalf("bucket %s: want %s got %s", bucket, amount, ag.BucketTotals[bucket])
		}
	}
	if !ag.Total.Equal(d("1000.00")) {
		t.Fatalf("total wrong: %s", ag.Total)
	}
	// Every row lands in exactly one bucket.
	if len(ag.Rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(ag.Rows))
	}
}

func TestNewRatio(t *testing.T) {
	r := NewRatio(d("250"), d("100"))
	if !r.Defined || r.Infinite || !r.Value.Equal(d("2.5")) {
		t.Fatalf("plain ratio wrong: %+v", r)
	}
	r = NewRatio(d("5"), decimal.Zero)
	if !r.Defined || !r.Infinite {
		t.Fatalf("expected infinite: %+v", r)
	}
	r = NewRatio(decimal.Zero, decimal.Zero)
	if r.Defined {
		t.Fatalf("expected undefined: %+v", r)
	}
}

func TestDashboardKPIs(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.posted(t, day(2025, 1, 10), "1010", "3000", "10000.00")
	f.posted(t, day(2025, 2, 5), "1200", "4000", "1500.00")
	f.posted(t, day(2025, 2, 20), "6000", "1010", "400.00")

	party := uuid.New()
	inv := ledger.Invoice{
		ID: uuid.New(), Kind: ledger.DocSalesInvoice, Number: "INV-9",
		PartyID: party, IssueDate: day(2025, 2, 5), DueDate: day(2025, 3, 5),
		Currency: "SGD", Rate: decimal.NewFromInt(1),
		Subtotal: d("1500.00"), Total: d("1500.00"), Status: ledger.InvoiceApproved,
	}
	if _, err := f.store.CreateInvoice(ctx, inv); err != nil {
		t.Fatalf("invoice: %v", err)
	}

	dash, err := f.svc.DashboardKPIs(ctx, day(2025, 6, 30))
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if !dash.YTDNetProfit.Equal(d("1100.00")) {
		t.Fatalf("YTD net profit wrong: %s", dash.YTDNetProfit)
	}
	if !dash.AROutstanding.Equal(d("1500.00")) {
		t.Fatalf("AR outstanding wrong: %s", dash.AROutstanding)
	}
	if !dash.AROverdue.Equal(d("1500.00")) {
		t.Fatalf("AR overdue wrong: %s", dash.AROverdue)
	}
	// Current ratio = (bank 9600 + AR 1500) / 0 liabilities, AR invoice has
	// no booked liability: positive numerator over zero.
	if !dash.CurrentRatio.Infinite {
		t.Fatalf("expected infinite current ratio: %+v", dash.CurrentRatio)
	}
	if len(dash.Uncategorized) != 0 {
		t.Fatalf("unexpected uncategorized accounts: %+v", dash.Uncategorized)
	}
}
