// Package report derives financial statements from posted journal activity
// plus account opening balances: trial balance, P&L, balance sheet, general
// ledger, AR/AP aging, and the dashboard KPI aggregation.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/fiscal"
	"github.com/gobooks/ledger/internal/service/fx"
	"github.com/gobooks/ledger/internal/service/journal"
)

// Repo defines read operations needed by reporting.
type Repo interface {
	ListAccounts(ctx context.Context) ([]ledger.Account, error)
	// OpenInvoices returns invoices still counting toward AR/AP.
	OpenInvoices(ctx context.Context, kind ledger.DocumentKind) ([]ledger.Invoice, error)
	ListBankAccounts(ctx context.Context) ([]ledger.BankAccount, error)
}

// TrialBalanceRow is one account's balance placed into a debit or credit
// column by sign.
type TrialBalanceRow struct {
	AccountID   uuid.UUID
	Code        string
	Name        string
	Type        ledger.AccountType
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// TrialBalance lists every active account with column totals; the totals
// are equal when the books balance.
type TrialBalance struct {
	AsOf         time.Time
	Rows         []TrialBalanceRow
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
}

// AccountAmount pairs an account with a net amount on a statement.
type AccountAmount struct {
	AccountID uuid.UUID
	Code      string
	Name      string
	Amount    decimal.Decimal
}

// ProfitLoss is the P&L statement over a period.
type ProfitLoss struct {
	Start        time.Time
	End          time.Time
	Revenue      []AccountAmount
	Expenses     []AccountAmount
	TotalRevenue decimal.Decimal
	TotalExpense decimal.Decimal
	NetProfit    decimal.Decimal
}

// BalanceSheet is the position statement as of a date. Imbalance reports
// any violation of Assets = Liabilities + Equity + YTD net profit.
type BalanceSheet struct {
	AsOf             time.Time
	Assets           []AccountAmount
	Liabilities      []AccountAmount
	Equity           []AccountAmount
	TotalAssets      decimal.Decimal
	TotalLiabilities decimal.Decimal
	TotalEquity      decimal.Decimal
	NetProfitYTD     decimal.Decimal
	Imbalance        decimal.Decimal
}

// GeneralLedgerLine is one posted line with a running balance.
type GeneralLedgerLine struct {
	Date        time.Time
	EntryNo     string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Balance     decimal.Decimal
}

// GeneralLedger renders an account's activity between two dates.
type GeneralLedger struct {
	AccountID      uuid.UUID
	Code           string
	Name           string
	Start          time.Time
	End            time.Time
	OpeningBalance decimal.Decimal
	Lines          []GeneralLedgerLine
	ClosingBalance decimal.Decimal
}

// AgingBucket labels, in order.
var agingBuckets = []string{"current", "1-30", "31-60", "61-90", "91+"}

// AgingRow is one open invoice bucketed by days past due.
type AgingRow struct {
	InvoiceID   uuid.UUID
	Number      string
	PartyID     uuid.UUID
	DueDate     time.Time
	Outstanding decimal.Decimal
	Bucket      string
}

// Aging partitions open invoices into past-due buckets; every open invoice
// lands in exactly one bucket.
type Aging struct {
	AsOf         time.Time
	Side         ledger.DocumentKind
	Rows         []AgingRow
	BucketTotals map[string]decimal.Decimal
	Total        decimal.Decimal
}

// Service derives reports.
type Service interface {
	TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error)
	ProfitLoss(ctx context.Context, start, end time.Time) (ProfitLoss, error)
	BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error)
	GeneralLedger(ctx context.Context, accountID uuid.UUID, start, end time.Time) (GeneralLedger, error)
	Aging(ctx context.Context, asOf time.Time, side ledger.DocumentKind) (Aging, error)
	DashboardKPIs(ctx context.Context, asOf time.Time) (Dashboard, error)
}

type service struct {
	repo     Repo
	journal  journal.Service
	calendar fiscal.Service
	rates    fx.Service
	base     string
	// cashOnHandCode is the configured cash-on-hand GL account code.
	cashOnHandCode string
}

// New constructs the reporting service.
func New(repo Repo, js journal.Service, cal fiscal.Service, rates fx.Service, base, cashOnHandCode string) Service {
	return &service{repo: repo, journal: js, calendar: cal, rates: rates, base: base, cashOnHandCode: cashOnHandCode}
}

func (s *service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	accounts, err := s.activeAccounts(ctx)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := TrialBalance{AsOf: ledger.DateOnly(asOf), TotalDebits: decimal.Zero, TotalCredits: decimal.Zero}
	for _, acc := range accounts {
		bal, err := s.journal.AccountBalance(ctx, acc.ID, asOf)
		if err != nil {
			return TrialBalance{}, err
		}
		if bal.IsZero() {
			continue
		}
		row := TrialBalanceRow{AccountID: acc.ID, Code: acc.Code, Name: acc.Name, Type: acc.Type, Debit: decimal.Zero, Credit: decimal.Zero}
		// Natural-direction balances map back to columns: positive balances
		// of debit-natured accounts sit in the debit column.
		debitSide := acc.DebitNature() == bal.IsPositive()
		mag := bal.Abs()
		if debitSide {
			row.Debit = mag
			tb.TotalDebits = tb.TotalDebits.Add(mag)
		} else {
			row.Credit = mag
			tb.TotalCredits = tb.TotalCredits.Add(mag)
		}
		tb.Rows = append(tb.Rows, row)
	}
	return tb, nil
}

func (s *service) ProfitLoss(ctx context.Context, start, end time.Time) (ProfitLoss, error) {
	accounts, err := s.activeAccounts(ctx)
	if err != nil {
		return ProfitLoss{}, err
	}
	pl := ProfitLoss{
		Start: ledger.DateOnly(start), End: ledger.DateOnly(end),
		TotalRevenue: decimal.Zero, TotalExpense: decimal.Zero,
	}
	for _, acc := range accounts {
		if acc.Type != ledger.AccountTypeRevenue && acc.Type != ledger.AccountTypeExpense {
			continue
		}
		activity, err := s.journal.PeriodActivity(ctx, acc.ID, start, end)
		if err != nil {
			return ProfitLoss{}, err
		}
		amount := acc.NaturalSign(activity)
		if amount.IsZero() {
			continue
		}
		aa := AccountAmount{AccountID: acc.ID, Code: acc.Code, Name: acc.Name, Amount: amount}
		if acc.Type == ledger.AccountTypeRevenue {
			pl.Revenue = append(pl.Revenue, aa)
			pl.TotalRevenue = pl.TotalRevenue.Add(amount)
		} else {
			pl.Expenses = append(pl.Expenses, aa)
			pl.TotalExpense = pl.TotalExpense.Add(amount)
		}
	}
	pl.NetProfit = pl.TotalRevenue.Sub(pl.TotalExpense)
	return pl, nil
}

func (s *service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	accounts, err := s.activeAccounts(ctx)
	if err != nil {
		return BalanceSheet{}, err
	}
	bs := BalanceSheet{
		AsOf:        ledger.DateOnly(asOf),
		TotalAssets: decimal.Zero, TotalLiabilities: decimal.Zero, TotalEquity: decimal.Zero,
	}
	for _, acc := range accounts {
		switch acc.Type {
		case ledger.AccountTypeAsset, ledger.AccountTypeLiability, ledger.AccountTypeEquity:
		default:
			continue
		}
		bal, err := s.journal.AccountBalance(ctx, acc.ID, asOf)
		if err != nil {
			return BalanceSheet{}, err
		}
		if bal.IsZero() {
			continue
		}
		aa := AccountAmount{AccountID: acc.ID, Code: acc.Code, Name: acc.Name, Amount: bal}
		switch acc.Type {
		case ledger.AccountTypeAsset:
			bs.Assets = append(bs.Assets, aa)
			bs.TotalAssets = bs.TotalAssets.Add(bal)
		case ledger.AccountTypeLiability:
			bs.Liabilities = append(bs.Liabilities, aa)
			bs.TotalLiabilities = bs.TotalLiabilities.Add(bal)
		case ledger.AccountTypeEquity:
			bs.Equity = append(bs.Equity, aa)
			bs.TotalEquity = bs.TotalEquity.Add(bal)
		}
	}

	year, err := s.calendar.YearContaining(ctx, asOf)
	if err != nil {
		return BalanceSheet{}, fmt.Errorf("balance sheet as of %s: %w", asOf.Format("2006-01-02"), err)
	}
	pl, err := s.ProfitLoss(ctx, year.Start, asOf)
	if err != nil {
		return BalanceSheet{}, err
	}
	bs.NetProfitYTD = pl.NetProfit
	bs.Imbalance = bs.TotalAssets.Sub(bs.TotalLiabilities.Add(bs.TotalEquity).Add(bs.NetProfitYTD))
	return bs, nil
}

func (s *service) GeneralLedger(ctx context.Context, accountID uuid.UUID, start, end time.Time) (GeneralLedger, error) {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return GeneralLedger{}, err
	}
	var acc ledger.Account
	found := false
	for _, a := range accounts {
		if a.ID == accountID {
			acc = a
			found = true
			break
		}
	}
	if !found {
		return GeneralLedger{}, fmt.Errorf("account %s: %w", accountID, errs.ErrNotFound)
	}
	opening, err := s.journal.AccountBalance(ctx, accountID, ledger.DateOnly(start).AddDate(0, 0, -1))
	if err != nil {
		return GeneralLedger{}, err
	}
	lines, err := s.journal.PostedLines(ctx, accountID, start, end)
	if err != nil {
		return GeneralLedger{}, err
	}
	gl := GeneralLedger{
		AccountID: accountID, Code: acc.Code, Name: acc.Name,
		Start: ledger.DateOnly(start), End: ledger.DateOnly(end),
		OpeningBalance: opening,
	}
	running := opening
	for _, pl := range lines {
		running = running.Add(acc.NaturalSign(pl.Line.BaseNet()))
		gl.Lines = append(gl.Lines, GeneralLedgerLine{
			Date:        pl.Date,
			EntryNo:     pl.EntryNo,
			Description: pl.Description,
			Debit:       pl.Line.BaseDebit(),
			Credit:      pl.Line.BaseCredit(),
			Balance:     running,
		})
	}
	gl.ClosingBalance = running
	return gl, nil
}

func (s *service) Aging(ctx context.Context, asOf time.Time, side ledger.DocumentKind) (Aging, error) {
	invoices, err := s.repo.OpenInvoices(ctx, side)
	if err != nil {
		return Aging{}, err
	}
	asOf = ledger.DateOnly(asOf)
	ag := Aging{AsOf: asOf, Side: side, BucketTotals: map[string]decimal.Decimal{}, Total: decimal.Zero}
	for _, b := range agingBuckets {
		ag.BucketTotals[b] = decimal.Zero
	}
	for _, inv := range invoices {
		outstanding := inv.Outstanding()
		if !outstanding.IsPositive() {
			continue
		}
		// Aging reports in base currency.
		base := outstanding.Mul(inv.Rate).RoundBank(2)
		bucket := bucketFor(asOf, ledger.DateOnly(inv.DueDate))
		ag.Rows = append(ag.Rows, AgingRow{
			InvoiceID: inv.ID, Number: inv.Number, PartyID: inv.PartyID,
			DueDate: ledger.DateOnly(inv.DueDate), Outstanding: base, Bucket: bucket,
		})
		ag.BucketTotals[bucket] = ag.BucketTotals[bucket].Add(base)
		ag.Total = ag.Total.Add(base)
	}
	sort.SliceStable(ag.Rows, func(i, j int) bool { return ag.Rows[i].DueDate.Before(ag.Rows[j].DueDate) })
	return ag, nil
}

func bucketFor(asOf, due time.Time) string {
	days := int(asOf.Sub(due).Hours() / 24)
	switch {
	case days <= 0:
		return "current"
	case days <= 30:
		return "1-30"
	case days <= 60:
		return "31-60"
	case days <= 90:
		return "61-90"
	default:
		return "91+"
	}
}

func (s *service) activeAccounts(ctx context.Context) ([]ledger.Account, error) {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	out := accounts[:0:0]
	for _, a := range accounts {
		if a.Active {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
