package report

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/ledger"
)

// ReportBucket classifies an account sub-type for the dashboard ratio math.
type ReportBucket string

const (
	BucketCurrentAsset        ReportBucket = "current_asset"
	BucketNonCurrentAsset     ReportBucket = "non_current_asset"
	BucketInventory           ReportBucket = "inventory"
	BucketCurrentLiability    ReportBucket = "current_liability"
	BucketNonCurrentLiability ReportBucket = "non_current_liability"
	BucketEquity              ReportBucket = "equity"
	BucketUncategorized       ReportBucket = "uncategorized"
)

// subTypeBuckets maps account sub-types to dashboard buckets. Sub-types not
// listed here fall through to BucketUncategorized and are surfaced on the
// dashboard rather than silently dropped.
var subTypeBuckets = map[string]ReportBucket{
	"cash":                  BucketCurrentAsset,
	"bank":                  BucketCurrentAsset,
	"accounts_receivable":   BucketCurrentAsset,
	"prepaid_expense":       BucketCurrentAsset,
	"other_current_asset":   BucketCurrentAsset,
	"inventory":             BucketInventory,
	"fixed_asset":           BucketNonCurrentAsset,
	"intangible_asset":      BucketNonCurrentAsset,
	"long_term_investment":  BucketNonCurrentAsset,
	"accounts_payable":      BucketCurrentLiability,
	"gst_payable":           BucketCurrentLiability,
	"wht_payable":           BucketCurrentLiability,
	"accrued_liability":     BucketCurrentLiability,
	"other_current_liability": BucketCurrentLiability,
	"long_term_loan":        BucketNonCurrentLiability,
	"share_capital":         BucketEquity,
	"retained_earnings":     BucketEquity,
	"owner_drawings":        BucketEquity,
}

// BucketFor resolves an account's dashboard bucket from its sub-type, falling
// back on the account type when the sub-type is unknown.
func BucketFor(acc ledger.Account) ReportBucket {
	if b, ok := subTypeBuckets[acc.SubType]; ok {
		return b
	}
	switch acc.Type {
	case ledger.AccountTypeEquity:
		return BucketEquity
	default:
		return BucketUncategorized
	}
}

// Ratio is a financial ratio that distinguishes an undefined value (both
// sides zero) from an infinite one (zero denominator, positive numerator).
type Ratio struct {
	Value    decimal.Decimal
	Infinite bool
	Defined  bool
}

// NewRatio divides numerator by denominator under the dashboard's zero rules.
func NewRatio(numerator, denominator decimal.Decimal) Ratio {
	if denominator.IsZero() {
		if numerator.IsPositive() {
			return Ratio{Infinite: true, Defined: true}
		}
		return Ratio{}
	}
	return Ratio{Value: numerator.Div(denominator).Round(4), Defined: true}
}

// Dashboard aggregates the headline KPIs, all in base currency.
type Dashboard struct {
	AsOf          time.Time
	FiscalYearID  string
	YTDRevenue    decimal.Decimal
	YTDExpense    decimal.Decimal
	YTDNetProfit  decimal.Decimal
	TotalCash     decimal.Decimal
	AROutstanding decimal.Decimal
	AROverdue     decimal.Decimal
	APOutstanding decimal.Decimal
	APOverdue     decimal.Decimal
	ARAging       Aging
	APAging       Aging
	CurrentRatio  Ratio
	QuickRatio    Ratio
	DebtToEquity  Ratio
	// Uncategorized lists accounts whose sub-type matched no report bucket.
	Uncategorized []AccountAmount
}

func (s *service) DashboardKPIs(ctx context.Context, asOf time.Time) (Dashboard, error) {
	asOf = ledger.DateOnly(asOf)
	d := Dashboard{
		AsOf:      asOf,
		TotalCash: decimal.Zero,
	}

	year, err := s.calendar.YearContaining(ctx, asOf)
	if err != nil {
		return Dashboard{}, err
	}
	d.FiscalYearID = year.ID.String()
	pl, err := s.ProfitLoss(ctx, year.Start, asOf)
	if err != nil {
		return Dashboard{}, err
	}
	d.YTDRevenue = pl.TotalRevenue
	d.YTDExpense = pl.TotalExpense
	d.YTDNetProfit = pl.NetProfit

	cash, err := s.totalCash(ctx, asOf)
	if err != nil {
		return Dashboard{}, err
	}
	d.TotalCash = cash

	if d.ARAging, err = s.Aging(ctx, asOf, ledger.DocSalesInvoice); err != nil {
		return Dashboard{}, err
	}
	if d.APAging, err = s.Aging(ctx, asOf, ledger.DocPurchaseInvoice); err != nil {
		return Dashboard{}, err
	}
	d.AROutstanding = d.ARAging.Total
	d.APOutstanding = d.APAging.Total
	d.AROverdue = overdueTotal(d.ARAging)
	d.APOverdue = overdueTotal(d.APAging)

	if err := s.fillRatios(ctx, asOf, &d); err != nil {
		return Dashboard{}, err
	}
	return d, nil
}

func overdueTotal(ag Aging) decimal.Decimal {
	total := decimal.Zero
	for bucket, amt := range ag.BucketTotals {
		if bucket == "current" {
			continue
		}
		total = total.Add(amt)
	}
	return total
}

// totalCash sums active bank account balances converted to base, plus the
// configured cash-on-hand GL account unless a bank account already carries
// that GL account, which would count the same money twice.
func (s *service) totalCash(ctx context.Context, asOf time.Time) (decimal.Decimal, error) {
	banks, err := s.repo.ListBankAccounts(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	bankGL := map[string]bool{}
	for _, b := range banks {
		if !b.Active {
			continue
		}
		bankGL[b.GLAccountID.String()] = true
		if b.Currency == s.base {
			total = total.Add(b.CurrentBalance)
			continue
		}
		rate, err := s.rates.Rate(ctx, b.Currency, s.base, asOf)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(s.rates.Convert(b.CurrentBalance, rate))
	}
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, acc := range accounts {
		if acc.Code != s.cashOnHandCode || !acc.Active || bankGL[acc.ID.String()] {
			continue
		}
		bal, err := s.journal.AccountBalance(ctx, acc.ID, asOf)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(bal)
	}
	return total.RoundBank(2), nil
}

func (s *service) fillRatios(ctx context.Context, asOf time.Time, d *Dashboard) error {
	accounts, err := s.activeAccounts(ctx)
	if err != nil {
		return err
	}
	var currentAssets, inventory, currentLiabilities, totalLiabilities, totalEquity decimal.Decimal
	for _, acc := range accounts {
		switch acc.Type {
		case ledger.AccountTypeAsset, ledger.AccountTypeLiability, ledger.AccountTypeEquity:
		default:
			continue
		}
		bal, err := s.journal.AccountBalance(ctx, acc.ID, asOf)
		if err != nil {
			return err
		}
		if bal.IsZero() {
			continue
		}
		switch BucketFor(acc) {
		case BucketCurrentAsset:
			currentAssets = currentAssets.Add(bal)
		case BucketInventory:
			currentAssets = currentAssets.Add(bal)
			inventory = inventory.Add(bal)
		case BucketCurrentLiability:
			currentLiabilities = currentLiabilities.Add(bal)
		case BucketEquity:
			totalEquity = totalEquity.Add(bal)
		case BucketUncategorized:
			d.Uncategorized = append(d.Uncategorized, AccountAmount{AccountID: acc.ID, Code: acc.Code, Name: acc.Name, Amount: bal})
		}
		if acc.Type == ledger.AccountTypeLiability {
			totalLiabilities = totalLiabilities.Add(bal)
		}
	}
	d.CurrentRatio = NewRatio(currentAssets, currentLiabilities)
	d.QuickRatio = NewRatio(currentAssets.Sub(inventory), currentLiabilities)
	d.DebtToEquity = NewRatio(totalLiabilities, totalEquity)
	return nil
}
