package document

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/config"
	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/fiscal"
	"github.com/gobooks/ledger/internal/service/fx"
	"github.com/gobooks/ledger/internal/service/journal"
	"github.com/gobooks/ledger/internal/service/numbering"
	"github.com/gobooks/ledger/internal/service/tax"
	"github.com/gobooks/ledger/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

var sysacc = config.SystemAccounts{
	DefaultCash: "1010",
	DefaultAR:   "1200",
	DefaultAP:   "2100",
	FXGain:      "7150",
	FXLoss:      "8150",
	GSTOutput:   "2200",
	GSTInput:    "1300",
	WHTPayable:  "2250",
	CashOnHand:  "1000",
}

type fixture struct {
	store    *memory.Store
	svc      Service
	accounts map[string]ledger.Account
	bank     ledger.BankAccount
	customer ledger.Party
	vendor   ledger.Party
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	for _, name := range []string{
		ledger.SeqJournalEntry, ledger.SeqSalesInvoice, ledger.SeqPurchaseInvoice,
		ledger.SeqPayment, ledger.SeqWHTCertificate,
	} {
		store.SeedSequence(ledger.Sequence{Name: name, Prefix: name + "-", NextValue: 1, IncrementBy: 1, MinValue: 1, Pad: 4})
	}

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
	seed := func(code, name string, typ ledger.AccountType, control, bank bool) {
		a := ledger.Account{ID: uuid.New(), Code: code, Name: name, Type: typ, IsControl: control, IsBank: bank, Active: true}
		store.SeedAccount(a)
		accounts[code] = a
	}
	seed("1010", "Bank", ledger.AccountTypeAsset, false, true)
	seed("1200", "Accounts Receivable", ledger.AccountTypeAsset, true, false)
	seed("1300", "GST Input", ledger.AccountTypeAsset, false, false)
	seed("2100", "Accounts Payable", ledger.AccountTypeLiability, true, false)
	seed("2200", "GST Output", ledger.AccountTypeLiability, false, false)
	seed("2250", "WHT Payable", ledger.AccountTypeLiability, false, false)
	seed("4000", "Sales", ledger.AccountTypeRevenue, false, false)
	seed("6000", "Expenses", ledger.AccountTypeExpense, false, false)
	seed("7150", "FX Gain", ledger.AccountTypeRevenue, false, false)
	seed("8150", "FX Loss", ledger.AccountTypeExpense, false, false)

	bank := ledger.BankAccount{ID: uuid.New(), Name: "Main", Currency: "SGD", GLAccountID: accounts["1010"].ID, Active: true}
	store.SeedBankAccount(bank)

	customer := ledger.Party{ID: uuid.New(), Kind: ledger.PartyCustomer, Name: "Acme Pte Ltd", Active: true}
	vendor := ledger.Party{ID: uuid.New(), Kind: ledger.PartyVendor, Name: "Supplies Pte Ltd", WHTRate: d("15.00"), Active: true}
	store.SeedParty(customer)
	store.SeedParty(vendor)

	store.SeedTaxCode(ledger.TaxCode{Code: "SR", Name: "Standard-Rated", Kind: ledger.TaxGSTOutput, Rate: d("9.00"), Active: true})
	store.SeedTaxCode(ledger.TaxCode{Code: "TX", Name: "Taxable Purchase", Kind: ledger.TaxGSTInput, Rate: d("9.00"), Active: true})
	store.SeedRate(ledger.ExchangeRate{From: "USD", To: "SGD", Date: day(2025, 1, 1), Rate: d("1.350000")})

	js := journal.New(store, store, numbering.New(store), fiscal.New(store, store), fx.New(store), "SGD")
	svc := New(store, store, js, tax.New(store), fx.New(store), numbering.New(store), sysacc, "SGD")
	return fixture{store: store, svc: svc, accounts: accounts, bank: bank, customer: customer, vendor: vendor}
}

func (f fixture) salesInvoice(t *testing.T, amount, taxCode string) ledger.Invoice {
	t.Helper()
	inv, err := f.svc.CreateInvoice(context.Background(), ledger.Invoice{
		Kind:      ledger.DocSalesInvoice,
		PartyID:   f.customer.ID,
		IssueDate: day(2025, 2, 1),
		DueDate:   day(2025, 3, 1),
		Lines: []ledger.InvoiceLine{
			{Description: "Consulting", AccountID: f.accounts["4000"].ID, Quantity: d("1"), UnitPrice: d(amount), TaxCode: taxCode},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	return inv
}

func TestCreateInvoice_GSTTotals(t *testing.T) {
	f := setup(t)

	inv := f.salesInvoice(t, "100.00", "SR")
	if !inv.Subtotal.Equal(d("100.00")) || !inv.TaxAmount.Equal(d("9.00")) || !inv.Total.Equal(d("109.00")) {
		t.Fatalf("totals wrong: %s %s %s", inv.Subtotal, inv.TaxAmount, inv.Total)
	}
	if inv.Status != ledger.InvoiceDraft {
		t.Fatalf("expected draft, got %s", inv.Status)
	}
	if inv.Number == "" {
		t.Fatal("number not assigned")
	}
}

func TestCreateInvoice_TaxInclusive(t *testing.T) {
	f := setup(t)

	inv, err := f.svc.CreateInvoice(context.Background(), ledger.Invoice{
		Kind:      ledger.DocSalesInvoice,
		PartyID:   f.customer.ID,
		IssueDate: day(2025, 2, 1),
		Lines: []ledger.InvoiceLine{
			{AccountID: f.accounts["4000"].ID, Quantity: d("1"), UnitPrice: d("109.00"), TaxCode: "SR", TaxInclusive: true},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if !inv.Subtotal.Equal(d("100.00")) || !inv.TaxAmount.Equal(d("9.00")) || !inv.Total.Equal(d("109.00")) {
		t.Fatalf("inclusive totals wrong: %s %s %s", inv.Subtotal, inv.TaxAmount, inv.Total)
	}
}

func TestApproveInvoice_PostsBalancedEntry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv := f.salesInvoice(t, "100.00", "SR")
	approved, err := f.svc.ApproveInvoice(ctx, inv.ID, "tester")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != ledger.InvoiceApproved || approved.JournalEntryID == nil {
		t.Fatalf("approval state wrong: %+v", approved)
	}

	entry, err := f.store.EntryByID(ctx, *approved.JournalEntryID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if !entry.Posted || !entry.Balanced() {
		t.Fatalf("entry not posted/balanced: %+v", entry)
	}
	if entry.SourceType != ledger.SourceSalesInvoice {
		t.Fatalf("expected sales invoice source, got %s", entry.SourceType)
	}

	var arDebit, gstCredit decimal.Decimal
	for _, ln := range entry.Lines {
		switch ln.AccountID {
		case f.accounts["1200"].ID:
			arDebit = ln.Debit
		case f.accounts["2200"].ID:
			gstCredit = ln.Credit
		}
	}
	if !arDebit.Equal(d("109.00")) {
		t.Fatalf("AR debit should be gross 109.00, got %s", arDebit)
	}
	if !gstCredit.Equal(d("9.00")) {
		t.Fatalf("GST output credit should be 9.00, got %s", gstCredit)
	}

	// Double approval is a state conflict.
	if _, err := f.svc.ApproveInvoice(ctx, inv.ID, "tester"); !errors.Is(err, errs.ErrStateConflict) {
		t.Fatalf("expected ErrStateConflict, got %v", err)
	}
}

func TestCustomerPayment_RealizedFXLoss(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// USD bank account for a USD payment.
	usdGL := ledger.Account{ID: uuid.New(), Code: "1011", Name: "USD Bank", Type: ledger.AccountTypeAsset, IsBank: true, Active: true}
	f.store.SeedAccount(usdGL)
	usdBank := ledger.BankAccount{ID: uuid.New(), Name: "USD", Currency: "USD", GLAccountID: usdGL.ID, Active: true}
	f.store.SeedBankAccount(usdBank)

	// Invoice booked at 1.35.
	inv, err := f.svc.CreateInvoice(ctx, ledger.Invoice{
		Kind:      ledger.DocSalesInvoice,
		PartyID:   f.customer.ID,
		IssueDate: day(2025, 2, 1),
		Currency:  "USD",
		Lines: []ledger.InvoiceLine{
			{AccountID: f.accounts["4000"].ID, Quantity: d("1"), UnitPrice: d("100.00")},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if _, err := f.svc.ApproveInvoice(ctx, inv.ID, "tester"); err != nil {
		t.Fatalf("approve invoice: %v", err)
	}

	// Rate falls to 1.30 by the payment date.
	f.store.SeedRate(ledger.ExchangeRate{From: "USD", To: "SGD", Date: day(2025, 3, 1), Rate: d("1.300000")})

	p, err := f.svc.CreatePayment(ctx, ledger.Payment{
		Type:          ledger.PaymentCustomer,
		Date:          day(2025, 3, 1),
		PartyID:       f.customer.ID,
		BankAccountID: &usdBank.ID,
		Amount:        d("100.00"),
		Allocations: []ledger.Allocation{
			{Document: ledger.DocumentRef{Kind: ledger.DocSalesInvoice, ID: inv.ID}, Amount: d("100.00")},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	completed, err := f.svc.ApprovePayment(ctx, p.ID, "tester")
	if err != nil {
		t.Fatalf("approve payment: %v", err)
	}
	if completed.Status != ledger.PaymentCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}

	entry, err := f.store.EntryByID(ctx, *completed.JournalEntryID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	if !entry.Balanced() {
		t.Fatal("payment entry unbalanced")
	}
	// Bank 130.00, AR relieved at 135.00, the 5.00 shortfall is FX loss.
	var fxLoss decimal.Decimal
	for _, ln := range entry.Lines {
		if ln.AccountID == f.accounts["8150"].ID {
			fxLoss = ln.Debit
		}
	}
	if !fxLoss.Equal(d("5.00")) {
		t.Fatalf("expected FX loss 5.00, got %s", fxLoss)
	}

	paid, err := f.svc.Invoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if paid.Status != ledger.InvoicePaid {
		t.Fatalf("expected paid, got %s", paid.Status)
	}
}

func TestVendorPayment_Withholding(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bill, err := f.svc.CreateInvoice(ctx, ledger.Invoice{
		Kind:      ledger.DocPurchaseInvoice,
		PartyID:   f.vendor.ID,
		IssueDate: day(2025, 2, 10),
		Lines: []ledger.InvoiceLine{
			{AccountID: f.accounts["6000"].ID, Quantity: d("1"), UnitPrice: d("1000.00")},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if _, err := f.svc.ApproveInvoice(ctx, bill.ID, "tester"); err != nil {
		t.Fatalf("approve bill: %v", err)
	}

	p, err := f.svc.CreatePayment(ctx, ledger.Payment{
		Type:          ledger.PaymentVendor,
		Date:          day(2025, 3, 15),
		PartyID:       f.vendor.ID,
		BankAccountID: &f.bank.ID,
		Amount:        d("1000.00"),
		Allocations: []ledger.Allocation{
			{Document: ledger.DocumentRef{Kind: ledger.DocPurchaseInvoice, ID: bill.ID}, Amount: d("1000.00")},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	completed, err := f.svc.ApprovePayment(ctx, p.ID, "tester")
	if err != nil {
		t.Fatalf("approve payment: %v", err)
	}
	if completed.WHTCertificateID == nil {
		t.Fatal("expected a WHT certificate")
	}
	cert, err := f.store.WHTCertificate(ctx, *completed.WHTCertificateID)
	if err != nil {
		t.Fatalf("certificate: %v", err)
	}
	if !cert.WithheldAmount.Equal(d("150.00")) || !cert.NetAmount.Equal(d("850.00")) {
		t.Fatalf("certificate amounts wrong: %+v", cert)
	}

	entry, err := f.store.EntryByID(ctx, *completed.JournalEntryID)
	if err != nil {
		t.Fatalf("entry: %v", err)
	}
	var bankCredit, whtCredit decimal.Decimal
	for _, ln := range entry.Lines {
		switch ln.AccountID {
		case f.accounts["1010"].ID:
			bankCredit = ln.Credit
		case f.accounts["2250"].ID:
			whtCredit = ln.Credit
		}
	}
	if !bankCredit.Equal(d("850.00")) {
		t.Fatalf("bank credit should be net 850.00, got %s", bankCredit)
	}
	if !whtCredit.Equal(d("150.00")) {
		t.Fatalf("WHT credit should be 150.00, got %s", whtCredit)
	}

	// The book-side bank transaction carries the net outflow.
	txn, err := f.store.BankTransactionBySource(ctx, completed.ID)
	if err != nil {
		t.Fatalf("bank txn: %v", err)
	}
	if !txn.Amount.Equal(d("-850.00")) {
		t.Fatalf("expected -850.00, got %s", txn.Amount)
	}
}

func TestVoidPayment_RestoresInvoice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv := f.salesInvoice(t, "200.00", "")
	if _, err := f.svc.ApproveInvoice(ctx, inv.ID, "tester"); err != nil {
		t.Fatalf("approve invoice: %v", err)
	}
	p, err := f.svc.CreatePayment(ctx, ledger.Payment{
		Type:          ledger.PaymentCustomer,
		Date:          day(2025, 3, 1),
		PartyID:       f.customer.ID,
		BankAccountID: &f.bank.ID,
		Amount:        d("200.00"),
		Allocations: []ledger.Allocation{
			{Document: ledger.DocumentRef{Kind: ledger.DocSalesInvoice, ID: inv.ID}, Amount: d("200.00")},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if _, err := f.svc.ApprovePayment(ctx, p.ID, "tester"); err != nil {
		t.Fatalf("approve payment: %v", err)
	}

	voided, err := f.svc.VoidPayment(ctx, p.ID, day(2025, 3, 2), "tester")
	if err != nil {
		t.Fatalf("void payment: %v", err)
	}
	if voided.Status != ledger.PaymentVoided {
		t.Fatalf("expected voided, got %s", voided.Status)
	}

	restored, err := f.svc.Invoice(ctx, inv.ID)
	if err != nil {
		t.Fatalf("invoice: %v", err)
	}
	if restored.Status != ledger.InvoiceApproved || !restored.AmountPaid.IsZero() {
		t.Fatalf("invoice not restored: %+v", restored)
	}

	// The book bank transaction is gone.
	if _, err := f.store.BankTransactionBySource(ctx, p.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected bank txn removed, got %v", err)
	}
}

// wrappedLookupRepo reports bank transaction lookups as wrapped not-found
// errors, the way a store layered behind middleware would.
type wrappedLookupRepo struct {
	*memory.Store
}

func (r wrappedLookupRepo) BankTransactionBySource(ctx context.Context, sourceID uuid.UUID) (ledger.BankTransaction, error) {
	return ledger.BankTransaction{}, fmt.Errorf("bank transaction for %s: %w", sourceID, errs.ErrNotFound)
}

func TestVoidPayment_WrappedBankTxnNotFound(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv := f.salesInvoice(t, "200.00", "")
	if _, err := f.svc.ApproveInvoice(ctx, inv.ID, "tester"); err != nil {
		t.Fatalf("approve invoice: %v", err)
	}
	p, err := f.svc.CreatePayment(ctx, ledger.Payment{
		Type:          ledger.PaymentCustomer,
		Date:          day(2025, 3, 1),
		PartyID:       f.customer.ID,
		BankAccountID: &f.bank.ID,
		Amount:        d("200.00"),
		Allocations: []ledger.Allocation{
			{Document: ledger.DocumentRef{Kind: ledger.DocSalesInvoice, ID: inv.ID}, Amount: d("200.00")},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if _, err := f.svc.ApprovePayment(ctx, p.ID, "tester"); err != nil {
		t.Fatalf("approve payment: %v", err)
	}

	js := journal.New(f.store, f.store, numbering.New(f.store), fiscal.New(f.store, f.store), fx.New(f.store), "SGD")
	svc := New(wrappedLookupRepo{f.store}, f.store, js, tax.New(f.store), fx.New(f.store), numbering.New(f.store), sysacc, "SGD")

	// A wrapped not-found from the lookup means no book transaction to
	// remove, not a failure.
	voided, err := svc.VoidPayment(ctx, p.ID, day(2025, 3, 2), "tester")
	if err != nil {
		t.Fatalf("void payment: %v", err)
	}
	if voided.Status != ledger.PaymentVoided {
		t.Fatalf("expected voided, got %s", voided.Status)
	}
}

func TestVoidVendorPayment_KeepsCertificateData(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	bill, err := f.svc.CreateInvoice(ctx, ledger.Invoice{
		Kind:      ledger.DocPurchaseInvoice,
		PartyID:   f.vendor.ID,
		IssueDate: day(2025, 2, 10),
		Lines: []ledger.InvoiceLine{
			{AccountID: f.accounts["6000"].ID, Quantity: d("1"), UnitPrice: d("1000.00")},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if _, err := f.svc.ApproveInvoice(ctx, bill.ID, "tester"); err != nil {
		t.Fatalf("approve bill: %v", err)
	}
	p, err := f.svc.CreatePayment(ctx, ledger.Payment{
		Type:          ledger.PaymentVendor,
		Date:          day(2025, 3, 15),
		PartyID:       f.vendor.ID,
		BankAccountID: &f.bank.ID,
		Amount:        d("1000.00"),
		Allocations: []ledger.Allocation{
			{Document: ledger.DocumentRef{Kind: ledger.DocPurchaseInvoice, ID: bill.ID}, Amount: d("1000.00")},
		},
	}, "tester")
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	completed, err := f.svc.ApprovePayment(ctx, p.ID, "tester")
	if err != nil {
		t.Fatalf("approve payment: %v", err)
	}

	if _, err := f.svc.VoidPayment(ctx, p.ID, day(2025, 3, 16), "tester"); err != nil {
		t.Fatalf("void payment: %v", err)
	}
	cert, err := f.store.WHTCertificate(ctx, *completed.WHTCertificateID)
	if err != nil {
		t.Fatalf("certificate: %v", err)
	}
	if cert.Status != ledger.WHTCertVoided {
		t.Fatalf("expected voided, got %s", cert.Status)
	}
	if cert.CertificateNo == "" || cert.VendorID != f.vendor.ID {
		t.Fatalf("certificate identity erased on void: %+v", cert)
	}
	if !cert.GrossAmount.Equal(d("1000.00")) || !cert.WithheldAmount.Equal(d("150.00")) || !cert.NetAmount.Equal(d("850.00")) {
		t.Fatalf("certificate amounts erased on void: %+v", cert)
	}
}

func TestOverAllocationRejected(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	inv := f.salesInvoice(t, "100.00", "")
	if _, err := f.svc.ApproveInvoice(ctx, inv.ID, "tester"); err != nil {
		t.Fatalf("approve invoice: %v", err)
	}
	_, err := f.svc.CreatePayment(ctx, ledger.Payment{
		Type:          ledger.PaymentCustomer,
		Date:          day(2025, 3, 1),
		PartyID:       f.customer.ID,
		BankAccountID: &f.bank.ID,
		Amount:        d("500.00"),
		Allocations: []ledger.Allocation{
			{Document: ledger.DocumentRef{Kind: ledger.DocSalesInvoice, ID: inv.ID}, Amount: d("150.00")},
		},
	}, "tester")
	if !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for over-allocation, got %v", err)
	}
}
