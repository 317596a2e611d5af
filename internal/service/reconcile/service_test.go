package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/numbering"
	"github.com/gobooks/ledger/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store *memory.Store
	svc   Service
	bank  ledger.BankAccount
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	store.SeedSequence(ledger.Sequence{Name: ledger.SeqReconciliation, Prefix: "REC-", NextValue: 1, IncrementBy: 1, MinValue: 1, Pad: 4})

	gl := ledger.Account{ID: uuid.New(), Code: "1010", Name: "Bank", Type: ledger.AccountTypeAsset, IsBank: true, Active: true}
	store.SeedAccount(gl)
	bank := ledger.BankAccount{ID: uuid.New(), Name: "Main", Currency: "SGD", GLAccountID: gl.ID, Active: true}
	store.SeedBankAccount(bank)

	return fixture{store: store, svc: New(store, store, numbering.New(store)), bank: bank}
}

func (f fixture) txn(t *testing.T, date time.Time, amount string, fromStatement bool) ledger.BankTransaction {
	t.Helper()
	typ := ledger.BankTxnDeposit
	if amount[0] == '-' {
		typ = ledger.BankTxnWithdrawal
	}
	txn, err := f.store.CreateBankTransaction(context.Background(), ledger.BankTransaction{
		ID:            uuid.New(),
		BankAccountID: f.bank.ID,
		Date:          date,
		Type:          typ,
		Amount:        d(amount),
		FromStatement: fromStatement,
	})
	if err != nil {
		t.Fatalf("txn: %v", err)
	}
	return txn
}

func TestCompute(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stmt1 := f.txn(t, day(2025, 3, 5), "1000.00", true)
	stmt2 := f.txn(t, day(2025, 3, 20), "-250.00", true)
	book1 := f.txn(t, day(2025, 3, 5), "1000.00", false)

	sum, err := f.svc.Compute(ctx, f.bank.ID, day(2025, 3, 31), d("750.00"),
		[]uuid.UUID{stmt1.ID, stmt2.ID}, []uuid.UUID{book1.ID})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !sum.OpeningBalance.IsZero() {
		t.Fatalf("expected zero opening, got %s", sum.OpeningBalance)
	}
	if !sum.ClearedTotal.Equal(d("750.00")) {
		t.Fatalf("cleared total wrong: %s", sum.ClearedTotal)
	}
	if !sum.Difference.IsZero() {
		t.Fatalf("expected zero difference, got %s", sum.Difference)
	}
	// Book side only cleared the deposit.
	if !sum.Reconciliation.CalculatedBookBalance.Equal(d("1000.00")) {
		t.Fatalf("book balance wrong: %s", sum.Reconciliation.CalculatedBookBalance)
	}
}

func TestCompute_FirstReconciliationUsesAccountOpening(t *testing.T) {
	store := memory.New()
	store.SeedSequence(ledger.Sequence{Name: ledger.SeqReconciliation, Prefix: "REC-", NextValue: 1, IncrementBy: 1, MinValue: 1, Pad: 4})

	gl := ledger.Account{
		ID: uuid.New(), Code: "1010", Name: "Bank", Type: ledger.AccountTypeAsset,
		IsBank: true, OpeningBalance: d("500.00"), OpeningDate: day(2025, 1, 1), Active: true,
	}
	store.SeedAccount(gl)
	bank := ledger.BankAccount{ID: uuid.New(), Name: "Main", Currency: "SGD", GLAccountID: gl.ID, Active: true}
	store.SeedBankAccount(bank)
	svc := New(store, store, numbering.New(store))

	// No prior reconciliation and no cleared activity: the statement should
	// tie out against the account opening.
	sum, err := svc.Compute(context.Background(), bank.ID, day(2025, 1, 31), d("500.00"), nil, nil)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if !sum.OpeningBalance.Equal(d("500.00")) {
		t.Fatalf("opening should be the account opening 500.00, got %s", sum.OpeningBalance)
	}
	if !sum.Difference.IsZero() {
		t.Fatalf("expected zero difference, got %s", sum.Difference)
	}

	if _, err := svc.Finalize(context.Background(), bank.ID, day(2025, 1, 31), d("500.00"), nil, nil, "tester"); err != nil {
		t.Fatalf("finalize: %v", err)
	}
}

func TestFinalize_LocksTransactionsAndRollsWatermark(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stmt := f.txn(t, day(2025, 3, 5), "500.00", true)
	book := f.txn(t, day(2025, 3, 5), "500.00", false)

	sum, err := f.svc.Finalize(ctx, f.bank.ID, day(2025, 3, 31), d("500.00"),
		[]uuid.UUID{stmt.ID}, []uuid.UUID{book.ID}, "tester")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if sum.Reconciliation.Status != ledger.ReconciliationFinalized {
		t.Fatalf("expected finalized, got %s", sum.Reconciliation.Status)
	}
	if sum.Reconciliation.Number == "" {
		t.Fatal("number not assigned")
	}

	left, err := f.svc.Candidates(ctx, f.bank.ID, day(2025, 12, 31))
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected all candidates locked, %d remain", len(left))
	}

	bank, err := f.store.BankAccount(ctx, f.bank.ID)
	if err != nil {
		t.Fatalf("bank: %v", err)
	}
	if bank.LastReconciledDate == nil || !bank.LastReconciledDate.Equal(day(2025, 3, 31)) {
		t.Fatalf("watermark date wrong: %v", bank.LastReconciledDate)
	}
	if !bank.LastReconciledBalance.Equal(d("500.00")) {
		t.Fatalf("watermark balance wrong: %s", bank.LastReconciledBalance)
	}

	// The next period opens at the prior statement's ending balance.
	next := f.txn(t, day(2025, 4, 10), "100.00", true)
	sum2, err := f.svc.Compute(ctx, f.bank.ID, day(2025, 4, 30), d("600.00"),
		[]uuid.UUID{next.ID}, nil)
	if err != nil {
		t.Fatalf("second compute: %v", err)
	}
	if !sum2.OpeningBalance.Equal(d("500.00")) {
		t.Fatalf("opening should carry forward, got %s", sum2.OpeningBalance)
	}
	if !sum2.Difference.IsZero() {
		t.Fatalf("expected zero difference, got %s", sum2.Difference)
	}
}

func TestFinalize_NonZeroDifferenceRejected(t *testing.T) {
	f := setup(t)

	stmt := f.txn(t, day(2025, 3, 5), "500.00", true)
	_, err := f.svc.Finalize(context.Background(), f.bank.ID, day(2025, 3, 31), d("499.00"),
		[]uuid.UUID{stmt.ID}, nil, "tester")
	if !errors.Is(err, errs.ErrImbalance) {
		t.Fatalf("expected ErrImbalance, got %v", err)
	}
}

func TestFinalize_AlreadyReconciledCandidate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stmt := f.txn(t, day(2025, 3, 5), "500.00", true)
	if _, err := f.svc.Finalize(ctx, f.bank.ID, day(2025, 3, 31), d("500.00"),
		[]uuid.UUID{stmt.ID}, nil, "tester"); err != nil {
		t.Fatalf("first finalize: %v", err)
	}

	_, err := f.svc.Finalize(ctx, f.bank.ID, day(2025, 4, 30), d("1000.00"),
		[]uuid.UUID{stmt.ID}, nil, "tester")
	if !errors.Is(err, errs.ErrAlreadyReconciled) {
		t.Fatalf("expected ErrAlreadyReconciled, got %v", err)
	}
}

func TestSaveDraft_AllowsNonZeroDifference(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stmt := f.txn(t, day(2025, 3, 5), "500.00", true)
	sum, err := f.svc.SaveDraft(ctx, f.bank.ID, day(2025, 3, 31), d("480.00"),
		[]uuid.UUID{stmt.ID}, nil, "tester")
	if err != nil {
		t.Fatalf("save draft: %v", err)
	}
	if !sum.Difference.Equal(d("-20.00")) {
		t.Fatalf("difference wrong: %s", sum.Difference)
	}
	if sum.Reconciliation.Status != ledger.ReconciliationDraft {
		t.Fatalf("expected draft, got %s", sum.Reconciliation.Status)
	}

	// Draft does not lock the candidate.
	left, err := f.svc.Candidates(ctx, f.bank.ID, day(2025, 12, 31))
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(left) != 1 {
		t.Fatalf("expected candidate still open, got %d", len(left))
	}
}

func TestCompute_WrongSideRejected(t *testing.T) {
	f := setup(t)

	book := f.txn(t, day(2025, 3, 5), "500.00", false)
	_, err := f.svc.Compute(context.Background(), f.bank.ID, day(2025, 3, 31), d("500.00"),
		[]uuid.UUID{book.ID}, nil)
	if !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestDelete_UnlocksTransactions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	stmt := f.txn(t, day(2025, 3, 5), "500.00", true)
	sum, err := f.svc.Finalize(ctx, f.bank.ID, day(2025, 3, 31), d("500.00"),
		[]uuid.UUID{stmt.ID}, nil, "tester")
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if err := f.svc.Delete(ctx, sum.Reconciliation.ID, "tester"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	left, err := f.svc.Candidates(ctx, f.bank.ID, day(2025, 12, 31))
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(left) != 1 {
		t.Fatalf("expected candidate released, got %d", len(left))
	}
}
