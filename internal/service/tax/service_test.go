package tax

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCompute(t *testing.T) {
	store := memory.New()
	store.SeedTaxCode(ledger.TaxCode{Code: "SR", Name: "Standard-Rated", Kind: ledger.TaxGSTOutput, Rate: d("9.00"), Active: true})
	store.SeedTaxCode(ledger.TaxCode{Code: "ZR", Name: "Zero-Rated", Kind: ledger.TaxGSTOutput, Rate: decimal.Zero, Active: true})
	store.SeedTaxCode(ledger.TaxCode{Code: "OLD", Name: "Retired", Kind: ledger.TaxGSTOutput, Rate: d("7.00"), Active: false})
	svc := New(store)
	ctx := context.Background()

	// Exclusive: 9% on top of 100.
	got, err := svc.Compute(ctx, "SR", d("100.00"), false)
	if err != nil || !got.Equal(d("9.00")) {
		t.Fatalf("exclusive: %v %s", err, got)
	}

	// Inclusive: 109 carries 9 of tax.
	got, err = svc.Compute(ctx, "SR", d("109.00"), true)
	if err != nil || !got.Equal(d("9.00")) {
		t.Fatalf("inclusive: %v %s", err, got)
	}

	// Empty code means no tax, without a lookup.
	got, err = svc.Compute(ctx, "", d("100.00"), false)
	if err != nil || !got.IsZero() {
		t.Fatalf("empty code: %v %s", err, got)
	}

	// Zero-rated computes to zero.
	got, err = svc.Compute(ctx, "ZR", d("100.00"), false)
	if err != nil || !got.IsZero() {
		t.Fatalf("zero-rated: %v %s", err, got)
	}

	if _, err := svc.Compute(ctx, "OLD", d("100.00"), false); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for inactive code, got %v", err)
	}
	if _, err := svc.Compute(ctx, "NOPE", d("100.00"), false); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown code, got %v", err)
	}
}

func TestWithholding(t *testing.T) {
	svc := New(memory.New())

	got := svc.Withholding(d("1000.00"), d("15.00"))
	if !got.Equal(d("150.00")) {
		t.Fatalf("expected 150.00, got %s", got)
	}
	if got := svc.Withholding(d("1000.00"), decimal.Zero); !got.IsZero() {
		t.Fatalf("zero rate should withhold nothing, got %s", got)
	}
	// 333.33 * 5% = 16.6665, rounded at the cent.
	got = svc.Withholding(d("333.33"), d("5.00"))
	if !got.Equal(d("16.67")) {
		t.Fatalf("expected 16.67, got %s", got)
	}
}
