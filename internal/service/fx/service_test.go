package fx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/storage/memory"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRate(t *testing.T) {
	store := memory.New()
	jan := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	store.SeedRate(ledger.ExchangeRate{From: "USD", To: "SGD", Date: jan, Rate: d("1.350000")})
	store.SeedRate(ledger.ExchangeRate{From: "USD", To: "SGD", Date: feb, Rate: d("1.340000")})
	svc := New(store)
	ctx := context.Background()

	// Identical currencies never hit the store.
	one, err := svc.Rate(ctx, "sgd", "SGD", jan)
	if err != nil || !one.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("identity rate: %v %s", err, one)
	}

	// Exact date, then fallback to the most recent prior quote.
	r, err := svc.Rate(ctx, "USD", "SGD", feb)
	if err != nil || !r.Equal(d("1.34")) {
		t.Fatalf("exact rate: %v %s", err, r)
	}
	r, err = svc.Rate(ctx, "USD", "SGD", time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC))
	if err != nil || !r.Equal(d("1.35")) {
		t.Fatalf("fallback rate: %v %s", err, r)
	}

	// Quotes never resolve forward in time.
	if _, err := svc.Rate(ctx, "USD", "SGD", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); !errors.Is(err, errs.ErrMissingRate) {
		t.Fatalf("expected ErrMissingRate before first quote, got %v", err)
	}
	if _, err := svc.Rate(ctx, "EUR", "SGD", feb); !errors.Is(err, errs.ErrMissingRate) {
		t.Fatalf("expected ErrMissingRate for unknown pair, got %v", err)
	}
}

func TestConvert_HalfEven(t *testing.T) {
	svc := New(memory.New())

	// 2.345 rounds to 2.34 under banker's rounding, not 2.35.
	got := svc.Convert(d("2.345"), decimal.NewFromInt(1))
	if !got.Equal(d("2.34")) {
		t.Fatalf("expected 2.34, got %s", got)
	}
	got = svc.Convert(d("100.00"), d("1.352500"))
	if !got.Equal(d("135.25")) {
		t.Fatalf("expected 135.25, got %s", got)
	}
}

func TestRevaluationDelta(t *testing.T) {
	// 1000 USD booked at 1350.00 SGD, revalued at 1.30 -> loss of 50.
	delta := RevaluationDelta(d("1000"), d("1350.00"), d("1.300000"))
	if !delta.Equal(d("-50.00")) {
		t.Fatalf("expected -50.00, got %s", delta)
	}
}
