package fiscal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/storage/memory"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedYear(store *memory.Store) (ledger.FiscalYear, []ledger.FiscalPeriod) {
	year := ledger.FiscalYear{ID: uuid.New(), Name: "FY2025", Start: day(2025, 1, 1), End: day(2025, 12, 31)}
	var periods []ledger.FiscalPeriod
	for m := 1; m <= 12; m++ {
		start := day(2025, time.Month(m), 1)
		periods = append(periods, ledger.FiscalPeriod{
			ID:     uuid.New(),
			YearID: year.ID,
			Number: m,
			Name:   start.Format("Jan 2006"),
			Start:  start,
			End:    start.AddDate(0, 1, -1),
			Status: ledger.PeriodOpen,
		})
	}
	store.SeedFiscalYear(year, periods)
	return year, periods
}

func TestRequireOpen(t *testing.T) {
	store := memory.New()
	_, periods := seedYear(store)
	svc := New(store, store)
	ctx := context.Background()

	p, err := svc.RequireOpen(ctx, day(2025, 3, 15))
	if err != nil {
		t.Fatalf("require open: %v", err)
	}
	if p.Number != 3 {
		t.Fatalf("expected period 3, got %d", p.Number)
	}

	// No period covers dates outside the year.
	if _, err := svc.RequireOpen(ctx, day(2024, 12, 31)); !errors.Is(err, errs.ErrClosedPeriod) {
		t.Fatalf("expected ErrClosedPeriod for uncovered date, got %v", err)
	}

	if err := svc.ClosePeriod(ctx, periods[2].ID, "tester"); err != nil {
		t.Fatalf("close period: %v", err)
	}
	if _, err := svc.RequireOpen(ctx, day(2025, 3, 15)); !errors.Is(err, errs.ErrClosedPeriod) {
		t.Fatalf("expected ErrClosedPeriod after close, got %v", err)
	}
}

func TestClosePeriod_Idempotent(t *testing.T) {
	store := memory.New()
	_, periods := seedYear(store)
	svc := New(store, store)
	ctx := context.Background()

	if err := svc.ClosePeriod(ctx, periods[0].ID, "tester"); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := svc.ClosePeriod(ctx, periods[0].ID, "tester"); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
}

func TestCloseYear(t *testing.T) {
	store := memory.New()
	year, _ := seedYear(store)
	svc := New(store, store)
	ctx := context.Background()

	if err := svc.CloseYear(ctx, year.ID, "tester"); err != nil {
		t.Fatalf("close year: %v", err)
	}
	for m := 1; m <= 12; m++ {
		if _, err := svc.RequireOpen(ctx, day(2025, time.Month(m), 10)); !errors.Is(err, errs.ErrClosedPeriod) {
			t.Fatalf("month %d should be closed, got %v", m, err)
		}
	}
}

func TestYearContaining(t *testing.T) {
	store := memory.New()
	year, _ := seedYear(store)
	svc := New(store, store)

	got, err := svc.YearContaining(context.Background(), day(2025, 7, 4))
	if err != nil {
		t.Fatalf("year containing: %v", err)
	}
	if got.ID != year.ID {
		t.Fatalf("expected year %s, got %s", year.ID, got.ID)
	}

	// A date not covered by any year falls back to the latest year.
	got, err = svc.YearContaining(context.Background(), day(2030, 1, 1))
	if err != nil {
		t.Fatalf("year containing fallback: %v", err)
	}
	if got.ID != year.ID {
		t.Fatalf("expected fallback to latest year %s, got %s", year.ID, got.ID)
	}

	if _, err := New(memory.New(), store).YearContaining(context.Background(), day(2025, 1, 1)); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound with no years, got %v", err)
	}
}
