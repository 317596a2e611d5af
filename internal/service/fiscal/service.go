// Package fiscal maps dates onto fiscal periods and guards postings against
// closed periods.
package fiscal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

// Repo provides read access to the fiscal calendar.
type Repo interface {
	PeriodForDate(ctx context.Context, d time.Time) (ledger.FiscalPeriod, error)
	FiscalYear(ctx context.Context, id uuid.UUID) (ledger.FiscalYear, error)
	PeriodsByYear(ctx context.Context, yearID uuid.UUID) ([]ledger.FiscalPeriod, error)
	FiscalYears(ctx context.Context) ([]ledger.FiscalYear, error)
}

// Writer persists period status transitions.
type Writer interface {
	UpdatePeriodStatus(ctx context.Context, periodID uuid.UUID, status ledger.PeriodStatus, actor string) error
}

// Service exposes period lookup and closing.
type Service interface {
	PeriodFor(ctx context.Context, d time.Time) (ledger.FiscalPeriod, error)
	// RequireOpen resolves the period covering d and fails with
	// ErrClosedPeriod unless it is open.
	RequireOpen(ctx context.Context, d time.Time) (ledger.FiscalPeriod, error)
	ClosePeriod(ctx context.Context, periodID uuid.UUID, actor string) error
	CloseYear(ctx context.Context, yearID uuid.UUID, actor string) error
	YearContaining(ctx context.Context, d time.Time) (ledger.FiscalYear, error)
}

type service struct {
	repo   Repo
	writer Writer
}

func New(repo Repo, writer Writer) Service { return &service{repo: repo, writer: writer} }

func (s *service) PeriodFor(ctx context.Context, d time.Time) (ledger.FiscalPeriod, error) {
	return s.repo.PeriodForDate(ctx, d)
}

func (s *service) RequireOpen(ctx context.Context, d time.Time) (ledger.FiscalPeriod, error) {
	p, err := s.repo.PeriodForDate(ctx, d)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return ledger.FiscalPeriod{}, fmt.Errorf("no fiscal period covers %s: %w", d.Format("2006-01-02"), errs.ErrClosedPeriod)
		}
		return ledger.FiscalPeriod{}, err
	}
	if p.Status != ledger.PeriodOpen {
		return ledger.FiscalPeriod{}, fmt.Errorf("period %s is %s: %w", p.Name, p.Status, errs.ErrClosedPeriod)
	}
	return p, nil
}

// ClosePeriod transitions a period to closed. Idempotent: closing an already
// closed period is a no-op.
func (s *service) ClosePeriod(ctx context.Context, periodID uuid.UUID, actor string) error {
	if periodID == uuid.Nil {
		return errs.ErrInvalid
	}
	return s.writer.UpdatePeriodStatus(ctx, periodID, ledger.PeriodClosed, actor)
}

// CloseYear closes every period of the year. The store runs the cascade in
// one transaction.
func (s *service) CloseYear(ctx context.Context, yearID uuid.UUID, actor string) error {
	periods, err := s.repo.PeriodsByYear(ctx, yearID)
	if err != nil {
		return err
	}
	for _, p := range periods {
		if p.Status != ledger.PeriodOpen {
			continue
		}
		if err := s.writer.UpdatePeriodStatus(ctx, p.ID, ledger.PeriodClosed, actor); err != nil {
			return err
		}
	}
	return nil
}

// YearContaining picks the fiscal year covering d, preferring an exact
// match, else the latest year. Used by dashboard YTD selection.
func (s *service) YearContaining(ctx context.Context, d time.Time) (ledger.FiscalYear, error) {
	years, err := s.repo.FiscalYears(ctx)
	if err != nil {
		return ledger.FiscalYear{}, err
	}
	if len(years) == 0 {
		return ledger.FiscalYear{}, errs.ErrNotFound
	}
	var latest ledger.FiscalYear
	for _, y := range years {
		if y.Contains(d) {
			return y, nil
		}
		if latest.ID == uuid.Nil || y.End.After(latest.End) {
			latest = y
		}
	}
	return latest, nil
}
