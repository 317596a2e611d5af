// Package fx resolves exchange rates and converts amounts into the
// reporting currency. Conversion rounds half-even at 2dp per line before
// summation so totals never drift from their components.
package fx

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

// Repo provides read access to quoted rates.
type Repo interface {
	// RateOnOrBefore returns the exact (from,to,date) rate, or the most
	// recent one on or before date. errs.ErrNotFound when none exists.
	RateOnOrBefore(ctx context.Context, from, to string, d time.Time) (ledger.ExchangeRate, error)
}

// Service resolves rates and converts amounts.
type Service interface {
	// Rate resolves from->to at d. Identical currencies resolve to 1
	// without a lookup; a failed lookup is ErrMissingRate.
	Rate(ctx context.Context, from, to string, d time.Time) (decimal.Decimal, error)
	// Convert applies rate to amount with half-even rounding at 2dp.
	Convert(amount, rate decimal.Decimal) decimal.Decimal
}

type service struct {
	repo Repo
}

func New(repo Repo) Service { return &service{repo: repo} }

func (s *service) Rate(ctx context.Context, from, to string, d time.Time) (decimal.Decimal, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == "" || to == "" {
		return decimal.Zero, errs.ErrInvalid
	}
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	r, err := s.repo.RateOnOrBefore(ctx, from, to, d)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("no rate %s->%s on or before %s: %w", from, to, d.Format("2006-01-02"), errs.ErrMissingRate)
		}
		return decimal.Zero, err
	}
	return r.Rate.Round(6), nil
}

func (s *service) Convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).RoundBank(2)
}

// RevaluationDelta returns the unrealized gain(+)/loss(-) of revaluing a
// foreign-currency balance from its booked base value to the as-of rate.
func RevaluationDelta(foreignBalance, bookedBase, asOfRate decimal.Decimal) decimal.Decimal {
	return foreignBalance.Mul(asOfRate).RoundBank(2).Sub(bookedBase)
}
