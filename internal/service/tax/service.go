// Package tax computes line-level GST and payment-level withholding tax
// from tax-code rules. Output vs input GST only affects which account the
// posting layer selects, never the arithmetic here.
package tax

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

// Repo provides tax code lookup.
type Repo interface {
	TaxCode(ctx context.Context, code string) (ledger.TaxCode, error)
}

// Service computes tax amounts.
type Service interface {
	// Compute returns the tax portion of base under the named code.
	// Inclusive treats base as already carrying the tax.
	Compute(ctx context.Context, code string, base decimal.Decimal, inclusive bool) (decimal.Decimal, error)
	// Withholding returns the amount withheld from base at rate percent.
	Withholding(base, rate decimal.Decimal) decimal.Decimal
}

type service struct {
	repo Repo
}

func New(repo Repo) Service { return &service{repo: repo} }

func (s *service) Compute(ctx context.Context, code string, base decimal.Decimal, inclusive bool) (decimal.Decimal, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return decimal.Zero, nil
	}
	tc, err := s.repo.TaxCode(ctx, code)
	if err != nil {
		return decimal.Zero, err
	}
	if !tc.Active {
		return decimal.Zero, errs.ErrInvalid
	}
	return Amount(tc.Rate, base, inclusive), nil
}

func (s *service) Withholding(base, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() || base.IsZero() {
		return decimal.Zero
	}
	return base.Mul(rate).Div(hundred).RoundBank(2)
}

// Amount computes the tax on base at a percentage rate.
// Exclusive: base * rate/100. Inclusive: base * rate/(100+rate).
func Amount(rate, base decimal.Decimal, inclusive bool) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	if inclusive {
		return base.Mul(rate).Div(hundred.Add(rate)).RoundBank(2)
	}
	return base.Mul(rate).Div(hundred).RoundBank(2)
}
