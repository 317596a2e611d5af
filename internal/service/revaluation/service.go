// Package revaluation books unrealized FX gains and losses on open
// foreign-currency monetary balances: receivables, payables, and
// foreign-currency bank accounts. Each run posts one adjustment entry
// as of the valuation date and a reversing entry dated the next day,
// so the adjustment never leaks into later periods.
package revaluation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/fx"
	"github.com/gobooks/ledger/internal/service/journal"
)

// Repo defines read operations for collecting revaluable balances.
type Repo interface {
	OpenInvoices(ctx context.Context, kind ledger.DocumentKind) ([]ledger.Invoice, error)
	Party(ctx context.Context, id uuid.UUID) (ledger.Party, error)
	ListBankAccounts(ctx context.Context) ([]ledger.BankAccount, error)
	AccountByCode(ctx context.Context, code string) (ledger.Account, error)
}

// Writer persists the adjustment and its reversal in one transaction.
type Writer interface {
	SaveRevaluation(ctx context.Context, adjustment, reversal ledger.JournalEntry) error
}

// Accounts names the configured GL codes the adjustment posts to.
type Accounts struct {
	FXGainCode string
	FXLossCode string
	// ARCode/APCode are fallback control accounts for parties without an
	// explicit override.
	ARCode string
	APCode string
}

// Result reports what a run produced. EntryID is nil when every delta
// rounded to zero and nothing was posted.
type Result struct {
	AsOf            time.Time
	EntryID         *uuid.UUID
	ReversalEntryID *uuid.UUID
	NetGain         decimal.Decimal
	Items           []Item
}

// Item is one revalued balance.
type Item struct {
	AccountID uuid.UUID
	Currency  string
	Foreign   decimal.Decimal
	Booked    decimal.Decimal
	Revalued  decimal.Decimal
	Delta     decimal.Decimal
}

// Service runs unrealized FX revaluation.
type Service interface {
	RevalueUnrealized(ctx context.Context, asOf time.Time, actor string) (Result, error)
}

type service struct {
	repo     Repo
	writer   Writer
	journal  journal.Service
	rates    fx.Service
	base     string
	accounts Accounts
}

func New(repo Repo, writer Writer, js journal.Service, rates fx.Service, base string, accounts Accounts) Service {
	return &service{repo: repo, writer: writer, journal: js, rates: rates, base: base, accounts: accounts}
}

func (s *service) RevalueUnrealized(ctx context.Context, asOf time.Time, actor string) (Result, error) {
	asOf = ledger.DateOnly(asOf)
	res := Result{AsOf: asOf, NetGain: decimal.Zero}

	items, err := s.collect(ctx, asOf)
	if err != nil {
		return Result{}, err
	}

	// A delta is worth booking only if it survives 2dp rounding.
	var lines []ledger.JournalLine
	net := decimal.Zero
	for _, it := range items {
		if it.Delta.IsZero() {
			continue
		}
		res.Items = append(res.Items, it)
		net = net.Add(it.Delta)
		lines = append(lines, it.adjustmentLine(s.base))
	}
	res.NetGain = net
	if len(lines) == 0 {
		return res, nil
	}
	lines = append(lines, s.fxLine(net)...)
	if len(lines) < 2 {
		return Result{}, errs.ErrInternal
	}
	gainAcc, lossAcc, err := s.fxAccounts(ctx)
	if err != nil {
		return Result{}, err
	}
	// Replace the placeholder FX line account now that codes resolved.
	for i := range lines {
		if lines[i].AccountID != uuid.Nil {
			continue
		}
		if lines[i].Credit.IsPositive() {
			lines[i].AccountID = gainAcc.ID
		} else {
			lines[i].AccountID = lossAcc.ID
		}
	}

	adjustment, err := s.journal.BuildPosted(ctx, ledger.JournalEntry{
		Type:        ledger.JournalGeneral,
		Date:        asOf,
		Description: fmt.Sprintf("Unrealized FX revaluation as of %s", asOf.Format("2006-01-02")),
		SourceType:  ledger.SourceRevaluation,
		Lines:       lines,
	}, actor)
	if err != nil {
		return Result{}, err
	}

	reversal, err := s.journal.BuildPosted(ctx, ledger.JournalEntry{
		Type:        ledger.JournalGeneral,
		Date:        asOf.AddDate(0, 0, 1),
		Description: fmt.Sprintf("Reversal of unrealized FX revaluation %s", asOf.Format("2006-01-02")),
		SourceType:  ledger.SourceRevaluation,
		Lines:       flipLines(lines),
	}, actor)
	if err != nil {
		return Result{}, err
	}
	adjustment.Reversed = true
	adjustment.ReversingEntryID = &reversal.ID

	if err := s.writer.SaveRevaluation(ctx, adjustment, reversal); err != nil {
		return Result{}, err
	}
	res.EntryID = &adjustment.ID
	res.ReversalEntryID = &reversal.ID
	return res, nil
}

// adjustmentLine books the delta against the monetary account in base
// currency. Delta sign already carries the net-worth direction, so a
// positive delta debits the account and a negative one credits it.
func (it Item) adjustmentLine(base string) ledger.JournalLine {
	l := ledger.JournalLine{
		AccountID: it.AccountID,
		Currency:  base,
		Rate:      decimal.NewFromInt(1),
		Debit:     decimal.Zero,
		Credit:    decimal.Zero,
	}
	if it.Delta.IsPositive() {
		l.Debit = it.Delta
	} else {
		l.Credit = it.Delta.Neg()
	}
	return l
}

// fxLine books the net gain or loss. AccountID stays nil here and is
// filled in once the configured codes are resolved.
func (s *service) fxLine(net decimal.Decimal) []ledger.JournalLine {
	if net.IsZero() {
		return nil
	}
	l := ledger.JournalLine{
		Currency: s.base,
		Rate:     decimal.NewFromInt(1),
		Debit:    decimal.Zero,
		Credit:   decimal.Zero,
	}
	if net.IsPositive() {
		l.Credit = net
	} else {
		l.Debit = net.Neg()
	}
	return []ledger.JournalLine{l}
}

func (s *service) fxAccounts(ctx context.Context) (gain, loss ledger.Account, err error) {
	gain, err = s.repo.AccountByCode(ctx, s.accounts.FXGainCode)
	if err != nil {
		return ledger.Account{}, ledger.Account{}, fmt.Errorf("fx gain account %s: %w", s.accounts.FXGainCode, err)
	}
	loss, err = s.repo.AccountByCode(ctx, s.accounts.FXLossCode)
	if err != nil {
		return ledger.Account{}, ledger.Account{}, fmt.Errorf("fx loss account %s: %w", s.accounts.FXLossCode, err)
	}
	return gain, loss, nil
}

// collect gathers open foreign-currency balances grouped by monetary GL
// account: AR and AP control accounts per invoice currency, and bank
// accounts held in a foreign currency.
func (s *service) collect(ctx context.Context, asOf time.Time) ([]Item, error) {
	type key struct {
		account  uuid.UUID
		currency string
	}
	type agg struct {
		foreign decimal.Decimal
		booked  decimal.Decimal
	}
	groups := map[key]*agg{}
	order := []key{}
	add := func(account uuid.UUID, currency string, foreign, booked decimal.Decimal) {
		k := key{account, currency}
		g, ok := groups[k]
		if !ok {
			g = &agg{foreign: decimal.Zero, booked: decimal.Zero}
			groups[k] = g
			order = append(order, k)
		}
		g.foreign = g.foreign.Add(foreign)
		g.booked = g.booked.Add(booked)
	}

	for _, kind := range []ledger.DocumentKind{ledger.DocSalesInvoice, ledger.DocPurchaseInvoice} {
		invoices, err := s.repo.OpenInvoices(ctx, kind)
		if err != nil {
			return nil, err
		}
		for _, inv := range invoices {
			if inv.Currency == s.base || ledger.DateOnly(inv.IssueDate).After(asOf) {
				continue
			}
			outstanding := inv.Outstanding()
			if !outstanding.IsPositive() {
				continue
			}
			control, err := s.controlFor(ctx, inv)
			if err != nil {
				return nil, err
			}
			booked := outstanding.Mul(inv.Rate).RoundBank(2)
			if kind == ledger.DocPurchaseInvoice {
				// Payables carry the opposite net-worth sign.
				add(control, inv.Currency, outstanding.Neg(), booked.Neg())
			} else {
				add(control, inv.Currency, outstanding, booked)
			}
		}
	}

	banks, err := s.repo.ListBankAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range banks {
		if !b.Active || b.Currency == s.base || b.CurrentBalance.IsZero() {
			continue
		}
		booked, err := s.journal.AccountBalance(ctx, b.GLAccountID, asOf)
		if err != nil {
			return nil, err
		}
		add(b.GLAccountID, b.Currency, b.CurrentBalance, booked)
	}

	var items []Item
	for _, k := range order {
		g := groups[k]
		rate, err := s.rates.Rate(ctx, k.currency, s.base, asOf)
		if err != nil {
			return nil, err
		}
		revalued := g.foreign.Mul(rate).RoundBank(2)
		delta := revalued.Sub(g.booked)
		items = append(items, Item{
			AccountID: k.account,
			Currency:  k.currency,
			Foreign:   g.foreign,
			Booked:    g.booked,
			Revalued:  revalued,
			Delta:     delta,
		})
	}
	return items, nil
}

func (s *service) controlFor(ctx context.Context, inv ledger.Invoice) (uuid.UUID, error) {
	party, err := s.repo.Party(ctx, inv.PartyID)
	if err != nil {
		return uuid.Nil, err
	}
	var override *uuid.UUID
	var fallback string
	if inv.Kind == ledger.DocSalesInvoice {
		override, fallback = party.ReceivablesAccountID, s.accounts.ARCode
	} else {
		override, fallback = party.PayablesAccountID, s.accounts.APCode
	}
	if override != nil {
		return *override, nil
	}
	acc, err := s.repo.AccountByCode(ctx, fallback)
	if err != nil {
		return uuid.Nil, err
	}
	return acc.ID, nil
}

func flipLines(lines []ledger.JournalLine) []ledger.JournalLine {
	out := make([]ledger.JournalLine, len(lines))
	for i, l := range lines {
		out[i] = ledger.JournalLine{
			AccountID: l.AccountID,
			Debit:     l.Credit,
			Credit:    l.Debit,
			Currency:  l.Currency,
			Rate:      l.Rate,
		}
	}
	return out
}
