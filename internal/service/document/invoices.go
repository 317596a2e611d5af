package document

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

var hundred = decimal.NewFromInt(100)

// CreateInvoice computes line and header totals, assigns a document number,
// and persists the invoice as Draft.
func (s *service) CreateInvoice(ctx context.Context, inv ledger.Invoice, actor string) (ledger.Invoice, error) {
	if inv.Kind != ledger.DocSalesInvoice && inv.Kind != ledger.DocPurchaseInvoice {
		return ledger.Invoice{}, fmt.Errorf("invoice kind %q: %w", inv.Kind, errs.ErrInvalid)
	}
	if inv.PartyID == uuid.Nil || len(inv.Lines) == 0 || inv.IssueDate.IsZero() {
		return ledger.Invoice{}, fmt.Errorf("party, issue date and lines are required: %w", errs.ErrInvalid)
	}
	party, err := s.repo.Party(ctx, inv.PartyID)
	if err != nil {
		return ledger.Invoice{}, err
	}
	if inv.Kind == ledger.DocSalesInvoice && party.Kind != ledger.PartyCustomer {
		return ledger.Invoice{}, fmt.Errorf("sales invoice requires a customer: %w", errs.ErrInvalid)
	}
	if inv.Kind == ledger.DocPurchaseInvoice && party.Kind != ledger.PartyVendor {
		return ledger.Invoice{}, fmt.Errorf("purchase invoice requires a vendor: %w", errs.ErrInvalid)
	}

	if inv.Currency == "" {
		inv.Currency = s.base
	}
	inv.Currency = strings.ToUpper(inv.Currency)
	if inv.Rate.IsZero() {
		rate, err := s.rates.Rate(ctx, inv.Currency, s.base, inv.IssueDate)
		if err != nil {
			return ledger.Invoice{}, err
		}
		inv.Rate = rate
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.IssueDate.AddDate(0, 1, 0)
	}

	subtotal, taxTotal, total := decimal.Zero, decimal.Zero, decimal.Zero
	for i := range inv.Lines {
		ln := &inv.Lines[i]
		if ln.AccountID == uuid.Nil {
			return ledger.Invoice{}, fmt.Errorf("line[%d]: account is required: %w", i, errs.ErrInvalid)
		}
		if ln.Quantity.Sign() <= 0 || ln.UnitPrice.IsNegative() {
			return ledger.Invoice{}, fmt.Errorf("line[%d]: quantity/unit price invalid: %w", i, errs.ErrInvalid)
		}
		gross := ln.Quantity.Mul(ln.UnitPrice)
		if ln.DiscountPct.IsPositive() {
			gross = gross.Mul(hundred.Sub(ln.DiscountPct)).Div(hundred)
		}
		gross = gross.RoundBank(2)
		taxAmt, err := s.taxes.Compute(ctx, ln.TaxCode, gross, ln.TaxInclusive)
		if err != nil {
			return ledger.Invoice{}, err
		}
		if ln.TaxInclusive {
			ln.Subtotal = gross.Sub(taxAmt)
			ln.Total = gross
		} else {
			ln.Subtotal = gross
			ln.Total = gross.Add(taxAmt)
		}
		ln.TaxAmount = taxAmt
		ln.LineNo = i + 1
		ln.ID = uuid.New()
		subtotal = subtotal.Add(ln.Subtotal)
		taxTotal = taxTotal.Add(ln.TaxAmount)
		total = total.Add(ln.Total)
	}

	seq := ledger.SeqSalesInvoice
	if inv.Kind == ledger.DocPurchaseInvoice {
		seq = ledger.SeqPurchaseInvoice
	}
	number, err := s.numbers.Next(ctx, seq)
	if err != nil {
		return ledger.Invoice{}, err
	}

	inv.ID = uuid.New()
	for i := range inv.Lines {
		inv.Lines[i].InvoiceID = inv.ID
	}
	inv.Number = number
	inv.Subtotal = subtotal
	inv.TaxAmount = taxTotal
	inv.Total = total
	inv.AmountPaid = decimal.Zero
	inv.Status = ledger.InvoiceDraft
	inv.JournalEntryID = nil
	inv.Audit.Touch(actor, s.now())
	return s.writer.CreateInvoice(ctx, inv)
}

// ApproveInvoice posts the invoice's journal entry and transitions it to
// Approved. Approving an already approved invoice is a state conflict.
func (s *service) ApproveInvoice(ctx context.Context, id uuid.UUID, actor string) (ledger.Invoice, error) {
	inv, err := s.repo.Invoice(ctx, id)
	if err != nil {
		return ledger.Invoice{}, err
	}
	if inv.Status != ledger.InvoiceDraft {
		return ledger.Invoice{}, fmt.Errorf("invoice %s is %s: %w", inv.Number, inv.Status, errs.ErrStateConflict)
	}
	party, err := s.repo.Party(ctx, inv.PartyID)
	if err != nil {
		return ledger.Invoice{}, err
	}

	var lines []ledger.JournalLine
	var jtype ledger.JournalType
	var source ledger.SourceType
	switch inv.Kind {
	case ledger.DocSalesInvoice:
		jtype, source = ledger.JournalSales, ledger.SourceSalesInvoice
		lines, err = s.salesInvoiceLines(ctx, inv, party)
	case ledger.DocPurchaseInvoice:
		jtype, source = ledger.JournalPurchase, ledger.SourcePurchaseInvoice
		lines, err = s.purchaseInvoiceLines(ctx, inv, party)
	default:
		return ledger.Invoice{}, errs.ErrInvalid
	}
	if err != nil {
		return ledger.Invoice{}, err
	}
	lines, err = s.balanceLines(ctx, lines)
	if err != nil {
		return ledger.Invoice{}, err
	}

	entry, err := s.journal.BuildPosted(ctx, ledger.JournalEntry{
		Type:        jtype,
		Date:        inv.IssueDate,
		Description: string(inv.Kind) + " " + inv.Number + " (" + party.Name + ")",
		SourceType:  source,
		SourceID:    &inv.ID,
		Lines:       lines,
	}, actor)
	if err != nil {
		return ledger.Invoice{}, err
	}

	inv.Status = ledger.InvoiceApproved
	inv.JournalEntryID = &entry.ID
	inv.Audit.Touch(actor, s.now())
	if err := s.writer.SaveInvoiceApproval(ctx, inv, entry); err != nil {
		return ledger.Invoice{}, err
	}
	return inv, nil
}

// salesInvoiceLines maps an approved sales invoice:
// Dr AR control for the total, Cr revenue per line subtotal, Cr GST output
// grouped by tax code.
func (s *service) salesInvoiceLines(ctx context.Context, inv ledger.Invoice, party ledger.Party) ([]ledger.JournalLine, error) {
	ar, err := s.controlAccount(ctx, party.ReceivablesAccountID, s.sysacc.DefaultAR)
	if err != nil {
		return nil, err
	}
	lines := []ledger.JournalLine{{
		AccountID: ar.ID, Debit: inv.Total, Currency: inv.Currency, Rate: inv.Rate,
	}}
	for _, ln := range inv.Lines {
		lines = append(lines, ledger.JournalLine{
			AccountID: ln.AccountID, Credit: ln.Subtotal, Currency: inv.Currency, Rate: inv.Rate,
			TaxCode: ln.TaxCode, TaxAmount: ln.TaxAmount,
		})
	}
	gstLines, err := s.taxLines(ctx, inv, s.sysacc.GSTOutput, ledger.SideCredit)
	if err != nil {
		return nil, err
	}
	return append(lines, gstLines...), nil
}

// purchaseInvoiceLines maps an approved purchase invoice:
// Dr expense/inventory per line subtotal, Dr GST input, Cr AP control total.
func (s *service) purchaseInvoiceLines(ctx context.Context, inv ledger.Invoice, party ledger.Party) ([]ledger.JournalLine, error) {
	ap, err := s.controlAccount(ctx, party.PayablesAccountID, s.sysacc.DefaultAP)
	if err != nil {
		return nil, err
	}
	var lines []ledger.JournalLine
	for _, ln := range inv.Lines {
		lines = append(lines, ledger.JournalLine{
			AccountID: ln.AccountID, Debit: ln.Subtotal, Currency: inv.Currency, Rate: inv.Rate,
			TaxCode: ln.TaxCode, TaxAmount: ln.TaxAmount,
		})
	}
	gstLines, err := s.taxLines(ctx, inv, s.sysacc.GSTInput, ledger.SideDebit)
	if err != nil {
		return nil, err
	}
	lines = append(lines, gstLines...)
	lines = append(lines, ledger.JournalLine{
		AccountID: ap.ID, Credit: inv.Total, Currency: inv.Currency, Rate: inv.Rate,
	})
	return lines, nil
}

// taxLines groups line tax amounts by tax code into one journal line each.
func (s *service) taxLines(ctx context.Context, inv ledger.Invoice, accountCode string, side ledger.Side) ([]ledger.JournalLine, error) {
	totals := map[string]decimal.Decimal{}
	var order []string
	for _, ln := range inv.Lines {
		if ln.TaxAmount.IsZero() {
			continue
		}
		if _, ok := totals[ln.TaxCode]; !ok {
			order = append(order, ln.TaxCode)
		}
		totals[ln.TaxCode] = totals[ln.TaxCode].Add(ln.TaxAmount)
	}
	if len(order) == 0 {
		return nil, nil
	}
	acc, err := s.repo.AccountByCode(ctx, accountCode)
	if err != nil {
		return nil, err
	}
	var lines []ledger.JournalLine
	for _, code := range order {
		jl := ledger.JournalLine{AccountID: acc.ID, Currency: inv.Currency, Rate: inv.Rate, TaxCode: code, TaxAmount: totals[code]}
		if side == ledger.SideDebit {
			jl.Debit = totals[code]
		} else {
			jl.Credit = totals[code]
		}
		lines = append(lines, jl)
	}
	return lines, nil
}

// controlAccount resolves the party-level override account id, falling back
// to the system default code.
func (s *service) controlAccount(ctx context.Context, override *uuid.UUID, defaultCode string) (ledger.Account, error) {
	if override != nil {
		return s.repo.Account(ctx, *override)
	}
	return s.repo.AccountByCode(ctx, defaultCode)
}

// VoidInvoice reverses the invoice's journal entry and marks it Voided.
// Invoices with applied payments must have those payments voided first.
func (s *service) VoidInvoice(ctx context.Context, id uuid.UUID, voidDate time.Time, actor string) (ledger.Invoice, error) {
	inv, err := s.repo.Invoice(ctx, id)
	if err != nil {
		return ledger.Invoice{}, err
	}
	if inv.Status == ledger.InvoiceVoided || inv.JournalEntryID == nil {
		return ledger.Invoice{}, fmt.Errorf("invoice %s cannot be voided: %w", inv.Number, errs.ErrStateConflict)
	}
	if inv.AmountPaid.IsPositive() {
		return ledger.Invoice{}, fmt.Errorf("invoice %s has applied payments: %w", inv.Number, errs.ErrStateConflict)
	}
	orig, reversing, err := s.journal.BuildReversal(ctx, *inv.JournalEntryID, voidDate, actor)
	if err != nil {
		return ledger.Invoice{}, err
	}
	inv.Status = ledger.InvoiceVoided
	inv.Audit.Touch(actor, s.now())
	if err := s.writer.SaveInvoiceVoid(ctx, inv, orig, reversing); err != nil {
		return ledger.Invoice{}, err
	}
	return inv, nil
}
