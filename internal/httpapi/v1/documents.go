package v1

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/ledger"
)

type invoiceLineRequest struct {
	Description  string          `json:"description,omitempty"`
	AccountID    uuid.UUID       `json:"account_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	DiscountPct  decimal.Decimal `json:"discount_pct,omitempty"`
	TaxCode      string          `json:"tax_code,omitempty"`
	TaxInclusive bool            `json:"tax_inclusive,omitempty"`
}

type invoiceRequest struct {
	Kind      string               `json:"kind"`
	PartyID   uuid.UUID            `json:"party_id"`
	IssueDate string               `json:"issue_date"`
	DueDate   string               `json:"due_date,omitempty"`
	Currency  string               `json:"currency,omitempty"`
	Rate      decimal.Decimal      `json:"rate,omitempty"`
	Lines     []invoiceLineRequest `json:"lines"`
}

type invoiceLineResponse struct {
	LineNo       int             `json:"line_no"`
	Description  string          `json:"description,omitempty"`
	AccountID    uuid.UUID       `json:"account_id"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	DiscountPct  decimal.Decimal `json:"discount_pct"`
	TaxCode      string          `json:"tax_code,omitempty"`
	TaxInclusive bool            `json:"tax_inclusive"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	Total        decimal.Decimal `json:"total"`
}

type invoiceResponse struct {
	ID             uuid.UUID             `json:"id"`
	Kind           string                `json:"kind"`
	Number         string                `json:"number"`
	PartyID        uuid.UUID             `json:"party_id"`
	IssueDate      string                `json:"issue_date"`
	DueDate        string                `json:"due_date"`
	Currency       string                `json:"currency"`
	Rate           decimal.Decimal       `json:"rate"`
	Subtotal       decimal.Decimal       `json:"subtotal"`
	TaxAmount      decimal.Decimal       `json:"tax_amount"`
	Total          decimal.Decimal       `json:"total"`
	AmountPaid     decimal.Decimal       `json:"amount_paid"`
	Outstanding    decimal.Decimal       `json:"outstanding"`
	Status         string                `json:"status"`
	JournalEntryID *uuid.UUID            `json:"journal_entry_id,omitempty"`
	Lines          []invoiceLineResponse `json:"lines"`
}

func toInvoiceResponse(inv ledger.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:             inv.ID,
		Kind:           string(inv.Kind),
		Number:         inv.Number,
		PartyID:        inv.PartyID,
		IssueDate:      inv.IssueDate.Format(dateLayout),
		DueDate:        inv.DueDate.Format(dateLayout),
		Currency:       inv.Currency,
		Rate:           inv.Rate,
		Subtotal:       inv.Subtotal,
		TaxAmount:      inv.TaxAmount,
		Total:          inv.Total,
		AmountPaid:     inv.AmountPaid,
		Outstanding:    inv.Outstanding(),
		Status:         string(inv.Status),
		JournalEntryID: inv.JournalEntryID,
		Lines:          make([]invoiceLineResponse, 0, len(inv.Lines)),
	}
	for _, ln := range inv.Lines {
		resp.Lines = append(resp.Lines, invoiceLineResponse{
			LineNo:       ln.LineNo,
			Description:  ln.Description,
			AccountID:    ln.AccountID,
			Quantity:     ln.Quantity,
			UnitPrice:    ln.UnitPrice,
			DiscountPct:  ln.DiscountPct,
			TaxCode:      ln.TaxCode,
			TaxInclusive: ln.TaxInclusive,
			Subtotal:     ln.Subtotal,
			TaxAmount:    ln.TaxAmount,
			Total:        ln.Total,
		})
	}
	return resp
}

func (s *Server) postInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	issue, err := parseDate(req.IssueDate)
	if err != nil {
		badRequest(w, "issue_date must be YYYY-MM-DD")
		return
	}
	inv := ledger.Invoice{
		Kind:      ledger.DocumentKind(req.Kind),
		PartyID:   req.PartyID,
		IssueDate: issue,
		Currency:  req.Currency,
		Rate:      req.Rate,
	}
	if req.DueDate != "" {
		due, err := parseDate(req.DueDate)
		if err != nil {
			badRequest(w, "due_date must be YYYY-MM-DD")
			return
		}
		inv.DueDate = due
	}
	for _, ln := range req.Lines {
		inv.Lines = append(inv.Lines, ledger.InvoiceLine{
			Description:  ln.Description,
			AccountID:    ln.AccountID,
			Quantity:     ln.Quantity,
			UnitPrice:    ln.UnitPrice,
			DiscountPct:  ln.DiscountPct,
			TaxCode:      ln.TaxCode,
			TaxInclusive: ln.TaxInclusive,
		})
	}
	out, err := s.documents.CreateInvoice(r.Context(), inv, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toInvoiceResponse(out))
}

func (s *Server) listInvoices(w http.ResponseWriter, r *http.Request) {
	kind := ledger.DocumentKind(r.URL.Query().Get("kind"))
	var (
		invoices []ledger.Invoice
		err      error
	)
	if r.URL.Query().Get("open") == "true" {
		invoices, err = s.store.OpenInvoices(r.Context(), kind)
	} else {
		invoices, err = s.store.ListInvoices(r.Context(), kind)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid invoice id")
		return
	}
	inv, err := s.documents.Invoice(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (s *Server) approveInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid invoice id")
		return
	}
	inv, err := s.documents.ApproveInvoice(r.Context(), id, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	documentsApprovedTotal.WithLabelValues(string(inv.Kind)).Inc()
	entriesPostedTotal.Inc()
	toJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

type voidRequest struct {
	Date string `json:"date"`
}

func (s *Server) voidInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid invoice id")
		return
	}
	var req voidRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		badRequest(w, "date must be YYYY-MM-DD")
		return
	}
	inv, err := s.documents.VoidInvoice(r.Context(), id, date, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

func (s *Server) deleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid invoice id")
		return
	}
	if err := s.documents.DeleteInvoice(r.Context(), id, actor(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type allocationRequest struct {
	Kind       string          `json:"kind"`
	DocumentID uuid.UUID       `json:"document_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type paymentRequest struct {
	Type          string              `json:"type"`
	Method        string              `json:"method,omitempty"`
	Date          string              `json:"date"`
	PartyID       uuid.UUID           `json:"party_id"`
	BankAccountID *uuid.UUID          `json:"bank_account_id"`
	Currency      string              `json:"currency,omitempty"`
	Rate          decimal.Decimal     `json:"rate,omitempty"`
	Amount        decimal.Decimal     `json:"amount"`
	Allocations   []allocationRequest `json:"allocations,omitempty"`
}

type allocationResponse struct {
	Kind       string          `json:"kind"`
	DocumentID uuid.UUID       `json:"document_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type paymentResponse struct {
	ID               uuid.UUID            `json:"id"`
	Number           string               `json:"number"`
	Type             string               `json:"type"`
	Method           string               `json:"method,omitempty"`
	Date             string               `json:"date"`
	PartyKind        string               `json:"party_kind"`
	PartyID          uuid.UUID            `json:"party_id"`
	BankAccountID    *uuid.UUID           `json:"bank_account_id,omitempty"`
	Currency         string               `json:"currency"`
	Rate             decimal.Decimal      `json:"rate"`
	Amount           decimal.Decimal      `json:"amount"`
	Status           string               `json:"status"`
	JournalEntryID   *uuid.UUID           `json:"journal_entry_id,omitempty"`
	WHTCertificateID *uuid.UUID           `json:"wht_certificate_id,omitempty"`
	Allocations      []allocationResponse `json:"allocations"`
}

func toPaymentResponse(p ledger.Payment) paymentResponse {
	resp := paymentResponse{
		ID:               p.ID,
		Number:           p.Number,
		Type:             string(p.Type),
		Method:           p.Method,
		Date:             p.Date.Format(dateLayout),
		PartyKind:        string(p.PartyKind),
		PartyID:          p.PartyID,
		BankAccountID:    p.BankAccountID,
		Currency:         p.Currency,
		Rate:             p.Rate,
		Amount:           p.Amount,
		Status:           string(p.Status),
		JournalEntryID:   p.JournalEntryID,
		WHTCertificateID: p.WHTCertificateID,
		Allocations:      make([]allocationResponse, 0, len(p.Allocations)),
	}
	for _, a := range p.Allocations {
		resp.Allocations = append(resp.Allocations, allocationResponse{
			Kind:       string(a.Document.Kind),
			DocumentID: a.Document.ID,
			Amount:     a.Amount,
		})
	}
	return resp
}

func (s *Server) postPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		badRequest(w, "date must be YYYY-MM-DD")
		return
	}
	p := ledger.Payment{
		Type:          ledger.PaymentType(req.Type),
		Method:        req.Method,
		Date:          date,
		PartyID:       req.PartyID,
		BankAccountID: req.BankAccountID,
		Currency:      req.Currency,
		Rate:          req.Rate,
		Amount:        req.Amount,
	}
	for _, a := range req.Allocations {
		p.Allocations = append(p.Allocations, ledger.Allocation{
			Document: ledger.DocumentRef{Kind: ledger.DocumentKind(a.Kind), ID: a.DocumentID},
			Amount:   a.Amount,
		})
	}
	out, err := s.documents.CreatePayment(r.Context(), p, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toPaymentResponse(out))
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.store.ListPayments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid payment id")
		return
	}
	p, err := s.documents.Payment(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (s *Server) approvePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid payment id")
		return
	}
	p, err := s.documents.ApprovePayment(r.Context(), id, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	documentsApprovedTotal.WithLabelValues("payment").Inc()
	entriesPostedTotal.Inc()
	toJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (s *Server) voidPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid payment id")
		return
	}
	var req voidRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		badRequest(w, "date must be YYYY-MM-DD")
		return
	}
	p, err := s.documents.VoidPayment(r.Context(), id, date, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toPaymentResponse(p))
}

func (s *Server) deletePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid payment id")
		return
	}
	if err := s.documents.DeletePayment(r.Context(), id, actor(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type certificateResponse struct {
	ID             uuid.UUID       `json:"id"`
	CertificateNo  string          `json:"certificate_no"`
	PaymentID      uuid.UUID       `json:"payment_id"`
	VendorID       uuid.UUID       `json:"vendor_id"`
	Rate           decimal.Decimal `json:"rate"`
	GrossAmount    decimal.Decimal `json:"gross_amount"`
	WithheldAmount decimal.Decimal `json:"withheld_amount"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	Status         string          `json:"status"`
	IssuedAt       time.Time       `json:"issued_at"`
}

func (s *Server) listWHTCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := s.store.ListWHTCertificates(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]certificateResponse, 0, len(certs))
	for _, c := range certs {
		out = append(out, certificateResponse{
			ID:             c.ID,
			CertificateNo:  c.CertificateNo,
			PaymentID:      c.PaymentID,
			VendorID:       c.VendorID,
			Rate:           c.Rate,
			GrossAmount:    c.GrossAmount,
			WithheldAmount: c.WithheldAmount,
			NetAmount:      c.NetAmount,
			Status:         string(c.Status),
			IssuedAt:       c.Audit.CreatedAt,
		})
	}
	toJSON(w, http.StatusOK, out)
}
