package v1

import (
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

const dateLayout = "2006-01-02"

// parseDate parses a YYYY-MM-DD value.
func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, errs.ErrInvalid
	}
	return t, nil
}

// queryDate parses an optional date query parameter, defaulting to def.
func queryDate(r *http.Request, key string, def time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return parseDate(raw)
}

// pathUUID parses a chi URL parameter as a UUID.
func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, errs.ErrInvalid
	}
	return id, nil
}

// actor resolves the acting user from the X-Actor header.
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "api"
}

type lineRequest struct {
	AccountID uuid.UUID       `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Currency  string          `json:"currency,omitempty"`
	Rate      decimal.Decimal `json:"rate,omitempty"`
	TaxCode   string          `json:"tax_code,omitempty"`
	Dim1      string          `json:"dim1,omitempty"`
	Dim2      string          `json:"dim2,omitempty"`
}

type postEntryRequest struct {
	Type        string        `json:"type,omitempty"`
	Date        string        `json:"date"`
	Description string        `json:"description,omitempty"`
	Post        bool          `json:"post,omitempty"`
	Lines       []lineRequest `json:"lines"`
}

type lineResponse struct {
	ID        uuid.UUID       `json:"id"`
	LineNo    int             `json:"line_no"`
	AccountID uuid.UUID       `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Currency  string          `json:"currency"`
	Rate      decimal.Decimal `json:"rate"`
	TaxCode   string          `json:"tax_code,omitempty"`
	Dim1      string          `json:"dim1,omitempty"`
	Dim2      string          `json:"dim2,omitempty"`
}

type entryResponse struct {
	ID               uuid.UUID      `json:"id"`
	EntryNo          string         `json:"entry_no"`
	Type             string         `json:"type"`
	Date             string         `json:"date"`
	PeriodID         uuid.UUID      `json:"period_id"`
	Description      string         `json:"description"`
	Posted           bool           `json:"posted"`
	Reversed         bool           `json:"reversed"`
	ReversingEntryID *uuid.UUID     `json:"reversing_entry_id,omitempty"`
	SourceType       string         `json:"source_type,omitempty"`
	SourceID         *uuid.UUID     `json:"source_id,omitempty"`
	Lines            []lineResponse `json:"lines"`
}

func toEntryDomain(req postEntryRequest, date time.Time) ledger.JournalEntry {
	entry := ledger.JournalEntry{
		Type:        ledger.JournalType(req.Type),
		Date:        date,
		Description: req.Description,
	}
	if entry.Type == "" {
		entry.Type = ledger.JournalGeneral
	}
	for _, l := range req.Lines {
		entry.Lines = append(entry.Lines, ledger.JournalLine{
			AccountID: l.AccountID,
			Debit:     l.Debit,
			Credit:    l.Credit,
			Currency:  l.Currency,
			Rate:      l.Rate,
			TaxCode:   l.TaxCode,
			Dim1:      l.Dim1,
			Dim2:      l.Dim2,
		})
	}
	return entry
}

func toEntryResponse(e ledger.JournalEntry) entryResponse {
	resp := entryResponse{
		ID:               e.ID,
		EntryNo:          e.EntryNo,
		Type:             string(e.Type),
		Date:             e.Date.Format(dateLayout),
		PeriodID:         e.PeriodID,
		Description:      e.Description,
		Posted:           e.Posted,
		Reversed:         e.Reversed,
		ReversingEntryID: e.ReversingEntryID,
		SourceType:       string(e.SourceType),
		SourceID:         e.SourceID,
		Lines:            make([]lineResponse, 0, len(e.Lines)),
	}
	for _, l := range e.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:        l.ID,
			LineNo:    l.LineNo,
			AccountID: l.AccountID,
			Debit:     l.Debit,
			Credit:    l.Credit,
			Currency:  l.Currency,
			Rate:      l.Rate,
			TaxCode:   l.TaxCode,
			Dim1:      l.Dim1,
			Dim2:      l.Dim2,
		})
	}
	return resp
}
