package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/ledger"
)

type fiscalYearRequest struct {
	Name  string `json:"name"`
	Start string `json:"start"`
	End   string `json:"end"`
}

type fiscalPeriodResponse struct {
	ID     uuid.UUID `json:"id"`
	Number int       `json:"number"`
	Name   string    `json:"name"`
	Start  string    `json:"start"`
	End    string    `json:"end"`
	Status string    `json:"status"`
}

type fiscalYearResponse struct {
	ID      uuid.UUID              `json:"id"`
	Name    string                 `json:"name"`
	Start   string                 `json:"start"`
	End     string                 `json:"end"`
	Periods []fiscalPeriodResponse `json:"periods,omitempty"`
}

// postFiscalYear creates a year with one period per calendar month between
// start and end. A trailing partial month becomes a short period.
func (s *Server) postFiscalYear(w http.ResponseWriter, r *http.Request) {
	var req fiscalYearRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}
	start, err := parseDate(req.Start)
	if err != nil {
		badRequest(w, "start must be YYYY-MM-DD")
		return
	}
	end, err := parseDate(req.End)
	if err != nil {
		badRequest(w, "end must be YYYY-MM-DD")
		return
	}
	if !end.After(start) {
		badRequest(w, "end must be after start")
		return
	}

	who := actor(r)
	now := time.Now().UTC()
	year := ledger.FiscalYear{ID: uuid.New(), Name: req.Name, Start: start, End: end}
	year.Audit.Touch(who, now)

	var periods []ledger.FiscalPeriod
	for cursor, n := start, 1; !cursor.After(end); n++ {
		pEnd := time.Date(cursor.Year(), cursor.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
		if pEnd.After(end) {
			pEnd = end
		}
		p := ledger.FiscalPeriod{
			ID:     uuid.New(),
			YearID: year.ID,
			Number: n,
			Name:   cursor.Format("Jan 2006"),
			Start:  cursor,
			End:    pEnd,
			Status: ledger.PeriodOpen,
		}
		p.Audit.Touch(who, now)
		periods = append(periods, p)
		cursor = pEnd.AddDate(0, 0, 1)
	}

	if err := s.store.CreateFiscalYear(r.Context(), year, periods); err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toFiscalYearResponse(year, periods))
}

func toFiscalYearResponse(y ledger.FiscalYear, periods []ledger.FiscalPeriod) fiscalYearResponse {
	resp := fiscalYearResponse{
		ID:    y.ID,
		Name:  y.Name,
		Start: y.Start.Format(dateLayout),
		End:   y.End.Format(dateLayout),
	}
	for _, p := range periods {
		resp.Periods = append(resp.Periods, fiscalPeriodResponse{
			ID:     p.ID,
			Number: p.Number,
			Name:   p.Name,
			Start:  p.Start.Format(dateLayout),
			End:    p.End.Format(dateLayout),
			Status: string(p.Status),
		})
	}
	return resp
}

func (s *Server) listFiscalYears(w http.ResponseWriter, r *http.Request) {
	years, err := s.store.FiscalYears(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]fiscalYearResponse, 0, len(years))
	for _, y := range years {
		periods, err := s.store.PeriodsByYear(r.Context(), y.ID)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, toFiscalYearResponse(y, periods))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) closePeriod(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid period id")
		return
	}
	if err := s.calendar.ClosePeriod(r.Context(), id, actor(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) closeYear(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid year id")
		return
	}
	if err := s.calendar.CloseYear(r.Context(), id, actor(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rateRequest struct {
	From string          `json:"from"`
	To   string          `json:"to"`
	Date string          `json:"date"`
	Rate decimal.Decimal `json:"rate"`
}

func (s *Server) postRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	if req.From == "" || req.To == "" {
		badRequest(w, "from and to currencies are required")
		return
	}
	if !req.Rate.IsPositive() {
		badRequest(w, "rate must be positive")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		badRequest(w, "date must be YYYY-MM-DD")
		return
	}
	rate := ledger.ExchangeRate{
		From: strings.ToUpper(req.From),
		To:   strings.ToUpper(req.To),
		Date: date,
		Rate: req.Rate.Round(6),
	}
	rate.Audit.Touch(actor(r), time.Now().UTC())
	if err := s.store.SaveRate(r.Context(), rate); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type taxCodeRequest struct {
	Code string          `json:"code"`
	Name string          `json:"name"`
	Kind string          `json:"kind"`
	Rate decimal.Decimal `json:"rate"`
}

type taxCodeResponse struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Kind   string          `json:"kind"`
	Rate   decimal.Decimal `json:"rate"`
	Active bool            `json:"active"`
}

func (s *Server) postTaxCode(w http.ResponseWriter, r *http.Request) {
	var req taxCodeRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	if req.Code == "" || req.Name == "" {
		badRequest(w, "code and name are required")
		return
	}
	kind := ledger.TaxKind(req.Kind)
	switch kind {
	case ledger.TaxGSTOutput, ledger.TaxGSTInput, ledger.TaxWithholding, ledger.TaxExempt:
	default:
		badRequest(w, "unknown tax kind "+req.Kind)
		return
	}
	if req.Rate.IsNegative() {
		badRequest(w, "rate must not be negative")
		return
	}
	tc := ledger.TaxCode{
		Code:   strings.ToUpper(req.Code),
		Name:   req.Name,
		Kind:   kind,
		Rate:   req.Rate.Round(2),
		Active: true,
	}
	tc.Audit.Touch(actor(r), time.Now().UTC())
	if err := s.store.SaveTaxCode(r.Context(), tc); err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, taxCodeResponse{
		Code: tc.Code, Name: tc.Name, Kind: string(tc.Kind), Rate: tc.Rate, Active: tc.Active,
	})
}

func (s *Server) listTaxCodes(w http.ResponseWriter, r *http.Request) {
	codes, err := s.store.ListTaxCodes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]taxCodeResponse, 0, len(codes))
	for _, tc := range codes {
		out = append(out, taxCodeResponse{
			Code: tc.Code, Name: tc.Name, Kind: string(tc.Kind), Rate: tc.Rate, Active: tc.Active,
		})
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	toJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if rc, ok := s.store.(ReadinessChecker); ok {
		if err := rc.Ready(r.Context()); err != nil {
			toJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	toJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
