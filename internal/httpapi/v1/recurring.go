package v1

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/gobooks/ledger/internal/ledger"
)

type patternRequest struct {
	Name            string    `json:"name"`
	TemplateEntryID uuid.UUID `json:"template_entry_id"`
	Frequency       string    `json:"frequency"`
	Interval        int       `json:"interval,omitempty"`
	StartDate       string    `json:"start_date"`
	EndDate         string    `json:"end_date,omitempty"`
	DayOfMonth      *int      `json:"day_of_month,omitempty"`
	DayOfWeek       *int      `json:"day_of_week,omitempty"`
}

type patternResponse struct {
	ID                 uuid.UUID `json:"id"`
	Name               string    `json:"name"`
	TemplateEntryID    uuid.UUID `json:"template_entry_id"`
	Frequency          string    `json:"frequency"`
	Interval           int       `json:"interval"`
	StartDate          string    `json:"start_date"`
	EndDate            *string   `json:"end_date,omitempty"`
	DayOfMonth         *int      `json:"day_of_month,omitempty"`
	DayOfWeek          *int      `json:"day_of_week,omitempty"`
	LastGeneratedDate  *string   `json:"last_generated_date,omitempty"`
	NextGenerationDate string    `json:"next_generation_date"`
	Active             bool      `json:"active"`
}

func toPatternResponse(p ledger.RecurringPattern) patternResponse {
	resp := patternResponse{
		ID:                 p.ID,
		Name:               p.Name,
		TemplateEntryID:    p.TemplateEntryID,
		Frequency:          string(p.Frequency),
		Interval:           p.Interval,
		StartDate:          p.StartDate.Format(dateLayout),
		DayOfMonth:         p.DayOfMonth,
		NextGenerationDate: p.NextGenerationDate.Format(dateLayout),
		Active:             p.Active,
	}
	if p.EndDate != nil {
		d := p.EndDate.Format(dateLayout)
		resp.EndDate = &d
	}
	if p.DayOfWeek != nil {
		dow := int(*p.DayOfWeek)
		resp.DayOfWeek = &dow
	}
	if p.LastGeneratedDate != nil {
		d := p.LastGeneratedDate.Format(dateLayout)
		resp.LastGeneratedDate = &d
	}
	return resp
}

func validFrequency(f ledger.RecurringFrequency) bool {
	switch f {
	case ledger.FreqDaily, ledger.FreqWeekly, ledger.FreqMonthly, ledger.FreqQuarterly, ledger.FreqYearly:
		return true
	}
	return false
}

func (s *Server) postPattern(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	if req.Name == "" || req.TemplateEntryID == uuid.Nil {
		badRequest(w, "name and template_entry_id are required")
		return
	}
	freq := ledger.RecurringFrequency(req.Frequency)
	if !validFrequency(freq) {
		badRequest(w, "unknown frequency "+req.Frequency)
		return
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		badRequest(w, "start_date must be YYYY-MM-DD")
		return
	}
	// The template must exist before a schedule is hung off it.
	if _, err := s.store.EntryByID(r.Context(), req.TemplateEntryID); err != nil {
		writeError(w, err)
		return
	}
	interval := req.Interval
	if interval <= 0 {
		interval = 1
	}
	pat := ledger.RecurringPattern{
		ID:                 uuid.New(),
		Name:               req.Name,
		TemplateEntryID:    req.TemplateEntryID,
		Frequency:          freq,
		Interval:           interval,
		StartDate:          start,
		DayOfMonth:         req.DayOfMonth,
		NextGenerationDate: start,
		Active:             true,
	}
	if req.EndDate != "" {
		end, err := parseDate(req.EndDate)
		if err != nil {
			badRequest(w, "end_date must be YYYY-MM-DD")
			return
		}
		if end.Before(start) {
			badRequest(w, "end_date precedes start_date")
			return
		}
		pat.EndDate = &end
	}
	if req.DayOfWeek != nil {
		if *req.DayOfWeek < 0 || *req.DayOfWeek > 6 {
			badRequest(w, "day_of_week must be 0 (Sunday) through 6")
			return
		}
		dow := time.Weekday(*req.DayOfWeek)
		pat.DayOfWeek = &dow
	}
	pat.Audit.Touch(actor(r), time.Now().UTC())
	out, err := s.store.CreatePattern(r.Context(), pat)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toPatternResponse(out))
}

func (s *Server) listPatterns(w http.ResponseWriter, r *http.Request) {
	patterns, err := s.store.ListPatterns(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]patternResponse, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, toPatternResponse(p))
	}
	toJSON(w, http.StatusOK, out)
}

type generationResult struct {
	PatternID uuid.UUID `json:"pattern_id"`
	EntryID   *uuid.UUID `json:"entry_id,omitempty"`
	EntryNo   string    `json:"entry_no,omitempty"`
	Scheduled string    `json:"scheduled"`
	Skipped   bool      `json:"skipped"`
	Error     string    `json:"error,omitempty"`
}

func (s *Server) generateRecurring(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of", time.Now().UTC())
	if err != nil {
		badRequest(w, "as_of must be YYYY-MM-DD")
		return
	}
	results, err := s.recurring.GenerateDue(r.Context(), asOf, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]generationResult, 0, len(results))
	for _, res := range results {
		gr := generationResult{
			PatternID: res.PatternID,
			EntryNo:   res.EntryNo,
			Scheduled: res.Scheduled.Format(dateLayout),
			Skipped:   res.Skipped,
		}
		if res.EntryID != uuid.Nil {
			id := res.EntryID
			gr.EntryID = &id
		}
		if res.Err != nil {
			gr.Error = res.Err.Error()
		}
		if !res.Skipped && res.Err == nil {
			recurringGeneratedTotal.Inc()
			entriesPostedTotal.Inc()
		}
		out = append(out, gr)
	}
	toJSON(w, http.StatusOK, out)
}
