package v1

import (
	"net/http"
	"time"

	"github.com/gobooks/ledger/internal/ledger"
)

func (s *Server) postEntry(w http.ResponseWriter, r *http.Request) {
	var req postEntryRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		badRequest(w, "date must be YYYY-MM-DD")
		return
	}
	entry := toEntryDomain(req, date)
	who := actor(r)

	var out ledger.JournalEntry
	if req.Post {
		built, err := s.journal.BuildPosted(r.Context(), entry, who)
		if err != nil {
			writeError(w, err)
			return
		}
		out, err = s.store.CreateJournalEntry(r.Context(), built)
		if err != nil {
			writeError(w, err)
			return
		}
		entriesPostedTotal.Inc()
	} else {
		out, err = s.journal.CreateDraft(r.Context(), entry, who)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	toJSON(w, http.StatusCreated, toEntryResponse(out))
}

func (s *Server) listEntries(w http.ResponseWriter, r *http.Request) {
	var from, to *time.Time
	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			badRequest(w, "from must be YYYY-MM-DD")
			return
		}
		from = &d
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			badRequest(w, "to must be YYYY-MM-DD")
			return
		}
		to = &d
	}
	entries, err := s.store.ListEntries(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	e, err := s.journal.Entry(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toEntryResponse(e))
}

func (s *Server) postEntryPosting(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	e, err := s.journal.Post(r.Context(), id, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	entriesPostedTotal.Inc()
	toJSON(w, http.StatusOK, toEntryResponse(e))
}

type reverseEntryRequest struct {
	Date string `json:"date"`
}

func (s *Server) reverseEntry(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid entry id")
		return
	}
	var req reverseEntryRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		badRequest(w, "date must be YYYY-MM-DD")
		return
	}
	reversing, err := s.journal.Reverse(r.Context(), id, date, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	entriesPostedTotal.Inc()
	toJSON(w, http.StatusCreated, toEntryResponse(reversing))
}
