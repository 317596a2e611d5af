package v1

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/ledger"
)

type partyRequest struct {
	Kind                 string          `json:"kind"`
	Name                 string          `json:"name"`
	Currency             string          `json:"currency,omitempty"`
	ReceivablesAccountID *uuid.UUID      `json:"receivables_account_id,omitempty"`
	PayablesAccountID    *uuid.UUID      `json:"payables_account_id,omitempty"`
	WHTRate              decimal.Decimal `json:"wht_rate,omitempty"`
}

type partyResponse struct {
	ID                   uuid.UUID       `json:"id"`
	Kind                 string          `json:"kind"`
	Name                 string          `json:"name"`
	Currency             string          `json:"currency,omitempty"`
	ReceivablesAccountID *uuid.UUID      `json:"receivables_account_id,omitempty"`
	PayablesAccountID    *uuid.UUID      `json:"payables_account_id,omitempty"`
	WHTRate              decimal.Decimal `json:"wht_rate"`
	Active               bool            `json:"active"`
}

func toPartyResponse(p ledger.Party) partyResponse {
	return partyResponse{
		ID:                   p.ID,
		Kind:                 string(p.Kind),
		Name:                 p.Name,
		Currency:             p.Currency,
		ReceivablesAccountID: p.ReceivablesAccountID,
		PayablesAccountID:    p.PayablesAccountID,
		WHTRate:              p.WHTRate,
		Active:               p.Active,
	}
}

func (s *Server) postParty(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	kind := ledger.PartyKind(req.Kind)
	if kind != ledger.PartyCustomer && kind != ledger.PartyVendor {
		badRequest(w, "kind must be customer or vendor")
		return
	}
	if req.Name == "" {
		badRequest(w, "name is required")
		return
	}
	if req.WHTRate.IsNegative() {
		badRequest(w, "wht_rate must not be negative")
		return
	}
	p := ledger.Party{
		ID:                   uuid.New(),
		Kind:                 kind,
		Name:                 req.Name,
		Currency:             strings.ToUpper(req.Currency),
		ReceivablesAccountID: req.ReceivablesAccountID,
		PayablesAccountID:    req.PayablesAccountID,
		WHTRate:              req.WHTRate,
		Active:               true,
	}
	p.Audit.Touch(actor(r), time.Now().UTC())
	out, err := s.store.CreateParty(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toPartyResponse(out))
}

func (s *Server) listParties(w http.ResponseWriter, r *http.Request) {
	kind := ledger.PartyKind(r.URL.Query().Get("kind"))
	parties, err := s.store.ListParties(r.Context(), kind)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]partyResponse, 0, len(parties))
	for _, p := range parties {
		out = append(out, toPartyResponse(p))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getParty(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid party id")
		return
	}
	p, err := s.store.Party(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toPartyResponse(p))
}

type partyPatch struct {
	Name                 *string          `json:"name,omitempty"`
	ReceivablesAccountID *uuid.UUID       `json:"receivables_account_id,omitempty"`
	PayablesAccountID    *uuid.UUID       `json:"payables_account_id,omitempty"`
	WHTRate              *decimal.Decimal `json:"wht_rate,omitempty"`
	Active               *bool            `json:"active,omitempty"`
}

func (s *Server) updateParty(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid party id")
		return
	}
	var patch partyPatch
	if err := decode(r, &patch); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	p, err := s.store.Party(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.ReceivablesAccountID != nil {
		p.ReceivablesAccountID = patch.ReceivablesAccountID
	}
	if patch.PayablesAccountID != nil {
		p.PayablesAccountID = patch.PayablesAccountID
	}
	if patch.WHTRate != nil {
		if patch.WHTRate.IsNegative() {
			badRequest(w, "wht_rate must not be negative")
			return
		}
		p.WHTRate = *patch.WHTRate
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	p.Audit.Touch(actor(r), time.Now().UTC())
	out, err := s.store.UpdateParty(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toPartyResponse(out))
}
