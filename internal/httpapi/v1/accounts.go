package v1

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

type accountRequest struct {
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	SubType          string          `json:"sub_type,omitempty"`
	CashFlowCategory string          `json:"cash_flow_category,omitempty"`
	ParentID         *uuid.UUID      `json:"parent_id,omitempty"`
	IsControl        bool            `json:"is_control,omitempty"`
	IsBank           bool            `json:"is_bank,omitempty"`
	OpeningBalance   decimal.Decimal `json:"opening_balance,omitempty"`
	OpeningDate      string          `json:"opening_date,omitempty"`
}

type accountResponse struct {
	ID               uuid.UUID       `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Type             string          `json:"type"`
	SubType          string          `json:"sub_type,omitempty"`
	CashFlowCategory string          `json:"cash_flow_category,omitempty"`
	ParentID         *uuid.UUID      `json:"parent_id,omitempty"`
	IsControl        bool            `json:"is_control"`
	IsBank           bool            `json:"is_bank"`
	Active           bool            `json:"active"`
	OpeningBalance   decimal.Decimal `json:"opening_balance"`
	OpeningDate      string          `json:"opening_date,omitempty"`
}

func toAccountResponse(a ledger.Account) accountResponse {
	resp := accountResponse{
		ID:               a.ID,
		Code:             a.Code,
		Name:             a.Name,
		Type:             string(a.Type),
		SubType:          a.SubType,
		CashFlowCategory: string(a.CashFlowCategory),
		ParentID:         a.ParentID,
		IsControl:        a.IsControl,
		IsBank:           a.IsBank,
		Active:           a.Active,
		OpeningBalance:   a.OpeningBalance,
	}
	if !a.OpeningDate.IsZero() {
		resp.OpeningDate = a.OpeningDate.Format(dateLayout)
	}
	return resp
}

func (s *Server) postAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	if req.Code == "" || req.Name == "" {
		badRequest(w, "code and name are required")
		return
	}
	typ := ledger.AccountType(req.Type)
	if !typ.Valid() {
		badRequest(w, "unknown account type "+req.Type)
		return
	}
	acc := ledger.Account{
		Code:             req.Code,
		Name:             req.Name,
		Type:             typ,
		SubType:          req.SubType,
		CashFlowCategory: ledger.CashFlowCategory(req.CashFlowCategory),
		ParentID:         req.ParentID,
		IsControl:        req.IsControl,
		IsBank:           req.IsBank,
		Active:           true,
		OpeningBalance:   req.OpeningBalance,
	}
	if req.OpeningDate != "" {
		d, err := parseDate(req.OpeningDate)
		if err != nil {
			badRequest(w, "opening_date must be YYYY-MM-DD")
			return
		}
		acc.OpeningDate = d
	}
	acc.ID = uuid.New()
	acc.Audit.Touch(actor(r), time.Now().UTC())
	out, err := s.store.CreateAccount(r.Context(), acc)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toAccountResponse(out))
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toAccountResponse(a))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid account id")
		return
	}
	a, err := s.store.Account(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(a))
}

type accountPatch struct {
	Name    *string `json:"name,omitempty"`
	SubType *string `json:"sub_type,omitempty"`
	Active  *bool   `json:"active,omitempty"`
}

// updateAccount permits renaming, re-bucketing, and deactivation. The code
// and type are immutable once the account exists.
func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid account id")
		return
	}
	var patch accountPatch
	if err := decode(r, &patch); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	a, err := s.store.Account(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.SubType != nil {
		a.SubType = *patch.SubType
	}
	if patch.Active != nil {
		a.Active = *patch.Active
	}
	a.Audit.Touch(actor(r), time.Now().UTC())
	out, err := s.store.UpdateAccount(r.Context(), a)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAccountResponse(out))
}

type balanceResponse struct {
	AccountID uuid.UUID       `json:"account_id"`
	AsOf      string          `json:"as_of"`
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
}

func (s *Server) getAccountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid account id")
		return
	}
	asOf, err := queryDate(r, "as_of", time.Now().UTC())
	if err != nil {
		badRequest(w, "as_of must be YYYY-MM-DD")
		return
	}
	balance, err := s.journal.AccountBalance(r.Context(), id, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, balanceResponse{
		AccountID: id,
		AsOf:      ledger.DateOnly(asOf).Format(dateLayout),
		Balance:   balance,
		Currency:  s.base,
	})
}

func (s *Server) getAccountLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid account id")
		return
	}
	start, end, err := rangeParams(r)
	if err != nil {
		badRequest(w, "from/to must be YYYY-MM-DD")
		return
	}
	gl, err := s.reports.GeneralLedger(r.Context(), id, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toGeneralLedgerResponse(gl))
}

// rangeParams reads from/to query dates, defaulting to the trailing year.
func rangeParams(r *http.Request) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	end, err := queryDate(r, "to", now)
	if err != nil {
		return time.Time{}, time.Time{}, errs.ErrInvalid
	}
	start, err := queryDate(r, "from", end.AddDate(-1, 0, 0))
	if err != nil {
		return time.Time{}, time.Time{}, errs.ErrInvalid
	}
	return start, end, nil
}
