package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/reconcile"
)

type bankAccountRequest struct {
	Name        string          `json:"name"`
	Currency    string          `json:"currency"`
	GLAccountID uuid.UUID       `json:"gl_account_id"`
	Opening     decimal.Decimal `json:"opening_balance,omitempty"`
}

type bankAccountResponse struct {
	ID                    uuid.UUID       `json:"id"`
	Name                  string          `json:"name"`
	Currency              string          `json:"currency"`
	GLAccountID           uuid.UUID       `json:"gl_account_id"`
	CurrentBalance        decimal.Decimal `json:"current_balance"`
	LastReconciledDate    *string         `json:"last_reconciled_date,omitempty"`
	LastReconciledBalance decimal.Decimal `json:"last_reconciled_balance"`
	Active                bool            `json:"active"`
}

func toBankAccountResponse(b ledger.BankAccount) bankAccountResponse {
	resp := bankAccountResponse{
		ID:                    b.ID,
		Name:                  b.Name,
		Currency:              b.Currency,
		GLAccountID:           b.GLAccountID,
		CurrentBalance:        b.CurrentBalance,
		LastReconciledBalance: b.LastReconciledBalance,
		Active:                b.Active,
	}
	if b.LastReconciledDate != nil {
		d := b.LastReconciledDate.Format(dateLayout)
		resp.LastReconciledDate = &d
	}
	return resp
}

// postBankAccount creates a bank account over an existing GL account. The
// GL account must be an active asset flagged as bank.
func (s *Server) postBankAccount(w http.ResponseWriter, r *http.Request) {
	var req bankAccountRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	if req.Name == "" || req.Currency == "" || req.GLAccountID == uuid.Nil {
		badRequest(w, "name, currency and gl_account_id are required")
		return
	}
	gl, err := s.store.Account(r.Context(), req.GLAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	if gl.Type != ledger.AccountTypeAsset || !gl.IsBank || !gl.Active {
		writeError(w, errs.ErrUnprocessable)
		return
	}
	b := ledger.BankAccount{
		ID:             uuid.New(),
		Name:           req.Name,
		Currency:       req.Currency,
		GLAccountID:    req.GLAccountID,
		CurrentBalance: req.Opening,
		Active:         true,
	}
	b.Audit.Touch(actor(r), time.Now().UTC())
	out, err := s.store.CreateBankAccount(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toBankAccountResponse(out))
}

func (s *Server) listBankAccounts(w http.ResponseWriter, r *http.Request) {
	banks, err := s.store.ListBankAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]bankAccountResponse, 0, len(banks))
	for _, b := range banks {
		out = append(out, toBankAccountResponse(b))
	}
	toJSON(w, http.StatusOK, out)
}

type statementLineRequest struct {
	Date        string          `json:"date"`
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
}

type statementImportRequest struct {
	Lines []statementLineRequest `json:"lines"`
}

type bankTxnResponse struct {
	ID            uuid.UUID       `json:"id"`
	BankAccountID uuid.UUID       `json:"bank_account_id"`
	Date          string          `json:"date"`
	Type          string          `json:"type"`
	Description   string          `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	FromStatement bool            `json:"from_statement"`
	Reconciled    bool            `json:"reconciled"`
}

func toBankTxnResponse(t ledger.BankTransaction) bankTxnResponse {
	return bankTxnResponse{
		ID:            t.ID,
		BankAccountID: t.BankAccountID,
		Date:          t.Date.Format(dateLayout),
		Type:          string(t.Type),
		Description:   t.Description,
		Amount:        t.Amount,
		FromStatement: t.FromStatement,
		Reconciled:    t.Reconciled,
	}
}

// importStatement records statement-side transactions for later matching.
// Statement lines never touch the book balance.
func (s *Server) importStatement(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid bank account id")
		return
	}
	var req statementImportRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	if len(req.Lines) == 0 {
		badRequest(w, "lines are required")
		return
	}
	if _, err := s.store.BankAccount(r.Context(), bankID); err != nil {
		writeError(w, err)
		return
	}
	who := actor(r)
	now := time.Now().UTC()
	out := make([]bankTxnResponse, 0, len(req.Lines))
	for i, ln := range req.Lines {
		date, err := parseDate(ln.Date)
		if err != nil {
			badRequest(w, "lines["+strconv.Itoa(i)+"]: date must be YYYY-MM-DD")
			return
		}
		txn := ledger.BankTransaction{
			ID:            uuid.New(),
			BankAccountID: bankID,
			Date:          date,
			Type:          ledger.BankTxnType(ln.Type),
			Description:   ln.Description,
			Amount:        ln.Amount,
			FromStatement: true,
		}
		txn.Audit.Touch(who, now)
		saved, err := s.store.CreateBankTransaction(r.Context(), txn)
		if err != nil {
			writeError(w, err)
			return
		}
		out = append(out, toBankTxnResponse(saved))
	}
	toJSON(w, http.StatusCreated, out)
}

type reconciliationResponse struct {
	ID                     uuid.UUID       `json:"id"`
	Number                 string          `json:"number"`
	BankAccountID          uuid.UUID       `json:"bank_account_id"`
	StatementDate          string          `json:"statement_date"`
	StatementEndingBalance decimal.Decimal `json:"statement_ending_balance"`
	CalculatedBookBalance  decimal.Decimal `json:"calculated_book_balance"`
	ReconciledDifference   decimal.Decimal `json:"reconciled_difference"`
	Status                 string          `json:"status"`
}

func toReconciliationResponse(rec ledger.BankReconciliation) reconciliationResponse {
	return reconciliationResponse{
		ID:                     rec.ID,
		Number:                 rec.Number,
		BankAccountID:          rec.BankAccountID,
		StatementDate:          rec.StatementDate.Format(dateLayout),
		StatementEndingBalance: rec.StatementEndingBalance,
		CalculatedBookBalance:  rec.CalculatedBookBalance,
		ReconciledDifference:   rec.ReconciledDifference,
		Status:                 string(rec.Status),
	}
}

func (s *Server) listReconciliations(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid bank account id")
		return
	}
	recs, err := s.store.ListReconciliations(r.Context(), bankID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]reconciliationResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toReconciliationResponse(rec))
	}
	toJSON(w, http.StatusOK, out)
}

func (s *Server) reconcileCandidates(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid bank account id")
		return
	}
	asOf, err := queryDate(r, "as_of", time.Now().UTC())
	if err != nil {
		badRequest(w, "as_of must be YYYY-MM-DD")
		return
	}
	txns, err := s.reconciler.Candidates(r.Context(), bankID, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]bankTxnResponse, 0, len(txns))
	for _, t := range txns {
		out = append(out, toBankTxnResponse(t))
	}
	toJSON(w, http.StatusOK, out)
}

type reconcileRequest struct {
	StatementDate          string          `json:"statement_date"`
	StatementEndingBalance decimal.Decimal `json:"statement_ending_balance"`
	StatementTransactions  []uuid.UUID     `json:"statement_transaction_ids"`
	BookTransactions       []uuid.UUID     `json:"book_transaction_ids"`
	// Action selects the step: compute previews, draft saves a resumable
	// draft, finalize locks the cleared set. Defaults to compute.
	Action string `json:"action,omitempty"`
}

type reconcileResponse struct {
	Reconciliation reconciliationResponse `json:"reconciliation"`
	OpeningBalance decimal.Decimal        `json:"opening_balance"`
	ClearedTotal   decimal.Decimal        `json:"cleared_total"`
	Difference     decimal.Decimal        `json:"difference"`
}

func toReconcileResponse(sum reconcile.Summary) reconcileResponse {
	return reconcileResponse{
		Reconciliation: toReconciliationResponse(sum.Reconciliation),
		OpeningBalance: sum.OpeningBalance,
		ClearedTotal:   sum.ClearedTotal,
		Difference:     sum.Difference,
	}
}

func (s *Server) reconcile(w http.ResponseWriter, r *http.Request) {
	bankID, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid bank account id")
		return
	}
	var req reconcileRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	stmtDate, err := parseDate(req.StatementDate)
	if err != nil {
		badRequest(w, "statement_date must be YYYY-MM-DD")
		return
	}

	var sum reconcile.Summary
	switch req.Action {
	case "", "compute":
		sum, err = s.reconciler.Compute(r.Context(), bankID, stmtDate, req.StatementEndingBalance, req.StatementTransactions, req.BookTransactions)
	case "draft":
		sum, err = s.reconciler.SaveDraft(r.Context(), bankID, stmtDate, req.StatementEndingBalance, req.StatementTransactions, req.BookTransactions, actor(r))
	case "finalize":
		sum, err = s.reconciler.Finalize(r.Context(), bankID, stmtDate, req.StatementEndingBalance, req.StatementTransactions, req.BookTransactions, actor(r))
	default:
		badRequest(w, "action must be compute, draft or finalize")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if req.Action == "finalize" {
		reconciliationsFinalizedTotal.Inc()
	}
	toJSON(w, http.StatusOK, toReconcileResponse(sum))
}

func (s *Server) deleteReconciliation(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		badRequest(w, "invalid reconciliation id")
		return
	}
	if err := s.reconciler.Delete(r.Context(), id, actor(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
