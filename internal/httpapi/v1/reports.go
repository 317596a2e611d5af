package v1

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/report"
)

type trialBalanceRowResponse struct {
	AccountID uuid.UUID       `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Type      string          `json:"type"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type trialBalanceResponse struct {
	AsOf         string                    `json:"as_of"`
	Rows         []trialBalanceRowResponse `json:"rows"`
	TotalDebits  decimal.Decimal           `json:"total_debits"`
	TotalCredits decimal.Decimal           `json:"total_credits"`
}

func (s *Server) trialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of", time.Now().UTC())
	if err != nil {
		badRequest(w, "as_of must be YYYY-MM-DD")
		return
	}
	tb, err := s.reports.TrialBalance(r.Context(), asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := trialBalanceResponse{
		AsOf:         tb.AsOf.Format(dateLayout),
		Rows:         make([]trialBalanceRowResponse, 0, len(tb.Rows)),
		TotalDebits:  tb.TotalDebits,
		TotalCredits: tb.TotalCredits,
	}
	for _, row := range tb.Rows {
		resp.Rows = append(resp.Rows, trialBalanceRowResponse{
			AccountID: row.AccountID,
			Code:      row.Code,
			Name:      row.Name,
			Type:      string(row.Type),
			Debit:     row.Debit,
			Credit:    row.Credit,
		})
	}
	toJSON(w, http.StatusOK, resp)
}

type accountAmountResponse struct {
	AccountID uuid.UUID       `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
}

func toAccountAmounts(rows []report.AccountAmount) []accountAmountResponse {
	out := make([]accountAmountResponse, 0, len(rows))
	for _, row := range rows {
		out = append(out, accountAmountResponse{
			AccountID: row.AccountID,
			Code:      row.Code,
			Name:      row.Name,
			Amount:    row.Amount,
		})
	}
	return out
}

type profitLossResponse struct {
	Start        string                  `json:"start"`
	End          string                  `json:"end"`
	Revenue      []accountAmountResponse `json:"revenue"`
	Expenses     []accountAmountResponse `json:"expenses"`
	TotalRevenue decimal.Decimal         `json:"total_revenue"`
	TotalExpense decimal.Decimal         `json:"total_expense"`
	NetProfit    decimal.Decimal         `json:"net_profit"`
}

func (s *Server) profitLoss(w http.ResponseWriter, r *http.Request) {
	start, end, err := rangeParams(r)
	if err != nil {
		badRequest(w, "from/to must be YYYY-MM-DD")
		return
	}
	pl, err := s.reports.ProfitLoss(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, profitLossResponse{
		Start:        pl.Start.Format(dateLayout),
		End:          pl.End.Format(dateLayout),
		Revenue:      toAccountAmounts(pl.Revenue),
		Expenses:     toAccountAmounts(pl.Expenses),
		TotalRevenue: pl.TotalRevenue,
		TotalExpense: pl.TotalExpense,
		NetProfit:    pl.NetProfit,
	})
}

type balanceSheetResponse struct {
	AsOf             string                  `json:"as_of"`
	Assets           []accountAmountResponse `json:"assets"`
	Liabilities      []accountAmountResponse `json:"liabilities"`
	Equity           []accountAmountResponse `json:"equity"`
	TotalAssets      decimal.Decimal         `json:"total_assets"`
	TotalLiabilities decimal.Decimal         `json:"total_liabilities"`
	TotalEquity      decimal.Decimal         `json:"total_equity"`
	NetProfitYTD     decimal.Decimal         `json:"net_profit_ytd"`
	Imbalance        decimal.Decimal         `json:"imbalance"`
}

func (s *Server) balanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of", time.Now().UTC())
	if err != nil {
		badRequest(w, "as_of must be YYYY-MM-DD")
		return
	}
	bs, err := s.reports.BalanceSheet(r.Context(), asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, balanceSheetResponse{
		AsOf:             bs.AsOf.Format(dateLayout),
		Assets:           toAccountAmounts(bs.Assets),
		Liabilities:      toAccountAmounts(bs.Liabilities),
		Equity:           toAccountAmounts(bs.Equity),
		TotalAssets:      bs.TotalAssets,
		TotalLiabilities: bs.TotalLiabilities,
		TotalEquity:      bs.TotalEquity,
		NetProfitYTD:     bs.NetProfitYTD,
		Imbalance:        bs.Imbalance,
	})
}

type generalLedgerLineResponse struct {
	Date        string          `json:"date"`
	EntryNo     string          `json:"entry_no"`
	Description string          `json:"description,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Balance     decimal.Decimal `json:"balance"`
}

type generalLedgerResponse struct {
	AccountID      uuid.UUID                   `json:"account_id"`
	Code           string                      `json:"code"`
	Name           string                      `json:"name"`
	Start          string                      `json:"start"`
	End            string                      `json:"end"`
	OpeningBalance decimal.Decimal             `json:"opening_balance"`
	Lines          []generalLedgerLineResponse `json:"lines"`
	ClosingBalance decimal.Decimal             `json:"closing_balance"`
}

func toGeneralLedgerResponse(gl report.GeneralLedger) generalLedgerResponse {
	resp := generalLedgerResponse{
		AccountID:      gl.AccountID,
		Code:           gl.Code,
		Name:           gl.Name,
		Start:          gl.Start.Format(dateLayout),
		End:            gl.End.Format(dateLayout),
		OpeningBalance: gl.OpeningBalance,
		Lines:          make([]generalLedgerLineResponse, 0, len(gl.Lines)),
		ClosingBalance: gl.ClosingBalance,
	}
	for _, ln := range gl.Lines {
		resp.Lines = append(resp.Lines, generalLedgerLineResponse{
			Date:        ln.Date.Format(dateLayout),
			EntryNo:     ln.EntryNo,
			Description: ln.Description,
			Debit:       ln.Debit,
			Credit:      ln.Credit,
			Balance:     ln.Balance,
		})
	}
	return resp
}

func (s *Server) generalLedger(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "accountID")
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

type agingRowResponse struct {
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	Number      string          `json:"number"`
	PartyID     uuid.UUID       `json:"party_id"`
	DueDate     string          `json:"due_date"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Bucket      string          `json:"bucket"`
}

type agingResponse struct {
	AsOf         string                     `json:"as_of"`
	Side         string                     `json:"side"`
	Rows         []agingRowResponse         `json:"rows"`
	BucketTotals map[string]decimal.Decimal `json:"bucket_totals"`
	Total        decimal.Decimal            `json:"total"`
}

func toAgingResponse(a report.Aging) agingResponse {
	resp := agingResponse{
		AsOf:         a.AsOf.Format(dateLayout),
		Side:         string(a.Side),
		Rows:         make([]agingRowResponse, 0, len(a.Rows)),
		BucketTotals: a.BucketTotals,
		Total:        a.Total,
	}
	for _, row := range a.Rows {
		resp.Rows = append(resp.Rows, agingRowResponse{
			InvoiceID:   row.InvoiceID,
			Number:      row.Number,
			PartyID:     row.PartyID,
			DueDate:     row.DueDate.Format(dateLayout),
			Outstanding: row.Outstanding,
			Bucket:      row.Bucket,
		})
	}
	return resp
}

func (s *Server) aging(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of", time.Now().UTC())
	if err != nil {
		badRequest(w, "as_of must be YYYY-MM-DD")
		return
	}
	side := ledger.DocSalesInvoice
	switch r.URL.Query().Get("side") {
	case "", "receivable", "ar":
	case "payable", "ap":
		side = ledger.DocPurchaseInvoice
	default:
		badRequest(w, "side must be receivable or payable")
		return
	}
	a, err := s.reports.Aging(r.Context(), asOf, side)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAgingResponse(a))
}

type ratioResponse struct {
	Value    decimal.Decimal `json:"value"`
	Infinite bool            `json:"infinite"`
	Defined  bool            `json:"defined"`
}

func toRatioResponse(r report.Ratio) ratioResponse {
	return ratioResponse{Value: r.Value, Infinite: r.Infinite, Defined: r.Defined}
}

type dashboardResponse struct {
	AsOf          string                  `json:"as_of"`
	FiscalYearID  string                  `json:"fiscal_year_id"`
	YTDRevenue    decimal.Decimal         `json:"ytd_revenue"`
	YTDExpense    decimal.Decimal         `json:"ytd_expense"`
	YTDNetProfit  decimal.Decimal         `json:"ytd_net_profit"`
	TotalCash     decimal.Decimal         `json:"total_cash"`
	AROutstanding decimal.Decimal         `json:"ar_outstanding"`
	AROverdue     decimal.Decimal         `json:"ar_overdue"`
	APOutstanding decimal.Decimal         `json:"ap_outstanding"`
	APOverdue     decimal.Decimal         `json:"ap_overdue"`
	ARAging       agingResponse           `json:"ar_aging"`
	APAging       agingResponse           `json:"ap_aging"`
	CurrentRatio  ratioResponse           `json:"current_ratio"`
	QuickRatio    ratioResponse           `json:"quick_ratio"`
	DebtToEquity  ratioResponse           `json:"debt_to_equity"`
	Uncategorized []accountAmountResponse `json:"uncategorized,omitempty"`
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	asOf, err := queryDate(r, "as_of", time.Now().UTC())
	if err != nil {
		badRequest(w, "as_of must be YYYY-MM-DD")
		return
	}
	d, err := s.reports.DashboardKPIs(r.Context(), asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	toJSON(w, http.StatusOK, dashboardResponse{
		AsOf:          d.AsOf.Format(dateLayout),
		FiscalYearID:  d.FiscalYearID,
		YTDRevenue:    d.YTDRevenue,
		YTDExpense:    d.YTDExpense,
		YTDNetProfit:  d.YTDNetProfit,
		TotalCash:     d.TotalCash,
		AROutstanding: d.AROutstanding,
		AROverdue:     d.AROverdue,
		APOutstanding: d.APOutstanding,
		APOverdue:     d.APOverdue,
		ARAging:       toAgingResponse(d.ARAging),
		APAging:       toAgingResponse(d.APAging),
		CurrentRatio:  toRatioResponse(d.CurrentRatio),
		QuickRatio:    toRatioResponse(d.QuickRatio),
		DebtToEquity:  toRatioResponse(d.DebtToEquity),
		Uncategorized: toAccountAmounts(d.Uncategorized),
	})
}

type revaluationRequest struct {
	AsOf string `json:"as_of"`
}

type revaluationItemResponse struct {
	AccountID uuid.UUID       `json:"account_id"`
	Currency  string          `json:"currency"`
	Foreign   decimal.Decimal `json:"foreign_amount"`
	Booked    decimal.Decimal `json:"booked_base"`
	Revalued  decimal.Decimal `json:"revalued_base"`
	Delta     decimal.Decimal `json:"delta"`
}

type revaluationResponse struct {
	AsOf            string                    `json:"as_of"`
	EntryID         *uuid.UUID                `json:"entry_id,omitempty"`
	ReversalEntryID *uuid.UUID                `json:"reversal_entry_id,omitempty"`
	NetGain         decimal.Decimal           `json:"net_gain"`
	Items           []revaluationItemResponse `json:"items"`
}

func (s *Server) revalue(w http.ResponseWriter, r *http.Request) {
	var req revaluationRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid json: "+err.Error())
		return
	}
	asOf, err := parseDate(req.AsOf)
	if err != nil {
		badRequest(w, "as_of must be YYYY-MM-DD")
		return
	}
	res, err := s.revaluer.RevalueUnrealized(r.Context(), asOf, actor(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if res.EntryID != nil {
		// Adjustment and its next-day reversal both posted.
		entriesPostedTotal.Add(2)
	}
	resp := revaluationResponse{
		AsOf:            res.AsOf.Format(dateLayout),
		EntryID:         res.EntryID,
		ReversalEntryID: res.ReversalEntryID,
		NetGain:         res.NetGain,
		Items:           make([]revaluationItemResponse, 0, len(res.Items)),
	}
	for _, it := range res.Items {
		resp.Items = append(resp.Items, revaluationItemResponse{
			AccountID: it.AccountID,
			Currency:  it.Currency,
			Foreign:   it.Foreign,
			Booked:    it.Booked,
			Revalued:  it.Revalued,
			Delta:     it.Delta,
		})
	}
	toJSON(w, http.StatusOK, resp)
}
