package v1

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gobooks/ledger/internal/config"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	return config.Config{
		BaseCurrency: "SGD",
		SysAcc: config.SystemAccounts{
			DefaultCash: "1010", DefaultAR: "1200", DefaultAP: "2100",
			FXGain: "7150", FXLoss: "8150",
			GSTOutput: "2200", GSTInput: "1300", WHTPayable: "2250",
			CashOnHand: "1000",
		},
	}
}

func date(y int, m time.Month, dd int) time.Time {
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	store    *memory.Store
	srv      *httptest.Server
	accounts map[string]ledger.Account
	customer ledger.Party
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memory.New()
	for _, name := range []string{
		ledger.SeqJournalEntry, ledger.SeqSalesInvoice, ledger.SeqPurchaseInvoice,
		ledger.SeqPayment, ledger.SeqWHTCertificate, ledger.SeqReconciliation,
	} {
		store.SeedSequence(ledger.Sequence{Name: name, Prefix: name + "-", NextValue: 1, IncrementBy: 1, MinValue: 1, Pad: 4})
	}

	year := ledger.FiscalYear{ID: uuid.New(), Name: "FY2025", Start: date(2025, 1, 1), End: date(2025, 12, 31)}
	var periods []ledger.FiscalPeriod
	for m := 1; m <= 12; m++ {
		start := date(2025, time.Month(m), 1)
		periods = append(periods, ledger.FiscalPeriod{
			ID: uuid.New(), YearID: year.ID, Number: m, Name: start.Format("Jan 2006"),
			Start: start, End: start.AddDate(0, 1, -1), Status: ledger.PeriodOpen,
		})
	}
	store.SeedFiscalYear(year, periods)

	accounts := map[string]ledger.Account{}
	seed := func(code, name string, typ ledger.AccountType, control bool) {
		a := ledger.Account{ID: uuid.New(), Code: code, Name: name, Type: typ, IsControl: control, Active: true}
		store.SeedAccount(a)
		accounts[code] = a
	}
	seed("1010", "Bank", ledger.AccountTypeAsset, false)
	seed("1200", "Accounts Receivable", ledger.AccountTypeAsset, true)
	seed("2200", "GST Output", ledger.AccountTypeLiability, false)
	seed("4000", "Sales", ledger.AccountTypeRevenue, false)
	seed("6000", "Expenses", ledger.AccountTypeExpense, false)

	customer := ledger.Party{ID: uuid.New(), Kind: ledger.PartyCustomer, Name: "Acme Pte Ltd", Active: true}
	store.SeedParty(customer)
	store.SeedTaxCode(ledger.TaxCode{Code: "SR", Name: "Standard-Rated", Kind: ledger.TaxGSTOutput, Rate: decimal.RequireFromString("9.00"), Active: true})

	cfg := testConfig()
	srv := httptest.NewServer(New(store, &cfg, testLogger()).Handler())
	t.Cleanup(srv.Close)
	return fixture{store: store, srv: srv, accounts: accounts, customer: customer}
}

func (f fixture) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func entryBody(f fixture, debitCode, creditCode, amount string, post bool) map[string]any {
	return map[string]any{
		"date": "2025-02-10",
		"post": post,
		"lines": []map[string]any{
			{"account_id": f.accounts[debitCode].ID, "debit": amount},
			{"account_id": f.accounts[creditCode].ID, "credit": amount},
		},
	}
}

func TestPostEntry(t *testing.T) {
	f := setup(t)

	resp, raw := f.do(t, http.MethodPost, "/v1/entries", entryBody(f, "6000", "1010", "250.00", true))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status %d: %s", resp.StatusCode, raw)
	}
	var got struct {
		ID      uuid.UUID `json:"id"`
		EntryNo string    `json:"entry_no"`
		Date    string    `json:"date"`
		Posted  bool      `json:"posted"`
		Lines   []struct {
			Debit decimal.Decimal `json:"debit"`
		} `json:"lines"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EntryNo == "" || !got.Posted || got.Date != "2025-02-10" {
		t.Fatalf("response wrong: %s", raw)
	}
	if len(got.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(got.Lines))
	}

	resp, raw = f.do(t, http.MethodGet, "/v1/entries/"+got.ID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status %d: %s", resp.StatusCode, raw)
	}
}

func TestPostEntry_Unbalanced(t *testing.T) {
	f := setup(t)

	body := map[string]any{
		"date": "2025-02-10",
		"lines": []map[string]any{
			{"account_id": f.accounts["6000"].ID, "debit": "250.00"},
			{"account_id": f.accounts["1010"].ID, "credit": "100.00"},
		},
	}
	resp, raw := f.do(t, http.MethodPost, "/v1/entries", body)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status %d: %s", resp.StatusCode, raw)
	}
	var e struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Code != "unbalanced_entry" {
		t.Fatalf("expected unbalanced_entry, got %q (%s)", e.Code, e.Error)
	}
}

func TestPostEntry_BadDate(t *testing.T) {
	f := setup(t)

	body := entryBody(f, "6000", "1010", "10.00", false)
	body["date"] = "10/02/2025"
	resp, raw := f.do(t, http.MethodPost, "/v1/entries", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", resp.StatusCode, raw)
	}
}

func TestGetEntry_NotFound(t *testing.T) {
	f := setup(t)

	resp, _ := f.do(t, http.MethodGet, "/v1/entries/"+uuid.New().String(), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d", resp.StatusCode)
	}
}

func TestDraftThenPost(t *testing.T) {
	f := setup(t)

	resp, raw := f.do(t, http.MethodPost, "/v1/entries", entryBody(f, "6000", "1010", "42.00", false))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", resp.StatusCode, raw)
	}
	var draft struct {
		ID     uuid.UUID `json:"id"`
		Posted bool      `json:"posted"`
	}
	if err := json.Unmarshal(raw, &draft); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if draft.Posted {
		t.Fatal("expected a draft")
	}

	resp, raw = f.do(t, http.MethodPost, "/v1/entries/"+draft.ID.String()+"/post", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post status %d: %s", resp.StatusCode, raw)
	}
	var posted struct {
		Posted bool `json:"posted"`
	}
	if err := json.Unmarshal(raw, &posted); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !posted.Posted {
		t.Fatalf("entry not posted: %s", raw)
	}
}

func TestReverseEntry_Conflict(t *testing.T) {
	f := setup(t)

	// A draft cannot be reversed.
	_, raw := f.do(t, http.MethodPost, "/v1/entries", entryBody(f, "6000", "1010", "42.00", false))
	var draft struct {
		ID uuid.UUID `json:"id"`
	}
	if err := json.Unmarshal(raw, &draft); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	resp, raw := f.do(t, http.MethodPost, "/v1/entries/"+draft.ID.String()+"/reverse", map[string]any{"date": "2025-02-11"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d: %s", resp.StatusCode, raw)
	}
}

func TestInvoiceFlow(t *testing.T) {
	f := setup(t)

	body := map[string]any{
		"kind":       "sales_invoice",
		"party_id":   f.customer.ID,
		"issue_date": "2025-02-01",
		"due_date":   "2025-03-01",
		"lines": []map[string]any{
			{"description": "Consulting", "account_id": f.accounts["4000"].ID, "quantity": "1", "unit_price": "100.00", "tax_code": "SR"},
		},
	}
	resp, raw := f.do(t, http.MethodPost, "/v1/invoices", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", resp.StatusCode, raw)
	}
	var inv struct {
		ID        uuid.UUID       `json:"id"`
		Number    string          `json:"number"`
		Status    string          `json:"status"`
		Subtotal  decimal.Decimal `json:"subtotal"`
		TaxAmount decimal.Decimal `json:"tax_amount"`
		Total     decimal.Decimal `json:"total"`
	}
	if err := json.Unmarshal(raw, &inv); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !inv.Total.Equal(decimal.RequireFromString("109.00")) {
		t.Fatalf("total wrong: %s", raw)
	}

	resp, raw = f.do(t, http.MethodPost, fmt.Sprintf("/v1/invoices/%s/approve", inv.ID), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", resp.StatusCode, raw)
	}
	var approved struct {
		Status         string     `json:"status"`
		JournalEntryID *uuid.UUID `json:"journal_entry_id"`
	}
	if err := json.Unmarshal(raw, &approved); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if approved.Status != "approved" || approved.JournalEntryID == nil {
		t.Fatalf("approval wrong: %s", raw)
	}

	// The posted entry shows up in the trial balance.
	resp, raw = f.do(t, http.MethodGet, "/v1/reports/trial-balance?as_of=2025-03-31", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("report status %d: %s", resp.StatusCode, raw)
	}
	var tb struct {
		TotalDebits  decimal.Decimal `json:"total_debits"`
		TotalCredits decimal.Decimal `json:"total_credits"`
	}
	if err := json.Unmarshal(raw, &tb); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !tb.TotalDebits.Equal(tb.TotalCredits) || tb.TotalDebits.IsZero() {
		t.Fatalf("trial balance wrong: %s", raw)
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	f := setup(t)

	body := entryBody(f, "6000", "1010", "10.00", false)
	body["bogus"] = true
	resp, raw := f.do(t, http.MethodPost, "/v1/entries", body)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d: %s", resp.StatusCode, raw)
	}
}

func TestHealthz(t *testing.T) {
	f := setup(t)

	resp, _ := f.do(t, http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	resp, _ = f.do(t, http.MethodGet, "/readyz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
}
