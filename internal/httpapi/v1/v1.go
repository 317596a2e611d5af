// Package v1 wires the HTTP surface of the accounting service.
// It keeps handlers thin, delegating business rules to the service layer.
package v1

import (
	"log/slog"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/gobooks/ledger/internal/config"
	"github.com/gobooks/ledger/internal/service/document"
	"github.com/gobooks/ledger/internal/service/fiscal"
	"github.com/gobooks/ledger/internal/service/fx"
	"github.com/gobooks/ledger/internal/service/journal"
	"github.com/gobooks/ledger/internal/service/numbering"
	"github.com/gobooks/ledger/internal/service/reconcile"
	"github.com/gobooks/ledger/internal/service/recurring"
	"github.com/gobooks/ledger/internal/service/report"
	"github.com/gobooks/ledger/internal/service/revaluation"
	"github.com/gobooks/ledger/internal/service/tax"
)

// Server wires handlers and middleware using Chi. It composes the store's
// read/write surface through the domain services.
type Server struct {
	store Store

	journal     journal.Service
	documents   document.Service
	calendar    fiscal.Service
	rates       fx.Service
	taxes       tax.Service
	recurring   recurring.Service
	reconciler  reconcile.Service
	reports     report.Service
	revaluer    revaluation.Service

	base string
	log  *slog.Logger
	rt   *chi.Mux
}

// New constructs the HTTP server with routes and middleware.
// The logger is used by request/response logging and panic recovery.
func New(store Store, cfg *config.Config, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestLogger(logger))
	r.Use(recoverer(logger))
	r.Use(metricsMiddleware)

	numbers := numbering.New(store)
	calendar := fiscal.New(store, store)
	rates := fx.New(store)
	taxes := tax.New(store)
	js := journal.New(store, store, numbers, calendar, rates, cfg.BaseCurrency)

	s := &Server{
		store:      store,
		journal:    js,
		documents:  document.New(store, store, js, taxes, rates, numbers, cfg.SysAcc, cfg.BaseCurrency),
		calendar:   calendar,
		rates:      rates,
		taxes:      taxes,
		recurring:  recurring.New(store, store, js),
		reconciler: reconcile.New(store, store, numbers),
		reports:    report.New(store, js, calendar, rates, cfg.BaseCurrency, cfg.SysAcc.CashOnHand),
		revaluer: revaluation.New(store, store, js, rates, cfg.BaseCurrency, revaluation.Accounts{
			FXGainCode: cfg.SysAcc.FXGain,
			FXLossCode: cfg.SysAcc.FXLoss,
			ARCode:     cfg.SysAcc.DefaultAR,
			APCode:     cfg.SysAcc.DefaultAP,
		}),
		base: cfg.BaseCurrency,
		log:  logger,
		rt:   r,
	}
	s.routes()
	return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints.
func (s *Server) routes() {
	// Journal entries
	s.rt.Post("/v1/entries", s.postEntry)
	s.rt.Get("/v1/entries", s.listEntries)
	s.rt.Get("/v1/entries/{id}", s.getEntry)
	s.rt.Post("/v1/entries/{id}/post", s.postEntryPosting)
	s.rt.Post("/v1/entries/{id}/reverse", s.reverseEntry)

	// Chart of accounts
	s.rt.Post("/v1/accounts", s.postAccount)
	s.rt.Get("/v1/accounts", s.listAccounts)
	s.rt.Get("/v1/accounts/{id}", s.getAccount)
	s.rt.Patch("/v1/accounts/{id}", s.updateAccount)
	s.rt.Get("/v1/accounts/{id}/balance", s.getAccountBalance)
	s.rt.Get("/v1/accounts/{id}/ledger", s.getAccountLedger)

	// Parties
	s.rt.Post("/v1/parties", s.postParty)
	s.rt.Get("/v1/parties", s.listParties)
	s.rt.Get("/v1/parties/{id}", s.getParty)
	s.rt.Patch("/v1/parties/{id}", s.updateParty)

	// Invoices
	s.rt.Post("/v1/invoices", s.postInvoice)
	s.rt.Get("/v1/invoices", s.listInvoices)
	s.rt.Get("/v1/invoices/{id}", s.getInvoice)
	s.rt.Post("/v1/invoices/{id}/approve", s.approveInvoice)
	s.rt.Post("/v1/invoices/{id}/void", s.voidInvoice)
	s.rt.Delete("/v1/invoices/{id}", s.deleteInvoice)

	// Payments
	s.rt.Post("/v1/payments", s.postPayment)
	s.rt.Get("/v1/payments", s.listPayments)
	s.rt.Get("/v1/payments/{id}", s.getPayment)
	s.rt.Post("/v1/payments/{id}/approve", s.approvePayment)
	s.rt.Post("/v1/payments/{id}/void", s.voidPayment)
	s.rt.Delete("/v1/payments/{id}", s.deletePayment)
	s.rt.Get("/v1/wht-certificates", s.listWHTCertificates)

	// Banking
	s.rt.Post("/v1/bank-accounts", s.postBankAccount)
	s.rt.Get("/v1/bank-accounts", s.listBankAccounts)
	s.rt.Post("/v1/bank-accounts/{id}/statement", s.importStatement)
	s.rt.Get("/v1/bank-accounts/{id}/reconciliations", s.listReconciliations)
	s.rt.Get("/v1/bank-accounts/{id}/reconcile/candidates", s.reconcileCandidates)
	s.rt.Post("/v1/bank-accounts/{id}/reconcile", s.reconcile)
	s.rt.Delete("/v1/reconciliations/{id}", s.deleteReconciliation)

	// Recurring
	s.rt.Post("/v1/recurring", s.postPattern)
	s.rt.Get("/v1/recurring", s.listPatterns)
	s.rt.Post("/v1/recurring/generate", s.generateRecurring)

	// Fiscal calendar, rates, tax codes
	s.rt.Post("/v1/fiscal-years", s.postFiscalYear)
	s.rt.Get("/v1/fiscal-years", s.listFiscalYears)
	s.rt.Post("/v1/fiscal-periods/{id}/close", s.closePeriod)
	s.rt.Post("/v1/fiscal-years/{id}/close", s.closeYear)
	s.rt.Post("/v1/rates", s.postRate)
	s.rt.Post("/v1/tax-codes", s.postTaxCode)
	s.rt.Get("/v1/tax-codes", s.listTaxCodes)

	// Reports
	s.rt.Get("/v1/reports/trial-balance", s.trialBalance)
	s.rt.Get("/v1/reports/profit-loss", s.profitLoss)
	s.rt.Get("/v1/reports/balance-sheet", s.balanceSheet)
	s.rt.Get("/v1/reports/general-ledger/{accountID}", s.generalLedger)
	s.rt.Get("/v1/reports/aging", s.aging)
	s.rt.Get("/v1/reports/dashboard", s.dashboard)

	// Forex revaluation
	s.rt.Post("/v1/revaluation", s.revalue)

	// Health and metrics (unversioned)
	s.rt.Get("/healthz", s.healthz)
	s.rt.Get("/readyz", s.readyz)
	s.rt.Method(http.MethodGet, "/metrics", metricsHandler())
}
