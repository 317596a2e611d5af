package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/gobooks/ledger/internal/config"
	v1 "github.com/gobooks/ledger/internal/httpapi/v1"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/fiscal"
	"github.com/gobooks/ledger/internal/service/fx"
	"github.com/gobooks/ledger/internal/service/journal"
	"github.com/gobooks/ledger/internal/service/numbering"
	"github.com/gobooks/ledger/internal/service/recurring"
	"github.com/gobooks/ledger/internal/service/revaluation"
	"github.com/gobooks/ledger/internal/storage/memory"
	pgstore "github.com/gobooks/ledger/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:           "gobooks",
		Short:         "Double-entry accounting engine for small businesses",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(serveCmd(), generateCmd(), revalueCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildLogger(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.LogFormat) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// openStore selects postgres when DATABASE_URL is set, the in-memory store
// otherwise. The memory store gets the dev seed when DEV_SEED is on.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (v1.Store, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("storage backend: postgres")
		return pg, pg.Close, nil
	}
	store := memory.New()
	seedSequences(store)
	if cfg.DevSeed {
		seedDev(store, cfg, logger)
	}
	logger.Info("storage backend: memory")
	return store, func() {}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := config.Load()
			logger := buildLogger(cfg)
			slog.SetDefault(logger)

			store, closeStore, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			srv := &http.Server{
				Addr:              cfg.Addr,
				Handler:           v1.New(store, &cfg, logger).Handler(),
				ReadTimeout:       5 * time.Second,
				ReadHeaderTimeout: 5 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("accounting service listening", "addr", srv.Addr, "base_currency", cfg.BaseCurrency)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("server shutdown error", "err", err)
				}
			case err := <-errCh:
				return err
			}
			return nil
		},
	}
}

func generateCmd() *cobra.Command {
	var asOfFlag string
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate due recurring journal entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.Load()
			logger := buildLogger(cfg)

			store, closeStore, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			asOf, err := flagDate(asOfFlag)
			if err != nil {
				return err
			}
			js := newJournal(store, cfg)
			results, err := recurring.New(store, store, js).GenerateDue(ctx, asOf, "scheduler")
			if err != nil {
				return err
			}
			for _, res := range results {
				switch {
				case res.Err != nil:
					logger.Error("generation failed", "pattern_id", res.PatternID, "scheduled", res.Scheduled, "err", res.Err)
				case res.Skipped:
					logger.Info("generation skipped", "pattern_id", res.PatternID, "scheduled", res.Scheduled)
				default:
					logger.Info("entry generated", "pattern_id", res.PatternID, "entry_no", res.EntryNo, "scheduled", res.Scheduled)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&asOfFlag, "as-of", "", "generation date (YYYY-MM-DD, default today)")
	return cmd
}

func revalueCmd() *cobra.Command {
	var asOfFlag string
	cmd := &cobra.Command{
		Use:   "revalue",
		Short: "Post the unrealized FX revaluation for a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.Load()
			logger := buildLogger(cfg)

			store, closeStore, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			asOf, err := flagDate(asOfFlag)
			if err != nil {
				return err
			}
			js := newJournal(store, cfg)
			revaluer := revaluation.New(store, store, js, fx.New(store), cfg.BaseCurrency, revaluation.Accounts{
				FXGainCode: cfg.SysAcc.FXGain,
				FXLossCode: cfg.SysAcc.FXLoss,
				ARCode:     cfg.SysAcc.DefaultAR,
				APCode:     cfg.SysAcc.DefaultAP,
			})
			res, err := revaluer.RevalueUnrealized(ctx, asOf, "scheduler")
			if err != nil {
				return err
			}
			if res.EntryID == nil {
				logger.Info("nothing to revalue", "as_of", res.AsOf)
				return nil
			}
			logger.Info("revaluation posted",
				"as_of", res.AsOf,
				"entry_id", res.EntryID,
				"reversal_entry_id", res.ReversalEntryID,
				"net_gain", res.NetGain,
				"items", len(res.Items),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&asOfFlag, "as-of", "", "revaluation date (YYYY-MM-DD, default today)")
	return cmd
}

func newJournal(store v1.Store, cfg config.Config) journal.Service {
	numbers := numbering.New(store)
	calendar := fiscal.New(store, store)
	rates := fx.New(store)
	return journal.New(store, store, numbers, calendar, rates, cfg.BaseCurrency)
}

func flagDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", raw)
	}
	return d, nil
}

// seedSequences installs the document number sequences every install needs.
func seedSequences(store *memory.Store) {
	for name, prefix := range map[string]string{
		ledger.SeqJournalEntry:    "JE-",
		ledger.SeqSalesInvoice:    "INV-",
		ledger.SeqPurchaseInvoice: "BILL-",
		ledger.SeqPayment:         "PAY-",
		ledger.SeqWHTCertificate:  "WHT-",
		ledger.SeqReconciliation:  "REC-",
	} {
		store.SeedSequence(ledger.Sequence{
			Name:        name,
			Prefix:      prefix,
			NextValue:   1,
			IncrementBy: 1,
			MinValue:    1,
			Pad:         6,
		})
	}
}

// seedDev loads a small Singapore chart of accounts, GST codes, the current
// calendar year, and a bank account so the API is usable out of the box.
func seedDev(store *memory.Store, cfg config.Config, logger *slog.Logger) {
	now := time.Now().UTC()
	type acc struct {
		code, name, subType string
		typ                 ledger.AccountType
		control, bank       bool
	}
	accs := []acc{
		{cfg.SysAcc.CashOnHand, "Cash on Hand", "cash", ledger.AccountTypeAsset, false, false},
		{cfg.SysAcc.DefaultCash, "DBS Current Account", "bank", ledger.AccountTypeAsset, false, true},
		{cfg.SysAcc.DefaultAR, "Accounts Receivable", "accounts_receivable", ledger.AccountTypeAsset, true, false},
		{cfg.SysAcc.GSTInput, "GST Input Tax", "other_current_asset", ledger.AccountTypeAsset, false, false},
		{cfg.SysAcc.DefaultAP, "Accounts Payable", "accounts_payable", ledger.AccountTypeLiability, true, false},
		{cfg.SysAcc.GSTOutput, "GST Output Tax", "gst_payable", ledger.AccountTypeLiability, false, false},
		{cfg.SysAcc.WHTPayable, "Withholding Tax Payable", "wht_payable", ledger.AccountTypeLiability, false, false},
		{"3000", "Share Capital", "share_capital", ledger.AccountTypeEquity, false, false},
		{"4000", "Sales Revenue", "operating_revenue", ledger.AccountTypeRevenue, false, false},
		{cfg.SysAcc.FXGain, "Foreign Exchange Gain", "other_income", ledger.AccountTypeRevenue, false, false},
		{"6000", "General Expenses", "operating_expense", ledger.AccountTypeExpense, false, false},
		{cfg.SysAcc.FXLoss, "Foreign Exchange Loss", "other_expense", ledger.AccountTypeExpense, false, false},
	}
	var bankGL uuid.UUID
	for _, a := range accs {
		account := ledger.Account{
			ID:        uuid.New(),
			Code:      a.code,
			Name:      a.name,
			Type:      a.typ,
			SubType:   a.subType,
			IsControl: a.control,
			IsBank:    a.bank,
			Active:    true,
		}
		account.Audit.Touch("seed", now)
		store.SeedAccount(account)
		if a.bank {
			bankGL = account.ID
		}
	}

	bank := ledger.BankAccount{
		ID:          uuid.New(),
		Name:        "DBS Current Account",
		Currency:    cfg.BaseCurrency,
		GLAccountID: bankGL,
		Active:      true,
	}
	bank.Audit.Touch("seed", now)
	store.SeedBankAccount(bank)

	store.SeedTaxCode(ledger.TaxCode{Code: "SR", Name: "Standard-Rated Supply", Kind: ledger.TaxGSTOutput, Rate: decimal.RequireFromString("9.00"), Active: true})
	store.SeedTaxCode(ledger.TaxCode{Code: "TX", Name: "Taxable Purchase", Kind: ledger.TaxGSTInput, Rate: decimal.RequireFromString("9.00"), Active: true})
	store.SeedTaxCode(ledger.TaxCode{Code: "ZR", Name: "Zero-Rated Supply", Kind: ledger.TaxGSTOutput, Rate: decimal.Zero, Active: true})

	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	year := ledger.FiscalYear{ID: uuid.New(), Name: fmt.Sprintf("FY%d", now.Year()), Start: yearStart, End: yearEnd}
	var periods []ledger.FiscalPeriod
	for m := 1; m <= 12; m++ {
		start := time.Date(now.Year(), time.Month(m), 1, 0, 0, 0, 0, time.UTC)
		periods = append(periods, ledger.FiscalPeriod{
			ID:     uuid.New(),
			YearID: year.ID,
			Number: m,
			Name:   start.Format("Jan 2006"),
			Start:  start,
			End:    start.AddDate(0, 1, -1),
			Status: ledger.PeriodOpen,
		})
	}
	store.SeedFiscalYear(year, periods)

	store.SeedRate(ledger.ExchangeRate{From: "USD", To: cfg.BaseCurrency, Date: yearStart, Rate: decimal.RequireFromString("1.350000")})

	logger.Info("dev seed loaded",
		"accounts", len(accs),
		"bank_account_id", bank.ID.String(),
		"fiscal_year", year.Name,
	)
}
