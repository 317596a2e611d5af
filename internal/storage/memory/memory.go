// Package memory provides a simple in-memory implementation of every
// repository and writer used by the services and the API. It keeps code
// paths easy to follow in development and tests while a real DB backs
// production.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

// Store is an in-memory implementation of the full storage surface.
// It is guarded by an RWMutex for concurrent reads/writes; compound writer
// methods hold the write lock for their whole body, which stands in for a
// database transaction.
type Store struct {
	mu        sync.RWMutex
	accounts  map[uuid.UUID]ledger.Account
	parties   map[uuid.UUID]ledger.Party
	sequences map[string]ledger.Sequence
	years     map[uuid.UUID]ledger.FiscalYear
	periods   map[uuid.UUID]ledger.FiscalPeriod
	rates     []ledger.ExchangeRate
	taxCodes  map[string]ledger.TaxCode

	entries map[uuid.UUID]*ledger.JournalEntry
	// entryNos enforces entry number uniqueness.
	entryNos map[string]uuid.UUID

	invoices map[uuid.UUID]ledger.Invoice
	payments map[uuid.UUID]ledger.Payment
	certs    map[uuid.UUID]ledger.WHTCertificate

	bankAccounts    map[uuid.UUID]ledger.BankAccount
	bankTxns        map[uuid.UUID]ledger.BankTransaction
	reconciliations map[uuid.UUID]ledger.BankReconciliation
	// reconTxns maps reconciliation id -> member transaction ids.
	reconTxns map[uuid.UUID][]uuid.UUID

	patterns map[uuid.UUID]ledger.RecurringPattern
	// generated is the idempotency marker: pattern id -> scheduled date ->
	// generated entry id.
	generated map[uuid.UUID]map[string]uuid.UUID
}

// New constructs an empty in-memory store.
func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.accounts = map[uuid.UUID]ledger.Account{}
	s.parties = map[uuid.UUID]ledger.Party{}
	s.sequences = map[string]ledger.Sequence{}
	s.years = map[uuid.UUID]ledger.FiscalYear{}
	s.periods = map[uuid.UUID]ledger.FiscalPeriod{}
	s.rates = nil
	s.taxCodes = map[string]ledger.TaxCode{}
	s.entries = map[uuid.UUID]*ledger.JournalEntry{}
	s.entryNos = map[string]uuid.UUID{}
	s.invoices = map[uuid.UUID]ledger.Invoice{}
	s.payments = map[uuid.UUID]ledger.Payment{}
	s.certs = map[uuid.UUID]ledger.WHTCertificate{}
	s.bankAccounts = map[uuid.UUID]ledger.BankAccount{}
	s.bankTxns = map[uuid.UUID]ledger.BankTransaction{}
	s.reconciliations = map[uuid.UUID]ledger.BankReconciliation{}
	s.reconTxns = map[uuid.UUID][]uuid.UUID{}
	s.patterns = map[uuid.UUID]ledger.RecurringPattern{}
	s.generated = map[uuid.UUID]map[string]uuid.UUID{}
}

// Reset clears everything. Tests call this between cases.
func (s *Store) Reset() {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
}

// Seed helpers for local dev/tests.
func (s *Store) SeedAccount(a ledger.Account) { s.mu.Lock(); s.accounts[a.ID] = a; s.mu.Unlock() }
func (s *Store) SeedParty(p ledger.Party)     { s.mu.Lock(); s.parties[p.ID] = p; s.mu.Unlock() }
func (s *Store) SeedSequence(seq ledger.Sequence) {
	s.mu.Lock()
	s.sequences[seq.Name] = seq
	s.mu.Unlock()
}
func (s *Store) SeedTaxCode(tc ledger.TaxCode) {
	s.mu.Lock()
	s.taxCodes[strings.ToUpper(tc.Code)] = tc
	s.mu.Unlock()
}
func (s *Store) SeedRate(r ledger.ExchangeRate) { s.mu.Lock(); s.rates = append(s.rates, r); s.mu.Unlock() }
func (s *Store) SeedFiscalYear(y ledger.FiscalYear, periods []ledger.FiscalPeriod) {
	s.mu.Lock()
	s.years[y.ID] = y
	for _, p := range periods {
		s.periods[p.ID] = p
	}
	s.mu.Unlock()
}
func (s *Store) SeedBankAccount(b ledger.BankAccount) {
	s.mu.Lock()
	s.bankAccounts[b.ID] = b
	s.mu.Unlock()
}
func (s *Store) SeedPattern(p ledger.RecurringPattern) {
	s.mu.Lock()
	s.patterns[p.ID] = p
	s.mu.Unlock()
}

// Account implements the account readers.
func (s *Store) Account(_ context.Context, id uuid.UUID) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountLocked(id)
}

func (s *Store) accountLocked(id uuid.UUID) (ledger.Account, error) {
	a, ok := s.accounts[id]
	if !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	return a, nil
}

// AccountByCode resolves an account by its chart code.
func (s *Store) AccountByCode(_ context.Context, code string) (ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Code == code {
			return a, nil
		}
	}
	return ledger.Account{}, errs.ErrNotFound
}

// AccountsByIDs returns the accounts found; absent ids are simply missing
// from the map so callers can detect unknown accounts.
func (s *Store) AccountsByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]ledger.Account, len(ids))
	for _, id := range ids {
		if a, ok := s.accounts[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

// ListAccounts returns the chart sorted by code.
func (s *Store) ListAccounts(_ context.Context) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// CreateAccount persists a new account. Codes are unique.
func (s *Store) CreateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Code == a.Code {
			return ledger.Account{}, errs.ErrStateConflict
		}
	}
	s.accounts[a.ID] = a
	return a, nil
}

// UpdateAccount replaces an existing account.
func (s *Store) UpdateAccount(_ context.Context, a ledger.Account) (ledger.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return ledger.Account{}, errs.ErrNotFound
	}
	s.accounts[a.ID] = a
	return a, nil
}

// Party returns one party.
func (s *Store) Party(_ context.Context, id uuid.UUID) (ledger.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.parties[id]
	if !ok {
		return ledger.Party{}, errs.ErrNotFound
	}
	return p, nil
}

// ListParties returns parties of a kind sorted by name; empty kind means all.
func (s *Store) ListParties(_ context.Context, kind ledger.PartyKind) ([]ledger.Party, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.Party, 0, len(s.parties))
	for _, p := range s.parties {
		if kind != "" && p.Kind != kind {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateParty persists a new party.
func (s *Store) CreateParty(_ context.Context, p ledger.Party) (ledger.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parties[p.ID] = p
	return p, nil
}

// UpdateParty replaces an existing party.
func (s *Store) UpdateParty(_ context.Context, p ledger.Party) (ledger.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.parties[p.ID]; !ok {
		return ledger.Party{}, errs.ErrNotFound
	}
	s.parties[p.ID] = p
	return p, nil
}

// UpdateSequence applies fn to the named sequence under the store's write
// lock, persisting the result only when fn succeeds. Holding the lock across
// the whole read-modify-write serializes concurrent allocators.
func (s *Store) UpdateSequence(_ context.Context, name string, fn func(seq *ledger.Sequence) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[name]
	if !ok {
		return errs.ErrNotFound
	}
	if err := fn(&seq); err != nil {
		return err
	}
	s.sequences[name] = seq
	return nil
}

// PeriodForDate finds the fiscal period containing d.
func (s *Store) PeriodForDate(_ context.Context, d time.Time) (ledger.FiscalPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.periods {
		if p.Contains(d) {
			return p, nil
		}
	}
	return ledger.FiscalPeriod{}, errs.ErrNotFound
}

// FiscalYear returns one fiscal year.
func (s *Store) FiscalYear(_ context.Context, id uuid.UUID) (ledger.FiscalYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	y, ok := s.years[id]
	if !ok {
		return ledger.FiscalYear{}, errs.ErrNotFound
	}
	return y, nil
}

// FiscalYears returns all years sorted by start date.
func (s *Store) FiscalYears(_ context.Context) ([]ledger.FiscalYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.FiscalYear, 0, len(s.years))
	for _, y := range s.years {
		out = append(out, y)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// PeriodsByYear returns a year's periods ordered by number.
func (s *Store) PeriodsByYear(_ context.Context, yearID uuid.UUID) ([]ledger.FiscalPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.FiscalPeriod
	for _, p := range s.periods {
		if p.YearID == yearID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// CreateFiscalYear persists a year with its periods.
func (s *Store) CreateFiscalYear(_ context.Context, y ledger.FiscalYear, periods []ledger.FiscalPeriod) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.years[y.ID] = y
	for _, p := range periods {
		s.periods[p.ID] = p
	}
	return nil
}

// UpdatePeriodStatus flips one period's status.
func (s *Store) UpdatePeriodStatus(_ context.Context, periodID uuid.UUID, status ledger.PeriodStatus, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[periodID]
	if !ok {
		return errs.ErrNotFound
	}
	p.Status = status
	p.Audit.Touch(actor, time.Now().UTC())
	s.periods[periodID] = p
	return nil
}

// RateOnOrBefore returns the latest rate quoted on or before d.
func (s *Store) RateOnOrBefore(_ context.Context, from, to string, d time.Time) (ledger.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := ledger.DateOnly(d)
	var best ledger.ExchangeRate
	found := false
	for _, r := range s.rates {
		if r.From != from || r.To != to || ledger.DateOnly(r.Date).After(day) {
			continue
		}
		if !found || r.Date.After(best.Date) {
			best = r
			found = true
		}
	}
	if !found {
		return ledger.ExchangeRate{}, errs.ErrNotFound
	}
	return best, nil
}

// SaveRate upserts the rate for (from, to, date).
func (s *Store) SaveRate(_ context.Context, r ledger.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	day := ledger.DateOnly(r.Date)
	for i := range s.rates {
		if s.rates[i].From == r.From && s.rates[i].To == r.To && ledger.DateOnly(s.rates[i].Date).Equal(day) {
			s.rates[i] = r
			return nil
		}
	}
	s.rates = append(s.rates, r)
	return nil
}

// TaxCode returns one tax code, case-insensitive.
func (s *Store) TaxCode(_ context.Context, code string) (ledger.TaxCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tc, ok := s.taxCodes[strings.ToUpper(code)]
	if !ok {
		return ledger.TaxCode{}, errs.ErrNotFound
	}
	return tc, nil
}

// ListTaxCodes returns all codes sorted alphabetically.
func (s *Store) ListTaxCodes(_ context.Context) ([]ledger.TaxCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.TaxCode, 0, len(s.taxCodes))
	for _, tc := range s.taxCodes {
		out = append(out, tc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

// SaveTaxCode upserts a tax code.
func (s *Store) SaveTaxCode(_ context.Context, tc ledger.TaxCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taxCodes[strings.ToUpper(tc.Code)] = tc
	return nil
}
