package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
)

// CreateJournalEntry persists an entry. Entry numbers are unique.
func (s *Store) CreateJournalEntry(_ context.Context, entry ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createEntryLocked(entry)
}

func (s *Store) createEntryLocked(entry ledger.JournalEntry) (ledger.JournalEntry, error) {
	if entry.EntryNo != "" {
		if _, taken := s.entryNos[entry.EntryNo]; taken {
			return ledger.JournalEntry{}, errs.ErrStateConflict
		}
	}
	e := entry
	e.Lines = append([]ledger.JournalLine(nil), entry.Lines...)
	s.entries[e.ID] = &e
	if e.EntryNo != "" {
		s.entryNos[e.EntryNo] = e.ID
	}
	return e, nil
}

// EntryByID returns one entry.
func (s *Store) EntryByID(_ context.Context, id uuid.UUID) (ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	out := *e
	out.Lines = append([]ledger.JournalLine(nil), e.Lines...)
	return out, nil
}

// ListEntries returns entries ordered by (date, entry no). Nil bounds are
// open-ended.
func (s *Store) ListEntries(_ context.Context, from, to *time.Time) ([]ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.JournalEntry, 0, len(s.entries))
	for _, e := range s.entries {
		if from != nil && ledger.DateOnly(e.Date).Before(ledger.DateOnly(*from)) {
			continue
		}
		if to != nil && ledger.DateOnly(e.Date).After(ledger.DateOnly(*to)) {
			continue
		}
		c := *e
		c.Lines = append([]ledger.JournalLine(nil), e.Lines...)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].EntryNo < out[j].EntryNo
	})
	return out, nil
}

// MarkPosted flips the posted flag.
func (s *Store) MarkPosted(_ context.Context, entryID uuid.UUID, actor string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[entryID]
	if !ok {
		return errs.ErrNotFound
	}
	e.Posted = true
	e.Audit.Touch(actor, at)
	return nil
}

// SaveReversal persists the reversing entry as posted and flags the
// original as reversed, atomically.
func (s *Store) SaveReversal(_ context.Context, original, reversing ledger.JournalEntry) (ledger.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orig, ok := s.entries[original.ID]
	if !ok {
		return ledger.JournalEntry{}, errs.ErrNotFound
	}
	saved, err := s.createEntryLocked(reversing)
	if err != nil {
		return ledger.JournalEntry{}, err
	}
	orig.Reversed = true
	orig.ReversingEntryID = &saved.ID
	orig.Audit = original.Audit
	return saved, nil
}

// SaveRevaluation persists the adjustment and its next-day reversal.
func (s *Store) SaveRevaluation(_ context.Context, adjustment, reversal ledger.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.createEntryLocked(adjustment); err != nil {
		return err
	}
	if _, err := s.createEntryLocked(reversal); err != nil {
		delete(s.entries, adjustment.ID)
		delete(s.entryNos, adjustment.EntryNo)
		return err
	}
	return nil
}

// PostedLines returns posted lines touching the account ordered by
// (entry date, entry no, line no).
func (s *Store) PostedLines(_ context.Context, accountID uuid.UUID, from, to *time.Time) ([]ledger.PostedLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.PostedLine
	for _, e := range s.entries {
		if !e.Posted {
			continue
		}
		if from != nil && ledger.DateOnly(e.Date).Before(ledger.DateOnly(*from)) {
			continue
		}
		if to != nil && ledger.DateOnly(e.Date).After(ledger.DateOnly(*to)) {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID != accountID {
				continue
			}
			out = append(out, ledger.PostedLine{
				Line:        l,
				EntryID:     e.ID,
				EntryNo:     e.EntryNo,
				Date:        e.Date,
				Description: e.Description,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].EntryNo != out[j].EntryNo {
			return out[i].EntryNo < out[j].EntryNo
		}
		return out[i].Line.LineNo < out[j].Line.LineNo
	})
	return out, nil
}

// DuePatterns returns active patterns due on or before asOf.
func (s *Store) DuePatterns(_ context.Context, asOf time.Time) ([]ledger.RecurringPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := ledger.DateOnly(asOf)
	var out []ledger.RecurringPattern
	for _, p := range s.patterns {
		if p.Active && !ledger.DateOnly(p.NextGenerationDate).After(day) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Pattern returns one recurring pattern.
func (s *Store) Pattern(_ context.Context, id uuid.UUID) (ledger.RecurringPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patterns[id]
	if !ok {
		return ledger.RecurringPattern{}, errs.ErrNotFound
	}
	return p, nil
}

// ListPatterns returns all patterns sorted by name.
func (s *Store) ListPatterns(_ context.Context) ([]ledger.RecurringPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ledger.RecurringPattern, 0, len(s.patterns))
	for _, p := range s.patterns {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreatePattern persists a recurring pattern.
func (s *Store) CreatePattern(_ context.Context, p ledger.RecurringPattern) (ledger.RecurringPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns[p.ID] = p
	return p, nil
}

// UpdatePattern replaces a recurring pattern.
func (s *Store) UpdatePattern(_ context.Context, p ledger.RecurringPattern) (ledger.RecurringPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patterns[p.ID]; !ok {
		return ledger.RecurringPattern{}, errs.ErrNotFound
	}
	s.patterns[p.ID] = p
	return p, nil
}

// SaveGeneration persists one generated entry together with the advanced
// pattern, guarded by the (pattern, scheduled date) idempotency marker.
func (s *Store) SaveGeneration(_ context.Context, pattern ledger.RecurringPattern, scheduled time.Time, entry ledger.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledger.DateOnly(scheduled).Format("2006-01-02")
	marks := s.generated[pattern.ID]
	if marks == nil {
		marks = map[string]uuid.UUID{}
		s.generated[pattern.ID] = marks
	}
	if _, done := marks[key]; done {
		return errs.ErrStateConflict
	}
	if _, err := s.createEntryLocked(entry); err != nil {
		return err
	}
	marks[key] = entry.ID
	s.patterns[pattern.ID] = pattern
	return nil
}
