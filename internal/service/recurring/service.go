// Package recurring generates journal entries from template patterns on a
// schedule. Generation is idempotent per (pattern, scheduled date).
package recurring

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/service/journal"
)

// Repo defines read operations for patterns and templates.
type Repo interface {
	// DuePatterns returns active patterns with next_generation_date <= asOf.
	DuePatterns(ctx context.Context, asOf time.Time) ([]ledger.RecurringPattern, error)
	Pattern(ctx context.Context, id uuid.UUID) (ledger.RecurringPattern, error)
	EntryByID(ctx context.Context, id uuid.UUID) (ledger.JournalEntry, error)
}

// Writer persists one generated occurrence atomically: the posted entry,
// the generation marker, and the advanced pattern. The store rejects a
// duplicate (pattern, scheduled date) marker, making retries no-ops.
type Writer interface {
	SaveGeneration(ctx context.Context, pattern ledger.RecurringPattern, scheduled time.Time, entry ledger.JournalEntry) error
}

// Result reports one pattern's outcome in a generation batch.
type Result struct {
	PatternID uuid.UUID
	EntryID   uuid.UUID
	EntryNo   string
	Scheduled time.Time
	Skipped   bool
	Err       error
}

// Service runs scheduled generation.
type Service interface {
	// GenerateDue processes every due pattern as of asOf. Work is chunked
	// per pattern so cancellation leaves a consistent prefix committed.
	GenerateDue(ctx context.Context, asOf time.Time, actor string) ([]Result, error)
}

type service struct {
	repo    Repo
	writer  Writer
	journal journal.Service
	now     func() time.Time
}

func New(repo Repo, writer Writer, js journal.Service) Service {
	return &service{repo: repo, writer: writer, journal: js, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) GenerateDue(ctx context.Context, asOf time.Time, actor string) ([]Result, error) {
	patterns, err := s.repo.DuePatterns(ctx, asOf)
	if err != nil {
		return nil, err
	}
	results := make([]Result, 0, len(patterns))
	for _, pat := range patterns {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := s.generateOne(ctx, pat, actor)
		results = append(results, res)
	}
	return results, nil
}

func (s *service) generateOne(ctx context.Context, pat ledger.RecurringPattern, actor string) Result {
	scheduled := ledger.DateOnly(pat.NextGenerationDate)
	res := Result{PatternID: pat.ID, Scheduled: scheduled}

	template, err := s.repo.EntryByID(ctx, pat.TemplateEntryID)
	if err != nil {
		res.Err = err
		return res
	}
	lines := make([]ledger.JournalLine, len(template.Lines))
	for i, ln := range template.Lines {
		nl := ln
		nl.ID = uuid.Nil
		nl.EntryID = uuid.Nil
		lines[i] = nl
	}
	entry, err := s.journal.BuildPosted(ctx, ledger.JournalEntry{
		Type:        template.Type,
		Date:        scheduled,
		Description: template.Description,
		SourceType:  ledger.SourceRecurring,
		SourceID:    &pat.ID,
		Lines:       lines,
	}, actor)
	if err != nil {
		res.Err = err
		return res
	}

	pat.LastGeneratedDate = &scheduled
	pat.NextGenerationDate = NextDate(pat, scheduled)
	if pat.EndDate != nil && pat.NextGenerationDate.After(ledger.DateOnly(*pat.EndDate)) {
		pat.Active = false
	}
	pat.Audit.Touch(actor, s.now())

	if err := s.writer.SaveGeneration(ctx, pat, scheduled, entry); err != nil {
		if errors.Is(err, errs.ErrStateConflict) {
			// Another run already generated this occurrence.
			res.Skipped = true
			return res
		}
		res.Err = err
		return res
	}
	res.EntryID = entry.ID
	res.EntryNo = entry.EntryNo
	return res
}

// NextDate advances a schedule from the given occurrence by
// (frequency, interval), clamping day-of-month overflow to the last day of
// the target month (Jan 31 + 1 month -> Feb 28/29).
func NextDate(pat ledger.RecurringPattern, from time.Time) time.Time {
	interval := pat.Interval
	if interval <= 0 {
		interval = 1
	}
	from = ledger.DateOnly(from)
	switch pat.Frequency {
	case ledger.FreqDaily:
		return from.AddDate(0, 0, interval)
	case ledger.FreqWeekly:
		next := from.AddDate(0, 0, 7*interval)
		if pat.DayOfWeek != nil {
			for next.Weekday() != *pat.DayOfWeek {
				next = next.AddDate(0, 0, 1)
			}
		}
		return next
	case ledger.FreqMonthly:
		return addMonthsClamped(from, interval, pat.DayOfMonth)
	case ledger.FreqQuarterly:
		return addMonthsClamped(from, 3*interval, pat.DayOfMonth)
	case ledger.FreqYearly:
		return addMonthsClamped(from, 12*interval, pat.DayOfMonth)
	}
	return from.AddDate(0, 0, 1)
}

func addMonthsClamped(from time.Time, months int, anchorDay *int) time.Time {
	day := from.Day()
	if anchorDay != nil && *anchorDay >= 1 && *anchorDay <= 31 {
		day = *anchorDay
	}
	y, m, _ := from.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	last := first.AddDate(0, 1, -1).Day()
	if day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}
