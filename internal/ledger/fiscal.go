package ledger

import (
	"time"

	"github.com/google/uuid"
)

// PeriodStatus controls whether postings are permitted into a period.
type PeriodStatus string

const (
	PeriodOpen     PeriodStatus = "open"
	PeriodClosed   PeriodStatus = "closed"
	PeriodArchived PeriodStatus = "archived"
)

// FiscalYear is a non-overlapping date range owning its periods.
type FiscalYear struct {
	ID    uuid.UUID
	Name  string
	Start time.Time
	End   time.Time
	Audit Audit
}

// FiscalPeriod is a dated interval inside a year. Numbering is unique
// within the year.
type FiscalPeriod struct {
	ID     uuid.UUID
	YearID uuid.UUID
	Number int
	Name   string
	Start  time.Time
	End    time.Time
	Status PeriodStatus
	Audit  Audit
}

// Contains reports whether d falls inside the period (date precision).
func (p FiscalPeriod) Contains(d time.Time) bool {
	day := DateOnly(d)
	return !day.Before(DateOnly(p.Start)) && !day.After(DateOnly(p.End))
}

// Contains reports whether d falls inside the fiscal year.
func (y FiscalYear) Contains(d time.Time) bool {
	day := DateOnly(d)
	return !day.Before(DateOnly(y.Start)) && !day.After(DateOnly(y.End))
}

// DateOnly truncates t to a UTC calendar date. All fiscal math compares
// dates, never instants.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
