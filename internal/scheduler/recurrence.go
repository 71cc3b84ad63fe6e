package scheduler

import (
	"fmt"
	"time"

	"github.com/nkapoor/subscription-billing-system/internal/domain"
)

// Recurrence describes when a subscription bills, anchored to its billing
// date: monthly on the same day of month, quarterly on the same day every
// three months, annually on the same day and month.
type Recurrence struct {
	Cycle string     `json:"cycle"`
	Day   int        `json:"day"`
	Month time.Month `json:"month,omitempty"`
}

// DeriveRecurrencePattern builds the recurrence for a billing cycle
// anchored at date. Unknown cycles yield domain.ErrInvalidState.
func DeriveRecurrencePattern(cycle string, date time.Time) (Recurrence, error) {
	switch cycle {
	case domain.CycleMonthly, domain.CycleQuarterly:
		return Recurrence{Cycle: cycle, Day: date.Day()}, nil
	case domain.CycleAnnually:
		return Recurrence{Cycle: cycle, Day: date.Day(), Month: date.Month()}, nil
	default:
		return Recurrence{}, fmt.Errorf("%w: unknown billing cycle %q", domain.ErrInvalidState, cycle)
	}
}

// interval returns the cycle length in (years, months).
func (r Recurrence) interval() (int, int) {
	switch r.Cycle {
	case domain.CycleQuarterly:
		return 0, 3
	case domain.CycleAnnually:
		return 1, 0
	default:
		return 0, 1
	}
}

// Next returns the billing date one cycle after from.
func (r Recurrence) Next(from time.Time) time.Time {
	years, months := r.interval()
	return from.AddDate(years, months, 0)
}

// NextBillingDate advances from by one billing cycle.
func NextBillingDate(cycle string, from time.Time) (time.Time, error) {
	rec, err := DeriveRecurrencePattern(cycle, from)
	if err != nil {
		return time.Time{}, err
	}
	return rec.Next(from), nil
}
