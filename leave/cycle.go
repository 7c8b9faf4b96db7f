package leave

import "time"

// =============================================================================
// CYCLE - The accrual year, anchored at the joining-date anniversary
// =============================================================================

// Cycle is the recurring period over which entitlement accrues and carries
// forward. Cycles are anchored at the employee's joining-date anniversary,
// since date_of_joining is what anchors both probation and accrual. A cycle
// spans [Start, End] inclusive, End being the day before the next anniversary.
type Cycle struct {
	Start time.Time
	End   time.Time
}

// DateOnly normalizes a timestamp to a UTC calendar date.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CycleFor returns the accrual cycle containing asOf for an employee who
// joined on the given date. Before the joining date the first cycle is
// returned; callers are expected to gate on employment separately.
func CycleFor(joined, asOf time.Time) Cycle {
	anchor := DateOnly(joined)
	at := DateOnly(asOf)

	years := at.Year() - anchor.Year()
	start := anchor.AddDate(years, 0, 0)
	if at.Before(start) {
		years--
		start = anchor.AddDate(years, 0, 0)
	}
	if years < 0 {
		start = anchor
	}
	return cycleFrom(start)
}

func cycleFrom(start time.Time) Cycle {
	return Cycle{
		Start: start,
		End:   start.AddDate(1, 0, 0).AddDate(0, 0, -1),
	}
}

// Next returns the cycle that follows this one.
func (c Cycle) Next() Cycle {
	return cycleFrom(c.Start.AddDate(1, 0, 0))
}

// Contains reports whether the date falls within [Start, End].
func (c Cycle) Contains(t time.Time) bool {
	d := DateOnly(t)
	return !d.Before(c.Start) && !d.After(c.End)
}

// Key is the stable identifier for the cycle, used in ledger idempotency
// keys and persisted on every entry.
func (c Cycle) Key() string { return c.Start.Format("2006-01-02") }

func (c Cycle) String() string {
	return "[" + c.Start.Format("2006-01-02") + ", " + c.End.Format("2006-01-02") + "]"
}

// MonthsCompleted returns the number of whole months elapsed between from
// and asOf. A month counts only once its same-day-of-month anniversary has
// been reached; partial months never count.
func MonthsCompleted(from, asOf time.Time) int {
	f := DateOnly(from)
	a := DateOnly(asOf)
	if a.Before(f) {
		return 0
	}
	months := (a.Year()-f.Year())*12 + int(a.Month()) - int(f.Month())
	if a.Day() < f.Day() {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}
