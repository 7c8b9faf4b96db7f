/*
calendar.go - Working-day calendar

PURPOSE:
  A leave request spans calendar dates but only consumes working days.
  The calendar decides which days count: weekends never do, and a
  holiday-backed calendar also excludes configured holidays.

GRANULARITY:
  WorkingDaysBetween returns whole days. Half days enter the system only
  through partial-leave requests, which carry their own day count.
*/
package leave

import (
	"context"
	"time"
)

// WorkingCalendar decides whether a calendar date consumes leave.
type WorkingCalendar interface {
	IsWorkingDay(ctx context.Context, date time.Time) (bool, error)
}

// Holiday is one configured non-working date. Recurring holidays repeat on
// the same month and day every year.
type Holiday struct {
	Date      time.Time
	Name      string
	Recurring bool
}

// HolidaySource lists the configured holidays.
type HolidaySource interface {
	Holidays(ctx context.Context) ([]Holiday, error)
}

// WeekendCalendar counts Monday through Friday as working days.
type WeekendCalendar struct{}

func (WeekendCalendar) IsWorkingDay(_ context.Context, date time.Time) (bool, error) {
	wd := date.Weekday()
	return wd != time.Saturday && wd != time.Sunday, nil
}

// HolidayCalendar excludes weekends and configured holidays.
type HolidayCalendar struct {
	source HolidaySource
}

func NewHolidayCalendar(source HolidaySource) *HolidayCalendar {
	return &HolidayCalendar{source: source}
}

func (c *HolidayCalendar) IsWorkingDay(ctx context.Context, date time.Time) (bool, error) {
	wd := date.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false, nil
	}
	holidays, err := c.source.Holidays(ctx)
	if err != nil {
		return false, err
	}
	d := DateOnly(date)
	for _, h := range holidays {
		hd := DateOnly(h.Date)
		if h.Recurring {
			if hd.Month() == d.Month() && hd.Day() == d.Day() {
				return false, nil
			}
			continue
		}
		if hd.Equal(d) {
			return false, nil
		}
	}
	return true, nil
}

// WorkingDaysBetween counts the working days in [start, end], inclusive.
func WorkingDaysBetween(ctx context.Context, cal WorkingCalendar, start, end time.Time) (Days, error) {
	from, to := DateOnly(start), DateOnly(end)
	if to.Before(from) {
		return Days{}, ErrInvalidDateRange
	}
	count := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		working, err := cal.IsWorkingDay(ctx, d)
		if err != nil {
			return Days{}, err
		}
		if working {
			count++
		}
	}
	return DaysFromInt(count), nil
}
