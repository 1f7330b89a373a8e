// Package calendar computes the anchored 7-day billing periods of the fund
// and, separately, ISO-8601 calendar weeks for the legacy weekly view.
package calendar

import (
	"fmt"
	"time"

	"ClassFund/internal/model"
)

const day = 24 * time.Hour

// Day truncates t to 00:00 UTC of its UTC calendar date.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)) / day)
}

func periodAt(anchor time.Time, index int) model.Period {
	start := Day(anchor).AddDate(0, 0, (index-1)*model.PeriodLengthDays)
	return model.Period{
		Index: index,
		Start: start,
		End:   start.AddDate(0, 0, model.PeriodLengthDays-1),
	}
}

// PeriodsFrom returns every period starting at anchor whose start date is on
// or before through. A through date before the anchor yields no periods.
func PeriodsFrom(anchor, through time.Time) []model.Period {
	if Day(through).Before(Day(anchor)) {
		return nil
	}
	n := daysBetween(anchor, through)/model.PeriodLengthDays + 1
	periods := make([]model.Period, 0, n)
	for i := 1; i <= n; i++ {
		periods = append(periods, periodAt(anchor, i))
	}
	return periods
}

// PeriodContaining returns the 1-based index of the period that contains date.
func PeriodContaining(date, anchor time.Time) (int, error) {
	if Day(date).Before(Day(anchor)) {
		return 0, fmt.Errorf("%w: %s is before anchor %s", model.ErrInvalidPeriodRange,
			Day(date).Format(time.DateOnly), Day(anchor).Format(time.DateOnly))
	}
	return daysBetween(anchor, date)/model.PeriodLengthDays + 1, nil
}

// PeriodByIndex returns the period with the given 1-based index.
func PeriodByIndex(anchor time.Time, index int) (model.Period, error) {
	if index < 1 {
		return model.Period{}, fmt.Errorf("%w: period index %d", model.ErrInvalidPeriodRange, index)
	}
	return periodAt(anchor, index), nil
}

// PeriodsBetween returns the periods overlapping [from, through]. Days before
// the anchor are ignored.
func PeriodsBetween(anchor, from, through time.Time) ([]model.Period, error) {
	if Day(through).Before(Day(from)) {
		return nil, fmt.Errorf("%w: %s is before %s", model.ErrInvalidPeriodRange,
			Day(through).Format(time.DateOnly), Day(from).Format(time.DateOnly))
	}
	var out []model.Period
	for _, p := range PeriodsFrom(anchor, through) {
		if p.End.Before(Day(from)) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// PeriodsInMonth returns the periods whose end date falls inside the given
// calendar month, so every returned period has fully elapsed once the month
// is over. Every period belongs to exactly one month.
func PeriodsInMonth(anchor time.Time, year int, month time.Month) []model.Period {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)
	var out []model.Period
	for _, p := range PeriodsFrom(anchor, last) {
		if p.End.Before(first) || p.End.After(last) {
			continue
		}
		out = append(out, p)
	}
	return out
}
