package calendar

import (
	"fmt"
	"time"
)

// ISOWeek is an ISO-8601 calendar week: Monday-start, week 1 contains the
// year's first Thursday. It is unrelated to the anchored period index.
type ISOWeek struct {
	Year int
	Week int
}

// ISOWeekOf returns the ISO week containing t's UTC date.
func ISOWeekOf(t time.Time) ISOWeek {
	y, w := t.UTC().ISOWeek()
	return ISOWeek{Year: y, Week: w}
}

// Range returns the Monday and Sunday of the week at 00:00 UTC.
func (w ISOWeek) Range() (start, end time.Time) {
	jan4 := time.Date(w.Year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	start = jan4.AddDate(0, 0, (w.Week-1)*7-offset)
	return start, start.AddDate(0, 0, 6)
}

// Contains reports whether t falls on a day of the week.
func (w ISOWeek) Contains(t time.Time) bool {
	return ISOWeekOf(t) == w
}

func (w ISOWeek) String() string {
	return fmt.Sprintf("%04d-W%02d", w.Year, w.Week)
}

// ISOWeeksBetween returns the ISO weeks touching [from, through] in order.
func ISOWeeksBetween(from, through time.Time) []ISOWeek {
	if Day(through).Before(Day(from)) {
		return nil
	}
	var weeks []ISOWeek
	w := ISOWeekOf(from)
	last := ISOWeekOf(through)
	for {
		weeks = append(weeks, w)
		if w == last {
			return weeks
		}
		start, _ := w.Range()
		w = ISOWeekOf(start.AddDate(0, 0, 7))
	}
}
