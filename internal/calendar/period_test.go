package calendar

import (
	"errors"
	"testing"
	"time"

	"ClassFund/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPeriodsFrom_Tiling(t *testing.T) {
	anchors := []time.Time{date(2025, 1, 6), date(2024, 2, 26), date(2023, 12, 31)}
	for _, anchor := range anchors {
		for span := 0; span < 120; span++ {
			through := anchor.AddDate(0, 0, span)
			periods := PeriodsFrom(anchor, through)
			if len(periods) == 0 {
				t.Fatalf("anchor %s span %d: no periods", anchor.Format(time.DateOnly), span)
			}
			if !periods[0].Start.Equal(anchor) {
				t.Fatalf("first period starts %s, want anchor", periods[0].Start)
			}
			for i, p := range periods {
				if p.Index != i+1 {
					t.Fatalf("period %d has index %d", i, p.Index)
				}
				if !p.End.Equal(p.Start.AddDate(0, 0, 6)) {
					t.Fatalf("period %d is not 7 days: %s..%s", p.Index, p.Start, p.End)
				}
				if i > 0 && !p.Start.Equal(periods[i-1].End.AddDate(0, 0, 1)) {
					t.Fatalf("gap or overlap between periods %d and %d", i, i+1)
				}
			}
			last := periods[len(periods)-1]
			if last.Start.After(through) || !through.Before(last.End.AddDate(0, 0, 1)) {
				t.Fatalf("through %s not inside last period %s..%s", through, last.Start, last.End)
			}
		}
	}
}

func TestPeriodsFrom_BeforeAnchor(t *testing.T) {
	if got := PeriodsFrom(date(2025, 1, 6), date(2025, 1, 5)); len(got) != 0 {
		t.Errorf("expected no periods, got %d", len(got))
	}
}

func TestPeriodsFrom_IgnoresTimeOfDay(t *testing.T) {
	anchor := time.Date(2025, 1, 6, 17, 30, 0, 0, time.UTC)
	through := time.Date(2025, 1, 12, 23, 59, 0, 0, time.UTC)
	periods := PeriodsFrom(anchor, through)
	if len(periods) != 1 {
		t.Fatalf("expected 1 period, got %d", len(periods))
	}
	if !periods[0].Start.Equal(date(2025, 1, 6)) {
		t.Errorf("start = %s", periods[0].Start)
	}
}

func TestPeriodContaining(t *testing.T) {
	anchor := date(2025, 1, 6)
	tests := []struct {
		day  time.Time
		want int
	}{
		{date(2025, 1, 6), 1},
		{date(2025, 1, 12), 1},
		{date(2025, 1, 13), 2},
		{time.Date(2025, 1, 20, 15, 4, 5, 0, time.UTC), 3},
		{date(2025, 1, 27), 4},
		{date(2025, 2, 2), 4},
		{date(2025, 2, 3), 5},
	}
	for _, tt := range tests {
		got, err := PeriodContaining(tt.day, anchor)
		if err != nil {
			t.Fatalf("%s: %v", tt.day, err)
		}
		if got != tt.want {
			t.Errorf("%s: expected period %d, got %d", tt.day.Format(time.DateOnly), tt.want, got)
		}
	}

	if _, err := PeriodContaining(date(2025, 1, 5), anchor); !errors.Is(err, model.ErrInvalidPeriodRange) {
		t.Errorf("expected ErrInvalidPeriodRange, got %v", err)
	}
}

func TestPeriodContaining_AgreesWithPeriodsFrom(t *testing.T) {
	anchor := date(2024, 11, 3)
	for span := 0; span < 60; span++ {
		d := anchor.AddDate(0, 0, span)
		idx, err := PeriodContaining(d, anchor)
		if err != nil {
			t.Fatal(err)
		}
		periods := PeriodsFrom(anchor, d)
		if !periods[idx-1].Contains(d) {
			t.Fatalf("%s: period %d does not contain it", d, idx)
		}
	}
}

func TestPeriodByIndex(t *testing.T) {
	p, err := PeriodByIndex(date(2025, 1, 6), 4)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Start.Equal(date(2025, 1, 27)) || !p.End.Equal(date(2025, 2, 2)) {
		t.Errorf("period 4 = %s..%s", p.Start, p.End)
	}
	if _, err := PeriodByIndex(date(2025, 1, 6), 0); !errors.Is(err, model.ErrInvalidPeriodRange) {
		t.Errorf("expected ErrInvalidPeriodRange, got %v", err)
	}
}

func TestPeriodsBetween(t *testing.T) {
	anchor := date(2025, 1, 6)
	periods, err := PeriodsBetween(anchor, date(2025, 1, 15), date(2025, 1, 27))
	if err != nil {
		t.Fatal(err)
	}
	if len(periods) != 3 || periods[0].Index != 2 || periods[2].Index != 4 {
		t.Errorf("unexpected periods: %+v", periods)
	}
	if _, err := PeriodsBetween(anchor, date(2025, 2, 1), date(2025, 1, 1)); !errors.Is(err, model.ErrInvalidPeriodRange) {
		t.Errorf("expected ErrInvalidPeriodRange, got %v", err)
	}
}

func TestPeriodsInMonth(t *testing.T) {
	anchor := date(2025, 1, 6)
	jan := PeriodsInMonth(anchor, 2025, time.January)
	// Period 4 (Jan 27 - Feb 2) ends in February.
	if len(jan) != 3 || jan[0].Index != 1 || jan[2].Index != 3 {
		t.Fatalf("january: unexpected periods %+v", jan)
	}
	feb := PeriodsInMonth(anchor, 2025, time.February)
	if len(feb) != 4 || feb[0].Index != 4 || feb[3].Index != 7 {
		t.Fatalf("february: unexpected periods %+v", feb)
	}
	if got := PeriodsInMonth(anchor, 2024, time.December); len(got) != 0 {
		t.Errorf("month before anchor: expected none, got %d", len(got))
	}

	seen := map[int]bool{}
	for m := time.January; m <= time.December; m++ {
		for _, p := range PeriodsInMonth(anchor, 2025, m) {
			if seen[p.Index] {
				t.Fatalf("period %d assigned to two months", p.Index)
			}
			seen[p.Index] = true
		}
	}
	for i := 1; i <= 51; i++ {
		if !seen[i] {
			t.Errorf("period %d assigned to no month", i)
		}
	}
}
