package reminder

import (
	"testing"
	"time"
)

func TestNextOccurrenceFixedTypes(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, time.March, 10, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		pattern RecurrencePattern
		want    time.Time
	}{
		{
			name:    "daily",
			pattern: RecurrencePattern{Type: RecurDaily, Interval: 1},
			want:    base.AddDate(0, 0, 1),
		},
		{
			name:    "every third day",
			pattern: RecurrencePattern{Type: RecurDaily, Interval: 3},
			want:    base.AddDate(0, 0, 3),
		},
		{
			name:    "weekly",
			pattern: RecurrencePattern{Type: RecurWeekly, Interval: 1},
			want:    base.AddDate(0, 0, 7),
		},
		{
			name:    "biweekly",
			pattern: RecurrencePattern{Type: RecurWeekly, Interval: 2},
			want:    base.AddDate(0, 0, 14),
		},
		{
			name:    "monthly",
			pattern: RecurrencePattern{Type: RecurMonthly, Interval: 1},
			want:    time.Date(2026, time.April, 10, 9, 30, 0, 0, time.UTC),
		},
		{
			name:    "yearly",
			pattern: RecurrencePattern{Type: RecurYearly, Interval: 1},
			want:    time.Date(2027, time.March, 10, 9, 30, 0, 0, time.UTC),
		},
		{
			name:    "zero interval treated as one",
			pattern: RecurrencePattern{Type: RecurDaily},
			want:    base.AddDate(0, 0, 1),
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NextOccurrence(base, tt.pattern, 0)
			if !ok {
				t.Fatalf("NextOccurrence not ok")
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextOccurrence = %v, want %v", got, tt.want)
			}
			if !got.After(base) {
				t.Fatalf("next %v is not after current %v", got, base)
			}
		})
	}
}

func TestNextOccurrenceMonthlyClamps(t *testing.T) {
	t.Parallel()
	jan31 := time.Date(2026, time.January, 31, 8, 0, 0, 0, time.UTC)

	got, ok := NextOccurrence(jan31, RecurrencePattern{Type: RecurMonthly, Interval: 1}, 0)
	if !ok {
		t.Fatal("NextOccurrence not ok")
	}
	want := time.Date(2026, time.February, 28, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Jan 31 + 1 month = %v, want %v", got, want)
	}

	// Leap year keeps the 29th.
	jan2028 := time.Date(2028, time.January, 31, 8, 0, 0, 0, time.UTC)
	got, ok = NextOccurrence(jan2028, RecurrencePattern{Type: RecurMonthly, Interval: 1}, 0)
	if !ok {
		t.Fatal("NextOccurrence not ok")
	}
	want = time.Date(2028, time.February, 29, 8, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Jan 31 + 1 month (leap) = %v, want %v", got, want)
	}
}

func TestNextOccurrenceEndDate(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	end := base.AddDate(0, 0, 5)

	p := RecurrencePattern{Type: RecurDaily, Interval: 1, EndDate: &end}
	if _, ok := NextOccurrence(base, p, 0); !ok {
		t.Fatal("within end date, expected ok")
	}

	p.Type = RecurWeekly
	if _, ok := NextOccurrence(base, p, 0); ok {
		t.Fatal("next fire is past end date, expected exhausted chain")
	}
}

func TestNextOccurrenceMaxOccurrences(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	p := RecurrencePattern{Type: RecurDaily, Interval: 1, MaxOccurrences: 3}

	// Instances 0 and 1 may spawn a successor; instance 2 is the last.
	if _, ok := NextOccurrence(base, p, 0); !ok {
		t.Fatal("occurrence 0 should spawn")
	}
	if _, ok := NextOccurrence(base, p, 1); !ok {
		t.Fatal("occurrence 1 should spawn")
	}
	if _, ok := NextOccurrence(base, p, 2); ok {
		t.Fatal("occurrence 2 is the last of 3, must not spawn")
	}
}

func TestNextOccurrenceCustomWeekdays(t *testing.T) {
	t.Parallel()
	// 2026-03-10 is a Tuesday.
	base := time.Date(2026, time.March, 10, 18, 0, 0, 0, time.UTC)
	p := RecurrencePattern{
		Type:       RecurCustom,
		Interval:   1,
		DaysOfWeek: []time.Weekday{time.Monday, time.Friday},
	}

	got, ok := NextOccurrence(base, p, 0)
	if !ok {
		t.Fatal("NextOccurrence not ok")
	}
	if got.Weekday() != time.Friday {
		t.Fatalf("weekday = %v, want Friday", got.Weekday())
	}
	if want := time.Date(2026, time.March, 13, 18, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("next = %v, want %v", got, want)
	}
}

func TestNextOccurrenceCustomImpossible(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	p := RecurrencePattern{
		Type:         RecurCustom,
		Interval:     1,
		DaysOfMonth:  []int{31},
		MonthsOfYear: []time.Month{time.February},
	}
	if _, ok := NextOccurrence(base, p, 0); ok {
		t.Fatal("Feb 31 can never match, expected exhausted chain")
	}
}

func TestNextOccurrenceAlwaysAdvances(t *testing.T) {
	t.Parallel()
	cur := time.Date(2026, time.January, 31, 7, 15, 0, 0, time.UTC)
	p := RecurrencePattern{Type: RecurMonthly, Interval: 1}

	// Walk a year of monthly fires; the chain must strictly advance.
	for i := 0; i < 12; i++ {
		next, ok := NextOccurrence(cur, p, i)
		if !ok {
			t.Fatalf("chain exhausted unexpectedly at step %d", i)
		}
		if !next.After(cur) {
			t.Fatalf("step %d: %v is not after %v", i, next, cur)
		}
		cur = next
	}
}
