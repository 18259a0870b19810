package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMonthBounds(t *testing.T) {
	cases := []struct {
		ym          YearMonth
		first, last string
	}{
		{YearMonth{2025, time.February}, "2025-02-01", "2025-02-28"},
		{YearMonth{2024, time.February}, "2024-02-01", "2024-02-29"}, // leap year
		{YearMonth{2025, time.March}, "2025-03-01", "2025-03-31"},
		{YearMonth{2025, time.April}, "2025-04-01", "2025-04-30"},
		{YearMonth{2025, time.December}, "2025-12-01", "2025-12-31"},
	}
	for i, tc := range cases {
		if got := tc.ym.First().String(); got != tc.first {
			t.Fatalf("case %d first: got %s, want %s", i, got, tc.first)
		}
		if got := tc.ym.Last().String(); got != tc.last {
			t.Fatalf("case %d last: got %s, want %s", i, got, tc.last)
		}
	}
}

// A receipt on Feb 28 and one on Mar 1 must land in different buckets.
// Regression for the historical day-31 padding bug that made short months
// bleed into the next one.
func TestMonthBucketShortMonth(t *testing.T) {
	feb := MonthOf(NewDate(2025, time.February, 28).Time)
	mar := MonthOf(NewDate(2025, time.March, 1).Time)
	if feb == mar {
		t.Fatalf("Feb 28 and Mar 1 bucketed together: %s", feb)
	}
	if feb.Last().Before(NewDate(2025, time.February, 28).Time) {
		t.Fatalf("Feb 28 outside its own bucket")
	}
	if !feb.Last().Before(mar.First().Time) {
		t.Fatalf("February bucket overlaps March")
	}
}

func TestDaysInMonth(t *testing.T) {
	cases := []struct {
		year  int
		month time.Month
		want  int
	}{
		{2025, time.January, 31},
		{2025, time.February, 28},
		{2024, time.February, 29},
		{2025, time.June, 30},
	}
	for i, tc := range cases {
		if got := DaysInMonth(tc.year, tc.month); got != tc.want {
			t.Fatalf("case %d: got %d, want %d", i, got, tc.want)
		}
	}
}

func TestDateJSONRoundTrip(t *testing.T) {
	d := NewDate(2025, time.March, 5)
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `"2025-03-05"` {
		t.Fatalf("unexpected encoding: %s", b)
	}

	var back Date
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Equal(d.Time) {
		t.Fatalf("round trip changed date: %v", back)
	}

	var zero Date
	if err := json.Unmarshal([]byte("null"), &zero); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !zero.IsZero() {
		t.Fatalf("null should decode to zero date")
	}
}
