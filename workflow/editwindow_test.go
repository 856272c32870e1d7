package workflow

import (
	"testing"
	"time"
)

func TestCalendarYear(t *testing.T) {
	cases := []struct {
		month int
		want  int
	}{
		{4, 2025}, {9, 2025}, {12, 2025},
		{1, 2026}, {2, 2026}, {3, 2026},
	}
	for _, tc := range cases {
		if got := CalendarYear(2025, tc.month); got != tc.want {
			t.Errorf("CalendarYear(2025, %d) = %d, want %d", tc.month, got, tc.want)
		}
	}
}

func TestIsEditWindowOpen(t *testing.T) {
	policy := EditPolicy{FreezeDays: 2}
	cases := []struct {
		name  string
		now   time.Time
		month int
		want  bool
	}{
		{"mid-month", time.Date(2025, 4, 15, 12, 0, 0, 0, time.UTC), 4, true},
		{"last open instant", time.Date(2025, 4, 28, 23, 59, 59, 0, time.UTC), 4, true},
		{"freeze start", time.Date(2025, 4, 29, 0, 0, 0, 0, time.UTC), 4, false},
		{"last day", time.Date(2025, 4, 30, 10, 0, 0, 0, time.UTC), 4, false},
		{"after month end", time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC), 4, false},
		{"february of next calendar year", time.Date(2026, 2, 26, 12, 0, 0, 0, time.UTC), 2, true},
		{"february freeze", time.Date(2026, 2, 27, 0, 0, 0, 0, time.UTC), 2, false},
		{"december 31-day month", time.Date(2025, 12, 29, 12, 0, 0, 0, time.UTC), 12, true},
		{"december freeze", time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC), 12, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsEditWindowOpen(tc.now, 2025, tc.month, policy); got != tc.want {
				t.Errorf("IsEditWindowOpen(%s, 2025, %d) = %v, want %v", tc.now, tc.month, got, tc.want)
			}
		})
	}
}

func TestIsEditWindowOpenZeroFreezeDays(t *testing.T) {
	policy := EditPolicy{FreezeDays: 0}
	now := time.Date(2025, 4, 30, 23, 59, 0, 0, time.UTC)
	if !IsEditWindowOpen(now, 2025, 4, policy) {
		t.Error("window should stay open when freeze is disabled")
	}
}
