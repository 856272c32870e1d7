package models

import (
	"encoding/json"
	"testing"
)

func TestParseEntryType(t *testing.T) {
	cases := []struct {
		in      string
		want    EntryType
		wantErr bool
	}{
		{"forecast", EntryTypeForecast, false},
		{"opportunity", EntryTypeOpportunity, false},
		{"opportunities", EntryTypeOpportunity, false},
		{"actual", EntryTypeActual, false},
		{"actuals", EntryTypeActual, false},
		{"", "", true},
		{"Forecast", "", true},
	}
	for _, tc := range cases {
		got, err := ParseEntryType(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseEntryType(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseEntryType(%q) = %q, %v; want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestOpportunityStatusFrozen(t *testing.T) {
	if OpportunityStatusInProgress.Frozen() {
		t.Error("In-progress must not be frozen")
	}
	if !OpportunityStatusWon.Frozen() || !OpportunityStatusAbandoned.Frozen() {
		t.Error("Won and Abandoned must be frozen")
	}
}

func TestParseOpportunityStatusKeepsEmpty(t *testing.T) {
	got, err := ParseOpportunityStatus("")
	if err != nil || got != OpportunityStatus("") {
		t.Errorf("empty status = %q, %v; want empty", got, err)
	}
	if _, err := ParseOpportunityStatus("Closed"); err == nil {
		t.Error("expected error for unknown status")
	}

	var s OpportunityStatus
	if err := json.Unmarshal([]byte(`""`), &s); err != nil || s != "" {
		t.Errorf("unmarshal empty status = %q, %v; want empty", s, err)
	}
}

func TestParseProbability(t *testing.T) {
	for _, valid := range []string{"", "A", "B", "C", "D", "E"} {
		if _, err := ParseProbability(valid); err != nil {
			t.Errorf("ParseProbability(%q): %v", valid, err)
		}
	}
	for _, invalid := range []string{"F", "a", "AB"} {
		if _, err := ParseProbability(invalid); err == nil {
			t.Errorf("ParseProbability(%q): expected error", invalid)
		}
	}
}

func TestFiscalMonthOrder(t *testing.T) {
	if FiscalMonthOrder[0] != 4 || FiscalMonthOrder[11] != 3 {
		t.Errorf("fiscal order = %v, want Apr..Mar", FiscalMonthOrder)
	}
	if FiscalMonthLabels[0] != "Apr" || FiscalMonthLabels[11] != "Mar" {
		t.Errorf("fiscal labels = %v", FiscalMonthLabels)
	}
	seen := make(map[int]bool)
	for _, m := range FiscalMonthOrder {
		if m < 1 || m > 12 || seen[m] {
			t.Fatalf("fiscal order invalid: %v", FiscalMonthOrder)
		}
		seen[m] = true
	}
}
