package workflow

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeRowCoercion(t *testing.T) {
	row := NormalizeRow(RawRow{
		"Apr": "12.5",
		"May": "abc",
		// Jun absent on purpose
	})
	if got := row.Months[4]; !got.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("apr = %s, want 12.5", got)
	}
	if got := row.Months[5]; !got.IsZero() {
		t.Errorf("may = %s, want 0", got)
	}
	if got := row.Months[6]; !got.IsZero() {
		t.Errorf("jun = %s, want 0", got)
	}
}

func TestNormalizeRowAliases(t *testing.T) {
	cases := []struct {
		name string
		raw  RawRow
	}{
		{"legacy keys", RawRow{
			"accountName": " Acme ", "projectName": "Alpha", "deliveryManager": "Kyaw",
			"comments": "ok", "APR": "1",
		}},
		{"spreadsheet headers", RawRow{
			"Account Name": " Acme ", "Project Name": "Alpha", "Delivery Manager": "Kyaw",
			"Comment": "ok", "April": "1",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			row := NormalizeRow(tc.raw)
			if row.Account != "Acme" {
				t.Errorf("account = %q, want Acme", row.Account)
			}
			if row.ProjectName != "Alpha" {
				t.Errorf("project = %q, want Alpha", row.ProjectName)
			}
			if row.ManagerName != "Kyaw" {
				t.Errorf("manager = %q, want Kyaw", row.ManagerName)
			}
			if row.Comment != "ok" {
				t.Errorf("comment = %q, want ok", row.Comment)
			}
			if !row.Months[4].Equal(decimal.NewFromInt(1)) {
				t.Errorf("apr = %s, want 1", row.Months[4])
			}
		})
	}
}

func TestNormalizeRowDropsTransportFields(t *testing.T) {
	row := NormalizeRow(RawRow{
		"_id":       "64ab",
		"__isNew":   "true",
		"createdAt": "2024-01-01",
		"updatedAt": "2024-01-02",
		"Total":     "99",
		"account":   "Acme",
	})
	if row.Account != "Acme" {
		t.Errorf("account = %q, want Acme", row.Account)
	}
	for m, v := range row.Months {
		if !v.IsZero() {
			t.Errorf("month %d picked up transport field value %s", m, v)
		}
	}
}

func TestCoerceValue(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"12.5", "12.5"},
		{" 3 ", "3"},
		{"", "0"},
		{"abc", "0"},
		{"-4.25", "-4.25"},
	}
	for _, tc := range cases {
		if got := CoerceValue(tc.in); !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Errorf("CoerceValue(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestValidateRow(t *testing.T) {
	row := NormalizeRow(RawRow{
		"accountName": "  ",
		"projectName": "Alpha",
		"Apr":         "-1",
		"probability": "Z",
	})
	problems := ValidateRow(row, 3)
	if len(problems) != 3 {
		t.Fatalf("got %d problems %v, want 3", len(problems), problems)
	}
	for _, p := range problems {
		if !strings.HasPrefix(p, "row 3:") {
			t.Errorf("problem %q not keyed by row index", p)
		}
	}

	ok := NormalizeRow(RawRow{"accountName": "Acme", "projectName": "Alpha", "Apr": "1"})
	if problems := ValidateRow(ok, 1); len(problems) != 0 {
		t.Errorf("valid row produced problems %v", problems)
	}
}
