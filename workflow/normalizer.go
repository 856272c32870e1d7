package workflow

import (
	"fmt"
	"strings"

	"bitbucket.org/mmdatafocus/forecast_backend/models"
	"github.com/shopspring/decimal"
)

// RawRow is one parsed spreadsheet or JSON row: column header to string
// value, headers in whatever casing the source file used.
type RawRow = map[string]string

// NormalizedRow is the canonical shape handed to the reconciler. Month
// values are keyed by calendar month number, already coerced to decimals.
type NormalizedRow struct {
	Account     string
	ProjectName string
	ManagerName string
	BU          string
	VDE         string
	GDE         string
	Comment     string
	Probability string
	Status      string
	Months      map[int]decimal.Decimal
}

// fieldAliases maps flattened header forms (lowercase, spaces and
// underscores stripped) to canonical field names. Historical exports used
// several spellings for the same column.
var fieldAliases = map[string]string{
	"account":         "account",
	"accountname":     "account",
	"project":         "projectName",
	"projectname":     "projectName",
	"deliverymanager": "managerName",
	"managername":     "managerName",
	"manager":         "managerName",
	"bu":              "bu",
	"vde":             "vde",
	"gde":             "gde",
	"comment":         "comment",
	"comments":        "comment",
	"probability":     "probability",
	"status":          "status",
}

// monthAliases maps flattened month headers to calendar month numbers.
var monthAliases = map[string]int{
	"jan": 1, "january": 1,
	"feb": 2, "february": 2,
	"mar": 3, "march": 3,
	"apr": 4, "april": 4,
	"may": 5,
	"jun": 6, "june": 6,
	"jul": 7, "july": 7,
	"aug": 8, "august": 8,
	"sep": 9, "september": 9,
	"oct": 10, "october": 10,
	"nov": 11, "november": 11,
	"dec": 12, "december": 12,
}

// droppedFields are transport-only keys that must never reach persistence.
var droppedFields = map[string]bool{
	"_id":       true,
	"__isnew":   true,
	"createdat": true,
	"updatedat": true,
	"total":     true,
}

func flattenKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, " ", "")
	key = strings.ReplaceAll(key, "_", "")
	return key
}

// CoerceValue turns a cell into a decimal, mapping empty or non-numeric
// input to zero. Matches the historical parseFloat-or-zero behavior the
// frontend depends on, so bad cells import as 0 instead of failing the row.
func CoerceValue(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return v
}

// NormalizeRow maps a raw row into the canonical shape: aliases resolved,
// month keys lowercased to month numbers, values coerced, transport fields
// dropped. Unrecognized columns are ignored.
func NormalizeRow(raw RawRow) *NormalizedRow {
	row := &NormalizedRow{Months: make(map[int]decimal.Decimal, 12)}
	for key, value := range raw {
		flat := flattenKey(key)
		if droppedFields[flat] {
			continue
		}
		if month, ok := monthAliases[flat]; ok {
			row.Months[month] = CoerceValue(value)
			continue
		}
		switch fieldAliases[flat] {
		case "account":
			row.Account = strings.TrimSpace(value)
		case "projectName":
			row.ProjectName = strings.TrimSpace(value)
		case "managerName":
			row.ManagerName = strings.TrimSpace(value)
		case "bu":
			row.BU = strings.TrimSpace(value)
		case "vde":
			row.VDE = strings.TrimSpace(value)
		case "gde":
			row.GDE = strings.TrimSpace(value)
		case "comment":
			row.Comment = strings.TrimSpace(value)
		case "probability":
			row.Probability = strings.TrimSpace(value)
		case "status":
			row.Status = strings.TrimSpace(value)
		}
	}
	return row
}

// ValidateRow checks a normalized row for the bulk-save path. Problems are
// human-readable, keyed by 1-based row index and field name; the caller
// decides whether any problem rejects the whole batch.
func ValidateRow(row *NormalizedRow, index int) []string {
	problems := make([]string, 0)
	if row.Account == "" {
		problems = append(problems, fmt.Sprintf("row %d: accountName is required", index))
	}
	if row.ProjectName == "" {
		problems = append(problems, fmt.Sprintf("row %d: projectName is required", index))
	}
	for _, m := range models.FiscalMonthOrder {
		if v, ok := row.Months[m]; ok && v.IsNegative() {
			label := models.FiscalMonthLabels[fiscalIndex(m)]
			problems = append(problems, fmt.Sprintf("row %d: %s must be a non-negative number", index, label))
		}
	}
	if row.Probability != "" {
		if _, err := models.ParseProbability(row.Probability); err != nil {
			problems = append(problems, fmt.Sprintf("row %d: probability must be A-E or empty", index))
		}
	}
	if row.Status != "" {
		if _, err := models.ParseOpportunityStatus(row.Status); err != nil {
			problems = append(problems, fmt.Sprintf("row %d: status must be In-progress, Won or Abandoned", index))
		}
	}
	return problems
}

func fiscalIndex(month int) int {
	for i, m := range models.FiscalMonthOrder {
		if m == month {
			return i
		}
	}
	return 0
}
