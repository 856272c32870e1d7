package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ParseRows reads an uploaded forecast/opportunity/actuals file into ordered
// row mappings (column header -> cell value). Dispatch is by file extension;
// both branches yield the same row shape, so callers never care which format
// the file arrived in. The first row is always treated as the header row.
func ParseRows(r io.Reader, filename string) ([]map[string]string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSVRows(r)
	case ".xlsx":
		return parseExcelRows(r)
	default:
		// legacy binary .xls is not readable by excelize and lands here too
		return nil, fmt.Errorf("unsupported file type %q: only .csv and .xlsx files are allowed", filepath.Ext(filename))
	}
}

func parseCSVRows(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// Rows may carry trailing blank columns from spreadsheet exports.
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("unable to read csv: %v", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return recordsToRows(records), nil
}

func parseExcelRows(r io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		sheet = "Sheet1"
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("unable to read sheet: %v", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return recordsToRows(records), nil
}

func recordsToRows(records [][]string) []map[string]string {
	headers := make([]string, len(records[0]))
	for i, h := range records[0] {
		headers[i] = strings.TrimSpace(h)
	}

	rows := make([]map[string]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]string, len(headers))
		empty := true
		for i, h := range headers {
			if h == "" {
				continue
			}
			var v string
			if i < len(record) {
				v = strings.TrimSpace(record[i])
			}
			if v != "" {
				empty = false
			}
			row[h] = v
		}
		if empty {
			continue
		}
		rows = append(rows, row)
	}
	return rows
}
