package core

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Format is a tabular file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat normalizes an extension or format name ("CSV", ".xlsx").
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported format %q (expected csv or xlsx)", s)
	}
}

// CSVMode selects how CSV cells are split.
type CSVMode string

const (
	// CSVModeQuoted honours RFC 4180 quoting, so quoted commas, quotes and
	// line breaks survive. This is the default.
	CSVModeQuoted CSVMode = "quoted"

	// CSVModeNaive splits every line on commas and strips all quotes. It
	// cannot represent a comma inside a value.
	CSVModeNaive CSVMode = "naive"
)

// ParseFile decodes data in the given format into rows in file order.
func ParseFile(data []byte, format Format, mode CSVMode) ([]ImportRow, error) {
	switch format {
	case FormatCSV:
		text, err := sanitizeText(data)
		if err != nil {
			return nil, &ParseError{Format: string(format), Err: err}
		}
		if mode == CSVModeNaive {
			return parseCSVNaive(string(text)), nil
		}
		return parseCSVQuoted(text)
	case FormatXLSX:
		return parseXLSX(data)
	default:
		return nil, &ParseError{Format: string(format), Err: errors.New("unsupported format")}
	}
}

// parseCSVNaive splits on line breaks and commas without quote handling.
func parseCSVNaive(text string) []ImportRow {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return []ImportRow{}
	}

	headers := splitNaive(lines[0])
	rows := make([]ImportRow, 0, len(lines)-1)
	for _, line := range lines[1:] {
		rows = append(rows, zipRow(headers, splitNaive(line)))
	}
	return rows
}

func splitNaive(line string) []string {
	cells := strings.Split(line, ",")
	for i, c := range cells {
		cells[i] = CleanCell(c)
	}
	return cells
}

// parseCSVQuoted reads RFC 4180 CSV. Blank lines are skipped.
func parseCSVQuoted(text []byte) ([]ImportRow, error) {
	records := splitQuoted(string(text))
	for len(records) > 0 && isEmptyRecord(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return []ImportRow{}, nil
	}

	header := records[0]
	for i, h := range header {
		header[i] = CleanCell(h)
	}

	rows := []ImportRow{}
	for _, record := range records[1:] {
		if isEmptyRecord(record) {
			continue
		}
		rows = append(rows, zipRow(header, record))
	}
	return rows, nil
}

// splitQuoted splits CSV text into records. Quoted fields keep their bytes
// verbatim, CR and LF included, which encoding/csv does not: it rewrites a
// quoted CRLF to LF. A quote that does not close a field is taken
// literally. A CR before a record's LF is dropped.
func splitQuoted(text string) [][]string {
	var (
		records [][]string
		record  []string
		field   []byte
	)

	i, n := 0, len(text)
	for i < n {
		quoted := 0
		if text[i] == '"' {
			i++
		inQuotes:
			for i < n {
				switch {
				case text[i] != '"':
					field = append(field, text[i])
					i++
				case i+1 < n && text[i+1] == '"':
					field = append(field, '"')
					i += 2
				case closesField(text, i+1):
					i++
					break inQuotes
				default:
					field = append(field, '"')
					i++
				}
			}
			quoted = len(field)
		}

		for i < n && text[i] != ',' && text[i] != '\n' {
			field = append(field, text[i])
			i++
		}

		if i < n && text[i] == ',' {
			record = append(record, string(field))
			field = field[:0]
			i++
			continue
		}

		if len(field) > quoted && field[len(field)-1] == '\r' {
			field = field[:len(field)-1]
		}
		records = append(records, append(record, string(field)))
		record, field = nil, field[:0]
		i++
	}

	// Text ending in a comma leaves one empty field pending.
	if record != nil {
		records = append(records, append(record, ""))
	}
	return records
}

// closesField reports whether a quote followed by text[j:] ends a field.
func closesField(text string, j int) bool {
	if j >= len(text) {
		return true
	}
	switch text[j] {
	case ',', '\n':
		return true
	case '\r':
		return j+1 == len(text) || text[j+1] == '\n'
	}
	return false
}

// parseXLSX reads the first sheet; its top row is the header.
func parseXLSX(data []byte) ([]ImportRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Format: string(FormatXLSX), Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Format: string(FormatXLSX), Err: errors.New("workbook has no sheets")}
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Format: string(FormatXLSX), Err: err}
	}

	rows := []ImportRow{}
	if len(records) == 0 {
		return rows, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}
	for _, record := range records[1:] {
		if isEmptyRecord(record) {
			continue
		}
		rows = append(rows, zipRow(header, record))
	}
	return rows, nil
}

// zipRow associates cells with headers by position. Missing trailing cells
// become "", extra cells and blank headers are dropped.
func zipRow(headers, cells []string) ImportRow {
	row := make(ImportRow, len(headers))
	for i, h := range headers {
		if h == "" {
			continue
		}
		if i < len(cells) {
			row[h] = cells[i]
		} else {
			row[h] = ""
		}
	}
	return row
}

// CleanCell trims whitespace and removes every double quote, matching how
// headers are read in both CSV modes.
func CleanCell(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
}

func isEmptyRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
