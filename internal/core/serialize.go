package core

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Table is an ordered set of flat records with a fixed header.
type Table struct {
	Sheet  string
	Header []string
	Rows   [][]any
}

// ContentType returns the MIME type for a format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return contentTypeXLSX
	}
	return contentTypeCSV
}

// FileName builds "<prefix>_YYYY-MM-DD.<ext>".
func (f Format) FileName(prefix string, at time.Time) string {
	return fmt.Sprintf("%s_%s.%s", prefix, at.Format("2006-01-02"), f)
}

// Encode serializes t in the given format.
func Encode(t Table, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return EncodeCSV(t), nil
	case FormatXLSX:
		return EncodeXLSX(t)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// EncodeCSV writes the header and rows joined by "\n". A field is quoted,
// with inner quotes doubled, when it contains a comma, quote, CR or LF.
func EncodeCSV(t Table) []byte {
	var b bytes.Buffer

	writeCSVLine(&b, stringsToAny(t.Header))
	for _, row := range t.Rows {
		b.WriteByte('\n')
		writeCSVLine(&b, row)
	}
	return b.Bytes()
}

func writeCSVLine(b *bytes.Buffer, fields []any) {
	for i, v := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quoteCSVField(stringify(v)))
	}
}

func quoteCSVField(s string) string {
	if !strings.ContainsAny(s, ",\"\r\n") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// EncodeXLSX writes a single-sheet workbook.
func EncodeXLSX(t Table) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := t.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	if err := setRow(f, sheet, 1, stringsToAny(t.Header)); err != nil {
		return nil, err
	}
	for i, row := range t.Rows {
		if err := setRow(f, sheet, i+2, normalizeCells(row)); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d: %w", rowNum, err)
	}
	return nil
}

// normalizeCells replaces nil with "" so missing fields become empty cells.
func normalizeCells(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if v == nil {
			out[i] = ""
		} else {
			out[i] = v
		}
	}
	return out
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func stringsToAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
