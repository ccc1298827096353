package core

import (
	"testing"
	"time"
)

func TestQuoteCSVField(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "Maria", "Maria"},
		{"empty", "", ""},
		{"comma", "vip,cliente", `"vip,cliente"`},
		{"quote", `diz "oi"`, `"diz ""oi"""`},
		{"newline", "linha1\nlinha2", "\"linha1\nlinha2\""},
		{"carriage return", "a\rb", "\"a\rb\""},
		{"leading space kept bare", " Maria", " Maria"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := quoteCSVField(tt.input); got != tt.want {
				t.Errorf("quoteCSVField(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestEncodeCSV(t *testing.T) {
	table := Table{
		Header: []string{"Linha", "Nome"},
		Rows: [][]any{
			{3, "Ana"},
			{4, nil},
		},
	}

	got := string(EncodeCSV(table))
	want := "Linha,Nome\n3,Ana\n4,"
	if got != want {
		t.Errorf("EncodeCSV = %q, want %q", got, want)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	records := []ExportRecord{
		{Name: "Ana", NickName: "Aninha", Number: "5511999990000", Email: "ana@example.com", Observation: "", Tags: "vip"},
		{Name: "Bruno", NickName: "", Number: "5511988880000", Email: "", Observation: "cliente antigo", Tags: "vip,lead"},
		{Name: "Carla", NickName: "Ca", Number: "5511977770000", Email: "c@example.com", Observation: "disse \"oi\", depois\nsaiu", Tags: ""},
		{Name: "Davi", NickName: "", Number: "5511966660000", Email: "", Observation: "a, \"b\"\r\nc", Tags: "x"},
		{Name: "Eva\r", NickName: "\r\n", Number: "5511955550000", Email: "", Observation: "", Tags: ""},
	}

	data := EncodeCSV(exportTable(records))

	rows, err := ParseFile(data, FormatCSV, CSVModeQuoted)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(rows) != len(records) {
		t.Fatalf("got %d rows, want %d", len(rows), len(records))
	}

	for i, rec := range records {
		row := rows[i]
		checks := map[string]string{
			"nome":       rec.Name,
			"apelido":    rec.NickName,
			"numero":     rec.Number,
			"email":      rec.Email,
			"observacao": rec.Observation,
			"etiquetas":  rec.Tags,
		}
		for col, want := range checks {
			if got := row[col]; got != want {
				t.Errorf("row %d column %s = %q, want %q", i, col, got, want)
			}
		}
	}
}

func TestXLSXRoundTrip(t *testing.T) {
	table := Table{
		Sheet:  "Contatos",
		Header: []string{"numero", "nome", "etiquetas"},
		Rows: [][]any{
			{"5511999990000", "Ana", "vip, lead"},
			{"5511988880000", nil, ""},
		},
	}

	data, err := EncodeXLSX(table)
	if err != nil {
		t.Fatalf("EncodeXLSX: %v", err)
	}

	rows, err := ParseFile(data, FormatXLSX, CSVModeQuoted)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["etiquetas"] != "vip, lead" {
		t.Errorf("row 0 etiquetas = %q, want %q", rows[0]["etiquetas"], "vip, lead")
	}
	if rows[1]["numero"] != "5511988880000" {
		t.Errorf("row 1 numero = %q", rows[1]["numero"])
	}
	if rows[1]["nome"] != "" {
		t.Errorf("row 1 nome = %q, want empty", rows[1]["nome"])
	}
}

func TestFormatFileName(t *testing.T) {
	at := time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)
	if got := FormatXLSX.FileName("contatos", at); got != "contatos_2024-03-09.xlsx" {
		t.Errorf("FileName = %q", got)
	}
	if got := FormatCSV.ContentType(); got != "text/csv; charset=utf-8" {
		t.Errorf("ContentType = %q", got)
	}
}
