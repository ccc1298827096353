package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	exportSheet  = "Contatos"
	exportPrefix = "contatos"
)

var exportHeader = []string{"nome", "apelido", "numero", "email", "observacao", "etiquetas"}

// Exporter fetches contacts and serializes a tag-filtered selection.
type Exporter struct {
	api    ContactAPI
	logger *slog.Logger
	now    func() time.Time
}

// NewExporter creates an exporter. A nil logger uses slog.Default().
func NewExporter(api ContactAPI, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{api: api, logger: logger, now: time.Now}
}

// Export fetches the full contact list in a single request, keeps contacts
// carrying any selected tag (all contacts when sel is empty) and encodes
// them. ErrNoMatches is returned when a selection keeps nothing.
func (ex *Exporter) Export(ctx context.Context, credential string, sel ExportSelection, format Format) (*File, error) {
	if credential == "" {
		return nil, &PreconditionError{Field: "credential", Reason: "is required"}
	}
	if format != FormatCSV && format != FormatXLSX {
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	contacts, err := ex.api.ListContacts(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}

	selected := FilterContacts(contacts, sel)
	if len(sel) > 0 && len(selected) == 0 {
		return nil, ErrNoMatches
	}

	records := make([]ExportRecord, len(selected))
	for i, c := range selected {
		records[i] = Project(c)
	}

	data, err := Encode(exportTable(records), format)
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}

	ex.logger.Info("export generated",
		"fetched", len(contacts),
		"exported", len(records),
		"format", format,
	)

	return &File{
		Name:        format.FileName(exportPrefix, ex.now()),
		ContentType: format.ContentType(),
		Data:        data,
		Records:     len(records),
	}, nil
}

// FilterContacts keeps contacts matching sel, in fetch order. An empty
// selection keeps everything.
func FilterContacts(contacts []Contact, sel ExportSelection) []Contact {
	if len(sel) == 0 {
		return contacts
	}
	out := make([]Contact, 0, len(contacts))
	for _, c := range contacts {
		if sel.Matches(c) {
			out = append(out, c)
		}
	}
	return out
}

// Project flattens a contact to its export columns. Tag descriptions are
// comma-joined in their original order.
func Project(c Contact) ExportRecord {
	descriptions := make([]string, len(c.Tags))
	for i, t := range c.Tags {
		descriptions[i] = t.Description
	}
	return ExportRecord{
		Name:        c.Name,
		NickName:    c.NickName,
		Number:      c.Number,
		Email:       c.Email,
		Observation: c.Observation,
		Tags:        strings.Join(descriptions, ","),
	}
}

func exportTable(records []ExportRecord) Table {
	rows := make([][]any, len(records))
	for i, r := range records {
		rows[i] = []any{r.Name, r.NickName, r.Number, r.Email, r.Observation, r.Tags}
	}
	return Table{Sheet: exportSheet, Header: exportHeader, Rows: rows}
}
