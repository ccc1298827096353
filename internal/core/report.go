package core

import (
	"time"
)

const (
	errorReportSheet  = "Erros de Importação"
	errorReportPrefix = "erros_importacao"
)

var errorReportHeader = []string{"Linha", "Número", "Nome", "Mensagem de Erro"}

// ErrorReport renders import errors as a downloadable file, one row per
// error in arrival order. Messages are translated for the reader.
func ErrorReport(errs []ImportError, format Format, now time.Time) (*File, error) {
	if len(errs) == 0 {
		return nil, ErrNoErrors
	}

	rows := make([][]any, len(errs))
	for i, e := range errs {
		rows[i] = []any{e.Line, e.Number, e.Name, TranslateMessage(e.Message)}
	}

	data, err := Encode(Table{
		Sheet:  errorReportSheet,
		Header: errorReportHeader,
		Rows:   rows,
	}, format)
	if err != nil {
		return nil, err
	}

	return &File{
		Name:        format.FileName(errorReportPrefix, now),
		ContentType: format.ContentType(),
		Data:        data,
		Records:     len(errs),
	}, nil
}
