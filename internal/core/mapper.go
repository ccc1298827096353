package core

import (
	"errors"
	"strings"
)

// DefaultTagColor is the colour given to tags created by an import.
const DefaultTagColor = "#192D3E"

// Field is a canonical import column.
type Field string

const (
	FieldNumber      Field = "numero"
	FieldName        Field = "nome"
	FieldNickName    Field = "apelido"
	FieldEmail       Field = "email"
	FieldObservation Field = "observacao"
	FieldTags        Field = "etiquetas"
)

// fieldAliases lists the accepted header spellings for each field, in
// lookup order. The first non-empty match wins.
var fieldAliases = map[Field][]string{
	FieldNumber:      {"numero", "Numero"},
	FieldName:        {"nome", "Nome"},
	FieldNickName:    {"apelido", "Apelido"},
	FieldEmail:       {"email", "Email"},
	FieldObservation: {"observacao", "Observacao"},
	FieldTags:        {"etiquetas", "Etiquetas"},
}

// errMalformedRow is returned for a row that carries no mapping at all.
var errMalformedRow = errors.New("malformed row: no columns")

// ResolvedRow holds one row's fields after alias resolution.
type ResolvedRow map[Field]string

// Resolve looks up every canonical field once. Absent fields are "".
func Resolve(row ImportRow) ResolvedRow {
	out := make(ResolvedRow, len(fieldAliases))
	for field, aliases := range fieldAliases {
		for _, alias := range aliases {
			if v := row[alias]; v != "" {
				out[field] = v
				break
			}
		}
	}
	return out
}

// RecordMapper turns import rows into create-contact payloads.
type RecordMapper struct {
	OrganizationID string
	TagColor       string
	UpdateIfExists bool
}

// Map normalizes one row.
func (m RecordMapper) Map(row ImportRow) (ContactPayload, error) {
	if row == nil {
		return ContactPayload{}, errMalformedRow
	}

	f := Resolve(row)

	nick := f[FieldNickName]
	if nick == "" {
		nick = f[FieldName]
	}

	return ContactPayload{
		Number:         f[FieldNumber],
		NickName:       nick,
		Email:          f[FieldEmail],
		Observation:    f[FieldObservation],
		Tags:           m.parseTags(f[FieldTags]),
		UpdateIfExists: m.UpdateIfExists,
	}, nil
}

// parseTags splits a comma-separated tag cell. It always returns a non-nil
// slice so the payload encodes "tags": [].
func (m RecordMapper) parseTags(cell string) []TagRef {
	tags := []TagRef{}
	if cell == "" {
		return tags
	}

	color := m.TagColor
	if color == "" {
		color = DefaultTagColor
	}

	for _, token := range strings.Split(cell, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		tags = append(tags, TagRef{
			Description:    token,
			OrganizationID: m.OrganizationID,
			HexColor:       color,
		})
	}
	return tags
}
