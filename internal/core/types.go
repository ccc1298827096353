package core

import (
	"context"
	"strconv"
	"time"
)

// TagRef is a label attached to a contact. The remote API spells the keys
// both PascalCase (tag listing) and camelCase (contact payloads); JSON
// decoding is case-insensitive so one type covers both.
type TagRef struct {
	ID             string `json:"id,omitempty"`
	Description    string `json:"description"`
	HexColor       string `json:"hexColor"`
	OrganizationID string `json:"organizationId"`
}

// Contact is a contact as returned by the remote API. The core never
// mutates one.
type Contact struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	NickName    string   `json:"nickName"`
	Number      string   `json:"number"`
	Email       string   `json:"email"`
	Observation string   `json:"observation"`
	LinkImage   string   `json:"linkImage,omitempty"`
	Tags        []TagRef `json:"tags"`
}

// ContactPayload is the body of a create-contact request.
type ContactPayload struct {
	Number         string   `json:"number"`
	NickName       string   `json:"nickName"`
	Email          string   `json:"email"`
	Observation    string   `json:"observation"`
	Tags           []TagRef `json:"tags"`
	UpdateIfExists bool     `json:"updateIfExists"`
}

// Channel is the subset of the channel resource the core needs.
type Channel struct {
	OrganizationID string `json:"organizationId"`
	Description    string `json:"descricao,omitempty"`
}

// ContactAPI is the remote contact-management API.
//
// CreateContact returns a *RemoteError for non-2xx responses and a
// *TransportError when no response was obtained.
type ContactAPI interface {
	CreateContact(ctx context.Context, credential string, payload ContactPayload) error
	ListContacts(ctx context.Context, credential string) ([]Contact, error)
	ListTags(ctx context.Context, credential string) ([]TagRef, error)
	GetChannel(ctx context.Context, credential string) (*Channel, error)
}

// ImportRow maps header names to cell values for one data row.
type ImportRow map[string]string

// ImportError describes one row that failed to import.
type ImportError struct {
	Line      int    `json:"line"`
	Number    string `json:"number"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Status    string `json:"status"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

func (e ImportError) Error() string {
	return "line " + strconv.Itoa(e.Line) + ": " + e.Message
}

// ImportPhase indicates the current stage of an import run.
type ImportPhase string

const (
	PhaseStarting  ImportPhase = "starting"
	PhaseImporting ImportPhase = "importing"
	PhaseComplete  ImportPhase = "complete"
	PhaseFailed    ImportPhase = "failed"
	PhaseCancelled ImportPhase = "cancelled"
)

// ImportProgress is published after every record.
type ImportProgress struct {
	JobID     string      `json:"jobId"`
	FileName  string      `json:"fileName"`
	Phase     ImportPhase `json:"phase"`
	Total     int         `json:"total"`
	Processed int         `json:"processed"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
	Percent   int         `json:"percent"`
	Error     string      `json:"error,omitempty"`
}

// ProgressFunc receives progress after each record.
type ProgressFunc func(ImportProgress)

// ImportResult is the outcome of one import run.
type ImportResult struct {
	JobID        string        `json:"jobId"`
	FileName     string        `json:"fileName"`
	Total        int           `json:"total"`
	SuccessCount int           `json:"successCount"`
	ErrorCount   int           `json:"errorCount"`
	Errors       []ImportError `json:"errors"`
	Cancelled    bool          `json:"cancelled"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// Processed returns how many records reached a terminal state.
func (r *ImportResult) Processed() int {
	return r.SuccessCount + r.ErrorCount
}

// ExportSelection is the set of tag ids to filter on. Empty means no filter.
type ExportSelection map[string]struct{}

// NewExportSelection builds a selection from tag ids, ignoring blanks.
func NewExportSelection(ids ...string) ExportSelection {
	sel := make(ExportSelection, len(ids))
	for _, id := range ids {
		if id != "" {
			sel[id] = struct{}{}
		}
	}
	return sel
}

// Matches reports whether any of the contact's tags is selected.
func (s ExportSelection) Matches(c Contact) bool {
	for _, t := range c.Tags {
		if _, ok := s[t.ID]; ok {
			return true
		}
	}
	return false
}

// ExportRecord is one projected contact.
type ExportRecord struct {
	Name        string `json:"nome"`
	NickName    string `json:"apelido"`
	Number      string `json:"numero"`
	Email       string `json:"email"`
	Observation string `json:"observacao"`
	Tags        string `json:"etiquetas"`
}

// File is a generated download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
	Records     int
}

// HistoryKind distinguishes run types in the history log.
type HistoryKind string

const (
	KindImport HistoryKind = "import"
	KindExport HistoryKind = "export"
)

// HistoryEntry summarizes a finished run. It never carries the credential.
type HistoryEntry struct {
	JobID        string      `json:"jobId"`
	Kind         HistoryKind `json:"kind"`
	FileName     string      `json:"fileName"`
	Total        int         `json:"total"`
	SuccessCount int         `json:"successCount"`
	ErrorCount   int         `json:"errorCount"`
	Cancelled    bool        `json:"cancelled"`
	Error        string      `json:"error,omitempty"`
	StartedAt    time.Time   `json:"startedAt"`
	FinishedAt   time.Time   `json:"finishedAt"`
}
