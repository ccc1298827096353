package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/JonMunkholm/contactsync/internal/core"
	"github.com/JonMunkholm/contactsync/internal/logging"
	"github.com/JonMunkholm/contactsync/internal/remote"
)

// exportRequest is the body of POST /api/export. Token is accepted when
// the access-token header is absent.
type exportRequest struct {
	Tags   []string `json:"tags"`
	Format string   `json:"format"`
	Token  string   `json:"token,omitempty"`
}

// handleExport downloads the organization's contacts, optionally filtered
// by tag ids.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "invalid request body", "ERR000")
		return
	}

	format := core.FormatXLSX
	if req.Format != "" {
		f, err := core.ParseFormat(req.Format)
		if err != nil {
			s.respondError(w, r, &core.PreconditionError{Field: "format", Reason: err.Error()})
			return
		}
		format = f
	}

	token := r.Header.Get(remote.HeaderAccessToken)
	if token == "" {
		token = req.Token
	}

	file, err := s.service.Export(r.Context(), token, core.NewExportSelection(req.Tags...), format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.WithFields(r.Context(),
		"credential", logging.RedactToken(token),
		"records", file.Records,
		"format", string(format),
	).Info("export served")
	writeFile(w, file)
}

// handleListTags returns the organization's tags for building a selection.
func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	tags, err := s.service.ListTags(r.Context(), credential(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if tags == nil {
		tags = []core.TagRef{}
	}
	writeJSON(w, http.StatusOK, tags)
}

// handleChannel returns the channel behind the caller's credential.
func (s *Server) handleChannel(w http.ResponseWriter, r *http.Request) {
	ch, err := s.service.GetChannel(r.Context(), credential(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// handleHistory lists recent imports and exports, newest first.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", core.DefaultHistoryLimit)
	entries, err := s.service.History(r.Context(), limit)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if entries == nil {
		entries = []core.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleLimits reports throttle usage.
func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Limits())
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
