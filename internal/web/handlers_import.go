package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/contactsync/internal/core"
	"github.com/JonMunkholm/contactsync/internal/logging"
	"github.com/JonMunkholm/contactsync/internal/remote"
	"github.com/go-chi/chi/v5"
)

// multipartOverhead is allowed on top of the file size for form framing.
const multipartOverhead = 1 << 20

// credential returns the caller's access token from the access-token
// header, falling back to a "token" form field.
func credential(r *http.Request) string {
	if tok := r.Header.Get(remote.HeaderAccessToken); tok != "" {
		return tok
	}
	return r.FormValue("token")
}

// handleImport accepts a multipart upload and starts an import run.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, r, core.ErrFileTooLarge)
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid multipart form", "IMP005")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, &core.PreconditionError{Field: "file", Reason: "is required"})
		return
	}
	defer file.Close()

	data, err := core.ReadLimited(file, maxSize)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	updateIfExists, _ := strconv.ParseBool(r.FormValue("updateIfExists"))
	token := credential(r)

	logger := logging.WithFields(r.Context(),
		"file", header.Filename,
		"size", len(data),
		"credential", logging.RedactToken(token),
	)

	jobID, err := s.service.StartImport(r.Context(), core.ImportInput{
		Credential:     token,
		FileName:       header.Filename,
		Data:           data,
		UpdateIfExists: updateIfExists,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	logger.Info("import accepted", "job_id", jobID)
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// handleImportProgress streams import progress via Server-Sent Events.
// Supports resumption via the lastEventId query parameter or the
// Last-Event-ID header; the event id is the processed record count.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	if lastEventIDStr == "" {
		lastEventIDStr = r.Header.Get("Last-Event-ID")
	}
	lastEventID := -1
	if lastEventIDStr != "" {
		if n, err := strconv.Atoi(lastEventIDStr); err == nil {
			lastEventID = n
		}
	}

	progressCh, err := s.service.SubscribeProgress(jobID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming not supported", "ERR000")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var last core.ImportProgress
	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				data, _ := json.Marshal(last)
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				flusher.Flush()
				return
			}
			last = progress

			// Terminal phases are always sent so a resumed client learns
			// how the run ended.
			terminal := progress.Phase == core.PhaseComplete ||
				progress.Phase == core.PhaseFailed ||
				progress.Phase == core.PhaseCancelled
			if !terminal && progress.Processed <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Processed, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleImportStatus returns the latest progress snapshot.
func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	progress, err := s.service.Progress(chi.URLParam(r, "jobID"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// handleImportResult returns the final result of a run. With ?wait=<duration>
// the request blocks up to that long; otherwise a running import answers
// 202 with its current progress.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	var wait time.Duration
	if v := r.URL.Query().Get("wait"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, r, http.StatusBadRequest, "invalid wait duration", "ERR000")
			return
		}
		wait = min(d, s.cfg.Server.RequestTimeout)
	}

	ctx, cancel := contextWithWait(r, wait)
	defer cancel()

	result, err := s.service.Result(ctx, jobID)
	if err != nil {
		if ctx.Err() != nil && r.Context().Err() == nil {
			progress, perr := s.service.Progress(jobID)
			if perr != nil {
				s.respondError(w, r, perr)
				return
			}
			writeJSON(w, http.StatusAccepted, progress)
			return
		}
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleCancelImport cancels a running import.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.service.Cancel(jobID); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("import cancel requested", "job_id", jobID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleErrorReport downloads the error report of a finished run.
// The format query parameter selects xlsx (default) or csv.
func (s *Server) handleErrorReport(w http.ResponseWriter, r *http.Request) {
	format, err := formatParam(r, core.FormatXLSX)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	file, err := s.service.ErrorReport(chi.URLParam(r, "jobID"), format)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeFile(w, file)
}

// handleDiscardImport forgets a finished run.
func (s *Server) handleDiscardImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Discard(chi.URLParam(r, "jobID")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
