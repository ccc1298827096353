package web

// Shared request parsing and response helpers.

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/contactsync/internal/core"
)

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// formatParam reads the "format" query parameter.
func formatParam(r *http.Request, def core.Format) (core.Format, error) {
	v := r.URL.Query().Get("format")
	if v == "" {
		return def, nil
	}
	f, err := core.ParseFormat(v)
	if err != nil {
		return "", &core.PreconditionError{Field: "format", Reason: err.Error()}
	}
	return f, nil
}

// contextWithWait bounds r's context by wait. A zero wait yields a context
// that is already done, turning blocking calls into a poll.
func contextWithWait(r *http.Request, wait time.Duration) (context.Context, context.CancelFunc) {
	if wait <= 0 {
		ctx, cancel := context.WithCancel(r.Context())
		cancel()
		return ctx, cancel
	}
	return context.WithTimeout(r.Context(), wait)
}

// writeFile sends f as a download.
func writeFile(w http.ResponseWriter, f *core.File) {
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+f.Name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.Data)))
	w.Header().Set("X-Record-Count", strconv.Itoa(f.Records))
	w.WriteHeader(http.StatusOK)
	w.Write(f.Data)
}
