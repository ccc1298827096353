package core

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"
)

const (
	// CodeNotAvailable is the error code recorded when the API gave none.
	CodeNotAvailable = "N/A"

	// notProvided fills display fields the row did not carry.
	notProvided = "Não informado"

	// statusProcessingError marks a record that failed before or without a
	// structured API answer.
	statusProcessingError = "Erro de processamento"

	// statsInterval is how often, in records, limiter stats are logged.
	statsInterval = 100
)

// ImportRequest is one import run's input. Credential is used for the run
// only and is never stored.
type ImportRequest struct {
	JobID          string
	FileName       string
	Credential     string
	OrganizationID string
	Rows           []ImportRow
	UpdateIfExists bool
	TagColor       string
}

// Importer creates contacts one at a time under a shared rate budget.
type Importer struct {
	api     ContactAPI
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewImporter creates an importer. A nil logger uses slog.Default().
func NewImporter(api ContactAPI, limiter *RateLimiter, logger *slog.Logger) *Importer {
	if limiter == nil {
		limiter = NewRateLimiter(DefaultMaxPerSecond, DefaultMaxPerMinute)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{api: api, limiter: limiter, logger: logger}
}

// CheckImport validates the run-wide inputs. It performs no I/O.
func CheckImport(req ImportRequest) error {
	switch {
	case req.Credential == "":
		return &PreconditionError{Field: "credential", Reason: "is required"}
	case req.Rows == nil:
		return &PreconditionError{Field: "file", Reason: "is required"}
	case req.OrganizationID == "":
		return &PreconditionError{Field: "organization id", Reason: "is required"}
	}
	return nil
}

// Run imports req.Rows in order. A failing record is recorded and the run
// continues. If ctx is cancelled the partial result is returned together
// with the context error and Cancelled set.
func (im *Importer) Run(ctx context.Context, req ImportRequest, onProgress ProgressFunc) (*ImportResult, error) {
	if err := CheckImport(req); err != nil {
		return nil, err
	}

	start := time.Now()
	total := len(req.Rows)
	result := &ImportResult{
		JobID:    req.JobID,
		FileName: req.FileName,
		Total:    total,
		Errors:   []ImportError{},
	}

	mapper := RecordMapper{
		OrganizationID: req.OrganizationID,
		TagColor:       req.TagColor,
		UpdateIfExists: req.UpdateIfExists,
	}

	logger := im.logger.With("job_id", req.JobID, "file", req.FileName)
	logger.Info("import started", "total", total)

	for i, row := range req.Rows {
		if err := ctx.Err(); err != nil {
			return im.cancelled(logger, result, start, err)
		}

		if err := im.limiter.WaitForNextRequest(ctx); err != nil {
			return im.cancelled(logger, result, start, err)
		}

		err := im.importRow(ctx, mapper, req.Credential, row)
		if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			// The request was aborted, so no outcome exists for this row.
			return im.cancelled(logger, result, start, ctx.Err())
		}

		if err == nil {
			result.SuccessCount++
		} else {
			result.ErrorCount++
			result.Errors = append(result.Errors, newImportError(i, row, err))
		}

		if onProgress != nil {
			onProgress(ImportProgress{
				JobID:     req.JobID,
				FileName:  req.FileName,
				Phase:     PhaseImporting,
				Total:     total,
				Processed: i + 1,
				Succeeded: result.SuccessCount,
				Failed:    result.ErrorCount,
				Percent:   percent(i+1, total),
			})
		}

		if (i+1)%statsInterval == 0 {
			stats := im.limiter.Stats()
			logger.Info("rate limiter stats",
				"processed", i+1,
				"last_second", stats.RequestsLastSecond,
				"last_minute", stats.RequestsLastMinute,
			)
		}
	}

	result.Duration = time.Since(start)
	logger.Info("import finished",
		"success", result.SuccessCount,
		"errors", result.ErrorCount,
		"duration_ms", result.Duration.Milliseconds(),
	)
	return result, nil
}

func (im *Importer) importRow(ctx context.Context, mapper RecordMapper, credential string, row ImportRow) error {
	payload, err := mapper.Map(row)
	if err != nil {
		return err
	}
	return im.api.CreateContact(ctx, credential, payload)
}

func (im *Importer) cancelled(logger *slog.Logger, result *ImportResult, start time.Time, err error) (*ImportResult, error) {
	result.Cancelled = true
	result.Duration = time.Since(start)
	result.Error = err.Error()
	logger.Warn("import cancelled",
		"processed", result.Processed(),
		"total", result.Total,
		"error", err,
	)
	return result, err
}

// newImportError describes the failure of the record at index i.
func newImportError(i int, row ImportRow, err error) ImportError {
	f := Resolve(row)
	ie := ImportError{
		Line:   i + 2,
		Number: orNotProvided(f[FieldNumber]),
		Name:   orNotProvided(f[FieldName]),
		Email:  orNotProvided(f[FieldEmail]),
	}

	var re *RemoteError
	if errors.As(err, &re) {
		ie.Status = re.Status
		ie.Message = re.Message
		ie.ErrorCode = re.Code
		return ie
	}

	ie.Status = statusProcessingError
	ie.Message = err.Error()
	ie.ErrorCode = CodeNotAvailable
	return ie
}

func orNotProvided(s string) string {
	if s == "" {
		return notProvided
	}
	return s
}

// percent returns round(100 * done / total), or 100 for an empty run.
func percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	return int(math.Round(100 * float64(done) / float64(total)))
}
