package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrJobRunning is returned when a finished-run operation is requested
// while the run is still in progress.
var ErrJobRunning = errors.New("import is still running")

const (
	// DefaultImportTimeout bounds one import run.
	DefaultImportTimeout = 2 * time.Hour

	// DefaultJobRetention is how long a finished run stays queryable.
	DefaultJobRetention = 30 * time.Minute

	listenerBuffer = 16
)

// ServiceConfig tunes a Service. Zero values select the defaults.
type ServiceConfig struct {
	MaxPerSecond  int
	MaxPerMinute  int
	MaxConcurrent int
	MaxWait       time.Duration
	ImportTimeout time.Duration
	JobRetention  time.Duration
	CSVMode       CSVMode
	TagColor      string
}

func (c ServiceConfig) withDefaults() ServiceConfig {
	if c.ImportTimeout <= 0 {
		c.ImportTimeout = DefaultImportTimeout
	}
	if c.JobRetention <= 0 {
		c.JobRetention = DefaultJobRetention
	}
	if c.CSVMode == "" {
		c.CSVMode = CSVModeQuoted
	}
	if c.TagColor == "" {
		c.TagColor = DefaultTagColor
	}
	return c
}

// Service runs imports in the background and serves exports. One rate
// budget is shared by every run.
type Service struct {
	api      ContactAPI
	limiter  *RateLimiter
	jobs     *JobLimiter
	importer *Importer
	exporter *Exporter
	history  HistoryStore
	cfg      ServiceConfig
	logger   *slog.Logger

	mu     sync.RWMutex
	active map[string]*activeJob
	closed bool
}

type activeJob struct {
	ID        string
	FileName  string
	StartedAt time.Time
	Cancel    context.CancelFunc
	Done      chan struct{}

	mu        sync.Mutex
	progress  ImportProgress
	result    *ImportResult
	listeners []chan ImportProgress
}

// NewService wires a service. A nil history keeps entries in memory.
func NewService(api ContactAPI, history HistoryStore, cfg ServiceConfig, logger *slog.Logger) *Service {
	cfg = cfg.withDefaults()
	if history == nil {
		history = NewMemoryHistory(DefaultHistoryLimit)
	}
	if logger == nil {
		logger = slog.Default()
	}

	limiter := NewRateLimiter(cfg.MaxPerSecond, cfg.MaxPerMinute)
	return &Service{
		api:      api,
		limiter:  limiter,
		jobs:     NewJobLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		importer: NewImporter(api, limiter, logger),
		exporter: NewExporter(api, logger),
		history:  history,
		cfg:      cfg,
		logger:   logger,
		active:   make(map[string]*activeJob),
	}
}

// ImportInput is an uploaded file plus its options.
type ImportInput struct {
	Credential     string
	FileName       string
	Data           []byte
	UpdateIfExists bool
}

// StartImport validates and parses the upload, resolves the organization
// and starts the run in the background. It returns the job id at once.
// Every failure here happens before any contact is created.
func (s *Service) StartImport(ctx context.Context, in ImportInput) (string, error) {
	if in.Credential == "" {
		return "", &PreconditionError{Field: "credential", Reason: "is required"}
	}
	if len(in.Data) == 0 {
		return "", &PreconditionError{Field: "file", Reason: "is required"}
	}

	ext := filepath.Ext(in.FileName)
	format, err := ParseFormat(ext)
	if err != nil {
		return "", &ParseError{Format: ext, Err: err}
	}

	rows, err := ParseFile(in.Data, format, s.cfg.CSVMode)
	if err != nil {
		return "", err
	}

	orgID, err := s.OrganizationID(ctx, in.Credential)
	if err != nil {
		return "", err
	}

	req := ImportRequest{
		FileName:       in.FileName,
		Credential:     in.Credential,
		OrganizationID: orgID,
		Rows:           rows,
		UpdateIfExists: in.UpdateIfExists,
		TagColor:       s.cfg.TagColor,
	}
	if err := CheckImport(req); err != nil {
		return "", err
	}

	if err := s.jobs.Acquire(ctx); err != nil {
		return "", err
	}

	req.JobID = uuid.New().String()
	jobCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ImportTimeout)

	job := &activeJob{
		ID:        req.JobID,
		FileName:  in.FileName,
		StartedAt: time.Now(),
		Cancel:    cancel,
		Done:      make(chan struct{}),
		progress: ImportProgress{
			JobID:    req.JobID,
			FileName: in.FileName,
			Phase:    PhaseStarting,
			Total:    len(rows),
		},
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		s.jobs.Release()
		return "", ErrShuttingDown
	}
	s.active[job.ID] = job
	s.mu.Unlock()

	go func() {
		defer s.jobs.Release()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in import", "job_id", job.ID, "panic", r)
				s.finish(job, nil, fmt.Errorf("internal error: %v", r))
			}
		}()

		result, err := s.importer.Run(jobCtx, req, job.setProgress)
		s.finish(job, result, err)
	}()

	return job.ID, nil
}

// OrganizationID resolves the organization behind a credential.
func (s *Service) OrganizationID(ctx context.Context, credential string) (string, error) {
	ch, err := s.GetChannel(ctx, credential)
	if err != nil {
		return "", err
	}
	if ch.OrganizationID == "" {
		return "", &PreconditionError{Field: "organization id", Reason: "is required"}
	}
	return ch.OrganizationID, nil
}

// finish publishes the terminal state, records history and schedules
// cleanup.
func (s *Service) finish(job *activeJob, result *ImportResult, err error) {
	if result == nil {
		result = &ImportResult{JobID: job.ID, FileName: job.FileName, Errors: []ImportError{}}
		if err != nil {
			result.Error = err.Error()
		}
	}

	job.mu.Lock()
	job.result = result
	p := job.progress
	p.Succeeded = result.SuccessCount
	p.Failed = result.ErrorCount
	p.Processed = result.Processed()
	switch {
	case result.Cancelled:
		p.Phase = PhaseCancelled
		p.Error = result.Error
	case err != nil:
		p.Phase = PhaseFailed
		p.Error = err.Error()
	default:
		p.Phase = PhaseComplete
		p.Percent = 100
	}
	job.progress = p
	job.mu.Unlock()

	job.publishFinal()
	close(job.Done)

	entry := HistoryEntry{
		JobID:        job.ID,
		Kind:         KindImport,
		FileName:     job.FileName,
		Total:        result.Total,
		SuccessCount: result.SuccessCount,
		ErrorCount:   result.ErrorCount,
		Cancelled:    result.Cancelled,
		Error:        result.Error,
		StartedAt:    job.StartedAt,
		FinishedAt:   time.Now(),
	}
	s.recordHistory(entry)
	s.cleanup(job.ID, s.cfg.JobRetention)
}

func (s *Service) recordHistory(entry HistoryEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.history.Record(ctx, entry); err != nil {
		s.logger.Error("record history failed", "job_id", entry.JobID, "error", err)
	}
}

func (s *Service) job(id string) (*activeJob, error) {
	s.mu.RLock()
	job, ok := s.active[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// SubscribeProgress returns a channel of progress updates, primed with the
// current state. It is closed when the run finishes.
func (s *Service) SubscribeProgress(id string) (<-chan ImportProgress, error) {
	job, err := s.job(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan ImportProgress, listenerBuffer)

	job.mu.Lock()
	defer job.mu.Unlock()

	ch <- job.progress
	if job.result != nil {
		close(ch)
		return ch, nil
	}
	job.listeners = append(job.listeners, ch)
	return ch, nil
}

// Progress returns the current progress without blocking.
func (s *Service) Progress(id string) (ImportProgress, error) {
	job, err := s.job(id)
	if err != nil {
		return ImportProgress{}, err
	}
	job.mu.Lock()
	defer job.mu.Unlock()
	return job.progress, nil
}

// Result blocks until the run finishes or ctx ends. A finished run is
// returned even if ctx is already done.
func (s *Service) Result(ctx context.Context, id string) (*ImportResult, error) {
	job, err := s.job(id)
	if err != nil {
		return nil, err
	}

	select {
	case <-job.Done:
	default:
		select {
		case <-job.Done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	job.mu.Lock()
	defer job.mu.Unlock()
	return job.result, nil
}

// Cancel stops a run after its current record.
func (s *Service) Cancel(id string) error {
	job, err := s.job(id)
	if err != nil {
		return err
	}
	job.Cancel()
	return nil
}

// Discard cancels a run if needed and forgets it immediately.
func (s *Service) Discard(id string) error {
	job, err := s.job(id)
	if err != nil {
		return err
	}
	job.Cancel()

	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
	return nil
}

// ErrorReport renders a finished run's errors.
func (s *Service) ErrorReport(id string, format Format) (*File, error) {
	job, err := s.job(id)
	if err != nil {
		return nil, err
	}

	select {
	case <-job.Done:
	default:
		return nil, ErrJobRunning
	}

	job.mu.Lock()
	errs := job.result.Errors
	job.mu.Unlock()

	return ErrorReport(errs, format, time.Now())
}

// Export generates a contact file and records it in the history.
func (s *Service) Export(ctx context.Context, credential string, sel ExportSelection, format Format) (*File, error) {
	started := time.Now()
	file, err := s.exporter.Export(ctx, credential, sel, format)
	if err != nil {
		return nil, err
	}

	s.recordHistory(HistoryEntry{
		JobID:        uuid.New().String(),
		Kind:         KindExport,
		FileName:     file.Name,
		Total:        file.Records,
		SuccessCount: file.Records,
		StartedAt:    started,
		FinishedAt:   time.Now(),
	})
	return file, nil
}

// ListTags returns the organization's tags.
func (s *Service) ListTags(ctx context.Context, credential string) ([]TagRef, error) {
	if credential == "" {
		return nil, &PreconditionError{Field: "credential", Reason: "is required"}
	}
	return s.api.ListTags(ctx, credential)
}

// GetChannel returns the channel the credential belongs to.
func (s *Service) GetChannel(ctx context.Context, credential string) (*Channel, error) {
	if credential == "" {
		return nil, &PreconditionError{Field: "credential", Reason: "is required"}
	}
	ch, err := s.api.GetChannel(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}

// History lists finished runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	return s.history.List(ctx, limit)
}

// Limits is a snapshot of both throttles.
type Limits struct {
	Rate RateStats        `json:"rate"`
	Jobs JobLimiterStatus `json:"jobs"`
}

// Limits returns current throttle usage.
func (s *Service) Limits() Limits {
	return Limits{Rate: s.limiter.Stats(), Jobs: s.jobs.Status()}
}

// Shutdown cancels every running import and waits for the workers. Later
// StartImport calls fail with ErrShuttingDown.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, job := range s.active {
		job.Cancel()
	}
	s.mu.Unlock()
	return s.jobs.WaitForDrain(ctx)
}

// setProgress stores p and forwards it to listeners.
func (job *activeJob) setProgress(p ImportProgress) {
	job.mu.Lock()
	job.progress = p
	job.mu.Unlock()
	job.notifyProgress()
}

// notifyProgress sends the current progress to every listener, skipping
// slow ones.
func (job *activeJob) notifyProgress() {
	job.mu.Lock()
	defer job.mu.Unlock()

	for _, ch := range job.listeners {
		select {
		case ch <- job.progress:
		default:
		}
	}
}

// publishFinal delivers the terminal progress to every listener and closes
// them. A full buffer loses its oldest update so the terminal one always
// arrives last.
func (job *activeJob) publishFinal() {
	job.mu.Lock()
	defer job.mu.Unlock()

	for _, ch := range job.listeners {
		select {
		case ch <- job.progress:
		default:
			// Senders hold job.mu, so one receive makes room.
			select {
			case <-ch:
			default:
			}
			ch <- job.progress
		}
		close(ch)
	}
	job.listeners = nil
}

// cleanup forgets a finished run after delay.
func (s *Service) cleanup(id string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	})
}
