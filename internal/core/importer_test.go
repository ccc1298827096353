package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// fakeAPI is an in-memory ContactAPI. CreateContact fails for numbers
// listed in failures.
type fakeAPI struct {
	mu       sync.Mutex
	created  []ContactPayload
	failures map[string]error
	contacts []Contact
	tags     []TagRef
	channel  *Channel
	listErr  error

	// onCreate, if set, runs before each create is recorded.
	onCreate func(ctx context.Context, p ContactPayload)
}

func (f *fakeAPI) CreateContact(ctx context.Context, credential string, p ContactPayload) error {
	if f.onCreate != nil {
		f.onCreate(ctx, p)
	}
	if err := ctx.Err(); err != nil {
		return &TransportError{Op: "create contact", Err: err}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failures[p.Number]; ok {
		return err
	}
	f.created = append(f.created, p)
	return nil
}

func (f *fakeAPI) ListContacts(ctx context.Context, credential string) ([]Contact, error) {
	return f.contacts, f.listErr
}

func (f *fakeAPI) ListTags(ctx context.Context, credential string) ([]TagRef, error) {
	return f.tags, f.listErr
}

func (f *fakeAPI) GetChannel(ctx context.Context, credential string) (*Channel, error) {
	if f.channel == nil {
		return nil, &RemoteError{HTTPStatus: 404, Status: "404", Message: "Not Found", Code: CodeNotAvailable}
	}
	return f.channel, nil
}

func (f *fakeAPI) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestImporter(api ContactAPI) *Importer {
	return NewImporter(api, newTestLimiter(newFakeClock(), DefaultMaxPerSecond, DefaultMaxPerMinute), discardLogger())
}

func TestImporter_ScenarioOneDuplicate(t *testing.T) {
	rows, err := ParseFile([]byte(
		"numero,nome,email\n"+
			"5511999990001,Ana,ana@example.com\n"+
			"5511999990002,Bruno,\n"+
			"5511999990003,Carla,carla@example.com\n",
	), FormatCSV, CSVModeQuoted)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	api := &fakeAPI{failures: map[string]error{
		"5511999990003": &RemoteError{HTTPStatus: 400, Status: "400", Message: "There is already a contact with this number !", Code: "E001"},
	}}

	var progress []int
	result, err := newTestImporter(api).Run(context.Background(), ImportRequest{
		JobID:          "job-1",
		Credential:     "token",
		OrganizationID: "org-1",
		Rows:           rows,
	}, func(p ImportProgress) {
		progress = append(progress, p.Percent)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.SuccessCount != 2 || result.ErrorCount != 1 {
		t.Errorf("success/errors = %d/%d, want 2/1", result.SuccessCount, result.ErrorCount)
	}
	if result.Processed() != result.Total {
		t.Errorf("processed %d != total %d", result.Processed(), result.Total)
	}

	wantProgress := []int{33, 67, 100}
	if len(progress) != len(wantProgress) {
		t.Fatalf("progress = %v, want %v", progress, wantProgress)
	}
	for i := range wantProgress {
		if progress[i] != wantProgress[i] {
			t.Errorf("progress[%d] = %d, want %d", i, progress[i], wantProgress[i])
		}
	}

	got := result.Errors[0]
	want := ImportError{
		Line:      4,
		Number:    "5511999990003",
		Name:      "Carla",
		Email:     "carla@example.com",
		Status:    "400",
		Message:   "There is already a contact with this number !",
		ErrorCode: "E001",
	}
	if got != want {
		t.Errorf("error = %+v, want %+v", got, want)
	}

	report, err := ErrorReport(result.Errors, FormatCSV, fixedNow)
	if err != nil {
		t.Fatalf("ErrorReport: %v", err)
	}
	wantCSV := "Linha,Número,Nome,Mensagem de Erro\n4,5511999990003,Carla,Já existe um contato com este número."
	if string(report.Data) != wantCSV {
		t.Errorf("report = %q, want %q", report.Data, wantCSV)
	}
}

func TestImporter_LocalFailure(t *testing.T) {
	api := &fakeAPI{failures: map[string]error{
		"2": &TransportError{Op: "create contact", Err: errors.New("connection reset by peer")},
	}}

	rows := []ImportRow{
		{"numero": "1"},
		{"numero": "2"},
	}

	result, err := newTestImporter(api).Run(context.Background(), ImportRequest{
		Credential:     "token",
		OrganizationID: "org-1",
		Rows:           rows,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Errors) != 1 {
		t.Fatalf("got %d errors, want 1", len(result.Errors))
	}
	got := result.Errors[0]
	if got.Line != 3 {
		t.Errorf("Line = %d, want 3", got.Line)
	}
	if got.Status != "Erro de processamento" || got.ErrorCode != "N/A" {
		t.Errorf("status/code = %q/%q", got.Status, got.ErrorCode)
	}
	if got.Name != "Não informado" || got.Email != "Não informado" {
		t.Errorf("display fallbacks = %q/%q", got.Name, got.Email)
	}
	if got.Message != "create contact: connection reset by peer" {
		t.Errorf("Message = %q", got.Message)
	}
}

func TestImporter_MalformedRowIsIsolated(t *testing.T) {
	api := &fakeAPI{}
	result, err := newTestImporter(api).Run(context.Background(), ImportRequest{
		Credential:     "token",
		OrganizationID: "org-1",
		Rows:           []ImportRow{nil, {"numero": "2"}},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ErrorCount != 1 || result.SuccessCount != 1 {
		t.Errorf("success/errors = %d/%d, want 1/1", result.SuccessCount, result.ErrorCount)
	}
	if result.Errors[0].Line != 2 {
		t.Errorf("Line = %d, want 2", result.Errors[0].Line)
	}
}

func TestImporter_Preconditions(t *testing.T) {
	rows := []ImportRow{{"numero": "1"}}

	tests := []struct {
		name      string
		req       ImportRequest
		wantField string
	}{
		{"missing credential", ImportRequest{OrganizationID: "org", Rows: rows}, "credential"},
		{"missing file", ImportRequest{Credential: "t", OrganizationID: "org"}, "file"},
		{"missing organization", ImportRequest{Credential: "t", Rows: rows}, "organization id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			called := false
			result, err := newTestImporter(api).Run(context.Background(), tt.req, func(ImportProgress) {
				called = true
			})

			var pe *PreconditionError
			if !errors.As(err, &pe) {
				t.Fatalf("err = %v, want *PreconditionError", err)
			}
			if pe.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", pe.Field, tt.wantField)
			}
			if result != nil {
				t.Error("expected nil result")
			}
			if api.createdCount() != 0 || called {
				t.Error("precondition failure must have no side effects")
			}
		})
	}
}

func TestImporter_EmptyFile(t *testing.T) {
	result, err := newTestImporter(&fakeAPI{}).Run(context.Background(), ImportRequest{
		Credential:     "t",
		OrganizationID: "org",
		Rows:           []ImportRow{},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Total != 0 || result.Processed() != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestImporter_CancelKeepsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &fakeAPI{}
	rows := []ImportRow{{"numero": "1"}, {"numero": "2"}, {"numero": "3"}}

	result, err := newTestImporter(api).Run(ctx, ImportRequest{
		Credential:     "t",
		OrganizationID: "org",
		Rows:           rows,
	}, func(p ImportProgress) {
		if p.Processed == 1 {
			cancel()
		}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if !result.Cancelled {
		t.Error("Cancelled not set")
	}
	if result.SuccessCount != 1 || result.Processed() != 1 {
		t.Errorf("processed = %d, want 1", result.Processed())
	}
	if api.createdCount() != 1 {
		t.Errorf("created = %d, want 1", api.createdCount())
	}
}

func TestImporter_AbortedRequestNotRecorded(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &fakeAPI{onCreate: func(_ context.Context, p ContactPayload) {
		if p.Number == "2" {
			cancel()
		}
	}}

	result, err := newTestImporter(api).Run(ctx, ImportRequest{
		Credential:     "t",
		OrganizationID: "org",
		Rows:           []ImportRow{{"numero": "1"}, {"numero": "2"}},
	}, nil)

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result.ErrorCount != 0 || result.SuccessCount != 1 {
		t.Errorf("success/errors = %d/%d, want 1/0", result.SuccessCount, result.ErrorCount)
	}
}

func TestImporter_RespectsRateLimit(t *testing.T) {
	clock := newFakeClock()
	limiter := newTestLimiter(clock, 2, 100)
	im := NewImporter(&fakeAPI{}, limiter, discardLogger())

	rows := make([]ImportRow, 5)
	for i := range rows {
		rows[i] = ImportRow{"numero": "n"}
	}

	if _, err := im.Run(context.Background(), ImportRequest{
		Credential:     "t",
		OrganizationID: "org",
		Rows:           rows,
	}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if clock.sleeps == 0 {
		t.Fatal("expected the limiter to sleep")
	}
	if got := limiter.Stats().RequestsLastSecond; got > 2 {
		t.Errorf("RequestsLastSecond = %d, want <= 2", got)
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total, want int
	}{
		{1, 3, 33},
		{2, 3, 67},
		{3, 3, 100},
		{1, 8, 13},
		{0, 0, 100},
	}
	for _, tt := range tests {
		if got := percent(tt.done, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.done, tt.total, got, tt.want)
		}
	}
}
