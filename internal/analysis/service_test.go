package analysis_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/uniscan/internal/ai"
	"github.com/spigell/uniscan/internal/analysis"
	"github.com/spigell/uniscan/internal/store/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const circularJSON = `{
  "universityName": "University of Rajshahi",
  "applicationPeriod": {"start": "2025-01-10", "end": "2025-02-10"},
  "generalGpaRequirements": {"ssc": 3.5, "hsc": 3.5},
  "yearRequirements": {"sscYears": ["2022", "2023"], "hscYears": ["2024", "2025"]},
  "departmentWiseRequirements": [
    {"departmentName": "A Unit", "minGpaTotal": 8.0},
    {"departmentName": "B Unit", "minGpaTotal": 7.0}
  ]
}`

type reply struct {
	extraction *ai.Extraction
	err        error
	panicMsg   string
	block      bool
}

type fakeExtractor struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []string

	active    atomic.Int32
	maxActive atomic.Int32
	delay     time.Duration
}

func (f *fakeExtractor) Extract(ctx context.Context, url string) (*ai.Extraction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	r, ok := f.replies[url]
	f.mu.Unlock()

	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		current := f.maxActive.Load()
		if n <= current || f.maxActive.CompareAndSwap(current, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	switch {
	case !ok:
		return &ai.Extraction{Text: circularJSON, Strategy: ai.StrategyURL}, nil
	case r.panicMsg != "":
		panic(r.panicMsg)
	case r.block:
		<-ctx.Done()
		return nil, ctx.Err()
	default:
		return r.extraction, r.err
	}
}

func newService(t *testing.T, extractor ai.Extractor, opts ...analysis.Option) (*analysis.Service, *memory.Store) {
	t.Helper()

	store := memory.New()
	return newServiceWithStore(t, store, extractor, zaptest.NewLogger(t), opts...), store
}

func newServiceWithStore(t *testing.T, store analysis.Store, extractor ai.Extractor, log *zap.Logger, opts ...analysis.Option) *analysis.Service {
	t.Helper()

	svc := analysis.NewService(store, extractor, log, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc
}

func submitAndWait(t *testing.T, svc *analysis.Service, urls ...string) *analysis.JobStatusView {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := svc.Submit(ctx, urls)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := svc.Wait(ctx, job.ID); err != nil {
		t.Fatalf("wait: %v", err)
	}
	view, err := svc.GetStatus(ctx, job.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	return view
}

func TestSubmitProcessesDocumentAndURLStrategies(t *testing.T) {
	t.Parallel()

	pdfURL := "https://admission.ru.ac.bd/circular.pdf"
	pageURL := "https://admission.ru.ac.bd/notice"
	extractor := &fakeExtractor{replies: map[string]reply{
		pdfURL: {extraction: &ai.Extraction{
			Text:      "```json\n" + circularJSON + "\n```",
			Strategy:  ai.StrategyDocument,
			MimeType:  "application/pdf",
			SizeBytes: 48213,
		}},
		pageURL: {extraction: &ai.Extraction{Text: circularJSON, Strategy: ai.StrategyURL}},
	}}
	svc, _ := newService(t, extractor)

	view := submitAndWait(t, svc, pdfURL, pageURL)

	if view.Job.Status != analysis.JobCompleted {
		t.Fatalf("expected completed job, got %q", view.Job.Status)
	}
	if view.Job.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}
	if view.Job.URLsCount != 2 || len(view.Job.URLs) != 2 {
		t.Fatalf("expected urls_count to match urls, got %d/%d", view.Job.URLsCount, len(view.Job.URLs))
	}
	if len(view.Results) != 2 || len(view.Errors) != 0 {
		t.Fatalf("expected two completed results, got %d results and %d errors", len(view.Results), len(view.Errors))
	}

	for _, rv := range view.Results {
		result := rv.Result
		if rv.Snapshot == nil {
			t.Fatalf("expected snapshot for %s", result.URL)
		}
		if rv.Snapshot.Circular.CircularLink != result.URL {
			t.Fatalf("expected circular link %q, got %q", result.URL, rv.Snapshot.Circular.CircularLink)
		}
		if len(rv.Snapshot.Departments) != 2 || rv.Snapshot.Departments[0].Name != "A Unit" {
			t.Fatalf("expected departments in order, got %+v", rv.Snapshot.Departments)
		}
		if result.ProcessingTimeMS == nil {
			t.Fatalf("expected processing time for %s", result.URL)
		}

		switch result.URL {
		case pdfURL:
			if result.Strategy != ai.StrategyDocument {
				t.Fatalf("expected document strategy, got %q", result.Strategy)
			}
			if result.FileMimeType == nil || *result.FileMimeType != "application/pdf" || *result.FileSizeBytes != 48213 {
				t.Fatalf("expected file metadata for pdf result")
			}
		case pageURL:
			if result.Strategy != ai.StrategyURL {
				t.Fatalf("expected url strategy, got %q", result.Strategy)
			}
			if result.FileMimeType != nil {
				t.Fatalf("expected no file metadata, got %q", *result.FileMimeType)
			}
		}
	}
}

func TestTruncatedOutputFailsOnlyThatResult(t *testing.T) {
	t.Parallel()

	badURL := "https://du.ac.bd/truncated.pdf"
	extractor := &fakeExtractor{replies: map[string]reply{
		badURL: {extraction: &ai.Extraction{
			Text:     `{"universityName": "University of Dhaka", "departmentWiseRequirements": [{"departmentName": "Physics", "minGpa`,
			Strategy: ai.StrategyDocument,
		}},
	}}
	svc, _ := newService(t, extractor)

	view := submitAndWait(t, svc, badURL, "https://du.ac.bd/ok")

	if view.Job.Status != analysis.JobCompleted {
		t.Fatalf("expected job to complete despite a failed result, got %q", view.Job.Status)
	}
	if len(view.Errors) != 1 || len(view.Results) != 1 {
		t.Fatalf("expected one failure and one success, got %d/%d", len(view.Errors), len(view.Results))
	}

	failed := view.Errors[0]
	if failed.URL != badURL || failed.Status != analysis.ResultFailed {
		t.Fatalf("unexpected failed result %+v", failed)
	}
	if failed.Error == nil || !strings.Contains(*failed.Error, "offset") {
		t.Fatalf("expected parse error with offset, got %v", failed.Error)
	}
	if failed.Strategy != ai.StrategyDocument {
		t.Fatalf("expected strategy to be recorded on failure, got %q", failed.Strategy)
	}
}

func TestPanickingResultIsIsolated(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{replies: map[string]reply{
		"https://a.example/panic":  {panicMsg: "nil map"},
		"https://a.example/denied": {err: errors.New("api error 403")},
	}}
	svc, _ := newService(t, extractor)

	view := submitAndWait(t, svc, "https://a.example/panic", "https://a.example/denied", "https://a.example/ok")

	if view.Job.Status != analysis.JobCompleted {
		t.Fatalf("expected completed job, got %q", view.Job.Status)
	}
	if len(view.Results) != 1 || len(view.Errors) != 2 {
		t.Fatalf("expected 1 success and 2 failures, got %d/%d", len(view.Results), len(view.Errors))
	}
	for _, r := range view.Errors {
		if r.Error == nil || *r.Error == "" {
			t.Fatalf("expected error message on %s", r.URL)
		}
		if r.URL == "https://a.example/panic" && !strings.Contains(*r.Error, "panic") {
			t.Fatalf("expected panic to be recorded, got %q", *r.Error)
		}
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{delay: 20 * time.Millisecond}
	svc, _ := newService(t, extractor, analysis.WithConcurrency(2))

	urls := make([]string, 6)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://a.example/%d", i)
	}
	view := submitAndWait(t, svc, urls...)

	if len(view.Results) != len(urls) {
		t.Fatalf("expected all results to complete, got %d", len(view.Results))
	}
	if got := extractor.maxActive.Load(); got > 2 {
		t.Fatalf("expected at most 2 concurrent extractions, got %d", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	svc, store := newService(t, &fakeExtractor{})

	tests := []struct {
		name string
		urls []string
	}{
		{name: "empty", urls: nil},
		{name: "no scheme", urls: []string{"du.ac.bd/circular.pdf"}},
		{name: "ftp", urls: []string{"ftp://du.ac.bd/circular.pdf"}},
		{name: "one bad among good", urls: []string{"https://du.ac.bd/a.pdf", "not a url"}},
	}

	for _, tt := range tests {
		if _, err := svc.Submit(context.Background(), tt.urls); !errors.Is(err, analysis.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", tt.name, err)
		}
	}

	_, total, err := store.ListResults(context.Background(), nil, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected nothing persisted, got %d results", total)
	}
}

func TestParseURLs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   any
		want    []string
		wantErr bool
	}{
		{name: "single string", input: "https://a.example/", want: []string{"https://a.example/"}},
		{name: "string list", input: []string{"https://a.example/", "https://b.example/"}, want: []string{"https://a.example/", "https://b.example/"}},
		{name: "decoded json list", input: []any{"https://a.example/"}, want: []string{"https://a.example/"}},
		{name: "list with number", input: []any{"https://a.example/", 3.0}, wantErr: true},
		{name: "number", input: 42.0, wantErr: true},
		{name: "missing", input: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := analysis.ParseURLs(tt.input)
			if tt.wantErr {
				if !errors.Is(err, analysis.ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestProcessSkipsFinishedJobAndStartsPendingOne(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	extractor := &fakeExtractor{}
	svc, store := newService(t, extractor)

	now := time.Now().UTC()
	job := &analysis.Job{ID: uuid.New(), Status: analysis.JobPending, URLs: []string{"https://a.example/"}, URLsCount: 1, CreatedAt: now}
	result := &analysis.Result{ID: uuid.New(), JobID: job.ID, URL: job.URLs[0], Status: analysis.ResultPending, CreatedAt: now, UpdatedAt: now}
	if err := store.CreateJob(ctx, job, []*analysis.Result{result}); err != nil {
		t.Fatalf("create job: %v", err)
	}

	if err := svc.Process(ctx, job.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := store.GetJob(ctx, job.ID)
	if got.Status != analysis.JobCompleted {
		t.Fatalf("expected completed job, got %q", got.Status)
	}

	if err := svc.Process(ctx, job.ID); err != nil {
		t.Fatalf("second process: %v", err)
	}
	if len(extractor.calls) != 1 {
		t.Fatalf("expected finished job not to be reprocessed, got %d calls", len(extractor.calls))
	}
}

func TestProcessUnknownJobIsOrchestrationError(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, &fakeExtractor{})
	err := svc.Process(context.Background(), uuid.New())
	if !errors.Is(err, analysis.ErrOrchestration) || !errors.Is(err, analysis.ErrNotFound) {
		t.Fatalf("expected orchestration error wrapping not found, got %v", err)
	}
}

func TestShutdownCancelsInFlightWork(t *testing.T) {
	t.Parallel()

	blockedURL := "https://slow.example/"
	extractor := &fakeExtractor{replies: map[string]reply{blockedURL: {block: true}}}
	store := memory.New()
	svc := analysis.NewService(store, extractor, zap.NewNop())

	job, err := svc.Submit(context.Background(), []string{blockedURL})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := svc.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	results, err := store.ListJobResults(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 1 || results[0].Status == analysis.ResultProcessing {
		t.Fatalf("expected canceled result not to be left processing, got %+v", results)
	}
}

type recordingCache struct {
	mu    sync.Mutex
	views map[uuid.UUID]*analysis.JobStatusView
	sets  int
}

func (c *recordingCache) GetJobStatus(_ context.Context, jobID uuid.UUID) (*analysis.JobStatusView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.views[jobID]
	return v, ok
}

func (c *recordingCache) SetJobStatus(_ context.Context, view *analysis.JobStatusView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.views[view.Job.ID] = view
}

func TestGetStatusCachesTerminalJobs(t *testing.T) {
	t.Parallel()

	cache := &recordingCache{views: map[uuid.UUID]*analysis.JobStatusView{}}
	svc, _ := newService(t, &fakeExtractor{}, analysis.WithStatusCache(cache))

	view := submitAndWait(t, svc, "https://a.example/")
	again, err := svc.GetStatus(context.Background(), view.Job.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if again != view {
		t.Fatalf("expected cached view on second read")
	}
	if cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cache.sets)
	}

	if _, err := svc.GetStatus(context.Background(), uuid.New()); !errors.Is(err, analysis.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestGetResult(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, &fakeExtractor{})
	view := submitAndWait(t, svc, "https://a.example/")

	id := view.Results[0].Result.ID
	got, err := svc.GetResult(context.Background(), id)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if got.Snapshot == nil || got.Snapshot.ResultID != id {
		t.Fatalf("expected snapshot of the result, got %+v", got.Snapshot)
	}

	if _, err := svc.GetResult(context.Background(), uuid.New()); !errors.Is(err, analysis.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListResults(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t, &fakeExtractor{replies: map[string]reply{
		"https://a.example/bad": {err: errors.New("upstream unavailable")},
	}})
	submitAndWait(t, svc, "https://a.example/1", "https://a.example/2", "https://a.example/bad")

	tests := []struct {
		name      string
		filter    analysis.ResultFilter
		wantItems int
		wantTotal int
		wantPage  int
		wantSize  int
	}{
		{name: "defaults", filter: analysis.ResultFilter{}, wantItems: 3, wantTotal: 3, wantPage: 1, wantSize: analysis.DefaultPageSize},
		{name: "second page", filter: analysis.ResultFilter{Page: 2, PageSize: 2}, wantItems: 1, wantTotal: 3, wantPage: 2, wantSize: 2},
		{name: "oversized page", filter: analysis.ResultFilter{PageSize: 1000}, wantItems: 3, wantTotal: 3, wantPage: 1, wantSize: analysis.MaxPageSize},
		{name: "failed only", filter: analysis.ResultFilter{Status: "failed"}, wantItems: 1, wantTotal: 1, wantPage: 1, wantSize: analysis.DefaultPageSize},
		{name: "unknown status", filter: analysis.ResultFilter{Status: "archived"}, wantItems: 0, wantTotal: 0, wantPage: 1, wantSize: analysis.DefaultPageSize},
	}

	for _, tt := range tests {
		page, err := svc.ListResults(context.Background(), tt.filter)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if len(page.Items) != tt.wantItems || page.Total != tt.wantTotal || page.Page != tt.wantPage || page.PageSize != tt.wantSize {
			t.Fatalf("%s: unexpected page items=%d total=%d page=%d size=%d", tt.name, len(page.Items), page.Total, page.Page, page.PageSize)
		}
	}
}
