package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/uniscan/internal/analysis"
	"github.com/spigell/uniscan/internal/circular"
)

func seedJob(t *testing.T, s *Store, created time.Time, urls ...string) (*analysis.Job, []*analysis.Result) {
	t.Helper()

	job := &analysis.Job{ID: uuid.New(), Status: analysis.JobPending, URLs: urls, URLsCount: len(urls), CreatedAt: created}
	results := make([]*analysis.Result, 0, len(urls))
	for _, u := range urls {
		results = append(results, &analysis.Result{
			ID: uuid.New(), JobID: job.ID, URL: u, Status: analysis.ResultPending, CreatedAt: created, UpdatedAt: created,
		})
	}
	if err := s.CreateJob(context.Background(), job, results); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job, results
}

func TestResultTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	_, results := seedJob(t, s, time.Now(), "https://a.example/c.pdf")
	id := results[0].ID

	if err := s.FinishResult(ctx, id, analysis.Outcome{Status: analysis.ResultPending}); !errors.Is(err, analysis.ErrInvalidTransition) {
		t.Fatalf("expected non-terminal outcome to be rejected, got %v", err)
	}
	msg := "boom"
	if err := s.FinishResult(ctx, id, analysis.Outcome{Status: analysis.ResultFailed, Error: &msg}); !errors.Is(err, analysis.ErrInvalidTransition) {
		t.Fatalf("expected pending result not to fail directly, got %v", err)
	}
	if err := s.MarkResultProcessing(ctx, id); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	if err := s.MarkResultProcessing(ctx, id); !errors.Is(err, analysis.ErrInvalidTransition) {
		t.Fatalf("expected second claim to fail, got %v", err)
	}

	if err := s.FinishResult(ctx, id, analysis.Outcome{Status: analysis.ResultFailed, Error: &msg, ProcessingTimeMS: 12}); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := s.FinishResult(ctx, id, analysis.Outcome{Status: analysis.ResultCompleted}); !errors.Is(err, analysis.ErrInvalidTransition) {
		t.Fatalf("expected terminal result to stay terminal, got %v", err)
	}

	got, err := s.GetResult(ctx, id)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if got.Status != analysis.ResultFailed || got.Error == nil || *got.Error != "boom" || *got.ProcessingTimeMS != 12 {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestJobTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	job, _ := seedJob(t, s, time.Now(), "https://a.example/")

	if err := s.UpdateJobStatus(ctx, job.ID, analysis.JobCompleted, nil); !errors.Is(err, analysis.ErrInvalidTransition) {
		t.Fatalf("expected pending -> completed to be rejected, got %v", err)
	}
	if err := s.UpdateJobStatus(ctx, job.ID, analysis.JobProcessing, nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	done := time.Now()
	if err := s.UpdateJobStatus(ctx, job.ID, analysis.JobCompleted, &done); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := s.UpdateJobStatus(ctx, uuid.New(), analysis.JobFailed, nil); !errors.Is(err, analysis.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	got, _ := s.GetJob(ctx, job.ID)
	if got.Status != analysis.JobCompleted || got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Fatalf("unexpected job %+v", got)
	}
}

func TestSaveCircular(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	_, results := seedJob(t, s, time.Now(), "https://a.example/c.pdf")

	c := &circular.Circular{UniversityName: "Jahangirnagar University"}
	c.Departments = []circular.Department{{Name: "Physics"}, {Name: "Chemistry"}}
	c.EnsureLists()

	snapshot, err := s.SaveCircular(ctx, results[0].ID, c, `{"universityName":"Jahangirnagar University"}`)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if len(snapshot.Departments) != 2 || snapshot.Departments[1].Name != "Chemistry" || snapshot.Departments[1].Position != 1 {
		t.Fatalf("expected departments in list order, got %+v", snapshot.Departments)
	}
	if snapshot.Departments[0].SnapshotID != snapshot.ID {
		t.Fatalf("expected department rows to reference the snapshot")
	}

	if _, err := s.SaveCircular(ctx, results[0].ID, c, ""); !errors.Is(err, analysis.ErrSnapshotExists) {
		t.Fatalf("expected duplicate snapshot to be rejected, got %v", err)
	}

	byResult, err := s.GetSnapshotByResult(ctx, results[0].ID)
	if err != nil || byResult.ID != snapshot.ID {
		t.Fatalf("expected snapshot by result, got %v (%v)", byResult, err)
	}
	if _, err := s.GetSnapshot(ctx, uuid.New()); !errors.Is(err, analysis.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListResultsNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	base := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	_, older := seedJob(t, s, base, "https://a.example/1", "https://a.example/2")
	_, newer := seedJob(t, s, base.Add(time.Hour), "https://b.example/1")

	if err := s.MarkResultProcessing(ctx, older[0].ID); err != nil {
		t.Fatalf("mark: %v", err)
	}

	items, total, err := s.ListResults(ctx, nil, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 3 || len(items) != 2 || items[0].ID != newer[0].ID {
		t.Fatalf("unexpected first page: total=%d items=%v", total, items)
	}

	items, _, _ = s.ListResults(ctx, nil, 2, 2)
	if len(items) != 1 {
		t.Fatalf("expected one item on the second page, got %d", len(items))
	}

	processing := analysis.ResultProcessing
	items, total, _ = s.ListResults(ctx, &processing, 10, 0)
	if total != 1 || items[0].ID != older[0].ID {
		t.Fatalf("expected status filter to match one result, got %d", total)
	}

	items, total, _ = s.ListResults(ctx, nil, 10, 50)
	if total != 3 || len(items) != 0 {
		t.Fatalf("expected empty page past the end, got %d items", len(items))
	}
}

func TestCopiesAreIsolated(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	job, _ := seedJob(t, s, time.Now(), "https://a.example/")

	got, _ := s.GetJob(ctx, job.ID)
	got.URLs[0] = "mutated"

	again, _ := s.GetJob(ctx, job.ID)
	if again.URLs[0] != "https://a.example/" {
		t.Fatalf("expected stored job to be unaffected, got %q", again.URLs[0])
	}
}
