// Package analysis owns the job and result lifecycle of circular analysis.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/uniscan/internal/ai"
	"github.com/spigell/uniscan/internal/circular"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrSnapshotExists    = errors.New("requirement snapshot already exists for result")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrOrchestration     = errors.New("job orchestration failed")
)

type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// CanTransition reports whether a job may move from s to next.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobProcessing || next == JobFailed
	case JobProcessing:
		return next == JobCompleted || next == JobFailed
	default:
		return false
	}
}

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type ResultStatus string

const (
	ResultPending    ResultStatus = "pending"
	ResultProcessing ResultStatus = "processing"
	ResultCompleted  ResultStatus = "completed"
	ResultFailed     ResultStatus = "failed"
)

// CanTransition reports whether a result may move from s to next. Results only
// move pending -> processing -> completed or failed.
func (s ResultStatus) CanTransition(next ResultStatus) bool {
	switch s {
	case ResultPending:
		return next == ResultProcessing
	case ResultProcessing:
		return next == ResultCompleted || next == ResultFailed
	default:
		return false
	}
}

func (s ResultStatus) Terminal() bool {
	return s == ResultCompleted || s == ResultFailed
}

// ParseResultStatus returns false for unknown status names.
func ParseResultStatus(s string) (ResultStatus, bool) {
	switch status := ResultStatus(s); status {
	case ResultPending, ResultProcessing, ResultCompleted, ResultFailed:
		return status, true
	default:
		return "", false
	}
}

// Job is one batch submission. URLsCount always equals len(URLs).
type Job struct {
	ID          uuid.UUID  `json:"job_id"`
	Status      JobStatus  `json:"status"`
	URLs        []string   `json:"urls"`
	URLsCount   int        `json:"urls_count"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Result is the per-URL unit of work within a job.
type Result struct {
	ID               uuid.UUID    `json:"result_id"`
	JobID            uuid.UUID    `json:"job_id"`
	URL              string       `json:"url"`
	Status           ResultStatus `json:"status"`
	Error            *string      `json:"error"`
	ProcessingTimeMS *int64       `json:"processing_time_ms"`
	FileMimeType     *string      `json:"file_mime_type"`
	FileSizeBytes    *int64       `json:"file_size_bytes"`
	Strategy         ai.Strategy  `json:"strategy,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Outcome is the terminal state written to a result when its pipeline ends.
type Outcome struct {
	Status           ResultStatus
	Error            *string
	ProcessingTimeMS int64
	FileMimeType     *string
	FileSizeBytes    *int64
	Strategy         ai.Strategy
}

// DepartmentRow is a persisted department requirement. SnapshotID is a lookup
// reference only; the snapshot owns its rows in Position order.
type DepartmentRow struct {
	ID         uuid.UUID `json:"id"`
	SnapshotID uuid.UUID `json:"circular_id"`
	Position   int       `json:"position"`
	circular.Department
}

// Snapshot is the persisted requirement snapshot of one completed result.
type Snapshot struct {
	ID          uuid.UUID         `json:"id"`
	ResultID    uuid.UUID         `json:"result_id"`
	Circular    circular.Circular `json:"circular"`
	Departments []DepartmentRow   `json:"departments"`
	RawResponse string            `json:"-"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Department returns the row with the given id.
func (s *Snapshot) Department(id uuid.UUID) (*DepartmentRow, bool) {
	for i := range s.Departments {
		if s.Departments[i].ID == id {
			return &s.Departments[i], true
		}
	}
	return nil, false
}

// ResultView is a completed result with its snapshot.
type ResultView struct {
	Result   *Result   `json:"result"`
	Snapshot *Snapshot `json:"circular,omitempty"`
}

// JobStatusView partitions the results of a job into completed and failed ones.
// Results still in flight appear in neither list.
type JobStatusView struct {
	Job     *Job         `json:"job"`
	Results []ResultView `json:"results"`
	Errors  []*Result    `json:"errors"`
}

type ResultFilter struct {
	Page     int
	PageSize int
	Status   string
}

type ResultPage struct {
	Items    []*Result `json:"items"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// Store persists jobs, results and requirement snapshots. Status updates must
// honour CanTransition and return ErrInvalidTransition otherwise.
type Store interface {
	CreateJob(ctx context.Context, job *Job, results []*Result) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status JobStatus, completedAt *time.Time) error

	ListJobResults(ctx context.Context, jobID uuid.UUID) ([]*Result, error)
	PendingResults(ctx context.Context, jobID uuid.UUID) ([]*Result, error)
	CountUnfinished(ctx context.Context, jobID uuid.UUID) (int, error)
	MarkResultProcessing(ctx context.Context, id uuid.UUID) error
	FinishResult(ctx context.Context, id uuid.UUID, outcome Outcome) error
	GetResult(ctx context.Context, id uuid.UUID) (*Result, error)
	ListResults(ctx context.Context, status *ResultStatus, limit, offset int) ([]*Result, int, error)

	SaveCircular(ctx context.Context, resultID uuid.UUID, c *circular.Circular, raw string) (*Snapshot, error)
	GetSnapshot(ctx context.Context, id uuid.UUID) (*Snapshot, error)
	GetSnapshotByResult(ctx context.Context, resultID uuid.UUID) (*Snapshot, error)
}

// StatusCache keeps terminal job status views.
type StatusCache interface {
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (*JobStatusView, bool)
	SetJobStatus(ctx context.Context, view *JobStatusView)
}
