// Package memory is an in-process store used by the one-shot CLI and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/uniscan/internal/analysis"
	"github.com/spigell/uniscan/internal/circular"
	"github.com/spigell/uniscan/internal/eligibility"
)

// Store keeps every record in maps guarded by one mutex. Values are copied on
// the way in and out so callers never share state with the store.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	jobs       map[uuid.UUID]*analysis.Job
	results    map[uuid.UUID]*analysis.Result
	order      []uuid.UUID
	snapshots  map[uuid.UUID]*analysis.Snapshot
	byResult   map[uuid.UUID]uuid.UUID
	applicants map[uuid.UUID]*eligibility.Applicant
	checks     []*eligibility.Check
}

func New() *Store {
	return &Store{
		now:        func() time.Time { return time.Now().UTC() },
		jobs:       make(map[uuid.UUID]*analysis.Job),
		results:    make(map[uuid.UUID]*analysis.Result),
		snapshots:  make(map[uuid.UUID]*analysis.Snapshot),
		byResult:   make(map[uuid.UUID]uuid.UUID),
		applicants: make(map[uuid.UUID]*eligibility.Applicant),
	}
}

func (s *Store) CreateJob(_ context.Context, job *analysis.Job, results []*analysis.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = copyJob(job)
	for _, r := range results {
		s.results[r.ID] = copyResult(r)
		s.order = append(s.order, r.ID)
	}
	return nil
}

func (s *Store) GetJob(_ context.Context, id uuid.UUID) (*analysis.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: job %s", analysis.ErrNotFound, id)
	}
	return copyJob(job), nil
}

func (s *Store) UpdateJobStatus(_ context.Context, id uuid.UUID, status analysis.JobStatus, completedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: job %s", analysis.ErrNotFound, id)
	}
	if !job.Status.CanTransition(status) {
		return fmt.Errorf("%w: job %s from %s to %s", analysis.ErrInvalidTransition, id, job.Status, status)
	}
	job.Status = status
	if completedAt != nil {
		at := *completedAt
		job.CompletedAt = &at
	}
	return nil
}

func (s *Store) ListJobResults(_ context.Context, jobID uuid.UUID) ([]*analysis.Result, error) {
	return s.jobResults(jobID, nil), nil
}

func (s *Store) PendingResults(_ context.Context, jobID uuid.UUID) ([]*analysis.Result, error) {
	return s.jobResults(jobID, func(r *analysis.Result) bool {
		return r.Status == analysis.ResultPending
	}), nil
}

func (s *Store) CountUnfinished(_ context.Context, jobID uuid.UUID) (int, error) {
	return len(s.jobResults(jobID, func(r *analysis.Result) bool {
		return !r.Status.Terminal()
	})), nil
}

func (s *Store) jobResults(jobID uuid.UUID, keep func(*analysis.Result) bool) []*analysis.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*analysis.Result{}
	for _, id := range s.order {
		r := s.results[id]
		if r.JobID != jobID || (keep != nil && !keep(r)) {
			continue
		}
		out = append(out, copyResult(r))
	}
	return out
}

func (s *Store) MarkResultProcessing(_ context.Context, id uuid.UUID) error {
	return s.transitionResult(id, analysis.ResultProcessing, func(r *analysis.Result) {})
}

func (s *Store) FinishResult(_ context.Context, id uuid.UUID, outcome analysis.Outcome) error {
	if !outcome.Status.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal status", analysis.ErrInvalidTransition, outcome.Status)
	}
	return s.transitionResult(id, outcome.Status, func(r *analysis.Result) {
		ms := outcome.ProcessingTimeMS
		r.ProcessingTimeMS = &ms
		r.Error = outcome.Error
		r.FileMimeType = outcome.FileMimeType
		r.FileSizeBytes = outcome.FileSizeBytes
		r.Strategy = outcome.Strategy
	})
}

func (s *Store) transitionResult(id uuid.UUID, status analysis.ResultStatus, apply func(*analysis.Result)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[id]
	if !ok {
		return fmt.Errorf("%w: result %s", analysis.ErrNotFound, id)
	}
	if !r.Status.CanTransition(status) {
		return fmt.Errorf("%w: result %s from %s to %s", analysis.ErrInvalidTransition, id, r.Status, status)
	}
	r.Status = status
	r.UpdatedAt = s.now()
	apply(r)
	return nil
}

func (s *Store) GetResult(_ context.Context, id uuid.UUID) (*analysis.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	if !ok {
		return nil, fmt.Errorf("%w: result %s", analysis.ErrNotFound, id)
	}
	return copyResult(r), nil
}

// ListResults returns results newest first, breaking ties by insertion order.
func (s *Store) ListResults(_ context.Context, status *analysis.ResultStatus, limit, offset int) ([]*analysis.Result, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*analysis.Result, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		r := s.results[s.order[i]]
		if status != nil && r.Status != *status {
			continue
		}
		matched = append(matched, r)
	}
	slices.SortStableFunc(matched, func(a, b *analysis.Result) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})

	total := len(matched)
	if offset >= total {
		return []*analysis.Result{}, total, nil
	}
	end := min(offset+limit, total)
	out := make([]*analysis.Result, 0, end-offset)
	for _, r := range matched[offset:end] {
		out = append(out, copyResult(r))
	}
	return out, total, nil
}

// SaveCircular stores the snapshot and its department rows in list order. A
// second snapshot for the same result is rejected.
func (s *Store) SaveCircular(_ context.Context, resultID uuid.UUID, c *circular.Circular, raw string) (*analysis.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.results[resultID]; !ok {
		return nil, fmt.Errorf("%w: result %s", analysis.ErrNotFound, resultID)
	}
	if _, ok := s.byResult[resultID]; ok {
		return nil, fmt.Errorf("%w: %s", analysis.ErrSnapshotExists, resultID)
	}

	snapshot := &analysis.Snapshot{
		ID:          uuid.New(),
		ResultID:    resultID,
		Circular:    *c,
		Departments: make([]analysis.DepartmentRow, 0, len(c.Departments)),
		RawResponse: raw,
		CreatedAt:   s.now(),
	}
	for i, d := range c.Departments {
		snapshot.Departments = append(snapshot.Departments, analysis.DepartmentRow{
			ID:         uuid.New(),
			SnapshotID: snapshot.ID,
			Position:   i,
			Department: d,
		})
	}

	s.snapshots[snapshot.ID] = snapshot
	s.byResult[resultID] = snapshot.ID
	return copySnapshot(snapshot), nil
}

func (s *Store) GetSnapshot(_ context.Context, id uuid.UUID) (*analysis.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("%w: admission circular %s", analysis.ErrNotFound, id)
	}
	return copySnapshot(snapshot), nil
}

func (s *Store) GetSnapshotByResult(_ context.Context, resultID uuid.UUID) (*analysis.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byResult[resultID]
	if !ok {
		return nil, fmt.Errorf("%w: admission circular for result %s", analysis.ErrNotFound, resultID)
	}
	return copySnapshot(s.snapshots[id]), nil
}

// AddApplicant registers a student record. Applicant records are owned by
// another system; this exists for local runs and tests.
func (s *Store) AddApplicant(applicant eligibility.Applicant) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applicants[applicant.ID] = &applicant
}

func (s *Store) GetApplicant(_ context.Context, id uuid.UUID) (*eligibility.Applicant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.applicants[id]
	if !ok {
		return nil, fmt.Errorf("%w: student %s", eligibility.ErrNotFound, id)
	}
	applicant := *a
	return &applicant, nil
}

func (s *Store) CreateCheck(_ context.Context, check *eligibility.Check) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *check
	s.checks = append(s.checks, &c)
	return nil
}

func (s *Store) GetCheck(_ context.Context, id uuid.UUID) (*eligibility.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.checks {
		if c.ID == id {
			check := *c
			return &check, nil
		}
	}
	return nil, fmt.Errorf("%w: requirement check %s", eligibility.ErrNotFound, id)
}

func (s *Store) ListChecks(_ context.Context, applicantID uuid.UUID, limit int) ([]*eligibility.Check, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*eligibility.Check{}
	for i := len(s.checks) - 1; i >= 0 && len(out) < limit; i-- {
		if s.checks[i].ApplicantID == applicantID {
			check := *s.checks[i]
			out = append(out, &check)
		}
	}
	return out, nil
}

func copyJob(job *analysis.Job) *analysis.Job {
	j := *job
	j.URLs = slices.Clone(job.URLs)
	return &j
}

func copyResult(r *analysis.Result) *analysis.Result {
	c := *r
	return &c
}

func copySnapshot(s *analysis.Snapshot) *analysis.Snapshot {
	c := *s
	c.Departments = slices.Clone(s.Departments)
	return &c
}
