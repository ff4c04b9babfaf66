// Package postgres persists analysis jobs, requirement snapshots and
// eligibility checks in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/uniscan/internal/ai"
	"github.com/spigell/uniscan/internal/analysis"
	"github.com/spigell/uniscan/internal/circular"
	"github.com/spigell/uniscan/internal/database"
	pg "github.com/spigell/uniscan/internal/database/postgres"
)

type Store struct {
	db database.DB
}

func New(db database.DB) *Store {
	return &Store{db: db}
}

var jobStatuses = []analysis.JobStatus{analysis.JobPending, analysis.JobProcessing, analysis.JobCompleted, analysis.JobFailed}

var resultStatuses = []analysis.ResultStatus{analysis.ResultPending, analysis.ResultProcessing, analysis.ResultCompleted, analysis.ResultFailed}

// jobPredecessors lists the states a job may move to next from.
func jobPredecessors(next analysis.JobStatus) []string {
	out := []string{}
	for _, s := range jobStatuses {
		if s.CanTransition(next) {
			out = append(out, string(s))
		}
	}
	return out
}

func resultPredecessors(next analysis.ResultStatus) []string {
	out := []string{}
	for _, s := range resultStatuses {
		if s.CanTransition(next) {
			out = append(out, string(s))
		}
	}
	return out
}

func (s *Store) CreateJob(ctx context.Context, job *analysis.Job, results []*analysis.Result) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	if _, err := tx.Exec(ctx,
		`INSERT INTO analysis_jobs (id, status, urls, urls_count, created_at) VALUES ($1, $2, $3, $4, $5)`,
		job.ID, string(job.Status), job.URLs, job.URLsCount, job.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	for _, r := range results {
		if _, err := tx.Exec(ctx,
			`INSERT INTO analysis_results (id, job_id, url, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			r.ID, r.JobID, r.URL, string(r.Status), r.CreatedAt, r.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert result for %s: %w", r.URL, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*analysis.Job, error) {
	var (
		job    analysis.Job
		status string
	)
	err := s.db.QueryRow(ctx,
		`SELECT id, status, urls, urls_count, created_at, completed_at FROM analysis_jobs WHERE id = $1`, id,
	).Scan(&job.ID, &status, &job.URLs, &job.URLsCount, &job.CreatedAt, &job.CompletedAt)
	if pg.NoRows(err) {
		return nil, fmt.Errorf("%w: job %s", analysis.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select job: %w", err)
	}
	job.Status = analysis.JobStatus(status)
	if job.URLs == nil {
		job.URLs = []string{}
	}
	return &job, nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, status analysis.JobStatus, completedAt *time.Time) error {
	n, err := s.db.Exec(ctx,
		`UPDATE analysis_jobs SET status = $2, completed_at = COALESCE($3, completed_at) WHERE id = $1 AND status = ANY($4)`,
		id, string(status), completedAt, jobPredecessors(status),
	)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if n > 0 {
		return nil
	}
	return s.transitionError(ctx, `SELECT status FROM analysis_jobs WHERE id = $1`, "job", id, string(status))
}

// transitionError explains why a guarded update matched no row.
func (s *Store) transitionError(ctx context.Context, query, entity string, id uuid.UUID, next string) error {
	var current string
	err := s.db.QueryRow(ctx, query, id).Scan(&current)
	if pg.NoRows(err) {
		return fmt.Errorf("%w: %s %s", analysis.ErrNotFound, entity, id)
	}
	if err != nil {
		return fmt.Errorf("select %s status: %w", entity, err)
	}
	return fmt.Errorf("%w: %s %s from %s to %s", analysis.ErrInvalidTransition, entity, id, current, next)
}

const resultColumns = `id, job_id, url, status, error, processing_time_ms, file_mime_type, file_size_bytes, COALESCE(strategy, ''), created_at, updated_at`

func scanResult(row database.Row) (*analysis.Result, error) {
	var (
		r        analysis.Result
		status   string
		strategy string
	)
	if err := row.Scan(&r.ID, &r.JobID, &r.URL, &status, &r.Error, &r.ProcessingTimeMS,
		&r.FileMimeType, &r.FileSizeBytes, &strategy, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = analysis.ResultStatus(status)
	r.Strategy = ai.Strategy(strategy)
	return &r, nil
}

func (s *Store) queryResults(ctx context.Context, query string, args ...any) ([]*analysis.Result, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*analysis.Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) ListJobResults(ctx context.Context, jobID uuid.UUID) ([]*analysis.Result, error) {
	out, err := s.queryResults(ctx,
		`SELECT `+resultColumns+` FROM analysis_results WHERE job_id = $1 ORDER BY created_at, id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("select job results: %w", err)
	}
	return out, nil
}

func (s *Store) PendingResults(ctx context.Context, jobID uuid.UUID) ([]*analysis.Result, error) {
	out, err := s.queryResults(ctx,
		`SELECT `+resultColumns+` FROM analysis_results WHERE job_id = $1 AND status = $2 ORDER BY created_at, id`,
		jobID, string(analysis.ResultPending))
	if err != nil {
		return nil, fmt.Errorf("select pending results: %w", err)
	}
	return out, nil
}

func (s *Store) CountUnfinished(ctx context.Context, jobID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM analysis_results WHERE job_id = $1 AND status NOT IN ($2, $3)`,
		jobID, string(analysis.ResultCompleted), string(analysis.ResultFailed),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count unfinished results: %w", err)
	}
	return n, nil
}

func (s *Store) MarkResultProcessing(ctx context.Context, id uuid.UUID) error {
	n, err := s.db.Exec(ctx,
		`UPDATE analysis_results SET status = $2, updated_at = now() WHERE id = $1 AND status = ANY($3)`,
		id, string(analysis.ResultProcessing), resultPredecessors(analysis.ResultProcessing),
	)
	if err != nil {
		return fmt.Errorf("mark result processing: %w", err)
	}
	if n > 0 {
		return nil
	}
	return s.transitionError(ctx, `SELECT status FROM analysis_results WHERE id = $1`, "result", id, string(analysis.ResultProcessing))
}

func (s *Store) FinishResult(ctx context.Context, id uuid.UUID, outcome analysis.Outcome) error {
	if !outcome.Status.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal status", analysis.ErrInvalidTransition, outcome.Status)
	}

	var strategy *string
	if outcome.Strategy != "" {
		v := string(outcome.Strategy)
		strategy = &v
	}

	n, err := s.db.Exec(ctx,
		`UPDATE analysis_results
		SET status = $2, error = $3, processing_time_ms = $4, file_mime_type = $5, file_size_bytes = $6, strategy = $7, updated_at = now()
		WHERE id = $1 AND status = ANY($8)`,
		id, string(outcome.Status), outcome.Error, outcome.ProcessingTimeMS, outcome.FileMimeType, outcome.FileSizeBytes, strategy,
		resultPredecessors(outcome.Status),
	)
	if err != nil {
		return fmt.Errorf("finish result: %w", err)
	}
	if n > 0 {
		return nil
	}
	return s.transitionError(ctx, `SELECT status FROM analysis_results WHERE id = $1`, "result", id, string(outcome.Status))
}

func (s *Store) GetResult(ctx context.Context, id uuid.UUID) (*analysis.Result, error) {
	r, err := scanResult(s.db.QueryRow(ctx, `SELECT `+resultColumns+` FROM analysis_results WHERE id = $1`, id))
	if pg.NoRows(err) {
		return nil, fmt.Errorf("%w: result %s", analysis.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select result: %w", err)
	}
	return r, nil
}

func (s *Store) ListResults(ctx context.Context, status *analysis.ResultStatus, limit, offset int) ([]*analysis.Result, int, error) {
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}

	var total int
	if err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM analysis_results WHERE ($1::text IS NULL OR status = $1)`, filter,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	out, err := s.queryResults(ctx,
		`SELECT `+resultColumns+` FROM analysis_results WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC, id LIMIT $2 OFFSET $3`,
		filter, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("select results: %w", err)
	}
	return out, total, nil
}

// SaveCircular writes the snapshot and its department rows in one transaction.
// A second snapshot for the same result hits the unique result_id constraint.
func (s *Store) SaveCircular(ctx context.Context, resultID uuid.UUID, c *circular.Circular, raw string) (*analysis.Snapshot, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode circular: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback(context.Background())
	}()

	snapshot := &analysis.Snapshot{
		ResultID:    resultID,
		Circular:    *c,
		Departments: make([]analysis.DepartmentRow, 0, len(c.Departments)),
		RawResponse: raw,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO admission_circulars (
			result_id, university_name, circular_link, application_start, application_end, exam_date,
			min_gpa_ssc, min_gpa_hsc, min_gpa_total, ssc_years, hsc_years, required_documents,
			age_limit_min, age_limit_max, nationality_requirement, data, raw_response
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING id, created_at`,
		resultID, c.UniversityName, c.CircularLink, c.ApplicationPeriod.Start, c.ApplicationPeriod.End, c.ExamDate,
		c.GeneralGPA.SSC, c.GeneralGPA.HSC, c.GeneralGPA.Total, c.Years.SSCYears, c.Years.HSCYears, c.RequiredDocuments,
		c.AgeLimitMin, c.AgeLimitMax, c.NationalityRequirement, data, raw,
	).Scan(&snapshot.ID, &snapshot.CreatedAt)
	switch {
	case pg.UniqueViolation(err):
		return nil, fmt.Errorf("%w: %s", analysis.ErrSnapshotExists, resultID)
	case pg.ForeignKeyViolation(err):
		return nil, fmt.Errorf("%w: result %s", analysis.ErrNotFound, resultID)
	case err != nil:
		return nil, fmt.Errorf("insert admission circular: %w", err)
	}

	for i, d := range c.Departments {
		deptData, err := json.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode department %d: %w", i, err)
		}
		row := analysis.DepartmentRow{SnapshotID: snapshot.ID, Position: i, Department: d}
		if err := tx.QueryRow(ctx,
			`INSERT INTO department_requirements (circular_id, position, department_name, min_gpa_total, data)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			snapshot.ID, i, d.Name, d.MinGPATotal, deptData,
		).Scan(&row.ID); err != nil {
			return nil, fmt.Errorf("insert department %d: %w", i, err)
		}
		snapshot.Departments = append(snapshot.Departments, row)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return snapshot, nil
}

const snapshotColumns = `id, result_id, data, raw_response, created_at`

func (s *Store) GetSnapshot(ctx context.Context, id uuid.UUID) (*analysis.Snapshot, error) {
	return s.loadSnapshot(ctx, `SELECT `+snapshotColumns+` FROM admission_circulars WHERE id = $1`, id, "admission circular")
}

func (s *Store) GetSnapshotByResult(ctx context.Context, resultID uuid.UUID) (*analysis.Snapshot, error) {
	return s.loadSnapshot(ctx, `SELECT `+snapshotColumns+` FROM admission_circulars WHERE result_id = $1`, resultID, "admission circular for result")
}

func (s *Store) loadSnapshot(ctx context.Context, query string, key uuid.UUID, entity string) (*analysis.Snapshot, error) {
	var (
		snapshot analysis.Snapshot
		data     []byte
	)
	err := s.db.QueryRow(ctx, query, key).Scan(&snapshot.ID, &snapshot.ResultID, &data, &snapshot.RawResponse, &snapshot.CreatedAt)
	if pg.NoRows(err) {
		return nil, fmt.Errorf("%w: %s %s", analysis.ErrNotFound, entity, key)
	}
	if err != nil {
		return nil, fmt.Errorf("select admission circular: %w", err)
	}
	if err := json.Unmarshal(data, &snapshot.Circular); err != nil {
		return nil, fmt.Errorf("decode admission circular %s: %w", snapshot.ID, err)
	}
	snapshot.Circular.EnsureLists()

	rows, err := s.db.Query(ctx,
		`SELECT id, position, data FROM department_requirements WHERE circular_id = $1 ORDER BY position`, snapshot.ID)
	if err != nil {
		return nil, fmt.Errorf("select departments: %w", err)
	}
	defer rows.Close()

	snapshot.Departments = []analysis.DepartmentRow{}
	for rows.Next() {
		row := analysis.DepartmentRow{SnapshotID: snapshot.ID}
		var deptData []byte
		if err := rows.Scan(&row.ID, &row.Position, &deptData); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		if err := json.Unmarshal(deptData, &row.Department); err != nil {
			return nil, fmt.Errorf("decode department %s: %w", row.ID, err)
		}
		row.Department.EnsureLists()
		snapshot.Departments = append(snapshot.Departments, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate departments: %w", err)
	}
	return &snapshot, nil
}
