package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spigell/uniscan/internal/database"
	pg "github.com/spigell/uniscan/internal/database/postgres"
	"github.com/spigell/uniscan/internal/eligibility"
)

func (s *Store) GetApplicant(ctx context.Context, id uuid.UUID) (*eligibility.Applicant, error) {
	var a eligibility.Applicant
	err := s.db.QueryRow(ctx,
		`SELECT id, COALESCE(ssc_gpa, ''), COALESCE(hsc_gpa, ''), COALESCE(ssc_year, ''), COALESCE(hsc_year, ''),
		date_of_birth, COALESCE(nationality, '')
		FROM students WHERE id = $1`, id,
	).Scan(&a.ID, &a.SSCGPA, &a.HSCGPA, &a.SSCYear, &a.HSCYear, &a.DateOfBirth, &a.Nationality)
	if pg.NoRows(err) {
		return nil, fmt.Errorf("%w: student %s", eligibility.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select student: %w", err)
	}
	return &a, nil
}

// UpsertApplicant writes the read model of one student.
func (s *Store) UpsertApplicant(ctx context.Context, a eligibility.Applicant) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO students (id, ssc_gpa, hsc_gpa, ssc_year, hsc_year, date_of_birth, nationality)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			ssc_gpa = EXCLUDED.ssc_gpa, hsc_gpa = EXCLUDED.hsc_gpa,
			ssc_year = EXCLUDED.ssc_year, hsc_year = EXCLUDED.hsc_year,
			date_of_birth = EXCLUDED.date_of_birth, nationality = EXCLUDED.nationality`,
		a.ID, a.SSCGPA, a.HSCGPA, a.SSCYear, a.HSCYear, a.DateOfBirth, a.Nationality,
	)
	if err != nil {
		return fmt.Errorf("upsert student: %w", err)
	}
	return nil
}

func (s *Store) CreateCheck(ctx context.Context, c *eligibility.Check) error {
	var missing *string
	if c.MissingRequirements != "" {
		missing = &c.MissingRequirements
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO requirement_checks (
			id, student_id, circular_id, department_id,
			meets_general_gpa, meets_department_gpa, meets_year_requirement,
			meets_subject_requirement, meets_age_requirement, meets_nationality_requirement,
			status, missing_requirements, gpa_difference, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		c.ID, c.ApplicantID, c.SnapshotID, nullUUID(c.DepartmentID),
		c.MeetsGeneralGPA, c.MeetsDepartmentGPA, c.MeetsYearRequirement,
		c.MeetsSubjectRequirement, c.MeetsAgeRequirement, c.MeetsNationalityRequirement,
		string(c.Status), missing, c.GPADifference, c.CreatedAt,
	)
	if pg.ForeignKeyViolation(err) {
		return fmt.Errorf("%w: referenced student, circular or department", eligibility.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("insert requirement check: %w", err)
	}
	return nil
}

const checkColumns = `id, student_id, circular_id, department_id,
	meets_general_gpa, meets_department_gpa, meets_year_requirement,
	meets_subject_requirement, meets_age_requirement, meets_nationality_requirement,
	status, COALESCE(missing_requirements, ''), gpa_difference, created_at`

func scanCheck(row database.Row) (*eligibility.Check, error) {
	var (
		c          eligibility.Check
		department uuid.NullUUID
		status     string
	)
	if err := row.Scan(&c.ID, &c.ApplicantID, &c.SnapshotID, &department,
		&c.MeetsGeneralGPA, &c.MeetsDepartmentGPA, &c.MeetsYearRequirement,
		&c.MeetsSubjectRequirement, &c.MeetsAgeRequirement, &c.MeetsNationalityRequirement,
		&status, &c.MissingRequirements, &c.GPADifference, &c.CreatedAt); err != nil {
		return nil, err
	}
	if department.Valid {
		id := department.UUID
		c.DepartmentID = &id
	}
	c.Status = eligibility.Status(status)
	return &c, nil
}

func (s *Store) GetCheck(ctx context.Context, id uuid.UUID) (*eligibility.Check, error) {
	c, err := scanCheck(s.db.QueryRow(ctx, `SELECT `+checkColumns+` FROM requirement_checks WHERE id = $1`, id))
	if pg.NoRows(err) {
		return nil, fmt.Errorf("%w: requirement check %s", eligibility.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("select requirement check: %w", err)
	}
	return c, nil
}

func (s *Store) ListChecks(ctx context.Context, applicantID uuid.UUID, limit int) ([]*eligibility.Check, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+checkColumns+` FROM requirement_checks WHERE student_id = $1 ORDER BY created_at DESC, id LIMIT $2`,
		applicantID, limit)
	if err != nil {
		return nil, fmt.Errorf("select requirement checks: %w", err)
	}
	defer rows.Close()

	out := []*eligibility.Check{}
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan requirement check: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
