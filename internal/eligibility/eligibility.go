// Package eligibility evaluates applicants against persisted requirement snapshots.
package eligibility

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type Status string

const (
	StatusEligible    Status = "eligible"
	StatusNotEligible Status = "not_eligible"
	// StatusConditional is part of the stored vocabulary but Evaluate never produces it.
	StatusConditional Status = "conditional"
)

// Applicant is the read-only academic record of a student. Empty strings mean
// the value is unknown.
type Applicant struct {
	ID          uuid.UUID  `json:"id"`
	SSCGPA      string     `json:"ssc_gpa"`
	HSCGPA      string     `json:"hsc_gpa"`
	SSCYear     string     `json:"ssc_year"`
	HSCYear     string     `json:"hsc_year"`
	DateOfBirth *time.Time `json:"date_of_birth"`
	Nationality string     `json:"nationality"`
}

// Check is one persisted evaluation. A nil predicate was not evaluated or
// could not be decided.
type Check struct {
	ID           uuid.UUID  `json:"id"`
	ApplicantID  uuid.UUID  `json:"student_id"`
	SnapshotID   uuid.UUID  `json:"circular_id"`
	DepartmentID *uuid.UUID `json:"department_id"`

	MeetsGeneralGPA             *bool `json:"meets_general_gpa"`
	MeetsDepartmentGPA          *bool `json:"meets_department_gpa"`
	MeetsYearRequirement        *bool `json:"meets_year_requirement"`
	MeetsSubjectRequirement     *bool `json:"meets_subject_requirement"`
	MeetsAgeRequirement         *bool `json:"meets_age_requirement"`
	MeetsNationalityRequirement *bool `json:"meets_nationality_requirement"`

	Status              Status    `json:"status"`
	MissingRequirements string    `json:"missing_requirements,omitempty"`
	GPADifference       *float64  `json:"gpa_difference"`
	CreatedAt           time.Time `json:"created_at"`
}
