package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spigell/uniscan/internal/analysis"
)

// AnalyzeRequest accepts either a single URL or a list of URLs.
type AnalyzeRequest struct {
	URLs any `json:"urls" validate:"required"`
}

type JobCreatedResponse struct {
	JobID     uuid.UUID          `json:"job_id"`
	Status    analysis.JobStatus `json:"status"`
	URLsCount int                `json:"urls_count"`
	CreatedAt time.Time          `json:"created_at"`
}

type CheckRequest struct {
	StudentID    string  `json:"student_id" validate:"required,uuid"`
	CircularID   string  `json:"circular_id" validate:"required,uuid"`
	DepartmentID *string `json:"department_id" validate:"omitempty,uuid"`
}

type structValidator struct {
	validate *validator.Validate
}

func newStructValidator() *structValidator {
	return &structValidator{validate: validator.New()}
}

func (v *structValidator) Validate(out any) error {
	return v.validate.Struct(out)
}

// validationDetails lists one message per failed field.
func validationDetails(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fmt.Sprintf("Field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s (value: %s)", msg, fe.Param())
		}
		out = append(out, msg)
	}
	return out
}
