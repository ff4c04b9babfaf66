package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	FieldProvider   = "ai_provider"
	FieldModel      = "ai_model"
	FieldJobID      = "job_id"
	FieldResultID   = "result_id"
	FieldURL        = "url"
	FieldCheckID    = "check_id"
	FieldStudentID  = "student_id"
	FieldCircularID = "circular_id"
)

// Fields identifies what a log entry is about. Blank values are left out.
type Fields struct {
	Provider   string
	Model      string
	JobID      string
	ResultID   string
	URL        string
	CheckID    string
	StudentID  string
	CircularID string
}

// Zap returns the non-blank fields in a stable order.
func (f Fields) Zap() []zap.Field {
	pairs := [...][2]string{
		{FieldProvider, f.Provider},
		{FieldModel, f.Model},
		{FieldJobID, f.JobID},
		{FieldResultID, f.ResultID},
		{FieldURL, f.URL},
		{FieldCheckID, f.CheckID},
		{FieldStudentID, f.StudentID},
		{FieldCircularID, f.CircularID},
	}

	out := make([]zap.Field, 0, len(pairs))
	for _, p := range pairs {
		if v := strings.TrimSpace(p[1]); v != "" {
			out = append(out, zap.String(p[0], v))
		}
	}
	return out
}

// With returns log enriched with f. A nil log becomes a no-op logger.
func With(log *zap.Logger, f Fields) *zap.Logger {
	if log == nil {
		log = zap.NewNop()
	}
	fields := f.Zap()
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}
