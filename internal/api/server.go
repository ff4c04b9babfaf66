// Package api exposes analysis and eligibility over HTTP.
package api

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/spigell/uniscan/internal/analysis"
	"github.com/spigell/uniscan/internal/eligibility"
	"go.uber.org/zap"
)

type AnalysisService interface {
	Submit(ctx context.Context, urls []string) (*analysis.Job, error)
	GetStatus(ctx context.Context, jobID uuid.UUID) (*analysis.JobStatusView, error)
	GetResult(ctx context.Context, id uuid.UUID) (*analysis.ResultView, error)
	ListResults(ctx context.Context, filter analysis.ResultFilter) (*analysis.ResultPage, error)
}

type EligibilityService interface {
	Check(ctx context.Context, applicantID, snapshotID uuid.UUID, departmentID *uuid.UUID) (*eligibility.Check, error)
	Get(ctx context.Context, id uuid.UUID) (*eligibility.Check, error)
	History(ctx context.Context, applicantID uuid.UUID, limit int) ([]*eligibility.Check, error)
}

type Server struct {
	app         *fiber.App
	analysis    AnalysisService
	eligibility EligibilityService
	logger      *zap.Logger
}

func New(analysisSvc AnalysisService, eligibilitySvc EligibilityService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		app: fiber.New(fiber.Config{
			AppName:         "uniscan",
			StructValidator: newStructValidator(),
		}),
		analysis:    analysisSvc,
		eligibility: eligibilitySvc,
		logger:      log,
	}

	s.app.Use(accessLogMiddleware(log))
	s.app.Use(errorMiddleware(log))
	s.registerRoutes()
	return s
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.Get("/health", s.health)

	v1 := s.app.Group("/api/v1")

	v1.Post("/analyze", s.submitJob)
	v1.Get("/analyze/:job_id", s.jobStatus)
	v1.Get("/results", s.listResults)
	v1.Get("/results/:result_id", s.getResult)

	v1.Post("/check", s.checkEligibility)
	v1.Get("/check/:check_id", s.getCheck)
	v1.Get("/students/:student_id/checks", s.checkHistory)
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c fiber.Ctx) error {
	return Success(c, fiber.StatusOK, MessageOK, fiber.Map{"status": "healthy"})
}

func parseID(c fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(c.Params(param)))
	if err != nil {
		return uuid.Nil, NewAppError(fiber.StatusBadRequest, "invalid "+param, nil, err)
	}
	return id, nil
}

func bindError(err error) error {
	if details := validationDetails(err); details != nil {
		return NewAppError(fiber.StatusBadRequest, "validation failed", details, err)
	}
	return NewAppError(fiber.StatusBadRequest, "invalid request body", nil, err)
}

// mapServiceError turns domain errors into client errors; anything else is a 500.
func mapServiceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, analysis.ErrValidation):
		return NewAppError(fiber.StatusBadRequest, err.Error(), nil, err)
	case errors.Is(err, analysis.ErrNotFound), errors.Is(err, eligibility.ErrNotFound):
		return NewAppError(fiber.StatusNotFound, err.Error(), nil, err)
	case errors.Is(err, analysis.ErrSnapshotExists):
		return NewAppError(fiber.StatusConflict, err.Error(), nil, err)
	default:
		return NewAppError(fiber.StatusInternalServerError, MessageInternalServerError, nil, err)
	}
}
