package api

import (
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/spigell/uniscan/internal/analysis"
)

func (s *Server) submitJob(c fiber.Ctx) error {
	var req AnalyzeRequest
	if err := c.Bind().Body(&req); err != nil {
		return bindError(err)
	}

	urls, err := analysis.ParseURLs(req.URLs)
	if err != nil {
		return mapServiceError(err)
	}

	job, err := s.analysis.Submit(c.Context(), urls)
	if err != nil {
		return mapServiceError(err)
	}

	return Success(c, fiber.StatusAccepted, MessageAccepted, JobCreatedResponse{
		JobID:     job.ID,
		Status:    job.Status,
		URLsCount: job.URLsCount,
		CreatedAt: job.CreatedAt,
	})
}

func (s *Server) jobStatus(c fiber.Ctx) error {
	jobID, err := parseID(c, "job_id")
	if err != nil {
		return err
	}

	view, err := s.analysis.GetStatus(c.Context(), jobID)
	if err != nil {
		return mapServiceError(err)
	}
	return Success(c, fiber.StatusOK, MessageOK, view)
}

func (s *Server) getResult(c fiber.Ctx) error {
	id, err := parseID(c, "result_id")
	if err != nil {
		return err
	}

	view, err := s.analysis.GetResult(c.Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return Success(c, fiber.StatusOK, MessageOK, view)
}

func (s *Server) listResults(c fiber.Ctx) error {
	page, err := queryInt(c, "page")
	if err != nil {
		return err
	}
	size, err := queryInt(c, "page_size")
	if err != nil {
		return err
	}

	out, err := s.analysis.ListResults(c.Context(), analysis.ResultFilter{
		Page:     page,
		PageSize: size,
		Status:   c.Query("status"),
	})
	if err != nil {
		return mapServiceError(err)
	}
	return Success(c, fiber.StatusOK, MessageOK, out)
}

// queryInt returns 0 for an absent parameter.
func queryInt(c fiber.Ctx, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, NewAppError(fiber.StatusBadRequest, "invalid "+key, nil, err)
	}
	return v, nil
}
