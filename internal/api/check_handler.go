package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

func (s *Server) checkEligibility(c fiber.Ctx) error {
	var req CheckRequest
	if err := c.Bind().Body(&req); err != nil {
		return bindError(err)
	}

	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		return bindError(err)
	}
	circularID, err := uuid.Parse(req.CircularID)
	if err != nil {
		return bindError(err)
	}
	var departmentID *uuid.UUID
	if req.DepartmentID != nil {
		id, err := uuid.Parse(*req.DepartmentID)
		if err != nil {
			return bindError(err)
		}
		departmentID = &id
	}

	check, err := s.eligibility.Check(c.Context(), studentID, circularID, departmentID)
	if err != nil {
		return mapServiceError(err)
	}
	return Success(c, fiber.StatusCreated, "eligibility evaluated", check)
}

func (s *Server) getCheck(c fiber.Ctx) error {
	id, err := parseID(c, "check_id")
	if err != nil {
		return err
	}

	check, err := s.eligibility.Get(c.Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return Success(c, fiber.StatusOK, MessageOK, check)
}

func (s *Server) checkHistory(c fiber.Ctx) error {
	studentID, err := parseID(c, "student_id")
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}

	checks, err := s.eligibility.History(c.Context(), studentID, limit)
	if err != nil {
		return mapServiceError(err)
	}
	return Success(c, fiber.StatusOK, MessageOK, checks)
}
