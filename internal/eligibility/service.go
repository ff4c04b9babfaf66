package eligibility

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/uniscan/internal/analysis"
	"github.com/spigell/uniscan/internal/logger"
	"go.uber.org/zap"
)

const defaultHistoryLimit = 50

// Store persists applicants and eligibility checks. Checks are append-only.
type Store interface {
	GetApplicant(ctx context.Context, id uuid.UUID) (*Applicant, error)
	CreateCheck(ctx context.Context, check *Check) error
	GetCheck(ctx context.Context, id uuid.UUID) (*Check, error)
	ListChecks(ctx context.Context, applicantID uuid.UUID, limit int) ([]*Check, error)
}

type SnapshotReader interface {
	GetSnapshot(ctx context.Context, id uuid.UUID) (*analysis.Snapshot, error)
}

type Service struct {
	store     Store
	snapshots SnapshotReader
	logger    *zap.Logger
	now       func() time.Time
}

func NewService(store Store, snapshots SnapshotReader, log *zap.Logger, now func() time.Time) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{store: store, snapshots: snapshots, logger: log, now: now}
}

// Check evaluates the applicant against the snapshot and stores a new check.
// A department that does not belong to the snapshot is reported as not found.
func (s *Service) Check(ctx context.Context, applicantID, snapshotID uuid.UUID, departmentID *uuid.UUID) (*Check, error) {
	applicant, err := s.store.GetApplicant(ctx, applicantID)
	if err != nil {
		return nil, notFound(err, "student", applicantID)
	}

	snapshot, err := s.snapshots.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, notFound(err, "admission circular", snapshotID)
	}

	var department *analysis.DepartmentRow
	if departmentID != nil {
		row, ok := snapshot.Department(*departmentID)
		if !ok {
			return nil, fmt.Errorf("%w: department %s in admission circular %s", ErrNotFound, *departmentID, snapshotID)
		}
		department = row
	}

	check := Evaluate(*applicant, snapshot, department, s.now())
	check.ID = uuid.New()

	if err := s.store.CreateCheck(ctx, &check); err != nil {
		return nil, fmt.Errorf("store eligibility check: %w", err)
	}

	logger.With(s.logger, logger.Fields{
		CheckID:    check.ID.String(),
		StudentID:  applicantID.String(),
		CircularID: snapshotID.String(),
	}).Info("eligibility checked", zap.String("status", string(check.Status)))

	return &check, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Check, error) {
	check, err := s.store.GetCheck(ctx, id)
	if err != nil {
		return nil, notFound(err, "requirement check", id)
	}
	return check, nil
}

// History returns the most recent checks of an applicant, newest first.
func (s *Service) History(ctx context.Context, applicantID uuid.UUID, limit int) ([]*Check, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	checks, err := s.store.ListChecks(ctx, applicantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list eligibility checks: %w", err)
	}
	if checks == nil {
		checks = []*Check{}
	}
	return checks, nil
}

func notFound(err error, entity string, id uuid.UUID) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, analysis.ErrNotFound) {
		return fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
	}
	return fmt.Errorf("load %s %s: %w", entity, id, err)
}
