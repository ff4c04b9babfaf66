package eligibility

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spigell/uniscan/internal/analysis"
	"github.com/spigell/uniscan/internal/circular"
	"github.com/spigell/uniscan/internal/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeStore struct {
	applicants map[uuid.UUID]*Applicant
	checks     []*Check
	createErr  error
}

func (f *fakeStore) GetApplicant(_ context.Context, id uuid.UUID) (*Applicant, error) {
	a, ok := f.applicants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) CreateCheck(_ context.Context, check *Check) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.checks = append(f.checks, check)
	return nil
}

func (f *fakeStore) GetCheck(_ context.Context, id uuid.UUID) (*Check, error) {
	for _, c := range f.checks {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) ListChecks(_ context.Context, applicantID uuid.UUID, limit int) ([]*Check, error) {
	var out []*Check
	for i := len(f.checks) - 1; i >= 0 && len(out) < limit; i-- {
		if f.checks[i].ApplicantID == applicantID {
			out = append(out, f.checks[i])
		}
	}
	return out, nil
}

type fakeSnapshots map[uuid.UUID]*analysis.Snapshot

func (f fakeSnapshots) GetSnapshot(_ context.Context, id uuid.UUID) (*analysis.Snapshot, error) {
	s, ok := f[id]
	if !ok {
		return nil, analysis.ErrNotFound
	}
	return s, nil
}

func newFixture(t *testing.T) (*Service, *fakeStore, *Applicant, *analysis.Snapshot, *observer.ObservedLogs) {
	t.Helper()

	applicant := &Applicant{ID: uuid.New(), SSCGPA: "4.50", HSCGPA: "4.75", SSCYear: "2022", HSCYear: "2024"}
	snapshotID := uuid.New()
	department := analysis.DepartmentRow{
		ID:         uuid.New(),
		SnapshotID: snapshotID,
		Department: circular.Department{Name: "B Unit (Arts)", MinGPATotal: floatPtr(8.0)},
	}
	snapshot := snapshotWith(func(c *circular.Circular) {
		c.GeneralGPA.SSC = floatPtr(3.5)
		c.Years.SSCYears = []string{"2022", "2023"}
	})
	snapshot.ID = snapshotID
	snapshot.Departments = []analysis.DepartmentRow{department}

	store := &fakeStore{applicants: map[uuid.UUID]*Applicant{applicant.ID: applicant}}
	core, logs := observer.New(zap.InfoLevel)
	now := func() time.Time { return evaluatedAt }

	svc := NewService(store, fakeSnapshots{snapshot.ID: snapshot}, zap.New(core), now)
	return svc, store, applicant, snapshot, logs
}

func TestServiceCheckStoresResult(t *testing.T) {
	t.Parallel()

	svc, store, applicant, snapshot, logs := newFixture(t)
	departmentID := snapshot.Departments[0].ID

	check, err := svc.Check(context.Background(), applicant.ID, snapshot.ID, &departmentID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if check.ID == uuid.Nil {
		t.Fatalf("expected check id to be assigned")
	}
	if check.Status != StatusEligible {
		t.Fatalf("expected eligible, got %q (%s)", check.Status, check.MissingRequirements)
	}
	if check.GPADifference == nil || *check.GPADifference != 1.25 {
		t.Fatalf("expected gpa difference 1.25, got %v", check.GPADifference)
	}
	if !check.CreatedAt.Equal(evaluatedAt) {
		t.Fatalf("expected created at from clock, got %s", check.CreatedAt)
	}
	if len(store.checks) != 1 || store.checks[0].ID != check.ID {
		t.Fatalf("expected check to be stored")
	}

	entries := logs.FilterMessage("eligibility checked").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	want := map[string]string{
		"status":               "eligible",
		logger.FieldCheckID:    check.ID.String(),
		logger.FieldStudentID:  applicant.ID.String(),
		logger.FieldCircularID: snapshot.ID.String(),
	}
	for key, value := range want {
		if ctx[key] != value {
			t.Fatalf("expected %s=%q in log context, got %v", key, value, ctx)
		}
	}
}

func TestServiceCheckNotFound(t *testing.T) {
	t.Parallel()

	svc, store, applicant, snapshot, _ := newFixture(t)
	foreignDepartment := uuid.New()

	tests := []struct {
		name         string
		applicantID  uuid.UUID
		snapshotID   uuid.UUID
		departmentID *uuid.UUID
	}{
		{name: "unknown student", applicantID: uuid.New(), snapshotID: snapshot.ID},
		{name: "unknown circular", applicantID: applicant.ID, snapshotID: uuid.New()},
		{name: "department of another circular", applicantID: applicant.ID, snapshotID: snapshot.ID, departmentID: &foreignDepartment},
	}

	for _, tt := range tests {
		_, err := svc.Check(context.Background(), tt.applicantID, tt.snapshotID, tt.departmentID)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", tt.name, err)
		}
	}
	if len(store.checks) != 0 {
		t.Fatalf("expected nothing stored, got %d checks", len(store.checks))
	}
}

func TestServiceCheckStoreFailure(t *testing.T) {
	t.Parallel()

	svc, store, applicant, snapshot, _ := newFixture(t)
	store.createErr = errors.New("connection reset")

	_, err := svc.Check(context.Background(), applicant.ID, snapshot.ID, nil)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestServiceHistory(t *testing.T) {
	t.Parallel()

	svc, _, applicant, snapshot, _ := newFixture(t)

	empty, err := svc.History(context.Background(), applicant.ID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty non-nil history, got %v", empty)
	}

	first, err := svc.Check(context.Background(), applicant.ID, snapshot.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := svc.Check(context.Background(), applicant.ID, snapshot.ID, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected every check to get its own id")
	}

	history, err := svc.History(context.Background(), applicant.ID, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 || history[0].ID != second.ID {
		t.Fatalf("expected newest check first, got %v", history)
	}

	got, err := svc.Get(context.Background(), first.ID)
	if err != nil || got.ID != first.ID {
		t.Fatalf("expected to load first check, got %v (%v)", got, err)
	}
	if _, err := svc.Get(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
