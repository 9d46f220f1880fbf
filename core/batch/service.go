package batch

import (
	"context"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/subscription"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError("batch")
	ErrEnrollmentNotFound = core.NewNotFoundError("student enrollment")
	// ErrQuotaReached is returned by Repository.CreateBatch when the conditional insert finds the quota used up.
	ErrQuotaReached = errors.New("batch quota reached")
)

type (
	Repository interface {
		// CreateBatch inserts the batch only while the teacher has fewer than maxBatches active batches
		// (subscription.Unlimited disables the check); otherwise it returns ErrQuotaReached.
		CreateBatch(ctx context.Context, b Batch, maxBatches int) (Batch, error)
		GetBatch(ctx context.Context, id string) (Batch, error)
		// QueryBatches lists the batches of teacherID, or all batches when teacherID is empty.
		QueryBatches(ctx context.Context, teacherID string) ([]Batch, error)
		CountActiveBatches(ctx context.Context, teacherID string) (int, error)
		ArchiveBatch(ctx context.Context, id string) (Batch, error)

		// Enroll is idempotent: enrolling twice returns the first Enrollment.
		Enroll(ctx context.Context, e Enrollment) (Enrollment, error)
		IsEnrolled(ctx context.Context, batchID, studentID string) (bool, error)
		QueryEnrollments(ctx context.Context, batchID string) ([]Enrollment, error)
		CountEnrolled(ctx context.Context, batchID string) (int, error)
	}

	// TeacherGate exposes the teacher state batches depend on.
	TeacherGate interface {
		EffectiveStatus(ctx context.Context, teacherID string) (subscription.Status, subscription.Teacher, error)
		BatchQuota(ctx context.Context, teacherID string) (subscription.Plan, error)
	}

	Service struct {
		repo   Repository
		gate   TeacherGate
		logger core.Logger
	}
)

func NewService(repo Repository, gate TeacherGate, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(gate, "gate"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{repo: repo, gate: gate, logger: logger}
}

// Create opens a batch for the calling teacher, subject to the plan's batch quota.
func (svc *Service) Create(ctx context.Context, caller core.Caller, nb NewBatch) (Batch, error) {
	if !caller.IsTeacher() {
		return Batch{}, core.ErrPermissionDenied
	}
	if err := svc.checkTeacherActive(ctx, caller.ID); err != nil {
		return Batch{}, err
	}

	name := core.CleanString(nb.Name)
	if name == "" {
		return Batch{}, core.NewFieldError("name", "name is required")
	}
	schedule, err := NewFeeSchedule(nb.TotalFee, nb.InstallmentCount, nb.DueDates)
	if err != nil {
		return Batch{}, err
	}

	plan, err := svc.gate.BatchQuota(ctx, caller.ID)
	if err != nil {
		return Batch{}, errors.Wrap(err, "getting batch quota")
	}
	active, err := svc.repo.CountActiveBatches(ctx, caller.ID)
	if err != nil {
		return Batch{}, errors.Wrap(err, "counting active batches")
	}
	if err = subscription.CheckQuota(plan, active); err != nil {
		return Batch{}, err
	}

	b, err := svc.repo.CreateBatch(ctx, Batch{
		ID:        uuid.New().String(),
		TeacherID: caller.ID,
		Name:      name,
		Schedule:  schedule,
		IsActive:  true,
		CreatedAt: core.Now(),
	}, plan.MaxBatches)
	if err != nil {
		if errors.Cause(err) == ErrQuotaReached {
			// lost a race against a concurrent creation
			return Batch{}, core.NewQuotaExceededError(plan.MaxBatches, plan.MaxBatches)
		}
		return Batch{}, errors.Wrap(err, "creating batch")
	}
	svc.logger.Info("batch created", map[string]interface{}{"batch_id": b.ID, "teacher_id": b.TeacherID}, caller)
	return b, nil
}

// Lookup returns the batch without authorization checks.
func (svc *Service) Lookup(ctx context.Context, id string) (Batch, error) {
	return svc.repo.GetBatch(ctx, id)
}

// Get returns the batch to its admin, its teacher, or one of its students.
func (svc *Service) Get(ctx context.Context, caller core.Caller, id string) (Batch, error) {
	b, err := svc.repo.GetBatch(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	switch {
	case caller.IsAdmin(), caller.IsTeacher() && b.OwnedBy(caller.ID):
		return b, nil
	case caller.IsStudent():
		ok, err := svc.repo.IsEnrolled(ctx, id, caller.ID)
		if err != nil {
			return Batch{}, errors.Wrap(err, "checking enrollment")
		}
		if ok {
			return b, nil
		}
	}
	return Batch{}, core.ErrPermissionDenied
}

// Manage returns the batch when the caller may administer it: an admin, or its teacher
// while the teacher account is active.
func (svc *Service) Manage(ctx context.Context, caller core.Caller, id string) (Batch, error) {
	b, err := svc.repo.GetBatch(ctx, id)
	if err != nil {
		return Batch{}, err
	}
	if caller.IsAdmin() {
		return b, nil
	}
	if !(caller.IsTeacher() && b.OwnedBy(caller.ID)) {
		return Batch{}, core.ErrPermissionDenied
	}
	if err = svc.checkTeacherActive(ctx, caller.ID); err != nil {
		return Batch{}, err
	}
	return b, nil
}

func (svc *Service) Query(ctx context.Context, caller core.Caller) ([]Batch, error) {
	switch {
	case caller.IsAdmin():
		return svc.repo.QueryBatches(ctx, "")
	case caller.IsTeacher():
		return svc.repo.QueryBatches(ctx, caller.ID)
	}
	return nil, core.ErrPermissionDenied
}

// Archive deactivates a batch, releasing one unit of the teacher's quota.
func (svc *Service) Archive(ctx context.Context, caller core.Caller, id string) (Batch, error) {
	if _, err := svc.Manage(ctx, caller, id); err != nil {
		return Batch{}, err
	}
	return svc.repo.ArchiveBatch(ctx, id)
}

func (svc *Service) Enroll(ctx context.Context, caller core.Caller, batchID, studentID string) (Enrollment, error) {
	b, err := svc.Manage(ctx, caller, batchID)
	if err != nil {
		return Enrollment{}, err
	}
	studentID = core.CleanString(studentID)
	if studentID == "" {
		return Enrollment{}, core.NewFieldError("student_id", "student_id is required")
	}
	return svc.repo.Enroll(ctx, Enrollment{BatchID: b.ID, StudentID: studentID, EnrolledAt: core.Now()})
}

func (svc *Service) Enrollments(ctx context.Context, caller core.Caller, batchID string) ([]Enrollment, error) {
	if _, err := svc.Manage(ctx, caller, batchID); err != nil {
		return nil, err
	}
	return svc.repo.QueryEnrollments(ctx, batchID)
}

// QueryEnrollments lists the enrollments of a batch without authorization checks.
func (svc *Service) QueryEnrollments(ctx context.Context, batchID string) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, batchID)
}

// RequireEnrolled fails with ErrEnrollmentNotFound when the student is not in the batch.
func (svc *Service) RequireEnrolled(ctx context.Context, batchID, studentID string) error {
	ok, err := svc.repo.IsEnrolled(ctx, batchID, studentID)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !ok {
		return ErrEnrollmentNotFound
	}
	return nil
}

func (svc *Service) CountEnrolled(ctx context.Context, batchID string) (int, error) {
	return svc.repo.CountEnrolled(ctx, batchID)
}

func (svc *Service) checkTeacherActive(ctx context.Context, teacherID string) error {
	status, _, err := svc.gate.EffectiveStatus(ctx, teacherID)
	if err != nil {
		if errors.Cause(err) == subscription.ErrTeacherNotFound {
			return core.ErrPermissionDenied
		}
		return errors.Wrap(err, "getting teacher status")
	}
	if status != subscription.StatusActive {
		return core.ErrAccountLocked
	}
	return nil
}
