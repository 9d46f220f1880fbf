package access

import (
	"context"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/batch"
	"github.com/trezcool/feedesk/core/subscription"
)

type (
	// Repository owns the per-batch lock set. Every method is a single atomic statement or transaction.
	Repository interface {
		// ToggleLock removes the entry when present, inserts it otherwise, and reports the new state.
		ToggleLock(ctx context.Context, entry LockEntry) (bool, error)
		// Lock inserts the entry unless present; an existing entry keeps its LockedAt.
		Lock(ctx context.Context, entry LockEntry) (LockEntry, error)
		Unlock(ctx context.Context, batchID, studentID string) error
		GetLock(ctx context.Context, batchID, studentID string) (LockEntry, bool, error)
		QueryLocks(ctx context.Context, batchID string) ([]LockEntry, error)
	}

	// Batches is the batch lookup the controller needs.
	Batches interface {
		Manage(ctx context.Context, caller core.Caller, id string) (batch.Batch, error)
		Lookup(ctx context.Context, id string) (batch.Batch, error)
		RequireEnrolled(ctx context.Context, batchID, studentID string) error
	}

	// Teachers is the teacher state the controller needs.
	Teachers interface {
		EffectiveStatus(ctx context.Context, teacherID string) (subscription.Status, subscription.Teacher, error)
		OverrideStatus(ctx context.Context, caller core.Caller, teacherID string, status subscription.Status) (subscription.Teacher, error)
	}

	// Controller is the single source of truth for lock decisions. Nothing is cached:
	// every check reads the stored state.
	Controller struct {
		repo     Repository
		batches  Batches
		teachers Teachers
		logger   core.Logger
		metrics  core.Metrics
	}
)

func NewController(repo Repository, batches Batches, teachers Teachers, logger core.Logger, metrics core.Metrics) *Controller {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(batches, "batches"),
		vala.IsNotNil(teachers, "teachers"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(metrics, "metrics"),
	).CheckAndPanic()

	return &Controller{repo: repo, batches: batches, teachers: teachers, logger: logger, metrics: metrics}
}

// Student locks

// ToggleStudentLock flips the student's lock and returns the new state.
func (c *Controller) ToggleStudentLock(ctx context.Context, caller core.Caller, batchID, studentID, reason string) (bool, error) {
	if _, err := c.batches.Manage(ctx, caller, batchID); err != nil {
		return false, err
	}
	if err := c.batches.RequireEnrolled(ctx, batchID, studentID); err != nil {
		return false, err
	}

	locked, err := c.repo.ToggleLock(ctx, LockEntry{
		BatchID:   batchID,
		StudentID: studentID,
		LockedAt:  core.Now(),
		LockedBy:  caller.ID,
		Reason:    core.CleanString(reason),
	})
	if err != nil {
		return false, errors.Wrap(err, "toggling lock")
	}
	c.metrics.LockToggled(locked)
	c.logger.Info("student lock toggled", map[string]interface{}{
		"batch_id":   batchID,
		"student_id": studentID,
		"locked":     locked,
	}, caller)
	return locked, nil
}

// LockStudent locks the student; locking twice keeps the original LockedAt.
func (c *Controller) LockStudent(ctx context.Context, caller core.Caller, batchID, studentID, reason string) (LockEntry, error) {
	if _, err := c.batches.Manage(ctx, caller, batchID); err != nil {
		return LockEntry{}, err
	}
	if err := c.batches.RequireEnrolled(ctx, batchID, studentID); err != nil {
		return LockEntry{}, err
	}
	entry, err := c.repo.Lock(ctx, LockEntry{
		BatchID:   batchID,
		StudentID: studentID,
		LockedAt:  core.Now(),
		LockedBy:  caller.ID,
		Reason:    core.CleanString(reason),
	})
	return entry, errors.Wrap(err, "locking student")
}

// UnlockStudent unlocks the student; unlocking an active student is a no-op.
func (c *Controller) UnlockStudent(ctx context.Context, caller core.Caller, batchID, studentID string) error {
	if _, err := c.batches.Manage(ctx, caller, batchID); err != nil {
		return err
	}
	if err := c.batches.RequireEnrolled(ctx, batchID, studentID); err != nil {
		return err
	}
	return errors.Wrap(c.repo.Unlock(ctx, batchID, studentID), "unlocking student")
}

func (c *Controller) IsStudentLocked(ctx context.Context, batchID, studentID string) (bool, error) {
	_, locked, err := c.repo.GetLock(ctx, batchID, studentID)
	return locked, err
}

func (c *Controller) ListLocks(ctx context.Context, caller core.Caller, batchID string) ([]LockEntry, error) {
	if _, err := c.batches.Manage(ctx, caller, batchID); err != nil {
		return nil, err
	}
	return c.repo.QueryLocks(ctx, batchID)
}

// LockedSet returns the locked students of a batch keyed by student id, without authorization checks.
func (c *Controller) LockedSet(ctx context.Context, batchID string) (map[string]LockEntry, error) {
	entries, err := c.repo.QueryLocks(ctx, batchID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]LockEntry, len(entries))
	for _, e := range entries {
		set[e.StudentID] = e
	}
	return set, nil
}

// Reevaluate reads the student's lock after a payment decision. Payment outcomes never lock or
// unlock by themselves: locking stays a deliberate teacher/admin action.
func (c *Controller) Reevaluate(ctx context.Context, batchID, studentID string) (bool, error) {
	locked, err := c.IsStudentLocked(ctx, batchID, studentID)
	if err != nil {
		return false, errors.Wrap(err, "reading lock")
	}
	c.logger.Debug("student lock re-evaluated", map[string]interface{}{
		"batch_id":   batchID,
		"student_id": studentID,
		"locked":     locked,
	})
	return locked, nil
}

// AuthorizeStudentSurface decides whether the caller may use a batch surface.
// Locked students are denied every surface but payments.
func (c *Controller) AuthorizeStudentSurface(ctx context.Context, caller core.Caller, batchID string, surface Surface) (Decision, error) {
	if !surface.Valid() {
		return Decision{}, core.NewFieldError("surface", "unknown surface")
	}
	dec := Decision{Surface: surface}

	b, err := c.batches.Lookup(ctx, batchID)
	if err != nil {
		return dec, err
	}

	switch {
	case caller.IsAdmin():
		dec.Allowed = true
		return dec, nil
	case caller.IsTeacher():
		if !b.OwnedBy(caller.ID) {
			return dec, core.ErrPermissionDenied
		}
		if err = c.AuthorizeTeacher(ctx, caller); err != nil {
			return dec, err
		}
		dec.Allowed = true
		return dec, nil
	case caller.IsStudent():
		if err = c.batches.RequireEnrolled(ctx, batchID, caller.ID); err != nil {
			if errors.Cause(err) == batch.ErrEnrollmentNotFound {
				return dec, core.ErrPermissionDenied
			}
			return dec, err
		}
		dec.Locked, err = c.IsStudentLocked(ctx, batchID, caller.ID)
		if err != nil {
			return dec, errors.Wrap(err, "reading lock")
		}
		if dec.Locked && !surface.OpenToLocked() {
			return dec, core.ErrAccountLocked
		}
		dec.Allowed = true
		return dec, nil
	}
	return dec, core.ErrPermissionDenied
}

// Teacher locks

// TeacherStatus is the effective status of a teacher, read afresh with lazy expiry applied.
func (c *Controller) TeacherStatus(ctx context.Context, caller core.Caller, teacherID string) (subscription.Status, subscription.Teacher, error) {
	if !(caller.IsAdmin() || caller.IsTeacher() && caller.Is(teacherID)) {
		return subscription.StatusLocked, subscription.Teacher{}, core.ErrPermissionDenied
	}
	return c.teachers.EffectiveStatus(ctx, teacherID)
}

// AuthorizeTeacher fails with core.ErrAccountLocked when a teacher caller is locked. Admins pass.
func (c *Controller) AuthorizeTeacher(ctx context.Context, caller core.Caller) error {
	if caller.IsAdmin() {
		return nil
	}
	if !caller.IsTeacher() {
		return core.ErrPermissionDenied
	}
	status, _, err := c.teachers.EffectiveStatus(ctx, caller.ID)
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

// SetTeacherStatus is the admin manual override; it holds until the next subscription decision.
func (c *Controller) SetTeacherStatus(ctx context.Context, caller core.Caller, teacherID string, status subscription.Status) (subscription.Teacher, error) {
	return c.teachers.OverrideStatus(ctx, caller, teacherID, status)
}
