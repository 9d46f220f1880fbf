package payment

import (
	"context"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/batch"
)

const receiptsFolder = "receipts"

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("payment")
	ErrDuplicatePending = errors.New("a pending payment already exists for this installment")

	submittedAtAsc = core.DBOrdering{Field: "submitted_at", Ascending: true}
)

type (
	Repository interface {
		// CreatePayment inserts a pending payment; it returns ErrDuplicatePending when the student
		// already has a pending payment for the installment.
		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		GetPayment(ctx context.Context, batchID, id string) (Payment, error)
		QueryPayments(ctx context.Context, filter QueryFilter, orderings ...core.DBOrdering) ([]Payment, error)
		CountPayments(ctx context.Context, filter QueryFilter) (int, error)
		// ApplyTransition updates the payment only if it is still pending. It fails with ErrNotFound
		// or *core.InvalidStateError carrying the current status.
		ApplyTransition(ctx context.Context, tr Transition) (Payment, error)
	}

	// Batches is the batch lookup the store needs.
	Batches interface {
		Lookup(ctx context.Context, id string) (batch.Batch, error)
		Manage(ctx context.Context, caller core.Caller, id string) (batch.Batch, error)
		RequireEnrolled(ctx context.Context, batchID, studentID string) error
		QueryEnrollments(ctx context.Context, batchID string) ([]batch.Enrollment, error)
	}

	// LockEvaluator is told about every payment decision.
	LockEvaluator interface {
		Reevaluate(ctx context.Context, batchID, studentID string) (bool, error)
	}

	Service struct {
		repo    Repository
		batches Batches
		locks   LockEvaluator
		blobs   core.BlobStore
		logger  core.Logger
		metrics core.Metrics
	}
)

func NewService(
	repo Repository,
	batches Batches,
	locks LockEvaluator,
	blobs core.BlobStore,
	logger core.Logger,
	metrics core.Metrics,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(batches, "batches"),
		vala.IsNotNil(locks, "locks"),
		vala.IsNotNil(blobs, "blobs"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(metrics, "metrics"),
	).CheckAndPanic()

	return &Service{
		repo:    repo,
		batches: batches,
		locks:   locks,
		blobs:   blobs,
		logger:  logger,
		metrics: metrics,
	}
}

// Record store

// Submit records a pending payment. Validation happens before the receipt upload and the record is
// only created once the upload succeeded. Locked students may submit.
func (svc *Service) Submit(ctx context.Context, caller core.Caller, np NewPayment, receipt core.File) (Payment, error) {
	if !(caller.IsAdmin() || caller.IsStudent() && caller.Is(np.StudentID)) {
		return Payment{}, core.ErrPermissionDenied
	}

	b, err := svc.batches.Lookup(ctx, np.BatchID)
	if err != nil {
		return Payment{}, err
	}
	if err = svc.batches.RequireEnrolled(ctx, b.ID, np.StudentID); err != nil {
		return Payment{}, err
	}

	if !b.Schedule.ValidInstallment(np.InstallmentNumber) {
		return Payment{}, core.NewFieldError("installment_number", "installment_number is out of range")
	}
	if !np.Amount.IsPositive() || !core.HasMoneyPrecision(np.Amount) {
		return Payment{}, core.NewFieldError("amount", "amount must be a positive amount with at most 2 decimal places")
	}
	if !core.FitsMinor(np.Amount) {
		return Payment{}, core.NewFieldError("amount", "amount is too large")
	}
	pending, err := svc.repo.CountPayments(ctx, QueryFilter{
		BatchID:     b.ID,
		StudentID:   np.StudentID,
		Status:      StatusPending,
		Installment: np.InstallmentNumber,
	})
	if err != nil {
		return Payment{}, errors.Wrap(err, "counting pending payments")
	}
	if pending > 0 {
		return Payment{}, duplicatePendingErr()
	}
	if receipt.Content == nil {
		return Payment{}, core.NewFieldError("receipt", "receipt is required")
	}

	url, err := svc.blobs.Store(ctx, receiptsFolder, receipt)
	if err != nil {
		return Payment{}, err
	}

	p, err := svc.repo.CreatePayment(ctx, Payment{
		ID:                uuid.New().String(),
		BatchID:           b.ID,
		StudentID:         np.StudentID,
		InstallmentNumber: np.InstallmentNumber,
		Amount:            np.Amount,
		Status:            StatusPending,
		ReceiptURL:        url,
		Feedback:          core.CleanString(np.Feedback),
		SubmittedAt:       core.Now(),
	})
	if err != nil {
		if errors.Cause(err) == ErrDuplicatePending {
			return Payment{}, duplicatePendingErr()
		}
		return Payment{}, errors.Wrap(err, "creating payment")
	}
	svc.metrics.PaymentTransition(string(StatusPending))
	return p, nil
}

func duplicatePendingErr() error {
	return core.NewValidationError(ErrDuplicatePending, core.FieldError{
		Field: "installment_number",
		Error: ErrDuplicatePending.Error(),
	})
}

// ListByBatch returns one record per enrolled student (plus students with payments but no longer
// enrolled), each with its payments oldest first.
func (svc *Service) ListByBatch(ctx context.Context, caller core.Caller, batchID string) ([]StudentPaymentRecord, error) {
	if _, err := svc.batches.Manage(ctx, caller, batchID); err != nil {
		return nil, err
	}
	enrollments, err := svc.batches.QueryEnrollments(ctx, batchID)
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	payments, err := svc.repo.QueryPayments(ctx, QueryFilter{BatchID: batchID}, submittedAtAsc)
	if err != nil {
		return nil, errors.Wrap(err, "querying payments")
	}

	records := make([]StudentPaymentRecord, 0, len(enrollments))
	index := make(map[string]int, len(enrollments))
	add := func(studentID string) int {
		if i, ok := index[studentID]; ok {
			return i
		}
		records = append(records, StudentPaymentRecord{BatchID: batchID, StudentID: studentID, Payments: []Payment{}})
		index[studentID] = len(records) - 1
		return len(records) - 1
	}
	for _, e := range enrollments {
		add(e.StudentID)
	}
	for _, p := range payments {
		i := add(p.StudentID)
		records[i].Payments = append(records[i].Payments, p)
	}
	return records, nil
}

// ListByStudent is the payment history of a student, oldest first, rejected payments included.
func (svc *Service) ListByStudent(ctx context.Context, caller core.Caller, batchID, studentID string) ([]Payment, error) {
	if caller.IsStudent() {
		if !caller.Is(studentID) {
			return nil, core.ErrPermissionDenied
		}
		if _, err := svc.batches.Lookup(ctx, batchID); err != nil {
			return nil, err
		}
		if err := svc.batches.RequireEnrolled(ctx, batchID, studentID); err != nil {
			return nil, err
		}
	} else if _, err := svc.batches.Manage(ctx, caller, batchID); err != nil {
		return nil, err
	}
	return svc.repo.QueryPayments(ctx, QueryFilter{BatchID: batchID, StudentID: studentID}, submittedAtAsc)
}

// Approved returns every approved payment of a batch, without authorization checks.
func (svc *Service) Approved(ctx context.Context, batchID string) ([]Payment, error) {
	return svc.repo.QueryPayments(ctx, QueryFilter{BatchID: batchID, Status: StatusApproved}, submittedAtAsc)
}

// Verification workflow

// ListPending returns the verification queue, oldest submission first.
func (svc *Service) ListPending(ctx context.Context, caller core.Caller, batchID string) ([]Payment, error) {
	if _, err := svc.batches.Manage(ctx, caller, batchID); err != nil {
		return nil, err
	}
	return svc.repo.QueryPayments(ctx, QueryFilter{BatchID: batchID, Status: StatusPending}, submittedAtAsc)
}

func (svc *Service) CountPending(ctx context.Context, caller core.Caller, batchID string) (int, error) {
	if _, err := svc.batches.Manage(ctx, caller, batchID); err != nil {
		return 0, err
	}
	return svc.repo.CountPayments(ctx, QueryFilter{BatchID: batchID, Status: StatusPending})
}

func (svc *Service) Approve(ctx context.Context, caller core.Caller, batchID, paymentID string) (Payment, error) {
	return svc.transition(ctx, caller, batchID, paymentID, StatusApproved)
}

// Reject never locks the student by itself.
func (svc *Service) Reject(ctx context.Context, caller core.Caller, batchID, paymentID string) (Payment, error) {
	return svc.transition(ctx, caller, batchID, paymentID, StatusRejected)
}

func (svc *Service) transition(ctx context.Context, caller core.Caller, batchID, paymentID string, to Status) (Payment, error) {
	if _, err := svc.batches.Manage(ctx, caller, batchID); err != nil {
		return Payment{}, err
	}

	p, err := svc.repo.ApplyTransition(ctx, Transition{
		PaymentID:  paymentID,
		BatchID:    batchID,
		To:         to,
		VerifiedBy: caller.ID,
		VerifiedAt: core.Now(),
	})
	if err != nil {
		return Payment{}, err
	}
	svc.metrics.PaymentTransition(string(to))
	svc.logger.Info("payment "+string(to), map[string]interface{}{
		"payment_id":  p.ID,
		"batch_id":    p.BatchID,
		"student_id":  p.StudentID,
		"installment": p.InstallmentNumber,
		"amount":      p.Amount.String(),
	}, caller)

	if _, err = svc.locks.Reevaluate(ctx, p.BatchID, p.StudentID); err != nil {
		// the transition is committed; the lock state is read again on the next access check
		svc.logger.Warn("re-evaluating student lock", err)
	}
	return p, nil
}
