package subscription

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feedesk/core"
)

const (
	receiptsFolder = "subscriptions"
	plansFolder    = "plans"
)

var (
	// errors
	ErrPlanNotFound    = core.NewNotFoundError("plan")
	ErrTeacherNotFound = core.NewNotFoundError("teacher")
	ErrPaymentNotFound = core.NewNotFoundError("subscription payment")
	ErrTeacherExists   = errors.New("a teacher with this id already exists")
)

type (
	Repository interface {
		CreatePlan(ctx context.Context, plan Plan) (Plan, error)
		GetPlan(ctx context.Context, id string) (Plan, error)
		QueryPlans(ctx context.Context) ([]Plan, error)

		CreateTeacher(ctx context.Context, teacher Teacher) (Teacher, error)
		GetTeacher(ctx context.Context, id string) (Teacher, error)
		// OverrideTeacherStatus stores `status` as a manual override.
		OverrideTeacherStatus(ctx context.Context, id string, status Status, at time.Time) (Teacher, error)

		CreatePayment(ctx context.Context, payment Payment) (Payment, error)
		GetPayment(ctx context.Context, id string) (Payment, error)
		QueryPayments(ctx context.Context, filter QueryFilter) ([]Payment, error)
		CountPayments(ctx context.Context, status PaymentStatus) (int, error)
		// ApplyTransition moves a pending payment to tr.To and updates its teacher in one transaction.
		// It fails with *core.InvalidStateError when the payment is no longer pending.
		ApplyTransition(ctx context.Context, tr Transition) (Payment, Teacher, error)
	}

	// QRGenerator renders the payment-collection QR code of a plan.
	QRGenerator interface {
		UPIQRCode(upiID, payee string, amount decimal.Decimal, currency string) ([]byte, error)
	}

	Service struct {
		repo     Repository
		blobs    core.BlobStore
		qr       QRGenerator
		logger   core.Logger
		metrics  core.Metrics
		currency string
	}
)

func NewService(
	repo Repository,
	blobs core.BlobStore,
	qr QRGenerator,
	logger core.Logger,
	metrics core.Metrics,
	conf *core.Config,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(blobs, "blobs"),
		vala.IsNotNil(qr, "qr"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(metrics, "metrics"),
		vala.IsNotNil(conf, "conf"),
	).CheckAndPanic()

	return &Service{
		repo:     repo,
		blobs:    blobs,
		qr:       qr,
		logger:   logger,
		metrics:  metrics,
		currency: conf.Fees.Currency,
	}
}

// Plans

func (svc *Service) CreatePlan(ctx context.Context, caller core.Caller, np NewPlan) (Plan, error) {
	if !caller.IsAdmin() {
		return Plan{}, core.ErrPermissionDenied
	}
	if err := np.check(); err != nil {
		return Plan{}, err
	}

	plan := Plan{
		ID:             uuid.New().String(),
		Name:           np.Name,
		Price:          np.Price,
		DurationMonths: np.DurationMonths,
		MaxBatches:     np.MaxBatches,
		AccountHolder:  np.AccountHolder,
		UPIID:          np.UPIID,
		UPINumber:      np.UPINumber,
		QRImageURL:     np.QRImageURL,
		CreatedAt:      core.Now(),
	}

	if plan.QRImageURL == "" && plan.UPIID != "" {
		png, err := svc.qr.UPIQRCode(plan.UPIID, plan.AccountHolder, plan.Price, svc.currency)
		if err != nil {
			return Plan{}, errors.Wrap(err, "generating plan QR code")
		}
		url, err := svc.blobs.Store(ctx, plansFolder, core.File{
			Name:        plan.ID + ".png",
			ContentType: "image/png",
			Size:        int64(len(png)),
			Content:     bytes.NewReader(png),
		})
		if err != nil {
			return Plan{}, err
		}
		plan.QRImageURL = url
	}

	plan, err := svc.repo.CreatePlan(ctx, plan)
	if err != nil {
		return Plan{}, errors.Wrap(err, "creating plan")
	}
	return plan, nil
}

func (svc *Service) GetPlan(ctx context.Context, id string) (Plan, error) {
	return svc.repo.GetPlan(ctx, id)
}

func (svc *Service) QueryPlans(ctx context.Context) ([]Plan, error) {
	return svc.repo.QueryPlans(ctx)
}

// Teachers

// RegisterTeacher creates a teacher account. New teachers are locked until a subscription is verified.
func (svc *Service) RegisterTeacher(ctx context.Context, caller core.Caller, nt NewTeacher) (Teacher, error) {
	if !caller.IsAdmin() {
		return Teacher{}, core.ErrPermissionDenied
	}
	nt.ID = core.CleanString(nt.ID)
	nt.Name = core.CleanString(nt.Name)
	if nt.ID == "" {
		return Teacher{}, core.NewFieldError("id", "id is required")
	}
	if _, err := svc.repo.GetTeacher(ctx, nt.ID); err == nil {
		return Teacher{}, core.NewValidationError(ErrTeacherExists, core.FieldError{Field: "id", Error: ErrTeacherExists.Error()})
	} else if errors.Cause(err) != ErrTeacherNotFound {
		return Teacher{}, errors.Wrap(err, "checking teacher")
	}

	now := core.Now()
	return svc.repo.CreateTeacher(ctx, Teacher{
		ID:        nt.ID,
		Name:      nt.Name,
		Status:    StatusLocked,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (svc *Service) GetTeacher(ctx context.Context, id string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, id)
}

// EffectiveStatus reads the teacher afresh and applies the lazy expiry rule.
func (svc *Service) EffectiveStatus(ctx context.Context, teacherID string) (Status, Teacher, error) {
	t, err := svc.repo.GetTeacher(ctx, teacherID)
	if err != nil {
		return StatusLocked, Teacher{}, err
	}
	return Effective(t, core.Now()), t, nil
}

// OverrideStatus sets the teacher status by hand; it holds until the next subscription decision.
func (svc *Service) OverrideStatus(ctx context.Context, caller core.Caller, teacherID string, status Status) (Teacher, error) {
	if !caller.IsAdmin() {
		return Teacher{}, core.ErrPermissionDenied
	}
	if !status.Valid() {
		return Teacher{}, core.NewFieldError("status", "status must be one of [active locked]")
	}
	t, err := svc.repo.OverrideTeacherStatus(ctx, teacherID, status, core.Now())
	if err != nil {
		return Teacher{}, err
	}
	svc.logger.Info("teacher status overridden", map[string]interface{}{
		"teacher_id": teacherID,
		"status":     status,
	}, caller)
	return t, nil
}

// Quota

// BatchQuota returns the teacher's current plan, which bounds the number of active batches.
func (svc *Service) BatchQuota(ctx context.Context, teacherID string) (Plan, error) {
	t, err := svc.repo.GetTeacher(ctx, teacherID)
	if err != nil {
		return Plan{}, err
	}
	if t.Subscription.PlanID == "" {
		// no plan: no batches
		return Plan{MaxBatches: 0}, nil
	}
	return svc.repo.GetPlan(ctx, t.Subscription.PlanID)
}

// CheckQuota fails with *core.QuotaExceededError when the teacher cannot open another batch.
func (svc *Service) CheckQuota(ctx context.Context, teacherID string, activeBatches int) error {
	plan, err := svc.BatchQuota(ctx, teacherID)
	if err != nil {
		return err
	}
	return CheckQuota(plan, activeBatches)
}

// Payments

// SubmitPayment records a pending subscription payment. The receipt is stored first; a storage
// failure leaves nothing behind.
func (svc *Service) SubmitPayment(ctx context.Context, caller core.Caller, teacherID, planID string, receipt core.File) (Payment, error) {
	if !(caller.IsTeacher() && caller.Is(teacherID)) {
		return Payment{}, core.ErrPermissionDenied
	}
	if _, err := svc.repo.GetTeacher(ctx, teacherID); err != nil {
		return Payment{}, err
	}
	plan, err := svc.repo.GetPlan(ctx, planID)
	if err != nil {
		if errors.Cause(err) == ErrPlanNotFound {
			return Payment{}, core.NewFieldError("plan_id", "unknown plan")
		}
		return Payment{}, errors.Wrap(err, "getting plan")
	}
	if receipt.Content == nil {
		return Payment{}, core.NewFieldError("receipt", "receipt is required")
	}

	url, err := svc.blobs.Store(ctx, receiptsFolder, receipt)
	if err != nil {
		return Payment{}, err
	}

	p, err := svc.repo.CreatePayment(ctx, Payment{
		ID:          uuid.New().String(),
		TeacherID:   teacherID,
		PlanID:      plan.ID,
		Amount:      plan.Price,
		ReceiptURL:  url,
		Status:      PaymentPending,
		SubmittedAt: core.Now(),
	})
	if err != nil {
		return Payment{}, errors.Wrap(err, "creating subscription payment")
	}
	svc.metrics.SubscriptionTransition(string(PaymentPending))
	return p, nil
}

func (svc *Service) QueryPayments(ctx context.Context, caller core.Caller, filter QueryFilter) ([]Payment, error) {
	switch {
	case caller.IsAdmin():
	case caller.IsTeacher():
		filter.TeacherID = caller.ID
	default:
		return nil, core.ErrPermissionDenied
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, core.NewFieldError("status", "status must be one of [pending verified rejected]")
	}
	return svc.repo.QueryPayments(ctx, filter)
}

// Decide applies an admin decision to a pending subscription payment.
func (svc *Service) Decide(ctx context.Context, caller core.Caller, paymentID string, d Decision) (Outcome, error) {
	switch d {
	case DecisionVerify:
		return svc.Verify(ctx, caller, paymentID)
	case DecisionReject:
		return svc.Reject(ctx, caller, paymentID)
	}
	return Outcome{}, core.NewFieldError("decision", "decision must be one of [verify reject]")
}

// Verify activates the teacher for the plan duration starting now and clears any manual override.
func (svc *Service) Verify(ctx context.Context, caller core.Caller, paymentID string) (Outcome, error) {
	if !caller.IsAdmin() {
		return Outcome{}, core.ErrPermissionDenied
	}
	p, err := svc.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return Outcome{}, err
	}
	if p.Status != PaymentPending {
		return Outcome{}, core.NewInvalidStateError("subscription payment", string(p.Status))
	}
	plan, err := svc.repo.GetPlan(ctx, p.PlanID)
	if err != nil {
		return Outcome{}, errors.Wrap(err, "getting plan")
	}

	now := core.Now()
	return svc.apply(ctx, caller, Transition{
		PaymentID:     paymentID,
		To:            PaymentVerified,
		DecidedBy:     caller.ID,
		DecidedAt:     now,
		TeacherStatus: StatusActive,
		Window: &Subscription{
			PlanID:    plan.ID,
			StartDate: now,
			EndDate:   EndDate(now, plan.DurationMonths),
		},
	})
}

// Reject marks the payment rejected and locks the teacher.
func (svc *Service) Reject(ctx context.Context, caller core.Caller, paymentID string) (Outcome, error) {
	if !caller.IsAdmin() {
		return Outcome{}, core.ErrPermissionDenied
	}
	return svc.apply(ctx, caller, Transition{
		PaymentID:     paymentID,
		To:            PaymentRejected,
		DecidedBy:     caller.ID,
		DecidedAt:     core.Now(),
		TeacherStatus: StatusLocked,
	})
}

func (svc *Service) apply(ctx context.Context, caller core.Caller, tr Transition) (Outcome, error) {
	p, t, err := svc.repo.ApplyTransition(ctx, tr)
	if err != nil {
		return Outcome{}, err
	}
	svc.metrics.SubscriptionTransition(string(tr.To))
	svc.logger.Info("subscription payment "+string(tr.To), map[string]interface{}{
		"payment_id": p.ID,
		"teacher_id": t.ID,
		"status":     t.Status,
		"end_date":   t.Subscription.EndDate,
	}, caller)
	return Outcome{Payment: p, Teacher: t, Effective: Effective(t, tr.DecidedAt)}, nil
}

func (svc *Service) Counts(ctx context.Context, caller core.Caller) (Counts, error) {
	if !caller.IsAdmin() {
		return Counts{}, core.ErrPermissionDenied
	}
	pending, err := svc.repo.CountPayments(ctx, PaymentPending)
	if err != nil {
		return Counts{}, errors.Wrap(err, "counting pending payments")
	}
	rejected, err := svc.repo.CountPayments(ctx, PaymentRejected)
	if err != nil {
		return Counts{}, errors.Wrap(err, "counting rejected payments")
	}
	return Counts{Pending: pending, Rejected: rejected}, nil
}
