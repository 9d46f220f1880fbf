package subscription

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feedesk/core"
)

// Status is a teacher account status.
type Status string

const (
	StatusActive Status = "active"
	StatusLocked Status = "locked"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusLocked }

// PaymentStatus is the state of a SubscriptionPayment. verified and rejected are terminal.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentVerified PaymentStatus = "verified"
	PaymentRejected PaymentStatus = "rejected"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentVerified, PaymentRejected:
		return true
	}
	return false
}

// Decision is the admin verdict on a pending SubscriptionPayment.
type Decision string

const (
	DecisionVerify Decision = "verify"
	DecisionReject Decision = "reject"
)

// Unlimited is the MaxBatches value of plans without a batch quota.
const Unlimited = -1

type Plan struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Price          decimal.Decimal `json:"price"`
	DurationMonths int             `json:"duration_months"`
	MaxBatches     int             `json:"max_batches"`
	AccountHolder  string          `json:"account_holder,omitempty"`
	UPIID          string          `json:"upi_id,omitempty"`
	UPINumber      string          `json:"upi_number,omitempty"`
	QRImageURL     string          `json:"qr_image_url,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (p Plan) Unlimited() bool { return p.MaxBatches == Unlimited }

// Subscription is the entitlement window granted by the last decided payment.
type Subscription struct {
	PlanID    string        `json:"plan_id,omitempty"`
	StartDate time.Time     `json:"start_date"`
	EndDate   time.Time     `json:"end_date"`
	Status    PaymentStatus `json:"subscription_status,omitempty"`
}

type Teacher struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Status         Status       `json:"status"`
	ManualOverride bool         `json:"manual_override"`
	Subscription   Subscription `json:"subscription"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type Payment struct {
	ID          string          `json:"id"`
	TeacherID   string          `json:"teacher_id"`
	PlanID      string          `json:"plan_id"`
	Amount      decimal.Decimal `json:"amount"`
	ReceiptURL  string          `json:"receipt_url"`
	Status      PaymentStatus   `json:"status"`
	SubmittedAt time.Time       `json:"submitted_at"`
	DecidedBy   string          `json:"decided_by,omitempty"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
}

// Transition is a pending payment decision together with the teacher row it produces.
type Transition struct {
	PaymentID     string
	To            PaymentStatus
	DecidedBy     string
	DecidedAt     time.Time
	TeacherStatus Status
	// Window replaces the subscription dates and plan; nil keeps them.
	Window *Subscription
}

// Outcome is what a decision leaves behind.
type Outcome struct {
	Payment Payment `json:"payment"`
	Teacher Teacher `json:"teacher"`
	// Effective is the teacher status as seen by access checks right after the decision.
	Effective Status `json:"effective_status"`
}

type Counts struct {
	Pending  int `json:"pending"`
	Rejected int `json:"rejected"`
}

type QueryFilter struct {
	Status    PaymentStatus `query:"status"`
	TeacherID string        `query:"teacher_id"`
}

// NewPlan contains information needed to create a Plan.
type NewPlan struct {
	Name           string          `json:"name" validate:"required"`
	Price          decimal.Decimal `json:"price" validate:"money"`
	DurationMonths int             `json:"duration_months" validate:"min=1"`
	MaxBatches     int             `json:"max_batches" validate:"min=-1,ne=0"`
	AccountHolder  string          `json:"account_holder"`
	UPIID          string          `json:"upi_id"`
	UPINumber      string          `json:"upi_number"`
	QRImageURL     string          `json:"qr_image_url" validate:"omitempty,url"`
}

func (np *NewPlan) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	np.AccountHolder = core.CleanString(np.AccountHolder)
	np.UPIID = core.CleanString(np.UPIID, true /* lower */)
	np.UPINumber = core.CleanString(np.UPINumber)
	np.QRImageURL = core.CleanString(np.QRImageURL)
	return validate.Struct(np)
}

// check enforces the plan invariants without the validator, for callers that skip Validate.
func (np NewPlan) check() error {
	switch {
	case np.Name == "":
		return core.NewFieldError("name", "name is required")
	case !np.Price.IsPositive() || !core.HasMoneyPrecision(np.Price):
		return core.NewFieldError("price", "price must be a positive amount with at most 2 decimal places")
	case !core.FitsMinor(np.Price):
		return core.NewFieldError("price", "price is too large")
	case np.DurationMonths < 1:
		return core.NewFieldError("duration_months", "duration_months must be at least 1")
	case np.MaxBatches != Unlimited && np.MaxBatches < 1:
		return core.NewFieldError("max_batches", "max_batches must be -1 (unlimited) or at least 1")
	}
	return nil
}

type NewTeacher struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	nt.ID = core.CleanString(nt.ID)
	nt.Name = core.CleanString(nt.Name)
	return validate.Struct(nt)
}

type DecisionRequest struct {
	Decision Decision `json:"decision" validate:"required,oneof=verify reject"`
}

func (dr DecisionRequest) Validate(validate *validator.Validate) error { return validate.Struct(dr) }

type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=active locked"`
}

func (sr StatusRequest) Validate(validate *validator.Validate) error { return validate.Struct(sr) }
