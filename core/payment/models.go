package payment

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feedesk/core"
)

// Status is the state of a Payment. approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool { return s == StatusApproved || s == StatusRejected }

// CanTransition reports whether a payment in s may move to `to`.
func (s Status) CanTransition(to Status) bool {
	return s == StatusPending && to.Terminal()
}

type Payment struct {
	ID                string          `json:"id"`
	BatchID           string          `json:"batch_id"`
	StudentID         string          `json:"student_id"`
	InstallmentNumber int             `json:"installment_number"`
	Amount            decimal.Decimal `json:"amount"`
	Status            Status          `json:"status"`
	ReceiptURL        string          `json:"receipt_url"`
	Feedback          string          `json:"feedback,omitempty"`
	SubmittedAt       time.Time       `json:"submitted_at"`
	VerifiedBy        string          `json:"verified_by,omitempty"`
	VerifiedAt        *time.Time      `json:"verified_at,omitempty"`
}

// StudentPaymentRecord is the ledger of one student in one batch, oldest payment first.
type StudentPaymentRecord struct {
	BatchID   string    `json:"batch_id"`
	StudentID string    `json:"student_id"`
	Payments  []Payment `json:"payments"`
}

// NewPayment contains information needed to submit a Payment.
type NewPayment struct {
	BatchID           string          `json:"batch_id" validate:"required"`
	StudentID         string          `json:"student_id" validate:"required"`
	InstallmentNumber int             `json:"installment_number" validate:"min=1"`
	Amount            decimal.Decimal `json:"amount" validate:"money"`
	Feedback          string          `json:"feedback" validate:"max=1000"`
}

func (np *NewPayment) Validate(validate *validator.Validate) error {
	np.BatchID = core.CleanString(np.BatchID)
	np.StudentID = core.CleanString(np.StudentID)
	np.Feedback = core.CleanString(np.Feedback)
	return validate.Struct(np)
}

type QueryFilter struct {
	BatchID     string `query:"-"`
	StudentID   string `query:"student_id"`
	Status      Status `query:"status"`
	Installment int    `query:"installment"`
}

// Transition moves one pending payment of a batch to a terminal status.
type Transition struct {
	PaymentID  string
	BatchID    string
	To         Status
	VerifiedBy string
	VerifiedAt time.Time
}
