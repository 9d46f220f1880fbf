package batch

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/trezcool/feedesk/core"
)

type Batch struct {
	ID        string      `json:"id"`
	TeacherID string      `json:"teacher_id"`
	Name      string      `json:"name"`
	Schedule  FeeSchedule `json:"fee_schedule"`
	IsActive  bool        `json:"is_active"`
	CreatedAt time.Time   `json:"created_at"`
}

// OwnedBy reports whether teacherID teaches the batch.
func (b Batch) OwnedBy(teacherID string) bool {
	return teacherID != "" && b.TeacherID == teacherID
}

type Enrollment struct {
	BatchID    string    `json:"batch_id"`
	StudentID  string    `json:"student_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// NewBatch contains information needed to create a Batch.
type NewBatch struct {
	Name             string          `json:"name" validate:"required"`
	TotalFee         decimal.Decimal `json:"total_fee" validate:"money"`
	InstallmentCount int             `json:"installment_count" validate:"min=1"`
	DueDates         []time.Time     `json:"installment_due_dates" validate:"required,min=1"`
}

func (nb *NewBatch) Validate(validate *validator.Validate) error {
	nb.Name = core.CleanString(nb.Name)
	return validate.Struct(nb)
}

type NewEnrollment struct {
	StudentID string `json:"student_id" validate:"required"`
}

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	ne.StudentID = core.CleanString(ne.StudentID)
	return validate.Struct(ne)
}
