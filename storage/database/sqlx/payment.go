package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/payment"
)

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil) // interface compliance check

func NewPaymentRepository(db *sqlx.DB) *paymentRepository {
	return &paymentRepository{db: db}
}

type paymentRow struct {
	ID                string      `db:"id"`
	BatchID           string      `db:"batch_id"`
	StudentID         string      `db:"student_id"`
	InstallmentNumber int         `db:"installment_number"`
	AmountMinor       int64       `db:"amount_minor"`
	Status            string      `db:"status"`
	ReceiptURL        string      `db:"receipt_url"`
	Feedback          null.String `db:"feedback"`
	SubmittedAt       time.Time   `db:"submitted_at"`
	VerifiedBy        null.String `db:"verified_by"`
	VerifiedAt        null.Time   `db:"verified_at"`
}

func (r paymentRow) payment() payment.Payment {
	return payment.Payment{
		ID:                r.ID,
		BatchID:           r.BatchID,
		StudentID:         r.StudentID,
		InstallmentNumber: r.InstallmentNumber,
		Amount:            core.FromMinor(r.AmountMinor),
		Status:            payment.Status(r.Status),
		ReceiptURL:        r.ReceiptURL,
		Feedback:          r.Feedback.String,
		SubmittedAt:       r.SubmittedAt.UTC(),
		VerifiedBy:        r.VerifiedBy.String,
		VerifiedAt:        timePtr(r.VerifiedAt),
	}
}

const paymentColumns = `id, batch_id, student_id, installment_number, amount_minor, status, receipt_url, feedback,
	submitted_at, verified_by, verified_at`

var paymentOrderings = map[string]string{
	"submitted_at":       "submitted_at",
	"installment_number": "installment_number",
	"amount":             "amount_minor",
	"status":             "status",
}

func (repo paymentRepository) CreatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	_, err := sqlExec(ctx, repo.db,
		`INSERT INTO payments (id, batch_id, student_id, installment_number, amount_minor, status, receipt_url, feedback, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.BatchID, p.StudentID, p.InstallmentNumber, core.ToMinor(p.Amount), string(p.Status),
		p.ReceiptURL, nullString(p.Feedback), p.SubmittedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return payment.Payment{}, payment.ErrDuplicatePending
		}
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return repo.GetPayment(ctx, p.BatchID, p.ID)
}

func (repo paymentRepository) GetPayment(ctx context.Context, batchID, id string) (payment.Payment, error) {
	var row paymentRow
	if err := sqlGet(ctx, repo.db, &row,
		`SELECT `+paymentColumns+` FROM payments WHERE id = ? AND batch_id = ?`, id, batchID,
	); err != nil {
		return payment.Payment{}, trapNoRowsErr(err, payment.ErrNotFound)
	}
	return row.payment(), nil
}

func (repo paymentRepository) filter(f payment.QueryFilter) *where {
	w := new(where)
	if f.BatchID != "" {
		w.add("batch_id = ?", f.BatchID)
	}
	if f.StudentID != "" {
		w.add("student_id = ?", f.StudentID)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.Installment > 0 {
		w.add("installment_number = ?", f.Installment)
	}
	return w
}

func (repo paymentRepository) QueryPayments(
	ctx context.Context,
	f payment.QueryFilter,
	orderings ...core.DBOrdering,
) ([]payment.Payment, error) {
	w := repo.filter(f)
	orderBy := core.OrderBy(orderings, paymentOrderings, core.DBOrdering{Field: "submitted_at", Ascending: true})

	var rows []paymentRow
	if err := sqlSelect(ctx, repo.db, &rows,
		`SELECT `+paymentColumns+` FROM payments`+w.String()+orderBy+`, id ASC`, w.args...,
	); err != nil {
		return nil, errors.Wrap(err, "selecting payments")
	}
	payments := make([]payment.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.payment())
	}
	return payments, nil
}

func (repo paymentRepository) CountPayments(ctx context.Context, f payment.QueryFilter) (int, error) {
	w := repo.filter(f)
	var count int
	err := sqlGet(ctx, repo.db, &count, `SELECT COUNT(*) FROM payments`+w.String(), w.args...)
	return count, errors.Wrap(err, "counting payments")
}

// ApplyTransition is a single conditional UPDATE: of two concurrent decisions on the same payment
// exactly one matches the pending row.
func (repo paymentRepository) ApplyTransition(ctx context.Context, tr payment.Transition) (payment.Payment, error) {
	n, err := sqlExec(ctx, repo.db,
		`UPDATE payments SET status = ?, verified_by = ?, verified_at = ?
		WHERE id = ? AND batch_id = ? AND status = ?`,
		string(tr.To), nullString(tr.VerifiedBy), tr.VerifiedAt.UTC(), tr.PaymentID, tr.BatchID, string(payment.StatusPending),
	)
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "updating payment")
	}

	p, err := repo.GetPayment(ctx, tr.BatchID, tr.PaymentID)
	if err != nil {
		return payment.Payment{}, err
	}
	if n == 0 {
		return payment.Payment{}, core.NewInvalidStateError("payment", string(p.Status))
	}
	return p, nil
}
