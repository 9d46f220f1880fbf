package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/subscription"
	"github.com/trezcool/feedesk/storage/database"
)

type subscriptionRepository struct {
	db *sqlx.DB
}

var _ subscription.Repository = (*subscriptionRepository)(nil) // interface compliance check

func NewSubscriptionRepository(db *sqlx.DB) *subscriptionRepository {
	return &subscriptionRepository{db: db}
}

type planRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	PriceMinor     int64     `db:"price_minor"`
	DurationMonths int       `db:"duration_months"`
	MaxBatches     int       `db:"max_batches"`
	AccountHolder  string    `db:"account_holder"`
	UPIID          string    `db:"upi_id"`
	UPINumber      string    `db:"upi_number"`
	QRImageURL     string    `db:"qr_image_url"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r planRow) plan() subscription.Plan {
	return subscription.Plan{
		ID:             r.ID,
		Name:           r.Name,
		Price:          core.FromMinor(r.PriceMinor),
		DurationMonths: r.DurationMonths,
		MaxBatches:     r.MaxBatches,
		AccountHolder:  r.AccountHolder,
		UPIID:          r.UPIID,
		UPINumber:      r.UPINumber,
		QRImageURL:     r.QRImageURL,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

type teacherRow struct {
	ID                 string      `db:"id"`
	Name               string      `db:"name"`
	Status             string      `db:"status"`
	ManualOverride     bool        `db:"manual_override"`
	PlanID             null.String `db:"plan_id"`
	SubscriptionStart  null.Time   `db:"subscription_start"`
	SubscriptionEnd    null.Time   `db:"subscription_end"`
	SubscriptionStatus string      `db:"subscription_status"`
	CreatedAt          time.Time   `db:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at"`
}

func (r teacherRow) teacher() subscription.Teacher {
	t := subscription.Teacher{
		ID:             r.ID,
		Name:           r.Name,
		Status:         subscription.Status(r.Status),
		ManualOverride: r.ManualOverride,
		Subscription: subscription.Subscription{
			PlanID: r.PlanID.String,
			Status: subscription.PaymentStatus(r.SubscriptionStatus),
		},
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if r.SubscriptionStart.Valid {
		t.Subscription.StartDate = r.SubscriptionStart.Time.UTC()
	}
	if r.SubscriptionEnd.Valid {
		t.Subscription.EndDate = r.SubscriptionEnd.Time.UTC()
	}
	return t
}

type subscriptionPaymentRow struct {
	ID          string      `db:"id"`
	TeacherID   string      `db:"teacher_id"`
	PlanID      string      `db:"plan_id"`
	AmountMinor int64       `db:"amount_minor"`
	ReceiptURL  string      `db:"receipt_url"`
	Status      string      `db:"status"`
	SubmittedAt time.Time   `db:"submitted_at"`
	DecidedBy   null.String `db:"decided_by"`
	DecidedAt   null.Time   `db:"decided_at"`
}

func (r subscriptionPaymentRow) payment() subscription.Payment {
	return subscription.Payment{
		ID:          r.ID,
		TeacherID:   r.TeacherID,
		PlanID:      r.PlanID,
		Amount:      core.FromMinor(r.AmountMinor),
		ReceiptURL:  r.ReceiptURL,
		Status:      subscription.PaymentStatus(r.Status),
		SubmittedAt: r.SubmittedAt.UTC(),
		DecidedBy:   r.DecidedBy.String,
		DecidedAt:   timePtr(r.DecidedAt),
	}
}

const (
	planColumns    = `id, name, price_minor, duration_months, max_batches, account_holder, upi_id, upi_number, qr_image_url, created_at`
	teacherColumns = `id, name, status, manual_override, plan_id, subscription_start, subscription_end, subscription_status, created_at, updated_at`
	subPayColumns  = `id, teacher_id, plan_id, amount_minor, receipt_url, status, submitted_at, decided_by, decided_at`
)

// Plans

func (repo subscriptionRepository) CreatePlan(ctx context.Context, plan subscription.Plan) (subscription.Plan, error) {
	_, err := sqlExec(ctx, repo.db,
		`INSERT INTO subscription_plans (`+planColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.Name, core.ToMinor(plan.Price), plan.DurationMonths, plan.MaxBatches,
		plan.AccountHolder, plan.UPIID, plan.UPINumber, plan.QRImageURL, plan.CreatedAt.UTC(),
	)
	if err != nil {
		return subscription.Plan{}, errors.Wrap(err, "inserting plan")
	}
	return repo.GetPlan(ctx, plan.ID)
}

func (repo subscriptionRepository) GetPlan(ctx context.Context, id string) (subscription.Plan, error) {
	return getPlan(ctx, repo.db, id)
}

func getPlan(ctx context.Context, exec executor, id string) (subscription.Plan, error) {
	var row planRow
	if err := sqlGet(ctx, exec, &row, `SELECT `+planColumns+` FROM subscription_plans WHERE id = ?`, id); err != nil {
		return subscription.Plan{}, trapNoRowsErr(err, subscription.ErrPlanNotFound)
	}
	return row.plan(), nil
}

func (repo subscriptionRepository) QueryPlans(ctx context.Context) ([]subscription.Plan, error) {
	var rows []planRow
	if err := sqlSelect(ctx, repo.db, &rows, `SELECT `+planColumns+` FROM subscription_plans ORDER BY price_minor ASC, name ASC`); err != nil {
		return nil, errors.Wrap(err, "selecting plans")
	}
	plans := make([]subscription.Plan, 0, len(rows))
	for _, r := range rows {
		plans = append(plans, r.plan())
	}
	return plans, nil
}

// Teachers

func (repo subscriptionRepository) CreateTeacher(ctx context.Context, t subscription.Teacher) (subscription.Teacher, error) {
	_, err := sqlExec(ctx, repo.db,
		`INSERT INTO teachers (id, name, status, manual_override, subscription_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, string(t.Status), t.ManualOverride, string(t.Subscription.Status), t.CreatedAt.UTC(), t.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return subscription.Teacher{}, core.NewValidationError(subscription.ErrTeacherExists, core.FieldError{
				Field: "id",
				Error: subscription.ErrTeacherExists.Error(),
			})
		}
		return subscription.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return repo.GetTeacher(ctx, t.ID)
}

func (repo subscriptionRepository) GetTeacher(ctx context.Context, id string) (subscription.Teacher, error) {
	return getTeacher(ctx, repo.db, id)
}

func getTeacher(ctx context.Context, exec executor, id string) (subscription.Teacher, error) {
	var row teacherRow
	if err := sqlGet(ctx, exec, &row, `SELECT `+teacherColumns+` FROM teachers WHERE id = ?`, id); err != nil {
		return subscription.Teacher{}, trapNoRowsErr(err, subscription.ErrTeacherNotFound)
	}
	return row.teacher(), nil
}

func (repo subscriptionRepository) OverrideTeacherStatus(
	ctx context.Context,
	id string,
	status subscription.Status,
	at time.Time,
) (subscription.Teacher, error) {
	n, err := sqlExec(ctx, repo.db,
		`UPDATE teachers SET status = ?, manual_override = ?, updated_at = ? WHERE id = ?`,
		string(status), true, at.UTC(), id,
	)
	if err != nil {
		return subscription.Teacher{}, errors.Wrap(err, "overriding teacher status")
	}
	if n == 0 {
		return subscription.Teacher{}, subscription.ErrTeacherNotFound
	}
	return repo.GetTeacher(ctx, id)
}

// Payments

func (repo subscriptionRepository) CreatePayment(ctx context.Context, p subscription.Payment) (subscription.Payment, error) {
	_, err := sqlExec(ctx, repo.db,
		`INSERT INTO subscription_payments (id, teacher_id, plan_id, amount_minor, receipt_url, status, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.TeacherID, p.PlanID, core.ToMinor(p.Amount), p.ReceiptURL, string(p.Status), p.SubmittedAt.UTC(),
	)
	if err != nil {
		return subscription.Payment{}, errors.Wrap(err, "inserting subscription payment")
	}
	return repo.GetPayment(ctx, p.ID)
}

func (repo subscriptionRepository) GetPayment(ctx context.Context, id string) (subscription.Payment, error) {
	return getSubscriptionPayment(ctx, repo.db, id)
}

func getSubscriptionPayment(ctx context.Context, exec executor, id string) (subscription.Payment, error) {
	var row subscriptionPaymentRow
	if err := sqlGet(ctx, exec, &row, `SELECT `+subPayColumns+` FROM subscription_payments WHERE id = ?`, id); err != nil {
		return subscription.Payment{}, trapNoRowsErr(err, subscription.ErrPaymentNotFound)
	}
	return row.payment(), nil
}

func (repo subscriptionRepository) QueryPayments(ctx context.Context, filter subscription.QueryFilter) ([]subscription.Payment, error) {
	var w where
	if filter.Status != "" {
		w.add("status = ?", string(filter.Status))
	}
	if filter.TeacherID != "" {
		w.add("teacher_id = ?", filter.TeacherID)
	}

	var rows []subscriptionPaymentRow
	q := `SELECT ` + subPayColumns + ` FROM subscription_payments` + w.String() + ` ORDER BY submitted_at ASC`
	if err := sqlSelect(ctx, repo.db, &rows, q, w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting subscription payments")
	}
	payments := make([]subscription.Payment, 0, len(rows))
	for _, r := range rows {
		payments = append(payments, r.payment())
	}
	return payments, nil
}

func (repo subscriptionRepository) CountPayments(ctx context.Context, status subscription.PaymentStatus) (int, error) {
	var count int
	err := sqlGet(ctx, repo.db, &count, `SELECT COUNT(*) FROM subscription_payments WHERE status = ?`, string(status))
	return count, errors.Wrap(err, "counting subscription payments")
}

func (repo subscriptionRepository) ApplyTransition(
	ctx context.Context,
	tr subscription.Transition,
) (subscription.Payment, subscription.Teacher, error) {
	var (
		p subscription.Payment
		t subscription.Teacher
	)
	err := database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		n, err := sqlExec(ctx, tx,
			`UPDATE subscription_payments SET status = ?, decided_by = ?, decided_at = ?
			WHERE id = ? AND status = ?`,
			string(tr.To), nullString(tr.DecidedBy), tr.DecidedAt.UTC(), tr.PaymentID, string(subscription.PaymentPending),
		)
		if err != nil {
			return errors.Wrap(err, "updating subscription payment")
		}
		if p, err = getSubscriptionPayment(ctx, tx, tr.PaymentID); err != nil {
			return err
		}
		if n == 0 {
			return core.NewInvalidStateError("subscription payment", string(p.Status))
		}

		if tr.Window != nil {
			_, err = sqlExec(ctx, tx,
				`UPDATE teachers SET status = ?, manual_override = ?, plan_id = ?, subscription_start = ?,
				subscription_end = ?, subscription_status = ?, updated_at = ? WHERE id = ?`,
				string(tr.TeacherStatus), false, tr.Window.PlanID, tr.Window.StartDate.UTC(),
				tr.Window.EndDate.UTC(), string(tr.To), tr.DecidedAt.UTC(), p.TeacherID,
			)
		} else {
			_, err = sqlExec(ctx, tx,
				`UPDATE teachers SET status = ?, manual_override = ?, subscription_status = ?, updated_at = ? WHERE id = ?`,
				string(tr.TeacherStatus), false, string(tr.To), tr.DecidedAt.UTC(), p.TeacherID,
			)
		}
		if err != nil {
			return errors.Wrap(err, "updating teacher")
		}
		t, err = getTeacher(ctx, tx, p.TeacherID)
		return err
	})
	if err != nil {
		return subscription.Payment{}, subscription.Teacher{}, err
	}
	return p, t, nil
}
