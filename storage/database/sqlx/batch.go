package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core"
	"github.com/trezcool/feedesk/core/batch"
	"github.com/trezcool/feedesk/core/subscription"
	"github.com/trezcool/feedesk/storage/database"
)

type batchRepository struct {
	db *sqlx.DB
}

var _ batch.Repository = (*batchRepository)(nil) // interface compliance check

func NewBatchRepository(db *sqlx.DB) *batchRepository {
	return &batchRepository{db: db}
}

type batchRow struct {
	ID               string    `db:"id"`
	TeacherID        string    `db:"teacher_id"`
	Name             string    `db:"name"`
	TotalFeeMinor    int64     `db:"total_fee_minor"`
	InstallmentCount int       `db:"installment_count"`
	IsActive         bool      `db:"is_active"`
	CreatedAt        time.Time `db:"created_at"`
}

type dueDateRow struct {
	BatchID           string    `db:"batch_id"`
	InstallmentNumber int       `db:"installment_number"`
	DueDate           time.Time `db:"due_date"`
}

type enrollmentRow struct {
	BatchID    string    `db:"batch_id"`
	StudentID  string    `db:"student_id"`
	EnrolledAt time.Time `db:"enrolled_at"`
}

func (r enrollmentRow) enrollment() batch.Enrollment {
	return batch.Enrollment{BatchID: r.BatchID, StudentID: r.StudentID, EnrolledAt: r.EnrolledAt.UTC()}
}

const batchColumns = `id, teacher_id, name, total_fee_minor, installment_count, is_active, created_at`

func (repo batchRepository) unrow(r batchRow, dates []dueDateRow) batch.Batch {
	dueDates := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		dueDates = append(dueDates, d.DueDate.UTC())
	}
	return batch.Batch{
		ID:        r.ID,
		TeacherID: r.TeacherID,
		Name:      r.Name,
		Schedule: batch.FeeSchedule{
			TotalFee:         core.FromMinor(r.TotalFeeMinor),
			InstallmentCount: r.InstallmentCount,
			DueDates:         dueDates,
		},
		IsActive:  r.IsActive,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func (repo batchRepository) CreateBatch(ctx context.Context, b batch.Batch, maxBatches int) (batch.Batch, error) {
	err := database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		// row-lock the teacher so concurrent creations for the same teacher serialize on the count
		n, err := sqlExec(ctx, tx, `UPDATE teachers SET updated_at = updated_at WHERE id = ?`, b.TeacherID)
		if err != nil {
			return errors.Wrap(err, "locking teacher")
		}
		if n == 0 {
			return subscription.ErrTeacherNotFound
		}
		if maxBatches != subscription.Unlimited {
			var active int
			if err = sqlGet(ctx, tx, &active,
				`SELECT COUNT(*) FROM batches WHERE teacher_id = ? AND is_active = ?`, b.TeacherID, true,
			); err != nil {
				return errors.Wrap(err, "counting active batches")
			}
			if active >= maxBatches {
				return batch.ErrQuotaReached
			}
		}

		if _, err = sqlExec(ctx, tx,
			`INSERT INTO batches (`+batchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			b.ID, b.TeacherID, b.Name, core.ToMinor(b.Schedule.TotalFee), b.Schedule.InstallmentCount, b.IsActive, b.CreatedAt.UTC(),
		); err != nil {
			return errors.Wrap(err, "inserting batch")
		}
		for i, d := range b.Schedule.DueDates {
			if _, err = sqlExec(ctx, tx,
				`INSERT INTO installment_due_dates (batch_id, installment_number, due_date) VALUES (?, ?, ?)`,
				b.ID, i+1, d.UTC(),
			); err != nil {
				return errors.Wrap(err, "inserting due date")
			}
		}
		return nil
	})
	if err != nil {
		return batch.Batch{}, err
	}
	return repo.GetBatch(ctx, b.ID)
}

func (repo batchRepository) GetBatch(ctx context.Context, id string) (batch.Batch, error) {
	var row batchRow
	if err := sqlGet(ctx, repo.db, &row, `SELECT `+batchColumns+` FROM batches WHERE id = ?`, id); err != nil {
		return batch.Batch{}, trapNoRowsErr(err, batch.ErrNotFound)
	}
	var dates []dueDateRow
	if err := sqlSelect(ctx, repo.db, &dates,
		`SELECT batch_id, installment_number, due_date FROM installment_due_dates
		WHERE batch_id = ? ORDER BY installment_number ASC`, id,
	); err != nil {
		return batch.Batch{}, errors.Wrap(err, "selecting due dates")
	}
	return repo.unrow(row, dates), nil
}

func (repo batchRepository) QueryBatches(ctx context.Context, teacherID string) ([]batch.Batch, error) {
	var w where
	if teacherID != "" {
		w.add("teacher_id = ?", teacherID)
	}
	var rows []batchRow
	if err := sqlSelect(ctx, repo.db, &rows,
		`SELECT `+batchColumns+` FROM batches`+w.String()+` ORDER BY created_at ASC`, w.args...,
	); err != nil {
		return nil, errors.Wrap(err, "selecting batches")
	}

	var dates []dueDateRow
	var dw where
	if teacherID != "" {
		dw.add("batch_id IN (SELECT id FROM batches WHERE teacher_id = ?)", teacherID)
	}
	if err := sqlSelect(ctx, repo.db, &dates,
		`SELECT batch_id, installment_number, due_date FROM installment_due_dates`+dw.String()+
			` ORDER BY batch_id, installment_number ASC`, dw.args...,
	); err != nil {
		return nil, errors.Wrap(err, "selecting due dates")
	}
	byBatch := make(map[string][]dueDateRow, len(rows))
	for _, d := range dates {
		byBatch[d.BatchID] = append(byBatch[d.BatchID], d)
	}

	batches := make([]batch.Batch, 0, len(rows))
	for _, r := range rows {
		batches = append(batches, repo.unrow(r, byBatch[r.ID]))
	}
	return batches, nil
}

func (repo batchRepository) CountActiveBatches(ctx context.Context, teacherID string) (int, error) {
	var count int
	err := sqlGet(ctx, repo.db, &count, `SELECT COUNT(*) FROM batches WHERE teacher_id = ? AND is_active = ?`, teacherID, true)
	return count, errors.Wrap(err, "counting active batches")
}

func (repo batchRepository) ArchiveBatch(ctx context.Context, id string) (batch.Batch, error) {
	n, err := sqlExec(ctx, repo.db, `UPDATE batches SET is_active = ? WHERE id = ?`, false, id)
	if err != nil {
		return batch.Batch{}, errors.Wrap(err, "archiving batch")
	}
	if n == 0 {
		return batch.Batch{}, batch.ErrNotFound
	}
	return repo.GetBatch(ctx, id)
}

// Enrollments

func (repo batchRepository) Enroll(ctx context.Context, e batch.Enrollment) (batch.Enrollment, error) {
	if _, err := sqlExec(ctx, repo.db,
		`INSERT INTO enrollments (batch_id, student_id, enrolled_at) VALUES (?, ?, ?)
		ON CONFLICT (batch_id, student_id) DO NOTHING`,
		e.BatchID, e.StudentID, e.EnrolledAt.UTC(),
	); err != nil {
		return batch.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	var row enrollmentRow
	if err := sqlGet(ctx, repo.db, &row,
		`SELECT batch_id, student_id, enrolled_at FROM enrollments WHERE batch_id = ? AND student_id = ?`,
		e.BatchID, e.StudentID,
	); err != nil {
		return batch.Enrollment{}, trapNoRowsErr(err, batch.ErrEnrollmentNotFound)
	}
	return row.enrollment(), nil
}

func (repo batchRepository) IsEnrolled(ctx context.Context, batchID, studentID string) (bool, error) {
	var count int
	err := sqlGet(ctx, repo.db, &count,
		`SELECT COUNT(*) FROM enrollments WHERE batch_id = ? AND student_id = ?`, batchID, studentID)
	return count > 0, errors.Wrap(err, "checking enrollment")
}

func (repo batchRepository) QueryEnrollments(ctx context.Context, batchID string) ([]batch.Enrollment, error) {
	var rows []enrollmentRow
	if err := sqlSelect(ctx, repo.db, &rows,
		`SELECT batch_id, student_id, enrolled_at FROM enrollments WHERE batch_id = ? ORDER BY enrolled_at ASC, student_id ASC`,
		batchID,
	); err != nil {
		return nil, errors.Wrap(err, "selecting enrollments")
	}
	enrollments := make([]batch.Enrollment, 0, len(rows))
	for _, r := range rows {
		enrollments = append(enrollments, r.enrollment())
	}
	return enrollments, nil
}

func (repo batchRepository) CountEnrolled(ctx context.Context, batchID string) (int, error) {
	var count int
	err := sqlGet(ctx, repo.db, &count, `SELECT COUNT(*) FROM enrollments WHERE batch_id = ?`, batchID)
	return count, errors.Wrap(err, "counting enrollments")
}
