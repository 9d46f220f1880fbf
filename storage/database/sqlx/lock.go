package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/feedesk/core/access"
	"github.com/trezcool/feedesk/core/batch"
	"github.com/trezcool/feedesk/storage/database"
)

type lockRepository struct {
	db *sqlx.DB
}

var _ access.Repository = (*lockRepository)(nil) // interface compliance check

func NewLockRepository(db *sqlx.DB) *lockRepository {
	return &lockRepository{db: db}
}

type lockRow struct {
	BatchID   string    `db:"batch_id"`
	StudentID string    `db:"student_id"`
	LockedAt  time.Time `db:"locked_at"`
	LockedBy  string    `db:"locked_by"`
	Reason    string    `db:"reason"`
}

func (r lockRow) entry() access.LockEntry {
	return access.LockEntry{
		BatchID:   r.BatchID,
		StudentID: r.StudentID,
		LockedAt:  r.LockedAt.UTC(),
		LockedBy:  r.LockedBy,
		Reason:    r.Reason,
	}
}

const lockColumns = `batch_id, student_id, locked_at, locked_by, reason`

func insertLock(ctx context.Context, exec executor, e access.LockEntry) error {
	_, err := sqlExec(ctx, exec,
		`INSERT INTO lock_entries (`+lockColumns+`) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (batch_id, student_id) DO NOTHING`,
		e.BatchID, e.StudentID, e.LockedAt.UTC(), e.LockedBy, e.Reason,
	)
	return errors.Wrap(err, "inserting lock entry")
}

func (repo lockRepository) ToggleLock(ctx context.Context, e access.LockEntry) (bool, error) {
	var locked bool
	err := database.WithTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		// row-lock the enrollment so concurrent toggles of one student serialize
		n, err := sqlExec(ctx, tx,
			`UPDATE enrollments SET enrolled_at = enrolled_at WHERE batch_id = ? AND student_id = ?`, e.BatchID, e.StudentID)
		if err != nil {
			return errors.Wrap(err, "locking enrollment")
		}
		if n == 0 {
			return batch.ErrEnrollmentNotFound
		}

		n, err = sqlExec(ctx, tx, `DELETE FROM lock_entries WHERE batch_id = ? AND student_id = ?`, e.BatchID, e.StudentID)
		if err != nil {
			return errors.Wrap(err, "deleting lock entry")
		}
		if n > 0 {
			locked = false
			return nil
		}
		locked = true
		return insertLock(ctx, tx, e)
	})
	return locked, err
}

func (repo lockRepository) Lock(ctx context.Context, e access.LockEntry) (access.LockEntry, error) {
	if err := insertLock(ctx, repo.db, e); err != nil {
		return access.LockEntry{}, err
	}
	entry, _, err := repo.GetLock(ctx, e.BatchID, e.StudentID)
	return entry, err
}

func (repo lockRepository) Unlock(ctx context.Context, batchID, studentID string) error {
	_, err := sqlExec(ctx, repo.db, `DELETE FROM lock_entries WHERE batch_id = ? AND student_id = ?`, batchID, studentID)
	return errors.Wrap(err, "deleting lock entry")
}

func (repo lockRepository) GetLock(ctx context.Context, batchID, studentID string) (access.LockEntry, bool, error) {
	var row lockRow
	err := sqlGet(ctx, repo.db, &row,
		`SELECT `+lockColumns+` FROM lock_entries WHERE batch_id = ? AND student_id = ?`, batchID, studentID)
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return access.LockEntry{}, false, nil
		}
		return access.LockEntry{}, false, errors.Wrap(err, "selecting lock entry")
	}
	return row.entry(), true, nil
}

func (repo lockRepository) QueryLocks(ctx context.Context, batchID string) ([]access.LockEntry, error) {
	var rows []lockRow
	if err := sqlSelect(ctx, repo.db, &rows,
		`SELECT `+lockColumns+` FROM lock_entries WHERE batch_id = ? ORDER BY locked_at ASC, student_id ASC`, batchID,
	); err != nil {
		return nil, errors.Wrap(err, "selecting lock entries")
	}
	entries := make([]access.LockEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.entry())
	}
	return entries, nil
}
