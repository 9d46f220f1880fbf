// Package sqlxrepos implements the domain repositories on sqlx, for postgres and sqlite3.
// Queries are written with `?` placeholders and rebound for the driver in use.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// executor is satisfied by both *sqlx.DB and *sqlx.Tx.
type executor = sqlx.ExtContext

func sqlGet(ctx context.Context, exec executor, dest interface{}, q string, args ...interface{}) error {
	return sqlx.GetContext(ctx, exec, dest, exec.Rebind(q), args...)
}

func sqlSelect(ctx context.Context, exec executor, dest interface{}, q string, args ...interface{}) error {
	return sqlx.SelectContext(ctx, exec, dest, exec.Rebind(q), args...)
}

// sqlExec runs q and returns the number of affected rows.
func sqlExec(ctx context.Context, exec executor, q string, args ...interface{}) (int64, error) {
	res, err := exec.ExecContext(ctx, exec.Rebind(q), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// trapNoRowsErr maps sql.ErrNoRows to the domain's not-found error.
func trapNoRowsErr(err error, notFound error) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// where accumulates AND-ed conditions.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

// timePtr returns the UTC time of t, or nil when t is NULL.
func timePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	tt := t.Time.UTC()
	return &tt
}
