package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"

	"github.com/trezcool/feedesk/core"
)

const (
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite3"

	MigrationsDir = "migrations"
)

//go:embed migrations/*.sql
var Migrations embed.FS

func dsn(dbName string, admin bool, conf *core.Config) string {
	if conf.Database.Engine == EngineSQLite {
		return SQLiteDSN(conf.Database.Path)
	}

	user := url.UserPassword(conf.Database.User, conf.Database.Password)
	if admin && conf.Database.AdminUser != "" {
		user = url.UserPassword(conf.Database.AdminUser, conf.Database.AdminPassword)
	}

	sslMode := "require"
	if conf.Database.DisableTLS {
		sslMode = "disable"
	}
	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   conf.Database.Engine,
		User:     user,
		Host:     conf.DatabaseAddress(),
		Path:     dbName,
		RawQuery: q.Encode(),
	}
	return u.String()
}

// SQLiteDSN enables foreign keys and waits on locks instead of failing.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
}

func open(dbName string, admin bool, conf *core.Config) (*sqlx.DB, error) {
	db, err := sqlx.Open(conf.Database.Engine, dsn(dbName, admin, conf))
	if err != nil {
		return nil, err
	}
	if conf.Database.Engine == EngineSQLite {
		// sqlite allows a single writer
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func Open(conf *core.Config) (*sqlx.DB, error) {
	db, err := open(conf.Database.Name, false, conf)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(db *sql.DB) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = db.Ping()
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

func exists(db *sqlx.DB, query, name string) (bool, error) {
	var found bool
	if err := db.Get(&found, query, name); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return found, nil
}

// CreateIfNotExist creates the application role and database on postgres. It is a no-op on sqlite.
func CreateIfNotExist(conf *core.Config) error {
	if conf.Database.Engine != EnginePostgres {
		return nil
	}

	// connect as admin
	db, err := open("postgres", true, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = db.Close() }()

	if err = ping(db.DB); err != nil {
		return errors.Wrap(err, "pinging database")
	}

	if conf.Database.User != "" {
		found, err := exists(db, "SELECT true FROM pg_roles WHERE rolname = $1", conf.Database.User)
		if err != nil {
			return errors.Wrap(err, "checking app user")
		}
		if !found {
			q := fmt.Sprintf("CREATE USER %s CREATEDB ENCRYPTED PASSWORD '%s'", conf.Database.User, conf.Database.Password)
			if _, err = db.Exec(q); err != nil {
				return errors.Wrap(err, "creating app user")
			}
		}
	}

	// create DB as app user
	appDB, err := open("postgres", false, conf)
	if err != nil {
		return errors.Wrap(err, "opening database")
	}
	defer func() { _ = appDB.Close() }()

	found, err := exists(appDB, "SELECT true FROM pg_database WHERE datname = $1", conf.Database.Name)
	if err != nil {
		return errors.Wrap(err, "checking DB")
	}
	if !found {
		if _, err = appDB.Exec(fmt.Sprintf("CREATE DATABASE %s", conf.Database.Name)); err != nil {
			return errors.Wrap(err, "creating database")
		}
	}
	return nil
}

// SetupGoose points goose at the embedded migrations for the db's engine.
func SetupGoose(db *sqlx.DB) error {
	goose.SetBaseFS(Migrations)
	return errors.Wrap(goose.SetDialect(db.DriverName()), "setting goose dialect")
}

func Migrate(db *sqlx.DB) error {
	if err := SetupGoose(db); err != nil {
		return err
	}
	if err := goose.Up(db.DB, MigrationsDir); err != nil {
		return errors.Wrap(err, "migrating database")
	}
	return nil
}

// WithTx runs fn inside a transaction, committing when fn succeeds.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}
