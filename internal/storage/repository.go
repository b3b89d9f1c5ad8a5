package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"housingledger/internal/core"
	"housingledger/internal/log"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DefaultBusyTimeout bounds how long a unit of work waits for the database.
const DefaultBusyTimeout = 5 * time.Second

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

// NewSQLiteRepository opens dbPath, applies migrations and returns a
// repository whose writes are serialized through a single connection.
func NewSQLiteRepository(dbPath string, busyTimeout time.Duration) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if busyTimeout <= 0 {
		busyTimeout = DefaultBusyTimeout
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	// _txlock=immediate takes the write lock at BEGIN, so writers in other
	// processes wait out busy_timeout instead of failing on lock upgrade.
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate",
		dbPath, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One connection: every unit of work is serialized and a reader can
	// never see a half-committed write.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Queries runs statements outside any unit of work. Single statements are
// atomic on their own.
func (r *SQLiteRepository) Queries() *Queries {
	return r.queries
}

// WithinTx runs fn as one all-or-nothing unit. Any error, or a panic, rolls
// every write back.
func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return translateError(fmt.Errorf("begin transaction: %w", err), "tx")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.For(log.ComponentStorage).ErrorContext(ctx, "Rollback failed", log.FieldError, rbErr)
			}
		}
	}()

	if err = fn(r.queries.WithTx(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return translateError(fmt.Errorf("commit transaction: %w", err), "tx")
	}
	return nil
}

// ReadTx gives fn a consistent snapshot and always rolls back. It never
// takes the write lock.
func (r *SQLiteRepository) ReadTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return translateError(fmt.Errorf("begin read transaction: %w", err), "tx")
	}
	defer tx.Rollback()
	return fn(r.queries.WithTx(tx))
}

// translateError maps SQLite result codes onto the ledger error taxonomy.
func translateError(err error, key string) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return &core.ConflictError{Key: key, Err: err}
	case sqlite3.SQLITE_CONSTRAINT_TRIGGER, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return &core.ConsistencyError{Reason: se.Error()}
	case sqlite3.SQLITE_CONSTRAINT_CHECK:
		return &core.ValidationError{Reason: se.Error()}
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return &core.ConflictError{Key: key, Err: err}
	}
	return err
}
