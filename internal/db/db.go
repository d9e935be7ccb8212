package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/24ep/studio-sub000/internal/config"
	apperrors "github.com/24ep/studio-sub000/pkg/errors"

	"github.com/go-sql-driver/mysql"
)

type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite3"
)

// ForUpdate returns the row-lock suffix for SELECTs issued inside a transaction.
// SQLite serializes writers on its own and has no such clause.
func (d Dialect) ForUpdate() string {
	if d == DialectMySQL {
		return " FOR UPDATE"
	}
	return ""
}

// DB couples a connection pool with the SQL dialect spoken by it.
type DB struct {
	*sql.DB
	Dialect Dialect
}

func NewConnection(cfg *config.Config) (*DB, error) {
	dialect := Dialect(cfg.Database.Driver)
	dsn := cfg.DatabaseDSN()
	if dialect == DialectMySQL {
		// RowsAffected must count matched rows, not changed ones, or a no-op
		// update would read as a missing row.
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid mysql dsn: %w", err)
		}
		mc.ClientFoundRows = true
		mc.ParseTime = true
		dsn = mc.FormatDSN()
	}

	db, err := Open(dialect, dsn)
	if err != nil {
		return nil, err
	}

	if cfg.Database.MaxConnections > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxConnections)
	}
	if cfg.Database.MaxIdleConnections > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConnections)
	}
	db.SetConnMaxLifetime(cfg.Database.ConnectionLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Open opens a pool without pinging it. The sqlite3 driver must be linked in
// by the caller.
func Open(dialect Dialect, dsn string) (*DB, error) {
	conn, err := sql.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == DialectSQLite {
		if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	return &DB{DB: conn, Dialect: dialect}, nil
}

// WithTx runs fn inside a transaction. Any error rolls the whole unit back and
// is reported as a PersistenceError unless fn already classified it.
func (d *DB) WithTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewPersistenceError(op, err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		if classified(err) {
			return err
		}
		return apperrors.NewPersistenceError(op, err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewPersistenceError(op, err)
	}
	return nil
}

func classified(err error) bool {
	return apperrors.IsValidation(err) || apperrors.IsNotFound(err) ||
		apperrors.IsConflict(err) || apperrors.IsPersistence(err) || apperrors.IsDependency(err)
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
