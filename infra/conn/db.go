package conn

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mstgnz/dukapi/infra/logger"
)

type DB struct {
	*sql.DB
}

// ConnectDatabase opens the Postgres pool, retrying while the server comes up
func (db *DB) ConnectDatabase(dsn string) error {
	var err error
	var database *sql.DB

	for attempts := 1; attempts <= 5; attempts++ {
		database, err = sql.Open("postgres", dsn)
		if err != nil {
			logger.Warn(fmt.Sprintf("Attempt %d: failed to open DB connection", attempts), logger.LogContext{
				Fields: map[string]any{"error": err.Error()},
			})
			time.Sleep(2 * time.Second)
			continue
		}

		database.SetMaxOpenConns(25)
		database.SetMaxIdleConns(5)
		database.SetConnMaxLifetime(5 * time.Minute)
		database.SetConnMaxIdleTime(2 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = database.PingContext(ctx)
		cancel()

		if err == nil {
			logger.Info("DB connected successfully")
			db.DB = database
			return nil
		}

		logger.Warn(fmt.Sprintf("Attempt %d: failed to ping DB", attempts), logger.LogContext{
			Fields: map[string]any{"error": err.Error()},
		})
		database.Close()
		time.Sleep(2 * time.Second)
	}

	return fmt.Errorf("failed to connect to DB after 5 attempts: %w", err)
}

// CloseDatabase closes the pool
func (db *DB) CloseDatabase() {
	if db.DB == nil {
		return
	}
	if err := db.DB.Close(); err != nil {
		logger.Error("Failed to close database connection", err)
	} else {
		logger.Info("DB connection closed")
	}
}

// WithTx runs fn inside a transaction, committing on nil and rolling back otherwise
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.Error("Failed to roll back transaction", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsUniqueViolation reports a Postgres unique_violation (23505)
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// IsForeignKeyViolation reports a Postgres foreign_key_violation (23503)
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return false
}
