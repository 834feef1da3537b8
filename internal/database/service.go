package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"backup-orchestrator/internal/errors"
	"backup-orchestrator/internal/logging"
)

// Registered database/sql driver names
const (
	DriverPostgres = "pgx"
	DriverMySQL    = "mysql"
)

// Service opens and manages SQL connections for backup backends
type Service struct {
	connectionTimeout time.Duration
	logger            *logging.Logger
	retryHandler      *errors.RetryHandler
}

// NewService creates a new database service with default settings
func NewService() *Service {
	return &Service{
		connectionTimeout: 30 * time.Second,
		logger:            logging.NewDefaultLogger(),
		retryHandler:      errors.NewDefaultRetryHandler(),
	}
}

// NewServiceWithLogger creates a new database service with a custom logger
func NewServiceWithLogger(logger *logging.Logger) *Service {
	return &Service{
		connectionTimeout: 30 * time.Second,
		logger:            logger,
		retryHandler:      errors.NewDefaultRetryHandler(),
	}
}

// Connect opens a connection pool for the given driver with retry logic.
// The pool is verified with a ping before it is returned.
func (s *Service) Connect(ctx context.Context, driver string, settings *ConnectionSettings) (*sql.DB, error) {
	startTime := time.Now()

	s.logger.WithFields(map[string]interface{}{
		"driver":   driver,
		"host":     settings.Host,
		"database": settings.Database,
		"port":     settings.Port,
	}).Debug("Attempting database connection")

	dsn, err := settings.DSN(driver)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrorTypeValidation, err.Error(), err)
	}

	var db *sql.DB
	err = s.retryHandler.Retry(ctx, func() error {
		var connectErr error

		db, connectErr = sql.Open(driver, dsn)
		if connectErr != nil {
			return errors.WrapError(connectErr, "failed to open database connection")
		}

		// Set connection pool settings
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test the connection
		if testErr := s.Ping(ctx, db); testErr != nil {
			db.Close()
			return testErr
		}

		return nil
	})

	duration := time.Since(startTime)
	success := err == nil

	s.logger.LogDatabaseConnection(settings.Host, settings.Database, success, duration, err)

	if err != nil {
		return nil, err
	}

	return db, nil
}

// Ping verifies that the database connection is working
func (s *Service) Ping(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	pingCtx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return errors.WrapError(err, "failed to ping database")
	}

	return nil
}

// Close gracefully closes the database connection
func (s *Service) Close(db *sql.DB) error {
	if db == nil {
		return nil
	}

	if err := db.Close(); err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to close database connection")
		return errors.WrapError(err, "failed to close database connection")
	}

	return nil
}

// GetVersion retrieves the server version string
func (s *Service) GetVersion(ctx context.Context, db *sql.DB) (string, error) {
	if db == nil {
		return "", errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	var version string
	query := "SELECT version()"

	queryCtx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	if err := db.QueryRowContext(queryCtx, query).Scan(&version); err != nil {
		return "", errors.WrapError(err, "failed to get database version")
	}

	s.logger.WithField("version", version).Debug("Retrieved database version")
	return version, nil
}

// ExecuteAdmin executes a single administrative statement outside any
// transaction. DROP DATABASE and CREATE DATABASE refuse to run inside one.
func (s *Service) ExecuteAdmin(ctx context.Context, db *sql.DB, statement string) error {
	if db == nil {
		return errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	startTime := time.Now()
	_, err := db.ExecContext(ctx, statement)
	duration := time.Since(startTime)

	s.logger.WithFields(map[string]interface{}{
		"statement": logging.SanitizeCommand(statement),
		"duration":  duration.String(),
	}).Debug("Executed administrative statement")

	if err != nil {
		return errors.WrapError(err, "failed to execute administrative statement")
	}

	return nil
}

// ExecuteSQL executes SQL statements atomically inside one transaction
func (s *Service) ExecuteSQL(ctx context.Context, db *sql.DB, statements []string) error {
	if db == nil {
		return errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	if len(statements) == 0 {
		return nil
	}

	s.logger.WithField("statement_count", len(statements)).Debug("Executing SQL statements")

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapError(err, "failed to begin transaction")
	}

	// Ensure transaction is rolled back on error
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				s.logger.WithField("error", rollbackErr.Error()).Error("Failed to rollback transaction")
			}
		}
	}()

	for i, stmt := range statements {
		if stmt == "" {
			continue
		}

		if _, execErr := tx.ExecContext(ctx, stmt); execErr != nil {
			err = errors.WrapError(execErr, fmt.Sprintf("failed to execute statement %d", i+1)).(*errors.AppError).
				WithContext("statement_index", i)
			return err
		}
	}

	// Commit the transaction
	if err = tx.Commit(); err != nil {
		return errors.WrapError(err, "failed to commit transaction")
	}

	return nil
}
