// Package sqlite provides the SQLite persistence implementation, used for
// single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/salesflow/pkg/persistence/sqlbase"
	"github.com/mattn/go-sqlite3"
)

// Persistence implements the persistence layer for SQLite.
type Persistence struct {
	*sqlbase.Repository
}

type dialect struct{}

func (dialect) Name() string {
	return "sqlite3"
}

func (dialect) IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error

	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

// DSN turns a sqlite:// URL or a plain path into a go-sqlite3 DSN with foreign
// keys enabled, which the cascade from leads to history relies on.
func DSN(databaseURL string) string {
	dsn := strings.TrimPrefix(strings.TrimPrefix(databaseURL, "sqlite://"), "sqlite3://")
	if dsn == "" || dsn == ":memory:" {
		dsn = "file::memory:"
	}

	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	return dsn + separator + "_foreign_keys=on&_busy_timeout=5000"
}

// NewPersistence opens the database and runs migrations. SQLite allows a single
// writer, so the pool is limited to one connection.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("sqlite3", DSN(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	database.SetMaxOpenConns(1)

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		Repository: sqlbase.NewRepository(database, logger, dialect{}),
	}, nil
}
