// Package repomanager wires repository implementations together: it vends
// the PostgreSQL repositories, runs goose migrations and opens whichever
// storage backend the configuration selects.
package repomanager

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/fieldauth/internal/dbx"
	"github.com/dmitrijs2005/fieldauth/internal/server/migrations"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// and exposes a schema migration hook.
type PostgresRepositoryManager struct {
	timeout time.Duration
	batch   int
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db, m.timeout)
}

// Tokens returns a tokens.Store bound to the provided DBTX.
func (m *PostgresRepositoryManager) Tokens(db dbx.DBTX) tokens.Store {
	return tokens.NewPostgresRepository(db, m.timeout, m.batch)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
// timeout bounds every statement; batch is the token purge batch size.
func NewPostgresRepositoryManager(timeout time.Duration, batch int) RepositoryManager {
	return &PostgresRepositoryManager{timeout: timeout, batch: batch}
}
