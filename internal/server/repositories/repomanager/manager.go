package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/fieldauth/internal/dbx"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/tokens"
	"github.com/dmitrijs2005/fieldauth/internal/server/repositories/users"
)

// RepositoryManager vends relational repositories bound to a DBTX, so the
// same constructors serve both the pool and a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Tokens(db dbx.DBTX) tokens.Store
}
