package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/perfectkey/internal/dbx"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/perfectkey/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a *sql.DB or a *sql.Tx so
// services can compose them inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Dialect() dbx.Dialect
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
