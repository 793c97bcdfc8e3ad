// Package migrations embeds the goose schema migrations, one directory per
// SQL dialect, and applies them.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/dmitrijs2005/perfectkey/internal/dbx"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

//go:embed postgres/*.sql sqlite/*.sql
var Migrations embed.FS

const (
	PostgresDir = "postgres"
	SQLiteDir   = "sqlite"
)

// Up applies every pending migration for the dialect. It uses a goose
// Provider rather than the package-level goose state so several databases
// can be migrated from one process.
func Up(ctx context.Context, db *sql.DB, d dbx.Dialect) error {
	var (
		dir     string
		dialect database.Dialect
	)
	switch d {
	case dbx.DialectPostgres:
		dir, dialect = PostgresDir, database.DialectPostgres
	case dbx.DialectSQLite:
		dir, dialect = SQLiteDir, database.DialectSQLite3
	default:
		return fmt.Errorf("unsupported dialect %q", d)
	}

	fsys, err := fs.Sub(Migrations, dir)
	if err != nil {
		return err
	}
	p, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := p.Up(ctx); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}
