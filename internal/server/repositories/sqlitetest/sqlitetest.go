// Package sqlitetest opens migrated in-memory SQLite databases for tests.
package sqlitetest

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/dmitrijs2005/perfectkey/internal/dbx"
	"github.com/dmitrijs2005/perfectkey/internal/server/migrations"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// DSN returns a private shared-cache in-memory database name.
func DSN(name string) string {
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	return fmt.Sprintf("file:%s_%s?mode=memory&cache=shared&_time_format=sqlite&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		name, uuid.NewString()[:8])
}

// Open returns a migrated database that is closed when the test ends.
// A single connection serialises writers the way SQLite would anyway.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	db, err := sql.Open(string(dbx.DialectSQLite), DSN(t.Name()))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Up(context.Background(), db, dbx.DialectSQLite))
	return db
}
