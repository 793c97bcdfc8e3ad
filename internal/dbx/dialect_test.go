package dbx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialect_Rebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"postgres numbers placeholders", DialectPostgres, "SELECT * FROM t WHERE a=? AND b=?", "SELECT * FROM t WHERE a=$1 AND b=$2"},
		{"postgres keeps quoted marks", DialectPostgres, "SELECT '?' FROM t WHERE a=?", "SELECT '?' FROM t WHERE a=$1"},
		{"sqlite untouched", DialectSQLite, "SELECT * FROM t WHERE a=?", "SELECT * FROM t WHERE a=?"},
		{"no placeholders", DialectPostgres, "SELECT 1", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.dialect.Rebind(tt.in))
		})
	}
}

func TestParseDialect(t *testing.T) {
	d, ok := ParseDialect("postgres")
	assert.True(t, ok)
	assert.Equal(t, DialectPostgres, d)

	d, ok = ParseDialect("SQLite3")
	assert.True(t, ok)
	assert.Equal(t, DialectSQLite, d)

	_, ok = ParseDialect("mysql")
	assert.False(t, ok)
}
