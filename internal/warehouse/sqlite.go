package warehouse

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"olistpipe/internal/observability"
	"olistpipe/pkg/errors"
)

func init() {
	Register("sqlite", openSQLite)
}

// SQLiteDialect writes tables into a local SQLite file, used for development
// runs without a Snowflake account.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (SQLiteDialect) TypeName(t ColumnType) string {
	switch t {
	case TypeNumber:
		return "INTEGER"
	case TypeFloat:
		return "REAL"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (d SQLiteDialect) ReplaceStatements(table string, cols []Column) []string {
	return []string{
		"DROP TABLE IF EXISTS " + d.QuoteIdent(table),
		CreateTableStatement(d, "CREATE TABLE", table, cols),
	}
}

// OpenSQLite opens (creating if needed) the SQLite database at path
func OpenSQLite(ctx context.Context, path string, batchSize int) (*SQLSession, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.ConnectionError("Failed to open SQLite warehouse", err).WithContext("path", path)
	}
	// a single connection keeps :memory: databases stable across statements
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.ConnectionError("Failed to open SQLite warehouse", err).WithContext("path", path)
	}
	return NewSQLSession(db, SQLiteDialect{}, batchSize, observability.GetDefaultLogger()), nil
}

func openSQLite(ctx context.Context, cfg Config) (Session, error) {
	return OpenSQLite(ctx, cfg.Settings.SQLitePath, cfg.Settings.BatchSize)
}
