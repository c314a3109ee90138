package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"olistpipe/internal/observability"
	"olistpipe/pkg/errors"
)

// Dialect renders the SQL that differs between warehouses
type Dialect interface {
	Name() string
	QuoteIdent(name string) string
	TypeName(t ColumnType) string
	// ReplaceStatements returns the DDL that leaves an empty table with cols
	ReplaceStatements(table string, cols []Column) []string
}

// DefaultBatchSize is the number of rows per INSERT statement
const DefaultBatchSize = 1000

// SQLSession implements Session on a database/sql handle
type SQLSession struct {
	db        *sql.DB
	dialect   Dialect
	batchSize int
	logger    *observability.Logger
}

// NewSQLSession wraps db. The session owns db and closes it.
func NewSQLSession(db *sql.DB, dialect Dialect, batchSize int, logger *observability.Logger) *SQLSession {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = observability.GetDefaultLogger()
	}
	return &SQLSession{db: db, dialect: dialect, batchSize: batchSize, logger: logger}
}

// DB returns the underlying handle
func (s *SQLSession) DB() *sql.DB {
	return s.db
}

// ReplaceTable drops and recreates name, then inserts rows in batches inside
// one transaction.
func (s *SQLSession) ReplaceTable(ctx context.Context, name string, cols []Column, rows [][]interface{}) error {
	if len(cols) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "Cannot write a table without columns").
			WithContext("table", name)
	}

	for _, stmt := range s.dialect.ReplaceStatements(name, cols) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.SQLError(fmt.Sprintf("Failed to replace table %s", name), stmt, err).
				WithContext("table", name)
		}
	}

	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to begin transaction")
	}

	txHandler := errors.NewTransactionHandler(tx.Commit, tx.Rollback)
	return txHandler.Execute(func() error {
		for start := 0; start < len(rows); start += s.batchSize {
			end := start + s.batchSize
			if end > len(rows) {
				end = len(rows)
			}

			query, args, err := s.insertStatement(name, cols, rows[start:end])
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return errors.SQLError(fmt.Sprintf("Failed to insert rows into %s", name), query, err).
					WithContext("table", name).
					WithContext("batch_start", start)
			}
			s.logger.DebugWithFields("Inserted batch", map[string]interface{}{
				"table": name,
				"rows":  end - start,
			})
		}
		return nil
	})
}

func (s *SQLSession) insertStatement(name string, cols []Column, rows [][]interface{}) (string, []interface{}, error) {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = s.dialect.QuoteIdent(c.Name)
	}

	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", s.dialect.QuoteIdent(name), strings.Join(names, ", "))

	args := make([]interface{}, 0, len(rows)*len(cols))
	for i, row := range rows {
		if len(row) != len(cols) {
			return "", nil, errors.New(errors.ErrCodeInvalidInput,
				fmt.Sprintf("Row has %d values, table %s has %d columns", len(row), name, len(cols)))
		}
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
		args = append(args, row...)
	}
	return b.String(), args, nil
}

// Query runs query and materialises every row. []byte values become strings.
func (s *SQLSession) Query(ctx context.Context, query string) (*Result, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.SQLError("Failed to execute query", query, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.SQLError("Failed to read result columns", query, err)
	}

	result := &Result{Columns: cols}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		valuePtrs := make([]interface{}, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, errors.SQLError("Failed to scan row", query, err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.SQLError("Failed to read rows", query, err)
	}
	return result, nil
}

// Close closes the underlying handle
func (s *SQLSession) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConnectionFailed, "Failed to close warehouse connection")
	}
	return nil
}

// CreateTableStatement renders a CREATE TABLE prefix ("CREATE TABLE" or
// "CREATE OR REPLACE TABLE") for cols.
func CreateTableStatement(d Dialect, verb, table string, cols []Column) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = d.QuoteIdent(c.Name) + " " + d.TypeName(c.Type)
	}
	return fmt.Sprintf("%s %s (%s)", verb, d.QuoteIdent(table), strings.Join(defs, ", "))
}
