package ingest

import (
	"context"
	"strings"
	"time"

	"olistpipe/internal/config"
	"olistpipe/internal/observability"
	"olistpipe/internal/warehouse"
	"olistpipe/pkg/errors"
)

// RequiredFields must be set before raw data is loaded into Snowflake
var RequiredFields = append(append([]config.Field(nil), config.WarehouseFields...), config.FieldRole)

// CheckCredentials reports every missing connection setting at once
func CheckCredentials(creds config.Credentials) error {
	if missing := creds.Missing(RequiredFields...); len(missing) > 0 {
		return errors.MissingConfigError("Snowflake", missing)
	}
	return nil
}

// Report summarises one ingested table
type Report struct {
	Table    string
	Target   string
	Path     string
	Columns  []warehouse.Column
	Rows     int
	Duration time.Duration
}

// Task loads CSV files into warehouse tables, one table per Run
type Task struct {
	open   warehouse.Opener
	logger *observability.Logger

	// Progress, when set, is called by RunAll after each table
	Progress func(table string, err error)
}

// NewTask creates an ingestion task that opens sessions with open
func NewTask(open warehouse.Opener, logger *observability.Logger) *Task {
	if logger == nil {
		logger = observability.GetDefaultLogger()
	}
	return &Task{open: open, logger: logger}
}

// Run reads path and replaces the upper-cased table with its contents. The
// warehouse session is closed on every path.
func (t *Task) Run(ctx context.Context, table, path string) (report *Report, err error) {
	table = strings.TrimSpace(table)
	if table == "" {
		return nil, errors.ValidationError("table", table, "table name cannot be empty")
	}

	start := time.Now()
	target := strings.ToUpper(table)
	logger := t.logger.WithFields(map[string]interface{}{
		"table": table,
		"path":  path,
	})
	logger.Info("Starting ingestion")

	data, err := ReadCSV(path)
	if err != nil {
		logger.ErrorWithFields("Failed to read CSV", map[string]interface{}{"error": err})
		return nil, err
	}
	for _, c := range data.Columns {
		logger.DebugWithFields("Inferred column", map[string]interface{}{"column": c.Name, "type": string(c.Type)})
	}

	session, err := t.open(ctx)
	if err != nil {
		logger.ErrorWithFields("Failed to open warehouse session", map[string]interface{}{"error": err})
		return nil, err
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.WarnWithFields("Failed to close warehouse session", map[string]interface{}{"error": cerr})
			if err == nil {
				err = cerr
				report = nil
			}
		}
	}()

	if err := session.ReplaceTable(ctx, target, data.Columns, data.Rows); err != nil {
		logger.ErrorWithFields("Failed to write table", map[string]interface{}{"target": target, "error": err})
		return nil, errors.Wrap(err, errors.ErrCodeWarehouseWrite, "Failed to write table "+target).
			WithContext("table", target)
	}

	report = &Report{
		Table:    table,
		Target:   target,
		Path:     path,
		Columns:  data.Columns,
		Rows:     len(data.Rows),
		Duration: time.Since(start),
	}
	observability.RecordIngest(target, report.Rows)
	logger.InfoWithFields("Ingested table", map[string]interface{}{
		"target":   target,
		"rows":     report.Rows,
		"duration": report.Duration.String(),
	})
	return report, nil
}

// RunAll ingests every registered table in order and stops at the first failure.
func (t *Task) RunAll(ctx context.Context, registry *Registry) ([]*Report, error) {
	var reports []*Report
	for _, name := range registry.Names() {
		if err := ctx.Err(); err != nil {
			return reports, err
		}

		path, err := registry.Path(name)
		if err != nil {
			return reports, err
		}
		report, err := t.Run(ctx, name, path)
		if t.Progress != nil {
			t.Progress(name, err)
		}
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
