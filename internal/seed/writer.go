package seed

import (
	"bytes"
	"encoding/csv"
	"io"
	"strconv"

	"olistpipe/internal/common"
	"olistpipe/pkg/errors"
)

// Record renders the row as CSV fields matching Columns
func (r CalendarRow) Record() []string {
	return []string{
		r.DateDay.Format(DateLayout),
		strconv.Itoa(r.Year),
		strconv.Itoa(r.Month),
		strconv.Itoa(r.Day),
		strconv.Itoa(r.DayOfWeek),
		r.DayName,
		strconv.Itoa(r.Week),
		strconv.Itoa(r.Quarter),
		formatBool(r.IsWeekend),
		formatBool(r.IsMonthStart),
		formatBool(r.IsMonthEnd),
		formatBool(r.IsQuarterStart),
		formatBool(r.IsQuarterEnd),
	}
}

// formatBool writes True/False
func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// WriteCSV writes the header and every row to w
func WriteCSV(w io.Writer, rows []CalendarRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, row := range rows {
		if err := cw.Write(row.Record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes rows to path, creating parent directories as needed
func WriteFile(path string, rows []CalendarRow) error {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return errors.FileError(errors.ErrCodeFileWrite, "Failed to encode calendar rows", path, err)
	}
	if err := common.WriteFile(path, buf.Bytes(), common.FilePermissionNormal); err != nil {
		return errors.FileError(errors.ErrCodeFileWrite, "Failed to write calendar seed", path, err)
	}
	return nil
}
