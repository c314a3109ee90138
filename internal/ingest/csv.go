package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"olistpipe/internal/warehouse"
	"olistpipe/pkg/errors"
)

// Table is a parsed CSV file with typed columns
type Table struct {
	Columns []warehouse.Column
	Rows    [][]interface{}
}

var dateLayouts = []string{"2006-01-02"}

// Only zone-less layouts: values carrying an offset stay VARCHAR so the
// zone is not lost by the TIMESTAMP_NTZ normalisation.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
}

// timestamps are normalised to this layout before loading
const timestampLayout = "2006-01-02 15:04:05"

// ReadCSV reads a header-first CSV file and infers a type for every column
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the registry or the operator
	if err != nil {
		code := errors.ErrCodeFileRead
		if os.IsNotExist(err) {
			code = errors.ErrCodeFileNotFound
		}
		return nil, errors.FileError(code, "Failed to open CSV file", path, err)
	}
	defer f.Close()

	table, err := Parse(f)
	if err != nil {
		return nil, errors.FileError(errors.ErrCodeFileMalformed, "Failed to parse CSV file", path, err)
	}
	return table, nil
}

// Parse reads CSV from r. The first record is the header.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	headers, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty file: missing header row")
	}
	if err != nil {
		return nil, err
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) != len(headers) {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", line, len(headers), len(rec))
		}
		records = append(records, rec)
	}

	types := InferSchema(records, len(headers))
	cols := make([]warehouse.Column, len(headers))
	for i, h := range headers {
		cols[i] = warehouse.Column{Name: columnName(h, i), Type: types[i]}
	}

	rows := make([][]interface{}, len(records))
	for r, rec := range records {
		row := make([]interface{}, len(rec))
		for c, v := range rec {
			row[c] = convert(v, types[c])
		}
		rows[r] = row
	}

	return &Table{Columns: cols, Rows: rows}, nil
}

func columnName(h string, i int) string {
	h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	if h == "" {
		return "_c" + strconv.Itoa(i)
	}
	return h
}

// InferSchema picks the most specific type that fits every non-empty value
// of each column. Columns with no values are VARCHAR, and so are numeric
// looking columns with leading zeros (zip code prefixes).
func InferSchema(records [][]string, width int) []warehouse.ColumnType {
	out := make([]warehouse.ColumnType, width)
	for col := 0; col < width; col++ {
		var seen bool
		allInt, allFloat, allBool, allDate, allTS := true, true, true, true, true

		for _, rec := range records {
			if col >= len(rec) {
				continue
			}
			v := strings.TrimSpace(rec[col])
			if v == "" {
				continue
			}
			seen = true

			if hasLeadingZero(v) {
				allInt, allFloat = false, false
			}
			if allInt {
				if _, err := strconv.ParseInt(v, 10, 64); err != nil {
					allInt = false
				}
			}
			if allFloat {
				if _, err := strconv.ParseFloat(v, 64); err != nil {
					allFloat = false
				}
			}
			if allBool {
				if _, err := parseBool(v); err != nil {
					allBool = false
				}
			}
			if allDate {
				if _, ok := parseTime(v, dateLayouts); !ok {
					allDate = false
				}
			}
			if allTS {
				if _, ok := parseTime(v, timestampLayouts); !ok {
					allTS = false
				}
			}
		}

		switch {
		case !seen:
			out[col] = warehouse.TypeString
		case allInt:
			out[col] = warehouse.TypeNumber
		case allFloat:
			out[col] = warehouse.TypeFloat
		case allBool:
			out[col] = warehouse.TypeBoolean
		case allDate:
			out[col] = warehouse.TypeDate
		case allTS:
			out[col] = warehouse.TypeTimestamp
		default:
			out[col] = warehouse.TypeString
		}
	}
	return out
}

// hasLeadingZero reports whether a numeric looking value would lose a
// leading zero when stored as a number, e.g. "01037" but not "0" or "0.5".
func hasLeadingZero(v string) bool {
	v = strings.TrimLeft(v, "+-")
	return len(v) > 1 && v[0] == '0' && v[1] != '.'
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

func parseTime(s string, layouts []string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// convert turns a raw cell into the Go value bound for its column type.
// Empty cells become NULL.
func convert(raw string, t warehouse.ColumnType) interface{} {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}

	switch t {
	case warehouse.TypeNumber:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case warehouse.TypeFloat:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case warehouse.TypeBoolean:
		b, _ := parseBool(v)
		return b
	case warehouse.TypeDate:
		return v
	case warehouse.TypeTimestamp:
		ts, _ := parseTime(v, timestampLayouts)
		return ts.Format(timestampLayout)
	default:
		return raw
	}
}
