// Package churn trains the customer churn classifier and publishes its predictions.
package churn

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"olistpipe/internal/warehouse"
	"olistpipe/pkg/errors"
)

// FeatureTable is the dbt model the classifier is trained on
const FeatureTable = "fct_customer_features_ml"

const (
	colCustomerID   = "customer_unique_id"
	colFirstPurch   = "first_purchase_date"
	colLastPurch    = "last_purchase_date"
	colLabel        = "is_churned"
	colTotalOrders  = "total_orders"
	colTotalAccts   = "total_accounts"
	colTotalRevenue = "total_revenue"
	colAvgRevenue   = "avg_revenue_per_order"
	colDaysSince    = "days_since_last_order"
)

// nonFeatureColumns never reach the classifier
var nonFeatureColumns = map[string]bool{
	colCustomerID: true,
	colFirstPurch: true,
	colLastPurch:  true,
	colLabel:      true,
}

// Customer carries the descriptive fields copied into the prediction table
type Customer struct {
	UniqueID           string
	FirstPurchaseDate  sql.NullTime
	LastPurchaseDate   sql.NullTime
	TotalOrders        sql.NullInt64
	TotalAccounts      sql.NullInt64
	TotalRevenue       sql.NullFloat64
	AvgRevenuePerOrder sql.NullFloat64
	DaysSinceLastOrder sql.NullInt64
}

// Dataset is the feature table split into features, label and descriptive fields
type Dataset struct {
	Features  []string
	X         [][]float64
	Y         []int
	Customers []Customer
	// Imputed counts feature cells that were NULL and replaced with 0
	Imputed int
}

// Len is the number of rows
func (d *Dataset) Len() int {
	return len(d.Y)
}

// LoadDataset reads the whole feature table through session. An empty table
// name reads FeatureTable.
func LoadDataset(ctx context.Context, session warehouse.Session, table string) (*Dataset, error) {
	if table == "" {
		table = FeatureTable
	}
	result, err := session.Query(ctx, "SELECT * FROM "+table)
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "does not exist") || strings.Contains(msg, "no such table") {
			return nil, errors.Wrap(err, errors.ErrCodeNoResults, "Feature table "+table+" is missing").
				WithSuggestions("Run the dbt_full_pipeline workflow to build the mart models first")
		}
		return nil, err
	}
	return NewDataset(result)
}

// NewDataset converts a query result. Column names are matched case-insensitively.
func NewDataset(result *warehouse.Result) (*Dataset, error) {
	cols := make([]string, len(result.Columns))
	index := make(map[string]int, len(cols))
	for i, c := range result.Columns {
		cols[i] = strings.ToLower(c)
		index[cols[i]] = i
	}

	for _, required := range []string{
		colCustomerID, colFirstPurch, colLastPurch, colLabel,
		colTotalOrders, colTotalAccts, colTotalRevenue, colAvgRevenue, colDaysSince,
	} {
		if _, ok := index[required]; !ok {
			return nil, errors.New(errors.ErrCodeValidationFailed, "Feature table is missing column "+required).
				WithContext("columns", cols)
		}
	}

	ds := &Dataset{}
	var featureIdx []int
	for i, c := range cols {
		if !nonFeatureColumns[c] {
			ds.Features = append(ds.Features, c)
			featureIdx = append(featureIdx, i)
		}
	}
	if len(ds.Features) == 0 {
		return nil, errors.New(errors.ErrCodeValidationFailed, "Feature table has no feature columns")
	}

	for r, row := range result.Rows {
		x := make([]float64, len(featureIdx))
		for j, i := range featureIdx {
			v, ok, err := toFloat(row[i])
			if err != nil {
				return nil, rowError(r, cols[i], err)
			}
			if !ok {
				ds.Imputed++
			}
			x[j] = v
		}

		label, err := toLabel(row[index[colLabel]])
		if err != nil {
			return nil, rowError(r, colLabel, err)
		}

		customer, err := newCustomer(row, index)
		if err != nil {
			return nil, rowError(r, "", err)
		}

		ds.X = append(ds.X, x)
		ds.Y = append(ds.Y, label)
		ds.Customers = append(ds.Customers, customer)
	}
	return ds, nil
}

func rowError(row int, column string, err error) error {
	appErr := errors.Wrap(err, errors.ErrCodeValidationFailed, fmt.Sprintf("Invalid value in row %d", row+1))
	if column != "" {
		appErr.WithContext("column", column)
	}
	return appErr
}

func newCustomer(row []interface{}, index map[string]int) (Customer, error) {
	var c Customer
	var err error

	if v := row[index[colCustomerID]]; v != nil {
		c.UniqueID = fmt.Sprint(v)
	}
	if c.FirstPurchaseDate, err = toDate(row[index[colFirstPurch]]); err != nil {
		return c, err
	}
	if c.LastPurchaseDate, err = toDate(row[index[colLastPurch]]); err != nil {
		return c, err
	}
	if c.TotalOrders, err = toInt(row[index[colTotalOrders]]); err != nil {
		return c, err
	}
	if c.TotalAccounts, err = toInt(row[index[colTotalAccts]]); err != nil {
		return c, err
	}
	if c.TotalRevenue, err = toNullFloat(row[index[colTotalRevenue]]); err != nil {
		return c, err
	}
	if c.AvgRevenuePerOrder, err = toNullFloat(row[index[colAvgRevenue]]); err != nil {
		return c, err
	}
	if c.DaysSinceLastOrder, err = toInt(row[index[colDaysSince]]); err != nil {
		return c, err
	}
	return c, nil
}

// toFloat converts a warehouse value to float64. NULL yields (0, false).
func toFloat(v interface{}) (float64, bool, error) {
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return t, true, nil
	case float32:
		return float64(t), true, nil
	case int64:
		return float64(t), true, nil
	case int:
		return float64(t), true, nil
	case int32:
		return float64(t), true, nil
	case bool:
		if t {
			return 1, true, nil
		}
		return 0, true, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			if b, berr := strconv.ParseBool(s); berr == nil {
				return toFloat(b)
			}
			return 0, false, fmt.Errorf("non-numeric value %q", s)
		}
		return f, true, nil
	case time.Time:
		return 0, false, fmt.Errorf("unexpected date value %s", t.Format(time.RFC3339))
	}
	return 0, false, fmt.Errorf("unsupported value type %T", v)
}

func toNullFloat(v interface{}) (sql.NullFloat64, error) {
	f, ok, err := toFloat(v)
	return sql.NullFloat64{Float64: f, Valid: ok}, err
}

func toInt(v interface{}) (sql.NullInt64, error) {
	f, ok, err := toFloat(v)
	if err != nil || !ok {
		return sql.NullInt64{}, err
	}
	return sql.NullInt64{Int64: int64(math.Round(f)), Valid: true}, nil
}

func toLabel(v interface{}) (int, error) {
	f, ok, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("label is NULL")
	}
	switch f {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	}
	return 0, fmt.Errorf("label %v is not binary", f)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

// toDate truncates timestamps to their calendar date
func toDate(v interface{}) (sql.NullTime, error) {
	switch t := v.(type) {
	case nil:
		return sql.NullTime{}, nil
	case time.Time:
		return sql.NullTime{Time: truncateDate(t), Valid: true}, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return sql.NullTime{}, nil
		}
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return sql.NullTime{Time: truncateDate(parsed), Valid: true}, nil
			}
		}
		return sql.NullTime{}, fmt.Errorf("invalid date %q", s)
	}
	return sql.NullTime{}, fmt.Errorf("unsupported date type %T", v)
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
