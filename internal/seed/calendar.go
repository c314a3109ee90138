// Package seed builds the calendar dimension used as a dbt seed.
package seed

import (
	"strings"
	"time"

	"olistpipe/pkg/errors"
)

// DateLayout is the format of date_day values
const DateLayout = "2006-01-02"

var acceptedLayouts = []string{DateLayout, "2006/01/02", "20060102", time.RFC3339}

// CalendarRow is one day of the calendar dimension
type CalendarRow struct {
	DateDay        time.Time
	Year           int
	Month          int
	Day            int
	DayOfWeek      int // Monday=0 .. Sunday=6
	DayName        string
	Week           int // ISO-8601
	Quarter        int
	IsWeekend      bool
	IsMonthStart   bool
	IsMonthEnd     bool
	IsQuarterStart bool
	IsQuarterEnd   bool
}

// Columns is the header of the calendar file, in row order
var Columns = []string{
	"date_day", "year", "month", "day", "day_of_week", "day_name", "week",
	"quarter", "is_weekend", "is_month_start", "is_month_end", "is_quarter_start", "is_quarter_end",
}

// ParseDate parses a calendar date, dropping any time component
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range acceptedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOf(t), nil
		}
	}
	return time.Time{}, errors.New(errors.ErrCodeInvalidInput, "Invalid date '"+s+"'").
		WithSuggestions("Use the YYYY-MM-DD format, e.g. 2016-01-01")
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NewCalendarRow derives every calendar attribute of day
func NewCalendarRow(day time.Time) CalendarRow {
	day = dateOf(day)
	_, week := day.ISOWeek()
	month := int(day.Month())
	dow := (int(day.Weekday()) + 6) % 7
	monthEnd := day.AddDate(0, 0, 1).Month() != day.Month()

	return CalendarRow{
		DateDay:        day,
		Year:           day.Year(),
		Month:          month,
		Day:            day.Day(),
		DayOfWeek:      dow,
		DayName:        day.Weekday().String(),
		Week:           week,
		Quarter:        (month-1)/3 + 1,
		IsWeekend:      dow >= 5,
		IsMonthStart:   day.Day() == 1,
		IsMonthEnd:     monthEnd,
		IsQuarterStart: day.Day() == 1 && (month-1)%3 == 0,
		IsQuarterEnd:   monthEnd && month%3 == 0,
	}
}

// Generate returns one row per day in [start, end]. An end before start
// yields no rows.
func Generate(start, end time.Time) []CalendarRow {
	start, end = dateOf(start), dateOf(end)
	if end.Before(start) {
		return nil
	}

	rows := make([]CalendarRow, 0, int(end.Sub(start).Hours()/24)+1)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		rows = append(rows, NewCalendarRow(day))
	}
	return rows
}
