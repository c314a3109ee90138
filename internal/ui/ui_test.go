package ui

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"olistpipe/pkg/errors"
)

func withoutColor(t *testing.T) {
	t.Helper()
	previous := supportsColor
	SetColor(false)
	t.Cleanup(func() { SetColor(previous) })
}

func TestColorFunc(t *testing.T) {
	previous := supportsColor
	defer SetColor(previous)

	SetColor(true)
	assert.NotEqual(t, "text", ColorSuccess("text"))
	assert.Contains(t, ColorError("text"), "text")

	SetColor(false)
	for _, fn := range []func(string) string{ColorSuccess, ColorError, ColorWarning, ColorInfo, ColorProgress, ColorBold, ColorDim} {
		assert.Equal(t, "text", fn("text"))
	}
}

func TestMessages(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	Header(&buf, "Olist pipeline")
	Success(&buf, "ingested %d tables", 9)
	Warning(&buf, "no schedule for %s", "x")
	Info(&buf, "plain")

	out := buf.String()
	assert.Contains(t, out, "|"+strings.Repeat(" ", 17)+"Olist pipeline")
	assert.Contains(t, out, "SUCCESS: ingested 9 tables")
	assert.Contains(t, out, "WARNING: no schedule for x")
	assert.Contains(t, out, "INFO: plain")
}

func TestErrorSuggestions(t *testing.T) {
	withoutColor(t)

	t.Run("heuristic tip", func(t *testing.T) {
		var buf bytes.Buffer
		Error(&buf, fmt.Errorf("exec: \"dbt\": executable file not found in $PATH"))
		assert.Contains(t, buf.String(), "TIP: Install dbt-snowflake")
	})

	t.Run("own suggestions win", func(t *testing.T) {
		var buf bytes.Buffer
		Error(&buf, errors.New(errors.ErrCodeNoResults, "table does not exist").WithSuggestions("Run dbt first"))
		assert.Contains(t, buf.String(), "1. Run dbt first")
		assert.NotContains(t, buf.String(), "TIP:")
	})

	t.Run("nil", func(t *testing.T) {
		var buf bytes.Buffer
		Error(&buf, nil)
		assert.Empty(t, buf.String())
	})
}

func TestRenderTable(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	RenderTable(&buf, []string{"Table", "Rows"}, [][]string{
		{"olist_orders_dataset", "99441"},
		{"product_category_name_translation", "71"},
	})

	out := buf.String()
	assert.Contains(t, out, "Table")
	assert.Contains(t, out, "olist_orders_dataset")
	assert.Contains(t, out, "99441")
	assert.Equal(t, "failed", Status("failed"))
}

func TestKeyValues(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer
	KeyValues(&buf, [][2]string{{"Model", "/models/m.json"}, {"AUC", "0.91"}})
	assert.Contains(t, buf.String(), "/models/m.json")
	assert.Contains(t, buf.String(), "AUC")
}

func TestProgressBarPlain(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	bar := NewProgressBar(&buf, 2)
	bar.Update(1, "olist_customers_dataset", true)
	bar.Update(2, "olist_orders_dataset", false)
	bar.Finish("Ingestion")

	ok, failed := bar.Counts()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)

	out := buf.String()
	assert.Contains(t, out, "50% [1/2] olist_customers_dataset")
	assert.Contains(t, out, "100% [2/2] olist_orders_dataset")
	assert.Contains(t, out, "Ingestion completed")
	assert.Contains(t, out, "1 failed")
	assert.NotContains(t, out, "\r")
}

func TestSpinnerPlain(t *testing.T) {
	withoutColor(t)
	var buf bytes.Buffer

	s := NewSpinner(&buf, "Training")
	s.Start()
	s.Stop(true, "Model trained")
	s.Stop(false, "ignored")

	assert.Equal(t, "✓ Model trained\n", buf.String())

	unstarted := NewSpinner(&buf, "never")
	unstarted.Stop(false, "aborted")
	assert.Contains(t, buf.String(), "✗ aborted")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2m5s", FormatDuration(125*time.Second))
	assert.Equal(t, "1h1m", FormatDuration(61*time.Minute))
}
