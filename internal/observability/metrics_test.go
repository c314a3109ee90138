package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryTextFormat(t *testing.T) {
	r := NewMetricsRegistry("test")
	r.Counter("rows_total", "Rows loaded", Labels{"table": "ORDERS"}).Add(3)
	r.Counter("rows_total", "Rows loaded", Labels{"table": "ORDERS"}).Inc()
	r.Counter("rows_total", "Rows loaded", Labels{"table": "SELLERS"}).Add(-5)
	r.Gauge("running", "Runs in progress", nil).Inc()
	r.Histogram("duration_seconds", "Durations", []float64{1, 10}, Labels{"step": "dbt_run"}).Observe(4)

	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	assert.Equal(t, `# HELP test_duration_seconds Durations
# TYPE test_duration_seconds histogram
test_duration_seconds_bucket{le="1",step="dbt_run"} 0
test_duration_seconds_bucket{le="10",step="dbt_run"} 1
test_duration_seconds_bucket{le="+Inf",step="dbt_run"} 1
test_duration_seconds_sum{step="dbt_run"} 4
test_duration_seconds_count{step="dbt_run"} 1
# HELP test_rows_total Rows loaded
# TYPE test_rows_total counter
test_rows_total{table="ORDERS"} 4
test_rows_total{table="SELLERS"} 0
# HELP test_running Runs in progress
# TYPE test_running gauge
test_running 1
`, buf.String())
}

func TestRegistryTypeConflict(t *testing.T) {
	r := NewMetricsRegistry("")
	r.Counter("x", "", nil)
	assert.Panics(t, func() { r.Gauge("x", "", nil) })
}

func TestMetricsHandler(t *testing.T) {
	r := NewMetricsRegistry("olistpipe")
	r.Counter("workflow_runs_total", "Runs", Labels{"workflow": "dbt_full_pipeline", "status": "succeeded"}).Inc()

	rec := httptest.NewRecorder()
	r.MetricsHandler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `olistpipe_workflow_runs_total{status="succeeded",workflow="dbt_full_pipeline"} 1`)
}

func TestHealthManager(t *testing.T) {
	up := CheckFunc{CheckName: "warehouse", Fn: func(ctx context.Context) HealthResult {
		return HealthResult{Status: HealthStatusUp}
	}}
	degraded := CheckFunc{CheckName: "scheduler", Fn: func(ctx context.Context) HealthResult {
		return HealthResult{Status: HealthStatusDegraded, Message: "last run failed: ml_churn_training"}
	}}
	down := CheckFunc{CheckName: "scheduler", Fn: func(ctx context.Context) HealthResult {
		return HealthResult{Status: HealthStatusDown}
	}}

	hm := NewHealthManager(0, NewNopLogger())
	hm.RegisterCheck(up)
	hm.RegisterCheck(degraded)

	rec := httptest.NewRecorder()
	hm.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "DEGRADED", body["status"])
	components := body["components"].(map[string]interface{})
	assert.Equal(t, "UP", components["warehouse"].(map[string]interface{})["status"])

	hm.RegisterCheck(down)
	rec = httptest.NewRecorder()
	hm.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
