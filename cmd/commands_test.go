package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/subosito/gotenv"
	"github.com/zalando/go-keyring"

	"olistpipe/internal/churn"
	"olistpipe/internal/config"
	"olistpipe/internal/ingest"
	"olistpipe/internal/seed"
	"olistpipe/internal/testutil"
	"olistpipe/internal/warehouse"
	"olistpipe/pkg/errors"
)

func TestSeedDates(t *testing.T) {
	output := filepath.Join(t.TempDir(), "seeds", "dim_dates.csv")
	out, _, err := executeCommand(t, "seed", "dates", "2016-02-27", "2016-03-01", output)
	require.NoError(t, err)
	assert.Contains(t, out, "(4 days)")

	f, err := os.Open(output)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 5)
	assert.Equal(t, seed.Columns, records[0])
	assert.Equal(t, "2016-02-27", records[1][0])
	assert.Equal(t, "2016-02-29", records[3][0])
	assert.Equal(t, "2016-03-01", records[4][0])
}

func TestSeedDatesReversedRange(t *testing.T) {
	output := filepath.Join(t.TempDir(), "dim_dates.csv")
	out, errOut, err := executeCommand(t, "seed", "dates", "2016-03-01", "2016-02-01", output)
	require.NoError(t, err)
	assert.Contains(t, out, "(0 days)")
	assert.Contains(t, errOut, "header only")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(seed.Columns, ",")+"\n", string(data))
}

func TestSeedDatesInvalidDate(t *testing.T) {
	output := filepath.Join(t.TempDir(), "dim_dates.csv")
	_, _, err := executeCommand(t, "seed", "dates", "2016-13-01", "2016-12-31", output)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetErrorCode(err))
	assert.NoFileExists(t, output)
}

func TestProfilesGenerate(t *testing.T) {
	p := newProject(t)
	testutil.SetEnv(t, testutil.CredentialEnv())

	out, _, err := executeCommand(t, "profiles", "generate")
	require.NoError(t, err)

	path := p.Path("olist_elt_pipeline", "profiles.yml")
	assert.Contains(t, out, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "olist_elt_pipeline:")
	assert.Contains(t, string(data), "elementary:")
	assert.Contains(t, string(data), "snowflake_user")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestProfilesGenerateFromDotEnv(t *testing.T) {
	p := newProject(t)
	p.WriteDotEnv(testutil.CredentialEnv())

	_, _, err := executeCommand(t, "profiles", "generate")
	require.NoError(t, err)
	assert.FileExists(t, p.Path("olist_elt_pipeline", "profiles.yml"))
	assert.True(t, current.resolved.DotEnv)
}

func TestProfilesGenerateMissingCredentials(t *testing.T) {
	p := newProject(t)
	env := testutil.CredentialEnv()
	delete(env, "ELEMENTARY_USER")
	delete(env, "ELEMENTARY_PASSWORD")
	testutil.SetEnv(t, env)

	_, _, err := executeCommand(t, "profiles", "generate")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigMissing, errors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "ELEMENTARY_USER")
	assert.NoFileExists(t, p.Path("olist_elt_pipeline", "profiles.yml"))
}

func countRows(t *testing.T, dbPath, table string) int64 {
	t.Helper()
	ctx := context.Background()
	session, err := warehouse.OpenSQLite(ctx, dbPath, 100)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.Query(ctx, "SELECT COUNT(*) FROM "+table)
	require.NoError(t, err)
	n, ok := res.Rows[0][0].(int64)
	require.True(t, ok, "unexpected count type %T", res.Rows[0][0])
	return n
}

func TestIngestIntoSQLite(t *testing.T) {
	p := sqliteProject(t)
	csvPath := p.WriteFile("data/olist_orders_dataset.csv",
		"order_id,order_status,order_purchase_timestamp\n"+
			"o1,delivered,2017-10-02 10:56:33\n"+
			"o2,shipped,2018-07-24 20:41:37\n"+
			"o3,delivered,2018-08-08 08:38:49\n")

	out, _, err := executeCommand(t, "ingest", "orders", csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Loaded 3 rows into ORDERS")
	assert.EqualValues(t, 3, countRows(t, p.Path("warehouse.db"), "ORDERS"))
}

func TestIngestMissingFile(t *testing.T) {
	p := sqliteProject(t)
	_, _, err := executeCommand(t, "ingest", "orders", p.Path("data", "absent.csv"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFileNotFound, errors.GetErrorCode(err))
}

func TestIngestRequiresSnowflakeCredentials(t *testing.T) {
	p := newProject(t)
	csvPath := p.WriteFile("data/orders.csv", "order_id\no1\n")
	t.Setenv("SNOWFLAKE_ACCOUNT", "xy12345")

	_, _, err := executeCommand(t, "ingest", "orders", csvPath)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigMissing, errors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "SNOWFLAKE_USER")
	assert.NotContains(t, err.Error(), "SNOWFLAKE_ACCOUNT")
}

func TestIngestAll(t *testing.T) {
	p := sqliteProject(t)
	for i, e := range ingest.DefaultEntries {
		p.WriteFile(filepath.Join("data", e.File), fmt.Sprintf("id,value\n%d,a\n%d,b\n", i, i+100))
	}

	out, _, err := executeCommand(t, "ingest", "all")
	require.NoError(t, err)
	assert.Contains(t, out, "PRODUCT_CATEGORY_NAME_TRANSLATION")
	for _, e := range ingest.DefaultEntries {
		assert.EqualValues(t, 2, countRows(t, p.Path("warehouse.db"), strings.ToUpper(e.Table)), e.Table)
	}
}

func TestIngestAllStopsAtMissingFile(t *testing.T) {
	p := sqliteProject(t)
	p.WriteFile(filepath.Join("data", ingest.DefaultEntries[0].File), "id\n1\n")

	_, _, err := executeCommand(t, "ingest", "all")
	require.Error(t, err)
	assert.EqualValues(t, 1, countRows(t, p.Path("warehouse.db"), "CUSTOMERS"))
}

func TestTables(t *testing.T) {
	p := newProject(t)
	p.WriteFile("data/olist_orders_dataset.csv", "order_id\no1\n")

	out, _, err := executeCommand(t, "tables")
	require.NoError(t, err)

	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "olist_orders_dataset.csv"):
			assert.Contains(t, line, "present")
		case strings.Contains(line, "olist_sellers_dataset.csv"):
			assert.Contains(t, line, "missing")
		}
	}
	assert.Contains(t, out, p.Path("data", "olist_sellers_dataset.csv"))
}

func TestWorkflowsList(t *testing.T) {
	newProject(t)
	out, _, err := executeCommand(t, "workflows")
	require.NoError(t, err)

	assert.Contains(t, out, "ingest_raw_data")
	assert.Contains(t, out, "dbt_full_pipeline")
	assert.Contains(t, out, "ml_churn_training")
	assert.Contains(t, out, "30 4 * * *")
	assert.Contains(t, out, "ml,churn,snowflake")
}

func TestRunDryRun(t *testing.T) {
	p := newProject(t)
	out, _, err := executeCommand(t, "run", "dbt-full", "--dry-run")
	require.NoError(t, err)

	assert.Contains(t, out, "dbt_full_pipeline")
	for _, step := range []string{"generate_dbt_profiles", "dbt_debug", "dbt_run", "dbt_docs_generate", "elementary_run_report"} {
		assert.Contains(t, out, step)
	}
	assert.Contains(t, out, p.Path("olist_elt_pipeline"))
	assert.Less(t, strings.Index(out, "dbt_seed"), strings.Index(out, "dbt_test"))
}

func TestRunUnknownWorkflow(t *testing.T) {
	newProject(t)
	_, _, err := executeCommand(t, "run", "nightly")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeWorkflowNotFound, errors.GetErrorCode(err))
}

func TestRunExecutesSteps(t *testing.T) {
	newProject(t)
	t.Setenv("OLISTPIPE_SELF_EXECUTABLE", "true")

	out, _, err := executeCommand(t, "run", "ml-churn")
	require.NoError(t, err)
	assert.Contains(t, out, "train_and_upload_churn_model")
	assert.Contains(t, out, "succeeded")
}

func TestRunFailingStep(t *testing.T) {
	newProject(t)
	t.Setenv("OLISTPIPE_SELF_EXECUTABLE", "false")
	t.Setenv("OLISTPIPE_RETRY_RETRIES", "0")

	out, _, err := executeCommand(t, "run", "ml_churn_training")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStepFailed, errors.GetErrorCode(err))
	assert.Contains(t, out, "failed")
}

func TestServeRequiresWorkflows(t *testing.T) {
	newProject(t)
	_, _, err := executeCommand(t, "serve", "--workflow", "nightly")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeWorkflowNotFound, errors.GetErrorCode(err))
}

func seedFeatures(t *testing.T, dbPath string, n int) {
	t.Helper()
	ctx := context.Background()
	session, err := warehouse.OpenSQLite(ctx, dbPath, 100)
	require.NoError(t, err)
	defer session.Close()

	cols := []warehouse.Column{
		{Name: "customer_unique_id", Type: warehouse.TypeString},
		{Name: "first_purchase_date", Type: warehouse.TypeDate},
		{Name: "last_purchase_date", Type: warehouse.TypeDate},
		{Name: "total_orders", Type: warehouse.TypeNumber},
		{Name: "total_accounts", Type: warehouse.TypeNumber},
		{Name: "total_revenue", Type: warehouse.TypeFloat},
		{Name: "avg_revenue_per_order", Type: warehouse.TypeFloat},
		{Name: "days_since_last_order", Type: warehouse.TypeNumber},
		{Name: "is_churned", Type: warehouse.TypeBoolean},
	}
	base := time.Date(2017, 3, 1, 0, 0, 0, 0, time.UTC)
	var rows [][]interface{}
	for i := 0; i < n; i++ {
		churned := i%5 == 0
		days, orders, revenue := int64(30+i%40), int64(3), float64(80+i)
		if churned {
			days, orders, revenue = int64(500+i%60), 1, float64(20+i%7)
		}
		rows = append(rows, []interface{}{
			fmt.Sprintf("u%03d", i),
			base.AddDate(0, 0, i).Format("2006-01-02"),
			base.AddDate(0, 1, i).Format("2006-01-02"),
			orders, int64(1), revenue, revenue / float64(orders), days, churned,
		})
	}
	require.NoError(t, session.ReplaceTable(ctx, churn.FeatureTable, cols, rows))
}

func TestTrainChurn(t *testing.T) {
	p := sqliteProject(t)
	seedFeatures(t, p.Path("warehouse.db"), 50)
	modelDir := filepath.Join(t.TempDir(), "models")

	out, _, err := executeCommand(t, "train", "churn", "--trees", "5", "--model-dir", modelDir)
	require.NoError(t, err)
	assert.Contains(t, out, "ROC AUC")
	assert.Contains(t, out, "40 / 10")

	models, err := filepath.Glob(filepath.Join(modelDir, "churn_model_*.json"))
	require.NoError(t, err)
	assert.Len(t, models, 1)
	assert.EqualValues(t, 10, countRows(t, p.Path("warehouse.db"), churn.PredictionTable))
}

func TestTrainChurnMissingFeatureTable(t *testing.T) {
	sqliteProject(t)
	_, _, err := executeCommand(t, "train", "churn", "--model-dir", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNoResults, errors.GetErrorCode(err))
}

func TestCheckSQLite(t *testing.T) {
	p := sqliteProject(t)
	out, _, err := executeCommand(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "Local warehouse is reachable")
	assert.Contains(t, out, p.Path("warehouse.db"))
}

func TestCheckRequiresCredentials(t *testing.T) {
	newProject(t)
	_, _, err := executeCommand(t, "check", "--quality")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigMissing, errors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "ELEMENTARY_ACCOUNT")
}

func TestSetupFromEnv(t *testing.T) {
	p := newProject(t)
	p.WriteDotEnv(map[string]string{"DBT_VAR_YEAR": "2018", "SNOWFLAKE_USER": "old_user"})
	env := testutil.CredentialEnv()
	env["SNOWFLAKE_PASSWORD"] = "pa ss#word"
	testutil.SetEnv(t, env)

	out, _, err := executeCommand(t, "setup", "--from-env")
	require.NoError(t, err)
	assert.Contains(t, out, "Credentials saved")

	path := p.Path(config.DotEnvFile)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	saved, err := gotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "2018", saved["DBT_VAR_YEAR"])
	assert.Equal(t, "snowflake_user", saved["SNOWFLAKE_USER"])
	assert.Equal(t, "pa ss#word", saved["SNOWFLAKE_PASSWORD"])
	assert.Equal(t, "elementary_secret", saved["ELEMENTARY_PASSWORD"])

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "SNOWFLAKE_ACCOUNT="))
}

func TestSetupFromEnvKeyring(t *testing.T) {
	keyring.MockInit()
	p := newProject(t)
	testutil.SetEnv(t, testutil.CredentialEnv())

	_, _, err := executeCommand(t, "setup", "--from-env", "--keyring")
	require.NoError(t, err)

	saved, err := gotenv.Read(p.Path(config.DotEnvFile))
	require.NoError(t, err)
	assert.NotContains(t, saved, "SNOWFLAKE_PASSWORD")
	assert.NotContains(t, saved, "ELEMENTARY_PASSWORD")
	assert.Equal(t, "true", saved[keyringFlagKey])

	secret, err := keyring.Get(config.KeyringService, "SNOWFLAKE_PASSWORD")
	require.NoError(t, err)
	assert.Equal(t, "snowflake_secret", secret)
}

func TestSetupFromEnvMissingCredentials(t *testing.T) {
	p := newProject(t)
	t.Setenv("SNOWFLAKE_ACCOUNT", "xy12345")

	_, _, err := executeCommand(t, "setup", "--from-env")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigMissing, errors.GetErrorCode(err))
	assert.NoFileExists(t, p.Path(config.DotEnvFile))
}

func TestRenderDotEnvOrder(t *testing.T) {
	data := renderDotEnv(map[string]string{
		"ZZZ":                "last",
		"AAA":                "",
		"ELEMENTARY_USER":    "edr",
		"SNOWFLAKE_USER":     "dbt",
		"SNOWFLAKE_ACCOUNT":  "xy12345",
		"SNOWFLAKE_PASSWORD": `a"b`,
	})
	assert.Equal(t, "SNOWFLAKE_ACCOUNT=xy12345\n"+
		"SNOWFLAKE_USER=dbt\n"+
		"SNOWFLAKE_PASSWORD=\"a\\\"b\"\n"+
		"ELEMENTARY_USER=edr\n"+
		"AAA=\"\"\n"+
		"ZZZ=last\n", string(data))
}

func TestWorkflowAliases(t *testing.T) {
	assert.Equal(t, "ingest_raw_data", workflowID("ingest-raw"))
	assert.Equal(t, "dbt_full_pipeline", workflowID("DBT-FULL"))
	assert.Equal(t, "custom", workflowID("custom"))
	assert.Equal(t, "-", nextRun("", time.Now()))
	assert.Equal(t, "invalid", nextRun("every day", time.Now()))
}
