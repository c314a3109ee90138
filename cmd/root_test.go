package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olistpipe/internal/config"
	"olistpipe/internal/testutil"
	"olistpipe/internal/ui"
)

// isolatedKeys are unset for every command test so the developer's shell
// cannot leak into results.
var isolatedKeys = func() []string {
	keys := []string{
		rawSchemaKey, martSchemaKey, keyringFlagKey,
		"DBT_FOLDER_NAME", "DBT_PROJECT_NAME",
		"DBT_VAR_YEAR", "DBT_VAR_MONTH", "DBT_VAR_QUARTER", "DBT_VAR_DATE",
		"OLISTPIPE_WAREHOUSE_DRIVER", "OLISTPIPE_WAREHOUSE_SQLITE_PATH", "OLISTPIPE_SELF_EXECUTABLE",
		"OLISTPIPE_RETRY_RETRIES", "OLISTPIPE_RETRY_DELAY", "OLISTPIPE_MODEL_DIR",
		"OLISTPIPE_LOG_LEVEL", "OLISTPIPE_LOG_FORMAT", "OLISTPIPE_LOG_FILE",
	}
	for _, prefix := range []string{config.PrimaryPrefix, config.QualityPrefix} {
		for _, f := range setupFields {
			keys = append(keys, config.Key(prefix, f))
		}
	}
	return keys
}()

func newProject(t *testing.T) *testutil.Project {
	t.Helper()
	ui.SetColor(false)
	return testutil.NewProject(t, isolatedKeys...)
}

// sqliteProject is a project whose warehouse is a local SQLite file
func sqliteProject(t *testing.T) *testutil.Project {
	t.Helper()
	p := newProject(t)
	t.Setenv("OLISTPIPE_WAREHOUSE_DRIVER", "sqlite")
	t.Setenv("OLISTPIPE_WAREHOUSE_SQLITE_PATH", p.Path("warehouse.db"))
	return p
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	current = nil

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCommandHelp(t *testing.T) {
	newProject(t)
	out, _, err := executeCommand(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "Available Commands:")
	for _, name := range []string{"ingest", "profiles", "run", "seed", "serve", "setup", "tables", "train", "workflows", "check", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestVersionCommand(t *testing.T) {
	out, _, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "olistpipe version dev")
	assert.Nil(t, current, "version must not resolve the project")
}

func TestInvalidCommand(t *testing.T) {
	_, _, err := executeCommand(t, "invalid-command")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestWrongArity(t *testing.T) {
	newProject(t)
	tests := [][]string{
		{"ingest", "orders"},
		{"ingest", "orders", "a.csv", "extra"},
		{"ingest", "all", "extra"},
		{"seed", "dates", "2016-01-01", "2016-01-03"},
		{"run"},
		{"profiles", "generate", "now"},
	}
	for _, args := range tests {
		_, _, err := executeCommand(t, args...)
		assert.Error(t, err, "%v", args)
	}
}

func TestExplicitSettingsFileMustExist(t *testing.T) {
	p := newProject(t)
	_, _, err := executeCommand(t, "--config", p.Path("absent.yaml"), "tables")
	assert.Error(t, err)
}

func TestSettingsFileSelectsDriver(t *testing.T) {
	p := newProject(t)
	p.WriteFile("olistpipe.yaml", "warehouse:\n  driver: sqlite\n  sqlite_path: "+p.Path("dev.db")+"\n")

	out, _, err := executeCommand(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, p.Path("dev.db"))
	assert.Equal(t, "sqlite", current.settings.Warehouse.Driver)
}

func TestLogFlagsOverrideSettings(t *testing.T) {
	p := newProject(t)
	p.WriteFile("olistpipe.yaml", "log:\n  level: error\n  format: console\n")

	_, stderr, err := executeCommand(t, "--log-level", "debug", "--log-format", "json", "tables")
	require.NoError(t, err)

	assert.Equal(t, "debug", current.settings.Log.Level)
	assert.Equal(t, "json", current.settings.Log.Format)
	assert.Contains(t, stderr, `"message":"Configuration resolved"`)
}
