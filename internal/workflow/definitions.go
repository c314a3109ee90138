package workflow

import (
	"olistpipe/internal/config"
	"olistpipe/internal/ingest"
	"olistpipe/internal/observability"
)

// Workflow ids
const (
	IngestRawID = "ingest_raw_data"
	DBTFullID   = "dbt_full_pipeline"
	MLChurnID   = "ml_churn_training"
)

// Definitions holds what the built-in workflows are derived from
type Definitions struct {
	Layout   config.Layout
	Env      config.Environment
	Settings config.Settings
	// Self is the path of the olistpipe binary, used for in-pipeline steps
	Self     string
	Registry *ingest.Registry
	Logger   *observability.Logger
}

func (d Definitions) logger() *observability.Logger {
	if d.Logger == nil {
		return observability.GetDefaultLogger()
	}
	return d.Logger
}

func (d Definitions) retry() RetryPolicy {
	return RetryPolicy{Retries: d.Settings.Retry.Retries, Delay: d.Settings.Retry.Delay}
}

// stepEnv is the environment passed to every step. A *_SCHEMA_RAW setting
// becomes the SNOWFLAKE_SCHEMA the loaders and dbt connect with.
func (d Definitions) stepEnv() []string {
	env := d.Env.With(config.ProjectRootKey, d.Layout.Root)
	if raw := d.Env.Get("SNOWFLAKE_SCHEMA_RAW", ""); raw != "" {
		env = env.With(config.Key(config.PrimaryPrefix, config.FieldSchema), raw)
	}
	return env.Environ()
}

// IngestRaw loads every registered raw table, one step per table. A table
// whose source path cannot be resolved is logged and left out.
func (d Definitions) IngestRaw() Workflow {
	env := d.stepEnv()
	var steps []Step
	for _, table := range d.Registry.Names() {
		path, err := d.Registry.Path(table)
		if err != nil {
			d.logger().ErrorWithFields("Skipping table with an unresolvable source file", map[string]interface{}{
				"table": table,
				"error": err,
			})
			continue
		}
		steps = append(steps, Step{
			Name:    "ingest_" + table,
			Command: []string{d.Self, "ingest", table, path},
			Dir:     d.Layout.Root,
			Env:     env,
		})
	}

	return Workflow{
		ID:          IngestRawID,
		Description: "Ingest raw CSV data into Snowflake",
		Schedule:    d.Settings.Schedule(IngestRawID),
		Tags:        []string{"ingest", "snowflake"},
		Retry:       d.retry(),
		Steps:       steps,
	}
}

// DBTFull builds the models, tests them and publishes docs and the quality report
func (d Definitions) DBTFull() Workflow {
	vars, warnings := config.MartVars(d.Env)
	for _, w := range warnings {
		d.logger().Warn(w)
	}

	env := d.stepEnv()
	dbtDir := d.Layout.DBTDir()
	dbt := func(name string, args ...string) Step {
		return Step{
			Name:    name,
			Command: append([]string{d.Settings.DBTExecutable}, args...),
			Dir:     dbtDir,
			Env:     env,
		}
	}
	qualityTarget := d.Env.Get(config.Key(config.QualityPrefix, config.FieldEnv), "")

	return Workflow{
		ID:          DBTFullID,
		Description: "Run full dbt pipeline with Elementary",
		Schedule:    d.Settings.Schedule(DBTFullID),
		Tags:        []string{"dbt", "elt", "snowflake"},
		Retry:       d.retry(),
		Steps: []Step{
			{
				Name:    "generate_dbt_profiles",
				Command: []string{d.Self, "profiles", "generate"},
				Dir:     d.Layout.Root,
				Env:     env,
			},
			dbt("dbt_debug", "debug"),
			dbt("dbt_deps", "deps"),
			dbt("dbt_seed", "seed"),
			dbt("dbt_run", "run", "--vars", config.VarsJSON(vars)),
			dbt("dbt_test", "test"),
			dbt("dbt_docs_generate", "docs", "generate"),
			{
				Name: "elementary_run_report",
				Command: []string{d.Settings.EDRExecutable, "report",
					"--profiles-dir", dbtDir,
					"--profile-target", qualityTarget},
				Dir: dbtDir,
				Env: env,
			},
		},
	}
}

// MLChurn trains the churn model and publishes predictions
func (d Definitions) MLChurn() Workflow {
	return Workflow{
		ID:          MLChurnID,
		Description: "Train customer churn prediction model",
		Schedule:    d.Settings.Schedule(MLChurnID),
		Tags:        []string{"ml", "churn", "snowflake"},
		Retry:       d.retry(),
		Steps: []Step{
			{
				Name:    "train_and_upload_churn_model",
				Command: []string{d.Self, "train", "churn"},
				Dir:     d.Layout.Root,
				Env:     d.Env.With(config.ProjectRootKey, d.Layout.Root).Environ(),
			},
		},
	}
}

// All returns every built-in workflow
func (d Definitions) All() []Workflow {
	return []Workflow{d.IngestRaw(), d.DBTFull(), d.MLChurn()}
}
