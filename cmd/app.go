package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"olistpipe/internal/config"
	"olistpipe/internal/ingest"
	"olistpipe/internal/observability"
	"olistpipe/internal/ui"
	"olistpipe/internal/warehouse"
	"olistpipe/internal/workflow"
	"olistpipe/pkg/errors"
)

// skipInit marks commands that run without resolving the project
const skipInit = "olistpipe/skip-init"

// app is the resolved runtime state every command works from
type app struct {
	resolved   *config.Resolved
	settings   config.Settings
	logger     *observability.Logger
	executable string
}

var current *app

func initApp(cmd *cobra.Command, args []string) error {
	if noColor {
		ui.SetColor(false)
	}
	if _, ok := cmd.Annotations[skipInit]; ok {
		return nil
	}

	bootstrap := observability.NewLogger(observability.LoggerConfig{
		Level:   observability.LogLevelFromString(logLevel),
		Format:  logFormat,
		Output:  cmd.ErrOrStderr(),
		Service: "olistpipe",
	})

	exe, err := os.Executable()
	if err != nil {
		bootstrap.Debugf("Could not determine executable path: %v", err)
		exe = ""
	}

	resolved, err := config.Resolve(config.ResolveOptions{ExecutablePath: exe, Logger: bootstrap})
	if err != nil {
		return err
	}

	v := viper.New()
	_ = v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", cmd.Root().PersistentFlags().Lookup("log-format"))
	settings, err := config.LoadSettings(v, resolved.Root, cfgFile)
	if err != nil {
		return err
	}
	if settings.SelfExecutable == "" {
		settings.SelfExecutable = exe
	}

	logger := observability.NewLogger(observability.LoggerConfig{
		Level:   observability.LogLevelFromString(settings.Log.Level),
		Format:  settings.Log.Format,
		Output:  cmd.ErrOrStderr(),
		Service: "olistpipe",
		Version: Version,
		File:    settings.Log.File,
	})
	observability.SetDefaultLogger(logger)
	logger.DebugWithFields("Configuration resolved", map[string]interface{}{
		"root":      resolved.Root,
		"inference": string(resolved.Inference),
		"dotenv":    resolved.DotEnv,
		"driver":    settings.Warehouse.Driver,
	})

	current = &app{
		resolved:   resolved,
		settings:   settings,
		logger:     logger,
		executable: exe,
	}
	return nil
}

func (a *app) env() config.Environment {
	return a.resolved.Env
}

func (a *app) credentials(prefix string) config.Credentials {
	creds, _ := config.LoadCredentials(a.env(), prefix)
	return creds
}

// requireCredentials enforces connection settings for drivers that need them
func (a *app) requireCredentials(creds config.Credentials, fields ...config.Field) error {
	if a.settings.Warehouse.Driver != "snowflake" {
		return nil
	}
	if missing := creds.Missing(fields...); len(missing) > 0 {
		return errors.MissingConfigError("Snowflake", missing).
			WithSuggestions("Set the variables in " + config.DotEnvFile + " or run 'olistpipe setup'")
	}
	return nil
}

func (a *app) opener(creds config.Credentials) warehouse.Opener {
	return warehouse.NewOpener(warehouse.Config{Credentials: creds, Settings: a.settings.Warehouse})
}

func (a *app) registry() *ingest.Registry {
	return ingest.DefaultRegistry(a.resolved.Layout.DataDir())
}

func (a *app) definitions() workflow.Definitions {
	return workflow.Definitions{
		Layout:   a.resolved.Layout,
		Env:      a.env(),
		Settings: a.settings,
		Self:     a.settings.SelfExecutable,
		Registry: a.registry(),
		Logger:   a.logger,
	}
}
