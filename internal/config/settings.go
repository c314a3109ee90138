package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"olistpipe/pkg/errors"
)

// Settings are pipeline options that are not credentials: tool locations,
// schedules, retry policy and local output locations.
type Settings struct {
	DBTExecutable  string            `mapstructure:"dbt_executable"`
	EDRExecutable  string            `mapstructure:"edr_executable"`
	SelfExecutable string            `mapstructure:"self_executable"`
	ModelDir       string            `mapstructure:"model_dir"`
	Warehouse      WarehouseSettings `mapstructure:"warehouse"`
	Retry          RetrySettings     `mapstructure:"retry"`
	Schedules      map[string]string `mapstructure:"schedules"`
	Log            LogSettings       `mapstructure:"log"`
}

// WarehouseSettings selects and tunes the warehouse driver
type WarehouseSettings struct {
	Driver       string        `mapstructure:"driver"`
	SQLitePath   string        `mapstructure:"sqlite_path"`
	LoginTimeout time.Duration `mapstructure:"login_timeout"`
	BatchSize    int           `mapstructure:"batch_size"`
}

// RetrySettings is the per-step retry policy of every workflow
type RetrySettings struct {
	Retries int           `mapstructure:"retries"`
	Delay   time.Duration `mapstructure:"delay"`
}

// LogSettings configures the logger
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// SettingsFile is the base name of the optional settings file in the project root
const SettingsFile = "olistpipe"

// SetDefaults registers every setting with its default so env overrides apply.
func SetDefaults(v *viper.Viper, root string) {
	v.SetDefault("dbt_executable", "/home/airflow/.local/bin/dbt")
	v.SetDefault("edr_executable", "/home/airflow/.local/bin/edr")
	v.SetDefault("self_executable", "")
	v.SetDefault("model_dir", filepath.Join(root, "ml_models"))
	v.SetDefault("warehouse.driver", "snowflake")
	v.SetDefault("warehouse.sqlite_path", filepath.Join(root, "warehouse.db"))
	v.SetDefault("warehouse.login_timeout", 60*time.Second)
	v.SetDefault("warehouse.batch_size", 1000)
	v.SetDefault("retry.retries", 3)
	v.SetDefault("retry.delay", 5*time.Minute)
	v.SetDefault("schedules.ingest_raw_data", "0 4 * * *")
	v.SetDefault("schedules.dbt_full_pipeline", "30 4 * * *")
	v.SetDefault("schedules.ml_churn_training", "0 5 * * *")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
}

// LoadSettings reads settings from configFile (or olistpipe.yaml in root when
// empty), with OLISTPIPE_* environment variables taking precedence.
func LoadSettings(v *viper.Viper, root, configFile string) (Settings, error) {
	SetDefaults(v, root)

	v.SetEnvPrefix("OLISTPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(SettingsFile)
		v.SetConfigType("yaml")
		v.AddConfigPath(root)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return Settings{}, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to read settings file").
				WithContext("file", configFile)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to decode settings")
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks settings that would otherwise fail late
func (s Settings) Validate() error {
	switch s.Warehouse.Driver {
	case "snowflake", "sqlite":
	default:
		return errors.ConfigError("Unsupported warehouse driver '"+s.Warehouse.Driver+"'", "warehouse.driver")
	}
	if s.Warehouse.BatchSize <= 0 {
		return errors.ConfigError("warehouse.batch_size must be positive", "warehouse.batch_size")
	}
	if s.Retry.Retries < 0 {
		return errors.ConfigError("retry.retries cannot be negative", "retry.retries")
	}
	return nil
}

// Schedule returns the cron expression configured for a workflow id
func (s Settings) Schedule(workflowID string) string {
	return s.Schedules[workflowID]
}
