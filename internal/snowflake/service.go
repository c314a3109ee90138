package snowflake

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/snowflakedb/gosnowflake"

	"olistpipe/internal/config"
	"olistpipe/internal/observability"
	"olistpipe/internal/warehouse"
	"olistpipe/pkg/errors"
)

func init() {
	warehouse.Register("snowflake", Open)
}

// Service provides Snowflake database operations
type Service struct {
	db        *sql.DB
	session   *warehouse.SQLSession
	config    Config
	connected bool
	logger    *observability.Logger
}

// Config holds Snowflake connection configuration
type Config struct {
	Account      string
	Username     string
	Password     string
	Database     string
	Schema       string
	Warehouse    string
	Role         string
	Timeout      time.Duration
	LoginTimeout time.Duration
	BatchSize    int
}

// ConfigFromCredentials maps one credential namespace onto a connection config
func ConfigFromCredentials(creds config.Credentials, settings config.WarehouseSettings) Config {
	return Config{
		Account:      creds.Account,
		Username:     creds.User,
		Password:     creds.Password,
		Database:     creds.Database,
		Schema:       creds.Schema,
		Warehouse:    creds.Warehouse,
		Role:         creds.Role,
		LoginTimeout: settings.LoginTimeout,
		BatchSize:    settings.BatchSize,
	}
}

// NewService creates a new Snowflake service
func NewService(config Config) *Service {
	return &Service{
		config: config,
		logger: observability.GetDefaultLogger().WithField("component", "snowflake"),
	}
}

// Open is the warehouse driver for Snowflake
func Open(ctx context.Context, cfg warehouse.Config) (warehouse.Session, error) {
	service := NewService(ConfigFromCredentials(cfg.Credentials, cfg.Settings))
	if err := service.Connect(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

// DSN renders the gosnowflake connection string
func (s *Service) DSN() (string, error) {
	keepAlive := "true"
	dsn, err := gosnowflake.DSN(&gosnowflake.Config{
		Account:      s.config.Account,
		User:         s.config.Username,
		Password:     s.config.Password,
		Database:     s.config.Database,
		Schema:       s.config.Schema,
		Warehouse:    s.config.Warehouse,
		Role:         s.config.Role,
		LoginTimeout: s.config.LoginTimeout,
		Application:  "olistpipe",
		Params:       map[string]*string{"client_session_keep_alive": &keepAlive},
	})
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeConfigInvalid, "Failed to build Snowflake DSN").
			WithContext("account", s.config.Account)
	}
	return dsn, nil
}

// Connect establishes a connection to Snowflake
func (s *Service) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}
	if err := ValidateConfig(s.config); err != nil {
		return err
	}

	dsn, err := s.DSN()
	if err != nil {
		return err
	}

	return errors.RetryWithBackoff(ctx, func(ctx context.Context) error {
		db, err := sql.Open("snowflake", dsn)
		if err != nil {
			return errors.ConnectionError("Failed to open Snowflake connection", err).
				WithContext("account", s.config.Account).
				WithContext("warehouse", s.config.Warehouse)
		}

		db.SetMaxOpenConns(4)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(10 * time.Minute)

		connCtx, cancel := s.getContext(ctx)
		defer cancel()

		if err := db.PingContext(connCtx); err != nil {
			db.Close()

			if strings.Contains(strings.ToLower(err.Error()), "authentication") ||
				strings.Contains(strings.ToLower(err.Error()), "incorrect username or password") {
				return errors.New(errors.ErrCodeAuthenticationFailed, "Authentication failed").
					WithContext("user", s.config.Username).
					WithSuggestions(
						"Verify SNOWFLAKE_USER and SNOWFLAKE_PASSWORD",
						"Check if your account is locked",
					)
			}

			return errors.ConnectionError("Failed to connect to Snowflake", err).
				WithContext("account", s.config.Account).
				AsRecoverable()
		}

		s.attach(db)
		s.logger.InfoWithFields("Connected to Snowflake", map[string]interface{}{
			"account":   s.config.Account,
			"database":  s.config.Database,
			"schema":    s.config.Schema,
			"warehouse": s.config.Warehouse,
		})
		return nil
	})
}

func (s *Service) attach(db *sql.DB) {
	s.db = db
	s.session = warehouse.NewSQLSession(db, Dialect{}, s.config.BatchSize, s.logger)
	s.connected = true
}

// Close closes the database connection
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}
	s.connected = false
	s.db = nil
	return s.session.Close()
}

func (s *Service) ensureConnected() error {
	if !s.connected {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to Snowflake").
			WithSuggestions("Call Connect() before executing SQL")
	}
	return nil
}

// ReplaceTable runs CREATE OR REPLACE TABLE and loads rows in one transaction
func (s *Service) ReplaceTable(ctx context.Context, name string, cols []warehouse.Column, rows [][]interface{}) error {
	if err := s.ensureConnected(); err != nil {
		return err
	}
	return s.session.ReplaceTable(ctx, name, cols, rows)
}

// Query executes a query and returns every row
func (s *Service) Query(ctx context.Context, query string) (*warehouse.Result, error) {
	if err := s.ensureConnected(); err != nil {
		return nil, err
	}
	return s.session.Query(ctx, query)
}

// SessionContext reports the role, warehouse, database and schema the session runs with
func (s *Service) SessionContext(ctx context.Context) (map[string]string, error) {
	result, err := s.Query(ctx,
		"SELECT CURRENT_ROLE() AS ROLE, CURRENT_WAREHOUSE() AS WAREHOUSE, CURRENT_DATABASE() AS DATABASE, CURRENT_SCHEMA() AS SCHEMA")
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, errors.New(errors.ErrCodeNoResults, "Snowflake returned no session context")
	}

	info := make(map[string]string, len(result.Columns))
	for i, col := range result.Columns {
		if result.Rows[0][i] != nil {
			info[strings.ToLower(col)] = fmt.Sprint(result.Rows[0][i])
		}
	}
	return info, nil
}

// TestConnection connects if needed and pings the database
func (s *Service) TestConnection(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}

	pingCtx, cancel := s.getContext(ctx)
	defer cancel()
	if err := s.db.PingContext(pingCtx); err != nil {
		return errors.ConnectionError("Snowflake ping failed", err)
	}
	return nil
}

func (s *Service) getContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := s.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(parent, timeout)
}

// ValidateConfig validates the Snowflake configuration
func ValidateConfig(config Config) error {
	required := []struct {
		name  string
		value string
	}{
		{"account", config.Account},
		{"user", config.Username},
		{"password", config.Password},
		{"warehouse", config.Warehouse},
		{"database", config.Database},
		{"schema", config.Schema},
	}

	var missing []string
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return errors.New(errors.ErrCodeConfigMissing,
			fmt.Sprintf("Snowflake %s is required", strings.Join(missing, ", "))).
			WithContext("missing", missing)
	}
	return nil
}

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// Dialect renders Snowflake SQL. Plain identifiers are upper-cased so that
// unquoted references from dbt resolve to them.
type Dialect struct{}

func (Dialect) Name() string { return "snowflake" }

func (Dialect) QuoteIdent(name string) string {
	if plainIdent.MatchString(name) {
		return strings.ToUpper(name)
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Dialect) TypeName(t warehouse.ColumnType) string {
	switch t {
	case warehouse.TypeNumber:
		return "NUMBER(38,0)"
	case warehouse.TypeFloat:
		return "FLOAT"
	case warehouse.TypeBoolean:
		return "BOOLEAN"
	case warehouse.TypeDate:
		return "DATE"
	case warehouse.TypeTimestamp:
		return "TIMESTAMP_NTZ"
	default:
		return "VARCHAR"
	}
}

func (d Dialect) ReplaceStatements(table string, cols []warehouse.Column) []string {
	return []string{warehouse.CreateTableStatement(d, "CREATE OR REPLACE TABLE", table, cols)}
}
