package snowflake

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"olistpipe/internal/config"
	"olistpipe/internal/warehouse"
	"olistpipe/pkg/errors"
)

func testConfig() Config {
	return Config{
		Account:   "test123.us-east-1",
		Username:  "testuser",
		Password:  "testpass",
		Database:  "OLIST",
		Schema:    "RAW",
		Warehouse: "TEST_WH",
		Role:      "SYSADMIN",
		Timeout:   5 * time.Second,
		BatchSize: 2,
	}
}

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	service := NewService(testConfig())
	service.attach(db)
	return service, mock
}

func TestNewService(t *testing.T) {
	service := NewService(testConfig())

	assert.NotNil(t, service)
	assert.Equal(t, testConfig(), service.config)
	assert.False(t, service.connected)
}

func TestConfigFromCredentials(t *testing.T) {
	cfg := ConfigFromCredentials(config.Credentials{
		Account: "xy12345", User: "u", Password: "p", Role: "R",
		Warehouse: "WH", Database: "DB", Schema: "MART",
	}, config.WarehouseSettings{LoginTimeout: time.Minute, BatchSize: 500})

	assert.Equal(t, "u", cfg.Username)
	assert.Equal(t, "MART", cfg.Schema)
	assert.Equal(t, time.Minute, cfg.LoginTimeout)
	assert.Equal(t, 500, cfg.BatchSize)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantError bool
		errorMsg  string
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "role is optional", mutate: func(c *Config) { c.Role = "" }},
		{name: "missing account", mutate: func(c *Config) { c.Account = "" }, wantError: true, errorMsg: "account"},
		{name: "missing user", mutate: func(c *Config) { c.Username = " " }, wantError: true, errorMsg: "user"},
		{name: "missing password", mutate: func(c *Config) { c.Password = "" }, wantError: true, errorMsg: "password"},
		{name: "missing warehouse and schema", mutate: func(c *Config) { c.Warehouse = ""; c.Schema = "" }, wantError: true, errorMsg: "warehouse, schema"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				assert.Equal(t, errors.ErrCodeConfigMissing, errors.GetErrorCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConnectRejectsIncompleteConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Password = ""
	err := NewService(cfg).Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigMissing, errors.GetErrorCode(err))
}

func TestDSN(t *testing.T) {
	dsn, err := NewService(testConfig()).DSN()
	require.NoError(t, err)
	assert.Contains(t, dsn, "testuser:testpass@")
	assert.Contains(t, dsn, "warehouse=TEST_WH")
	assert.Contains(t, dsn, "role=SYSADMIN")
	assert.Contains(t, dsn, "client_session_keep_alive=true")
}

func TestReplaceTable(t *testing.T) {
	service, mock := newMockService(t)

	cols := []warehouse.Column{
		{Name: "customer_id", Type: warehouse.TypeString},
		{Name: "customer_zip_code_prefix", Type: warehouse.TypeNumber},
	}

	mock.ExpectExec("CREATE OR REPLACE TABLE CUSTOMERS (CUSTOMER_ID VARCHAR, CUSTOMER_ZIP_CODE_PREFIX NUMBER(38,0))").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO CUSTOMERS (CUSTOMER_ID, CUSTOMER_ZIP_CODE_PREFIX) VALUES (?, ?), (?, ?)").
		WithArgs("c1", int64(14409), "c2", int64(9790)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO CUSTOMERS (CUSTOMER_ID, CUSTOMER_ZIP_CODE_PREFIX) VALUES (?, ?)").
		WithArgs("c3", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	err := service.ReplaceTable(context.Background(), "CUSTOMERS", cols, [][]interface{}{
		{"c1", int64(14409)}, {"c2", int64(9790)}, {"c3", nil},
	})
	require.NoError(t, err)
	require.NoError(t, service.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotConnected(t *testing.T) {
	service := NewService(testConfig())

	_, err := service.Query(context.Background(), "SELECT 1")
	assert.Equal(t, errors.ErrCodeConnectionFailed, errors.GetErrorCode(err))

	err = service.ReplaceTable(context.Background(), "T", nil, nil)
	assert.Equal(t, errors.ErrCodeConnectionFailed, errors.GetErrorCode(err))

	assert.NoError(t, service.Close())
}

func TestSessionContext(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectQuery("SELECT CURRENT_ROLE() AS ROLE, CURRENT_WAREHOUSE() AS WAREHOUSE, CURRENT_DATABASE() AS DATABASE, CURRENT_SCHEMA() AS SCHEMA").
		WillReturnRows(sqlmock.NewRows([]string{"ROLE", "WAREHOUSE", "DATABASE", "SCHEMA"}).
			AddRow("SYSADMIN", "TEST_WH", "OLIST", nil))

	info, err := service.SessionContext(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SYSADMIN", info["role"])
	assert.Equal(t, "OLIST", info["database"])
	assert.NotContains(t, info, "schema")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDialect(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "ML_CHURN_PREDICTIONS", d.QuoteIdent("ml_churn_predictions"))
	assert.Equal(t, `"order id"`, d.QuoteIdent("order id"))
	assert.Equal(t, `"a""b"`, d.QuoteIdent(`a"b`))
	assert.Equal(t, "TIMESTAMP_NTZ", d.TypeName(warehouse.TypeTimestamp))
	assert.Equal(t, "VARCHAR", d.TypeName(warehouse.TypeString))
}

func TestRegisteredAsDriver(t *testing.T) {
	assert.Contains(t, warehouse.Drivers(), "snowflake")
}
