package config

import "strings"

// Credential namespaces
const (
	PrimaryPrefix = "SNOWFLAKE"
	QualityPrefix = "ELEMENTARY"
)

// Field names a credential setting, combined with a prefix to form the env key.
type Field string

const (
	FieldAccount   Field = "ACCOUNT"
	FieldUser      Field = "USER"
	FieldPassword  Field = "PASSWORD"
	FieldRole      Field = "ROLE"
	FieldWarehouse Field = "WAREHOUSE"
	FieldDatabase  Field = "DATABASE"
	FieldSchema    Field = "SCHEMA"
	FieldEnv       Field = "ENV"
)

// ProfileFields must all be non-blank before a profile document is written.
var ProfileFields = []Field{
	FieldAccount, FieldUser, FieldPassword, FieldWarehouse, FieldDatabase, FieldSchema, FieldEnv,
}

// WarehouseFields are required to open a warehouse session.
var WarehouseFields = []Field{
	FieldAccount, FieldUser, FieldPassword, FieldDatabase, FieldSchema, FieldWarehouse,
}

// Credentials holds one namespace of warehouse connection settings
type Credentials struct {
	Prefix    string
	Account   string
	User      string
	Password  string
	Role      string
	Warehouse string
	Database  string
	Schema    string
	Env       string
}

// Key returns the environment variable name for field in this namespace
func Key(prefix string, field Field) string {
	return prefix + "_" + string(field)
}

// LoadCredentials reads the prefix namespace and returns the env keys of
// ProfileFields that are missing or blank, in declaration order.
func LoadCredentials(env Environment, prefix string) (Credentials, []string) {
	creds := Credentials{
		Prefix:    prefix,
		Account:   env.Get(Key(prefix, FieldAccount), ""),
		User:      env.Get(Key(prefix, FieldUser), ""),
		Password:  env.Get(Key(prefix, FieldPassword), ""),
		Role:      env.Get(Key(prefix, FieldRole), ""),
		Warehouse: env.Get(Key(prefix, FieldWarehouse), ""),
		Database:  env.Get(Key(prefix, FieldDatabase), ""),
		Schema:    env.Get(Key(prefix, FieldSchema), ""),
		Env:       env.Get(Key(prefix, FieldEnv), ""),
	}
	return creds, creds.Missing(ProfileFields...)
}

// Value returns the setting for field
func (c Credentials) Value(field Field) string {
	switch field {
	case FieldAccount:
		return c.Account
	case FieldUser:
		return c.User
	case FieldPassword:
		return c.Password
	case FieldRole:
		return c.Role
	case FieldWarehouse:
		return c.Warehouse
	case FieldDatabase:
		return c.Database
	case FieldSchema:
		return c.Schema
	case FieldEnv:
		return c.Env
	}
	return ""
}

// Missing returns the env keys of fields whose value is blank
func (c Credentials) Missing(fields ...Field) []string {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(c.Value(f)) == "" {
			missing = append(missing, Key(c.Prefix, f))
		}
	}
	return missing
}

// WithSchema returns a copy pointing at another schema; blank keeps the current one.
func (c Credentials) WithSchema(schema string) Credentials {
	if strings.TrimSpace(schema) != "" {
		c.Schema = strings.TrimSpace(schema)
	}
	return c
}

// Redacted returns a copy safe to log
func (c Credentials) Redacted() Credentials {
	if c.Password != "" {
		c.Password = "****"
	}
	return c
}
