// Package warehouse abstracts the analytical warehouse the pipeline writes to.
package warehouse

import (
	"context"
	"sort"
	"strings"
	"sync"

	"olistpipe/internal/config"
	"olistpipe/pkg/errors"
)

// ColumnType is a logical column type, mapped to SQL by each dialect
type ColumnType string

const (
	TypeString    ColumnType = "VARCHAR"
	TypeNumber    ColumnType = "NUMBER"
	TypeFloat     ColumnType = "FLOAT"
	TypeBoolean   ColumnType = "BOOLEAN"
	TypeDate      ColumnType = "DATE"
	TypeTimestamp ColumnType = "TIMESTAMP_NTZ"
)

// Column describes one column of a table being written
type Column struct {
	Name string
	Type ColumnType
}

// Result is a fully materialised query result
type Result struct {
	Columns []string
	Rows    [][]interface{}
}

// Index returns the position of column name (case-insensitive), or -1
func (r *Result) Index(name string) int {
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Session is an open warehouse connection. Callers must Close it on every path.
type Session interface {
	// ReplaceTable replaces the named table with exactly cols and rows
	ReplaceTable(ctx context.Context, name string, cols []Column, rows [][]interface{}) error
	// Query runs a read query and returns every row
	Query(ctx context.Context, query string) (*Result, error)
	Close() error
}

// Opener opens a new session
type Opener func(ctx context.Context) (Session, error)

// Config carries everything a driver needs to connect
type Config struct {
	Credentials config.Credentials
	Settings    config.WarehouseSettings
}

// Driver opens a session for a configuration
type Driver func(ctx context.Context, cfg Config) (Session, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Driver)
)

// Register makes a driver available by name. It panics on duplicates.
func Register(name string, driver Driver) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if driver == nil {
		panic("warehouse: Register driver is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("warehouse: Register called twice for driver " + name)
	}
	drivers[name] = driver
}

// Drivers returns the sorted names of registered drivers
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open connects using the driver named by cfg.Settings.Driver
func Open(ctx context.Context, cfg Config) (Session, error) {
	name := cfg.Settings.Driver
	if name == "" {
		name = "snowflake"
	}

	driversMu.RLock()
	driver, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, errors.New(errors.ErrCodeUnsupportedDriver, "Unsupported warehouse driver '"+name+"'").
			WithContext("available", Drivers())
	}
	return driver(ctx, cfg)
}

// NewOpener binds cfg so sessions can be opened lazily
func NewOpener(cfg Config) Opener {
	return func(ctx context.Context) (Session, error) {
		return Open(ctx, cfg)
	}
}
