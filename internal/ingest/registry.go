// Package ingest loads the raw Olist CSV extracts into the warehouse.
package ingest

import (
	"path/filepath"

	"olistpipe/internal/common"
	"olistpipe/pkg/errors"
)

// Entry maps a logical table to its source file
type Entry struct {
	Table string
	File  string
}

// DefaultEntries is the fixed set of raw Olist tables, in load order
var DefaultEntries = []Entry{
	{Table: "customers", File: "olist_customers_dataset.csv"},
	{Table: "geolocation", File: "olist_geolocation_dataset.csv"},
	{Table: "order_items", File: "olist_order_items_dataset.csv"},
	{Table: "order_payments", File: "olist_order_payments_dataset.csv"},
	{Table: "order_reviews", File: "olist_order_reviews_dataset.csv"},
	{Table: "orders", File: "olist_orders_dataset.csv"},
	{Table: "products", File: "olist_products_dataset.csv"},
	{Table: "sellers", File: "olist_sellers_dataset.csv"},
	{Table: "product_category_name_translation", File: "product_category_name_translation.csv"},
}

// Registry resolves logical table names to CSV paths under a data directory
type Registry struct {
	dataDir string
	entries []Entry
	index   map[string]int
}

// NewRegistry builds a registry over entries rooted at dataDir
func NewRegistry(dataDir string, entries []Entry) *Registry {
	r := &Registry{
		dataDir: dataDir,
		entries: append([]Entry(nil), entries...),
		index:   make(map[string]int, len(entries)),
	}
	for i, e := range r.entries {
		r.index[e.Table] = i
	}
	return r
}

// DefaultRegistry is the registry of the Olist tables under dataDir
func DefaultRegistry(dataDir string) *Registry {
	return NewRegistry(dataDir, DefaultEntries)
}

// Names returns the logical table names in load order
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Table
	}
	return names
}

// Path returns the source CSV path of table
func (r *Registry) Path(table string) (string, error) {
	i, ok := r.index[table]
	if !ok {
		return "", errors.New(errors.ErrCodeUnknownTable, "Unknown table '"+table+"'").
			WithContext("table", table).
			WithContext("known", r.Names())
	}
	path, err := common.ValidatePath(filepath.Join(r.dataDir, r.entries[i].File), r.dataDir)
	if err != nil {
		return "", errors.FileError(errors.ErrCodeFileRead, "Source file escapes the data directory", r.entries[i].File, err)
	}
	return path, nil
}

// DataDir is the directory the registry resolves files against
func (r *Registry) DataDir() string {
	return r.dataDir
}
