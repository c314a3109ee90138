// Package testutil holds fakes and fixtures shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"olistpipe/internal/warehouse"
)

// MockTable is a table written through MockWarehouse
type MockTable struct {
	Columns []warehouse.Column
	Rows    [][]interface{}
}

// MockWarehouse is an in-memory warehouse.Session. Every Opener call hands
// out the same warehouse and counts opens and closes.
type MockWarehouse struct {
	mu sync.Mutex

	// Results maps a query (compared case-insensitively) to its result
	Results map[string]*warehouse.Result

	OpenErr  error
	QueryErr error
	WriteErr error
	CloseErr error

	Tables  map[string]MockTable
	Queries []string
	Opens   int
	Closes  int
}

// NewMockWarehouse creates an empty mock warehouse
func NewMockWarehouse() *MockWarehouse {
	return &MockWarehouse{
		Results: make(map[string]*warehouse.Result),
		Tables:  make(map[string]MockTable),
	}
}

// Opener returns a warehouse.Opener handing out m
func (m *MockWarehouse) Opener() warehouse.Opener {
	return func(ctx context.Context) (warehouse.Session, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.OpenErr != nil {
			return nil, m.OpenErr
		}
		m.Opens++
		return m, nil
	}
}

// SetResult registers the result returned for query
func (m *MockWarehouse) SetResult(query string, result *warehouse.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Results[strings.ToLower(query)] = result
}

// ReplaceTable records the table
func (m *MockWarehouse) ReplaceTable(ctx context.Context, name string, cols []warehouse.Column, rows [][]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Tables[name] = MockTable{Columns: cols, Rows: rows}
	return nil
}

// Query returns the registered result for query
func (m *MockWarehouse) Query(ctx context.Context, query string) (*warehouse.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Queries = append(m.Queries, query)
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	result, ok := m.Results[strings.ToLower(query)]
	if !ok {
		return nil, fmt.Errorf("no result registered for query %q", query)
	}
	return result, nil
}

// Close counts the close
func (m *MockWarehouse) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closes++
	return m.CloseErr
}

// Table returns a written table
func (m *MockWarehouse) Table(name string) (MockTable, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Tables[name]
	return t, ok
}

// OpenSessions is the number of sessions opened but not closed
func (m *MockWarehouse) OpenSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Opens - m.Closes
}
