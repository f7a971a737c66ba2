// Package testutil provides in-memory fakes for the engine's external
// collaborators: the destination store and the remote API.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/datamill-io/syncmill/pkg/models"
	"github.com/datamill-io/syncmill/pkg/source"
	"github.com/datamill-io/syncmill/pkg/store"
)

// MemoryStore implements store.Store on maps. Tables hold rows keyed by
// the upsert key value; column sets evolve additively like the real
// store.
type MemoryStore struct {
	mu      sync.Mutex
	tables  map[string]*memTable
	Upserts int

	// FailUpserts makes every Upsert return the given error
	FailUpserts error
}

type memTable struct {
	key     string
	columns []string
	rows    map[string]map[string]interface{}
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*memTable)}
}

func (m *MemoryStore) TableExists(_ context.Context, table string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tables[table]
	return ok, nil
}

func (m *MemoryStore) TableColumns(_ context.Context, table string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), t.columns...), nil
}

func (m *MemoryStore) CreateTable(_ context.Context, table string, key store.ColumnDef, cols []store.ColumnDef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tables[table]; ok {
		return nil
	}
	t := &memTable{key: key.Name, rows: make(map[string]map[string]interface{})}
	t.columns = append(t.columns, key.Name)
	for _, c := range cols {
		t.columns = append(t.columns, c.Name)
	}
	m.tables[table] = t
	return nil
}

func (m *MemoryStore) AddColumn(_ context.Context, table string, col store.ColumnDef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil
	}
	for _, c := range t.columns {
		if strings.EqualFold(c, col.Name) {
			return nil
		}
	}
	t.columns = append(t.columns, col.Name)
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, table string, row *models.UpsertRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUpserts != nil {
		return m.FailUpserts
	}

	t, ok := m.tables[table]
	if !ok {
		t = &memTable{key: row.Key, rows: make(map[string]map[string]interface{})}
		m.tables[table] = t
	}

	var key string
	for i, c := range row.Columns {
		if c == row.Key {
			key, _ = row.Values[i].(string)
		}
	}

	existing, ok := t.rows[key]
	if !ok {
		existing = make(map[string]interface{})
		t.rows[key] = existing
	}
	for i, c := range row.Columns {
		existing[c] = row.Values[i]
	}
	m.Upserts++
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, table, column string, value interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return false, nil
	}
	v, _ := value.(string)
	if column == t.key {
		_, ok := t.rows[v]
		return ok, nil
	}
	for _, row := range t.rows {
		if row[column] == value {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) ResetFlag(_ context.Context, table, column string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil
	}
	for _, row := range t.rows {
		row[column] = 0
	}
	return nil
}

func (m *MemoryStore) Close() error { return nil }

// Row returns a copy of a stored row.
func (m *MemoryStore) Row(table, key string) (map[string]interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return nil, false
	}
	row, ok := t.rows[key]
	if !ok {
		return nil, false
	}
	out := make(map[string]interface{}, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out, true
}

// RowCount returns the number of rows in a table.
func (m *MemoryStore) RowCount(table string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		return 0
	}
	return len(t.rows)
}

// Seed inserts a row directly, bypassing the upsert path.
func (m *MemoryStore) Seed(table, keyColumn, key string, row map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[table]
	if !ok {
		t = &memTable{key: keyColumn, rows: make(map[string]map[string]interface{})}
		m.tables[table] = t
	}
	if row == nil {
		row = map[string]interface{}{}
	}
	row[keyColumn] = key
	t.rows[key] = row
}

// FakeAPI implements source.RemoteAPI from canned pages and fields.
type FakeAPI struct {
	Fields []models.FieldDescriptor

	// Pages are served in order for cursor walks; each page's NextToken
	// should point at the next one
	Pages []*models.Page

	// Serve overrides page serving entirely when set
	Serve func(req source.PageRequest) (*models.Page, error)

	Calls    int
	Requests []source.PageRequest
}

func (f *FakeAPI) SearchPage(_ context.Context, req source.PageRequest) (*models.Page, error) {
	f.Calls++
	f.Requests = append(f.Requests, req)
	if f.Serve != nil {
		return f.Serve(req)
	}

	idx := 0
	if req.Token != "" {
		for i, p := range f.Pages[:len(f.Pages)-1] {
			if p.NextToken == req.Token {
				idx = i + 1
				break
			}
		}
	}
	if idx >= len(f.Pages) {
		return &models.Page{}, nil
	}
	return f.Pages[idx], nil
}

func (f *FakeAPI) ListFields(context.Context) ([]models.FieldDescriptor, error) {
	return f.Fields, nil
}
