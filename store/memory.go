package store

import (
	"sort"
	"sync"
)

// MemoryStore keeps everything in memory. Data is lost on restart.
// Safe for concurrent use.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]docs
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]docs)}
}

// copyBytes detaches a document from the store's storage.
func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (m *MemoryStore) table(name string) docs {
	t, ok := m.tables[name]
	if !ok {
		t = make(docs)
		m.tables[name] = t
	}
	return t
}

func (m *MemoryStore) Ensure(table string) error {
	if err := ValidTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table(table)
	return nil
}

func (m *MemoryStore) Put(table string, rows ...Row) error {
	if err := ValidTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(table)
	for _, r := range rows {
		t[r.Key] = copyBytes(r.Data)
	}
	return nil
}

func (m *MemoryStore) Insert(table string, row Row) error {
	if err := ValidTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.table(table)
	if _, ok := t[row.Key]; ok {
		return exists(row.Key)
	}
	t[row.Key] = copyBytes(row.Data)
	return nil
}

func (m *MemoryStore) Get(table, key string) ([]byte, error) {
	if err := ValidTable(table); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.tables[table][key]
	if !ok {
		return nil, notFound(key)
	}
	return copyBytes(doc), nil
}

func (m *MemoryStore) Delete(table, key string) error {
	if err := ValidTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables[table], key)
	return nil
}

func (m *MemoryStore) All(table string) ([]Row, error) {
	if err := ValidTable(table); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t := m.tables[table]
	rows := make([]Row, 0, len(t))
	for k, v := range t {
		rows = append(rows, Row{Key: k, Data: copyBytes(v)})
	}
	return rows, nil
}

func (m *MemoryStore) Patch(table, key string, patches ...Patch) error {
	if err := ValidTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table(table).patch(key, patches)
}

func (m *MemoryStore) Drop(table string) error {
	if err := ValidTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, table)
	return nil
}

func (m *MemoryStore) Tables() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) Close() error { return nil }
