package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/pretty"
)

// JsonFileStore stores each table as a separate JSON file on disk.
//
// Layout:
//
//	data_dir/
//	  notes.json      # "notes" table: {"<key>": <document>, ...}
//	  tasks.json      # "tasks" table
//
// Writes replace the whole file through a rename. Locking is per process:
// two JsonFileStores on one directory can lose each other's writes.
type JsonFileStore struct {
	mu  sync.RWMutex
	dir string
}

func NewJsonFileStore(dir string) (*JsonFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JsonFileStore{dir: dir}, nil
}

func (s *JsonFileStore) tablePath(table string) string {
	return filepath.Join(s.dir, table+".json")
}

func (s *JsonFileStore) hasTable(table string) (bool, error) {
	_, err := os.Stat(s.tablePath(table))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *JsonFileStore) load(table string) (docs, error) {
	data, err := os.ReadFile(s.tablePath(table))
	if err != nil {
		if os.IsNotExist(err) {
			return docs{}, nil
		}
		return nil, err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	result := make(docs, len(raw))
	for k, v := range raw {
		result[k] = pretty.Ugly(v)
	}
	return result, nil
}

func (s *JsonFileStore) save(table string, d docs) error {
	raw := make(map[string]json.RawMessage, len(d))
	for k, v := range d {
		raw[k] = json.RawMessage(v)
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(s.dir, "."+table+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), s.tablePath(table))
}

func (s *JsonFileStore) Ensure(table string) error {
	if err := ValidTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.hasTable(table)
	if err != nil || ok {
		return err
	}
	return s.save(table, docs{})
}

func (s *JsonFileStore) Put(table string, rows ...Row) error {
	if err := ValidTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.load(table)
	if err != nil {
		return err
	}
	for _, r := range rows {
		d[r.Key] = copyBytes(r.Data)
	}
	return s.save(table, d)
}

func (s *JsonFileStore) Insert(table string, row Row) error {
	if err := ValidTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.load(table)
	if err != nil {
		return err
	}
	if _, ok := d[row.Key]; ok {
		return exists(row.Key)
	}
	d[row.Key] = copyBytes(row.Data)
	return s.save(table, d)
}

func (s *JsonFileStore) Get(table, key string) ([]byte, error) {
	if err := ValidTable(table); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.load(table)
	if err != nil {
		return nil, err
	}
	doc, ok := d[key]
	if !ok {
		return nil, notFound(key)
	}
	return doc, nil
}

func (s *JsonFileStore) Delete(table, key string) error {
	if err := ValidTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.load(table)
	if err != nil {
		return err
	}
	if _, ok := d[key]; !ok {
		return nil
	}
	delete(d, key)
	return s.save(table, d)
}

// All returns rows sorted by key, the order of the file.
func (s *JsonFileStore) All(table string) ([]Row, error) {
	if err := ValidTable(table); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, err := s.load(table)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(d))
	for k, v := range d {
		rows = append(rows, Row{Key: k, Data: v})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, nil
}

func (s *JsonFileStore) Patch(table, key string, patches ...Patch) error {
	if err := ValidTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.load(table)
	if err != nil {
		return err
	}
	if err := d.patch(key, patches); err != nil {
		return err
	}
	return s.save(table, d)
}

func (s *JsonFileStore) Drop(table string) error {
	if err := ValidTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.tablePath(table))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *JsonFileStore) Tables() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func (s *JsonFileStore) Close() error { return nil }
