package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// busyTimeout is how long, in milliseconds, a writer waits for another
// handle's write lock before failing with SQLITE_BUSY.
const busyTimeout = 5000

// SqliteStore stores every table in a single SQLite database file.
//
// Tables:
//
//	<table>("key" TEXT PRIMARY KEY, data TEXT NOT NULL)
//
// Patches are single statements over SQLite's JSON functions. Transactions
// start with BEGIN IMMEDIATE so concurrent writers, in this process or
// another one, queue on the database lock instead of failing on upgrade.
type SqliteStore struct {
	db *sql.DB
}

func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_txlock=immediate", dbPath, busyTimeout)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func ensure(e execer, table string) error {
	_, err := e.Exec(`CREATE TABLE IF NOT EXISTS ` + table + ` (
		"key" TEXT PRIMARY KEY,
		data TEXT NOT NULL
	)`)
	return err
}

// isNoTable reports whether err comes from a statement on a missing table.
func isNoTable(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.Code == sqlite3.ErrError && strings.HasPrefix(se.Error(), "no such table")
}

func isKeyConflict(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (s *SqliteStore) Ensure(table string) error {
	t, err := quoteTable(table)
	if err != nil {
		return err
	}
	return ensure(s.db, t)
}

func (s *SqliteStore) Put(table string, rows ...Row) error {
	t, err := quoteTable(table)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := ensure(tx, t); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO ` + t + ` ("key", data) VALUES (?, ?)
		ON CONFLICT("key") DO UPDATE SET data = excluded.data`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.Key, string(r.Data)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SqliteStore) Insert(table string, row Row) error {
	t, err := quoteTable(table)
	if err != nil {
		return err
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := ensure(tx, t); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO `+t+` ("key", data) VALUES (?, ?)`, row.Key, string(row.Data)); err != nil {
		if isKeyConflict(err) {
			return exists(row.Key)
		}
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) Get(table, key string) ([]byte, error) {
	t, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	var raw string
	err = s.db.QueryRow(`SELECT data FROM `+t+` WHERE "key" = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows || isNoTable(err) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func (s *SqliteStore) Delete(table, key string) error {
	t, err := quoteTable(table)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`DELETE FROM `+t+` WHERE "key" = ?`, key)
	if isNoTable(err) {
		return nil
	}
	return err
}

func (s *SqliteStore) All(table string) ([]Row, error) {
	t, err := quoteTable(table)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT "key", data FROM ` + t)
	if isNoTable(err) {
		return []Row{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	result := []Row{}
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		result = append(result, Row{Key: key, Data: []byte(raw)})
	}
	return result, rows.Err()
}

func (s *SqliteStore) Patch(table, key string, patches ...Patch) error {
	t, err := quoteTable(table)
	if err != nil {
		return err
	}
	for _, p := range patches {
		if err := ValidField(p.Field); err != nil {
			return err
		}
	}
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := ensure(tx, t); err != nil {
		return err
	}
	for _, p := range patches {
		if err := patchRow(tx, t, key, p); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// patchRow runs exactly one statement for p. Statements that leave the row
// untouched because of a type guard are diagnosed in the same transaction.
func patchRow(tx *sql.Tx, t, key string, p Patch) error {
	path := sqlPath(p.Field)
	var (
		res sql.Result
		err error
	)
	switch p.Op {
	case PatchSet:
		res, err = tx.Exec(`INSERT INTO `+t+` ("key", data) VALUES (?, json_object(?, json(?)))
			ON CONFLICT("key") DO UPDATE SET data = json_set(data, ?, json(?))
			WHERE json_type(data) = 'object'`,
			key, p.Field, string(p.Value), path, string(p.Value))
	case PatchRemove:
		_, err = tx.Exec(`UPDATE `+t+` SET data = json_remove(data, ?) WHERE "key" = ?`, path, key)
		return err
	case PatchIncrement:
		amount, aerr := sqlAmount(p.Amount)
		if aerr != nil {
			return aerr
		}
		res, err = tx.Exec(`UPDATE `+t+`
			SET data = json_set(data, ?, coalesce(json_extract(data, ?), 0) + ?)
			WHERE "key" = ?
			  AND json_type(data) = 'object'
			  AND coalesce(json_type(data, ?), 'integer') IN ('integer', 'real')`,
			path, path, amount, key, path)
	case PatchAppend:
		res, err = tx.Exec(`UPDATE `+t+`
			SET data = json_set(data, ?, json_insert(coalesce(json_extract(data, ?), '[]'), '$[#]', json(?)))
			WHERE "key" = ?
			  AND json_type(data) = 'object'
			  AND coalesce(json_type(data, ?), 'array') = 'array'`,
			path, path, string(p.Value), key, path)
	default:
		return fmt.Errorf("%w: unknown patch op %d", ErrInvalidMutation, p.Op)
	}
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return diagnose(tx, t, key, p)
}

func diagnose(tx *sql.Tx, t, key string, p Patch) error {
	var docType string
	var fieldType sql.NullString
	err := tx.QueryRow(`SELECT json_type(data), json_type(data, ?) FROM `+t+` WHERE "key" = ?`, sqlPath(p.Field), key).
		Scan(&docType, &fieldType)
	if err == sql.ErrNoRows {
		return notFound(key)
	}
	if err != nil {
		return err
	}
	have := docType
	if docType == "object" {
		have = fieldType.String
	}
	return &MutationError{Key: key, Field: p.Field, Op: p.Op, Have: have}
}

func sqlAmount(v any) (any, error) {
	switch a := v.(type) {
	case int64:
		return a, nil
	case float64:
		return a, nil
	default:
		return nil, fmt.Errorf("%w: increment amount %v (%T)", ErrInvalidMutation, v, v)
	}
}

func (s *SqliteStore) Drop(table string) error {
	t, err := quoteTable(table)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`DROP TABLE IF EXISTS ` + t)
	return err
}

func (s *SqliteStore) Tables() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
