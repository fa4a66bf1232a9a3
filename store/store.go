// Package store defines the backing store interface and implementations.
package store

// Row is a stored record: a key and the JSON text of its document.
type Row struct {
	Key  string
	Data []byte
}

// PatchOp identifies the in-place change a Patch applies to one field.
type PatchOp uint8

const (
	// PatchSet replaces (or adds) the field. On a missing key it creates
	// the single-field document {field: value}.
	PatchSet PatchOp = iota + 1
	// PatchRemove deletes the field. Missing keys and fields are no-ops.
	PatchRemove
	// PatchIncrement adds Amount to the numeric field. A missing field
	// counts as 0.
	PatchIncrement
	// PatchAppend appends Value to the array field. A missing field
	// counts as [].
	PatchAppend
)

func (op PatchOp) String() string {
	switch op {
	case PatchSet:
		return "set"
	case PatchRemove:
		return "trim"
	case PatchIncrement:
		return "increment"
	case PatchAppend:
		return "append"
	default:
		return "unknown"
	}
}

// Patch is a single field mutation executed by the store without handing
// the document to the caller.
type Patch struct {
	Op    PatchOp
	Field string
	// Value is JSON text, used by PatchSet and PatchAppend.
	Value []byte
	// Amount is an int64 or a float64, used by PatchIncrement.
	Amount any
}

// Store is the interface that all backing stores must implement.
// It operates on named tables, where each table contains
// documents keyed by a string identifier.
type Store interface {
	// Ensure creates the table if it does not exist.
	Ensure(table string) error

	// Put inserts or replaces rows. All rows are written or none.
	Put(table string, rows ...Row) error

	// Insert adds a row, failing with ErrKeyExists if the key is taken.
	Insert(table string, row Row) error

	// Get returns the document stored under key, or ErrKeyNotFound.
	Get(table, key string) ([]byte, error)

	// Delete removes a row. Missing rows are not an error.
	Delete(table, key string) error

	// All returns every row of a table in the store's scan order.
	All(table string) ([]Row, error)

	// Patch applies patches to the document under key, in order, as one
	// transaction.
	Patch(table, key string, patches ...Patch) error

	// Drop removes the table and its rows. Missing tables are not an error.
	Drop(table string) error

	// Tables returns the names of all existing tables.
	Tables() ([]string, error)

	// Close releases the underlying handle.
	Close() error
}
