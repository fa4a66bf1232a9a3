package store

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned when a key is absent.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyExists is returned by Insert when the key is already present.
	ErrKeyExists = errors.New("key already exists")
	// ErrInvalidMutation is returned when a patch targets a value of the
	// wrong JSON type.
	ErrInvalidMutation = errors.New("invalid mutation")
	// ErrInvalidName is returned for table or field names that cannot be
	// used safely.
	ErrInvalidName = errors.New("invalid name")
)

// KeyError reports a failed lookup or uniqueness check on a key.
type KeyError struct {
	Key string
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("%v: %q", e.Err, e.Key)
}

func (e *KeyError) Unwrap() error { return e.Err }

// MutationError reports a patch that does not fit the stored value.
// Have is the JSON type found, using SQLite's json_type names.
type MutationError struct {
	Key   string
	Field string
	Op    PatchOp
	Have  string
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("%v: %s of field %q on key %q: have %s", ErrInvalidMutation, e.Op, e.Field, e.Key, e.Have)
}

func (e *MutationError) Unwrap() error { return ErrInvalidMutation }

func notFound(key string) error {
	return &KeyError{Key: key, Err: ErrKeyNotFound}
}

func exists(key string) error {
	return &KeyError{Key: key, Err: ErrKeyExists}
}
