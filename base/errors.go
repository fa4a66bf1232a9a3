package base

import (
	"errors"

	"github.com/stevemurr/arowana/store"
)

var (
	ErrKeyNotFound     = store.ErrKeyNotFound
	ErrKeyExists       = store.ErrKeyExists
	ErrInvalidMutation = store.ErrInvalidMutation
	ErrInvalidName     = store.ErrInvalidName

	// ErrInvalidDocument is returned for values that are not documents:
	// JSON null, unencodable values, or a non-scalar "key" field.
	ErrInvalidDocument = errors.New("invalid document")
)
